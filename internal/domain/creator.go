package domain

import (
	"time"
)

// Creator is the tenant record: one per community operator / company.
type Creator struct {
	ID            string `json:"id" gorm:"type:uuid;primary_key"`
	WhopUserID    string `json:"whop_user_id" gorm:"type:varchar(255);uniqueIndex:uni_creators_whop_user_id;not null"`
	WhopCompanyID string `json:"whop_company_id" gorm:"type:varchar(255);uniqueIndex:uni_creators_whop_company_id;not null"`

	MessageTemplate       string  `json:"message_template" gorm:"type:text;not null"`
	AvatarPhotoURL        *string `json:"avatar_photo_url" gorm:"type:text"`
	AudioFileURL          *string `json:"audio_file_url" gorm:"type:text"`
	UseAudioForGeneration bool    `json:"use_audio_for_generation" gorm:"default:false"`
	VoiceID               string  `json:"voice_id" gorm:"type:varchar(255);not null"`
	FishAudioModelID      *string `json:"fish_audio_model_id" gorm:"type:varchar(255)"`
	IsSetupComplete       bool    `json:"is_setup_complete" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for Creator.
func (Creator) TableName() string {
	return "creators"
}

// CreateCreatorRequest carries the fields set at first initialization. The
// company id is bound here and never again: settings updates cannot move a
// creator to a different company.
type CreateCreatorRequest struct {
	WhopUserID      string `json:"whop_user_id" validate:"required"`
	WhopCompanyID   string `json:"whop_company_id" validate:"required"`
	MessageTemplate string `json:"message_template"`
	VoiceID         string `json:"voice_id"`
}

// UpdateCreatorRequest is a partial update; nil pointers leave fields
// untouched. Clearing media fields goes through ResetOnboarding on the
// repository instead.
type UpdateCreatorRequest struct {
	MessageTemplate       *string `json:"message_template,omitempty"`
	AvatarPhotoURL        *string `json:"avatar_photo_url,omitempty"`
	AudioFileURL          *string `json:"audio_file_url,omitempty"`
	UseAudioForGeneration *bool   `json:"use_audio_for_generation,omitempty"`
	VoiceID               *string `json:"voice_id,omitempty"`
	FishAudioModelID      *string `json:"fish_audio_model_id,omitempty"`
	IsSetupComplete       *bool   `json:"is_setup_complete,omitempty"`
}
