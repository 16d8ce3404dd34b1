package domain

import (
	"time"
)

// VideoStatus is the lifecycle state of one generation attempt.
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"    // default for records that never started
	VideoStatusGenerating VideoStatus = "generating" // provider job in flight
	VideoStatusCompleted  VideoStatus = "completed"  // provider finished, not yet delivered
	VideoStatusSending    VideoStatus = "sending"    // DM in flight
	VideoStatusSent       VideoStatus = "sent"       // DM delivered to the platform
	VideoStatusDelivered  VideoStatus = "delivered"  // set by platform read receipts, never internally
	VideoStatusViewed     VideoStatus = "viewed"     // set by view tracking, never internally
	VideoStatusFailed     VideoStatus = "failed"     // generation or delivery failed
)

// CanTransition reports whether moving from s to next is a legal forward step.
// generating may reach completed or failed; completed may reach sent or failed.
// Nothing transitions back into generating, and delivered/viewed are entered
// only by external collaborators.
func (s VideoStatus) CanTransition(next VideoStatus) bool {
	switch s {
	case VideoStatusPending:
		return next == VideoStatusGenerating || next == VideoStatusFailed
	case VideoStatusGenerating:
		return next == VideoStatusCompleted || next == VideoStatusFailed
	case VideoStatusCompleted:
		return next == VideoStatusSent || next == VideoStatusFailed
	case VideoStatusSent:
		return next == VideoStatusDelivered
	case VideoStatusDelivered:
		return next == VideoStatusViewed
	default:
		return false
	}
}

// Video is one generation attempt for a customer.
type Video struct {
	ID         string `json:"id" gorm:"type:uuid;primary_key"`
	CustomerID string `json:"customer_id" gorm:"type:uuid;not null;index"`
	CreatorID  string `json:"creator_id" gorm:"type:uuid;not null;index"`

	PersonalizedScript string      `json:"personalized_script" gorm:"type:text;not null"`
	Status             VideoStatus `json:"status" gorm:"type:varchar(32);not null;index;default:pending"`

	HeyGenVideoID *string `json:"heygen_video_id" gorm:"type:varchar(255);index"`
	VideoURL      *string `json:"video_url" gorm:"type:text"`
	ThumbnailURL  *string `json:"thumbnail_url" gorm:"type:text"`

	WhopChatID    *string `json:"whop_chat_id" gorm:"type:varchar(255)"`
	WhopMessageID *string `json:"whop_message_id" gorm:"type:varchar(255)"`
	ErrorMessage  *string `json:"error_message" gorm:"type:text"`
	ViewCount     int     `json:"view_count" gorm:"default:0"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt *time.Time `json:"completed_at"`
	SentAt      *time.Time `json:"sent_at"`
	ViewedAt    *time.Time `json:"viewed_at"`
}

// TableName sets the table name for Video.
func (Video) TableName() string {
	return "videos"
}

// CreateVideoRequest creates a record in the generating state with the
// already-rendered script. The script is immutable afterwards.
type CreateVideoRequest struct {
	CustomerID         string      `json:"customer_id" validate:"required"`
	CreatorID          string      `json:"creator_id" validate:"required"`
	PersonalizedScript string      `json:"personalized_script" validate:"required"`
	Status             VideoStatus `json:"status"`
}

// UpdateVideoRequest is a partial update; nil pointers leave fields untouched.
type UpdateVideoRequest struct {
	Status        *VideoStatus `json:"status,omitempty"`
	HeyGenVideoID *string      `json:"heygen_video_id,omitempty"`
	VideoURL      *string      `json:"video_url,omitempty"`
	ThumbnailURL  *string      `json:"thumbnail_url,omitempty"`
	WhopChatID    *string      `json:"whop_chat_id,omitempty"`
	WhopMessageID *string      `json:"whop_message_id,omitempty"`
	ErrorMessage  *string      `json:"error_message,omitempty"`
	ViewCount     *int         `json:"view_count,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
	ViewedAt      *time.Time   `json:"viewed_at,omitempty"`
}
