package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/internal/config"
	"github.com/dyncarl8-oss/auto-welcome/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCreatorRepository implements CreatorRepository using GORM
type GormCreatorRepository struct {
	db *gorm.DB
}

// NewGormCreatorRepository creates a new GORM creator repository
func NewGormCreatorRepository(db *gorm.DB) *GormCreatorRepository {
	return &GormCreatorRepository{db: db}
}

// Create creates a new creator
func (r *GormCreatorRepository) Create(ctx context.Context, req *domain.CreateCreatorRequest) (*domain.Creator, error) {
	creator := &domain.Creator{
		ID:              uuid.New().String(),
		WhopUserID:      req.WhopUserID,
		WhopCompanyID:   req.WhopCompanyID,
		MessageTemplate: req.MessageTemplate,
		VoiceID:         req.VoiceID,
	}
	if creator.MessageTemplate == "" {
		creator.MessageTemplate = config.DefaultMessageTemplate
	}
	if creator.VoiceID == "" {
		creator.VoiceID = config.DefaultVoiceID
	}

	if err := r.db.WithContext(ctx).Create(creator).Error; err != nil {
		return nil, fmt.Errorf("failed to create creator: %w", err)
	}

	return creator, nil
}

// GetByID retrieves a creator by ID
func (r *GormCreatorRepository) GetByID(ctx context.Context, id string) (*domain.Creator, error) {
	var creator domain.Creator
	if err := r.db.WithContext(ctx).First(&creator, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("creator %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get creator: %w", err)
	}

	return &creator, nil
}

// GetByWhopUserID retrieves a creator by Whop user ID
func (r *GormCreatorRepository) GetByWhopUserID(ctx context.Context, whopUserID string) (*domain.Creator, error) {
	var creator domain.Creator
	if err := r.db.WithContext(ctx).First(&creator, "whop_user_id = ?", whopUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("creator for user %s: %w", whopUserID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get creator by whop user ID: %w", err)
	}

	return &creator, nil
}

// GetByCompanyID retrieves a creator by Whop company ID
func (r *GormCreatorRepository) GetByCompanyID(ctx context.Context, companyID string) (*domain.Creator, error) {
	var creator domain.Creator
	if err := r.db.WithContext(ctx).First(&creator, "whop_company_id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("creator for company %s: %w", companyID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get creator by company ID: %w", err)
	}

	return &creator, nil
}

// GetAll retrieves all creators
func (r *GormCreatorRepository) GetAll(ctx context.Context) ([]*domain.Creator, error) {
	var creators []*domain.Creator
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&creators).Error; err != nil {
		return nil, fmt.Errorf("failed to get creators: %w", err)
	}

	return creators, nil
}

// Update applies a partial update to a creator
func (r *GormCreatorRepository) Update(ctx context.Context, id string, req *domain.UpdateCreatorRequest) (*domain.Creator, error) {
	var creator domain.Creator
	if err := r.db.WithContext(ctx).First(&creator, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("creator %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find creator: %w", err)
	}

	// Build update map
	updates := make(map[string]interface{})

	if req.MessageTemplate != nil {
		updates["message_template"] = *req.MessageTemplate
	}
	if req.AvatarPhotoURL != nil {
		updates["avatar_photo_url"] = *req.AvatarPhotoURL
	}
	if req.AudioFileURL != nil {
		updates["audio_file_url"] = *req.AudioFileURL
	}
	if req.UseAudioForGeneration != nil {
		updates["use_audio_for_generation"] = *req.UseAudioForGeneration
	}
	if req.VoiceID != nil {
		updates["voice_id"] = *req.VoiceID
	}
	if req.FishAudioModelID != nil {
		updates["fish_audio_model_id"] = *req.FishAudioModelID
	}
	if req.IsSetupComplete != nil {
		updates["is_setup_complete"] = *req.IsSetupComplete
	}

	if len(updates) == 0 {
		return &creator, nil // No changes
	}

	if err := r.db.WithContext(ctx).Model(&creator).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update creator: %w", err)
	}

	return &creator, nil
}

// ResetOnboarding clears all uploaded media and restores template defaults,
// returning the creator to the not-yet-configured state.
func (r *GormCreatorRepository) ResetOnboarding(ctx context.Context, id string) (*domain.Creator, error) {
	var creator domain.Creator
	if err := r.db.WithContext(ctx).First(&creator, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("creator %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find creator: %w", err)
	}

	updates := map[string]interface{}{
		"avatar_photo_url":         nil,
		"audio_file_url":           nil,
		"use_audio_for_generation": false,
		"voice_id":                 config.DefaultVoiceID,
		"fish_audio_model_id":      nil,
		"message_template":         config.DefaultMessageTemplate,
		"is_setup_complete":        false,
	}

	if err := r.db.WithContext(ctx).Model(&creator).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to reset creator onboarding: %w", err)
	}

	return &creator, nil
}
