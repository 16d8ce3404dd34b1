package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormVideoRepository implements VideoRepository using GORM
type GormVideoRepository struct {
	db *gorm.DB
}

// NewGormVideoRepository creates a new GORM video repository
func NewGormVideoRepository(db *gorm.DB) *GormVideoRepository {
	return &GormVideoRepository{db: db}
}

// Create creates a new video record
func (r *GormVideoRepository) Create(ctx context.Context, req *domain.CreateVideoRequest) (*domain.Video, error) {
	video := &domain.Video{
		ID:                 uuid.New().String(),
		CustomerID:         req.CustomerID,
		CreatorID:          req.CreatorID,
		PersonalizedScript: req.PersonalizedScript,
		Status:             domain.VideoStatusPending,
	}
	if req.Status != "" {
		video.Status = req.Status
	}

	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return nil, fmt.Errorf("failed to create video: %w", err)
	}

	return video, nil
}

// GetByID retrieves a video by ID
func (r *GormVideoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	var video domain.Video
	if err := r.db.WithContext(ctx).First(&video, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("video %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return &video, nil
}

// GetByHeyGenID retrieves a video by its HeyGen job ID
func (r *GormVideoRepository) GetByHeyGenID(ctx context.Context, heygenVideoID string) (*domain.Video, error) {
	var video domain.Video
	if err := r.db.WithContext(ctx).First(&video, "hey_gen_video_id = ?", heygenVideoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("video for heygen job %s: %w", heygenVideoID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get video by heygen ID: %w", err)
	}

	return &video, nil
}

// GetByCustomer retrieves all videos for a customer, newest first
func (r *GormVideoRepository) GetByCustomer(ctx context.Context, customerID string) ([]*domain.Video, error) {
	var videos []*domain.Video
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("failed to get videos for customer: %w", err)
	}

	return videos, nil
}

// GetByCreator retrieves all videos for a creator, newest first
func (r *GormVideoRepository) GetByCreator(ctx context.Context, creatorID string) ([]*domain.Video, error) {
	var videos []*domain.Video
	if err := r.db.WithContext(ctx).Where("creator_id = ?", creatorID).Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("failed to get videos for creator: %w", err)
	}

	return videos, nil
}

// GetByStatuses retrieves videos in any of the given statuses, oldest first.
// The reconciliation poller uses this to pick up both in-flight jobs and
// completed videos whose delivery has not happened yet.
func (r *GormVideoRepository) GetByStatuses(ctx context.Context, statuses ...domain.VideoStatus) ([]*domain.Video, error) {
	var videos []*domain.Video
	if err := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at ASC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("failed to get videos by status: %w", err)
	}

	return videos, nil
}

// CountByCustomer counts all videos recorded for a customer
func (r *GormVideoRepository) CountByCustomer(ctx context.Context, customerID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Video{}).Where("customer_id = ?", customerID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count videos for customer: %w", err)
	}

	return count, nil
}

// Update applies a partial update to a video. Writing any status other than
// failed clears error_message, so a retried attempt never shows a stale error.
// Status transitions into completed, sent and viewed stamp their timestamps.
func (r *GormVideoRepository) Update(ctx context.Context, id string, req *domain.UpdateVideoRequest) (*domain.Video, error) {
	var video domain.Video
	if err := r.db.WithContext(ctx).First(&video, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("video %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find video: %w", err)
	}

	// Build update map
	updates := make(map[string]interface{})

	if req.Status != nil {
		updates["status"] = string(*req.Status)
		now := time.Now().UTC()
		switch *req.Status {
		case domain.VideoStatusCompleted:
			updates["completed_at"] = now
		case domain.VideoStatusSent:
			updates["sent_at"] = now
		case domain.VideoStatusViewed:
			updates["viewed_at"] = now
		}
		if *req.Status != domain.VideoStatusFailed {
			updates["error_message"] = nil
		}
	}
	if req.HeyGenVideoID != nil {
		updates["hey_gen_video_id"] = *req.HeyGenVideoID
	}
	if req.VideoURL != nil {
		updates["video_url"] = *req.VideoURL
	}
	if req.ThumbnailURL != nil {
		updates["thumbnail_url"] = *req.ThumbnailURL
	}
	if req.WhopChatID != nil {
		updates["whop_chat_id"] = *req.WhopChatID
	}
	if req.WhopMessageID != nil {
		updates["whop_message_id"] = *req.WhopMessageID
	}
	if req.ErrorMessage != nil {
		updates["error_message"] = *req.ErrorMessage
	}
	if req.ViewCount != nil {
		updates["view_count"] = *req.ViewCount
	}

	if len(updates) == 0 {
		return &video, nil // No changes
	}

	if err := r.db.WithContext(ctx).Model(&video).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update video: %w", err)
	}

	return &video, nil
}
