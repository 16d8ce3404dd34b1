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
	"gorm.io/gorm/clause"
)

// GormCustomerRepository implements CustomerRepository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GORM customer repository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// CreateIfAbsent inserts a customer unless one already exists for the same
// (creator_id, whop_user_id) pair. The insert relies on the unique index and
// ON CONFLICT DO NOTHING, so concurrent webhook and poller inserts for the
// same member cannot race into duplicates. The bool result reports whether a
// new row was inserted.
func (r *GormCustomerRepository) CreateIfAbsent(ctx context.Context, req *domain.CreateCustomerRequest) (*domain.Customer, bool, error) {
	joinedAt := req.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}

	customer := &domain.Customer{
		ID:            uuid.New().String(),
		CreatorID:     req.CreatorID,
		WhopUserID:    req.WhopUserID,
		WhopMemberID:  req.WhopMemberID,
		WhopCompanyID: req.WhopCompanyID,
		Name:          req.Name,
		Email:         req.Email,
		Username:      req.Username,
		PlanName:      req.PlanName,
		JoinedAt:      joinedAt,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "creator_id"}, {Name: "whop_user_id"}},
			DoNothing: true,
		}).
		Create(customer)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create customer: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Lost the race or already known. Return the existing row.
		existing, err := r.GetByWhopUserID(ctx, req.CreatorID, req.WhopUserID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return customer, true, nil
}

// GetByID retrieves a customer by ID
func (r *GormCustomerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	if err := r.db.WithContext(ctx).First(&customer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("customer %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &customer, nil
}

// GetByWhopUserID retrieves a customer by Whop user ID within a creator's scope
func (r *GormCustomerRepository) GetByWhopUserID(ctx context.Context, creatorID, whopUserID string) (*domain.Customer, error) {
	var customer domain.Customer
	if err := r.db.WithContext(ctx).First(&customer, "creator_id = ? AND whop_user_id = ?", creatorID, whopUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("customer for user %s: %w", whopUserID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer by whop user ID: %w", err)
	}

	return &customer, nil
}

// GetByCreator retrieves all customers for a creator, newest first
func (r *GormCustomerRepository) GetByCreator(ctx context.Context, creatorID string) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	if err := r.db.WithContext(ctx).Where("creator_id = ?", creatorID).Order("joined_at DESC").Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to get customers for creator: %w", err)
	}

	return customers, nil
}

// Update applies a partial update to a customer
func (r *GormCustomerRepository) Update(ctx context.Context, id string, req *domain.UpdateCustomerRequest) (*domain.Customer, error) {
	var customer domain.Customer
	if err := r.db.WithContext(ctx).First(&customer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("customer %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}

	// Build update map
	updates := make(map[string]interface{})

	if req.WhopCompanyID != nil {
		updates["whop_company_id"] = *req.WhopCompanyID
	}
	if req.FirstVideoSent != nil {
		updates["first_video_sent"] = *req.FirstVideoSent
	}

	if len(updates) == 0 {
		return &customer, nil // No changes
	}

	if err := r.db.WithContext(ctx).Model(&customer).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}

	return &customer, nil
}
