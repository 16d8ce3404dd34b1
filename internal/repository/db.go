package repository

import (
	"context"

	"github.com/dyncarl8-oss/auto-welcome/internal/domain"
	"gorm.io/gorm"
)

// CreatorRepository defines tenant record operations.
type CreatorRepository interface {
	Create(ctx context.Context, req *domain.CreateCreatorRequest) (*domain.Creator, error)
	GetByID(ctx context.Context, id string) (*domain.Creator, error)
	GetByWhopUserID(ctx context.Context, whopUserID string) (*domain.Creator, error)
	GetByCompanyID(ctx context.Context, companyID string) (*domain.Creator, error)
	GetAll(ctx context.Context) ([]*domain.Creator, error)
	Update(ctx context.Context, id string, req *domain.UpdateCreatorRequest) (*domain.Creator, error)
	ResetOnboarding(ctx context.Context, id string) (*domain.Creator, error)
}

// CustomerRepository defines member record operations. CreateIfAbsent is the
// only insert path: it is an atomic insert-if-absent on the
// (creator_id, whop_user_id) pair, so two concurrent join events for the same
// member resolve to one record.
type CustomerRepository interface {
	CreateIfAbsent(ctx context.Context, req *domain.CreateCustomerRequest) (*domain.Customer, bool, error)
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	GetByWhopUserID(ctx context.Context, creatorID, whopUserID string) (*domain.Customer, error)
	GetByCreator(ctx context.Context, creatorID string) ([]*domain.Customer, error)
	Update(ctx context.Context, id string, req *domain.UpdateCustomerRequest) (*domain.Customer, error)
}

// VideoRepository defines generation-attempt record operations.
type VideoRepository interface {
	Create(ctx context.Context, req *domain.CreateVideoRequest) (*domain.Video, error)
	GetByID(ctx context.Context, id string) (*domain.Video, error)
	GetByHeyGenID(ctx context.Context, heygenVideoID string) (*domain.Video, error)
	GetByCustomer(ctx context.Context, customerID string) ([]*domain.Video, error)
	GetByCreator(ctx context.Context, creatorID string) ([]*domain.Video, error)
	GetByStatuses(ctx context.Context, statuses ...domain.VideoStatus) ([]*domain.Video, error)
	CountByCustomer(ctx context.Context, customerID string) (int64, error)
	Update(ctx context.Context, id string, req *domain.UpdateVideoRequest) (*domain.Video, error)
}

// RepositoryManager combines all repositories.
type RepositoryManager interface {
	Creator() CreatorRepository
	Customer() CustomerRepository
	Video() VideoRepository

	Ping(ctx context.Context) error
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM.
type GormRepositoryManager struct {
	db           *gorm.DB
	creatorRepo  *GormCreatorRepository
	customerRepo *GormCustomerRepository
	videoRepo    *GormVideoRepository
}

// NewGormRepositoryManager creates a new GORM repository manager.
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:           db,
		creatorRepo:  NewGormCreatorRepository(db),
		customerRepo: NewGormCustomerRepository(db),
		videoRepo:    NewGormVideoRepository(db),
	}
}

// Creator returns the creator repository.
func (m *GormRepositoryManager) Creator() CreatorRepository {
	return m.creatorRepo
}

// Customer returns the customer repository.
func (m *GormRepositoryManager) Customer() CustomerRepository {
	return m.customerRepo
}

// Video returns the video repository.
func (m *GormRepositoryManager) Video() VideoRepository {
	return m.videoRepo
}

// Ping checks the database connection.
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
