package repository

import (
	"context"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

// ClientRepositoryInterface defines operations for client data access
type ClientRepositoryInterface interface {
	List(ctx context.Context) ([]domain.Client, error)
	GetByID(ctx context.Context, id int64) (*domain.Client, error)
	Create(ctx context.Context, client *domain.Client) error
	UpdateStatus(ctx context.Context, id int64, status domain.ClientStatus) (*domain.Client, error)
}

// ConfigRepositoryInterface defines operations for verification configuration data access
type ConfigRepositoryInterface interface {
	Get(ctx context.Context, t domain.ConfigType, clientID int64) (domain.Config, error)
	List(ctx context.Context, f ConfigFilter) ([]domain.Config, error)
	Create(ctx context.Context, cfg domain.Config) error
	Update(ctx context.Context, cfg domain.Config) error
	Delete(ctx context.Context, t domain.ConfigType, clientID int64) error
}
