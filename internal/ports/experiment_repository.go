package ports

import (
	"context"

	"github.com/emiliopalmerini/elabgate/internal/domain"
)

type ExperimentRepository interface {
	Create(ctx context.Context, experiment *domain.Experiment) error
	GetByReference(ctx context.Context, reference string) (*domain.Experiment, error)
	GetByElabID(ctx context.Context, elabID int64) (*domain.Experiment, error)
	List(ctx context.Context, limit int) ([]*domain.Experiment, error)
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.Experiment, error)
}
