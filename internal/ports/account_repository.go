package ports

import (
	"context"

	"github.com/emiliopalmerini/elabgate/internal/domain"
)

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByName(ctx context.Context, name string) (*domain.Account, error)
	List(ctx context.Context) ([]*domain.Account, error)
}
