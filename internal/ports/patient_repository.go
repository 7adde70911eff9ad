package ports

import (
	"context"

	"github.com/emiliopalmerini/elabgate/internal/domain"
)

type PatientRepository interface {
	Create(ctx context.Context, patient *domain.Patient) error
	GetByID(ctx context.Context, id int64) (*domain.Patient, error)
	GetByName(ctx context.Context, name string) (*domain.Patient, error)
	List(ctx context.Context) ([]*domain.Patient, error)
	SetElabItemID(ctx context.Context, id, itemID int64) error
}
