package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/elab"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/ports"
)

// RegisterPatient creates the patient item upstream and records it locally.
func (s *Service) RegisterPatient(ctx context.Context, name string) (*domain.Patient, error) {
	p, err := s.registerPatient(ctx, name)
	return p, s.observe(ctx, "register_patient", err)
}

func (s *Service) registerPatient(ctx context.Context, name string) (*domain.Patient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: patient name is required", ErrValidation)
	}
	existing, err := s.patients.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: patient %q", ErrConflict, name)
	}

	itemID, err := s.elab.RegisterPatient(ctx, elab.PatientFields{Name: name})
	if err != nil {
		return nil, err
	}

	patient := &domain.Patient{Name: name, ElabItemID: itemID, CreatedAt: s.now()}
	if err := s.patients.Create(ctx, patient); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, fmt.Errorf("%w: patient %q", ErrConflict, name)
		}
		s.logger.ErrorContext(ctx, "patient item created upstream but not recorded",
			logging.Int64(logging.FieldItemID, itemID),
			logging.Error(err),
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "patient registered",
		logging.Int64("patient_id", patient.ID),
		logging.Int64(logging.FieldItemID, itemID),
	)
	return patient, nil
}

func (s *Service) ListPatients(ctx context.Context) ([]*domain.Patient, error) {
	return s.patients.List(ctx)
}

// ensurePatientItem creates the upstream item of a patient recorded before
// elabgate registered items.
func (s *Service) ensurePatientItem(ctx context.Context, patient *domain.Patient) (int64, error) {
	if patient.Registered() {
		return patient.ElabItemID, nil
	}
	itemID, err := s.elab.RegisterPatient(ctx, elab.PatientFields{Name: patient.Name})
	if err != nil {
		return 0, err
	}
	if err := s.patients.SetElabItemID(ctx, patient.ID, itemID); err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "created missing patient item",
		logging.Int64("patient_id", patient.ID),
		logging.Int64(logging.FieldItemID, itemID),
	)
	patient.ElabItemID = itemID
	return itemID, nil
}
