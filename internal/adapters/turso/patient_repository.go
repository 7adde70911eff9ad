package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/ports"
	"github.com/emiliopalmerini/elabgate/internal/util"
)

type PatientRepository struct {
	db *sql.DB
}

func NewPatientRepository(db *sql.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

const patientColumns = `id, name, elab_item_id, created_at`

func (r *PatientRepository) Create(ctx context.Context, patient *domain.Patient) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO patients (name, elab_item_id, created_at) VALUES (?, ?, ?)`,
		patient.Name, util.NullInt64(patient.ElabItemID), formatTime(patient.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("patient %q: %w", patient.Name, ports.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read patient id: %w", err)
	}
	patient.ID = id
	return nil
}

func (r *PatientRepository) GetByID(ctx context.Context, id int64) (*domain.Patient, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
	return scanPatientRow(row)
}

func (r *PatientRepository) GetByName(ctx context.Context, name string) (*domain.Patient, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE name = ?`, name)
	return scanPatientRow(row)
}

func (r *PatientRepository) List(ctx context.Context) ([]*domain.Patient, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	var patients []*domain.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// SetElabItemID records the upstream item of a patient created before the
// item existed.
func (r *PatientRepository) SetElabItemID(ctx context.Context, id, itemID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE patients SET elab_item_id = ? WHERE id = ?`, util.NullInt64(itemID), id)
	if isUniqueViolation(err) {
		return fmt.Errorf("item %d: %w", itemID, ports.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("patient %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

func scanPatient(s scanner) (*domain.Patient, error) {
	var (
		p         domain.Patient
		itemID    sql.NullInt64
		createdAt string
	)
	if err := s.Scan(&p.ID, &p.Name, &itemID, &createdAt); err != nil {
		return nil, err
	}
	p.ElabItemID = util.NullInt64Value(itemID)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func scanPatientRow(row *sql.Row) (*domain.Patient, error) {
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}
