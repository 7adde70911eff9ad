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

type ExperimentRepository struct {
	db *sql.DB
}

func NewExperimentRepository(db *sql.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

const experimentColumns = `reference, elab_experiment_id, patient_id, account_id, sample_type, title, created_at`

func (r *ExperimentRepository) Create(ctx context.Context, e *domain.Experiment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO experiments (`+experimentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Reference,
		e.ElabExperimentID,
		e.PatientID,
		util.NullInt64(e.AccountID),
		e.SampleType,
		e.Title,
		formatTime(e.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("experiment %q: %w", e.Reference, ports.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}
	return nil
}

func (r *ExperimentRepository) GetByReference(ctx context.Context, reference string) (*domain.Experiment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE reference = ?`, reference)
	return scanExperimentRow(row)
}

func (r *ExperimentRepository) GetByElabID(ctx context.Context, elabID int64) (*domain.Experiment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE elab_experiment_id = ?`, elabID)
	return scanExperimentRow(row)
}

// List returns the most recent experiments first. A non-positive limit
// returns all of them.
func (r *ExperimentRepository) List(ctx context.Context, limit int) ([]*domain.Experiment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC, reference LIMIT ?`,
		sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return collectExperiments(rows)
}

func (r *ExperimentRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.Experiment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE account_id = ? ORDER BY created_at DESC, reference LIMIT ?`,
		accountID, sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return collectExperiments(rows)
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func collectExperiments(rows *sql.Rows) ([]*domain.Experiment, error) {
	defer rows.Close()
	var experiments []*domain.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, e)
	}
	return experiments, rows.Err()
}

func scanExperiment(s scanner) (*domain.Experiment, error) {
	var (
		e         domain.Experiment
		accountID sql.NullInt64
		createdAt string
	)
	if err := s.Scan(&e.Reference, &e.ElabExperimentID, &e.PatientID, &accountID, &e.SampleType, &e.Title, &createdAt); err != nil {
		return nil, err
	}
	e.AccountID = util.NullInt64Value(accountID)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

func scanExperimentRow(row *sql.Row) (*domain.Experiment, error) {
	e, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return e, nil
}
