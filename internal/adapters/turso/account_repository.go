package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/ports"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, name, password_hash, role, created_at`

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (name, password_hash, role, created_at) VALUES (?, ?, ?, ?)`,
		account.Name, account.PasswordHash, string(account.Role), formatTime(account.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %q: %w", account.Name, ports.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read account id: %w", err)
	}
	account.ID = id
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccountRow(row)
}

func (r *AccountRepository) GetByName(ctx context.Context, name string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name = ?`, name)
	return scanAccountRow(row)
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*domain.Account, error) {
	var (
		a         domain.Account
		role      string
		createdAt string
	)
	if err := s.Scan(&a.ID, &a.Name, &a.PasswordHash, &role, &createdAt); err != nil {
		return nil, err
	}
	a.Role = domain.Role(role)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func scanAccountRow(row *sql.Row) (*domain.Account, error) {
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}
