package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/ports"
)

// Login checks credentials and returns the account.
func (s *Service) Login(ctx context.Context, name, password string) (*domain.Account, error) {
	account, err := s.accounts.GetByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, s.observe(ctx, "login", err)
	}
	if account == nil || !account.CheckPassword(password) {
		return nil, s.observe(ctx, "login", fmt.Errorf("%w: invalid name or password", ErrUnauthorized))
	}
	return account, s.observe(ctx, "login", nil)
}

// Account resolves the acting account of a request.
func (s *Service) Account(ctx context.Context, id int64) (*domain.Account, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: missing account", ErrUnauthorized)
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: unknown account %d", ErrUnauthorized, id)
	}
	return account, nil
}

// CreateAccount adds a local account. Only admins may create accounts; a
// nil actor stands for the local operator using the CLI.
func (s *Service) CreateAccount(ctx context.Context, actor *domain.Account, name, password, role string) (*domain.Account, error) {
	if actor != nil && actor.Role != domain.RoleAdmin {
		return nil, s.observe(ctx, "create_account", fmt.Errorf("%w: only admins can create accounts", ErrForbidden))
	}

	parsed, err := domain.ParseRole(role)
	if err != nil {
		return nil, s.observe(ctx, "create_account", fmt.Errorf("%w: %v", ErrValidation, err))
	}
	account, err := domain.NewAccount(name, password, parsed)
	if err != nil {
		return nil, s.observe(ctx, "create_account", fmt.Errorf("%w: %v", ErrValidation, err))
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			err = fmt.Errorf("%w: account %q", ErrConflict, account.Name)
		}
		return nil, s.observe(ctx, "create_account", err)
	}

	s.logger.InfoContext(ctx, "account created",
		logging.Int64(logging.FieldAccountID, account.ID),
		logging.String("role", string(account.Role)),
	)
	return account, s.observe(ctx, "create_account", nil)
}

func (s *Service) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return s.accounts.List(ctx)
}
