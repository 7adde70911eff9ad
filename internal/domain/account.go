package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleRequester Role = "requester"
	RoleAdmin     Role = "admin"
	RoleMachine   Role = "machine"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole accepts the canonical role names plus the legacy Portuguese
// names still present in older registries.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "requester", "pesquisador":
		return RoleRequester, nil
	case "admin":
		return RoleAdmin, nil
	case "machine", "maquina":
		return RoleMachine, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

type Account struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewAccount(name, password string, role Role) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("account name is required")
	}
	if len(password) < 6 {
		return nil, errors.New("password must have at least 6 characters")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &Account{
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (a *Account) CheckPassword(password string) bool {
	if a == nil || a.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

func (a *Account) CanCreateExperiments() bool {
	return a.Role == RoleRequester || a.Role == RoleAdmin
}

// CanManageResults covers result updates, status changes and body reads.
func (a *Account) CanManageResults() bool {
	return a.Role == RoleMachine || a.Role == RoleAdmin
}

func (a *Account) CanViewStatus(e *Experiment) bool {
	switch a.Role {
	case RoleAdmin, RoleMachine:
		return true
	default:
		return e != nil && e.AccountID == a.ID
	}
}

func (a *Account) CanExport(e *Experiment) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return e != nil && e.AccountID == a.ID
}
