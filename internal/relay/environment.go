package relay

import (
	"context"

	"github.com/emiliopalmerini/elabgate/internal/elab"
)

// TestConnection reports whether eLabFTW accepts the configured key.
func (s *Service) TestConnection(ctx context.Context) (bool, error) {
	ok, err := s.elab.TestConnection(ctx)
	return ok, s.observe(ctx, "test_connection", err)
}

// EnsureEnvironment creates the item type and template elabgate needs.
func (s *Service) EnsureEnvironment(ctx context.Context) (elab.Environment, error) {
	env, err := s.elab.EnsureEnvironment(ctx)
	return env, s.observe(ctx, "ensure_environment", err)
}
