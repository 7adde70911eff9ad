package relay

import (
	"errors"

	"github.com/emiliopalmerini/elabgate/internal/elab"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("not allowed for this account")
	ErrUnauthorized = errors.New("authentication required")
	ErrConflict     = errors.New("already exists")
	ErrNotFound     = errors.New("not found")
)

// ErrorKind names the class of err for API payloads and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	switch elab.KindOf(err) {
	case elab.KindNotFound:
		return "not_found"
	case elab.KindUpstream:
		return "upstream"
	case elab.KindTransport:
		return "transport"
	case elab.KindInvalid:
		return "validation"
	}
	return "internal"
}
