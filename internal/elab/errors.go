package elab

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

const maxErrorMessage = 600

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyTemplate = errors.New("template has no body")
)

// UpstreamError reports a non-success response from eLabFTW, including
// authentication failures. Message holds the response body, truncated.
type UpstreamError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Unauthorized reports whether eLabFTW rejected the API key.
func (e *UpstreamError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// NotFoundError reports that an identifier has no corresponding upstream
// resource, or that the resource has nothing to export.
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// TransportError reports that no response was received from eLabFTW.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Kind int

const (
	KindNone Kind = iota
	KindUpstream
	KindNotFound
	KindTransport
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindUpstream:
		return "upstream"
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	case KindInvalid:
		return "invalid"
	default:
		return "none"
	}
}

// KindOf classifies err. NotFoundError takes precedence over the
// UpstreamError it may wrap.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return KindNotFound
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return KindUpstream
	}
	var te *TransportError
	if errors.As(err, &te) {
		return KindTransport
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrEmptyTemplate) {
		return KindInvalid
	}
	return KindNone
}

// UpstreamStatus returns the HTTP status carried by err, or zero.
func UpstreamStatus(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}

func newUpstreamError(method, path string, status int, body []byte) *UpstreamError {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status=%d", status)
	}
	return &UpstreamError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Message:    truncate(msg, maxErrorMessage),
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	// Drop a multi-byte rune split by the cut.
	for i := 0; i < utf8.UTFMax-1 && len(cut) > 0; i++ {
		if r, size := utf8.DecodeLastRuneInString(cut); r != utf8.RuneError || size != 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut + "... (truncated)"
}

// asNotFound converts a 404 UpstreamError into a NotFoundError for resource.
func asNotFound(err error, resource string, id int64) error {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: resource, ID: fmt.Sprint(id), Err: ue}
	}
	return err
}
