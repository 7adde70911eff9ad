package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/a-h/templ"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/elab"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/relay"
	"github.com/emiliopalmerini/elabgate/internal/results"
)

const maxBodyBytes = 1 << 20

type errorPayload struct {
	Error          string `json:"error"`
	Kind           string `json:"kind"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// statusFor maps an error kind to the HTTP status answered to callers.
func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "upstream":
		return http.StatusBadGateway
	case "transport":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := relay.ErrorKind(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			logging.String("path", r.URL.Path),
			logging.String("kind", kind),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, errorPayload{
		Error:          err.Error(),
		Kind:           kind,
		UpstreamStatus: elab.UpstreamStatus(err),
	})
}

func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", relay.ErrValidation, err)
	}
	return nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to render page",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid experiment id %q", relay.ErrValidation, r.PathValue("id"))
	}
	return id, nil
}

func queryLimit(r *http.Request, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n == 0 {
		return fallback
	}
	return n
}

// experimentJSON is a registry row with its optional live status.
type experimentJSON struct {
	*domain.Experiment
	Status      string `json:"status,omitempty"`
	StatusError string `json:"status_error,omitempty"`
}

type fillReportJSON struct {
	UsedTable bool     `json:"used_table"`
	Matched   []string `json:"matched"`
	Unmatched []string `json:"unmatched"`
}

func toFillReportJSON(r results.FillReport) fillReportJSON {
	out := fillReportJSON{UsedTable: r.UsedTable, Matched: r.Matched, Unmatched: r.Unmatched}
	if out.Matched == nil {
		out.Matched = []string{}
	}
	if out.Unmatched == nil {
		out.Unmatched = []string{}
	}
	return out
}
