package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/relay"
)

func (s *Server) handleAPIConnection(w http.ResponseWriter, r *http.Request) {
	ok, err := s.relay.TestConnection(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      ok,
		"message": connectionMessage(ok),
	})
}

func connectionMessage(ok bool) string {
	if ok {
		return "connected to eLabFTW"
	}
	return "eLabFTW rejected the API key"
}

func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := s.decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.relay.Login(r.Context(), body.Name, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, expires := s.sessions.token(account.ID)
	s.writeJSON(w, http.StatusOK, loginResponse{Account: account, Token: token, ExpiresAt: expires})
}

// loginResponse is the account plus the credential to send back as
// X-Account-Token.
type loginResponse struct {
	*domain.Account
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func requireAdmin(actor *domain.Account) error {
	if actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: only admins can prepare the environment", relay.ErrForbidden)
	}
	return nil
}

func (s *Server) handleAPIEnvironment(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	if err := requireAdmin(actor); err != nil {
		s.writeError(w, r, err)
		return
	}
	env, err := s.relay.EnsureEnvironment(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleAPICreateAccount(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	var body struct {
		Name     string `json:"name"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := s.decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.relay.CreateAccount(r.Context(), actor, body.Name, body.Password, body.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleAPIListPatients(w http.ResponseWriter, r *http.Request, _ *domain.Account) {
	patients, err := s.relay.ListPatients(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if patients == nil {
		patients = []*domain.Patient{}
	}
	s.writeJSON(w, http.StatusOK, patients)
}

func (s *Server) handleAPIRegisterPatient(w http.ResponseWriter, r *http.Request, _ *domain.Account) {
	var body struct {
		Name string `json:"name"`
	}
	if err := s.decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	patient, err := s.relay.RegisterPatient(r.Context(), body.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, patient)
}

// handleAPIListExperiments lists visible experiments; ?status=true adds the
// live upstream status of each one.
func (s *Server) handleAPIListExperiments(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	limit := queryLimit(r, 100)
	withStatus, _ := strconv.ParseBool(r.URL.Query().Get("status"))

	var out []experimentJSON
	if withStatus {
		rows, err := s.relay.ListExperimentStatuses(r.Context(), actor, limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = make([]experimentJSON, 0, len(rows))
		for _, row := range rows {
			out = append(out, experimentJSON{Experiment: row.Experiment, Status: row.Status, StatusError: row.Error})
		}
	} else {
		experiments, err := s.relay.ListExperiments(r.Context(), actor, limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = make([]experimentJSON, 0, len(experiments))
		for _, e := range experiments {
			out = append(out, experimentJSON{Experiment: e})
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPICreateExperiment(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	var req relay.CreateExperimentRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.relay.CreateExperiment(r.Context(), actor, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.relay.GetStatus(r.Context(), actor, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAPISetStatus(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Status any `json:"status"`
	}
	if err := s.decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.relay.SetStatus(r.Context(), actor, id, body.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIExportPDF(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	changelog, _ := strconv.ParseBool(r.URL.Query().Get("changelog"))
	pdf, err := s.relay.ExportPDF(r.Context(), actor, id, changelog)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePDF(w, id, pdf)
}

func writePDF(w http.ResponseWriter, id int64, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="experiment-%d.pdf"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleAPIBody(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := s.relay.ExperimentFields(r.Context(), actor, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleAPIUpdateResults(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Results map[string]string `json:"results"`
	}
	if err := s.decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.relay.UpdateResults(r.Context(), actor, id, body.Results)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFillReportJSON(report))
}

func (s *Server) handleAPITemplateFields(w http.ResponseWriter, r *http.Request, _ *domain.Account) {
	sampleType := r.URL.Query().Get("sample_type")
	fields, err := s.relay.TemplateFields(r.Context(), sampleType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sample_type": sampleType,
		"fields":      fields,
	})
}
