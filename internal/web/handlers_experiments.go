package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/relay"
	"github.com/emiliopalmerini/elabgate/internal/shared/middleware"
	"github.com/emiliopalmerini/elabgate/internal/util"
	"github.com/emiliopalmerini/elabgate/internal/web/templates"
)

const experimentsPageLimit = 100

const resultFieldPrefix = "result."

func (s *Server) experimentsView(r *http.Request, actor *domain.Account) (templates.ExperimentsView, error) {
	ctx := r.Context()
	view := templates.ExperimentsView{
		Nav:         navFor(actor, "/experiments"),
		Flash:       flashFrom(r),
		SampleTypes: s.sampleTypes,
		CanCreate:   actor.CanCreateExperiments(),
	}

	patients, err := s.relay.ListPatients(ctx)
	if err != nil {
		return view, err
	}
	names := make(map[int64]string, len(patients))
	for _, p := range patients {
		names[p.ID] = p.Name
		view.Patients = append(view.Patients, templates.PatientOption{ID: p.ID, Name: p.Name})
	}

	rows, err := s.relay.ListExperimentStatuses(ctx, actor, experimentsPageLimit)
	if err != nil {
		return view, err
	}
	for _, row := range rows {
		e := row.Experiment
		view.Rows = append(view.Rows, templates.ExperimentRow{
			Reference:    e.Reference,
			ExperimentID: e.ElabExperimentID,
			PatientName:  names[e.PatientID],
			SampleType:   e.SampleType,
			Title:        e.Title,
			Status:       row.Status,
			StatusError:  row.Error,
			CreatedAt:    util.FormatDateTime(e.CreatedAt),
		})
	}
	return view, nil
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	view, err := s.experimentsView(r, actor)
	status := http.StatusOK
	if err != nil {
		view.Flash.Error = err.Error()
		status = statusFor(relay.ErrorKind(err))
	}
	if middleware.IsHTMX(r) {
		s.render(w, r, status, templates.ExperimentTable(view.Rows))
		return
	}
	s.render(w, r, status, templates.ExperimentsPage(view))
}

// parseCollectedAt reads a datetime-local form value in the server's zone.
func parseCollectedAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid collection time %q", relay.ErrValidation, value)
}

func createRequestFromForm(r *http.Request) (relay.CreateExperimentRequest, error) {
	req := relay.CreateExperimentRequest{
		Reference:  r.FormValue("reference"),
		SampleType: r.FormValue("sample_type"),
		Title:      strings.TrimSpace(r.FormValue("title")),
	}
	if raw := strings.TrimSpace(r.FormValue("patient_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, fmt.Errorf("%w: invalid patient %q", relay.ErrValidation, raw)
		}
		req.PatientID = id
	}
	collected, err := parseCollectedAt(r.FormValue("collected_at"))
	if err != nil {
		return req, err
	}
	req.CollectedAt = collected
	return req, nil
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	req, err := createRequestFromForm(r)
	var created *relay.CreatedExperiment
	if err == nil {
		created, err = s.relay.CreateExperiment(r.Context(), actor, req)
	}
	if err == nil {
		http.Redirect(w, r, fmt.Sprintf("/experiments/%d?done=experiment", created.ExperimentID), http.StatusSeeOther)
		return
	}

	view, listErr := s.experimentsView(r, actor)
	if listErr != nil {
		s.logger.WarnContext(r.Context(), "list experiments failed", logging.Error(listErr))
	}
	view.Flash = templates.Flash{Error: err.Error()}
	s.render(w, r, statusFor(relay.ErrorKind(err)), templates.ExperimentsPage(view))
}

// localExperiment returns the registry row of an experiment visible to
// actor. The detail page still renders without it.
func (s *Server) localExperiment(r *http.Request, actor *domain.Account, id int64) *domain.Experiment {
	e, err := s.relay.Experiment(r.Context(), actor, id)
	if err != nil {
		s.logger.WarnContext(r.Context(), "experiment lookup failed", logging.Error(err))
		return nil
	}
	return e
}

func (s *Server) experimentDetail(r *http.Request, actor *domain.Account, id int64) (templates.ExperimentDetailView, error) {
	local := s.localExperiment(r, actor, id)
	view := templates.ExperimentDetailView{
		Nav:          navFor(actor, "/experiments"),
		Flash:        flashFrom(r),
		ExperimentID: id,
		Title:        fmt.Sprintf("Experiment #%d", id),
		CanManage:    actor.CanManageResults(),
		CanExport:    actor.CanExport(local),
	}
	if local != nil {
		view.Reference = local.Reference
		view.Title = local.Title
	}

	if view.CanManage {
		body, err := s.relay.ExperimentFields(r.Context(), actor, id)
		if err != nil {
			return view, err
		}
		view.Title, view.Status, view.Fields = body.Title, body.Status, body.Fields
		return view, nil
	}

	st, err := s.relay.GetStatus(r.Context(), actor, id)
	if err != nil {
		return view, err
	}
	if st.Title != "" {
		view.Title = st.Title
	}
	view.Status = st.Status
	return view, nil
}

func (s *Server) renderDetail(w http.ResponseWriter, r *http.Request, actor *domain.Account, id int64, failure error) {
	view, err := s.experimentDetail(r, actor, id)
	status := http.StatusOK
	if failure == nil && err != nil {
		failure = err
	}
	if failure != nil {
		view.Flash = templates.Flash{Error: failure.Error()}
		status = statusFor(relay.ErrorKind(failure))
		if err != nil {
			view.CanManage, view.CanExport = false, false
		}
	}
	s.render(w, r, status, templates.ExperimentDetailPage(view))
}

func (s *Server) handleExperimentDetail(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderDetail(w, r, actor, id, nil)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.relay.SetStatus(r.Context(), actor, id, statusValue(r.FormValue("status"))); err != nil {
		s.renderDetail(w, r, actor, id, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/experiments/%d?done=status", id), http.StatusSeeOther)
}

// statusValue sends numeric form input as a status id and anything else as
// a status name.
func statusValue(raw string) any {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

func (s *Server) handleSaveResults(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderDetail(w, r, actor, id, fmt.Errorf("%w: %v", relay.ErrValidation, err))
		return
	}
	values := make(map[string]string)
	for name, vals := range r.PostForm {
		key, ok := strings.CutPrefix(name, resultFieldPrefix)
		if !ok || len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
			continue
		}
		values[key] = vals[0]
	}
	if _, err := s.relay.UpdateResults(r.Context(), actor, id, values); err != nil {
		s.renderDetail(w, r, actor, id, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/experiments/%d?done=results", id), http.StatusSeeOther)
}

func (s *Server) handleDownloadPDF(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	changelog, _ := strconv.ParseBool(r.URL.Query().Get("changelog"))
	pdf, err := s.relay.ExportPDF(r.Context(), actor, id, changelog)
	if err != nil {
		s.renderDetail(w, r, actor, id, err)
		return
	}
	writePDF(w, id, pdf)
}
