package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/elab"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/ports"
	"github.com/emiliopalmerini/elabgate/internal/results"
)

const statusFanOut = 4

// CreateExperimentRequest is the form-shaped input of CreateExperiment.
type CreateExperimentRequest struct {
	Reference   string    `json:"reference"`
	PatientID   int64     `json:"patient_id"`
	SampleType  string    `json:"sample_type"`
	Title       string    `json:"title,omitempty"`
	CollectedAt time.Time `json:"collected_at,omitempty"`
}

type CreatedExperiment struct {
	Reference    string `json:"reference"`
	ExperimentID int64  `json:"experiment_id"`
	Status       string `json:"status"`
}

// CreateExperiment creates an experiment for a registered patient from the
// template matching the sample type, and records it locally.
func (s *Service) CreateExperiment(ctx context.Context, actor *domain.Account, req CreateExperimentRequest) (*CreatedExperiment, error) {
	created, err := s.createExperiment(ctx, actor, req)
	return created, s.observe(ctx, "create_experiment", err)
}

func (s *Service) createExperiment(ctx context.Context, actor *domain.Account, req CreateExperimentRequest) (*CreatedExperiment, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	if !actor.CanCreateExperiments() {
		return nil, fmt.Errorf("%w: role %s cannot create experiments", ErrForbidden, actor.Role)
	}

	req.Reference = strings.TrimSpace(req.Reference)
	req.SampleType = strings.TrimSpace(req.SampleType)
	if req.Reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrValidation)
	}
	if req.PatientID <= 0 {
		return nil, fmt.Errorf("%w: patient_id is required", ErrValidation)
	}

	existing, err := s.experiments.GetByReference(ctx, req.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: experiment %q", ErrConflict, req.Reference)
	}

	patient, err := s.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, fmt.Errorf("%w: patient %d", ErrNotFound, req.PatientID)
	}
	itemID, err := s.ensurePatientItem(ctx, patient)
	if err != nil {
		return nil, err
	}

	now := s.now()
	collected := req.CollectedAt
	if collected.IsZero() {
		collected = now
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = domain.DefaultExperimentTitle(req.Reference, patient.Name, now)
	}

	expID, err := s.elab.CreateExperiment(ctx, itemID, elab.ExperimentFields{
		Title:         title,
		TemplateTitle: s.templateFor(req.SampleType),
		Vars: map[string]string{
			"reference":    req.Reference,
			"collected_at": collected.Format("2006-01-02T15:04"),
			"sample_type":  req.SampleType,
			"patient":      patient.Name,
		},
	})
	if err != nil {
		if expID > 0 {
			s.logger.ErrorContext(ctx, "experiment created upstream but not completed",
				logging.Int64(logging.FieldExperimentID, expID),
				logging.String("reference", req.Reference),
				logging.Error(err),
			)
		}
		return nil, err
	}

	record := &domain.Experiment{
		Reference:        req.Reference,
		ElabExperimentID: expID,
		PatientID:        patient.ID,
		AccountID:        actor.ID,
		SampleType:       req.SampleType,
		Title:            title,
		CreatedAt:        now,
	}
	if err := s.experiments.Create(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "experiment created upstream but not recorded",
			logging.Int64(logging.FieldExperimentID, expID),
			logging.Error(err),
		)
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, fmt.Errorf("%w: experiment %q", ErrConflict, req.Reference)
		}
		return nil, err
	}

	status := "unknown"
	if st, err := s.elab.GetStatus(ctx, expID); err == nil {
		status = st.Status
	} else {
		s.logger.WarnContext(ctx, "status of new experiment unavailable",
			logging.Int64(logging.FieldExperimentID, expID),
			logging.Error(err),
		)
	}

	s.logger.InfoContext(ctx, "experiment created",
		logging.Int64(logging.FieldExperimentID, expID),
		logging.String("reference", req.Reference),
		logging.Int64(logging.FieldAccountID, actor.ID),
	)
	return &CreatedExperiment{Reference: req.Reference, ExperimentID: expID, Status: status}, nil
}

// ListExperiments returns the experiments visible to actor, newest first.
// Requesters see only their own.
func (s *Service) ListExperiments(ctx context.Context, actor *domain.Account, limit int) ([]*domain.Experiment, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	if actor.Role == domain.RoleRequester {
		return s.experiments.ListByAccount(ctx, actor.ID, limit)
	}
	return s.experiments.List(ctx, limit)
}

// Experiment returns the registry row of one experiment, under the same
// visibility as ListExperiments. It returns nil when elabgate has no record
// of the experiment or the actor may not see it.
func (s *Service) Experiment(ctx context.Context, actor *domain.Account, expID int64) (*domain.Experiment, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	if expID <= 0 {
		return nil, fmt.Errorf("%w: experiment id must be positive", ErrValidation)
	}
	e, err := s.experiments.GetByElabID(ctx, expID)
	if err != nil {
		return nil, err
	}
	if e == nil || (actor.Role == domain.RoleRequester && e.AccountID != actor.ID) {
		return nil, nil
	}
	return e, nil
}

// ExperimentStatus pairs a local experiment with its live upstream status.
type ExperimentStatus struct {
	Experiment *domain.Experiment `json:"experiment"`
	Status     string             `json:"status"`
	Error      string             `json:"error,omitempty"`
}

// ListExperimentStatuses lists the visible experiments and fetches their
// statuses concurrently. A failed lookup is reported on its row only.
func (s *Service) ListExperimentStatuses(ctx context.Context, actor *domain.Account, limit int) ([]ExperimentStatus, error) {
	experiments, err := s.ListExperiments(ctx, actor, limit)
	if err != nil {
		return nil, err
	}

	out := make([]ExperimentStatus, len(experiments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusFanOut)
	for i, e := range experiments {
		out[i].Experiment = e
		g.Go(func() error {
			st, err := s.elab.GetStatus(gctx, e.ElabExperimentID)
			if err != nil {
				out[i].Status = "unavailable"
				out[i].Error = err.Error()
				return nil
			}
			out[i].Status = st.Status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) authorizeRead(ctx context.Context, actor *domain.Account, expID int64, allowed func(*domain.Account, *domain.Experiment) bool) error {
	if actor == nil {
		return ErrUnauthorized
	}
	if expID <= 0 {
		return fmt.Errorf("%w: experiment id must be positive", ErrValidation)
	}
	local, err := s.experiments.GetByElabID(ctx, expID)
	if err != nil {
		return err
	}
	if !allowed(actor, local) {
		return fmt.Errorf("%w: experiment %d", ErrForbidden, expID)
	}
	return nil
}

// GetStatus returns the live status of an experiment.
func (s *Service) GetStatus(ctx context.Context, actor *domain.Account, expID int64) (elab.Status, error) {
	if err := s.authorizeRead(ctx, actor, expID, (*domain.Account).CanViewStatus); err != nil {
		return elab.Status{}, s.observe(ctx, "get_status", err)
	}
	st, err := s.elab.GetStatus(ctx, expID)
	return st, s.observe(ctx, "get_status", err)
}

// ExportPDF returns the PDF rendering of an experiment.
func (s *Service) ExportPDF(ctx context.Context, actor *domain.Account, expID int64, changelog bool) ([]byte, error) {
	if err := s.authorizeRead(ctx, actor, expID, (*domain.Account).CanExport); err != nil {
		return nil, s.observe(ctx, "export_pdf", err)
	}
	pdf, err := s.elab.ExportPDF(ctx, expID, changelog)
	return pdf, s.observe(ctx, "export_pdf", err)
}

func requireResultRole(actor *domain.Account) error {
	if actor == nil {
		return ErrUnauthorized
	}
	if !actor.CanManageResults() {
		return fmt.Errorf("%w: role %s cannot manage results", ErrForbidden, actor.Role)
	}
	return nil
}

// ExperimentBody is an experiment body with its parsed result fields.
type ExperimentBody struct {
	ExperimentID int64           `json:"experiment_id"`
	Title        string          `json:"title"`
	Status       string          `json:"status"`
	Body         string          `json:"body"`
	Fields       []results.Field `json:"fields"`
}

// ExperimentFields reads an experiment and parses its result table.
func (s *Service) ExperimentFields(ctx context.Context, actor *domain.Account, expID int64) (*ExperimentBody, error) {
	body, err := s.experimentFields(ctx, actor, expID)
	return body, s.observe(ctx, "experiment_fields", err)
}

func (s *Service) experimentFields(ctx context.Context, actor *domain.Account, expID int64) (*ExperimentBody, error) {
	if err := requireResultRole(actor); err != nil {
		return nil, err
	}
	exp, err := s.elab.GetExperiment(ctx, expID)
	if err != nil {
		return nil, err
	}
	fields, err := results.ParseFields(exp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse experiment %d body: %w", expID, err)
	}
	return &ExperimentBody{
		ExperimentID: expID,
		Title:        exp.Title,
		Status:       exp.StatusText(),
		Body:         exp.Body,
		Fields:       fields,
	}, nil
}

// UpdateResults writes result values into the experiment body.
func (s *Service) UpdateResults(ctx context.Context, actor *domain.Account, expID int64, values map[string]string) (results.FillReport, error) {
	report, err := s.updateResults(ctx, actor, expID, values)
	return report, s.observe(ctx, "update_results", err)
}

func (s *Service) updateResults(ctx context.Context, actor *domain.Account, expID int64, values map[string]string) (results.FillReport, error) {
	if err := requireResultRole(actor); err != nil {
		return results.FillReport{}, err
	}
	cleaned := make(map[string]string, len(values))
	for k, v := range values {
		if k = strings.TrimSpace(k); k != "" {
			cleaned[k] = strings.TrimSpace(v)
		}
	}
	if len(cleaned) == 0 {
		return results.FillReport{}, fmt.Errorf("%w: no results given", ErrValidation)
	}

	exp, err := s.elab.GetExperiment(ctx, expID)
	if err != nil {
		return results.FillReport{}, err
	}
	report, err := results.FillResults(exp.Body, cleaned)
	if err != nil {
		return results.FillReport{}, fmt.Errorf("fill experiment %d results: %w", expID, err)
	}
	if err := s.elab.UpdateBody(ctx, expID, report.Body); err != nil {
		return results.FillReport{}, err
	}

	s.logger.InfoContext(ctx, "results updated",
		logging.Int64(logging.FieldExperimentID, expID),
		logging.Int("matched", len(report.Matched)),
		logging.Int("unmatched", len(report.Unmatched)),
	)
	return report, nil
}

// SetStatus changes the upstream status of an experiment. The value is
// sent as given.
func (s *Service) SetStatus(ctx context.Context, actor *domain.Account, expID int64, status any) error {
	err := requireResultRole(actor)
	if err == nil && isBlank(status) {
		err = fmt.Errorf("%w: status is required", ErrValidation)
	}
	if err == nil {
		err = s.elab.SetStatus(ctx, expID, status)
	}
	return s.observe(ctx, "set_status", err)
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// TemplateFields lists the result fields of the template used for a
// sample type.
func (s *Service) TemplateFields(ctx context.Context, sampleType string) ([]results.Field, error) {
	fields, err := s.templateFields(ctx, sampleType)
	return fields, s.observe(ctx, "template_fields", err)
}

func (s *Service) templateFields(ctx context.Context, sampleType string) ([]results.Field, error) {
	tmpl, err := s.elab.FindTemplate(ctx, s.templateFor(strings.TrimSpace(sampleType)))
	if err != nil {
		return nil, err
	}
	return results.ParseFields(tmpl.Body)
}
