// Package relay orchestrates the eLabFTW client and the local registry.
// It decides who may do what; eLabFTW stays the system of record.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/emiliopalmerini/elabgate/internal/adapters/otel"
	"github.com/emiliopalmerini/elabgate/internal/elab"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/ports"
)

// Upstream is the subset of the eLabFTW client the relay depends on.
type Upstream interface {
	TestConnection(ctx context.Context) (bool, error)
	EnsureEnvironment(ctx context.Context) (elab.Environment, error)
	RegisterPatient(ctx context.Context, fields elab.PatientFields) (int64, error)
	CreateExperiment(ctx context.Context, patientID int64, fields elab.ExperimentFields) (int64, error)
	GetExperiment(ctx context.Context, id int64) (*elab.Experiment, error)
	GetStatus(ctx context.Context, id int64) (elab.Status, error)
	UpdateBody(ctx context.Context, id int64, body string) error
	SetStatus(ctx context.Context, id int64, status any) error
	ExportPDF(ctx context.Context, id int64, changelog bool) ([]byte, error)
	FindTemplate(ctx context.Context, title string) (*elab.Template, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Elab        Upstream
	Accounts    ports.AccountRepository
	Patients    ports.PatientRepository
	Experiments ports.ExperimentRepository
	Metrics     ports.MetricsExporter
	Logger      *slog.Logger
	// TemplateFor maps a sample type to the template title to use.
	TemplateFor func(sampleType string) string
	Now         func() time.Time
}

type Service struct {
	elab        Upstream
	accounts    ports.AccountRepository
	patients    ports.PatientRepository
	experiments ports.ExperimentRepository
	metrics     ports.MetricsExporter
	logger      *slog.Logger
	templateFor func(string) string
	now         func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		elab:        d.Elab,
		accounts:    d.Accounts,
		patients:    d.Patients,
		experiments: d.Experiments,
		metrics:     d.Metrics,
		logger:      logging.NewComponentLogger(d.Logger, "relay"),
		templateFor: d.TemplateFor,
		now:         d.Now,
	}
	if s.metrics == nil {
		s.metrics = otel.NewNoOpExporter()
	}
	if s.templateFor == nil {
		s.templateFor = func(string) string { return "" }
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// observe records the outcome of op and passes err through.
func (s *Service) observe(ctx context.Context, op string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
		s.logger.WarnContext(ctx, "operation failed",
			logging.String("operation", op),
			logging.String("outcome", outcome),
			logging.Error(err),
		)
	}
	s.metrics.RecordOperation(ctx, op, outcome)
	return err
}
