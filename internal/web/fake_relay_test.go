package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emiliopalmerini/elabgate/internal/config"
	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/elab"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/relay"
	"github.com/emiliopalmerini/elabgate/internal/results"
)

// fakeRelay serves canned data and records what handlers pass in.
type fakeRelay struct {
	accounts    map[int64]*domain.Account
	passwords   map[string]string
	patients    []*domain.Patient
	experiments []*domain.Experiment

	statusErr    error
	pdf          []byte
	createErr    error
	lastCreate   relay.CreateExperimentRequest
	lastResults  map[string]string
	lastStatus   any
	registerName string
	listed       int
}

func newFakeRelay() *fakeRelay {
	created := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	return &fakeRelay{
		accounts: map[int64]*domain.Account{
			1: {ID: 1, Name: "admin", Role: domain.RoleAdmin},
			2: {ID: 2, Name: "alice", Role: domain.RoleRequester},
			3: {ID: 3, Name: "analyzer", Role: domain.RoleMachine},
		},
		passwords: map[string]string{"alice": "wonderland"},
		patients:  []*domain.Patient{{ID: 10, Name: "Jane Doe", ElabItemID: 7, CreatedAt: created}},
		experiments: []*domain.Experiment{{
			Reference: "PROJ-1", ElabExperimentID: 42, PatientID: 10, AccountID: 2,
			SampleType: "blood", Title: "Trial 1", CreatedAt: created,
		}},
		pdf: []byte("%PDF-1.7 test"),
	}
}

func (f *fakeRelay) TestConnection(context.Context) (bool, error) { return true, nil }

func (f *fakeRelay) EnsureEnvironment(context.Context) (elab.Environment, error) {
	return elab.Environment{ItemTypeID: 3, TemplateID: 5, CreatedTemplate: true}, nil
}

func (f *fakeRelay) Login(_ context.Context, name, password string) (*domain.Account, error) {
	if f.passwords[name] != password || password == "" {
		return nil, fmt.Errorf("%w: invalid name or password", relay.ErrUnauthorized)
	}
	for _, a := range f.accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, relay.ErrUnauthorized
}

func (f *fakeRelay) Account(_ context.Context, id int64) (*domain.Account, error) {
	if a, ok := f.accounts[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: unknown account %d", relay.ErrUnauthorized, id)
}

func (f *fakeRelay) CreateAccount(_ context.Context, actor *domain.Account, name, _, role string) (*domain.Account, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, relay.ErrForbidden
	}
	a := &domain.Account{ID: int64(len(f.accounts) + 1), Name: name, Role: domain.Role(role)}
	f.accounts[a.ID] = a
	return a, nil
}

func (f *fakeRelay) RegisterPatient(_ context.Context, name string) (*domain.Patient, error) {
	f.registerName = name
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: patient name is required", relay.ErrValidation)
	}
	p := &domain.Patient{ID: int64(len(f.patients) + 10), Name: name, ElabItemID: 99}
	f.patients = append(f.patients, p)
	return p, nil
}

func (f *fakeRelay) ListPatients(context.Context) ([]*domain.Patient, error) { return f.patients, nil }

func (f *fakeRelay) CreateExperiment(_ context.Context, _ *domain.Account, req relay.CreateExperimentRequest) (*relay.CreatedExperiment, error) {
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &relay.CreatedExperiment{Reference: req.Reference, ExperimentID: 43, Status: "Running"}, nil
}

func (f *fakeRelay) Experiment(_ context.Context, actor *domain.Account, id int64) (*domain.Experiment, error) {
	for _, e := range f.experiments {
		if e.ElabExperimentID == id && (actor.Role != domain.RoleRequester || e.AccountID == actor.ID) {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeRelay) ListExperiments(_ context.Context, actor *domain.Account, _ int) ([]*domain.Experiment, error) {
	f.listed++
	var out []*domain.Experiment
	for _, e := range f.experiments {
		if actor.Role != domain.RoleRequester || e.AccountID == actor.ID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRelay) ListExperimentStatuses(ctx context.Context, actor *domain.Account, limit int) ([]relay.ExperimentStatus, error) {
	experiments, _ := f.ListExperiments(ctx, actor, limit)
	out := make([]relay.ExperimentStatus, 0, len(experiments))
	for _, e := range experiments {
		out = append(out, relay.ExperimentStatus{Experiment: e, Status: "Running"})
	}
	return out, nil
}

func (f *fakeRelay) GetStatus(_ context.Context, _ *domain.Account, id int64) (elab.Status, error) {
	if f.statusErr != nil {
		return elab.Status{}, f.statusErr
	}
	return elab.Status{ExperimentID: id, Title: "Trial 1", Status: "Running"}, nil
}

func (f *fakeRelay) ExportPDF(_ context.Context, actor *domain.Account, _ int64, _ bool) ([]byte, error) {
	if actor.Role == domain.RoleMachine {
		return nil, relay.ErrForbidden
	}
	return f.pdf, nil
}

func (f *fakeRelay) ExperimentFields(_ context.Context, _ *domain.Account, id int64) (*relay.ExperimentBody, error) {
	return &relay.ExperimentBody{
		ExperimentID: id,
		Title:        "Trial 1",
		Status:       "Running",
		Fields:       []results.Field{{Key: "hemoglobin", Label: "Hemoglobin", Unit: "g/dL"}},
	}, nil
}

func (f *fakeRelay) UpdateResults(_ context.Context, _ *domain.Account, _ int64, values map[string]string) (results.FillReport, error) {
	f.lastResults = values
	report := results.FillReport{UsedTable: true}
	for k := range values {
		report.Matched = append(report.Matched, k)
	}
	return report, nil
}

func (f *fakeRelay) SetStatus(_ context.Context, _ *domain.Account, _ int64, status any) error {
	f.lastStatus = status
	return nil
}

func (f *fakeRelay) TemplateFields(context.Context, string) ([]results.Field, error) {
	return []results.Field{{Key: "hemoglobin", Label: "Hemoglobin", Unit: "g/dL"}}, nil
}

func newTestServer(t *testing.T, apiToken string) (*Server, *fakeRelay) {
	t.Helper()
	cfg := config.Default()
	cfg.Elab.URL = "https://elab.example.org/api/v2"
	cfg.Elab.SampleTemplates = map[string]string{"blood": "Blood Panel"}
	cfg.Server.APIToken = apiToken
	cfg.Server.SessionSecret = "test-secret"

	fake := newFakeRelay()
	s, err := NewServer(&cfg, fake, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s, fake
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// signedIn attaches a valid session cookie for accountID.
func signedIn(s *Server, req *http.Request, accountID int64) *http.Request {
	req.AddCookie(&http.Cookie{
		Name:  sessionCookie,
		Value: s.sessions.encode(accountID, time.Now().Add(time.Hour)),
	})
	return req
}
