package relay_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/elabgate/internal/adapters/turso"
	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/elab"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/migrate"
	"github.com/emiliopalmerini/elabgate/internal/relay"
)

// memoryDSN names a private in-memory database per test. A bare
// file::memory:?cache=shared is one database for the whole process.
func memoryDSN(t *testing.T) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, t.Name())
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

const testTemplate = `<p>{{reference}} / {{patient}} / {{sample_type}} / {{collected_at}}</p>
<table>
<tr><td>Parameter</td><td>Result</td><td>Unit</td><td>Reference</td></tr>
<tr><td>Hemoglobin</td><td></td><td>g/dL</td><td>12 - 16</td></tr>
<tr><td>Glucose</td><td></td><td>mg/dL</td><td>70 - 99</td></tr>
</table>`

// fakeUpstream records what the relay asks of eLabFTW.
type fakeUpstream struct {
	mu          sync.Mutex
	nextID      int64
	items       map[int64]string
	experiments map[int64]*elab.Experiment
	links       map[int64]int64
	templates   map[string]string
	statusCalls int
	failStatus  map[int64]error
	lastFields  elab.ExperimentFields
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		nextID:      500,
		items:       make(map[int64]string),
		experiments: make(map[int64]*elab.Experiment),
		links:       make(map[int64]int64),
		templates:   map[string]string{"Clinical Analysis": testTemplate, "Blood Panel": testTemplate},
		failStatus:  make(map[int64]error),
	}
}

func (f *fakeUpstream) TestConnection(context.Context) (bool, error) { return true, nil }

func (f *fakeUpstream) EnsureEnvironment(context.Context) (elab.Environment, error) {
	return elab.Environment{ItemTypeID: 1, TemplateID: 2}, nil
}

func (f *fakeUpstream) RegisterPatient(_ context.Context, fields elab.PatientFields) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.items[f.nextID] = fields.Name
	return f.nextID, nil
}

func (f *fakeUpstream) CreateExperiment(_ context.Context, patientID int64, fields elab.ExperimentFields) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[patientID]; !ok {
		return 0, &elab.UpstreamError{Method: "GET", Path: fmt.Sprintf("items/%d", patientID), StatusCode: 404, Message: "not found"}
	}
	body, ok := f.templates[fields.TemplateTitle]
	if !ok {
		return 0, &elab.NotFoundError{Resource: "template", ID: fields.TemplateTitle}
	}
	for k, v := range fields.Vars {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	f.nextID++
	f.experiments[f.nextID] = &elab.Experiment{ID: elab.ID(f.nextID), Title: fields.Title, Body: body, StatusTitle: "Running"}
	f.links[f.nextID] = patientID
	f.lastFields = fields
	return f.nextID, nil
}

func (f *fakeUpstream) GetExperiment(_ context.Context, id int64) (*elab.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.experiments[id]
	if !ok {
		return nil, &elab.NotFoundError{Resource: "experiment", ID: fmt.Sprint(id)}
	}
	cp := *exp
	return &cp, nil
}

func (f *fakeUpstream) GetStatus(ctx context.Context, id int64) (elab.Status, error) {
	f.mu.Lock()
	f.statusCalls++
	err := f.failStatus[id]
	f.mu.Unlock()
	if err != nil {
		return elab.Status{}, err
	}
	exp, err := f.GetExperiment(ctx, id)
	if err != nil {
		return elab.Status{}, err
	}
	return elab.Status{ExperimentID: id, Title: exp.Title, Status: exp.StatusText()}, nil
}

func (f *fakeUpstream) UpdateBody(_ context.Context, id int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.experiments[id]
	if !ok {
		return &elab.NotFoundError{Resource: "experiment", ID: fmt.Sprint(id)}
	}
	exp.Body = body
	return nil
}

func (f *fakeUpstream) SetStatus(_ context.Context, id int64, status any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.experiments[id]
	if !ok {
		return &elab.NotFoundError{Resource: "experiment", ID: fmt.Sprint(id)}
	}
	exp.StatusTitle = fmt.Sprint(status)
	return nil
}

func (f *fakeUpstream) ExportPDF(_ context.Context, id int64, _ bool) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.experiments[id]; !ok {
		return nil, &elab.NotFoundError{Resource: "experiment", ID: fmt.Sprint(id)}
	}
	return []byte("%PDF-1.7 test"), nil
}

func (f *fakeUpstream) FindTemplate(_ context.Context, title string) (*elab.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.templates[title]
	if !ok {
		return nil, &elab.NotFoundError{Resource: "template", ID: title}
	}
	return &elab.Template{ID: 1, Title: title, Body: body}, nil
}

type fixture struct {
	svc      *relay.Service
	upstream *fakeUpstream
	repos    *turso.Repositories
	admin    *domain.Account
	alice    *domain.Account
	bob      *domain.Account
	machine  *domain.Account
}

var fixedNow = time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", memoryDSN(t))
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := migrate.RunAll(context.Background(), db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := turso.NewRepositories(testDB(t))
	upstream := newFakeUpstream()
	svc := relay.NewService(relay.Deps{
		Elab:        upstream,
		Accounts:    repos.Accounts,
		Patients:    repos.Patients,
		Experiments: repos.Experiments,
		Logger:      logging.NewNop(),
		TemplateFor: func(sampleType string) string {
			if sampleType == "blood" {
				return "Blood Panel"
			}
			return "Clinical Analysis"
		},
		Now: func() time.Time { return fixedNow },
	})

	f := &fixture{svc: svc, upstream: upstream, repos: repos}
	f.admin = f.account(t, "admin", "admin")
	f.alice = f.account(t, "alice", "requester")
	f.bob = f.account(t, "bob", "requester")
	f.machine = f.account(t, "analyzer", "machine")
	return f
}

func (f *fixture) account(t *testing.T, name, role string) *domain.Account {
	t.Helper()
	a, err := f.svc.CreateAccount(context.Background(), nil, name, "password", role)
	if err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", name, err)
	}
	return a
}

func (f *fixture) experiment(t *testing.T, actor *domain.Account, reference string) *relay.CreatedExperiment {
	t.Helper()
	ctx := context.Background()
	patient, err := f.svc.RegisterPatient(ctx, "Patient "+reference)
	if err != nil {
		t.Fatalf("RegisterPatient() error = %v", err)
	}
	created, err := f.svc.CreateExperiment(ctx, actor, relay.CreateExperimentRequest{
		Reference:  reference,
		PatientID:  patient.ID,
		SampleType: "blood",
	})
	if err != nil {
		t.Fatalf("CreateExperiment() error = %v", err)
	}
	return created
}
