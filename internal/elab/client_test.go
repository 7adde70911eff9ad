package elab

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emiliopalmerini/elabgate/internal/ports"
)

func TestNewValidatesConfig(t *testing.T) {
	cases := []Config{
		{BaseURL: "", APIKey: "k"},
		{BaseURL: "elab.example.org/api/v2", APIKey: "k"},
		{BaseURL: "https://elab.example.org/api/v2", APIKey: "  "},
	}
	for _, cfg := range cases {
		if _, err := New(cfg); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("New(%+v) error = %v, want ErrInvalidInput", cfg, err)
		}
	}

	c, err := New(Config{BaseURL: "https://elab.example.org/api/v2/", APIKey: "k"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := c.BaseURL(); got != "https://elab.example.org/api/v2" {
		t.Errorf("BaseURL() = %q", got)
	}
	if c.cfg.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.cfg.Timeout, defaultTimeout)
	}
}

func TestScenarioRegisterCreateStatus(t *testing.T) {
	f := newFakeElab()
	c := f.client(t)
	ctx := context.Background()

	if _, err := c.EnsureEnvironment(ctx); err != nil {
		t.Fatalf("EnsureEnvironment() error = %v", err)
	}

	patientID, err := c.RegisterPatient(ctx, PatientFields{Name: "Jane Doe"})
	if err != nil {
		t.Fatalf("RegisterPatient() error = %v", err)
	}
	if patientID <= 0 {
		t.Fatalf("RegisterPatient() id = %d", patientID)
	}

	expID, err := c.CreateExperiment(ctx, patientID, ExperimentFields{
		Title: "Trial 1",
		Vars:  map[string]string{"reference": "PROJ-X-001", "patient": "Jane Doe"},
	})
	if err != nil {
		t.Fatalf("CreateExperiment() error = %v", err)
	}
	if expID <= 0 || expID == patientID {
		t.Fatalf("CreateExperiment() id = %d", expID)
	}

	status, err := c.GetStatus(ctx, expID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.Status != "ongoing" {
		t.Errorf("status = %q, want ongoing", status.Status)
	}
	if status.Title != "Trial 1" {
		t.Errorf("title = %q, want Trial 1", status.Title)
	}

	f.mu.Lock()
	body := f.experiments[expID].Body
	links := f.links[expID]
	f.mu.Unlock()
	if !containsAll(body, "PROJ-X-001", "Jane Doe") || strings.Contains(body, "{{reference}}") {
		t.Errorf("body was not rendered from the template: %s", body)
	}
	if len(links) != 1 || links[0] != patientID {
		t.Errorf("links = %v, want [%d]", links, patientID)
	}
}

func TestEnsureEnvironmentIsIdempotent(t *testing.T) {
	f := newFakeElab()
	c := f.client(t)
	ctx := context.Background()

	first, err := c.EnsureEnvironment(ctx)
	if err != nil {
		t.Fatalf("first EnsureEnvironment() error = %v", err)
	}
	if !first.CreatedItemType || !first.CreatedTemplate {
		t.Errorf("first call should create both, got %+v", first)
	}

	second, err := c.EnsureEnvironment(ctx)
	if err != nil {
		t.Fatalf("second EnsureEnvironment() error = %v", err)
	}
	if second.CreatedItemType || second.CreatedTemplate {
		t.Errorf("second call created resources: %+v", second)
	}
	if second.ItemTypeID != first.ItemTypeID || second.TemplateID != first.TemplateID {
		t.Errorf("ids changed: first %+v second %+v", first, second)
	}
	if n := f.postCount("items_types"); n != 1 {
		t.Errorf("items_types POSTs = %d, want 1", n)
	}
	if n := f.postCount("experiments_templates"); n != 1 {
		t.Errorf("experiments_templates POSTs = %d, want 1", n)
	}
}

func TestEnsureItemTypeMatchesTitleIgnoringCase(t *testing.T) {
	f := newFakeElab()
	f.itemTypes = []Resource{{ID: 7, Title: "  patient "}}
	c := f.client(t)

	id, created, err := c.EnsureItemType(context.Background())
	if err != nil {
		t.Fatalf("EnsureItemType() error = %v", err)
	}
	if id != 7 || created {
		t.Errorf("EnsureItemType() = %d, %v; want 7, false", id, created)
	}
}

func TestTestConnection(t *testing.T) {
	f := newFakeElab()

	ok, err := f.client(t).TestConnection(context.Background())
	if err != nil || !ok {
		t.Errorf("valid key: TestConnection() = %v, %v", ok, err)
	}

	ok, err = f.clientWithKey(t, "wrong").TestConnection(context.Background())
	if err != nil || ok {
		t.Errorf("invalid key: TestConnection() = %v, %v; want false, nil", ok, err)
	}
}

func TestTestConnectionTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: base, APIKey: testKey, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ok, err := c.TestConnection(context.Background())
	if ok || err == nil {
		t.Fatalf("TestConnection() = %v, %v; want false with error", ok, err)
	}
	if KindOf(err) != KindTransport {
		t.Errorf("KindOf() = %v, want transport", KindOf(err))
	}
}

func TestCreatedIDFromLocationHeader(t *testing.T) {
	f := newFakeElab()
	f.idMode = "location"
	c := f.client(t)

	id, err := c.RegisterPatient(context.Background(), PatientFields{Name: "Jane Doe"})
	if err != nil {
		t.Fatalf("RegisterPatient() error = %v", err)
	}
	f.mu.Lock()
	_, ok := f.items[id]
	f.mu.Unlock()
	if !ok {
		t.Errorf("id %d from Location header does not name the created item", id)
	}
}

func TestCreatedIDFromTitleSearch(t *testing.T) {
	f := newFakeElab()
	f.idMode = "none"
	f.wrapLists = "data"
	c := f.client(t)

	id, err := c.RegisterPatient(context.Background(), PatientFields{Name: "Jane Doe"})
	if err != nil {
		t.Fatalf("RegisterPatient() error = %v", err)
	}
	f.mu.Lock()
	item, ok := f.items[id]
	f.mu.Unlock()
	if !ok || item.Title != "Jane Doe" {
		t.Errorf("title search resolved id %d to %+v", id, item)
	}
}

func TestCreateExperimentUnknownPatient(t *testing.T) {
	f := newFakeElab()
	c := f.client(t)
	ctx := context.Background()
	if _, err := c.EnsureEnvironment(ctx); err != nil {
		t.Fatalf("EnsureEnvironment() error = %v", err)
	}

	_, err := c.CreateExperiment(ctx, 9999, ExperimentFields{Title: "Trial 1"})
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusNotFound {
		t.Fatalf("CreateExperiment() error = %v, want 404 UpstreamError", err)
	}
	if n := f.postCount("experiments"); n != 0 {
		t.Errorf("experiments POSTs = %d, want 0", n)
	}
}

func TestCreateExperimentRejectsEmptyTemplate(t *testing.T) {
	f := newFakeElab()
	f.seedTemplate(1, "Clinical Analysis", "   ")
	c := f.client(t)
	ctx := context.Background()

	patientID, err := c.RegisterPatient(ctx, PatientFields{Name: "Jane Doe"})
	if err != nil {
		t.Fatalf("RegisterPatient() error = %v", err)
	}
	_, err = c.CreateExperiment(ctx, patientID, ExperimentFields{Title: "Trial 1"})
	if !errors.Is(err, ErrEmptyTemplate) {
		t.Errorf("CreateExperiment() error = %v, want ErrEmptyTemplate", err)
	}
	if KindOf(err) != KindInvalid {
		t.Errorf("KindOf() = %v, want invalid", KindOf(err))
	}
}

func TestLinkFallsBackToBodyForm(t *testing.T) {
	f := newFakeElab()
	f.rejectDirect = true
	f.seedTemplate(1, "Clinical Analysis", "<p>{{reference}}</p>")
	c := f.client(t)
	ctx := context.Background()

	patientID, err := c.RegisterPatient(ctx, PatientFields{Name: "Jane Doe"})
	if err != nil {
		t.Fatalf("RegisterPatient() error = %v", err)
	}
	expID, err := c.CreateExperiment(ctx, patientID, ExperimentFields{Title: "Trial 1"})
	if err != nil {
		t.Fatalf("CreateExperiment() error = %v", err)
	}
	f.mu.Lock()
	links := f.links[expID]
	f.mu.Unlock()
	if len(links) != 1 || links[0] != patientID {
		t.Errorf("links = %v, want [%d]", links, patientID)
	}
}

func TestFindTemplate(t *testing.T) {
	f := newFakeElab()
	f.seedTemplate(1, "Generic", "<p>generic</p>")
	f.seedTemplate(2, "Blood Panel", "<p>blood</p>")
	c := f.client(t)
	ctx := context.Background()

	tmpl, err := c.FindTemplate(ctx, "blood panel")
	if err != nil {
		t.Fatalf("FindTemplate() error = %v", err)
	}
	if tmpl.ID != 2 {
		t.Errorf("case-insensitive match id = %d, want 2", tmpl.ID)
	}

	tmpl, err = c.FindTemplate(ctx, "Urine")
	if err != nil {
		t.Fatalf("FindTemplate(fallback) error = %v", err)
	}
	if tmpl.ID != 1 {
		t.Errorf("fallback id = %d, want 1", tmpl.ID)
	}
}

func TestFindTemplateFetchesMissingBody(t *testing.T) {
	f := newFakeElab()
	f.listBodies = false
	f.seedTemplate(5, "Clinical Analysis", "<p>{{patient}}</p>")
	c := f.client(t)

	tmpl, err := c.FindTemplate(context.Background(), "")
	if err != nil {
		t.Fatalf("FindTemplate() error = %v", err)
	}
	if tmpl.ID != 5 || tmpl.Body != "<p>{{patient}}</p>" {
		t.Errorf("FindTemplate() = %+v", tmpl)
	}
}

func TestFindTemplateNotFound(t *testing.T) {
	f := newFakeElab()
	f.seedTemplate(9, "Other", "<p></p>")
	c := f.client(t)

	_, err := c.FindTemplate(context.Background(), "Missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("FindTemplate() error = %v, want NotFoundError", err)
	}
}

func TestExportPDF(t *testing.T) {
	f := newFakeElab()
	f.experiments[42] = &fakeExperiment{Resource: Resource{ID: 42, Title: "Trial 1"}, Status: "ongoing"}
	c := f.client(t)
	ctx := context.Background()

	pdf, err := c.ExportPDF(ctx, 42, true)
	if err != nil {
		t.Fatalf("ExportPDF() error = %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("pdf does not start with signature: %q", pdf[:8])
	}
	f.mu.Lock()
	query, accept := f.lastPDFQuery, f.lastPDFAccept
	f.mu.Unlock()
	if !containsAll(query, "format=pdf", "changelog=true") {
		t.Errorf("query = %q", query)
	}
	if accept != "application/pdf" {
		t.Errorf("Accept = %q", accept)
	}
}

func TestExportPDFWithoutContent(t *testing.T) {
	for name, payload := range map[string][]byte{
		"empty":   nil,
		"not pdf": []byte("<html>error</html>"),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFakeElab()
			f.pdf = payload
			f.experiments[42] = &fakeExperiment{Resource: Resource{ID: 42}}
			c := f.client(t)

			_, err := c.ExportPDF(context.Background(), 42, false)
			var nf *NotFoundError
			if !errors.As(err, &nf) {
				t.Fatalf("ExportPDF() error = %v, want NotFoundError", err)
			}
		})
	}
}

func TestExportPDFUnknownExperiment(t *testing.T) {
	f := newFakeElab()
	c := f.client(t)

	_, err := c.ExportPDF(context.Background(), 404, false)
	if KindOf(err) != KindNotFound {
		t.Fatalf("KindOf(%v) = %v, want not_found", err, KindOf(err))
	}
	if UpstreamStatus(err) != http.StatusNotFound {
		t.Errorf("UpstreamStatus() = %d, want 404", UpstreamStatus(err))
	}
}

func TestSetStatusPassesValueThrough(t *testing.T) {
	f := newFakeElab()
	f.experiments[42] = &fakeExperiment{Resource: Resource{ID: 42}}
	c := f.client(t)

	if err := c.SetStatus(context.Background(), 42, "Completed"); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	f.mu.Lock()
	sent := f.lastStatusSent
	f.mu.Unlock()
	if sent != "Completed" {
		t.Errorf("status sent = %#v, want \"Completed\"", sent)
	}
}

type recordingRecorder struct {
	mu    sync.Mutex
	calls []ports.UpstreamCall
}

func (r *recordingRecorder) RecordUpstreamCall(_ context.Context, call ports.UpstreamCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func TestRecorderObservesEachCall(t *testing.T) {
	f := newFakeElab()
	rec := &recordingRecorder{}
	c := f.clientWithKey(t, "wrong", WithRecorder(rec))

	_, _ = c.TestConnection(context.Background())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(rec.calls))
	}
	call := rec.calls[0]
	if call.Operation != "test_connection" || call.Method != http.MethodGet || call.StatusCode != http.StatusUnauthorized {
		t.Errorf("call = %+v", call)
	}
}
