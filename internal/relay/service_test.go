package relay_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/elab"
	"github.com/emiliopalmerini/elabgate/internal/relay"
)

func TestRegisterPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.RegisterPatient(ctx, "  Jane Doe ")
	if err != nil {
		t.Fatalf("RegisterPatient() error = %v", err)
	}
	if p.Name != "Jane Doe" || !p.Registered() {
		t.Errorf("patient = %+v", p)
	}

	if _, err := f.svc.RegisterPatient(ctx, "Jane Doe"); !errors.Is(err, relay.ErrConflict) {
		t.Errorf("duplicate error = %v, want ErrConflict", err)
	}
	if _, err := f.svc.RegisterPatient(ctx, "  "); !errors.Is(err, relay.ErrValidation) {
		t.Errorf("blank name error = %v, want ErrValidation", err)
	}
	if len(f.upstream.items) != 1 {
		t.Errorf("upstream items = %d, want 1", len(f.upstream.items))
	}
}

func TestCreateExperimentFillsTemplateAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient, err := f.svc.RegisterPatient(ctx, "Jane Doe")
	if err != nil {
		t.Fatalf("RegisterPatient() error = %v", err)
	}
	created, err := f.svc.CreateExperiment(ctx, f.alice, relay.CreateExperimentRequest{
		Reference:  "PROJ-X-001",
		PatientID:  patient.ID,
		SampleType: "blood",
	})
	if err != nil {
		t.Fatalf("CreateExperiment() error = %v", err)
	}
	if created.Reference != "PROJ-X-001" || created.ExperimentID <= 0 || created.Status != "Running" {
		t.Errorf("created = %+v", created)
	}

	fields := f.upstream.lastFields
	if fields.Title != "[REF:PROJ-X-001] Analysis Jane Doe - 2026-03-09" {
		t.Errorf("title = %q", fields.Title)
	}
	if fields.TemplateTitle != "Blood Panel" {
		t.Errorf("template = %q", fields.TemplateTitle)
	}
	if fields.Vars["collected_at"] != "2026-03-09T14:30" || fields.Vars["patient"] != "Jane Doe" {
		t.Errorf("vars = %v", fields.Vars)
	}
	if f.upstream.links[created.ExperimentID] != patient.ElabItemID {
		t.Errorf("experiment linked to %d, want %d", f.upstream.links[created.ExperimentID], patient.ElabItemID)
	}

	record, err := f.repos.Experiments.GetByReference(ctx, "PROJ-X-001")
	if err != nil || record == nil {
		t.Fatalf("GetByReference() = %+v, %v", record, err)
	}
	if record.AccountID != f.alice.ID || record.ElabExperimentID != created.ExperimentID || record.SampleType != "blood" {
		t.Errorf("record = %+v", record)
	}

	_, err = f.svc.CreateExperiment(ctx, f.alice, relay.CreateExperimentRequest{Reference: "PROJ-X-001", PatientID: patient.ID})
	if !errors.Is(err, relay.ErrConflict) {
		t.Errorf("duplicate reference error = %v, want ErrConflict", err)
	}
}

func TestCreateExperimentRepairsLegacyPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	legacy := &domain.Patient{Name: "Legacy Patient", CreatedAt: fixedNow}
	if err := f.repos.Patients.Create(ctx, legacy); err != nil {
		t.Fatalf("Create(patient) error = %v", err)
	}

	if _, err := f.svc.CreateExperiment(ctx, f.admin, relay.CreateExperimentRequest{
		Reference: "PROJ-X-010",
		PatientID: legacy.ID,
		Title:     "Trial 1",
	}); err != nil {
		t.Fatalf("CreateExperiment() error = %v", err)
	}

	repaired, _ := f.repos.Patients.GetByID(ctx, legacy.ID)
	if !repaired.Registered() {
		t.Error("legacy patient still has no item id")
	}
	if f.upstream.lastFields.Title != "Trial 1" || f.upstream.lastFields.TemplateTitle != "Clinical Analysis" {
		t.Errorf("fields = %+v", f.upstream.lastFields)
	}
}

func TestCreateExperimentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patient, _ := f.svc.RegisterPatient(ctx, "Jane Doe")

	tests := []struct {
		name  string
		actor *domain.Account
		req   relay.CreateExperimentRequest
		want  error
	}{
		{"anonymous", nil, relay.CreateExperimentRequest{Reference: "R-1", PatientID: patient.ID}, relay.ErrUnauthorized},
		{"machine", f.machine, relay.CreateExperimentRequest{Reference: "R-1", PatientID: patient.ID}, relay.ErrForbidden},
		{"no reference", f.alice, relay.CreateExperimentRequest{PatientID: patient.ID}, relay.ErrValidation},
		{"no patient", f.alice, relay.CreateExperimentRequest{Reference: "R-1"}, relay.ErrValidation},
		{"unknown patient", f.alice, relay.CreateExperimentRequest{Reference: "R-1", PatientID: 999}, relay.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateExperiment(ctx, tt.actor, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
	if len(f.upstream.experiments) != 0 {
		t.Errorf("rejected requests created %d experiments", len(f.upstream.experiments))
	}
}

func TestStatusAndExportAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.experiment(t, f.alice, "PROJ-X-001")
	id := created.ExperimentID

	if st, err := f.svc.GetStatus(ctx, f.alice, id); err != nil || st.Status != "Running" {
		t.Errorf("owner GetStatus() = %+v, %v", st, err)
	}
	if _, err := f.svc.GetStatus(ctx, f.bob, id); !errors.Is(err, relay.ErrForbidden) {
		t.Errorf("other requester GetStatus() error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.GetStatus(ctx, f.machine, id); err != nil {
		t.Errorf("machine GetStatus() error = %v", err)
	}
	if _, err := f.svc.GetStatus(ctx, nil, id); !errors.Is(err, relay.ErrUnauthorized) {
		t.Errorf("anonymous GetStatus() error = %v", err)
	}

	pdf, err := f.svc.ExportPDF(ctx, f.alice, id, false)
	if err != nil || !strings.HasPrefix(string(pdf), "%PDF") {
		t.Errorf("owner ExportPDF() = %q, %v", pdf, err)
	}
	if _, err := f.svc.ExportPDF(ctx, f.machine, id, false); !errors.Is(err, relay.ErrForbidden) {
		t.Errorf("machine ExportPDF() error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.ExportPDF(ctx, f.admin, id, true); err != nil {
		t.Errorf("admin ExportPDF() error = %v", err)
	}

	// Admins reach experiments elabgate did not create.
	_, err = f.svc.GetStatus(ctx, f.admin, 424242)
	if elab.KindOf(err) != elab.KindNotFound || relay.ErrorKind(err) != "not_found" {
		t.Errorf("admin GetStatus(unknown) error = %v", err)
	}
}

func TestExperimentFollowsListVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.experiment(t, f.alice, "PROJ-X-002")
	id := created.ExperimentID

	got, err := f.svc.Experiment(ctx, f.alice, id)
	if err != nil || got == nil || got.Reference != "PROJ-X-002" || got.AccountID != f.alice.ID {
		t.Fatalf("owner Experiment() = %+v, %v", got, err)
	}
	if got, err := f.svc.Experiment(ctx, f.bob, id); err != nil || got != nil {
		t.Errorf("other requester Experiment() = %+v, %v; want nil, nil", got, err)
	}
	for _, actor := range []*domain.Account{f.admin, f.machine} {
		if got, err := f.svc.Experiment(ctx, actor, id); err != nil || got == nil {
			t.Errorf("%s Experiment() = %+v, %v", actor.Name, got, err)
		}
	}
	if got, err := f.svc.Experiment(ctx, f.admin, 424242); err != nil || got != nil {
		t.Errorf("Experiment(unrecorded) = %+v, %v; want nil, nil", got, err)
	}
	if _, err := f.svc.Experiment(ctx, nil, id); !errors.Is(err, relay.ErrUnauthorized) {
		t.Errorf("anonymous Experiment() error = %v", err)
	}
	if _, err := f.svc.Experiment(ctx, f.admin, 0); !errors.Is(err, relay.ErrValidation) {
		t.Errorf("Experiment(0) error = %v, want ErrValidation", err)
	}
}

func TestUpdateResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.experiment(t, f.alice, "PROJ-X-001").ExperimentID

	if _, err := f.svc.UpdateResults(ctx, f.alice, id, map[string]string{"hemoglobin": "13.5"}); !errors.Is(err, relay.ErrForbidden) {
		t.Errorf("requester UpdateResults() error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.UpdateResults(ctx, f.machine, id, map[string]string{" ": "x"}); !errors.Is(err, relay.ErrValidation) {
		t.Errorf("empty UpdateResults() error = %v, want ErrValidation", err)
	}

	report, err := f.svc.UpdateResults(ctx, f.machine, id, map[string]string{"hemoglobin": "13.5", "Glucose": "88", "ldl": "120"})
	if err != nil {
		t.Fatalf("UpdateResults() error = %v", err)
	}
	if !report.UsedTable || len(report.Matched) != 2 || len(report.Unmatched) != 1 {
		t.Errorf("report = %+v", report)
	}

	body, err := f.svc.ExperimentFields(ctx, f.admin, id)
	if err != nil {
		t.Fatalf("ExperimentFields() error = %v", err)
	}
	values := map[string]string{}
	for _, field := range body.Fields {
		values[field.Key] = field.Value
	}
	if values["hemoglobin"] != "13.5" || values["glucose"] != "88" {
		t.Errorf("fields after update = %+v", body.Fields)
	}
	if !strings.Contains(body.Body, "PROJ-X-001") {
		t.Error("update dropped the content around the table")
	}
	if _, err := f.svc.ExperimentFields(ctx, f.bob, id); !errors.Is(err, relay.ErrForbidden) {
		t.Errorf("requester ExperimentFields() error = %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.experiment(t, f.alice, "PROJ-X-001").ExperimentID

	if err := f.svc.SetStatus(ctx, f.alice, id, "Success"); !errors.Is(err, relay.ErrForbidden) {
		t.Errorf("requester SetStatus() error = %v", err)
	}
	if err := f.svc.SetStatus(ctx, f.machine, id, " "); !errors.Is(err, relay.ErrValidation) {
		t.Errorf("blank SetStatus() error = %v", err)
	}
	if err := f.svc.SetStatus(ctx, f.machine, id, "Success"); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	st, _ := f.svc.GetStatus(ctx, f.alice, id)
	if st.Status != "Success" {
		t.Errorf("status = %q, want Success", st.Status)
	}
}

func TestListExperimentStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.experiment(t, f.alice, "PROJ-X-001")
	f.experiment(t, f.alice, "PROJ-X-002")
	f.experiment(t, f.bob, "PROJ-X-003")
	f.upstream.failStatus[first.ExperimentID] = errors.New("boom")

	mine, err := f.svc.ListExperimentStatuses(ctx, f.alice, 0)
	if err != nil {
		t.Fatalf("ListExperimentStatuses() error = %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("requester sees %d experiments, want 2", len(mine))
	}
	for _, row := range mine {
		if row.Experiment.ElabExperimentID == first.ExperimentID {
			if row.Status != "unavailable" || row.Error == "" {
				t.Errorf("failed row = %+v", row)
			}
		} else if row.Status != "Running" {
			t.Errorf("row status = %q", row.Status)
		}
	}

	all, err := f.svc.ListExperiments(ctx, f.admin, 0)
	if err != nil || len(all) != 3 {
		t.Errorf("admin ListExperiments() = %d, %v", len(all), err)
	}
}

func TestTemplateFields(t *testing.T) {
	f := newFixture(t)
	fields, err := f.svc.TemplateFields(context.Background(), "blood")
	if err != nil {
		t.Fatalf("TemplateFields() error = %v", err)
	}
	if len(fields) != 2 || fields[0].Key != "hemoglobin" || fields[1].Unit != "mg/dL" {
		t.Errorf("fields = %+v", fields)
	}
}

func TestAccountsAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.Login(ctx, "alice", "password")
	if err != nil || got.ID != f.alice.ID {
		t.Errorf("Login() = %+v, %v", got, err)
	}
	if _, err := f.svc.Login(ctx, "alice", "wrong"); !errors.Is(err, relay.ErrUnauthorized) {
		t.Errorf("bad password error = %v", err)
	}
	if _, err := f.svc.Login(ctx, "nobody", "password"); !errors.Is(err, relay.ErrUnauthorized) {
		t.Errorf("unknown account error = %v", err)
	}

	if _, err := f.svc.CreateAccount(ctx, f.alice, "eve", "password", "admin"); !errors.Is(err, relay.ErrForbidden) {
		t.Errorf("requester CreateAccount() error = %v", err)
	}
	if _, err := f.svc.CreateAccount(ctx, f.admin, "alice", "password", "requester"); !errors.Is(err, relay.ErrConflict) {
		t.Errorf("duplicate CreateAccount() error = %v", err)
	}
	if _, err := f.svc.CreateAccount(ctx, f.admin, "eve", "password", "root"); !errors.Is(err, relay.ErrValidation) {
		t.Errorf("bad role CreateAccount() error = %v", err)
	}

	if _, err := f.svc.Account(ctx, 0); !errors.Is(err, relay.ErrUnauthorized) {
		t.Errorf("Account(0) error = %v", err)
	}
	if a, err := f.svc.Account(ctx, f.machine.ID); err != nil || a.Role != domain.RoleMachine {
		t.Errorf("Account() = %+v, %v", a, err)
	}
}

func TestErrorKind(t *testing.T) {
	cases := map[error]string{
		nil:                    "none",
		relay.ErrValidation:    "validation",
		relay.ErrForbidden:     "forbidden",
		relay.ErrUnauthorized:  "unauthorized",
		relay.ErrConflict:      "conflict",
		&elab.UpstreamError{}:  "upstream",
		&elab.NotFoundError{}:  "not_found",
		&elab.TransportError{}: "transport",
		errors.New("x"):        "internal",
	}
	for err, want := range cases {
		if got := relay.ErrorKind(err); got != want {
			t.Errorf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
