package templates

import "github.com/emiliopalmerini/elabgate/internal/results"

// Nav describes the signed-in account shown in the header.
type Nav struct {
	AccountName string
	Role        string
	Active      string // path of the current page
}

type Flash struct {
	Notice string
	Error  string
}

type HomeView struct {
	Nav
	Flash
	ElabURL      string
	CanConfigure bool
}

type PatientRow struct {
	ID         int64
	Name       string
	ElabItemID int64
	CreatedAt  string
}

type PatientsView struct {
	Nav
	Flash
	Patients []PatientRow
}

type ExperimentRow struct {
	Reference    string
	ExperimentID int64
	PatientName  string
	SampleType   string
	Title        string
	Status       string
	StatusError  string
	CreatedAt    string
}

type PatientOption struct {
	ID   int64
	Name string
}

type ExperimentsView struct {
	Nav
	Flash
	Rows        []ExperimentRow
	Patients    []PatientOption
	SampleTypes []string
	CanCreate   bool
}

type ExperimentDetailView struct {
	Nav
	Flash
	ExperimentID int64
	Reference    string
	Title        string
	Status       string
	Fields       []results.Field
	CanManage    bool
	CanExport    bool
}
