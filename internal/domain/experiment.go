package domain

import (
	"fmt"
	"strings"
	"time"
)

// Experiment mirrors an eLabFTW experiment created through elabgate. The
// reference is the scheduling identifier supplied by the requester.
type Experiment struct {
	Reference        string    `json:"reference"`
	ElabExperimentID int64     `json:"experiment_id"`
	PatientID        int64     `json:"patient_id"`
	AccountID        int64     `json:"account_id"`
	SampleType       string    `json:"sample_type"`
	Title            string    `json:"title"`
	CreatedAt        time.Time `json:"created_at"`
}

func DefaultExperimentTitle(reference, patientName string, on time.Time) string {
	return fmt.Sprintf("[REF:%s] Analysis %s - %s",
		strings.TrimSpace(reference), strings.TrimSpace(patientName), on.Format("2006-01-02"))
}
