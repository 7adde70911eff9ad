package turso

import (
	"database/sql"

	"github.com/emiliopalmerini/elabgate/internal/ports"
)

// Repositories holds all turso repository implementations as port interfaces.
type Repositories struct {
	Accounts    ports.AccountRepository
	Patients    ports.PatientRepository
	Experiments ports.ExperimentRepository
}

// NewRepositories creates all turso repository implementations from a database connection.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Accounts:    NewAccountRepository(db),
		Patients:    NewPatientRepository(db),
		Experiments: NewExperimentRepository(db),
	}
}
