// ABOUTME: Factory wiring target configuration to LMS protocol adapters.
package simulation

import (
	"log"

	"github.com/examload/examload/internal/config"
	"github.com/examload/examload/internal/lms"
	"github.com/examload/examload/internal/models"
)

// DriverFactory builds the protocol adapters the orchestrator drives. Tests
// substitute in-memory implementations.
type DriverFactory interface {
	Admin(target config.Target, account models.Account, logger *log.Logger) lms.AdminActions
	Participant(target config.Target, account models.Account, mechanism lms.AuthMechanism, sim models.Simulation, logger *log.Logger) lms.ParticipantActions
}

// RestDrivers builds REST+git adapters against a real target.
type RestDrivers struct {
	// GitWorkDir is the root for participant working copies.
	GitWorkDir string
}

var _ DriverFactory = RestDrivers{}

func (d RestDrivers) Admin(target config.Target, account models.Account, logger *log.Logger) lms.AdminActions {
	return lms.NewRestAdmin(target.URL, account.Username, account.Password, logger)
}

func (d RestDrivers) Participant(target config.Target, account models.Account, mechanism lms.AuthMechanism, sim models.Simulation, logger *log.Logger) lms.ParticipantActions {
	git := &lms.ExecGit{Root: d.GitWorkDir}
	return lms.NewRestStudent(target.URL, account.Username, account.Password, mechanism, sim.CommitsFrom, sim.CommitsTo, git, logger)
}
