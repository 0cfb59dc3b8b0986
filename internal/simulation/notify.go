// ABOUTME: Observer notifications for run lifecycle events.
package simulation

import (
	"log"

	"github.com/examload/examload/internal/models"
)

// Notifier pushes run lifecycle events to observers. Transport is up to the
// implementation; the orchestrator only reports facts.
type Notifier interface {
	RunQueued(run *models.SimulationRun)
	RunStatusChanged(run *models.SimulationRun)
	RunLogAppended(run *models.SimulationRun, msg models.LogMessage)
	RunResultReady(run *models.SimulationRun)
	CiStatusChanged(run *models.SimulationRun, status models.CiStatus)
}

// LogNotifier writes lifecycle events to the daemon log. It is the default
// Notifier when no push transport is wired up.
type LogNotifier struct {
	Logger *log.Logger
}

func (n *LogNotifier) logger() *log.Logger {
	if n == nil || n.Logger == nil {
		return log.Default()
	}
	return n.Logger
}

func (n *LogNotifier) RunQueued(run *models.SimulationRun) {
	n.logger().Printf("run %s: queued", run.ID)
}

func (n *LogNotifier) RunStatusChanged(run *models.SimulationRun) {
	n.logger().Printf("run %s: status %s", run.ID, run.Status)
}

func (n *LogNotifier) RunLogAppended(run *models.SimulationRun, msg models.LogMessage) {
	if msg.Error {
		n.logger().Printf("run %s: ERROR %s", run.ID, msg.Message)
		return
	}
	n.logger().Printf("run %s: %s", run.ID, msg.Message)
}

func (n *LogNotifier) RunResultReady(run *models.SimulationRun) {
	n.logger().Printf("run %s: result ready", run.ID)
}

func (n *LogNotifier) CiStatusChanged(run *models.SimulationRun, status models.CiStatus) {
	n.logger().Printf("run %s: build queue %d/%d jobs remaining", run.ID, status.QueuedJobs, status.TotalJobs)
}
