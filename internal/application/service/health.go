package service

import (
	"fmt"
	"time"

	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
)

// HealthSnapshot is the monitor's verdict for one worker.
type HealthSnapshot struct {
	WorkerID   string
	Running    bool
	LastUpdate time.Time
	Healthy    bool
	Reason     string // human-readable, empty when healthy
}

// HealthMonitor derives per-worker health from self-reported status. It is
// a pure reader: checking never mutates a worker.
type HealthMonitor struct {
	now func() time.Time
}

func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{now: time.Now}
}

// Check queries every worker and evaluates its staleness.
func (m *HealthMonitor) Check(workers []port.Worker) map[string]HealthSnapshot {
	out := make(map[string]HealthSnapshot, len(workers))
	for _, w := range workers {
		out[w.ID()] = m.Evaluate(w.Health())
	}
	return out
}

// Evaluate applies the health rule: healthy iff the worker is running, has
// seen at least one update, and that update is within the staleness
// threshold.
func (m *HealthMonitor) Evaluate(st port.HealthStatus) HealthSnapshot {
	snap := HealthSnapshot{
		WorkerID:   st.WorkerID,
		Running:    st.Running,
		LastUpdate: st.LastUpdate,
	}

	switch {
	case !st.Running:
		snap.Reason = "not running"
	case st.LastUpdate.IsZero():
		snap.Reason = "no updates received yet"
	default:
		age := m.now().Sub(st.LastUpdate)
		if age >= st.StalenessThreshold {
			snap.Reason = fmt.Sprintf("stale: last update %s ago (threshold %s)",
				age.Round(time.Second), st.StalenessThreshold)
		} else {
			snap.Healthy = true
		}
	}
	return snap
}
