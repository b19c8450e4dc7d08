package port

import (
	"context"
	"time"
)

// Worker is one supervised ingestion task. Run blocks until ctx is canceled
// (clean exit) or an unrecoverable error escapes; per-message and per-cycle
// errors stay inside the worker.
type Worker interface {
	ID() string
	Run(ctx context.Context) error
	Health() HealthStatus
}

// HealthStatus is a worker's self-reported liveness. Healthy/Reason are
// derived by the health monitor, not by the worker.
type HealthStatus struct {
	WorkerID           string
	Running            bool
	LastUpdate         time.Time // zero when no update has been seen yet
	StalenessThreshold time.Duration
	Detail             string // optional worker-specific state, e.g. "streaming"
}

// UpdateListener is invoked synchronously after each successful store write.
// The supervisor's last-update tracking is one consumer; external probes can
// register their own.
type UpdateListener func(instrument string, at time.Time)
