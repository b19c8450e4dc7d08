package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
)

type SupervisorConfig struct {
	HealthCheckInterval time.Duration
	StatusLogInterval   time.Duration
	AutoRestart         bool
	RestartDelay        time.Duration
	MaxRestartAttempts  int // 0 = keep trying forever
	UnhealthyGrace      time.Duration
	StartStagger        time.Duration
	ShutdownTimeout     time.Duration
}

// workerState is the supervisor's bookkeeping for one worker: the task
// handle is replaced on every restart, the entry lives until shutdown.
type workerState struct {
	worker port.Worker
	cancel context.CancelFunc
	done   chan struct{}
	runErr error // written by the runner goroutine before done closes

	restartCount   int
	lastRestart    time.Time
	firstUnhealthy time.Time
	gaveUp         bool
	warned         bool // one warning per unhealthy episode when restarts are off
}

// Supervisor owns the worker set. It starts every worker as an independent
// task, watches task completion and health verdicts, and restarts failed
// workers after a fixed delay. Worker-internal errors never reach it; only
// a returned (or panicked) Run is visible here.
type Supervisor struct {
	cfg     SupervisorConfig
	monitor *HealthMonitor

	mu      sync.Mutex // guards restartCount/lastRestart for external readers
	order   []string
	workers map[string]*workerState
}

func NewSupervisor(cfg SupervisorConfig, monitor *HealthMonitor, workers []port.Worker) *Supervisor {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.StatusLogInterval <= 0 {
		cfg.StatusLogInterval = 60 * time.Second
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 10 * time.Second
	}
	if cfg.UnhealthyGrace <= 0 {
		cfg.UnhealthyGrace = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	s := &Supervisor{
		cfg:     cfg,
		monitor: monitor,
		workers: make(map[string]*workerState, len(workers)),
	}
	for _, w := range workers {
		s.order = append(s.order, w.ID())
		s.workers[w.ID()] = &workerState{worker: w}
	}
	return s
}

// RestartCount reports how many times a worker has been restarted.
func (s *Supervisor) RestartCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok := s.workers[id]; ok {
		return ws.restartCount
	}
	return 0
}

// Run starts all workers (staggered to avoid a connection burst), then
// loops on the health-check and status-log cadences until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.order) == 0 {
		return fmt.Errorf("no workers configured")
	}

	for i, id := range s.order {
		if i > 0 {
			sleepCtx(ctx, s.cfg.StartStagger)
		}
		if ctx.Err() != nil {
			break
		}
		s.startWorker(ctx, id)
	}
	log.Info().Int("workers", len(s.order)).Msg("supervisor started")

	healthTicker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer healthTicker.Stop()
	statusTicker := time.NewTicker(s.cfg.StatusLogInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-healthTicker.C:
			s.tick(ctx)
		case <-statusTicker.C:
			s.logStatus()
		}
	}
}

// startWorker launches the worker's Run as an independent task. A panic in
// a worker is recorded as the task's error, not propagated.
func (s *Supervisor) startWorker(ctx context.Context, id string) {
	ws := s.workers[id]
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ws.cancel = cancel
	ws.done = done

	log.Info().Str("worker", id).Msg("starting worker")
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				ws.runErr = fmt.Errorf("panic: %v", r)
				log.Error().Str("worker", id).Interface("panic", r).Msg("worker panicked")
			}
		}()
		ws.runErr = ws.worker.Run(wctx)
	}()
}

// stopWorker cancels the task and waits for it to acknowledge, bounded by
// the shutdown timeout.
func (s *Supervisor) stopWorker(id string) {
	ws := s.workers[id]
	if ws.cancel == nil {
		return
	}
	log.Info().Str("worker", id).Msg("stopping worker")
	ws.cancel()
	select {
	case <-ws.done:
	case <-time.After(s.cfg.ShutdownTimeout):
		// Cannot force-kill a blocked network call; abandon and log.
		log.Warn().Str("worker", id).Msg("worker did not stop in time, abandoning task")
	}
}

// tick is one health-monitor pass: restart any worker whose task has exited
// or that has been unhealthy past the grace window.
func (s *Supervisor) tick(ctx context.Context) {
	snapshots := s.monitor.Check(s.workerList())
	now := time.Now()

	for _, id := range s.order {
		ws := s.workers[id]
		if ws.gaveUp || ws.done == nil {
			continue
		}

		taskDone := false
		select {
		case <-ws.done:
			taskDone = true
		default:
		}

		snap := snapshots[id]
		var reason string
		switch {
		case taskDone:
			reason = "task exited unexpectedly"
			if ws.runErr != nil {
				reason = fmt.Sprintf("task exited: %v", ws.runErr)
			}
		case !snap.Healthy:
			if ws.firstUnhealthy.IsZero() {
				ws.firstUnhealthy = now
				continue
			}
			if now.Sub(ws.firstUnhealthy) < s.cfg.UnhealthyGrace {
				continue
			}
			reason = snap.Reason
		default:
			ws.firstUnhealthy = time.Time{}
			ws.warned = false
			continue
		}

		if !s.cfg.AutoRestart {
			if !ws.warned {
				log.Warn().Str("worker", id).Str("reason", reason).Msg("worker unhealthy, auto restart disabled")
				ws.warned = true
			}
			continue
		}
		if s.cfg.MaxRestartAttempts > 0 && ws.restartCount >= s.cfg.MaxRestartAttempts {
			log.Error().
				Str("worker", id).
				Int("restarts", ws.restartCount).
				Msg("restart budget exhausted, giving up on worker")
			s.stopWorker(id)
			ws.gaveUp = true
			continue
		}

		s.restartWorker(ctx, id, reason)
	}
}

func (s *Supervisor) restartWorker(ctx context.Context, id, reason string) {
	ws := s.workers[id]
	log.Warn().Str("worker", id).Str("reason", reason).Msg("restarting worker")

	s.stopWorker(id)
	sleepCtx(ctx, s.cfg.RestartDelay)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	ws.restartCount++
	ws.lastRestart = time.Now()
	s.mu.Unlock()
	ws.firstUnhealthy = time.Time{}
	ws.runErr = nil
	s.startWorker(ctx, id)
}

// shutdown waits for all workers to acknowledge cancellation. Their
// contexts descend from the supervisor's, so cancellation has already
// propagated; laggards past the timeout are abandoned and logged.
func (s *Supervisor) shutdown() {
	log.Info().Msg("supervisor shutting down")
	deadline := time.After(s.cfg.ShutdownTimeout)

	for _, id := range s.order {
		ws := s.workers[id]
		if ws.done == nil {
			continue
		}
		select {
		case <-ws.done:
		case <-deadline:
			log.Warn().Str("worker", id).Msg("worker still running at shutdown deadline, potential leak")
		}
	}
	log.Info().Msg("supervisor stopped")
}

func (s *Supervisor) logStatus() {
	snapshots := s.monitor.Check(s.workerList())
	for _, id := range s.order {
		snap := snapshots[id]
		ws := s.workers[id]
		ev := log.Info()
		if !snap.Healthy {
			ev = log.Warn()
		}
		ev.Str("worker", id).
			Bool("healthy", snap.Healthy).
			Bool("running", snap.Running).
			Int("restarts", ws.restartCount)
		if !snap.LastUpdate.IsZero() {
			ev = ev.Dur("update_age", time.Since(snap.LastUpdate).Round(time.Second))
		}
		if snap.Reason != "" {
			ev = ev.Str("reason", snap.Reason)
		}
		ev.Msg("worker health status")
	}
}

func (s *Supervisor) workerList() []port.Worker {
	out := make([]port.Worker, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.workers[id].worker)
	}
	return out
}
