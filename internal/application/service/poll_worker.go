package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
	"github.com/anujsainicse/funding-profit-inr/internal/domain/model"
	"github.com/anujsainicse/funding-profit-inr/internal/infrastructure/exchange/coindcx"
)

type PollWorkerConfig struct {
	ID        string
	Symbols   []string // exchange symbols to keep, e.g. "B-BTC_USDT"
	KeyPrefix string
	TTL       time.Duration

	FetchInterval      time.Duration
	RetryAttempts      int
	StalenessThreshold time.Duration
}

// PollWorker fetches the funding-rate batch on a fixed schedule and merges
// funding fields into the store. A cycle retries transport failures with
// exponential backoff; an exhausted cycle is logged and dropped, and the
// next cycle still starts on time.
type PollWorker struct {
	cfg    PollWorkerConfig
	client *coindcx.FundingClient
	store  port.FieldStore

	symbols map[string]struct{}
	running atomic.Bool

	mu         sync.Mutex
	lastUpdate time.Time
	listeners  []port.UpdateListener

	now         func() time.Time
	backoffUnit time.Duration // time unit for 2^attempt backoff, overridden in tests
}

func NewPollWorker(cfg PollWorkerConfig, client *coindcx.FundingClient, store port.FieldStore) *PollWorker {
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = 5 * time.Minute
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 2 * cfg.FetchInterval
	}
	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = struct{}{}
	}
	return &PollWorker{
		cfg:         cfg,
		client:      client,
		store:       store,
		symbols:     symbols,
		now:         time.Now,
		backoffUnit: time.Second,
	}
}

func (w *PollWorker) ID() string { return w.cfg.ID }

// AddUpdateListener registers a callback invoked synchronously after each
// successful store write. Must be called before Run.
func (w *PollWorker) AddUpdateListener(l port.UpdateListener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

func (w *PollWorker) Health() port.HealthStatus {
	w.mu.Lock()
	last := w.lastUpdate
	w.mu.Unlock()
	detail := "idle"
	if w.running.Load() {
		detail = "polling"
	}
	return port.HealthStatus{
		WorkerID:           w.cfg.ID,
		Running:            w.running.Load(),
		LastUpdate:         last,
		StalenessThreshold: w.cfg.StalenessThreshold,
		Detail:             detail,
	}
}

// Run fetches immediately, then on every tick of the fixed interval. The
// ticker keeps the original schedule regardless of how long a failed
// cycle's retries took.
func (w *PollWorker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)

	w.cycle(ctx)

	ticker := time.NewTicker(w.cfg.FetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *PollWorker) cycle(ctx context.Context) {
	if err := w.fetchAndStore(ctx); err != nil && ctx.Err() == nil {
		log.Error().Str("worker", w.cfg.ID).Err(err).Msg("funding fetch cycle failed")
	}
}

// fetchAndStore runs one cycle: fetch with retries, filter to the
// configured symbols, merge funding fields per instrument.
func (w *PollWorker) fetchAndStore(ctx context.Context) error {
	var entries []coindcx.FundingEntry
	var err error

	for attempt := 0; attempt < w.cfg.RetryAttempts; attempt++ {
		entries, err = w.client.Fetch(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().
			Str("worker", w.cfg.ID).
			Int("attempt", attempt+1).
			Int("max_attempts", w.cfg.RetryAttempts).
			Err(err).
			Msg("funding request failed")
		if attempt < w.cfg.RetryAttempts-1 {
			sleepCtx(ctx, time.Duration(1<<attempt)*w.backoffUnit)
		}
	}
	if err != nil {
		return fmt.Errorf("all %d attempts failed: %w", w.cfg.RetryAttempts, err)
	}

	now := w.now()
	stamp := now.UTC().Format(time.RFC3339Nano)
	stored := 0
	for _, e := range entries {
		if _, ok := w.symbols[e.Symbol]; !ok {
			continue
		}
		coin := coindcx.CoinCode(e.Symbol)
		key := model.Key(w.cfg.KeyPrefix, coin)

		fields := map[string]string{
			model.FieldFundingTimestamp: stamp,
			model.FieldSourceSymbol:     e.Symbol,
		}
		if e.FundingRate != "" {
			fields[model.FieldCurrentFundingRate] = e.FundingRate
		}
		if e.EstimatedRate != "" {
			fields[model.FieldEstimatedFundingRate] = e.EstimatedRate
		}
		if e.NextFundingTime != "" {
			fields[model.FieldNextFundingTime] = e.NextFundingTime
		}

		if err := w.store.MergeFields(ctx, key, fields, w.cfg.TTL); err != nil {
			// Lost for this cycle; the next fetch supersedes it.
			log.Error().Str("worker", w.cfg.ID).Str("key", key).Err(err).Msg("store write failed")
			continue
		}
		stored++
		w.markUpdate(coin, now)
	}

	log.Debug().Str("worker", w.cfg.ID).Int("stored", stored).Int("received", len(entries)).Msg("funding cycle complete")
	return nil
}

func (w *PollWorker) markUpdate(coin string, at time.Time) {
	w.mu.Lock()
	w.lastUpdate = at
	listeners := w.listeners
	w.mu.Unlock()
	for _, l := range listeners {
		l(coin, at)
	}
}

var _ port.Worker = (*PollWorker)(nil)
