package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anujsainicse/funding-profit-inr/internal/domain/model"
	"github.com/anujsainicse/funding-profit-inr/internal/infrastructure/exchange/coindcx"
	memorystore "github.com/anujsainicse/funding-profit-inr/internal/infrastructure/storage/memory"
)

func newPollWorker(t *testing.T, srvURL string, cfg PollWorkerConfig, store *memorystore.FieldStore) *PollWorker {
	t.Helper()
	client := coindcx.NewFundingClient(srvURL, 2*time.Second)
	w := NewPollWorker(cfg, client, store)
	w.backoffUnit = time.Millisecond
	return w
}

func TestPollWorkerStoresFundingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol":"B-BTC_USDT","funding_rate":0.0001,"next_funding_time":1700000000000},
			{"symbol":"B-XRP_USDT","funding_rate":0.0009}
		]`))
	}))
	defer srv.Close()

	store := memorystore.New()
	ctx := context.Background()

	// Pre-seeded price field must survive the funding merge.
	store.MergeFields(ctx, "coindcx_futures:BTC", map[string]string{
		model.FieldLastPrice: "45000",
	}, time.Hour)

	worker := newPollWorker(t, srv.URL, PollWorkerConfig{
		ID:        "coindcx_funding",
		Symbols:   []string{"B-BTC_USDT"},
		KeyPrefix: "coindcx_futures",
		TTL:       time.Hour,
	}, store)

	if err := worker.fetchAndStore(ctx); err != nil {
		t.Fatalf("fetchAndStore failed: %v", err)
	}

	fields, ok, _ := store.Read(ctx, "coindcx_futures:BTC")
	if !ok {
		t.Fatal("funding record missing")
	}
	if fields[model.FieldCurrentFundingRate] != "0.0001" {
		t.Errorf("current_funding_rate = %q", fields[model.FieldCurrentFundingRate])
	}
	if fields[model.FieldNextFundingTime] != "1700000000000" {
		t.Errorf("next_funding_time = %q", fields[model.FieldNextFundingTime])
	}
	if fields[model.FieldSourceSymbol] != "B-BTC_USDT" {
		t.Errorf("source_symbol = %q", fields[model.FieldSourceSymbol])
	}
	if fields[model.FieldLastPrice] != "45000" {
		t.Errorf("pre-existing last_price clobbered: %q", fields[model.FieldLastPrice])
	}
	if _, err := time.Parse(time.RFC3339Nano, fields[model.FieldFundingTimestamp]); err != nil {
		t.Errorf("funding_timestamp not RFC3339: %q", fields[model.FieldFundingTimestamp])
	}

	// B-XRP_USDT is not configured and must be filtered out.
	if _, ok, _ := store.Read(ctx, "coindcx_futures:XRP"); ok {
		t.Error("unconfigured symbol was stored")
	}
}

func TestPollWorkerStoresEstimatedRateFromNestedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":{"B-ETH_USDT":{"fr":-0.0002,"efr":-0.00018}}}`))
	}))
	defer srv.Close()

	store := memorystore.New()
	worker := newPollWorker(t, srv.URL, PollWorkerConfig{
		ID:        "coindcx_funding",
		Symbols:   []string{"B-ETH_USDT"},
		KeyPrefix: "coindcx_futures",
		TTL:       time.Hour,
	}, store)

	if err := worker.fetchAndStore(context.Background()); err != nil {
		t.Fatalf("fetchAndStore failed: %v", err)
	}

	fields, ok, _ := store.Read(context.Background(), "coindcx_futures:ETH")
	if !ok {
		t.Fatal("funding record missing")
	}
	if fields[model.FieldCurrentFundingRate] != "-0.0002" {
		t.Errorf("current_funding_rate = %q", fields[model.FieldCurrentFundingRate])
	}
	if fields[model.FieldEstimatedFundingRate] != "-0.00018" {
		t.Errorf("estimated_funding_rate = %q", fields[model.FieldEstimatedFundingRate])
	}
	if _, present := fields[model.FieldNextFundingTime]; present {
		t.Error("nested shape should not produce next_funding_time")
	}
}

func TestPollWorkerRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"symbol":"B-BTC_USDT","funding_rate":0.0001}]`))
	}))
	defer srv.Close()

	store := memorystore.New()
	worker := newPollWorker(t, srv.URL, PollWorkerConfig{
		ID:            "coindcx_funding",
		Symbols:       []string{"B-BTC_USDT"},
		KeyPrefix:     "coindcx_futures",
		TTL:           time.Hour,
		RetryAttempts: 3,
	}, store)

	if err := worker.fetchAndStore(context.Background()); err != nil {
		t.Fatalf("cycle should succeed on third attempt: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}
	if _, ok, _ := store.Read(context.Background(), "coindcx_futures:BTC"); !ok {
		t.Error("record missing after eventual success")
	}
}

func TestPollWorkerExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	worker := newPollWorker(t, srv.URL, PollWorkerConfig{
		ID:            "coindcx_funding",
		Symbols:       []string{"B-BTC_USDT"},
		KeyPrefix:     "coindcx_futures",
		TTL:           time.Hour,
		RetryAttempts: 2,
	}, memorystore.New())

	if err := worker.fetchAndStore(context.Background()); err == nil {
		t.Fatal("exhausted retries must surface an error")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
}

func TestPollWorkerKeepsScheduleThroughFailedCycles(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	worker := newPollWorker(t, srv.URL, PollWorkerConfig{
		ID:            "coindcx_funding",
		Symbols:       []string{"B-BTC_USDT"},
		KeyPrefix:     "coindcx_futures",
		TTL:           time.Hour,
		FetchInterval: 100 * time.Millisecond,
		RetryAttempts: 3,
	}, memorystore.New())
	// Per-cycle retry backoff adds 20+40ms; if failed retries pushed the
	// schedule back, far fewer cycles would fit in the window.
	worker.backoffUnit = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 450*time.Millisecond)
	defer cancel()

	if err := worker.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	// Fixed schedule fits cycles at 0ms, 100ms, 200ms, 300ms: 4x3 requests.
	if got := calls.Load(); got < 12 {
		t.Errorf("expected at least 12 requests on the fixed schedule, got %d", got)
	}
}
