package service

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anujsainicse/funding-profit-inr/internal/domain/model"
	"github.com/anujsainicse/funding-profit-inr/internal/infrastructure/exchange/bybit"
	"github.com/anujsainicse/funding-profit-inr/internal/infrastructure/exchange/coindcx"
	memorystore "github.com/anujsainicse/funding-profit-inr/internal/infrastructure/storage/memory"
)

var testUpgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamWorkerSubscribesAndStoresTicker(t *testing.T) {
	gotArgs := make(chan []string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req bybit.SubReq
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		gotArgs <- req.Args

		conn.WriteJSON(map[string]any{"success": true, "op": "subscribe"})
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"topic":"tickers.ETHUSDT","data":{"symbol":"ETHUSDT","lastPrice":"3500.25"}}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	store := memorystore.New()
	worker := NewStreamWorker(StreamWorkerConfig{
		ID:             "bybit_spot",
		WsURL:          wsURL(srv),
		Symbols:        []string{"ETHUSDT", "BTCUSDT"},
		KeyPrefix:      "bybit_spot",
		TTL:            time.Hour,
		ReconnectDelay: 10 * time.Millisecond,
	}, bybit.NewFeed(), store)

	updates := make(chan string, 16)
	worker.AddUpdateListener(func(coin string, at time.Time) {
		updates <- coin
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- worker.Run(ctx) }()

	select {
	case args := <-gotArgs:
		if len(args) != 2 || args[0] != "tickers.ETHUSDT" || args[1] != "tickers.BTCUSDT" {
			t.Errorf("unexpected subscribe args: %v", args)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no subscribe request received")
	}

	select {
	case coin := <-updates:
		if coin != "ETH" {
			t.Errorf("update for %q, expected ETH", coin)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no store update observed")
	}

	fields, ok, err := store.Read(ctx, "bybit_spot:ETH")
	if err != nil || !ok {
		t.Fatalf("record missing: ok=%v err=%v", ok, err)
	}
	if fields[model.FieldLastPrice] != "3500.25" {
		t.Errorf("last_price = %q", fields[model.FieldLastPrice])
	}
	if fields[model.FieldSourceSymbol] != "ETHUSDT" {
		t.Errorf("source_symbol = %q", fields[model.FieldSourceSymbol])
	}
	if _, err := time.Parse(time.RFC3339Nano, fields[model.FieldPriceTimestamp]); err != nil {
		t.Errorf("price_timestamp not RFC3339: %q", fields[model.FieldPriceTimestamp])
	}
	if got := worker.State(); got != StateStreaming {
		t.Errorf("state = %s, expected streaming", got)
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run returned %v on cancel", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if worker.Health().Running {
		t.Error("worker still reports running after Run returned")
	}
}

func TestTradeStreamMergesWithFundingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req coindcx.JoinReq
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"new-trade","data":{"s":"B-BTC_USDT","p":45000.5}}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	store := memorystore.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The funding poller wrote this key first; the trade stream must join
	// its price fields into the same hash without erasing the funding side.
	store.MergeFields(ctx, "coindcx_futures:BTC", map[string]string{
		model.FieldCurrentFundingRate: "0.0001",
		model.FieldFundingTimestamp:   "2026-01-02T15:04:05Z",
	}, time.Hour)

	worker := NewStreamWorker(StreamWorkerConfig{
		ID:             "coindcx_ltp",
		WsURL:          wsURL(srv),
		Symbols:        []string{"B-BTC_USDT"},
		KeyPrefix:      "coindcx_futures",
		TTL:            time.Hour,
		ReconnectDelay: 10 * time.Millisecond,
	}, coindcx.NewTradeFeed(), store)

	updates := make(chan string, 16)
	worker.AddUpdateListener(func(coin string, at time.Time) {
		updates <- coin
	})

	runDone := make(chan error, 1)
	go func() { runDone <- worker.Run(ctx) }()

	select {
	case coin := <-updates:
		if coin != "BTC" {
			t.Errorf("update for %q, expected BTC", coin)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no store update observed")
	}

	fields, ok, _ := store.Read(ctx, "coindcx_futures:BTC")
	if !ok {
		t.Fatal("record missing")
	}
	if fields[model.FieldLastPrice] != "45000.5" {
		t.Errorf("last_price = %q", fields[model.FieldLastPrice])
	}
	if fields[model.FieldSourceSymbol] != "B-BTC_USDT" {
		t.Errorf("source_symbol = %q", fields[model.FieldSourceSymbol])
	}
	if fields[model.FieldCurrentFundingRate] != "0.0001" {
		t.Errorf("funding field erased by trade write: %v", fields)
	}
	if fields[model.FieldFundingTimestamp] != "2026-01-02T15:04:05Z" {
		t.Errorf("funding timestamp erased by trade write: %v", fields)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStreamWorkerWatchdogForcesReconnect(t *testing.T) {
	var conns atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)

		// Accept the subscribe but never send data; the client's watchdog
		// has to notice the silence and kill the connection.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	worker := NewStreamWorker(StreamWorkerConfig{
		ID:             "bybit_spot",
		WsURL:          wsURL(srv),
		Symbols:        []string{"BTCUSDT"},
		KeyPrefix:      "bybit_spot",
		TTL:            time.Hour,
		ReconnectDelay: 10 * time.Millisecond,
		WatchdogPeriod: 20 * time.Millisecond,
		DataTimeout:    40 * time.Millisecond,
	}, bybit.NewFeed(), memorystore.New())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- worker.Run(ctx) }()

	deadline := time.After(900 * time.Millisecond)
	for conns.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("watchdog never forced a reconnect, connections = %d", conns.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStreamWorkerRetriesUnreachableEndpoint(t *testing.T) {
	// Grab a port with nothing listening on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	worker := NewStreamWorker(StreamWorkerConfig{
		ID:             "bybit_spot",
		WsURL:          "ws://" + addr,
		Symbols:        []string{"BTCUSDT"},
		KeyPrefix:      "bybit_spot",
		TTL:            time.Hour,
		ReconnectDelay: 5 * time.Millisecond,
		DialTimeout:    200 * time.Millisecond,
	}, bybit.NewFeed(), memorystore.New())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- worker.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for worker.ConnectAttempts() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated connect attempts, got %d", worker.ConnectAttempts())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Still running: connect failures never terminate the worker.
	if !worker.Health().Running {
		t.Error("worker stopped itself on connect failure")
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run returned %v on cancel", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
