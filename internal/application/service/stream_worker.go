package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
	"github.com/anujsainicse/funding-profit-inr/internal/domain/model"
)

// StreamState is the connection lifecycle of a StreamWorker.
type StreamState int32

const (
	StateDisconnected StreamState = iota
	StateConnecting
	StateSubscribed
	StateStreaming
)

func (s StreamState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

type StreamWorkerConfig struct {
	ID        string
	WsURL     string
	Symbols   []string
	KeyPrefix string
	TTL       time.Duration

	ReconnectDelay     time.Duration // fixed wait between connect attempts
	DialTimeout        time.Duration
	WatchdogPeriod     time.Duration // how often the watchdog wakes up
	DataTimeout        time.Duration // max silence before the watchdog kills the conn
	StalenessThreshold time.Duration
}

// StreamWorker maintains one ticker WebSocket, writes normalized price
// fields to the store, and reconnects forever on its own. The exchange wire
// protocol lives in the injected feed; the worker only knows frames and
// ticks. The feed has no liveness signal beyond traffic recency, so a
// watchdog force-closes the connection when the stream goes silent.
type StreamWorker struct {
	cfg   StreamWorkerConfig
	feed  port.TickerFeed
	store port.FieldStore

	state    atomic.Int32
	running  atomic.Bool
	attempts atomic.Int64 // consecutive failed connect attempts

	mu          sync.Mutex
	lastMessage time.Time
	lastUpdate  time.Time
	listeners   []port.UpdateListener

	now func() time.Time
}

func NewStreamWorker(cfg StreamWorkerConfig, feed port.TickerFeed, store port.FieldStore) *StreamWorker {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WatchdogPeriod <= 0 {
		cfg.WatchdogPeriod = 30 * time.Second
	}
	if cfg.DataTimeout <= 0 {
		cfg.DataTimeout = 60 * time.Second
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 60 * time.Second
	}
	return &StreamWorker{
		cfg:   cfg,
		feed:  feed,
		store: store,
		now:   time.Now,
	}
}

func (w *StreamWorker) ID() string { return w.cfg.ID }

// AddUpdateListener registers a callback invoked synchronously after each
// successful store write. Must be called before Run.
func (w *StreamWorker) AddUpdateListener(l port.UpdateListener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

func (w *StreamWorker) Health() port.HealthStatus {
	w.mu.Lock()
	last := w.lastUpdate
	w.mu.Unlock()
	return port.HealthStatus{
		WorkerID:           w.cfg.ID,
		Running:            w.running.Load(),
		LastUpdate:         last,
		StalenessThreshold: w.cfg.StalenessThreshold,
		Detail:             w.State().String(),
	}
}

func (w *StreamWorker) State() StreamState {
	return StreamState(w.state.Load())
}

// ConnectAttempts reports consecutive failed connect attempts; resets to
// zero after a successful subscribe.
func (w *StreamWorker) ConnectAttempts() int64 {
	return w.attempts.Load()
}

// Run connects, subscribes and streams until ctx is canceled. Connection
// failures are never fatal here: the loop waits ReconnectDelay and tries
// again indefinitely. Only the supervisor decides to stop restarting.
func (w *StreamWorker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)
	defer w.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := w.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			n := w.attempts.Add(1)
			log.Error().Str("worker", w.cfg.ID).Int64("attempt", n).Err(err).Msg("ws connect failed")
			w.setState(StateDisconnected)
			sleepCtx(ctx, w.cfg.ReconnectDelay)
			continue
		}

		w.attempts.Store(0)
		log.Info().Str("worker", w.cfg.ID).Int("symbols", len(w.cfg.Symbols)).Msg("ws connected & subscribed")

		w.touchMessage()
		wctx, wcancel := context.WithCancel(ctx)
		go w.watchdog(wctx, conn)

		err = w.readLoop(ctx, conn)
		wcancel()
		_ = conn.Close()
		w.setState(StateDisconnected)

		if ctx.Err() != nil {
			return nil
		}

		log.Warn().Str("worker", w.cfg.ID).Err(err).Msg("ws disconnected, reconnecting")
		sleepCtx(ctx, w.cfg.ReconnectDelay)
	}
}

// connect dials the feed and sends the batch subscribe for all configured
// symbols in one request.
func (w *StreamWorker) connect(ctx context.Context) (*websocket.Conn, error) {
	w.setState(StateConnecting)

	dctx, cancel := context.WithTimeout(ctx, w.cfg.DialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dctx, w.cfg.WsURL, nil)
	cancel()
	if err != nil {
		return nil, err
	}

	if err := conn.WriteJSON(w.feed.SubscribeRequest(w.cfg.Symbols)); err != nil {
		_ = conn.Close()
		return nil, err
	}

	w.setState(StateSubscribed)
	return conn, nil
}

func (w *StreamWorker) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		w.handleMessage(ctx, b)
	}
}

func (w *StreamWorker) handleMessage(ctx context.Context, b []byte) {
	frame, err := w.feed.ParseFrame(b)
	if err != nil {
		// Malformed frames are logged and skipped, never fatal.
		log.Warn().Str("worker", w.cfg.ID).Err(err).Msg("unparseable ws message")
		return
	}
	w.touchMessage()

	if frame.Ack != nil {
		if !frame.Ack.OK {
			log.Error().Str("worker", w.cfg.ID).Str("detail", frame.Ack.Detail).Msg("subscribe not success")
		} else {
			log.Debug().Str("worker", w.cfg.ID).Msg("subscription acknowledged")
		}
		return
	}

	if len(frame.Ticks) == 0 {
		log.Debug().Str("worker", w.cfg.ID).Msg("unrecognized ws message")
		return
	}

	w.setState(StateStreaming)
	now := w.now()
	for _, t := range frame.Ticks {
		coin := w.feed.CoinCode(t.Symbol)
		key := model.Key(w.cfg.KeyPrefix, coin)
		fields := map[string]string{
			model.FieldLastPrice:      t.LastPrice,
			model.FieldPriceTimestamp: now.UTC().Format(time.RFC3339Nano),
			model.FieldSourceSymbol:   t.Symbol,
		}
		if err := w.store.MergeFields(ctx, key, fields, w.cfg.TTL); err != nil {
			// Update lost for this tick; the next one supersedes it.
			log.Error().Str("worker", w.cfg.ID).Str("key", key).Err(err).Msg("store write failed")
			continue
		}
		w.markUpdate(coin, now)
	}
}

// watchdog force-closes the connection when no message has arrived for
// DataTimeout; an idle-but-open socket is indistinguishable from a dead one
// without it. Closing unblocks the pending ReadMessage, which sends the run
// loop back through reconnect. The same close path serves ctx cancellation.
func (w *StreamWorker) watchdog(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.cfg.WatchdogPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			w.mu.Lock()
			silence := w.now().Sub(w.lastMessage)
			w.mu.Unlock()
			if silence > w.cfg.DataTimeout {
				log.Warn().
					Str("worker", w.cfg.ID).
					Dur("silence", silence).
					Msg("no data received, forcing reconnect")
				_ = conn.Close()
				return
			}
		}
	}
}

func (w *StreamWorker) setState(s StreamState) {
	w.state.Store(int32(s))
}

func (w *StreamWorker) touchMessage() {
	w.mu.Lock()
	w.lastMessage = w.now()
	w.mu.Unlock()
}

func (w *StreamWorker) markUpdate(coin string, at time.Time) {
	w.mu.Lock()
	w.lastUpdate = at
	listeners := w.listeners
	w.mu.Unlock()
	for _, l := range listeners {
		l(coin, at)
	}
}

var _ port.Worker = (*StreamWorker)(nil)
