package bybit

import (
	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
)

// Feed adapts the v5 spot ticker stream to the stream worker's contract.
type Feed struct{}

func NewFeed() Feed { return Feed{} }

func (Feed) SubscribeRequest(symbols []string) any {
	return NewSubReq(symbols)
}

func (Feed) ParseFrame(b []byte) (port.TickerFrame, error) {
	msg, err := ParseMessage(b)
	if err != nil {
		return port.TickerFrame{}, err
	}

	switch m := msg.(type) {
	case SubscribeAck:
		return port.TickerFrame{Ack: &port.SubscribeResult{OK: m.Success, Detail: m.RetMsg}}, nil
	case TickerBatch:
		ticks := make([]port.Tick, 0, len(m.Tickers))
		for _, t := range m.Tickers {
			ticks = append(ticks, port.Tick{Symbol: t.Symbol, LastPrice: t.LastPrice})
		}
		return port.TickerFrame{Ticks: ticks}, nil
	}
	return port.TickerFrame{}, nil
}

func (Feed) CoinCode(symbol string) string {
	return CoinCode(symbol)
}

var _ port.TickerFeed = Feed{}
