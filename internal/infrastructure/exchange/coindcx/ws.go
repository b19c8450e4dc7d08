package coindcx

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
)

// JoinReq subscribes to the trade channel of every symbol in one frame.
type JoinReq struct {
	Event    string   `json:"event"`
	Channels []string `json:"channels"`
}

func NewJoinReq(symbols []string) JoinReq {
	channels := make([]string, 0, len(symbols))
	for _, s := range symbols {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		channels = append(channels, u+"@trades-futures")
	}
	return JoinReq{Event: "join", Channels: channels}
}

// tradeFrame is one inbound frame on the futures trade stream. The data
// member arrives either as an object or as a JSON-encoded string holding
// that object, depending on the gateway.
type tradeFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// tradePayload is the trade body: exchange symbol and last traded price.
type tradePayload struct {
	Symbol string          `json:"s"`
	Price  json.RawMessage `json:"p"` // number or string
}

// ParseTradeFrame decodes one trade frame. A malformed frame is an error;
// an intact frame without a symbol and price (pings, channel notices) maps
// to an empty result.
func ParseTradeFrame(b []byte) (port.TickerFrame, error) {
	var frame tradeFrame
	if err := json.Unmarshal(b, &frame); err != nil {
		return port.TickerFrame{}, err
	}

	payload := bytes.TrimSpace(frame.Data)
	if len(payload) == 0 || string(payload) == "null" {
		return port.TickerFrame{}, nil
	}
	if payload[0] == '"' {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return port.TickerFrame{}, err
		}
		payload = []byte(inner)
	}

	var trade tradePayload
	if err := json.Unmarshal(payload, &trade); err != nil {
		return port.TickerFrame{}, err
	}

	sym := strings.ToUpper(strings.TrimSpace(trade.Symbol))
	px := rawScalar(trade.Price)
	if sym == "" || px == "" {
		return port.TickerFrame{}, nil
	}
	return port.TickerFrame{Ticks: []port.Tick{{Symbol: sym, LastPrice: px}}}, nil
}

// TradeFeed adapts the futures trade stream to the stream worker's contract.
// The stream sends no subscribe ack; the first trade confirms the channel.
type TradeFeed struct{}

func NewTradeFeed() TradeFeed { return TradeFeed{} }

func (TradeFeed) SubscribeRequest(symbols []string) any {
	return NewJoinReq(symbols)
}

func (TradeFeed) ParseFrame(b []byte) (port.TickerFrame, error) {
	return ParseTradeFrame(b)
}

func (TradeFeed) CoinCode(symbol string) string {
	return CoinCode(symbol)
}

var _ port.TickerFeed = TradeFeed{}
