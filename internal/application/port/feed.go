package port

// TickerFeed adapts one exchange's ticker stream protocol for the stream
// worker: the subscribe payload, the frame decoding and the symbol mapping.
type TickerFeed interface {
	// SubscribeRequest is the payload written once after dialing.
	SubscribeRequest(symbols []string) any

	// ParseFrame decodes one inbound frame. A malformed frame is an error;
	// an intact frame of unknown shape is an empty TickerFrame, not an error.
	ParseFrame(b []byte) (TickerFrame, error)

	// CoinCode maps an exchange symbol to the stored instrument code.
	CoinCode(symbol string) string
}

// TickerFrame is the normalized form of one inbound frame. Both members
// empty means the frame was intact but carried nothing of interest.
type TickerFrame struct {
	Ack   *SubscribeResult // non-nil when the frame answers the subscribe
	Ticks []Tick
}

// SubscribeResult is the exchange's verdict on the subscribe request, for
// feeds that send one.
type SubscribeResult struct {
	OK     bool
	Detail string
}

// Tick is one instrument's last traded price.
type Tick struct {
	Symbol    string
	LastPrice string
}
