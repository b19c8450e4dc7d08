package bybit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SubReq is the Bybit v5 subscription request.
type SubReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// NewSubReq builds one batch subscribe for all symbols.
func NewSubReq(symbols []string) SubReq {
	args := make([]string, 0, len(symbols))
	for _, s := range symbols {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		args = append(args, "tickers."+u)
	}
	return SubReq{Op: "subscribe", Args: args}
}

// Message is the decoded form of one inbound frame. Exactly one concrete
// type comes back from ParseMessage; nothing dict-shaped crosses this
// boundary.
type Message interface{ kind() string }

// SubscribeAck is the exchange's response to a subscribe request.
type SubscribeAck struct {
	Success bool
	RetMsg  string
}

// TickerBatch carries one or more ticker updates from a data frame.
type TickerBatch struct {
	Topic   string
	Tickers []TickerUpdate
}

// TickerUpdate is a single symbol's last traded price.
type TickerUpdate struct {
	Symbol    string
	LastPrice string
}

// Unrecognized is any frame that is neither an ack nor ticker data.
type Unrecognized struct{}

func (SubscribeAck) kind() string { return "subscribe_ack" }
func (TickerBatch) kind() string  { return "ticker_batch" }
func (Unrecognized) kind() string { return "unrecognized" }

type tickerItem struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

// dataList accepts both the object and array forms Bybit uses for "data".
type dataList []tickerItem

func (d *dataList) UnmarshalJSON(b []byte) error {
	b = bytesTrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*d = nil
		return nil
	}
	switch b[0] {
	case '[':
		var arr []tickerItem
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*d = arr
		return nil
	case '{':
		var one tickerItem
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*d = dataList{one}
		return nil
	default:
		return fmt.Errorf("unexpected data json: %s", string(b))
	}
}

type rawMsg struct {
	Topic string   `json:"topic"`
	Ts    int64    `json:"ts"`
	Data  dataList `json:"data"`

	Success *bool  `json:"success,omitempty"`
	RetMsg  string `json:"ret_msg,omitempty"`
	Op      string `json:"op,omitempty"`
}

// ParseMessage decodes one frame into its tagged form. A malformed frame is
// an error; an intact frame of unknown shape is Unrecognized, not an error.
func ParseMessage(b []byte) (Message, error) {
	var msg rawMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, err
	}

	if msg.Success != nil {
		return SubscribeAck{Success: *msg.Success, RetMsg: msg.RetMsg}, nil
	}

	if strings.HasPrefix(msg.Topic, "tickers.") && len(msg.Data) > 0 {
		batch := TickerBatch{Topic: msg.Topic}
		for _, d := range msg.Data {
			sym := strings.ToUpper(strings.TrimSpace(d.Symbol))
			px := strings.TrimSpace(d.LastPrice)
			if sym == "" || px == "" {
				continue
			}
			batch.Tickers = append(batch.Tickers, TickerUpdate{Symbol: sym, LastPrice: px})
		}
		if len(batch.Tickers) > 0 {
			return batch, nil
		}
	}

	return Unrecognized{}, nil
}

func bytesTrimSpace(b []byte) []byte {
	i := 0
	j := len(b) - 1
	for i <= j && (b[i] == ' ' || b[i] == '\n' || b[i] == '\r' || b[i] == '\t') {
		i++
	}
	for j >= i && (b[j] == ' ' || b[j] == '\n' || b[j] == '\r' || b[j] == '\t') {
		j--
	}
	if i > j {
		return []byte{}
	}
	return b[i : j+1]
}
