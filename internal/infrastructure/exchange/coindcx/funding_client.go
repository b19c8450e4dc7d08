package coindcx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FundingEntry is one symbol's funding data, normalized across the two
// response shapes the CoinDCX endpoints serve.
type FundingEntry struct {
	Symbol          string // exchange symbol, e.g. "B-BTC_USDT"
	FundingRate     string // current / last-settled rate
	EstimatedRate   string // predicted next rate, empty on the flat shape
	NextFundingTime string // empty on the nested shape
}

// FundingClient polls the CoinDCX derivatives funding-rate endpoint.
type FundingClient struct {
	url    string
	client *http.Client
}

func NewFundingClient(url string, timeout time.Duration) *FundingClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FundingClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch issues one GET and returns the parsed batch. Transport failures and
// non-200 statuses are returned to the caller; retry policy lives in the
// polling worker.
func (c *FundingClient) Fetch(ctx context.Context) ([]FundingEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coindcx api status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return ParseFundingResponse(body)
}

// flatEntry is the /derivatives/get_funding_rate array element.
type flatEntry struct {
	Symbol          string          `json:"symbol"`
	FundingRate     json.RawMessage `json:"funding_rate"`
	NextFundingTime json.RawMessage `json:"next_funding_time"`
}

// nestedDoc is the /market_data/v3/current_prices/futures/rt document.
type nestedDoc struct {
	Prices map[string]struct {
		FR  json.RawMessage `json:"fr"`
		EFR json.RawMessage `json:"efr"`
	} `json:"prices"`
}

// ParseFundingResponse accepts either response shape the endpoint family
// serves: a flat array of {symbol, funding_rate, next_funding_time} or a
// nested {prices:{SYMBOL:{fr,efr}}} document. The shape is detected from the
// first JSON byte.
func ParseFundingResponse(b []byte) ([]FundingEntry, error) {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("empty funding response")
	}

	switch trimmed[0] {
	case '[':
		var arr []flatEntry
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return nil, fmt.Errorf("flat funding response: %w", err)
		}
		out := make([]FundingEntry, 0, len(arr))
		for _, e := range arr {
			sym := strings.ToUpper(strings.TrimSpace(e.Symbol))
			if sym == "" {
				continue
			}
			out = append(out, FundingEntry{
				Symbol:          sym,
				FundingRate:     rawScalar(e.FundingRate),
				NextFundingTime: rawScalar(e.NextFundingTime),
			})
		}
		return out, nil

	case '{':
		var doc nestedDoc
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			return nil, fmt.Errorf("nested funding response: %w", err)
		}
		if doc.Prices == nil {
			return nil, fmt.Errorf("funding response missing prices object")
		}
		out := make([]FundingEntry, 0, len(doc.Prices))
		for sym, rates := range doc.Prices {
			sym = strings.ToUpper(strings.TrimSpace(sym))
			if sym == "" {
				continue
			}
			out = append(out, FundingEntry{
				Symbol:        sym,
				FundingRate:   rawScalar(rates.FR),
				EstimatedRate: rawScalar(rates.EFR),
			})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unexpected funding response shape: %c", trimmed[0])
	}
}

// rawScalar renders a JSON scalar (number or string) as its plain string
// form. The endpoints are inconsistent about quoting rates.
func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err == nil {
			return unquoted
		}
	}
	return s
}
