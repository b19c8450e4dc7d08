package coindcx

import "strings"

var marginPrefixes = []string{"B-", "F-", "BM-"}

// CoinCode strips the margin prefix and quote pair from a CoinDCX futures
// symbol: "B-BTC_USDT" -> "BTC", "BM-ETH_USD" -> "ETH".
func CoinCode(symbol string) string {
	u := strings.ToUpper(strings.TrimSpace(symbol))
	for _, p := range marginPrefixes {
		if strings.HasPrefix(u, p) {
			u = u[len(p):]
			break
		}
	}
	if i := strings.IndexByte(u, '_'); i > 0 {
		u = u[:i]
	}
	return u
}
