package bybit

import "strings"

var quoteSuffixes = []string{"USDT", "USDC", "USD"}

// CoinCode strips the quote suffix from a Bybit symbol: "ETHUSDT" -> "ETH".
// Symbols without a known quote suffix come back unchanged.
func CoinCode(symbol string) string {
	u := strings.ToUpper(strings.TrimSpace(symbol))
	for _, q := range quoteSuffixes {
		if len(u) > len(q) && strings.HasSuffix(u, q) {
			return u[:len(u)-len(q)]
		}
	}
	return u
}
