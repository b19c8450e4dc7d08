package model

// Hash field names shared by every writer and reader of the field store.
// Price fields and funding fields merge into the same instrument key, so a
// funding write must never clobber a price field and vice versa.
const (
	FieldLastPrice            = "last_price"
	FieldPriceTimestamp       = "price_timestamp"
	FieldSourceSymbol         = "source_symbol"
	FieldCurrentFundingRate   = "current_funding_rate"
	FieldEstimatedFundingRate = "estimated_funding_rate"
	FieldNextFundingTime      = "next_funding_time"
	FieldFundingTimestamp     = "funding_timestamp"
)

// Key builds the store key for one instrument from one source,
// e.g. Key("bybit_spot", "ETH") -> "bybit_spot:ETH".
func Key(source, coin string) string {
	return source + ":" + coin
}
