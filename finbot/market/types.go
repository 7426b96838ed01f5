package market

import "time"

// Quote is a point-in-time price snapshot for one symbol.
// Fresh per call, no identity.
type Quote struct {
	Symbol             string  `json:"symbol"`
	PreviousClose      float64 `json:"previous_close"`
	MarketCap          float64 `json:"market_cap"`
	FiftyTwoWeekLow    float64 `json:"fifty_two_week_low"`
	FiftyTwoWeekHigh   float64 `json:"fifty_two_week_high"`
	RegularMarketPrice float64 `json:"regular_market_price"`
}

// Candle is one daily OHLCV bar.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// NewsHeadline is a single headline with its source link.
type NewsHeadline struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// DividendPayment is one historical dividend event.
type DividendPayment struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// SplitEvent is one historical share split.
type SplitEvent struct {
	Date        time.Time `json:"date"`
	Numerator   int       `json:"numerator"`
	Denominator int       `json:"denominator"`
	Ratio       string    `json:"ratio"`
}

// DividendsAndSplits bundles both event series for one symbol.
type DividendsAndSplits struct {
	Dividends []DividendPayment `json:"dividends"`
	Splits    []SplitEvent      `json:"splits"`
}

// VolatilityReport carries an annualized volatility figure alongside the
// last close it was computed with.
type VolatilityReport struct {
	Symbol     string  `json:"symbol"`
	LastClose  float64 `json:"last_close"`
	Annualized float64 `json:"annualized"`
}
