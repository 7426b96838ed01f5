package market

import "context"

// Common history ranges accepted by the provider.
const (
	RangeOneMonth = "1mo"
	RangeOneYear  = "1y"
)

// Gateway wraps a market-data provider. Implementations are pure query
// surfaces: no state beyond the HTTP client, fresh values per call. Errors
// are returned as-is; callers are responsible for converting them into
// user-safe replies.
type Gateway interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
	History(ctx context.Context, symbol, rng string) ([]Candle, error)
	News(ctx context.Context, symbol string, limit int) ([]NewsHeadline, error)
	DividendsAndSplits(ctx context.Context, symbol string) (*DividendsAndSplits, error)
}
