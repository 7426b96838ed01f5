package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/finbot-ai/finbot/finbot/config"
)

// YahooGateway implements Gateway against a Yahoo-Finance-style JSON API.
// The base URL is configurable so tests can point it at a local server.
type YahooGateway struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewYahooGateway creates a gateway from config.
func NewYahooGateway(cfg config.MarketConfig, logger zerolog.Logger) *YahooGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &YahooGateway{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
			MarketCap                  float64 `json:"marketCap"`
			FiftyTwoWeekLow            float64 `json:"fiftyTwoWeekLow"`
			FiftyTwoWeekHigh           float64 `json:"fiftyTwoWeekHigh"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteResponse"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []float64 `json:"open"`
			High   []float64 `json:"high"`
			Low    []float64 `json:"low"`
			Close  []float64 `json:"close"`
			Volume []int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
	Events struct {
		Dividends map[string]struct {
			Amount float64 `json:"amount"`
			Date   int64   `json:"date"`
		} `json:"dividends"`
		Splits map[string]struct {
			Numerator   int    `json:"numerator"`
			Denominator int    `json:"denominator"`
			SplitRatio  string `json:"splitRatio"`
			Date        int64  `json:"date"`
		} `json:"splits"`
	} `json:"events"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type searchResponse struct {
	News []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"news"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Quote fetches a price snapshot for symbol.
func (g *YahooGateway) Quote(ctx context.Context, symbol string) (*Quote, error) {
	endpoint := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", g.baseURL, url.QueryEscape(symbol))

	var resp quoteResponse
	if err := g.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if resp.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("quote %s: provider error %s: %s", symbol, resp.QuoteResponse.Error.Code, resp.QuoteResponse.Error.Description)
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("quote %s: symbol not found", symbol)
	}

	r := resp.QuoteResponse.Result[0]
	return &Quote{
		Symbol:             r.Symbol,
		PreviousClose:      r.RegularMarketPreviousClose,
		MarketCap:          r.MarketCap,
		FiftyTwoWeekLow:    r.FiftyTwoWeekLow,
		FiftyTwoWeekHigh:   r.FiftyTwoWeekHigh,
		RegularMarketPrice: r.RegularMarketPrice,
	}, nil
}

// History fetches daily OHLCV bars for symbol over rng (e.g. "1mo", "1y").
func (g *YahooGateway) History(ctx context.Context, symbol, rng string) ([]Candle, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d", g.baseURL, url.PathEscape(symbol), url.QueryEscape(rng))

	result, err := g.chart(ctx, endpoint, symbol)
	if err != nil {
		return nil, err
	}

	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("history %s: no quote indicators in payload", symbol)
	}
	q := result.Indicators.Quote[0]

	candles := make([]Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(q.Close) {
			break
		}
		candles = append(candles, Candle{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   at(q.Open, i),
			High:   at(q.High, i),
			Low:    at(q.Low, i),
			Close:  at(q.Close, i),
			Volume: atInt(q.Volume, i),
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("history %s: empty series", symbol)
	}
	return candles, nil
}

// News fetches up to limit recent headlines mentioning symbol.
func (g *YahooGateway) News(ctx context.Context, symbol string, limit int) ([]NewsHeadline, error) {
	if limit <= 0 {
		limit = 8
	}
	endpoint := fmt.Sprintf("%s/v1/finance/search?q=%s&newsCount=%d", g.baseURL, url.QueryEscape(symbol), limit)

	var resp searchResponse
	if err := g.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("news %s: %w", symbol, err)
	}

	headlines := make([]NewsHeadline, 0, len(resp.News))
	for _, n := range resp.News {
		if n.Title == "" {
			continue
		}
		headlines = append(headlines, NewsHeadline{Title: n.Title, Link: n.Link})
		if len(headlines) >= limit {
			break
		}
	}
	return headlines, nil
}

// DividendsAndSplits fetches both event series over the trailing five years.
func (g *YahooGateway) DividendsAndSplits(ctx context.Context, symbol string) (*DividendsAndSplits, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=5y&interval=1d&events=div%%7Csplit", g.baseURL, url.PathEscape(symbol))

	result, err := g.chart(ctx, endpoint, symbol)
	if err != nil {
		return nil, err
	}

	out := &DividendsAndSplits{}
	for _, d := range result.Events.Dividends {
		out.Dividends = append(out.Dividends, DividendPayment{
			Date:   time.Unix(d.Date, 0).UTC(),
			Amount: d.Amount,
		})
	}
	for _, s := range result.Events.Splits {
		out.Splits = append(out.Splits, SplitEvent{
			Date:        time.Unix(s.Date, 0).UTC(),
			Numerator:   s.Numerator,
			Denominator: s.Denominator,
			Ratio:       s.SplitRatio,
		})
	}

	// Event maps are keyed by timestamp string; order them chronologically.
	sort.Slice(out.Dividends, func(i, j int) bool { return out.Dividends[i].Date.Before(out.Dividends[j].Date) })
	sort.Slice(out.Splits, func(i, j int) bool { return out.Splits[i].Date.Before(out.Splits[j].Date) })

	return out, nil
}

func (g *YahooGateway) chart(ctx context.Context, endpoint, symbol string) (*chartResult, error) {
	var resp chartResponse
	if err := g.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: provider error %s: %s", symbol, resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart %s: symbol not found", symbol)
	}
	return &resp.Chart.Result[0], nil
}

func (g *YahooGateway) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "finbot/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		g.logger.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("market data request failed")
		return fmt.Errorf("api error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func atInt(vals []int64, i int) int64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Gateway = (*YahooGateway)(nil)
