package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
	"github.com/finbot-ai/finbot/finbot/market"
)

// ReplyKind tells the render layer how to display a reply. The producer
// decides; nothing downstream sniffs string prefixes.
type ReplyKind string

const (
	ReplyPlain   ReplyKind = "plain"
	ReplyTabular ReplyKind = "tabular"
)

// Reply is the outcome of one routed turn.
type Reply struct {
	Text string
	Kind ReplyKind
}

// TickerNotFoundReply is returned by the keyword branches when no ticker
// token is present. No gateway call is made in that case.
const TickerNotFoundReply = "I could not find a ticker symbol in your question. Please include one, for example AAPL or TSLA."

// Handler answers queries that match no keyword branch. Exactly one
// implementation is active per deployment: the guideline retrieval chain or
// the tool-calling loop.
type Handler interface {
	Handle(ctx context.Context, sessionID, query string, mem *Memory) (reply string, intermediate []harnessports.PromptMessage)
}

// tickerPattern matches the first 2-5 letter uppercase token. Capitalized
// common words like "OK" also match; that is an accepted limitation of the
// keyword heuristic.
var tickerPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// Router classifies each query and dispatches it. Keyword branches are
// checked in a fixed order with first match winning: price, news, history,
// then the configured fallback handler.
type Router struct {
	gateway   market.Gateway
	fallback  Handler
	newsLimit int
	logger    zerolog.Logger
}

func NewRouter(gateway market.Gateway, fallback Handler, newsLimit int, logger zerolog.Logger) *Router {
	if newsLimit < 1 {
		newsLimit = 8
	}
	return &Router{
		gateway:   gateway,
		fallback:  fallback,
		newsLimit: newsLimit,
		logger:    logger.With().Str("component", "router").Logger(),
	}
}

// Route answers one query. It never touches the session memory; the caller
// appends the turn. Intermediate messages are only produced by the tool-loop
// fallback.
func (r *Router) Route(ctx context.Context, sessionID, query string, mem *Memory) (Reply, []harnessports.PromptMessage) {
	lower := strings.ToLower(query)

	switch {
	case strings.Contains(lower, "price"):
		return r.priceBranch(ctx, query), nil
	case strings.Contains(lower, "news"):
		return r.newsBranch(ctx, query), nil
	case strings.Contains(lower, "history"):
		return r.historyBranch(ctx, query), nil
	}

	reply, intermediate := r.fallback.Handle(ctx, sessionID, query, mem)
	return Reply{Text: reply, Kind: ReplyPlain}, intermediate
}

// ExtractTicker returns the first ticker-shaped token in the query, or false
// when none is present.
func ExtractTicker(query string) (string, bool) {
	ticker := tickerPattern.FindString(query)
	return ticker, ticker != ""
}

func (r *Router) priceBranch(ctx context.Context, query string) Reply {
	ticker, ok := ExtractTicker(query)
	if !ok {
		return Reply{Text: TickerNotFoundReply, Kind: ReplyPlain}
	}

	quote, err := r.gateway.Quote(ctx, ticker)
	if err != nil {
		r.logger.Warn().Err(err).Str("ticker", ticker).Msg("quote lookup failed")
		return Reply{Text: fetchFailureReply(ticker), Kind: ReplyPlain}
	}

	text := fmt.Sprintf(
		"Here is the summary for %s:\n"+
			"Previous Close: %.2f\n"+
			"Market Cap: %.0f\n"+
			"52 Week Low: %.2f\n"+
			"52 Week High: %.2f\n"+
			"Regular Market Price: %.2f",
		quote.Symbol, quote.PreviousClose, quote.MarketCap,
		quote.FiftyTwoWeekLow, quote.FiftyTwoWeekHigh, quote.RegularMarketPrice,
	)
	return Reply{Text: text, Kind: ReplyPlain}
}

func (r *Router) newsBranch(ctx context.Context, query string) Reply {
	ticker, ok := ExtractTicker(query)
	if !ok {
		return Reply{Text: TickerNotFoundReply, Kind: ReplyPlain}
	}

	headlines, err := r.gateway.News(ctx, ticker, r.newsLimit)
	if err != nil {
		r.logger.Warn().Err(err).Str("ticker", ticker).Msg("news lookup failed")
		return Reply{Text: fetchFailureReply(ticker), Kind: ReplyPlain}
	}
	if len(headlines) == 0 {
		return Reply{Text: "No news found.", Kind: ReplyPlain}
	}

	items := make([]string, len(headlines))
	for i, h := range headlines {
		items[i] = h.Title + "\n" + h.Link
	}
	return Reply{Text: strings.Join(items, "\n\n"), Kind: ReplyPlain}
}

func (r *Router) historyBranch(ctx context.Context, query string) Reply {
	ticker, ok := ExtractTicker(query)
	if !ok {
		return Reply{Text: TickerNotFoundReply, Kind: ReplyPlain}
	}

	candles, err := r.gateway.History(ctx, ticker, market.RangeOneMonth)
	if err != nil || len(candles) == 0 {
		if err != nil {
			r.logger.Warn().Err(err).Str("ticker", ticker).Msg("history lookup failed")
		}
		return Reply{Text: fetchFailureReply(ticker), Kind: ReplyPlain}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Here is the 1 month price history for %s:\n", ticker)
	sb.WriteString("| Date | Open | High | Low | Close | Volume |\n")
	sb.WriteString("| --- | --- | --- | --- | --- | --- |\n")
	for _, c := range candles {
		fmt.Fprintf(&sb, "| %s | %.2f | %.2f | %.2f | %.2f | %d |\n",
			c.Date.Format("2006-01-02"), c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	return Reply{Text: strings.TrimRight(sb.String(), "\n"), Kind: ReplyTabular}
}

func fetchFailureReply(ticker string) string {
	return fmt.Sprintf("Sorry, I could not fetch market data for %s right now. Please try again later.", ticker)
}
