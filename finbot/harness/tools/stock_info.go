// Package tools implements the functions exposed to the model: a market
// lookup and a trade stub. Tool outputs are plain sentences the model can
// phrase into a reply.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
	"github.com/finbot-ai/finbot/finbot/market"
)

const stockInfoSchema = `{
	"type": "object",
	"properties": {
		"stock_name": {
			"type": "string",
			"description": "The name code of the stock"
		},
		"date": {
			"type": "string",
			"description": "The date",
			"default": "today"
		}
	},
	"required": ["stock_name"]
}`

// stockNotFoundReply goes back to the model as the tool result when market
// data cannot be fetched. Lookup failures never fail the turn.
const stockNotFoundReply = "Stock data not found. Please try again."

// StockInfoTool reports the latest close and annualized volatility of a stock.
type StockInfoTool struct {
	gateway market.Gateway
	logger  zerolog.Logger
}

var _ harnessports.Tool = (*StockInfoTool)(nil)

func NewStockInfoTool(gateway market.Gateway, logger zerolog.Logger) *StockInfoTool {
	return &StockInfoTool{
		gateway: gateway,
		logger:  logger.With().Str("tool", "get_stock_info").Logger(),
	}
}

func (t *StockInfoTool) Name() string { return "get_stock_info" }

func (t *StockInfoTool) Description() string {
	return "Get the current stock price and volatility given the date"
}

func (t *StockInfoTool) Schema() []byte { return []byte(stockInfoSchema) }

// Invoke fetches a year of daily candles and derives the last close and
// annualized volatility. The date argument is accepted for compatibility but
// only the latest data is served.
func (t *StockInfoTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		StockName string `json:"stock_name"`
		Date      string `json:"date"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	candles, err := t.gateway.History(ctx, params.StockName, market.RangeOneYear)
	if err != nil {
		t.logger.Warn().Err(err).Str("symbol", params.StockName).Msg("history fetch failed")
		return stockNotFoundReply, nil
	}

	report, err := market.VolatilityFromCandles(params.StockName, candles)
	if err != nil {
		t.logger.Warn().Err(err).Str("symbol", params.StockName).Msg("volatility computation failed")
		return stockNotFoundReply, nil
	}

	return fmt.Sprintf("The stock price is: %s and volatility is: %s .",
		strconv.FormatFloat(report.LastClose, 'g', -1, 64),
		strconv.FormatFloat(report.Annualized, 'g', -1, 64)), nil
}
