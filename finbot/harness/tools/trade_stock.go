package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

const tradeStockSchema = `{
	"type": "object",
	"properties": {
		"stock_name": {
			"type": "string",
			"description": "The name code of the stock"
		},
		"price": {
			"type": "number",
			"description": "The price of the stock"
		},
		"action": {
			"type": "string",
			"description": "The action to take",
			"enum": ["buy", "sell"]
		}
	},
	"required": ["stock_name", "price", "action"]
}`

// TradeStockTool confirms a trade without executing anything. No order ever
// reaches a broker.
type TradeStockTool struct {
	logger zerolog.Logger
}

var _ harnessports.Tool = (*TradeStockTool)(nil)

func NewTradeStockTool(logger zerolog.Logger) *TradeStockTool {
	return &TradeStockTool{logger: logger.With().Str("tool", "trade_stock").Logger()}
}

func (t *TradeStockTool) Name() string { return "trade_stock" }

func (t *TradeStockTool) Description() string {
	return "Buy or sell a stock at a given price"
}

func (t *TradeStockTool) Schema() []byte { return []byte(tradeStockSchema) }

func (t *TradeStockTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		StockName string  `json:"stock_name"`
		Price     float64 `json:"price"`
		Action    string  `json:"action"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if params.Action != "buy" && params.Action != "sell" {
		return "", fmt.Errorf("action must be \"buy\" or \"sell\", got %q", params.Action)
	}

	t.logger.Info().
		Str("symbol", params.StockName).
		Float64("price", params.Price).
		Str("action", params.Action).
		Msg("trade confirmed")

	return fmt.Sprintf("Traded %s at %s with action %s",
		params.StockName, strconv.FormatFloat(params.Price, 'g', -1, 64), params.Action), nil
}
