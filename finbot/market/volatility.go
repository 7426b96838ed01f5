package market

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear scales daily volatility to an annual figure.
const tradingDaysPerYear = 252

// AnnualizedVolatility computes the standard deviation of daily log returns
// over the close series, scaled by sqrt(252). The series must hold at least
// three positive closes (two returns).
func AnnualizedVolatility(closes []float64) (float64, error) {
	if len(closes) < 3 {
		return 0, fmt.Errorf("need at least 3 closes to estimate volatility, got %d", len(closes))
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0, fmt.Errorf("not enough valid closes to estimate volatility")
	}

	daily := stat.StdDev(returns, nil)
	return daily * math.Sqrt(tradingDaysPerYear), nil
}

// VolatilityFromCandles is a convenience over AnnualizedVolatility for a
// candle series as returned by Gateway.History.
func VolatilityFromCandles(symbol string, candles []Candle) (*VolatilityReport, error) {
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		if c.Close > 0 {
			closes = append(closes, c.Close)
		}
	}

	annualized, err := AnnualizedVolatility(closes)
	if err != nil {
		return nil, err
	}

	return &VolatilityReport{
		Symbol:     symbol,
		LastClose:  closes[len(closes)-1],
		Annualized: annualized,
	}, nil
}
