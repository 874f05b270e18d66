package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/indicators"
	"autotrader/internal/signal"
)

// SymbolBacktest summarizes a signal replay over one symbol's history.
type SymbolBacktest struct {
	Symbol      string
	Bars        int
	BuySignals  int
	SellSignals int
	PriceStart  float64
	PriceEnd    float64
	ChangePct   float64
}

// Backtest replays the aggregation over every prefix of each symbol's bar
// history and counts the signals it would have produced. Read-only: no guard,
// no orders. Symbols without data are skipped with a warning.
func Backtest(symbols []string, data BarSource, cfg *config.Settings, days int, log zerolog.Logger) ([]SymbolBacktest, error) {
	bars, err := data.Bars(symbols, cfg.Data.Timeframe, days)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}

	policy := signal.Policy{Mode: signal.Mode(cfg.Signal.Mode), MinAgree: cfg.Signal.MinAgree}
	results := make([]SymbolBacktest, 0, len(symbols))
	for _, sym := range symbols {
		series := bars[sym]
		if len(series) == 0 {
			log.Warn().Str("symbol", sym).Msg("no bar data, skipping")
			continue
		}

		res := SymbolBacktest{Symbol: sym, Bars: len(series)}
		for i := range series {
			votes := indicators.Evaluate(series[:i+1], cfg.Indicators)
			d := signal.Aggregate(sym, votes, policy)
			switch d.Action {
			case signal.Buy:
				res.BuySignals++
			case signal.Sell:
				res.SellSignals++
			}
		}

		res.PriceStart = series[0].Close
		res.PriceEnd = series[len(series)-1].Close
		if res.PriceStart != 0 {
			res.ChangePct = (res.PriceEnd - res.PriceStart) / res.PriceStart * 100
		}
		results = append(results, res)
	}
	return results, nil
}
