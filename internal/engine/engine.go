// Package engine runs one fetch → evaluate → guard → execute pass over an
// account's watchlist and reports what happened.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/guard"
	"autotrader/internal/indicators"
	"autotrader/internal/md"
	"autotrader/internal/metrics"
	"autotrader/internal/signal"
)

// BarSource supplies bar history for a set of symbols in one batched call.
type BarSource interface {
	Bars(symbols []string, timeframe string, lookbackDays int) (map[string][]md.Bar, error)
}

// Executor gates and submits orders for non-hold decisions. Nil executor
// means evaluate-only.
type Executor interface {
	Execute(ctx context.Context, d signal.Decision, refPrice float64) (guard.Outcome, error)
}

type SymbolError struct {
	Symbol string `json:"symbol"`
	Err    string `json:"error"`
}

// CycleResult summarizes one cycle. A failed cycle still reports the
// successful portion of its work.
type CycleResult struct {
	Account          string
	SignalsEvaluated int
	OrdersPlaced     int
	Reports          []SymbolReport
	Errors           []SymbolError
}

type Runner struct {
	account    string
	symbols    []string
	data       BarSource
	exec       Executor
	policy     signal.Policy
	indicators config.Indicators
	dataCfg    config.Data
	reporter   *Reporter
	log        zerolog.Logger
}

func NewRunner(
	account string,
	symbols []string,
	data BarSource,
	exec Executor,
	cfg *config.Settings,
	reporter *Reporter,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		account:    account,
		symbols:    symbols,
		data:       data,
		exec:       exec,
		policy:     signal.Policy{Mode: signal.Mode(cfg.Signal.Mode), MinAgree: cfg.Signal.MinAgree},
		indicators: cfg.Indicators,
		dataCfg:    cfg.Data,
		reporter:   reporter,
		log:        log.With().Str("component", "engine").Str("account", account).Logger(),
	}
}

func (r *Runner) Account() string { return r.account }

// RunCycle fetches bars once, then evaluates every symbol independently.
// Per-symbol failures are recorded and do not abort the remaining symbols.
func (r *Runner) RunCycle(ctx context.Context) CycleResult {
	result := CycleResult{Account: r.account}

	bars, err := r.data.Bars(r.symbols, r.dataCfg.Timeframe, r.dataCfg.LookbackDays)
	if err != nil {
		r.log.Error().Err(err).Msg("bar fetch failed")
		result.Errors = append(result.Errors, SymbolError{Err: err.Error()})
		// A failed cycle is still a cycle.
		metrics.CyclesTotal.WithLabelValues(r.account).Inc()
		return result
	}

	for _, symbol := range r.symbols {
		series := bars[symbol]
		if len(series) == 0 {
			r.log.Warn().Str("symbol", symbol).Msg("no bar data, skipping")
			continue
		}

		report, err := r.evaluateSymbol(ctx, symbol, series)
		result.SignalsEvaluated++
		if err != nil {
			r.log.Error().Err(err).Str("symbol", symbol).Msg("symbol evaluation failed")
			result.Errors = append(result.Errors, SymbolError{Symbol: symbol, Err: err.Error()})
			metrics.SymbolErrorsTotal.WithLabelValues(r.account).Inc()
			continue
		}
		if report.OrderID != "" {
			result.OrdersPlaced++
		}
		result.Reports = append(result.Reports, report)
		if r.reporter != nil {
			r.reporter.Append(report)
		}
	}

	metrics.CyclesTotal.WithLabelValues(r.account).Inc()
	r.log.Info().
		Int("signals", result.SignalsEvaluated).
		Int("orders", result.OrdersPlaced).
		Int("errors", len(result.Errors)).
		Msg("cycle complete")
	return result
}

func (r *Runner) evaluateSymbol(ctx context.Context, symbol string, series []md.Bar) (SymbolReport, error) {
	votes := indicators.Evaluate(series, r.indicators)
	decision := signal.Aggregate(symbol, votes, r.policy)
	metrics.SignalsTotal.WithLabelValues(r.account, string(decision.Action)).Inc()

	r.log.Info().
		Str("symbol", symbol).
		Str("action", string(decision.Action)).
		Float64("strength_pct", decision.Strength*100).
		Interface("votes", decision.Votes).
		Msg("decision")

	report := SymbolReport{
		Timestamp:   time.Now().UTC(),
		Account:     r.account,
		Symbol:      symbol,
		Action:      decision.Action,
		StrengthPct: decision.Strength * 100,
		Votes:       decision.Votes,
	}

	if r.exec == nil || decision.Action == signal.Hold {
		return report, nil
	}

	refPrice := series[len(series)-1].Close
	outcome, err := r.exec.Execute(ctx, decision, refPrice)
	if err != nil {
		return report, err
	}
	if outcome.Rejected() {
		report.Reject = string(outcome.Reject)
		metrics.RejectionsTotal.WithLabelValues(r.account, report.Reject).Inc()
		return report, nil
	}
	if outcome.OrderID != "" {
		report.OrderID = outcome.OrderID
		metrics.OrdersTotal.WithLabelValues(r.account, string(outcome.Intent.Side)).Inc()
	} else if outcome.Intent != nil {
		// Dry run: the guard computed an intent but never submitted it.
		report.DryRunIntent = summarizeIntent(outcome.Intent)
	}
	return report, nil
}
