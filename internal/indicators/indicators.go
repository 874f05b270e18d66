// Package indicators computes technical indicator votes over bar history.
// Each enabled indicator contributes one vote for the latest bar; an
// indicator with insufficient history abstains with VoteNone.
package indicators

import (
	"math"

	"autotrader/internal/config"
	"autotrader/internal/md"
	"autotrader/internal/signal"
)

// Evaluate returns one vote per enabled indicator, keyed by indicator name.
func Evaluate(bars []md.Bar, cfg config.Indicators) map[string]signal.Vote {
	votes := make(map[string]signal.Vote, 4)
	if len(bars) == 0 {
		return votes
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	if cfg.RSI.Enabled {
		votes["rsi"] = rsiVote(closes, cfg.RSI)
	}
	if cfg.SMACross.Enabled {
		votes["sma_cross"] = smaCrossVote(closes, cfg.SMACross)
	}
	if cfg.MACD.Enabled {
		votes["macd"] = macdVote(closes, cfg.MACD)
	}
	if cfg.Bollinger.Enabled {
		votes["bollinger"] = bollingerVote(closes, cfg.Bollinger)
	}
	return votes
}

func rsiVote(closes []float64, cfg config.RSI) signal.Vote {
	value := rsi(closes, cfg.Period)
	switch {
	case math.IsNaN(value):
		return signal.VoteNone
	case value < cfg.Oversold:
		return signal.VoteBuy
	case value > cfg.Overbought:
		return signal.VoteSell
	default:
		return signal.VoteNone
	}
}

func smaCrossVote(closes []float64, cfg config.SMACross) signal.Vote {
	// A cross needs both windows on the latest bar and on the one before it.
	if len(closes) < cfg.LongPeriod+1 {
		return signal.VoteNone
	}
	short := sma(closes, cfg.ShortPeriod)
	long := sma(closes, cfg.LongPeriod)
	prev := closes[:len(closes)-1]
	prevShort := sma(prev, cfg.ShortPeriod)
	prevLong := sma(prev, cfg.LongPeriod)

	switch {
	case short > long && prevShort <= prevLong:
		return signal.VoteBuy
	case short < long && prevShort >= prevLong:
		return signal.VoteSell
	default:
		return signal.VoteNone
	}
}

func macdVote(closes []float64, cfg config.MACD) signal.Vote {
	fast := emaSeries(closes, cfg.FastPeriod)
	slow := emaSeries(closes, cfg.SlowPeriod)
	if fast == nil || slow == nil {
		return signal.VoteNone
	}

	// The MACD line is defined from the first index where the slow EMA is.
	line := make([]float64, 0, len(closes)-cfg.SlowPeriod+1)
	for i := cfg.SlowPeriod - 1; i < len(closes); i++ {
		line = append(line, fast[i]-slow[i])
	}

	sig := emaSeries(line, cfg.SignalPeriod)
	if sig == nil || len(line) < cfg.SignalPeriod+1 {
		return signal.VoteNone
	}

	last := len(line) - 1
	switch {
	case line[last] > sig[last] && line[last-1] <= sig[last-1]:
		return signal.VoteBuy
	case line[last] < sig[last] && line[last-1] >= sig[last-1]:
		return signal.VoteSell
	default:
		return signal.VoteNone
	}
}

func bollingerVote(closes []float64, cfg config.Bollinger) signal.Vote {
	mid := sma(closes, cfg.Period)
	if math.IsNaN(mid) {
		return signal.VoteNone
	}
	sd := stdDev(closes, cfg.Period)
	upper := mid + cfg.StdDev*sd
	lower := mid - cfg.StdDev*sd
	latest := closes[len(closes)-1]

	switch {
	case latest <= lower:
		return signal.VoteBuy
	case latest >= upper:
		return signal.VoteSell
	default:
		return signal.VoteNone
	}
}

func sma(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

func stdDev(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n {
		return math.NaN()
	}
	mean := sma(closes, n)
	s := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		d := closes[i] - mean
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func rsi(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

// emaSeries returns the EMA at every index, NaN before the window fills.
// The first defined value (index n-1) is seeded with the simple average.
func emaSeries(values []float64, n int) []float64 {
	if n <= 0 || len(values) < n {
		return nil
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += values[i]
		out[i] = math.NaN()
	}
	prev := sum / float64(n)
	out[n-1] = prev
	k := 2.0 / (float64(n) + 1.0)
	for i := n; i < len(values); i++ {
		prev = (values[i]-prev)*k + prev
		out[i] = prev
	}
	return out
}
