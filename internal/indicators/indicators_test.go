package indicators

import (
	"testing"
	"time"

	"autotrader/internal/config"
	"autotrader/internal/md"
	"autotrader/internal/signal"
)

func barsFromCloses(closes ...float64) []md.Bar {
	bars := make([]md.Bar, len(closes))
	base := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = md.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func allEnabled() config.Indicators {
	return config.Indicators{
		RSI:       config.RSI{Enabled: true, Period: 14, Overbought: 70, Oversold: 30},
		SMACross:  config.SMACross{Enabled: true, ShortPeriod: 20, LongPeriod: 50},
		MACD:      config.MACD{Enabled: true, FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9},
		Bollinger: config.Bollinger{Enabled: true, Period: 20, StdDev: 2},
	}
}

func TestEvaluateEmptyHistory(t *testing.T) {
	votes := Evaluate(nil, allEnabled())
	if len(votes) != 0 {
		t.Fatalf("expected no votes for empty history, got %v", votes)
	}
}

func TestAllIndicatorsAbstainOnShortHistory(t *testing.T) {
	votes := Evaluate(barsFromCloses(10, 11), allEnabled())
	if len(votes) != 4 {
		t.Fatalf("expected 4 votes, got %d", len(votes))
	}
	for name, v := range votes {
		if v != signal.VoteNone {
			t.Fatalf("expected %s to abstain, got %s", name, v)
		}
	}
}

func TestOnlyEnabledIndicatorsVote(t *testing.T) {
	cfg := config.Indicators{RSI: config.RSI{Enabled: true, Period: 3, Overbought: 70, Oversold: 30}}
	votes := Evaluate(barsFromCloses(10, 9, 8, 7), cfg)
	if len(votes) != 1 {
		t.Fatalf("expected only rsi to vote, got %v", votes)
	}
	if _, ok := votes["rsi"]; !ok {
		t.Fatalf("expected rsi vote, got %v", votes)
	}
}

func TestRSIVotes(t *testing.T) {
	cfg := config.RSI{Enabled: true, Period: 3, Overbought: 70, Oversold: 30}
	if v := rsiVote([]float64{10, 9, 8, 7}, cfg); v != signal.VoteBuy {
		t.Fatalf("expected buy on falling closes, got %s", v)
	}
	if v := rsiVote([]float64{7, 8, 9, 10}, cfg); v != signal.VoteSell {
		t.Fatalf("expected sell on rising closes, got %s", v)
	}
	if v := rsiVote([]float64{10, 9}, cfg); v != signal.VoteNone {
		t.Fatalf("expected abstention on short history, got %s", v)
	}
}

func TestSMACrossVotes(t *testing.T) {
	cfg := config.SMACross{Enabled: true, ShortPeriod: 2, LongPeriod: 3}
	// Short average crosses above long between the last two bars.
	if v := smaCrossVote([]float64{10, 10, 9, 12}, cfg); v != signal.VoteBuy {
		t.Fatalf("expected buy on upward cross, got %s", v)
	}
	// Mirror image crosses below.
	if v := smaCrossVote([]float64{10, 10, 11, 8}, cfg); v != signal.VoteSell {
		t.Fatalf("expected sell on downward cross, got %s", v)
	}
	// No cross while short stays above long.
	if v := smaCrossVote([]float64{9, 10, 11, 12, 13}, cfg); v != signal.VoteNone {
		t.Fatalf("expected no vote without a cross, got %s", v)
	}
	if v := smaCrossVote([]float64{10, 10, 10}, cfg); v != signal.VoteNone {
		t.Fatalf("expected abstention on short history, got %s", v)
	}
}

func TestMACDVotes(t *testing.T) {
	cfg := config.MACD{Enabled: true, FastPeriod: 2, SlowPeriod: 3, SignalPeriod: 2}
	// Dip then sharp recovery: MACD line crosses above its signal on the last bar.
	if v := macdVote([]float64{10, 10, 10, 10, 8, 8, 12}, cfg); v != signal.VoteBuy {
		t.Fatalf("expected buy on macd cross up, got %s", v)
	}
	// Mirror image crosses down.
	if v := macdVote([]float64{10, 10, 10, 10, 12, 12, 8}, cfg); v != signal.VoteSell {
		t.Fatalf("expected sell on macd cross down, got %s", v)
	}
	if v := macdVote([]float64{10, 10}, cfg); v != signal.VoteNone {
		t.Fatalf("expected abstention on short history, got %s", v)
	}
}

func TestBollingerVotes(t *testing.T) {
	cfg := config.Bollinger{Enabled: true, Period: 3, StdDev: 0.5}
	if v := bollingerVote([]float64{12, 12, 12, 0}, cfg); v != signal.VoteBuy {
		t.Fatalf("expected buy at lower band, got %s", v)
	}
	if v := bollingerVote([]float64{12, 12, 12, 24}, cfg); v != signal.VoteSell {
		t.Fatalf("expected sell at upper band, got %s", v)
	}
	wide := config.Bollinger{Enabled: true, Period: 3, StdDev: 2}
	if v := bollingerVote([]float64{10, 10, 14}, wide); v != signal.VoteNone {
		t.Fatalf("expected no vote inside bands, got %s", v)
	}
	if v := bollingerVote([]float64{10, 10}, cfg); v != signal.VoteNone {
		t.Fatalf("expected abstention on short history, got %s", v)
	}
}
