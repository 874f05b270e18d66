// Package signal aggregates per-indicator votes into a single trade decision.
package signal

// Vote is the discrete opinion a single indicator holds about the latest bar.
type Vote string

const (
	VoteNone Vote = "none"
	VoteBuy  Vote = "buy"
	VoteSell Vote = "sell"
)

// Action is the aggregated decision across all enabled indicators.
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
	Hold Action = "hold"
)

// Mode selects how indicator votes are combined.
type Mode string

const (
	ModeUnanimous Mode = "unanimous"
	ModeMajority  Mode = "majority"
	ModeAny       Mode = "any"
)

// Policy configures vote aggregation. MinAgree is only consulted in
// majority mode.
type Policy struct {
	Mode     Mode
	MinAgree int
}

// Decision is the per-symbol result of one aggregation pass. Strength is the
// fraction of enabled indicators agreeing with the winning side, in [0,1].
type Decision struct {
	Symbol   string
	Action   Action
	Strength float64
	Votes    map[string]Vote
}

// Aggregate combines the latest-bar votes of every enabled indicator into one
// decision. Abstaining indicators (VoteNone) count toward the total but vote
// for neither side. Pure function; always returns a decision.
func Aggregate(symbol string, votes map[string]Vote, p Policy) Decision {
	total := len(votes)
	if total == 0 {
		return Decision{Symbol: symbol, Action: Hold, Votes: votes}
	}

	buyCount, sellCount := 0, 0
	for _, v := range votes {
		switch v {
		case VoteBuy:
			buyCount++
		case VoteSell:
			sellCount++
		}
	}

	action := Hold
	switch p.Mode {
	case ModeUnanimous:
		if buyCount == total {
			action = Buy
		} else if sellCount == total {
			action = Sell
		}
	case ModeMajority:
		if buyCount >= p.MinAgree && buyCount > sellCount {
			action = Buy
		} else if sellCount >= p.MinAgree && sellCount > buyCount {
			action = Sell
		}
	case ModeAny:
		// Any disagreement holds, even when one side is outnumbered.
		if buyCount > 0 && sellCount == 0 {
			action = Buy
		} else if sellCount > 0 && buyCount == 0 {
			action = Sell
		}
	}

	strength := float64(max(buyCount, sellCount)) / float64(total)

	return Decision{
		Symbol:   symbol,
		Action:   action,
		Strength: strength,
		Votes:    votes,
	}
}
