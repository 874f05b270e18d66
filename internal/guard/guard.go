// Package guard turns a non-hold decision into at most one order, applying
// position limits, shorting policy, notional sizing, and extended-hours
// constraints. Rejections are expected control-flow outcomes, not errors.
package guard

import (
	"context"
	"fmt"
	"math"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autotrader/internal/broker"
	"autotrader/internal/config"
	"autotrader/internal/signal"
)

type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectAlreadyHeld      RejectReason = "already_held"
	RejectPositionLimit    RejectReason = "position_limit"
	RejectShortingDisabled RejectReason = "shorting_disabled"
	RejectNoPrice          RejectReason = "no_price_for_limit"
)

// Outcome reports what the guard did with a decision: a computed intent with
// an order ID after submission, an intent alone in dry-run mode, or a
// rejection reason. Callers branch on the outcome, never on a caught error.
type Outcome struct {
	Intent  *broker.OrderIntent
	OrderID string
	Reject  RejectReason
}

func (o Outcome) Rejected() bool { return o.Reject != RejectNone }

// Broker is the slice of the brokerage the guard needs. Account state is read
// fresh on every invocation so sizing never uses capital a prior order in the
// same cycle already committed.
type Broker interface {
	Account(ctx context.Context) (broker.Account, error)
	Positions(ctx context.Context) ([]broker.Position, error)
	Position(ctx context.Context, symbol string) (*broker.Position, error)
	SubmitOrder(ctx context.Context, intent broker.OrderIntent) (broker.Order, error)
}

type Guard struct {
	broker Broker
	policy config.Execution
	dryRun bool
	log    zerolog.Logger
}

func New(b Broker, policy config.Execution, dryRun bool, log zerolog.Logger) *Guard {
	return &Guard{
		broker: b,
		policy: policy,
		dryRun: dryRun,
		log:    log.With().Str("component", "guard").Logger(),
	}
}

// Execute evaluates the guard checks in order and submits at most one order.
// The reference price is the latest close; it prices extended-hours limit
// orders.
func (g *Guard) Execute(ctx context.Context, d signal.Decision, refPrice float64) (Outcome, error) {
	if d.Action == signal.Hold {
		return Outcome{}, nil
	}

	acct, err := g.broker.Account(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch account: %w", err)
	}
	positions, err := g.broker.Positions(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch positions: %w", err)
	}
	held, err := g.broker.Position(ctx, d.Symbol)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch position: %w", err)
	}

	tif, err := parseTimeInForce(g.policy.TimeInForce)
	if err != nil {
		return Outcome{}, err
	}

	var intent *broker.OrderIntent
	reject := RejectNone

	switch {
	case d.Action == signal.Buy && held != nil:
		reject = RejectAlreadyHeld
	case d.Action == signal.Buy && len(positions) >= g.policy.MaxPositions:
		reject = RejectPositionLimit
	case d.Action == signal.Buy:
		intent, reject = g.entryIntent(d.Symbol, alpaca.Buy, acct.Equity, refPrice, tif)
	case held != nil:
		// Selling out of a position is always permitted; full liquidation.
		qty := decimal.NewFromFloat(math.Abs(held.Qty))
		intent, reject = g.liquidationIntent(d.Symbol, qty, refPrice, tif)
	case !g.policy.AllowShort:
		reject = RejectShortingDisabled
	default:
		// Short entry, sized like a buy since there is no held quantity.
		intent, reject = g.entryIntent(d.Symbol, alpaca.Sell, acct.Equity, refPrice, tif)
	}

	if reject != RejectNone {
		g.log.Info().
			Str("symbol", d.Symbol).
			Str("action", string(d.Action)).
			Str("reason", string(reject)).
			Msg("order rejected by guard")
		return Outcome{Reject: reject}, nil
	}

	if g.dryRun {
		g.log.Info().
			Str("symbol", d.Symbol).
			Str("side", string(intent.Side)).
			Str("type", string(intent.Type)).
			Msg("dry run, order not submitted")
		return Outcome{Intent: intent}, nil
	}

	order, err := g.broker.SubmitOrder(ctx, *intent)
	if err != nil {
		return Outcome{Intent: intent}, fmt.Errorf("submit %s %s: %w", d.Action, d.Symbol, err)
	}
	return Outcome{Intent: intent, OrderID: order.ID}, nil
}

// entryIntent sizes a new long or short entry from equity. Notional and limit
// prices carry 2 decimal places, derived quantities 4.
func (g *Guard) entryIntent(symbol string, side alpaca.Side, equity, refPrice float64, tif alpaca.TimeInForce) (*broker.OrderIntent, RejectReason) {
	notional := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(g.policy.PositionSizePct)).
		Div(decimal.NewFromInt(100)).
		Round(2)

	if g.policy.ExtendedHours {
		if refPrice <= 0 {
			return nil, RejectNoPrice
		}
		limit := decimal.NewFromFloat(refPrice).Round(2)
		qty := notional.Div(limit).Round(4)
		return &broker.OrderIntent{
			Symbol:        symbol,
			Side:          side,
			Qty:           &qty,
			Type:          alpaca.Limit,
			TimeInForce:   alpaca.Day, // extended sessions accept day limit orders only
			LimitPrice:    &limit,
			ExtendedHours: true,
			ClientOrderID: uuid.NewString(),
		}, RejectNone
	}

	return &broker.OrderIntent{
		Symbol:        symbol,
		Side:          side,
		Notional:      &notional,
		Type:          alpaca.Market,
		TimeInForce:   tif,
		ClientOrderID: uuid.NewString(),
	}, RejectNone
}

func (g *Guard) liquidationIntent(symbol string, qty decimal.Decimal, refPrice float64, tif alpaca.TimeInForce) (*broker.OrderIntent, RejectReason) {
	if g.policy.ExtendedHours {
		if refPrice <= 0 {
			return nil, RejectNoPrice
		}
		limit := decimal.NewFromFloat(refPrice).Round(2)
		return &broker.OrderIntent{
			Symbol:        symbol,
			Side:          alpaca.Sell,
			Qty:           &qty,
			Type:          alpaca.Limit,
			TimeInForce:   alpaca.Day,
			LimitPrice:    &limit,
			ExtendedHours: true,
			ClientOrderID: uuid.NewString(),
		}, RejectNone
	}

	return &broker.OrderIntent{
		Symbol:        symbol,
		Side:          alpaca.Sell,
		Qty:           &qty,
		Type:          alpaca.Market,
		TimeInForce:   tif,
		ClientOrderID: uuid.NewString(),
	}, RejectNone
}

func parseTimeInForce(value string) (alpaca.TimeInForce, error) {
	switch value {
	case "day":
		return alpaca.Day, nil
	case "gtc":
		return alpaca.GTC, nil
	case "ioc":
		return alpaca.IOC, nil
	default:
		return "", fmt.Errorf("unsupported time in force: %s", value)
	}
}
