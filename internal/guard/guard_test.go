package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autotrader/internal/broker"
	"autotrader/internal/config"
	"autotrader/internal/signal"
)

type fakeBroker struct {
	account      broker.Account
	positions    []broker.Position
	submitted    []broker.OrderIntent
	submitErr    error
	accountCalls int
}

func (f *fakeBroker) Account(ctx context.Context) (broker.Account, error) {
	f.accountCalls++
	return f.account, nil
}

func (f *fakeBroker) Positions(ctx context.Context) ([]broker.Position, error) {
	return f.positions, nil
}

func (f *fakeBroker) Position(ctx context.Context, symbol string) (*broker.Position, error) {
	for i := range f.positions {
		if f.positions[i].Symbol == symbol {
			return &f.positions[i], nil
		}
	}
	return nil, nil
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, intent broker.OrderIntent) (broker.Order, error) {
	if f.submitErr != nil {
		return broker.Order{}, f.submitErr
	}
	f.submitted = append(f.submitted, intent)
	return broker.Order{ID: "order-1", Status: "accepted"}, nil
}

func defaultPolicy() config.Execution {
	return config.Execution{
		OrderType:       "market",
		TimeInForce:     "day",
		PositionSizePct: 5,
		MaxPositions:    10,
	}
}

func decision(symbol string, action signal.Action) signal.Decision {
	return signal.Decision{Symbol: symbol, Action: action, Strength: 0.75}
}

func TestBuyNotionalSizing(t *testing.T) {
	fake := &fakeBroker{account: broker.Account{Equity: 100000}}
	g := New(fake, defaultPolicy(), false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Buy), 150)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Rejected() {
		t.Fatalf("unexpected rejection: %s", out.Reject)
	}
	if out.OrderID != "order-1" {
		t.Fatalf("expected order id, got %q", out.OrderID)
	}
	if len(fake.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(fake.submitted))
	}
	intent := fake.submitted[0]
	if intent.Notional == nil || !intent.Notional.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected notional 5000.00, got %v", intent.Notional)
	}
	if intent.Qty != nil {
		t.Fatalf("expected notional sizing, got qty %v", intent.Qty)
	}
	if intent.Type != alpaca.Market || intent.TimeInForce != alpaca.Day {
		t.Fatalf("expected day market order, got %s/%s", intent.Type, intent.TimeInForce)
	}
}

func TestBuyRejectedWhenAlreadyHeld(t *testing.T) {
	fake := &fakeBroker{
		account:   broker.Account{Equity: 100000},
		positions: []broker.Position{{Symbol: "AAPL", Qty: 10}},
	}
	g := New(fake, defaultPolicy(), false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Buy), 150)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Reject != RejectAlreadyHeld {
		t.Fatalf("expected already_held, got %q", out.Reject)
	}
	if len(fake.submitted) != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestBuyRejectedAtPositionLimit(t *testing.T) {
	positions := make([]broker.Position, 10)
	for i := range positions {
		positions[i] = broker.Position{Symbol: string(rune('A' + i)), Qty: 1}
	}
	fake := &fakeBroker{account: broker.Account{Equity: 100000}, positions: positions}
	g := New(fake, defaultPolicy(), false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("NVDA", signal.Buy), 150)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Reject != RejectPositionLimit {
		t.Fatalf("expected position_limit, got %q", out.Reject)
	}
	if len(fake.submitted) != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestSellLiquidatesFullPosition(t *testing.T) {
	fake := &fakeBroker{
		account:   broker.Account{Equity: 100000},
		positions: []broker.Position{{Symbol: "AAPL", Qty: 15}},
	}
	g := New(fake, defaultPolicy(), false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Sell), 150)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Rejected() {
		t.Fatalf("unexpected rejection: %s", out.Reject)
	}
	intent := fake.submitted[0]
	if intent.Side != alpaca.Sell {
		t.Fatalf("expected sell side, got %s", intent.Side)
	}
	if intent.Qty == nil || !intent.Qty.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected qty 15, got %v", intent.Qty)
	}
	if intent.Notional != nil {
		t.Fatalf("liquidation must be qty-sized, got notional %v", intent.Notional)
	}
}

func TestSellShortPositionLiquidatesAbsoluteQty(t *testing.T) {
	// A short position has negative qty; liquidation uses the absolute value.
	fake := &fakeBroker{
		account:   broker.Account{Equity: 100000},
		positions: []broker.Position{{Symbol: "AAPL", Qty: -15}},
	}
	g := New(fake, defaultPolicy(), false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Sell), 150)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Rejected() {
		t.Fatalf("unexpected rejection: %s", out.Reject)
	}
	if qty := fake.submitted[0].Qty; qty == nil || !qty.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected qty 15, got %v", qty)
	}
}

func TestShortingDisabled(t *testing.T) {
	fake := &fakeBroker{account: broker.Account{Equity: 100000}}
	g := New(fake, defaultPolicy(), false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Sell), 150)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Reject != RejectShortingDisabled {
		t.Fatalf("expected shorting_disabled, got %q", out.Reject)
	}
	if len(fake.submitted) != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestShortingEnabledSubmitsSell(t *testing.T) {
	fake := &fakeBroker{account: broker.Account{Equity: 100000}}
	policy := defaultPolicy()
	policy.AllowShort = true
	g := New(fake, policy, false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Sell), 150)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Rejected() {
		t.Fatalf("unexpected rejection: %s", out.Reject)
	}
	intent := fake.submitted[0]
	if intent.Side != alpaca.Sell {
		t.Fatalf("expected sell side, got %s", intent.Side)
	}
	if intent.Notional == nil || !intent.Notional.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected notional 5000.00, got %v", intent.Notional)
	}
}

func TestDryRunComputesWithoutSubmitting(t *testing.T) {
	fake := &fakeBroker{account: broker.Account{Equity: 100000}}
	g := New(fake, defaultPolicy(), true, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Buy), 150)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Intent == nil {
		t.Fatalf("expected computed intent in dry run")
	}
	if out.OrderID != "" {
		t.Fatalf("dry run must not produce an order id")
	}
	if len(fake.submitted) != 0 {
		t.Fatalf("dry run must not submit")
	}
}

func TestExtendedHoursLimitOrder(t *testing.T) {
	fake := &fakeBroker{account: broker.Account{Equity: 100000}}
	policy := defaultPolicy()
	policy.ExtendedHours = true
	policy.TimeInForce = "gtc" // must be overridden to day for extended sessions
	g := New(fake, policy, false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Buy), 200)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Rejected() {
		t.Fatalf("unexpected rejection: %s", out.Reject)
	}
	intent := fake.submitted[0]
	if intent.Type != alpaca.Limit {
		t.Fatalf("expected limit order, got %s", intent.Type)
	}
	if intent.TimeInForce != alpaca.Day {
		t.Fatalf("extended hours must pin time in force to day, got %s", intent.TimeInForce)
	}
	if !intent.ExtendedHours {
		t.Fatalf("expected extended hours flag")
	}
	if intent.LimitPrice == nil || !intent.LimitPrice.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected limit 200.00, got %v", intent.LimitPrice)
	}
	// 5000 notional at 200.00 is exactly 25 shares.
	if intent.Qty == nil || !intent.Qty.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected qty 25, got %v", intent.Qty)
	}
}

func TestExtendedHoursWithoutPrice(t *testing.T) {
	fake := &fakeBroker{account: broker.Account{Equity: 100000}}
	policy := defaultPolicy()
	policy.ExtendedHours = true
	g := New(fake, policy, false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Buy), 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Reject != RejectNoPrice {
		t.Fatalf("expected no_price_for_limit, got %q", out.Reject)
	}
	if len(fake.submitted) != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestHoldDoesNothing(t *testing.T) {
	fake := &fakeBroker{account: broker.Account{Equity: 100000}}
	g := New(fake, defaultPolicy(), false, zerolog.Nop())

	out, err := g.Execute(context.Background(), decision("AAPL", signal.Hold), 150)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Intent != nil || out.Rejected() {
		t.Fatalf("hold must produce an empty outcome, got %+v", out)
	}
	if fake.accountCalls != 0 {
		t.Fatalf("hold must not touch the brokerage")
	}
}

func TestSubmissionFailureSurfacesAsError(t *testing.T) {
	fake := &fakeBroker{
		account:   broker.Account{Equity: 100000},
		submitErr: errors.New("rejected by venue"),
	}
	g := New(fake, defaultPolicy(), false, zerolog.Nop())

	if _, err := g.Execute(context.Background(), decision("AAPL", signal.Buy), 150); err == nil {
		t.Fatalf("expected submission error")
	}
}
