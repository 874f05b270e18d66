// Package broker wraps the Alpaca trading API: account state, open positions,
// the market clock, and order submission. Calls are single-attempt; failures
// surface to the caller without retry.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Account struct {
	Equity      float64
	BuyingPower float64
}

type Position struct {
	Symbol string
	Qty    float64
}

type Order struct {
	ID     string
	Status string
}

type Clock struct {
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// OrderIntent is the exact order shape the guard computed. Exactly one of
// Notional or Qty is set; LimitPrice is set for limit orders only.
type OrderIntent struct {
	Symbol        string
	Side          alpaca.Side
	Notional      *decimal.Decimal
	Qty           *decimal.Decimal
	Type          alpaca.OrderType
	TimeInForce   alpaca.TimeInForce
	LimitPrice    *decimal.Decimal
	ExtendedHours bool
	ClientOrderID string
}

type Client struct {
	client *alpaca.Client
	log    zerolog.Logger
}

const (
	liveBaseURL  = "https://api.alpaca.markets"
	paperBaseURL = "https://paper-api.alpaca.markets"
)

func New(apiKey, apiSecret string, paper bool, log zerolog.Logger) *Client {
	baseURL := liveBaseURL
	if paper {
		baseURL = paperBaseURL
	}
	return &Client{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		log: log.With().Str("component", "broker").Logger(),
	}
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	acct, err := c.client.GetAccount()
	if err != nil {
		c.log.Error().Err(err).Msg("fetch account failed")
		return Account{}, fmt.Errorf("fetch account: %w", err)
	}
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()
	return Account{Equity: equity, BuyingPower: buyingPower}, nil
}

func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	raw, err := c.client.GetPositions()
	if err != nil {
		c.log.Error().Err(err).Msg("fetch positions failed")
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		qty, _ := p.Qty.Float64()
		positions = append(positions, Position{Symbol: p.Symbol, Qty: qty})
	}
	return positions, nil
}

// Position returns the open position for a symbol, or nil when none is held.
func (c *Client) Position(ctx context.Context, symbol string) (*Position, error) {
	raw, err := c.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch position %s: %w", symbol, err)
	}
	qty, _ := raw.Qty.Float64()
	return &Position{Symbol: raw.Symbol, Qty: qty}, nil
}

func (c *Client) SubmitOrder(ctx context.Context, intent OrderIntent) (Order, error) {
	req := alpaca.PlaceOrderRequest{
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Type:          intent.Type,
		TimeInForce:   intent.TimeInForce,
		ExtendedHours: intent.ExtendedHours,
		ClientOrderID: intent.ClientOrderID,
		Notional:      intent.Notional,
		Qty:           intent.Qty,
		LimitPrice:    intent.LimitPrice,
	}

	order, err := c.client.PlaceOrder(req)
	if err != nil {
		c.log.Error().Err(err).Str("symbol", intent.Symbol).Str("side", string(intent.Side)).Msg("place order failed")
		return Order{}, fmt.Errorf("place order %s: %w", intent.Symbol, err)
	}

	c.log.Info().
		Str("order_id", order.ID).
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Side)).
		Str("type", string(intent.Type)).
		Str("status", string(order.Status)).
		Msg("order submitted")
	return Order{ID: order.ID, Status: string(order.Status)}, nil
}

func (c *Client) Clock(ctx context.Context) (Clock, error) {
	clock, err := c.client.GetClock()
	if err != nil {
		return Clock{}, fmt.Errorf("fetch clock: %w", err)
	}
	return Clock{IsOpen: clock.IsOpen, NextOpen: clock.NextOpen, NextClose: clock.NextClose}, nil
}
