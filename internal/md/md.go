// Package md fetches historical OHLCV bars from the Alpaca market data API.
package md

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
)

// Bar is one OHLCV sample. Sequences are ascending by time with no duplicate
// timestamps, as delivered by the data API.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

var timeframes = map[string]marketdata.TimeFrame{
	"1Min":  marketdata.OneMin,
	"5Min":  marketdata.NewTimeFrame(5, marketdata.Min),
	"15Min": marketdata.NewTimeFrame(15, marketdata.Min),
	"1Hour": marketdata.OneHour,
	"1Day":  marketdata.OneDay,
}

type Client struct {
	client *marketdata.Client
	log    zerolog.Logger
}

func New(apiKey, apiSecret string, log zerolog.Logger) *Client {
	return &Client{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		log: log.With().Str("component", "md").Logger(),
	}
}

// Bars fetches bars for all symbols in one batched call. Symbols the API
// returns no data for are absent from the result; callers skip them.
func (c *Client) Bars(symbols []string, timeframe string, lookbackDays int) (map[string][]Bar, error) {
	tf, ok := timeframes[timeframe]
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}

	start := time.Now().AddDate(0, 0, -lookbackDays)
	c.log.Info().Str("timeframe", timeframe).Int("symbols", len(symbols)).Int("lookback_days", lookbackDays).Msg("fetching bars")

	raw, err := c.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}

	result := make(map[string][]Bar, len(raw))
	for _, symbol := range symbols {
		series, ok := raw[symbol]
		if !ok || len(series) == 0 {
			c.log.Warn().Str("symbol", symbol).Msg("no data returned")
			continue
		}
		bars := make([]Bar, 0, len(series))
		for _, b := range series {
			bars = append(bars, Bar{
				Timestamp: b.Timestamp,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    float64(b.Volume),
			})
		}
		result[symbol] = bars
		c.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("bars fetched")
	}
	return result, nil
}
