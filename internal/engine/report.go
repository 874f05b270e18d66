package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/signal"
)

// SymbolReport is one line of the NDJSON cycle log: what the engine decided
// for a symbol and what, if anything, it did about it.
type SymbolReport struct {
	RunID        string                 `json:"run_id,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Account      string                 `json:"account"`
	Symbol       string                 `json:"symbol"`
	Action       signal.Action          `json:"action"`
	StrengthPct  float64                `json:"strength_pct"`
	Votes        map[string]signal.Vote `json:"votes"`
	OrderID      string                 `json:"order_id,omitempty"`
	Reject       string                 `json:"rejection_reason,omitempty"`
	DryRunIntent *IntentSummary         `json:"dry_run_intent,omitempty"`
}

// IntentSummary is the order the guard would have submitted, recorded on
// dry-run reports. Decimal fields are strings to keep exact rounding.
type IntentSummary struct {
	Side       string `json:"side"`
	Type       string `json:"type"`
	Notional   string `json:"notional,omitempty"`
	Qty        string `json:"qty,omitempty"`
	LimitPrice string `json:"limit_price,omitempty"`
}

func summarizeIntent(intent *broker.OrderIntent) *IntentSummary {
	s := &IntentSummary{Side: string(intent.Side), Type: string(intent.Type)}
	if intent.Notional != nil {
		s.Notional = intent.Notional.String()
	}
	if intent.Qty != nil {
		s.Qty = intent.Qty.String()
	}
	if intent.LimitPrice != nil {
		s.LimitPrice = intent.LimitPrice.String()
	}
	return s
}

// Reporter appends symbol reports to an NDJSON file. Safe for concurrent use
// by multiple account runners.
type Reporter struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewReporter(path, runID string) (*Reporter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Reporter{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (r *Reporter) RunID() string {
	return r.runID
}

func (r *Reporter) Append(report SymbolReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report.RunID = r.runID
	payload, err := json.Marshal(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal report: %v\n", err)
		return
	}
	if _, err := r.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
		return
	}
	if err := r.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush report log: %v\n", err)
	}
}

func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Flush(); err != nil {
		_ = r.file.Close()
		return err
	}
	return r.file.Close()
}
