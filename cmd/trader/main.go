package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/broker"
	"autotrader/internal/config"
	"autotrader/internal/engine"
	"autotrader/internal/guard"
	"autotrader/internal/md"
	"autotrader/internal/metrics"
	"autotrader/internal/scheduler"
)

func main() {
	var (
		mode          = flag.String("mode", "scan", "run mode: scan, trade, schedule, backtest, or status")
		configPath    = flag.String("config", "config/settings.yaml", "path to settings YAML file")
		watchlistPath = flag.String("watchlist", "config/watchlist.yaml", "path to watchlist YAML file")
		symbolFlag    = flag.String("symbol", "", "restrict the watchlist to a single symbol")
		dryRun        = flag.Bool("dry-run", false, "compute orders without submitting them")
		days          = flag.Int("days", 30, "days of history for backtest mode")
	)
	flag.Parse()

	config.LoadEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Level)

	watchlist, err := config.LoadWatchlist(*watchlistPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("watchlist error")
	}
	if *symbolFlag != "" {
		watchlist = []string{*symbolFlag}
	}

	if cfg.Metrics.Enabled {
		metrics.Serve(cfg.Metrics.Addr)
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint started")
	}

	accounts := cfg.Accounts
	if len(accounts) == 0 {
		accounts = []config.Account{config.DefaultAccount()}
	}

	switch *mode {
	case "status":
		runStatus(accounts, logger)
	case "backtest":
		runBacktest(cfg, accounts, watchlist, *days, logger)
	case "scan":
		runOnce(cfg, accounts, watchlist, false, *dryRun, logger)
	case "trade":
		runOnce(cfg, accounts, watchlist, true, *dryRun, logger)
	case "schedule":
		runSchedule(cfg, accounts, watchlist, *dryRun, logger)
	default:
		logger.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}

type accountUnit struct {
	broker *broker.Client
	runner *engine.Runner
}

// buildUnits wires one broker client, data client, and cycle runner per
// account. A credential failure skips that account so the rest still trade.
func buildUnits(
	cfg *config.Settings,
	accounts []config.Account,
	watchlist []string,
	execute, dryRun bool,
	reporter *engine.Reporter,
	logger zerolog.Logger,
) []accountUnit {
	units := make([]accountUnit, 0, len(accounts))
	for _, acct := range accounts {
		key, secret, err := config.Credentials(acct)
		if err != nil {
			logger.Error().Err(err).Str("account", acct.Name).Msg("skipping account")
			continue
		}

		symbols := watchlist
		if len(acct.Watchlist) > 0 {
			symbols = acct.Watchlist
		}

		brokerClient := broker.New(key, secret, acct.Paper, logger)
		dataClient := md.New(key, secret, logger)

		var exec engine.Executor
		if execute {
			exec = guard.New(brokerClient, cfg.Execution, dryRun, logger)
		}

		units = append(units, accountUnit{
			broker: brokerClient,
			runner: engine.NewRunner(acct.Name, symbols, dataClient, exec, cfg, reporter, logger),
		})
	}
	if len(units) == 0 {
		logger.Fatal().Msg("no usable accounts")
	}
	return units
}

func runOnce(cfg *config.Settings, accounts []config.Account, watchlist []string, execute, dryRun bool, logger zerolog.Logger) {
	reporter := newReporter(cfg, logger)
	defer closeReporter(reporter, logger)

	units := buildUnits(cfg, accounts, watchlist, execute, dryRun, reporter, logger)
	ctx := context.Background()
	for _, unit := range units {
		result := unit.runner.RunCycle(ctx)
		logger.Info().
			Str("account", result.Account).
			Int("signals", result.SignalsEvaluated).
			Int("orders", result.OrdersPlaced).
			Int("errors", len(result.Errors)).
			Msg("pass complete")
	}
}

func runSchedule(cfg *config.Settings, accounts []config.Account, watchlist []string, dryRun bool, logger zerolog.Logger) {
	if !cfg.Schedule.Enabled {
		logger.Fatal().Msg("schedule mode requires schedule.enabled")
	}

	reporter := newReporter(cfg, logger)
	defer closeReporter(reporter, logger)

	units := buildUnits(cfg, accounts, watchlist, true, dryRun, reporter, logger)
	runners := make([]scheduler.CycleRunner, 0, len(units))
	for _, unit := range units {
		runners = append(runners, unit.runner)
	}

	// The market-hours gate shares the first account's clock; the session is
	// the same for every account.
	sched := scheduler.New(runners, units[0].broker, cfg.Schedule, cfg.Execution.ExtendedHours, cfg.MaxConcurrentAccounts, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	if err := sched.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("scheduler error")
	}
	logger.Info().Msg("shutdown complete")
}

// runBacktest replays the signal aggregation over historical bars and prints
// what would have triggered. Market data only; no trading client is built.
func runBacktest(cfg *config.Settings, accounts []config.Account, watchlist []string, days int, logger zerolog.Logger) {
	key, secret, err := config.Credentials(accounts[0])
	if err != nil {
		logger.Fatal().Err(err).Msg("credentials error")
	}
	dataClient := md.New(key, secret, logger)

	results, err := engine.Backtest(watchlist, dataClient, cfg, days, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest failed")
	}

	fmt.Printf("\n=== Backtest Results (%d days) ===\n\n", days)
	for _, r := range results {
		fmt.Printf("  %s:\n", r.Symbol)
		fmt.Printf("    Price: $%.2f -> $%.2f (%+.1f%%)\n", r.PriceStart, r.PriceEnd, r.ChangePct)
		fmt.Printf("    Buy signals:  %d\n", r.BuySignals)
		fmt.Printf("    Sell signals: %d\n\n", r.SellSignals)
	}
}

func runStatus(accounts []config.Account, logger zerolog.Logger) {
	ctx := context.Background()
	for _, acct := range accounts {
		key, secret, err := config.Credentials(acct)
		if err != nil {
			logger.Error().Err(err).Str("account", acct.Name).Msg("skipping account")
			continue
		}
		client := broker.New(key, secret, acct.Paper, logger)

		account, err := client.Account(ctx)
		if err != nil {
			logger.Error().Err(err).Str("account", acct.Name).Msg("account fetch failed")
			continue
		}
		positions, err := client.Positions(ctx)
		if err != nil {
			logger.Error().Err(err).Str("account", acct.Name).Msg("positions fetch failed")
			continue
		}

		fmt.Printf("\n=== %s ===\n", acct.Name)
		fmt.Printf("  Equity:       $%.2f\n", account.Equity)
		fmt.Printf("  Buying Power: $%.2f\n", account.BuyingPower)
		if len(positions) == 0 {
			fmt.Println("  No open positions.")
			continue
		}
		fmt.Printf("  Open positions (%d):\n", len(positions))
		for _, p := range positions {
			fmt.Printf("    %-8s %10.4f\n", p.Symbol, p.Qty)
		}
	}
}

func newReporter(cfg *config.Settings, logger zerolog.Logger) *engine.Reporter {
	reporter, err := engine.NewReporter(cfg.ReportPath, generateRunID())
	if err != nil {
		logger.Fatal().Err(err).Msg("report log error")
	}
	logger.Info().Str("run_id", reporter.RunID()).Str("path", cfg.ReportPath).Msg("cycle report log open")
	return reporter
}

func closeReporter(reporter *engine.Reporter, logger zerolog.Logger) {
	if err := reporter.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close report log")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}
