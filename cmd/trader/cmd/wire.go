package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/rustyeddy/pairtrader/broker/rest"
	"github.com/rustyeddy/pairtrader/config"
	"github.com/rustyeddy/pairtrader/engine"
	"github.com/rustyeddy/pairtrader/internal/store"
	"github.com/rustyeddy/pairtrader/journal"
	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/rustyeddy/pairtrader/position"
	"github.com/rustyeddy/pairtrader/sim"
)

// newExchange builds the live endpoints in fallback order and, in paper
// mode, a paper exchange priced from them.
func newExchange(cfg *config.Config, pair market.Pair, paper bool, log logging.LoggerInterface) (broker.Exchange, error) {
	token := ""
	if cfg.Exchange.APIKeyEnv != "" {
		token = os.Getenv(cfg.Exchange.APIKeyEnv)
	}
	if !paper && token == "" {
		log.Warning("%s is not set; private endpoints will be rejected", cfg.Exchange.APIKeyEnv)
	}

	var endpoints []broker.Exchange
	for _, ep := range cfg.Exchange.Endpoints {
		c, err := rest.NewClient(rest.Config{
			Name:    ep.Name,
			BaseURL: ep.URL,
			Token:   token,
			Timeout: cfg.Exchange.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("exchange endpoint %q: %w", ep.Name, err)
		}
		endpoints = append(endpoints, c)
	}
	live := broker.NewFallback(log, endpoints...)

	if !paper {
		if len(endpoints) == 0 {
			return nil, errors.New("no exchange endpoints configured")
		}
		return live, nil
	}

	p := cfg.Exchange.Paper
	sx, err := sim.New(sim.Config{
		Pair:        pair,
		StartQuote:  p.StartQuote,
		StartBase:   p.StartBase,
		FeeRate:     p.FeeRate,
		Slippage:    p.Slippage,
		AllowMargin: p.AllowMargin,
	}, cfg.Storage.Path(cfg.Storage.PaperWallet), log)
	if err != nil {
		return nil, err
	}
	if len(endpoints) > 0 {
		sx.SetSource(live)
	}
	return sx, nil
}

// openState loads every state file the engine owns.
func openState(cfg *config.Config, pair market.Pair, log logging.LoggerInterface) (*engine.State, error) {
	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	candles := market.NewStore(cfg.Storage.Path(cfg.Storage.Candles), cfg.Candles, log)
	if err := candles.Load(); err != nil {
		return nil, err
	}
	ledger := position.NewLedger(cfg.Storage.Path(cfg.Storage.Position), cfg.Position, log)
	if err := ledger.Load(); err != nil {
		return nil, err
	}
	profit, err := journal.NewProfitStore(cfg.Storage.Path(cfg.Storage.Profit))
	switch {
	case errors.Is(err, store.ErrCorrupt):
		log.Warning("profit file unreadable, starting from zero: %v", err)
	case err != nil:
		return nil, err
	}
	return engine.NewState(pair, candles, ledger, profit, cfg.Confirmation), nil
}

// openJournal returns the trade log plus every configured mirror.
func openJournal(cfg *config.Config, log logging.LoggerInterface) (journal.Journal, error) {
	j := journal.Multi{journal.NewTradeLog(cfg.Storage.Path(cfg.Storage.Trades))}
	if cfg.Journal.DBPath != "" {
		db, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		j = append(j, db)
	}
	if cfg.Journal.TradesFile != "" && cfg.Journal.EquityFile != "" {
		c, err := journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		j = append(j, c)
	}
	log.Info("journal: %d sink(s)", len(j))
	return j, nil
}
