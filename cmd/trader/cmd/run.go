package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rustyeddy/pairtrader/engine"
	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/notify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop",
	Long: `Run the trading cycle shortly after every candle closes.

With --paper orders go to an in-process paper exchange priced from the live
endpoints. With --once a single cycle runs and its report is printed.

Example:
  trader run --config trader.yaml --paper`,
	RunE: runRun,
}

var (
	runPaper bool
	runOnce  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runPaper, "paper", false, "trade against the paper exchange")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, pair, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := cfg.LoggingOptions()
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(opts)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()
	log := logger.With("pair", pair.Name)

	ex, err := newExchange(cfg, pair, runPaper, log)
	if err != nil {
		log.Error("exchange: %v", err)
		return err
	}
	cfg.Orders.Mode = "live"
	if runPaper {
		cfg.Orders.Mode = "paper"
	}

	st, err := openState(cfg, pair, log)
	if err != nil {
		return err
	}
	j, err := openJournal(cfg, log)
	if err != nil {
		return err
	}
	defer j.Close()

	queue := notify.NewQueue(cfg.Storage.Path(cfg.Storage.Notifications))
	if n, err := queue.Prune(cfg.Notify.PruneAfter); err != nil {
		log.Warning("prune notifications: %v", err)
	} else if n > 0 {
		log.Info("pruned %d delivered notifications", n)
	}

	eng, err := engine.New(cfg.Engine(), st, engine.Deps{
		Exchange: ex,
		Journal:  j,
		Notify:   queue,
		Log:      log,
	})
	if err != nil {
		return err
	}
	sched := engine.NewScheduler(eng, cfg.Candles.Granularity, cfg.Schedule.Buffer, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runOnce {
		res := sched.Once(ctx)
		if res.IsFatal() {
			return res.Err
		}
		if res.IsSkip() {
			fmt.Printf("skipped: %s\n", res.Reason)
			return nil
		}
		out, err := json.MarshalIndent(res.Value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	hub := notify.NewHub(log)
	defer hub.Close()
	dispatcher := notify.NewDispatcher(queue, cfg.Notify.Interval, log, notify.LogDeliverer{Log: log}, hub)
	go dispatcher.Run(ctx)

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           engine.Handler(eng, hub),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("http listening on %s", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server: %v", err)
			}
		}()
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdown)
		}()
	}

	log.Info("trading %s (%s) every %s", pair, cfg.Orders.Mode, cfg.Candles.Granularity)
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutting down")
	return nil
}
