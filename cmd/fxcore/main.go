package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/engine"
	"github.com/hiroq/fxcore/gateway/dryrun"
	"github.com/hiroq/fxcore/logger/zerolog"
	"github.com/hiroq/fxcore/notification"
	"github.com/hiroq/fxcore/order"
	"github.com/hiroq/fxcore/state"
	"github.com/hiroq/fxcore/storage"
	"github.com/hiroq/fxcore/supervisor"
)

const logTimeLayout = "2006-01-02 15:04:05"

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}

	log, err := zerolog.New(cfg.LogLevel, logTimeLayout, !cfg.LogJSON, cfg.LogJSON)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := state.NewSystemClock()
	store := state.NewStore(clock, cfg.Instrument, cfg.OvershootWindow)

	gateway := dryrun.NewWallet(cfg.Instrument, log)

	journal, err := storage.NewOrderJournal(cfg.OrderDB, log)
	if err != nil {
		log.Fatalf("order journal: %v", err)
	}
	defer journal.Close()

	trades, err := storage.NewTradeDBSQLite(cfg.TradeDB, storage.DefaultTradeDBConfig())
	if err != nil {
		log.Fatalf("trade db: %v", err)
	}
	defer trades.Close()

	summary := order.NewTradeSummary(cfg.Instrument)

	var notifier core.Notifier
	if cfg.TelegramToken != "" {
		telegram, err := notification.NewTelegram(cfg.TelegramToken, cfg.TelegramChat, gateway, summary, log)
		if err != nil {
			log.Fatalf("telegram: %v", err)
		}
		telegram.Start()
		notifier = telegram
	}

	coord := order.NewCoordinator(cfg, gateway, store, journal, notifier, log)
	super := supervisor.NewSupervisor(cfg, gateway, store, coord, trades, summary, notifier, log)

	eng := engine.New(cfg, gateway, store, coord, super, nil, log)

	if err := eng.Warmup(ctx); err != nil {
		log.Warnf("warmup skipped: %v", err)
	}

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Errorf("engine stopped: %v", err)
	}

	eng.PrintSummary(os.Stdout)
}
