package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/perpsignal/perpsignal/internal/api"
	"github.com/perpsignal/perpsignal/internal/config"
	"github.com/perpsignal/perpsignal/internal/etf"
	"github.com/perpsignal/perpsignal/internal/metrics"
	"github.com/perpsignal/perpsignal/internal/persistence"
	"github.com/perpsignal/perpsignal/internal/poll"
	"github.com/perpsignal/perpsignal/internal/projection"
	"github.com/perpsignal/perpsignal/internal/scheduler"
	"github.com/perpsignal/perpsignal/internal/store"
	"github.com/perpsignal/perpsignal/internal/stream"
	"github.com/perpsignal/perpsignal/internal/winrate"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "perpsignal.yaml", "path to yaml config")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	files, err := persistence.New(cfg.DataDir, cfg.RedisAddr)
	if err != nil {
		return err
	}

	st := store.New(files)
	if err := st.Restore(); err != nil {
		log.Warn().Err(err).Msg("Starting with an empty store")
	}
	tracker := winrate.New(files)
	if err := tracker.Restore(); err != nil {
		log.Warn().Err(err).Msg("Starting with an empty prediction ledger")
	}

	m := metrics.New()
	engine := projection.New(st, tracker)
	engine.SetMetrics(m)

	tasks, err := buildTasks(cfg, st, m)
	if err != nil {
		return err
	}
	tasks = append(tasks, etf.New(st, cfg.SoSoValueAPIKey))

	sched := scheduler.New(st, tracker, m, tasks)
	server := api.New(cfg.Port, st, tracker, engine, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case err := <-serverErr:
		stop()
		<-schedDone
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	<-schedDone
	log.Info().Msg("Bye")
	return nil
}

// buildTasks turns the configured fleet into runnable workers.
func buildTasks(cfg *config.Config, st *store.Store, m *metrics.Registry) ([]scheduler.Task, error) {
	var tasks []scheduler.Task

	for _, sc := range cfg.Streams {
		drivers, err := streamDrivers(sc)
		if err != nil {
			return nil, err
		}
		for _, d := range drivers {
			tasks = append(tasks, stream.NewRuntime(d, st, m))
		}
	}

	for _, pc := range cfg.Polls {
		src, err := pollSource(pc, st)
		if err != nil {
			return nil, err
		}
		interval := time.Duration(pc.IntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 10 * time.Second
		}
		tasks = append(tasks, poll.NewRunner(src, interval, m))
	}
	return tasks, nil
}

func streamDrivers(sc config.StreamConfig) ([]stream.Driver, error) {
	switch {
	case sc.Exchange == "binance" && sc.Venue == "spot":
		return []stream.Driver{stream.NewBinanceSpot(sc.Symbols)}, nil
	case sc.Exchange == "binance" && sc.Venue == "perp":
		return []stream.Driver{
			stream.NewBinanceFutures(sc.Symbols),
			stream.NewBinanceForceOrders(sc.Symbols),
		}, nil
	case sc.Exchange == "bybit" && sc.Venue == "spot":
		return []stream.Driver{stream.NewBybitSpot(sc.Symbols)}, nil
	case sc.Exchange == "bybit" && sc.Venue == "perp":
		return []stream.Driver{stream.NewBybitLinear(sc.Symbols)}, nil
	case sc.Exchange == "okx":
		return []stream.Driver{stream.NewOKX(sc.Symbols)}, nil
	case sc.Exchange == "coinbase":
		return []stream.Driver{stream.NewCoinbase(sc.Symbols)}, nil
	case sc.Exchange == "kraken":
		return []stream.Driver{stream.NewKraken(sc.Symbols)}, nil
	case sc.Exchange == "hyperliquid":
		return []stream.Driver{stream.NewHyperliquid(sc.Symbols)}, nil
	default:
		return nil, fmt.Errorf("unknown stream driver %s/%s", sc.Exchange, sc.Venue)
	}
}

func pollSource(pc config.PollConfig, st *store.Store) (poll.Source, error) {
	majors := []string{"BTC", "ETH", "SOL"}
	usdt := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	switch pc.Source {
	case "hyperliquid":
		return poll.NewHyperliquid(st, majors), nil
	case "binance":
		return poll.NewBinance(st, usdt), nil
	case "bybit":
		return poll.NewBybit(st, usdt), nil
	case "asterdex":
		return poll.NewAsterDex(st, usdt), nil
	case "nado":
		return poll.NewNado(st, majors), nil
	default:
		return nil, fmt.Errorf("unknown poll source %s", pc.Source)
	}
}
