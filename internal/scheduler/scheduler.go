// Package scheduler starts the driver fleet with staggered launches and
// runs the periodic maintenance jobs: store cleanup, snapshots, tracker
// persistence, prediction evaluation and VWAP refresh.
package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perpsignal/perpsignal/internal/metrics"
	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
	"github.com/perpsignal/perpsignal/internal/winrate"
)

const (
	startStagger     = 2 * time.Second
	cleanupEvery     = 10 * time.Minute
	snapshotEvery    = time.Minute
	trackerSaveEvery = 5 * time.Minute
	evaluateEvery    = time.Hour
	vwapEvery        = 10 * time.Minute
)

// Task is a long-running worker: a stream runtime, poll runner or the
// ETF poller.
type Task interface {
	Run(ctx context.Context)
}

// Scheduler owns the fleet and the maintenance loops.
type Scheduler struct {
	store   *store.Store
	tracker *winrate.Tracker
	metrics *metrics.Registry
	tasks   []Task
}

// New builds the scheduler.
func New(st *store.Store, tr *winrate.Tracker, m *metrics.Registry, tasks []Task) *Scheduler {
	return &Scheduler{store: st, tracker: tr, metrics: m, tasks: tasks}
}

// Run launches every task two seconds apart, then services the job
// tickers until ctx ends. On shutdown it waits for the tasks and forces
// a final store snapshot and tracker save.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i, task := range s.tasks {
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(startStagger):
			}
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			t.Run(ctx)
		}(task)
	}
	log.Info().Int("tasks", len(s.tasks)).Msg("Driver fleet started")

	cleanup := time.NewTicker(cleanupEvery)
	snapshot := time.NewTicker(snapshotEvery)
	trackerSave := time.NewTicker(trackerSaveEvery)
	evaluate := time.NewTicker(evaluateEvery)
	vwap := time.NewTicker(vwapEvery)
	defer func() {
		cleanup.Stop()
		snapshot.Stop()
		trackerSave.Stop()
		evaluate.Stop()
		vwap.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Info().Msg("Flushing state before exit")
			s.snapshot(true)
			s.tracker.Save(true)
			return
		case <-cleanup.C:
			s.store.Cleanup()
		case <-snapshot.C:
			s.snapshot(false)
		case <-trackerSave.C:
			s.tracker.Save(false)
		case <-evaluate.C:
			if n := s.tracker.Evaluate(s.store); n > 0 {
				s.metrics.PredictionsEvaluated.Add(float64(n))
			}
		case <-vwap.C:
			s.refreshVWAP()
		}
	}
}

func (s *Scheduler) snapshot(force bool) {
	started := time.Now()
	s.store.Snapshot(force)
	s.metrics.SnapshotDuration.Observe(time.Since(started).Seconds())
	s.metrics.StorePoints.Set(float64(s.store.StoreStats().SeriesPoints))
}

// refreshVWAP recomputes each coin's rolling 24 h VWAP proxy from the
// preferred venue's price samples, with one-sigma bands.
func (s *Scheduler) refreshVWAP() {
	nowMs := time.Now().UnixMilli()
	for _, coin := range models.Coins {
		var prices []models.SeriesPoint
		for _, ex := range []string{"binance", "hyperliquid", "bybit"} {
			if series := s.store.PriceSeries(ex, coin); len(series) >= 10 {
				prices = series
				break
			}
		}
		if prices == nil {
			continue
		}

		var sum, sumSq float64
		for _, p := range prices {
			sum += p.Value
			sumSq += p.Value * p.Value
		}
		n := float64(len(prices))
		mean := sum / n
		variance := sumSq/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		sigma := math.Sqrt(variance)

		last := prices[len(prices)-1].Value
		deviationPct := 0.0
		if mean > 0 {
			deviationPct = (last - mean) / mean * 100
		}
		s.store.UpdateVWAP(coin, models.VWAPBundle{
			VWAP:         mean,
			UpperBand:    mean + sigma,
			LowerBand:    mean - sigma,
			DeviationPct: deviationPct,
			Samples:      len(prices),
			UpdatedAt:    nowMs,
		})
	}
}
