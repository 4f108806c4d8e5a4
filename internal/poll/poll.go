package poll

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perpsignal/perpsignal/internal/metrics"
)

// Source is one REST poll driver. Poll runs a single cycle; errors are
// counted and the cycle skipped, never fatal.
type Source interface {
	Name() string
	Poll(ctx context.Context) error
}

// Runner drives one source on a fixed interval.
type Runner struct {
	source   Source
	interval time.Duration
	metrics  *metrics.Registry
}

// NewRunner wires a source to its cadence.
func NewRunner(src Source, interval time.Duration, m *metrics.Registry) *Runner {
	return &Runner{source: src, interval: interval, metrics: m}
}

// Run polls immediately, then on every tick until ctx ends.
func (r *Runner) Run(ctx context.Context) {
	name := r.source.Name()
	log.Info().Str("source", name).Dur("interval", r.interval).Msg("Poll driver started")

	r.cycle(ctx, name)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cycle(ctx, name)
		}
	}
}

func (r *Runner) cycle(ctx context.Context, name string) {
	if err := r.source.Poll(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.metrics.PollErrors.WithLabelValues(name).Inc()
		log.Warn().Err(err).Str("source", name).Msg("Poll cycle failed, skipping")
		return
	}
	r.metrics.PollCycles.WithLabelValues(name).Inc()
}

// depthImbalance reduces bid/ask ladders to summed notional depth and
// the normalised imbalance in [-1, 1].
func depthImbalance(bids, asks [][2]float64) (imbalance, bidDepth, askDepth float64) {
	for _, lvl := range bids {
		bidDepth += lvl[0] * lvl[1]
	}
	for _, lvl := range asks {
		askDepth += lvl[0] * lvl[1]
	}
	if total := bidDepth + askDepth; total > 0 {
		imbalance = (bidDepth - askDepth) / total
	}
	return imbalance, bidDepth, askDepth
}
