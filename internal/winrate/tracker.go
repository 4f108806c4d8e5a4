// Package winrate records every emitted projection and grades it after
// a horizon-specific delay against the realised price move.
package winrate

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/persistence"
)

// SnapshotName is the tracker's file on disk.
const SnapshotName = "winrates.json"

// retention for prediction records.
const retention = 365 * 24 * time.Hour

// directionBandPct: realised moves inside ±0.5% grade as NEUTRAL.
const directionBandPct = 0.5

// Cooldowns gate re-recording the same (coin, type).
var Cooldowns = map[string]time.Duration{
	models.Type12H:         4 * time.Hour,
	models.TypeDaily:       4 * time.Hour,
	models.Type4H:          2 * time.Hour,
	models.Type4HComposite: 2 * time.Hour,
	models.TypeOI4H:        2 * time.Hour,
	models.TypeCVD2H:       1 * time.Hour,
}

// EvalDelays say how long after recording a prediction becomes due.
var EvalDelays = map[string]time.Duration{
	models.Type12H:         8 * time.Hour,
	models.TypeDaily:       16 * time.Hour,
	models.Type4H:          3 * time.Hour,
	models.Type4HComposite: 3 * time.Hour,
	models.TypeOI4H:        3 * time.Hour,
	models.TypeCVD2H:       90 * time.Minute,
}

// PriceSource supplies the evaluation price, preferring Binance, then
// Hyperliquid, then Bybit.
type PriceSource interface {
	PreferredPrice(coin string) (float64, bool)
}

// Tracker owns the prediction log. Safe for concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	predictions []models.Prediction
	dirty       bool

	files persistence.Store
	now   func() int64
}

// New creates an empty tracker backed by the persistence layer.
func New(files persistence.Store) *Tracker {
	return &Tracker{
		files: files,
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// SetClock swaps the wall clock. Test hook.
func (t *Tracker) SetClock(now func() int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Record stores a new prediction unless one of the same (coin, type)
// exists inside the type's cooldown window. Returns the stored record
// and whether it was accepted.
func (t *Tracker) Record(p models.Prediction) (models.Prediction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cooldown, ok := Cooldowns[p.Type]
	if !ok {
		cooldown = 4 * time.Hour
	}
	nowMs := t.now()
	earliest := nowMs - cooldown.Milliseconds()
	for i := len(t.predictions) - 1; i >= 0; i-- {
		prev := t.predictions[i]
		if prev.Timestamp < earliest {
			break
		}
		if prev.Coin == p.Coin && prev.Type == p.Type {
			return models.Prediction{}, false
		}
	}

	p.ID = uuid.NewString()
	p.Timestamp = nowMs
	p.Evaluated = false
	p.Outcome = models.OutcomePending
	t.predictions = append(t.predictions, p)
	t.dirty = true
	log.Debug().Str("coin", p.Coin).Str("type", p.Type).Str("bias", p.PredictedBias).Msg("Prediction recorded")
	return p, true
}

// Evaluate grades every unevaluated prediction past its delay. A coin
// with no live price marks the record inconclusive.
func (t *Tracker) Evaluate(prices PriceSource) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	nowMs := t.now()
	evaluated := 0
	for i := range t.predictions {
		p := &t.predictions[i]
		if p.Evaluated {
			continue
		}
		delay, ok := EvalDelays[p.Type]
		if !ok {
			delay = 8 * time.Hour
		}
		if nowMs < p.Timestamp+delay.Milliseconds() {
			continue
		}

		final, ok := prices.PreferredPrice(p.Coin)
		p.Evaluated = true
		p.EvaluatedAt = nowMs
		evaluated++
		if !ok || p.InitialPrice <= 0 {
			p.Outcome = models.OutcomeInconclusive
			continue
		}
		changePct := (final - p.InitialPrice) / p.InitialPrice * 100
		p.FinalPrice = final
		p.ActualChangePct = changePct

		actual := models.DirNeutral
		if changePct > directionBandPct {
			actual = models.DirBullish
		} else if changePct < -directionBandPct {
			actual = models.DirBearish
		}
		if actual == p.PredictedDirection {
			p.Outcome = models.OutcomeCorrect
		} else {
			p.Outcome = models.OutcomeIncorrect
		}
	}
	if evaluated > 0 {
		t.dirty = true
		log.Info().Int("evaluated", evaluated).Msg("Prediction evaluation pass completed")
	}
	return evaluated
}

type trackerFile struct {
	Predictions []models.Prediction            `json:"predictions"`
	Stats       map[string]models.WinRateStats `json:"stats"`
	SavedAt     int64                          `json:"savedAt"`
}

// Save persists the log, pruning records past retention. No-op unless
// dirty or forced.
func (t *Tracker) Save(force bool) {
	t.mu.Lock()
	if !t.dirty && !force {
		t.mu.Unlock()
		return
	}
	cutoff := t.now() - retention.Milliseconds()
	kept := t.predictions[:0]
	for _, p := range t.predictions {
		if p.Timestamp >= cutoff {
			kept = append(kept, p)
		}
	}
	t.predictions = kept

	file := trackerFile{
		Predictions: append([]models.Prediction(nil), t.predictions...),
		Stats:       t.statsLocked(),
		SavedAt:     t.now(),
	}
	t.dirty = false
	t.mu.Unlock()

	raw, err := json.Marshal(file)
	if err != nil {
		log.Error().Err(err).Msg("Tracker marshal failed")
		return
	}
	if err := t.files.Save(SnapshotName, raw); err != nil {
		log.Error().Err(err).Msg("Tracker snapshot write failed")
	}
}

// Restore loads the last saved log. Unknown signal keys survive the
// round trip because Signals is an open map.
func (t *Tracker) Restore() error {
	raw, err := t.files.Load(SnapshotName)
	if err != nil {
		return fmt.Errorf("load tracker snapshot: %w", err)
	}
	var file trackerFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse tracker snapshot: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.predictions = file.Predictions
	t.dirty = false
	log.Info().Int("predictions", len(t.predictions)).Msg("Tracker snapshot restored")
	return nil
}
