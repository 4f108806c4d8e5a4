package store

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/perpsignal/perpsignal/internal/models"
)

// SnapshotFile is the name of the store snapshot on disk.
const SnapshotFile = "datastore.json"

type snapshotData struct {
	Exchanges    map[string]map[string]*CoinSeries     `json:"exchanges"`
	SpotCVD      map[string]map[string]*SpotCVD        `json:"spotCvd"`
	Liquidations map[string][]models.LiquidationEvent  `json:"liquidations"`
	LargeTrades  []models.LargeTrade                   `json:"largeTrades"`
	Flows        []flowEntry                           `json:"flows"`
	ETF          *models.ETFFlowState                  `json:"etfFlows,omitempty"`
	LongShort    map[string]models.LongShortRatio      `json:"longShort"`
	VWAP         map[string]models.VWAPBundle          `json:"vwap"`
	Whale        map[string]models.WhaleConsensus      `json:"whale"`
}

type flowEntry struct {
	Key  FlowKey             `json:"key"`
	Flow models.ExchangeFlow `json:"flow"`
}

type snapshotFile struct {
	SavedAt    int64        `json:"savedAt"`
	Data       snapshotData `json:"data"`
	LastUpdate int64        `json:"lastUpdate"`
}

// Snapshot serialises the whole store to the persistence layer when
// dirty. I/O failure is logged and swallowed; memory is authoritative.
func (s *Store) Snapshot(force bool) {
	s.mu.Lock()
	if !s.dirty && !force {
		s.mu.Unlock()
		return
	}
	file := snapshotFile{
		SavedAt:    s.now(),
		LastUpdate: s.lastUpdate,
		Data: snapshotData{
			Exchanges:    s.exchanges,
			SpotCVD:      s.spotCVD,
			Liquidations: s.liquidations,
			LargeTrades:  s.largeTrades,
			ETF:          s.etf,
			LongShort:    s.longShort,
			VWAP:         s.vwap,
			Whale:        s.whale,
		},
	}
	for key, flow := range s.flows {
		file.Data.Flows = append(file.Data.Flows, flowEntry{Key: key, Flow: flow})
	}
	raw, err := json.Marshal(file)
	if err != nil {
		s.mu.Unlock()
		log.Error().Err(err).Msg("Snapshot marshal failed")
		return
	}
	s.dirty = false
	s.mu.Unlock()

	// File I/O happens outside the lock.
	if err := s.files.Save(SnapshotFile, raw); err != nil {
		log.Error().Err(err).Msg("Snapshot write failed")
		return
	}
	log.Debug().Int("bytes", len(raw)).Msg("Store snapshot saved")
}

// Restore loads the last snapshot, dropping points past retention. A
// missing or unreadable snapshot leaves the store empty.
func (s *Store) Restore() error {
	raw, err := s.files.Load(SnapshotFile)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now() - Retention.Milliseconds()
	if file.Data.Exchanges != nil {
		for _, byCoin := range file.Data.Exchanges {
			for _, cs := range byCoin {
				cs.Price = trimSeries(cs.Price, cutoff)
				cs.OI = trimSeries(cs.OI, cutoff)
				cs.Funding = trimFunding(cs.Funding, s.now())
				cs.Book = trimBook(cs.Book, cutoff)
				cs.CVD = trimCVD(cs.CVD, cutoff)
			}
		}
		s.exchanges = file.Data.Exchanges
	}
	if file.Data.SpotCVD != nil {
		for _, byCoin := range file.Data.SpotCVD {
			for _, sc := range byCoin {
				sc.Series = trimCVD(sc.Series, cutoff)
				sc.Window = trimCVD(sc.Window, s.now()-int64(3600_000))
			}
		}
		s.spotCVD = file.Data.SpotCVD
	}
	if file.Data.Liquidations != nil {
		liqCutoff := s.now() - liqRetention.Milliseconds()
		for coin, q := range file.Data.Liquidations {
			file.Data.Liquidations[coin] = trimLiquidations(q, liqCutoff)
		}
		s.liquidations = file.Data.Liquidations
	}
	for _, t := range file.Data.LargeTrades {
		s.largeSeen[t.DedupKey()] = struct{}{}
		s.largeOrder = append(s.largeOrder, t.DedupKey())
	}
	s.largeTrades = file.Data.LargeTrades
	for _, e := range file.Data.Flows {
		s.flows[e.Key] = e.Flow
	}
	s.etf = file.Data.ETF
	if file.Data.LongShort != nil {
		s.longShort = file.Data.LongShort
	}
	if file.Data.VWAP != nil {
		s.vwap = file.Data.VWAP
	}
	if file.Data.Whale != nil {
		s.whale = file.Data.Whale
	}
	s.lastUpdate = file.LastUpdate
	s.dirty = false
	log.Info().Int64("savedAt", file.SavedAt).Msg("Store snapshot restored")
	return nil
}

func trimLiquidations(q []models.LiquidationEvent, cutoff int64) []models.LiquidationEvent {
	i := 0
	for i < len(q) && q[i].Timestamp < cutoff {
		i++
	}
	return append([]models.LiquidationEvent(nil), q[i:]...)
}

// Dirty reports whether unsaved mutations exist. Exposed for tests and
// the shutdown path.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// SetClock swaps the wall clock. Test hook.
func (s *Store) SetClock(now func() int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
