package history

import (
	"fmt"
	"sync"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// Store holds per-instrument bar history. Appends come from the single
// ingestion path; indicator and regime readers never mutate, so a
// read/write lock per store is enough. Bars are immutable once appended
// and ordered by non-decreasing timestamp with no duplicates.
type Store struct {
	mu      sync.RWMutex
	bars    map[string][]types.PriceBar
	maxBars int
}

// NewStore creates a new bar history store. maxBars bounds retained
// history per instrument; zero keeps everything.
func NewStore(maxBars int) *Store {
	return &Store{
		bars:    make(map[string][]types.PriceBar),
		maxBars: maxBars,
	}
}

// Append adds one bar to an instrument's history. Out-of-order or
// duplicate timestamps are rejected.
func (s *Store) Append(instrument string, bar types.PriceBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.bars[instrument]
	if n := len(existing); n > 0 {
		last := existing[n-1].Timestamp
		if !bar.Timestamp.After(last) {
			return apperrors.NewEngineError(apperrors.ErrorCategoryLogic, "history", "append",
				fmt.Sprintf("%s: bar at %s not after last bar at %s", instrument, bar.Timestamp, last), nil)
		}
	}

	existing = append(existing, bar)
	if s.maxBars > 0 && len(existing) > s.maxBars {
		// Copy the tail so the dropped head can be collected even while
		// readers hold the old slice
		trimmed := make([]types.PriceBar, s.maxBars)
		copy(trimmed, existing[len(existing)-s.maxBars:])
		existing = trimmed
	}
	s.bars[instrument] = existing
	return nil
}

// Backfill replaces an instrument's history wholesale, validating order
// on the way in. Used at startup before live ingestion begins.
func (s *Store) Backfill(instrument string, bars []types.PriceBar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return apperrors.NewEngineError(apperrors.ErrorCategoryLogic, "history", "backfill",
				fmt.Sprintf("%s: bars out of order at index %d", instrument, i), nil)
		}
	}

	copied := make([]types.PriceBar, len(bars))
	copy(copied, bars)
	if s.maxBars > 0 && len(copied) > s.maxBars {
		copied = copied[len(copied)-s.maxBars:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[instrument] = copied
	return nil
}

// Bars returns the instrument's history. The returned slice is safe to
// read concurrently with appends: bars are immutable and the writer
// never writes into indices a reader can see.
func (s *Store) Bars(instrument string) []types.PriceBar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bars[instrument]
}

// Len returns how many bars an instrument holds.
func (s *Store) Len(instrument string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars[instrument])
}

// Instruments lists every instrument with at least one bar.
func (s *Store) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bars))
	for instrument := range s.bars {
		out = append(out, instrument)
	}
	return out
}
