package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
	"github.com/tradeloop/fx-confluence-bot/internal/regime"
)

// TradeOutcome is one realized fill/exit result. Only real broker
// outcomes belong here; simulated or back-filled results are ingested
// nowhere.
type TradeOutcome struct {
	AccountID  string        `json:"account_id"`
	Instrument string        `json:"instrument"`
	Regime     regime.Regime `json:"regime"`
	PnL        float64       `json:"pnl"`
	ClosedAt   time.Time     `json:"closed_at"`
}

// RegimePerformance accumulates outcomes for one regime/instrument
// bucket. Counters only ever increment.
type RegimePerformance struct {
	Regime     regime.Regime `json:"regime"`
	Instrument string        `json:"instrument"`
	Trades     int           `json:"trades"`
	Wins       int           `json:"wins"`
	Losses     int           `json:"losses"`
	TotalPnL   float64       `json:"total_pnl"`
}

// WinRate returns wins over trades, zero when no trades have closed.
func (p RegimePerformance) WinRate() float64 {
	if p.Trades == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.Trades)
}

type bucketKey struct {
	regime     regime.Regime
	instrument string
}

// FeedbackFunc receives win-rate drift per regime: observed minus
// expected, positive when the regime is outperforming.
type FeedbackFunc func(rgm regime.Regime, drift float64)

// Ledger records realized trade outcomes and feeds win-rate drift back
// to the signal thresholds once enough trades accumulate.
type Ledger struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*RegimePerformance

	expectedWinRate float64
	minSampleSize   int
	feedback        FeedbackFunc
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithExpectedWinRate sets the baseline win rate drift is measured
// against.
func WithExpectedWinRate(rate float64) Option {
	return func(l *Ledger) {
		if rate > 0 && rate < 1 {
			l.expectedWinRate = rate
		}
	}
}

// WithMinSampleSize sets how many closed trades a regime needs before
// drift feedback fires.
func WithMinSampleSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.minSampleSize = n
		}
	}
}

// WithFeedback registers the threshold adjustment hook.
func WithFeedback(f FeedbackFunc) Option {
	return func(l *Ledger) { l.feedback = f }
}

// NewLedger creates a new performance ledger
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		buckets:         make(map[bucketKey]*RegimePerformance),
		expectedWinRate: 0.45,
		minSampleSize:   20,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record ingests one realized outcome and fires the feedback hook when
// the regime has enough samples.
func (l *Ledger) Record(outcome TradeOutcome) {
	l.mu.Lock()

	key := bucketKey{regime: outcome.Regime, instrument: outcome.Instrument}
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &RegimePerformance{Regime: outcome.Regime, Instrument: outcome.Instrument}
		l.buckets[key] = bucket
	}

	bucket.Trades++
	bucket.TotalPnL += outcome.PnL
	if outcome.PnL > 0 {
		bucket.Wins++
	} else if outcome.PnL < 0 {
		bucket.Losses++
	}

	trades, wins := l.regimeTotalsLocked(outcome.Regime)
	feedback := l.feedback
	l.mu.Unlock()

	if feedback != nil && trades >= l.minSampleSize {
		observed := float64(wins) / float64(trades)
		feedback(outcome.Regime, observed-l.expectedWinRate)
	}
}

// regimeTotalsLocked sums trades and wins across all instruments of one
// regime. Caller holds at least a read lock.
func (l *Ledger) regimeTotalsLocked(rgm regime.Regime) (trades, wins int) {
	for key, bucket := range l.buckets {
		if key.regime == rgm {
			trades += bucket.Trades
			wins += bucket.Wins
		}
	}
	return trades, wins
}

// Performance returns a copy of one regime/instrument bucket.
func (l *Ledger) Performance(rgm regime.Regime, instrument string) (RegimePerformance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bucket, ok := l.buckets[bucketKey{regime: rgm, instrument: instrument}]
	if !ok {
		return RegimePerformance{}, false
	}
	return *bucket, true
}

// RegimeSummary aggregates all instruments of one regime.
func (l *Ledger) RegimeSummary(rgm regime.Regime) RegimePerformance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := RegimePerformance{Regime: rgm}
	for key, bucket := range l.buckets {
		if key.regime != rgm {
			continue
		}
		summary.Trades += bucket.Trades
		summary.Wins += bucket.Wins
		summary.Losses += bucket.Losses
		summary.TotalPnL += bucket.TotalPnL
	}
	return summary
}

// Snapshot returns all buckets sorted by regime then instrument.
func (l *Ledger) Snapshot() []RegimePerformance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]RegimePerformance, 0, len(l.buckets))
	for _, bucket := range l.buckets {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Regime != out[j].Regime {
			return out[i].Regime < out[j].Regime
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

type snapshotFile struct {
	SavedAt time.Time           `json:"saved_at"`
	Buckets []RegimePerformance `json:"buckets"`
}

// SaveSnapshot writes the ledger state to a JSON file, atomically via a
// temp file rename.
func (l *Ledger) SaveSnapshot(path string) error {
	data, err := json.MarshalIndent(snapshotFile{
		SavedAt: time.Now().UTC(),
		Buckets: l.Snapshot(),
	}, "", "  ")
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrorCategoryLogic, "ledger", "save_snapshot", "marshal failed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.WrapError(err, apperrors.ErrorCategoryLogic, "ledger", "save_snapshot", "mkdir failed")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.WrapError(err, apperrors.ErrorCategoryLogic, "ledger", "save_snapshot", "write failed")
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.WrapError(err, apperrors.ErrorCategoryLogic, "ledger", "save_snapshot", "rename failed")
	}
	return nil
}

// LoadSnapshot restores ledger state from a JSON file written by
// SaveSnapshot. Missing file is not an error; the ledger starts empty.
func (l *Ledger) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrorCategoryLogic, "ledger", "load_snapshot", "read failed")
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return apperrors.WrapError(err, apperrors.ErrorCategoryLogic, "ledger", "load_snapshot",
			fmt.Sprintf("corrupt snapshot %s", path))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[bucketKey]*RegimePerformance, len(file.Buckets))
	for i := range file.Buckets {
		b := file.Buckets[i]
		l.buckets[bucketKey{regime: b.Regime, instrument: b.Instrument}] = &b
	}
	return nil
}
