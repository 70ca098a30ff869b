package universe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ppmina/Xdata/internal/domain"
)

// Config is the immutable parameter set a universe is built from. Dates are
// YYYY-MM-DD strings; the window and cadence parameters are calendar months.
type Config struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	// T1Months is the lookback window used to rank candidates.
	T1Months int `json:"t1_months"`
	// T2Months is the rebalance cadence.
	T2Months int `json:"t2_months"`
	// T3Months is the minimum listing age; newer contracts are excluded.
	T3Months int `json:"t3_months"`
	// DelayDays shifts the ranking base date this many days before each
	// rebalance date, so selection never peeks at data that settles late.
	DelayDays int `json:"delay_days"`
	// QuoteAsset restricts candidates to symbols quoted in this asset.
	QuoteAsset string `json:"quote_asset"`
	// TopK is the number of instruments selected per snapshot.
	TopK int `json:"top_k"`
}

// Validate checks the config's parameter ranges and date ordering.
func (c Config) Validate() error {
	start, err := ParseDate(c.StartDate)
	if err != nil {
		return err
	}
	end, err := ParseDate(c.EndDate)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("end_date %s precedes start_date %s", c.EndDate, c.StartDate)
	}
	if c.T1Months < 1 {
		return fmt.Errorf("t1_months must be >= 1, got %d", c.T1Months)
	}
	if c.T2Months < 1 {
		return fmt.Errorf("t2_months must be >= 1, got %d", c.T2Months)
	}
	if c.T3Months < 0 {
		return fmt.Errorf("t3_months must be >= 0, got %d", c.T3Months)
	}
	if c.DelayDays < 0 {
		return fmt.Errorf("delay_days must be >= 0, got %d", c.DelayDays)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", c.TopK)
	}
	return nil
}

// Snapshot records one rebalance decision: the selected symbols, their mean
// daily quote volumes over the lookback period, and the period boundaries.
// Symbols are in rank order (highest volume first, ties broken by symbol
// ascending) and are exactly the keys of MeanDailyAmounts.
type Snapshot struct {
	EffectiveDate    string             `json:"effective_date"`
	PeriodStartDate  string             `json:"period_start_date"`
	PeriodEndDate    string             `json:"period_end_date"`
	PeriodStartTS    string             `json:"period_start_ts"`
	PeriodEndTS      string             `json:"period_end_ts"`
	Symbols          []string           `json:"symbols"`
	MeanDailyAmounts map[string]float64 `json:"mean_daily_amounts"`
	Metadata         map[string]any     `json:"metadata,omitempty"`
}

// Validate checks the snapshot's internal consistency: date formats, the
// symbol naming convention, non-negative amounts, and the symbols/amounts
// correspondence.
func (s Snapshot) Validate() error {
	for _, d := range []string{s.EffectiveDate, s.PeriodStartDate, s.PeriodEndDate} {
		if _, err := ParseDate(d); err != nil {
			return err
		}
	}
	if len(s.Symbols) != len(s.MeanDailyAmounts) {
		return fmt.Errorf("snapshot %s: %d symbols but %d amounts",
			s.EffectiveDate, len(s.Symbols), len(s.MeanDailyAmounts))
	}
	seen := make(map[string]struct{}, len(s.Symbols))
	for _, sym := range s.Symbols {
		if !domain.ValidSymbol(sym) {
			return fmt.Errorf("snapshot %s: invalid symbol %q", s.EffectiveDate, sym)
		}
		if _, dup := seen[sym]; dup {
			return fmt.Errorf("snapshot %s: duplicate symbol %q", s.EffectiveDate, sym)
		}
		seen[sym] = struct{}{}

		amount, ok := s.MeanDailyAmounts[sym]
		if !ok {
			return fmt.Errorf("snapshot %s: symbol %q has no amount", s.EffectiveDate, sym)
		}
		if amount < 0 {
			return fmt.Errorf("snapshot %s: negative amount for %q", s.EffectiveDate, sym)
		}
	}
	return nil
}

// Definition is the persisted universe document: config plus the ordered
// snapshot sequence. Built once, then consumed read-only.
type Definition struct {
	Config       Config     `json:"config"`
	Snapshots    []Snapshot `json:"snapshots"`
	CreationTime time.Time  `json:"creation_time"`
	Description  string     `json:"description,omitempty"`
}

// Validate checks the definition: valid config, valid snapshots, effective
// dates strictly ascending with no duplicates.
func (d *Definition) Validate() error {
	if err := d.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var prev time.Time
	for i, snap := range d.Snapshots {
		if err := snap.Validate(); err != nil {
			return err
		}
		eff, err := ParseDate(snap.EffectiveDate)
		if err != nil {
			return err
		}
		if i > 0 && !eff.After(prev) {
			return fmt.Errorf("snapshots out of order at %s", snap.EffectiveDate)
		}
		prev = eff
	}
	return nil
}

// AllSymbols returns the union of symbols across all snapshots, sorted.
func (d *Definition) AllSymbols() []string {
	seen := make(map[string]struct{})
	for _, snap := range d.Snapshots {
		for _, sym := range snap.Symbols {
			seen[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// DefaultFileName returns the conventional file name for this definition:
// universe_<start>_<end>_<t1>_<t2>_<t3>_<topk>.json.
func (d *Definition) DefaultFileName() string {
	c := d.Config
	return fmt.Sprintf("universe_%s_%s_%d_%d_%d_%d.json",
		c.StartDate, c.EndDate, c.T1Months, c.T2Months, c.T3Months, c.TopK)
}

// SaveFile writes the definition as indented JSON. When path is an existing
// directory the conventional file name is used inside it.
func (d *Definition) SaveFile(path string) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, d.DefaultFileName())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding universe: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing universe file: %w", err)
	}
	return path, nil
}

// LoadFile reads and validates a universe definition document.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading universe file: %w", err)
	}

	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding universe file %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid universe file %s: %w", path, err)
	}
	return &d, nil
}
