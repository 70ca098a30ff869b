package download

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// MissingPeriod records why a symbol's requested range is still not covered.
type MissingPeriod struct {
	Symbol string `json:"symbol"`
	Period string `json:"period"`
	Reason string `json:"reason"`
}

// Report summarizes one reconciliation run. It is returned to the caller and
// never persisted by the engine itself.
type Report struct {
	RunID             string          `json:"run_id"`
	TotalSymbols      int             `json:"total_symbols"`
	SuccessfulSymbols []string        `json:"successful_symbols"`
	FailedSymbols     []string        `json:"failed_symbols"`
	PointCounts       map[string]int  `json:"point_counts"`
	DataQualityScore  float64         `json:"data_quality_score"`
	MissingPeriods    []MissingPeriod `json:"missing_periods,omitempty"`
	Recommendations   []string        `json:"recommendations,omitempty"`
	Elapsed           time.Duration   `json:"elapsed"`
}

func newReport(total int) *Report {
	return &Report{
		RunID:        uuid.NewString(),
		TotalSymbols: total,
		PointCounts:  make(map[string]int),
	}
}

// finalize sorts the symbol lists and derives the recommendation text.
func (r *Report) finalize(elapsed time.Duration) {
	sort.Strings(r.SuccessfulSymbols)
	sort.Strings(r.FailedSymbols)
	r.Elapsed = elapsed

	switch {
	case r.TotalSymbols == 0:
		// Nothing requested, nothing to recommend.
	case len(r.FailedSymbols) == 0 && r.DataQualityScore >= 1:
		r.Recommendations = append(r.Recommendations, "all data complete, no further action needed")
	default:
		if r.DataQualityScore < 0.8 {
			r.Recommendations = append(r.Recommendations,
				"data quality below 80%, check network and API configuration")
		}
		if n := len(r.FailedSymbols); n > 0 {
			r.Recommendations = append(r.Recommendations,
				fmt.Sprintf("%d symbols failed; re-running resumes from the current store state", n))
		}
	}
}
