package director

import (
	"time"

	"github.com/louisbranch/storyloom/internal/state"
)

// SelectedStorylet is one fired storylet inside a tick record.
type SelectedStorylet struct {
	StoryletID     string          `json:"storylet_id"`
	Title          string          `json:"title,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	IsFallback     bool            `json:"is_fallback,omitempty"`
	Rationale      string          `json:"rationale"`
	EffectsApplied []AppliedEffect `json:"effects_applied,omitempty"`
}

// RejectedStorylet records why a storylet did not fire, citing the pipeline
// stage that decided.
type RejectedStorylet struct {
	StoryletID string `json:"storylet_id"`
	Stage      int    `json:"stage"`
	Reason     string `json:"reason"`
}

// TickRecord is the immutable, reproducible account of one tick.
type TickRecord struct {
	TickIndex int       `json:"tick_index"`
	Timestamp time.Time `json:"timestamp"`

	Selected []SelectedStorylet `json:"selected"`
	Rejected []RejectedStorylet `json:"rejected,omitempty"`

	StateBeforeHash string         `json:"state_before_hash"`
	StateAfterHash  string         `json:"state_after_hash"`
	Diffs           []state.Change `json:"diffs"`

	IntensityBefore float64 `json:"intensity_before"`
	IntensityAfter  float64 `json:"intensity_after"`

	IdleTickCountAfter int `json:"idle_tick_count_after"`

	NLEvaluations []NLEvaluation `json:"nl_evaluations,omitempty"`
}

// FiredNonFallback reports whether the tick selected any regular storylet.
func (r TickRecord) FiredNonFallback() bool {
	for _, selected := range r.Selected {
		if !selected.IsFallback {
			return true
		}
	}
	return false
}
