package director

import (
	apperrors "github.com/louisbranch/storyloom/internal/errors"
)

// History is the append-only tick log for one story thread, plus the
// derived indices selection depends on.
type History struct {
	records       []TickRecord
	lastTriggered map[string]int
	firedEver     map[string]bool
	idleCount     int
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		lastTriggered: map[string]int{},
		firedEver:     map[string]bool{},
	}
}

// RestoreHistory rebuilds a history and its indices from persisted records.
func RestoreHistory(records []TickRecord) (*History, error) {
	h := NewHistory()
	for _, record := range records {
		if err := h.Append(record); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Len returns the number of recorded ticks.
func (h *History) Len() int {
	return len(h.records)
}

// Records returns the recorded ticks in order. The slice is shared; callers
// must treat it as read-only.
func (h *History) Records() []TickRecord {
	return h.records
}

// Record returns the record at the given tick index.
func (h *History) Record(index int) (TickRecord, bool) {
	if index < 0 || index >= len(h.records) {
		return TickRecord{}, false
	}
	return h.records[index], true
}

// LastTriggered returns the most recent tick index at which the storylet
// fired.
func (h *History) LastTriggered(id string) (int, bool) {
	tick, ok := h.lastTriggered[id]
	return tick, ok
}

// FiredEver reports whether the storylet appears in any record.
func (h *History) FiredEver(id string) bool {
	return h.firedEver[id]
}

// IdleCount returns the number of consecutive trailing ticks that selected
// zero non-fallback storylets.
func (h *History) IdleCount() int {
	return h.idleCount
}

// Append appends a record and updates the derived indices. Records must
// arrive in strict tick order.
func (h *History) Append(record TickRecord) error {
	if record.TickIndex != len(h.records) {
		return apperrors.New(apperrors.CodeOrderingViolation,
			"record tick_index %d does not follow history length %d", record.TickIndex, len(h.records))
	}
	h.records = append(h.records, record)
	for _, selected := range record.Selected {
		h.lastTriggered[selected.StoryletID] = record.TickIndex
		h.firedEver[selected.StoryletID] = true
	}
	if record.FiredNonFallback() {
		h.idleCount = 0
	} else {
		h.idleCount++
	}
	return nil
}

// RecentTagHits counts, over the last window ticks, how many times any of
// the given tags appears among the selected storylets' tags. Each
// occurrence counts once per tag per selection.
func (h *History) RecentTagHits(window int, tags []string) int {
	if window <= 0 || len(tags) == 0 {
		return 0
	}
	start := len(h.records) - window
	if start < 0 {
		start = 0
	}

	counts := map[string]int{}
	for _, record := range h.records[start:] {
		for _, selected := range record.Selected {
			for _, tag := range selected.Tags {
				counts[tag]++
			}
		}
	}

	hits := 0
	for _, tag := range tags {
		hits += counts[tag]
	}
	return hits
}
