// Package director implements the world director: a deterministic,
// explainable engine that advances a story thread by discrete ticks,
// selecting authored storylets against the evolving world state and
// recording a reproducible, rationale-annotated account of every decision.
package director

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/storyloom/internal/errors"
	"github.com/louisbranch/storyloom/internal/judge"
	"github.com/louisbranch/storyloom/internal/state"
	"github.com/louisbranch/storyloom/internal/story"
)

// Director owns one story thread: its state snapshot, its tick history, and
// the judge used for natural-language conditions. Nothing is shared mutable
// across threads; run one Director per thread.
type Director struct {
	project  *story.Project
	judge    *judge.Cached
	rawJudge judge.Judge
	clock    func() time.Time
	state    *state.State
	history  *History
}

// Option configures a Director.
type Option func(*Director)

// WithJudge installs a natural-language judge, memoized through the given
// cache. A nil cache allocates a private one; a shared cache may serve
// several threads.
func WithJudge(j judge.Judge, cache *judge.Cache) Option {
	return func(d *Director) {
		if j != nil {
			d.rawJudge = j
			d.judge = judge.NewCached(j, cache)
		}
	}
}

// WithClock overrides the timestamp source for tick records.
func WithClock(clock func() time.Time) Option {
	return func(d *Director) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// New creates a director for a fresh thread starting from the project's
// initial state.
func New(project *story.Project, opts ...Option) (*Director, error) {
	if err := project.Validate(); err != nil {
		return nil, err
	}
	d := &Director{
		project: project,
		clock:   time.Now,
		state:   project.InitialState(),
		history: NewHistory(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Restore creates a director resuming a persisted thread from its last
// snapshot and recorded history.
func Restore(project *story.Project, snapshot *state.State, history *History, opts ...Option) (*Director, error) {
	d, err := New(project, opts...)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		d.state = snapshot.Clone()
	}
	if history != nil {
		d.history = history
	}
	return d, nil
}

// State returns a deep copy of the current snapshot.
func (d *Director) State() *state.State {
	return d.state.Clone()
}

// History returns the thread's tick history.
func (d *Director) History() *History {
	return d.history
}

// Tick advances the thread by one atomic step: select storylets, apply
// their effects to a cloned snapshot, and append exactly one record. On
// effect failure the tick aborts with a TickAborted error and no visible
// state change.
func (d *Director) Tick(ctx context.Context, cfg story.DirectorConfig) (TickRecord, error) {
	if err := cfg.Validate(); err != nil {
		return TickRecord{}, err
	}

	tick := d.history.Len()
	before := d.state
	summary := before.Summary()

	result := d.selectStorylets(ctx, cfg, before, summary, tick)

	// Stage 8: effect application on a clone; the previous snapshot stays
	// untouched for diffing and for discarding on abort.
	next := before.Clone()
	selected := make([]SelectedStorylet, 0, len(result.selected))
	deltaSum := 0.0
	for _, entry := range result.selected {
		applied, err := applyStoryletEffects(next, entry.storylet)
		if err != nil {
			return TickRecord{}, err
		}
		deltaSum += entry.storylet.IntensityDelta
		selected = append(selected, SelectedStorylet{
			StoryletID:     entry.storylet.ID,
			Title:          entry.storylet.Title,
			Tags:           append([]string(nil), entry.storylet.Tags...),
			IsFallback:     entry.storylet.IsFallback,
			Rationale:      entry.rationale(),
			EffectsApplied: applied,
		})
	}

	decay := cfg.IntensityDecay * (before.World.Intensity - state.DefaultIntensity)
	next.World.Intensity = clamp01(next.World.Intensity + deltaSum - decay)

	record, err := d.buildRecord(tick, before, next, selected, result)
	if err != nil {
		return TickRecord{}, err
	}

	// Stage 9: history recording. State only becomes visible once the
	// record is accepted.
	if err := d.history.Append(record); err != nil {
		return TickRecord{}, err
	}
	d.state = next
	return record, nil
}

func (d *Director) buildRecord(tick int, before, next *state.State, selected []SelectedStorylet, result selection) (TickRecord, error) {
	beforeHash, err := before.Hash()
	if err != nil {
		return TickRecord{}, err
	}
	afterHash, err := next.Hash()
	if err != nil {
		return TickRecord{}, err
	}

	idle := d.history.IdleCount() + 1
	for _, entry := range selected {
		if !entry.IsFallback {
			idle = 0
			break
		}
	}

	return TickRecord{
		TickIndex:          tick,
		Timestamp:          d.clock().UTC(),
		Selected:           selected,
		Rejected:           result.rejected,
		StateBeforeHash:    beforeHash,
		StateAfterHash:     afterHash,
		Diffs:              state.Diff(before, next),
		IntensityBefore:    before.World.Intensity,
		IntensityAfter:     next.World.Intensity,
		IdleTickCountAfter: idle,
		NLEvaluations:      result.nlEvals,
	}, nil
}

// Replay re-runs ticks from the thread's initial state and returns the
// records in [from, to]. With the same project, config, and seed the
// sequence is bit-for-bit identical to the original run; timestamps are
// carried over from the original records.
func (d *Director) Replay(ctx context.Context, from, to int, cfg story.DirectorConfig) ([]TickRecord, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if from < 0 || to < from || to >= d.history.Len() {
		return nil, apperrors.New(apperrors.CodeReplayInvalidRange,
			"replay range [%d, %d] is outside recorded history of %d ticks", from, to, d.history.Len())
	}

	// The replica judges through a fresh cache so cache_hit flags replay
	// the way a fresh run produced them.
	replica := &Director{
		project:  d.project,
		rawJudge: d.rawJudge,
		state:    d.project.InitialState(),
		history:  NewHistory(),
	}
	if d.rawJudge != nil {
		replica.judge = judge.NewCached(d.rawJudge, nil)
	}

	records := make([]TickRecord, 0, to-from+1)
	for tick := 0; tick <= to; tick++ {
		original, _ := d.history.Record(tick)
		replica.clock = func() time.Time { return original.Timestamp }
		record, err := replica.Tick(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if tick >= from {
			records = append(records, record)
		}
	}
	return records, nil
}

// Explain evaluates every precondition of the storylet against the current
// state and returns per-condition pass/fail reasons without mutating
// anything.
func (d *Director) Explain(ctx context.Context, storyletID string, cfg story.DirectorConfig) ([]ConditionReason, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, ok := d.project.Storylet(storyletID)
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "storylet %q not found", storyletID)
	}
	if len(s.Preconditions) == 0 {
		return []ConditionReason{{Condition: "(none)", Satisfied: true, Reason: "no preconditions (always satisfied)"}}, nil
	}
	outcome := d.evaluateConditions(ctx, s.Preconditions, d.state, d.state.Summary(), cfg.Mode, false)
	return outcome.reasons, nil
}

// Inject force-fires a storylet outside the selection pipeline. The once
// and ordering disciplines still hold and are the only ways the
// ONCE_VIOLATION and ORDERING_VIOLATION errors can surface.
func (d *Director) Inject(ctx context.Context, storyletID string, cfg story.DirectorConfig) (TickRecord, error) {
	if err := cfg.Validate(); err != nil {
		return TickRecord{}, err
	}
	s, ok := d.project.Storylet(storyletID)
	if !ok {
		return TickRecord{}, apperrors.New(apperrors.CodeNotFound, "storylet %q not found", storyletID)
	}
	if s.Once && d.history.FiredEver(s.ID) {
		return TickRecord{}, apperrors.New(apperrors.CodeOnceViolation,
			"storylet %q is once and has already fired", s.ID)
	}
	if reason, ok := d.checkOrdering(s); !ok {
		return TickRecord{}, apperrors.New(apperrors.CodeOrderingViolation, "storylet %q: %s", s.ID, reason)
	}

	tick := d.history.Len()
	before := d.state
	next := before.Clone()

	applied, err := applyStoryletEffects(next, s)
	if err != nil {
		return TickRecord{}, err
	}
	decay := cfg.IntensityDecay * (before.World.Intensity - state.DefaultIntensity)
	next.World.Intensity = clamp01(next.World.Intensity + s.IntensityDelta - decay)

	selected := []SelectedStorylet{{
		StoryletID:     s.ID,
		Title:          s.Title,
		Tags:           append([]string(nil), s.Tags...),
		IsFallback:     s.IsFallback,
		Rationale:      "injected outside the selection pipeline",
		EffectsApplied: applied,
	}}
	record, err := d.buildRecord(tick, before, next, selected, selection{})
	if err != nil {
		return TickRecord{}, err
	}
	if err := d.history.Append(record); err != nil {
		return TickRecord{}, err
	}
	d.state = next
	return record, nil
}
