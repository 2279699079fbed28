package director

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/louisbranch/storyloom/internal/random"
	"github.com/louisbranch/storyloom/internal/state"
	"github.com/louisbranch/storyloom/internal/story"
)

// minSampleWeight keeps diversity-penalized candidates sampleable: a
// penalty may shrink a weight but never eliminate the candidate.
const minSampleWeight = 1e-9

// candidate is one storylet flowing through the selection pipeline.
type candidate struct {
	storylet *story.Storylet
	order    int // position in the author-ordered pool
	weight   float64
	key      float64
	notes    []string
}

func (c *candidate) note(format string, args ...any) {
	c.notes = append(c.notes, fmt.Sprintf(format, args...))
}

func (c *candidate) rationale() string {
	return strings.Join(c.notes, "; ")
}

// selection is the pipeline outcome for one tick.
type selection struct {
	selected     []*candidate // ascending key order; effects apply in this order
	rejected     []RejectedStorylet
	nlEvals      []NLEvaluation
	usedFallback bool
}

// selectStorylets runs stages 1 through 7 against the tick-start state.
// Regular and fallback storylets form disjoint pools; fallbacks only enter
// at stage 4 when the regular pool empties and the idle threshold is met.
func (d *Director) selectStorylets(ctx context.Context, cfg story.DirectorConfig, st *state.State, summary string, tick int) selection {
	var regular, fallback []*candidate
	for i := range d.project.Storylets {
		entry := &candidate{storylet: &d.project.Storylets[i], order: i, weight: d.project.Storylets[i].Weight}
		if entry.storylet.IsFallback {
			fallback = append(fallback, entry)
		} else {
			regular = append(regular, entry)
		}
	}

	result := selection{}
	candidates := d.filterPool(ctx, regular, st, summary, cfg, tick, &result)

	// Stage 4: when no regular storylet survives and the thread has idled
	// long enough, the fallback pool takes over under the same rules.
	if len(candidates) == 0 && d.history.IdleCount() >= cfg.FallbackAfterIdleTicks {
		candidates = d.filterPool(ctx, fallback, st, summary, cfg, tick, &result)
		if len(candidates) > 0 {
			result.usedFallback = true
			for _, entry := range candidates {
				entry.note("stage 4: fallback pool engaged (idle %d >= %d)", d.history.IdleCount(), cfg.FallbackAfterIdleTicks)
			}
		}
	}

	// Stage 5: diversity penalty against recently selected tags.
	for _, entry := range candidates {
		hits := d.history.RecentTagHits(cfg.DiversityWindow, entry.storylet.Tags)
		if hits == 0 || cfg.DiversityPenalty == 0 {
			continue
		}
		penalized := entry.weight * math.Pow(1-cfg.DiversityPenalty, float64(hits))
		if entry.weight > 0 && penalized < minSampleWeight {
			penalized = minSampleWeight
		}
		entry.weight = penalized
		entry.note("stage 5: diversity %.4f after %d hits on tags [%s]",
			entry.weight, hits, strings.Join(entry.storylet.Tags, ", "))
	}

	// Stage 6: pacing adjustment toward the preferred intensity band.
	target := cfg.PacingPreference.TargetIntensity()
	drive := target - st.World.Intensity
	for _, entry := range candidates {
		multiplier := 1 + cfg.PacingScale*sign(drive)*entry.storylet.IntensityDelta
		if multiplier < 0 {
			multiplier = 0
		}
		if multiplier != 1 {
			entry.weight *= multiplier
			entry.note("stage 6: pacing x%.4f (drive %+.4f, delta %+.2f)", multiplier, drive, entry.storylet.IntensityDelta)
		}
	}

	d.sample(cfg, candidates, tick, &result)
	return result
}

// filterPool runs stages 1 through 3 over one pool in author order.
func (d *Director) filterPool(ctx context.Context, pool []*candidate, st *state.State, summary string, cfg story.DirectorConfig, tick int, result *selection) []*candidate {
	survivors := make([]*candidate, 0, len(pool))

	for _, entry := range pool {
		s := entry.storylet

		// Stage 1: precondition filtering.
		outcome := d.evaluateConditions(ctx, s.Preconditions, st, summary, cfg.Mode, true)
		result.nlEvals = append(result.nlEvals, outcome.nlEvals...)
		if !outcome.satisfied {
			result.rejected = append(result.rejected, RejectedStorylet{
				StoryletID: s.ID,
				Stage:      1,
				Reason:     "stage 1: " + firstFailure(outcome.reasons),
			})
			continue
		}

		// Stage 2: ordering constraints.
		if reason, ok := d.checkOrdering(s); !ok {
			result.rejected = append(result.rejected, RejectedStorylet{StoryletID: s.ID, Stage: 2, Reason: reason})
			continue
		}

		// Stage 3: cooldown and once.
		if reason, ok := d.checkCooldown(s, tick); !ok {
			result.rejected = append(result.rejected, RejectedStorylet{StoryletID: s.ID, Stage: 3, Reason: reason})
			continue
		}

		if len(s.Preconditions) == 0 {
			entry.note("stage 1: no preconditions (always satisfied)")
		} else {
			entry.note("stage 1: preconditions satisfied (%s)", joinReasons(reasonTexts(outcome.reasons)))
		}
		survivors = append(survivors, entry)
	}
	return survivors
}

func (d *Director) checkOrdering(s *story.Storylet) (string, bool) {
	for _, ref := range s.RequiresFired {
		if !d.history.FiredEver(ref) {
			return fmt.Sprintf("stage 2: requires_fired %q has not fired", ref), false
		}
	}
	for _, ref := range s.ForbidsFired {
		if d.history.FiredEver(ref) {
			return fmt.Sprintf("stage 2: forbids_fired %q has already fired", ref), false
		}
	}
	return "", true
}

func (d *Director) checkCooldown(s *story.Storylet, tick int) (string, bool) {
	if s.Once && d.history.FiredEver(s.ID) {
		last, _ := d.history.LastTriggered(s.ID)
		return fmt.Sprintf("stage 3: once and already fired at tick %d", last), false
	}
	// A storylet with cooldown c is ineligible for the c ticks after it
	// fires: eligible again once tick - last exceeds c.
	if last, ok := d.history.LastTriggered(s.ID); ok && s.Cooldown > 0 && tick-last <= s.Cooldown {
		return fmt.Sprintf("stage 3: cooling down (fired at tick %d, cooldown %d)", last, s.Cooldown), false
	}
	return "", true
}

// sample is stage 7: weighted reservoir sampling by exponential keys with a
// PRNG derived from (rng_seed, tick). For each positive-weight candidate in
// author order, key = -ln(u)/w; the events_per_tick smallest keys win, with
// ties broken by author order, and winners return in ascending key order.
func (d *Director) sample(cfg story.DirectorConfig, candidates []*candidate, tick int, result *selection) {
	stream := random.NewStream(random.Derive(cfg.RNGSeed, tick))

	eligible := make([]*candidate, 0, len(candidates))
	for _, entry := range candidates {
		if entry.weight <= 0 {
			result.rejected = append(result.rejected, RejectedStorylet{
				StoryletID: entry.storylet.ID,
				Stage:      7,
				Reason:     "stage 7: weight 0 excluded from sampling",
			})
			continue
		}
		u := stream.Float64()
		if u == 0 {
			u = math.SmallestNonzeroFloat64
		}
		entry.key = -math.Log(u) / entry.weight
		eligible = append(eligible, entry)
	}

	count := cfg.EventsPerTick
	if count > len(eligible) {
		count = len(eligible)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].key != eligible[j].key {
			return eligible[i].key < eligible[j].key
		}
		return eligible[i].order < eligible[j].order
	})

	for i, entry := range eligible {
		if i < count {
			entry.note("stage 7: key %.6f from weight %.4f", entry.key, entry.weight)
			result.selected = append(result.selected, entry)
			continue
		}
		result.rejected = append(result.rejected, RejectedStorylet{
			StoryletID: entry.storylet.ID,
			Stage:      7,
			Reason:     fmt.Sprintf("stage 7: key %.6f not among %d smallest", entry.key, count),
		})
	}
}

func firstFailure(reasons []ConditionReason) string {
	for _, reason := range reasons {
		if !reason.Satisfied {
			return reason.Reason
		}
	}
	return "precondition failed"
}

func reasonTexts(reasons []ConditionReason) []string {
	texts := make([]string, len(reasons))
	for i, reason := range reasons {
		texts[i] = reason.Reason
	}
	return texts
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
