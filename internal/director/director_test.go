package director

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	apperrors "github.com/louisbranch/storyloom/internal/errors"
	"github.com/louisbranch/storyloom/internal/judge"
	"github.com/louisbranch/storyloom/internal/story"
)

func fixedClock() time.Time {
	return time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
}

func testConfig() story.DirectorConfig {
	return story.DirectorConfig{
		EventsPerTick:    1,
		PacingPreference: story.PacingBalanced,
		Mode:             story.ModeDeterministic,
	}
}

func mustDirector(t *testing.T, project *story.Project, opts ...Option) *Director {
	t.Helper()
	opts = append(opts, WithClock(fixedClock))
	d, err := New(project, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func selectedIDs(record TickRecord) []string {
	ids := make([]string, len(record.Selected))
	for i, selected := range record.Selected {
		ids[i] = selected.StoryletID
	}
	return ids
}

func runTicks(t *testing.T, d *Director, cfg story.DirectorConfig, n int) []TickRecord {
	t.Helper()
	records := make([]TickRecord, 0, n)
	for i := 0; i < n; i++ {
		record, err := d.Tick(context.Background(), cfg)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		records = append(records, record)
	}
	return records
}

func TestTick_CooldownScenario(t *testing.T) {
	project := &story.Project{
		ID: "cooldown",
		Storylets: []story.Storylet{
			{ID: "A", Weight: 1, Cooldown: 2},
			{ID: "B", Weight: 0},
		},
	}
	d := mustDirector(t, project)
	records := runTicks(t, d, testConfig(), 4)

	want := [][]string{{"A"}, {}, {}, {"A"}}
	for i, record := range records {
		if !reflect.DeepEqual(selectedIDs(record), want[i]) && !(len(want[i]) == 0 && len(record.Selected) == 0) {
			t.Fatalf("tick %d selected %v, want %v", i, selectedIDs(record), want[i])
		}
	}

	// The cooling rejection cites stage 3.
	found := false
	for _, rejected := range records[1].Rejected {
		if rejected.StoryletID == "A" && rejected.Stage == 3 {
			found = true
			if !strings.Contains(rejected.Reason, "stage 3") {
				t.Fatalf("rejection reason %q does not cite stage 3", rejected.Reason)
			}
		}
	}
	if !found {
		t.Fatalf("tick 1 has no stage-3 rejection for A: %+v", records[1].Rejected)
	}
}

func TestTick_OnceAndFallbackScenario(t *testing.T) {
	project := &story.Project{
		ID: "once",
		Storylets: []story.Storylet{
			{ID: "Intro", Weight: 1, Once: true},
			{ID: "Ambient", Weight: 1, IsFallback: true},
		},
	}
	cfg := testConfig()
	cfg.FallbackAfterIdleTicks = 0

	d := mustDirector(t, project)
	records := runTicks(t, d, cfg, 2)

	if !reflect.DeepEqual(selectedIDs(records[0]), []string{"Intro"}) {
		t.Fatalf("tick 0 selected %v", selectedIDs(records[0]))
	}
	if !reflect.DeepEqual(selectedIDs(records[1]), []string{"Ambient"}) {
		t.Fatalf("tick 1 selected %v", selectedIDs(records[1]))
	}
	if !records[1].Selected[0].IsFallback {
		t.Fatal("Ambient not marked as fallback")
	}
	if !strings.Contains(records[1].Selected[0].Rationale, "stage 4") {
		t.Fatalf("fallback rationale %q does not cite stage 4", records[1].Selected[0].Rationale)
	}
	// Fallback ticks still count as idle.
	if records[1].IdleTickCountAfter != 1 {
		t.Fatalf("idle after fallback tick = %d, want 1", records[1].IdleTickCountAfter)
	}
}

func TestTick_OrderingScenario(t *testing.T) {
	project := &story.Project{
		ID: "ordering",
		Storylets: []story.Storylet{
			{ID: "S1", Weight: 1, Once: true},
			{ID: "S2", Weight: 1, RequiresFired: []string{"S1"}},
		},
	}
	d := mustDirector(t, project)
	records := runTicks(t, d, testConfig(), 2)

	if !reflect.DeepEqual(selectedIDs(records[0]), []string{"S1"}) {
		t.Fatalf("tick 0 selected %v, want S1", selectedIDs(records[0]))
	}
	for _, rejected := range records[0].Rejected {
		if rejected.StoryletID == "S2" && rejected.Stage != 2 {
			t.Fatalf("S2 rejection stage = %d, want 2", rejected.Stage)
		}
	}
	if !reflect.DeepEqual(selectedIDs(records[1]), []string{"S2"}) {
		t.Fatalf("tick 1 selected %v, want S2", selectedIDs(records[1]))
	}
}

func TestTick_ForbidsScenario(t *testing.T) {
	project := &story.Project{
		ID: "forbids",
		Storylets: []story.Storylet{
			{ID: "Peace", Weight: 1, Once: true},
			{ID: "War", Weight: 1, ForbidsFired: []string{"Peace"}},
		},
	}
	d := mustDirector(t, project)
	cfg := testConfig()
	cfg.RNGSeed = 2
	records := runTicks(t, d, cfg, 6)

	if !reflect.DeepEqual(selectedIDs(records[0]), []string{"Peace"}) {
		t.Fatalf("tick 0 selected %v, want Peace", selectedIDs(records[0]))
	}
	for i, record := range records {
		for _, id := range selectedIDs(record) {
			if id == "War" {
				t.Fatalf("tick %d selected War after Peace fired", i)
			}
		}
	}
}

func TestTick_EmptyTickSemantics(t *testing.T) {
	project := &story.Project{
		ID: "empty",
		Storylets: []story.Storylet{
			{ID: "never", Weight: 1, Preconditions: []story.Precondition{
				{Path: "world.vars.impossible", Op: story.OpEqual, Value: 1.0},
			}},
		},
	}
	project.World.Intensity = 0.8
	project.World.Vars = map[string]any{"treasury": 100.0}

	cfg := testConfig()
	cfg.IntensityDecay = 0.1
	d := mustDirector(t, project)

	record, err := d.Tick(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(record.Selected) != 0 {
		t.Fatalf("selected = %v, want empty", selectedIDs(record))
	}
	want := 0.8 - 0.1*(0.8-0.5)
	if record.IntensityAfter != want {
		t.Fatalf("intensity after empty tick = %g, want %g", record.IntensityAfter, want)
	}
	if record.IdleTickCountAfter != 1 {
		t.Fatalf("idle = %d, want 1", record.IdleTickCountAfter)
	}

	// Everything except intensity is bitwise unchanged.
	st := d.State()
	if st.World.Vars["treasury"] != 100.0 {
		t.Fatalf("treasury changed: %v", st.World.Vars["treasury"])
	}
	for _, change := range record.Diffs {
		if change.Path != "world.intensity" {
			t.Fatalf("empty tick diffed %q", change.Path)
		}
	}
}

func TestTick_Determinism(t *testing.T) {
	build := func() *Director {
		project := &story.Project{
			ID: "determinism",
			Storylets: []story.Storylet{
				{ID: "a", Weight: 1, Tags: []string{"economic"}, IntensityDelta: 0.1,
					Effects: []story.Effect{{Scope: story.ScopeWorld, Op: story.EffectAdd, Path: "vars.treasury", Value: 5.0}}},
				{ID: "b", Weight: 0.7, Tags: []string{"conflict"}, IntensityDelta: -0.1,
					Effects: []story.Effect{{Scope: story.ScopeWorld, Op: story.EffectAppend, Path: "vars.rumors", Value: "whispers"}}},
				{ID: "c", Weight: 0.4, Tags: []string{"economic"}},
			},
		}
		project.World.Intensity = 0.5
		project.World.Vars = map[string]any{"treasury": 10.0}
		return mustDirector(t, project)
	}

	cfg := testConfig()
	cfg.EventsPerTick = 2
	cfg.DiversityPenalty = 0.5
	cfg.DiversityWindow = 3
	cfg.PacingScale = 0.5
	cfg.IntensityDecay = 0.1
	cfg.RNGSeed = 42

	first := runTicks(t, build(), cfg, 6)
	second := runTicks(t, build(), cfg, 6)

	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal first run: %v", err)
	}
	secondJSON, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal second run: %v", err)
	}
	if string(firstJSON) != string(secondJSON) {
		t.Fatal("identical runs produced different records")
	}
}

func TestTick_HashesChainAcrossTicks(t *testing.T) {
	project := &story.Project{
		ID: "hashes",
		Storylets: []story.Storylet{
			{ID: "a", Weight: 1,
				Effects: []story.Effect{{Scope: story.ScopeWorld, Op: story.EffectAdd, Path: "vars.n", Value: 1.0}}},
		},
	}
	d := mustDirector(t, project)
	records := runTicks(t, d, testConfig(), 3)

	for i, record := range records {
		if record.StateBeforeHash == "" || record.StateAfterHash == "" {
			t.Fatalf("tick %d is missing state hashes", i)
		}
		if i > 0 && records[i-1].StateAfterHash != record.StateBeforeHash {
			t.Fatalf("tick %d before-hash does not chain from tick %d", i, i-1)
		}
	}
	if records[0].StateAfterHash == records[0].StateBeforeHash {
		t.Fatal("effectful tick did not change the state hash")
	}
}

func TestReplay_MatchesOriginalRun(t *testing.T) {
	project := &story.Project{
		ID: "replay",
		Storylets: []story.Storylet{
			{ID: "a", Weight: 1, Tags: []string{"economic"},
				Effects: []story.Effect{{Scope: story.ScopeWorld, Op: story.EffectAdd, Path: "vars.n", Value: 1.0}}},
			{ID: "b", Weight: 1, Tags: []string{"conflict"}, IntensityDelta: 0.2},
		},
	}
	cfg := testConfig()
	cfg.DiversityPenalty = 0.3
	cfg.DiversityWindow = 2
	cfg.RNGSeed = 7

	d := mustDirector(t, project)
	original := runTicks(t, d, cfg, 5)

	replayed, err := d.Replay(context.Background(), 0, 4, cfg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	originalJSON, _ := json.Marshal(original)
	replayedJSON, _ := json.Marshal(replayed)
	if string(originalJSON) != string(replayedJSON) {
		t.Fatal("replay differs from the original run")
	}

	// Subranges line up with the original indices.
	tail, err := d.Replay(context.Background(), 3, 4, cfg)
	if err != nil {
		t.Fatalf("Replay subrange: %v", err)
	}
	if len(tail) != 2 || tail[0].TickIndex != 3 || tail[1].TickIndex != 4 {
		t.Fatalf("subrange indices = %v", tail)
	}

	if _, err := d.Replay(context.Background(), 0, 99, cfg); err == nil {
		t.Fatal("replay beyond history accepted")
	}
}

func TestTick_DeterministicModeSkipsNLConditions(t *testing.T) {
	project := &story.Project{
		ID: "modes",
		Storylets: []story.Storylet{
			{ID: "haunted", Weight: 1, Preconditions: []story.Precondition{
				{NLText: "the manor feels haunted"},
			}},
		},
	}
	d := mustDirector(t, project, WithJudge(judge.Stub{
		"the manor feels haunted": {Satisfied: true, Confidence: 1, Reason: "it always does"},
	}, nil))

	record, err := d.Tick(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(record.Selected) != 0 {
		t.Fatal("deterministic mode consulted the judge")
	}
	found := false
	for _, rejected := range record.Rejected {
		if strings.Contains(rejected.Reason, "skipped: nl condition in deterministic mode") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing skip reason in rejections: %+v", record.Rejected)
	}
	if len(record.NLEvaluations) != 0 {
		t.Fatal("deterministic mode recorded judge evaluations")
	}
}

func TestTick_AIAssistedUsesJudgeAndCache(t *testing.T) {
	project := &story.Project{
		ID: "assisted",
		Storylets: []story.Storylet{
			{ID: "haunted", Weight: 1, Preconditions: []story.Precondition{
				{Path: "world.vars.dread", Op: story.OpGreaterEqual, Value: 1.0},
				{NLText: "the manor feels haunted"},
			}},
		},
	}
	project.World.Vars = map[string]any{"dread": 3.0}

	d := mustDirector(t, project, WithJudge(judge.Stub{
		"the manor feels haunted": {Satisfied: true, Confidence: 0.8, Reason: "cold spots everywhere"},
	}, nil))

	cfg := testConfig()
	cfg.Mode = story.ModeAIAssisted

	first, err := d.Tick(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !reflect.DeepEqual(selectedIDs(first), []string{"haunted"}) {
		t.Fatalf("selected = %v", selectedIDs(first))
	}
	if len(first.NLEvaluations) != 1 || first.NLEvaluations[0].CacheHit {
		t.Fatalf("first tick nl evaluations = %+v", first.NLEvaluations)
	}

	// No effects means the state summary is unchanged; the second tick hits
	// the cache.
	second, err := d.Tick(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(second.NLEvaluations) != 1 || !second.NLEvaluations[0].CacheHit {
		t.Fatalf("second tick nl evaluations = %+v", second.NLEvaluations)
	}
}

func TestTick_AIAssistedShortCircuitsBeforeJudge(t *testing.T) {
	project := &story.Project{
		ID: "short-circuit",
		Storylets: []story.Storylet{
			{ID: "haunted", Weight: 1, Preconditions: []story.Precondition{
				{Path: "world.vars.dread", Op: story.OpGreaterEqual, Value: 10.0},
				{NLText: "the manor feels haunted"},
			}},
		},
	}
	project.World.Vars = map[string]any{"dread": 1.0}

	calls := 0
	counting := judge.Func(func(_ context.Context, _, _ string) (judge.Verdict, error) {
		calls++
		return judge.Verdict{Satisfied: true, Confidence: 1}, nil
	})
	d := mustDirector(t, project, WithJudge(counting, nil))

	cfg := testConfig()
	cfg.Mode = story.ModeAIAssisted
	if _, err := d.Tick(context.Background(), cfg); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if calls != 0 {
		t.Fatalf("judge called %d times after typed failure, want 0", calls)
	}
}

func TestTick_AIPrimarySerializesTypedConditions(t *testing.T) {
	project := &story.Project{
		ID: "primary",
		Storylets: []story.Storylet{
			{ID: "riot", Weight: 1, Preconditions: []story.Precondition{
				{Path: "world.vars.tension", Op: story.OpGreaterEqual, Value: 70.0},
			}},
		},
	}
	project.World.Vars = map[string]any{"tension": 10.0}

	d := mustDirector(t, project, WithJudge(judge.Stub{
		"world.vars.tension >= 70": {Satisfied: true, Confidence: 0.95, Reason: "the crowd is seething"},
	}, nil))

	cfg := testConfig()
	cfg.Mode = story.ModeAIPrimary

	record, err := d.Tick(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	// The judge, not the typed evaluator, decided: tension is 10 but the
	// serialized condition was judged satisfied.
	if !reflect.DeepEqual(selectedIDs(record), []string{"riot"}) {
		t.Fatalf("selected = %v", selectedIDs(record))
	}
	if len(record.NLEvaluations) != 1 || record.NLEvaluations[0].ConditionText != "world.vars.tension >= 70" {
		t.Fatalf("nl evaluations = %+v", record.NLEvaluations)
	}
}

func TestTick_AbortLeavesNoTrace(t *testing.T) {
	project := &story.Project{
		ID: "abort",
		Storylets: []story.Storylet{
			{ID: "bad", Weight: 1, Effects: []story.Effect{
				{Scope: story.ScopeWorld, Op: story.EffectMultiply, Path: "vars.name", Value: 2.0},
			}},
		},
	}
	project.World.Vars = map[string]any{"name": "Thornwall"}

	d := mustDirector(t, project)
	before := d.State()

	_, err := d.Tick(context.Background(), testConfig())
	if err == nil {
		t.Fatal("expected abort")
	}
	aborted, ok := err.(*TickAborted)
	if !ok {
		t.Fatalf("error type = %T, want *TickAborted", err)
	}
	if aborted.StoryletID != "bad" || aborted.EffectIndex != 0 {
		t.Fatalf("abort context = %+v", aborted)
	}
	if d.History().Len() != 0 {
		t.Fatal("aborted tick appended a record")
	}
	if !reflect.DeepEqual(before, d.State()) {
		t.Fatal("aborted tick mutated the state")
	}
}

func TestExplain_EvaluatesEveryCondition(t *testing.T) {
	project := &story.Project{
		ID: "explain",
		Storylets: []story.Storylet{
			{ID: "riot", Weight: 1, Preconditions: []story.Precondition{
				{Path: "world.vars.tension", Op: story.OpGreaterEqual, Value: 70.0},
				{Path: "world.vars.season", Op: story.OpEqual, Value: "winter"},
			}},
		},
	}
	project.World.Vars = map[string]any{"tension": 45.0, "season": "winter"}

	d := mustDirector(t, project)
	reasons, err := d.Explain(context.Background(), "riot", testConfig())
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if len(reasons) != 2 {
		t.Fatalf("reasons = %+v, want both conditions", reasons)
	}
	if reasons[0].Satisfied || !reasons[1].Satisfied {
		t.Fatalf("reasons = %+v", reasons)
	}
	if d.History().Len() != 0 {
		t.Fatal("Explain mutated history")
	}

	if _, err := d.Explain(context.Background(), "ghost", testConfig()); err == nil {
		t.Fatal("unknown storylet accepted")
	}
}

func TestInject_EnforcesOnceAndOrdering(t *testing.T) {
	project := &story.Project{
		ID: "inject",
		Storylets: []story.Storylet{
			{ID: "Peace", Weight: 1, Once: true},
			{ID: "War", Weight: 1, ForbidsFired: []string{"Peace"}},
			{ID: "Treaty", Weight: 1, RequiresFired: []string{"War"}},
		},
	}
	d := mustDirector(t, project)
	cfg := testConfig()

	if _, err := d.Inject(context.Background(), "Peace", cfg); err != nil {
		t.Fatalf("inject Peace: %v", err)
	}
	if _, err := d.Inject(context.Background(), "Peace", cfg); !apperrors.IsCode(err, apperrors.CodeOnceViolation) {
		t.Fatalf("second Peace injection error = %v, want ONCE_VIOLATION", err)
	}
	if _, err := d.Inject(context.Background(), "War", cfg); !apperrors.IsCode(err, apperrors.CodeOrderingViolation) {
		t.Fatalf("War injection error = %v, want ORDERING_VIOLATION", err)
	}
	if _, err := d.Inject(context.Background(), "Treaty", cfg); !apperrors.IsCode(err, apperrors.CodeOrderingViolation) {
		t.Fatalf("Treaty injection error = %v, want ORDERING_VIOLATION", err)
	}
}

func TestTickRecord_RoundTripsThroughJSON(t *testing.T) {
	project := &story.Project{
		ID: "roundtrip",
		Storylets: []story.Storylet{
			{ID: "a", Weight: 1, Tags: []string{"economic"},
				Effects: []story.Effect{{Scope: story.ScopeWorld, Op: story.EffectAdd, Path: "vars.n", Value: 1.0}}},
		},
	}
	d := mustDirector(t, project)
	record, err := d.Tick(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	var decoded TickRecord
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	reencoded, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("re-marshal record: %v", err)
	}
	if string(encoded) != string(reencoded) {
		t.Fatalf("record does not round-trip:\n%s\n%s", encoded, reencoded)
	}
}

func TestReplay_ReproducesJudgeCacheHits(t *testing.T) {
	project := &story.Project{
		ID: "replay-judge",
		Storylets: []story.Storylet{
			{ID: "haunted", Weight: 1, Preconditions: []story.Precondition{
				{NLText: "the manor feels haunted"},
			}},
		},
	}
	d := mustDirector(t, project, WithJudge(judge.Stub{
		"the manor feels haunted": {Satisfied: true, Confidence: 0.8, Reason: "cold spots"},
	}, nil))

	cfg := testConfig()
	cfg.Mode = story.ModeAIAssisted
	original := runTicks(t, d, cfg, 3)

	replayed, err := d.Replay(context.Background(), 0, 2, cfg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	originalJSON, _ := json.Marshal(original)
	replayedJSON, _ := json.Marshal(replayed)
	if string(originalJSON) != string(replayedJSON) {
		t.Fatalf("replay with judge differs:\n%s\n%s", originalJSON, replayedJSON)
	}
}
