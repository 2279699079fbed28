package director

import (
	"reflect"
	"testing"

	"github.com/louisbranch/storyloom/internal/state"
	"github.com/louisbranch/storyloom/internal/story"
)

func effectState() *state.State {
	st := state.New()
	st.World.Vars["treasury"] = 100.0
	st.World.Vars["omens"] = []any{"comet"}
	st.Characters["alice"] = &state.Character{Mood: "calm", Traits: []string{"brave"}, Vars: map[string]any{}}
	return st
}

func TestApplyEffect_Operations(t *testing.T) {
	cases := []struct {
		name   string
		effect story.Effect
		check  func(t *testing.T, st *state.State)
	}{
		{
			name:   "set world var",
			effect: story.Effect{Scope: story.ScopeWorld, Op: story.EffectSet, Path: "vars.treasury", Value: 60.0},
			check: func(t *testing.T, st *state.State) {
				if st.World.Vars["treasury"] != 60.0 {
					t.Fatalf("treasury = %v", st.World.Vars["treasury"])
				}
			},
		},
		{
			name:   "add world var",
			effect: story.Effect{Scope: story.ScopeWorld, Op: story.EffectAdd, Path: "vars.treasury", Value: -30.0},
			check: func(t *testing.T, st *state.State) {
				if st.World.Vars["treasury"] != 70.0 {
					t.Fatalf("treasury = %v", st.World.Vars["treasury"])
				}
			},
		},
		{
			name:   "multiply world var",
			effect: story.Effect{Scope: story.ScopeWorld, Op: story.EffectMultiply, Path: "vars.treasury", Value: 0.5},
			check: func(t *testing.T, st *state.State) {
				if st.World.Vars["treasury"] != 50.0 {
					t.Fatalf("treasury = %v", st.World.Vars["treasury"])
				}
			},
		},
		{
			name:   "append keeps duplicates",
			effect: story.Effect{Scope: story.ScopeWorld, Op: story.EffectAppend, Path: "vars.omens", Value: "comet"},
			check: func(t *testing.T, st *state.State) {
				want := []any{"comet", "comet"}
				if !reflect.DeepEqual(st.World.Vars["omens"], want) {
					t.Fatalf("omens = %v", st.World.Vars["omens"])
				}
			},
		},
		{
			name:   "remove first equal value",
			effect: story.Effect{Scope: story.ScopeWorld, Op: story.EffectRemove, Path: "vars.omens", Value: "comet"},
			check: func(t *testing.T, st *state.State) {
				if !reflect.DeepEqual(st.World.Vars["omens"], []any{}) {
					t.Fatalf("omens = %v", st.World.Vars["omens"])
				}
			},
		},
		{
			name:   "set character mood",
			effect: story.Effect{Scope: story.ScopeCharacter, Target: "alice", Op: story.EffectSet, Path: "mood", Value: "furious"},
			check: func(t *testing.T, st *state.State) {
				if st.Characters["alice"].Mood != "furious" {
					t.Fatalf("mood = %q", st.Characters["alice"].Mood)
				}
			},
		},
		{
			name:   "append trait deduplicates",
			effect: story.Effect{Scope: story.ScopeCharacter, Target: "alice", Op: story.EffectAppend, Path: "traits", Value: "brave"},
			check: func(t *testing.T, st *state.State) {
				if !reflect.DeepEqual(st.Characters["alice"].Traits, []string{"brave"}) {
					t.Fatalf("traits = %v", st.Characters["alice"].Traits)
				}
			},
		},
		{
			name:   "relationship add creates the pair",
			effect: story.Effect{Scope: story.ScopeRelationship, Target: "bob|alice", Op: story.EffectAdd, Path: "trust", Value: 10.0},
			check: func(t *testing.T, st *state.State) {
				rel, ok := st.Relationship("alice|bob")
				if !ok {
					t.Fatal("relationship not created")
				}
				if rel.Metrics["trust"] != 10.0 {
					t.Fatalf("trust = %v", rel.Metrics["trust"])
				}
			},
		},
		{
			name:   "append to missing list creates it",
			effect: story.Effect{Scope: story.ScopeWorld, Op: story.EffectAppend, Path: "vars.rumors", Value: "the king is ill"},
			check: func(t *testing.T, st *state.State) {
				want := []any{"the king is ill"}
				if !reflect.DeepEqual(st.World.Vars["rumors"], want) {
					t.Fatalf("rumors = %v", st.World.Vars["rumors"])
				}
			},
		},
		{
			name:   "world history append",
			effect: story.Effect{Scope: story.ScopeWorld, Op: story.EffectAppend, Path: "history", Value: "the siege began"},
			check: func(t *testing.T, st *state.State) {
				if len(st.World.History) != 1 || st.World.History[0] != "the siege began" {
					t.Fatalf("history = %v", st.World.History)
				}
			},
		},
		{
			name:   "world tag append deduplicates",
			effect: story.Effect{Scope: story.ScopeWorld, Op: story.EffectAppend, Path: "tags", Value: "war"},
			check: func(t *testing.T, st *state.State) {
				if !reflect.DeepEqual(st.World.Tags, []string{"war"}) {
					t.Fatalf("tags = %v", st.World.Tags)
				}
			},
		},
		{
			name:   "fact set creates category",
			effect: story.Effect{Scope: story.ScopeWorld, Op: story.EffectSet, Path: "facts.geography.capital", Value: "Thornwall"},
			check: func(t *testing.T, st *state.State) {
				if st.World.Facts["geography"]["capital"] != "Thornwall" {
					t.Fatalf("facts = %v", st.World.Facts)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := effectState()
			before, after, err := applyEffect(st, tc.effect)
			if err != nil {
				t.Fatalf("applyEffect: %v", err)
			}
			_ = before
			_ = after
			tc.check(t, st)
		})
	}
}

func TestApplyEffect_RecordsBeforeAndAfter(t *testing.T) {
	st := effectState()
	effect := story.Effect{Scope: story.ScopeWorld, Op: story.EffectAdd, Path: "vars.treasury", Value: -30.0}

	before, after, err := applyEffect(st, effect)
	if err != nil {
		t.Fatalf("applyEffect: %v", err)
	}
	if before != 100.0 || after != 70.0 {
		t.Fatalf("before/after = %v/%v, want 100/70", before, after)
	}
}

func TestApplyEffect_Failures(t *testing.T) {
	cases := []struct {
		name   string
		effect story.Effect
	}{
		{"add on list", story.Effect{Scope: story.ScopeWorld, Op: story.EffectAdd, Path: "vars.omens", Value: 1.0}},
		{"multiply on list", story.Effect{Scope: story.ScopeWorld, Op: story.EffectMultiply, Path: "vars.omens", Value: 2.0}},
		{"append on number", story.Effect{Scope: story.ScopeWorld, Op: story.EffectAppend, Path: "vars.treasury", Value: 1.0}},
		{"missing character", story.Effect{Scope: story.ScopeCharacter, Target: "ghost", Op: story.EffectSet, Path: "mood", Value: "sad"}},
		{"mood add", story.Effect{Scope: story.ScopeCharacter, Target: "alice", Op: story.EffectAdd, Path: "mood", Value: 1.0}},
		{"metric with string", story.Effect{Scope: story.ScopeRelationship, Target: "alice|bob", Op: story.EffectSet, Path: "trust", Value: "high"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := effectState()
			if _, _, err := applyEffect(st, tc.effect); err == nil {
				t.Fatal("applyEffect succeeded, want error")
			}
		})
	}
}

func TestApplyStoryletEffects_AbortCarriesContext(t *testing.T) {
	st := effectState()
	s := &story.Storylet{
		ID: "st-bad",
		Effects: []story.Effect{
			{Scope: story.ScopeWorld, Op: story.EffectSet, Path: "vars.treasury", Value: 10.0},
			{Scope: story.ScopeWorld, Op: story.EffectMultiply, Path: "vars.omens", Value: 2.0},
		},
	}

	_, err := applyStoryletEffects(st, s)
	if err == nil {
		t.Fatal("expected abort")
	}
	aborted, ok := err.(*TickAborted)
	if !ok {
		t.Fatalf("error type = %T, want *TickAborted", err)
	}
	if aborted.StoryletID != "st-bad" || aborted.EffectIndex != 1 {
		t.Fatalf("abort context = %+v", aborted)
	}
}

func TestApplyEffect_RemoveOnMissingIsNoOp(t *testing.T) {
	st := effectState()
	effect := story.Effect{Scope: story.ScopeWorld, Op: story.EffectRemove, Path: "vars.rumors", Value: "anything"}
	if _, _, err := applyEffect(st, effect); err != nil {
		t.Fatalf("remove on missing path: %v", err)
	}

	listEffect := story.Effect{Scope: story.ScopeWorld, Op: story.EffectRemove, Path: "vars.omens", Value: "famine"}
	if _, _, err := applyEffect(st, listEffect); err != nil {
		t.Fatalf("remove of absent value: %v", err)
	}
	if !reflect.DeepEqual(st.World.Vars["omens"], []any{"comet"}) {
		t.Fatalf("omens = %v", st.World.Vars["omens"])
	}
}

func TestApplyEffect_IntensityClamped(t *testing.T) {
	st := effectState()
	effect := story.Effect{Scope: story.ScopeWorld, Op: story.EffectAdd, Path: "intensity", Value: 2.0}
	if _, _, err := applyEffect(st, effect); err != nil {
		t.Fatalf("applyEffect: %v", err)
	}
	if st.World.Intensity != 1.0 {
		t.Fatalf("intensity = %g, want clamped to 1", st.World.Intensity)
	}
}
