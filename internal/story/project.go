package story

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/louisbranch/storyloom/internal/errors"
	"github.com/louisbranch/storyloom/internal/state"
)

// CharacterProfile is the static authored profile a character state is
// seeded from.
type CharacterProfile struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Traits      []string `json:"traits,omitempty"`
	Goals       []string `json:"goals,omitempty"`
	Fears       []string `json:"fears,omitempty"`
}

// Project is an immutable authored snapshot: the initial world, character
// profiles, seed relationships, and the storylet pool in author order.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	World         state.World                   `json:"world"`
	Characters    map[string]CharacterProfile   `json:"characters,omitempty"`
	Relationships map[string]state.Relationship `json:"relationships,omitempty"`
	Storylets     []Storylet                    `json:"storylets,omitempty"`
}

// UnmarshalJSON decodes a project, defaulting the initial intensity to the
// neutral level when the author omits it.
func (p *Project) UnmarshalJSON(data []byte) error {
	type alias Project
	decoded := alias{World: state.World{Intensity: state.DefaultIntensity}}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = Project(decoded)
	return nil
}

// DecodeProject decodes and validates a serialized project.
func DecodeProject(data []byte) (*Project, error) {
	var project Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	if err := project.Validate(); err != nil {
		return nil, err
	}
	return &project, nil
}

// Storylet returns the storylet with the given id.
func (p *Project) Storylet(id string) (*Storylet, bool) {
	for i := range p.Storylets {
		if p.Storylets[i].ID == id {
			return &p.Storylets[i], true
		}
	}
	return nil, false
}

// InitialState builds the state a new story thread starts from: the
// project's world plus character states seeded from their profiles.
func (p *Project) InitialState() *state.State {
	initial := state.New()
	initial.World = state.World{
		Vars:      map[string]any{},
		Facts:     map[string]map[string]string{},
		Tags:      append([]string(nil), p.World.Tags...),
		History:   append([]string(nil), p.World.History...),
		Intensity: p.World.Intensity,
	}
	for k, v := range p.World.Vars {
		initial.World.Vars[k] = state.CloneValue(v)
	}
	for category, entries := range p.World.Facts {
		inner := make(map[string]string, len(entries))
		for k, v := range entries {
			inner[k] = v
		}
		initial.World.Facts[category] = inner
	}

	for id, profile := range p.Characters {
		initial.Characters[id] = &state.Character{
			Traits: append([]string(nil), profile.Traits...),
			Goals:  append([]string(nil), profile.Goals...),
			Fears:  append([]string(nil), profile.Fears...),
			Vars:   map[string]any{},
		}
	}
	for key, rel := range p.Relationships {
		a, b, ok := state.SplitPairKey(key)
		if !ok {
			continue
		}
		seeded := rel
		initial.Relationships[state.PairKey(a, b)] = &state.Relationship{
			Status:  seeded.Status,
			Metrics: cloneMetrics(seeded.Metrics),
			Vars:    cloneAnyMap(seeded.Vars),
		}
	}
	return initial
}

func cloneMetrics(metrics map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		out[k] = v
	}
	return out
}

func cloneAnyMap(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = state.CloneValue(v)
	}
	return out
}

// Validate checks the project and every storylet it carries. All problems
// surface at load; the tick path assumes validated input.
func (p *Project) Validate() error {
	if p.ID == "" {
		return apperrors.New(apperrors.CodeProjectEmptyID, "project id is required")
	}

	ids := make(map[string]bool, len(p.Storylets))
	for i := range p.Storylets {
		s := &p.Storylets[i]
		if s.ID == "" {
			return apperrors.New(apperrors.CodeStoryletEmptyID, "storylet %d has no id", i)
		}
		if ids[s.ID] {
			return apperrors.New(apperrors.CodeStoryletDuplicateID, "storylet id %q is duplicated", s.ID)
		}
		ids[s.ID] = true
		if err := s.validate(); err != nil {
			return err
		}
	}

	// Ordering references must name storylets in the pool.
	for i := range p.Storylets {
		s := &p.Storylets[i]
		for _, ref := range s.RequiresFired {
			if !ids[ref] {
				return apperrors.New(apperrors.CodeStoryletUnknownReference,
					"storylet %q requires_fired references unknown storylet %q", s.ID, ref)
			}
		}
		for _, ref := range s.ForbidsFired {
			if !ids[ref] {
				return apperrors.New(apperrors.CodeStoryletUnknownReference,
					"storylet %q forbids_fired references unknown storylet %q", s.ID, ref)
			}
		}
	}
	return nil
}

func (s *Storylet) validate() error {
	if s.Weight < 0 {
		return apperrors.New(apperrors.CodeStoryletInvalidWeight, "storylet %q weight must be >= 0, got %g", s.ID, s.Weight)
	}
	if s.Cooldown < 0 {
		return apperrors.New(apperrors.CodeStoryletInvalidCooldown, "storylet %q cooldown must be >= 0, got %d", s.ID, s.Cooldown)
	}
	if s.IntensityDelta < -1 || s.IntensityDelta > 1 {
		return apperrors.New(apperrors.CodeStoryletInvalidDelta, "storylet %q intensity_delta must be in [-1, 1], got %g", s.ID, s.IntensityDelta)
	}

	for i, cond := range s.Preconditions {
		typed := cond.Path != "" || cond.Op != ""
		if typed && cond.IsNL() {
			return apperrors.New(apperrors.CodePreconditionAmbiguousForm,
				"storylet %q precondition %d mixes typed and natural-language forms", s.ID, i)
		}
		if !typed && !cond.IsNL() {
			return apperrors.New(apperrors.CodePreconditionEmptyForm,
				"storylet %q precondition %d has neither a typed nor a natural-language form", s.ID, i)
		}
		if typed {
			if !knownOp(cond.Op) {
				return apperrors.New(apperrors.CodePreconditionUnknownOp,
					"storylet %q precondition %d has unknown op %q", s.ID, i, cond.Op)
			}
			if _, err := state.ParsePath(cond.FullPath()); err != nil {
				return apperrors.Wrap(apperrors.GetCode(err), err, "storylet %q precondition %d", s.ID, i)
			}
		}
	}

	for i, effect := range s.Effects {
		if !knownEffectOp(effect.Op) {
			return apperrors.New(apperrors.CodeEffectUnknownOp,
				"storylet %q effect %d has unknown op %q", s.ID, i, effect.Op)
		}
		switch effect.Scope {
		case ScopeWorld, ScopeCharacter, ScopeRelationship, "":
		default:
			return apperrors.New(apperrors.CodeEffectUnknownScope,
				"storylet %q effect %d has unknown scope %q", s.ID, i, effect.Scope)
		}
		if _, err := effect.StatePath(); err != nil {
			return apperrors.Wrap(apperrors.GetCode(err), err, "storylet %q effect %d", s.ID, i)
		}
	}
	return nil
}

func knownOp(op Op) bool {
	for _, known := range ConditionOps {
		if op == known {
			return true
		}
	}
	return false
}

func knownEffectOp(op EffectOp) bool {
	for _, known := range EffectOps {
		if op == known {
			return true
		}
	}
	return false
}
