package director

import (
	"fmt"

	apperrors "github.com/louisbranch/storyloom/internal/errors"
	"github.com/louisbranch/storyloom/internal/state"
	"github.com/louisbranch/storyloom/internal/story"
)

// AppliedEffect records one mutation with its per-path before/after values.
type AppliedEffect struct {
	Index  int            `json:"index"`
	Op     story.EffectOp `json:"op"`
	Path   string         `json:"path"`
	Value  any            `json:"value,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Before any            `json:"before"`
	After  any            `json:"after"`
}

// TickAborted is the composite error returned when effect application fails
// mid-tick. The cloned state is discarded, no record is appended, and
// history does not progress.
type TickAborted struct {
	StoryletID  string
	EffectIndex int
	Reason      string
}

// Error implements the error interface.
func (e *TickAborted) Error() string {
	return fmt.Sprintf("tick aborted: storylet %q effect %d: %s", e.StoryletID, e.EffectIndex, e.Reason)
}

// applyStoryletEffects applies a storylet's effects to the cloned state in
// author order. Any failure aborts with a TickAborted carrying the
// offending storylet and effect index.
func applyStoryletEffects(st *state.State, s *story.Storylet) ([]AppliedEffect, error) {
	applied := make([]AppliedEffect, 0, len(s.Effects))
	for i, effect := range s.Effects {
		before, after, err := applyEffect(st, effect)
		if err != nil {
			return nil, &TickAborted{StoryletID: s.ID, EffectIndex: i, Reason: err.Error()}
		}
		applied = append(applied, AppliedEffect{
			Index:  i,
			Op:     effect.Op,
			Path:   effect.FullPath(),
			Value:  state.CloneValue(effect.Value),
			Reason: effect.Reason,
			Before: before,
			After:  after,
		})
	}
	return applied, nil
}

// applyEffect mutates the state at the effect's path and returns the value
// before and after. Absent numeric vars are created from zero for add and
// multiply; append on an absent list creates the list first.
func applyEffect(st *state.State, effect story.Effect) (before, after any, err error) {
	path, err := effect.StatePath()
	if err != nil {
		return nil, nil, err
	}

	switch path.Kind {
	case state.KindWorldVar:
		if st.World.Vars == nil {
			st.World.Vars = map[string]any{}
		}
		return applyToVars(st.World.Vars, path.Key, effect)
	case state.KindWorldFact:
		return applyToFact(st, path, effect)
	case state.KindWorldTags:
		st.World.Tags, before, after, err = applyToStringSet(st.World.Tags, effect, true)
		return before, after, err
	case state.KindWorldHistory:
		st.World.History, before, after, err = applyToStringSet(st.World.History, effect, false)
		return before, after, err
	case state.KindWorldIntensity:
		return applyToIntensity(st, effect)
	case state.KindCharacter:
		c, ok := st.Characters[path.ID]
		if !ok {
			return nil, nil, apperrors.New(apperrors.CodePathNotFound, "path %s not present", path.String())
		}
		return applyToCharacter(c, path, effect)
	case state.KindRelationship:
		return applyToRelationship(st.EnsureRelationship(path.PairKey()), path, effect)
	default:
		return nil, nil, apperrors.New(apperrors.CodePathMalformed, "path %s has unknown kind", path.String())
	}
}

func applyToVars(vars map[string]any, key string, effect story.Effect) (any, any, error) {
	current, exists := vars[key]
	before := state.CloneValue(current)

	switch effect.Op {
	case story.EffectSet:
		vars[key] = state.CloneValue(effect.Value)
	case story.EffectAdd, story.EffectMultiply:
		base := 0.0
		if exists {
			number, ok := toNumber(current)
			if !ok {
				return nil, nil, typeMismatch(effect, "numeric %s needs a number at the path, found %s", effect.Op, state.FormatValue(current))
			}
			base = number
		}
		operand, ok := toNumber(effect.Value)
		if !ok {
			return nil, nil, typeMismatch(effect, "numeric %s needs a numeric value, got %s", effect.Op, state.FormatValue(effect.Value))
		}
		if effect.Op == story.EffectAdd {
			vars[key] = base + operand
		} else {
			vars[key] = base * operand
		}
	case story.EffectAppend:
		list, ok := toAnyList(current, exists)
		if !ok {
			return nil, nil, typeMismatch(effect, "append needs a list at the path, found %s", state.FormatValue(current))
		}
		vars[key] = append(list, state.CloneValue(effect.Value))
	case story.EffectRemove:
		if !exists {
			return before, nil, nil
		}
		list, ok := toList(current)
		if !ok {
			return nil, nil, typeMismatch(effect, "remove needs a list at the path, found %s", state.FormatValue(current))
		}
		vars[key] = removeFirst(list, effect.Value)
	}
	return before, state.CloneValue(vars[key]), nil
}

func applyToFact(st *state.State, path state.Path, effect story.Effect) (any, any, error) {
	if effect.Op != story.EffectSet && effect.Op != story.EffectRemove {
		return nil, nil, typeMismatch(effect, "facts only support set and remove, got %s", effect.Op)
	}
	if st.World.Facts == nil {
		st.World.Facts = map[string]map[string]string{}
	}
	entries := st.World.Facts[path.Category]
	var before any
	if entries != nil {
		if v, ok := entries[path.Key]; ok {
			before = v
		}
	}

	if effect.Op == story.EffectRemove {
		if entries != nil {
			delete(entries, path.Key)
		}
		return before, nil, nil
	}

	text, ok := effect.Value.(string)
	if !ok {
		return nil, nil, typeMismatch(effect, "facts hold strings, got %s", state.FormatValue(effect.Value))
	}
	if entries == nil {
		entries = map[string]string{}
		st.World.Facts[path.Category] = entries
	}
	entries[path.Key] = text
	return before, text, nil
}

// applyToStringSet mutates a string list. With set semantics, append
// deduplicates; the history log keeps every entry.
func applyToStringSet(values []string, effect story.Effect, dedup bool) ([]string, any, any, error) {
	before := anyOfStrings(values)

	text, textOK := effect.Value.(string)
	switch effect.Op {
	case story.EffectSet:
		list, ok := toList(effect.Value)
		if !ok {
			return values, nil, nil, typeMismatch(effect, "set needs a list of strings, got %s", state.FormatValue(effect.Value))
		}
		replaced := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return values, nil, nil, typeMismatch(effect, "set needs strings, got %s", state.FormatValue(item))
			}
			replaced = append(replaced, s)
		}
		values = replaced
	case story.EffectAppend:
		if !textOK {
			return values, nil, nil, typeMismatch(effect, "append needs a string, got %s", state.FormatValue(effect.Value))
		}
		if !dedup || !containsString(values, text) {
			values = append(values, text)
		}
	case story.EffectRemove:
		if !textOK {
			return values, nil, nil, typeMismatch(effect, "remove needs a string, got %s", state.FormatValue(effect.Value))
		}
		values = removeFirstString(values, text)
	default:
		return values, nil, nil, typeMismatch(effect, "%s is not valid on a string set", effect.Op)
	}
	return values, before, anyOfStrings(values), nil
}

func applyToIntensity(st *state.State, effect story.Effect) (any, any, error) {
	before := st.World.Intensity
	operand, ok := toNumber(effect.Value)
	if !ok {
		return nil, nil, typeMismatch(effect, "intensity needs a numeric value, got %s", state.FormatValue(effect.Value))
	}
	switch effect.Op {
	case story.EffectSet:
		st.World.Intensity = operand
	case story.EffectAdd:
		st.World.Intensity += operand
	case story.EffectMultiply:
		st.World.Intensity *= operand
	default:
		return nil, nil, typeMismatch(effect, "%s is not valid on intensity", effect.Op)
	}
	st.World.Intensity = clamp01(st.World.Intensity)
	return before, st.World.Intensity, nil
}

func applyToCharacter(c *state.Character, path state.Path, effect story.Effect) (any, any, error) {
	switch path.Field {
	case state.FieldMood, state.FieldStatus, state.FieldLocation:
		if effect.Op != story.EffectSet {
			return nil, nil, typeMismatch(effect, "%s only supports set, got %s", path.Field, effect.Op)
		}
		text, ok := effect.Value.(string)
		if !ok {
			return nil, nil, typeMismatch(effect, "%s holds a string, got %s", path.Field, state.FormatValue(effect.Value))
		}
		var before any
		switch path.Field {
		case state.FieldMood:
			before, c.Mood = c.Mood, text
		case state.FieldStatus:
			before, c.Status = c.Status, text
		default:
			before, c.Location = c.Location, text
		}
		return before, text, nil
	case state.FieldTraits:
		var before, after any
		var err error
		c.Traits, before, after, err = applyToStringSet(c.Traits, effect, true)
		return before, after, err
	case state.FieldGoals:
		var before, after any
		var err error
		c.Goals, before, after, err = applyToStringSet(c.Goals, effect, true)
		return before, after, err
	case state.FieldFears:
		var before, after any
		var err error
		c.Fears, before, after, err = applyToStringSet(c.Fears, effect, true)
		return before, after, err
	case state.FieldVars:
		if c.Vars == nil {
			c.Vars = map[string]any{}
		}
		return applyToVars(c.Vars, path.Key, effect)
	default:
		return nil, nil, apperrors.New(apperrors.CodePathMalformed, "unknown character field %q", path.Field)
	}
}

func applyToRelationship(r *state.Relationship, path state.Path, effect story.Effect) (any, any, error) {
	switch path.Field {
	case state.FieldStatus:
		if effect.Op != story.EffectSet {
			return nil, nil, typeMismatch(effect, "status only supports set, got %s", effect.Op)
		}
		text, ok := effect.Value.(string)
		if !ok {
			return nil, nil, typeMismatch(effect, "status holds a string, got %s", state.FormatValue(effect.Value))
		}
		before := r.Status
		r.Status = text
		return before, text, nil
	case state.FieldVars:
		if r.Vars == nil {
			r.Vars = map[string]any{}
		}
		return applyToVars(r.Vars, path.Key, effect)
	default:
		// Numeric metric such as trust or affection.
		if r.Metrics == nil {
			r.Metrics = map[string]float64{}
		}
		operand, ok := toNumber(effect.Value)
		if !ok {
			return nil, nil, typeMismatch(effect, "metric %s needs a numeric value, got %s", path.Field, state.FormatValue(effect.Value))
		}
		current, exists := r.Metrics[path.Field]
		var before any
		if exists {
			before = current
		}
		switch effect.Op {
		case story.EffectSet:
			r.Metrics[path.Field] = operand
		case story.EffectAdd:
			r.Metrics[path.Field] = current + operand
		case story.EffectMultiply:
			r.Metrics[path.Field] = current * operand
		default:
			return nil, nil, typeMismatch(effect, "%s is not valid on metric %s", effect.Op, path.Field)
		}
		return before, r.Metrics[path.Field], nil
	}
}

func typeMismatch(effect story.Effect, format string, args ...any) error {
	return apperrors.New(apperrors.CodeTypeMismatch, "%s at %s", fmt.Sprintf(format, args...), effect.FullPath())
}

func toAnyList(v any, exists bool) ([]any, bool) {
	if !exists || v == nil {
		return []any{}, true
	}
	return toList(v)
}

func removeFirst(list []any, v any) []any {
	for i, item := range list {
		if scalarEqual(item, v) {
			out := make([]any, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...)
		}
	}
	return list
}

func removeFirstString(values []string, v string) []string {
	for i, item := range values {
		if item == v {
			out := make([]string, 0, len(values)-1)
			out = append(out, values[:i]...)
			return append(out, values[i+1:]...)
		}
	}
	return values
}

func containsString(values []string, v string) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}

func anyOfStrings(values []string) any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
