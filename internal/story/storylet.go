// Package story defines the authored data the director consumes: storylets
// with preconditions and effects, character profiles, the project snapshot,
// and the director configuration surface. Authored data is immutable during
// a run; validation happens at load, never at tick time.
package story

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louisbranch/storyloom/internal/state"
)

// DefaultWeight is the base selection weight applied when authors omit one.
const DefaultWeight = 0.3

// Op is a typed-condition comparison operator.
type Op string

// Supported condition operators.
const (
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpIn           Op = "in"
	OpNotIn        Op = "not_in"
	OpContains     Op = "contains"
	OpHasTag       Op = "has_tag"
	OpLacksTag     Op = "lacks_tag"
)

// ConditionOps lists every supported condition operator.
var ConditionOps = []Op{
	OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual,
	OpIn, OpNotIn, OpContains, OpHasTag, OpLacksTag,
}

// EffectOp is an effect mutation operator.
type EffectOp string

// Supported effect operators.
const (
	EffectSet      EffectOp = "set"
	EffectAdd      EffectOp = "add"
	EffectMultiply EffectOp = "multiply"
	EffectAppend   EffectOp = "append"
	EffectRemove   EffectOp = "remove"
)

// EffectOps lists every supported effect operator.
var EffectOps = []EffectOp{EffectSet, EffectAdd, EffectMultiply, EffectAppend, EffectRemove}

// Scope identifies which part of the state a condition or effect addresses.
type Scope string

// Supported scopes.
const (
	ScopeWorld        Scope = "world"
	ScopeCharacter    Scope = "character"
	ScopeRelationship Scope = "relationship"
)

// Precondition is one storylet trigger condition: either a typed comparison
// over a state path, or a natural-language condition delegated to the judge.
// Exactly one of the two forms may be set.
type Precondition struct {
	Scope Scope  `json:"scope,omitempty"`
	Path  string `json:"path,omitempty"`
	Op    Op     `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`

	NLText string `json:"nl_text,omitempty"`
}

// IsNL reports whether this is a natural-language condition.
func (p Precondition) IsNL() bool {
	return p.NLText != ""
}

// FullPath joins the optional scope with the path into a full dotted path.
func (p Precondition) FullPath() string {
	return joinScopePath(p.Scope, "", p.Path)
}

// Text renders the condition in its natural-language form, used when
// delegating typed conditions to the judge and in explain traces.
func (p Precondition) Text() string {
	if p.IsNL() {
		return p.NLText
	}
	return fmt.Sprintf("%s %s %s", p.FullPath(), p.Op, state.FormatValue(p.Value))
}

// Effect is one ordered state mutation applied when a storylet fires.
type Effect struct {
	Scope  Scope    `json:"scope"`
	Target string   `json:"target,omitempty"`
	Op     EffectOp `json:"op"`
	Path   string   `json:"path"`
	Value  any      `json:"value,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// FullPath joins scope, target, and relative path into a full dotted path.
func (e Effect) FullPath() string {
	return joinScopePath(e.Scope, e.Target, e.Path)
}

// StatePath parses the effect's address into a state path.
func (e Effect) StatePath() (state.Path, error) {
	return state.ParsePath(e.FullPath())
}

func joinScopePath(scope Scope, target, path string) string {
	switch scope {
	case ScopeWorld:
		return "world." + path
	case ScopeCharacter:
		return "characters." + target + "." + path
	case ScopeRelationship:
		return "relationships." + target + "." + path
	default:
		// Empty scope means path is already fully dotted.
		if target != "" {
			return strings.Join([]string{target, path}, ".")
		}
		return path
	}
}

// Storylet is an authored narrative fragment that may fire when its
// preconditions hold against the current state.
type Storylet struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	Preconditions []Precondition `json:"preconditions,omitempty"`
	Effects       []Effect       `json:"effects,omitempty"`

	Weight         float64 `json:"weight"`
	Once           bool    `json:"once,omitempty"`
	Cooldown       int     `json:"cooldown,omitempty"`
	IntensityDelta float64 `json:"intensity_delta,omitempty"`
	IsFallback     bool    `json:"is_fallback,omitempty"`

	RequiresFired []string `json:"requires_fired,omitempty"`
	ForbidsFired  []string `json:"forbids_fired,omitempty"`
}

// UnmarshalJSON decodes a storylet, applying the default weight when the
// author omits the field.
func (s *Storylet) UnmarshalJSON(data []byte) error {
	type alias Storylet
	decoded := alias{Weight: DefaultWeight}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*s = Storylet(decoded)
	return nil
}
