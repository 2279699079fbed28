package state

import (
	"strings"

	apperrors "github.com/louisbranch/storyloom/internal/errors"
)

// Kind discriminates the addressable path variants.
type Kind int

const (
	// KindWorldVar addresses world.vars.<key>.
	KindWorldVar Kind = iota
	// KindWorldFact addresses world.facts.<category>.<key>.
	KindWorldFact
	// KindWorldTags addresses the world tag set.
	KindWorldTags
	// KindWorldHistory addresses the world history log.
	KindWorldHistory
	// KindWorldIntensity addresses world.intensity.
	KindWorldIntensity
	// KindCharacter addresses characters.<id>.<field>.
	KindCharacter
	// KindRelationship addresses relationships.<a>|<b>.<field>.
	KindRelationship
)

// Character fields addressable by paths.
const (
	FieldMood     = "mood"
	FieldStatus   = "status"
	FieldLocation = "location"
	FieldTraits   = "traits"
	FieldGoals    = "goals"
	FieldFears    = "fears"
	FieldVars     = "vars"
)

// Path is a parsed dotted path. Paths are pure data; every operation over
// them is an exhaustive switch on Kind.
type Path struct {
	Kind     Kind
	Key      string // vars key or fact key
	Category string // fact category
	ID       string // character id
	A, B     string // relationship pair, canonical order
	Field    string // character or relationship field, or relationship metric name
}

// ParsePath parses a dotted path of one of the three shapes:
//
//	world.vars.<key> | world.tags | world.history | world.facts.<category>.<key> | world.intensity
//	characters.<id>.<field> with <field> in {mood, status, location, traits, goals, fears, vars.<key>}
//	relationships.<a>|<b>.<field> with the pair canonicalized before lookup
func ParsePath(raw string) (Path, error) {
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q is malformed", raw)
	}

	switch parts[0] {
	case "world":
		return parseWorldPath(raw, parts[1:])
	case "characters":
		return parseCharacterPath(raw, parts[1:])
	case "relationships":
		return parseRelationshipPath(raw, parts[1:])
	default:
		return Path{}, apperrors.New(apperrors.CodePathMalformed,
			"path %q has unknown root %q (expected world, characters, or relationships)", raw, parts[0])
	}
}

func parseWorldPath(raw string, parts []string) (Path, error) {
	switch parts[0] {
	case "vars":
		if len(parts) < 2 {
			return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q is missing a vars key", raw)
		}
		// Var keys may themselves contain dots.
		return Path{Kind: KindWorldVar, Key: strings.Join(parts[1:], ".")}, nil
	case "facts":
		if len(parts) != 3 {
			return Path{}, apperrors.New(apperrors.CodePathMalformed,
				"path %q must be world.facts.<category>.<key>", raw)
		}
		return Path{Kind: KindWorldFact, Category: parts[1], Key: parts[2]}, nil
	case "tags":
		if len(parts) != 1 {
			return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q has trailing segments after tags", raw)
		}
		return Path{Kind: KindWorldTags}, nil
	case "history":
		if len(parts) != 1 {
			return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q has trailing segments after history", raw)
		}
		return Path{Kind: KindWorldHistory}, nil
	case "intensity":
		if len(parts) != 1 {
			return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q has trailing segments after intensity", raw)
		}
		return Path{Kind: KindWorldIntensity}, nil
	default:
		return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q has unknown world accessor %q", raw, parts[0])
	}
}

func parseCharacterPath(raw string, parts []string) (Path, error) {
	if len(parts) < 2 {
		return Path{}, apperrors.New(apperrors.CodePathMalformed,
			"path %q must be characters.<id>.<field>", raw)
	}
	id, field := parts[0], parts[1]
	switch field {
	case FieldMood, FieldStatus, FieldLocation, FieldTraits, FieldGoals, FieldFears:
		if len(parts) != 2 {
			return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q has trailing segments after %s", raw, field)
		}
		return Path{Kind: KindCharacter, ID: id, Field: field}, nil
	case FieldVars:
		if len(parts) < 3 {
			return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q is missing a vars key", raw)
		}
		return Path{Kind: KindCharacter, ID: id, Field: FieldVars, Key: strings.Join(parts[2:], ".")}, nil
	default:
		return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q has unknown character field %q", raw, field)
	}
}

func parseRelationshipPath(raw string, parts []string) (Path, error) {
	if len(parts) < 2 {
		return Path{}, apperrors.New(apperrors.CodePathMalformed,
			"path %q must be relationships.<a>|<b>.<field>", raw)
	}
	a, b, ok := SplitPairKey(parts[0])
	if !ok {
		return Path{}, apperrors.New(apperrors.CodePathMalformed,
			"path %q has malformed pair %q (expected <a>|<b>)", raw, parts[0])
	}
	if b < a {
		a, b = b, a
	}
	field := parts[1]
	if field == FieldVars {
		if len(parts) < 3 {
			return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q is missing a vars key", raw)
		}
		return Path{Kind: KindRelationship, A: a, B: b, Field: FieldVars, Key: strings.Join(parts[2:], ".")}, nil
	}
	if len(parts) != 2 {
		return Path{}, apperrors.New(apperrors.CodePathMalformed, "path %q has trailing segments after %s", raw, field)
	}
	// Any field other than status and vars names a numeric metric.
	return Path{Kind: KindRelationship, A: a, B: b, Field: field}, nil
}

// String renders the path back into dotted form.
func (p Path) String() string {
	switch p.Kind {
	case KindWorldVar:
		return "world.vars." + p.Key
	case KindWorldFact:
		return "world.facts." + p.Category + "." + p.Key
	case KindWorldTags:
		return "world.tags"
	case KindWorldHistory:
		return "world.history"
	case KindWorldIntensity:
		return "world.intensity"
	case KindCharacter:
		if p.Field == FieldVars {
			return "characters." + p.ID + ".vars." + p.Key
		}
		return "characters." + p.ID + "." + p.Field
	case KindRelationship:
		if p.Field == FieldVars {
			return "relationships." + p.A + "|" + p.B + ".vars." + p.Key
		}
		return "relationships." + p.A + "|" + p.B + "." + p.Field
	default:
		return ""
	}
}

// PairKey returns the canonical relationship key for relationship paths.
func (p Path) PairKey() string {
	return PairKey(p.A, p.B)
}

// Get resolves the path against the state. It fails with a PATH_NOT_FOUND
// error when any segment is absent. Returned lists are deep copies.
func (s *State) Get(p Path) (any, error) {
	switch p.Kind {
	case KindWorldVar:
		v, ok := s.World.Vars[p.Key]
		if !ok {
			return nil, notFound(p)
		}
		return CloneValue(v), nil
	case KindWorldFact:
		entries, ok := s.World.Facts[p.Category]
		if !ok {
			return nil, notFound(p)
		}
		v, ok := entries[p.Key]
		if !ok {
			return nil, notFound(p)
		}
		return v, nil
	case KindWorldTags:
		return cloneStrings(s.World.Tags), nil
	case KindWorldHistory:
		return cloneStrings(s.World.History), nil
	case KindWorldIntensity:
		return s.World.Intensity, nil
	case KindCharacter:
		c, ok := s.Characters[p.ID]
		if !ok {
			return nil, notFound(p)
		}
		return c.get(p)
	case KindRelationship:
		r, ok := s.Relationships[p.PairKey()]
		if !ok {
			return nil, notFound(p)
		}
		return r.get(p)
	default:
		return nil, apperrors.New(apperrors.CodePathMalformed, "path has unknown kind %d", p.Kind)
	}
}

func (c *Character) get(p Path) (any, error) {
	switch p.Field {
	case FieldMood:
		return c.Mood, nil
	case FieldStatus:
		return c.Status, nil
	case FieldLocation:
		return c.Location, nil
	case FieldTraits:
		return cloneStrings(c.Traits), nil
	case FieldGoals:
		return cloneStrings(c.Goals), nil
	case FieldFears:
		return cloneStrings(c.Fears), nil
	case FieldVars:
		v, ok := c.Vars[p.Key]
		if !ok {
			return nil, notFound(p)
		}
		return CloneValue(v), nil
	default:
		return nil, apperrors.New(apperrors.CodePathMalformed, "unknown character field %q", p.Field)
	}
}

func (r *Relationship) get(p Path) (any, error) {
	switch p.Field {
	case FieldStatus:
		return r.Status, nil
	case FieldVars:
		v, ok := r.Vars[p.Key]
		if !ok {
			return nil, notFound(p)
		}
		return CloneValue(v), nil
	default:
		v, ok := r.Metrics[p.Field]
		if !ok {
			return nil, notFound(p)
		}
		return v, nil
	}
}

func notFound(p Path) error {
	return apperrors.New(apperrors.CodePathNotFound, "path %s not present", p.String())
}
