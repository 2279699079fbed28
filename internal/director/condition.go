package director

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/storyloom/internal/errors"
	"github.com/louisbranch/storyloom/internal/state"
	"github.com/louisbranch/storyloom/internal/story"
)

// evalTyped evaluates a typed condition against a snapshot. The returned
// reason always includes the evaluated left-hand value so rejection traces
// stay useful. Missing paths make the condition fail rather than error,
// except for the absence-tolerant operators lacks_tag and not_in, which
// treat absent sets and lists as empty.
func evalTyped(st *state.State, cond story.Precondition) (bool, string) {
	pathText := cond.FullPath()
	path, err := state.ParsePath(pathText)
	if err != nil {
		return false, fmt.Sprintf("%s: %v", pathText, err)
	}

	actual, err := st.Get(path)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.CodePathNotFound) {
			return false, fmt.Sprintf("%s: %v", pathText, err)
		}
		switch cond.Op {
		case story.OpLacksTag, story.OpNotIn:
			return true, fmt.Sprintf("path %s not present, treated as empty, satisfies %s %s",
				pathText, cond.Op, state.FormatValue(cond.Value))
		default:
			return false, fmt.Sprintf("path %s not present", pathText)
		}
	}

	satisfied, detail := compare(actual, cond.Op, cond.Value)
	verb := "satisfies"
	if !satisfied {
		verb = "required"
	}
	reason := fmt.Sprintf("%s = %s, %s %s %s",
		pathText, state.FormatValue(actual), verb, cond.Op, state.FormatValue(cond.Value))
	if detail != "" {
		reason += " (" + detail + ")"
	}
	return satisfied, reason
}

// compare applies one operator. The second return carries extra detail for
// type errors, which read as unsatisfied rather than failing the tick.
func compare(actual any, op story.Op, expected any) (bool, string) {
	switch op {
	case story.OpEqual:
		return scalarEqual(actual, expected), ""
	case story.OpNotEqual:
		return !scalarEqual(actual, expected), ""
	case story.OpLess, story.OpLessEqual, story.OpGreater, story.OpGreaterEqual:
		left, leftOK := toNumber(actual)
		right, rightOK := toNumber(expected)
		if !leftOK || !rightOK {
			return false, "numeric comparison needs numbers on both sides"
		}
		switch op {
		case story.OpLess:
			return left < right, ""
		case story.OpLessEqual:
			return left <= right, ""
		case story.OpGreater:
			return left > right, ""
		default:
			return left >= right, ""
		}
	case story.OpIn, story.OpNotIn:
		list, ok := toList(expected)
		if !ok {
			return false, "right-hand side is not a list"
		}
		member := listContains(list, actual)
		if op == story.OpIn {
			return member, ""
		}
		return !member, ""
	case story.OpContains:
		list, ok := toList(actual)
		if !ok {
			return false, "left-hand side is not a list"
		}
		return listContains(list, expected), ""
	case story.OpHasTag, story.OpLacksTag:
		tags, ok := toList(actual)
		if !ok {
			return false, "left-hand side is not a tag set"
		}
		member := listContains(tags, expected)
		if op == story.OpHasTag {
			return member, ""
		}
		return !member, ""
	default:
		return false, fmt.Sprintf("unknown operator %q", op)
	}
}

// scalarEqual compares scalars after the coercion rule: booleans and
// numbers never compare equal across types, strings compare by code points.
func scalarEqual(a, b any) bool {
	if aNum, ok := toNumber(a); ok {
		bNum, ok := toNumber(b)
		return ok && aNum == bNum
	}
	if aBool, ok := a.(bool); ok {
		bBool, ok := b.(bool)
		return ok && aBool == bBool
	}
	if aStr, ok := a.(string); ok {
		bStr, ok := b.(string)
		return ok && aStr == bStr
	}
	if aList, ok := toList(a); ok {
		bList, ok := toList(b)
		if !ok || len(aList) != len(bList) {
			return false
		}
		for i := range aList {
			if !scalarEqual(aList[i], bList[i]) {
				return false
			}
		}
		return true
	}
	return a == nil && b == nil
}

func toNumber(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}

func toList(v any) ([]any, bool) {
	switch value := v.(type) {
	case []any:
		return value, true
	case []string:
		out := make([]any, len(value))
		for i, s := range value {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func listContains(list []any, v any) bool {
	for _, item := range list {
		if scalarEqual(item, v) {
			return true
		}
	}
	return false
}

// joinReasons renders a compact reason trail for rationale strings.
func joinReasons(reasons []string) string {
	return strings.Join(reasons, "; ")
}
