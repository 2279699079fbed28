package state

import (
	"sort"
	"strconv"
	"strings"
)

// FormatValue renders a scalar or list value for rationale and summary text.
func FormatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "<absent>"
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case int:
		return strconv.Itoa(value)
	case []string:
		return "[" + strings.Join(value, ", ") + "]"
	case []any:
		parts := make([]string, len(value))
		for i, item := range value {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "<unsupported>"
	}
}

// Summary serializes the substates that can plausibly affect an NL judgment
// into a stable, human-readable block: world variables and tags, intensity,
// character mood/status/location/traits, and relationship status/metrics.
// The world history log is excluded. The same bytes key the judge cache, so
// ordering is fully deterministic.
func (s *State) Summary() string {
	var lines []string

	if len(s.World.Vars) > 0 {
		lines = append(lines, "World Variables:")
		for _, key := range sortedKeys(s.World.Vars) {
			lines = append(lines, "  - world.vars."+key+" = "+FormatValue(s.World.Vars[key]))
		}
	}
	if len(s.World.Tags) > 0 {
		tags := cloneStrings(s.World.Tags)
		sort.Strings(tags)
		lines = append(lines, "World Tags: "+strings.Join(tags, ", "))
	}
	lines = append(lines, "Intensity: "+FormatValue(s.World.Intensity))

	if len(s.Characters) > 0 {
		lines = append(lines, "Character States:")
		for _, id := range sortedKeys(s.Characters) {
			c := s.Characters[id]
			lines = append(lines, "  - characters."+id+":")
			if c.Mood != "" {
				lines = append(lines, "      mood = "+c.Mood)
			}
			if c.Status != "" {
				lines = append(lines, "      status = "+c.Status)
			}
			if c.Location != "" {
				lines = append(lines, "      location = "+c.Location)
			}
			if len(c.Traits) > 0 {
				lines = append(lines, "      traits = "+FormatValue(c.Traits))
			}
		}
	}

	if len(s.Relationships) > 0 {
		lines = append(lines, "Relationship States:")
		for _, key := range sortedKeys(s.Relationships) {
			r := s.Relationships[key]
			lines = append(lines, "  - relationships."+key+":")
			if r.Status != "" {
				lines = append(lines, "      status = "+r.Status)
			}
			for _, metric := range sortedKeys(r.Metrics) {
				lines = append(lines, "      "+metric+" = "+FormatValue(r.Metrics[metric]))
			}
		}
	}

	return strings.Join(lines, "\n")
}
