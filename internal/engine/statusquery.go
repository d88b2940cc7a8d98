package engine

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// statusQueryKind is the closed set of query intents the parser recognises.
type statusQueryKind int

const (
	queryBinaryState statusQueryKind = iota
	queryCurrentValue
	queryFullStatus
	queryTemperature
	queryDoorState
	queryBrightness
)

// statusPattern maps one text pattern to a query intent.
type statusPattern struct {
	re   *regexp.Regexp
	kind statusQueryKind
}

// statusPatterns is a fixed, auditable pattern table. Patterns are tried in
// order and the first match wins — priority is positional, not by
// specificity. The first capture group is the candidate entity name.
var statusPatterns = []statusPattern{
	{regexp.MustCompile(`is (?:the )?(.+?) (?:turned |switched )?(on|off)\b`), queryBinaryState},
	{regexp.MustCompile(`what(?:'s| is) (?:the )?(.+?) (?:set to|at)`), queryCurrentValue},
	{regexp.MustCompile(`(?:show|tell me|check) (?:the )?(.+?) status`), queryFullStatus},
	{regexp.MustCompile(`what(?:'s| is) (?:the )?temperature (?:in |of )?(?:the )?(.+)`), queryTemperature},
	{regexp.MustCompile(`is (?:the )?(.+?) door (?:open|closed)`), queryDoorState},
	{regexp.MustCompile(`what(?:'s| is) (?:the )?(.+?) brightness`), queryBrightness},
}

// temperatureUnits are the unit attributes accepted as temperature readings.
var temperatureUnits = map[string]struct{}{
	"°C": {},
	"°F": {},
}

// maxDisambiguationCandidates caps how many entity names a disambiguation
// reply lists.
const maxDisambiguationCandidates = 3

// rawBrightnessMax is the raw brightness attribute scale (0-255).
const rawBrightnessMax = 255

// statusQuery translates a free-text device query into a conversational
// answer. It always returns text: unknown entities, ambiguity and
// unavailable state all resolve to corrective or apologetic replies, never
// an error.
func (n *nativeExecutor) statusQuery(ctx context.Context, query string, exposed []ExposedEntity) string {
	lowered := strings.ToLower(query)

	for _, p := range statusPatterns {
		m := p.re.FindStringSubmatch(lowered)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])

		matches := matchExposed(name, exposed)
		if len(matches) == 0 {
			return fmt.Sprintf("I couldn't find a device named '%s'", name)
		}
		if len(matches) > 1 {
			// Never guess between candidates; ask instead.
			names := make([]string, 0, maxDisambiguationCandidates)
			for _, e := range matches {
				if len(names) == maxDisambiguationCandidates {
					break
				}
				names = append(names, e.Name)
			}
			return fmt.Sprintf("Found multiple devices: %s. Please be more specific.", strings.Join(names, ", "))
		}

		entity := matches[0]
		state, err := n.caps.States.Lookup(ctx, entity.ID)
		if err != nil {
			return fmt.Sprintf("The %s is not available", entity.Name)
		}
		return formatStatusReply(p.kind, m, entity, state)
	}

	return fmt.Sprintf("I'm not sure how to check '%s'. Try asking 'is the living room light on?' or 'what's the temperature?'", query)
}

// matchExposed fuzzy-matches a candidate name against the exposed entities'
// name, id and aliases (case-insensitive substring).
func matchExposed(name string, exposed []ExposedEntity) []ExposedEntity {
	var matches []ExposedEntity
	for _, e := range exposed {
		if strings.Contains(strings.ToLower(e.Name), name) ||
			strings.Contains(strings.ToLower(e.ID), name) {
			matches = append(matches, e)
			continue
		}
		for _, alias := range e.Aliases {
			if strings.Contains(strings.ToLower(alias), name) {
				matches = append(matches, e)
				break
			}
		}
	}
	return matches
}

// formatStatusReply renders the answer for one matched entity per query kind.
func formatStatusReply(kind statusQueryKind, m []string, entity ExposedEntity, state EntityState) string {
	switch kind {
	case queryBinaryState:
		current := strings.ToLower(state.State)
		target := ""
		if len(m) > 2 {
			target = m[2]
		}
		if target != "" {
			confirmation := "No"
			if current == target {
				confirmation = "Yes"
			}
			return fmt.Sprintf("%s, the %s is %s", confirmation, entity.Name, current)
		}
		return fmt.Sprintf("The %s is %s", entity.Name, current)

	case queryTemperature:
		unit, _ := state.Attributes["unit_of_measurement"].(string)
		if _, ok := temperatureUnits[unit]; !ok {
			return fmt.Sprintf("The %s is not a temperature sensor", entity.Name)
		}
		return fmt.Sprintf("The temperature in %s is %s%s", entity.Name, state.State, unit)

	case queryDoorState:
		if state.State == "open" || state.State == "closed" {
			return fmt.Sprintf("The %s door is %s", entity.Name, state.State)
		}
		return fmt.Sprintf("The %s is %s", entity.Name, state.State)

	case queryBrightness:
		raw, ok := floatValue(state.Attributes["brightness"])
		if !ok {
			return fmt.Sprintf("The %s doesn't have brightness control", entity.Name)
		}
		return fmt.Sprintf("The %s brightness is %d%%", entity.Name, brightnessPercent(raw))

	default: // queryCurrentValue, queryFullStatus
		var attrs []string
		if raw, ok := floatValue(state.Attributes["brightness"]); ok {
			attrs = append(attrs, fmt.Sprintf("brightness %d%%", brightnessPercent(raw)))
		}
		if temp, ok := floatValue(state.Attributes["temperature"]); ok {
			unit, _ := state.Attributes["unit_of_measurement"].(string)
			attrs = append(attrs, fmt.Sprintf("temperature %g%s", temp, unit))
		}
		suffix := ""
		if len(attrs) > 0 {
			suffix = " (" + strings.Join(attrs, ", ") + ")"
		}
		return fmt.Sprintf("The %s is %s%s", entity.Name, state.State, suffix)
	}
}

// brightnessPercent converts the raw 0-255 brightness attribute to a 0-100
// percentage.
func brightnessPercent(raw float64) int {
	return int(math.Round(raw / rawBrightnessMax * 100))
}
