package engine

import (
	"sort"
	"strings"
)

// resultLocations lists where the enforcement response may carry its
// per-detector map, in priority order. The first non-empty one wins.
var resultLocations = [][]string{
	{"detections"},
	{"entity", "detections"},
	{"entity", "results"},
	{"results"},
}

const (
	detailsScoreFloor   = 0.9
	scoreDetectedAbove  = 0.5
	contentPolicyID     = "content_policy"
	contentPolicyReason = "Content was modified or blocked by guardrails policy"
)

// outcome is a rule's verdict on one detector entry.
type outcome struct {
	detected bool
	score    float64
}

// rule inspects one detector entry. ok is false when the rule has no
// opinion; the next rule is then consulted.
type rule func(entry map[string]any, score float64, details []Detail) (outcome, bool)

// detectionRules is the ordered chain applied to each detector entry.
var detectionRules = []rule{
	flagRule("detected"),
	flagRule("flagged"),
	flagRule("blocked"),
	riskLevelRule,
	detailsRule,
	scoreRule,
}

func flagRule(key string) rule {
	return func(entry map[string]any, score float64, _ []Detail) (outcome, bool) {
		if truthy(entry[key]) {
			return outcome{detected: true, score: score}, true
		}
		return outcome{}, false
	}
}

func riskLevelRule(entry map[string]any, score float64, _ []Detail) (outcome, bool) {
	level, _ := entry["risk_level"].(string)
	switch strings.ToLower(level) {
	case "high", "medium":
		return outcome{detected: true, score: score}, true
	}
	return outcome{}, false
}

func detailsRule(_ map[string]any, score float64, details []Detail) (outcome, bool) {
	if len(details) == 0 {
		return outcome{}, false
	}
	return outcome{detected: true, score: max(score, detailsScoreFloor)}, true
}

func scoreRule(_ map[string]any, score float64, _ []Detail) (outcome, bool) {
	if score > scoreDetectedAbove {
		return outcome{detected: true, score: score}, true
	}
	return outcome{}, false
}

// NormalizeEntry turns one raw detector entry into a DetectionRecord.
func NormalizeEntry(id string, entry map[string]any) DetectionRecord {
	score, _ := toFloat(entry["score"])
	details := extractDetails(entry)

	res := outcome{score: score}
	for _, r := range detectionRules {
		if o, ok := r(entry, score, details); ok {
			res = o
			break
		}
	}

	return DetectionRecord{
		DetectorID: id,
		Detected:   res.detected,
		Score:      clamp01(res.score),
		Details:    details,
	}
}

// Normalize extracts detection records from a bulk enforcement response.
//
// Records follow the catalog order for the direction; detectors the
// registry does not know are appended sorted by id. When the processed
// text shows the service intervened and no detector was flagged, a
// synthetic content_policy record is appended.
func Normalize(resp map[string]any, originalText, processedText string, order []string) []DetectionRecord {
	raw := detectorMap(resp)

	records := make([]DetectionRecord, 0, len(raw)+1)
	seen := make(map[string]bool, len(raw))
	for _, id := range order {
		entry, ok := raw[id].(map[string]any)
		if !ok {
			continue
		}
		seen[id] = true
		records = append(records, NormalizeEntry(id, entry))
	}

	var rest []string
	for id, v := range raw {
		if _, ok := v.(map[string]any); ok && !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		records = append(records, NormalizeEntry(id, raw[id].(map[string]any)))
	}

	if contentAltered(originalText, processedText) && !anyDetected(records) {
		records = append(records, DetectionRecord{
			DetectorID: contentPolicyID,
			Detected:   true,
			Score:      1.0,
			Details:    []Detail{{"reason": contentPolicyReason}},
		})
	}
	return records
}

// contentAltered reports whether the service visibly changed the text.
func contentAltered(original, processed string) bool {
	lower := strings.ToLower(processed)
	return processed != original ||
		strings.Contains(lower, "blocked") ||
		strings.Contains(lower, "redacted")
}

func detectorMap(resp map[string]any) map[string]any {
	for _, path := range resultLocations {
		if m := lookupMap(resp, path...); len(m) > 0 {
			return m
		}
	}
	return nil
}

func lookupMap(m map[string]any, path ...string) map[string]any {
	cur := m
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// lookupString returns the string at path, or "" when absent.
func lookupString(m map[string]any, path ...string) string {
	if len(path) == 0 {
		return ""
	}
	parent := m
	if len(path) > 1 {
		parent = lookupMap(m, path[:len(path)-1]...)
	}
	s, _ := parent[path[len(path)-1]].(string)
	return s
}

// extractDetails reads "details", falling back to "entities". List items
// that are objects are kept as-is; scalars and a bare non-empty string
// are wrapped as {"value": v}.
func extractDetails(entry map[string]any) []Detail {
	raw := entry["details"]
	if !truthy(raw) {
		raw = entry["entities"]
	}

	switch v := raw.(type) {
	case []any:
		out := make([]Detail, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, Detail(m))
			} else {
				out = append(out, Detail{"value": item})
			}
		}
		return out
	case map[string]any:
		if len(v) == 0 {
			return nil
		}
		return []Detail{Detail(v)}
	case string:
		if v == "" {
			return nil
		}
		return []Detail{{"value": v}}
	default:
		return nil
	}
}

// summaryCounts reads entity.status.summary, defaulting to the number of
// detections for total and succeeded and zero for failed.
func summaryCounts(resp map[string]any, detections int) (total, succeeded, failed int) {
	summary := lookupMap(resp, "entity", "status", "summary")
	total = intOr(summary["total_detectors"], detections)
	succeeded = intOr(summary["succeeded"], detections)
	failed = intOr(summary["failed"], 0)
	return total, succeeded, failed
}

// truthy mirrors loose JSON truthiness: false, null, 0, "" and empty
// collections are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func intOr(v any, def int) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return def
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
