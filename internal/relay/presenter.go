package relay

import (
	"regexp"
	"strings"
	"time"

	"github.com/fetti/rideagent/internal/model/query"
)

// The presenter is a pure mapping from agent text to the UI-patch envelope.
// It must never be the reason a dispatch fails to produce output: malformed
// or empty input degrades to a plain text row.

var (
	finalAnswerRe  = regexp.MustCompile(`(?is)Final Answer:\s*(.+?)(\n\n|\nAction:|$)`)
	countPhraseRe  = regexp.MustCompile(`(?i)\d+\s+(groups?|trips?|users?|records?)`)
	extractCountRe = regexp.MustCompile(`(?i)(\d+\s+(?:groups?|trips?|users?|records?)[^\n]*)`)
	multiSpaceRe   = regexp.MustCompile(`\s+`)
)

// debrisMarkers flag lines carrying tool output, raw SQL, or agent
// reasoning that should not reach the end user.
var debrisMarkers = []string{
	"LOCATION:", "PATTERNS:", "RELATED:", "USE:",
	"[(", ")]",
	"SELECT", "FROM", "WHERE", "LIMIT",
	"Action:", "Observation:", "Thought:", "Action Input:",
}

var technicalWords = []string{"TOOL", "SQL", "QUERY", "ACTION", "OBSERVATION"}

// CleanResponse reduces a raw agent transcript to the final user-facing
// answer, stripping debug output, raw SQL results, and reasoning steps.
func CleanResponse(raw string) string {
	if m := finalAnswerRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}

	var kept []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if containsAny(line, debrisMarkers) {
			continue
		}
		if countPhraseRe.MatchString(line) {
			kept = append(kept, line)
			continue
		}
		if !containsAny(strings.ToUpper(line), technicalWords) {
			kept = append(kept, line)
		}
	}

	if len(kept) > 0 {
		return strings.TrimSpace(multiSpaceRe.ReplaceAllString(strings.Join(kept, " "), " "))
	}

	if m := extractCountRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}

	if len(raw) > 200 {
		raw = raw[:200]
	}
	return strings.TrimSpace(raw)
}

// Format wraps agent text into the FormattedMessage envelope delivered to
// clients. Deterministic for a fixed timestamp.
func Format(raw, requestID string, at time.Time) query.FormattedMessage {
	cleaned := CleanResponse(raw)
	if cleaned == "" {
		cleaned = strings.TrimSpace(raw)
	}
	if cleaned == "" {
		cleaned = "No response from agent"
	}

	var component query.Component
	if strings.Contains(strings.ToUpper(raw), "SELECT") || strings.Contains(strings.ToLower(raw), "table") {
		component = query.Component{
			ID:   "table-" + requestID,
			Type: "Table",
			Data: query.TableData{
				Columns: []query.Column{{Key: "response", Title: "Query Result", DataType: "string"}},
				Rows:    []map[string]string{{"response": cleaned}},
			},
			Config: query.TableConfig{Title: "SQL Query Result"},
		}
	} else {
		if len(cleaned) > 500 {
			cleaned = cleaned[:500] + "..."
		}
		component = query.Component{
			ID:   "response-" + requestID,
			Type: "Table",
			Data: query.TableData{
				Columns: []query.Column{{Key: "message", Title: "Response", DataType: "string"}},
				Rows:    []map[string]string{{"message": cleaned}},
			},
			Config: query.TableConfig{Title: "Analysis Result"},
		}
	}

	return envelope(component, requestID, "Response from SQL agent", at)
}

// FormatFailure wraps an internal processing failure into the same envelope
// shape so the client UI needs no separate error path.
func FormatFailure(errText, requestID string, at time.Time) query.FormattedMessage {
	component := query.Component{
		ID:   "error-" + requestID,
		Type: "Table",
		Data: query.TableData{
			Columns: []query.Column{{Key: "error", Title: "Error", DataType: "string"}},
			Rows:    []map[string]string{{"error": errText}},
		},
		Config: query.TableConfig{Title: "Error"},
	}
	return envelope(component, requestID, "Error occurred during processing", at)
}

func envelope(component query.Component, requestID, message string, at time.Time) query.FormattedMessage {
	return query.FormattedMessage{
		Patches: []query.Patch{{
			Op:    "append",
			Path:  "/children",
			Value: component,
		}},
		RequestID: requestID,
		Message:   message,
		Timestamp: float64(at.UnixMilli()) / 1000,
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
