package assembler

import (
	"encoding/json"
	"fmt"
	"strings"

	"tourcast/internal/domain"
)

type tourPayload struct {
	Title     string        `json:"title"`
	Narration string        `json:"narration"`
	Stops     []stopPayload `json:"stops"`
}

type stopPayload struct {
	Name    string `json:"name"`
	Text    string `json:"text"`
	Address string `json:"address"`
}

// Stop is a parsed narration stop, optionally resolved to coordinates.
type Stop struct {
	Name        string
	Text        string
	Address     string
	Coordinates *domain.Coordinates
}

const warnUnstructured = "narration structure unavailable; serving single-segment tour"

// parseNarration decodes the model's JSON payload. Malformed output never
// fails the job: the raw text becomes a single unstructured narration with a
// generic title, and a warning is attached.
func parseNarration(raw string, subject domain.Subject) (title, narration string, stops []Stop, warnings []string) {
	cleaned := extractJSONFragment(raw)
	var payload tourPayload
	if cleaned == "" || json.Unmarshal([]byte(cleaned), &payload) != nil || strings.TrimSpace(payload.Narration) == "" {
		return fallbackTitle(subject), strings.TrimSpace(raw), nil, []string{warnUnstructured}
	}

	title = strings.TrimSpace(payload.Title)
	if title == "" {
		title = fallbackTitle(subject)
	}
	narration = strings.TrimSpace(payload.Narration)
	for _, s := range payload.Stops {
		name := strings.TrimSpace(s.Name)
		text := strings.TrimSpace(s.Text)
		if name == "" && text == "" {
			continue
		}
		if name == "" {
			name = fmt.Sprintf("Stop %d", len(stops)+1)
		}
		stops = append(stops, Stop{Name: name, Text: text, Address: strings.TrimSpace(s.Address)})
	}
	return title, narration, stops, nil
}

func fallbackTitle(subject domain.Subject) string {
	name := strings.TrimSpace(subject.Name)
	if name == "" {
		name = "Walking"
	}
	return name + " Tour"
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
