package domain

import (
	"strings"

	"golang.org/x/text/language"
)

// Subject identifies the place a tour is generated for. Coordinates are
// optional; when present they anchor geocoding of individual stops.
type Subject struct {
	Name      string   `json:"name"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// GenerationRequest is the immutable input to the pipeline. It is kept on the
// Job record for audit but never mutated after submission.
type GenerationRequest struct {
	Subject         Subject  `json:"subject"`
	Interests       []string `json:"interests,omitempty"`
	DurationMinutes int      `json:"duration_minutes"`
	Language        string   `json:"language,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	Voice           string   `json:"voice,omitempty"`
}

const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 180
	MaxInterests       = 5
)

// Validate checks the request and normalizes its language tag in place.
func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Subject.Name) == "" {
		return &ValidationError{Reason: "subject name is required"}
	}
	if r.DurationMinutes < MinDurationMinutes || r.DurationMinutes > MaxDurationMinutes {
		return &ValidationError{Reason: "duration must be between 5 and 180 minutes"}
	}
	if len(r.Interests) > MaxInterests {
		r.Interests = r.Interests[:MaxInterests]
	}
	r.Language = NormalizeLanguage(r.Language)
	return nil
}

// NormalizeLanguage reduces a caller-supplied language tag to its base
// language ("en-US" -> "en"). Unparseable or empty tags default to English.
func NormalizeLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "en"
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "en"
	}
	base, _ := parsed.Base()
	return base.String()
}
