package domain

import "math"

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Segment is one ordered stop of the tour with its narration excerpt and the
// estimated time window it occupies in the audio.
type Segment struct {
	Label        string       `json:"label"`
	Text         string       `json:"text"`
	StartSeconds float64      `json:"start_seconds"`
	EndSeconds   float64      `json:"end_seconds"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
}

// TranscriptSegment is a sentence-level chunk of narration with its time span.
type TranscriptSegment struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
}

// Artifact is the finished generation result. Segments are non-overlapping
// and monotonically increasing; the last segment ends at TotalDurationSeconds
// within rounding tolerance.
type Artifact struct {
	Title                string              `json:"title"`
	Narration            string              `json:"narration"`
	Segments             []Segment           `json:"segments"`
	Transcript           []TranscriptSegment `json:"transcript"`
	AudioRef             string              `json:"audio_ref,omitempty"`
	AudioFormat          string              `json:"audio_format,omitempty"`
	TotalDurationSeconds float64             `json:"total_duration_seconds"`
	Provider             string              `json:"provider"`
	Warnings             []string            `json:"warnings,omitempty"`
}

// HasAudio reports whether audio synthesis produced a referencable blob.
func (a *Artifact) HasAudio() bool {
	return a != nil && a.AudioRef != ""
}

// RoundSeconds rounds a duration value to 2 decimal places for output.
func RoundSeconds(v float64) float64 {
	return math.Round(v*100) / 100
}
