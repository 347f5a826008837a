package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Fingerprint is the deterministic cache/deduplication key for a request.
type Fingerprint string

type fingerprintPayload struct {
	Subject   string   `json:"subject"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Interests []string `json:"interests"`
	Duration  int      `json:"duration"`
	Language  string   `json:"language"`
	Provider  string   `json:"provider"`
}

// ComputeFingerprint digests the logically identifying parts of a request.
// Interest tags are case-normalized and sorted first so semantically equal
// requests collide regardless of input ordering.
func ComputeFingerprint(req GenerationRequest) Fingerprint {
	interests := make([]string, 0, len(req.Interests))
	for _, tag := range req.Interests {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			interests = append(interests, tag)
		}
	}
	sort.Strings(interests)

	payload := fingerprintPayload{
		Subject:   strings.ToLower(strings.TrimSpace(req.Subject.Name)),
		City:      strings.ToLower(strings.TrimSpace(req.Subject.City)),
		Country:   strings.ToLower(strings.TrimSpace(req.Subject.Country)),
		Interests: interests,
		Duration:  req.DurationMinutes,
		Language:  NormalizeLanguage(req.Language),
		Provider:  strings.ToLower(strings.TrimSpace(req.Provider)),
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return Fingerprint(hex.EncodeToString(sum[:]))
}
