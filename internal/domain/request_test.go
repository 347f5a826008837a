package domain

import "testing"

func TestValidateRejectsMissingSubject(t *testing.T) {
	req := GenerationRequest{DurationMinutes: 20}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for missing subject name")
	}
}

func TestValidateRejectsOutOfRangeDuration(t *testing.T) {
	for _, minutes := range []int{0, 4, 181} {
		req := GenerationRequest{Subject: Subject{Name: "Louvre"}, DurationMinutes: minutes}
		if err := req.Validate(); err == nil {
			t.Fatalf("expected error for duration %d", minutes)
		}
	}
}

func TestValidateCapsInterests(t *testing.T) {
	req := GenerationRequest{
		Subject:         Subject{Name: "Louvre"},
		DurationMinutes: 20,
		Interests:       []string{"a", "b", "c", "d", "e", "f", "g"},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(req.Interests) != MaxInterests {
		t.Fatalf("interests = %d, want %d", len(req.Interests), MaxInterests)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"":        "en",
		"en-US":   "en",
		"fr":      "fr",
		"pt-BR":   "pt",
		"???":     "en",
		" de-DE ": "de",
	}
	for input, want := range cases {
		if got := NormalizeLanguage(input); got != want {
			t.Fatalf("NormalizeLanguage(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestJobStateProgressAndRank(t *testing.T) {
	order := []JobState{JobStateQueued, JobStateGeneratingText, JobStateGeneratingAudio, JobStateReady}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("state %s should rank above %s", order[i], order[i-1])
		}
	}
	if JobStateQueued.Progress() != 0 || JobStateGeneratingText.Progress() != 40 ||
		JobStateGeneratingAudio.Progress() != 80 || JobStateReady.Progress() != 100 {
		t.Fatal("progress mapping changed")
	}
	if !JobStateReadyNoAudio.Terminal() || JobStateGeneratingText.Terminal() {
		t.Fatal("terminal classification wrong")
	}
}
