package cache

import (
	"context"
	"testing"
	"time"

	"tourcast/internal/domain"
)

func TestMemoryRoundTrip(t *testing.T) {
	store := NewMemory()
	fp := domain.Fingerprint("abc123")
	artifact := &domain.Artifact{Title: "Central Park Walk", Narration: "Welcome."}

	if err := store.Put(context.Background(), fp, Entry{Artifact: artifact, Provider: "openai"}, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, ok, err := store.Get(context.Background(), fp)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v, %v", entry, ok, err)
	}
	if entry.Artifact.Title != "Central Park Walk" || entry.Provider != "openai" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestMemoryMiss(t *testing.T) {
	store := NewMemory()
	_, ok, err := store.Get(context.Background(), domain.Fingerprint("missing"))
	if err != nil || ok {
		t.Fatalf("Get on empty store = %v, %v", ok, err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	store := NewMemoryWithClock(func() time.Time { return now })
	fp := domain.Fingerprint("abc123")

	if err := store.Put(context.Background(), fp, Entry{Artifact: &domain.Artifact{Title: "T"}}, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	now = now.Add(59 * time.Minute)
	if _, ok, _ := store.Get(context.Background(), fp); !ok {
		t.Fatal("entry expired before ttl")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := store.Get(context.Background(), fp); ok {
		t.Fatal("entry served past ttl")
	}
}

func TestMemoryDelete(t *testing.T) {
	store := NewMemory()
	fp := domain.Fingerprint("abc123")
	_ = store.Put(context.Background(), fp, Entry{Artifact: &domain.Artifact{Title: "T"}}, time.Hour)
	_ = store.Delete(context.Background(), fp)
	if _, ok, _ := store.Get(context.Background(), fp); ok {
		t.Fatal("entry survived delete")
	}
}
