package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreWriteReadDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "audio/job-1.mp3", []byte("blob"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "audio/job-1.mp3" {
		t.Fatalf("key = %q", key)
	}

	data, err := store.Read(ctx, key)
	if err != nil || string(data) != "blob" {
		t.Fatalf("Read = %q, %v", data, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Read(ctx, key); err == nil {
		t.Fatal("expected error reading deleted key")
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("deleting a missing key must not error: %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Write(context.Background(), "../escape.txt", []byte("x")); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
}

func TestFileStoreSweepOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Write(ctx, "audio/old.mp3", []byte("old")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := store.Write(ctx, "audio/new.mp3", []byte("new")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "audio", "old.mp3"), past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	removed, err := store.SweepOlderThan(ctx, "audio", 24*time.Hour)
	if err != nil {
		t.Fatalf("SweepOlderThan: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := store.Read(ctx, "audio/old.mp3"); err == nil {
		t.Fatal("old blob survived the sweep")
	}
	if _, err := store.Read(ctx, "audio/new.mp3"); err != nil {
		t.Fatalf("new blob was swept: %v", err)
	}
}

func TestFileStoreSweepMissingDir(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.SweepOlderThan(context.Background(), "audio", time.Hour); err != nil {
		t.Fatalf("sweeping a missing directory must not error: %v", err)
	}
}
