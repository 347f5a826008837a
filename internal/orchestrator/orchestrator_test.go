package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tourcast/internal/assembler"
	"tourcast/internal/cache"
	"tourcast/internal/domain"
	"tourcast/internal/providers"
)

type fakeAssembler struct {
	mu         sync.Mutex
	textCalls  int
	audioCalls int
	textErr    error
	audioErr   error
	block      chan struct{}
	audio      *providers.AudioBlob
}

func (f *fakeAssembler) GenerateNarration(ctx context.Context, req domain.GenerationRequest) (*assembler.Draft, error) {
	f.mu.Lock()
	f.textCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.textErr != nil {
		return nil, f.textErr
	}
	return &assembler.Draft{
		Request:      req,
		Title:        "Central Park Walk",
		Narration:    "Welcome to the park. Enjoy your walk.",
		SpeechText:   "Welcome to the park. Enjoy your walk.",
		TextProvider: "openai",
	}, nil
}

func (f *fakeAssembler) SynthesizeAudio(ctx context.Context, draft *assembler.Draft) error {
	f.mu.Lock()
	f.audioCalls++
	f.mu.Unlock()
	if f.audioErr != nil {
		return f.audioErr
	}
	draft.Audio = f.audio
	draft.AudioProvider = "openai"
	return nil
}

func (f *fakeAssembler) Finalize(draft *assembler.Draft) *domain.Artifact {
	return &domain.Artifact{
		Title:                draft.Title,
		Narration:            draft.Narration,
		Provider:             draft.TextProvider,
		TotalDurationSeconds: 10,
		Warnings:             draft.Warnings,
	}
}

func (f *fakeAssembler) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.textCalls, f.audioCalls
}

type fakeAudioStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeAudioStore() *fakeAudioStore {
	return &fakeAudioStore{files: make(map[string][]byte)}
}

func (s *fakeAudioStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = data
	return key, nil
}

func (s *fakeAudioStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

type fixedThrottle bool

func (f fixedThrottle) ShouldThrottle() bool { return bool(f) }

func testRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Subject:         domain.Subject{Name: "Central Park", City: "New York", Country: "US"},
		DurationMinutes: 20,
		Language:        "en",
	}
}

func startOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	o := New(opts)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(o.Stop)
	return o
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := o.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.State.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return nil
}

func TestSubmitProducesReadyJob(t *testing.T) {
	asm := &fakeAssembler{audio: &providers.AudioBlob{Data: []byte("audio"), Format: "audio/mpeg"}}
	audio := newFakeAudioStore()
	o := startOrchestrator(t, Options{Assembler: asm, Audio: audio, Cache: cache.NewMemory()})

	job, existing, err := o.Submit(context.Background(), "caller-1", testRequest())
	if err != nil || existing {
		t.Fatalf("Submit = %v existing=%v", err, existing)
	}

	done := waitTerminal(t, o, job.ID)
	if done.State != domain.JobStateReady {
		t.Fatalf("state = %s error = %q", done.State, done.Error)
	}
	if done.Artifact == nil || done.Artifact.AudioRef == "" {
		t.Fatalf("artifact = %+v", done.Artifact)
	}
	if _, err := o.ReadAudio(context.Background(), done); err != nil {
		t.Fatalf("ReadAudio: %v", err)
	}

	view, err := o.Status(context.Background(), job.ID)
	if err != nil || view.ProgressPercent != 100 || view.Artifact == nil {
		t.Fatalf("status = %+v err = %v", view, err)
	}
}

func TestConcurrentDuplicateSubmissionsShareOneGeneration(t *testing.T) {
	asm := &fakeAssembler{block: make(chan struct{})}
	o := startOrchestrator(t, Options{Assembler: asm, Cache: cache.NewMemory(), Workers: 4})

	first, _, err := o.Submit(context.Background(), "caller-1", testRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var wg sync.WaitGroup
	ids := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, existing, err := o.Submit(context.Background(), "caller-2", testRequest())
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			if !existing {
				t.Error("duplicate submission started a new job")
			}
			ids <- job.ID
		}()
	}
	wg.Wait()
	close(ids)
	for id := range ids {
		if id != first.ID {
			t.Fatalf("duplicate got job %s, want %s", id, first.ID)
		}
	}

	close(asm.block)
	waitTerminal(t, o, first.ID)
	if text, _ := asm.calls(); text != 1 {
		t.Fatalf("text generations = %d, want 1", text)
	}
}

type slowStore struct {
	JobStore
	delay time.Duration
}

func (s *slowStore) Create(ctx context.Context, job *domain.Job) error {
	time.Sleep(s.delay)
	return s.JobStore.Create(ctx, job)
}

func (s *slowStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	time.Sleep(s.delay)
	return s.JobStore.Get(ctx, id)
}

func (s *slowStore) FindActiveByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Job, error) {
	time.Sleep(s.delay)
	return s.JobStore.FindActiveByFingerprint(ctx, fp)
}

func TestSimultaneousDuplicateSubmissionsCreateOneJob(t *testing.T) {
	asm := &fakeAssembler{block: make(chan struct{})}
	store := &slowStore{JobStore: NewMemoryStore(), delay: time.Millisecond}
	o := startOrchestrator(t, Options{Assembler: asm, Store: store, Workers: 4})

	// All submissions start together, before any of them has persisted a
	// job, so deduplication cannot lean on a completed first submission.
	const n = 8
	type result struct {
		id       string
		existing bool
	}
	var wg sync.WaitGroup
	results := make(chan result, n)
	startLine := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-startLine
			job, existing, err := o.Submit(context.Background(), "caller-1", testRequest())
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			results <- result{id: job.ID, existing: existing}
		}()
	}
	close(startLine)
	wg.Wait()
	close(results)

	ids := make(map[string]struct{})
	created := 0
	var someID string
	for res := range results {
		ids[res.id] = struct{}{}
		someID = res.id
		if !res.existing {
			created++
		}
	}
	if len(ids) != 1 {
		t.Fatalf("distinct job ids = %d, want 1", len(ids))
	}
	if created != 1 {
		t.Fatalf("new jobs = %d, want 1", created)
	}

	close(asm.block)
	waitTerminal(t, o, someID)
	if text, _ := asm.calls(); text != 1 {
		t.Fatalf("text generations = %d, want 1", text)
	}
}

func TestLateWorkerWriteCannotResurrectCancelledJob(t *testing.T) {
	store := NewMemoryStore()
	o := New(Options{Store: store, Assembler: &fakeAssembler{}})

	job := o.newJob("caller-1", "fp-1", mustValid(t, testRequest()))
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A worker picked the job up and still holds a copy from before the
	// cancellation landed.
	stale, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if err := o.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	o.transition(stale, domain.JobStateGeneratingText)
	got, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != domain.JobStateCancelled {
		t.Fatalf("state regressed to %s, want %s", got.State, domain.JobStateCancelled)
	}

	o.finishJob(context.Background(), stale, domain.JobStateReady, "")
	got, _ = store.Get(context.Background(), job.ID)
	if got.State != domain.JobStateCancelled {
		t.Fatalf("state after late finish = %s, want %s", got.State, domain.JobStateCancelled)
	}
}

func TestCacheHitSkipsGeneration(t *testing.T) {
	asm := &fakeAssembler{}
	store := cache.NewMemory()
	o := startOrchestrator(t, Options{Assembler: asm, Cache: store})

	fp := domain.ComputeFingerprint(mustValid(t, testRequest()))
	artifact := &domain.Artifact{Title: "Cached", Provider: "openai", TotalDurationSeconds: 10}
	_ = store.Put(context.Background(), fp, cache.Entry{Artifact: artifact, Provider: "openai"}, time.Hour)

	job, existing, err := o.Submit(context.Background(), "caller-1", testRequest())
	if err != nil || existing {
		t.Fatalf("Submit = %v existing=%v", err, existing)
	}
	if job.State != domain.JobStateReadyNoAudio {
		t.Fatalf("state = %s", job.State)
	}
	if job.Artifact.Title != "Cached" {
		t.Fatalf("artifact = %+v", job.Artifact)
	}
	if text, _ := asm.calls(); text != 0 {
		t.Fatalf("cache hit still generated: %d calls", text)
	}
}

func TestAllTextProvidersFailingFailsJob(t *testing.T) {
	asm := &fakeAssembler{textErr: &domain.GenerationFailedError{
		Operation: "text",
		Attempts: []*domain.ProviderError{
			{Provider: "openai", Kind: domain.ProviderRateLimited},
			{Provider: "gemini", Kind: domain.ProviderUnavailable},
		},
	}}
	o := startOrchestrator(t, Options{Assembler: asm})

	job, _, err := o.Submit(context.Background(), "caller-1", testRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, o, job.ID)
	if done.State != domain.JobStateFailed {
		t.Fatalf("state = %s", done.State)
	}
	if !strings.Contains(done.Error, "rate_limited") || !strings.Contains(done.Error, "unavailable") {
		t.Fatalf("error = %q, want aggregated provider kinds", done.Error)
	}

	view, _ := o.Status(context.Background(), job.ID)
	if view.ProgressPercent != 0 || view.Artifact != nil {
		t.Fatalf("failed view = %+v", view)
	}
}

func TestAudioFailureFinishesWithoutAudio(t *testing.T) {
	asm := &fakeAssembler{audioErr: &domain.GenerationFailedError{
		Operation: "audio",
		Attempts:  []*domain.ProviderError{{Provider: "openai", Kind: domain.ProviderTimeout}},
	}}
	o := startOrchestrator(t, Options{Assembler: asm, Audio: newFakeAudioStore()})

	job, _, err := o.Submit(context.Background(), "caller-1", testRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, o, job.ID)
	if done.State != domain.JobStateReadyNoAudio {
		t.Fatalf("state = %s error = %q", done.State, done.Error)
	}
	if done.Artifact == nil || done.Artifact.AudioRef != "" {
		t.Fatalf("artifact = %+v", done.Artifact)
	}
	found := false
	for _, w := range done.Artifact.Warnings {
		if strings.Contains(w, "audio synthesis unavailable") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v", done.Artifact.Warnings)
	}
}

func TestCancelRunningJob(t *testing.T) {
	asm := &fakeAssembler{block: make(chan struct{})}
	o := startOrchestrator(t, Options{Assembler: asm})

	job, _, err := o.Submit(context.Background(), "caller-1", testRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Give the worker a moment to pick the job up, then cancel mid-stage.
	time.Sleep(20 * time.Millisecond)
	if err := o.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(asm.block)

	done := waitTerminal(t, o, job.ID)
	if done.State != domain.JobStateCancelled {
		t.Fatalf("state = %s", done.State)
	}
	if err := o.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("cancelling a cancelled job must be a no-op, got %v", err)
	}
}

func TestCancelFinishedJobIsAnError(t *testing.T) {
	asm := &fakeAssembler{}
	o := startOrchestrator(t, Options{Assembler: asm})

	job, _, _ := o.Submit(context.Background(), "caller-1", testRequest())
	waitTerminal(t, o, job.ID)
	if err := o.Cancel(context.Background(), job.ID); err == nil {
		t.Fatal("expected error cancelling a finished job")
	}
}

func TestBudgetThrottleRejectsSubmission(t *testing.T) {
	o := startOrchestrator(t, Options{Assembler: &fakeAssembler{}, Throttle: fixedThrottle(true)})

	_, _, err := o.Submit(context.Background(), "caller-1", testRequest())
	if err != domain.ErrBudgetExceeded {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
}

func TestStateProgressionIsMonotonic(t *testing.T) {
	asm := &fakeAssembler{}
	store := NewMemoryStore()
	o := startOrchestrator(t, Options{Assembler: asm, Store: store})

	job, _, err := o.Submit(context.Background(), "caller-1", testRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, o, job.ID)

	seen := []domain.JobState{domain.JobStateQueued, domain.JobStateGeneratingText, domain.JobStateGeneratingAudio, done.State}
	prev := -1
	for _, s := range seen {
		ts, ok := done.StageTimes[s]
		if !ok {
			t.Fatalf("missing stage time for %s", s)
		}
		if s.Rank() < prev {
			t.Fatalf("state %s regressed", s)
		}
		prev = s.Rank()
		_ = ts
	}
}

func TestHydrationRequeuesUnfinishedJobs(t *testing.T) {
	store := NewMemoryStore()
	stale := &domain.Job{
		ID:          "11111111-1111-1111-1111-111111111111",
		CallerID:    "caller-1",
		Fingerprint: "fp-stale",
		Request:     mustValid(t, testRequest()),
		State:       domain.JobStateGeneratingText,
		StageTimes:  map[domain.JobState]time.Time{domain.JobStateQueued: time.Now()},
		CreatedAt:   time.Now(),
	}
	if err := store.Create(context.Background(), stale); err != nil {
		t.Fatalf("seed: %v", err)
	}

	asm := &fakeAssembler{}
	o := startOrchestrator(t, Options{Assembler: asm, Store: store})
	done := waitTerminal(t, o, stale.ID)
	if done.State != domain.JobStateReadyNoAudio {
		t.Fatalf("state = %s", done.State)
	}
	if text, _ := asm.calls(); text != 1 {
		t.Fatalf("text calls = %d", text)
	}
}

func mustValid(t *testing.T, req domain.GenerationRequest) domain.GenerationRequest {
	t.Helper()
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return req
}
