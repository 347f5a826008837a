package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tourcast/internal/assembler"
	"tourcast/internal/cache"
	"tourcast/internal/domain"
	"tourcast/internal/infra"
)

// Assembler is the staged pipeline the orchestrator drives. Stages are
// separate so state transitions persist and cancellation lands between them.
type Assembler interface {
	GenerateNarration(ctx context.Context, req domain.GenerationRequest) (*assembler.Draft, error)
	SynthesizeAudio(ctx context.Context, draft *assembler.Draft) error
	Finalize(draft *assembler.Draft) *domain.Artifact
}

// AudioStore persists synthesized audio blobs.
type AudioStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// Throttler gates new submissions on spend.
type Throttler interface {
	ShouldThrottle() bool
}

// Options wires the orchestrator.
type Options struct {
	Store     JobStore
	Cache     cache.Store
	Assembler Assembler
	Audio     AudioStore
	Throttle  Throttler
	Logger    *infra.Logger
	Workers   int
	CacheTTL  time.Duration
	QueueSize int
}

// Orchestrator owns the job lifecycle: submission, deduplication, the worker
// pool that drives the assembler, cancellation and terminal persistence.
type Orchestrator struct {
	store     JobStore
	cache     cache.Store
	assembler Assembler
	audio     AudioStore
	throttle  Throttler
	logger    infra.Logger
	cacheTTL  time.Duration

	mu        sync.Mutex
	inflight  map[domain.Fingerprint]*domain.Job
	cancels   map[string]context.CancelFunc
	cancelReq map[string]bool

	queue      chan string
	workers    int
	wg         sync.WaitGroup
	baseCtx    context.Context
	baseCancel context.CancelFunc
	started    bool
}

func New(opts Options) *Orchestrator {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 7 * 24 * time.Hour
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:      opts.Store,
		cache:      opts.Cache,
		assembler:  opts.Assembler,
		audio:      opts.Audio,
		throttle:   opts.Throttle,
		logger:     logger,
		cacheTTL:   cacheTTL,
		inflight:   make(map[domain.Fingerprint]*domain.Job),
		cancels:    make(map[string]context.CancelFunc),
		cancelReq:  make(map[string]bool),
		queue:      make(chan string, queueSize),
		workers:    workers,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// Start launches the worker pool and requeues jobs that were in flight when
// the previous process stopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.mu.Unlock()

	resumable, err := o.store.ListResumable(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: hydrate: %w", err)
	}
	for _, job := range resumable {
		o.mu.Lock()
		o.inflight[job.Fingerprint] = cloneJob(job)
		o.mu.Unlock()
		select {
		case o.queue <- job.ID:
		default:
			o.logger.Warn().Str("job_id", job.ID).Msg("orchestrator: queue full during hydration, job left for next restart")
		}
	}
	if len(resumable) > 0 {
		o.logger.Info().Int("count", len(resumable)).Msg("orchestrator: requeued unfinished jobs")
	}

	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return nil
}

// Stop drains the pool. In-flight stages observe context cancellation.
func (o *Orchestrator) Stop() {
	o.baseCancel()
	close(o.queue)
	o.wg.Wait()
}

// Submit validates and enqueues a generation request. A cache hit produces an
// immediately ready job. A submission whose fingerprint matches a job already
// in flight returns that job instead of starting a second generation.
func (o *Orchestrator) Submit(ctx context.Context, callerID string, req domain.GenerationRequest) (*domain.Job, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	if o.throttle != nil && o.throttle.ShouldThrottle() {
		return nil, false, domain.ErrBudgetExceeded
	}

	fp := domain.ComputeFingerprint(req)

	if o.cache != nil {
		if entry, ok, _ := o.cache.Get(ctx, fp); ok {
			job := o.newJob(callerID, fp, req)
			job.State = domain.JobStateReady
			if !entry.Artifact.HasAudio() {
				job.State = domain.JobStateReadyNoAudio
			}
			job.Provider = entry.Provider
			job.Artifact = entry.Artifact
			job.StageTimes[job.State] = time.Now().UTC()
			if err := o.store.Create(ctx, job); err != nil {
				return nil, false, err
			}
			o.logger.Info().Str("job_id", job.ID).Str("fingerprint", string(fp)).Msg("orchestrator: served from cache")
			return job, false, nil
		}
	}

	// The fingerprint claim is taken under the lock before any store round
	// trip, so identical submissions racing each other serialize on it:
	// exactly one caller creates a job, the rest resolve the claim.
	for {
		o.mu.Lock()
		holder := o.inflight[fp]
		if holder == nil {
			job := o.newJob(callerID, fp, req)
			o.inflight[fp] = cloneJob(job)
			o.mu.Unlock()

			if existing, err := o.store.FindActiveByFingerprint(ctx, fp); err == nil {
				o.releaseClaim(fp, job.ID)
				return existing, true, nil
			}
			if err := o.store.Create(ctx, job); err != nil {
				o.releaseClaim(fp, job.ID)
				return nil, false, err
			}
			select {
			case o.queue <- job.ID:
			default:
				o.failJob(context.WithoutCancel(ctx), job, "generation queue is full")
				o.releaseClaim(fp, job.ID)
				return nil, false, errors.New("generation queue is full")
			}
			return job, false, nil
		}
		o.mu.Unlock()

		existing, err := o.store.Get(ctx, holder.ID)
		if err != nil {
			// Claim taken, row not yet visible. The claimant's queued
			// snapshot is accurate enough for polling.
			return holder, true, nil
		}
		if !existing.State.Terminal() {
			return existing, true, nil
		}
		// The claimed job finished before the claim was released. Evict it
		// so this submission is not pinned to a finished job.
		o.releaseClaim(fp, holder.ID)
	}
}

// releaseClaim drops the in-flight reservation if jobID still holds it.
func (o *Orchestrator) releaseClaim(fp domain.Fingerprint, jobID string) {
	o.mu.Lock()
	if holder := o.inflight[fp]; holder != nil && holder.ID == jobID {
		delete(o.inflight, fp)
	}
	o.mu.Unlock()
}

// Status returns the polling view for a job.
func (o *Orchestrator) Status(ctx context.Context, id string) (*domain.JobStatusView, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &domain.JobStatusView{
		JobID:           job.ID,
		State:           job.State,
		ProgressPercent: job.State.Progress(),
		Provider:        job.Provider,
		Error:           job.Error,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if job.State == domain.JobStateReady || job.State == domain.JobStateReadyNoAudio {
		view.Artifact = job.Artifact
	}
	return view, nil
}

// Get returns the full job record.
func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.Job, error) {
	return o.store.Get(ctx, id)
}

// Cancel requests cooperative cancellation. Queued jobs cancel immediately;
// running jobs cancel at the next stage boundary. Cancelling a finished job
// is a no-op for already-cancelled jobs and an error otherwise.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		if job.State == domain.JobStateCancelled {
			return nil
		}
		return fmt.Errorf("job %s already finished as %s", id, job.State)
	}

	o.mu.Lock()
	o.cancelReq[id] = true
	cancel := o.cancels[id]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if job.State == domain.JobStateQueued {
		o.finishJob(ctx, job, domain.JobStateCancelled, "")
	}
	o.logger.Info().Str("job_id", id).Msg("orchestrator: cancellation requested")
	return nil
}

// AudioKey is the storage key for a job's synthesized audio.
func AudioKey(jobID, format string) string {
	return "audio/" + jobID + audioExt(format)
}

// ReadAudio loads the stored audio blob for a job.
func (o *Orchestrator) ReadAudio(ctx context.Context, job *domain.Job) ([]byte, error) {
	if o.audio == nil || job.Artifact == nil || !job.Artifact.HasAudio() {
		return nil, domain.ErrNotFound
	}
	return o.audio.Read(ctx, AudioKey(job.ID, job.Artifact.AudioFormat))
}

func (o *Orchestrator) newJob(callerID string, fp domain.Fingerprint, req domain.GenerationRequest) *domain.Job {
	now := time.Now().UTC()
	return &domain.Job{
		ID:          uuid.NewString(),
		CallerID:    callerID,
		Fingerprint: fp,
		Request:     req,
		State:       domain.JobStateQueued,
		StageTimes:  map[domain.JobState]time.Time{domain.JobStateQueued: now},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for id := range o.queue {
		o.run(id)
	}
}

func (o *Orchestrator) run(id string) {
	ctx, cancel := context.WithCancel(o.baseCtx)
	defer cancel()

	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()

	job, err := o.store.Get(context.Background(), id)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", id).Msg("orchestrator: job vanished before processing")
		o.cleanup(id, "")
		return
	}
	defer o.cleanup(id, job.Fingerprint)

	if job.State.Terminal() {
		return
	}
	if o.cancelRequested(id) {
		o.finishJob(context.Background(), job, domain.JobStateCancelled, "")
		return
	}

	o.transition(job, domain.JobStateGeneratingText)
	draft, err := o.assembler.GenerateNarration(ctx, job.Request)
	if err != nil {
		if o.cancelRequested(id) || errors.Is(err, context.Canceled) {
			o.finishJob(context.Background(), job, domain.JobStateCancelled, "")
			return
		}
		o.failJob(context.Background(), job, err.Error())
		return
	}
	job.Provider = draft.TextProvider

	if o.cancelRequested(id) {
		o.finishJob(context.Background(), job, domain.JobStateCancelled, "")
		return
	}

	o.transition(job, domain.JobStateGeneratingAudio)
	audioErr := o.assembler.SynthesizeAudio(ctx, draft)
	if audioErr != nil && (o.cancelRequested(id) || errors.Is(audioErr, context.Canceled)) {
		o.finishJob(context.Background(), job, domain.JobStateCancelled, "")
		return
	}

	if o.cancelRequested(id) {
		o.finishJob(context.Background(), job, domain.JobStateCancelled, "")
		return
	}

	if audioErr != nil {
		draft.Audio = nil
		draft.Warnings = append(draft.Warnings, "audio synthesis unavailable: "+audioErr.Error())
		o.logger.Warn().Err(audioErr).Str("job_id", id).Msg("orchestrator: finishing without audio")
	}

	artifact := o.assembler.Finalize(draft)
	finalState := domain.JobStateReadyNoAudio

	if draft.Audio != nil && o.audio != nil {
		key := AudioKey(job.ID, draft.Audio.Format)
		if _, err := o.audio.Write(context.Background(), key, draft.Audio.Data); err != nil {
			artifact.Warnings = append(artifact.Warnings, "audio could not be stored")
			o.logger.Warn().Err(err).Str("job_id", id).Msg("orchestrator: audio write failed")
		} else {
			artifact.AudioRef = "/v1/tours/" + job.ID + "/audio"
			artifact.AudioFormat = draft.Audio.Format
			finalState = domain.JobStateReady
		}
	}

	job.Artifact = artifact
	if o.cache != nil {
		entry := cache.Entry{Artifact: artifact, Provider: artifact.Provider}
		if err := o.cache.Put(context.Background(), job.Fingerprint, entry, o.cacheTTL); err != nil {
			o.logger.Warn().Err(err).Str("job_id", id).Msg("orchestrator: cache write failed")
		}
	}
	o.finishJob(context.Background(), job, finalState, "")
	o.logger.Info().
		Str("job_id", id).
		Str("state", string(finalState)).
		Str("provider", job.Provider).
		Float64("duration_s", artifact.TotalDurationSeconds).
		Msg("orchestrator: job finished")
}

func (o *Orchestrator) cancelRequested(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelReq[id]
}

func (o *Orchestrator) cleanup(id string, fp domain.Fingerprint) {
	o.mu.Lock()
	delete(o.cancels, id)
	delete(o.cancelReq, id)
	if fp != "" {
		if holder := o.inflight[fp]; holder != nil && holder.ID == id {
			delete(o.inflight, fp)
		}
	}
	o.mu.Unlock()
}

// transition advances the job's state and persists it. Transitions never move
// backwards: a persisted state of equal or higher rank wins.
func (o *Orchestrator) transition(job *domain.Job, state domain.JobState) {
	if state.Rank() < job.State.Rank() || job.State.Terminal() {
		return
	}
	job.State = state
	job.UpdatedAt = time.Now().UTC()
	if job.StageTimes == nil {
		job.StageTimes = make(map[domain.JobState]time.Time)
	}
	job.StageTimes[state] = job.UpdatedAt
	if err := o.store.Update(context.Background(), job); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Str("state", string(state)).Msg("orchestrator: persist transition failed")
	}
}

func (o *Orchestrator) finishJob(ctx context.Context, job *domain.Job, state domain.JobState, errText string) {
	if job.State.Terminal() {
		return
	}
	job.State = state
	job.Error = errText
	job.UpdatedAt = time.Now().UTC()
	if job.StageTimes == nil {
		job.StageTimes = make(map[domain.JobState]time.Time)
	}
	job.StageTimes[state] = job.UpdatedAt
	if err := o.store.Update(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: persist terminal state failed")
	}
}

func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, reason string) {
	o.finishJob(ctx, job, domain.JobStateFailed, reason)
}

func audioExt(format string) string {
	switch {
	case strings.Contains(format, "mpeg"), strings.Contains(format, "mp3"):
		return ".mp3"
	case strings.Contains(format, "wav"):
		return ".wav"
	case strings.Contains(format, "ogg"):
		return ".ogg"
	case strings.Contains(format, "text"):
		return ".txt"
	default:
		return ".bin"
	}
}
