package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"tourcast/internal/domain"
)

// JobStore persists job records. Get returns domain.ErrNotFound for unknown
// ids. FindActiveByFingerprint returns the newest non-terminal job for the
// fingerprint, or domain.ErrNotFound. Update is a no-op once the stored job
// has reached a terminal state, so late writes from stale copies cannot
// resurrect a finished job.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Update(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	FindActiveByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Job, error)
	ListResumable(ctx context.Context) ([]*domain.Job, error)
}

// MemoryStore keeps jobs in process memory. Used in tests and when no
// database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*domain.Job)}
}

func (s *MemoryStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneJob(job)
	s.jobs[job.ID] = cp
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.State.Terminal() {
		return nil
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) FindActiveByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *domain.Job
	for _, job := range s.jobs {
		if job.Fingerprint != fp || job.State.Terminal() {
			continue
		}
		if newest == nil || job.CreatedAt.After(newest.CreatedAt) {
			newest = job
		}
	}
	if newest == nil {
		return nil, domain.ErrNotFound
	}
	return cloneJob(newest), nil
}

func (s *MemoryStore) ListResumable(ctx context.Context) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Job
	for _, job := range s.jobs {
		if !job.State.Terminal() {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	cp := *job
	if job.StageTimes != nil {
		cp.StageTimes = make(map[domain.JobState]time.Time, len(job.StageTimes))
		for k, v := range job.StageTimes {
			cp.StageTimes[k] = v
		}
	}
	if job.Artifact != nil {
		art := *job.Artifact
		cp.Artifact = &art
	}
	return &cp
}

var _ JobStore = (*MemoryStore)(nil)
