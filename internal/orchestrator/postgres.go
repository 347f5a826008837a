package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"tourcast/internal/domain"
	"tourcast/internal/infra"
	"tourcast/internal/sqlinline"
)

// PostgresStore persists jobs in the generation_jobs table. Request, artifact
// and stage timing columns are jsonb.
type PostgresStore struct {
	runner infra.SQLExecutor
}

func NewPostgresStore(runner infra.SQLExecutor) *PostgresStore {
	return &PostgresStore{runner: runner}
}

func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("jobs: marshal request: %w", err)
	}
	// Cache-hit jobs are created already terminal with an artifact attached.
	var artifact []byte
	if job.Artifact != nil {
		raw, err := json.Marshal(job.Artifact)
		if err != nil {
			return fmt.Errorf("jobs: marshal artifact: %w", err)
		}
		artifact = raw
	}
	stageTimes, err := json.Marshal(job.StageTimes)
	if err != nil {
		return fmt.Errorf("jobs: marshal stage times: %w", err)
	}
	_, err = s.runner.Exec(ctx, sqlinline.QInsertJob,
		job.ID, job.CallerID, string(job.Fingerprint), request, string(job.State), job.Provider, artifact, stageTimes)
	if err != nil {
		return fmt.Errorf("jobs: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, job *domain.Job) error {
	var artifact []byte
	if job.Artifact != nil {
		raw, err := json.Marshal(job.Artifact)
		if err != nil {
			return fmt.Errorf("jobs: marshal artifact: %w", err)
		}
		artifact = raw
	}
	stageTimes, err := json.Marshal(job.StageTimes)
	if err != nil {
		return fmt.Errorf("jobs: marshal stage times: %w", err)
	}
	_, err = s.runner.Exec(ctx, sqlinline.QUpdateJobState,
		job.ID, string(job.State), job.Provider, artifact, job.Error, stageTimes)
	if err != nil {
		return fmt.Errorf("jobs: update: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.runner.QueryRow(ctx, sqlinline.QSelectJob, id)
	return scanJob(row.Scan)
}

func (s *PostgresStore) FindActiveByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Job, error) {
	row := s.runner.QueryRow(ctx, sqlinline.QSelectActiveJobByFingerprint, string(fp))
	return scanJob(row.Scan)
}

func (s *PostgresStore) ListResumable(ctx context.Context) ([]*domain.Job, error) {
	rows, err := s.runner.Query(ctx, sqlinline.QSelectResumableJobs)
	if err != nil {
		return nil, fmt.Errorf("jobs: list resumable: %w", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: iterate: %w", err)
	}
	return out, nil
}

func scanJob(scan func(dest ...any) error) (*domain.Job, error) {
	var (
		job        domain.Job
		fp         string
		state      string
		request    []byte
		artifact   []byte
		errText    *string
		stageTimes []byte
	)
	err := scan(&job.ID, &job.CallerID, &fp, &request, &state, &job.Provider,
		&artifact, &errText, &stageTimes, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("jobs: scan: %w", err)
	}
	job.Fingerprint = domain.Fingerprint(fp)
	job.State = domain.JobState(state)
	if errText != nil {
		job.Error = *errText
	}
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, fmt.Errorf("jobs: decode request: %w", err)
	}
	if len(artifact) > 0 {
		job.Artifact = &domain.Artifact{}
		if err := json.Unmarshal(artifact, job.Artifact); err != nil {
			return nil, fmt.Errorf("jobs: decode artifact: %w", err)
		}
	}
	if len(stageTimes) > 0 {
		if err := json.Unmarshal(stageTimes, &job.StageTimes); err != nil {
			return nil, fmt.Errorf("jobs: decode stage times: %w", err)
		}
	}
	return &job, nil
}

var _ JobStore = (*PostgresStore)(nil)
