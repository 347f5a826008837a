package sqlinline

const QInsertJob = `--sql 7c3e8a15-4f92-4b6d-a180-5d2c9f7e4b38
insert into generation_jobs (id, caller_id, fingerprint, request, state, provider, artifact, error, stage_times, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::jsonb, $5::text, $6::text, $7::jsonb, '', $8::jsonb, now(), now());
`

const QUpdateJobState = `--sql d9f4b2c6-8e17-4a53-b97f-2c6e0d8a5f41
update generation_jobs set
    state = $2::text,
    provider = coalesce(nullif($3::text, ''), provider),
    artifact = coalesce($4::jsonb, artifact),
    error = $5::text,
    stage_times = $6::jsonb,
    updated_at = now()
where id = $1::uuid
  and state not in ('ready', 'ready_no_audio', 'failed', 'cancelled');
`

const QSelectJob = `--sql 2a6d9e83-5c41-4f7b-8d29-6b3f1c7a4e58
select id, caller_id, fingerprint, request, state, provider, artifact, error, stage_times, created_at, updated_at
from generation_jobs
where id = $1::uuid
limit 1;
`

const QSelectActiveJobByFingerprint = `--sql 4b8f1c72-9d35-4e6a-a482-7f0e5d9c2b63
select id, caller_id, fingerprint, request, state, provider, artifact, error, stage_times, created_at, updated_at
from generation_jobs
where fingerprint = $1::text
  and state not in ('ready', 'ready_no_audio', 'failed', 'cancelled')
order by created_at desc
limit 1;
`

const QSelectResumableJobs = `--sql 6e2a7d94-3b58-4c1f-9a67-8d4b2f0c5e71
select id, caller_id, fingerprint, request, state, provider, artifact, error, stage_times, created_at, updated_at
from generation_jobs
where state in ('queued', 'generating_text', 'generating_audio')
order by created_at asc;
`
