package sqlinline

const QUpsertCacheEntry = `--sql 3f2c9d1e-5b74-4a0a-9c21-8e4f6a2d7b19
insert into content_cache (fingerprint, artifact, provider, created_at, expires_at)
values ($1::text, $2::jsonb, $3::text, now(), $4::timestamptz)
on conflict (fingerprint) do update set
    artifact = excluded.artifact,
    provider = excluded.provider,
    created_at = now(),
    expires_at = excluded.expires_at;
`

const QSelectCacheEntry = `--sql b7a1e4c8-2d96-4f3b-8a57-1c0d9e6f4a32
select artifact, provider, expires_at
from content_cache
where fingerprint = $1::text
limit 1;
`

const QDeleteCacheEntry = `--sql 91d5f3a7-6c28-4e0b-b4a9-3f7e2c8d5b46
delete from content_cache
where fingerprint = $1::text;
`

const QDeleteExpiredCacheEntries = `--sql 5e8b2f9c-1a47-4d63-9b28-7c4f0a6e3d51
delete from content_cache
where expires_at <= now();
`
