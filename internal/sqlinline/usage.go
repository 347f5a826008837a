package sqlinline

const QInsertUsageEvent = `--sql e40f651c-a8b3-44c7-a911-bb8a0ed5f6ef
insert into usage_events (id, provider, operation, input_chars, output_chars, latency_ms, success, cost_usd, created_at)
values (gen_random_uuid(), $1::text, $2::text, $3::int, $4::int, $5::int, $6::boolean, $7::numeric, $8::timestamptz);
`

const QSelectUsageTotalsSince = `--sql a3c7f0d9-6e24-4b81-9f53-2d8b5c1e7a46
select
    count(*) filter (where success),
    count(*) filter (where not success),
    coalesce(sum(input_chars), 0),
    coalesce(sum(output_chars), 0),
    coalesce(sum(cost_usd), 0)
from usage_events
where created_at >= $1::timestamptz;
`
