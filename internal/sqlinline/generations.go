package sqlinline

const QCreateGenerationsTable = `--sql 3f0c9a57-6b2e-4d18-9a41-c2e7b5d08f13
create table if not exists generations(
  task_id     text primary key,
  status      text not null,
  files       int not null default 0,
  prompts     int not null default 0,
  images      int not null default 0,
  duration_ms bigint not null default 0,
  error       text,
  brief       text not null default '',
  created_at  timestamptz not null default now()
);
`

const QCreateGenerationsCreatedIndex = `--sql 8d2b61e4-0f7a-4c3b-b95e-6a1d47c2e980
create index if not exists generations_created_at_idx on generations(created_at desc);
`

const QUpsertGeneration = `--sql a61e7f2c-3d94-4b85-8e07-5c2f19d6b4a3
insert into generations(task_id, status, files, prompts, images, duration_ms, error, brief, created_at)
values ($1::text, $2::text, $3::int, $4::int, $5::int, $6::bigint, nullif($7::text, ''), $8::text, $9::timestamptz)
on conflict (task_id) do update
set status = excluded.status,
    files = excluded.files,
    prompts = excluded.prompts,
    images = excluded.images,
    duration_ms = excluded.duration_ms,
    error = excluded.error,
    brief = excluded.brief;
`

const QListRecentGenerations = `--sql c93d5b08-71ea-4f26-a0d4-e8b6f3217c5d
select task_id, status, files, prompts, images, duration_ms, coalesce(error, ''), brief, created_at
from generations
order by created_at desc
limit $1::int;
`
