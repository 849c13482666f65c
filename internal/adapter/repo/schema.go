package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Statements are idempotent so repeated boots
// and rolling restarts are safe without an external migration tool.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id             TEXT PRIMARY KEY,
  email          TEXT NOT NULL DEFAULT '',
  name           TEXT NOT NULL DEFAULT '',
  credit_balance INT  NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
  created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	`CREATE TABLE IF NOT EXISTS jobs (
  id                 TEXT PRIMARY KEY,
  user_id            TEXT NOT NULL REFERENCES users(id),
  product_type       TEXT NOT NULL,
  requested_scenes   TEXT[] NOT NULL,
  style_id           TEXT NOT NULL,
  injection_override TEXT NOT NULL DEFAULT '',
  provider_override  TEXT NOT NULL DEFAULT '',
  product_image_key  TEXT NOT NULL,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  completed_at       TIMESTAMPTZ
);`,
	`CREATE TABLE IF NOT EXISTS scene_tasks (
  id                TEXT PRIMARY KEY,
  job_id            TEXT NOT NULL REFERENCES jobs(id),
  scene_template_id TEXT NOT NULL,
  status            TEXT NOT NULL,
  attempt_count     INT  NOT NULL DEFAULT 0,
  output_path       TEXT NOT NULL DEFAULT '',
  provider_used     TEXT NOT NULL DEFAULT '',
  error_kind        TEXT NOT NULL DEFAULT '',
  created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	`CREATE INDEX IF NOT EXISTS idx_scene_tasks_job_id ON scene_tasks (job_id);`,
	`CREATE INDEX IF NOT EXISTS idx_scene_tasks_status ON scene_tasks (status);`,
	`CREATE TABLE IF NOT EXISTS credit_transactions (
  id            TEXT PRIMARY KEY,
  user_id       TEXT NOT NULL REFERENCES users(id),
  amount        INT  NOT NULL,
  balance_after INT  NOT NULL,
  description   TEXT NOT NULL DEFAULT '',
  job_id        TEXT,
  task_id       TEXT,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user ON credit_transactions (user_id, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS provider_credentials (
  name       TEXT PRIMARY KEY,
  api_key    TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
}

// EnsureSchema creates the tables the repositories depend on.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
