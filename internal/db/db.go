package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func Open(databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

// Migrate creates the schema if it does not exist.
func Migrate(conn *sql.DB) error {
	_, err := conn.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  payload JSONB NOT NULL DEFAULT '{}',
  priority INT NOT NULL DEFAULT 5,
  status TEXT NOT NULL DEFAULT 'pending'
    CHECK (status IN ('pending','processing','completed','failed','dead_letter')),
  attempts INT NOT NULL DEFAULT 0,
  max_attempts INT NOT NULL DEFAULT 5,
  scheduled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  claimed_by TEXT NOT NULL DEFAULT '',
  idempotency_key TEXT,
  result JSONB,
  last_error TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, scheduled_at, priority DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idem ON jobs(idempotency_key) WHERE idempotency_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS job_attempts (
  id SERIAL PRIMARY KEY,
  job_id TEXT NOT NULL REFERENCES jobs(id),
  worker_id TEXT NOT NULL DEFAULT '',
  success BOOLEAN NOT NULL DEFAULT FALSE,
  error TEXT NOT NULL DEFAULT '',
  finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
  id SERIAL PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  linkedin_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS campaign_templates (
  id SERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL CHECK (type IN ('email','linkedin','multi_channel')),
  path_type TEXT NOT NULL DEFAULT '',
  settings JSONB NOT NULL DEFAULT '{}',
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS email_sequence_steps (
  id SERIAL PRIMARY KEY,
  template_id INT NOT NULL REFERENCES campaign_templates(id) ON DELETE CASCADE,
  step_number INT NOT NULL,
  subject TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL DEFAULT '',
  delay_hours INT NOT NULL DEFAULT 0,
  UNIQUE (template_id, step_number)
);

CREATE TABLE IF NOT EXISTS linkedin_sequence_steps (
  id SERIAL PRIMARY KEY,
  template_id INT NOT NULL REFERENCES campaign_templates(id) ON DELETE CASCADE,
  step_number INT NOT NULL,
  action TEXT NOT NULL CHECK (action IN ('profile_visit','connection_request','message')),
  message TEXT NOT NULL DEFAULT '',
  delay_hours INT NOT NULL DEFAULT 0,
  UNIQUE (template_id, step_number)
);

CREATE TABLE IF NOT EXISTS campaign_instances (
  id SERIAL PRIMARY KEY,
  template_id INT NOT NULL REFERENCES campaign_templates(id),
  name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft'
    CHECK (status IN ('draft','active','paused','completed','failed')),
  provider_config JSONB NOT NULL DEFAULT '{}',
  enrolled_count INT NOT NULL DEFAULT 0,
  sent_count INT NOT NULL DEFAULT 0,
  delivered_count INT NOT NULL DEFAULT 0,
  opened_count INT NOT NULL DEFAULT 0,
  clicked_count INT NOT NULL DEFAULT 0,
  replied_count INT NOT NULL DEFAULT 0,
  bounced_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_instances_template ON campaign_instances(template_id, status);

CREATE TABLE IF NOT EXISTS campaign_enrollments (
  id SERIAL PRIMARY KEY,
  instance_id INT NOT NULL REFERENCES campaign_instances(id),
  contact_id INT NOT NULL REFERENCES contacts(id),
  status TEXT NOT NULL DEFAULT 'active'
    CHECK (status IN ('active','paused','completed','unsubscribed')),
  current_step INT NOT NULL DEFAULT 1,
  next_action_at TIMESTAMPTZ,
  metadata JSONB NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ,
  UNIQUE (instance_id, contact_id)
);
CREATE INDEX IF NOT EXISTS idx_enrollments_due ON campaign_enrollments(status, next_action_at);

CREATE TABLE IF NOT EXISTS campaign_events (
  id SERIAL PRIMARY KEY,
  enrollment_id INT NOT NULL REFERENCES campaign_enrollments(id),
  event_type TEXT NOT NULL,
  channel TEXT NOT NULL,
  provider TEXT NOT NULL,
  provider_event_id TEXT,
  step_number INT NOT NULL DEFAULT 0,
  occurred_at TIMESTAMPTZ NOT NULL,
  raw_payload JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_provider_event
  ON campaign_events(provider_event_id) WHERE provider_event_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_events_enrollment ON campaign_events(enrollment_id, event_type);
`
