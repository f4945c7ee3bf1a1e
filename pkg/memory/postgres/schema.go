// Package postgres provides a PostgreSQL-backed [memory.Store].
//
// Jobs, candidates and interviews are stored in their own tables so a job can
// be shared by many interviews. Conversation history lives in
// interview_messages and is read back newest-first with a bounded window.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	if err := store.Migrate(ctx); err != nil { … }
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlJobs = `
CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT    PRIMARY KEY,
    title       TEXT    NOT NULL DEFAULT '',
    company     TEXT    NOT NULL DEFAULT '',
    description TEXT    NOT NULL DEFAULT '',
    skills      TEXT[]  NOT NULL DEFAULT '{}',
    language    TEXT    NOT NULL DEFAULT ''
);`

const ddlCandidates = `
CREATE TABLE IF NOT EXISTS candidates (
    id      TEXT    PRIMARY KEY,
    name    TEXT    NOT NULL DEFAULT '',
    summary TEXT    NOT NULL DEFAULT '',
    skills  TEXT[]  NOT NULL DEFAULT '{}'
);`

const ddlInterviews = `
CREATE TABLE IF NOT EXISTS interviews (
    id             TEXT         PRIMARY KEY,
    job_id         TEXT         NOT NULL REFERENCES jobs (id),
    candidate_id   TEXT         NOT NULL REFERENCES candidates (id),
    voice_id       TEXT         NOT NULL DEFAULT '',
    voice_provider TEXT         NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

const ddlMessages = `
CREATE TABLE IF NOT EXISTS interview_messages (
    seq          BIGSERIAL    PRIMARY KEY,
    id           UUID         NOT NULL UNIQUE,
    interview_id TEXT         NOT NULL REFERENCES interviews (id) ON DELETE CASCADE,
    role         TEXT         NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content      TEXT         NOT NULL,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_messages_interview_seq
    ON interview_messages (interview_id, seq);`

// Migrate creates every table the store needs. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlJobs, ddlCandidates, ddlInterviews, ddlMessages} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
