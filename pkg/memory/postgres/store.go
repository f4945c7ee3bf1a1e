package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxhire/pkg/memory"
	"github.com/MrWong99/voxhire/pkg/types"
)

var (
	_ memory.Store         = (*Store)(nil)
	_ memory.ContextWriter = (*Store)(nil)
	_ memory.Pinger        = (*Store)(nil)
)

// Store is a PostgreSQL-backed [memory.Store]. It holds a single
// [pgxpool.Pool] and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and verifies the connection. It
// does not create tables; call [Store.Migrate] for that.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate runs [Migrate] against the store's pool.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Ping implements [memory.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveContext upserts the job, candidate and interview rows in one
// transaction. Empty job or candidate IDs default to "<interview>-job" and
// "<interview>-candidate".
func (s *Store) SaveContext(ctx context.Context, ic types.InterviewContext) error {
	if ic.InterviewID == "" {
		return errors.New("postgres store: save context: interview id is required")
	}
	jobID := ic.Job.ID
	if jobID == "" {
		jobID = ic.InterviewID + "-job"
	}
	candID := ic.Candidate.ID
	if candID == "" {
		candID = ic.InterviewID + "-candidate"
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const jobQ = `
			INSERT INTO jobs (id, title, company, description, skills, language)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
			    title = EXCLUDED.title, company = EXCLUDED.company,
			    description = EXCLUDED.description, skills = EXCLUDED.skills,
			    language = EXCLUDED.language`
		if _, err := tx.Exec(ctx, jobQ, jobID, ic.Job.Title, ic.Job.Company,
			ic.Job.Description, nonNil(ic.Job.Skills), ic.Job.Language); err != nil {
			return fmt.Errorf("upsert job: %w", err)
		}

		const candQ = `
			INSERT INTO candidates (id, name, summary, skills)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
			    name = EXCLUDED.name, summary = EXCLUDED.summary, skills = EXCLUDED.skills`
		if _, err := tx.Exec(ctx, candQ, candID, ic.Candidate.Name,
			ic.Candidate.Summary, nonNil(ic.Candidate.Skills)); err != nil {
			return fmt.Errorf("upsert candidate: %w", err)
		}

		const ivQ = `
			INSERT INTO interviews (id, job_id, candidate_id, voice_id, voice_provider)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
			    job_id = EXCLUDED.job_id, candidate_id = EXCLUDED.candidate_id,
			    voice_id = EXCLUDED.voice_id, voice_provider = EXCLUDED.voice_provider`
		if _, err := tx.Exec(ctx, ivQ, ic.InterviewID, jobID, candID,
			ic.Voice.ID, ic.Voice.Provider); err != nil {
			return fmt.Errorf("upsert interview: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres store: save context %q: %w", ic.InterviewID, err)
	}
	return nil
}

// LoadContext implements [memory.Store].
func (s *Store) LoadContext(ctx context.Context, interviewID string) (*types.InterviewContext, error) {
	const q = `
		SELECT i.id, i.voice_id, i.voice_provider,
		       j.id, j.title, j.company, j.description, j.skills, j.language,
		       c.id, c.name, c.summary, c.skills
		FROM interviews i
		JOIN jobs j ON j.id = i.job_id
		JOIN candidates c ON c.id = i.candidate_id
		WHERE i.id = $1`

	var ic types.InterviewContext
	err := s.pool.QueryRow(ctx, q, interviewID).Scan(
		&ic.InterviewID, &ic.Voice.ID, &ic.Voice.Provider,
		&ic.Job.ID, &ic.Job.Title, &ic.Job.Company, &ic.Job.Description, &ic.Job.Skills, &ic.Job.Language,
		&ic.Candidate.ID, &ic.Candidate.Name, &ic.Candidate.Summary, &ic.Candidate.Skills,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: load context %q: %w", interviewID, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load context %q: %w", interviewID, err)
	}
	return &ic, nil
}

// LoadRecentMessages implements [memory.Store].
func (s *Store) LoadRecentMessages(ctx context.Context, interviewID string, limit int) ([]types.ConversationMessage, error) {
	if err := s.exists(ctx, interviewID); err != nil {
		return nil, fmt.Errorf("postgres store: load messages: %w", err)
	}

	// NULL disables the LIMIT.
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	const q = `
		SELECT id, role, content, created_at FROM (
		    SELECT seq, id, role, content, created_at
		    FROM interview_messages
		    WHERE interview_id = $1
		    ORDER BY seq DESC
		    LIMIT $2
		) recent
		ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, q, interviewID, lim)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.ConversationMessage, error) {
		var (
			m    types.ConversationMessage
			id   uuid.UUID
			role string
		)
		if err := row.Scan(&id, &role, &m.Content, &m.Timestamp); err != nil {
			return m, err
		}
		m.ID = id.String()
		m.Role = types.Role(role)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: load messages: %w", err)
	}
	return msgs, nil
}

// CountMessages implements [memory.MessageCounter].
func (s *Store) CountMessages(ctx context.Context, interviewID string, role types.Role) (int, error) {
	if err := s.exists(ctx, interviewID); err != nil {
		return 0, fmt.Errorf("postgres store: count messages: %w", err)
	}
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM interview_messages WHERE interview_id = $1 AND role = $2`,
		interviewID, string(role),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres store: count messages: %w", err)
	}
	return n, nil
}

// AppendMessage implements [memory.Store].
func (s *Store) AppendMessage(ctx context.Context, interviewID string, msg types.ConversationMessage) (types.ConversationMessage, error) {
	if !msg.Role.Valid() {
		return msg, fmt.Errorf("postgres store: append message: invalid role %q", msg.Role)
	}
	id := uuid.Nil
	if msg.ID != "" {
		parsed, err := uuid.Parse(msg.ID)
		if err != nil {
			return msg, fmt.Errorf("postgres store: append message: %w", err)
		}
		id = parsed
	} else {
		v7, err := uuid.NewV7()
		if err != nil {
			return msg, fmt.Errorf("postgres store: append message: %w", err)
		}
		id = v7
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	const q = `
		INSERT INTO interview_messages (id, interview_id, role, content, created_at)
		SELECT $1, $2, $3, $4, $5
		WHERE EXISTS (SELECT 1 FROM interviews WHERE id = $2)`
	tag, err := s.pool.Exec(ctx, q, id, interviewID, string(msg.Role), msg.Content, msg.Timestamp)
	if err != nil {
		return msg, fmt.Errorf("postgres store: append message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return msg, fmt.Errorf("postgres store: append message %q: %w", interviewID, memory.ErrNotFound)
	}
	msg.ID = id.String()
	return msg, nil
}

func (s *Store) exists(ctx context.Context, interviewID string) error {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM interviews WHERE id = $1)`, interviewID).Scan(&ok)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%q: %w", interviewID, memory.ErrNotFound)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
