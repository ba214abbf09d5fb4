package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"board-api/domain"
)

// Storage is the PostgreSQL-backed authoritative store for tasks, comments,
// the audit ledger and session status rows.
type Storage struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Connect opens a pool against dsn and verifies the connection.
func Connect(ctx context.Context, dsn string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Storage{pool: pool}, nil
}

// Close releases the pool.
func (s *Storage) Close() {
	s.pool.Close()
}

// EnsureSchema creates the tables and indexes if they don't exist. Audit
// events deliberately carry no foreign key so they survive task deletion.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id                   TEXT PRIMARY KEY,
			title                TEXT NOT NULL,
			description          TEXT NOT NULL DEFAULT '',
			success_criteria     TEXT NOT NULL DEFAULT '',
			user_journey         TEXT NOT NULL DEFAULT '',
			board_column         TEXT NOT NULL,
			priority             TEXT NOT NULL DEFAULT 'medium',
			kind                 TEXT NOT NULL DEFAULT 'single',
			requires_environment BOOLEAN NOT NULL DEFAULT FALSE,
			archived             BOOLEAN NOT NULL DEFAULT FALSE,
			project              TEXT NOT NULL DEFAULT '',
			image                TEXT NOT NULL DEFAULT '',
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			id         BIGSERIAL PRIMARY KEY,
			task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			author     TEXT NOT NULL,
			text       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_task ON comments(task_id)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id          BIGSERIAL PRIMARY KEY,
			kind        TEXT NOT NULL,
			task_id     TEXT NOT NULL,
			task_title  TEXT NOT NULL DEFAULT '',
			from_column TEXT NOT NULL DEFAULT '',
			to_column   TEXT NOT NULL DEFAULT '',
			author      TEXT NOT NULL DEFAULT '',
			service     TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_author ON audit_events(author)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_created ON audit_events(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS session_status (
			session_key  TEXT PRIMARY KEY,
			label        TEXT NOT NULL DEFAULT '',
			active       BOOLEAN NOT NULL DEFAULT FALSE,
			current_task TEXT NOT NULL DEFAULT '',
			model        TEXT NOT NULL DEFAULT '',
			updated_at   TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const taskColumns = `id, title, description, success_criteria, user_journey, board_column,
	priority, kind, requires_environment, archived, project, image, created_at, updated_at`

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.SuccessCriteria, &t.UserJourney,
		&t.Column, &t.Priority, &t.Kind, &t.RequiresEnvironment, &t.Archived,
		&t.Project, &t.Image, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// ReadAllTasks returns every task in creation order.
func (s *Storage) ReadAllTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return out, nil
}

// ReadTask returns one task, wrapping domain.ErrNotFound for unknown ids.
func (s *Storage) ReadTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("task %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("read task %s: %w", id, err)
	}
	return t, nil
}

// InsertTask writes a new row. Timestamps are truncated to PostgreSQL's
// microsecond precision so reads return what was written.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, title, description, success_criteria, user_journey, board_column,
			priority, kind, requires_environment, archived, project, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.Title, t.Description, t.SuccessCriteria, t.UserJourney, t.Column,
		t.Priority, t.Kind, t.RequiresEnvironment, t.Archived, t.Project, t.Image,
		t.CreatedAt.Truncate(time.Microsecond), t.UpdatedAt.Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// PatchTask updates only the fields set on the patch and touches updated_at.
func (s *Storage) PatchTask(ctx context.Context, id string, p domain.TaskPatch) error {
	set := "updated_at = $1"
	args := []any{time.Now().Truncate(time.Microsecond)}
	argIdx := 2

	add := func(column string, v any) {
		set += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, v)
		argIdx++
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.SuccessCriteria != nil {
		add("success_criteria", *p.SuccessCriteria)
	}
	if p.UserJourney != nil {
		add("user_journey", *p.UserJourney)
	}
	if p.Column != nil {
		add("board_column", *p.Column)
	}
	if p.Priority != nil {
		add("priority", *p.Priority)
	}
	if p.Kind != nil {
		add("kind", *p.Kind)
	}
	if p.RequiresEnvironment != nil {
		add("requires_environment", *p.RequiresEnvironment)
	}
	if p.Archived != nil {
		add("archived", *p.Archived)
	}
	if p.Project != nil {
		add("project", *p.Project)
	}
	if p.Image != nil {
		add("image", *p.Image)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d", set, argIdx)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("patch task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteTask removes the row; comments cascade at the schema level.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Storage) scanComments(ctx context.Context, query string, args ...any) ([]domain.Comment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}
	defer rows.Close()

	var out []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Author, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}
	return out, nil
}

// ReadAllComments returns every comment grouped by task, oldest first.
func (s *Storage) ReadAllComments(ctx context.Context) ([]domain.Comment, error) {
	return s.scanComments(ctx, `SELECT id, task_id, author, text, created_at FROM comments ORDER BY task_id, id ASC`)
}

// ReadComments returns one task's comments, oldest first.
func (s *Storage) ReadComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	return s.scanComments(ctx, `SELECT id, task_id, author, text, created_at FROM comments WHERE task_id = $1 ORDER BY id ASC`, taskID)
}

// InsertComment appends one comment; the id comes from the sequence.
func (s *Storage) InsertComment(ctx context.Context, c domain.Comment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO comments (task_id, author, text, created_at) VALUES ($1, $2, $3, $4)`,
		c.TaskID, c.Author, c.Text, c.CreatedAt.Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("insert comment on %s: %w", c.TaskID, err)
	}
	return nil
}

// AppendAuditEvent writes one ledger entry. The table is append-only;
// there is no update or delete counterpart.
func (s *Storage) AppendAuditEvent(ctx context.Context, e domain.AuditEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (kind, task_id, task_title, from_column, to_column, author, service, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.Kind, e.TaskID, e.TaskTitle, e.FromColumn, e.ToColumn, e.Author, e.Service,
		e.CreatedAt.Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ReadAuditEvents returns the newest events first, optionally filtered by
// author, capped at limit.
func (s *Storage) ReadAuditEvents(ctx context.Context, author string, limit int) ([]domain.AuditEvent, error) {
	var (
		query = `SELECT id, kind, task_id, task_title, from_column, to_column, author, service, created_at
			FROM audit_events ORDER BY created_at DESC, id DESC LIMIT $1`
		args = []any{limit}
	)
	if author != "" {
		query = `SELECT id, kind, task_id, task_title, from_column, to_column, author, service, created_at
			FROM audit_events WHERE author = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
		args = []any{author, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read audit events: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.TaskID, &e.TaskTitle, &e.FromColumn,
			&e.ToColumn, &e.Author, &e.Service, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit events: %w", err)
	}
	return out, nil
}

// UpsertSessionStatus overwrites the row for the session key.
func (s *Storage) UpsertSessionStatus(ctx context.Context, st domain.SessionStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_status (session_key, label, active, current_task, model, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_key) DO UPDATE SET
			label = EXCLUDED.label,
			active = EXCLUDED.active,
			current_task = EXCLUDED.current_task,
			model = EXCLUDED.model,
			updated_at = EXCLUDED.updated_at`,
		st.SessionKey, st.Label, st.Active, st.CurrentTask, st.Model,
		st.UpdatedAt.Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", st.SessionKey, err)
	}
	return nil
}

// ReadSessionStatuses returns every stored session row, most recently
// updated first; staleness filtering happens at the engine.
func (s *Storage) ReadSessionStatuses(ctx context.Context) ([]domain.SessionStatus, error) {
	rows, err := s.pool.Query(ctx, `SELECT session_key, label, active, current_task, model, updated_at FROM session_status ORDER BY updated_at DESC, session_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionStatus
	for rows.Next() {
		var st domain.SessionStatus
		if err := rows.Scan(&st.SessionKey, &st.Label, &st.Active, &st.CurrentTask, &st.Model, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	return out, nil
}
