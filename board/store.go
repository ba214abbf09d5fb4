package board

import (
	"context"

	"board-api/domain"
)

// Store is the authoritative persistence boundary the engine writes through.
// Implementations surface failures as errors; the engine decides per call
// path whether to degrade or propagate. ReadTask and ReadComments wrap
// domain.ErrNotFound when the id is unknown.
type Store interface {
	ReadAllTasks(ctx context.Context) ([]domain.Task, error)
	ReadAllComments(ctx context.Context) ([]domain.Comment, error)
	ReadTask(ctx context.Context, id string) (domain.Task, error)
	ReadComments(ctx context.Context, taskID string) ([]domain.Comment, error)
	InsertTask(ctx context.Context, t domain.Task) error
	PatchTask(ctx context.Context, id string, p domain.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error
	InsertComment(ctx context.Context, c domain.Comment) error
	AppendAuditEvent(ctx context.Context, e domain.AuditEvent) error
	ReadAuditEvents(ctx context.Context, author string, limit int) ([]domain.AuditEvent, error)
	UpsertSessionStatus(ctx context.Context, s domain.SessionStatus) error
	ReadSessionStatuses(ctx context.Context) ([]domain.SessionStatus, error)
}

// Cache is the single-process snapshot cache in front of ReadAllTasks.
type Cache interface {
	Get() (domain.BoardView, bool)
	Set(domain.BoardView)
	Invalidate()
}

// Notifier pushes change events to live subscribers and, when an external
// feed is configured, to peer processes.
type Notifier interface {
	Notify(ctx context.Context, ev domain.ChangeEvent)
}
