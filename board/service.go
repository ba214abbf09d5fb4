package board

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

const defaultHistoryLimit = 500

// Config carries the tunables of the engine.
type Config struct {
	Rules domain.Rules
	// ServiceTag is stamped on every audit event to mark the originating
	// environment.
	ServiceTag   string
	HistoryLimit int
}

// Service is the task engine: cached reads, validated single-task
// operations, bulk reconciliation, audit history and session status. All
// shared state lives behind the injected collaborators so tests construct
// isolated instances.
type Service struct {
	store    Store
	cache    Cache
	recorder *Recorder
	notify   Notifier
	rules    domain.Rules
	tag      string
	limit    int
	log      *log.Logger

	now   func() time.Time
	newID func() string
}

// NewService wires the engine. recorder and notify must be non-nil; use a
// no-op Notifier when fan-out is not wanted.
func NewService(store Store, cache Cache, recorder *Recorder, notify Notifier, cfg Config, logger *log.Logger) *Service {
	if len(cfg.Rules.Columns) == 0 {
		cfg.Rules = domain.DefaultRules()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &Service{
		store:    store,
		cache:    cache,
		recorder: recorder,
		notify:   notify,
		rules:    cfg.Rules,
		tag:      cfg.ServiceTag,
		limit:    cfg.HistoryLimit,
		log:      logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Rules exposes the configured column set and identities.
func (s *Service) Rules() domain.Rules {
	return s.rules
}

// Tasks returns the board view with each task's comments, served from cache
// when fresh. A store failure on a cache miss degrades to an empty board and
// is logged; the failed read is never cached.
func (s *Service) Tasks(ctx context.Context) domain.BoardView {
	if view, ok := s.cache.Get(); ok {
		return view
	}

	tasks, err := s.store.ReadAllTasks(ctx)
	if err != nil {
		s.log.WithError(err).Error("task read failed, serving empty board")
		return domain.BoardView{Columns: s.rules.Columns, Tasks: []domain.BoardTask{}}
	}
	comments, err := s.store.ReadAllComments(ctx)
	if err != nil {
		s.log.WithError(err).Error("comment read failed, serving empty board")
		return domain.BoardView{Columns: s.rules.Columns, Tasks: []domain.BoardTask{}}
	}

	view := domain.AssembleBoard(s.rules.Columns, tasks, comments)
	s.cache.Set(view)
	return view
}

// History returns the most recent audit events, newest first, capped and
// optionally filtered by author. Read failures degrade to empty.
func (s *Service) History(ctx context.Context, author string) []domain.AuditEvent {
	events, err := s.store.ReadAuditEvents(ctx, author, s.limit)
	if err != nil {
		s.log.WithError(err).Error("history read failed, serving empty history")
		return []domain.AuditEvent{}
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	return events
}

// Apply validates and executes one task operation. A nil return means the
// write landed, the cache was invalidated and subscribers were notified.
func (s *Service) Apply(ctx context.Context, op domain.Operation) error {
	switch op.Kind {
	case domain.OpAdd:
		return s.applyAdd(ctx, op)
	case domain.OpUpdate:
		return s.applyUpdate(ctx, op)
	case domain.OpDelete:
		return s.applyDelete(ctx, op)
	case domain.OpComment:
		return s.applyComment(ctx, op)
	default:
		return &domain.ValidationError{Reasons: []string{fmt.Sprintf("unknown operation kind %q", op.Kind)}}
	}
}

func (s *Service) applyAdd(ctx context.Context, op domain.Operation) error {
	req, err := op.Add()
	if err != nil {
		return err
	}
	task, err := s.rules.NormalizeTask(req.Task)
	if err != nil {
		return err
	}
	if task.ID == "" {
		task.ID = s.newID()
	}
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.store.InsertTask(ctx, task); err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}

	s.recorder.Record(domain.AuditEvent{
		Kind:      domain.AuditAdd,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		Author:    domain.EventAuthor(req.Author),
		Service:   s.tag,
		CreatedAt: now,
	})
	s.afterWrite(ctx, domain.ChangeEvent{Kind: domain.OpAdd, Payload: task.ID})
	return nil
}

func (s *Service) applyUpdate(ctx context.Context, op domain.Operation) error {
	req, err := op.Update()
	if err != nil {
		return err
	}
	id, err := domain.RequireID(req.ID)
	if err != nil {
		return err
	}
	patch, err := s.rules.NormalizePatch(req.TaskPatch)
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}

	stored, err := s.store.ReadTask(ctx, id)
	if err != nil {
		return fmt.Errorf("read task %s: %w", id, err)
	}
	if err := s.store.PatchTask(ctx, id, patch); err != nil {
		return fmt.Errorf("patch task %s: %w", id, err)
	}

	if patch.Column != nil && *patch.Column != stored.Column {
		s.recorder.Record(domain.AuditEvent{
			Kind:       domain.AuditMove,
			TaskID:     id,
			TaskTitle:  patch.Apply(stored).Title,
			FromColumn: stored.Column,
			ToColumn:   *patch.Column,
			Author:     s.rules.MoveAuthor(req.Author, *patch.Column),
			Service:    s.tag,
			CreatedAt:  s.now(),
		})
	}
	s.afterWrite(ctx, domain.ChangeEvent{Kind: domain.OpUpdate, Payload: id})
	return nil
}

func (s *Service) applyDelete(ctx context.Context, op domain.Operation) error {
	req, err := op.Delete()
	if err != nil {
		return err
	}
	id, err := domain.RequireID(req.ID)
	if err != nil {
		return err
	}

	// The title is read first so the audit entry survives the row.
	stored, err := s.store.ReadTask(ctx, id)
	if err != nil {
		return fmt.Errorf("read task %s: %w", id, err)
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	s.recorder.Record(domain.AuditEvent{
		Kind:      domain.AuditDelete,
		TaskID:    id,
		TaskTitle: stored.Title,
		Author:    domain.EventAuthor(req.Author),
		Service:   s.tag,
		CreatedAt: s.now(),
	})
	s.afterWrite(ctx, domain.ChangeEvent{Kind: domain.OpDelete, Payload: id})
	return nil
}

func (s *Service) applyComment(ctx context.Context, op domain.Operation) error {
	req, err := op.Comment()
	if err != nil {
		return err
	}
	id, err := domain.RequireID(req.ID)
	if err != nil {
		return err
	}

	stored, err := s.store.ReadTask(ctx, id)
	if err != nil {
		return fmt.Errorf("read task %s: %w", id, err)
	}
	existing, err := s.store.ReadComments(ctx, id)
	if err != nil {
		return fmt.Errorf("read comments for %s: %w", id, err)
	}
	for _, c := range existing {
		if c.Author == req.Author && c.Text == req.Text {
			// Identical payload already stored, nothing to write.
			return nil
		}
	}

	now := s.now()
	if err := s.store.InsertComment(ctx, domain.Comment{
		TaskID:    id,
		Author:    req.Author,
		Text:      req.Text,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("insert comment on %s: %w", id, err)
	}

	s.recorder.Record(domain.AuditEvent{
		Kind:      domain.AuditComment,
		TaskID:    id,
		TaskTitle: stored.Title,
		Author:    req.Author,
		Service:   s.tag,
		CreatedAt: now,
	})
	s.afterWrite(ctx, domain.ChangeEvent{Kind: domain.OpComment, Payload: id})
	return nil
}

// SessionStatus returns the aggregate view over all non-expired sessions.
// Read failures degrade to an inactive empty aggregate.
func (s *Service) SessionStatus(ctx context.Context) domain.SessionAggregate {
	all, err := s.store.ReadSessionStatuses(ctx)
	if err != nil {
		s.log.WithError(err).Error("session read failed, serving empty status")
		return domain.SessionAggregate{Sessions: []domain.SessionStatus{}}
	}
	return domain.AggregateSessions(all, s.now())
}

// PushSessionStatus upserts one session row keyed by its session key.
func (s *Service) PushSessionStatus(ctx context.Context, status domain.SessionStatus) error {
	status.SessionKey = strings.TrimSpace(status.SessionKey)
	if status.SessionKey == "" {
		return &domain.ValidationError{Reasons: []string{"session key is required"}}
	}
	status.UpdatedAt = s.now()

	if err := s.store.UpsertSessionStatus(ctx, status); err != nil {
		return fmt.Errorf("upsert session %s: %w", status.SessionKey, err)
	}
	return nil
}

// afterWrite runs the post-mutation sequence: cache invalidation, then
// subscriber notification. Both are fire-and-forget with respect to the
// caller's response.
func (s *Service) afterWrite(ctx context.Context, ev domain.ChangeEvent) {
	s.cache.Invalidate()
	s.notify.Notify(ctx, ev)
}
