package board

import (
	"context"
	"fmt"
	"strings"

	"board-api/domain"
)

// PartialSyncError reports a bulk reconciliation that wrote some rows before
// a store failure stopped it. Tasks after the failed one were not processed.
type PartialSyncError struct {
	TaskID string
	Err    error
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("reconciliation stopped at task %s: %v", e.TaskID, e.Err)
}

func (e *PartialSyncError) Unwrap() error {
	return e.Err
}

// Reconcile merges a client-submitted array of whole-task snapshots into the
// authoritative store. Tasks absent from the submission are never touched
// and nothing is ever deleted. Unknown ids become inserts, known ids are
// sparse-patched with only the fields that differ, and submitted comments
// are deduplicated by (author, text) against the stored ones. Audit events
// are recorded only after the write they describe succeeded.
func (s *Service) Reconcile(ctx context.Context, snapshots []domain.TaskSnapshot) error {
	submitted, err := s.normalizeSnapshots(snapshots)
	if err != nil {
		return err
	}
	if len(submitted) == 0 {
		return nil
	}

	// Two bulk reads; a failure here fails the whole call before any write.
	storedTasks, err := s.store.ReadAllTasks(ctx)
	if err != nil {
		return fmt.Errorf("bulk task read: %w", err)
	}
	storedComments, err := s.store.ReadAllComments(ctx)
	if err != nil {
		return fmt.Errorf("bulk comment read: %w", err)
	}

	byID := make(map[string]domain.Task, len(storedTasks))
	for _, t := range storedTasks {
		byID[t.ID] = t
	}
	commentsByTask := make(map[string][]domain.Comment, len(storedComments))
	for _, c := range storedComments {
		commentsByTask[c.TaskID] = append(commentsByTask[c.TaskID], c)
	}

	changed := false
	for _, snap := range submitted {
		wrote, err := s.reconcileTask(ctx, snap, byID, commentsByTask)
		if wrote {
			changed = true
		}
		if err != nil {
			if changed {
				// Earlier writes landed, so stale reads must not survive.
				s.afterWrite(ctx, domain.ChangeEvent{Kind: domain.ChangeSync})
			}
			return &PartialSyncError{TaskID: snap.ID, Err: err}
		}
	}

	if changed {
		s.afterWrite(ctx, domain.ChangeEvent{Kind: domain.ChangeSync})
	}
	return nil
}

// normalizeSnapshots validates every snapshot up front; any failure rejects
// the whole bulk before a single store call.
func (s *Service) normalizeSnapshots(snapshots []domain.TaskSnapshot) ([]domain.TaskSnapshot, error) {
	var reasons []string
	out := make([]domain.TaskSnapshot, 0, len(snapshots))

	for i, snap := range snapshots {
		if strings.TrimSpace(snap.ID) == "" {
			reasons = append(reasons, fmt.Sprintf("tasks[%d]: id is required", i))
			continue
		}
		task, err := s.rules.NormalizeTask(snap.Task)
		if err != nil {
			if ve, ok := err.(*domain.ValidationError); ok {
				for _, r := range ve.Reasons {
					reasons = append(reasons, fmt.Sprintf("tasks[%d]: %s", i, r))
				}
			} else {
				reasons = append(reasons, fmt.Sprintf("tasks[%d]: %v", i, err))
			}
			continue
		}
		for j, c := range snap.Comments {
			if strings.TrimSpace(c.Author) == "" || strings.TrimSpace(c.Text) == "" {
				reasons = append(reasons, fmt.Sprintf("tasks[%d].comments[%d]: author and text are required", i, j))
			}
		}
		snap.Task = task
		out = append(out, snap)
	}

	if len(reasons) > 0 {
		return nil, &domain.ValidationError{Reasons: reasons}
	}
	return out, nil
}

func (s *Service) reconcileTask(ctx context.Context, snap domain.TaskSnapshot, byID map[string]domain.Task, commentsByTask map[string][]domain.Comment) (bool, error) {
	now := s.now()
	wrote := false

	stored, known := byID[snap.ID]
	if !known {
		task := snap.Task
		task.CreatedAt = now
		task.UpdatedAt = now
		if err := s.store.InsertTask(ctx, task); err != nil {
			return wrote, fmt.Errorf("insert task %s: %w", task.ID, err)
		}
		wrote = true
		byID[task.ID] = task
		s.recorder.Record(domain.AuditEvent{
			Kind:      domain.AuditAdd,
			TaskID:    task.ID,
			TaskTitle: task.Title,
			Author:    domain.AuthorUnknown,
			Service:   s.tag,
			CreatedAt: now,
		})
	} else if patch := domain.DiffTask(stored, snap.Task); !patch.IsEmpty() {
		if err := s.store.PatchTask(ctx, snap.ID, patch); err != nil {
			return wrote, fmt.Errorf("patch task %s: %w", snap.ID, err)
		}
		wrote = true
		byID[snap.ID] = patch.Apply(stored)
		if patch.Column != nil {
			s.recorder.Record(domain.AuditEvent{
				Kind:       domain.AuditMove,
				TaskID:     snap.ID,
				TaskTitle:  snap.Title,
				FromColumn: stored.Column,
				ToColumn:   *patch.Column,
				Author:     s.rules.MoveAuthor("", *patch.Column),
				Service:    s.tag,
				CreatedAt:  now,
			})
		}
	}

	for _, missing := range domain.MissingComments(commentsByTask[snap.ID], snap.Comments) {
		inserted := domain.Comment{
			TaskID:    snap.ID,
			Author:    missing.Author,
			Text:      missing.Text,
			CreatedAt: now,
		}
		if err := s.store.InsertComment(ctx, inserted); err != nil {
			return wrote, fmt.Errorf("insert comment on %s: %w", snap.ID, err)
		}
		wrote = true
		commentsByTask[snap.ID] = append(commentsByTask[snap.ID], inserted)
		s.recorder.Record(domain.AuditEvent{
			Kind:      domain.AuditComment,
			TaskID:    snap.ID,
			TaskTitle: snap.Title,
			Author:    missing.Author,
			Service:   s.tag,
			CreatedAt: now,
		})
	}

	return wrote, nil
}
