package board

import (
	"context"
	"errors"
	"testing"

	"board-api/domain"
)

func snap(id, title, column string) domain.TaskSnapshot {
	return domain.TaskSnapshot{Task: domain.Task{
		ID:       id,
		Title:    title,
		Column:   column,
		Priority: domain.PriorityMedium,
		Kind:     domain.KindSingle,
	}}
}

func TestReconcileInsertsUnknownTasks(t *testing.T) {
	ms := newMemStore()
	svc, notifier := newEngine(t, ms)

	err := svc.Reconcile(context.Background(), []domain.TaskSnapshot{
		snap("t1", "Fix bug", "inbox"),
		snap("t2", "Ship it", "up-next"),
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	svc.recorder.Flush()

	if ms.insertTaskCalls != 2 {
		t.Fatalf("expected 2 inserts, got %d", ms.insertTaskCalls)
	}
	events := ms.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 add events, got %#v", events)
	}
	for _, e := range events {
		if e.Kind != domain.AuditAdd || e.Author != domain.AuthorUnknown {
			t.Fatalf("bulk inserts record add/unknown, got %#v", e)
		}
	}
	notified := notifier.Events()
	if len(notified) != 1 || notified[0].Kind != domain.ChangeSync {
		t.Fatalf("expected a single sync notification, got %#v", notified)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ms := newMemStore()
	svc, notifier := newEngine(t, ms)
	ctx := context.Background()

	submission := []domain.TaskSnapshot{snap("t1", "Fix bug", "inbox")}
	submission[0].Comments = []domain.CommentSnapshot{{Author: "agent", Text: "started"}}

	if err := svc.Reconcile(ctx, submission); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	svc.recorder.Flush()

	inserts := ms.insertTaskCalls
	patches := ms.patchTaskCalls
	comments := ms.insertCommentCalls
	eventCount := len(ms.Events())
	notifications := len(notifier.Events())

	if err := svc.Reconcile(ctx, submission); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	svc.recorder.Flush()

	if ms.insertTaskCalls != inserts || ms.patchTaskCalls != patches || ms.insertCommentCalls != comments {
		t.Fatalf("identical resubmission must write nothing: inserts %d->%d patches %d->%d comments %d->%d",
			inserts, ms.insertTaskCalls, patches, ms.patchTaskCalls, comments, ms.insertCommentCalls)
	}
	if got := len(ms.Events()); got != eventCount {
		t.Fatalf("identical resubmission must not add audit events: %d -> %d", eventCount, got)
	}
	if got := len(notifier.Events()); got != notifications {
		t.Fatalf("a no-op reconcile must not notify: %d -> %d", notifications, got)
	}
}

func TestReconcileNeverDeletesOmittedTasks(t *testing.T) {
	ms := newMemStore()
	ms.tasks["t1"] = domain.Task{ID: "t1", Title: "Fix bug", Column: "inbox", Priority: domain.PriorityMedium, Kind: domain.KindSingle}
	ms.tasks["t2"] = domain.Task{ID: "t2", Title: "Unrelated", Column: "done", Priority: domain.PriorityMedium, Kind: domain.KindSingle}
	ms.order = []string{"t1", "t2"}
	svc, _ := newEngine(t, ms)

	err := svc.Reconcile(context.Background(), []domain.TaskSnapshot{
		snap("t1", "Fix bug now", "inbox"),
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if _, ok := ms.Task("t2"); !ok {
		t.Fatal("task absent from the submission must survive")
	}
	if task, _ := ms.Task("t1"); task.Title != "Fix bug now" {
		t.Fatalf("submitted change not applied: %#v", task)
	}
}

func TestReconcileFieldEditEmitsNoAudit(t *testing.T) {
	ms := newMemStore()
	ms.tasks["t1"] = domain.Task{ID: "t1", Title: "Fix bug", Column: "inbox", Priority: domain.PriorityMedium, Kind: domain.KindSingle}
	ms.order = []string{"t1"}
	svc, _ := newEngine(t, ms)

	if err := svc.Reconcile(context.Background(), []domain.TaskSnapshot{snap("t1", "Better title", "inbox")}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	svc.recorder.Flush()

	if ms.patchTaskCalls != 1 {
		t.Fatalf("expected one patch, got %d", ms.patchTaskCalls)
	}
	if events := ms.Events(); len(events) != 0 {
		t.Fatalf("field-only bulk edits must not audit, got %#v", events)
	}
}

func TestReconcileEmitsMoveOnColumnChange(t *testing.T) {
	ms := newMemStore()
	ms.tasks["t1"] = domain.Task{ID: "t1", Title: "Fix bug", Column: "inbox", Priority: domain.PriorityMedium, Kind: domain.KindSingle}
	ms.order = []string{"t1"}
	svc, _ := newEngine(t, ms)

	if err := svc.Reconcile(context.Background(), []domain.TaskSnapshot{snap("t1", "Fix bug", "in-progress")}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	svc.recorder.Flush()

	events := ms.Events()
	if len(events) != 1 || events[0].Kind != domain.AuditMove {
		t.Fatalf("expected one move event, got %#v", events)
	}
	e := events[0]
	if e.FromColumn != "inbox" || e.ToColumn != "in-progress" {
		t.Fatalf("move columns wrong: %#v", e)
	}
	if e.Author != "agent" {
		t.Fatalf("move into in-progress should credit the agent, got %q", e.Author)
	}
}

func TestReconcileInsertsOnlyMissingComments(t *testing.T) {
	ms := newMemStore()
	ms.tasks["t1"] = domain.Task{ID: "t1", Title: "Fix bug", Column: "inbox", Priority: domain.PriorityMedium, Kind: domain.KindSingle}
	ms.order = []string{"t1"}
	ms.comments["t1"] = []domain.Comment{{ID: 1, TaskID: "t1", Author: "agent", Text: "started"}}
	svc, _ := newEngine(t, ms)

	submission := snap("t1", "Fix bug", "inbox")
	submission.Comments = []domain.CommentSnapshot{
		{Author: "agent", Text: "started"},
		{Author: "agent", Text: "done"},
	}

	if err := svc.Reconcile(context.Background(), []domain.TaskSnapshot{submission}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	svc.recorder.Flush()

	if ms.insertCommentCalls != 1 {
		t.Fatalf("superset by one must insert exactly one comment, got %d", ms.insertCommentCalls)
	}
	events := ms.Events()
	if len(events) != 1 || events[0].Kind != domain.AuditComment || events[0].Author != "agent" {
		t.Fatalf("expected one comment event, got %#v", events)
	}
	if got := ms.Comments("t1"); len(got) != 2 {
		t.Fatalf("expected 2 stored comments, got %#v", got)
	}
}

func TestReconcileValidatesBeforeAnyRead(t *testing.T) {
	ms := newMemStore()
	svc, _ := newEngine(t, ms)

	err := svc.Reconcile(context.Background(), []domain.TaskSnapshot{
		snap("t1", "Fine", "inbox"),
		snap("t2", "", "inbox"),
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ms.readAllTasksCalls != 0 || ms.insertTaskCalls != 0 {
		t.Fatalf("validation failure must reject before store calls: reads=%d inserts=%d", ms.readAllTasksCalls, ms.insertTaskCalls)
	}
}

func TestReconcileBulkReadFailureIsAtomic(t *testing.T) {
	ms := newMemStore()
	ms.readAllCommentsErr = errors.New("timeout")
	svc, notifier := newEngine(t, ms)

	err := svc.Reconcile(context.Background(), []domain.TaskSnapshot{snap("t1", "Fix bug", "inbox")})
	if err == nil {
		t.Fatal("bulk read failure must fail the reconciliation")
	}
	if ms.insertTaskCalls != 0 {
		t.Fatalf("no writes may be attempted after a failed bulk read, got %d inserts", ms.insertTaskCalls)
	}
	if len(notifier.Events()) != 0 {
		t.Fatal("a failed reconcile with no writes must not notify")
	}
}

func TestReconcileStopsOnWriteFailure(t *testing.T) {
	ms := newMemStore()
	ms.insertTaskErr = map[string]error{"t2": errors.New("disk full")}
	svc, notifier := newEngine(t, ms)

	err := svc.Reconcile(context.Background(), []domain.TaskSnapshot{
		snap("t1", "First", "inbox"),
		snap("t2", "Second", "inbox"),
		snap("t3", "Third", "inbox"),
	})

	var partial *PartialSyncError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialSyncError, got %v", err)
	}
	if partial.TaskID != "t2" {
		t.Fatalf("error should name the failed task, got %q", partial.TaskID)
	}
	if _, ok := ms.Task("t1"); !ok {
		t.Fatal("writes before the failure should have landed")
	}
	if _, ok := ms.Task("t3"); ok {
		t.Fatal("processing must stop at the failed task")
	}
	// t1 landed, so stale reads must have been invalidated and subscribers
	// told.
	if got := notifier.Events(); len(got) != 1 || got[0].Kind != domain.ChangeSync {
		t.Fatalf("expected one sync notification for the partial write, got %#v", got)
	}
}

func TestReconcileEmptySubmissionIsNoop(t *testing.T) {
	ms := newMemStore()
	svc, notifier := newEngine(t, ms)

	if err := svc.Reconcile(context.Background(), nil); err != nil {
		t.Fatalf("empty reconcile: %v", err)
	}
	if ms.readAllTasksCalls != 0 || len(notifier.Events()) != 0 {
		t.Fatal("empty submission must touch nothing")
	}
}
