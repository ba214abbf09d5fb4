package domain

import "time"

const (
	AuditAdd     = "add"
	AuditMove    = "move"
	AuditDelete  = "delete"
	AuditComment = "comment"
)

// AuthorUnknown is recorded when no author was supplied and none could be
// inferred from the move destination.
const AuthorUnknown = "unknown"

// AuditEvent represents one entry in the append-only mutation ledger. The
// task title is denormalized so the entry stays readable after the task is
// deleted. Entries are never updated or removed.
type AuditEvent struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	TaskID     string    `json:"taskId"`
	TaskTitle  string    `json:"taskTitle"`
	FromColumn string    `json:"fromColumn,omitempty"`
	ToColumn   string    `json:"toColumn,omitempty"`
	Author     string    `json:"author"`
	Service    string    `json:"service,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Key returns a stable content identity for the event, used by secondary
// audit sinks to deduplicate at-least-once deliveries on read.
func (e AuditEvent) Key() string {
	return e.Kind + "/" + e.TaskID + "/" + e.FromColumn + ">" + e.ToColumn +
		"/" + e.Author + "/" + e.CreatedAt.UTC().Format(time.RFC3339Nano)
}

// MoveAuthor resolves the author recorded for a column transition. An
// explicit author always wins. Without one, a move into the terminal column
// is credited to the human operator, a move into in-review or in-progress to
// the agent, anything else to "unknown". Moves are frequently triggered by
// automation that does not thread an actor through the call, hence the
// inference.
func (r Rules) MoveAuthor(explicit, toColumn string) string {
	if explicit != "" {
		return explicit
	}
	switch {
	case toColumn == r.TerminalColumn():
		return r.Operator
	case toColumn == "in-review" || toColumn == "in-progress":
		return r.Agent
	default:
		return AuthorUnknown
	}
}

// EventAuthor resolves the author for non-move events.
func EventAuthor(explicit string) string {
	if explicit == "" {
		return AuthorUnknown
	}
	return explicit
}
