package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	KindSingle    = "single"
	KindRecurring = "recurring"
)

const (
	maxTitleLen = 500
	maxIDLen    = 50
)

// DefaultColumns is the ordered board column set used when no custom set is
// configured. The first column is where new tasks land by default.
var DefaultColumns = []string{"inbox", "up-next", "in-progress", "in-review", "done"}

// Task represents a single board item in the authoritative store.
type Task struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description,omitempty"`
	SuccessCriteria     string    `json:"successCriteria,omitempty"`
	UserJourney         string    `json:"userJourney,omitempty"`
	Column              string    `json:"column"`
	Priority            string    `json:"priority"`
	Kind                string    `json:"kind"`
	RequiresEnvironment bool      `json:"requiresEnvironment,omitempty"`
	Archived            bool      `json:"archived,omitempty"`
	Project             string    `json:"project,omitempty"`
	Image               string    `json:"image,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Comment represents one append-only note on a task. Comments are owned by
// their task and removed only by the task's cascade delete.
type Comment struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"taskId"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key returns the content-addressed identity of a comment used for dedup.
func (c Comment) Key() CommentKey {
	return CommentKey{Author: c.Author, Text: c.Text}
}

// CommentKey identifies a comment by content. Two comments with the same
// author and text on one task are treated as the same comment.
type CommentKey struct {
	Author string
	Text   string
}

// TaskPatch carries a sparse update: only non-nil fields are written.
type TaskPatch struct {
	Title               *string `json:"title,omitempty"`
	Description         *string `json:"description,omitempty"`
	SuccessCriteria     *string `json:"successCriteria,omitempty"`
	UserJourney         *string `json:"userJourney,omitempty"`
	Column              *string `json:"column,omitempty"`
	Priority            *string `json:"priority,omitempty"`
	Kind                *string `json:"kind,omitempty"`
	RequiresEnvironment *bool   `json:"requiresEnvironment,omitempty"`
	Archived            *bool   `json:"archived,omitempty"`
	Project             *string `json:"project,omitempty"`
	Image               *string `json:"image,omitempty"`
}

// IsEmpty reports whether the patch would write nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.SuccessCriteria == nil &&
		p.UserJourney == nil && p.Column == nil && p.Priority == nil &&
		p.Kind == nil && p.RequiresEnvironment == nil && p.Archived == nil &&
		p.Project == nil && p.Image == nil
}

// Apply returns a copy of t with the patch fields written over it.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.SuccessCriteria != nil {
		t.SuccessCriteria = *p.SuccessCriteria
	}
	if p.UserJourney != nil {
		t.UserJourney = *p.UserJourney
	}
	if p.Column != nil {
		t.Column = *p.Column
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.RequiresEnvironment != nil {
		t.RequiresEnvironment = *p.RequiresEnvironment
	}
	if p.Archived != nil {
		t.Archived = *p.Archived
	}
	if p.Project != nil {
		t.Project = *p.Project
	}
	if p.Image != nil {
		t.Image = *p.Image
	}
	return t
}

// TaskSnapshot is a client-submitted view of one task including its comments,
// as carried by bulk reconciliation requests.
type TaskSnapshot struct {
	Task
	Comments []CommentSnapshot `json:"comments,omitempty"`
}

// CommentSnapshot is a client-submitted comment, identified by content only.
// The identifier fields a client echoes back from a board read are accepted
// and ignored.
type CommentSnapshot struct {
	ID        int64     `json:"id,omitempty"`
	TaskID    string    `json:"taskId,omitempty"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// SanitizeID strips every character outside [A-Za-z0-9_-] from an externally
// supplied identifier and caps the result at 50 characters.
func SanitizeID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > maxIDLen {
		s = s[:maxIDLen]
	}
	return s
}

// Rules carries the configurable parts of task validation and audit author
// inference: the ordered column set and the identities recorded for moves
// triggered without an explicit author.
type Rules struct {
	Columns  []string
	Operator string
	Agent    string
}

// DefaultRules returns the stock column set with the standard operator and
// agent identities.
func DefaultRules() Rules {
	return Rules{Columns: DefaultColumns, Operator: "operator", Agent: "agent"}
}

// ValidColumn reports whether name is a member of the configured column set.
func (r Rules) ValidColumn(name string) bool {
	for _, c := range r.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// DefaultColumn returns the column new tasks land in when none is given.
func (r Rules) DefaultColumn() string {
	if len(r.Columns) == 0 {
		return ""
	}
	return r.Columns[0]
}

// TerminalColumn returns the last stage of the board, the column a finished
// task ends up in.
func (r Rules) TerminalColumn() string {
	if len(r.Columns) == 0 {
		return "done"
	}
	return r.Columns[len(r.Columns)-1]
}

func validPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

func validKind(k string) bool {
	return k == KindSingle || k == KindRecurring
}

// NormalizeTask sanitizes identifiers, fills enum defaults and validates a
// task before it is written. The returned task is safe to insert; the error,
// if any, is a *ValidationError listing every failed check.
func (r Rules) NormalizeTask(t Task) (Task, error) {
	var reasons []string

	if t.ID != "" {
		id := SanitizeID(t.ID)
		if id == "" {
			reasons = append(reasons, fmt.Sprintf("id %q sanitizes to empty", t.ID))
		}
		t.ID = id
	}
	if t.Project != "" {
		project := SanitizeID(t.Project)
		if project == "" {
			reasons = append(reasons, fmt.Sprintf("project %q sanitizes to empty", t.Project))
		}
		t.Project = project
	}

	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		reasons = append(reasons, "title is required")
	} else if utf8.RuneCountInString(t.Title) > maxTitleLen {
		reasons = append(reasons, fmt.Sprintf("title exceeds %d characters", maxTitleLen))
	}

	if t.Column == "" {
		t.Column = r.DefaultColumn()
	} else if !r.ValidColumn(t.Column) {
		reasons = append(reasons, fmt.Sprintf("unknown column %q", t.Column))
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	} else if !validPriority(t.Priority) {
		reasons = append(reasons, fmt.Sprintf("unknown priority %q", t.Priority))
	}
	if t.Kind == "" {
		t.Kind = KindSingle
	} else if !validKind(t.Kind) {
		reasons = append(reasons, fmt.Sprintf("unknown kind %q", t.Kind))
	}

	if len(reasons) > 0 {
		return Task{}, &ValidationError{Reasons: reasons}
	}
	return t, nil
}

// NormalizePatch sanitizes and validates the fields a sparse update would
// write. Nil fields pass through untouched.
func (r Rules) NormalizePatch(p TaskPatch) (TaskPatch, error) {
	var reasons []string

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			reasons = append(reasons, "title cannot be cleared")
		} else if utf8.RuneCountInString(title) > maxTitleLen {
			reasons = append(reasons, fmt.Sprintf("title exceeds %d characters", maxTitleLen))
		}
		p.Title = &title
	}
	if p.Column != nil && !r.ValidColumn(*p.Column) {
		reasons = append(reasons, fmt.Sprintf("unknown column %q", *p.Column))
	}
	if p.Priority != nil && !validPriority(*p.Priority) {
		reasons = append(reasons, fmt.Sprintf("unknown priority %q", *p.Priority))
	}
	if p.Kind != nil && !validKind(*p.Kind) {
		reasons = append(reasons, fmt.Sprintf("unknown kind %q", *p.Kind))
	}
	if p.Project != nil && *p.Project != "" {
		project := SanitizeID(*p.Project)
		if project == "" {
			reasons = append(reasons, fmt.Sprintf("project %q sanitizes to empty", *p.Project))
		}
		p.Project = &project
	}

	if len(reasons) > 0 {
		return TaskPatch{}, &ValidationError{Reasons: reasons}
	}
	return p, nil
}
