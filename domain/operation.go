package domain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	OpAdd     = "add"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpComment = "comment"
)

// Operation represents one write request, tagged by kind. Data holds the
// kind-specific payload and is decoded strictly: unknown fields reject the
// request.
type Operation struct {
	Kind string                 `json:"kind"`
	Data sonic.NoCopyRawMessage `json:"data,omitempty"`
}

// AddRequest carries a new task. Author, when present, is recorded on the
// audit event.
type AddRequest struct {
	Task
	Author string `json:"author,omitempty"`
}

// UpdateRequest carries a sparse patch for one task. Only fields present in
// the payload are written.
type UpdateRequest struct {
	ID string `json:"id"`
	TaskPatch
	Author string `json:"author,omitempty"`
}

// DeleteRequest removes one task and, by cascade, its comments.
type DeleteRequest struct {
	ID     string `json:"id"`
	Author string `json:"author,omitempty"`
}

// CommentRequest appends a note to one task.
type CommentRequest struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

func (o *Operation) decode(v any) error {
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(o.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ValidationError{Reasons: []string{fmt.Sprintf("malformed %s payload: %v", o.Kind, err)}}
	}
	return nil
}

// Add decodes the payload of an add operation.
func (o *Operation) Add() (AddRequest, error) {
	var req AddRequest
	if err := o.decode(&req); err != nil {
		return AddRequest{}, err
	}
	return req, nil
}

// Update decodes the payload of an update operation.
func (o *Operation) Update() (UpdateRequest, error) {
	var req UpdateRequest
	if err := o.decode(&req); err != nil {
		return UpdateRequest{}, err
	}
	return req, nil
}

// Delete decodes the payload of a delete operation.
func (o *Operation) Delete() (DeleteRequest, error) {
	var req DeleteRequest
	if err := o.decode(&req); err != nil {
		return DeleteRequest{}, err
	}
	return req, nil
}

// Comment decodes and validates the payload of a comment operation.
func (o *Operation) Comment() (CommentRequest, error) {
	var req CommentRequest
	if err := o.decode(&req); err != nil {
		return CommentRequest{}, err
	}
	var reasons []string
	if strings.TrimSpace(req.Author) == "" {
		reasons = append(reasons, "comment author is required")
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		reasons = append(reasons, "comment text is required")
	}
	if len(reasons) > 0 {
		return CommentRequest{}, &ValidationError{Reasons: reasons}
	}
	return req, nil
}

// RequireID sanitizes an externally supplied task id and rejects values that
// sanitize to empty rather than substituting anything.
func RequireID(raw string) (string, error) {
	id := SanitizeID(raw)
	if id == "" {
		return "", &ValidationError{Reasons: []string{fmt.Sprintf("task id %q sanitizes to empty", raw)}}
	}
	return id, nil
}
