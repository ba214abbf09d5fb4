package domain

import (
	"testing"

	"github.com/bytedance/sonic"
)

func TestOperationAddDecodes(t *testing.T) {
	op := Operation{
		Kind: OpAdd,
		Data: sonic.NoCopyRawMessage(`{"id":"t1","title":"Fix bug","column":"inbox","author":"alice"}`),
	}

	req, err := op.Add()
	if err != nil {
		t.Fatalf("decode add: %v", err)
	}
	if req.ID != "t1" || req.Title != "Fix bug" || req.Author != "alice" {
		t.Fatalf("unexpected request: %#v", req)
	}
}

func TestOperationRejectsUnknownFields(t *testing.T) {
	op := Operation{
		Kind: OpDelete,
		Data: sonic.NoCopyRawMessage(`{"id":"t1","force":true}`),
	}

	_, err := op.Delete()
	if !IsValidation(err) {
		t.Fatalf("unknown payload fields must be rejected, got %v", err)
	}
}

func TestOperationUpdateIsSparse(t *testing.T) {
	op := Operation{
		Kind: OpUpdate,
		Data: sonic.NoCopyRawMessage(`{"id":"t1","column":"done"}`),
	}

	req, err := op.Update()
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if req.Column == nil || *req.Column != "done" {
		t.Fatalf("column should be set, got %#v", req.TaskPatch)
	}
	if req.Title != nil || req.Priority != nil {
		t.Fatalf("absent fields must stay nil, got %#v", req.TaskPatch)
	}
}

func TestOperationCommentValidates(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid", payload: `{"id":"t1","author":"agent","text":"done"}`},
		{name: "missing author", payload: `{"id":"t1","text":"done"}`, wantErr: true},
		{name: "blank text", payload: `{"id":"t1","author":"agent","text":"   "}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			op := Operation{Kind: OpComment, Data: sonic.NoCopyRawMessage(tc.payload)}
			_, err := op.Comment()
			if tc.wantErr && !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRequireID(t *testing.T) {
	id, err := RequireID("  task/1  ")
	if err != nil {
		t.Fatalf("require id: %v", err)
	}
	if id != "task1" {
		t.Fatalf("expected sanitized id task1, got %q", id)
	}
	if _, err := RequireID("///"); !IsValidation(err) {
		t.Fatalf("unsanitizable id must be rejected, got %v", err)
	}
}
