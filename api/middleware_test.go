package api

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func gzipped(t *testing.T, body string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(body)); err != nil {
		t.Fatalf("compress body: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return &buf
}

func TestGzipRequestDecompressesBody(t *testing.T) {
	e := echo.New()
	b := &mockBoard{}
	e.POST("/api/tasks/sync", postSync(b), GzipRequest())

	body := gzipped(t, `[{"id":"t1","title":"Fix bug","column":"inbox"}]`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/sync", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(b.snapshots) != 1 || len(b.snapshots[0]) != 1 || b.snapshots[0][0].ID != "t1" {
		t.Fatalf("unexpected snapshots: %#v", b.snapshots)
	}
}

func TestGzipRequestRejectsCorruptBody(t *testing.T) {
	e := echo.New()
	b := &mockBoard{}
	e.POST("/api/tasks/sync", postSync(b), GzipRequest())

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/sync", strings.NewReader("not gzip at all"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if len(b.snapshots) != 0 {
		t.Fatal("corrupt body must not reach the engine")
	}
}

func TestGzipRequestPassesPlainBodiesThrough(t *testing.T) {
	e := echo.New()
	b := &mockBoard{}
	e.POST("/api/tasks/sync", postSync(b), GzipRequest())

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/sync", strings.NewReader(`[{"id":"t1","title":"Fix bug"}]`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(b.snapshots) != 1 {
		t.Fatalf("expected snapshots to arrive, got %#v", b.snapshots)
	}
}
