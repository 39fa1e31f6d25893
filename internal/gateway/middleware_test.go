package gateway

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNoStore_ShouldSetCacheControl(t *testing.T) {
	handler := NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control: want no-store, got %q", cc)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body: want ok, got %q", rec.Body.String())
	}
}

func TestAccessLog_ShouldRecordStatusAndPath(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/output/update", nil))

	out := buf.String()
	if !strings.Contains(out, "status=204") {
		t.Errorf("expected status in log, got %s", out)
	}
	if !strings.Contains(out, "path=/output/update") {
		t.Errorf("expected path in log, got %s", out)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status should pass through, got %d", rec.Code)
	}
}

func TestStatusRecorder_WhenWriterCannotHijack_ShouldReturnError(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rec.Hijack(); err == nil {
		t.Fatal("expected hijack error for a recorder")
	}
}
