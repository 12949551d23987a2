package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatal("expected generated request id in context")
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("response header = %q, want %q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "client-123" {
		t.Fatalf("expected client id to be reused, got %q", seen)
	}
}

func TestRequestIDRejectsMalformedHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("a", maxRequestIDLength+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, bad)
		h.ServeHTTP(httptest.NewRecorder(), req)
		if seen == bad || seen == "" {
			t.Fatalf("expected malformed id %q to be replaced, got %q", bad, seen)
		}
	}
}

func TestLoggerRecordsStatusAndFlushes(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer should implement http.Flusher")
		}
		f.Flush()
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/process", nil))
	if !rr.Flushed {
		t.Fatal("expected flush to reach the recorder")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["level"] != "warn" {
		t.Fatalf("level = %v, want warn", entry["level"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("status = %v, want %d", entry["status"], http.StatusTeapot)
	}
	if entry["path"] != "/api/process" || entry["method"] != http.MethodPost {
		t.Fatalf("unexpected request fields: %#v", entry)
	}
	if entry["bytes"] != float64(5) {
		t.Fatalf("bytes = %v, want 5", entry["bytes"])
	}
	if entry["request_id"] == "" || entry["request_id"] == nil {
		t.Fatal("expected request_id in log line")
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/process", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Fatalf("max age = %q, want 86400", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != corsAllowMethods {
		t.Fatalf("allow methods = %q", got)
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
