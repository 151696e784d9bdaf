package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen == "" {
		t.Fatal("request ID not set in context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("header %s = %q, want %q", RequestIDHeader, got, seen)
	}
}

func TestRequestIDMiddleware_InboundHeader(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		reuse   bool
	}{
		{name: "valid uuid reused", inbound: "0b9a3c1e-4c1f-4b7a-9d55-3f2f7f6f0a11", reuse: true},
		{name: "garbage replaced", inbound: "not-a-uuid", reuse: false},
		{name: "absent generated", inbound: "", reuse: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest("GET", "/", nil)
			if tt.inbound != "" {
				req.Header.Set(RequestIDHeader, tt.inbound)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if (got == tt.inbound) != tt.reuse {
				t.Errorf("request ID = %q, inbound %q, reuse want %v", got, tt.inbound, tt.reuse)
			}
			if got == "" {
				t.Error("no request ID assigned")
			}
		})
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, httptest.NewRequest("GET", "/", nil))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest("GET", "/", nil))

	if rec1.Header().Get(RequestIDHeader) == rec2.Header().Get(RequestIDHeader) {
		t.Error("expected unique request IDs")
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("GetRequestID() = %q, want empty", id)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !ok {
		t.Fatal("expected a deadline on the request context")
	}
	if time.Until(deadline) > 50*time.Millisecond {
		t.Errorf("deadline %v too far in the future", deadline)
	}
}

func TestTimeoutMiddleware_Disabled(t *testing.T) {
	handler := TimeoutMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("deadline set with timeout disabled")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestTimeoutMiddleware_ContextCancelled(t *testing.T) {
	handler := TimeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want context cancellation to be observed", rec.Code)
	}
}

// logRecords decodes the JSON lines written by a slog JSON handler.
func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "success", status: http.StatusOK, wantLevel: "INFO"},
		{name: "client error", status: http.StatusNotFound, wantLevel: "WARN"},
		{name: "server error", status: http.StatusInternalServerError, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			handler := RequestIDMiddleware(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				AddLogField(r.Context(), "handler", "getNote")
				w.WriteHeader(tt.status)
				w.WriteHeader(http.StatusTeapot)
			})))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test-path", nil))

			records := logRecords(t, &buf)
			if len(records) != 1 {
				t.Fatalf("got %d log records, want 1 (start logs at debug)", len(records))
			}
			rec := records[0]
			if rec["msg"] != "request completed" || rec["level"] != tt.wantLevel {
				t.Errorf("record = %v, want request completed at %s", rec, tt.wantLevel)
			}
			if rec["status"] != float64(tt.status) {
				t.Errorf("status = %v, want first written %d", rec["status"], tt.status)
			}
			if rec["path"] != "/test-path" || rec["handler"] != "getNote" || rec["request_id"] == "" {
				t.Errorf("record missing fields: %v", rec)
			}
		})
	}
}

func TestAddLogField(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "user_id", "u1")
		AddLogField(r.Context(), "empty", "")
		AddError(r.Context(), context.DeadlineExceeded)
		AddError(r.Context(), nil)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	rec := logRecords(t, &buf)[0]
	if rec["user_id"] != "u1" {
		t.Errorf("user_id = %v", rec["user_id"])
	}
	if _, ok := rec["empty"]; ok {
		t.Error("empty field should not be logged")
	}
	if rec["error"] != context.DeadlineExceeded.Error() {
		t.Errorf("error = %v", rec["error"])
	}
}

func TestAddLogField_NoContext(t *testing.T) {
	// Must not panic without the middleware.
	AddLogField(context.Background(), "k", "v")
	AddError(context.Background(), context.Canceled)
}

func TestIdentityMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		defaultUser string
		want        string
	}{
		{name: "header wins", header: "user-a", defaultUser: "fallback", want: "user-a"},
		{name: "default when absent", header: "", defaultUser: "fallback", want: "fallback"},
		{name: "whitespace is absent", header: "   ", defaultUser: "fallback", want: "fallback"},
		{name: "anonymous when no default", header: "", defaultUser: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := IdentityMiddleware("X-User-Id", tt.defaultUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = Identity(r.Context())
			}))
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("X-User-Id", tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("Identity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	handler := IdentityMiddleware("X-User-Id", "")(limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/notes", nil)
		req.Header.Set("X-User-Id", user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i, wantRemaining := range []string{"1", "0"} {
		rec := send("alice")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
		checkHeader(t, rec, "x-ratelimit-limit-requests", "2")
		checkHeader(t, rec, "x-ratelimit-remaining-requests", wantRemaining)
	}

	rec := send("alice")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.StatusCode != http.StatusTooManyRequests || env.Error != "Too Many Requests" {
		t.Errorf("envelope = %+v", env)
	}

	// Buckets are per identity.
	if rec := send("bob"); rec.Code != http.StatusOK {
		t.Errorf("other identity status = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(0, 10)
	if limiter != nil {
		t.Fatal("NewRateLimiter(0) should disable limiting")
	}
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("x-ratelimit-limit-requests") != "" {
		t.Errorf("disabled limiter altered response: %d %v", rec.Code, rec.Header())
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	limiter := NewRateLimiter(10, 1)
	handler := IdentityMiddleware("X-User-Id", "")(limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	start := time.Now()
	for i := 0; i < 100; i++ {
		req := httptest.NewRequest("GET", "/notes", nil)
		req.Header.Set("X-User-Id", fmt.Sprintf("user-%d", i))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if got := limiter.size(); got != 100 {
		t.Fatalf("buckets = %d, want 100", got)
	}

	if removed := limiter.Cleanup(start.Add(30 * time.Second)); removed != 0 {
		t.Errorf("Cleanup() inside idle window removed %d buckets", removed)
	}

	limiter.bucket("active", start.Add(90*time.Second))
	if removed := limiter.Cleanup(start.Add(2 * time.Minute)); removed != 100 {
		t.Errorf("Cleanup() removed %d, want 100", removed)
	}
	if got := limiter.size(); got != 1 {
		t.Errorf("buckets after cleanup = %d, want only the active caller", got)
	}
}

func TestRateLimiter_CleanupLifecycle(t *testing.T) {
	limiter := NewRateLimiter(10, 1)
	limiter.StartCleanup(time.Millisecond)
	limiter.StartCleanup(time.Millisecond)
	limiter.Stop()
	limiter.Stop()

	var disabled *RateLimiter
	disabled.StartCleanup(time.Millisecond)
	disabled.Stop()
	if removed := disabled.Cleanup(time.Now()); removed != 0 {
		t.Errorf("nil Cleanup() = %d", removed)
	}
}

func checkHeader(t *testing.T, rec *httptest.ResponseRecorder, name, expected string) {
	t.Helper()
	if got := rec.Header().Get(name); got != expected {
		t.Errorf("header %s = %q, want %q", name, got, expected)
	}
}
