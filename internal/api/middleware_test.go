package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// serve runs one request through h. setup may adjust the request first.
func serve(h http.Handler, method, target string, setup func(*http.Request)) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	if setup != nil {
		setup(req)
	}
	h.ServeHTTP(rec, req)
	return rec
}

func fromIP(ip string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = ip + ":52000" }
}

func TestRequestID(t *testing.T) {
	rec := serve(RequestID(okHandler), "POST", "/analyze", nil)
	if id := rec.Header().Get("X-Request-ID"); len(id) != 16 {
		t.Errorf("generated id = %q, want 16 hex chars", id)
	}

	rec = serve(RequestID(okHandler), "POST", "/analyze", func(r *http.Request) {
		r.Header.Set("X-Request-ID", "mobile-7f3a")
	})
	if id := rec.Header().Get("X-Request-ID"); id != "mobile-7f3a" {
		t.Errorf("id = %q, want client-provided mobile-7f3a", id)
	}
}

func TestLoggerUsesRequestID(t *testing.T) {
	tests := []struct {
		name   string
		client string
	}{
		{"generated", ""},
		{"client_provided", "mobile-7f3a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := RequestID(Logger(zerolog.New(&buf))(okHandler))
			rec := serve(h, "POST", "/analyze", func(r *http.Request) {
				if tt.client != "" {
					r.Header.Set("X-Request-ID", tt.client)
				}
			})

			var line struct {
				ReqID string `json:"req_id"`
				Path  string `json:"path"`
			}
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("access log is not one JSON line: %v\n%s", err, buf.String())
			}
			want := rec.Header().Get("X-Request-ID")
			if want == "" || line.ReqID != want {
				t.Errorf("logged req_id = %q, response X-Request-ID = %q", line.ReqID, want)
			}
			if tt.client != "" && line.ReqID != tt.client {
				t.Errorf("logged req_id = %q, want %q", line.ReqID, tt.client)
			}
			if line.Path != "/analyze" {
				t.Errorf("path = %q", line.Path)
			}
		})
	}
}

func TestCORSWithOrigins(t *testing.T) {
	app := []string{"https://app.voicecoach.example"}

	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantCode   int
		wantAllow  string
		wantCalled bool
	}{
		{"no_config_allows_any", nil, "GET", "https://anything.example", 200, "*", true},
		{"listed_origin_echoed", app, "GET", app[0], 200, app[0], true},
		{"unlisted_origin_served_without_headers", app, "GET", "https://evil.example", 200, "", true},
		{"unlisted_origin_preflight_forbidden", app, "OPTIONS", "https://evil.example", 403, "", false},
		{"preflight_short_circuits", nil, "OPTIONS", "", 204, "*", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})
			rec := serve(CORSWithOrigins(tt.origins)(inner), tt.method, "/api/v1/recordings", func(r *http.Request) {
				if tt.origin != "" {
					r.Header.Set("Origin", tt.origin)
				}
			})
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if called != tt.wantCalled {
				t.Errorf("inner called = %v, want %v", called, tt.wantCalled)
			}
		})
	}

	t.Run("listed_origin_varies", func(t *testing.T) {
		rec := serve(CORSWithOrigins(app)(okHandler), "GET", "/", func(r *http.Request) {
			r.Header.Set("Origin", app[0])
		})
		if rec.Header().Get("Vary") != "Origin" {
			t.Error("expected Vary: Origin")
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("burst_then_429", func(t *testing.T) {
		h := RateLimiter(1, 2)(okHandler)
		for i := 0; i < 2; i++ {
			if rec := serve(h, "POST", "/analyze", fromIP("5.6.7.8")); rec.Code != http.StatusOK {
				t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
			}
		}
		rec := serve(h, "POST", "/analyze", fromIP("5.6.7.8"))
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want 429", rec.Code)
		}
		if rec.Header().Get("Retry-After") != "1" {
			t.Error("missing Retry-After: 1")
		}
		var body ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
			t.Errorf("body = %q, want JSON error", rec.Body.String())
		}
	})

	t.Run("clients_limited_independently", func(t *testing.T) {
		h := RateLimiter(1, 1)(okHandler)
		serve(h, "POST", "/analyze", fromIP("10.0.0.1"))
		if rec := serve(h, "POST", "/analyze", fromIP("10.0.0.1")); rec.Code != http.StatusTooManyRequests {
			t.Errorf("first client second request: status = %d, want 429", rec.Code)
		}
		if rec := serve(h, "POST", "/analyze", fromIP("10.0.0.2")); rec.Code != http.StatusOK {
			t.Errorf("second client: status = %d, want 200", rec.Code)
		}
	})
}

func TestIPLimitersEvictIdle(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	l := newIPLimiters(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if !l.allow(ip) {
			t.Fatalf("%s first request denied", ip)
		}
	}
	if l.size() != 3 {
		t.Fatalf("size = %d, want 3", l.size())
	}

	now = now.Add(30 * time.Second)
	l.allow("10.0.0.1")

	// 10.0.0.2 and .3 have now been idle a full minute; .1 has not.
	now = now.Add(30 * time.Second)
	if !l.allow("10.0.0.4") {
		t.Fatal("new client denied")
	}
	if l.size() != 2 {
		t.Errorf("size after sweep = %d, want 2 (active + new)", l.size())
	}

	// An evicted client starts over with a full bucket.
	if !l.allow("10.0.0.2") {
		t.Error("evicted client should get a fresh bucket")
	}
}

func TestBearerAuth(t *testing.T) {
	const token = "coach-token"

	tests := []struct {
		name   string
		token  string
		target string
		header string
		want   int
	}{
		{"open_when_unconfigured", "", "/api/v1/recordings", "", 200},
		{"valid_header", token, "/api/v1/recordings", "Bearer " + token, 200},
		{"wrong_header", token, "/api/v1/recordings", "Bearer nope", 401},
		{"missing", token, "/api/v1/recordings", "", 401},
		{"basic_scheme_rejected", token, "/api/v1/recordings", "Basic Y29hY2g=", 401},
		{"query_token_for_event_source", token, "/api/v1/events/stream?token=" + token, "", 200},
		{"wrong_query_token", token, "/api/v1/events/stream?token=nope", "", 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(BearerAuth(tt.token)(okHandler), "GET", tt.target, func(r *http.Request) {
				if tt.header != "" {
					r.Header.Set("Authorization", tt.header)
				}
			})
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	t.Run("unauthorized_body_is_json", func(t *testing.T) {
		rec := serve(BearerAuth(token)(okHandler), "GET", "/api/v1/storage", nil)
		var body ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not valid JSON: %v", err)
		}
		if body.Error != "unauthorized" {
			t.Errorf("error = %q, want unauthorized", body.Error)
		}
	})
}

func TestRequireAuth(t *testing.T) {
	if rec := serve(RequireAuth("")(okHandler), "DELETE", "/api/v1/recordings", nil); rec.Code != http.StatusForbidden {
		t.Errorf("unconfigured: status = %d, want 403", rec.Code)
	}
	if rec := serve(RequireAuth("coach-token")(okHandler), "DELETE", "/api/v1/recordings", nil); rec.Code != http.StatusOK {
		t.Errorf("configured: status = %d, want 200", rec.Code)
	}
}

func TestRecoverer(t *testing.T) {
	if rec := serve(Recoverer(okHandler), "GET", "/", nil); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	panicker := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("scorer blew up")
	})
	rec := serve(Recoverer(panicker), "POST", "/analyze", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body.Error != "internal server error" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestRecovererRepanicsAbort(t *testing.T) {
	aborter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})
	defer func() {
		if rv := recover(); rv != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rv)
		}
	}()
	serve(Recoverer(aborter), "GET", "/", nil)
	t.Error("expected panic to propagate")
}
