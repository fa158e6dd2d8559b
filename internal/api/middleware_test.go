package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// serve runs a middleware-wrapped handler against a single request and
// returns the recorder.
func serve(h http.Handler, method, target, remoteAddr string, hdrs map[string]string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range hdrs {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	t.Run("generates_id_when_missing", func(t *testing.T) {
		rec := serve(RequestID(okHandler), "GET", "/", "", nil)
		if id := rec.Header().Get("X-Request-ID"); len(id) != 16 {
			t.Errorf("expected 16-char hex ID, got %q", id)
		}
	})

	t.Run("preserves_provided_id", func(t *testing.T) {
		rec := serve(RequestID(okHandler), "GET", "/", "", map[string]string{"X-Request-ID": "req-7f3a"})
		if id := rec.Header().Get("X-Request-ID"); id != "req-7f3a" {
			t.Errorf("expected preserved ID, got %q", id)
		}
	})
}

func TestCORSWithOrigins(t *testing.T) {
	allowed := CORSWithOrigins([]string{"https://dashboard.classlens.io"})

	t.Run("empty_origins_allows_all", func(t *testing.T) {
		rec := serve(CORSWithOrigins(nil)(okHandler), "GET", "/", "", nil)
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("missing Access-Control-Allow-Origin: *")
		}
	})

	t.Run("allowed_origin_echoed", func(t *testing.T) {
		rec := serve(allowed(okHandler), "GET", "/", "",
			map[string]string{"Origin": "https://dashboard.classlens.io"})
		if rec.Header().Get("Access-Control-Allow-Origin") != "https://dashboard.classlens.io" {
			t.Error("expected origin echo")
		}
		if rec.Header().Get("Vary") != "Origin" {
			t.Error("expected Vary: Origin")
		}
	})

	t.Run("disallowed_origin_served_without_cors_headers", func(t *testing.T) {
		rec := serve(allowed(okHandler), "GET", "/", "",
			map[string]string{"Origin": "https://phish.example"})
		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("should not set CORS header for disallowed origin")
		}
		if rec.Code != http.StatusOK {
			t.Errorf("request should still be served, got %d", rec.Code)
		}
	})

	t.Run("disallowed_preflight_rejected", func(t *testing.T) {
		rec := serve(allowed(okHandler), "OPTIONS", "/", "",
			map[string]string{"Origin": "https://phish.example"})
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("preflight_short_circuits", func(t *testing.T) {
		called := false
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
		rec := serve(CORSWithOrigins(nil)(inner), "OPTIONS", "/", "", nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if called {
			t.Error("inner handler should not run on preflight")
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows_within_burst", func(t *testing.T) {
		h := RateLimiter(100, 100)(okHandler)
		rec := serve(h, "GET", "/", "1.2.3.4:1234", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("blocks_past_burst_with_retry_after", func(t *testing.T) {
		h := RateLimiter(1, 2)(okHandler)
		for i := 0; i < 2; i++ {
			if rec := serve(h, "GET", "/", "5.6.7.8:1234", nil); rec.Code != http.StatusOK {
				t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
			}
		}
		rec := serve(h, "GET", "/", "5.6.7.8:1234", nil)
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") != "1" {
			t.Error("expected Retry-After header")
		}
		var body ErrorResponse
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Code != ErrRateLimited {
			t.Errorf("code = %q, want %q", body.Code, ErrRateLimited)
		}
	})

	t.Run("buckets_are_per_ip", func(t *testing.T) {
		h := RateLimiter(1, 1)(okHandler)
		serve(h, "GET", "/", "10.0.0.1:1234", nil)
		if rec := serve(h, "GET", "/", "10.0.0.1:1234", nil); rec.Code != http.StatusTooManyRequests {
			t.Errorf("first IP second request: expected 429, got %d", rec.Code)
		}
		if rec := serve(h, "GET", "/", "10.0.0.2:1234", nil); rec.Code != http.StatusOK {
			t.Errorf("second IP first request: expected 200, got %d", rec.Code)
		}
	})
}

func TestBearerAuth(t *testing.T) {
	const token = "clsk_live_9b4e"
	auth := BearerAuth(token)

	cases := []struct {
		name   string
		target string
		hdrs   map[string]string
		want   int
	}{
		{"valid_bearer_header", "/", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK},
		{"wrong_bearer_header", "/", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"missing_auth", "/", nil, http.StatusUnauthorized},
		{"query_param_fallback", "/?token=" + token, nil, http.StatusOK},
		{"wrong_query_param", "/?token=nope", nil, http.StatusUnauthorized},
		{"non_bearer_scheme", "/", map[string]string{"Authorization": "Basic c2VjcmV0"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(auth(okHandler), "GET", tc.target, "", tc.hdrs)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	t.Run("empty_token_disables_auth", func(t *testing.T) {
		rec := serve(BearerAuth("")(okHandler), "GET", "/", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestRequireAuth(t *testing.T) {
	t.Run("no_configured_token_returns_403", func(t *testing.T) {
		rec := serve(RequireAuth("")(okHandler), "GET", "/", "", nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("configured_token_passes_through", func(t *testing.T) {
		rec := serve(RequireAuth("clsk_live_9b4e")(okHandler), "GET", "/", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestRecoverer(t *testing.T) {
	t.Run("normal_request_passes_through", func(t *testing.T) {
		rec := serve(Recoverer(okHandler), "GET", "/", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("panic_becomes_500_json", func(t *testing.T) {
		panicker := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("window renderer blew up")
		})
		rec := serve(Recoverer(panicker), "GET", "/", "", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not valid JSON: %v", err)
		}
		if body["error"] != "internal server error" {
			t.Errorf("unexpected body: %v", body)
		}
	})
}
