package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poyrazK/desecdesk/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, func() string { return "secret-token" }, 0, 5*time.Second)
	return client, srv
}

func TestDoSendsTokenAuth(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	res := client.Do(context.Background(), ReqListZones())
	if !res.OK() {
		t.Fatalf("result = %+v", res)
	}
	if gotAuth != "Token secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    domain.ResultKind
		message string
	}{
		{"ok", 200, `[]`, domain.KindOK, ""},
		{"created", 201, `{}`, domain.KindOK, ""},
		{"unauthenticated", 401, `{"detail":"Invalid token."}`, domain.KindUnauthenticated, "Invalid token."},
		{"forbidden", 403, `{"detail":"You do not have permission."}`, domain.KindForbidden, "You do not have permission."},
		{"conflict", 400, `{"non_field_errors":["Another RRset with the same subdomain and type exists for this domain."]}`,
			domain.KindConflict, "Another RRset with the same subdomain and type exists for this domain."},
		{"conflict-plain", 404, `not found`, domain.KindConflict, "not found"},
		{"server", 502, `bad gateway`, domain.KindServer, "bad gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			res := client.Do(context.Background(), ReqListZones())
			if res.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", res.Kind, tc.kind)
			}
			if tc.message != "" && res.Message != tc.message {
				t.Errorf("message = %q, want %q", res.Message, tc.message)
			}
		})
	}
}

func TestRateLimitedRetryAfterHeader(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(429)
		w.Write([]byte(`{"detail":"Request was throttled."}`))
	}))
	res := client.Do(context.Background(), ReqListZones())
	if res.Kind != domain.KindRateLimited {
		t.Fatalf("kind = %v", res.Kind)
	}
	if res.RetryAfter != 17*time.Second {
		t.Errorf("retry after = %v, want 17s", res.RetryAfter)
	}
}

func TestRateLimitedRetryAfterBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		w.Write([]byte(`{"detail":"Request was throttled. Expected available in 42 seconds."}`))
	}))
	res := client.Do(context.Background(), ReqListZones())
	if res.RetryAfter != 42*time.Second {
		t.Errorf("retry after = %v, want 42s", res.RetryAfter)
	}
}

func TestRateLimitedRetryAfterDefault(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
	}))
	res := client.Do(context.Background(), ReqListZones())
	if res.RetryAfter != DefaultRetryAfter {
		t.Errorf("retry after = %v, want default %v", res.RetryAfter, DefaultRetryAfter)
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore
	client := NewClient(srv.URL, func() string { return "" }, 0, time.Second)
	res := client.Do(context.Background(), ReqListZones())
	if res.Kind != domain.KindNetwork {
		t.Fatalf("kind = %v, want network", res.Kind)
	}
}

// With rate r and n instantaneous submissions the elapsed time between
// the first and last dispatch must be at least (n-1)/r.
func TestRateLimiterSpacing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	const n, rps = 5, 20.0
	client.SetRate(rps)

	start := time.Now()
	for i := 0; i < n; i++ {
		if res := client.Do(context.Background(), ReqListZones()); !res.OK() {
			t.Fatalf("call %d: %+v", i, res)
		}
	}
	elapsed := time.Since(start)
	nf := float64(n - 1)
	min := time.Duration(nf / rps * 0.9 * float64(time.Second))
	if elapsed < min {
		t.Errorf("elapsed %v < %v for %d calls at %v rps", elapsed, min, n, rps)
	}
}

func TestAdaptRateLimit(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", func() string { return "" }, 2.0, time.Second)
	client.AdaptRateLimit(5 * time.Second)
	if got := client.Rate(); got != 1.0 {
		t.Errorf("rate = %v, want 1.0", got)
	}
	for i := 0; i < 10; i++ {
		client.AdaptRateLimit(5 * time.Second)
	}
	if got := client.Rate(); got != MinRate {
		t.Errorf("rate = %v, want floor %v", got, MinRate)
	}
}

func TestAdaptRateLimitReenablesDisabledLimiter(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", func() string { return "" }, 0, time.Second)
	client.AdaptRateLimit(time.Second)
	if got := client.Rate(); got != MinRate {
		t.Errorf("rate = %v, want %v after throttle on unlimited client", got, MinRate)
	}
}

func TestTypedListRRsets(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/domains/example.com/rrsets/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"subname":"www","type":"A","ttl":3600,"records":["1.2.3.4"]}]`))
	}))
	sets, res := client.ListRRsets(context.Background(), "example.com")
	if !res.OK() {
		t.Fatalf("result = %+v", res)
	}
	if len(sets) != 1 || sets[0].Subname != "www" || sets[0].Records[0] != "1.2.3.4" {
		t.Errorf("sets = %+v", sets)
	}
}

func TestRRsetPathEncoding(t *testing.T) {
	req := ReqDeleteRRset("example.com", "www", "A")
	if req.Path != "/domains/example.com/rrsets/www.../A/" {
		t.Errorf("path = %s", req.Path)
	}
	apex := ReqDeleteRRset("example.com", "", "MX")
	if apex.Path != "/domains/example.com/rrsets/.../MX/" {
		t.Errorf("apex path = %s", apex.Path)
	}
}

func TestCreateTokenSecretOnce(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(201)
		w.Write([]byte(`{"id":"tok1","name":"laptop","token":"the-one-time-secret"}`))
	}))
	ts, res := client.CreateToken(context.Background(), map[string]any{"name": "laptop"})
	if !res.OK() {
		t.Fatalf("result = %+v", res)
	}
	if ts.Token.ID != "tok1" || ts.Secret != "the-one-time-secret" {
		t.Errorf("token secret = %+v", ts)
	}
}
