package authclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/riteshshukladev/wrapper/pkg/httpclient"
)

// fakeServer mimics the auth API: refresh tokens are single use and only
// access tokens it minted are accepted.
type fakeServer struct {
	*httptest.Server
	t   *testing.T
	now time.Time

	mu           sync.Mutex
	seq          int
	refresh      map[string]bool
	access       map[string]bool
	rejectAll    bool
	failRefresh  bool
	refreshCalls int
	dataCalls    int
	logouts      []string

	// when set, refresh signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func newFakeServer(t *testing.T, now time.Time) *fakeServer {
	t.Helper()
	f := &fakeServer{
		t:       t,
		now:     now,
		refresh: make(map[string]bool),
		access:  make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		f.writePair(w, http.StatusCreated, "User registered successfully")
	})
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret1" {
			writeErr(w, http.StatusBadRequest, "INVALID_CREDENTIALS", "invalid email or password")
			return
		}
		f.writePair(w, http.StatusOK, "Logged in successfully")
	})
	mux.HandleFunc("POST /api/auth/refresh-token", f.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.logouts = append(f.logouts, body["refreshToken"])
		if !f.refresh[body["refreshToken"]] {
			writeErr(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "invalid refresh token")
			return
		}
		delete(f.refresh, body["refreshToken"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Logged out successfully"}`))
	})
	mux.HandleFunc("GET /api/auth/user/data", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		f.dataCalls++
		ok := f.access[token] && !f.rejectAll
		f.mu.Unlock()
		if !ok {
			writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":"u-1","name":"Ada","email":"ada@example.com","createdAt":"2026-01-02T03:04:05Z"}}`))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.refreshCalls++
	valid := f.refresh[body["refreshToken"]] && !f.failRefresh
	delete(f.refresh, body["refreshToken"])
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	if !valid {
		writeErr(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "invalid refresh token")
		return
	}
	f.writePair(w, http.StatusOK, "")
}

func (f *fakeServer) writePair(w http.ResponseWriter, status int, message string) {
	f.mu.Lock()
	f.seq++
	access := f.mint("access", f.seq, 15*time.Minute)
	refresh := f.mint("refresh", f.seq, 7*24*time.Hour)
	f.access[access] = true
	f.refresh[refresh] = true
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message":      message,
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func (f *fakeServer) mint(class string, seq int, ttl time.Duration) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   "u-1",
		"name": "Ada",
		"typ":  class,
		"jti":  fmt.Sprintf("%s-%d", class, seq),
		"exp":  f.now.Add(ttl).Unix(),
	}).SignedString([]byte("test-secret-" + class))
	require.NoError(f.t, err)
	return token
}

func (f *fakeServer) counts() (refreshCalls, dataCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.dataCalls
}

func (f *fakeServer) refreshValid(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh[token]
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`, code, message)
}

type fakeTimer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type scheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *scheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *scheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

func (s *scheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// newEchoServer records request bodies and accepts only access tokens the
// auth server minted.
func newEchoServer(t *testing.T, auth *fakeServer, record func(string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		record(string(b))

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		auth.mu.Lock()
		ok := auth.access[token]
		auth.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testDoer() httpclient.Doer {
	return httpclient.New(httpclient.Config{Timeout: 5 * time.Second})
}
