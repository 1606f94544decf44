package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/riteshshukladev/wrapper/pkg/errors"
	"github.com/riteshshukladev/wrapper/pkg/httpclient"
)

var (
	// ErrAuthenticationFailed is returned when a request was rejected and the
	// session could not be renewed. The session has been cleared.
	ErrAuthenticationFailed = errors.New("authentication failed, please log in again")

	// ErrNoSession is returned by Refresh when there is no refresh token.
	ErrNoSession = errors.New("no active session")
)

const (
	DefaultRenewBefore = 60 * time.Second
	renewTimeout       = 10 * time.Second
)

// Timer is a scheduled renewal that can be canceled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore persists the session. Without it the session lives in memory only.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithDoer replaces the default circuit-breaking HTTP client.
func WithDoer(d httpclient.Doer) Option {
	return func(c *Cache) { c.doer = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock sets the time source used to schedule renewal.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithAfterFunc sets the renewal scheduler.
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Cache) { c.afterFunc = f }
}

// WithRenewBefore sets how long before access token expiry renewal fires.
func WithRenewBefore(d time.Duration) Option {
	return func(c *Cache) { c.renewBefore = d }
}

// Cache owns the client side of one login session: it holds the token pair,
// renews it before the access token expires and retries rejected calls once
// after a renewal. Dependents observe changes through Subscribe.
type Cache struct {
	baseURL     string
	doer        httpclient.Doer
	store       Store
	logger      *slog.Logger
	now         func() time.Time
	afterFunc   AfterFunc
	renewBefore time.Duration

	mu      sync.Mutex
	session Session
	// gen changes on every session change; work started under an older
	// generation must not write its result back.
	gen    uint64
	timer  Timer
	closed bool

	// persistMu orders store writes with the session changes they mirror.
	// It is taken before mu and never held across a server call.
	persistMu sync.Mutex

	refreshes singleflight.Group
	renewals  sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]func(Session)
	nextSub int
}

// New creates a logged-out cache talking to the auth server at baseURL.
func New(baseURL string, opts ...Option) (*Cache, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}

	c := &Cache{
		baseURL:     strings.TrimRight(baseURL, "/"),
		store:       nopStore{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		afterFunc:   realAfterFunc,
		renewBefore: DefaultRenewBefore,
		subs:        make(map[int]func(Session)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("auth-server"),
			nil,
			c.logger,
		)
	}
	return c, nil
}

// Session returns a snapshot of the current session.
func (c *Cache) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Subscribe registers fn to be called with the new session after every
// change. The returned function unregisters it.
func (c *Cache) Subscribe(fn func(Session)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// notifyIfCurrent reports s unless the session moved past gen meanwhile.
func (c *Cache) notifyIfCurrent(gen uint64, s Session) {
	c.mu.Lock()
	current := c.gen == gen
	c.mu.Unlock()
	if current {
		c.notify(s)
	}
}

func (c *Cache) notify(s Session) {
	c.subMu.Lock()
	fns := make([]func(Session), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Restore loads a previously saved session. An unreadable access token
// clears the stored state. An expired one is renewed right away.
func (c *Cache) Restore(ctx context.Context) error {
	t, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if t.AccessToken == "" {
		return nil
	}

	s, err := newSession(t.AccessToken, t.RefreshToken)
	if err != nil {
		c.logger.WarnContext(ctx, "discarding unreadable stored session", slog.String("error", err.Error()))
		return c.store.Clear(ctx)
	}

	c.mu.Lock()
	c.setLocked(s)
	c.mu.Unlock()
	c.notify(s)
	return nil
}

// Signup registers a new account and starts its session.
func (c *Cache) Signup(ctx context.Context, name, email, password string) error {
	return c.authenticate(ctx, "/api/auth/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

// Login starts a session. A session already held by this cache is replaced
// without being revoked on the server.
func (c *Cache) Login(ctx context.Context, email, password string) error {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Cache) authenticate(ctx context.Context, path string, body any) error {
	pair, err := c.postTokens(ctx, path, body)
	if err != nil {
		return err
	}
	s, err := newSession(pair.AccessToken, pair.RefreshToken)
	if err != nil {
		return err
	}

	c.persistMu.Lock()
	c.mu.Lock()
	c.setLocked(s)
	gen := c.gen
	c.mu.Unlock()
	err = c.store.Save(ctx, Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken})
	c.persistMu.Unlock()

	c.notifyIfCurrent(gen, s)
	return err
}

// Refresh rotates the token pair and returns the new access token.
// Concurrent callers share one server call. Any failure ends the session.
func (c *Cache) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	gen, refreshToken := c.gen, c.session.RefreshToken
	c.mu.Unlock()

	v, err, _ := c.refreshes.Do(refreshToken, func() (any, error) {
		return c.refresh(ctx, gen, refreshToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) refresh(ctx context.Context, gen uint64, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrNoSession
	}

	pair, err := c.postTokens(ctx, "/api/auth/refresh-token", map[string]string{"refreshToken": refreshToken})
	var s Session
	if err == nil {
		s, err = newSession(pair.AccessToken, pair.RefreshToken)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "session refresh failed", slog.String("error", err.Error()))
		c.endIfCurrent(ctx, gen)
		return "", err
	}

	c.persistMu.Lock()
	c.mu.Lock()
	if c.gen != gen {
		// the session changed while the call was in flight; drop and
		// revoke the new pair
		c.mu.Unlock()
		c.persistMu.Unlock()
		c.revoke(ctx, s.RefreshToken)
		return "", ErrNoSession
	}
	c.setLocked(s)
	gen = c.gen
	c.mu.Unlock()
	if err := c.store.Save(ctx, Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}); err != nil {
		c.logger.WarnContext(ctx, "persist refreshed session failed", slog.String("error", err.Error()))
	}
	c.persistMu.Unlock()

	c.notifyIfCurrent(gen, s)
	return s.AccessToken, nil
}

// Logout revokes the refresh token on the server, best effort, and then
// clears local state and cancels renewal.
func (c *Cache) Logout(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.session.RefreshToken
	c.mu.Unlock()

	if refreshToken != "" {
		c.revoke(ctx, refreshToken)
	}

	c.persistMu.Lock()
	c.mu.Lock()
	c.clearLocked()
	gen := c.gen
	c.mu.Unlock()
	err := c.store.Clear(ctx)
	c.persistMu.Unlock()

	c.notifyIfCurrent(gen, Session{})
	return err
}

func (c *Cache) revoke(ctx context.Context, refreshToken string) {
	if err := c.postMessage(ctx, "/api/auth/logout", map[string]string{"refreshToken": refreshToken}); err != nil {
		c.logger.WarnContext(ctx, "server logout failed", slog.String("error", err.Error()))
	}
}

func (c *Cache) endIfCurrent(ctx context.Context, gen uint64) {
	c.persistMu.Lock()
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.persistMu.Unlock()
		return
	}
	c.clearLocked()
	gen = c.gen
	c.mu.Unlock()
	if err := c.store.Clear(ctx); err != nil {
		c.logger.WarnContext(ctx, "clear stored session failed", slog.String("error", err.Error()))
	}
	c.persistMu.Unlock()

	c.notifyIfCurrent(gen, Session{})
}

// Close cancels scheduled renewal and waits for a renewal already running
// to finish. The session itself is left in place, in memory and in the store.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()

	c.renewals.Wait()
}

// setLocked installs s and re-arms renewal. Callers hold c.mu.
func (c *Cache) setLocked(s Session) {
	c.stopTimerLocked()
	c.gen++
	c.session = s
	if c.closed {
		return
	}

	gen := c.gen
	delay := s.User.ExpiresAt.Sub(c.now()) - c.renewBefore
	if delay < 0 {
		delay = 0
	}
	c.timer = c.afterFunc(delay, func() { c.renew(gen) })
}

func (c *Cache) clearLocked() {
	c.stopTimerLocked()
	c.gen++
	c.session = Session{}
}

func (c *Cache) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Cache) renew(gen uint64) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.renewals.Add(1)
	c.mu.Unlock()
	defer c.renewals.Done()

	ctx, cancel := context.WithTimeout(context.Background(), renewTimeout)
	defer cancel()
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("scheduled session renewal failed", slog.String("error", err.Error()))
	}
}

// AttachAuth sets the bearer header when logged in, and the JSON content type.
func (c *Cache) AttachAuth(req *http.Request) {
	c.mu.Lock()
	token := c.session.AccessToken
	c.mu.Unlock()
	setAuth(req, token)
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}
	req.Header.Set("Content-Type", "application/json")
}

// Do sends req with the current access token. A 401 triggers one refresh and
// one retry with the new token; the retry's response is returned as is. When
// the refresh fails the session is ended and ErrAuthenticationFailed returned.
func (c *Cache) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	body, err := readBody(req)
	if err != nil {
		return nil, err
	}

	first := cloneRequest(ctx, req, body)
	c.AttachAuth(first)
	resp, err := c.doer.Do(ctx, first)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	token, err := c.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	retry := cloneRequest(ctx, req, body)
	setAuth(retry, token)
	return c.doer.Do(ctx, retry)
}

// UserData fetches the profile of the logged-in user.
func (c *Cache) UserData(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/user/data", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp)
	}
	defer resp.Body.Close()

	var out struct {
		User *User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("decode user data: %w", err))
	}
	if out.User == nil {
		return nil, apperrors.Internal(errors.New("user data response has no user"))
	}
	return out.User, nil
}

type tokenPair struct {
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (c *Cache) postTokens(ctx context.Context, path string, body any) (*tokenPair, error) {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var pair tokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("decode %s response: %w", path, err))
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, apperrors.Internal(fmt.Errorf("%s response is missing tokens", path))
	}
	return &pair, nil
}

func (c *Cache) postMessage(ctx context.Context, path string, body any) error {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// post sends an unauthenticated JSON request and converts non-2xx answers
// into AppErrors.
func (c *Cache) post(ctx context.Context, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	setAuth(req, "")

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpclient.ParseResponseError(resp)
	}
	return resp, nil
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return b, nil
}

func cloneRequest(ctx context.Context, req *http.Request, body []byte) *http.Request {
	r := req.Clone(ctx)
	if body == nil {
		r.Body = http.NoBody
		r.GetBody = nil
		r.ContentLength = 0
		return r
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	r.ContentLength = int64(len(body))
	return r
}
