package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/cache"
	"github.com/penletter/penletter/internal/config"
	"github.com/penletter/penletter/internal/email"
	"github.com/penletter/penletter/internal/handler"
	"github.com/penletter/penletter/internal/handler/dto"
	"github.com/penletter/penletter/internal/idempotency"
	"github.com/penletter/penletter/internal/metrics"
	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/repository"
	"github.com/penletter/penletter/internal/secret"
	"github.com/penletter/penletter/internal/service"
)

var cheapParams = auth.Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 32, SaltLen: 16}

// memStore is an in-memory stand-in for the Postgres repository.
type memStore struct {
	mu          sync.Mutex
	users       map[string]auth.StoredCredential
	usernames   map[string]string
	subscribers []*model.Subscriber
	tokens      map[string]string
}

func newMemStore(t *testing.T, username, password string) *memStore {
	t.Helper()
	hash, err := auth.HashPasswordWithParams(password, cheapParams)
	require.NoError(t, err)
	return &memStore{
		users:     map[string]auth.StoredCredential{username: {UserID: "user-1", PasswordHash: secret.New(hash)}},
		usernames: map[string]string{"user-1": username},
		tokens:    map[string]string{},
	}
}

func (m *memStore) LookupCredentials(ctx context.Context, username string) (auth.StoredCredential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.users[username]
	return cred, ok, nil
}

func (m *memStore) GetUsername(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.usernames[userID]
	if !ok {
		return "", repository.ErrUserNotFound
	}
	return name, nil
}

func (m *memStore) UpdatePassword(ctx context.Context, userID string, hash secret.String) error {
	return nil
}

func (m *memStore) CreatePendingSubscriber(ctx context.Context, sub model.NewSubscriber, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscribers {
		if s.Email == sub.Email.String() {
			return "", repository.ErrSubscriberExists
		}
	}
	id := "sub-" + sub.Email.String()
	m.subscribers = append(m.subscribers, &model.Subscriber{
		ID:     id,
		Email:  sub.Email.String(),
		Name:   sub.Name.String(),
		Status: model.SubscriptionPending,
	})
	m.tokens[token] = id
	return id, nil
}

func (m *memStore) SubscriberIDByToken(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tokens[token]
	if !ok {
		return "", repository.ErrTokenNotFound
	}
	return id, nil
}

func (m *memStore) ConfirmSubscriber(ctx context.Context, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscribers {
		if s.ID == subscriberID {
			s.Status = model.SubscriptionConfirmed
		}
	}
	return nil
}

func (m *memStore) ConfirmedSubscribers(ctx context.Context) ([]model.SubscriberRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []model.SubscriberRecord
	for _, s := range m.subscribers {
		if s.Status == model.SubscriptionConfirmed {
			records = append(records, model.NewSubscriberRecord(s.Email))
		}
	}
	return records, nil
}

type sentMail struct {
	to, subject, text string
}

type memSink struct {
	mu   sync.Mutex
	sent []sentMail
	// rejectIssues fails newsletter sends (not confirmations) to these addresses
	rejectIssues map[string]error
}

func (s *memSink) Send(ctx context.Context, to model.SubscriberEmail, subject, htmlBody, textBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.rejectIssues[to.String()]; ok && subject != email.ConfirmationSubject {
		return err
	}
	s.sent = append(s.sent, sentMail{to: to.String(), subject: subject, text: textBody})
	return nil
}

func (s *memSink) withSubject(subject string) []sentMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentMail
	for _, m := range s.sent {
		if m.subject == subject {
			out = append(out, m)
		}
	}
	return out
}

type testApp struct {
	server *httptest.Server
	client *http.Client
	sink   *memSink
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cacheClient := cache.NewWithClient(rdb)

	store := newMemStore(t, "ada", "correct horse battery staple")
	sink := &memSink{}
	renderer, err := email.NewRenderer()
	require.NoError(t, err)

	cfg := &config.Config{
		AppEnv:                  "development",
		BaseURL:                 "http://newsletter.test",
		SessionTTL:              time.Hour,
		IdempotencyTTL:          time.Hour,
		LoginRateLimitEnabled:   true,
		LoginRateLimitPerMinute: 60,
		LoginRateLimitBurst:     10,
		MaxRequestBodySize:      1 << 20,
	}

	recorder := metrics.NewInMemory()
	pool := auth.NewHashPool(2)
	verifier := auth.NewVerifier(store, pool, logger, recorder)
	publisher := service.NewPublisher(store, sink, verifier, logger, recorder)

	r := setupRouter(routes{
		index:         handler.New(),
		health:        handler.NewHealthHandler(nil, cacheClient, logger),
		metrics:       handler.NewMetricsHandler(recorder),
		subscriptions: handler.NewSubscriptionHandler(service.NewSubscriptionService(store, sink, renderer, cfg.BaseURL, logger, recorder), logger),
		newsletters:   handler.NewNewsletterHandler(publisher, idempotency.NewGuard(cacheClient, cfg.IdempotencyTTL, logger), recorder, logger),
		passwords:     handler.NewPasswordHandler(service.NewPasswordService(store, verifier, pool, logger), logger),
		sessions: handler.NewSessionHandler(handler.SessionHandlerConfig{
			Verifier:   verifier,
			Sessions:   cacheClient,
			Users:      store,
			SessionTTL: cfg.SessionTTL,
			Logger:     logger,
		}),
	}, cacheClient, cfg, logger)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testApp{server: srv, client: client, sink: sink}
}

func (a *testApp) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *testApp) postForm(t *testing.T, path string, values url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(values.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(t, req)
}

func (a *testApp) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(t, err)
	return a.do(t, req)
}

func (a *testApp) publishBasic(t *testing.T, username, password string) *http.Response {
	t.Helper()
	body := `{"title":"Issue #1","content":{"html":"<p>Hi</p>","text":"Hi"}}`
	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/newsletters", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.SetBasicAuth(username, password)
	}
	return a.do(t, req)
}

var tokenPattern = regexp.MustCompile(`subscription_token=([A-Za-z0-9]{25})`)

func (a *testApp) subscribeAndConfirm(t *testing.T, name, address string) {
	t.Helper()

	resp := a.postForm(t, "/subscriptions", url.Values{"name": {name}, "email": {address}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mails := a.sink.withSubject(email.ConfirmationSubject)
	require.NotEmpty(t, mails)
	last := mails[len(mails)-1]
	require.Equal(t, address, last.to)

	match := tokenPattern.FindStringSubmatch(last.text)
	require.Len(t, match, 2, "confirmation link missing from %q", last.text)

	resp = a.get(t, "/subscriptions/confirm?subscription_token="+match[1])
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_SubscribeConfirmPublish(t *testing.T) {
	app := newTestApp(t)

	app.subscribeAndConfirm(t, "le guin", "ursula@example.com")

	// A pending subscriber never receives issues
	resp := app.postForm(t, "/subscriptions", url.Values{"name": {"pending"}, "email": {"pending@example.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = app.publishBasic(t, "ada", "correct horse battery staple")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report dto.PublishReportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 0, report.Failed)

	issues := app.sink.withSubject("Issue #1")
	require.Len(t, issues, 1)
	assert.Equal(t, "ursula@example.com", issues[0].to)
}

func TestRouter_PublishReportHidesProviderErrors(t *testing.T) {
	app := newTestApp(t)
	app.subscribeAndConfirm(t, "le guin", "ursula@example.com")
	app.subscribeAndConfirm(t, "bob", "bob.secret@example.com")

	app.sink.mu.Lock()
	app.sink.rejectIssues = map[string]error{
		"bob.secret@example.com": fmt.Errorf("%w: postmark status 422: %s", email.ErrSendFailed,
			`{"Message":"Illegal email address 'bob.secret@example.com'","ServerToken":"internal-10.0.3.7"}`),
	}
	app.sink.mu.Unlock()

	resp := app.publishBasic(t, "ada", "correct horse battery staple")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var report dto.PublishReportResponse
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, model.ReasonDeliveryFailed, report.Outcomes[1].Reason)

	for _, leaked := range []string{"bob.secret@example.com", "internal-10.0.3.7", "postmark status", "Illegal email address"} {
		assert.NotContains(t, string(body), leaked)
	}
}

func TestRouter_PublishRejectsBadCredentials(t *testing.T) {
	app := newTestApp(t)
	app.subscribeAndConfirm(t, "le guin", "ursula@example.com")

	for _, tc := range []struct{ username, password string }{
		{"", ""},
		{"ada", "wrong password"},
		{"nobody", "correct horse battery staple"},
	} {
		resp := app.publishBasic(t, tc.username, tc.password)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, `Basic realm="publish"`, resp.Header.Get("WWW-Authenticate"))
		assert.Equal(t, "60", resp.Header.Get("X-RateLimit-Limit"), "Basic publishing shares the login rate limit")
	}

	assert.Empty(t, app.sink.withSubject("Issue #1"))
}

func TestRouter_AdminFlow(t *testing.T) {
	app := newTestApp(t)
	app.subscribeAndConfirm(t, "le guin", "ursula@example.com")

	// Admin area requires a session
	resp := app.get(t, "/admin/dashboard")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	resp = app.postForm(t, "/login", url.Values{"username": {"ada"}, "password": {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = app.postForm(t, "/login", url.Values{"username": {"ada"}, "password": {"correct horse battery staple"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = app.get(t, "/admin/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dash dto.DashboardResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dash))
	assert.Equal(t, "ada", dash.Username)

	form := url.Values{
		"title":           {"Issue #1"},
		"html_content":    {"<p>Hi</p>"},
		"text_content":    {"Hi"},
		"idempotency_key": {"a-unique-key"},
	}
	first := app.postForm(t, "/admin/newsletters", form)
	require.Equal(t, http.StatusOK, first.StatusCode)
	second := app.postForm(t, "/admin/newsletters", form)
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get(handler.ReplayedHeader))

	firstBody, err := io.ReadAll(first.Body)
	require.NoError(t, err)
	secondBody, err := io.ReadAll(second.Body)
	require.NoError(t, err)
	assert.Equal(t, firstBody, secondBody)
	assert.Len(t, app.sink.withSubject("Issue #1"), 1, "retry must not send a second copy")

	resp = app.postForm(t, "/admin/logout", url.Values{})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = app.get(t, "/admin/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestRouter_ProbesAndFallbacks(t *testing.T) {
	app := newTestApp(t)

	resp := app.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = app.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = app.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = app.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"postgres://penletter:hunter2@db:5432/penletter", "postgres://penletter@db:5432/penletter"},
		{"redis://:hunter2@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"redis://cache:6379", "redis://cache:6379"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redactURL(tt.in))
	}
}

func TestSanitizeError(t *testing.T) {
	dsn := "postgres://penletter:hunter2@db:5432/penletter"
	err := &url.Error{Op: "dial", URL: dsn, Err: io.EOF}

	got := sanitizeError(err, dsn)
	assert.NotContains(t, got, "hunter2")

	got = sanitizeError(io.ErrUnexpectedEOF)
	assert.Equal(t, io.ErrUnexpectedEOF.Error(), got)
	assert.Equal(t, "connect failed: password=redacted", sanitizeError(errString("connect failed: password=hunter2")))
}

type errString string

func (e errString) Error() string { return string(e) }

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}
