package handler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/cache"
	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/secret"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewWithClient(client)
}

// fakePublisher accepts one username/password pair.
type fakePublisher struct {
	mu         sync.Mutex
	calls      int
	authErr    error
	publishErr error
	ctxErr     error
	started    chan struct{}
	release    chan struct{}
}

func (f *fakePublisher) Authenticate(ctx context.Context, creds auth.Credentials) (string, error) {
	if f.authErr != nil {
		return "", f.authErr
	}
	return "user-" + creds.Username, nil
}

func (f *fakePublisher) Publish(ctx context.Context, issue model.Issue, userID string) (*model.PublishReport, error) {
	f.mu.Lock()
	f.calls++
	f.ctxErr = ctx.Err()
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.publishErr != nil {
		return nil, f.publishErr
	}

	report := model.NewPublishReport("issue-1", issue, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	report.Add(model.Outcome{Email: "alice@example.com", Status: model.DeliveryDelivered})
	report.Add(model.Outcome{Email: "not-an-email", Status: model.DeliverySkipped, Reason: model.ReasonInvalidContact})
	return report, nil
}

func (f *fakePublisher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSubscriptions struct {
	subscribeErr error
	confirmErr   error
	name, email  string
	token        string
}

func (f *fakeSubscriptions) Subscribe(ctx context.Context, name, email string) error {
	f.name, f.email = name, email
	return f.subscribeErr
}

func (f *fakeSubscriptions) Confirm(ctx context.Context, token string) error {
	f.token = token
	return f.confirmErr
}

// fakeVerifier accepts one username/password pair.
type fakeVerifier struct {
	username string
	password string
	userID   string
	err      error
}

func (f *fakeVerifier) Verify(ctx context.Context, creds auth.Credentials) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if creds.Username != f.username || creds.Password.Expose() != f.password {
		return "", auth.ErrInvalidCredentials
	}
	return f.userID, nil
}

type fakeUsers struct {
	names map[string]string
}

func (f *fakeUsers) GetUsername(ctx context.Context, userID string) (string, error) {
	name, ok := f.names[userID]
	if !ok {
		return "", errors.New("user not found")
	}
	return name, nil
}

type fakePasswords struct {
	err    error
	userID string
	next   secret.String
}

func (f *fakePasswords) ChangePassword(ctx context.Context, userID string, current, next, nextCheck secret.String) error {
	f.userID, f.next = userID, next
	return f.err
}
