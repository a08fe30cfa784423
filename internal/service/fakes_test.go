package service

import (
	"context"
	"sync"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/repository"
	"github.com/penletter/penletter/internal/secret"
)

type fakeDirectory struct {
	records []model.SubscriberRecord
	err     error
}

func (f *fakeDirectory) ConfirmedSubscribers(context.Context) ([]model.SubscriberRecord, error) {
	return f.records, f.err
}

func directoryOf(emails ...string) *fakeDirectory {
	d := &fakeDirectory{}
	for _, e := range emails {
		d.records = append(d.records, model.NewSubscriberRecord(e))
	}
	return d
}

type sentEmail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type fakeSink struct {
	mu     sync.Mutex
	sent   []sentEmail
	failOn map[string]error
}

func (f *fakeSink) Send(_ context.Context, to model.SubscriberEmail, subject, htmlBody, textBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{To: to.String(), Subject: subject, HTML: htmlBody, Text: textBody})
	if err, ok := f.failOn[to.String()]; ok {
		return err
	}
	return nil
}

func (f *fakeSink) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.To)
	}
	return out
}

type fakeVerifier struct {
	userID string
	err    error
	got    []auth.Credentials
}

func (f *fakeVerifier) Verify(_ context.Context, creds auth.Credentials) (string, error) {
	f.got = append(f.got, creds)
	if f.err != nil {
		return "", f.err
	}
	return f.userID, nil
}

type fakeSubscriberStore struct {
	created   map[string]string // token -> subscriber id
	confirmed []string
	createErr  error
	lookupErr  error
	confirmErr error
}

func newFakeSubscriberStore() *fakeSubscriberStore {
	return &fakeSubscriberStore{created: make(map[string]string)}
}

func (f *fakeSubscriberStore) CreatePendingSubscriber(_ context.Context, sub model.NewSubscriber, token string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	id := "sub-" + sub.Email.String()
	f.created[token] = id
	return id, nil
}

func (f *fakeSubscriberStore) SubscriberIDByToken(_ context.Context, token string) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	id, ok := f.created[token]
	if !ok {
		return "", repository.ErrTokenNotFound
	}
	return id, nil
}

func (f *fakeSubscriberStore) ConfirmSubscriber(_ context.Context, id string) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed = append(f.confirmed, id)
	return nil
}

type fakePasswordStore struct {
	username string
	updated  map[string]secret.String
}

func (f *fakePasswordStore) GetUsername(_ context.Context, userID string) (string, error) {
	if f.username == "" {
		return "", repository.ErrUserNotFound
	}
	return f.username, nil
}

func (f *fakePasswordStore) UpdatePassword(_ context.Context, userID string, hash secret.String) error {
	if f.updated == nil {
		f.updated = make(map[string]secret.String)
	}
	f.updated[userID] = hash
	return nil
}
