// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/metrics"
	"github.com/penletter/penletter/internal/model"
)

// Publish errors.
var (
	// ErrPublishAuth means the publisher's credentials were rejected.
	ErrPublishAuth = errors.New("publish authentication failed")
	// ErrPublishUnexpected wraps faults that prevented the publish from running.
	ErrPublishUnexpected = errors.New("publish failed unexpectedly")
)

// SubscriberDirectory lists the confirmed subscribers in retrieval order.
// A stored contact that does not parse is returned as an invalid record,
// never as an error.
type SubscriberDirectory interface {
	ConfirmedSubscribers(ctx context.Context) ([]model.SubscriberRecord, error)
}

// NotificationSink delivers one email.
type NotificationSink interface {
	Send(ctx context.Context, to model.SubscriberEmail, subject, htmlBody, textBody string) error
}

// CredentialVerifier authenticates credentials and returns the user ID.
type CredentialVerifier interface {
	Verify(ctx context.Context, creds auth.Credentials) (string, error)
}

// Publisher fans a newsletter issue out to every confirmed subscriber.
type Publisher struct {
	directory SubscriberDirectory
	sink      NotificationSink
	verifier  CredentialVerifier
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewPublisher creates a new Publisher.
func NewPublisher(
	directory SubscriberDirectory,
	sink NotificationSink,
	verifier CredentialVerifier,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		directory: directory,
		sink:      sink,
		verifier:  verifier,
		logger:    logger.With("component", "service.publisher"),
		metrics:   recorder,
		now:       time.Now,
	}
}

// Authenticate verifies publisher credentials. Rejected credentials yield
// ErrPublishAuth; any other failure yields ErrPublishUnexpected.
func (p *Publisher) Authenticate(ctx context.Context, creds auth.Credentials) (string, error) {
	userID, err := p.verifier.Verify(ctx, creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return "", fmt.Errorf("%w: %w", ErrPublishAuth, err)
		}
		return "", fmt.Errorf("%w: %w", ErrPublishUnexpected, err)
	}
	return userID, nil
}

// PublishWithCredentials authenticates creds and publishes issue on success.
func (p *Publisher) PublishWithCredentials(ctx context.Context, creds auth.Credentials, issue model.Issue) (*model.PublishReport, error) {
	userID, err := p.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	return p.Publish(ctx, issue, userID)
}

// Publish delivers issue to every confirmed subscriber, one at a time and in
// directory order.
//
// A subscriber whose stored contact is invalid is skipped. A failed delivery
// is recorded and the loop moves on to the next subscriber; deliveries that
// already succeeded are never retried or rolled back. The only error returned
// is ErrPublishUnexpected when the subscriber list cannot be read.
func (p *Publisher) Publish(ctx context.Context, issue model.Issue, userID string) (*model.PublishReport, error) {
	issueID := ulid.Make().String()
	logger := p.logger.With(
		slog.String("issue_id", issueID),
		slog.String("user_id", userID),
	)

	records, err := p.directory.ConfirmedSubscribers(ctx)
	if err != nil {
		p.metrics.IncPublish("failed")
		logger.Error("failed to list confirmed subscribers", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: list confirmed subscribers: %w", ErrPublishUnexpected, err)
	}

	report := model.NewPublishReport(issueID, issue, p.now().UTC())
	for _, record := range records {
		report.Add(p.deliver(ctx, logger, issue, record))
	}

	p.metrics.IncPublish("completed")
	logger.Info("issue published",
		slog.Int("subscribers", report.Total()),
		slog.Int("delivered", report.Delivered),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)

	return report, nil
}

func (p *Publisher) deliver(ctx context.Context, logger *slog.Logger, issue model.Issue, record model.SubscriberRecord) model.Outcome {
	if !record.Valid() {
		p.metrics.IncDelivery(string(model.DeliverySkipped))
		logger.Warn("skipping a confirmed subscriber, stored contact details are invalid",
			slog.String("error", record.Err.Error()),
		)
		return model.Outcome{
			Email:  record.Raw,
			Status: model.DeliverySkipped,
			Reason: model.ReasonInvalidContact,
		}
	}

	to := record.Subscriber.Email
	if cause := p.sink.Send(ctx, to, issue.Title(), issue.HTMLBody(), issue.TextBody()); cause != nil {
		masked := model.RedactEmail(to.String())
		p.metrics.IncDelivery(string(model.DeliveryFailed))
		// Providers echo the recipient in their error bodies
		logger.Error("failed to send newsletter issue",
			slog.String("subscriber", masked),
			slog.String("error", strings.ReplaceAll(cause.Error(), to.String(), masked)),
		)
		return model.Outcome{
			Email:  to.String(),
			Status: model.DeliveryFailed,
			Reason: model.ReasonDeliveryFailed,
		}
	}

	p.metrics.IncDelivery(string(model.DeliveryDelivered))
	return model.Outcome{Email: to.String(), Status: model.DeliveryDelivered}
}
