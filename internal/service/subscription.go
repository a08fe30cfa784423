package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/email"
	"github.com/penletter/penletter/internal/metrics"
	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/repository"
)

// Subscription errors.
var (
	ErrInvalidSubscriber = errors.New("invalid subscriber details")
	ErrAlreadySubscribed = errors.New("email already subscribed")
	ErrInvalidToken      = errors.New("malformed subscription token")
	ErrUnknownToken      = errors.New("unknown subscription token")
	ErrConfirmationEmail = errors.New("failed to send confirmation email")
)

// SubscriberStore persists subscriptions and their confirmation tokens.
type SubscriberStore interface {
	CreatePendingSubscriber(ctx context.Context, sub model.NewSubscriber, token string) (string, error)
	SubscriberIDByToken(ctx context.Context, token string) (string, error)
	ConfirmSubscriber(ctx context.Context, subscriberID string) error
}

// SubscriptionService handles sign-up and confirmation.
type SubscriptionService struct {
	store    SubscriberStore
	sink     NotificationSink
	renderer *email.Renderer
	baseURL  string
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(
	store SubscriberStore,
	sink NotificationSink,
	renderer *email.Renderer,
	baseURL string,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *SubscriptionService {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &SubscriptionService{
		store:    store,
		sink:     sink,
		renderer: renderer,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		logger:   logger.With("component", "service.subscription"),
		metrics:  recorder,
	}
}

// Subscribe validates the request, stores a pending subscription and emails
// the confirmation link.
func (s *SubscriptionService) Subscribe(ctx context.Context, name, rawEmail string) error {
	subscriberName, err := model.ParseSubscriberName(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSubscriber, err)
	}
	subscriberEmail, err := model.ParseSubscriberEmail(rawEmail)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSubscriber, err)
	}

	token, err := auth.GenerateSubscriptionToken()
	if err != nil {
		return err
	}

	sub := model.NewSubscriber{Email: subscriberEmail, Name: subscriberName}
	id, err := s.store.CreatePendingSubscriber(ctx, sub, token)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriberExists) {
			return ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to store subscriber: %w", err)
	}
	s.metrics.IncSubscriptionCreated()

	link := s.baseURL + "/subscriptions/confirm?subscription_token=" + url.QueryEscape(token)
	htmlBody, textBody, err := s.renderer.Confirmation(subscriberName.String(), link)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfirmationEmail, err)
	}

	if err := s.sink.Send(ctx, subscriberEmail, email.ConfirmationSubject, htmlBody, textBody); err != nil {
		return fmt.Errorf("%w: %w", ErrConfirmationEmail, err)
	}

	s.logger.Info("subscriber pending confirmation",
		slog.String("subscriber_id", id),
		slog.String("email", model.RedactEmail(subscriberEmail.String())),
	)

	return nil
}

// Confirm marks the subscription behind token as confirmed.
func (s *SubscriptionService) Confirm(ctx context.Context, token string) error {
	if !auth.ValidSubscriptionToken(token) {
		return ErrInvalidToken
	}

	id, err := s.store.SubscriberIDByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrUnknownToken
		}
		return fmt.Errorf("failed to resolve subscription token: %w", err)
	}

	if err := s.store.ConfirmSubscriber(ctx, id); err != nil {
		// The subscription was removed after the token was read
		if errors.Is(err, repository.ErrSubscriberNotFound) {
			return ErrUnknownToken
		}
		return fmt.Errorf("failed to confirm subscriber: %w", err)
	}
	s.metrics.IncSubscriptionConfirmed()

	s.logger.Info("subscriber confirmed", slog.String("subscriber_id", id))
	return nil
}
