package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/handler/dto"
	"github.com/penletter/penletter/internal/idempotency"
	"github.com/penletter/penletter/internal/metrics"
	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/service"
)

// Headers used by the publish endpoints.
const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
	basicRealmHeader     = `Basic realm="publish"`
)

// Publisher is the publish use case.
type Publisher interface {
	Authenticate(ctx context.Context, creds auth.Credentials) (string, error)
	Publish(ctx context.Context, issue model.Issue, userID string) (*model.PublishReport, error)
}

// NewsletterHandler handles issue publication over Basic auth and over an
// operator session.
type NewsletterHandler struct {
	publisher Publisher
	guard     *idempotency.Guard
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewNewsletterHandler creates a new NewsletterHandler.
func NewNewsletterHandler(publisher Publisher, guard *idempotency.Guard, recorder metrics.Recorder, logger *slog.Logger) *NewsletterHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &NewsletterHandler{
		publisher: publisher,
		guard:     guard,
		metrics:   recorder,
		logger:    logger.With("component", "handler.newsletter"),
	}
}

// Publish handles POST /newsletters with Basic credentials and a JSON body.
// The Idempotency-Key header is optional.
func (h *NewsletterHandler) Publish(w http.ResponseWriter, r *http.Request) {
	creds, err := auth.CredentialsFromRequest(r)
	if err != nil {
		h.writeAuthChallenge(w)
		return
	}

	var req dto.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	issue, err := model.NewIssue(req.Title, req.Content.HTML, req.Content.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ISSUE", err.Error())
		return
	}

	var key *idempotency.Key
	if raw := r.Header.Get(IdempotencyKeyHeader); raw != "" {
		k, err := idempotency.NewKey(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", err.Error())
			return
		}
		key = &k
	}

	userID, err := h.publisher.Authenticate(r.Context(), creds)
	if err != nil {
		if errors.Is(err, service.ErrPublishAuth) {
			h.writeAuthChallenge(w)
			return
		}
		writeInternalError(w, h.logger, "publish authentication failed", err)
		return
	}

	h.run(w, r, userID, key, issue)
}

// AdminPublish handles POST /admin/newsletters from a logged-in operator.
// The form must carry an idempotency_key.
func (h *NewsletterHandler) AdminPublish(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	var form dto.AdminPublishForm
	if err := decodeForm(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
		return
	}

	key, err := idempotency.NewKey(form.IdempotencyKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", err.Error())
		return
	}

	issue, err := model.NewIssue(form.Title, form.HTMLContent, form.TextContent)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ISSUE", err.Error())
		return
	}

	h.run(w, r, userID, &key, issue)
}

// run publishes issue, through the idempotency guard when key is set.
// Delivery is detached from the client connection: once started, a publish
// is never abandoned half way because the caller hung up.
func (h *NewsletterHandler) run(w http.ResponseWriter, r *http.Request, userID string, key *idempotency.Key, issue model.Issue) {
	ctx := context.WithoutCancel(r.Context())

	if key == nil {
		resp, err := h.publish(ctx, userID, issue)
		if err != nil {
			writeInternalError(w, h.logger, "publish failed", err)
			return
		}
		writeSaved(w, resp)
		return
	}

	resp, replayed, err := h.guard.Execute(ctx, userID, *key, func(ctx context.Context) (idempotency.Response, error) {
		return h.publish(ctx, userID, issue)
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrInProgress) {
			writeError(w, http.StatusConflict, "PUBLISH_IN_PROGRESS", "A publish with this idempotency key is in progress")
			return
		}
		writeInternalError(w, h.logger, "publish failed", err)
		return
	}

	if replayed {
		h.metrics.IncIdempotentReplay()
		w.Header().Set(ReplayedHeader, "true")
	}
	writeSaved(w, resp)
}

func (h *NewsletterHandler) publish(ctx context.Context, userID string, issue model.Issue) (idempotency.Response, error) {
	report, err := h.publisher.Publish(ctx, issue, userID)
	if err != nil {
		return idempotency.Response{}, err
	}

	body, err := json.Marshal(dto.ToPublishReportResponse(report))
	if err != nil {
		return idempotency.Response{}, err
	}

	return idempotency.Response{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        body,
	}, nil
}

func (h *NewsletterHandler) writeAuthChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", basicRealmHeader)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication failed")
}

// writeSaved writes a stored response verbatim.
func writeSaved(w http.ResponseWriter, resp idempotency.Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
