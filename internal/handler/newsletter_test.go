package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/handler/dto"
	"github.com/penletter/penletter/internal/idempotency"
	"github.com/penletter/penletter/internal/metrics"
	"github.com/penletter/penletter/internal/service"
)

const validPublishBody = `{"title":"Issue #1","content":{"html":"<p>Hello</p>","text":"Hello"}}`

func newTestNewsletterHandler(t *testing.T, pub *fakePublisher) (*NewsletterHandler, *metrics.InMemoryRecorder) {
	t.Helper()
	rec := metrics.NewInMemory()
	guard := idempotency.NewGuard(newTestCache(t), 0, discardLogger())
	return NewNewsletterHandler(pub, guard, rec, discardLogger()), rec
}

func publishRequest(body, key string, withAuth bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/newsletters", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		req.SetBasicAuth("ada", "s3cret")
	}
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func adminPublishRequest(userID string, values url.Values) *http.Request {
	req := formRequest(http.MethodPost, "/admin/newsletters", values)
	return req.WithContext(auth.ContextWithUserID(req.Context(), userID))
}

func adminIssueForm(key string) url.Values {
	return url.Values{
		"title":           {"Issue #1"},
		"html_content":    {"<p>Hello</p>"},
		"text_content":    {"Hello"},
		"idempotency_key": {key},
	}
}

func TestNewsletterHandler_Publish_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		pub           *fakePublisher
		req           *http.Request
		wantStatus    int
		wantCode      string
		wantChallenge bool
	}{
		{
			name:          "missing credentials",
			pub:           &fakePublisher{},
			req:           publishRequest(validPublishBody, "", false),
			wantStatus:    http.StatusUnauthorized,
			wantCode:      "UNAUTHORIZED",
			wantChallenge: true,
		},
		{
			name:          "rejected credentials",
			pub:           &fakePublisher{authErr: fmt.Errorf("%w: %w", service.ErrPublishAuth, auth.ErrInvalidCredentials)},
			req:           publishRequest(validPublishBody, "", true),
			wantStatus:    http.StatusUnauthorized,
			wantCode:      "UNAUTHORIZED",
			wantChallenge: true,
		},
		{
			name:       "authentication fault",
			pub:        &fakePublisher{authErr: fmt.Errorf("%w: db down", service.ErrPublishUnexpected)},
			req:        publishRequest(validPublishBody, "", true),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name:       "malformed json",
			pub:        &fakePublisher{},
			req:        publishRequest(`{"title":`, "", true),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_JSON",
		},
		{
			name:       "missing title",
			pub:        &fakePublisher{},
			req:        publishRequest(`{"content":{"html":"<p>x</p>","text":"x"}}`, "", true),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ISSUE",
		},
		{
			name:       "overlong idempotency key",
			pub:        &fakePublisher{},
			req:        publishRequest(validPublishBody, strings.Repeat("k", 50), true),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_IDEMPOTENCY_KEY",
		},
		{
			name:       "directory failure",
			pub:        &fakePublisher{publishErr: fmt.Errorf("%w: list failed", service.ErrPublishUnexpected)},
			req:        publishRequest(validPublishBody, "", true),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newTestNewsletterHandler(t, tt.pub)
			rec := httptest.NewRecorder()
			h.Publish(rec, tt.req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := rec.Header().Get("WWW-Authenticate"); tt.wantChallenge && got != `Basic realm="publish"` {
				t.Errorf("WWW-Authenticate = %q", got)
			}
			body := rec.Body.String()
			if strings.Contains(body, "db down") || strings.Contains(body, "list failed") {
				t.Errorf("internal cause leaked: %s", body)
			}
			if resp := decodeError(t, rec); resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestNewsletterHandler_Publish_Report(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	h, _ := newTestNewsletterHandler(t, pub)

	rec := httptest.NewRecorder()
	h.Publish(rec, publishRequest(validPublishBody, "", true))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var report dto.PublishReportResponse
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Delivered != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Errorf("unexpected counts: %+v", report)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(report.Outcomes))
	}
	if report.Outcomes[0].Email != "al***@example.com" {
		t.Errorf("email not masked: %q", report.Outcomes[0].Email)
	}
	if report.Outcomes[1].Reason != "invalid_contact" {
		t.Errorf("reason = %q", report.Outcomes[1].Reason)
	}
}

func TestNewsletterHandler_Publish_DetachedFromClient(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	h, _ := newTestNewsletterHandler(t, pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := publishRequest(validPublishBody, "", true).WithContext(ctx)

	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if pub.Calls() != 1 {
		t.Fatalf("expected publish to run, calls = %d", pub.Calls())
	}
	if pub.ctxErr != nil {
		t.Errorf("publish saw a cancelled context: %v", pub.ctxErr)
	}
}

func TestNewsletterHandler_Publish_IdempotencyKeyReplays(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	h, m := newTestNewsletterHandler(t, pub)

	first := httptest.NewRecorder()
	h.Publish(first, publishRequest(validPublishBody, "issue-1-key", true))
	second := httptest.NewRecorder()
	h.Publish(second, publishRequest(validPublishBody, "issue-1-key", true))

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}
	if pub.Calls() != 1 {
		t.Errorf("publish ran %d times, want 1", pub.Calls())
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("replayed body differs from the original")
	}
	if first.Header().Get(ReplayedHeader) != "" {
		t.Error("first response must not be marked as replayed")
	}
	if second.Header().Get(ReplayedHeader) != "true" {
		t.Error("second response must be marked as replayed")
	}
	if got := m.Snapshot().IdempotentReplays; got != 1 {
		t.Errorf("IdempotentReplays = %d, want 1", got)
	}
}

func TestNewsletterHandler_AdminPublish(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	h, _ := newTestNewsletterHandler(t, pub)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.AdminPublish(rec, adminPublishRequest("user-1", adminIssueForm("form-key")))
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d, body %s", i+1, rec.Code, rec.Body.String())
		}
	}
	if pub.Calls() != 1 {
		t.Errorf("publish ran %d times, want 1", pub.Calls())
	}

	// The same key from another operator is a different request
	rec := httptest.NewRecorder()
	h.AdminPublish(rec, adminPublishRequest("user-2", adminIssueForm("form-key")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if pub.Calls() != 2 {
		t.Errorf("publish ran %d times, want 2", pub.Calls())
	}
}

func TestNewsletterHandler_AdminPublish_Validation(t *testing.T) {
	t.Parallel()

	noKey := adminIssueForm("")
	noText := adminIssueForm("k1")
	noText.Set("text_content", "  ")

	tests := []struct {
		name     string
		form     url.Values
		wantCode string
	}{
		{"missing idempotency key", noKey, "INVALID_IDEMPOTENCY_KEY"},
		{"missing text content", noText, "INVALID_ISSUE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pub := &fakePublisher{}
			h, _ := newTestNewsletterHandler(t, pub)

			rec := httptest.NewRecorder()
			h.AdminPublish(rec, adminPublishRequest("user-1", tt.form))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if resp := decodeError(t, rec); resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			if pub.Calls() != 0 {
				t.Error("publish must not run for an invalid request")
			}
		})
	}
}

func TestNewsletterHandler_AdminPublish_FailureAllowsRetry(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{publishErr: errors.New("directory unavailable")}
	h, _ := newTestNewsletterHandler(t, pub)

	rec := httptest.NewRecorder()
	h.AdminPublish(rec, adminPublishRequest("user-1", adminIssueForm("retry-key")))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	pub.publishErr = nil
	rec = httptest.NewRecorder()
	h.AdminPublish(rec, adminPublishRequest("user-1", adminIssueForm("retry-key")))
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", rec.Code)
	}
	if pub.Calls() != 2 {
		t.Errorf("publish ran %d times, want 2", pub.Calls())
	}
}

func TestNewsletterHandler_AdminPublish_InProgress(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{started: make(chan struct{}), release: make(chan struct{})}
	h, _ := newTestNewsletterHandler(t, pub)

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		h.AdminPublish(rec, adminPublishRequest("user-1", adminIssueForm("busy-key")))
		done <- rec.Code
	}()

	<-pub.started

	rec := httptest.NewRecorder()
	h.AdminPublish(rec, adminPublishRequest("user-1", adminIssueForm("busy-key")))
	if rec.Code != http.StatusConflict {
		t.Errorf("concurrent status = %d, want 409", rec.Code)
	}

	close(pub.release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first request status = %d, want 200", code)
	}
}
