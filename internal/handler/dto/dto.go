// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/penletter/penletter/internal/model"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// SubscribeForm is the POST /subscriptions form body.
type SubscribeForm struct {
	Name  string `schema:"name"`
	Email string `schema:"email"`
}

// LoginForm is the POST /login form body.
type LoginForm struct {
	Username string `schema:"username"`
	Password string `schema:"password"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	UserID string `json:"user_id"`
}

// DashboardResponse is returned by GET /admin/dashboard.
type DashboardResponse struct {
	Username string `json:"username"`
}

// ChangePasswordForm is the POST /admin/password form body.
type ChangePasswordForm struct {
	CurrentPassword  string `schema:"current_password"`
	NewPassword      string `schema:"new_password"`
	NewPasswordCheck string `schema:"new_password_check"`
}

// PublishRequest is the JSON body of POST /newsletters.
type PublishRequest struct {
	Title   string         `json:"title"`
	Content PublishContent `json:"content"`
}

// PublishContent carries both renditions of an issue.
type PublishContent struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// AdminPublishForm is the POST /admin/newsletters form body.
type AdminPublishForm struct {
	Title          string `schema:"title"`
	HTMLContent    string `schema:"html_content"`
	TextContent    string `schema:"text_content"`
	IdempotencyKey string `schema:"idempotency_key"`
}

// OutcomeResponse is one subscriber's delivery result.
type OutcomeResponse struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// PublishReportResponse summarises a publish.
type PublishReportResponse struct {
	IssueID     string            `json:"issue_id"`
	Title       string            `json:"title"`
	Delivered   int               `json:"delivered"`
	Skipped     int               `json:"skipped"`
	Failed      int               `json:"failed"`
	Outcomes    []OutcomeResponse `json:"outcomes"`
	PublishedAt time.Time         `json:"published_at"`
}

// ToPublishReportResponse converts a report to its response form. Subscriber
// addresses are masked; the report is stored for idempotent replay.
func ToPublishReportResponse(report *model.PublishReport) *PublishReportResponse {
	outcomes := make([]OutcomeResponse, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		outcomes = append(outcomes, OutcomeResponse{
			Email:  model.RedactEmail(o.Email),
			Status: string(o.Status),
			Reason: o.Reason,
		})
	}

	return &PublishReportResponse{
		IssueID:     report.IssueID,
		Title:       report.Title,
		Delivered:   report.Delivered,
		Skipped:     report.Skipped,
		Failed:      report.Failed,
		Outcomes:    outcomes,
		PublishedAt: report.PublishedAt,
	}
}
