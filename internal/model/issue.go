package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxIssueTitleLength bounds the subject line.
	MaxIssueTitleLength = 200
)

var (
	// ErrInvalidIssue indicates the issue content failed validation.
	ErrInvalidIssue = errors.New("invalid newsletter issue")
)

// Issue is the content of one newsletter publication.
// It is immutable once built by NewIssue.
type Issue struct {
	title    string
	htmlBody string
	textBody string
}

// NewIssue validates and builds an Issue. Title and both bodies are required.
func NewIssue(title, htmlBody, textBody string) (Issue, error) {
	title = strings.TrimSpace(title)
	switch {
	case title == "":
		return Issue{}, fmt.Errorf("%w: title is required", ErrInvalidIssue)
	case utf8.RuneCountInString(title) > MaxIssueTitleLength:
		return Issue{}, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidIssue, MaxIssueTitleLength)
	case strings.ContainsAny(title, "\r\n"):
		return Issue{}, fmt.Errorf("%w: title must be a single line", ErrInvalidIssue)
	case strings.TrimSpace(htmlBody) == "":
		return Issue{}, fmt.Errorf("%w: html content is required", ErrInvalidIssue)
	case strings.TrimSpace(textBody) == "":
		return Issue{}, fmt.Errorf("%w: text content is required", ErrInvalidIssue)
	}
	return Issue{title: title, htmlBody: htmlBody, textBody: textBody}, nil
}

// Title returns the subject line.
func (i Issue) Title() string { return i.title }

// HTMLBody returns the HTML content.
func (i Issue) HTMLBody() string { return i.htmlBody }

// TextBody returns the plain-text content.
func (i Issue) TextBody() string { return i.textBody }

// DeliveryStatus is the outcome of delivering an issue to one subscriber.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliverySkipped   DeliveryStatus = "skipped"
	DeliveryFailed    DeliveryStatus = "failed"
)

const (
	// ReasonInvalidContact marks a subscriber skipped for an unparseable address.
	ReasonInvalidContact = "invalid_contact"
	// ReasonDeliveryFailed marks a send the email provider did not accept.
	// The provider's error stays in the server log.
	ReasonDeliveryFailed = "delivery_failed"
)

// Outcome records what happened for one subscriber.
type Outcome struct {
	Email  string         `json:"email"`
	Status DeliveryStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

// PublishReport aggregates every per-subscriber outcome of one publish.
type PublishReport struct {
	IssueID     string    `json:"issue_id"`
	Title       string    `json:"title"`
	Outcomes    []Outcome `json:"outcomes"`
	Delivered   int       `json:"delivered"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	PublishedAt time.Time `json:"published_at"`
}

// NewPublishReport creates an empty report for issue.
func NewPublishReport(issueID string, issue Issue, publishedAt time.Time) *PublishReport {
	return &PublishReport{
		IssueID:     issueID,
		Title:       issue.Title(),
		Outcomes:    []Outcome{},
		PublishedAt: publishedAt,
	}
}

// Add appends an outcome and updates the counters.
func (r *PublishReport) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case DeliveryDelivered:
		r.Delivered++
	case DeliverySkipped:
		r.Skipped++
	case DeliveryFailed:
		r.Failed++
	}
}

// Total returns the number of subscribers considered.
func (r *PublishReport) Total() int {
	return len(r.Outcomes)
}
