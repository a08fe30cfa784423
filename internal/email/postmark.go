package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/secret"
)

// HeaderPostmarkToken carries the server token on every request.
const HeaderPostmarkToken = "X-Postmark-Server-Token"

// PostmarkClient sends mail through the Postmark HTTP API.
type PostmarkClient struct {
	httpClient *http.Client
	baseURL    string
	sender     model.SubscriberEmail
	token      secret.String
}

// NewPostmarkClient creates a client posting to {baseURL}/email.
func NewPostmarkClient(baseURL string, sender model.SubscriberEmail, token secret.String, timeout time.Duration) *PostmarkClient {
	return &PostmarkClient{
		httpClient: NewHTTPClient(timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
		sender:     sender,
		token:      token,
	}
}

type postmarkRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"` //nolint:revive // Postmark field name
	TextBody string `json:"TextBody"`
}

// Send delivers one message. Any non-2xx response is an error wrapping
// ErrSendFailed.
func (c *PostmarkClient) Send(ctx context.Context, to model.SubscriberEmail, subject, htmlBody, textBody string) error {
	body, err := json.Marshal(postmarkRequest{
		From:     c.sender.String(),
		To:       to.String(),
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
	if err != nil {
		return fmt.Errorf("marshal postmark request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create postmark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderPostmarkToken, c.token.Expose())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send via postmark: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: postmark status %d: %s", ErrSendFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
