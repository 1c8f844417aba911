package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Postmark endpoint, used by tests.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendTwoFactorCode delivers a login or 2FA-toggle code.
func (c *Client) SendTwoFactorCode(toEmail, code string) error {
	text := fmt.Sprintf("Your two-factor authentication code is: %s\n\nThis code expires in 10 minutes.", code)
	html := fmt.Sprintf(`<p>Your two-factor authentication code is:</p><h2>%s</h2><p>This code expires in 10 minutes.</p>`, code)
	return c.send(toEmail, "Two-Factor Authentication Code", text, html)
}

// SendVerificationCode delivers a signup email-verification code.
func (c *Client) SendVerificationCode(toEmail, code string) error {
	text := fmt.Sprintf("Your email verification code is: %s\n\nThis code expires in 10 minutes.", code)
	html := fmt.Sprintf(`<p>Your email verification code is:</p><h2>%s</h2><p>This code expires in 10 minutes.</p>`, code)
	return c.send(toEmail, "Verify Your Email", text, html)
}

// SendWelcome greets a newly registered user.
func (c *Client) SendWelcome(toEmail, name string) error {
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hi %s,\n\nYour account is ready. Happy shopping!", name)
	html := fmt.Sprintf(`<p>Hi %s,</p><p>Your account is ready. Happy shopping!</p>`, name)
	return c.send(toEmail, "Welcome!", text, html)
}

// send posts the email, retrying transient failures with fibonacci backoff.
// 4xx responses are permanent and not retried.
func (c *Client) send(toEmail, subject, textBody, htmlBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(250*time.Millisecond))
	return retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Postmark-Server-Token", c.serverToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("send email: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("postmark API error: status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
		}
		return nil
	})
}
