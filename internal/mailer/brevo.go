package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const brevoAPIURL = "https://api.brevo.com/v3/smtp/email"

var ErrNotConfigured = errors.New("mailer: brevo client not configured")

var (
	verifyTmpl = template.Must(template.New("verify").Parse(`<h1>Email Verification</h1>
<p>Thank you for registering! Please verify your email by clicking the link below:</p>
<a href="{{.Link}}">{{.Link}}</a>
<p>This link will expire in {{.Minutes}} minutes.</p>`))

	resetTmpl = template.Must(template.New("reset").Parse(`<h1>Password Reset Request</h1>
<p>You requested a password reset. Please click the link below to reset your password:</p>
<a href="{{.Link}}">{{.Link}}</a>
<p>This link will expire in {{.Minutes}} minutes. If you didn't request this, please ignore this email.</p>`))
)

// Client sends transactional mail through the Brevo HTTP API.
type Client struct {
	apiKey     string
	fromEmail  string
	fromName   string
	url        string
	httpClient *http.Client
	log        *zap.Logger
	configured bool
}

// NewBrevoClient returns an unconfigured client unless all three settings are present.
func NewBrevoClient(apiKey, fromEmail, fromName string, log *zap.Logger) *Client {
	c := &Client{
		url:        brevoAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
	if apiKey != "" && fromEmail != "" && fromName != "" {
		c.apiKey = apiKey
		c.fromEmail = fromEmail
		c.fromName = fromName
		c.configured = true
	}
	return c
}

func (c *Client) IsConfigured() bool { return c.configured }

func (c *Client) SendVerification(ctx context.Context, to, link string, ttl time.Duration) error {
	return c.sendTemplate(ctx, to, "LibaMarket Email Verification", verifyTmpl, link, ttl)
}

func (c *Client) SendPasswordReset(ctx context.Context, to, link string, ttl time.Duration) error {
	return c.sendTemplate(ctx, to, "LibaMarket Password Reset", resetTmpl, link, ttl)
}

func (c *Client) sendTemplate(ctx context.Context, to, subject string, tpl *template.Template, link string, ttl time.Duration) error {
	var buf bytes.Buffer
	data := struct {
		Link    string
		Minutes int
	}{Link: link, Minutes: int(ttl.Minutes())}
	if err := tpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", tpl.Name(), err)
	}
	return c.Send(ctx, to, subject, buf.String())
}

type sendEmailReq struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

func (c *Client) Send(ctx context.Context, to, subject, html string) error {
	if !c.configured {
		return ErrNotConfigured
	}
	if to == "" || subject == "" || html == "" {
		return errors.New("mailer: recipient, subject and content are required")
	}

	body, err := json.Marshal(sendEmailReq{
		Sender:      map[string]string{"email": c.fromEmail, "name": c.fromName},
		To:          []map[string]string{{"email": to}},
		Subject:     subject,
		HTMLContent: html,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build brevo request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("brevo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.Warn("brevo send failed", zap.Int("status", resp.StatusCode), zap.ByteString("body", detail))
		return fmt.Errorf("brevo send failed status=%d", resp.StatusCode)
	}
	c.log.Info("email sent", zap.String("subject", subject))
	return nil
}
