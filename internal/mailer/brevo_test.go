package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewBrevoClient("key-123", "support@libamarket.com", "Libamarket Support", zap.NewNop())
	c.url = srv.URL
	return c
}

func TestNewBrevoClient(t *testing.T) {
	t.Run("should stay unconfigured without credentials", func(t *testing.T) {
		req := require.New(t)
		c := NewBrevoClient("", "support@libamarket.com", "Libamarket Support", zap.NewNop())

		req.False(c.IsConfigured())
		req.ErrorIs(c.Send(context.Background(), "a@example.com", "s", "<p>x</p>"), ErrNotConfigured)
	})
}

func TestSendVerification(t *testing.T) {
	t.Run("should post the rendered link to brevo", func(t *testing.T) {
		req := require.New(t)
		var got sendEmailReq
		var apiKey string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			apiKey = r.Header.Get("api-key")
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusCreated)
		})

		link := "http://localhost:5000/api/auth/verifyemail/abc123"
		req.NoError(c.SendVerification(context.Background(), "alice@example.com", link, 10*time.Minute))
		req.Equal("key-123", apiKey)
		req.Equal("alice@example.com", got.To[0]["email"])
		req.Equal("support@libamarket.com", got.Sender["email"])
		req.Equal("LibaMarket Email Verification", got.Subject)
		req.Contains(got.HTMLContent, link)
		req.Contains(got.HTMLContent, "10 minutes")
	})

	t.Run("should surface api failures", func(t *testing.T) {
		req := require.New(t)
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"unauthorized"}`))
		})

		err := c.SendPasswordReset(context.Background(), "alice@example.com", "http://x/reset/abc", 10*time.Minute)
		req.ErrorContains(err, "status=401")
	})
}
