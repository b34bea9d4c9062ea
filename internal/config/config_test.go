package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  env: production
  port: 8081
mongo:
  uri: mongodb://mongo:27017
  db: market
jwt:
  secret: file-secret
  expires_in: 2h
kafka:
  brokers:
    - kafka-1:9092
    - kafka-2:9092
ws:
  ping_interval: 10s
  pong_wait: 30s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearEnv blanks every bound variable; viper ignores empty values.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, names := range legacyEnv {
		for _, n := range names {
			t.Setenv(n, "")
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("should read the yaml file and fill defaults", func(t *testing.T) {
		req := require.New(t)
		clearEnv(t)
		cfg, err := Load(writeConfig(t, sampleYAML))
		req.NoError(err)

		req.Equal(":8081", cfg.App.Addr())
		req.False(cfg.App.Development())
		req.Equal("market", cfg.Mongo.DB)
		req.Equal(2*time.Hour, cfg.JWT.ExpiresIn)
		req.Equal([]string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
		req.Equal("message.created", cfg.Kafka.TopicMessageCreated)
		req.Equal(10*time.Second, cfg.WS.PingInterval)
		req.Equal(256, cfg.WS.SendBuffer)
		req.Equal(int64(65536), cfg.WS.MaxMessageSize)
	})

	t.Run("should let the environment override the file", func(t *testing.T) {
		req := require.New(t)
		clearEnv(t)
		t.Setenv("JWT_SECRET", "env-secret")
		t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
		t.Setenv("PORT", "9090")

		cfg, err := Load(writeConfig(t, sampleYAML))
		req.NoError(err)
		req.Equal("env-secret", cfg.JWT.Secret)
		req.Equal([]string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
		req.Equal(9090, cfg.App.Port)
	})

	t.Run("should read brevo credentials from the legacy names", func(t *testing.T) {
		req := require.New(t)
		clearEnv(t)
		t.Setenv("BREVO_API_KEY", "xkeysib-123")
		t.Setenv("BREVO_FROM_EMAIL", "support@libamarket.com")
		t.Setenv("PUBLIC_URL", "https://api.libamarket.com")

		cfg, err := Load(writeConfig(t, sampleYAML))
		req.NoError(err)
		req.Equal("xkeysib-123", cfg.Mail.BrevoAPIKey)
		req.Equal("support@libamarket.com", cfg.Mail.SenderEmail)
		req.Equal("Libamarket Support", cfg.Mail.SenderName)
		req.Equal("https://api.libamarket.com", cfg.App.PublicURL)
	})

	t.Run("should work without a config file", func(t *testing.T) {
		req := require.New(t)
		clearEnv(t)
		t.Setenv("MONGO_URI", "mongodb://localhost:27017")
		t.Setenv("JWT_SECRET", "s3cret")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		req.NoError(err)
		req.Equal(5000, cfg.App.Port)
		req.Equal("libamarket", cfg.Mongo.DB)
		req.Empty(cfg.Kafka.Brokers)
	})

	t.Run("should reject a config without a jwt secret", func(t *testing.T) {
		req := require.New(t)
		clearEnv(t)
		t.Setenv("MONGO_URI", "mongodb://localhost:27017")

		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		req.EqualError(err, "jwt.secret is required")
	})
}
