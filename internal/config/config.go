package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env         string `mapstructure:"env"`
	Port        int    `mapstructure:"port"`
	FrontendURL string `mapstructure:"frontend_url"`
	// PublicURL is the externally reachable base of this API, used in mailed links.
	PublicURL string `mapstructure:"public_url"`
}

func (a *AppConfig) Addr() string { return fmt.Sprintf(":%d", a.Port) }

func (a *AppConfig) Development() bool { return a.Env != "production" }

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	DB             string        `mapstructure:"db"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxRetryTime   time.Duration `mapstructure:"max_retry_time"`
}

type JWTConfig struct {
	Secret    string        `mapstructure:"secret"`
	ExpiresIn time.Duration `mapstructure:"expires_in"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type KafkaConfig struct {
	Brokers             []string `mapstructure:"brokers"`
	TopicMessageCreated string   `mapstructure:"topic_message_created"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteDeadline  time.Duration `mapstructure:"write_deadline"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type S3Config struct {
	Region     string        `mapstructure:"region"`
	Bucket     string        `mapstructure:"bucket"`
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
}

type MailConfig struct {
	BrevoAPIKey string `mapstructure:"brevo_api_key"`
	SenderEmail string `mapstructure:"sender_email"`
	SenderName  string `mapstructure:"sender_name"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	WS        WSConfig        `mapstructure:"ws"`
	S3        S3Config        `mapstructure:"s3"`
	Mail      MailConfig      `mapstructure:"mail"`
}

// env names kept for deployments that predate the nested keys
var legacyEnv = map[string][]string{
	"app.env":            {"APP_ENV", "NODE_ENV"},
	"app.port":           {"APP_PORT", "PORT"},
	"app.frontend_url":   {"APP_FRONTEND_URL", "FRONTEND_URL"},
	"app.public_url":     {"APP_PUBLIC_URL", "PUBLIC_URL"},
	"mongo.uri":          {"MONGO_URI", "MONGODB_URI"},
	"mongo.db":           {"MONGO_DB", "MONGODB_DB"},
	"jwt.secret":         {"JWT_SECRET"},
	"jwt.expires_in":     {"JWT_EXPIRES_IN", "JWT_EXPIRE"},
	"redis.addr":         {"REDIS_ADDR"},
	"redis.password":     {"REDIS_PASSWORD"},
	"kafka.brokers":      {"KAFKA_BROKERS", "KAFKA_BROKER"},
	"s3.region":          {"S3_REGION", "AWS_REGION"},
	"s3.bucket":          {"S3_BUCKET"},
	"mail.brevo_api_key": {"MAIL_BREVO_API_KEY", "BREVO_API_KEY"},
	"mail.sender_email":  {"MAIL_SENDER_EMAIL", "BREVO_FROM_EMAIL"},
	"mail.sender_name":   {"MAIL_SENDER_NAME", "BREVO_FROM_NAME"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 5000)
	v.SetDefault("app.frontend_url", "*")
	v.SetDefault("app.public_url", "")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.db", "libamarket")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)
	v.SetDefault("mongo.max_retry_time", 30*time.Second)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expires_in", 30*24*time.Hour)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "libamarket:ratelimit")
	v.SetDefault("rate_limit.limit", 100)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_message_created", "message.created")
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("ws.ping_interval", 25*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.write_deadline", 10*time.Second)
	v.SetDefault("ws.max_message_size", 65536)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.presign_ttl", 15*time.Minute)
	v.SetDefault("mail.brevo_api_key", "")
	v.SetDefault("mail.sender_email", "")
	v.SetDefault("mail.sender_name", "Libamarket Support")
}

// Load reads .env, then the optional yaml file at path, then the environment.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList accepts both yaml lists and a single comma separated env value.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func validate(c *Config) error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return errors.New("app.port missing or invalid")
	}
	if c.Mongo.URI == "" {
		return errors.New("mongo.uri is required")
	}
	if c.Mongo.DB == "" {
		return errors.New("mongo.db is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.JWT.ExpiresIn <= 0 {
		return errors.New("jwt.expires_in must be positive")
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate_limit.limit and rate_limit.window must be positive")
	}
	if c.WS.PongWait <= c.WS.PingInterval {
		return errors.New("ws.pong_wait must be longer than ws.ping_interval")
	}
	if c.WS.SendBuffer <= 0 {
		return errors.New("ws.send_buffer must be positive")
	}
	return nil
}
