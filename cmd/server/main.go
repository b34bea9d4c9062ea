package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fathima-sithara/libamarket/internal/api"
	"github.com/fathima-sithara/libamarket/internal/auth"
	"github.com/fathima-sithara/libamarket/internal/config"
	"github.com/fathima-sithara/libamarket/internal/events"
	"github.com/fathima-sithara/libamarket/internal/logger"
	"github.com/fathima-sithara/libamarket/internal/mailer"
	"github.com/fathima-sithara/libamarket/internal/metrics"
	"github.com/fathima-sithara/libamarket/internal/presence"
	"github.com/fathima-sithara/libamarket/internal/repository"
	"github.com/fathima-sithara/libamarket/internal/service"
	"github.com/fathima-sithara/libamarket/internal/storage"
	"github.com/fathima-sithara/libamarket/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type publisher interface {
	service.EventPublisher
	Close() error
}

// Server holds the process-wide dependencies.
type Server struct {
	cfg    *config.Config
	log    *zap.Logger
	app    *fiber.App
	mongo  *mongo.Client
	redis  *redis.Client
	events publisher
	hub    *ws.Hub

	// stops background workers such as limiter cleanup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{cfg: cfg, log: log, ctx: ctx, cancel: cancel}

	client, err := repository.NewMongoClient(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout, cfg.Mongo.MaxRetryTime, log)
	if err != nil {
		cancel()
		return nil, err
	}
	s.mongo = client
	db := client.Database(cfg.Mongo.DB)

	users := repository.NewUserRepository(db)
	chats := repository.NewChatRepository(db, log)
	listings := repository.NewListingRepository(db)
	for name, ix := range map[string]interface{ EnsureIndexes(context.Context) error }{
		"users": users, "chat": chats, "listings": listings,
	} {
		if err := ix.EnsureIndexes(ctx); err != nil {
			s.close()
			return nil, fmt.Errorf("ensure %s indexes: %w", name, err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if len(cfg.Kafka.Brokers) > 0 {
		s.events = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageCreated, events.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
		}, log)
		log.Info("kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		s.events = events.NopPublisher{}
		log.Info("kafka not configured, domain events disabled")
	}

	var images service.ImageStorage
	if cfg.S3.Bucket != "" {
		p, err := storage.NewS3Presigner(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.PresignTTL)
		if err != nil {
			s.close()
			return nil, err
		}
		images = p
	}

	jwt, err := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	if err != nil {
		s.close()
		return nil, err
	}

	var limiter fiber.Handler
	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			log.Warn("redis ping failed, limiter fails open until it recovers", zap.Error(err))
		}
		limiter = api.NewRedisRateLimiter(s.redis, cfg.Redis.Prefix, cfg.RateLimit.Limit, cfg.RateLimit.Window, m, log).Middleware(api.ByIP)
	} else {
		limiter = api.NewIPRateLimiter(ctx, cfg.RateLimit.Limit, cfg.RateLimit.Window, m, log).Middleware(api.ByIP)
	}

	registry := presence.NewRegistry()
	s.hub = ws.NewHub(registry, ws.Options{
		PingInterval:   cfg.WS.PingInterval,
		PongWait:       cfg.WS.PongWait,
		WriteDeadline:  cfg.WS.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
	}, m, log)

	mail := mailer.NewBrevoClient(cfg.Mail.BrevoAPIKey, cfg.Mail.SenderEmail, cfg.Mail.SenderName, log)
	if !mail.IsConfigured() {
		log.Info("brevo not configured, accounts are verified on registration and password reset is disabled")
	}

	authSvc := service.NewAuthService(users, jwt, mail, log)
	s.app = api.NewApp(api.AppOptions{FrontendURL: cfg.App.FrontendURL}, log)
	api.Register(s.app, api.Routes{
		Auth:      api.NewAuthHandler(authSvc, cfg.App.PublicURL),
		Listings:  api.NewListingHandler(service.NewListingService(listings, images, log)),
		Chat:      api.NewChatHandler(service.NewMessagingService(chats, users, registry, s.events, m, log)),
		Hub:       s.hub,
		Authn:     authSvc,
		Tokens:    jwt,
		RateLimit: limiter,
		Metrics:   m,
		Log:       log,
	})
	return s, nil
}

func (s *Server) Start() {
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.App.Addr()), zap.String("env", s.cfg.App.Env))
		if err := s.app.Listen(s.cfg.App.Addr()); err != nil {
			s.log.Fatal("fiber server exited", zap.Error(err))
		}
	}()
}

// Shutdown stops accepting requests, closes sockets, then releases clients.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		s.log.Error("fiber shutdown", zap.Error(err))
	}
	s.hub.Close()
	s.close()
	s.log.Info("stopped")
}

func (s *Server) close() {
	s.cancel()
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.log.Error("close kafka publisher", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Error("close redis", zap.Error(err))
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Disconnect(context.Background()); err != nil {
			s.log.Error("disconnect mongo", zap.Error(err))
		}
	}
}

func main() {
	path := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.App.Development())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	server, err := NewServer(cfg, log)
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", zap.String("signal", sig.String()))
	server.Shutdown()
}
