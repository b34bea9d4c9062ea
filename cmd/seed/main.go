// Command seed loads users and listings from a yaml fixture for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/fathima-sithara/libamarket/internal/auth"
	"github.com/fathima-sithara/libamarket/internal/config"
	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/logger"
	"github.com/fathima-sithara/libamarket/internal/repository"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type fixture struct {
	Users []struct {
		Name     string `yaml:"name"`
		Email    string `yaml:"email"`
		Phone    string `yaml:"phone"`
		Password string `yaml:"password"`
	} `yaml:"users"`
	Listings []struct {
		Owner       string   `yaml:"owner"`
		Title       string   `yaml:"title"`
		Description string   `yaml:"description"`
		Price       float64  `yaml:"price"`
		Category    string   `yaml:"category"`
		Location    string   `yaml:"location"`
		Images      []string `yaml:"images"`
		Promoted    bool     `yaml:"promoted"`
	} `yaml:"listings"`
}

func loadFixture(path string) (*fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the yaml config file")
	fixturePath := flag.String("fixture", "cmd/seed/fixtures.yaml", "path to the seed data")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(context.Background(), cfg, *fixturePath, log); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, fixturePath string, log *zap.Logger) error {
	f, err := loadFixture(fixturePath)
	if err != nil {
		return err
	}
	client, err := repository.NewMongoClient(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout, cfg.Mongo.MaxRetryTime, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.Mongo.DB)
	users := repository.NewUserRepository(db)
	listings := repository.NewListingRepository(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := listings.EnsureIndexes(ctx); err != nil {
		return err
	}

	owners := map[string]*domain.User{}
	for _, fu := range f.Users {
		hash, err := auth.HashPassword(fu.Password)
		if err != nil {
			return err
		}
		u := &domain.User{Name: fu.Name, Email: fu.Email, Phone: fu.Phone, Password: hash, IsVerified: true}
		err = users.Create(ctx, u)
		if errors.Is(err, repository.ErrDuplicate) {
			if u, err = users.FindByEmail(ctx, fu.Email); err != nil {
				return err
			}
			log.Info("user exists", zap.String("email", fu.Email))
		} else if err != nil {
			return fmt.Errorf("create user %s: %w", fu.Email, err)
		} else {
			log.Info("user created", zap.String("email", u.Email))
		}
		owners[u.Email] = u
	}

	for _, fl := range f.Listings {
		owner, ok := owners[fl.Owner]
		if !ok {
			return fmt.Errorf("listing %q: unknown owner %s", fl.Title, fl.Owner)
		}
		l := &domain.Listing{
			User:        owner.ID,
			Title:       fl.Title,
			Description: fl.Description,
			Price:       fl.Price,
			Category:    fl.Category,
			Location:    fl.Location,
			Images:      fl.Images,
			IsPromoted:  fl.Promoted,
		}
		if err := listings.Create(ctx, l); err != nil {
			return fmt.Errorf("create listing %q: %w", fl.Title, err)
		}
	}
	log.Info("seed complete", zap.Int("users", len(owners)), zap.Int("listings", len(f.Listings)))
	return nil
}
