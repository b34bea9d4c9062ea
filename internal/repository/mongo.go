package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/libamarket/internal/apperr"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const opTimeout = 5 * time.Second

var (
	ErrNotFound  = apperr.NotFound("Resource not found")
	ErrDuplicate = apperr.Conflict("Resource already exists")
)

// NewMongoClient connects and pings, retrying with exponential backoff until
// maxElapsed has passed.
func NewMongoClient(ctx context.Context, uri string, timeout, maxElapsed time.Duration, log *zap.Logger) (*mongo.Client, error) {
	var client *mongo.Client
	operation := func() error {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		c, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
		if err != nil {
			// a bad uri will not fix itself
			return backoff.Permanent(err)
		}
		if err := c.Ping(cctx, readpref.Primary()); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	notify := func(err error, wait time.Duration) {
		log.Warn("mongo not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return client, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// now is truncated to what a BSON datetime can hold so stored and returned values match.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
