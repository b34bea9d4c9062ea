package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestUserRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("should lowercase the email on create", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		u := &domain.User{Name: "alice", Email: " Alice@Example.COM ", Password: "hash"}
		req.NoError(repo.Create(ctx, u))
		req.False(u.ID.IsZero())
		req.Equal("alice@example.com", u.Email)
		req.False(u.CreatedAt.IsZero())
	})

	mt.Run("should map a duplicate email to ErrDuplicate", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: users index: email_unique",
		}))

		err := repo.Create(ctx, &domain.User{Name: "alice", Email: "alice@example.com"})
		req.ErrorIs(err, ErrDuplicate)
	})

	mt.Run("should find a user by email", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		stored := domain.User{ID: primitive.NewObjectID(), Name: "alice", Email: "alice@example.com"}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "users"), mtest.FirstBatch, toDoc(mt, stored)))

		got, err := repo.FindByEmail(ctx, "ALICE@example.com")
		req.NoError(err)
		req.Equal(stored.ID, got.ID)
		filter := mt.GetStartedEvent().Command.Lookup("filter").Document()
		req.Equal("alice@example.com", filter.Lookup("email").StringValue())
	})

	mt.Run("should report a missing user as not found", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "users"), mtest.FirstBatch))

		_, err := repo.FindByID(ctx, primitive.NewObjectID())
		req.ErrorIs(err, ErrNotFound)
	})

	mt.Run("should skip the query for an empty id list", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)

		got, err := repo.FindByIDs(ctx, nil)
		req.NoError(err)
		req.NotNil(got)
		req.Empty(got)
	})

	mt.Run("should return the updated user", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		id := primitive.NewObjectID()
		updated := domain.User{ID: id, Name: "alice b", Email: "alice@example.com"}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(mt, updated)}))

		name := "  alice b "
		got, err := repo.UpdateDetails(ctx, id, &name, nil)
		req.NoError(err)
		req.Equal("alice b", got.Name)

		set := mt.GetStartedEvent().Command.Lookup("update", "$set").Document()
		req.Equal("alice b", set.Lookup("name").StringValue())
		_, err = set.LookupErr("phone")
		req.Error(err)
	})

	mt.Run("should report a password update for a missing user", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := repo.UpdatePassword(ctx, primitive.NewObjectID(), "hash")
		req.ErrorIs(err, ErrNotFound)
	})

	mt.Run("should only match unexpired verification tokens", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		repo.clock = func() time.Time { return fixed }
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "users"), mtest.FirstBatch))

		_, err := repo.FindByVerificationToken(ctx, "digest")
		req.ErrorIs(err, ErrNotFound)
		filter := mt.GetStartedEvent().Command.Lookup("filter").Document()
		req.Equal("digest", filter.Lookup("verification_token").StringValue())
		req.True(fixed.Equal(filter.Lookup("verification_expires", "$gt").Time()))
	})

	mt.Run("should unset a cleared reset token", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		req.NoError(repo.SetResetToken(ctx, primitive.NewObjectID(), "", time.Time{}))
		unset := mt.GetStartedEvent().Command.Lookup("updates", "0", "u", "$unset").Document()
		_, err := unset.LookupErr("password_reset_token")
		req.NoError(err)
		_, err = unset.LookupErr("password_reset_expires")
		req.NoError(err)
	})

	mt.Run("should burn the reset token with the new password", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		req.NoError(repo.ResetPassword(ctx, primitive.NewObjectID(), "newhash"))
		u := mt.GetStartedEvent().Command.Lookup("updates", "0", "u").Document()
		req.Equal("newhash", u.Lookup("$set", "password").StringValue())
		_, err := u.LookupErr("$unset", "password_reset_token")
		req.NoError(err)
	})

	mt.Run("should report deleting a missing user", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := repo.Delete(ctx, primitive.NewObjectID())
		req.ErrorIs(err, ErrNotFound)
	})
}
