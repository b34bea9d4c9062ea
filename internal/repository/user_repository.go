package repository

import (
	"context"
	"strings"
	"time"

	"github.com/fathima-sithara/libamarket/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UserRepository struct {
	coll  *mongo.Collection
	clock func() time.Time
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection("users"), clock: now}
}

func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("email_unique").SetUnique(true),
	})
	return err
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.clock()
	}
	if _, err := r.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var u domain.User
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var u domain.User
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	if err := r.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// FindByIDs skips ids that do not exist.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.User, error) {
	out := []domain.User{}
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDetails sets the non-nil fields and returns the stored user.
func (r *UserRepository) UpdateDetails(ctx context.Context, id primitive.ObjectID, name, phone *string) (*domain.User, error) {
	set := bson.M{}
	if name != nil {
		set["name"] = strings.TrimSpace(*name)
	}
	if phone != nil {
		set["phone"] = strings.TrimSpace(*phone)
	}
	if len(set) == 0 {
		return r.FindByID(ctx, id)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u domain.User
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"password": hash}})
}

// SetVerificationToken stores a token digest; an empty digest clears it.
func (r *UserRepository) SetVerificationToken(ctx context.Context, id primitive.ObjectID, digest string, expires time.Time) error {
	return r.setToken(ctx, id, "verification_token", "verification_expires", digest, expires)
}

// SetResetToken stores a token digest; an empty digest clears it.
func (r *UserRepository) SetResetToken(ctx context.Context, id primitive.ObjectID, digest string, expires time.Time) error {
	return r.setToken(ctx, id, "password_reset_token", "password_reset_expires", digest, expires)
}

func (r *UserRepository) setToken(ctx context.Context, id primitive.ObjectID, tokenField, expiresField, digest string, expires time.Time) error {
	update := bson.M{"$unset": bson.M{tokenField: "", expiresField: ""}}
	if digest != "" {
		update = bson.M{"$set": bson.M{tokenField: digest, expiresField: expires}}
	}
	return r.updateOne(ctx, id, update)
}

// FindByVerificationToken ignores expired tokens.
func (r *UserRepository) FindByVerificationToken(ctx context.Context, digest string) (*domain.User, error) {
	return r.findByToken(ctx, "verification_token", "verification_expires", digest)
}

// FindByResetToken ignores expired tokens.
func (r *UserRepository) FindByResetToken(ctx context.Context, digest string) (*domain.User, error) {
	return r.findByToken(ctx, "password_reset_token", "password_reset_expires", digest)
}

func (r *UserRepository) findByToken(ctx context.Context, tokenField, expiresField, digest string) (*domain.User, error) {
	if digest == "" {
		return nil, ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var u domain.User
	filter := bson.M{tokenField: digest, expiresField: bson.M{"$gt": r.clock()}}
	if err := r.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// MarkVerified flags the account and burns its verification token.
func (r *UserRepository) MarkVerified(ctx context.Context, id primitive.ObjectID) error {
	return r.updateOne(ctx, id, bson.M{
		"$set":   bson.M{"is_verified": true},
		"$unset": bson.M{"verification_token": "", "verification_expires": ""},
	})
}

// ResetPassword replaces the hash and burns the reset token.
func (r *UserRepository) ResetPassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	return r.updateOne(ctx, id, bson.M{
		"$set":   bson.M{"password": hash},
		"$unset": bson.M{"password_reset_token": "", "password_reset_expires": ""},
	})
}

func (r *UserRepository) updateOne(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
