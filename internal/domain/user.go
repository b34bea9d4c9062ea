package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Password   string             `bson:"password" json:"-"`
	IsVerified bool               `bson:"is_verified" json:"isVerified"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`

	// Only sha256 digests of mailed tokens are stored.
	VerificationToken   string     `bson:"verification_token,omitempty" json:"-"`
	VerificationExpires *time.Time `bson:"verification_expires,omitempty" json:"-"`
	ResetToken          string     `bson:"password_reset_token,omitempty" json:"-"`
	ResetExpires        *time.Time `bson:"password_reset_expires,omitempty" json:"-"`
}

// PublicUser is the profile attached to messages and conversations.
type PublicUser struct {
	ID    primitive.ObjectID `json:"_id"`
	Name  string             `json:"name"`
	Email string             `json:"email"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}
