package service

//go:generate mockgen -source=ports.go -destination=mocks/ports_mock.go -package=mocks

import (
	"context"
	"time"

	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/presence"
	"github.com/fathima-sithara/libamarket/internal/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatStore interface {
	FindConversationByParticipants(ctx context.Context, a, b primitive.ObjectID) (*domain.Conversation, error)
	FindConversationByID(ctx context.Context, id primitive.ObjectID) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, a, b primitive.ObjectID) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, sender, receiver primitive.ObjectID, body string) (*domain.Message, error)
	ListMessages(ctx context.Context, conversationID primitive.ObjectID) ([]domain.Message, error)
	ListConversationsForUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Conversation, error)
	FindMessageByID(ctx context.Context, id primitive.ObjectID) (*domain.Message, error)
	LatestMessage(ctx context.Context, conversationID primitive.ObjectID) (*domain.Message, error)
}

type UserDirectory interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.User, error)
}

type UserStore interface {
	UserDirectory
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateDetails(ctx context.Context, id primitive.ObjectID, name, phone *string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error
	SetVerificationToken(ctx context.Context, id primitive.ObjectID, digest string, expires time.Time) error
	FindByVerificationToken(ctx context.Context, digest string) (*domain.User, error)
	MarkVerified(ctx context.Context, id primitive.ObjectID) error
	SetResetToken(ctx context.Context, id primitive.ObjectID, digest string, expires time.Time) error
	FindByResetToken(ctx context.Context, digest string) (*domain.User, error)
	ResetPassword(ctx context.Context, id primitive.ObjectID, hash string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type ListingStore interface {
	Create(ctx context.Context, l *domain.Listing) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Listing, error)
	Update(ctx context.Context, id primitive.ObjectID, p domain.ListingPatch) (*domain.Listing, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	Find(ctx context.Context, q domain.ListingQuery) (*domain.ListingPage, error)
}

// Presence is the read side of the registry.
type Presence interface {
	Lookup(userID string) (presence.Handle, bool)
	OnlineUsers() []string
}

type EventPublisher interface {
	PublishMessageCreated(ctx context.Context, msg *domain.Message) error
}

type ImageStorage interface {
	PresignUpload(ctx context.Context, ownerID, contentType string) (*storage.UploadURL, error)
}

// Mailer delivers account links. Unconfigured mailers disable the email flows.
type Mailer interface {
	IsConfigured() bool
	SendVerification(ctx context.Context, to, link string, ttl time.Duration) error
	SendPasswordReset(ctx context.Context, to, link string, ttl time.Duration) error
}
