package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"github.com/fathima-sithara/libamarket/internal/auth"
	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/repository"
	"github.com/fathima-sithara/libamarket/internal/service/mocks"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newAuthService(t *testing.T) (*AuthService, *mocks.MockUserStore, *auth.JWTManager) {
	t.Helper()
	jwt, err := auth.NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)
	users := mocks.NewMockUserStore(gomock.NewController(t))
	return NewAuthService(users, jwt, nil, zap.NewNop()), users, jwt
}

// newMailingAuthService wires a configured mailer and a fixed clock.
func newMailingAuthService(t *testing.T) (*AuthService, *mocks.MockUserStore, *mocks.MockMailer) {
	t.Helper()
	jwt, err := auth.NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStore(ctrl)
	mail := mocks.NewMockMailer(ctrl)
	mail.EXPECT().IsConfigured().Return(true).AnyTimes()
	svc := NewAuthService(users, jwt, mail, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, users, mail
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func tokenFromLink(t *testing.T, link, prefix string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(link, prefix), link)
	return strings.TrimPrefix(link, prefix)
}

var tooLongPassword = strings.Repeat("p", auth.MaxPasswordBytes+8)

func storedUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return &domain.User{ID: primitive.NewObjectID(), Name: "alice", Email: "alice@example.com", Password: hash, IsVerified: true}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a verified user and return a token", func(t *testing.T) {
		req := require.New(t)
		svc, users, jwt := newAuthService(t)
		users.EXPECT().FindByEmail(gomock.Any(), "alice@example.com").Return(nil, repository.ErrNotFound)
		users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *domain.User) error {
			u.ID = primitive.NewObjectID()
			return nil
		})

		sess, err := svc.Register(ctx, Registration{Name: "alice", Email: " Alice@Example.com ", Password: "secret1"})
		req.NoError(err)
		req.True(sess.User.IsVerified)
		req.NotEqual("secret1", sess.User.Password)

		uid, err := jwt.Validate(sess.Token)
		req.NoError(err)
		req.Equal(sess.User.ID.Hex(), uid)
	})

	t.Run("should refuse a taken email", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)
		users.EXPECT().FindByEmail(gomock.Any(), "alice@example.com").Return(&domain.User{}, nil)

		_, err := svc.Register(ctx, Registration{Name: "alice", Email: "alice@example.com", Password: "secret1"})
		req.True(apperr.Is(err, apperr.KindConflict))
		req.Equal("User already exists with this email", apperr.PublicMessage(err))
	})

	t.Run("should refuse short passwords", func(t *testing.T) {
		req := require.New(t)
		svc, _, _ := newAuthService(t)

		_, err := svc.Register(ctx, Registration{Name: "alice", Email: "alice@example.com", Password: "123"})
		req.True(apperr.Is(err, apperr.KindValidation))
	})

	t.Run("should refuse passwords bcrypt cannot hash", func(t *testing.T) {
		req := require.New(t)
		svc, _, _ := newAuthService(t)

		_, err := svc.Register(ctx, Registration{Name: "alice", Email: "alice@example.com", Password: tooLongPassword})
		req.True(apperr.Is(err, apperr.KindValidation))
		req.Equal("Password can not be longer than 72 bytes", apperr.PublicMessage(err))
	})

	t.Run("should hold the account until the emailed link is used", func(t *testing.T) {
		req := require.New(t)
		svc, users, mail := newMailingAuthService(t)
		var created *domain.User
		users.EXPECT().FindByEmail(gomock.Any(), "alice@example.com").Return(nil, repository.ErrNotFound)
		users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *domain.User) error {
			u.ID = primitive.NewObjectID()
			created = u
			return nil
		})
		var sentLink string
		mail.EXPECT().SendVerification(gomock.Any(), "alice@example.com", gomock.Any(), 10*time.Minute).
			DoAndReturn(func(_ context.Context, _, link string, _ time.Duration) error {
				sentLink = link
				return nil
			})

		sess, err := svc.Register(ctx, Registration{Name: "alice", Email: "alice@example.com", Password: "secret1", LinkBase: "http://api.test/"})
		req.NoError(err)
		req.True(sess.VerificationSent)
		req.Empty(sess.Token)
		req.False(created.IsVerified)

		plain := tokenFromLink(t, sentLink, "http://api.test/api/auth/verifyemail/")
		req.Equal(auth.HashToken(plain), created.VerificationToken)
		req.NotEqual(plain, created.VerificationToken)
		req.True(testNow.Add(10 * time.Minute).Equal(*created.VerificationExpires))
	})

	t.Run("should clear the token when the email fails", func(t *testing.T) {
		req := require.New(t)
		svc, users, mail := newMailingAuthService(t)
		id := primitive.NewObjectID()
		users.EXPECT().FindByEmail(gomock.Any(), "alice@example.com").Return(nil, repository.ErrNotFound)
		users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *domain.User) error {
			u.ID = id
			return nil
		})
		mail.EXPECT().SendVerification(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("brevo send failed status=401"))
		users.EXPECT().SetVerificationToken(gomock.Any(), id, "", time.Time{}).Return(nil)

		_, err := svc.Register(ctx, Registration{Name: "alice", Email: "alice@example.com", Password: "secret1"})
		req.True(apperr.Is(err, apperr.KindUnavailable))
		req.Equal("Email could not be sent", apperr.PublicMessage(err))
	})
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("should verify the owner and sign them in", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newMailingAuthService(t)
		u := storedUser(t, "secret1")
		u.IsVerified = false
		users.EXPECT().FindByVerificationToken(gomock.Any(), auth.HashToken("abc123")).Return(u, nil)
		users.EXPECT().MarkVerified(gomock.Any(), u.ID).Return(nil)

		sess, err := svc.VerifyEmail(ctx, "abc123")
		req.NoError(err)
		req.True(sess.User.IsVerified)
		req.NotEmpty(sess.Token)
	})

	t.Run("should reject unknown or expired tokens", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newMailingAuthService(t)
		users.EXPECT().FindByVerificationToken(gomock.Any(), gomock.Any()).Return(nil, repository.ErrNotFound)

		_, err := svc.VerifyEmail(ctx, "stale")
		req.True(apperr.Is(err, apperr.KindValidation))
		req.Equal("Token is invalid or has expired", apperr.PublicMessage(err))
	})
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("should be unavailable without a mailer", func(t *testing.T) {
		req := require.New(t)
		svc, _, _ := newAuthService(t)

		err := svc.ForgotPassword(ctx, "alice@example.com", "http://api.test")
		req.True(apperr.Is(err, apperr.KindUnavailable))
	})

	t.Run("should answer unknown emails silently", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newMailingAuthService(t)
		users.EXPECT().FindByEmail(gomock.Any(), "nobody@example.com").Return(nil, repository.ErrNotFound)

		req.NoError(svc.ForgotPassword(ctx, "Nobody@example.com", "http://api.test"))
	})

	t.Run("should store the digest and mail the plain token", func(t *testing.T) {
		req := require.New(t)
		svc, users, mail := newMailingAuthService(t)
		u := storedUser(t, "secret1")
		users.EXPECT().FindByEmail(gomock.Any(), "alice@example.com").Return(u, nil)
		var digest string
		users.EXPECT().SetResetToken(gomock.Any(), u.ID, gomock.Any(), testNow.Add(10*time.Minute)).
			DoAndReturn(func(_ context.Context, _ primitive.ObjectID, d string, _ time.Time) error {
				digest = d
				return nil
			})
		var sentLink string
		mail.EXPECT().SendPasswordReset(gomock.Any(), u.Email, gomock.Any(), 10*time.Minute).
			DoAndReturn(func(_ context.Context, _, link string, _ time.Duration) error {
				sentLink = link
				return nil
			})

		req.NoError(svc.ForgotPassword(ctx, "alice@example.com", "http://api.test"))
		plain := tokenFromLink(t, sentLink, "http://api.test/api/auth/resetpassword/")
		req.Equal(digest, auth.HashToken(plain))
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("should replace the password and return a session", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newMailingAuthService(t)
		u := storedUser(t, "secret1")
		users.EXPECT().FindByResetToken(gomock.Any(), auth.HashToken("abc123")).Return(u, nil)
		users.EXPECT().ResetPassword(gomock.Any(), u.ID, gomock.Any()).DoAndReturn(func(_ context.Context, _ primitive.ObjectID, hash string) error {
			ok, err := auth.CheckPassword(hash, "secret2")
			req.NoError(err)
			req.True(ok)
			return nil
		})

		sess, err := svc.ResetPassword(ctx, "abc123", "secret2")
		req.NoError(err)
		req.NotEmpty(sess.Token)
	})

	t.Run("should require a new password", func(t *testing.T) {
		req := require.New(t)
		svc, _, _ := newMailingAuthService(t)

		_, err := svc.ResetPassword(ctx, "abc123", "")
		req.Equal("Please provide a new password", apperr.PublicMessage(err))
	})

	t.Run("should reject an oversized password before touching the store", func(t *testing.T) {
		req := require.New(t)
		svc, _, _ := newMailingAuthService(t)

		_, err := svc.ResetPassword(ctx, "abc123", tooLongPassword)
		req.True(apperr.Is(err, apperr.KindValidation))
	})

	t.Run("should reject expired tokens", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newMailingAuthService(t)
		users.EXPECT().FindByResetToken(gomock.Any(), gomock.Any()).Return(nil, repository.ErrNotFound)

		_, err := svc.ResetPassword(ctx, "stale", "secret2")
		req.Equal("Token is invalid or has expired", apperr.PublicMessage(err))
	})
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("should delete the caller", func(t *testing.T) {
		svc, users, _ := newAuthService(t)
		id := primitive.NewObjectID()
		users.EXPECT().Delete(gomock.Any(), id).Return(nil)

		require.NoError(t, svc.DeleteAccount(ctx, id.Hex()))
	})

	t.Run("should report an already deleted account", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)
		id := primitive.NewObjectID()
		users.EXPECT().Delete(gomock.Any(), id).Return(repository.ErrNotFound)

		err := svc.DeleteAccount(ctx, id.Hex())
		req.True(apperr.Is(err, apperr.KindNotFound))
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("should issue a token for valid credentials", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)
		u := storedUser(t, "secret1")
		users.EXPECT().FindByEmail(gomock.Any(), "alice@example.com").Return(u, nil)

		sess, err := svc.Login(ctx, "alice@example.com", "secret1")
		req.NoError(err)
		req.NotEmpty(sess.Token)
	})

	t.Run("should not reveal which credential was wrong", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)
		u := storedUser(t, "secret1")
		users.EXPECT().FindByEmail(gomock.Any(), "alice@example.com").Return(u, nil)
		users.EXPECT().FindByEmail(gomock.Any(), "nobody@example.com").Return(nil, repository.ErrNotFound)

		_, wrongPassword := svc.Login(ctx, "alice@example.com", "nope")
		_, unknownEmail := svc.Login(ctx, "nobody@example.com", "secret1")
		req.True(apperr.Is(wrongPassword, apperr.KindUnauthenticated))
		req.Equal(apperr.PublicMessage(wrongPassword), apperr.PublicMessage(unknownEmail))
	})

	t.Run("should refuse unverified accounts", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)
		u := storedUser(t, "secret1")
		u.IsVerified = false
		users.EXPECT().FindByEmail(gomock.Any(), "alice@example.com").Return(u, nil)

		_, err := svc.Login(ctx, "alice@example.com", "secret1")
		req.True(apperr.Is(err, apperr.KindUnauthenticated))
		req.Equal("Please verify your email before logging in. Check your inbox.", apperr.PublicMessage(err))
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("should resolve the token owner", func(t *testing.T) {
		req := require.New(t)
		svc, users, jwt := newAuthService(t)
		u := storedUser(t, "secret1")
		token, err := jwt.Generate(u.ID.Hex())
		req.NoError(err)
		users.EXPECT().FindByID(gomock.Any(), u.ID).Return(u, nil)

		got, err := svc.Authenticate(ctx, token)
		req.NoError(err)
		req.Equal(u.ID, got.ID)
	})

	t.Run("should reject tokens for deleted users", func(t *testing.T) {
		req := require.New(t)
		svc, users, jwt := newAuthService(t)
		id := primitive.NewObjectID()
		token, err := jwt.Generate(id.Hex())
		req.NoError(err)
		users.EXPECT().FindByID(gomock.Any(), id).Return(nil, repository.ErrNotFound)

		_, err = svc.Authenticate(ctx, token)
		req.True(apperr.Is(err, apperr.KindUnauthenticated))
		req.Equal("User belonging to this token no longer exists", apperr.PublicMessage(err))
	})

	t.Run("should reject garbage tokens", func(t *testing.T) {
		req := require.New(t)
		svc, _, _ := newAuthService(t)

		_, err := svc.Authenticate(ctx, "not.a.token")
		req.True(apperr.Is(err, apperr.KindUnauthenticated))
	})
}

func TestUpdatePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("should require the current password", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)
		u := storedUser(t, "secret1")
		users.EXPECT().FindByID(gomock.Any(), u.ID).Return(u, nil)

		_, err := svc.UpdatePassword(ctx, u.ID.Hex(), "wrong", "secret2")
		req.True(apperr.Is(err, apperr.KindUnauthenticated))
	})

	t.Run("should reject a new password bcrypt cannot hash", func(t *testing.T) {
		req := require.New(t)
		svc, _, _ := newAuthService(t)

		_, err := svc.UpdatePassword(ctx, primitive.NewObjectID().Hex(), "secret1", tooLongPassword)
		req.True(apperr.Is(err, apperr.KindValidation))
	})

	t.Run("should store the new hash and return a fresh token", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)
		u := storedUser(t, "secret1")
		users.EXPECT().FindByID(gomock.Any(), u.ID).Return(u, nil)
		users.EXPECT().UpdatePassword(gomock.Any(), u.ID, gomock.Any()).DoAndReturn(func(_ context.Context, _ primitive.ObjectID, hash string) error {
			ok, err := auth.CheckPassword(hash, "secret2")
			req.NoError(err)
			req.True(ok)
			return nil
		})

		sess, err := svc.UpdatePassword(ctx, u.ID.Hex(), "secret1", "secret2")
		req.NoError(err)
		req.NotEmpty(sess.Token)
	})
}

func TestUpdateDetails(t *testing.T) {
	t.Run("should refuse an empty update", func(t *testing.T) {
		req := require.New(t)
		svc, _, _ := newAuthService(t)

		_, err := svc.UpdateDetails(context.Background(), primitive.NewObjectID().Hex(), nil, nil)
		req.True(apperr.Is(err, apperr.KindValidation))
	})

	t.Run("should pass changed fields to the store", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)
		id := primitive.NewObjectID()
		name := "alice b"
		users.EXPECT().UpdateDetails(gomock.Any(), id, &name, nil).Return(&domain.User{ID: id, Name: name}, nil)

		got, err := svc.UpdateDetails(context.Background(), id.Hex(), &name, nil)
		req.NoError(err)
		req.Equal(name, got.Name)
	})
}
