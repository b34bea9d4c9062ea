package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"github.com/fathima-sithara/libamarket/internal/auth"
	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/repository"
	"go.uber.org/zap"
)

const (
	minPasswordLen = 6
	verifyTokenTTL = 10 * time.Minute
	resetTokenTTL  = 10 * time.Minute
)

var errInvalidToken = apperr.Validation("Token is invalid or has expired")

// Session is what register, login and password changes hand back.
// A registration waiting on email verification carries no token.
type Session struct {
	Token            string       `json:"token"`
	User             *domain.User `json:"user"`
	VerificationSent bool         `json:"-"`
}

type Registration struct {
	Name     string
	Email    string
	Phone    string
	Password string
	// LinkBase prefixes the mailed verification link, e.g. https://api.example.com
	LinkBase string
}

type AuthService struct {
	users UserStore
	jwt   *auth.JWTManager
	mail  Mailer
	log   *zap.Logger
	now   func() time.Time
}

// NewAuthService accepts a nil mailer. Without a configured mailer new
// accounts are verified on creation and password reset is unavailable.
func NewAuthService(users UserStore, jwt *auth.JWTManager, mail Mailer, log *zap.Logger) *AuthService {
	return &AuthService{users: users, jwt: jwt, mail: mail, log: log, now: time.Now}
}

func (s *AuthService) mailEnabled() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

func emailNotSent(err error) error {
	return &apperr.Error{Kind: apperr.KindUnavailable, Message: "Email could not be sent", Err: err}
}

func checkNewPassword(p string) error {
	if len(p) < minPasswordLen {
		return apperr.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}
	if len(p) > auth.MaxPasswordBytes {
		return apperr.Validation(fmt.Sprintf("Password can not be longer than %d bytes", auth.MaxPasswordBytes))
	}
	return nil
}

func link(base, path, token string) string {
	return strings.TrimRight(base, "/") + path + token
}

func (s *AuthService) Register(ctx context.Context, r Registration) (*Session, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Name == "" || r.Email == "" {
		return nil, apperr.Validation("Please provide a name and an email")
	}
	if err := checkNewPassword(r.Password); err != nil {
		return nil, err
	}

	_, err := s.users.FindByEmail(ctx, r.Email)
	if err == nil {
		return nil, apperr.Conflict("User already exists with this email")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	verify := s.mailEnabled()
	u := &domain.User{
		Name:       r.Name,
		Email:      r.Email,
		Phone:      strings.TrimSpace(r.Phone),
		Password:   hash,
		IsVerified: !verify,
	}
	var plain string
	if verify {
		var digest string
		if plain, digest, err = auth.NewOneTimeToken(); err != nil {
			return nil, err
		}
		expires := s.now().Add(verifyTokenTTL)
		u.VerificationToken, u.VerificationExpires = digest, &expires
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("User already exists with this email")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", zap.String("user_id", u.ID.Hex()), zap.Bool("verification_sent", verify))
	if !verify {
		return s.session(u)
	}

	if err := s.mail.SendVerification(ctx, u.Email, link(r.LinkBase, "/api/auth/verifyemail/", plain), verifyTokenTTL); err != nil {
		s.log.Error("send verification email", zap.String("user_id", u.ID.Hex()), zap.Error(err))
		if err := s.users.SetVerificationToken(ctx, u.ID, "", time.Time{}); err != nil {
			s.log.Warn("clear verification token", zap.String("user_id", u.ID.Hex()), zap.Error(err))
		}
		return nil, emailNotSent(err)
	}
	return &Session{User: u, VerificationSent: true}, nil
}

// VerifyEmail consumes a mailed verification token and signs the user in.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*Session, error) {
	u, err := s.users.FindByVerificationToken(ctx, auth.HashToken(strings.TrimSpace(token)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("find verification token: %w", err)
	}
	if err := s.users.MarkVerified(ctx, u.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errInvalidToken
		}
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	u.IsVerified = true
	u.VerificationToken, u.VerificationExpires = "", nil
	s.log.Info("email verified", zap.String("user_id", u.ID.Hex()))
	return s.session(u)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("Please provide email and password")
	}
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthenticated("Invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	ok, err := auth.CheckPassword(u.Password, password)
	if err != nil {
		s.log.Warn("unusable password hash", zap.String("user_id", u.ID.Hex()), zap.Error(err))
	}
	if !ok {
		return nil, apperr.Unauthenticated("Invalid credentials")
	}
	if !u.IsVerified {
		return nil, apperr.Unauthenticated("Please verify your email before logging in. Check your inbox.")
	}
	return s.session(u)
}

// Authenticate resolves a bearer token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	uid, err := s.jwt.Validate(token)
	if err != nil {
		return nil, apperr.Unauthenticated("Not authorized, invalid token")
	}
	id, err := domain.ParseID(uid, "user id")
	if err != nil {
		return nil, apperr.Unauthenticated("Not authorized, invalid token")
	}
	u, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthenticated("User belonging to this token no longer exists")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	id, err := domain.ParseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *AuthService) UpdateDetails(ctx context.Context, userID string, name, phone *string) (*domain.User, error) {
	if name == nil && phone == nil {
		return nil, apperr.Validation("Please provide details to update (name or phone)")
	}
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, apperr.Validation("Name cannot be empty")
	}
	id, err := domain.ParseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	u, err := s.users.UpdateDetails(ctx, id, name, phone)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// UpdatePassword checks the current password and issues a fresh token.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, current, next string) (*Session, error) {
	if err := checkNewPassword(next); err != nil {
		return nil, err
	}
	u, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := auth.CheckPassword(u.Password, current)
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return nil, apperr.Unauthenticated("Incorrect current password")
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	u.Password = hash
	return s.session(u)
}

// ForgotPassword mails a reset link. Unknown emails get the same silent
// success so the endpoint does not reveal which accounts exist.
func (s *AuthService) ForgotPassword(ctx context.Context, email, linkBase string) error {
	if !s.mailEnabled() {
		return apperr.Unavailable("Password reset by email is not available")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperr.Validation("Please provide an email")
	}
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	plain, digest, err := auth.NewOneTimeToken()
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, u.ID, digest, s.now().Add(resetTokenTTL)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if err := s.mail.SendPasswordReset(ctx, u.Email, link(linkBase, "/api/auth/resetpassword/", plain), resetTokenTTL); err != nil {
		s.log.Error("send password reset email", zap.String("user_id", u.ID.Hex()), zap.Error(err))
		if err := s.users.SetResetToken(ctx, u.ID, "", time.Time{}); err != nil {
			s.log.Warn("clear reset token", zap.String("user_id", u.ID.Hex()), zap.Error(err))
		}
		return emailNotSent(err)
	}
	return nil
}

// ResetPassword consumes a mailed reset token and issues a fresh session.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) (*Session, error) {
	if password == "" {
		return nil, apperr.Validation("Please provide a new password")
	}
	if err := checkNewPassword(password); err != nil {
		return nil, err
	}
	u, err := s.users.FindByResetToken(ctx, auth.HashToken(strings.TrimSpace(token)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("find reset token: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.ResetPassword(ctx, u.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errInvalidToken
		}
		return nil, fmt.Errorf("reset password: %w", err)
	}
	u.Password = hash
	u.ResetToken, u.ResetExpires = "", nil
	s.log.Info("password reset", zap.String("user_id", u.ID.Hex()))
	return s.session(u)
}

// DeleteAccount removes the user. Their listings and conversations are kept.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	id, err := domain.ParseID(userID, "user id")
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.Info("account deleted", zap.String("user_id", id.Hex()))
	return nil
}

func (s *AuthService) session(u *domain.User) (*Session, error) {
	token, err := s.jwt.Generate(u.ID.Hex())
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, User: u}, nil
}
