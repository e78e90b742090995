package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/user"
	"github.com/agehcx/hiking-app-sub000/internal/validation"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const invalidCredentials = "Invalid email or password"

// Work factors below minBcryptCost are replaced by defaultBcryptCost.
const (
	minBcryptCost     = 10
	defaultBcryptCost = 12
)

var hashPasswordFn = bcrypt.GenerateFromPassword

// UserStore is the persistence the auth flows need.
type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	FindConflict(ctx context.Context, email, username string) (string, error)
	FindActiveByEmail(ctx context.Context, email string) (user.User, error)
	FindActiveByID(ctx context.Context, id string) (user.User, error)
	TouchLastLogin(ctx context.Context, id string) (time.Time, error)
}

type Service struct {
	users  UserStore
	tokens *Tokens
	cost   int
	log    *zap.Logger
}

func NewService(users UserStore, tokens *Tokens, bcryptCost int, log *zap.Logger) *Service {
	if bcryptCost < minBcryptCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = defaultBcryptCost
	}
	return &Service{users: users, tokens: tokens, cost: bcryptCost, log: log}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (user.User, TokenPair, error) {
	if err := validateRegister(req); err != nil {
		return user.User{}, TokenPair{}, err
	}

	email := user.NormalizeEmail(req.Email)
	username := user.NormalizeUsername(req.Username)
	field, err := s.users.FindConflict(ctx, email, username)
	if err != nil {
		return user.User{}, TokenPair{}, err
	}
	if field != "" {
		return user.User{}, TokenPair{}, conflict(field)
	}

	hash, err := hashPasswordFn([]byte(req.Password), s.cost)
	if err != nil {
		return user.User{}, TokenPair{}, apperrors.Internal(err)
	}

	created, err := s.users.Create(ctx, user.New(email, username, string(hash), req.FirstName, req.LastName, req.Experience))
	if err != nil {
		// A concurrent registration can still win the unique index.
		if appErr, ok := apperrors.As(err); ok && appErr.Kind == apperrors.KindDuplicateKey {
			return user.User{}, TokenPair{}, conflict(appErr.Field)
		}
		return user.User{}, TokenPair{}, err
	}

	tokens, err := s.tokens.Issue(payloadOf(created))
	if err != nil {
		return user.User{}, TokenPair{}, err
	}
	s.log.Info("user registered", zap.String("user_id", created.ID), zap.String("username", created.Username))
	return created, tokens, nil
}

// Login fails identically for unknown, inactive and wrong-password accounts.
func (s *Service) Login(ctx context.Context, req LoginRequest) (user.User, TokenPair, error) {
	if req.Email == "" || req.Password == "" {
		return user.User{}, TokenPair{}, apperrors.Validation("Email and password are required")
	}
	email := user.NormalizeEmail(req.Email)
	if err := validation.Var("email", email, "email"); err != nil {
		return user.User{}, TokenPair{}, err
	}

	u, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return user.User{}, TokenPair{}, apperrors.Unauthorized(invalidCredentials)
		}
		return user.User{}, TokenPair{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return user.User{}, TokenPair{}, apperrors.Unauthorized(invalidCredentials)
	}

	at, err := s.users.TouchLastLogin(ctx, u.ID)
	if err != nil {
		return user.User{}, TokenPair{}, err
	}
	u.LastLogin = &at

	tokens, err := s.tokens.Issue(payloadOf(u))
	if err != nil {
		return user.User{}, TokenPair{}, err
	}
	s.log.Info("user logged in", zap.String("user_id", u.ID))
	return u, tokens, nil
}

// Refresh exchanges a valid refresh token for a new pair, provided the
// account is still active.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, apperrors.Validation("Refresh token is required").WithField("refreshToken")
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	u, err := s.users.FindActiveByID(ctx, claims.UserID)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) || apperrors.Is(err, apperrors.KindCast) {
			return TokenPair{}, apperrors.Authentication("Invalid token")
		}
		return TokenPair{}, err
	}
	return s.tokens.Issue(payloadOf(u))
}

func (s *Service) Me(ctx context.Context, userID string) (user.User, error) {
	return s.users.FindActiveByID(ctx, userID)
}

func (s *Service) Tokens() *Tokens {
	return s.tokens
}

func validateRegister(req RegisterRequest) error {
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.FirstName) == "" ||
		strings.TrimSpace(req.LastName) == "" || strings.TrimSpace(req.Username) == "" {
		return apperrors.Validation("All fields are required: email, password, firstName, lastName, username")
	}
	if err := validation.Var("email", user.NormalizeEmail(req.Email), "email"); err != nil {
		return err
	}
	if utf8.RuneCountInString(req.Password) < 6 {
		return apperrors.Validation("Password must be at least 6 characters long").WithField("password")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(req.Username)); n < 3 || n > 30 {
		return apperrors.Validation("Username must be between 3 and 30 characters").WithField("username")
	}
	if err := validation.Var("firstName", strings.TrimSpace(req.FirstName), "max=50"); err != nil {
		return err
	}
	if err := validation.Var("lastName", strings.TrimSpace(req.LastName), "max=50"); err != nil {
		return err
	}
	return validation.Var("experience", req.Experience, "omitempty,oneof=beginner intermediate advanced expert")
}

func conflict(field string) error {
	return apperrors.Conflict(field, "User with this "+field+" already exists")
}

func payloadOf(u user.User) Payload {
	return Payload{UserID: u.ID, Email: u.Email, Username: u.Username}
}
