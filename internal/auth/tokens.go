package auth

import (
	"errors"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	signTokenFn = func(token *jwt.Token, key []byte) (string, error) { return token.SignedString(key) }
	nowFn       = time.Now
)

// Tokens signs and verifies access and refresh tokens with separate secrets.
type Tokens struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokens(cfg config.AuthConfig) *Tokens {
	return &Tokens{
		accessSecret:  []byte(cfg.JWTSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.JWTExpiresIn,
		refreshTTL:    cfg.RefreshExpiresIn,
	}
}

func (t *Tokens) Issue(p Payload) (TokenPair, error) {
	access, err := t.sign(p, t.accessSecret, t.accessTTL)
	if err != nil {
		return TokenPair{}, apperrors.Internal(err)
	}
	refresh, err := t.sign(p, t.refreshSecret, t.refreshTTL)
	if err != nil {
		return TokenPair{}, apperrors.Internal(err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks an access token. Expired tokens are reported separately
// from malformed or badly signed ones.
func (t *Tokens) Verify(token string) (*Claims, error) {
	return t.parse(token, t.accessSecret)
}

func (t *Tokens) VerifyRefresh(token string) (*Claims, error) {
	return t.parse(token, t.refreshSecret)
}

func (t *Tokens) sign(p Payload, secret []byte, ttl time.Duration) (string, error) {
	now := nowFn()
	claims := Claims{
		Payload: p,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return signTokenFn(jwt.NewWithClaims(jwt.SigningMethodHS256, claims), secret)
}

func (t *Tokens) parse(token string, secret []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(nowFn))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Authentication("Token expired").Wrap(err)
		}
		return nil, apperrors.Authentication("Invalid token").Wrap(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, apperrors.Authentication("Invalid token")
	}
	return claims, nil
}
