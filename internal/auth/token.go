// Package auth verifies bearer credentials and admits WebSocket handshakes.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidToken is returned when a token is malformed, carries a bad
	// signature or lacks a subject.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token is past its expiry.
	ErrExpiredToken = errors.New("token has expired")
)

// TokenConfig holds the signing parameters of bearer tokens.
type TokenConfig struct {
	SecretKey string
	Issuer    string
	TTL       time.Duration
}

// RevocationList records revoked tokens in a store shared by every instance.
type RevocationList interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// TokenValidator issues, validates and revokes HS256 bearer tokens whose
// subject is the user identity.
type TokenValidator struct {
	config  TokenConfig
	revoked RevocationList
	now     func() time.Time
	log     zerolog.Logger
}

// NewTokenValidator creates a TokenValidator. A nil revocation list disables
// revocation checks.
func NewTokenValidator(config TokenConfig, revoked RevocationList, logger zerolog.Logger) *TokenValidator {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	return &TokenValidator{
		config:  config,
		revoked: revoked,
		now:     time.Now,
		log:     logger.With().Str("component", "tokens").Logger(),
	}
}

// WithClock returns a copy of v that reads the current time from now.
func (v *TokenValidator) WithClock(now func() time.Time) *TokenValidator {
	clone := *v
	clone.now = now
	return &clone
}

// Issue signs a token for identity with the configured lifetime.
func (v *TokenValidator) Issue(identity string) (string, error) {
	return v.IssueWithTTL(identity, v.config.TTL)
}

// IssueWithTTL signs a token for identity that expires after ttl.
func (v *TokenValidator) IssueWithTTL(identity string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", ErrInvalidToken
	}
	now := v.now()
	claims := jwt.RegisteredClaims{
		Issuer:    v.config.Issuer,
		Subject:   identity,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(v.config.SecretKey))
}

// Validate reports whether token is well formed, correctly signed, unexpired
// and not revoked. A revocation list that cannot be reached rejects the token.
func (v *TokenValidator) Validate(ctx context.Context, token string) bool {
	if _, err := v.parse(token); err != nil {
		v.log.Debug().Err(err).Msg("token rejected")
		return false
	}
	if v.revoked == nil {
		return true
	}

	revoked, err := v.revoked.IsRevoked(ctx, token)
	if err != nil {
		v.log.Error().Err(err).Str("kind", "store_unavailable").Msg("revocation check failed; token rejected")
		return false
	}
	if revoked {
		v.log.Warn().Msg("revoked token presented")
		return false
	}
	return true
}

// ExtractIdentity returns the subject of a correctly signed, unexpired token.
func (v *TokenValidator) ExtractIdentity(token string) (string, bool) {
	claims, err := v.parse(token)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// Revoke marks token invalid until its original expiry. Tokens already past
// expiry are left alone.
func (v *TokenValidator) Revoke(ctx context.Context, token string) error {
	claims, err := v.parse(token)
	if errors.Is(err, ErrExpiredToken) {
		return nil
	}
	if err != nil {
		return err
	}
	if v.revoked == nil {
		return errors.New("revocation list not configured")
	}

	ttl := claims.ExpiresAt.Sub(v.now())
	if ttl <= 0 {
		return nil
	}
	return v.revoked.Revoke(ctx, token, ttl)
}

func (v *TokenValidator) parse(tokenString string) (*jwt.RegisteredClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(v.config.SecretKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
