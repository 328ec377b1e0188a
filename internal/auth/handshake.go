package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Mode selects how a handshake binds an identity. Exactly one mode is active
// per endpoint.
type Mode string

const (
	// ModeToken takes the identity from a verified bearer token.
	ModeToken Mode = "token"
	// ModeName takes the identity from the client-supplied display name
	// without any cryptographic check.
	ModeName Mode = "name"
)

// Handshake query parameters.
const (
	RoomParam     = "roomId"
	TokenParam    = "token"
	UsernameParam = "username"
)

// IdentityVerifier is the part of the token validator the handshake needs.
type IdentityVerifier interface {
	Validate(ctx context.Context, token string) bool
	ExtractIdentity(token string) (string, bool)
}

// HandshakeError describes a refused connection attempt. It unwraps to
// chat.ErrRejectedHandshake.
type HandshakeError struct {
	Status int
	Reason string
}

func (e *HandshakeError) Error() string {
	return "handshake rejected: " + e.Reason
}

// Unwrap returns chat.ErrRejectedHandshake.
func (e *HandshakeError) Unwrap() error {
	return chat.ErrRejectedHandshake
}

func reject(status int, reason string) error {
	return &HandshakeError{Status: status, Reason: reason}
}

// Authenticator resolves the identity and room of a connection attempt before
// any application frame is accepted.
type Authenticator struct {
	mode   Mode
	tokens IdentityVerifier
	newID  func() string
	now    func() time.Time
	log    zerolog.Logger
}

// NewAuthenticator creates an Authenticator for mode. ModeToken requires a
// verifier.
func NewAuthenticator(mode Mode, tokens IdentityVerifier, logger zerolog.Logger) (*Authenticator, error) {
	switch mode {
	case ModeToken:
		if tokens == nil {
			return nil, fmt.Errorf("auth mode %q requires a token verifier", mode)
		}
	case ModeName:
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}

	return &Authenticator{
		mode:   mode,
		tokens: tokens,
		newID:  uuid.NewString,
		now:    time.Now,
		log:    logger.With().Str("component", "handshake").Str("mode", string(mode)).Logger(),
	}, nil
}

// Mode returns the active binding mode.
func (a *Authenticator) Mode() Mode { return a.mode }

// Authenticate inspects the handshake request and returns the session to
// attach to the new connection. Rejections have no side effects.
func (a *Authenticator) Authenticate(r *http.Request) (*chat.Session, error) {
	query := r.URL.Query()

	roomID := strings.TrimSpace(query.Get(RoomParam))
	if roomID == "" {
		a.log.Warn().Str("kind", "rejected_handshake").Str("remote_addr", r.RemoteAddr).Msg("no room id in handshake request")
		return nil, reject(http.StatusBadRequest, "missing room id")
	}

	identity, err := a.resolveIdentity(r)
	if err != nil {
		a.log.Warn().Err(err).Str("kind", "rejected_handshake").Str("room_id", roomID).Str("remote_addr", r.RemoteAddr).Msg("handshake refused")
		return nil, err
	}

	sess := chat.NewSession(a.newID(), identity, roomID, a.now())
	a.log.Info().
		Str("user_id", identity).
		Str("room_id", roomID).
		Str("conn_id", sess.ID()).
		Msg("handshake accepted")
	return sess, nil
}

func (a *Authenticator) resolveIdentity(r *http.Request) (string, error) {
	if a.mode == ModeName {
		// Query values arrive URL-decoded.
		name := strings.TrimSpace(r.URL.Query().Get(UsernameParam))
		if name == "" {
			return "", reject(http.StatusUnauthorized, "missing username")
		}
		return name, nil
	}

	token := bearerToken(r)
	if token == "" {
		return "", reject(http.StatusUnauthorized, "missing token")
	}
	if !a.tokens.Validate(r.Context(), token) {
		return "", reject(http.StatusUnauthorized, "invalid token")
	}
	identity, ok := a.tokens.ExtractIdentity(token)
	if !ok || identity == "" {
		return "", reject(http.StatusUnauthorized, "token carries no identity")
	}
	// Subjects are bound verbatim; padded ones would alias another identity.
	if identity != strings.TrimSpace(identity) {
		return "", reject(http.StatusUnauthorized, "token identity has surrounding whitespace")
	}
	return identity, nil
}

// bearerToken reads the Authorization header first and falls back to the
// token query parameter, which browsers need for WebSocket handshakes.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get(TokenParam))
}
