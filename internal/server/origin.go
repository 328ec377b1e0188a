package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// OriginPolicy decides which browser origins may open a WebSocket.
type OriginPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
	log      zerolog.Logger
}

// NewOriginPolicy builds a policy from configured origins. The entry "*"
// allows every origin; malformed entries are logged and skipped.
func NewOriginPolicy(origins []string, logger zerolog.Logger) *OriginPolicy {
	p := &OriginPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		log:     logger.With().Str("component", "origin").Logger(),
	}

	for _, raw := range origins {
		switch entry := strings.TrimSpace(raw); entry {
		case "":
		case "*":
			p.allowAll = true
		default:
			origin, ok := canonicalOrigin(entry)
			if !ok {
				p.log.Warn().Str("origin", raw).Msg("ignoring invalid origin in configuration")
				continue
			}
			p.allowed[origin] = struct{}{}
		}
	}
	return p
}

// canonicalOrigin reduces an origin to lower-case scheme://host[:port].
func canonicalOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

// Allowed reports whether the Origin header of r is acceptable. Requests
// without an Origin header are refused.
func (p *OriginPolicy) Allowed(r *http.Request) bool {
	origin, ok := canonicalOrigin(r.Header.Get("Origin"))
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, found := p.allowed[origin]
	return found
}

// Check is the upgrader hook. It logs refused origins.
func (p *OriginPolicy) Check(r *http.Request) bool {
	if p.Allowed(r) {
		return true
	}
	p.log.Warn().Str("origin", r.Header.Get("Origin")).Msg("blocked websocket connection from disallowed origin")
	return false
}
