package chat

import "errors"

var (
	// ErrRejectedHandshake marks a connection attempt refused before a session
	// was established.
	ErrRejectedHandshake = errors.New("handshake rejected")
	// ErrIdentityMismatch marks a frame whose declared room or sender
	// disagrees with its session.
	ErrIdentityMismatch = errors.New("identity mismatch")
	// ErrUnresolvableIdentity marks a directory lookup that produced no
	// display name.
	ErrUnresolvableIdentity = errors.New("unresolvable identity")
	// ErrStoreUnavailable marks a failed call to any backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ErrorKind maps an error to a stable label for structured logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRejectedHandshake):
		return "rejected_handshake"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, ErrUnresolvableIdentity):
		return "unresolvable_identity"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	}
	return "unexpected"
}
