// Package chat implements the message routing and presence coordination core
// of the room chat service.
//
// The Router validates, sanitizes, persists and broadcasts messages and keeps
// room presence and activity bookkeeping up to date. The Lifecycle type
// observes connection establishment and teardown and funnels explicit and
// implicit leaves through the same path. Every backing store is reached through
// the small interfaces in ports.go so that the durable message log, the
// ephemeral presence store and the broadcast channel can fail independently.
package chat
