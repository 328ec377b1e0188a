// Package server implements the HTTP and WebSocket transport of the chat
// service.
//
// The hub groups connections by room and fans messages out to them, each
// client runs a read and a write pump, and the handshake is authenticated
// before the upgrade.
package server
