// Package session owns hub-connection transport primitives.
//
// Ownership boundary:
// - connection timing defaults (handshake, keepalive, write, backoff)
// - handshake/authentication gate
// - bounded outbound audio queue
package session
