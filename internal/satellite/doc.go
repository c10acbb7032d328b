// Package satellite owns the hub-facing device emulation.
//
// Ownership boundary:
// - the single authoritative hub connection (accept or dial)
// - handshake, keepalive and disconnect handling
// - serialized frame writes and the outbound audio pump
// - routing hub messages to the entity registry, command dispatcher and
//   voice pipeline
// - the optional admin HTTP surface
// - service wiring and lifecycle
package satellite
