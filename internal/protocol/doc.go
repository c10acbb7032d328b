// Package protocol owns the native API message set and its codec.
//
// Ownership boundary:
// - typed messages and their protobuf field layout
// - type-id registry and frame <-> message conversion
// - frame/fields/schema primitives live in subpackages
package protocol
