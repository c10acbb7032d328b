// Package entity owns the device's static capability list.
//
// Ownership boundary:
// - entity definitions registered once at startup
// - current values, mutated through one synchronized path
// - change fan-out to subscribers
// - native API list/state message builders
package entity
