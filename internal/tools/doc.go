// Package tools provides host helpers shared by command handlers.
//
// Ownership boundary:
// - context-bound external process execution
// - exit-code normalization
package tools
