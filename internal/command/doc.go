// Package command owns hub-triggered command dispatch.
//
// Ownership boundary:
// - static key -> handler table, fixed at startup
// - validation and destructive-command policy
// - bounded worker pool so slow handlers never stall the caller
// - process-backed executor for host commands
package command
