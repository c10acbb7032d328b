// Package voice runs the satellite's voice session state machine.
//
// Ownership boundary:
// - Pipeline owns conversational state, ducking, and announcement ordering.
// - Capture and inference workers feed it through bounded queues only.
// - Timers are independent of the hub connection and survive reconnects.
// - WakeWords owns the active wake word set and its preferences file.
package voice
