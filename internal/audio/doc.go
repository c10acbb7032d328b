// Package audio owns PCM plumbing for the voice pipeline.
//
// All PCM is 16 kHz, 16-bit little-endian, mono, moved in ChunkBytes
// frames.
//
// Ownership boundary:
// - PCM helpers, energy VAD, synthesized chimes
// - in-memory clips and live chunk streams
// - WAV/MP3/Ogg decode to pipeline PCM, remote media fetch and cache
// - null devices and the optional portaudio device
package audio
