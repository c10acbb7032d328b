package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	SampleRate    = 16000
	SampleWidth   = 2
	Channels      = 1
	ChunkSamples  = 512
	ChunkBytes    = ChunkSamples * SampleWidth
	ChunkDuration = time.Second * ChunkSamples / SampleRate
)

// Duration returns the play time of a PCM buffer.
func Duration(pcm []byte) time.Duration {
	samples := len(pcm) / SampleWidth
	return time.Duration(samples) * time.Second / SampleRate
}

// RMS returns the root-mean-square level normalized to [0, 1].
func RMS(pcm []byte) float64 {
	n := len(pcm) / SampleWidth
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Scale returns a copy of pcm with gain applied and clipped.
func Scale(pcm []byte, gain float64) []byte {
	out := make([]byte, len(pcm)-len(pcm)%SampleWidth)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) * gain
		binary.LittleEndian.PutUint16(out[i:], uint16(clip16(s)))
	}
	return out
}

// Split cuts pcm into ChunkBytes frames; the last frame is zero padded.
func Split(pcm []byte) [][]byte {
	out := make([][]byte, 0, len(pcm)/ChunkBytes+1)
	for off := 0; off < len(pcm); off += ChunkBytes {
		chunk := make([]byte, ChunkBytes)
		copy(chunk, pcm[off:min(off+ChunkBytes, len(pcm))])
		out = append(out, chunk)
	}
	return out
}

// Silence returns one silent chunk.
func Silence() []byte {
	return make([]byte, ChunkBytes)
}

func clip16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}

// floatToPCM converts mono float samples in [-1, 1].
func floatToPCM(samples []float64) []byte {
	out := make([]byte, len(samples)*SampleWidth)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clip16(s*32767)))
	}
	return out
}
