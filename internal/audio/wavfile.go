package audio

import (
	"fmt"
	"os"

	"github.com/faiface/beep"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// LoadWAV reads a local WAV file of any rate, depth or channel count into
// a pipeline clip.
func LoadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid wav file", ErrDecode, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	chans := int(d.NumChans)
	if chans < 1 {
		chans = 1
	}
	depth := int(d.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	full := float64(int64(1) << (depth - 1))

	frames := make([][2]float64, len(buf.Data)/chans)
	for i := range frames {
		l := float64(buf.Data[i*chans]) / full
		r := l
		if chans > 1 {
			r = float64(buf.Data[i*chans+1]) / full
		}
		frames[i] = [2]float64{l, r}
	}
	pcm, err := render(&frameStreamer{frames: frames}, beep.SampleRate(d.SampleRate))
	if err != nil {
		return nil, err
	}
	return NewClip(pcm), nil
}

// WriteWAV stores pipeline PCM as a 16 kHz mono 16-bit WAV file.
func WriteWAV(path string, pcm []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, SampleRate, 16, Channels, 1)
	data := make([]int, len(pcm)/SampleWidth)
	for i := range data {
		data[i] = int(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
