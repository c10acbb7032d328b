package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	beepwav "github.com/faiface/beep/wav"
	"github.com/jfreymuth/oggvorbis"
)

var (
	ErrUnsupportedFormat = errors.New("audio: unsupported media format")
	ErrDecode            = errors.New("audio: decode failed")
)

const resampleQuality = 4

// Format names accepted by Decode.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
	FormatOGG = "ogg"
)

// DetectFormat guesses a format from content type, then URL extension,
// then magic bytes.
func DetectFormat(contentType, url string, data []byte) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return FormatMP3
	case strings.Contains(ct, "wav"):
		return FormatWAV
	case strings.Contains(ct, "ogg"), strings.Contains(ct, "vorbis"):
		return FormatOGG
	}
	u := url
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch strings.ToLower(strings.TrimPrefix(path.Ext(u), ".")) {
	case "mp3":
		return FormatMP3
	case "wav":
		return FormatWAV
	case "ogg", "oga":
		return FormatOGG
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG
	case bytes.HasPrefix(data, []byte("ID3")), len(data) > 1 && data[0] == 0xff && data[1]&0xe0 == 0xe0:
		return FormatMP3
	}
	return ""
}

// Decode converts an encoded media file to a pipeline clip.
func Decode(data []byte, format string) (*Clip, error) {
	var (
		s    beep.Streamer
		rate beep.SampleRate
	)
	switch format {
	case FormatMP3:
		st, f, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: mp3: %w", ErrDecode, err)
		}
		defer st.Close()
		s, rate = st, f.SampleRate
	case FormatWAV:
		st, f, err := beepwav.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: wav: %w", ErrDecode, err)
		}
		defer st.Close()
		s, rate = st, f.SampleRate
	case FormatOGG:
		r, err := oggvorbis.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: ogg: %w", ErrDecode, err)
		}
		s, rate = &vorbisStreamer{r: r}, beep.SampleRate(r.SampleRate())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	pcm, err := render(s, rate)
	if err != nil {
		return nil, err
	}
	return NewClip(pcm), nil
}

// render resamples s to SampleRate and downmixes to mono PCM.
func render(s beep.Streamer, rate beep.SampleRate) ([]byte, error) {
	if rate != SampleRate {
		s = beep.Resample(resampleQuality, rate, SampleRate, s)
	}
	buf := make([][2]float64, 1024)
	mono := make([]float64, 0, SampleRate)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			mono = append(mono, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return floatToPCM(mono), nil
}

// vorbisStreamer adapts an Ogg/Vorbis reader to beep.
type vorbisStreamer struct {
	r   *oggvorbis.Reader
	buf []float32
	err error
}

func (v *vorbisStreamer) Stream(samples [][2]float64) (int, bool) {
	ch := v.r.Channels()
	need := len(samples) * ch
	if cap(v.buf) < need {
		v.buf = make([]float32, need)
	}
	n, err := v.r.Read(v.buf[:need])
	frames := n / ch
	for i := 0; i < frames; i++ {
		l := float64(v.buf[i*ch])
		r := l
		if ch > 1 {
			r = float64(v.buf[i*ch+1])
		}
		samples[i] = [2]float64{l, r}
	}
	if err != nil {
		if !errors.Is(err, io.EOF) {
			v.err = err
		}
		return frames, frames > 0
	}
	return frames, true
}

func (v *vorbisStreamer) Err() error {
	return v.err
}

// frameStreamer plays pre-decoded stereo frames.
type frameStreamer struct {
	frames [][2]float64
	pos    int
}

func (f *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	if f.pos >= len(f.frames) {
		return 0, false
	}
	n := copy(samples, f.frames[f.pos:])
	f.pos += n
	return n, true
}

func (f *frameStreamer) Err() error {
	return nil
}
