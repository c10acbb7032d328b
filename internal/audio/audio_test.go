package audio

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/satellite/internal/testutil/testlog"
)

func TestSplitPadsLastChunk(t *testing.T) {
	testlog.Start(t)

	chunks := Split(make([]byte, ChunkBytes+10))
	if len(chunks) != 2 {
		t.Fatalf("chunk count mismatch: got=%d want=2", len(chunks))
	}
	for i, c := range chunks {
		if len(c) != ChunkBytes {
			t.Fatalf("chunk %d size mismatch: got=%d want=%d", i, len(c), ChunkBytes)
		}
	}
}

func TestDurationAndChunkDuration(t *testing.T) {
	testlog.Start(t)

	if got := Duration(make([]byte, SampleRate*SampleWidth)); got != time.Second {
		t.Fatalf("duration mismatch: got=%v want=1s", got)
	}
	if ChunkDuration != 32*time.Millisecond {
		t.Fatalf("chunk duration mismatch: got=%v", ChunkDuration)
	}
}

func TestScaleClipsAndAttenuates(t *testing.T) {
	testlog.Start(t)

	tone := Tone(440, 100*time.Millisecond, 0.5)
	base := RMS(tone.Chunks[1])
	half := RMS(Scale(tone.Chunks[1], 0.5))
	if math.Abs(half-base/2) > 0.01 {
		t.Fatalf("attenuated rms mismatch: got=%f want=%f", half, base/2)
	}
	loud := RMS(Scale(tone.Chunks[1], 100))
	if loud > 1 {
		t.Fatalf("clipped rms out of range: got=%f", loud)
	}
}

func TestEnergyVAD(t *testing.T) {
	testlog.Start(t)

	vad := NewEnergyVAD(0)
	if vad.IsSpeech(Silence()) {
		t.Fatalf("silence flagged as speech")
	}
	if !vad.IsSpeech(Tone(300, 64*time.Millisecond, 0.3).Chunks[0]) {
		t.Fatalf("tone not flagged as speech")
	}
}

func TestClipRepeatInsertsGap(t *testing.T) {
	testlog.Start(t)

	c := &Clip{Chunks: [][]byte{{1, 1}, {2, 2}}}
	r := c.Repeat(2, 1)
	if r.Len() != 5 {
		t.Fatalf("repeat len mismatch: got=%d want=5", r.Len())
	}
	if RMS(r.Chunks[2]) != 0 {
		t.Fatalf("expected silent gap chunk")
	}
}

func drain(t *testing.T, s Stream) int {
	t.Helper()
	n := 0
	for {
		_, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return n
		}
		if err != nil {
			t.Fatalf("stream next: %v", err)
		}
		n++
	}
}

func TestChunkStreamDrainsAfterClose(t *testing.T) {
	testlog.Start(t)

	s := NewChunkStream(2)
	if !s.Push(Silence()) || !s.Push(Silence()) {
		t.Fatalf("expected pushes to succeed")
	}
	if s.Push(Silence()) {
		t.Fatalf("expected push on full stream to drop")
	}
	if s.Dropped() != 1 {
		t.Fatalf("dropped mismatch: got=%d want=1", s.Dropped())
	}
	s.Close()
	if s.Push(Silence()) {
		t.Fatalf("expected push after close to fail")
	}
	if got := drain(t, s); got != 2 {
		t.Fatalf("drained mismatch: got=%d want=2", got)
	}
}

func TestChunkStreamHonorsContext(t *testing.T) {
	testlog.Start(t)

	s := NewChunkStream(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func writeTone(t *testing.T, dir string) (string, *Clip) {
	t.Helper()
	clip := Tone(440, 200*time.Millisecond, 0.5)
	var pcm []byte
	for _, c := range clip.Chunks {
		pcm = append(pcm, c...)
	}
	path := filepath.Join(dir, "tone.wav")
	if err := WriteWAV(path, pcm); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path, clip
}

func TestWAVRoundTrip(t *testing.T) {
	testlog.Start(t)

	path, clip := writeTone(t, t.TempDir())
	got, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("load wav: %v", err)
	}
	if got.Len() != clip.Len() {
		t.Fatalf("chunk count mismatch: got=%d want=%d", got.Len(), clip.Len())
	}
	if math.Abs(RMS(got.Chunks[1])-RMS(clip.Chunks[1])) > 0.01 {
		t.Fatalf("level mismatch after round trip")
	}
}

func TestLoadWAVRejectsGarbage(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadWAV(path); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestDecodeWAVBytes(t *testing.T) {
	testlog.Start(t)

	path, clip := writeTone(t, t.TempDir())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := Decode(data, DetectFormat("", path, data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Len() != clip.Len() {
		t.Fatalf("chunk count mismatch: got=%d want=%d", got.Len(), clip.Len())
	}
}

func TestDecodeUnsupported(t *testing.T) {
	testlog.Start(t)

	if _, err := Decode([]byte{1, 2, 3}, "flac"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		ct, url string
		data    []byte
		want    string
	}{
		{ct: "audio/mpeg", want: FormatMP3},
		{ct: "audio/x-wav", want: FormatWAV},
		{url: "http://hub/tts/abc.ogg?x=1", want: FormatOGG},
		{url: "http://hub/tts/abc.MP3", want: FormatMP3},
		{data: []byte("RIFF...."), want: FormatWAV},
		{data: []byte("OggS...."), want: FormatOGG},
		{data: []byte{0xff, 0xfb, 0x90}, want: FormatMP3},
		{data: []byte{1, 2}, want: ""},
	}
	for _, tc := range cases {
		if got := DetectFormat(tc.ct, tc.url, tc.data); got != tc.want {
			t.Fatalf("detect ct=%q url=%q: got=%q want=%q", tc.ct, tc.url, got, tc.want)
		}
	}
}

func TestFetcherCachesDecodedClip(t *testing.T) {
	testlog.Start(t)

	path, clip := writeTone(t, t.TempDir())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{}, srv.Client())
	defer f.Close()
	for i := 0; i < 3; i++ {
		got, err := f.Load(context.Background(), srv.URL+"/tts/reply")
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if got.Len() != clip.Len() {
			t.Fatalf("chunk count mismatch: got=%d want=%d", got.Len(), clip.Len())
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one download, got=%d", hits.Load())
	}
}

func TestFetcherHTTPStatus(t *testing.T) {
	testlog.Start(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	f := NewFetcher(FetchConfig{}, srv.Client())
	defer f.Close()
	if _, err := f.Open(context.Background(), srv.URL+"/missing.wav"); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestFetcherLocalFileAndLimit(t *testing.T) {
	testlog.Start(t)

	path, _ := writeTone(t, t.TempDir())
	f := NewFetcher(FetchConfig{}, nil)
	defer f.Close()
	s, err := f.Open(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("open file url: %v", err)
	}
	if drain(t, s) == 0 {
		t.Fatalf("expected chunks from local file")
	}

	small := NewFetcher(FetchConfig{MaxBytes: 16}, nil)
	defer small.Close()
	if _, err := small.Load(context.Background(), path); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch for oversized file, got %v", err)
	}
}

func TestNullDevices(t *testing.T) {
	testlog.Start(t)

	out := &NullOutput{}
	if err := out.Play(context.Background(), Chime().Stream()); err != nil {
		t.Fatalf("play: %v", err)
	}
	if out.Played() != uint64(Chime().Len()) {
		t.Fatalf("played mismatch: got=%d want=%d", out.Played(), Chime().Len())
	}

	in := &NullInput{}
	frame, err := in.Read(context.Background())
	if err != nil || len(frame) != ChunkBytes {
		t.Fatalf("null input read: len=%d err=%v", len(frame), err)
	}
}

func TestSoftVolumeClamps(t *testing.T) {
	testlog.Start(t)

	v := NewSoftVolume(0.4)
	if v.Volume() != 0.4 {
		t.Fatalf("volume mismatch: got=%f", v.Volume())
	}
	v.SetVolume(3)
	if v.Volume() != 1 {
		t.Fatalf("expected clamp to 1, got=%f", v.Volume())
	}
	v.SetVolume(-1)
	if v.Volume() != 0 {
		t.Fatalf("expected clamp to 0, got=%f", v.Volume())
	}
}

func TestSoftVolumeDuckKeepsLevel(t *testing.T) {
	testlog.Start(t)

	v := NewSoftVolume(0.8)
	v.SetDuck(0.25)
	if v.Volume() != 0.8 || v.Level() != 0.8*0.25 {
		t.Fatalf("ducked mismatch: volume=%v level=%v", v.Volume(), v.Level())
	}
	v.SetVolume(0.4)
	if v.Level() != 0.4*0.25 {
		t.Fatalf("level while ducked: got=%v want=%v", v.Level(), 0.4*0.25)
	}
	v.SetDuck(1)
	if v.Volume() != 0.4 || v.Level() != 0.4 {
		t.Fatalf("unduck mismatch: volume=%v level=%v", v.Volume(), v.Level())
	}
}
