package frame

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/danmuck/satellite/internal/testutil/testlog"
)

func sampleFrames() []Frame {
	return []Frame{
		{Type: 1, Payload: []byte{0x0a, 0x03, 'a', 'b', 'c'}},
		{Type: 7, Payload: []byte{}},
		{Type: 106, Payload: bytes.Repeat([]byte{0x55}, 300)},
		{Type: 4096, Payload: []byte{0x08, 0x01}},
	}
}

func encodeAll(t *testing.T, frames []Frame) []byte {
	t.Helper()
	var out []byte
	for _, f := range frames {
		var err error
		out, err = Append(out, f, DefaultLimits())
		if err != nil {
			t.Fatalf("append frame type=%d: %v", f.Type, err)
		}
	}
	return out
}

func collect(t *testing.T, d *Decoder) []Frame {
	t.Helper()
	var out []Frame
	for {
		f, err := d.Next()
		if errors.Is(err, ErrNeedMoreData) {
			return out
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, f)
	}
}

func TestEncodeHeaderLayout(t *testing.T) {
	testlog.Start(t)

	got, err := Encode(Frame{Type: 300, Payload: []byte{1, 2}}, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x00, 0x02, 0xac, 0x02, 1, 2}
	if !bytes.Equal(got, want) {
		t.Fatalf("encoded bytes mismatch: got=%x want=%x", got, want)
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	testlog.Start(t)

	in := sampleFrames()
	d := NewDecoder(DefaultLimits())
	d.Feed(encodeAll(t, in))
	out := collect(t, d)
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("frames mismatch: got=%+v want=%+v", out, in)
	}
	if d.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got=%d", d.Buffered())
	}
}

func TestDecoderFragmentationInvariance(t *testing.T) {
	testlog.Start(t)

	in := sampleFrames()
	wire := encodeAll(t, in)
	for _, step := range []int{1, 2, 3, 5, 7, 64, 511} {
		d := NewDecoder(DefaultLimits())
		var out []Frame
		for i := 0; i < len(wire); i += step {
			end := min(i+step, len(wire))
			d.Feed(wire[i:end])
			out = append(out, collect(t, d)...)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("step=%d frames mismatch: got=%d frames want=%d", step, len(out), len(in))
		}
	}
}

func TestDecodeBufferPartialHeader(t *testing.T) {
	testlog.Start(t)

	wire, err := Encode(Frame{Type: 200, Payload: bytes.Repeat([]byte{1}, 200)}, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < len(wire); i++ {
		if _, _, err := DecodeBuffer(wire[:i], DefaultLimits()); !errors.Is(err, ErrNeedMoreData) {
			t.Fatalf("prefix len=%d expected ErrNeedMoreData, got=%v", i, err)
		}
	}
}

func TestDecodeBufferBadIndicator(t *testing.T) {
	testlog.Start(t)

	_, _, err := DecodeBuffer([]byte{0x01, 0x00, 0x07}, DefaultLimits())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeBufferLengthOverLimit(t *testing.T) {
	testlog.Start(t)

	_, _, err := DecodeBuffer([]byte{0x00, 0x80, 0x08, 0x01}, Limits{MaxPayloadBytes: 16})
	if !errors.Is(err, ErrCorrupt) || !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected corrupt payload-too-large, got %v", err)
	}
}

func TestDecodeBufferOverlongVarint(t *testing.T) {
	testlog.Start(t)

	wire := append([]byte{0x00}, bytes.Repeat([]byte{0xff}, 11)...)
	_, _, err := DecodeBuffer(wire, DefaultLimits())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecoderStaysCorrupt(t *testing.T) {
	testlog.Start(t)

	d := NewDecoder(DefaultLimits())
	d.Feed([]byte{0x7f})
	if _, err := d.Next(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	d.Feed(encodeAll(t, sampleFrames()))
	if _, err := d.Next(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected sticky ErrCorrupt, got %v", err)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	testlog.Start(t)

	_, err := Encode(Frame{Type: 1, Payload: make([]byte, 17)}, Limits{MaxPayloadBytes: 16})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

type trickleReader struct {
	data []byte
	step int
}

func (r *trickleReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(r.step, len(p), len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestReaderReadsTrickledStream(t *testing.T) {
	testlog.Start(t)

	in := sampleFrames()
	r := NewReader(&trickleReader{data: encodeAll(t, in), step: 3}, DefaultLimits())
	for i, want := range in {
		got, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("frame %d mismatch: got=%+v want=%+v", i, got, want)
		}
	}
	if _, err := r.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderTruncatedStream(t *testing.T) {
	testlog.Start(t)

	wire := encodeAll(t, sampleFrames()[:1])
	r := NewReader(bytes.NewReader(wire[:len(wire)-1]), DefaultLimits())
	if _, err := r.ReadFrame(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestWriteFrame(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Type: 8}, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0x00, 0x00, 0x08}) {
		t.Fatalf("unexpected bytes: %x", buf.Bytes())
	}
}
