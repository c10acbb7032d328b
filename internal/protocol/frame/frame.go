package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Indicator is the first byte of every plaintext frame.
const Indicator byte = 0x00

// maxHeaderLen is the indicator plus two 10-byte varints.
const maxHeaderLen = 1 + 2*binary.MaxVarintLen64

var (
	ErrNeedMoreData    = errors.New("frame: need more data")
	ErrCorrupt         = errors.New("frame: corrupt")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Frame is one complete plaintext message.
type Frame struct {
	Type    uint32
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 1024 * 1024,
	}
}

// Append encodes f onto dst.
func Append(dst []byte, f Frame, limits Limits) ([]byte, error) {
	if uint64(len(f.Payload)) > limits.MaxPayloadBytes {
		return dst, ErrPayloadTooLarge
	}
	dst = append(dst, Indicator)
	dst = protowire.AppendVarint(dst, uint64(len(f.Payload)))
	dst = protowire.AppendVarint(dst, uint64(f.Type))
	return append(dst, f.Payload...), nil
}

// Encode returns the wire bytes for one frame.
func Encode(f Frame, limits Limits) ([]byte, error) {
	buf := make([]byte, 0, maxHeaderLen+len(f.Payload))
	return Append(buf, f, limits)
}

// DecodeBuffer decodes the first frame in buf and reports how many bytes it
// consumed. It returns ErrNeedMoreData when buf holds only a prefix of a
// frame and ErrCorrupt when no amount of further input can make it valid.
// The returned payload aliases buf.
func DecodeBuffer(buf []byte, limits Limits) (Frame, int, error) {
	if len(buf) == 0 {
		return Frame{}, 0, ErrNeedMoreData
	}
	if buf[0] != Indicator {
		return Frame{}, 0, fmt.Errorf("%w: indicator 0x%02x", ErrCorrupt, buf[0])
	}
	off := 1

	size, n := protowire.ConsumeVarint(buf[off:])
	if n < 0 {
		return Frame{}, 0, varintErr("length", n)
	}
	off += n
	if size > limits.MaxPayloadBytes {
		return Frame{}, 0, fmt.Errorf("%w: %w: %d", ErrCorrupt, ErrPayloadTooLarge, size)
	}

	typ, n := protowire.ConsumeVarint(buf[off:])
	if n < 0 {
		return Frame{}, 0, varintErr("type", n)
	}
	off += n
	if typ > math.MaxUint32 {
		return Frame{}, 0, fmt.Errorf("%w: type %d out of range", ErrCorrupt, typ)
	}

	if uint64(len(buf)-off) < size {
		return Frame{}, 0, ErrNeedMoreData
	}
	end := off + int(size)
	return Frame{Type: uint32(typ), Payload: buf[off:end]}, end, nil
}

func varintErr(what string, n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrNeedMoreData
	}
	return fmt.Errorf("%w: %s varint: %v", ErrCorrupt, what, err)
}

// Decoder accumulates stream bytes and yields complete frames. Feeding the
// same bytes split at any boundaries produces the same frame sequence.
type Decoder struct {
	limits Limits
	buf    []byte
	off    int
	broken error
}

func NewDecoder(limits Limits) *Decoder {
	return &Decoder{limits: limits}
}

// Feed appends raw stream bytes.
func (d *Decoder) Feed(p []byte) {
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame. A corrupt stream stays corrupt.
func (d *Decoder) Next() (Frame, error) {
	if d.broken != nil {
		return Frame{}, d.broken
	}
	f, n, err := DecodeBuffer(d.buf[d.off:], d.limits)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			d.broken = err
		}
		if errors.Is(err, ErrNeedMoreData) {
			d.compact()
		}
		return Frame{}, err
	}
	payload := make([]byte, len(f.Payload))
	copy(payload, f.Payload)
	d.off += n
	return Frame{Type: f.Type, Payload: payload}, nil
}

// Buffered reports unconsumed bytes.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:n]
	d.off = 0
}

// Reader pulls frames from a byte stream.
type Reader struct {
	r   io.Reader
	dec *Decoder
	tmp []byte
}

func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{r: r, dec: NewDecoder(limits), tmp: make([]byte, 4096)}
}

// ReadFrame blocks until one frame is available. A stream that ends in the
// middle of a frame reports io.ErrUnexpectedEOF.
func (r *Reader) ReadFrame() (Frame, error) {
	for {
		f, err := r.dec.Next()
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, ErrNeedMoreData) {
			return Frame{}, err
		}
		n, rerr := r.r.Read(r.tmp)
		if n > 0 {
			r.dec.Feed(r.tmp[:n])
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if r.dec.Buffered() > 0 && n == 0 {
					return Frame{}, io.ErrUnexpectedEOF
				}
				if n > 0 {
					continue
				}
			}
			return Frame{}, rerr
		}
	}
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	buf, err := Encode(f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
