package types

import (
	"encoding/binary"
	"io"
)

// An Encoder writes objects to an underlying stream using the module's
// canonical, deterministic binary format: fixed field order, little-endian
// fixed-width integers, length-prefixed variable-size data. Two peers that
// encode the same logical object always produce the same bytes.
type Encoder struct {
	w   io.Writer
	buf [1024]byte
	n   int
	err error
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Flush writes any buffered data to the underlying stream.
func (e *Encoder) Flush() error {
	if e.err == nil && e.n > 0 {
		_, e.err = e.w.Write(e.buf[:e.n])
		e.n = 0
	}
	return e.err
}

// Write implements io.Writer.
func (e *Encoder) Write(p []byte) (int, error) {
	lenp := len(p)
	for e.err == nil && len(p) > 0 {
		if e.n == len(e.buf) {
			e.Flush()
		}
		c := copy(e.buf[e.n:], p)
		e.n += c
		p = p[c:]
	}
	return lenp, e.err
}

// WriteUint8 writes a uint8 to the stream.
func (e *Encoder) WriteUint8(u uint8) { e.Write([]byte{u}) }

// WriteUint64 writes a little-endian uint64 to the stream.
func (e *Encoder) WriteUint64(u uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], u)
	e.Write(buf[:])
}

// WriteBool writes a bool to the stream.
func (e *Encoder) WriteBool(b bool) {
	if b {
		e.WriteUint8(1)
	} else {
		e.WriteUint8(0)
	}
}

// WriteBytes writes a length-prefixed []byte to the stream.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteUint64(uint64(len(b)))
	e.Write(b)
}

// EncoderTo is implemented by types that can encode themselves canonically.
type EncoderTo interface {
	EncodeTo(e *Encoder)
}

// A Decoder reads objects written by an Encoder.
type Decoder struct {
	lr  io.LimitedReader
	buf [64]byte
	err error
}

// NewDecoder returns a Decoder that reads at most lr.N bytes from lr.R.
func NewDecoder(lr io.LimitedReader) *Decoder {
	return &Decoder{lr: lr}
}

// Err returns the first error encountered during decoding, if any.
func (d *Decoder) Err() error { return d.err }

// SetErr sets the Decoder's error, if one has not already been set.
func (d *Decoder) SetErr(err error) {
	if err != nil && d.err == nil {
		d.err = err
	}
}

// Read implements io.Reader.
func (d *Decoder) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	n, err := io.ReadFull(&d.lr, p)
	d.SetErr(err)
	return n, err
}

// ReadUint8 reads a uint8 from the stream.
func (d *Decoder) ReadUint8() uint8 {
	d.Read(d.buf[:1])
	return d.buf[0]
}

// ReadUint64 reads a little-endian uint64 from the stream.
func (d *Decoder) ReadUint64() uint64 {
	d.Read(d.buf[:8])
	return binary.LittleEndian.Uint64(d.buf[:8])
}

// ReadBool reads a bool from the stream.
func (d *Decoder) ReadBool() bool { return d.ReadUint8() != 0 }

// ReadBytes reads a length-prefixed []byte from the stream.
func (d *Decoder) ReadBytes() []byte {
	n := d.ReadUint64()
	if d.err != nil || n > uint64(d.lr.N) {
		d.SetErr(io.ErrUnexpectedEOF)
		return nil
	}
	b := make([]byte, n)
	d.Read(b)
	return b
}

// DecoderFrom is implemented by types that can decode themselves from a
// Decoder that was fed the output of the matching EncodeTo.
type DecoderFrom interface {
	DecodeFrom(d *Decoder)
}

// EncodeSlice encodes a length-prefixed slice of EncoderTo elements.
func EncodeSlice[T EncoderTo](e *Encoder, s []T) {
	e.WriteUint64(uint64(len(s)))
	for i := range s {
		s[i].EncodeTo(e)
	}
}

// DecodeSlice decodes a length-prefixed slice of type T, containing values
// read from the decoder.
func DecodeSlice[T any, PT interface {
	*T
	DecoderFrom
}](d *Decoder, s *[]T) {
	n := d.ReadUint64()
	if d.err != nil || n > uint64(d.lr.N) {
		d.SetErr(io.ErrUnexpectedEOF)
		return
	}
	*s = make([]T, n)
	for i := range *s {
		PT(&(*s)[i]).DecodeFrom(d)
		if d.err != nil {
			break
		}
	}
}
