// Package bytecursor provides a typed, endian-aware sliced reader and
// a two-pass back-patching writer over in-memory byte buffers. Every
// codec in this module reads and writes through a Reader/Writer pair
// instead of touching slices directly, so bounds checking and
// back-patch bookkeeping happen in one place (spec §4.1).
package bytecursor

import (
	"encoding/binary"

	"github.com/nds-tools/ndscore/ndserr"
)

// Reader is a bounds-checked cursor over a borrowed byte slice. Its
// endianness is fixed at construction, matching spec §4.1's "cursor
// property" wording; a container whose byte-order mark selects big
// endian (NARC) is read with a single Reader in that order throughout.
type Reader struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

// NewReader wraps buf for little-endian reads, the default for every
// NDS wire format outside the ROM/NARC/SDAT header preamble.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, order: binary.LittleEndian}
}

// NewReaderOrder wraps buf using the given byte order.
func NewReaderOrder(buf []byte, order binary.ByteOrder) *Reader {
	return &Reader{buf: buf, order: order}
}

// Len returns the length of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Tell returns the current cursor position.
func (r *Reader) Tell() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Seek moves the cursor to an absolute position. It fails with
// OutOfBounds if pos is outside [0, len(buf)].
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return ndserr.At(ndserr.OutOfBounds, int64(pos), "seek past end of %d-byte buffer", len(r.buf))
	}
	r.pos = pos
	return nil
}

// Align advances the cursor to the next multiple of n (n must be a
// power of two), failing with OutOfBounds if that would pass the end
// of the buffer.
func (r *Reader) Align(n int) error {
	aligned := (r.pos + n - 1) &^ (n - 1)
	return r.Seek(aligned)
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) || n < 0 {
		return ndserr.At(ndserr.OutOfBounds, int64(r.pos), "need %d bytes, have %d", n, len(r.buf)-r.pos)
	}
	return nil
}

// ReadU8 reads an unsigned byte.
func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadU16 reads a 2-byte unsigned integer in the cursor's byte order.
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := r.order.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadU24 reads a 3-byte unsigned integer in the cursor's byte order.
func (r *Reader) ReadU24() (uint32, error) {
	if err := r.need(3); err != nil {
		return 0, err
	}
	b := r.buf[r.pos : r.pos+3]
	var v uint32
	if r.order == binary.BigEndian {
		v = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	} else {
		v = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	}
	r.pos += 3
	return v, nil
}

// ReadU32 reads a 4-byte unsigned integer in the cursor's byte order.
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := r.order.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadI8, ReadI16, ReadI32 are signed counterparts of the above.
func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadBytes returns a borrowed sub-slice of length n at the current
// position and advances past it.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// PeekBytes is ReadBytes without advancing the cursor.
func (r *Reader) PeekBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	return r.buf[r.pos : r.pos+n], nil
}

// ReadAt returns a borrowed sub-slice of length n starting at an
// absolute offset, without moving the cursor.
func (r *Reader) ReadAt(pos, n int) ([]byte, error) {
	if pos < 0 || n < 0 || pos+n > len(r.buf) {
		return nil, ndserr.At(ndserr.OutOfBounds, int64(pos), "range [%d,%d) outside %d-byte buffer", pos, pos+n, len(r.buf))
	}
	return r.buf[pos : pos+n], nil
}

// ReadCString reads bytes up to and including a NUL terminator,
// returning the bytes before the terminator.
func (r *Reader) ReadCString() ([]byte, error) {
	start := r.pos
	for r.pos < len(r.buf) {
		if r.buf[r.pos] == 0 {
			s := r.buf[start:r.pos]
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return nil, ndserr.At(ndserr.OutOfBounds, int64(start), "unterminated string")
}

// Bytes returns the whole underlying buffer.
func (r *Reader) Bytes() []byte { return r.buf }
