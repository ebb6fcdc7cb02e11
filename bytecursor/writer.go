package bytecursor

import (
	"encoding/binary"
	"io"

	"github.com/orcaman/writerseeker"
)

// Writer accumulates bytes for a composite emitter and supports the
// two-pass layout discipline described in spec §4.1 and §9: callers
// reserve placeholder bytes for a value that is only known once the
// rest of the buffer has been laid out (an offset, a size), remember
// where they are via an Anchor, and patch them once the final value
// is known.
//
// The backing store is an in-memory io.WriteSeeker
// (writerseeker.WriterSeeker), the same shape of writer the teacher's
// composite emitters (internal/squashfs.Writer) are built around, but
// kept entirely in memory since every emit entry point in this module
// returns a []byte rather than writing to a file.
type Writer struct {
	ws    *writerseeker.WriterSeeker
	order binary.ByteOrder
	len   int
}

// Anchor identifies a previously reserved byte range that can later
// be patched with PatchAt.
type Anchor struct {
	offset int
	size   int
}

// NewWriter returns an empty little-endian Writer.
func NewWriter() *Writer {
	return &Writer{ws: &writerseeker.WriterSeeker{}, order: binary.LittleEndian}
}

// NewWriterOrder returns an empty Writer using the given byte order.
func NewWriterOrder(order binary.ByteOrder) *Writer {
	return &Writer{ws: &writerseeker.WriterSeeker{}, order: order}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.len }

func (w *Writer) write(p []byte) {
	if _, err := w.ws.Write(p); err != nil {
		// writerseeker's in-memory writer never fails.
		panic(err)
	}
	w.len += len(p)
}

// WriteU8 appends a single byte.
func (w *Writer) WriteU8(v uint8) { w.write([]byte{v}) }

// WriteU16 appends a 2-byte integer in the writer's byte order.
func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.write(b[:])
}

// WriteU24 appends a 3-byte integer in the writer's byte order.
func (w *Writer) WriteU24(v uint32) {
	if w.order == binary.BigEndian {
		w.write([]byte{byte(v >> 16), byte(v >> 8), byte(v)})
	} else {
		w.write([]byte{byte(v), byte(v >> 8), byte(v >> 16)})
	}
}

// WriteU32 appends a 4-byte integer in the writer's byte order.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.write(b[:])
}

// WriteBytes appends a raw byte slice.
func (w *Writer) WriteBytes(p []byte) { w.write(p) }

// WriteZeros appends n zero bytes.
func (w *Writer) WriteZeros(n int) {
	if n <= 0 {
		return
	}
	w.write(make([]byte, n))
}

// Align pads with zero bytes until Len() is a multiple of n.
func (w *Writer) Align(n int) {
	if pad := w.len % n; pad != 0 {
		w.WriteZeros(n - pad)
	}
}

// Reserve appends n placeholder zero bytes and returns an Anchor that
// can later be filled in with PatchAt, once the layout pass that
// discovers the real value has completed.
func (w *Writer) Reserve(n int) Anchor {
	a := Anchor{offset: w.len, size: n}
	w.WriteZeros(n)
	return a
}

// PatchAt overwrites the bytes at anchor with data, which must be
// exactly anchor.size bytes long.
func (w *Writer) PatchAt(anchor Anchor, data []byte) error {
	if len(data) != anchor.size {
		panic("bytecursor: PatchAt size mismatch")
	}
	cur, err := w.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.ws.Seek(int64(anchor.offset), io.SeekStart); err != nil {
		return err
	}
	if _, err := w.ws.Write(data); err != nil {
		return err
	}
	_, err = w.ws.Seek(cur, io.SeekStart)
	return err
}

// PatchU32At patches a previously reserved 4-byte anchor with v,
// encoded in the writer's byte order.
func (w *Writer) PatchU32At(anchor Anchor, v uint32) error {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	return w.PatchAt(anchor, b[:])
}

// PatchU16At patches a previously reserved 2-byte anchor with v,
// encoded in the writer's byte order.
func (w *Writer) PatchU16At(anchor Anchor, v uint16) error {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	return w.PatchAt(anchor, b[:])
}

// Bytes returns the final, contiguous byte slice.
func (w *Writer) Bytes() []byte {
	r := w.ws.BytesReader()
	out := make([]byte, w.len)
	if _, err := io.ReadFull(r, out); err != nil && err != io.EOF {
		panic(err)
	}
	return out
}
