package gaddag

import (
	"fmt"
	"io"
)

// bitWriter packs values of arbitrary bit width into a byte stream, most
// significant bit first.
type bitWriter struct {
	io.Writer
	cache   uint8
	used    int
	written int64 // bytes
}

func newBitWriter(w io.Writer) *bitWriter {
	return &bitWriter{Writer: w}
}

func (w *bitWriter) WriteBits(data uint64, n int) error {
	var mask uint8
	for n > 0 {
		written := n
		if written+w.used > 8 {
			written = 8 - w.used
		}

		mask = uint8(uint16(1<<(written)) - 1)
		w.used += written
		w.cache = (w.cache << written) | byte(data>>(n-written))&mask

		if w.used == 8 {
			if _, err := w.Write([]byte{w.cache}); err != nil {
				return err
			}
			w.written++
			w.used = 0
			w.cache = 0
		}

		n -= written
	}
	return nil
}

// Flush pads the last partial byte with zero bits and writes it.
func (w *bitWriter) Flush() error {
	if w.used > 0 {
		if _, err := w.Write([]byte{w.cache << (8 - w.used)}); err != nil {
			return err
		}
		w.written++
		w.used = 0
		w.cache = 0
	}
	return nil
}

var maskTop = []byte{
	0xff,
	0x7f,
	0x3f,
	0x1f,
	0x0f,
	0x07,
	0x03,
	0x01,
	0x00,
}

// bitSeeker reads bits from a given offset in bits. The first read error is
// kept and every later read returns zero; check Err after a sequence of reads.
type bitSeeker struct {
	io.ReaderAt
	p      int64
	buffer []byte
	err    error
}

func newBitSeeker(r io.ReaderAt) *bitSeeker {
	return &bitSeeker{ReaderAt: r, buffer: make([]byte, 1)}
}

func (r *bitSeeker) nextByte() byte {
	if r.err != nil {
		return 0
	}
	if _, err := r.ReadAt(r.buffer, r.p>>3); err != nil {
		r.err = fmt.Errorf("read at bit %d: %w", r.p, err)
		return 0
	}
	return r.buffer[0]
}

func (r *bitSeeker) ReadBits(n int64) uint64 {
	if n == 0 {
		return 0
	}
	if r.p&7+n <= 8 {
		ret := uint64((r.nextByte() & maskTop[r.p&7]) >> (8 - r.p&7 - n))
		r.p += n
		return ret
	}

	// bits lie incompletely in the given byte
	result := uint64(r.nextByte() & maskTop[r.p&7])

	l := 8 - r.p&7
	r.p += l
	n -= l

	for n >= 8 {
		result = (result << 8) | uint64(r.nextByte())
		r.p += 8
		n -= 8
	}

	if n > 0 {
		result = (result << n) | uint64(r.nextByte()>>(8-n))
		r.p += n
	}

	return result
}

func (r *bitSeeker) Seek(offset int64) {
	r.p = offset
}

func (r *bitSeeker) Skip(offset int64) {
	r.p += offset
}

func (r *bitSeeker) Tell() int64 {
	return r.p
}

func (r *bitSeeker) Err() error {
	return r.err
}

// writeUnsigned writes n as a 7code: groups of seven bits, most significant
// first, with the high bit of each byte set when another byte follows.
func writeUnsigned(w *bitWriter, n uint64) error {
	length := unsignedLength(n)
	for i := int(length) - 1; i >= 0; i-- {
		b := (n >> (7 * uint(i))) & 0x7f
		if i > 0 {
			b |= 0x80
		}
		if err := w.WriteBits(b, 8); err != nil {
			return err
		}
	}
	return nil
}

func readUnsigned(r *bitSeeker) uint64 {
	var result uint64
	for i := 0; i < 10; i++ {
		d := r.ReadBits(8)
		result = (result << 7) | d&0x7f
		if d&0x80 == 0 {
			break
		}
	}
	return result
}

func unsignedLength(n uint64) uint64 {
	length := uint64(1)
	for n >= 0x80 {
		n >>= 7
		length++
	}
	return length
}

// bsearch returns the index for which cmp returns 0, or count if there is
// none. cmp(i) must return the sign of (item i - target).
func bsearch(count int, cmp func(i int) int) int {
	high := count
	low := -1
	for high-low > 1 {
		probe := (high + low) >> 1

		match := cmp(probe)
		if match == 0 {
			return probe
		} else if match < 0 {
			low = probe
		} else {
			high = probe
		}
	}
	return count
}
