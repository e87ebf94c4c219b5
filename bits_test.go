package gaddag

import (
	"bytes"
	"testing"
)

func TestBitWriter(t *testing.T) {
	// write 101010 = 0x2a
	// write 010101 = 0x15
	// result: 10101001 01010000 = 0xa9 0x50
	var buffer bytes.Buffer
	bw := newBitWriter(&buffer)
	bw.WriteBits(0x2a, 6)
	bw.WriteBits(0x15, 6)
	bw.Flush()

	b := buffer.Bytes()
	if len(b) != 2 || b[0] != 0xa9 || b[1] != 0x50 {
		t.Errorf("Error: TestBitWriter wrote %v", b)
	}
	if bw.written != 2 {
		t.Errorf("Expected 2 bytes written, counted %d", bw.written)
	}
}

func TestBitReader(t *testing.T) {
	// 10101001 01010000 = 0xa9 0x50
	// read 101010 = 0x2a
	// read 010101 = 0x15
	buffer := bytes.NewReader([]byte{0xa9, 0x50})
	br := newBitSeeker(buffer)

	data := br.ReadBits(6)
	if data != 0x2a {
		t.Errorf("Expected 0x2a got 0x%02x", data)
	}

	data = br.ReadBits(6)
	if data != 0x15 {
		t.Errorf("Expected 0x15 got 0x%02x", data)
	}

	data = br.ReadBits(2)
	if data != 0x00 {
		t.Errorf("Expected 0x00 got 0x%02x", data)
	}

	br.Seek(0)
	data = br.ReadBits(16)
	if data != 0xa950 {
		t.Errorf("Expected 0xa950 got 0x%02x", data)
	}

	br.Seek(1)
	// 0010 1001 0101 0000 = 0x2950
	data = br.ReadBits(15)
	if data != 0x2950 {
		t.Errorf("Expected 0x2950 got 0x%02x", data)
	}

	if err := br.Err(); err != nil {
		t.Errorf("Unexpected error %v", err)
	}

	// past the end
	br.ReadBits(8)
	if br.Err() == nil {
		t.Errorf("Expected an error reading past the end")
	}
}

func TestBitReaderWriter(t *testing.T) {
	var buffer bytes.Buffer
	bw := newBitWriter(&buffer)

	for i := 0; i < 100000; i++ {
		bits := i % 31
		data := i & ((1 << bits) - 1)
		bw.WriteBits(uint64(data), bits)
	}

	bw.Flush()

	r := bytes.NewReader(buffer.Bytes())
	br := newBitSeeker(r)

	for i := 0; i < 100000; i++ {
		bits := i % 31
		data := i & ((1 << bits) - 1)

		dataRead := br.ReadBits(int64(bits))
		if int(dataRead) != data {
			t.Errorf("Fail: %d Expected 0x%x, read 0x%x", bits, data, dataRead)
		}
	}
}

func TestUnsigned(t *testing.T) {
	values := []uint64{0, 1, 0x7e, 0x7f, 0x80, 0x3fff, 0x4000, 1 << 28, 1<<63 + 5}

	var buffer bytes.Buffer
	bw := newBitWriter(&buffer)
	// start off a byte boundary
	bw.WriteBits(1, 3)
	var want uint64 = 3
	for _, v := range values {
		if err := writeUnsigned(bw, v); err != nil {
			t.Fatal(err)
		}
		want += unsignedLength(v) * 8
	}
	bw.Flush()

	if got := uint64(buffer.Len()); got != (want+7)/8 {
		t.Errorf("Expected %d bytes, got %d", (want+7)/8, got)
	}

	br := newBitSeeker(bytes.NewReader(buffer.Bytes()))
	br.Skip(3)
	for _, v := range values {
		if got := readUnsigned(br); got != v {
			t.Errorf("Expected %d got %d", v, got)
		}
	}
}

func TestBsearch(t *testing.T) {
	items := []int{2, 3, 5, 7, 11, 13}
	for i, item := range items {
		if got := bsearch(len(items), func(j int) int { return items[j] - item }); got != i {
			t.Errorf("bsearch(%d) = %d, expected %d", item, got, i)
		}
	}
	for _, missing := range []int{0, 4, 12, 20} {
		if got := bsearch(len(items), func(j int) int { return items[j] - missing }); got != len(items) {
			t.Errorf("bsearch(%d) = %d, expected not found", missing, got)
		}
	}
}
