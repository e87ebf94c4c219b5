package leaves

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/mmap"
)

/* FILE FORMAT

All integers are big-endian.

- 4 bytes: magic "LEAV"
- 4 bytes: format version
- 4 bytes: number of entries, n
- 4 bytes: key width in bytes, k
- n * 4 bytes: G, the displacement table of the minimal perfect hash
- n records of 1 + k + 8 bytes:
	- 1 byte: key length
	- k bytes: key, zero padded
	- 8 bytes: IEEE 754 value
- 8 bytes: xxhash64 of every byte before it

An entry for key lives in the record numbered slotOf(G, key).
*/

const (
	fileMagic   = 0x4c454156 // "LEAV"
	fileVersion = 1
	headerBytes = 16

	checksumBytes = 8

	maxKeyBytes = 255
)

var (
	// ErrCorrupt is returned when a table file fails verification.
	ErrCorrupt = errors.New("corrupt leave table")

	// ErrSerialization is returned when a table file could not be written.
	ErrSerialization = errors.New("cannot write leave table")
)

// Write encodes the table to w. Returns the number of bytes written.
func (t Table) Write(w io.Writer) (int64, error) {
	keys := make([]string, 0, len(t))
	width := 0
	for key := range t {
		keys = append(keys, key)
		width = max(width, len(key))
	}
	sort.Strings(keys)

	G, permute := minimalPerfectHash(keys)

	h := xxhash.New()
	bw := bufio.NewWriter(io.MultiWriter(w, h))

	var scratch [8]byte
	put32 := func(v uint32) {
		binary.BigEndian.PutUint32(scratch[:4], v)
		bw.Write(scratch[:4])
	}

	put32(fileMagic)
	put32(fileVersion)
	put32(uint32(len(keys)))
	put32(uint32(width))
	for _, d := range G {
		put32(uint32(d))
	}

	record := make([]byte, recordBytes(width))
	for _, src := range permute {
		key := keys[src]
		clear(record)
		record[0] = byte(len(key))
		copy(record[1:], key)
		binary.BigEndian.PutUint64(record[1+width:], math.Float64bits(t[key]))
		bw.Write(record)
	}

	// bufio keeps the first write error and returns it from Flush
	if err := bw.Flush(); err != nil {
		return 0, err
	}

	binary.BigEndian.PutUint64(scratch[:], h.Sum64())
	if _, err := w.Write(scratch[:]); err != nil {
		return 0, err
	}

	return tableSize(len(keys), width), nil
}

func recordBytes(width int) int {
	return 1 + width + 8
}

func tableSize(n, width int) int64 {
	return int64(headerBytes + n*4 + n*recordBytes(width) + checksumBytes)
}

// Save writes the table to filename through a temporary file that is
// renamed into place once complete. The file keeps the mode of the file it
// replaces, or gets 0644.
func (t Table) Save(filename string) (int64, error) {
	f, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+"-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	tempPath := f.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	size, err := t.Write(f)
	if err == nil {
		err = f.Sync()
	}
	if err == nil {
		err = f.Chmod(publishMode(filename))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tempPath, filename)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	success = true
	return size, nil
}

func publishMode(filename string) os.FileMode {
	if info, err := os.Stat(filename); err == nil && info.Mode().IsRegular() {
		return info.Mode().Perm()
	}
	return 0644
}

// DiskTable answers lookups directly from an encoded table.
type DiskTable struct {
	r      io.ReaderAt
	closer io.Closer
	n      int
	width  int
	g      []int32
}

// Load memory maps a table written by Save.
func Load(filename string) (*DiskTable, error) {
	f, err := mmap.Open(filename)
	if err != nil {
		return nil, err
	}

	t, err := Read(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	t.closer = f
	return t, nil
}

// Read verifies the table in r and returns it. The displacement table is
// read into memory; records are read on demand.
func Read(r io.ReaderAt) (*DiskTable, error) {
	var header [headerBytes]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if binary.BigEndian.Uint32(header[0:]) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.BigEndian.Uint32(header[4:]); v != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}

	n := int(binary.BigEndian.Uint32(header[8:]))
	width := int(binary.BigEndian.Uint32(header[12:]))
	if width > maxKeyBytes {
		return nil, fmt.Errorf("%w: key width %d", ErrCorrupt, width)
	}
	size := tableSize(n, width)

	h := xxhash.New()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, size-checksumBytes)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	var sum [checksumBytes]byte
	if _, err := r.ReadAt(sum[:], size-checksumBytes); err != nil {
		return nil, fmt.Errorf("%w: truncated: %w", ErrCorrupt, err)
	}
	if binary.BigEndian.Uint64(sum[:]) != h.Sum64() {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	raw := make([]byte, n*4)
	if _, err := r.ReadAt(raw, headerBytes); err != nil && n > 0 {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	g := make([]int32, n)
	for i := range g {
		g[i] = int32(binary.BigEndian.Uint32(raw[i*4:]))
		if g[i] < 0 && int(-g[i]-1) >= n {
			return nil, fmt.Errorf("%w: slot %d out of range", ErrCorrupt, -g[i]-1)
		}
	}

	return &DiskTable{r: r, n: n, width: width, g: g}, nil
}

// Get looks up the value for letters in any order and case.
func (t *DiskTable) Get(letters string) (float64, bool) {
	if t.n == 0 {
		return 0, false
	}
	key := CanonicalKey(letters)
	if len(key) > t.width {
		return 0, false
	}

	record := make([]byte, recordBytes(t.width))
	at := int64(headerBytes+t.n*4) + int64(slotOf(t.g, key))*int64(len(record))
	if _, err := t.r.ReadAt(record, at); err != nil {
		return 0, false
	}

	if int(record[0]) != len(key) || string(record[1:1+len(key)]) != key {
		return 0, false
	}
	return math.Float64frombits(binary.BigEndian.Uint64(record[1+t.width:])), true
}

// Len returns the number of entries.
func (t *DiskTable) Len() int {
	return t.n
}

// Close releases the underlying file, if there is one.
func (t *DiskTable) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
