package gaddag

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/mmap"
)

/* FILE FORMAT

All fields are packed into bits, most significant bit first.

- 32 bits: magic "GDAG"
- 8 bits: format version
- 32 bits: total size of the file in bytes, including the checksum
- 8 bits: abits, the number of bits in a node address
- 7code: number of words
- 7code: number of nodes
- 7code: number of edges
- for each node, in preorder with children visited in symbol order:
	- 1 bit: is node terminal?
	- 1 bit: fallthrough? (node has exactly one edge)
	- if fallthrough:
		5 bits: symbol
	else:
		5 bits: number of edges
		for each edge, in symbol order:
			5 bits: symbol
			if this is not the first edge:
				abits: location in bits of the child node from the start of the file
- zero bits up to the next byte boundary
- 64 bits: xxhash64 of every byte before it

The first child of a node is always the node that follows it, so its address
is not stored. Symbols are 0-25 for A-Z and 26 for the separator.

We define 7code to be an unsigned that can be read the following way:

result = 0
for {
	data = next 8 bits
	result = result << 7 | data & 0x7f
	if data & 0x80 == 0 break
}

*/

const (
	fileMagic   = 0x47444147 // "GDAG"
	fileVersion = 1

	checksumBytes = 8
)

var (
	// ErrCorrupt is returned when an artifact is truncated, fails its
	// checksum, or does not describe a well-formed tree.
	ErrCorrupt = errors.New("corrupt gaddag file")

	// ErrSerialization is returned when an artifact could not be written.
	ErrSerialization = errors.New("cannot write gaddag file")
)

func (n *Node) isFallthrough() bool {
	return len(n.edges) == 1
}

func (n *Node) encodedBits(abits uint64) uint64 {
	pos := uint64(2)
	if n.isFallthrough() {
		return pos + symbolBits
	}
	numEdges := uint64(len(n.edges))
	pos += symbolBits
	if numEdges > 0 {
		pos += numEdges*(symbolBits+abits) - abits
	}
	return pos
}

func headerBits(numAdded, numNodes, numEdges int) uint64 {
	pos := uint64(32 + 8 + 32 + 8)
	pos += unsignedLength(uint64(numAdded)) * 8
	pos += unsignedLength(uint64(numNodes)) * 8
	pos += unsignedLength(uint64(numEdges)) * 8
	return pos
}

// Write encodes the GADDAG to w, calling Finish first if needed. Returns the
// number of bytes written.
func (g *Gaddag) Write(w io.Writer) (int64, error) {
	g.Finish()

	nodes := g.preorder()
	addresses := make([]uint64, len(nodes))

	// find the smallest address width that can hold the end of the last node
	abits := uint64(1)
	var pos uint64
	for {
		pos = headerBits(g.numAdded, g.numNodes, g.numEdges)
		for i, node := range nodes {
			addresses[i] = pos
			pos += node.encodedBits(abits)
		}

		if uint64(bits.Len64(pos)) <= abits {
			break
		}
		abits = uint64(bits.Len64(pos))
	}

	size := (pos+7)/8 + checksumBytes
	if size > 0xffffffff {
		return 0, fmt.Errorf("%w: %d bytes exceeds the format limit", ErrSerialization, size)
	}

	h := xxhash.New()
	buffered := bufio.NewWriter(io.MultiWriter(w, h))
	bw := newBitWriter(buffered)

	if err := g.writeBits(bw, nodes, addresses, abits, size); err != nil {
		return bw.written, err
	}
	if err := buffered.Flush(); err != nil {
		return bw.written, err
	}

	var sum [checksumBytes]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	if _, err := w.Write(sum[:]); err != nil {
		return bw.written, err
	}

	return int64(size), nil
}

func (g *Gaddag) writeBits(w *bitWriter, nodes []*Node, addresses []uint64, abits, size uint64) error {
	header := []struct {
		v uint64
		n int
	}{
		{fileMagic, 32},
		{fileVersion, 8},
		{size, 32},
		{abits, 8},
	}
	for _, field := range header {
		if err := w.WriteBits(field.v, field.n); err != nil {
			return err
		}
	}

	for _, n := range []int{g.numAdded, g.numNodes, g.numEdges} {
		if err := writeUnsigned(w, uint64(n)); err != nil {
			return err
		}
	}

	for _, node := range nodes {
		var terminal uint64
		if node.terminal {
			terminal = 1
		}
		if err := w.WriteBits(terminal, 1); err != nil {
			return err
		}

		if node.isFallthrough() {
			if err := w.WriteBits(1, 1); err != nil {
				return err
			}
			if err := w.WriteBits(uint64(node.edges[0].sym), symbolBits); err != nil {
				return err
			}
			continue
		}

		if err := w.WriteBits(0, 1); err != nil {
			return err
		}
		if err := w.WriteBits(uint64(len(node.edges)), symbolBits); err != nil {
			return err
		}
		for i, e := range node.edges {
			if err := w.WriteBits(uint64(e.sym), symbolBits); err != nil {
				return err
			}
			if i > 0 {
				if err := w.WriteBits(addresses[e.node.id], int(abits)); err != nil {
					return err
				}
			}
		}
	}

	return w.Flush()
}

// Save writes the GADDAG to filename, calling Finish first if needed.
// The data is written to a temporary file in the same directory which is
// renamed over filename once complete, so a failed save leaves no partial
// file behind. The file keeps the mode of the file it replaces, or gets 0644.
// Returns the number of bytes written.
func (g *Gaddag) Save(filename string) (int64, error) {
	dir := filepath.Dir(filename)
	f, err := os.CreateTemp(dir, "."+filepath.Base(filename)+"-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("%w: create temp file: %w", ErrSerialization, err)
	}
	tempPath := f.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	size, err := g.Write(f)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("%w: sync: %w", ErrSerialization, err)
	}

	if err := f.Chmod(publishMode(filename)); err != nil {
		f.Close()
		return 0, fmt.Errorf("%w: chmod: %w", ErrSerialization, err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("%w: close: %w", ErrSerialization, err)
	}

	if err := os.Rename(tempPath, filename); err != nil {
		return 0, fmt.Errorf("%w: rename: %w", ErrSerialization, err)
	}

	success = true
	return size, nil
}

// publishMode is the mode for a file about to replace filename: the mode of
// the current file if there is one, 0644 otherwise.
func publishMode(filename string) os.FileMode {
	if info, err := os.Stat(filename); err == nil && info.Mode().IsRegular() {
		return info.Mode().Perm()
	}
	return 0644
}

// Load opens a GADDAG file written by Save. The file is memory mapped and
// queried in place. Call Close when done with it.
func Load(filename string) (Finder, error) {
	f, err := mmap.Open(filename)
	if err != nil {
		return nil, err
	}

	finder, err := Read(f, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return finder, nil
}

type fileHeader struct {
	size            int64
	abits           int64
	numAdded        int
	numNodes        int
	numEdges        int
	firstNodeOffset int64 // in bits
}

func readHeader(r *bitSeeker) (fileHeader, error) {
	var h fileHeader
	r.Seek(0)
	if magic := r.ReadBits(32); magic != fileMagic {
		if err := r.Err(); err != nil {
			return h, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		return h, fmt.Errorf("%w: bad magic %08x", ErrCorrupt, magic)
	}
	if version := r.ReadBits(8); version != fileVersion {
		return h, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	h.size = int64(r.ReadBits(32))
	h.abits = int64(r.ReadBits(8))
	h.numAdded = int(readUnsigned(r))
	h.numNodes = int(readUnsigned(r))
	h.numEdges = int(readUnsigned(r))
	h.firstNodeOffset = r.Tell()

	if err := r.Err(); err != nil {
		return h, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if h.abits < 1 || h.abits > 40 {
		return h, fmt.Errorf("%w: address width %d", ErrCorrupt, h.abits)
	}
	if h.numNodes < 1 || h.numEdges != h.numNodes-1 {
		return h, fmt.Errorf("%w: %d nodes with %d edges is not a tree", ErrCorrupt, h.numNodes, h.numEdges)
	}
	if h.size*8 < h.firstNodeOffset+checksumBytes*8 {
		return h, fmt.Errorf("%w: size %d too small", ErrCorrupt, h.size)
	}
	return h, nil
}

func verifyChecksum(f io.ReaderAt, size int64) error {
	h := xxhash.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, size-checksumBytes)); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	var sum [checksumBytes]byte
	if _, err := f.ReadAt(sum[:], size-checksumBytes); err != nil {
		return fmt.Errorf("%w: truncated: %w", ErrCorrupt, err)
	}
	if binary.BigEndian.Uint64(sum[:]) != h.Sum64() {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return nil
}

// Read returns a finder that accesses the GADDAG in-place using the given
// io.ReaderAt. The data is verified before it is returned.
func Read(f io.ReaderAt, offset int64) (Finder, error) {
	if offset != 0 {
		f = io.NewSectionReader(f, offset, 1<<62)
	}

	h, err := readHeader(newBitSeeker(f))
	if err != nil {
		return nil, err
	}

	if sized, ok := f.(interface{ Len() int }); ok && int64(sized.Len()) < h.size {
		return nil, fmt.Errorf("%w: truncated to %d of %d bytes", ErrCorrupt, sized.Len(), h.size)
	}
	f = io.NewSectionReader(f, 0, h.size)

	if err := verifyChecksum(f, h.size); err != nil {
		return nil, err
	}

	d := &diskGaddag{
		fileHeader: h,
		r:          f,
		closer:     closerOf(f),
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func closerOf(r io.ReaderAt) io.Closer {
	for {
		s, ok := r.(*io.SectionReader)
		if !ok {
			break
		}
		r, _, _ = s.Outer()
	}
	if closer, ok := r.(io.Closer); ok {
		return closer
	}
	return nil
}

type diskGaddag struct {
	fileHeader
	r      io.ReaderAt
	closer io.Closer
}

type diskEdge struct {
	sym  Symbol
	node int64
}

type diskNode struct {
	pos      int64
	terminal bool
	edges    []diskEdge
}

// readNode decodes the node at bit position pos. The position just past the
// node record, which is where its first child starts, is returned as end.
func (d *diskGaddag) readNode(r *bitSeeker, pos int64) (node diskNode, end int64) {
	r.Seek(pos)
	node.pos = pos
	node.terminal = r.ReadBits(1) == 1

	if r.ReadBits(1) == 1 {
		sym := Symbol(r.ReadBits(symbolBits))
		end = r.Tell()
		node.edges = []diskEdge{{sym: sym, node: end}}
		return node, end
	}

	numEdges := int(r.ReadBits(symbolBits))
	node.edges = make([]diskEdge, numEdges)
	for i := range node.edges {
		node.edges[i].sym = Symbol(r.ReadBits(symbolBits))
		if i > 0 {
			node.edges[i].node = int64(r.ReadBits(d.abits))
		}
	}
	end = r.Tell()
	if numEdges > 0 {
		node.edges[0].node = end
	}
	return node, end
}

// validate walks every node record and checks that together they form a
// tree in the order the writer produces.
func (d *diskGaddag) validate() error {
	r := newBitSeeker(d.r)
	limit := (d.size - checksumBytes) * 8

	starts := make([]int64, 0, d.numNodes)
	var children []int64
	pos := d.firstNodeOffset
	edges := 0
	for i := 0; i < d.numNodes; i++ {
		if pos >= limit {
			return fmt.Errorf("%w: node %d starts past the end of the data", ErrCorrupt, i)
		}
		node, end := d.readNode(r, pos)
		if err := r.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if len(node.edges) > NumSymbols {
			return fmt.Errorf("%w: node %d has %d edges", ErrCorrupt, i, len(node.edges))
		}
		for j, e := range node.edges {
			if e.sym >= NumSymbols {
				return fmt.Errorf("%w: node %d has invalid symbol %d", ErrCorrupt, i, e.sym)
			}
			if j > 0 && e.sym <= node.edges[j-1].sym {
				return fmt.Errorf("%w: node %d edges out of order", ErrCorrupt, i)
			}
			if e.node <= pos {
				return fmt.Errorf("%w: node %d points backwards", ErrCorrupt, i)
			}
			children = append(children, e.node)
		}
		edges += len(node.edges)
		starts = append(starts, pos)
		pos = end
	}

	if pos > limit || limit-pos >= 8 {
		return fmt.Errorf("%w: node data ends at bit %d, expected %d", ErrCorrupt, pos, limit)
	}
	if edges != d.numEdges {
		return fmt.Errorf("%w: found %d edges, header says %d", ErrCorrupt, edges, d.numEdges)
	}

	// every node except the root must be the child of exactly one edge
	parents := make([]uint8, len(starts))
	for _, child := range children {
		i := sort.Search(len(starts), func(i int) bool { return starts[i] >= child })
		if i == len(starts) || starts[i] != child || i == 0 {
			return fmt.Errorf("%w: edge to bit %d is not a node", ErrCorrupt, child)
		}
		if parents[i]++; parents[i] > 1 {
			return fmt.Errorf("%w: node at bit %d has more than one parent", ErrCorrupt, child)
		}
	}
	return nil
}

func (d *diskGaddag) child(r *bitSeeker, pos int64, sym Symbol) (int64, bool) {
	r.Seek(pos)
	r.Skip(1)

	if r.ReadBits(1) == 1 {
		if Symbol(r.ReadBits(symbolBits)) == sym {
			return r.Tell(), true
		}
		return 0, false
	}

	numEdges := int(r.ReadBits(symbolBits))
	base := r.Tell()
	end := base
	if numEdges > 0 {
		end += int64(numEdges)*(symbolBits+d.abits) - d.abits
	}

	var child int64
	found := bsearch(numEdges, func(i int) int {
		at := base
		if i > 0 {
			at += symbolBits + int64(i-1)*(symbolBits+d.abits)
		}
		r.Seek(at)
		ch := Symbol(r.ReadBits(symbolBits))
		if ch == sym {
			if i == 0 {
				child = end
			} else {
				child = int64(r.ReadBits(d.abits))
			}
		}
		return int(ch) - int(sym)
	})
	return child, found < numEdges
}

func (d *diskGaddag) IsTerminal(path string) bool {
	r := newBitSeeker(d.r)
	pos := d.firstNodeOffset
	for i := 0; i < len(path); i++ {
		sym, ok := SymbolOf(path[i])
		if !ok {
			return false
		}
		if pos, ok = d.child(r, pos, sym); !ok {
			return false
		}
	}
	r.Seek(pos)
	return r.ReadBits(1) == 1 && r.Err() == nil
}

func (d *diskGaddag) Contains(word string) bool {
	return validWord(word) && d.IsTerminal(word)
}

func (d *diskGaddag) Enumerate(fn EnumFn) {
	d.enumerate(newBitSeeker(d.r), d.firstNodeOffset, nil, fn)
}

func (d *diskGaddag) enumerate(r *bitSeeker, pos int64, path []byte, fn EnumFn) EnumerationResult {
	node, _ := d.readNode(r, pos)

	result := fn(path, node.terminal)
	if result != Continue {
		return result
	}

	l := len(path)
	path = append(path, 0)
	for _, e := range node.edges {
		path[l] = e.sym.Byte()
		if result = d.enumerate(r, e.node, path, fn); result == Stop {
			return Stop
		}
	}
	return Continue
}

func (d *diskGaddag) NumAdded() int {
	return d.numAdded
}

func (d *diskGaddag) NumNodes() int {
	return d.numNodes
}

func (d *diskGaddag) NumEdges() int {
	return d.numEdges
}

func (d *diskGaddag) Print(w io.Writer) error {
	return DumpFile(w, d.r)
}

// Close releases the underlying file, if there is one.
func (d *diskGaddag) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// DumpFile prints out the file
func DumpFile(w io.Writer, f io.ReaderAt) error {
	r := newBitSeeker(f)
	h, err := readHeader(r)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "[%08x] Size=%v bytes\n", 40, h.size)
	fmt.Fprintf(bw, "[%08x] abits=%d\n", 72, h.abits)
	fmt.Fprintf(bw, "          WordCount=%d NodeCount=%d EdgeCount=%d\n", h.numAdded, h.numNodes, h.numEdges)

	d := &diskGaddag{fileHeader: h, r: f}
	pos := h.firstNodeOffset
	for i := 0; i < h.numNodes; i++ {
		node, end := d.readNode(r, pos)
		if err := r.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}

		final := 0
		if node.terminal {
			final = 1
		}
		fmt.Fprintf(bw, "[%08x] Node final=%d has %d edges\n", pos, final, len(node.edges))
		for _, e := range node.edges {
			fmt.Fprintf(bw, "           '%v' goto <%08x>\n", e.sym, e.node)
		}
		pos = end
	}

	return bw.Flush()
}
