package gaddag

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidWord is returned by Add for words that are empty or contain
	// anything other than the letters A-Z. Nothing is inserted.
	ErrInvalidWord = errors.New("invalid word")

	// ErrFinalized is returned by Add once Finish has been called.
	ErrFinalized = errors.New("gaddag is finalized")
)

// EnumFn is called for every node during enumeration with the path leading
// to it and whether a stored path ends there.
type EnumFn = func(path []byte, terminal bool) EnumerationResult

// EnumerationResult is returned by the enumeration function to indicate whether
// enumeration should continue below this depth or to stop altogether
type EnumerationResult = int

const (
	// Continue enumerating all paths with this prefix
	Continue EnumerationResult = iota

	// Skip will skip all paths with this prefix
	Skip

	// Stop will immediately stop enumerating paths
	Stop
)

// Finder is the interface for querying a finished GADDAG. A GADDAG read
// from disk only implements this interface, since it cannot be added to.
type Finder interface {
	// IsTerminal reports whether path, written with letters and '>', ends
	// at a terminal node.
	IsTerminal(path string) bool
	Contains(word string) bool
	Enumerate(fn EnumFn)
	NumAdded() int
	NumEdges() int
	NumNodes() int
	Print(w io.Writer) error
	Close() error
}

// Builder is the interface for creating a new GADDAG.
type Builder interface {
	CanAdd(word string) bool
	Add(word string) error
	Finish() Finder
	Write(w io.Writer) (int64, error)
	Save(filename string) (int64, error)
}

// Gaddag is an in-memory GADDAG. It starts out accepting words, and becomes
// read-only once Finish is called.
type Gaddag struct {
	root     *Node
	finished bool
	numAdded int
	numNodes int
	numEdges int

	// scratch space for building paths
	buf []Symbol
}

// New creates a new, empty GADDAG.
func New() *Gaddag {
	return &Gaddag{root: newNode()}
}

// Root returns the root node. Nodes must not be modified through it.
func (g *Gaddag) Root() *Node {
	return g.root
}

// Finished reports whether Finish has been called.
func (g *Gaddag) Finished() bool {
	return g.finished
}

// CanAdd will return true if the word would be accepted by Add.
func (g *Gaddag) CanAdd(word string) bool {
	return !g.finished && validWord(word)
}

func validWord(word string) bool {
	if len(word) == 0 {
		return false
	}
	for i := 0; i < len(word); i++ {
		if word[i] < 'A' || word[i] > 'Z' {
			return false
		}
	}
	return true
}

// Add inserts the word and every rotation of it around each split point.
// Adding a word that is already present changes nothing.
func (g *Gaddag) Add(word string) error {
	if g.finished {
		return ErrFinalized
	}
	if !validWord(word) {
		return fmt.Errorf("%w: %q", ErrInvalidWord, word)
	}

	g.buf = forEachRotation(word, g.buf, func(path []Symbol) {
		if g.insertPath(path) && len(path) == len(word) {
			// only the plain spelling has no separator
			g.numAdded++
		}
	})
	return nil
}

// insertPath walks path from the root, creating nodes as needed, and marks
// the last node terminal. It returns true if the path was not stored before.
func (g *Gaddag) insertPath(path []Symbol) bool {
	node := g.root
	for _, sym := range path {
		node = node.getOrCreateChild(sym)
	}
	return node.markTerminal()
}

// forEachRotation calls fn with every path stored for word. For each split
// point i, with prefix word[:i] and suffix word[i:], the paths are
//
//	prefix > reverse(suffix)   (just the word itself when the suffix is empty)
//	reverse(prefix) > suffix   (only when the prefix is not empty)
//
// The path slice passed to fn is only valid during the call. buf is reused
// as scratch space and returned for the next call.
func forEachRotation(word string, buf []Symbol, fn func(path []Symbol)) []Symbol {
	n := len(word)
	for i := 0; i <= n; i++ {
		buf = buf[:0]
		for j := 0; j < i; j++ {
			buf = append(buf, Symbol(word[j]-'A'))
		}
		if i < n {
			buf = append(buf, Separator)
			for j := n - 1; j >= i; j-- {
				buf = append(buf, Symbol(word[j]-'A'))
			}
		}
		fn(buf)

		if i > 0 {
			buf = buf[:0]
			for j := i - 1; j >= 0; j-- {
				buf = append(buf, Symbol(word[j]-'A'))
			}
			buf = append(buf, Separator)
			for j := i; j < n; j++ {
				buf = append(buf, Symbol(word[j]-'A'))
			}
			fn(buf)
		}
	}
	return buf
}

// RotationPaths returns the paths that Add stores for word, written with
// '>' for the separator. Paths that coincide are listed once. It returns
// nil for words Add would reject.
func RotationPaths(word string) []string {
	if !validWord(word) {
		return nil
	}

	var paths []string
	seen := make(map[string]bool)
	forEachRotation(word, nil, func(path []Symbol) {
		s := pathString(path)
		if !seen[s] {
			seen[s] = true
			paths = append(paths, s)
		}
	})
	return paths
}

func pathString(path []Symbol) string {
	b := make([]byte, len(path))
	for i, sym := range path {
		b[i] = sym.Byte()
	}
	return string(b)
}

// Finish will mark the GADDAG as complete and return it as a Finder. No
// words can be added afterwards. Calling it again has no effect.
func (g *Gaddag) Finish() Finder {
	if !g.finished {
		g.finished = true
		g.buf = nil
		g.renumber()
	}
	return g
}

// renumber assigns preorder numbers to the nodes, visiting children in
// symbol order. The file format depends on this order.
func (g *Gaddag) renumber() {
	g.numNodes = 0
	g.numEdges = 0

	stack := []*Node{g.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node.id = g.numNodes
		g.numNodes++
		g.numEdges += len(node.edges)

		for i := len(node.edges) - 1; i >= 0; i-- {
			stack = append(stack, node.edges[i].node)
		}
	}
}

// preorder returns all nodes ordered by their preorder number.
func (g *Gaddag) preorder() []*Node {
	nodes := make([]*Node, 0, g.numNodes)
	stack := []*Node{g.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes = append(nodes, node)
		for i := len(node.edges) - 1; i >= 0; i-- {
			stack = append(stack, node.edges[i].node)
		}
	}
	return nodes
}

func (g *Gaddag) walk(path string) (*Node, bool) {
	node := g.root
	for i := 0; i < len(path); i++ {
		sym, ok := SymbolOf(path[i])
		if !ok {
			return nil, false
		}
		if node, ok = node.Child(sym); !ok {
			return nil, false
		}
	}
	return node, true
}

// Walk follows path from the root and returns the node it ends at.
func (g *Gaddag) Walk(path string) (*Node, bool) {
	return g.walk(path)
}

// IsTerminal reports whether path ends at a terminal node.
func (g *Gaddag) IsTerminal(path string) bool {
	node, ok := g.walk(path)
	return ok && node.terminal
}

// Contains reports whether word was added.
func (g *Gaddag) Contains(word string) bool {
	return validWord(word) && g.IsTerminal(word)
}

// Enumerate will call the given method, passing it every path in the
// structure, including those that are only prefixes of stored paths.
// Return Continue to continue enumeration, Skip to skip this branch, or Stop
// to stop enumeration.
func (g *Gaddag) Enumerate(fn EnumFn) {
	g.enumerate(g.root, nil, fn)
}

func (g *Gaddag) enumerate(node *Node, path []byte, fn EnumFn) EnumerationResult {
	result := fn(path, node.terminal)
	if result != Continue {
		return result
	}

	l := len(path)
	path = append(path, 0)
	for _, e := range node.edges {
		path[l] = e.sym.Byte()
		if result = g.enumerate(e.node, path, fn); result == Stop {
			return Stop
		}
	}
	return Continue
}

// NumAdded returns the number of distinct words added
func (g *Gaddag) NumAdded() int {
	return g.numAdded
}

// NumNodes returns the number of nodes. It is only known after Finish.
func (g *Gaddag) NumNodes() int {
	return g.numNodes
}

// NumEdges returns the number of edges. It is only known after Finish.
func (g *Gaddag) NumEdges() int {
	return g.numEdges
}

// Print writes a description of the encoded structure to w.
func (g *Gaddag) Print(w io.Writer) error {
	var buffer bytes.Buffer
	if _, err := g.Write(&buffer); err != nil {
		return err
	}
	return DumpFile(w, bytes.NewReader(buffer.Bytes()))
}

// Close does nothing for an in-memory GADDAG.
func (g *Gaddag) Close() error {
	return nil
}

// TerminalPaths returns every stored path of f in enumeration order.
func TerminalPaths(f Finder) []string {
	var paths []string
	f.Enumerate(func(path []byte, terminal bool) EnumerationResult {
		if terminal {
			paths = append(paths, string(path))
		}
		return Continue
	})
	return paths
}

// Thaw copies the stored paths of f into a new in-memory GADDAG and
// finishes it.
func Thaw(f Finder) (*Gaddag, error) {
	g := New()
	var err error
	var path []Symbol
	f.Enumerate(func(p []byte, terminal bool) EnumerationResult {
		if !terminal {
			return Continue
		}
		path = path[:0]
		hasSeparator := false
		for i := range p {
			sym, ok := SymbolOf(p[i])
			if !ok {
				err = fmt.Errorf("%w: unexpected symbol %q", ErrCorrupt, p[i])
				return Stop
			}
			hasSeparator = hasSeparator || sym == Separator
			path = append(path, sym)
		}
		if g.insertPath(path) && !hasSeparator {
			g.numAdded++
		}
		return Continue
	})
	if err != nil {
		return nil, err
	}
	g.Finish()
	return g, nil
}
