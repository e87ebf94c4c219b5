package gaddag

import (
	"fmt"
	"sort"
)

// Symbol is a member of the GADDAG alphabet: the 26 letters A-Z followed by
// the separator.
type Symbol uint8

const (
	// Separator marks the point in a path where the direction of the word
	// changes.
	Separator Symbol = 26

	// NumSymbols is the size of the alphabet.
	NumSymbols = 27

	// SeparatorChar is how the separator is written in path strings.
	SeparatorChar = '>'

	symbolBits = 5
)

// SymbolOf converts a path character to a Symbol. Only 'A'-'Z' and '>' are
// accepted.
func SymbolOf(ch byte) (Symbol, bool) {
	switch {
	case ch >= 'A' && ch <= 'Z':
		return Symbol(ch - 'A'), true
	case ch == SeparatorChar:
		return Separator, true
	}
	return 0, false
}

// Byte returns the character used for the symbol in path strings.
func (s Symbol) Byte() byte {
	if s == Separator {
		return SeparatorChar
	}
	return 'A' + byte(s)
}

func (s Symbol) String() string {
	if s >= NumSymbols {
		return fmt.Sprintf("Symbol(%d)", uint8(s))
	}
	return string(s.Byte())
}

type edge struct {
	sym  Symbol
	node *Node
}

// Node is a single state in the GADDAG. Its edges are kept sorted by symbol,
// and there is at most one edge per symbol.
type Node struct {
	edges    []edge
	terminal bool

	// preorder number, assigned when the structure is finished
	id int
}

func newNode() *Node {
	return &Node{}
}

func (n *Node) search(sym Symbol) int {
	return sort.Search(len(n.edges), func(i int) bool {
		return n.edges[i].sym >= sym
	})
}

// Child returns the node reached by following sym, if there is one.
func (n *Node) Child(sym Symbol) (*Node, bool) {
	i := n.search(sym)
	if i < len(n.edges) && n.edges[i].sym == sym {
		return n.edges[i].node, true
	}
	return nil, false
}

func (n *Node) getOrCreateChild(sym Symbol) *Node {
	i := n.search(sym)
	if i < len(n.edges) && n.edges[i].sym == sym {
		return n.edges[i].node
	}

	child := newNode()
	n.edges = append(n.edges, edge{})
	copy(n.edges[i+1:], n.edges[i:])
	n.edges[i] = edge{sym: sym, node: child}
	return child
}

// markTerminal sets the terminal flag. It returns true if the flag was not
// already set.
func (n *Node) markTerminal() bool {
	if n.terminal {
		return false
	}
	n.terminal = true
	return true
}

// IsTerminal reports whether a stored path ends at this node.
func (n *Node) IsTerminal() bool {
	return n.terminal
}

// NumChildren returns the number of outgoing edges.
func (n *Node) NumChildren() int {
	return len(n.edges)
}

// Symbols returns the symbols of the outgoing edges in ascending order.
func (n *Node) Symbols() []Symbol {
	syms := make([]Symbol, len(n.edges))
	for i, e := range n.edges {
		syms[i] = e.sym
	}
	return syms
}
