/*
Package gaddag is an implementation of a GADDAG, the word graph used by
placement-style word games to find moves that hook onto letters already on
the board.

A plain trie only lets you extend a word to the right from its first letter.
A GADDAG stores, for every word, a path for each point at which the word can
be split. The letters before the split point are stored in reverse, followed
by the separator symbol '>', followed by the rest of the word. The paths with
the separator on the other side of the split (prefix forward, suffix
reversed) are stored too. A search can therefore start from any fixed letter
on the board and grow the word leftwards first, then cross the separator and
grow it rightwards.

For the word CAT the stored paths are:

	>TAC  C>TA  C>AT  CA>T  AC>T  CAT  TAC>

The structure is kept as a tree. Nodes are never shared between parents, so
it is not minimized into a true acyclic graph.

To use it, create a builder with gaddag.New() and Add() uppercase words to it
in any order. Duplicates are ignored. When all words are added, call
Finish(), which returns a gaddag.Finder interface. No further words can be
added after that.

After Finish, the structure can be written to disk with Save(). Save writes
to a temporary file and renames it into place, so a failed save never leaves
a partial file behind. Load() opens the file again using a memory map and
answers queries in place without reading it into memory. The layout of the
file is described at the top of disk.go.
*/
package gaddag
