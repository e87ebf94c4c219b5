package gaddag

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const batchPaths = 4096

type pathBatch struct {
	syms []Symbol
	ends []int // end offset of each path in syms
}

// ParallelBuilder builds a GADDAG using several goroutines. Every stored
// path starts with a symbol leading out of the root, and the subtrees below
// the root's children never share nodes, so each worker owns the subtrees
// of a fixed set of first symbols in a private GADDAG. The shards are merged
// by Finish. The result is identical to adding the same words to New().
type ParallelBuilder struct {
	group    *errgroup.Group
	parent   context.Context
	ctx      context.Context
	shards   []*Gaddag
	inputs   []chan pathBatch
	pending  []pathBatch
	buf      []Symbol
	finished bool
}

// NewParallel starts a builder with the given number of workers, which is
// clamped to the range 1 to NumSymbols. Workers stop when ctx is cancelled.
func NewParallel(ctx context.Context, workers int) *ParallelBuilder {
	workers = max(1, min(workers, NumSymbols))

	group, groupCtx := errgroup.WithContext(ctx)
	p := &ParallelBuilder{
		group:   group,
		parent:  ctx,
		ctx:     groupCtx,
		shards:  make([]*Gaddag, workers),
		inputs:  make([]chan pathBatch, workers),
		pending: make([]pathBatch, workers),
	}

	for i := range p.shards {
		shard := New()
		input := make(chan pathBatch, 4)
		p.shards[i] = shard
		p.inputs[i] = input

		group.Go(func() error {
			for batch := range input {
				start := 0
				for _, end := range batch.ends {
					path := batch.syms[start:end]
					if shard.insertPath(path) && !containsSeparator(path) {
						shard.numAdded++
					}
					start = end
				}
				if err := groupCtx.Err(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return p
}

func containsSeparator(path []Symbol) bool {
	for _, sym := range path {
		if sym == Separator {
			return true
		}
	}
	return false
}

func (p *ParallelBuilder) shardOf(first Symbol) int {
	return int(first) % len(p.shards)
}

// CanAdd will return true if the word would be accepted by Add.
func (p *ParallelBuilder) CanAdd(word string) bool {
	return !p.finished && validWord(word)
}

// Add queues the rotations of word for insertion. It returns an error if the
// builder was finished or the workers have stopped.
func (p *ParallelBuilder) Add(word string) error {
	if p.finished {
		return ErrFinalized
	}
	if !validWord(word) {
		return fmt.Errorf("%w: %q", ErrInvalidWord, word)
	}

	var err error
	p.buf = forEachRotation(word, p.buf, func(path []Symbol) {
		if err != nil {
			return
		}
		i := p.shardOf(path[0])
		batch := &p.pending[i]
		batch.syms = append(batch.syms, path...)
		batch.ends = append(batch.ends, len(batch.syms))
		if len(batch.ends) >= batchPaths {
			err = p.flush(i)
		}
	})
	return err
}

func (p *ParallelBuilder) flush(i int) error {
	if len(p.pending[i].ends) == 0 {
		return nil
	}
	select {
	case p.inputs[i] <- p.pending[i]:
		p.pending[i] = pathBatch{}
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Finish waits for the workers and merges their shards into one finished
// GADDAG. It returns the first worker error, or the context error if the
// build was cancelled.
func (p *ParallelBuilder) Finish() (*Gaddag, error) {
	if p.finished {
		return nil, ErrFinalized
	}
	p.finished = true

	var err error
	for i := range p.inputs {
		if err == nil {
			err = p.flush(i)
		}
		close(p.inputs[i])
	}
	if werr := p.group.Wait(); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	// workers that never received a batch do not see the cancellation
	if err := p.parent.Err(); err != nil {
		return nil, err
	}
	return merge(p.shards), nil
}

// merge joins GADDAGs whose roots have disjoint sets of outgoing symbols.
func merge(shards []*Gaddag) *Gaddag {
	g := New()
	for _, shard := range shards {
		for _, e := range shard.root.edges {
			i := g.root.search(e.sym)
			g.root.edges = append(g.root.edges, edge{})
			copy(g.root.edges[i+1:], g.root.edges[i:])
			g.root.edges[i] = e
		}
		g.numAdded += shard.numAdded
	}
	g.Finish()
	return g
}
