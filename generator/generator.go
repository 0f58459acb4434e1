// Package generator enumerates candidate expression trees in canonical
// postfix form.
//
// Candidates are built bottom-up from level-1 normalised nodes only, so
// every emitted tree is already in normal form. Coverage is exhaustive up
// to the node budget; structural duplicates that arise from different
// construction orders share a name and are deduplicated by the consumer.
package generator

import (
	"context"

	"github.com/boolforge/ternbase/tern"
)

// Sink consumes generated candidates. Returning false stops the run; the
// file loader and the member collector both implement it.
type Sink interface {
	Found(tree *tern.Tree, name string, numPlaceholder, numEndpoint, numBackRef uint32) bool
}

// Generator drives candidate enumeration with windowing and restart
// support.
type Generator struct {
	// Mode selects pure (QnTF-only) generation.
	Mode tern.Mode

	// WindowLo and WindowHi bound the emitted progress range; candidates
	// outside it are counted but not delivered. Zero means unbounded.
	WindowLo uint64
	WindowHi uint64

	// Progress is the candidate cursor, monotonic across Generate calls.
	Progress uint64

	// RestartPoints records the progress value at every top-level
	// construction split, the safe positions to resume a window from.
	RestartPoints []uint64

	tree    *tern.Tree
	stopped bool
}

// New creates a generator.
func New(mode tern.Mode) *Generator {
	return &Generator{
		Mode: mode,
		tree: tern.New(mode),
	}
}

// Reserved emits the two trees below every node budget: the constant
// false and the single endpoint.
func (g *Generator) Reserved(sink Sink) bool {
	g.tree.Clear()

	g.tree.Root = 0
	if !g.emit(sink, "0") {
		return false
	}

	g.tree.Root = tern.KStart
	return g.emit(sink, "a")
}

// Generate enumerates every canonical tree with exactly numNodes operator
// nodes and feeds it to the sink. ctx cancels the walk between
// candidates.
func (g *Generator) Generate(ctx context.Context, numNodes uint32, sink Sink) error {
	if numNodes == 0 {
		g.Reserved(sink)
		return ctx.Err()
	}

	g.tree.Clear()
	g.stopped = false
	g.build(ctx, numNodes, true, sink)
	return ctx.Err()
}

// emit delivers one candidate, honouring the window. Sinks that track a
// progress cursor are kept in step so their logs name the right
// candidate ordinal.
func (g *Generator) emit(sink Sink, name string) bool {
	inWindow := (g.WindowLo == 0 || g.Progress >= g.WindowLo) &&
		(g.WindowHi == 0 || g.Progress < g.WindowHi)

	if ps, ok := sink.(interface{ SyncProgress(uint64) }); ok {
		ps.SyncProgress(g.Progress)
	}
	g.Progress++

	if !inWindow {
		return true
	}

	nPh, nEp, nBr := tern.AnalyseName(name)
	return sink.Found(g.tree, name, nPh, nEp, nBr)
}

// build adds one more node in every normalised way and recurses.
func (g *Generator) build(ctx context.Context, nodesLeft uint32, topLevel bool, sink Sink) {
	if g.stopped || ctx.Err() != nil {
		return
	}

	t := g.tree

	if nodesLeft == 0 {
		// the last node is the root; every earlier node must be reachable
		t.Root = t.Count - 1
		if !g.connected() {
			return
		}

		name, _ := t.SaveString(t.Root, false)
		if !placeholdersOrdered(name) {
			return
		}
		if !g.emit(sink, name) {
			g.stopped = true
		}
		return
	}

	// operand candidates: the endpoints seen so far plus one fresh
	// placeholder, and every existing node. A fresh endpoint chosen for Q
	// unlocks the next one for T, and so on.
	refsFor := func(used uint32, withZero bool) []uint32 {
		avail := used + 1
		if avail > tern.SlotCount {
			avail = tern.SlotCount
		}
		refs := make([]uint32, 0, 1+tern.NEnd)
		if withZero {
			refs = append(refs, 0)
		}
		for k := uint32(0); k < avail; k++ {
			refs = append(refs, tern.KStart+k)
		}
		for nid := uint32(tern.NStart); nid < t.Count; nid++ {
			refs = append(refs, nid)
		}
		return refs
	}
	bump := func(used, ref uint32) uint32 {
		if ref == tern.KStart+used {
			return used + 1
		}
		return used
	}

	used := g.usedEndpoints()

	for _, q := range refsFor(used, false) {
		usedQ := bump(used, q)
		for _, toRaw := range refsFor(usedQ, true) {
			usedT := bump(usedQ, toRaw)
			for _, invert := range []uint32{tern.InvertBit, 0} {
				if invert == 0 && g.Mode.Pure {
					continue
				}
				to := toRaw | invert

				for _, f := range refsFor(usedT, true) {
					if !normalForm(q, to, f) {
						continue
					}

					if topLevel {
						g.RestartPoints = append(g.RestartPoints, g.Progress)
					}

					nid := t.Count
					t.N[nid] = tern.Node{Q: q, T: to, F: f}
					t.Count++

					g.build(ctx, nodesLeft-1, false, sink)

					t.Count--
					if g.stopped || ctx.Err() != nil {
						return
					}
				}
			}
		}
	}
}

// usedEndpoints returns how many distinct endpoints the tree references.
func (g *Generator) usedEndpoints() uint32 {
	t := g.tree
	var seen uint32
	for nid := uint32(tern.NStart); nid < t.Count; nid++ {
		for _, ref := range []uint32{t.N[nid].Q, t.N[nid].T &^ tern.InvertBit, t.N[nid].F} {
			if ref >= tern.KStart && ref < tern.NStart {
				seen |= 1 << (ref - tern.KStart)
			}
		}
	}
	n := uint32(0)
	for seen != 0 {
		n++
		seen &= seen - 1
	}
	return n
}

// connected reports whether every node is reachable from the root.
func (g *Generator) connected() bool {
	t := g.tree
	var reached uint32
	reached = 1 << t.Root

	for nid := t.Root; nid >= tern.NStart; nid-- {
		if reached&(1<<nid) == 0 {
			return false
		}
		n := &t.N[nid]
		reached |= 1 << n.Q
		reached |= 1 << (n.T &^ tern.InvertBit)
		reached |= 1 << n.F
	}
	return true
}

// normalForm reports whether a (Q,T,F) triplet survives level-1
// normalisation untouched.
func normalForm(q, to, f uint32) bool {
	tu := to &^ tern.InvertBit
	ti := to & tern.InvertBit

	if q == 0 || f&tern.InvertBit != 0 {
		return false
	}

	if ti != 0 {
		switch {
		case tu == 0:
			// OR: Q?~0:F
			return f != 0 && f != q && q < f
		case tu == q:
			return false
		case tu == f:
			// XOR: Q?~F:F
			return q < f
		default:
			// GT when F==0, else QnTF
			return f == 0 || (f != q && f != tu)
		}
	}

	switch {
	case tu == 0 || tu == q:
		return false
	case f == 0:
		// AND: Q?T:0
		return q < tu
	case tu == f || f == q:
		return false
	default:
		// QTF
		return true
	}
}

// placeholdersOrdered reports whether endpoints appear in ascending order
// of first encounter, the canonical labelling the encoder assigns.
func placeholdersOrdered(name string) bool {
	next := byte('a')
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch >= 'a' && ch <= 'z' {
			if ch > next {
				return false
			}
			if ch == next {
				next++
			}
		}
	}
	return true
}
