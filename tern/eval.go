package tern

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// QuadsPerFootprint is the number of 64-bit chunks in a footprint.
const QuadsPerFootprint = 8

// Footprint is the 512-bit truth table of a tree root: one bit per state of
// the 9 input variables.
type Footprint [QuadsPerFootprint]uint64

// Invert flips all 512 bits.
func (f Footprint) Invert() Footprint {
	for i := range f {
		f[i] = ^f[i]
	}
	return f
}

// Hash folds the footprint prefix into a 64-bit value for index addressing.
func (f Footprint) Hash() uint64 {
	return f[0]
}

// basePatterns holds the footprint of each plain input variable: bit i of
// pattern k equals bit k of integer i.
var basePatterns [SlotCount]Footprint

func init() {
	for i := 0; i < 1<<SlotCount; i++ {
		for k := 0; k < SlotCount; k++ {
			if i&(1<<k) != 0 {
				basePatterns[k][i/64] |= 1 << (i % 64)
			}
		}
	}
}

// Eval walks the operator nodes in index order and computes, per 64-bit
// chunk, R = (Q & ~T) ^ (~Q & F) when T is inverted, else
// R = (Q & T) ^ (~Q & F). v must hold NEnd footprints with entries
// 0..NStart-1 preloaded (constant false plus the endpoint patterns).
func (t *Tree) Eval(v []Footprint) {
	for i := uint32(NStart); i < t.Count; i++ {
		q := &v[t.N[i].Q]
		tt := &v[t.N[i].T&^InvertBit]
		f := &v[t.N[i].F]
		r := &v[i]

		if t.N[i].T&InvertBit != 0 {
			for j := 0; j < QuadsPerFootprint; j++ {
				r[j] = (q[j] & ^tt[j]) ^ (^q[j] & f[j])
			}
		} else {
			for j := 0; j < QuadsPerFootprint; j++ {
				r[j] = (q[j] & tt[j]) ^ (^q[j] & f[j])
			}
		}
	}
}

// Evaluator produces tree footprints under variable permutations.
//
// It is parameterised by the packed transform words (forward or reverse):
// nibble k of a word names the variable that endpoint k+1 reads. The
// endpoint stripes for all transforms can optionally be preloaded; without
// preloading they are derived per call from the base patterns, which costs
// nine table lookups.
type Evaluator struct {
	words   []uint64
	stripes [][NStart]Footprint
}

// NewEvaluator creates an evaluator over the given packed transform words.
func NewEvaluator(words []uint64) *Evaluator {
	return &Evaluator{words: words}
}

// NumTransform returns the number of transforms the evaluator covers.
func (e *Evaluator) NumTransform() uint32 {
	return uint32(len(e.words))
}

// Preload materialises the endpoint stripe of every transform so that
// Footprint skips the per-call endpoint setup. The build is fanned out
// across CPUs; ctx cancels it.
func (e *Evaluator) Preload(ctx context.Context) error {
	stripes := make([][NStart]Footprint, len(e.words))

	g, ctx := errgroup.WithContext(ctx)
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(e.words) + workers - 1) / workers

	for lo := 0; lo < len(e.words); lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > len(e.words) {
			hi = len(e.words)
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%4096 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}
				loadEndpoints(&stripes[i], e.words[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	e.stripes = stripes
	return nil
}

func loadEndpoints(v *[NStart]Footprint, word uint64) {
	v[0] = Footprint{}
	for k := 0; k < SlotCount; k++ {
		v[KStart+k] = basePatterns[word>>(4*k)&15]
	}
}

// Footprint evaluates the tree under transform tid and returns the root
// footprint, with root inversion applied. scratch must hold NEnd
// footprints and is clobbered.
func (e *Evaluator) Footprint(t *Tree, tid uint32, scratch []Footprint) Footprint {
	if e.stripes != nil {
		copy(scratch[:NStart], e.stripes[tid][:])
	} else {
		scratch[0] = Footprint{}
		word := e.words[tid]
		for k := 0; k < SlotCount; k++ {
			scratch[KStart+k] = basePatterns[word>>(4*k)&15]
		}
	}

	t.Eval(scratch)

	fp := scratch[t.Root&^InvertBit]
	if t.Root&InvertBit != 0 {
		fp = fp.Invert()
	}
	return fp
}
