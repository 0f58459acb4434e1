package tern

import (
	"context"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityWord packs the identity permutation: nibble k holds k.
func identityWord() uint64 {
	var w uint64
	for k := uint64(0); k < SlotCount; k++ {
		w |= k << (4 * k)
	}
	return w
}

func TestNormaliseBoundaries(t *testing.T) {
	tr := New(Mode{Paranoid: true})

	q := uint32(KStart)     // a
	f := uint32(KStart + 1) // b

	// 0?T:F -> F
	assert.Equal(t, f, tr.Normalise(0, InvertBit, f))

	// Q?~0:0 -> Q
	assert.Equal(t, q, tr.Normalise(q, InvertBit, 0))

	// SELF => OR: Q?Q:F == Q?~0:F
	or1 := tr.Normalise(q, q, f)
	or2 := tr.Normalise(q, InvertBit, f)
	assert.Equal(t, or2, or1)

	// Q?~Q:0 -> 0
	assert.Equal(t, uint32(0), tr.Normalise(q, q^InvertBit, 0))

	// Q?F:F -> F
	assert.Equal(t, f, tr.Normalise(q, f, f))
}

func TestNormaliseDyadicOrdering(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"ba&", "ab&"},
		{"ba+", "ab+"},
		{"ba^", "ab^"},
		{"ab&", "ab&"},
		{"ab>", "ab>"},
		{"ab&c&", "cab&&"},
	} {
		tr := New(Mode{})
		require.NoError(t, tr.LoadStringSafe(tc.in, DefaultSkin))
		assert.Equal(t, tc.want, tr.String(), "input %q", tc.in)
	}
}

func TestNormaliseInvertLift(t *testing.T) {
	tr := New(Mode{})

	// a?~b:~c == ~(a?b:c)
	a, b, c := uint32(KStart), uint32(KStart+1), uint32(KStart+2)
	lhs := tr.Normalise(a, b^InvertBit, c^InvertBit)
	rhs := tr.Normalise(a, b, c) ^ InvertBit
	assert.Equal(t, rhs, lhs)
}

func TestPureExpansion(t *testing.T) {
	tr := New(Mode{Pure: true})
	require.NoError(t, tr.LoadStringSafe("ab&", DefaultSkin))

	// every node must have T inverted
	for nid := uint32(NStart); nid < tr.Count; nid++ {
		assert.NotZero(t, tr.N[nid].T&InvertBit, "node %d", nid)
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	names := []string{
		"0",
		"a",
		"ab&",
		"ab+",
		"ab^",
		"ab>",
		"abc!",
		"abc?",
		"cab^^",
		"ab+cd+&",
		"ab&cd&^",
		"abc!~",
	}
	for _, name := range names {
		tr := New(Mode{})
		require.NoError(t, tr.LoadStringSafe(name, DefaultSkin), "name %q", name)
		assert.Equal(t, name, tr.String(), "name %q", name)
	}
}

func TestDecodeFastMatchesSafe(t *testing.T) {
	names := []string{"ab&", "cab^^", "abc!", "ab+cd+&"}
	for _, name := range names {
		fast := New(Mode{})
		fast.LoadStringFast(name, DefaultSkin)

		safe := New(Mode{})
		require.NoError(t, safe.LoadStringSafe(name, DefaultSkin))

		assert.Zero(t, fast.Compare(fast.Root, safe, safe.Root), "name %q", name)
	}
}

func TestEncodeWithSkin(t *testing.T) {
	tr := New(Mode{})
	require.NoError(t, tr.LoadStringSafe("cb&", DefaultSkin))

	name, skin := tr.SaveString(tr.Root, true)
	assert.Equal(t, "ab&", name)
	assert.Equal(t, "bc", skin)

	// decoding under the reported skin reproduces the tree
	back := New(Mode{})
	require.NoError(t, back.LoadStringSafe(name, skin))
	assert.Zero(t, tr.Compare(tr.Root, back, back.Root))
}

func TestEncodeBackReference(t *testing.T) {
	// ab^ feeds both operands of the next XOR: name uses a back-reference
	tr := New(Mode{})
	a, b, c := uint32(KStart), uint32(KStart+1), uint32(KStart+2)
	x := tr.Normalise(a, b^InvertBit, b)
	y := tr.Normalise(x, c^InvertBit, c)
	z := tr.Normalise(x, y, 0)
	tr.Root = z

	name, _ := tr.SaveString(tr.Root, false)
	round := New(Mode{})
	require.NoError(t, round.LoadStringSafe(name, DefaultSkin))
	assert.Zero(t, tr.Compare(tr.Root, round, round.Root))
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		kind ParseKind
	}{
		{"ab", ParseIncomplete},
		{"+", ParseUnderflow},
		{"a%b&", ParseSyntax},
		{"ab&&", ParseUnderflow},
	} {
		tr := New(Mode{})
		err := tr.LoadStringSafe(tc.name, DefaultSkin)
		require.Error(t, err, "name %q", tc.name)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, "name %q", tc.name)
		assert.Equal(t, tc.kind, pe.Kind, "name %q", tc.name)
	}

	// skin with too few placeholders
	tr := New(Mode{})
	err := tr.LoadStringSafe("ab&", "a")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ParsePlaceholder, pe.Kind)
}

func TestEvalEndpoints(t *testing.T) {
	ev := NewEvaluator([]uint64{identityWord()})
	scratch := make([]Footprint, NEnd)

	tr := New(Mode{})
	require.NoError(t, tr.LoadStringSafe("a", DefaultSkin))
	fp := ev.Footprint(tr, 0, scratch)
	assert.Equal(t, basePatterns[0], fp)

	// every endpoint pattern has exactly half its bits set
	for k := 0; k < SlotCount; k++ {
		n := 0
		for _, q := range basePatterns[k] {
			n += bits.OnesCount64(q)
		}
		assert.Equal(t, 256, n, "slot %d", k)
	}
}

func TestEvalOperators(t *testing.T) {
	ev := NewEvaluator([]uint64{identityWord()})
	scratch := make([]Footprint, NEnd)

	count := func(name string) int {
		tr := New(Mode{})
		require.NoError(t, tr.LoadStringSafe(name, DefaultSkin))
		fp := ev.Footprint(tr, 0, scratch)
		n := 0
		for _, q := range fp {
			n += bits.OnesCount64(q)
		}
		return n
	}

	assert.Equal(t, 128, count("ab&"))
	assert.Equal(t, 384, count("ab+"))
	assert.Equal(t, 256, count("ab^"))
	assert.Equal(t, 128, count("ab>"))
	assert.Equal(t, 512-128, count("ab&~"))
}

func TestEvalPureEquivalence(t *testing.T) {
	ev := NewEvaluator([]uint64{identityWord()})
	scratch := make([]Footprint, NEnd)

	qtf := New(Mode{})
	require.NoError(t, qtf.LoadStringSafe("abc?", DefaultSkin))
	fp1 := ev.Footprint(qtf, 0, scratch)

	pure := New(Mode{Pure: true})
	require.NoError(t, pure.LoadStringSafe("abc?", DefaultSkin))
	fp2 := ev.Footprint(pure, 0, scratch)

	assert.Equal(t, fp1, fp2)
}

func TestEvaluatorPreload(t *testing.T) {
	// a rotated word: endpoint k reads variable k+1 (mod 9)
	var rotated uint64
	for k := uint64(0); k < SlotCount; k++ {
		rotated |= ((k + 1) % SlotCount) << (4 * k)
	}

	words := []uint64{identityWord(), rotated}
	plain := NewEvaluator(words)
	preloaded := NewEvaluator(words)
	require.NoError(t, preloaded.Preload(context.Background()))

	tr := New(Mode{})
	require.NoError(t, tr.LoadStringSafe("ab&c^", DefaultSkin))

	scratch := make([]Footprint, NEnd)
	for tid := uint32(0); tid < 2; tid++ {
		want := plain.Footprint(tr, tid, scratch)
		got := preloaded.Footprint(tr, tid, scratch)
		assert.Equal(t, want, got, "tid %d", tid)
	}
}

func TestAnalyseName(t *testing.T) {
	nPh, nEp, nBr := AnalyseName("ab^c1&!")
	assert.Equal(t, uint32(3), nPh)
	assert.Equal(t, uint32(3), nEp)
	assert.Equal(t, uint32(1), nBr)

	nPh, nEp, nBr = AnalyseName("aab&+")
	assert.Equal(t, uint32(2), nPh)
	assert.Equal(t, uint32(3), nEp)
	assert.Equal(t, uint32(0), nBr)
}

func TestScoreName(t *testing.T) {
	// node count dominates
	assert.Less(t, ScoreName("ab&"), ScoreName("ab&c&"))
	// ternary weighs more than dyadic at equal node count
	assert.Less(t, ScoreName("ab^c^"), ScoreName("ab^c2!"))
}
