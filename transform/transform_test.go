package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var set = Generate()

func TestIdentityFirst(t *testing.T) {
	assert.Equal(t, "abcdefghi", set.FwdName(0))
	assert.Equal(t, uint32(0), set.RevIDs[0])
}

func TestCount(t *testing.T) {
	require.Len(t, set.FwdData, Count)
	assert.Equal(t, "ihgfedcba", set.FwdName(Count-1))
}

func TestInvolution(t *testing.T) {
	// apply(fwd[rev[t]]) == identity, spot-checked across the range
	for tid := uint32(0); tid < Count; tid += 997 {
		rid := set.RevIDs[tid]
		fwd := set.FwdName(tid)
		rev := set.FwdName(rid)

		for k := 0; k < SlotCount; k++ {
			assert.Equal(t, byte('a'+k), rev[fwd[k]-'a'], "tid %d", tid)
		}

		// and the cross-link is symmetric
		assert.Equal(t, tid, set.RevIDs[rid], "tid %d", tid)
	}
}

func TestNamesArePermutations(t *testing.T) {
	for tid := uint32(0); tid < Count; tid += 1009 {
		var seen uint32
		name := set.FwdName(tid)
		for i := 0; i < SlotCount; i++ {
			require.GreaterOrEqual(t, name[i], byte('a'))
			require.Less(t, name[i], byte('a'+SlotCount))
			seen |= 1 << (name[i] - 'a')
		}
		assert.Equal(t, uint32(1<<SlotCount-1), seen, "tid %d", tid)
	}
}

func TestLookupRoundTrip(t *testing.T) {
	for tid := uint32(0); tid < Count; tid += 1013 {
		got, ok := set.FwdIndex.Lookup(set.FwdName(tid))
		require.True(t, ok, "tid %d", tid)
		assert.Equal(t, tid, got)
	}

	_, ok := set.FwdIndex.Lookup("aacdefghi")
	assert.False(t, ok)
	_, ok = set.FwdIndex.Lookup("abc")
	assert.False(t, ok)
}

func TestCompleteName(t *testing.T) {
	full, ok := CompleteName("bc")
	require.True(t, ok)
	assert.Equal(t, "bcadefghi", full)

	full, ok = CompleteName("")
	require.True(t, ok)
	assert.Equal(t, "abcdefghi", full)

	_, ok = CompleteName("bb")
	assert.False(t, ok)
	_, ok = CompleteName("bz")
	assert.False(t, ok)
}

func TestLookupFwdPartial(t *testing.T) {
	tid, ok := set.LookupFwd("bc")
	require.True(t, ok)
	assert.Equal(t, "bcadefghi", set.FwdName(tid))
}

func TestRevDataMatchesRevIDs(t *testing.T) {
	for tid := uint32(0); tid < Count; tid += 2003 {
		rid := set.RevIDs[tid]
		assert.Equal(t, set.FwdData[rid], set.RevData[tid], "tid %d", tid)
	}
}

func TestApplySkin(t *testing.T) {
	assert.Equal(t, "bc&", ApplySkin("ab&", "bcadefghi"))
	assert.Equal(t, "cb+a1&!", ApplySkin("ab+c1&!", "cbadefghi"))
}
