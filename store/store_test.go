package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boolforge/ternbase/tern"
	"github.com/boolforge/ternbase/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sharedTransforms is generated once; individual tests borrow it the same
// way a build borrows an input mapping.
var sharedTransforms = transform.Generate()

func borrowTransforms(db *Database) {
	db.Transforms = *sharedTransforms
	db.NumTransform = transform.Count
	db.attachEvaluators()
}

func newTestDB(t *testing.T, interleave uint32) *Database {
	t.Helper()

	db := New(0)
	borrowTransforms(db)
	require.NoError(t, db.SetInterleave(interleave))

	db.MaxSignature = 64
	db.SignatureIndexSize = 101
	db.MaxHint = 8
	db.HintIndexSize = 101
	db.MaxImprint = interleave*48 + 2
	db.ImprintIndexSize = 100003
	db.MaxMember = 64
	db.MemberIndexSize = 101
	db.MaxPair = 64
	db.PairIndexSize = 101
	db.Create(MaskAll &^ MaskTransform)

	return db
}

// addSignature registers a canonical name with its imprints.
func addSignature(t *testing.T, db *Database, name string) uint32 {
	t.Helper()

	ix := db.LookupSignature(name)
	require.Zero(t, db.SignatureIndex[ix], "signature %q already present", name)

	sid := db.AddSignature(name)
	db.SignatureIndex[ix] = sid

	sig := &db.Signatures[sid]
	tr := tern.New(tern.Mode{})
	require.NoError(t, tr.LoadStringSafe(name, tern.DefaultSkin))
	sig.Size = uint8(tr.Size())
	nPh, nEp, nBr := tern.AnalyseName(name)
	sig.NumPlaceholder, sig.NumEndpoint, sig.NumBackRef = uint8(nPh), uint8(nEp), uint8(nBr)

	got := db.AddImprintAssociative(tr, sid)
	require.Equal(t, sid, got, "signature %q collapsed unexpectedly", name)
	return sid
}

func identityFootprint(t *testing.T, db *Database, name, skin string) tern.Footprint {
	t.Helper()
	tr := tern.New(tern.Mode{})
	require.NoError(t, tr.LoadStringSafe(name, skin))
	scratch := make([]tern.Footprint, tern.NEnd)
	return db.FwdEvaluator.Footprint(tr, 0, scratch)
}

func TestSignatureIndex(t *testing.T) {
	db := newTestDB(t, 504)

	sid := addSignature(t, db, "ab&")
	assert.Equal(t, uint32(1), sid)

	ix := db.LookupSignature("ab&")
	assert.Equal(t, sid, db.SignatureIndex[ix])

	ix = db.LookupSignature("ab+")
	assert.Zero(t, db.SignatureIndex[ix])
}

func TestPairDedup(t *testing.T) {
	db := newTestDB(t, 504)

	ix := db.LookupPair(3, 7)
	require.Zero(t, db.PairIndex[ix])
	id := db.AddPair(3, 7)
	db.PairIndex[ix] = id

	again := db.LookupPair(3, 7)
	assert.Equal(t, id, db.PairIndex[again])

	other := db.LookupPair(3, 8)
	assert.Zero(t, db.PairIndex[other])
}

func TestHintIndex(t *testing.T) {
	db := newTestDB(t, 504)

	h := Hint{}
	for i := range h.NumStored {
		h.NumStored[i] = uint32(i * i)
	}

	ix := db.LookupHint(&h)
	require.Zero(t, db.HintIndex[ix])
	db.HintIndex[ix] = db.AddHint(&h)

	assert.NotZero(t, db.HintIndex[db.LookupHint(&h)])

	h.NumStored[3]++
	assert.Zero(t, db.HintIndex[db.LookupHint(&h)])
}

func TestImprintLookupIdentity(t *testing.T) {
	db := newTestDB(t, 504)
	sid := addSignature(t, db, "ab&")

	tr := tern.New(tern.Mode{})
	require.NoError(t, tr.LoadStringSafe("ab&", tern.DefaultSkin))

	gotSid, gotTid := db.LookupImprintAssociative(tr)
	assert.Equal(t, sid, gotSid)
	assert.Equal(t, uint32(0), gotTid)
}

func TestImprintLookupUnderPermutation(t *testing.T) {
	// XOR under rotation: the lookup recovers both the class and the
	// permutation mapping the query onto the canonical member
	for _, interleave := range []uint32{120, 504} {
		db := newTestDB(t, interleave)
		sid := addSignature(t, db, "ab^c^")

		query := tern.New(tern.Mode{})
		require.NoError(t, query.LoadStringSafe("bc^a^", tern.DefaultSkin))

		gotSid, gotTid := db.LookupImprintAssociative(query)
		require.Equal(t, sid, gotSid, "interleave %d", interleave)

		// decoding the stored name under tid yields the query; XOR3 is
		// fully symmetric so the identity transform is a legal answer
		skin := db.Transforms.FwdName(gotTid)
		fp := identityFootprint(t, db, "ab^c^", skin)
		want := identityFootprint(t, db, "bc^a^", tern.DefaultSkin)
		assert.Equal(t, want, fp, "interleave %d", interleave)
	}
}

func TestImprintLookupAllTransforms(t *testing.T) {
	// every permuted variant of a 3-endpoint tree must resolve to the
	// same signature with a correct transform
	db := newTestDB(t, 504)
	sid := addSignature(t, db, "abc!")

	want := [...]string{"abc", "acb", "bac", "bca", "cab", "cba"}
	for _, perm := range want {
		skin, ok := transform.CompleteName(perm)
		require.True(t, ok)

		query := tern.New(tern.Mode{})
		require.NoError(t, query.LoadStringSafe("abc!", skin))

		gotSid, gotTid := db.LookupImprintAssociative(query)
		require.Equal(t, sid, gotSid, "perm %s", perm)

		fp := identityFootprint(t, db, "abc!", db.Transforms.FwdName(gotTid))
		wantFp := identityFootprint(t, db, "abc!", skin)
		assert.Equal(t, wantFp, fp, "perm %s", perm)
	}
}

func TestImprintLookupAsymmetric(t *testing.T) {
	// greater-than is order sensitive: the swapped query needs a real
	// transform to map onto the canonical form
	db := newTestDB(t, 504)
	sid := addSignature(t, db, "ab>")

	query := tern.New(tern.Mode{})
	require.NoError(t, query.LoadStringSafe("ab>", "bacdefghi"))

	gotSid, gotTid := db.LookupImprintAssociative(query)
	require.Equal(t, sid, gotSid)
	require.NotZero(t, gotTid)

	fp := identityFootprint(t, db, "ab>", db.Transforms.FwdName(gotTid))
	want := identityFootprint(t, db, "ab>", "bacdefghi")
	assert.Equal(t, want, fp)
}

func TestImprintMiss(t *testing.T) {
	db := newTestDB(t, 504)
	addSignature(t, db, "ab&")

	query := tern.New(tern.Mode{})
	require.NoError(t, query.LoadStringSafe("abc!", tern.DefaultSkin))

	sid, tid := db.LookupImprintAssociative(query)
	assert.Zero(t, sid)
	assert.Zero(t, tid)
}

func TestImprintDuplicateCollapses(t *testing.T) {
	db := newTestDB(t, 504)
	sid := addSignature(t, db, "ab&")

	// a permuted rendition of the same function collapses on add
	tr := tern.New(tern.Mode{})
	require.NoError(t, tr.LoadStringSafe("ab&", "bacdefghi"))

	got := db.AddImprintAssociative(tr, 99)
	assert.Equal(t, sid, got)
}

func TestInterleaveOneDegrades(t *testing.T) {
	// interleave=1 stores one footprint per signature and probes all 9!
	db := New(0)
	borrowTransforms(db)
	require.NoError(t, db.SetInterleave(1))
	assert.Equal(t, uint32(transform.Count), db.InterleaveStep)

	db.MaxSignature = 8
	db.SignatureIndexSize = 101
	db.MaxImprint = 8
	db.ImprintIndexSize = 101
	db.Create(MaskAll &^ MaskTransform)

	before := db.NumImprint
	sid := addSignature(t, db, "ab&")
	assert.Equal(t, before+1, db.NumImprint)

	query := tern.New(tern.Mode{})
	require.NoError(t, query.LoadStringSafe("ab&", "bacdefghi"))
	gotSid, _ := db.LookupImprintAssociative(query)
	assert.Equal(t, sid, gotSid)
}

func TestImprintCount(t *testing.T) {
	tr := tern.New(tern.Mode{})
	require.NoError(t, tr.LoadStringSafe("ab&", tern.DefaultSkin))

	// a symmetric 2-variable function yields far fewer distinct
	// footprints than stored rows
	n, err := ImprintCount(tr, tern.NewEvaluator(sharedTransforms.FwdData), tern.NewEvaluator(sharedTransforms.RevData), 504)
	require.NoError(t, err)
	assert.Greater(t, n, uint32(0))
	assert.LessOrEqual(t, n, uint32(72)) // 9*8 endpoint choices

	_, err = ImprintCount(tr, nil, nil, 500)
	assert.Error(t, err)
}

func TestSaveLoadFixedPoint(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "one.db")
	path2 := filepath.Join(dir, "two.db")

	db := newTestDB(t, 504)
	addSignature(t, db, "ab&")
	addSignature(t, db, "ab^c^")

	_, err := db.Save(path1)
	require.NoError(t, err)

	loaded, err := Open(path1, true)
	require.NoError(t, err)
	defer loaded.Close()

	assert.Equal(t, db.NumSignature, loaded.NumSignature)
	assert.Equal(t, db.NumImprint, loaded.NumImprint)
	assert.Equal(t, db.Interleave, loaded.Interleave)
	assert.Equal(t, "ab&", loaded.Signatures[1].NameString())

	// lookups work against the mapped image
	tr := tern.New(tern.Mode{})
	require.NoError(t, tr.LoadStringSafe("ba^c^", tern.DefaultSkin))
	sid, _ := loaded.LookupImprintAssociative(tr)
	assert.Equal(t, uint32(2), sid)

	// re-saving a loaded database is a fixed point (modulo the header
	// timestamp)
	_, err = loaded.Save(path2)
	require.NoError(t, err)

	b1, err := os.ReadFile(path1)
	require.NoError(t, err)
	b2, err := os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, b1[headerSize:], b2[headerSize:])
}

func TestOpenRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.db")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	_, err := Open(path, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestSizingFreshCreate(t *testing.T) {
	in := New(0)
	borrowTransforms(in)

	out := New(0)
	cfg := NewConfig()
	cfg.InheritSections = MaskTransform // nothing else to share

	require.NoError(t, cfg.SizeSections(out, in, 1))

	// metrics preset plus 5% margin
	assert.Equal(t, uint32(9), out.MaxSignature)
	assert.NotZero(t, out.SignatureIndexSize)
	assert.True(t, isPrimeU32(out.SignatureIndexSize), "index size %d", out.SignatureIndexSize)
	assert.Equal(t, uint32(504), out.Interleave)
	assert.True(t, isPrimeU32(out.ImprintIndexSize))
	assert.True(t, isPrimeU32(out.MemberIndexSize))
	assert.True(t, isPrimeU32(out.PairIndexSize))
}

func TestSizingUserOverride(t *testing.T) {
	in := New(0)
	borrowTransforms(in)

	out := New(0)
	cfg := NewConfig()
	cfg.InheritSections = MaskTransform
	cfg.MaxMember = 10
	cfg.MemberIndexSize = 97

	require.NoError(t, cfg.SizeSections(out, in, 1))
	assert.Equal(t, uint32(10), out.MaxMember)
	assert.Equal(t, uint32(97), out.MemberIndexSize)
}

func TestSizingMissingPreset(t *testing.T) {
	in := New(0)
	borrowTransforms(in)

	out := New(0)
	cfg := NewConfig()
	cfg.InheritSections = MaskTransform

	err := cfg.SizeSections(out, in, 9)
	require.Error(t, err)
	var pe *PresetError
	assert.ErrorAs(t, err, &pe)
}

func TestSizingInheritReadOnly(t *testing.T) {
	in := newTestDB(t, 504)
	addSignature(t, in, "ab&")

	out := New(0)
	cfg := NewConfig()
	cfg.ReadOnly = true
	cfg.CopyOnWrite = true

	require.NoError(t, cfg.SizeSections(out, in, 1))
	assert.Equal(t, in.NumSignature, out.MaxSignature)

	cfg.Populate(out, in)

	// inherited sections share backing memory with the input
	assert.NotZero(t, cfg.InheritSections&MaskSignature)
	assert.Zero(t, out.AllocMask&MaskSignature)
	assert.Same(t, &in.Signatures[0], &out.Signatures[0])
}

func TestSizingGrowthCopies(t *testing.T) {
	in := newTestDB(t, 504)
	addSignature(t, in, "ab&")

	out := New(0)
	cfg := NewConfig()
	cfg.MaxSignature = 128 // larger than input: cannot inherit
	cfg.CopyOnWrite = true

	require.NoError(t, cfg.SizeSections(out, in, 1))
	assert.Zero(t, cfg.InheritSections&MaskSignature)

	cfg.Populate(out, in)
	assert.NotZero(t, out.AllocMask&MaskSignature)
	require.Equal(t, in.NumSignature, out.NumSignature)
	assert.Equal(t, "ab&", out.Signatures[1].NameString())
	// distinct backing memory
	assert.NotSame(t, &in.Signatures[1], &out.Signatures[1])
}

func TestRebuildIndices(t *testing.T) {
	db := newTestDB(t, 504)
	addSignature(t, db, "ab&")
	addSignature(t, db, "ab+")

	clear(db.SignatureIndex)
	db.RebuildIndices(MaskSignatureIndex)

	ix := db.LookupSignature("ab+")
	assert.Equal(t, uint32(2), db.SignatureIndex[ix])
}

func TestCapacityOneSection(t *testing.T) {
	// adding to a section with room for one member succeeds exactly once:
	// MaxMember 2 holds the sentinel plus a single entry
	db := New(0)
	borrowTransforms(db)
	db.MaxMember = 2
	db.MemberIndexSize = 3
	db.Create(MaskMember | MaskMemberIndex)

	mid := db.AddMember("a")
	assert.Equal(t, uint32(1), mid)
	assert.Panics(t, func() { db.AddMember("0") })
}

func TestValidate(t *testing.T) {
	db := newTestDB(t, 504)
	sid := addSignature(t, db, "ab&")
	require.NoError(t, db.Validate())

	// a member referencing a later member id is a defect
	mid := db.AddMember("ab&")
	db.Members[mid].Sid = sid
	pix := db.LookupPair(mid+5, 0)
	db.PairIndex[pix] = db.AddPair(mid+5, 0)
	db.Members[mid].Qmt = db.PairIndex[pix]

	err := db.Validate()
	require.Error(t, err)
	var ie *InconsistentError
	assert.ErrorAs(t, err, &ie)
}

func isPrimeU32(n uint32) bool {
	if n < 2 {
		return false
	}
	for i := uint32(2); i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}
