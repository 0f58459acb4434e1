package member

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boolforge/ternbase/store"
	"github.com/boolforge/ternbase/tern"
	"github.com/boolforge/ternbase/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sharedTransforms = transform.Generate()

func newTestStore(t *testing.T, interleave uint32) *store.Database {
	t.Helper()

	db := store.New(0)
	db.Transforms = *sharedTransforms
	db.NumTransform = transform.Count
	db.InheritTransforms(db)
	require.NoError(t, db.SetInterleave(interleave))

	db.MaxSignature = 64
	db.SignatureIndexSize = 101
	db.MaxHint = 8
	db.HintIndexSize = 101
	db.MaxImprint = interleave*60 + 2
	db.ImprintIndexSize = 100003
	db.MaxMember = 64
	db.MemberIndexSize = 101
	db.MaxPair = 256
	db.PairIndexSize = 503
	db.Create(store.MaskAll &^ store.MaskTransform)

	return db
}

func newTestCollector(t *testing.T, db *store.Database) *Collector {
	t.Helper()
	return NewCollector(db, Options{AINF: true, Truncate: true})
}

// insert feeds one canonical candidate through the collector the way the
// generator would.
func insert(t *testing.T, c *Collector, name string) {
	t.Helper()

	tree := tern.New(tern.Mode{})
	require.NoError(t, tree.LoadStringSafe(name, tern.DefaultSkin))

	nPh, nEp, nBr := tern.AnalyseName(name)
	c.Found(tree, name, nPh, nEp, nBr)
	c.Progress++
}

func seed(t *testing.T, c *Collector) {
	t.Helper()
	require.NoError(t, c.InsertReserved(context.Background()))
}

func TestScenarioEmptyToEndpoints(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)

	// two live entries beyond the reserved sentinel
	assert.Equal(t, uint32(3), db.NumSignature)
	assert.Equal(t, uint32(3), db.NumMember)

	assert.Equal(t, "0", db.Signatures[1].NameString())
	assert.Equal(t, "a", db.Signatures[2].NameString())

	for sid := uint32(1); sid <= 2; sid++ {
		sig := &db.Signatures[sid]
		assert.NotZero(t, sig.Flags&store.SigFlagSafe, "sid %d", sid)
		require.NotZero(t, sig.FirstMember, "sid %d", sid)
		m := &db.Members[sig.FirstMember]
		assert.True(t, m.IsSafe(), "sid %d", sid)
		assert.Zero(t, m.NextMember, "sid %d single member", sid)
	}
}

func TestScenarioANDCanonicalisation(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)

	insert(t, c, "ab&")
	numSig, numMem := db.NumSignature, db.NumMember

	// the swapped rendition normalises onto the canonical tree
	tree := tern.New(tern.Mode{})
	require.NoError(t, tree.LoadStringSafe("ba&", tern.DefaultSkin))
	assert.Equal(t, "ab&", tree.String())

	nPh, nEp, nBr := tern.AnalyseName("ab&")
	c.Found(tree, tree.String(), nPh, nEp, nBr)

	assert.Equal(t, numSig, db.NumSignature, "no signature created")
	assert.Equal(t, numMem, db.NumMember, "no member created")

	// a permuted query resolves to the same class
	require.NoError(t, tree.LoadStringSafe("ab&", "bacdefghi"))
	sid, _ := db.LookupImprintAssociative(tree)
	assert.Equal(t, uint32(3), sid)
}

func TestScenarioXORUnderRotation(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)
	insert(t, c, "ab^")
	insert(t, c, "ab^c^")

	six := db.LookupSignature("ab^c^")
	sid := db.SignatureIndex[six]
	require.NotZero(t, sid)

	query := tern.New(tern.Mode{})
	require.NoError(t, query.LoadStringSafe("bc^a^", tern.DefaultSkin))

	gotSid, gotTid := db.LookupImprintAssociative(query)
	require.Equal(t, sid, gotSid)

	// decoding the stored name under tid yields the query
	stored := tern.New(tern.Mode{})
	require.NoError(t, stored.LoadStringSafe("ab^c^", db.Transforms.FwdName(gotTid)))

	scratch := make([]tern.Footprint, tern.NEnd)
	fpStored := db.FwdEvaluator.Footprint(stored, 0, scratch)
	fpQuery := db.FwdEvaluator.Footprint(query, 0, scratch)
	assert.Equal(t, fpQuery, fpStored)
}

func TestScenarioSafeSupersedesUnsafe(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)

	// "ab^c^" arrives before its "ab^" component exists: unsafe
	insert(t, c, "ab^c^")

	six := db.LookupSignature("ab^c^")
	sid := db.SignatureIndex[six]
	require.NotZero(t, sid)
	sig := &db.Signatures[sid]

	assert.Zero(t, sig.Flags&store.SigFlagSafe)
	require.NotZero(t, sig.FirstMember)
	assert.False(t, db.Members[sig.FirstMember].IsSafe())

	// the component class arrives and is safe
	insert(t, c, "ab^")

	numMember := db.NumMember

	// an equivalent construction with resolvable components supersedes
	insert(t, c, "ac^b^")

	assert.NotZero(t, sig.Flags&store.SigFlagSafe)
	require.NotZero(t, sig.FirstMember)
	m := &db.Members[sig.FirstMember]
	assert.Equal(t, "ac^b^", m.NameString())
	assert.True(t, m.IsSafe())
	assert.Zero(t, m.NextMember, "group holds the single safe member")

	// the orphaned slot was reused for the winner, no growth
	assert.Equal(t, numMember, db.NumMember)

	// the flushed name no longer resolves
	assert.Zero(t, db.MemberIndex[db.LookupMember("ab^c^")])
}

func TestScenarioTruncation(t *testing.T) {
	db := newTestStore(t, 504)
	db.MaxMember = 8
	db.Members = make([]store.Member, 8)
	db.NumMember = 1

	c := newTestCollector(t, db)
	seed(t, c)

	names := []string{
		"ab&", "ab+", "ab>", "ab^", "abc!", "abc?",
		"ab&c&", "ab+c+", "ab^c^", "ab&c+", "ab+c&", "ab>c>",
	}
	var list strings.Builder
	for _, n := range names {
		list.WriteString(n + "\n")
	}

	err := c.FromFile(strings.NewReader(list.String()), 0, 0)
	require.NoError(t, err, "truncation is not an error")

	assert.NotZero(t, c.Truncated)
	assert.NotEmpty(t, c.TruncatedName)
	assert.LessOrEqual(t, db.NumMember, uint32(8))

	// the wound-down database still finalises and saves cleanly
	c.Finalise()
	require.NoError(t, c.CheckGroupInvariants())

	path := filepath.Join(t.TempDir(), "trunc.db")
	_, err = db.Save(path)
	require.NoError(t, err)

	loaded, err := store.Open(path, true)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, db.NumMember, loaded.NumMember)
}

func TestCapacityFatalWithoutTruncate(t *testing.T) {
	db := newTestStore(t, 504)
	db.MaxMember = 4
	db.Members = make([]store.Member, 4)
	db.NumMember = 1

	c := NewCollector(db, Options{AINF: true})
	seed(t, c)

	err := c.FromFile(strings.NewReader("ab&\nab+\nab^\n"), 0, 0)
	require.Error(t, err)
	var ce *store.CapacityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "member", ce.Section)
}

func TestScenarioInterleaveRoundTrip(t *testing.T) {
	db := newTestStore(t, 120)
	c := newTestCollector(t, db)
	seed(t, c)

	names := []string{"ab&", "ab+", "ab>", "ab^", "abc!", "ab^c^", "ab&c&"}
	for _, n := range names {
		insert(t, c, n)
	}

	queries := []string{"ba&", "cb^a^", "bc&a&", "ab>", "cab!"}
	before := make(map[string]string)
	for _, q := range queries {
		tree := tern.New(tern.Mode{})
		require.NoError(t, tree.LoadStringSafe(q, tern.DefaultSkin))
		sid, _ := db.LookupImprintAssociative(tree)
		require.NotZero(t, sid, "query %q at interleave 120", q)
		before[q] = db.Signatures[sid].NameString()
	}

	// rebuild the imprints at a different interleave
	require.NoError(t, db.SetInterleave(504))
	db.MaxImprint = 504*60 + 2
	db.Imprints = make([]store.Imprint, db.MaxImprint)
	db.NumImprint = 1
	stats := db.RebuildImprints(false, 0, 0, nil)
	assert.Zero(t, stats.Truncated)

	for _, q := range queries {
		tree := tern.New(tern.Mode{})
		require.NoError(t, tree.LoadStringSafe(q, tern.DefaultSkin))
		sid, _ := db.LookupImprintAssociative(tree)
		require.NotZero(t, sid, "query %q at interleave 504", q)
		assert.Equal(t, before[q], db.Signatures[sid].NameString(), "query %q", q)
	}
}

func TestFinaliseIdempotent(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)
	for _, n := range []string{"ab&", "ab+", "ab^", "ab^c^"} {
		insert(t, c, n)
	}

	c.Finalise()
	require.NoError(t, c.CheckGroupInvariants())

	snap1 := make([]store.Member, db.NumMember)
	copy(snap1, db.Members[:db.NumMember])
	index1 := make([]uint32, len(db.MemberIndex))
	copy(index1, db.MemberIndex)

	c.Finalise()

	assert.Equal(t, snap1, db.Members[:db.NumMember])
	assert.Equal(t, index1, db.MemberIndex)
}

func TestFinaliseDropsOrphans(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)
	insert(t, c, "ab^c^") // unsafe, later flushed
	insert(t, c, "bc^a^") // second unsafe member of the same group
	insert(t, c, "ab^")
	insert(t, c, "ac^b^") // flushes both, reusing one freed slot

	orphans := uint32(0)
	for mid := uint32(1); mid < db.NumMember; mid++ {
		if db.Members[mid].Sid == 0 {
			orphans++
		}
	}
	require.NotZero(t, orphans)

	c.Finalise()

	for mid := uint32(1); mid < db.NumMember; mid++ {
		assert.NotZero(t, db.Members[mid].Sid, "mid %d", mid)
	}
}

func TestMemberReferencesPointDown(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)
	for _, n := range []string{"ab&", "ab+", "ab^", "ab&c&", "ab^c^"} {
		insert(t, c, n)
	}
	c.Finalise()

	for mid := uint32(1); mid < db.NumMember; mid++ {
		m := &db.Members[mid]
		for _, pid := range []uint32{m.Qmt, m.Tmt, m.Fmt} {
			if pid != 0 {
				assert.LessOrEqual(t, db.Pairs[pid].Mid, mid, "mid %d", mid)
			}
		}
		for _, head := range m.Heads {
			assert.Less(t, head, mid, "mid %d", mid)
		}
	}
}

func TestCompareTextMode(t *testing.T) {
	db := newTestStore(t, 504)
	var buf bytes.Buffer
	c := NewCollector(db, Options{AINF: true, Text: TextCompare, Out: &buf})
	seed(t, c)
	insert(t, c, "ab&")

	out := buf.String()
	assert.Contains(t, out, "ab&")
	// progress, sid, cmp, name, size, nPh, nEp, nBr
	line := strings.Split(out, "\n")[2]
	fields := strings.Split(line, "\t")
	require.Len(t, fields, 8)
}

func TestWriteMembersModes(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)
	insert(t, c, "ab&")
	c.Finalise()

	var brief bytes.Buffer
	c.WriteMembers(&brief, TextMembers)
	assert.Contains(t, brief.String(), "ab&\n")

	var verbose bytes.Buffer
	c.WriteMembers(&verbose, TextVerbose)
	assert.Contains(t, verbose.String(), "ab&")
	assert.Contains(t, verbose.String(), "S")

	var sql bytes.Buffer
	c.WriteMembers(&sql, TextSQL)
	assert.Contains(t, sql.String(), "insert ignore into member")
}

func TestLoaderWindow(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)

	list := "ab&\nab+\nab^\n"
	// progress starts at 2 after the reserved entries; window the middle
	require.NoError(t, c.FromFile(strings.NewReader(list), 3, 4))

	assert.NotZero(t, db.SignatureIndex[db.LookupSignature("ab+")])
	assert.Zero(t, db.SignatureIndex[db.LookupSignature("ab&")])
	assert.Zero(t, db.SignatureIndex[db.LookupSignature("ab^")])
}

func TestLoaderVerifiesCounts(t *testing.T) {
	db := newTestStore(t, 504)
	c := newTestCollector(t, db)
	seed(t, c)

	err := c.FromFile(strings.NewReader("ab& 2 2 0\n"), 0, 0)
	require.NoError(t, err)

	err = c.FromFile(strings.NewReader("ab+ 9 9 9\n"), 0, 0)
	require.Error(t, err)
	var le *LineError
	assert.ErrorAs(t, err, &le)
}

func TestCandidateFileCompression(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"plain.lst", "packed.lst.zst", "packed.lst.lz4"} {
		path := filepath.Join(dir, name)

		w, err := CreateCandidateFile(path)
		require.NoError(t, err, name)
		_, err = w.Write([]byte("ab&\nab+\n"))
		require.NoError(t, err, name)
		require.NoError(t, w.Close(), name)

		r, err := OpenCandidateFile(path)
		require.NoError(t, err, name)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(r)
		require.NoError(t, err, name)
		require.NoError(t, r.Close(), name)

		assert.Equal(t, "ab&\nab+\n", buf.String(), name)
	}
}
