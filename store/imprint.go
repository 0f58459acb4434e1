package store

import (
	"fmt"

	"github.com/boolforge/ternbase/tern"
)

// The imprint index is the associative signature lookup. For each
// signature, Interleave of the 9! permutations are selected and the root
// footprint under each is stored. At query time a tree's footprint is
// probed under InterleaveStep complementary permutations; the rank
// factorisation of lexicographic permutation order guarantees exactly one
// combination lands, so associativity is lossless.
//
// Two layouts exist, selected by the preset: row mode stores the
// transversal {0, step, 2*step, ...} under reverse transforms and probes
// forward ranks 0..step-1; column mode stores the forward prefix
// 0..interleave-1 and probes reverse transversal ranks. In both, the
// recovered transform id maps the query onto the stored canonical form.

// lookupImprint finds the index slot for a footprint: the slot holding a
// matching imprint id or the empty slot where it belongs. Collisions walk
// an open-addressed chain comparing the full 512-bit key.
func (db *Database) lookupImprint(fp *tern.Footprint) uint32 {
	db.CntHash++
	ix, bump := probeStart(fp.Hash(), db.ImprintIndexSize)
	for {
		id := db.ImprintIndex[ix]
		if id == 0 {
			return ix
		}
		db.CntCompare++
		if db.Imprints[id].Footprint == *fp {
			return ix
		}
		ix += bump
		if ix >= db.ImprintIndexSize {
			ix -= db.ImprintIndexSize
		}
	}
}

func (db *Database) addImprint(fp *tern.Footprint, sid, tid uint32) uint32 {
	if db.NumImprint >= db.MaxImprint {
		panic(fmt.Sprintf("store: imprint section overflow at %d", db.NumImprint))
	}
	id := db.NumImprint
	db.NumImprint++
	db.Imprints[id] = Imprint{Footprint: *fp, Sid: sid, Tid: tid}
	return id
}

// storedRank returns the i-th stored transform rank for the active
// interleave.
func (db *Database) storedRank(i uint32) uint32 {
	if db.interleaveRows {
		return i * db.InterleaveStep
	}
	return i
}

// probeRank returns the i-th probe transform rank for the active
// interleave.
func (db *Database) probeRank(i uint32) uint32 {
	if db.interleaveRows {
		return i
	}
	return i * db.Interleave
}

// recoverTid combines a stored rank and a probe rank into the transform
// that maps the query onto the canonical form.
func (db *Database) recoverTid(storedTid, probeTid uint32) uint32 {
	if db.interleaveRows {
		// stored under reverse of the transversal: the composed rank needs
		// one more inversion
		return db.Transforms.RevIDs[storedTid+probeTid]
	}
	return probeTid + storedTid
}

func (db *Database) scratch() []tern.Footprint {
	if db.evalScratch == nil {
		db.evalScratch = make([]tern.Footprint, tern.NEnd)
	}
	return db.evalScratch
}

// AddImprintAssociative adds the imprints of a tree for signature sid.
// When the tree's footprint is already present under another signature the
// addition collapses and the existing signature id is returned; otherwise
// sid is returned.
func (db *Database) AddImprintAssociative(t *tern.Tree, sid uint32) uint32 {
	v := db.scratch()

	for i := uint32(0); i < db.Interleave; i++ {
		rank := db.storedRank(i)

		var fp tern.Footprint
		if db.interleaveRows {
			fp = db.RevEvaluator.Footprint(t, rank, v)
		} else {
			fp = db.FwdEvaluator.Footprint(t, rank, v)
		}

		ix := db.lookupImprint(&fp)
		if id := db.ImprintIndex[ix]; id != 0 {
			if i == 0 && db.Imprints[id].Sid != sid {
				// duplicate discovered, collapse to the existing class
				return db.Imprints[id].Sid
			}
			// footprint shared within the class under symmetry
			continue
		}
		db.ImprintIndex[ix] = db.addImprint(&fp, sid, rank)
	}

	return sid
}

// LookupImprintAssociative finds the signature of a tree. On a hit it
// returns the signature id and the transform id mapping the query onto the
// canonical member; on a miss it returns (0, 0).
func (db *Database) LookupImprintAssociative(t *tern.Tree) (sid, tid uint32) {
	if db.ImprintIndexSize == 0 {
		return 0, 0
	}
	v := db.scratch()

	for i := uint32(0); i < db.InterleaveStep; i++ {
		rank := db.probeRank(i)

		var fp tern.Footprint
		if db.interleaveRows {
			fp = db.FwdEvaluator.Footprint(t, rank, v)
		} else {
			fp = db.RevEvaluator.Footprint(t, rank, v)
		}

		ix := db.lookupImprint(&fp)
		if id := db.ImprintIndex[ix]; id != 0 {
			imp := &db.Imprints[id]
			return imp.Sid, db.recoverTid(imp.Tid, rank)
		}
	}

	return 0, 0
}

// ImprintCount measures how many imprints a tree would produce at a given
// interleave preset without touching the database, used to build hints.
func ImprintCount(t *tern.Tree, fwd, rev *tern.Evaluator, interleave uint32) (uint32, error) {
	var db Database
	if err := db.SetInterleave(interleave); err != nil {
		return 0, err
	}

	v := make([]tern.Footprint, tern.NEnd)
	seen := make(map[tern.Footprint]struct{}, db.Interleave)

	for i := uint32(0); i < db.Interleave; i++ {
		rank := db.storedRank(i)
		var fp tern.Footprint
		if db.interleaveRows {
			fp = rev.Footprint(t, rank, v)
		} else {
			fp = fwd.Footprint(t, rank, v)
		}
		seen[fp] = struct{}{}
	}
	return uint32(len(seen)), nil
}
