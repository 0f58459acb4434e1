package store

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/boolforge/ternbase/metrics"
	"github.com/boolforge/ternbase/tern"
	"github.com/boolforge/ternbase/transform"
)

// RebuildIndices regenerates the hash indices selected by mask from their
// data sections. Data sections themselves cannot be rebuilt, only
// inherited or copied.
func (db *Database) RebuildIndices(mask SectionMask) {
	if mask&MaskSignatureIndex != 0 && db.SignatureIndexSize > 0 {
		clear(db.SignatureIndex)
		for sid := uint32(1); sid < db.NumSignature; sid++ {
			ix := db.LookupSignature(db.Signatures[sid].NameString())
			if db.SignatureIndex[ix] == 0 {
				db.SignatureIndex[ix] = sid
			}
		}
	}

	if mask&MaskHintIndex != 0 && db.HintIndexSize > 0 {
		clear(db.HintIndex)
		for id := uint32(1); id < db.NumHint; id++ {
			ix := db.LookupHint(&db.Hints[id])
			if db.HintIndex[ix] == 0 {
				db.HintIndex[ix] = id
			}
		}
	}

	if mask&MaskMemberIndex != 0 && db.MemberIndexSize > 0 {
		clear(db.MemberIndex)
		for mid := uint32(1); mid < db.NumMember; mid++ {
			if db.Members[mid].Sid == 0 {
				// orphan on the free list
				continue
			}
			ix := db.LookupMember(db.Members[mid].NameString())
			if db.MemberIndex[ix] == 0 {
				db.MemberIndex[ix] = mid
			}
		}
	}

	if mask&MaskPairIndex != 0 && db.PairIndexSize > 0 {
		clear(db.PairIndex)
		for id := uint32(1); id < db.NumPair; id++ {
			ix := db.LookupPair(db.Pairs[id].Mid, db.Pairs[id].Tid)
			if db.PairIndex[ix] == 0 {
				db.PairIndex[ix] = id
			}
		}
	}
}

// RebuildStats summarises an imprint rebuild: which signature groups are
// empty and which unsafe, and where the rebuild truncated (zero when it
// completed).
type RebuildStats struct {
	Empty     *roaring.Bitmap
	Unsafe    *roaring.Bitmap
	Truncated uint32
}

// RebuildImprints recreates the imprint section from the signature names.
// With unsafeOnly only empty/unsafe signature groups are indexed. A
// non-zero sid window restricts the range. The progress callback, when
// non-nil, is invoked per signature and may stop the walk by returning
// false.
func (db *Database) RebuildImprints(unsafeOnly bool, sidLo, sidHi uint32, progress func(sid uint32) bool) RebuildStats {
	stats := RebuildStats{
		Empty:  roaring.New(),
		Unsafe: roaring.New(),
	}

	clear(db.ImprintIndex)
	if db.NumSignature < 2 {
		return stats
	}

	// skip reserved entry
	db.NumImprint = 1

	t := tern.New(tern.Mode{})

	for sid := uint32(1); sid < db.NumSignature; sid++ {
		if progress != nil && !progress(sid) {
			stats.Truncated = sid
			break
		}
		if (sidLo != 0 && sid < sidLo) || (sidHi != 0 && sid >= sidHi) {
			continue
		}

		sig := &db.Signatures[sid]

		if !unsafeOnly || sig.Flags&SigFlagSafe == 0 {
			// avoid hard storage-full, give warning later
			if db.MaxImprint-db.NumImprint <= db.Interleave && sidHi == 0 {
				stats.Truncated = sid
				break
			}

			t.LoadStringFast(sig.NameString(), tern.DefaultSkin)
			if foundSid, _ := db.LookupImprintAssociative(t); foundSid == 0 {
				db.AddImprintAssociative(t, sid)
			}
		}

		if sig.FirstMember == 0 {
			stats.Empty.Add(sid)
		}
		if sig.Flags&SigFlagSafe == 0 {
			stats.Unsafe.Add(sid)
		}
	}

	return stats
}

// RebuildImprintsWithHints recreates imprints for empty/unsafe signatures
// in increasing order of their measured imprint count at the active
// interleave, which reduces the chance of hitting the data-capacity
// ceiling before small groups are indexed. Inactive presets compare
// descending as tie-break.
func (db *Database) RebuildImprintsWithHints(progress func(sid uint32) bool) RebuildStats {
	stats := RebuildStats{
		Empty:  roaring.New(),
		Unsafe: roaring.New(),
	}

	clear(db.ImprintIndex)
	if db.NumSignature < 2 {
		return stats
	}
	db.NumImprint = 1

	activeHint := metrics.InterleaveIndex(transform.SlotCount, db.Interleave)
	if activeHint < 0 {
		activeHint = 0
	}

	// ordered vector of unsafe signatures
	order := make([]uint32, 0, db.NumSignature)
	for sid := uint32(1); sid < db.NumSignature; sid++ {
		if db.Signatures[sid].Flags&SigFlagSafe == 0 {
			order = append(order, sid)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		hi := &db.Hints[db.Signatures[order[i]].HintID]
		hj := &db.Hints[db.Signatures[order[j]].HintID]

		// first compare active preset (lowest first)
		if hi.NumStored[activeHint] != hj.NumStored[activeHint] {
			return hi.NumStored[activeHint] < hj.NumStored[activeHint]
		}
		// then compare inactive presets (highest first)
		for k := 0; k < HintEntries; k++ {
			if k == activeHint {
				continue
			}
			if hi.NumStored[k] != hj.NumStored[k] {
				return hi.NumStored[k] > hj.NumStored[k]
			}
		}
		return false
	})

	t := tern.New(tern.Mode{})

	for _, sid := range order {
		if progress != nil && !progress(sid) {
			stats.Truncated = sid
			break
		}

		if db.MaxImprint-db.NumImprint <= db.Interleave {
			stats.Truncated = sid
			break
		}

		t.LoadStringFast(db.Signatures[sid].NameString(), tern.DefaultSkin)
		if foundSid, _ := db.LookupImprintAssociative(t); foundSid == 0 {
			db.AddImprintAssociative(t, sid)
		}
	}

	for sid := uint32(1); sid < db.NumSignature; sid++ {
		if db.Signatures[sid].FirstMember == 0 {
			stats.Empty.Add(sid)
		}
		if db.Signatures[sid].Flags&SigFlagSafe == 0 {
			stats.Unsafe.Add(sid)
		}
	}

	return stats
}
