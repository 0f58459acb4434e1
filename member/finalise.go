package member

import (
	"sort"

	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/store"
	"github.com/boolforge/ternbase/tern"
)

// compareMembers orders the member table for finalisation: orphans gather
// at the end, safe members first, deprecated last, components first, then
// by structure score with a full tree compare as tie-break.
func (c *Collector) compareMembers(l, r *store.Member) int {
	// empties gather towards the end
	if l.Sid == 0 && r.Sid == 0 {
		return 0
	}
	if l.Sid == 0 {
		return +1
	}
	if r.Sid == 0 {
		return -1
	}

	// safes go first
	if l.IsSafe() != r.IsSafe() {
		if l.IsSafe() {
			return -1
		}
		return +1
	}

	// depreciates go last
	if l.Flags&store.MemFlagDepr != r.Flags&store.MemFlagDepr {
		if l.Flags&store.MemFlagDepr != 0 {
			return +1
		}
		return -1
	}

	// components go first
	if l.Flags&store.MemFlagComponent != r.Flags&store.MemFlagComponent {
		if l.Flags&store.MemFlagComponent != 0 {
			return -1
		}
		return +1
	}

	lName, rName := l.NameString(), r.NameString()

	if cmp := int(tern.ScoreName(lName)) - int(tern.ScoreName(rName)); cmp != 0 {
		return cmp
	}

	c.tree.LoadStringFast(lName, tern.DefaultSkin)
	c.tree2.LoadStringFast(rName, tern.DefaultSkin)
	return c.tree.Compare(c.tree.Root, c.tree2, c.tree2.Root)
}

// Finalise compacts the member table: orphans are dropped, the remainder
// sorted and re-indexed, pair ids become dense and ordered, each
// signature's chain is relinked best-first, and the component flags are
// recomputed. Running it twice produces identical tables.
func (c *Collector) Finalise() {
	db := c.db

	c.log.Info("sorting members", "numMember", db.NumMember)

	// clear pair section
	db.NumPair = 1
	clear(db.PairIndex)

	// clear member index and linked lists, mark signatures unsafe
	clear(db.MemberIndex)
	for sid := uint32(0); sid < db.NumSignature; sid++ {
		db.Signatures[sid].FirstMember = 0
		db.Signatures[sid].Flags &^= store.SigFlagSafe
	}
	c.freeMemberRoot = 0
	c.SkipDuplicate, c.SkipSize, c.SkipUnsafe = 0, 0, 0

	// sort entries, skipping the reserved first
	live := db.Members[1:db.NumMember]
	sort.SliceStable(live, func(i, j int) bool {
		return c.compareMembers(&live[i], &live[j]) < 0
	})

	// lower the live count past the orphans
	for db.NumMember > 1 && db.Members[db.NumMember-1].Sid == 0 {
		db.NumMember--
	}

	c.log.Info("indexing members", "numMember", db.NumMember)

	tree := tern.New(tern.Mode{
		Pure:     db.Flags.Has(ternbase.FlagPure),
		Paranoid: db.Flags.Has(ternbase.FlagParanoid),
	})

	for mid := uint32(1); mid < db.NumMember; mid++ {
		m := &db.Members[mid]
		sig := &db.Signatures[m.Sid]

		wasSafe := m.IsSafe()

		// recalculate head/tail so pair ids come out dense and ordered
		tree.LoadStringFast(m.NameString(), tern.DefaultSkin)
		isSafe := c.findHeadTail(m, mid, tree)

		// a safe member must remain safe
		if wasSafe && !isSafe {
			c.log.Warn("safe member lost its components",
				"mid", mid,
				"name", m.NameString(),
			)
		}

		switch {
		case sig.FirstMember == 0:
			// first member decides group safety
			if m.IsSafe() {
				sig.Flags |= store.SigFlagSafe
			}
		case m.IsSafe() && sig.Flags&store.SigFlagSafe != 0:
			// adding safe members to a safe signature
		case !m.IsSafe() && sig.Flags&store.SigFlagSafe == 0:
			// adding unsafe members to an unsafe signature
		case m.IsSafe():
			// a safe member reached an unsafe signature: the input list
			// was not properly ordered
			c.log.Warn("adding safe member to unsafe signature",
				"mid", mid,
				"name", m.NameString(),
				"sid", m.Sid,
				"signature", sig.NameString(),
			)
			sig.Flags |= store.SigFlagSafe
		default:
			// reject adding an unsafe member to a safe group
			c.SkipUnsafe++
			continue
		}

		// the walk links ahead of the chain relink below; mark non-empty
		if sig.FirstMember == 0 {
			sig.FirstMember = mid
		}

		ix := db.LookupMember(m.NameString())
		if db.MemberIndex[ix] != 0 {
			c.SkipDuplicate++
			continue
		}
		db.MemberIndex[ix] = mid
	}

	// string the members to their signatures, best one first in list
	for sid := uint32(0); sid < db.NumSignature; sid++ {
		db.Signatures[sid].FirstMember = 0
	}
	for mid := db.NumMember - 1; mid >= 1; mid-- {
		m := &db.Members[mid]
		sig := &db.Signatures[m.Sid]
		m.NextMember = sig.FirstMember
		sig.FirstMember = mid
	}

	c.log.Info("indexed members", "numMember", db.NumMember, "skipUnsafe", c.SkipUnsafe)

	// flag component members: everything a safe member references
	for mid := uint32(1); mid < db.NumMember; mid++ {
		db.Members[mid].Flags &^= store.MemFlagComponent
	}
	for mid := uint32(1); mid < db.NumMember; mid++ {
		m := &db.Members[mid]
		if !m.IsSafe() {
			continue
		}
		if m.Qmt != 0 {
			db.Members[db.Pairs[m.Qmt].Mid].Flags |= store.MemFlagComponent
		}
		if m.Tmt != 0 {
			db.Members[db.Pairs[m.Tmt].Mid].Flags |= store.MemFlagComponent
		}
		if m.Fmt != 0 {
			db.Members[db.Pairs[m.Fmt].Mid].Flags |= store.MemFlagComponent
		}
		for _, head := range m.Heads {
			if head != 0 {
				db.Members[head].Flags |= store.MemFlagComponent
			}
		}
	}

	// recalculate empty/unsafe groups
	c.recountGroups()

	if c.NumEmpty() != 0 || c.NumUnsafe() != 0 {
		c.log.Warn("groups without safe members remain",
			"numEmpty", c.NumEmpty(),
			"numUnsafe", c.NumUnsafe(),
		)
	}
}

// CheckGroupInvariants verifies that unsafe groups hold no safe members
// and that every safe group leads with a safe member.
func (c *Collector) CheckGroupInvariants() error {
	db := c.db
	for sid := uint32(1); sid < db.NumSignature; sid++ {
		sig := &db.Signatures[sid]
		if sig.Flags&store.SigFlagSafe == 0 {
			for mid := sig.FirstMember; mid != 0; mid = db.Members[mid].NextMember {
				if db.Members[mid].IsSafe() {
					return &store.InconsistentError{Detail: "unsafe group holds safe member"}
				}
			}
		} else if sig.FirstMember == 0 || !db.Members[sig.FirstMember].IsSafe() {
			return &store.InconsistentError{Detail: "safe group without leading safe member"}
		}
	}
	return nil
}
