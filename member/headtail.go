package member

import (
	"fmt"

	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/store"
	"github.com/boolforge/ternbase/tern"
)

// findHeadTail determines the candidate's heads and tails and resolves
// their member and transform ids.
//
// Tails are the sub-expressions rooted at Q, T and F. Components might
// carry a different dyadic ordering than their free-standing form because
// the parent locks their endpoints, so a fast skin-free render is tried
// first and the safe decoder re-orders on a miss.
//
// Heads are formed by replacing, in turn, each internal node other than
// the root with a fresh placeholder and extracting the remaining tree
// while preserving dyadic ordering.
//
// A missing or unsafe component demotes the candidate to unsafe and the
// resolution stops.
// selfMid is the id the member holds or is about to receive; the reserved
// entries pair with themselves through it.
func (c *Collector) findHeadTail(m *store.Member, selfMid uint32, treeR *tern.Tree) bool {
	db := c.db

	if treeR.Root&tern.InvertBit != 0 {
		panic("member: candidate root inverted")
	}

	// safe until proven otherwise
	m.Flags |= store.MemFlagSafe

	// Reserved root entries: the constant false and the self reference
	// pair with themselves under the identity transform.
	if treeR.Root == 0 || treeR.Root == tern.KStart {
		if db.Flags.Has(ternbase.FlagParanoid) {
			want := uint32(1)
			if treeR.Root == tern.KStart {
				want = 2
			}
			if m.Sid != want {
				panic(fmt.Sprintf("member: reserved entry %q got sid %d", m.NameString(), m.Sid))
			}
		}

		m.Tid = 0

		ix := db.LookupPair(selfMid, 0)
		if db.PairIndex[ix] == 0 {
			db.PairIndex[ix] = db.AddPair(selfMid, 0)
		}
		m.Qmt = db.PairIndex[ix]
		m.Tmt = m.Qmt
		m.Fmt = m.Qmt
		return true
	}

	root := treeR.Root
	node := &treeR.N[root]

	// tails
	qmt, ok := c.resolveTail(treeR, node.Q)
	if !ok {
		m.Flags &^= store.MemFlagSafe
		return false
	}
	m.Qmt = qmt

	tu := node.T &^ tern.InvertBit
	tmt, ok := c.resolveTail(treeR, tu)
	if !ok {
		m.Flags &^= store.MemFlagSafe
		return false
	}
	m.Tmt = tmt

	if node.F == tu {
		// de-dup T/F
		m.Fmt = 0
	} else {
		fpid, ok := c.resolveTail(treeR, node.F)
		if !ok {
			m.Flags &^= store.MemFlagSafe
			return false
		}
		m.Fmt = fpid
	}

	// heads may contain stale values
	for i := range m.Heads {
		m.Heads[i] = 0
	}

	numHead := 0
	for iHead := uint32(tern.NStart); iHead < root; iHead++ {
		midHead, ok := c.resolveHead(treeR, iHead)
		if !ok {
			m.Flags &^= store.MemFlagSafe
			return false
		}

		// test if head already present
		dup := false
		for k := 0; k < numHead; k++ {
			if m.Heads[k] == midHead {
				dup = true
				break
			}
		}
		if !dup {
			if numHead >= store.MaxHead {
				panic(fmt.Sprintf("member: %q exceeds head capacity", m.NameString()))
			}
			m.Heads[numHead] = midHead
			numHead++
		}
	}

	return true
}

// resolveTail renders a sub-tree to a name with emitted skin and interns
// the (member, transform) pair. A name miss re-parses through the safe
// decoder, which restores the dyadic ordering the parent locked.
func (c *Collector) resolveTail(treeR *tern.Tree, ref uint32) (uint32, bool) {
	db := c.db

	// fast: skin-free render keeps the parent's operand order
	name, skin := treeR.SaveString(ref, true)
	ix := db.LookupMember(name)
	if db.MemberIndex[ix] == 0 {
		// slow: reload so locked back-references re-order
		plain, _ := treeR.SaveString(ref, false)
		if err := c.tree2.LoadStringSafe(plain, tern.DefaultSkin); err != nil {
			return 0, false
		}
		name, skin = c.tree2.SaveString(c.tree2.Root, true)
		ix = db.LookupMember(name)
	}

	mid := db.MemberIndex[ix]
	if mid == 0 || !db.Members[mid].IsSafe() {
		// component not found or unsafe
		return 0, false
	}

	tid, ok := db.Transforms.LookupFwd(skin)
	if !ok {
		return 0, false
	}

	pix := db.LookupPair(mid, tid)
	if db.PairIndex[pix] == 0 {
		db.PairIndex[pix] = db.AddPair(mid, tid)
	}
	return db.PairIndex[pix], true
}

// resolveHead extracts the tree with the hot node replaced by a fresh
// placeholder and looks it up as a member. Heads are member ids only; the
// layer of transforms a replacement introduces makes them unusable for
// structure creation.
func (c *Collector) resolveHead(treeR *tern.Tree, iHead uint32) (uint32, bool) {
	db := c.db
	root := treeR.Root

	// scan tree for needed nodes, ignoring the hot node
	selected := uint32(1)<<root | 1<<0
	for k := root; k >= tern.NStart; k-- {
		if k == iHead || selected&(1<<k) == 0 {
			continue
		}
		n := &treeR.N[k]
		if q := n.Q; q >= tern.NStart {
			selected |= 1 << q
		}
		if tu := n.T &^ tern.InvertBit; tu >= tern.NStart {
			selected |= 1 << tu
		}
		if f := n.F; f >= tern.NStart {
			selected |= 1 << f
		}
	}

	// extract the head, assigning placeholders to endpoints and the hot
	// node; replacing references by placeholders changes dyadic ordering
	tree := c.tree
	tree.Clear()
	selected &^= 1 << iHead

	nextPlaceholder := uint32(tern.KStart)
	var what [tern.NEnd]uint32
	what[0] = 0

	for k := uint32(tern.NStart); k <= root; k++ {
		if k == iHead || selected&(1<<k) == 0 {
			continue
		}
		n := &treeR.N[k]
		q, tu, ti, f := n.Q, n.T&^tern.InvertBit, n.T&tern.InvertBit, n.F

		assign := func(ref uint32) {
			if selected&(1<<ref) == 0 {
				what[ref] = nextPlaceholder
				nextPlaceholder++
				selected |= 1 << ref
			}
		}
		assign(q)
		assign(tu)
		assign(f)

		// mark replacement of the old node
		what[k] = tree.Count
		selected |= 1 << k

		// perform dyadic ordering
		nid := tree.Count
		switch {
		case tu == 0 && ti != 0 && tree.Compare(what[q], tree, what[f]) > 0:
			// reorder OR
			tree.N[nid] = tern.Node{Q: what[f], T: tern.InvertBit, F: what[q]}
		case tu == f && tree.Compare(what[q], tree, what[f]) > 0:
			// reorder XOR
			tree.N[nid] = tern.Node{Q: what[f], T: what[q] ^ tern.InvertBit, F: what[q]}
		case f == 0 && ti == 0 && tree.Compare(what[q], tree, what[tu]) > 0:
			// reorder AND
			tree.N[nid] = tern.Node{Q: what[tu], T: what[q], F: 0}
		default:
			tree.N[nid] = tern.Node{Q: what[q], T: what[tu] ^ ti, F: what[f]}
		}
		tree.Count++
	}

	tree.Root = tree.Count - 1

	// fast path: lookup the skin-free head notation
	name, _ := tree.SaveString(tree.Root, true)
	ix := db.LookupMember(name)
	if db.MemberIndex[ix] == 0 {
		// the extracted head may carry non-normalised dyadic ordering
		// because the removed node locked the endpoints
		plain, _ := tree.SaveString(tree.Root, false)
		if err := c.tree2.LoadStringSafe(plain, tern.DefaultSkin); err != nil {
			return 0, false
		}
		name, _ = c.tree2.SaveString(c.tree2.Root, true)
		ix = db.LookupMember(name)
	}

	mid := db.MemberIndex[ix]
	if mid == 0 || !db.Members[mid].IsSafe() {
		return 0, false
	}
	return mid, true
}
