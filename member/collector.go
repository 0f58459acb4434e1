// Package member collects signature group members.
//
// Basic group members share the same node size, the smallest a signature
// group can have. A member is safe when its three components and all heads
// reference safe members; some groups have no safe member at the group
// size and are served by larger structures found in later passes. Smaller
// unsafe members are kept for later normalisations.
//
// The collector consumes candidates from the generator or from text files,
// decides accept/replace/drop per candidate, and finalises the member table
// by compacting, sorting and re-indexing it.
package member

import (
	"context"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/store"
	"github.com/boolforge/ternbase/tern"
)

// Options configure a collector run.
type Options struct {
	// ReadOnly keeps the member section untouched; candidates are only
	// classified and logged.
	ReadOnly bool
	// Truncate makes storage ceilings wind the run down cleanly instead
	// of failing.
	Truncate bool
	// AINF adds imprints during intake instead of probing. Faster bulk
	// loading at the cost of false positives (only tid=0 decides
	// found-ness); re-run with the next interleave for better results.
	AINF bool

	// Text selects the textual candidate log written to Out.
	Text TextMode
	Out  io.Writer

	Logger *ternbase.Logger
	Tick   *ternbase.Tick
}

// Collector is the signature-group member engine over a writable store.
type Collector struct {
	db  *store.Database
	opt Options
	log *ternbase.Logger

	// safeScores holds the accepted node count per signature group; it
	// may differ from the signature size once larger replacements win.
	safeScores []uint16

	// freeMemberRoot heads the list of orphaned member slots. A member
	// with Sid zero is on the free list.
	freeMemberRoot uint32

	// Empty and Unsafe track signature groups without members and without
	// safe members.
	Empty  *roaring.Bitmap
	Unsafe *roaring.Bitmap

	// Progress is the intake cursor; Truncated records where a storage
	// ceiling stopped the run.
	Progress      uint64
	Truncated     uint64
	TruncatedName string

	SkipDuplicate uint64
	SkipSize      uint64
	SkipUnsafe    uint64

	err error

	tree  *tern.Tree
	tree2 *tern.Tree
}

// Err reports the fatal condition that stopped intake, if any. Capacity
// exhaustion is fatal only when truncation is off.
func (c *Collector) Err() error { return c.err }

// fullSection names the first section at its storage ceiling, or "".
// Imprints and signatures only grow in add-if-not-found runs; members and
// pairs only when the store is writable.
func (c *Collector) fullSection() string {
	db := c.db
	switch {
	case c.opt.AINF && db.MaxImprint-db.NumImprint <= db.Interleave:
		return "imprint"
	case c.opt.AINF && db.MaxSignature-db.NumSignature <= 1:
		return "signature"
	case !c.opt.ReadOnly && db.MaxMember-db.NumMember <= 1:
		return "member"
	case !c.opt.ReadOnly && db.MaxPair-db.NumPair <= 3+store.MaxHead:
		return "pair"
	}
	return ""
}

// NewCollector prepares a collector over db. Group scores and the
// empty/unsafe sets are derived from the current member table.
func NewCollector(db *store.Database, opt Options) *Collector {
	if opt.Logger == nil {
		opt.Logger = ternbase.NoopLogger()
	}

	mode := tern.Mode{
		Pure:     db.Flags.Has(ternbase.FlagPure),
		Paranoid: db.Flags.Has(ternbase.FlagParanoid),
	}

	c := &Collector{
		db:     db,
		opt:    opt,
		log:    opt.Logger,
		Empty:  roaring.New(),
		Unsafe: roaring.New(),
		tree:   tern.New(mode),
		tree2:  tern.New(mode),
	}

	c.safeScores = make([]uint16, db.MaxSignature)
	for sid := uint32(1); sid < db.NumSignature; sid++ {
		sig := &db.Signatures[sid]
		if sig.Flags&store.SigFlagSafe != 0 && sig.FirstMember != 0 {
			c.safeScores[sid] = uint16(db.Members[sig.FirstMember].Size)
		}
	}
	c.recountGroups()

	return c
}

// recountGroups rebuilds the empty/unsafe signature sets.
func (c *Collector) recountGroups() {
	c.Empty.Clear()
	c.Unsafe.Clear()
	for sid := uint32(1); sid < c.db.NumSignature; sid++ {
		if c.db.Signatures[sid].FirstMember == 0 {
			c.Empty.Add(sid)
		}
		if c.db.Signatures[sid].Flags&store.SigFlagSafe == 0 {
			c.Unsafe.Add(sid)
		}
	}
}

// SyncProgress aligns the collector's cursor with the generator's.
func (c *Collector) SyncProgress(p uint64) { c.Progress = p }

// NumEmpty returns the number of memberless signature groups.
func (c *Collector) NumEmpty() uint64 { return c.Empty.GetCardinality() }

// NumUnsafe returns the number of signature groups without a safe member.
func (c *Collector) NumUnsafe() uint64 { return c.Unsafe.GetCardinality() }

// memberAlloc pops the free list or appends a new member.
func (c *Collector) memberAlloc(name string) uint32 {
	if mid := c.freeMemberRoot; mid != 0 {
		m := &c.db.Members[mid]
		c.freeMemberRoot = m.NextMember
		*m = store.Member{}
		m.SetName(name)
		return mid
	}
	return c.db.AddMember(name)
}

// memberFree zeroes an orphan so lookups miss it and pushes the slot onto
// the free list.
func (c *Collector) memberFree(mid uint32) {
	m := &c.db.Members[mid]
	*m = store.Member{}
	m.NextMember = c.freeMemberRoot
	c.freeMemberRoot = mid
}

// flushGroup removes all members of a signature group. Every live member
// holding a pair reference to a flushed member gets that reference nulled;
// only unsafe members can hold such references.
func (c *Collector) flushGroup(sid uint32) {
	sig := &c.db.Signatures[sid]
	if sig.FirstMember == 0 {
		return
	}

	if c.opt.ReadOnly {
		// member chain cannot be modified; pretend the group empties
		sig.FirstMember = 0
	} else {
		db := c.db
		for sig.FirstMember != 0 {
			victim := sig.FirstMember

			// null all pair references to the victim
			for mid := uint32(1); mid < db.NumMember; mid++ {
				m := &db.Members[mid]
				if m.Qmt != 0 && db.Pairs[m.Qmt].Mid == victim {
					c.assertUnsafeHolder(m)
					m.Qmt = 0
				}
				if m.Tmt != 0 && db.Pairs[m.Tmt].Mid == victim {
					c.assertUnsafeHolder(m)
					m.Tmt = 0
				}
				if m.Fmt != 0 && db.Pairs[m.Fmt].Mid == victim {
					c.assertUnsafeHolder(m)
					m.Fmt = 0
				}
			}

			sig.FirstMember = db.Members[victim].NextMember
			c.memberFree(victim)
		}
	}

	c.Empty.Add(sid)
}

func (c *Collector) assertUnsafeHolder(m *store.Member) {
	if c.db.Flags.Has(ternbase.FlagParanoid) && m.IsSafe() {
		panic(fmt.Sprintf("member: safe member %q references flushed member", m.NameString()))
	}
}

// Found tests whether a candidate can be a signature group member and adds
// it when possible. Implements the generator sink; returning false stops
// the run.
func (c *Collector) Found(treeR *tern.Tree, name string, numPlaceholder, numEndpoint, numBackRef uint32) bool {
	if c.Truncated != 0 {
		return false // quit as fast as possible
	}

	if c.opt.Tick != nil && c.opt.Tick.Pending() {
		c.opt.Tick.Clear()
		c.log.Debug("collecting",
			"progress", c.Progress,
			"numMember", c.db.NumMember,
			"numEmpty", c.NumEmpty(),
			"numUnsafe", c.NumUnsafe()-c.NumEmpty(),
			"skipDuplicate", c.SkipDuplicate,
			"skipSize", c.SkipSize,
			"skipUnsafe", c.SkipUnsafe,
		)
	}

	db := c.db

	// duplicate candidate name
	mix := db.LookupMember(name)
	if db.MemberIndex[mix] != 0 {
		c.SkipDuplicate++
		return true
	}

	// catch storage ceilings before they become hard faults
	if section := c.fullSection(); section != "" {
		if c.opt.Truncate {
			c.Truncated = c.Progress
			c.TruncatedName = name
			return false
		}
		c.err = &store.CapacityError{Section: section, Progress: c.Progress}
		return false
	}

	// find the matching signature group; layout only, transform recovered
	// separately
	var sid, tid uint32
	if c.opt.AINF && !c.opt.ReadOnly {
		// add-if-not-found: a genuinely new footprint set names a new
		// signature class with the candidate as canonical form
		markSid := db.NumSignature
		sid = db.AddImprintAssociative(treeR, markSid)
		if sid == markSid {
			six := db.LookupSignature(name)
			db.SignatureIndex[six] = db.AddSignature(name)

			sig := &db.Signatures[sid]
			sig.Size = uint8(treeR.Size())
			sig.NumPlaceholder = uint8(numPlaceholder)
			sig.NumEndpoint = uint8(numEndpoint)
			sig.NumBackRef = uint8(numBackRef)

			c.Empty.Add(sid)
			c.Unsafe.Add(sid)
		}
	} else {
		sid, tid = db.LookupImprintAssociative(treeR)
	}

	if sid == 0 {
		return true // no matching signature
	}

	sig := &db.Signatures[sid]
	size := treeR.Size()
	cmp := byte(0)

	// early reject by size before expensive head/tail testing
	if sig.Flags&store.SigFlagSafe != 0 {
		if size > uint32(c.safeScores[sid]) {
			cmp = '-'
		}
	} else {
		// unsafe groups collect everything that matches, but keep the
		// difference under two nodes
		if size > uint32(sig.Size)+1 {
			cmp = '-'
		}
	}

	if cmp != 0 {
		c.printCompare(sid, cmp, name, size, numPlaceholder, numEndpoint, numBackRef)
		c.SkipSize++
		return true
	}

	// resolve components and heads; the member section might be read-only
	// so work on a scratch record
	var tmp store.Member
	tmp.SetName(name)
	tmp.Sid = sid
	tmp.Tid = tid
	tmp.Size = uint8(size)
	tmp.NumPlaceholder = uint8(numPlaceholder)
	tmp.NumEndpoint = uint8(numEndpoint)
	tmp.NumBackRef = uint8(numBackRef)

	c.findHeadTail(&tmp, db.NumMember, treeR)

	// decide the outcome
	if sig.Flags&store.SigFlagSafe != 0 {
		if !tmp.IsSafe() {
			cmp = '<' // group safe, candidate not: reject
		} else if size < uint32(c.safeScores[sid]) {
			cmp = '!' // candidate strictly improves: flush first
		} else {
			cmp = '+' // both safe: accept
		}
	} else {
		if tmp.IsSafe() {
			cmp = '>' // group unsafe, candidate safe: promote
		} else {
			cmp = '=' // both unsafe: accept
		}
	}

	c.printCompare(sid, cmp, name, size, numPlaceholder, numEndpoint, numBackRef)

	if cmp == '<' {
		c.SkipUnsafe++
		return true // lost challenge
	}

	// won challenge
	if c.opt.Text == TextBrief {
		fmt.Fprintf(c.opt.Out, "%s\n", name)
	}

	if cmp == '>' || cmp == '!' {
		// group changes from unsafe to safe, or a safe group flushes:
		// remove all current members
		c.flushGroup(sid)
	}

	if cmp == '>' {
		sig.Flags |= store.SigFlagSafe
		c.Unsafe.Remove(sid)
	}

	// promote candidate to member
	c.Empty.Remove(sid)

	if c.opt.ReadOnly {
		// link a fake member to mark non-empty
		sig.FirstMember = 1
	} else {
		mid := c.memberAlloc(name)
		db.Members[mid] = tmp

		db.Members[mid].NextMember = sig.FirstMember
		sig.FirstMember = mid

		db.MemberIndex[db.LookupMember(name)] = mid
	}

	c.safeScores[sid] = uint16(size)

	return true
}

// printCompare emits one compare-mode line:
// <progress> <sid> <cmp> <name> <size> <nPh> <nEp> <nBr>
func (c *Collector) printCompare(sid uint32, cmp byte, name string, size, nPh, nEp, nBr uint32) {
	if c.opt.Text == TextCompare {
		fmt.Fprintf(c.opt.Out, "%d\t%d\t%c\t%s\t%d\t%d\t%d\t%d\n",
			c.Progress, sid, cmp, name, size, nPh, nEp, nBr)
	}
}

// InsertReserved registers the constant-false and self-reference members
// into a freshly created database.
func (c *Collector) InsertReserved(ctx context.Context) error {
	for _, name := range []string{"0", "a"} {
		if err := c.tree.LoadStringSafe(name, tern.DefaultSkin); err != nil {
			return err
		}
		nPh, nEp, nBr := tern.AnalyseName(name)
		if !c.Found(c.tree, name, nPh, nEp, nBr) {
			break
		}
		c.Progress++
	}
	return ctx.Err()
}
