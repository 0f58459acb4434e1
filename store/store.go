// Package store implements the packed knowledge-base database: contiguous
// entity sections with open-addressed hash indices, memory-mapped loading
// of a read-only input image, and the sizing / inherit / copy-on-write /
// rebuild policy that keeps an input store and a writable output store
// consistent under changes.
package store

import (
	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/tern"
	"github.com/boolforge/ternbase/transform"
)

const (
	// SignatureNameLen bounds a canonical signature name.
	SignatureNameLen = 16

	// MemberNameLen bounds a member notation.
	MemberNameLen = 32

	// MaxHead is the number of head references a member can carry.
	MaxHead = 6

	// HintEntries is the number of per-interleave counters in a hint.
	HintEntries = 16
)

// Signature flags.
const (
	// SigFlagSafe marks a signature group whose first member is safe.
	SigFlagSafe uint8 = 1 << iota
)

// Member flags.
const (
	// MemFlagSafe marks a member whose components and heads are all safe.
	MemFlagSafe uint8 = 1 << iota
	// MemFlagComponent marks a member referenced by a safe member.
	MemFlagComponent
	// MemFlagLocked marks a member pinned by external datasets.
	MemFlagLocked
	// MemFlagDepr marks a deprecated member, sorted last within its kind.
	MemFlagDepr
	// MemFlagDelete marks a member scheduled for removal.
	MemFlagDelete
)

// Signature is a canonical equivalence class of trees modulo input
// permutation and level-1 normalisation.
type Signature struct {
	Name           [SignatureNameLen]byte
	Flags          uint8
	Size           uint8
	NumPlaceholder uint8
	NumEndpoint    uint8
	NumBackRef     uint8
	_              [3]byte
	FirstMember    uint32
	HintID         uint32
}

// NameString returns the canonical name.
func (s *Signature) NameString() string { return cstr(s.Name[:]) }

// SetName stores the canonical name.
func (s *Signature) SetName(name string) { setCstr(s.Name[:], name) }

// Hint is a vector of imprint counts, one per interleave preset.
type Hint struct {
	NumStored [HintEntries]uint32
}

// Imprint associates a footprint with its signature. Tid is the transform
// rank the footprint was stored under; lookups combine it with the probe
// rank to recover the permutation mapping a query onto the canonical form.
type Imprint struct {
	Footprint tern.Footprint
	Sid       uint32
	Tid       uint32
}

// Member is a concrete tree accepted as representative for a signature.
type Member struct {
	Name           [MemberNameLen]byte
	Sid            uint32
	Tid            uint32
	Qmt            uint32 // pair id of the Q component
	Tmt            uint32 // pair id of the T component
	Fmt            uint32 // pair id of the F component
	Heads          [MaxHead]uint32
	NextMember     uint32
	Size           uint8
	NumPlaceholder uint8
	NumEndpoint    uint8
	NumBackRef     uint8
	Flags          uint8
	_              [3]byte
}

// NameString returns the member notation.
func (m *Member) NameString() string { return cstr(m.Name[:]) }

// SetName stores the member notation.
func (m *Member) SetName(name string) { setCstr(m.Name[:], name) }

// IsSafe reports whether the member carries the safe flag.
func (m *Member) IsSafe() bool { return m.Flags&MemFlagSafe != 0 }

// Pair is a (member id, transform id) tuple denoting "component X under
// permutation Y". Deduplicated through its own hash index.
type Pair struct {
	Mid uint32
	Tid uint32
}

// SectionMask selects database sections.
type SectionMask uint32

const (
	MaskTransform SectionMask = 1 << iota
	MaskSignature
	MaskSignatureIndex
	MaskHint
	MaskHintIndex
	MaskImprint
	MaskImprintIndex
	MaskMember
	MaskMemberIndex
	MaskPair
	MaskPairIndex
)

// MaskAll covers every section.
const MaskAll = MaskTransform |
	MaskSignature | MaskSignatureIndex |
	MaskHint | MaskHintIndex |
	MaskImprint | MaskImprintIndex |
	MaskMember | MaskMemberIndex |
	MaskPair | MaskPairIndex

func (m SectionMask) String() string {
	names := []struct {
		bit  SectionMask
		name string
	}{
		{MaskTransform, "transform"},
		{MaskSignature, "signature"},
		{MaskSignatureIndex, "signatureIndex"},
		{MaskHint, "hint"},
		{MaskHintIndex, "hintIndex"},
		{MaskImprint, "imprint"},
		{MaskImprintIndex, "imprintIndex"},
		{MaskMember, "member"},
		{MaskMemberIndex, "memberIndex"},
		{MaskPair, "pair"},
		{MaskPairIndex, "pairIndex"},
	}
	out := ""
	for _, n := range names {
		if m&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	return out
}

// Database holds all entity sections plus their hash indices. Sections are
// either owned heap slices or borrowed views into a read-only mapping;
// AllocMask records which are owned.
type Database struct {
	// Flags the database was created with.
	Flags ternbase.Flags

	// Interleave is the number of stored permutations per signature;
	// InterleaveStep the probe stride. interleaveRows selects the stored
	// transform set (see metrics.Interleave).
	Interleave     uint32
	InterleaveStep uint32
	interleaveRows bool

	NumTransform uint32
	Transforms   transform.Set

	MaxSignature       uint32
	NumSignature       uint32
	Signatures         []Signature
	SignatureIndexSize uint32
	SignatureIndex     []uint32

	MaxHint       uint32
	NumHint       uint32
	Hints         []Hint
	HintIndexSize uint32
	HintIndex     []uint32

	MaxImprint       uint32
	NumImprint       uint32
	Imprints         []Imprint
	ImprintIndexSize uint32
	ImprintIndex     []uint32

	MaxMember       uint32
	NumMember       uint32
	Members         []Member
	MemberIndexSize uint32
	MemberIndex     []uint32

	MaxPair       uint32
	NumPair       uint32
	Pairs         []Pair
	PairIndexSize uint32
	PairIndex     []uint32

	// FwdEvaluator and RevEvaluator produce footprints under forward and
	// reverse transforms.
	FwdEvaluator *tern.Evaluator
	RevEvaluator *tern.Evaluator

	// AllocMask marks sections whose memory is owned (freeable) rather
	// than borrowed from the mapping or another database.
	AllocMask SectionMask

	// CntHash and CntCompare count index probes and key comparisons, the
	// classic load-factor health metric.
	CntHash    uint64
	CntCompare uint64

	mapped      *image
	evalScratch []tern.Footprint
}

// New creates an empty database shell.
func New(flags ternbase.Flags) *Database {
	return &Database{Flags: flags}
}

// Close releases the backing mapping, if any. Borrowed sections become
// invalid.
func (db *Database) Close() error {
	if db.mapped == nil {
		return nil
	}
	m := db.mapped
	db.mapped = nil
	return m.Close()
}

// attachEvaluators wires the transform words to the evaluators.
func (db *Database) attachEvaluators() {
	db.FwdEvaluator = tern.NewEvaluator(db.Transforms.FwdData)
	db.RevEvaluator = tern.NewEvaluator(db.Transforms.RevData)
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func setCstr(dst []byte, s string) {
	n := copy(dst, s)
	for ; n < len(dst); n++ {
		dst[n] = 0
	}
}
