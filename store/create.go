package store

import (
	"fmt"

	"github.com/boolforge/ternbase/metrics"
	"github.com/boolforge/ternbase/transform"
)

// SetInterleave applies an interleave preset. The value must be one of the
// allowed presets of the metrics table.
func (db *Database) SetInterleave(interleave uint32) error {
	row := metrics.GetInterleave(transform.SlotCount, interleave)
	if row == nil {
		return &PresetError{What: "interleave", Value: uint64(interleave)}
	}
	db.Interleave = row.NumStored
	db.InterleaveStep = row.Step
	db.interleaveRows = row.Rows
	return nil
}

// CreateTransforms computes the transform tables. Performed once at first
// database creation and inherited ever after.
func (db *Database) CreateTransforms() {
	db.Transforms = *transform.Generate()
	db.NumTransform = transform.Count
	db.AllocMask |= MaskTransform
	db.attachEvaluators()
}

// InheritTransforms borrows the transform tables of another database.
func (db *Database) InheritTransforms(src *Database) {
	if src.NumTransform != transform.Count {
		panic(fmt.Sprintf("store: input carries %d transforms, want %d", src.NumTransform, transform.Count))
	}
	db.Transforms = src.Transforms
	db.NumTransform = src.NumTransform
	db.AllocMask &^= MaskTransform
	db.attachEvaluators()
}

// Create allocates the sections selected by mask according to the
// previously assigned capacities. Fresh data sections receive their
// reserved sentinel entry: id 0 is never a valid record.
func (db *Database) Create(mask SectionMask) {
	if mask&MaskSignature != 0 && db.MaxSignature > 0 {
		db.Signatures = make([]Signature, db.MaxSignature)
		db.NumSignature = 1
		db.AllocMask |= MaskSignature
	}
	if mask&MaskSignatureIndex != 0 && db.SignatureIndexSize > 0 {
		db.SignatureIndex = make([]uint32, db.SignatureIndexSize)
		db.AllocMask |= MaskSignatureIndex
	}

	if mask&MaskHint != 0 && db.MaxHint > 0 {
		db.Hints = make([]Hint, db.MaxHint)
		db.NumHint = 1
		db.AllocMask |= MaskHint
	}
	if mask&MaskHintIndex != 0 && db.HintIndexSize > 0 {
		db.HintIndex = make([]uint32, db.HintIndexSize)
		db.AllocMask |= MaskHintIndex
	}

	if mask&MaskImprint != 0 && db.MaxImprint > 0 {
		db.Imprints = make([]Imprint, db.MaxImprint)
		db.NumImprint = 1
		db.AllocMask |= MaskImprint
	}
	if mask&MaskImprintIndex != 0 && db.ImprintIndexSize > 0 {
		db.ImprintIndex = make([]uint32, db.ImprintIndexSize)
		db.AllocMask |= MaskImprintIndex
	}

	if mask&MaskMember != 0 && db.MaxMember > 0 {
		db.Members = make([]Member, db.MaxMember)
		db.NumMember = 1
		db.AllocMask |= MaskMember
	}
	if mask&MaskMemberIndex != 0 && db.MemberIndexSize > 0 {
		db.MemberIndex = make([]uint32, db.MemberIndexSize)
		db.AllocMask |= MaskMemberIndex
	}

	if mask&MaskPair != 0 && db.MaxPair > 0 {
		db.Pairs = make([]Pair, db.MaxPair)
		db.NumPair = 1
		db.AllocMask |= MaskPair
	}
	if mask&MaskPairIndex != 0 && db.PairIndexSize > 0 {
		db.PairIndex = make([]uint32, db.PairIndexSize)
		db.AllocMask |= MaskPairIndex
	}
}
