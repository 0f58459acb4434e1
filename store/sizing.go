package store

import (
	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/metrics"
	"github.com/boolforge/ternbase/transform"
)

// Config carries the sizing decisions for a build step: user overrides,
// the index/data ratio, and the per-section inherit/rebuild state that the
// policy updates as it runs.
//
// The workflow, evaluated once at the start of a build:
//   - size output sections according to command-line overrides
//   - if none given for a section, inherit, consult metrics, or match the
//     input live count depending on mode
//   - any change to the hashing properties of an index invalidates it and
//     requires rebuilding
//   - with copy-on-write, sections that fit within the input are inherited
//     (shared read-only with the mapping), otherwise copied
//   - all indices must have at least one entry more than their data
//   - all data sections keep the reserved first entry
type Config struct {
	MaxSignature uint32
	MaxHint      uint32
	MaxImprint   uint32
	MaxMember    uint32
	MaxPair      uint32

	SignatureIndexSize uint32
	HintIndexSize      uint32
	ImprintIndexSize   uint32
	MemberIndexSize    uint32
	PairIndexSize      uint32

	Interleave uint32
	Ratio      float64

	// CopyOnWrite shares unchanged sections with the input mapping.
	CopyOnWrite bool
	// ReadOnly forbids resizing beyond the input.
	ReadOnly bool

	// InheritSections are shared with the input; RebuildSections are
	// allocated empty and regenerated. A rebuild flag clears the inherit
	// flag.
	InheritSections SectionMask
	RebuildSections SectionMask
}

// NewConfig returns a config with everything inheritable and the default
// ratio.
func NewConfig() *Config {
	return &Config{
		Ratio:           metrics.DefaultRatio,
		InheritSections: MaskAll,
	}
}

// sizeData runs the five-step priority list for one data section.
func (cfg *Config) sizeData(userMax uint32, inheritBit SectionMask, inNum uint32, preset uint32, presetName string) (uint32, error) {
	switch {
	case userMax != 0:
		// user specified
		return userMax, nil
	case cfg.InheritSections&inheritBit != 0:
		// inherited, pass-through
		return inNum, nil
	case !cfg.ReadOnly:
		// resize using metrics, with a margin of error
		if preset == 0 {
			return 0, &PresetError{What: presetName}
		}
		return metrics.RaisePercent(preset, 5), nil
	case inNum != 0:
		// non-empty, pass-through
		return inNum, nil
	default:
		// empty, create minimal sized section
		return 1, nil
	}
}

// sizeIndex runs the priority list for one index section.
func (cfg *Config) sizeIndex(userSize uint32, inheritBit SectionMask, dataMax, inSize uint32) uint32 {
	switch {
	case dataMax == 0:
		// no data to index
		return 0
	case userSize != 0:
		return userSize
	case cfg.InheritSections&inheritBit != 0:
		return inSize
	case !cfg.ReadOnly:
		return metrics.NextPrime(uint64(float64(dataMax) * cfg.Ratio))
	case inSize != 0:
		return inSize
	default:
		return 1
	}
}

// settleData updates the inherit state after sizing a data section.
func (cfg *Config) settleData(bit SectionMask, outMax, inNum uint32) {
	if outMax > inNum {
		// disable inherit when the section wants to grow
		cfg.InheritSections &^= bit
	} else if cfg.CopyOnWrite {
		// inherit when the section fits and copy-on-write
		cfg.InheritSections |= bit
	}
}

// settleIndex updates the inherit/rebuild state after sizing an index.
func (cfg *Config) settleIndex(bit SectionMask, outSize, inSize uint32) {
	if outSize != inSize {
		// source section is missing or unusable
		cfg.RebuildSections |= bit
		cfg.InheritSections &^= cfg.RebuildSections
	} else if cfg.CopyOnWrite {
		cfg.InheritSections |= bit
	}
}

// SizeSections decides the output capacity of every section, in the
// priority order: user override, inherited input size, metrics preset plus
// margin, input live count, minimal.
func (cfg *Config) SizeSections(out, in *Database, numNodes uint32) error {
	cfg.InheritSections &^= cfg.RebuildSections

	pure := out.Flags.Has(ternbase.FlagPure)
	gen := metrics.GetGenerator(transform.SlotCount, pure, numNodes)
	genNum := func(pick func(*metrics.Generator) uint32) uint32 {
		if gen == nil {
			return 0
		}
		return pick(gen)
	}

	var err error

	/*
	 * signature
	 */
	out.MaxSignature, err = cfg.sizeData(cfg.MaxSignature, MaskSignature, in.NumSignature,
		genNum(func(g *metrics.Generator) uint32 { return g.NumSignature }), "maxsignature")
	if err != nil {
		return err
	}
	cfg.settleData(MaskSignature, out.MaxSignature, in.NumSignature)

	out.SignatureIndexSize = cfg.sizeIndex(cfg.SignatureIndexSize, MaskSignatureIndex, out.MaxSignature, in.SignatureIndexSize)
	if out.SignatureIndexSize != 0 {
		cfg.settleIndex(MaskSignatureIndex, out.SignatureIndexSize, in.SignatureIndexSize)
	}

	/*
	 * hint
	 */
	out.MaxHint, err = cfg.sizeData(cfg.MaxHint, MaskHint, in.NumHint,
		genNum(func(g *metrics.Generator) uint32 { return g.NumHint }), "maxhint")
	if err != nil {
		return err
	}
	cfg.settleData(MaskHint, out.MaxHint, in.NumHint)

	out.HintIndexSize = cfg.sizeIndex(cfg.HintIndexSize, MaskHintIndex, out.MaxHint, in.HintIndexSize)
	if out.HintIndexSize != 0 {
		cfg.settleIndex(MaskHintIndex, out.HintIndexSize, in.HintIndexSize)
	}

	/*
	 * imprint
	 */

	// interleave is not a section but a setting
	interleave := cfg.Interleave
	if interleave == 0 {
		if in.Interleave != 0 {
			interleave = in.Interleave
		} else {
			interleave = metrics.DefaultInterleave
		}
	}
	if err := out.SetInterleave(interleave); err != nil {
		return err
	}
	if out.Interleave != in.Interleave {
		// change of interleave triggers a rebuild (implicitly disables inherit)
		cfg.RebuildSections |= MaskImprint
		cfg.InheritSections &^= cfg.RebuildSections
	}

	if out.MaxSignature == 0 {
		out.Interleave = 0
		out.InterleaveStep = 0
		out.MaxImprint = 0
	} else {
		switch {
		case cfg.MaxImprint != 0:
			out.MaxImprint = cfg.MaxImprint
		case cfg.InheritSections&MaskImprint != 0:
			out.MaxImprint = in.NumImprint
		case !cfg.ReadOnly:
			imp := metrics.GetImprint(transform.SlotCount, pure, out.Interleave, numNodes)
			if imp == nil {
				return &PresetError{What: "maximprint", Value: uint64(out.Interleave)}
			}
			out.MaxImprint = metrics.RaisePercent(imp.NumImprint, 5)
		case in.NumImprint != 0:
			out.MaxImprint = in.NumImprint
		default:
			// empty, degrade to the minimal interleave
			if err := out.SetInterleave(1); err != nil {
				return err
			}
			out.MaxImprint = 1
		}

		// imprint as data
		cfg.settleData(MaskImprint, out.MaxImprint, in.NumImprint)

		// imprint as index
		if in.NumImprint == 0 || out.Interleave != in.Interleave {
			cfg.RebuildSections |= MaskImprint
			cfg.InheritSections &^= cfg.RebuildSections
		} else if cfg.CopyOnWrite {
			cfg.InheritSections |= MaskImprint
		}
	}

	out.ImprintIndexSize = cfg.sizeIndex(cfg.ImprintIndexSize, MaskImprintIndex, out.MaxImprint, in.ImprintIndexSize)
	if out.ImprintIndexSize != 0 {
		cfg.settleIndex(MaskImprintIndex, out.ImprintIndexSize, in.ImprintIndexSize)
	}

	/*
	 * member
	 */
	out.MaxMember, err = cfg.sizeData(cfg.MaxMember, MaskMember, in.NumMember,
		genNum(func(g *metrics.Generator) uint32 { return g.NumMember }), "maxmember")
	if err != nil {
		return err
	}
	cfg.settleData(MaskMember, out.MaxMember, in.NumMember)

	out.MemberIndexSize = cfg.sizeIndex(cfg.MemberIndexSize, MaskMemberIndex, out.MaxMember, in.MemberIndexSize)
	if out.MemberIndexSize != 0 {
		cfg.settleIndex(MaskMemberIndex, out.MemberIndexSize, in.MemberIndexSize)
	}

	/*
	 * pair
	 */
	out.MaxPair, err = cfg.sizeData(cfg.MaxPair, MaskPair, in.NumPair,
		genNum(func(g *metrics.Generator) uint32 { return g.NumPair }), "maxpair")
	if err != nil {
		return err
	}
	cfg.settleData(MaskPair, out.MaxPair, in.NumPair)

	out.PairIndexSize = cfg.sizeIndex(cfg.PairIndexSize, MaskPairIndex, out.MaxPair, in.PairIndexSize)
	if out.PairIndexSize != 0 {
		cfg.settleIndex(MaskPairIndex, out.PairIndexSize, in.PairIndexSize)
	}

	// rebuilt sections cannot be inherited
	cfg.InheritSections &^= cfg.RebuildSections

	// output data must be large enough to fit input data
	if out.MaxSignature < in.NumSignature {
		return &InconsistentError{Detail: "maxsignature below input live count"}
	}
	if out.MaxHint < in.NumHint {
		return &InconsistentError{Detail: "maxhint below input live count"}
	}
	if out.MaxMember < in.NumMember {
		return &InconsistentError{Detail: "maxmember below input live count"}
	}
	if out.MaxPair < in.NumPair {
		return &InconsistentError{Detail: "maxpair below input live count"}
	}

	return nil
}

// Populate enacts the sizing decisions: inherited sections borrow the
// input's backing memory, rebuild-flagged sections stay empty for later
// regeneration, everything else is allocated and copied.
func (cfg *Config) Populate(out, in *Database) {
	// transforms are never invalid or resized
	out.InheritTransforms(in)

	// allocate the owned sections
	alloc := MaskAll &^ MaskTransform &^ cfg.InheritSections
	out.Create(alloc)

	copyData := func(bit SectionMask, num *uint32, inNum uint32, cp func()) {
		switch {
		case cfg.InheritSections&bit != 0:
			// handled by the borrow functions below
		case inNum == 0:
			// input empty, keep the fresh sentinel
		case cfg.RebuildSections&bit == 0:
			*num = inNum
			cp()
		}
	}

	if out.MaxSignature != 0 {
		if cfg.InheritSections&MaskSignature != 0 {
			out.Signatures = in.Signatures
			out.NumSignature = in.NumSignature
		} else {
			copyData(MaskSignature, &out.NumSignature, in.NumSignature, func() {
				copy(out.Signatures, in.Signatures[:in.NumSignature])
			})
		}
		if cfg.InheritSections&MaskSignatureIndex != 0 {
			out.SignatureIndex = in.SignatureIndex
			out.SignatureIndexSize = in.SignatureIndexSize
		} else if cfg.RebuildSections&MaskSignatureIndex == 0 && in.SignatureIndexSize == out.SignatureIndexSize {
			copy(out.SignatureIndex, in.SignatureIndex)
		}
	}

	if out.MaxHint != 0 {
		if cfg.InheritSections&MaskHint != 0 {
			out.Hints = in.Hints
			out.NumHint = in.NumHint
		} else {
			copyData(MaskHint, &out.NumHint, in.NumHint, func() {
				copy(out.Hints, in.Hints[:in.NumHint])
			})
		}
		if cfg.InheritSections&MaskHintIndex != 0 {
			out.HintIndex = in.HintIndex
			out.HintIndexSize = in.HintIndexSize
		} else if cfg.RebuildSections&MaskHintIndex == 0 && in.HintIndexSize == out.HintIndexSize {
			copy(out.HintIndex, in.HintIndex)
		}
	}

	if out.MaxImprint != 0 {
		if cfg.InheritSections&MaskImprint != 0 {
			out.Imprints = in.Imprints
			out.NumImprint = in.NumImprint
		} else {
			copyData(MaskImprint, &out.NumImprint, in.NumImprint, func() {
				copy(out.Imprints, in.Imprints[:in.NumImprint])
			})
		}
		if cfg.InheritSections&MaskImprintIndex != 0 {
			out.ImprintIndex = in.ImprintIndex
			out.ImprintIndexSize = in.ImprintIndexSize
		} else if cfg.RebuildSections&MaskImprintIndex == 0 && in.ImprintIndexSize == out.ImprintIndexSize {
			copy(out.ImprintIndex, in.ImprintIndex)
		}
	}

	if out.MaxMember != 0 {
		if cfg.InheritSections&MaskMember != 0 {
			out.Members = in.Members
			out.NumMember = in.NumMember
		} else {
			copyData(MaskMember, &out.NumMember, in.NumMember, func() {
				copy(out.Members, in.Members[:in.NumMember])
			})
		}
		if cfg.InheritSections&MaskMemberIndex != 0 {
			out.MemberIndex = in.MemberIndex
			out.MemberIndexSize = in.MemberIndexSize
		} else if cfg.RebuildSections&MaskMemberIndex == 0 && in.MemberIndexSize == out.MemberIndexSize {
			copy(out.MemberIndex, in.MemberIndex)
		}
	}

	if out.MaxPair != 0 {
		if cfg.InheritSections&MaskPair != 0 {
			out.Pairs = in.Pairs
			out.NumPair = in.NumPair
		} else {
			copyData(MaskPair, &out.NumPair, in.NumPair, func() {
				copy(out.Pairs, in.Pairs[:in.NumPair])
			})
		}
		if cfg.InheritSections&MaskPairIndex != 0 {
			out.PairIndex = in.PairIndex
			out.PairIndexSize = in.PairIndexSize
		} else if cfg.RebuildSections&MaskPairIndex == 0 && in.PairIndexSize == out.PairIndexSize {
			copy(out.PairIndex, in.PairIndex)
		}
	}
}
