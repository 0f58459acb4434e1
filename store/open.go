package store

import (
	"fmt"
	"hash/crc32"

	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/metrics"
	"github.com/boolforge/ternbase/transform"
)

// Open maps a database file read-only. Every section becomes a borrowed
// view into the mapping: the returned database owns no section memory
// until a build decides to copy or rebuild. With verify set the image
// checksum is recomputed, which touches every page.
func Open(path string, verify bool) (*Database, error) {
	img, err := openImage(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	db, err := fromImage(img, verify)
	if err != nil {
		_ = img.Close()
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.mapped = img
	return db, nil
}

// fromImage wires every section of a validated image into borrowed views.
func fromImage(img *image, verify bool) (*Database, error) {
	hdr := img.hdr

	db := New(ternbase.Flags(hdr.Flags))
	db.Interleave = hdr.Interleave
	db.InterleaveStep = hdr.InterleaveStep
	if hdr.Interleave > 0 {
		row := metrics.GetInterleave(transform.SlotCount, hdr.Interleave)
		if row == nil {
			return nil, &PresetError{What: "interleave", Value: uint64(hdr.Interleave)}
		}
		db.interleaveRows = row.Rows
	}

	var err error
	db.NumTransform = hdr.NumTransform
	if db.NumTransform > 0 {
		if db.Transforms.FwdData, err = recordView[uint64](img.section(secFwdData), hdr.NumTransform); err != nil {
			return nil, err
		}
		if db.Transforms.RevData, err = recordView[uint64](img.section(secRevData), hdr.NumTransform); err != nil {
			return nil, err
		}
		if db.Transforms.FwdNames, err = recordView[byte](img.section(secFwdNames), hdr.NumTransform*transform.SlotCount); err != nil {
			return nil, err
		}
		if db.Transforms.RevNames, err = recordView[byte](img.section(secRevNames), hdr.NumTransform*transform.SlotCount); err != nil {
			return nil, err
		}
		if db.Transforms.RevIDs, err = recordView[uint32](img.section(secRevIDs), hdr.NumTransform); err != nil {
			return nil, err
		}
		if db.Transforms.FwdIndex.Nodes, err = recordView[uint32](img.section(secFwdTrie), hdr.FwdTrieSize); err != nil {
			return nil, err
		}
		if db.Transforms.RevIndex.Nodes, err = recordView[uint32](img.section(secRevTrie), hdr.RevTrieSize); err != nil {
			return nil, err
		}
		db.attachEvaluators()
	}

	db.NumSignature, db.MaxSignature = hdr.NumSignature, hdr.NumSignature
	if db.Signatures, err = recordView[Signature](img.section(secSignature), hdr.NumSignature); err != nil {
		return nil, err
	}
	db.SignatureIndexSize = hdr.SignatureIndexSize
	if db.SignatureIndex, err = recordView[uint32](img.section(secSignatureIndex), hdr.SignatureIndexSize); err != nil {
		return nil, err
	}

	db.NumHint, db.MaxHint = hdr.NumHint, hdr.NumHint
	if db.Hints, err = recordView[Hint](img.section(secHint), hdr.NumHint); err != nil {
		return nil, err
	}
	db.HintIndexSize = hdr.HintIndexSize
	if db.HintIndex, err = recordView[uint32](img.section(secHintIndex), hdr.HintIndexSize); err != nil {
		return nil, err
	}

	db.NumImprint, db.MaxImprint = hdr.NumImprint, hdr.NumImprint
	if db.Imprints, err = recordView[Imprint](img.section(secImprint), hdr.NumImprint); err != nil {
		return nil, err
	}
	db.ImprintIndexSize = hdr.ImprintIndexSize
	if db.ImprintIndex, err = recordView[uint32](img.section(secImprintIndex), hdr.ImprintIndexSize); err != nil {
		return nil, err
	}

	db.NumMember, db.MaxMember = hdr.NumMember, hdr.NumMember
	if db.Members, err = recordView[Member](img.section(secMember), hdr.NumMember); err != nil {
		return nil, err
	}
	db.MemberIndexSize = hdr.MemberIndexSize
	if db.MemberIndex, err = recordView[uint32](img.section(secMemberIndex), hdr.MemberIndexSize); err != nil {
		return nil, err
	}

	db.NumPair, db.MaxPair = hdr.NumPair, hdr.NumPair
	if db.Pairs, err = recordView[Pair](img.section(secPair), hdr.NumPair); err != nil {
		return nil, err
	}
	db.PairIndexSize = hdr.PairIndexSize
	if db.PairIndex, err = recordView[uint32](img.section(secPairIndex), hdr.PairIndexSize); err != nil {
		return nil, err
	}

	if verify {
		crc := crc32.NewIEEE()
		for _, sec := range db.sectionBytes() {
			_, _ = crc.Write(sec)
		}
		if crc.Sum32() != hdr.Checksum {
			return nil, fmt.Errorf("%w: got 0x%08x, want 0x%08x", ErrChecksum, crc.Sum32(), hdr.Checksum)
		}
	}

	return db, nil
}
