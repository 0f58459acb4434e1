package store

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sectionBytes returns the raw bytes of each live section in file order.
func (db *Database) sectionBytes() [numSections][]byte {
	var out [numSections][]byte

	out[secFwdData] = recordBytes(db.Transforms.FwdData[:db.NumTransform])
	out[secRevData] = recordBytes(db.Transforms.RevData[:db.NumTransform])
	out[secFwdNames] = db.Transforms.FwdNames[:int(db.NumTransform)*9]
	out[secRevNames] = db.Transforms.RevNames[:int(db.NumTransform)*9]
	out[secRevIDs] = recordBytes(db.Transforms.RevIDs[:db.NumTransform])
	out[secFwdTrie] = recordBytes(db.Transforms.FwdIndex.Nodes)
	out[secRevTrie] = recordBytes(db.Transforms.RevIndex.Nodes)

	out[secSignature] = recordBytes(db.Signatures[:db.NumSignature])
	out[secSignatureIndex] = recordBytes(db.SignatureIndex[:db.SignatureIndexSize])
	out[secHint] = recordBytes(db.Hints[:min32(db.NumHint, uint32(len(db.Hints)))])
	out[secHintIndex] = recordBytes(db.HintIndex[:db.HintIndexSize])
	out[secImprint] = recordBytes(db.Imprints[:min32(db.NumImprint, uint32(len(db.Imprints)))])
	out[secImprintIndex] = recordBytes(db.ImprintIndex[:db.ImprintIndexSize])
	out[secMember] = recordBytes(db.Members[:min32(db.NumMember, uint32(len(db.Members)))])
	out[secMemberIndex] = recordBytes(db.MemberIndex[:db.MemberIndexSize])
	out[secPair] = recordBytes(db.Pairs[:min32(db.NumPair, uint32(len(db.Pairs)))])
	out[secPairIndex] = recordBytes(db.PairIndex[:db.PairIndexSize])

	return out
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// Save writes the database image. The file carries every live record plus
// the index tables; capacities are not persisted, a reader sizes sections
// to their live counts.
func (db *Database) Save(path string) (int64, error) {
	sections := db.sectionBytes()

	hdr := fileHeader{
		Magic:              MagicNumber,
		Version:            Version,
		Flags:              uint32(db.Flags),
		SlotCount:          9,
		NumTransform:       db.NumTransform,
		FwdTrieSize:        uint32(len(db.Transforms.FwdIndex.Nodes)),
		RevTrieSize:        uint32(len(db.Transforms.RevIndex.Nodes)),
		Interleave:         db.Interleave,
		InterleaveStep:     db.InterleaveStep,
		NumSignature:       db.NumSignature,
		SignatureIndexSize: db.SignatureIndexSize,
		NumHint:            db.NumHint,
		HintIndexSize:      db.HintIndexSize,
		NumImprint:         db.NumImprint,
		ImprintIndexSize:   db.ImprintIndexSize,
		NumMember:          db.NumMember,
		MemberIndexSize:    db.MemberIndexSize,
		NumPair:            db.NumPair,
		PairIndexSize:      db.PairIndexSize,
	}
	copy(hdr.Created[:], time.Now().UTC().Format(time.RFC3339))

	// lay out the sections and checksum them
	off := uint64(headerSize)
	crc := crc32.NewIEEE()
	for i, sec := range sections {
		off = align(off)
		hdr.Offsets[i] = off
		off += uint64(len(sec))
		_, _ = crc.Write(sec)
	}
	hdr.Checksum = crc.Sum32()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("store: save: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 1<<20)

	hdrBytes := unsafe.Slice((*byte)(unsafe.Pointer(&hdr)), headerSize)
	written := uint64(0)
	if _, err := w.Write(hdrBytes); err != nil {
		return 0, fmt.Errorf("store: save: %w", err)
	}
	written += headerSize

	var pad [sectionAlign]byte
	for i, sec := range sections {
		if gap := hdr.Offsets[i] - written; gap > 0 {
			if _, err := w.Write(pad[:gap]); err != nil {
				return 0, fmt.Errorf("store: save: %w", err)
			}
			written += gap
		}
		n, err := w.Write(sec)
		if err != nil {
			return 0, fmt.Errorf("store: save: %w", err)
		}
		written += uint64(n)
	}

	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("store: save: %w", err)
	}

	// the image must be durable before the caller reports success
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return 0, fmt.Errorf("store: save: fsync: %w", err)
	}
	// written pages won't be re-read by this process
	_ = unix.Fadvise(int(f.Fd()), 0, int64(written), unix.FADV_DONTNEED)

	return int64(written), nil
}

// DropIndexes strips the rebuildable sections before saving, honouring
// --no-saveindex. Readers rebuild them on demand.
func (db *Database) DropIndexes() {
	db.SignatureIndexSize = 0
	db.SignatureIndex = nil
	db.HintIndexSize = 0
	db.HintIndex = nil
	db.ImprintIndexSize = 0
	db.ImprintIndex = nil
	db.NumImprint = 0
	db.Imprints = nil
	db.Interleave = 0
	db.InterleaveStep = 0
	db.MemberIndexSize = 0
	db.MemberIndex = nil
	db.PairIndexSize = 0
	db.PairIndex = nil
}
