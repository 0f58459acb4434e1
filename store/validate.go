package store

import (
	"fmt"

	"github.com/boolforge/ternbase/transform"
)

// Validate checks the database invariants: reference ordering, safe
// chains, index primality and capacity bounds. Runs under the paranoid
// flag after mutating steps; the checks touch every record, so hot loops
// keep their own cheap asserts instead.
func (db *Database) Validate() error {
	if db.NumTransform != 0 && db.NumTransform != transform.Count {
		return &InconsistentError{Detail: fmt.Sprintf("transform count %d", db.NumTransform)}
	}

	// every index size is prime
	for _, ix := range []struct {
		name string
		size uint32
	}{
		{"signature", db.SignatureIndexSize},
		{"hint", db.HintIndexSize},
		{"imprint", db.ImprintIndexSize},
		{"member", db.MemberIndexSize},
		{"pair", db.PairIndexSize},
	} {
		if ix.size > 1 && !isPrime(ix.size) {
			return &InconsistentError{Detail: fmt.Sprintf("%s index size %d is not prime", ix.name, ix.size)}
		}
	}

	// imprint live count within capacity
	if db.NumImprint > db.MaxImprint {
		return &InconsistentError{Detail: "imprint live count exceeds capacity"}
	}

	// members reference only smaller ids; safe members reference safe
	// members only
	for mid := uint32(1); mid < db.NumMember; mid++ {
		m := &db.Members[mid]
		if m.Sid == 0 {
			continue // free list
		}
		if m.Sid >= db.NumSignature {
			return &InconsistentError{Detail: fmt.Sprintf("member %d names signature %d", mid, m.Sid)}
		}

		for _, pid := range []uint32{m.Qmt, m.Tmt, m.Fmt} {
			if pid == 0 {
				continue
			}
			if pid >= db.NumPair {
				return &InconsistentError{Detail: fmt.Sprintf("member %d holds pair %d", mid, pid)}
			}
			ref := db.Pairs[pid].Mid
			if ref > mid {
				return &InconsistentError{Detail: fmt.Sprintf("member %d references later member %d", mid, ref)}
			}
			if m.IsSafe() && !db.Members[ref].IsSafe() {
				return &InconsistentError{Detail: fmt.Sprintf("safe member %d references unsafe member %d", mid, ref)}
			}
		}
		for _, head := range m.Heads {
			if head == 0 {
				continue
			}
			if head >= mid {
				return &InconsistentError{Detail: fmt.Sprintf("member %d references later head %d", mid, head)}
			}
			if m.IsSafe() && !db.Members[head].IsSafe() {
				return &InconsistentError{Detail: fmt.Sprintf("safe member %d references unsafe head %d", mid, head)}
			}
		}
	}

	// safe signatures lead with a safe member; chains stay in range
	for sid := uint32(1); sid < db.NumSignature; sid++ {
		sig := &db.Signatures[sid]

		if sig.FirstMember >= db.NumMember {
			return &InconsistentError{Detail: fmt.Sprintf("signature %d chains member %d", sid, sig.FirstMember)}
		}
		if sig.Flags&SigFlagSafe != 0 {
			if sig.FirstMember == 0 {
				return &InconsistentError{Detail: fmt.Sprintf("safe signature %d has no members", sid)}
			}
			if !db.Members[sig.FirstMember].IsSafe() {
				return &InconsistentError{Detail: fmt.Sprintf("safe signature %d leads with unsafe member", sid)}
			}
		}
		if sig.HintID != 0 && sig.HintID >= db.NumHint {
			return &InconsistentError{Detail: fmt.Sprintf("signature %d names hint %d", sid, sig.HintID)}
		}
	}

	// imprints name live signatures and stored transform ranks
	for id := uint32(1); id < db.NumImprint; id++ {
		imp := &db.Imprints[id]
		if imp.Sid == 0 || imp.Sid >= db.NumSignature {
			return &InconsistentError{Detail: fmt.Sprintf("imprint %d names signature %d", id, imp.Sid)}
		}
		if db.NumTransform != 0 && imp.Tid >= db.NumTransform {
			return &InconsistentError{Detail: fmt.Sprintf("imprint %d names transform %d", id, imp.Tid)}
		}
	}

	// pairs name live members and transforms
	for id := uint32(1); id < db.NumPair; id++ {
		p := &db.Pairs[id]
		if p.Mid >= db.NumMember {
			return &InconsistentError{Detail: fmt.Sprintf("pair %d names member %d", id, p.Mid)}
		}
		if db.NumTransform != 0 && p.Tid >= db.NumTransform {
			return &InconsistentError{Detail: fmt.Sprintf("pair %d names transform %d", id, p.Tid)}
		}
	}

	return nil
}

func isPrime(n uint32) bool {
	if n < 2 {
		return false
	}
	for i := uint32(2); i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}
