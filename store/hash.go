package store

import "fmt"

// Hash indices are open-addressed tables over prime sizes. An entry holds a
// record id, zero meaning empty: the first slot of every data table is a
// sentinel so id 0 never occurs. Probing double-hashes so every non-empty
// chain terminates within table capacity.

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

func hashBytes(b []byte) uint64 {
	h := uint64(fnvOffset)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime
	}
	return h
}

func hashString(s string) uint64 {
	h := uint64(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime
	}
	return h
}

// probeStart returns the first slot and the probe stride for a hash over a
// prime-sized table. The stride is non-zero and below size, so the walk
// visits every slot.
func probeStart(h uint64, size uint32) (uint32, uint32) {
	start := uint32(h % uint64(size))
	bump := uint32(1)
	if size > 1 {
		bump = uint32(h>>32)%(size-1) + 1
	}
	return start, bump
}

/*
 * signatures
 */

// LookupSignature finds the index slot for a name: either the slot holding
// the matching signature id or the empty slot where it belongs.
func (db *Database) LookupSignature(name string) uint32 {
	db.CntHash++
	ix, bump := probeStart(hashString(name), db.SignatureIndexSize)
	for {
		id := db.SignatureIndex[ix]
		if id == 0 {
			return ix
		}
		db.CntCompare++
		if db.Signatures[id].NameString() == name {
			return ix
		}
		ix += bump
		if ix >= db.SignatureIndexSize {
			ix -= db.SignatureIndexSize
		}
	}
}

// AddSignature appends a signature record, returning its id. The index is
// not touched; callers store the id into the slot LookupSignature returned.
func (db *Database) AddSignature(name string) uint32 {
	if db.NumSignature >= db.MaxSignature {
		panic(fmt.Sprintf("store: signature section overflow at %d", db.NumSignature))
	}
	sid := db.NumSignature
	db.NumSignature++
	db.Signatures[sid] = Signature{}
	db.Signatures[sid].SetName(name)
	return sid
}

/*
 * hints
 */

// LookupHint finds the index slot for a hint vector.
func (db *Database) LookupHint(h *Hint) uint32 {
	db.CntHash++
	key := hashHint(h)
	ix, bump := probeStart(key, db.HintIndexSize)
	for {
		id := db.HintIndex[ix]
		if id == 0 {
			return ix
		}
		db.CntCompare++
		if db.Hints[id] == *h {
			return ix
		}
		ix += bump
		if ix >= db.HintIndexSize {
			ix -= db.HintIndexSize
		}
	}
}

// AddHint appends a hint record, returning its id.
func (db *Database) AddHint(h *Hint) uint32 {
	if db.NumHint >= db.MaxHint {
		panic(fmt.Sprintf("store: hint section overflow at %d", db.NumHint))
	}
	id := db.NumHint
	db.NumHint++
	db.Hints[id] = *h
	return id
}

func hashHint(h *Hint) uint64 {
	k := uint64(fnvOffset)
	for _, v := range h.NumStored {
		k ^= uint64(v)
		k *= fnvPrime
	}
	return k
}

/*
 * members
 */

// LookupMember finds the index slot for a member notation.
func (db *Database) LookupMember(name string) uint32 {
	db.CntHash++
	ix, bump := probeStart(hashString(name), db.MemberIndexSize)
	for {
		id := db.MemberIndex[ix]
		if id == 0 {
			return ix
		}
		db.CntCompare++
		if db.Members[id].NameString() == name {
			return ix
		}
		ix += bump
		if ix >= db.MemberIndexSize {
			ix -= db.MemberIndexSize
		}
	}
}

// AddMember appends a member record carrying only its name, returning the
// id.
func (db *Database) AddMember(name string) uint32 {
	if db.NumMember >= db.MaxMember {
		panic(fmt.Sprintf("store: member section overflow at %d", db.NumMember))
	}
	mid := db.NumMember
	db.NumMember++
	db.Members[mid] = Member{}
	db.Members[mid].SetName(name)
	return mid
}

/*
 * pairs
 */

// LookupPair finds the index slot for a (member id, transform id) tuple.
func (db *Database) LookupPair(mid, tid uint32) uint32 {
	db.CntHash++
	key := uint64(mid)<<32 | uint64(tid)
	h := key * fnvPrime
	h ^= h >> 29
	h *= fnvPrime
	ix, bump := probeStart(h, db.PairIndexSize)
	for {
		id := db.PairIndex[ix]
		if id == 0 {
			return ix
		}
		db.CntCompare++
		if db.Pairs[id].Mid == mid && db.Pairs[id].Tid == tid {
			return ix
		}
		ix += bump
		if ix >= db.PairIndexSize {
			ix -= db.PairIndexSize
		}
	}
}

// AddPair appends a pair record, returning its id.
func (db *Database) AddPair(mid, tid uint32) uint32 {
	if db.NumPair >= db.MaxPair {
		panic(fmt.Sprintf("store: pair section overflow at %d", db.NumPair))
	}
	id := db.NumPair
	db.NumPair++
	db.Pairs[id] = Pair{Mid: mid, Tid: tid}
	return id
}
