package transform

// NameIndex is a fixed-depth trie over transform names: one node per name
// prefix, SlotCount children per node keyed by the next letter. The final
// transition stores the transform id plus one (zero marks an absent entry),
// giving O(name-length) lookup.
//
// The node table is a flat uint32 array so it can live inside a database
// section.
type NameIndex struct {
	// Nodes holds SlotCount entries per trie node. At depths below
	// SlotCount-1 an entry is a child node number; at the last depth it is
	// the transform id plus one.
	Nodes []uint32
}

// BuildNameIndex constructs the trie over concatenated SlotCount-character
// names.
func BuildNameIndex(names []byte) NameIndex {
	// root node
	nodes := make([]uint32, SlotCount, SlotCount*16)

	numNames := len(names) / SlotCount
	for id := 0; id < numNames; id++ {
		name := names[id*SlotCount : (id+1)*SlotCount]

		node := uint32(0)
		for depth := 0; depth < SlotCount-1; depth++ {
			slot := node*SlotCount + uint32(name[depth]-'a')
			child := nodes[slot]
			if child == 0 {
				child = uint32(len(nodes) / SlotCount)
				nodes = append(nodes, make([]uint32, SlotCount)...)
				nodes[slot] = child
			}
			node = child
		}
		nodes[node*SlotCount+uint32(name[SlotCount-1]-'a')] = uint32(id) + 1
	}

	return NameIndex{Nodes: nodes}
}

// Lookup finds the id of a full name. Returns false on miss or malformed
// input.
func (ix NameIndex) Lookup(name string) (uint32, bool) {
	if len(name) != SlotCount || len(ix.Nodes) == 0 {
		return IDNotFound, false
	}

	node := uint32(0)
	for depth := 0; depth < SlotCount; depth++ {
		ch := name[depth]
		if ch < 'a' || ch >= 'a'+SlotCount {
			return IDNotFound, false
		}
		v := ix.Nodes[node*SlotCount+uint32(ch-'a')]
		if v == 0 {
			return IDNotFound, false
		}
		if depth == SlotCount-1 {
			return v - 1, true
		}
		node = v
	}
	return IDNotFound, false
}
