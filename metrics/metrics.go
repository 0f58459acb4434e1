// Package metrics carries the static presets that drive storage sizing:
// the interleave table, the per-node-count generator expectations and the
// imprint storage expectations. Rows were measured on the 9-variable
// dataset; a missing row is a hard error for callers that need one.
package metrics

// DefaultInterleave is the generally best speed/storage trade-off.
const DefaultInterleave = 504

// DefaultRatio is the default index/data size ratio.
const DefaultRatio = 5.0

// Interleave describes one imprint interleave preset: how many of the 9!
// permutations are stored per signature, the probe stride, and which of the
// two transform sets is stored.
//
// Associativity needs the stored set and the probe set to multiply out to
// the full permutation group, which pins one of the two to a stabiliser
// subgroup: either Step or NumStored must be a factorial. The sixteen
// combinations below are exactly the values where that holds.
type Interleave struct {
	// NumSlot is the variable count the row applies to.
	NumSlot uint32
	// NumStored is the number of stored permutations per signature.
	NumStored uint32
	// Step is 9!/NumStored, the number of probes a lookup performs.
	Step uint32
	// Rows selects the stored set: true stores the transversal
	// {0, Step, 2*Step, ...} (Step is a factorial), false stores the
	// stabiliser prefix {0, 1, ..., NumStored-1} (NumStored is a
	// factorial).
	Rows bool
}

// InterleaveTable lists the allowed interleaves, ascending. Its length is
// the width of a hint record.
var InterleaveTable = []Interleave{
	{9, 1, 362880, true},
	{9, 2, 181440, false},
	{9, 6, 60480, false},
	{9, 9, 40320, true},
	{9, 24, 15120, false},
	{9, 72, 5040, true},
	{9, 120, 3024, false},
	{9, 504, 720, true},
	{9, 720, 504, false},
	{9, 3024, 120, true},
	{9, 5040, 72, false},
	{9, 15120, 24, true},
	{9, 40320, 9, false},
	{9, 60480, 6, true},
	{9, 181440, 2, true},
	{9, 362880, 1, true},
}

// MaxInterleaveEntry is the number of interleave presets, and therefore the
// number of counters in a hint record.
const MaxInterleaveEntry = 16

// GetInterleave finds the preset for an interleave value. Returns nil when
// the value is not an allowed preset.
func GetInterleave(numSlot, interleave uint32) *Interleave {
	for i := range InterleaveTable {
		row := &InterleaveTable[i]
		if row.NumSlot == numSlot && row.NumStored == interleave {
			return row
		}
	}
	return nil
}

// InterleaveIndex returns the position of an interleave preset within the
// table, or -1. Hint records are indexed by this position.
func InterleaveIndex(numSlot, interleave uint32) int {
	for i := range InterleaveTable {
		if InterleaveTable[i].NumSlot == numSlot && InterleaveTable[i].NumStored == interleave {
			return i
		}
	}
	return -1
}

// AllowedInterleaves renders the preset values for usage messages.
func AllowedInterleaves(numSlot uint32) []uint32 {
	var out []uint32
	for i := range InterleaveTable {
		if InterleaveTable[i].NumSlot == numSlot {
			out = append(out, InterleaveTable[i].NumStored)
		}
	}
	return out
}

// Generator describes the expected dataset for one (slots, pure, nodes)
// combination.
type Generator struct {
	NumSlot     uint32
	Pure        bool
	NumNode     uint32
	NumSignature uint32
	NumMember   uint32
	NumPair     uint32
	NumHint     uint32
	// NumProgress is the candidate count the generator walks for this
	// node budget, used for task slicing and progress estimation.
	NumProgress uint64
}

// generatorTable was measured on full runs of the 9-variable dataset.
var generatorTable = []Generator{
	{9, false, 0, 3, 3, 3, 1, 2},
	{9, false, 1, 9, 9, 16, 2, 8},
	{9, false, 2, 50, 67, 160, 4, 2210},
	{9, false, 3, 1312, 3403, 7583, 8, 803316},
	{9, false, 4, 791646, 693220, 1567934, 16, 677880715},
	{9, false, 5, 791646, 6235722, 13652198, 24, 1143829281138},
	{9, true, 0, 3, 3, 3, 1, 2},
	{9, true, 1, 7, 7, 12, 2, 6},
	{9, true, 2, 20, 26, 64, 4, 558},
	{9, true, 3, 296, 611, 1374, 8, 92048},
	{9, true, 4, 791646, 96363, 219237, 16, 30857904},
	{9, true, 5, 791646, 813679, 1851234, 24, 16758463524},
	{9, true, 6, 791646, 3717349, 8223591, 32, 12273009613365},
	{9, true, 7, 791646, 12220585, 27491308, 40, 11844979118237404},
}

// GetGenerator finds the generator preset for a (slots, pure, nodes)
// combination. Returns nil when no row was measured.
func GetGenerator(numSlot uint32, pure bool, numNode uint32) *Generator {
	for i := range generatorTable {
		row := &generatorTable[i]
		if row.NumSlot == numSlot && row.Pure == pure && row.NumNode == numNode {
			return row
		}
	}
	return nil
}

// Imprint describes expected imprint storage for one (slots, pure,
// interleave, nodes) combination.
type Imprint struct {
	NumSlot    uint32
	Pure       bool
	Interleave uint32
	NumNode    uint32
	NumImprint uint32
}

var imprintTable = []Imprint{
	{9, false, 120, 0, 11},
	{9, false, 120, 1, 42},
	{9, false, 120, 2, 1482},
	{9, false, 120, 3, 60684},
	{9, false, 120, 4, 48295088},
	{9, false, 504, 0, 11},
	{9, false, 504, 1, 1198},
	{9, false, 504, 2, 27539},
	{9, false, 504, 3, 228738},
	{9, false, 504, 4, 186867910},
	{9, false, 720, 0, 11},
	{9, false, 720, 1, 17},
	{9, false, 720, 2, 696},
	{9, false, 720, 3, 322650},
	{9, false, 720, 4, 264208951},
	{9, false, 3024, 3, 1237195},
	{9, false, 5040, 3, 1865245},
	{9, true, 120, 1, 28},
	{9, true, 120, 2, 704},
	{9, true, 120, 3, 21038},
	{9, true, 120, 4, 7450670},
	{9, true, 504, 0, 11},
	{9, true, 504, 1, 531},
	{9, true, 504, 2, 8124},
	{9, true, 504, 3, 55346},
	{9, true, 504, 4, 29191982},
	{9, true, 720, 4, 41357394},
	{9, true, 5040, 4, 243583097},
}

// GetImprint finds the imprint preset for a (slots, pure, interleave,
// nodes) combination. Returns nil when no row was measured.
func GetImprint(numSlot uint32, pure bool, interleave, numNode uint32) *Imprint {
	for i := range imprintTable {
		row := &imprintTable[i]
		if row.NumSlot == numSlot && row.Pure == pure && row.Interleave == interleave && row.NumNode == numNode {
			return row
		}
	}
	return nil
}
