package store

import "encoding/json"

// Info describes a database for status reporting. Serialised as a single
// JSON object the tools log at open and in their final summary.
type Info struct {
	Flags              string `json:"flags"`
	Interleave         uint32 `json:"interleave"`
	InterleaveStep     uint32 `json:"interleaveStep"`
	NumTransform       uint32 `json:"numTransform"`
	NumSignature       uint32 `json:"numSignature"`
	SignatureIndexSize uint32 `json:"signatureIndexSize"`
	NumHint            uint32 `json:"numHint"`
	HintIndexSize      uint32 `json:"hintIndexSize"`
	NumImprint         uint32 `json:"numImprint"`
	ImprintIndexSize   uint32 `json:"imprintIndexSize"`
	NumMember          uint32 `json:"numMember"`
	MemberIndexSize    uint32 `json:"memberIndexSize"`
	NumPair            uint32 `json:"numPair"`
	PairIndexSize      uint32 `json:"pairIndexSize"`
}

// Info snapshots the live section counts.
func (db *Database) Info() Info {
	return Info{
		Flags:              db.Flags.String(),
		Interleave:         db.Interleave,
		InterleaveStep:     db.InterleaveStep,
		NumTransform:       db.NumTransform,
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
}

// InfoJSON renders the database description as compact JSON.
func (db *Database) InfoJSON() string {
	b, _ := json.Marshal(db.Info())
	return string(b)
}
