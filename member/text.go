package member

import (
	"fmt"
	"io"

	"github.com/boolforge/ternbase/store"
	"github.com/boolforge/ternbase/tern"
)

// TextMode selects the textual candidate/member log.
type TextMode int

const (
	// TextNone disables textual output.
	TextNone TextMode = iota
	// TextBrief lists one winning candidate name per line, the transport
	// format merged by a reconciling pass.
	TextBrief
	// TextCompare logs every classified candidate with its outcome.
	TextCompare
	// TextMembers lists the finalised member names.
	TextMembers
	// TextVerbose dumps finalised members grouped by signature with
	// component decodings and flag letters.
	TextVerbose
	// TextSQL emits the finalised members as insert statements.
	TextSQL
)

// WriteMembers renders the finalised member table to w in the given mode.
func (c *Collector) WriteMembers(w io.Writer, mode TextMode) {
	switch mode {
	case TextMembers:
		c.writeBrief(w)
	case TextVerbose:
		c.writeVerbose(w)
	case TextSQL:
		c.writeSQL(w)
	}
}

func (c *Collector) writeBrief(w io.Writer) {
	db := c.db
	for mid := uint32(1); mid < db.NumMember; mid++ {
		fmt.Fprintf(w, "%s\n", db.Members[mid].NameString())
	}
}

// pairText decodes a pair reference as "mid:name/tid:skin".
func (c *Collector) pairText(pid uint32) string {
	db := c.db
	if pid == 0 {
		return "0:/0:"
	}
	p := db.Pairs[pid]
	m := &db.Members[p.Mid]
	skin := db.Transforms.FwdName(p.Tid)
	return fmt.Sprintf("%d:%s/%d:%.*s", p.Mid, m.NameString(), p.Tid, int(m.NumPlaceholder), skin)
}

func (c *Collector) writeVerbose(w io.Writer) {
	db := c.db
	for sid := uint32(1); sid < db.NumSignature; sid++ {
		sig := &db.Signatures[sid]

		for mid := sig.FirstMember; mid != 0; mid = db.Members[mid].NextMember {
			m := &db.Members[mid]

			fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%03x\t", mid, sid, m.Tid, m.NameString(), tern.ScoreName(m.NameString()))
			fmt.Fprintf(w, "%s\t%s\t%s\t", c.pairText(m.Qmt), c.pairText(m.Tmt), c.pairText(m.Fmt))

			for _, head := range m.Heads {
				if head != 0 {
					fmt.Fprintf(w, "%d:%s\t", head, db.Members[head].NameString())
				}
			}

			flags := ""
			if sig.Flags&store.SigFlagSafe != 0 {
				if m.IsSafe() {
					flags += "S"
				} else {
					flags += "s"
				}
			}
			if m.Flags&store.MemFlagComponent != 0 {
				flags += "C"
			}
			if m.Flags&store.MemFlagLocked != 0 {
				flags += "L"
			}
			if m.Flags&store.MemFlagDepr != 0 {
				flags += "D"
			}
			if m.Flags&store.MemFlagDelete != 0 {
				flags += "X"
			}
			fmt.Fprintf(w, "%s\n", flags)
		}
	}
}

func (c *Collector) writeSQL(w io.Writer) {
	db := c.db
	for mid := uint32(1); mid < db.NumMember; mid++ {
		m := &db.Members[mid]
		fmt.Fprintf(w,
			"insert ignore into member (mid,sid,tid,name,size,numplaceholder,numendpoint,numbackref,safe) values (%d,%d,%d,'%s',%d,%d,%d,%d,%d);\n",
			mid, m.Sid, m.Tid, m.NameString(), m.Size, m.NumPlaceholder, m.NumEndpoint, m.NumBackRef, b2i(m.IsSafe()))
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
