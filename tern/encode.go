package tern

// SaveString encodes the subtree rooted at id into postfix notation.
//
// When withSkin is true the notation uses placeholders: endpoints are
// assigned 'a', 'b', ... in order of natural path and the returned skin
// maps placeholders back to actual endpoints. Otherwise endpoints are
// emitted literally.
func (t *Tree) SaveString(id uint32, withSkin bool) (name string, skin string) {
	var nameBuf [MaxNameLen + 1]byte
	nameLen := 0
	var skinBuf [SlotCount + 1]byte

	var stack [MaxStack]uint32
	stackPos := 0

	var beenThere uint32
	var beenWhat [NEnd]uint32

	if id&^InvertBit < NStart {
		if withSkin {
			if id&^InvertBit == 0 {
				nameBuf[nameLen] = '0'
				nameLen++
			} else {
				skinBuf[0] = byte('a' + id&^InvertBit - KStart)
				skin = string(skinBuf[:1])
				nameBuf[nameLen] = 'a'
				nameLen++
			}
		} else {
			if id&^InvertBit == 0 {
				nameBuf[nameLen] = '0'
			} else {
				nameBuf[nameLen] = byte('a' + id&^InvertBit - KStart)
			}
			nameLen++
		}

		if id&InvertBit != 0 {
			nameBuf[nameLen] = '~'
			nameLen++
		}
		return string(nameBuf[:nameLen]), skin
	}

	// First pass: walk depth-first to assign placeholders in order of
	// first encounter.
	if withSkin {
		skinLen := 0

		stackPos = 0
		stack[stackPos] = id &^ InvertBit
		stackPos++

		beenThere = 1 << 0 // endpoint zero needs no placeholder

		for stackPos > 0 {
			stackPos--
			curr := stack[stackPos]

			n := &t.N[curr]
			q, to, ti, f := n.Q, n.T&^InvertBit, n.T&InvertBit, n.F

			if beenThere&(1<<curr) == 0 {
				// first visit, push again so it is visited after expansion
				stack[stackPos] = curr
				stackPos++

				push := func(ref uint32) {
					if ref >= NStart {
						stack[stackPos] = ref
						stackPos++
					}
				}
				switch {
				case ti != 0 && f == 0: // GT Q?!T:0
					push(to)
					push(q)
				case ti != 0 && to == 0: // OR Q?!0:F
					push(f)
					push(q)
				case ti != 0 && f == to: // XOR Q?!F:F
					push(f)
					push(q)
				case ti != 0: // QnTF Q?!T:F
					push(f)
					push(to)
					push(q)
				case f == 0: // AND Q?T:0
					push(to)
					push(q)
				case to == 0: // LT Q?0:F
					push(f)
					push(q)
				case f == to:
					panic("tern: Q?F:F not normalised")
				default: // QTF Q?T:F
					push(f)
					push(to)
					push(q)
				}

				beenThere |= 1 << curr
				beenWhat[curr] = 0
			} else if beenWhat[curr] == 0 {
				// node complete, assign placeholders to its endpoints
				assign := func(ref uint32) {
					if ref < NStart && ref != 0 && beenThere&(1<<ref) == 0 {
						beenThere |= 1 << ref
						beenWhat[ref] = uint32('a' + skinLen)
						skinBuf[skinLen] = byte('a' + ref - KStart)
						skinLen++
					}
				}
				assign(q)
				assign(to)
				assign(f)

				beenWhat[curr] = 1 // endpoints assigned
			}
		}

		skin = string(skinBuf[:skinLen])
	}

	// Second pass: emit operands, opcodes and back-references.
	nextNode := uint32(NStart)

	stackPos = 0
	stack[stackPos] = id &^ InvertBit
	stackPos++

	beenThere = 1 << 0 // re-walk the tree

	for stackPos > 0 {
		stackPos--
		curr := stack[stackPos]

		if curr < NStart {
			switch {
			case curr == 0:
				nameBuf[nameLen] = '0'
			case !withSkin:
				nameBuf[nameLen] = byte('a' + curr - KStart)
			default:
				nameBuf[nameLen] = byte(beenWhat[curr])
			}
			nameLen++
			continue
		}

		n := &t.N[curr]
		q, to, ti, f := n.Q, n.T&^InvertBit, n.T&InvertBit, n.F

		if beenThere&(1<<curr) == 0 {
			// first visit, push again so the opcode is emitted after the
			// operands
			stack[stackPos] = curr
			stackPos++

			push := func(ref uint32) {
				stack[stackPos] = ref
				stackPos++
			}
			switch {
			case ti != 0 && f == 0: // GT
				push(to)
				push(q)
			case ti != 0 && to == 0: // OR
				push(f)
				push(q)
			case ti != 0 && f == to: // XOR
				push(f)
				push(q)
			case ti != 0: // QnTF
				push(f)
				push(to)
				push(q)
			case f == 0: // AND
				push(to)
				push(q)
			case to == 0: // LT
				push(f)
				push(q)
			case f == to:
				panic("tern: Q?F:F not normalised")
			default: // QTF
				push(f)
				push(to)
				push(q)
			}

			beenThere |= 1 << curr
			beenWhat[curr] = 0
		} else if beenWhat[curr] == 0 {
			// node complete, append opcode
			switch {
			case ti != 0 && f == 0:
				nameBuf[nameLen] = '>'
			case ti != 0 && to == 0:
				nameBuf[nameLen] = '+'
			case ti != 0 && f == to:
				nameBuf[nameLen] = '^'
			case ti != 0:
				nameBuf[nameLen] = '!'
			case f == 0:
				nameBuf[nameLen] = '&'
			case to == 0:
				nameBuf[nameLen] = '<'
			default:
				nameBuf[nameLen] = '?'
			}
			nameLen++

			beenWhat[curr] = nextNode
			nextNode++
		} else {
			// back-reference to a previously emitted opcode
			backref := nextNode - beenWhat[curr]
			if backref > 9 {
				panic("tern: back-reference out of range")
			}
			nameBuf[nameLen] = byte('0' + backref)
			nameLen++
		}
	}

	if id&InvertBit != 0 {
		nameBuf[nameLen] = '~'
		nameLen++
	}

	return string(nameBuf[:nameLen]), skin
}

// String encodes the whole tree without a skin.
func (t *Tree) String() string {
	name, _ := t.SaveString(t.Root, false)
	return name
}
