// Package seqevent implements the bytecode event codec shared by SSEQ
// and SSAR sequence data (spec §4.5): ~60 opcode classes, a
// variable-length integer encoding, and the lift/lower discipline that
// turns an offset-addressed byte blob into an in-memory event graph
// and back.
package seqevent

import (
	"encoding/binary"

	"github.com/nds-tools/ndscore/ndserr"
)

// Kind discriminates the operand shape of an Event.
type Kind int

const (
	KindNote Kind = iota
	KindRest
	KindInstrumentSwitch
	KindBeginTrack
	KindJump
	KindCall
	KindRandom
	KindFromVariable
	KindIf
	KindVarOp
	KindTrackByteCtrl
	KindTrackWordCtrl
	KindEndLoop
	KindReturn
	KindDefineTracks
	KindEndTrack
	KindRawData
)

// Event is a single decoded sequence-event. Only the fields relevant
// to Kind are meaningful; see spec §3's per-discriminant operand list.
type Event struct {
	Kind Kind
	Op   byte

	// AsVariable is set on a Sub event decoded beneath a FromVariable
	// (0xA1) wrapper: its trailing literal operand, if any, was
	// instead read as FromVariableVarID and must be re-emitted the
	// same way.
	AsVariable bool

	// Note (0x00..0x7F)
	Velocity            byte
	VelocityUnknownFlag bool
	Duration            uint32

	// Rest (0x80) reuses Duration.

	// InstrumentSwitch (0x81)
	InstrumentPackedID uint32

	// BeginTrack (0x93)
	Track byte

	// BeginTrack / Jump (0x94) / Call (0x95): resolved during lift,
	// consulted during lower. TargetOffset is only meaningful between
	// decodeOperands and the lift pass's resolution step.
	TargetOffset int
	Target       *Event

	// Random (0xA0) / FromVariable (0xA1)
	Sub               *Event
	RandMin, RandMax  int16
	FromVariableVarID byte

	// VarOp (0xB0..0xBD)
	VarOpVarID byte
	VarOpValue int16

	// TrackByteCtrl (0xC0..0xCF, 0xD0..0xD6)
	ControllerByte byte

	// TrackWordCtrl (0xE0..0xE3)
	ControllerWord int16

	// DefineTracks (0xFE)
	TrackMask uint16

	// RawData: unreachable trailing bytes preserved verbatim so that
	// round-trip reproduces the original blob exactly (spec §4.5,
	// step 6).
	Raw []byte
}

func isTrackByteCtrl(op byte) bool {
	return (op >= 0xC0 && op <= 0xCF) || (op >= 0xD0 && op <= 0xD6)
}

func isTrackWordCtrl(op byte) bool { return op >= 0xE0 && op <= 0xE3 }
func isVarOp(op byte) bool         { return op >= 0xB0 && op <= 0xBD }

// decodeOperands decodes the operand bytes for an event whose opcode
// byte op has already been consumed at position pos. asVariable is
// true only while decoding the sub-opcode wrapped by a FromVariable
// (0xA1) event, in which case the operand that would normally be a
// literal value is read as a single variable-id byte instead (spec
// §4.5, "Wrapper opcodes").
func decodeOperands(buf []byte, pos int, op byte, asVariable bool) (*Event, int, error) {
	start := pos
	ev := &Event{Op: op, AsVariable: asVariable}

	fail := func(err error) (*Event, int, error) { return nil, 0, err }
	need := func(n int) error {
		if pos+n > len(buf) {
			return ndserr.At(ndserr.OutOfBounds, int64(pos), "seqevent: need %d operand bytes, have %d", n, len(buf)-pos)
		}
		return nil
	}

	switch {
	case op <= 0x7F:
		ev.Kind = KindNote
		if err := need(1); err != nil {
			return fail(err)
		}
		ev.Velocity = buf[pos] & 0x7F
		ev.VelocityUnknownFlag = buf[pos]&0x80 != 0
		pos++
		if asVariable {
			if err := need(1); err != nil {
				return fail(err)
			}
			ev.FromVariableVarID = buf[pos]
			pos++
		} else {
			dur, n, err := readVarint(buf, pos)
			if err != nil {
				return fail(err)
			}
			ev.Duration = dur
			pos += n
		}

	case op == 0x80:
		ev.Kind = KindRest
		if asVariable {
			if err := need(1); err != nil {
				return fail(err)
			}
			ev.FromVariableVarID = buf[pos]
			pos++
		} else {
			dur, n, err := readVarint(buf, pos)
			if err != nil {
				return fail(err)
			}
			ev.Duration = dur
			pos += n
		}

	case op == 0x81:
		ev.Kind = KindInstrumentSwitch
		if asVariable {
			if err := need(1); err != nil {
				return fail(err)
			}
			ev.FromVariableVarID = buf[pos]
			pos++
		} else {
			id, n, err := readVarint(buf, pos)
			if err != nil {
				return fail(err)
			}
			ev.InstrumentPackedID = id
			pos += n
		}

	case op == 0x93:
		ev.Kind = KindBeginTrack
		if err := need(4); err != nil {
			return fail(err)
		}
		ev.Track = buf[pos]
		pos++
		ev.TargetOffset = int(buf[pos]) | int(buf[pos+1])<<8 | int(buf[pos+2])<<16
		pos += 3

	case op == 0x94:
		ev.Kind = KindJump
		if err := need(3); err != nil {
			return fail(err)
		}
		ev.TargetOffset = int(buf[pos]) | int(buf[pos+1])<<8 | int(buf[pos+2])<<16
		pos += 3

	case op == 0x95:
		ev.Kind = KindCall
		if err := need(3); err != nil {
			return fail(err)
		}
		ev.TargetOffset = int(buf[pos]) | int(buf[pos+1])<<8 | int(buf[pos+2])<<16
		pos += 3

	case op == 0xA0:
		ev.Kind = KindRandom
		if err := need(1); err != nil {
			return fail(err)
		}
		subOp := buf[pos]
		pos++
		sub, n, err := decodeOperands(buf, pos, subOp, false)
		if err != nil {
			return fail(err)
		}
		ev.Sub = sub
		pos += n
		if err := need(4); err != nil {
			return fail(err)
		}
		ev.RandMin = int16(binary.LittleEndian.Uint16(buf[pos:]))
		ev.RandMax = int16(binary.LittleEndian.Uint16(buf[pos+2:]))
		pos += 4

	case op == 0xA1:
		ev.Kind = KindFromVariable
		if err := need(1); err != nil {
			return fail(err)
		}
		subOp := buf[pos]
		pos++
		sub, n, err := decodeOperands(buf, pos, subOp, true)
		if err != nil {
			return fail(err)
		}
		ev.Sub = sub
		pos += n

	case op == 0xA2:
		ev.Kind = KindIf

	case isVarOp(op):
		ev.Kind = KindVarOp
		if err := need(1); err != nil {
			return fail(err)
		}
		ev.VarOpVarID = buf[pos]
		pos++
		if asVariable {
			if err := need(1); err != nil {
				return fail(err)
			}
			ev.FromVariableVarID = buf[pos]
			pos++
		} else {
			if err := need(2); err != nil {
				return fail(err)
			}
			ev.VarOpValue = int16(binary.LittleEndian.Uint16(buf[pos:]))
			pos += 2
		}

	case isTrackByteCtrl(op):
		ev.Kind = KindTrackByteCtrl
		if err := need(1); err != nil {
			return fail(err)
		}
		if asVariable {
			ev.FromVariableVarID = buf[pos]
		} else {
			ev.ControllerByte = buf[pos]
		}
		pos++

	case isTrackWordCtrl(op):
		ev.Kind = KindTrackWordCtrl
		if asVariable {
			if err := need(1); err != nil {
				return fail(err)
			}
			ev.FromVariableVarID = buf[pos]
			pos++
		} else {
			if err := need(2); err != nil {
				return fail(err)
			}
			ev.ControllerWord = int16(binary.LittleEndian.Uint16(buf[pos:]))
			pos += 2
		}

	case op == 0xFC:
		ev.Kind = KindEndLoop

	case op == 0xFD:
		ev.Kind = KindReturn

	case op == 0xFE:
		ev.Kind = KindDefineTracks
		if err := need(2); err != nil {
			return fail(err)
		}
		ev.TrackMask = binary.LittleEndian.Uint16(buf[pos:])
		pos += 2

	case op == 0xFF:
		ev.Kind = KindEndTrack

	default:
		return fail(ndserr.New(ndserr.MalformedSSEQ, "seqevent: unknown opcode %#x", op))
	}

	return ev, pos - start, nil
}

// fallsThrough reports whether execution continues to the next byte
// after ev (spec §4.5, step 5: EndTrack and Return halt their path).
func fallsThrough(ev *Event) bool {
	switch ev.Kind {
	case KindEndTrack, KindReturn:
		return false
	default:
		return true
	}
}

// hasAddressOperand reports whether ev carries a byte-offset operand
// that must be resolved into an Event reference.
func hasAddressOperand(ev *Event) bool {
	switch ev.Kind {
	case KindBeginTrack, KindJump, KindCall:
		return true
	default:
		return false
	}
}
