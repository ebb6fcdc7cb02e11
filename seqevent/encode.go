package seqevent

import "encoding/binary"

// encodedLength returns the number of bytes emitEvent would write for
// ev, including its opcode byte, given ev's current operand values
// (spec §4.5 lower pass 1: variable-length fields are evaluated over
// the current values).
func encodedLength(ev *Event) int {
	if ev.Kind == KindRawData {
		return len(ev.Raw)
	}
	n := 1 // opcode byte
	switch ev.Kind {
	case KindNote:
		n++ // velocity
		if ev.AsVariable {
			n++
		} else {
			n += varintLen(ev.Duration)
		}
	case KindRest:
		if ev.AsVariable {
			n++
		} else {
			n += varintLen(ev.Duration)
		}
	case KindInstrumentSwitch:
		if ev.AsVariable {
			n++
		} else {
			n += varintLen(ev.InstrumentPackedID)
		}
	case KindBeginTrack:
		n += 1 + 3
	case KindJump, KindCall:
		n += 3
	case KindRandom:
		// encodedLength(ev.Sub) already counts the sub-opcode byte.
		n += encodedLength(ev.Sub) + 4
	case KindFromVariable:
		n += encodedLength(ev.Sub)
	case KindIf:
		// no operand
	case KindVarOp:
		n++
		if ev.AsVariable {
			n++
		} else {
			n += 2
		}
	case KindTrackByteCtrl:
		n++
	case KindTrackWordCtrl:
		if ev.AsVariable {
			n++
		} else {
			n += 2
		}
	case KindEndLoop, KindReturn, KindEndTrack:
		// no operand
	case KindDefineTracks:
		n += 2
	}
	return n
}

// emitEvent appends ev's wire encoding to buf. resolve maps an event
// with an address operand to its final byte offset; it is only
// consulted for BeginTrack/Jump/Call.
func emitEvent(buf []byte, ev *Event, resolve func(*Event) (int, error)) ([]byte, error) {
	if ev.Kind == KindRawData {
		return append(buf, ev.Raw...), nil
	}

	buf = append(buf, ev.Op)
	switch ev.Kind {
	case KindNote:
		vel := ev.Velocity & 0x7F
		if ev.VelocityUnknownFlag {
			vel |= 0x80
		}
		buf = append(buf, vel)
		if ev.AsVariable {
			buf = append(buf, ev.FromVariableVarID)
		} else {
			buf = writeVarint(buf, ev.Duration)
		}
	case KindRest:
		if ev.AsVariable {
			buf = append(buf, ev.FromVariableVarID)
		} else {
			buf = writeVarint(buf, ev.Duration)
		}
	case KindInstrumentSwitch:
		if ev.AsVariable {
			buf = append(buf, ev.FromVariableVarID)
		} else {
			buf = writeVarint(buf, ev.InstrumentPackedID)
		}
	case KindBeginTrack:
		buf = append(buf, ev.Track)
		offset, err := resolve(ev)
		if err != nil {
			return nil, err
		}
		buf = append(buf, byte(offset), byte(offset>>8), byte(offset>>16))
	case KindJump, KindCall:
		offset, err := resolve(ev)
		if err != nil {
			return nil, err
		}
		buf = append(buf, byte(offset), byte(offset>>8), byte(offset>>16))
	case KindRandom:
		buf = append(buf, ev.Sub.Op)
		var err error
		buf, err = emitOperandsOnly(buf, ev.Sub, resolve)
		if err != nil {
			return nil, err
		}
		var b [4]byte
		binary.LittleEndian.PutUint16(b[0:2], uint16(ev.RandMin))
		binary.LittleEndian.PutUint16(b[2:4], uint16(ev.RandMax))
		buf = append(buf, b[:]...)
	case KindFromVariable:
		buf = append(buf, ev.Sub.Op)
		var err error
		buf, err = emitOperandsOnly(buf, ev.Sub, resolve)
		if err != nil {
			return nil, err
		}
	case KindIf:
	case KindVarOp:
		buf = append(buf, ev.VarOpVarID)
		if ev.AsVariable {
			buf = append(buf, ev.FromVariableVarID)
		} else {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(ev.VarOpValue))
			buf = append(buf, b[:]...)
		}
	case KindTrackByteCtrl:
		if ev.AsVariable {
			buf = append(buf, ev.FromVariableVarID)
		} else {
			buf = append(buf, ev.ControllerByte)
		}
	case KindTrackWordCtrl:
		if ev.AsVariable {
			buf = append(buf, ev.FromVariableVarID)
		} else {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(ev.ControllerWord))
			buf = append(buf, b[:]...)
		}
	case KindEndLoop, KindReturn, KindEndTrack:
	case KindDefineTracks:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], ev.TrackMask)
		buf = append(buf, b[:]...)
	}
	return buf, nil
}

// emitOperandsOnly writes ev's operand bytes (not its opcode byte),
// for use when the caller has already written the opcode as part of a
// wrapper (Random/FromVariable).
func emitOperandsOnly(buf []byte, ev *Event, resolve func(*Event) (int, error)) ([]byte, error) {
	full, err := emitEvent(nil, ev, resolve)
	if err != nil {
		return nil, err
	}
	return append(buf, full[1:]...), nil
}
