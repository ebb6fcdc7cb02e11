package seqevent

import (
	"sort"

	"github.com/nds-tools/ndscore/ndserr"
)

// Lift decodes blob starting from each of notableOffsets, following
// BeginTrack/Jump/Call targets breadth over a worklist (spec §4.5). It
// returns the decoded events in ascending offset order plus, for each
// input notable offset, a pointer to the Event that begins there.
func Lift(blob []byte, notableOffsets []int) (events []*Event, entryPoints []*Event, err error) {
	type decoded struct {
		offset int
		ev     *Event
		length int
	}

	byOffset := map[int]*decoded{}
	worklist := append([]int(nil), notableOffsets...)
	queued := map[int]bool{}
	for _, o := range notableOffsets {
		queued[o] = true
	}

	for len(worklist) > 0 {
		offset := worklist[0]
		worklist = worklist[1:]
		if _, ok := byOffset[offset]; ok {
			continue
		}
		if offset < 0 || offset >= len(blob) {
			return nil, nil, ndserr.At(ndserr.OutOfBounds, int64(offset), "seqevent: entry offset outside blob")
		}
		ev, operandLen, derr := decodeOperands(blob, offset+1, blob[offset], false)
		if derr != nil {
			return nil, nil, derr
		}
		length := 1 + operandLen
		byOffset[offset] = &decoded{offset: offset, ev: ev, length: length}

		if hasAddressOperand(ev) {
			target := ev.TargetOffset
			if !queued[target] {
				queued[target] = true
				worklist = append(worklist, target)
			}
		}
		if fallsThrough(ev) {
			next := offset + length
			if next < len(blob) && !queued[next] {
				queued[next] = true
				worklist = append(worklist, next)
			}
		}
	}

	offsets := make([]int, 0, len(byOffset))
	for o := range byOffset {
		offsets = append(offsets, o)
	}
	sort.Ints(offsets)

	// Overlap check: every decoded event's [offset, offset+length)
	// range must not start in the middle of another decoded event.
	for i := 1; i < len(offsets); i++ {
		prev := byOffset[offsets[i-1]]
		if offsets[i] < prev.offset+prev.length {
			return nil, nil, ndserr.At(ndserr.OverlappingEvents, int64(offsets[i]), "seqevent: event at %#x starts inside the event at %#x", offsets[i], prev.offset)
		}
	}

	eventByOffset := map[int]*Event{}
	for _, o := range offsets {
		eventByOffset[o] = byOffset[o].ev
		events = append(events, byOffset[o].ev)
	}

	// Resolve address operands from byte offsets to Event references.
	for _, ev := range events {
		resolveAddressOperand(ev, eventByOffset)
	}
	// Trailing unreachable bytes become a RawData event (spec §4.5,
	// step 6), anchored after the last decoded event.
	if len(offsets) > 0 {
		last := byOffset[offsets[len(offsets)-1]]
		tailStart := last.offset + last.length
		if tailStart < len(blob) {
			events = append(events, &Event{Kind: KindRawData, Raw: append([]byte(nil), blob[tailStart:]...)})
		}
	}

	entryPoints = make([]*Event, len(notableOffsets))
	for i, o := range notableOffsets {
		entryPoints[i] = eventByOffset[o]
	}
	return events, entryPoints, nil
}

func resolveAddressOperand(ev *Event, byOffset map[int]*Event) {
	if !hasAddressOperand(ev) {
		return
	}
	if target, ok := byOffset[ev.TargetOffset]; ok {
		ev.Target = target
	}
}

// Lower serializes events back to a byte blob. notable is the subset
// of events whose final offsets the caller needs reported, in the
// order given. It returns DanglingReference if any address operand's
// Target is not present in events.
func Lower(events []*Event, notable []*Event) (blob []byte, notableOffsets []int, err error) {
	present := map[*Event]bool{}
	for _, ev := range events {
		present[ev] = true
	}
	for _, ev := range events {
		if hasAddressOperand(ev) && ev.Target != nil && !present[ev.Target] {
			return nil, nil, ndserr.New(ndserr.DanglingReference, "seqevent: address operand targets an event outside the list being lowered")
		}
	}

	// Pass 1: compute offsets via cumulative prefix sums over the
	// current (possibly just-mutated) operand values.
	offsets := make(map[*Event]int, len(events))
	cursor := 0
	for _, ev := range events {
		offsets[ev] = cursor
		cursor += encodedLength(ev)
	}

	resolve := func(ev *Event) (int, error) {
		if ev.Target == nil {
			return 0, ndserr.New(ndserr.DanglingReference, "seqevent: address operand has no target event")
		}
		offset, ok := offsets[ev.Target]
		if !ok {
			return 0, ndserr.New(ndserr.DanglingReference, "seqevent: address operand targets an event outside the list being lowered")
		}
		return offset, nil
	}

	// Pass 2: emit.
	blob = make([]byte, 0, cursor)
	for _, ev := range events {
		blob, err = emitEvent(blob, ev, resolve)
		if err != nil {
			return nil, nil, err
		}
	}

	notableOffsets = make([]int, len(notable))
	for i, ev := range notable {
		offset, ok := offsets[ev]
		if !ok {
			return nil, nil, ndserr.New(ndserr.DanglingReference, "seqevent: requested notable event is not in the list being lowered")
		}
		notableOffsets[i] = offset
	}
	return blob, notableOffsets, nil
}
