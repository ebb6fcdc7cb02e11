package sbnk

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleBank() *Bank {
	return &Bank{
		Instruments: []Instrument{
			{Kind: KindEmpty},
			{
				Kind: KindSingleNote,
				Type: 1,
				SingleNote: NoteDefinition{
					Wave:      WaveLocator{Kind: WaveLocatorSample, WaveArchiveSlot: 2, WaveID: 7},
					BasePitch: 60, Attack: 100, Decay: 80, Sustain: 127, Release: 50, Pan: 64,
				},
			},
			{
				Kind: KindRange,
				Ranges: []RangeRegion{
					{UpperKey: 40, Note: NoteDefinition{Wave: WaveLocator{Kind: WaveLocatorPSG, PSGDutyCycle: 3}, Pan: 64}},
					{UpperKey: 127, Note: NoteDefinition{Wave: WaveLocator{Kind: WaveLocatorNone}, Pan: 64}},
				},
			},
			{
				Kind: KindRegional,
				Regions: []RegionalRegion{
					{LowerKey: 0, UpperKey: 60, Note: NoteDefinition{Wave: WaveLocator{Kind: WaveLocatorSample, WaveID: 1}, Pan: 64}},
					{LowerKey: 61, UpperKey: 127, Note: NoteDefinition{Wave: WaveLocator{Kind: WaveLocatorSample, WaveID: 2}, Pan: 64}},
				},
			},
		},
		WaveArchiveRefs: [4]uint16{0, 1, 0xFFFF, 0xFFFF},
	}
}

func TestRoundTrip(t *testing.T) {
	bank := sampleBank()
	data, err := Emit(bank)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(bank.Instruments, got.Instruments); diff != "" {
		t.Fatalf("instruments mismatch (-want +got):\n%s", diff)
	}
	if got.WaveArchiveRefs != bank.WaveArchiveRefs {
		t.Fatalf("WaveArchiveRefs = %v, want %v", got.WaveArchiveRefs, bank.WaveArchiveRefs)
	}
}

func TestDedupIdenticalInstruments(t *testing.T) {
	note := NoteDefinition{Wave: WaveLocator{Kind: WaveLocatorSample, WaveID: 5}, Pan: 64}
	bank := &Bank{Instruments: []Instrument{
		{Kind: KindSingleNote, Type: 3, SingleNote: note},
		{Kind: KindSingleNote, Type: 3, SingleNote: note},
	}}
	data, err := Emit(bank)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(bank.Instruments, got.Instruments); diff != "" {
		t.Fatalf("instruments mismatch (-want +got):\n%s", diff)
	}
}

func TestRejectsBadMagic(t *testing.T) {
	data, err := Emit(sampleBank())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data[0] = 'X'
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for bad magic")
	}
}
