package sdat

import (
	"testing"

	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/group"
	"github.com/nds-tools/ndscore/player"
	"github.com/nds-tools/ndscore/sbnk"
	"github.com/nds-tools/ndscore/sseq"
	"github.com/nds-tools/ndscore/ssar"
	"github.com/nds-tools/ndscore/strm"
	"github.com/nds-tools/ndscore/swar"
	"github.com/nds-tools/ndscore/swav"
)

func sampleSequence(t *testing.T, bankID uint16, playerID byte) *sseq.Sequence {
	t.Helper()
	blob := []byte{
		0x93, 0x00, 0x05, 0x00, 0x00, // BeginTrack -> offset 5
		0x3C, 0x64, 0x20, // Note
		0xFF, // EndTrack
	}
	meta := sseq.Metadata{BankID: bankID, Volume: 127, ChannelPressure: 64, PolyphonicPressure: 64, PlayerID: playerID}
	seq, err := sseq.Parse(blob, meta)
	if err != nil {
		t.Fatalf("sseq.Parse: %v", err)
	}
	return seq
}

func sampleArchive(t *testing.T) *ssar.Archive {
	t.Helper()
	blob := []byte{
		0x93, 0x00, 0x05, 0x00, 0x00, // [0] BeginTrack -> 5
		0x3C, 0x64, 0x20, // [5] Note
		0xFF,             // [8] EndTrack
		0xFF,             // [9] padding, unreachable from offset 0
		0x3C, 0x64, 0x10, // [10] Note
		0xFF, // [13] EndTrack
	}
	names := []string{"bgm_intro", "bgm_loop"}
	offsets := []int{0, 10}
	metas := []ssar.EntryMetadata{
		{BankID: 1, Volume: 127, PlayerID: 0},
		{BankID: 1, Volume: 100, PlayerID: 1},
	}
	a, err := ssar.Parse(blob, names, offsets, metas)
	if err != nil {
		t.Fatalf("ssar.Parse: %v", err)
	}
	return a
}

func sampleBank() *sbnk.Bank {
	return &sbnk.Bank{
		Instruments: []sbnk.Instrument{
			{
				Kind: sbnk.KindSingleNote,
				Type: 1,
				SingleNote: sbnk.NoteDefinition{
					Wave:      sbnk.WaveLocator{Kind: sbnk.WaveLocatorSample, WaveArchiveSlot: 0, WaveID: 0},
					BasePitch: 60, Attack: 100, Decay: 80, Sustain: 127, Release: 50, Pan: 64,
				},
			},
		},
		WaveArchiveRefs: [4]uint16{0, 0xFFFF, 0xFFFF, 0xFFFF},
	}
}

func sampleWaveArchive() *swar.Archive {
	return &swar.Archive{Waves: []*swav.Wave{
		{Format: swav.FormatPCM8, SampleRate: 8000, Timer: 0x100, LengthWords: 2, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
	}}
}

func sampleStream() *strm.Stream {
	return &strm.Stream{
		Format: strm.FormatPCM16, ChannelCount: 1,
		SampleRate: 32728, Timer: 0x2D0,
		TotalSamples: 2, BlockSize: 4, BlockCount: 1, LastBlockSize: 4, LastBlockSamples: 2,
		Channels: [][][]byte{{{0xAA, 0xAA, 0xAA, 0xAA}}},
	}
}

func sampleSDAT(t *testing.T) *SDAT {
	t.Helper()
	dupSeq := sampleSequence(t, 0, 0)
	return &SDAT{
		HasSymb: true,
		Sequences: []NamedEntry[sseq.Sequence]{
			{Name: "seq_a", Asset: dupSeq},
			{Name: "seq_b", Asset: dupSeq}, // identical payload, same merge ID: must dedup to one FAT slot
			{Name: "seq_c", Asset: sampleSequence(t, 1, 1)},
		},
		SequenceArchives: []NamedEntry[ssar.Archive]{
			{Name: "ssar_a", Asset: sampleArchive(t)},
		},
		Banks: []NamedEntry[sbnk.Bank]{
			{Name: "bank_a", Asset: sampleBank()},
		},
		WaveArchives: []NamedEntry[swar.Archive]{
			{Name: "swar_a", Asset: sampleWaveArchive()},
		},
		SequencePlayers: []NamedEntry[player.SequencePlayer]{
			{Name: "seqplayer_a", Asset: &player.SequencePlayer{MaxSequences: 4, ChannelBitmask: 0xFFFF, HeapSize: 0x1000}},
		},
		Groups: []NamedEntry[group.Group]{
			{Name: "group_a", Asset: &group.Group{Entries: []group.Entry{
				{Type: group.AssetSSEQ, Options: group.Options{LoadSSEQ: true}, ID: 0},
			}}},
		},
		Streams: []NamedEntry[strm.Stream]{
			{Name: "strm_a", Asset: sampleStream()},
		},
		StreamPlayers: []NamedEntry[player.StreamPlayer]{
			{Name: "streamplayer_a", Asset: &player.StreamPlayer{Channels: []uint8{0}}},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	sd := sampleSDAT(t)
	data, err := Emit(sd)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(got.Sequences) != 3 {
		t.Fatalf("len(Sequences) = %d, want 3", len(got.Sequences))
	}
	for i, want := range []string{"seq_a", "seq_b", "seq_c"} {
		if got.Sequences[i].Name != want {
			t.Fatalf("Sequences[%d].Name = %q, want %q", i, got.Sequences[i].Name, want)
		}
		if got.Sequences[i].Asset == nil {
			t.Fatalf("Sequences[%d].Asset = nil", i)
		}
	}
	if got.Sequences[0].Asset.Meta != got.Sequences[1].Asset.Meta {
		t.Fatalf("deduped sequences should carry identical metadata")
	}
	if got.Sequences[2].Asset.Meta.BankID != 1 {
		t.Fatalf("Sequences[2] metadata not preserved: %+v", got.Sequences[2].Asset.Meta)
	}

	if len(got.SequenceArchives) != 1 || got.SequenceArchives[0].Asset == nil {
		t.Fatalf("SequenceArchives missing")
	}
	if len(got.SequenceArchives[0].Asset.Entries) != 2 {
		t.Fatalf("archive entries = %d, want 2", len(got.SequenceArchives[0].Asset.Entries))
	}

	if len(got.Banks) != 1 || got.Banks[0].Asset == nil {
		t.Fatalf("Banks missing")
	}
	if len(got.Banks[0].Asset.Instruments) != 1 {
		t.Fatalf("bank instruments = %d, want 1", len(got.Banks[0].Asset.Instruments))
	}

	if len(got.WaveArchives) != 1 || got.WaveArchives[0].Asset == nil || len(got.WaveArchives[0].Asset.Waves) != 1 {
		t.Fatalf("WaveArchives mismatch: %+v", got.WaveArchives)
	}

	if len(got.SequencePlayers) != 1 || got.SequencePlayers[0].Asset == nil {
		t.Fatalf("SequencePlayers missing")
	}
	if *got.SequencePlayers[0].Asset != *sd.SequencePlayers[0].Asset {
		t.Fatalf("SequencePlayer = %+v, want %+v", got.SequencePlayers[0].Asset, sd.SequencePlayers[0].Asset)
	}

	if len(got.Groups) != 1 || got.Groups[0].Asset == nil || len(got.Groups[0].Asset.Entries) != 1 {
		t.Fatalf("Groups mismatch: %+v", got.Groups)
	}

	if len(got.Streams) != 1 || got.Streams[0].Asset == nil {
		t.Fatalf("Streams missing")
	}
	if got.Streams[0].Asset.SampleRate != sd.Streams[0].Asset.SampleRate {
		t.Fatalf("Stream SampleRate = %d, want %d", got.Streams[0].Asset.SampleRate, sd.Streams[0].Asset.SampleRate)
	}

	if len(got.StreamPlayers) != 1 || got.StreamPlayers[0].Asset == nil || len(got.StreamPlayers[0].Asset.Channels) != 1 {
		t.Fatalf("StreamPlayers mismatch: %+v", got.StreamPlayers)
	}
}

// TestSequenceDedup checks that two identical-payload sequences with
// the same DataMergeOptimizationID collapse to a single FAT slot.
func TestSequenceDedup(t *testing.T) {
	sd := sampleSDAT(t)
	data, err := Emit(sd)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	fat, err := parseFAT(data, findFATOffset(t, data))
	if err != nil {
		t.Fatalf("parseFAT: %v", err)
	}
	// seq_a and seq_b share a payload and DataMergeOptimizationID (both
	// zero), seq_c has distinct metadata baked into its INFO record but
	// its FAT-slot payload (the bare SSEQ file bytes) is unaffected by
	// metadata, so it dedups too: all three sequences share one slot,
	// alongside the archive/bank/wave-archive/stream payloads.
	if len(fat) != 5 {
		t.Fatalf("len(FAT) = %d, want 5 (one shared sequence slot plus archive, bank, wave-archive and stream)", len(fat))
	}
}

func findFATOffset(t *testing.T, data []byte) int {
	t.Helper()
	r := bytecursor.NewReader(data)
	if _, err := r.ReadBytes(8); err != nil {
		t.Fatalf("read header prefix: %v", err)
	}
	if _, err := r.ReadU32(); err != nil {
		t.Fatalf("read file size: %v", err)
	}
	if _, err := r.ReadBytes(4); err != nil {
		t.Fatalf("read header/section-count: %v", err)
	}
	if _, err := r.ReadBytes(16); err != nil { // SYMB + INFO offset/size pairs
		t.Fatalf("read symb/info: %v", err)
	}
	off, err := r.ReadU32()
	if err != nil {
		t.Fatalf("read FAT offset: %v", err)
	}
	return int(off)
}

func TestNoSymb(t *testing.T) {
	sd := sampleSDAT(t)
	sd.HasSymb = false
	data, err := Emit(sd)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.HasSymb {
		t.Fatalf("HasSymb = true, want false")
	}
	for i, e := range got.Sequences {
		if e.Name != "" {
			t.Fatalf("Sequences[%d].Name = %q, want empty (no SYMB)", i, e.Name)
		}
		if e.Asset == nil {
			t.Fatalf("Sequences[%d].Asset = nil", i)
		}
	}
}

func TestRejectsBadMagic(t *testing.T) {
	sd := sampleSDAT(t)
	data, err := Emit(sd)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data[0] = 'X'
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestVersionRoundTrip(t *testing.T) {
	sd := sampleSDAT(t)
	sd.Version = 0x0200
	data, err := Emit(sd)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Version != 0x0200 {
		t.Fatalf("Version = %#x, want 0x0200", got.Version)
	}
	if got.BigEndianHeader {
		t.Fatal("BigEndianHeader = true, want false")
	}
}

func TestRejectsUnrecognizedBOM(t *testing.T) {
	sd := sampleSDAT(t)
	data, err := Emit(sd)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data[4], data[5] = 0x00, 0x00
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for unrecognized byte-order mark")
	}
}

func TestRejectsBigEndianHeader(t *testing.T) {
	sd := sampleSDAT(t)
	if _, err := Emit(sd); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	sd.BigEndianHeader = true
	if _, err := Emit(sd); err == nil {
		t.Fatal("expected error for big-endian header request")
	}
}
