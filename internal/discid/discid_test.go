package discid

import (
	"errors"
	"testing"

	"github.com/baebaebaebaebae/bae-core/internal/baeerr"
	"github.com/baebaebaebaebae/bae-core/internal/cuesheet"
	"github.com/baebaebaebaebae/bae-core/internal/eaclog"
)

func TestComputeLengthAndAlphabet(t *testing.T) {
	id, err := Compute(TOC{LeadOut: 188965, TrackOffsets: []int32{150, 23456, 98765}})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(id) != 28 {
		t.Errorf("len(id) = %d, want 28", len(id))
	}
	for _, r := range id {
		ok := (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-'
		if !ok {
			t.Errorf("id %q contains disallowed character %q", id, r)
			break
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	toc := TOC{LeadOut: 188965, TrackOffsets: []int32{150, 23456, 98765}}
	a, err := Compute(toc)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(toc)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a != b {
		t.Errorf("Compute not deterministic: %q != %q", a, b)
	}
}

func TestComputeDiffersOnLeadOut(t *testing.T) {
	a, err := Compute(TOC{LeadOut: 188965, TrackOffsets: []int32{150, 23456}})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(TOC{LeadOut: 188966, TrackOffsets: []int32{150, 23456}})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a == b {
		t.Errorf("Compute gave the same DiscID for different lead-out sectors")
	}
}

func TestComputeEmptyOffsets(t *testing.T) {
	_, err := Compute(TOC{LeadOut: 1000})
	if !errors.Is(err, baeerr.ErrDiscIDEmpty) {
		t.Errorf("err = %v, want ErrDiscIDEmpty", err)
	}
}

func TestComputeTooManyTracks(t *testing.T) {
	offsets := make([]int32, maxTracks+1)
	_, err := Compute(TOC{LeadOut: 1000, TrackOffsets: offsets})
	if err == nil {
		t.Errorf("expected error for %d tracks, got nil", len(offsets))
	}
}

// TestFromLogAndFromCueFlacAgree exercises spec.md §8's cross-check: a log
// and a CUE+FLAC pair describing the same physical disc must hash to the
// same DiscID once each derivation applies its own +150 lead-in.
func TestFromLogAndFromCueFlacAgree(t *testing.T) {
	log := eaclog.TOC{
		TrackStartSectors: []int32{0, 19650},
		LeadOutSector:     28785,
	}
	sheet := cuesheet.Sheet{
		Tracks: []cuesheet.Track{
			{Number: 1, Index01: cuesheet.Position{Min: 0, Sec: 0, Frame: 0}},
			{Number: 2, Index01: cuesheet.Position{Min: 4, Sec: 22, Frame: 0}},
		},
	}
	const durationSeconds = 383.8

	fromLog, err := FromLog(log)
	if err != nil {
		t.Fatalf("FromLog: %v", err)
	}
	fromCueFlac, err := FromCueFlac(sheet, durationSeconds)
	if err != nil {
		t.Fatalf("FromCueFlac: %v", err)
	}
	if fromLog != fromCueFlac {
		t.Errorf("DiscID(log) = %q, DiscID(cue+flac) = %q, want equal", fromLog, fromCueFlac)
	}
}

func TestSectorsFromMSF(t *testing.T) {
	cases := []struct {
		min, sec, frame int
		want            int32
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 4500},
		{37, 42, 50, 169700},
	}
	for _, c := range cases {
		got := SectorsFromMSF(c.min, c.sec, c.frame)
		want := int32((c.min*60+c.sec)*75 + c.frame)
		if got != want {
			t.Errorf("SectorsFromMSF(%d,%d,%d) = %d, want %d", c.min, c.sec, c.frame, got, want)
		}
	}
}
