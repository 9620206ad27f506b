package playback

import (
	"testing"

	"github.com/baebaebaebaebae/bae-core/internal/catalog"
)

func int64ptr(v int64) *int64 { return &v }

// These four cases mirror the original service's direct-selection vs.
// natural-transition pregap tests exactly.

func TestStartPositionDirectSelectionSkipsPregap(t *testing.T) {
	got := StartPosition(int64ptr(1500), false)
	if got != 1500 {
		t.Errorf("StartPosition = %d, want 1500 (skip straight to INDEX 01)", got)
	}
}

func TestStartPositionNaturalTransitionPlaysPregap(t *testing.T) {
	got := StartPosition(int64ptr(1500), true)
	if got != 0 {
		t.Errorf("StartPosition = %d, want 0 (play through the pregap from INDEX 00)", got)
	}
}

func TestStartPositionDirectSelectionNoPregap(t *testing.T) {
	got := StartPosition(nil, false)
	if got != 0 {
		t.Errorf("StartPosition = %d, want 0", got)
	}
}

func TestStartPositionNaturalTransitionNoPregap(t *testing.T) {
	got := StartPosition(nil, true)
	if got != 0 {
		t.Errorf("StartPosition = %d, want 0", got)
	}
}

func TestLocateSeekEmptyTable(t *testing.T) {
	byteOffset, discard := LocateSeek(nil, 44100)
	if byteOffset != 0 || discard != 44100 {
		t.Errorf("LocateSeek(nil, 44100) = (%d, %d), want (0, 44100)", byteOffset, discard)
	}
}

func TestLocateSeekBeforeFirstEntry(t *testing.T) {
	table := []catalog.SeekPoint{{Sample: 1000, Byte: 500}, {Sample: 2000, Byte: 1000}}
	byteOffset, discard := LocateSeek(table, 500)
	if byteOffset != 500 || discard != -500 {
		t.Errorf("LocateSeek before first entry = (%d, %d), want (500, -500)", byteOffset, discard)
	}
}

func TestLocateSeekExactMatch(t *testing.T) {
	table := []catalog.SeekPoint{{Sample: 0, Byte: 0}, {Sample: 1000, Byte: 500}, {Sample: 2000, Byte: 1000}}
	byteOffset, discard := LocateSeek(table, 1000)
	if byteOffset != 500 || discard != 0 {
		t.Errorf("LocateSeek exact match = (%d, %d), want (500, 0)", byteOffset, discard)
	}
}

func TestLocateSeekBetweenEntriesUsesNearestBefore(t *testing.T) {
	table := []catalog.SeekPoint{{Sample: 0, Byte: 0}, {Sample: 1000, Byte: 500}, {Sample: 2000, Byte: 1000}}
	byteOffset, discard := LocateSeek(table, 1500)
	if byteOffset != 500 || discard != 500 {
		t.Errorf("LocateSeek(1500) = (%d, %d), want (500, 500) — discard 500 samples into the frame at 1000", byteOffset, discard)
	}
}

func TestLocateSeekPastLastEntry(t *testing.T) {
	table := []catalog.SeekPoint{{Sample: 0, Byte: 0}, {Sample: 1000, Byte: 500}}
	byteOffset, discard := LocateSeek(table, 5000)
	if byteOffset != 500 || discard != 4000 {
		t.Errorf("LocateSeek past last entry = (%d, %d), want (500, 4000)", byteOffset, discard)
	}
}
