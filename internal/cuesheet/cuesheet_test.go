package cuesheet

import (
	"os"
	"testing"
)

func TestParseSample(t *testing.T) {
	buf, err := os.ReadFile("testdata/sample.cue")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	sheet, err := Parse(string(buf))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if sheet.Performer != "Faithless" {
		t.Errorf("Performer = %q, want %q", sheet.Performer, "Faithless")
	}
	if sheet.Title != "Live in Berlin" {
		t.Errorf("Title = %q, want %q", sheet.Title, "Live in Berlin")
	}
	if sheet.Date != "1998" {
		t.Errorf("Date = %q, want %q", sheet.Date, "1998")
	}
	if sheet.DiscID != "1A0C3C04" {
		t.Errorf("DiscID = %q, want %q", sheet.DiscID, "1A0C3C04")
	}
	if sheet.File != "Faithless - Live in Berlin.flac" {
		t.Errorf("File = %q", sheet.File)
	}
	if len(sheet.Tracks) != 3 {
		t.Fatalf("len(Tracks) = %d, want 3", len(sheet.Tracks))
	}

	tr1 := sheet.Tracks[0]
	if tr1.Number != 1 || tr1.Title != "Reverence" || tr1.Index01 != (Position{0, 0, 0}) {
		t.Errorf("track 1 = %+v", tr1)
	}

	tr2 := sheet.Tracks[1]
	if tr2.Index00 == nil || *tr2.Index00 != (Position{6, 38, 0}) {
		t.Errorf("track 2 Index00 = %v, want {6 38 0}", tr2.Index00)
	}
	if tr2.Index01 != (Position{6, 40, 36}) {
		t.Errorf("track 2 Index01 = %v, want {6 40 36}", tr2.Index01)
	}

	tr3 := sheet.Tracks[2]
	if tr3.Pregap == nil || *tr3.Pregap != (Position{0, 2, 0}) {
		t.Errorf("track 3 Pregap = %v, want {0 2 0}", tr3.Pregap)
	}
}

func TestSingleFileCount(t *testing.T) {
	multi := "FILE \"a.flac\" WAVE\nTRACK 01 AUDIO\nFILE \"b.flac\" WAVE\nTRACK 02 AUDIO\n"
	if got := SingleFileCount(multi); got != 2 {
		t.Errorf("SingleFileCount = %d, want 2", got)
	}
}

func TestParseRejectsMultipleDistinctFiles(t *testing.T) {
	content := "FILE \"a.flac\" WAVE\nTRACK 01 AUDIO\nINDEX 01 00:00:00\nFILE \"b.flac\" WAVE\nTRACK 02 AUDIO\nINDEX 01 05:00:00\n"
	if _, err := Parse(content); err == nil {
		t.Errorf("expected error parsing a two-FILE sheet, got nil")
	}
}

func TestPositionSectors(t *testing.T) {
	p := Position{Min: 1, Sec: 30, Frame: 37}
	if got, want := p.Sectors(), int32((1*60+30)*75+37); got != want {
		t.Errorf("Sectors() = %d, want %d", got, want)
	}
}

func TestYear(t *testing.T) {
	cases := []struct {
		date string
		want int
		ok   bool
	}{
		{"1998", 1998, true},
		{"2003/05/12", 2003, true},
		{"", 0, false},
		{"not-a-year", 0, false},
		{"1850", 0, false},
	}
	for _, c := range cases {
		got, ok := Year(c.date)
		if got != c.want || ok != c.ok {
			t.Errorf("Year(%q) = (%d,%v), want (%d,%v)", c.date, got, ok, c.want, c.ok)
		}
	}
}
