package eaclog

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSample(t *testing.T) {
	buf, err := os.ReadFile("testdata/sample.log")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	toc, err := Parse(string(buf))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := TOC{
		TrackStartSectors: []int32{0, 18638, 34651},
		LeadOutSector:     52776,
	}
	if diff := cmp.Diff(want, toc); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMissingTOC(t *testing.T) {
	_, err := Parse("Exact Audio Copy V1.6\n\nNo table here.\n")
	if err == nil {
		t.Errorf("expected error for log with no TOC table, got nil")
	}
}
