package discid

import (
	"math"

	"github.com/baebaebaebaebae/bae-core/internal/cuesheet"
	"github.com/baebaebaebaebae/bae-core/internal/eaclog"
)

// FromLog computes the DiscID from a ripper log's parsed TOC (spec.md §4.2
// "From a log"). toc's sectors are raw (no lead-in); FromLog adds LeadIn to
// every track start and to the lead-out before hashing.
func FromLog(toc eaclog.TOC) (string, error) {
	offsets := make([]int32, len(toc.TrackStartSectors))
	for i, sector := range toc.TrackStartSectors {
		offsets[i] = sector + LeadIn
	}
	return Compute(TOC{
		LeadOut:      toc.LeadOutSector + LeadIn,
		TrackOffsets: offsets,
	})
}

// FromCueFlac computes the DiscID from a CUE sheet's INDEX 01 offsets plus
// the paired FLAC's duration (spec.md §4.2 "From a CUE + FLAC"): each track
// offset is sheet.Tracks[i].Index01 converted to sectors, and the lead-out is
// round(durationSeconds * 75), both with the same +150 lead-in applied.
func FromCueFlac(sheet cuesheet.Sheet, durationSeconds float64) (string, error) {
	offsets := make([]int32, len(sheet.Tracks))
	for i, tr := range sheet.Tracks {
		offsets[i] = SectorsFromMSF(tr.Index01.Min, tr.Index01.Sec, tr.Index01.Frame) + LeadIn
	}
	leadOut := int32(math.Round(durationSeconds*75)) + LeadIn
	return Compute(TOC{
		LeadOut:      leadOut,
		TrackOffsets: offsets,
	})
}
