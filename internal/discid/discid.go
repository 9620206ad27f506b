// Package discid computes MusicBrainz DiscIDs from CUE sheet and EAC/XLD log
// table-of-contents data, mirroring libdiscid's TOC hash without linking
// against it.
package discid

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/baebaebaebaebae/bae-core/internal/baeerr"
)

// maxTracks is the CD-DA track-number ceiling the TOC hash always reserves
// slots for, regardless of how many tracks a given disc actually has.
const maxTracks = 99

// TOC is the table-of-contents input to the DiscID hash: a lead-out sector
// and one start-sector offset per track, both expressed in CD-DA sectors
// (75 per second) with the +150 lead-in already applied.
type TOC struct {
	LeadOut      int32
	TrackOffsets []int32
}

// Compute returns the 28-character MusicBrainz DiscID for toc: base64 of
// SHA-1 over a fixed-width hex encoding of first track, last track, lead-out,
// and all 99 track-offset slots (unused slots zero), with the base64
// alphabet's `+`, `/`, `=` swapped for `.`, `_`, `-` (spec §4.2).
func Compute(toc TOC) (string, error) {
	if len(toc.TrackOffsets) == 0 {
		return "", baeerr.ErrDiscIDEmpty
	}
	if len(toc.TrackOffsets) > maxTracks {
		return "", fmt.Errorf("%w: %d tracks exceeds CD-DA maximum of %d", baeerr.ErrDiscIDLookupFailed, len(toc.TrackOffsets), maxTracks)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%02X", 1)
	fmt.Fprintf(&sb, "%02X", len(toc.TrackOffsets))
	fmt.Fprintf(&sb, "%08X", toc.LeadOut)
	for i := 0; i < maxTracks; i++ {
		var offset int32
		if i < len(toc.TrackOffsets) {
			offset = toc.TrackOffsets[i]
		}
		fmt.Fprintf(&sb, "%08X", offset)
	}

	sum := sha1.Sum([]byte(sb.String()))
	encoded := base64.StdEncoding.EncodeToString(sum[:])
	encoded = strings.NewReplacer("+", ".", "/", "_", "=", "-").Replace(encoded)
	return encoded, nil
}

// SectorsFromMSF converts a CUE/log minutes:seconds:frames timestamp to raw
// CD-DA sectors (75 frames per second), without the +150 lead-in offset.
func SectorsFromMSF(min, sec, frame int) int32 {
	return int32((min*60+sec)*75 + frame)
}

// LeadIn is the sector offset added to every raw sector before it is fed to
// the DiscID hash (spec glossary "Lead-out": "the sector one past the end of
// the last track, +150 when feeding the DiscID hash").
const LeadIn = 150
