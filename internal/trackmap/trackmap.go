// Package trackmap binds a release's catalog tracks to the audio files a
// content-detector pass found, and computes the gapless playback fields
// spec.md §4.4 lists from each file's dense seektable. Grounded on
// original_source/bae-core/src/import/folder_metadata_detector.rs's CUE
// INDEX parsing and on album_chunk_layout.rs's seektable lookups, which the
// original performs inline during import; this package gives that logic a
// standalone, testable home the way the teacher isolates schema-facing
// logic into its own store/service packages.
package trackmap

import (
	"fmt"
	"sort"

	"github.com/baebaebaebaebae/bae-core/internal/baeerr"
	"github.com/baebaebaebaebae/bae-core/internal/catalog"
	"github.com/baebaebaebaebae/bae-core/internal/cuesheet"
	"github.com/baebaebaebaebae/bae-core/internal/detect"
	"github.com/baebaebaebaebae/bae-core/internal/flacscan"
)

// Plan is the computed playback plan for one track, prior to the File row
// existing in the catalog — the importer resolves SourceFile to a FileID
// once it has written the File rows and turns this into a
// catalog.UpsertAudioFormatParams.
type Plan struct {
	TrackID     string
	SourceFile  string // absolute path of the audio file this track reads from
	ContentType string

	NeedsHeaders bool
	FLACHeaders  []byte

	StartByteOffset    *int64
	EndByteOffset      *int64
	PregapMs           *int64
	FrameOffsetSamples *int64
	ExactSampleCount   *int64

	SampleRate     int
	BitsPerSample  int
	AudioDataStart int64
	Seektable      []catalog.SeekPoint

	// DurationMs is the track's playable length, for the importer's
	// ExtractingDurations step (spec.md §4.6 step 6) to backfill onto the
	// Track row once it already exists.
	DurationMs *int64
}

const flacContentType = "audio/flac"

// Map binds tracks (already in positional release order) to files.Audio,
// returning one Plan per track in the same order as tracks.
func Map(tracks []catalog.Track, files detect.Files) ([]Plan, error) {
	if files.Audio.IsCueFlac() {
		return mapCueFlac(tracks, files.Audio.CueFlacPairs)
	}
	return mapTrackFiles(tracks, files.Audio.TrackFiles)
}

// mapTrackFiles binds track k to audio file k, once both are ordered the
// same way: (disc_number, track_number) for tracks, relative path for
// files (detect.collectReleaseFiles already sorts them that way).
func mapTrackFiles(tracks []catalog.Track, audioFiles []detect.File) ([]Plan, error) {
	if len(tracks) != len(audioFiles) {
		return nil, &baeerr.TrackCountMismatchError{Expected: len(tracks), Found: len(audioFiles)}
	}
	ordered := sortedTrackIndices(tracks)

	plans := make([]Plan, len(tracks))
	for i, trackIdx := range ordered {
		track := tracks[trackIdx]
		file := audioFiles[i]
		si, _, err := flacscan.ReadStreamInfo(file.Path)
		if err != nil {
			return nil, fmt.Errorf("read streaminfo for track %q: %w", track.ID, err)
		}
		durationMs := si.DurationMs()
		plans[trackIdx] = Plan{
			TrackID:       track.ID,
			SourceFile:    file.Path,
			ContentType:   flacContentType,
			NeedsHeaders:  false,
			SampleRate:    int(si.SampleRate),
			BitsPerSample: int(si.BitsPerSample),
			DurationMs:    &durationMs,
		}
	}
	return plans, nil
}

// sortedTrackIndices returns the indices of tracks ordered by (disc_number,
// track_number), treating a nil disc/track number as 0 the way a
// single-disc release's unset DiscNumber would sort first.
func sortedTrackIndices(tracks []catalog.Track) []int {
	idx := make([]int, len(tracks))
	for i := range idx {
		idx[i] = i
	}
	discOf := func(t catalog.Track) int {
		if t.DiscNumber == nil {
			return 0
		}
		return *t.DiscNumber
	}
	numOf := func(t catalog.Track) int {
		if t.TrackNumber == nil {
			return 0
		}
		return *t.TrackNumber
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := tracks[idx[a]], tracks[idx[b]]
		if da, db := discOf(ta), discOf(tb); da != db {
			return da < db
		}
		return numOf(ta) < numOf(tb)
	})
	return idx
}

// discGroup is one CUE/FLAC pair's tracks, matched against the catalog
// tracks that share its disc number.
type discGroup struct {
	pair        detect.CueFlacPair
	catalogIdxs []int // indices into the full tracks slice, this disc's tracks in order
}

func mapCueFlac(tracks []catalog.Track, pairs []detect.CueFlacPair) ([]Plan, error) {
	groups, err := groupTracksByDisc(tracks, pairs)
	if err != nil {
		return nil, err
	}

	plans := make([]Plan, len(tracks))
	for _, g := range groups {
		if len(g.pair.Sheet.Tracks) != len(g.catalogIdxs) {
			return nil, &baeerr.TrackCountMismatchError{Expected: len(g.catalogIdxs), Found: len(g.pair.Sheet.Tracks)}
		}
		discPlans, err := planDisc(g.pair, g.catalogIdxs, tracks)
		if err != nil {
			return nil, err
		}
		for i, idx := range g.catalogIdxs {
			plans[idx] = discPlans[i]
		}
	}
	return plans, nil
}

// groupTracksByDisc pairs each CueFlacPair with the catalog tracks on its
// disc. Single-CUE releases (the common case) have exactly one disc; when
// there are several, pairs are assigned in CUE sort order against the
// distinct disc numbers found among tracks, in ascending order.
func groupTracksByDisc(tracks []catalog.Track, pairs []detect.CueFlacPair) ([]discGroup, error) {
	discOf := func(t catalog.Track) int {
		if t.DiscNumber == nil {
			return 1
		}
		return *t.DiscNumber
	}

	if len(pairs) == 1 {
		idxs := sortedTrackIndices(tracks)
		return []discGroup{{pair: pairs[0], catalogIdxs: idxs}}, nil
	}

	byDisc := map[int][]int{}
	for i, t := range tracks {
		d := discOf(t)
		byDisc[d] = append(byDisc[d], i)
	}
	var discs []int
	for d := range byDisc {
		discs = append(discs, d)
	}
	sort.Ints(discs)
	if len(discs) != len(pairs) {
		return nil, fmt.Errorf("%w: %d discs in catalog, %d CUE/FLAC pairs found", baeerr.ErrCueFlacMismatch, len(discs), len(pairs))
	}

	groups := make([]discGroup, len(pairs))
	for i, pair := range pairs {
		idxs := byDisc[discs[i]]
		sort.SliceStable(idxs, func(a, b int) bool {
			ta, tb := tracks[idxs[a]], tracks[idxs[b]]
			na, nb := 0, 0
			if ta.TrackNumber != nil {
				na = *ta.TrackNumber
			}
			if tb.TrackNumber != nil {
				nb = *tb.TrackNumber
			}
			return na < nb
		})
		groups[i] = discGroup{pair: pair, catalogIdxs: idxs}
	}
	return groups, nil
}

// planDisc computes the five gapless fields for every track on one CUE/FLAC
// disc, via the shared file's dense seektable.
func planDisc(pair detect.CueFlacPair, catalogIdxs []int, tracks []catalog.Track) ([]Plan, error) {
	si, seektable, err := flacscan.BuildSeektable(pair.AudioFile.Path)
	if err != nil {
		return nil, fmt.Errorf("build seektable for %q: %w", pair.AudioFile.Path, err)
	}
	headers, err := flacscan.ReadHeaderBytes(pair.AudioFile.Path)
	if err != nil {
		return nil, err
	}
	_, audioDataStart, err := flacscan.ReadStreamInfo(pair.AudioFile.Path)
	if err != nil {
		return nil, err
	}

	sampleFor := func(p cuesheet.Position) int64 {
		ms := positionMs(p)
		return ms * int64(si.SampleRate) / 1000
	}

	cueTracks := pair.Sheet.Tracks
	plans := make([]Plan, len(catalogIdxs))
	for i, idx := range catalogIdxs {
		track := tracks[idx]
		cue := cueTracks[i]

		startSample := sampleFor(cue.Index01)
		startEntry, err := flacscan.Lookup(seektable, startSample)
		if err != nil {
			return nil, fmt.Errorf("lookup start sample for track %q: %w", track.ID, err)
		}

		var nextSample int64
		if i+1 < len(cueTracks) {
			nextSample = sampleFor(cueTracks[i+1].Index01)
		} else {
			nextSample = int64(si.TotalSamples)
		}
		endEntry, err := flacscan.Lookup(seektable, nextSample)
		if err != nil {
			return nil, fmt.Errorf("lookup end sample for track %q: %w", track.ID, err)
		}

		var pregapMs *int64
		if cue.Index00 != nil {
			p := positionMs(cue.Index01) - positionMs(*cue.Index00)
			pregapMs = &p
		}

		startByte, endByte := startEntry.Byte, endEntry.Byte
		frameOffset := startSample - startEntry.Sample
		exactCount := nextSample - startSample
		durationMs := exactCount * 1000 / int64(si.SampleRate)

		// The stored seektable is track-relative: sample 0 is INDEX 01 and
		// byte 0 is startByte, covering the frames in [startByte, endByte).
		var trackSeek []catalog.SeekPoint
		for _, pt := range seektable {
			if pt.Sample < startEntry.Sample {
				continue
			}
			if pt.Sample >= endEntry.Sample && len(trackSeek) > 0 {
				break
			}
			trackSeek = append(trackSeek, catalog.SeekPoint{Sample: pt.Sample - startSample, Byte: pt.Byte - startByte})
		}

		plans[i] = Plan{
			TrackID:            track.ID,
			SourceFile:         pair.AudioFile.Path,
			ContentType:        flacContentType,
			NeedsHeaders:       true,
			FLACHeaders:        headers,
			StartByteOffset:    &startByte,
			EndByteOffset:      &endByte,
			PregapMs:           pregapMs,
			FrameOffsetSamples: &frameOffset,
			ExactSampleCount:   &exactCount,
			SampleRate:         int(si.SampleRate),
			BitsPerSample:      int(si.BitsPerSample),
			AudioDataStart:     audioDataStart,
			Seektable:          trackSeek,
			DurationMs:         &durationMs,
		}
	}
	return plans, nil
}

// positionMs converts a CUE mm:ss:ff position to milliseconds.
func positionMs(p cuesheet.Position) int64 {
	return int64(p.Min)*60_000 + int64(p.Sec)*1000 + int64(p.Frame)*1000/75
}
