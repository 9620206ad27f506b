package trackmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/baebaebaebaebae/bae-core/internal/catalog"
	"github.com/baebaebaebaebae/bae-core/internal/cuesheet"
	"github.com/baebaebaebaebae/bae-core/internal/detect"
)

func intPtr(n int) *int { return &n }

// fakeFlac is a minimal valid FLAC file with an all-zero STREAMINFO and no
// frames — enough for ReadStreamInfo, not for BuildSeektable.
func fakeFlac() []byte {
	buf := []byte{'f', 'L', 'a', 'C', 0x80, 0x00, 0x00, 34}
	return append(buf, make([]byte, 34)...)
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// syntheticFlac builds a fixed-blocksize FLAC file with frameCount frames of
// blockSize samples each (the last frame short by lastFrameShortfall
// samples), padded to a fixed stride so BuildSeektable's sync scan has a
// deterministic, collision-free byte layout to walk.
func syntheticFlac(sampleRate, blockSize, frameCount, lastFrameShortfall int) []byte {
	const stride = 64
	totalSamples := int64(frameCount)*int64(blockSize) - int64(lastFrameShortfall)

	var packed uint64
	packed |= uint64(sampleRate) << 44
	packed |= uint64(2-1) << 41 // stereo
	packed |= uint64(16-1) << 36
	packed |= uint64(totalSamples) & 0xFFFFFFFFF

	streamInfo := make([]byte, 34)
	streamInfo[0], streamInfo[1] = byte(blockSize>>8), byte(blockSize)
	streamInfo[2], streamInfo[3] = byte(blockSize>>8), byte(blockSize)
	for i := 0; i < 8; i++ {
		streamInfo[10+i] = byte(packed >> uint(56-8*i))
	}

	buf := []byte{'f', 'L', 'a', 'C', 0x80, 0x00, 0x00, 34}
	buf = append(buf, streamInfo...)

	// Block size code 0xC => 256<<(0xC-8) = 4096, matching blockSize here.
	for frameIdx := 0; frameIdx < frameCount; frameIdx++ {
		frame := make([]byte, stride)
		frame[0] = 0xFF
		frame[1] = 0xF8 // fixed blocksize
		frame[2] = 0xC0 // block size code 0xC, sample rate code 0x0
		frame[3] = 0x00
		frame[4] = byte(frameIdx) // UTF8-style 1-byte frame number
		buf = append(buf, frame...)
	}
	return buf
}

func TestMapTrackFiles(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "01.flac")
	f2 := filepath.Join(dir, "02.flac")
	writeFile(t, f1, fakeFlac())
	writeFile(t, f2, fakeFlac())

	tracks := []catalog.Track{
		{ID: "t1", TrackNumber: intPtr(1)},
		{ID: "t2", TrackNumber: intPtr(2)},
	}
	files := detect.Files{
		Audio: detect.AudioContent{
			TrackFiles: []detect.File{
				{Path: f1, RelativePath: "01.flac"},
				{Path: f2, RelativePath: "02.flac"},
			},
		},
	}

	plans, err := Map(tracks, files)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(plans))
	}
	if plans[0].TrackID != "t1" || plans[0].SourceFile != f1 {
		t.Errorf("plan[0] = %+v, want bound to t1/%s", plans[0], f1)
	}
	if plans[1].TrackID != "t2" || plans[1].SourceFile != f2 {
		t.Errorf("plan[1] = %+v, want bound to t2/%s", plans[1], f2)
	}
	if plans[0].NeedsHeaders || plans[1].NeedsHeaders {
		t.Errorf("TrackFiles plans should not need headers")
	}
	if plans[0].StartByteOffset != nil {
		t.Errorf("TrackFiles plan should have no start byte offset (fast path)")
	}
}

func TestMapTrackFilesCountMismatch(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "01.flac")
	writeFile(t, f1, fakeFlac())

	tracks := []catalog.Track{{ID: "t1"}, {ID: "t2"}}
	files := detect.Files{
		Audio: detect.AudioContent{TrackFiles: []detect.File{{Path: f1}}},
	}
	_, err := Map(tracks, files)
	if err == nil {
		t.Fatalf("expected TrackCountMismatchError, got nil")
	}
}

func TestMapCueFlacGaplessFields(t *testing.T) {
	dir := t.TempDir()
	flacPath := filepath.Join(dir, "album.flac")
	// 3 frames of 4096 samples, last short by 3096 -> total 9192 samples.
	writeFile(t, flacPath, syntheticFlac(44100, 4096, 3, 3096))

	tracks := []catalog.Track{
		{ID: "t1", TrackNumber: intPtr(1)},
		{ID: "t2", TrackNumber: intPtr(2)},
	}
	sheet := cuesheet.Sheet{
		Tracks: []cuesheet.Track{
			{Number: 1, Index01: cuesheet.Position{Min: 0, Sec: 0, Frame: 0}},
			{Number: 2, Index01: cuesheet.Position{Min: 0, Sec: 0, Frame: 7}},
		},
	}
	files := detect.Files{
		Audio: detect.AudioContent{
			CueFlacPairs: []detect.CueFlacPair{{
				AudioFile: detect.File{Path: flacPath, RelativePath: "album.flac"},
				Sheet:     sheet,
			}},
		},
	}

	plans, err := Map(tracks, files)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(plans))
	}

	t1, t2 := plans[0], plans[1]
	if !t1.NeedsHeaders || !t2.NeedsHeaders {
		t.Errorf("CUE/FLAC plans should need headers")
	}
	if len(t1.FLACHeaders) == 0 {
		t.Errorf("expected captured flac_headers bytes")
	}

	if t1.StartByteOffset == nil || *t1.StartByteOffset != 42 {
		t.Errorf("t1 start byte = %v, want 42 (first frame, right after the header)", t1.StartByteOffset)
	}
	if t1.FrameOffsetSamples == nil || *t1.FrameOffsetSamples != 0 {
		t.Errorf("t1 frame offset = %v, want 0", t1.FrameOffsetSamples)
	}
	// INDEX 01 00:00:07 -> 93 ms -> sample 4101 (int-truncated at each step,
	// the same way the CUE/engine math truncates throughout this package).
	if t1.ExactSampleCount == nil || *t1.ExactSampleCount != 4101 {
		t.Errorf("t1 exact sample count = %v, want 4101", t1.ExactSampleCount)
	}

	wantFrame1Byte := int64(42 + 64) // header + one frame stride
	if t2.StartByteOffset == nil || *t2.StartByteOffset != wantFrame1Byte {
		t.Errorf("t2 start byte = %v, want %d (second frame)", t2.StartByteOffset, wantFrame1Byte)
	}
	if t2.FrameOffsetSamples == nil || *t2.FrameOffsetSamples != 5 {
		t.Errorf("t2 frame offset = %v, want 5 (4101 - 4096)", t2.FrameOffsetSamples)
	}
	if t2.ExactSampleCount == nil || *t2.ExactSampleCount != 5091 {
		t.Errorf("t2 exact sample count = %v, want 5091 (9192 - 4101)", t2.ExactSampleCount)
	}
	if t1.EndByteOffset == nil || *t1.EndByteOffset != wantFrame1Byte {
		t.Errorf("t1 end byte = %v, want %d (floor of next track's start sample)", t1.EndByteOffset, wantFrame1Byte)
	}

	wantFrame2Byte := int64(42 + 2*64)
	if t2.EndByteOffset == nil || *t2.EndByteOffset != wantFrame2Byte {
		t.Errorf("t2 end byte = %v, want %d (last track ends at the final frame)", t2.EndByteOffset, wantFrame2Byte)
	}

	if t1.DurationMs == nil || *t1.DurationMs != 92 {
		t.Errorf("t1 duration = %v, want 92 (4101000/44100 truncated)", t1.DurationMs)
	}
	if t2.DurationMs == nil || *t2.DurationMs != 115 {
		t.Errorf("t2 duration = %v, want 115 (5091000/44100 truncated)", t2.DurationMs)
	}
}

func TestMapCueFlacTrackCountMismatch(t *testing.T) {
	dir := t.TempDir()
	flacPath := filepath.Join(dir, "album.flac")
	writeFile(t, flacPath, syntheticFlac(44100, 4096, 2, 0))

	tracks := []catalog.Track{{ID: "t1"}, {ID: "t2"}}
	sheet := cuesheet.Sheet{
		Tracks: []cuesheet.Track{{Number: 1}}, // only 1 CUE track for 2 catalog tracks
	}
	files := detect.Files{
		Audio: detect.AudioContent{
			CueFlacPairs: []detect.CueFlacPair{{
				AudioFile: detect.File{Path: flacPath},
				Sheet:     sheet,
			}},
		},
	}
	_, err := Map(tracks, files)
	if err == nil {
		t.Fatalf("expected TrackCountMismatchError, got nil")
	}
}
