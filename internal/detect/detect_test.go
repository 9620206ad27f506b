package detect

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeFlac returns a minimal valid FLAC file: the "fLaC" magic followed by a
// 34-byte all-zero STREAMINFO block. Sample rate decodes to 0, which skips
// the logical-size check in isValidFlac, so this passes validation without
// needing a realistic file size — mirrors folder_scanner.rs's fake_flac().
func fakeFlac() []byte {
	buf := []byte{'f', 'L', 'a', 'C', 0x00, 0x00, 0x00, 34}
	buf = append(buf, make([]byte, 34)...)
	return buf
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func scanAll(t *testing.T, root string) []Candidate {
	t.Helper()
	var candidates []Candidate
	if err := Scan(root, func(c Candidate) error {
		candidates = append(candidates, c)
		return nil
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return candidates
}

func makeCue(flacFilename, title string) string {
	return `PERFORMER "Test Artist"
TITLE "` + title + `"
FILE "` + flacFilename + `" WAVE
  TRACK 01 AUDIO
    TITLE "Track One"
    INDEX 01 00:00:00
  TRACK 02 AUDIO
    TITLE "Track Two"
    INDEX 01 05:00:00
`
}

func TestCollectionOfAlbumsDetectedSeparately(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Artist Collection")
	albums := [][2]string{
		{"2020 - Album One [CAT001]", "Artist - Album One"},
		{"2021 - Album Two [CAT002]", "Artist - Album Two"},
		{"2022 - Album Three [CAT003]", "Artist - Album Three"},
	}
	for _, a := range albums {
		dir := filepath.Join(root, a[0])
		writeFile(t, filepath.Join(dir, a[1]+".flac"), fakeFlac())
		writeFile(t, filepath.Join(dir, a[1]+".cue"), []byte(makeCue(a[1]+".flac", a[1])))
		writeFile(t, filepath.Join(dir, "cover.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xE0})
	}

	candidates := scanAll(t, root)
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3 (collection treated as one release)", len(candidates))
	}
	for _, c := range candidates {
		if got := len(c.Files.Audio.CueFlacPairs); got != 1 {
			t.Errorf("candidate %s: got %d cue/flac pairs, want 1", c.Name, got)
		}
	}
}

func TestMultiDiscDetectedAsOneCandidate(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Multi Disc Album")
	discs := [][2]string{
		{"CD1", "Artist - Album CD1"},
		{"CD2", "Artist - Album CD2"},
	}
	for _, d := range discs {
		dir := filepath.Join(root, d[0])
		writeFile(t, filepath.Join(dir, d[1]+".flac"), fakeFlac())
		writeFile(t, filepath.Join(dir, d[1]+".cue"), []byte(makeCue(d[1]+".flac", d[1])))
	}

	candidates := scanAll(t, root)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1 (multi-disc release)", len(candidates))
	}
	if got := len(candidates[0].Files.Audio.CueFlacPairs); got != 2 {
		t.Errorf("got %d cue/flac pairs, want 2 (one per disc)", got)
	}
}

func assertMultiDisc(t *testing.T, folders []string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Test Album")
	for _, name := range folders {
		writeFile(t, filepath.Join(root, name, "track.flac"), fakeFlac())
	}
	candidates := scanAll(t, root)
	if len(candidates) != 1 {
		t.Errorf("folders %v: got %d candidates, want 1", folders, len(candidates))
	}
}

func assertCollection(t *testing.T, folders []string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Collection")
	for _, name := range folders {
		writeFile(t, filepath.Join(root, name, "track.flac"), fakeFlac())
	}
	candidates := scanAll(t, root)
	if len(candidates) != len(folders) {
		t.Errorf("folders %v: got %d candidates, want %d", folders, len(candidates), len(folders))
	}
}

func TestMultiDiscDisc1Disc2(t *testing.T)   { assertMultiDisc(t, []string{"Disc 1", "Disc 2"}) }
func TestMultiDiscSideASideB(t *testing.T)   { assertMultiDisc(t, []string{"Side A", "Side B"}) }
func TestMultiDiscNumbered(t *testing.T)     { assertMultiDisc(t, []string{"1", "2", "3"}) }
func TestMultiDiscZeroPadded(t *testing.T)   { assertMultiDisc(t, []string{"01", "02"}) }

func TestCollectionYearPrefixed(t *testing.T) {
	assertCollection(t, []string{"2020 - Album One", "2021 - Album Two", "2022 - Album Three"})
}

func TestCollectionArtistPrefixed(t *testing.T) {
	assertCollection(t, []string{"Artist - First Album", "Artist - Second Album", "Artist - Third Album"})
}

func TestCollectionWithCatalogNumbers(t *testing.T) {
	assertCollection(t, []string{"Album One [CAT001]", "Album Two [CAT002]", "Album Three [CAT003]"})
}

func TestVolumeFoldersWithLongNamesAreSeparate(t *testing.T) {
	// "Vol. 01 (...)" names exceed maxDiscFolderNameLength, so they're
	// treated as distinct albums rather than discs of one release.
	assertCollection(t, []string{"Vol. 01 (R2 70921 - 1990)", "Vol. 02 (R2 70922 - 1991)"})
}

func TestCueWithoutMatchingFlacNotDetected(t *testing.T) {
	// A CUE referencing an unsupported format (APE) has no FLAC counterpart
	// and there are no bare FLACs either, so the folder is never a leaf.
	root := filepath.Join(t.TempDir(), "APE Album")
	cue := `PERFORMER "Test Artist"
TITLE "Test Album"
FILE "album.ape" WAVE
  TRACK 01 AUDIO
    TITLE "Track One"
    INDEX 01 00:00:00
`
	writeFile(t, filepath.Join(root, "album.cue"), []byte(cue))
	writeFile(t, filepath.Join(root, "album.ape"), []byte("fake ape data"))
	writeFile(t, filepath.Join(root, "cover.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xE0})

	candidates := scanAll(t, root)
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0 (no FLAC present)", len(candidates))
	}
}

func TestEmptyFolderNotDetected(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Empty Album")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if candidates := scanAll(t, root); len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}
}

func TestFolderWithOnlyImagesNotDetected(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Just Images")
	writeFile(t, filepath.Join(root, "cover.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xE0})
	writeFile(t, filepath.Join(root, "back.png"), []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	if candidates := scanAll(t, root); len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}
}

func TestVideoTSFolderNotDetected(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Concert DVD")
	writeFile(t, filepath.Join(root, "VIDEO_TS", "VIDEO_TS.VOB"), []byte("fake video"))
	writeFile(t, filepath.Join(root, "VIDEO_TS", "VTS_01_1.VOB"), []byte("fake video"))
	if candidates := scanAll(t, root); len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}
}

func TestZeroByteFilesIgnored(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Incomplete Download")
	writeFile(t, filepath.Join(root, "01 - Track One.flac"), nil)
	writeFile(t, filepath.Join(root, "02 - Track Two.flac"), nil)
	writeFile(t, filepath.Join(root, "cover.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xE0})
	if candidates := scanAll(t, root); len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0 (only 0-byte placeholders)", len(candidates))
	}
}

func TestMixOfRealAndZeroByteFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Partial Download")
	writeFile(t, filepath.Join(root, "01 - Track One.flac"), fakeFlac())
	writeFile(t, filepath.Join(root, "02 - Track Two.flac"), nil)
	writeFile(t, filepath.Join(root, "03 - Track Three.flac"), nil)

	candidates := scanAll(t, root)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if got := candidates[0].Files.Audio.Count(); got != 1 {
		t.Errorf("got %d audio items, want 1 valid file", got)
	}
	if candidates[0].Files.BadAudioCount != 2 {
		t.Errorf("got bad audio count %d, want 2", candidates[0].Files.BadAudioCount)
	}
}

func TestCorruptImageCountedAsBad(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Bad Images")
	writeFile(t, filepath.Join(root, "track.flac"), fakeFlac())
	writeFile(t, filepath.Join(root, "front.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00})
	writeFile(t, filepath.Join(root, "back.jpg"), []byte("not a jpeg"))
	writeFile(t, filepath.Join(root, "inlay.png"), nil)

	candidates := scanAll(t, root)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if got := len(candidates[0].Files.Artwork); got != 1 {
		t.Errorf("got %d artwork files, want 1 valid image", got)
	}
	if candidates[0].Files.BadImageCount != 2 {
		t.Errorf("got bad image count %d, want 2 (corrupt + 0-byte)", candidates[0].Files.BadImageCount)
	}
}

func TestAllCorruptAudioFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "track.flac"), []byte("not a flac file"))

	err := Scan(root, func(Candidate) error { return nil })
	if err == nil {
		t.Fatalf("expected CorruptAudioError, got nil")
	}
}

func TestHiddenFilesAndDirsSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "track.flac"), fakeFlac())
	writeFile(t, filepath.Join(root, "cover.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xE0})
	writeFile(t, filepath.Join(root, ".DS_Store"), []byte("mac junk"))
	writeFile(t, filepath.Join(root, ".bae", "cache.db"), []byte("cache data"))

	candidates := scanAll(t, root)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if got := candidates[0].Files.Audio.Count(); got != 1 {
		t.Errorf("got %d audio files, want 1", got)
	}
	if len(candidates[0].Files.Documents) != 0 {
		t.Errorf("expected no documents leaking from hidden dirs")
	}
}
