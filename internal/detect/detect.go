// Package detect walks a folder tree to find release leaves (spec.md §4.1):
// a directory is a leaf iff it directly holds audio, or its immediate
// subdirectories look like disc folders each holding audio with no further
// nesting. Everything else is a collection and is recursed into. Grounded
// on original_source/bae-core/src/import/folder_scanner.rs, reimplemented
// as recursion over os.ReadDir in place of the original's recursion over
// fs::read_dir, and with a callback-per-candidate shape kept from the
// original's scan_for_candidates_with_callback.
package detect

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/baebaebaebaebae/bae-core/internal/baeerr"
	"github.com/baebaebaebaebae/bae-core/internal/cuesheet"
	"github.com/baebaebaebaebae/bae-core/internal/flacscan"
	"github.com/baebaebaebaebae/bae-core/internal/textenc"
)

const maxRecursionDepth = 10

// maxDiscFolderNameLength bounds how long a subdirectory name can be and
// still be considered a disc folder ("CD1", "Disc 2") rather than an album
// title that merely happens to share a prefix with its siblings.
const maxDiscFolderNameLength = 15

var (
	audioExtensions    = map[string]bool{".flac": true}
	imageExtensions    = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true, ".bmp": true}
	documentExtensions = map[string]bool{".log": true, ".txt": true, ".nfo": true, ".m3u": true, ".m3u8": true}
	noiseNames         = map[string]bool{".DS_Store": true, "Thumbs.db": true, "desktop.ini": true}
)

// File is one discovered file with its path relative to the release root.
type File struct {
	Path         string // absolute
	RelativePath string
	Size         int64
}

// CueFlacPair is one CUE sheet bound to the single FLAC image it indexes.
type CueFlacPair struct {
	CueFile   File
	AudioFile File
	Sheet     cuesheet.Sheet
}

// AudioContent is exactly one of CueFlacPairs or TrackFiles, never both.
type AudioContent struct {
	CueFlacPairs []CueFlacPair
	TrackFiles   []File
}

// IsCueFlac reports whether this release's audio is CUE/FLAC images rather
// than one file per track.
func (a AudioContent) IsCueFlac() bool { return len(a.CueFlacPairs) > 0 }

// Count returns the number of audio items, counting each CUE/FLAC pair (not
// each track within it) or each individual track file.
func (a AudioContent) Count() int {
	if a.IsCueFlac() {
		return len(a.CueFlacPairs)
	}
	return len(a.TrackFiles)
}

// Files holds a leaf directory's classified contents.
type Files struct {
	Audio          AudioContent
	Artwork        []File
	Documents      []File
	BadAudioCount  int
	BadImageCount  int
}

// Candidate is one detected release leaf.
type Candidate struct {
	Path  string
	Name  string
	Files Files
}

// Scan walks root and invokes onCandidate for every release leaf found,
// depth-first, in directory order.
func Scan(root string, onCandidate func(Candidate) error) error {
	return scanDir(root, 0, onCandidate)
}

func scanDir(dir string, depth int, onCandidate func(Candidate) error) error {
	if depth > maxRecursionDepth {
		return nil
	}
	leaf, err := isLeafDirectory(dir)
	if err != nil {
		return err
	}
	if leaf {
		files, err := collectReleaseFiles(dir)
		if err != nil {
			return err
		}
		return onCandidate(Candidate{
			Path:  dir,
			Name:  filepath.Base(dir),
			Files: files,
		})
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := scanDir(filepath.Join(dir, entry.Name()), depth+1, onCandidate); err != nil {
			return err
		}
	}
	return nil
}

func isLeafDirectory(dir string) (bool, error) {
	has, err := hasAudioFiles(dir)
	if err != nil {
		return false, err
	}
	if has {
		return true, nil
	}
	discFolders, err := subdirsAreDiscFolders(dir)
	if err != nil {
		return false, err
	}
	if !discFolders {
		return false, nil
	}
	nested, err := hasNestedAudioDirs(dir)
	if err != nil {
		return false, err
	}
	return !nested, nil
}

// hasAudioFiles reports whether dir directly contains a non-empty audio
// file. Used for tree-structure detection, not validation — even a
// directory with only corrupt FLACs is still a candidate leaf; the
// incompleteness is reported at the candidate level.
func hasAudioFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read dir %q: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isAudioFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func hasSubdirsWithAudio(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read dir %q: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		has, err := hasAudioFiles(filepath.Join(dir, entry.Name()))
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

func hasNestedAudioDirs(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read dir %q: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		has, err := hasSubdirsWithAudio(filepath.Join(dir, entry.Name()))
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

func subdirsAreDiscFolders(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		has, err := hasAudioFiles(filepath.Join(dir, entry.Name()))
		if err != nil {
			return false, err
		}
		if has {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return false, nil
	}
	allNumeric := true
	for _, n := range names {
		if n == "" || !isAllDigits(n) {
			allNumeric = false
			break
		}
	}
	if allNumeric {
		return true, nil
	}
	for _, n := range names {
		if len(n) > maxDiscFolderNameLength {
			return false, nil
		}
	}
	return len(longestCommonPrefix(names)) >= 2, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func longestCommonPrefix(names []string) string {
	if len(names) == 0 {
		return ""
	}
	first := strings.ToLower(names[0])
	prefixLen := len(first)
	for _, name := range names[1:] {
		lower := strings.ToLower(name)
		n := 0
		for n < prefixLen && n < len(lower) && first[n] == lower[n] {
			n++
		}
		prefixLen = n
		if prefixLen == 0 {
			break
		}
	}
	return first[:prefixLen]
}

func isAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

func isImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

func isCueFile(name string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".cue"
}

func isDocumentFile(name string) bool {
	return documentExtensions[strings.ToLower(filepath.Ext(name))]
}

func isNoiseFile(name string) bool {
	return noiseNames[name]
}

// collectReleaseFiles recursively collects and classifies every file under
// releaseRoot, then resolves CUE/FLAC pairing.
func collectReleaseFiles(releaseRoot string) (Files, error) {
	var audio, cues, artwork, documents []File
	var badAudio, badImage int

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read dir %q: %w", dir, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			path := filepath.Join(dir, name)
			if entry.IsDir() {
				if err := walk(path); err != nil {
					return err
				}
				continue
			}
			if isNoiseFile(name) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("stat %q: %w", path, err)
			}
			size := info.Size()
			rel, err := filepath.Rel(releaseRoot, path)
			if err != nil {
				return fmt.Errorf("relativize %q: %w", path, err)
			}
			file := File{Path: path, RelativePath: rel, Size: size}

			switch {
			case isAudioFile(name):
				if size == 0 || !isValidFlac(path) {
					badAudio++
					continue
				}
				audio = append(audio, file)
			case isCueFile(name):
				cues = append(cues, file)
			case isImageFile(name):
				if size == 0 || !isValidImage(path) {
					badImage++
					continue
				}
				artwork = append(artwork, file)
			case isDocumentFile(name):
				documents = append(documents, file)
			}
		}
		return nil
	}
	if err := walk(releaseRoot); err != nil {
		return Files{}, err
	}

	// Audio files exist but every one of them failed validation: fail the
	// whole leaf rather than silently presenting zero tracks.
	if len(audio) == 0 && badAudio > 0 {
		return Files{}, &baeerr.CorruptAudioError{Count: badAudio}
	}

	pairs, usedCues := pairCueFlac(cues, audio)

	var result AudioContent
	if len(pairs) > 0 {
		for _, cue := range cues {
			if !usedCues[cue.Path] {
				documents = append(documents, cue)
			}
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].CueFile.RelativePath < pairs[j].CueFile.RelativePath })
		result.CueFlacPairs = pairs
	} else {
		documents = append(documents, cues...)
		sort.Slice(audio, func(i, j int) bool { return audio[i].RelativePath < audio[j].RelativePath })
		result.TrackFiles = audio
	}

	sort.Slice(artwork, func(i, j int) bool { return artwork[i].RelativePath < artwork[j].RelativePath })
	sort.Slice(documents, func(i, j int) bool { return documents[i].RelativePath < documents[j].RelativePath })

	return Files{
		Audio:         result,
		Artwork:       artwork,
		Documents:     documents,
		BadAudioCount: badAudio,
		BadImageCount: badImage,
	}, nil
}

// pairCueFlac resolves each CUE to the single FLAC it indexes: the CUE must
// have exactly one FILE directive, matched by stem first, then by the FILE
// directive's own filename stem.
func pairCueFlac(cues, audio []File) (pairs []CueFlacPair, usedCues map[string]bool) {
	usedCues = map[string]bool{}

	audioByStem := map[string]File{}
	for _, f := range audio {
		audioByStem[stem(f.RelativePath)] = f
	}

	for _, cue := range cues {
		raw, err := textenc.ReadFile(cue.Path)
		if err != nil {
			continue
		}
		if cuesheet.SingleFileCount(raw) != 1 {
			continue
		}
		sheet, err := cuesheet.Parse(raw)
		if err != nil {
			continue
		}

		match, ok := audioByStem[stem(cue.RelativePath)]
		if !ok && sheet.File != "" {
			match, ok = audioByStem[stem(sheet.File)]
		}
		if !ok {
			continue
		}

		pairs = append(pairs, CueFlacPair{CueFile: cue, AudioFile: match, Sheet: sheet})
		usedCues[cue.Path] = true
	}
	return pairs, usedCues
}

func stem(relPath string) string {
	base := filepath.Base(relPath)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// isValidFlac confirms the fLaC magic and a parseable STREAMINFO block, and
// that the file is at least as large as its metadata header.
func isValidFlac(path string) bool {
	si, headerLen, err := flacscan.ReadStreamInfo(path)
	if err != nil {
		return false
	}
	if si.SampleRate == 0 {
		return true // can't size-check; fall through to "plausible" rather than reject
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() >= headerLen
}

var imageMagics = [][]byte{
	{0xFF, 0xD8, 0xFF},                   // JPEG
	{0x89, 0x50, 0x4E, 0x47},             // PNG
	{0x47, 0x49, 0x46, 0x38},             // GIF
	{0x42, 0x4D},                         // BMP
	{0x52, 0x49, 0x46, 0x46},             // WEBP (RIFF container)
}

func isValidImage(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 12)
	n, err := f.Read(buf)
	if err != nil || n == 0 {
		return false
	}
	buf = buf[:n]
	for _, magic := range imageMagics {
		if len(buf) >= len(magic) && string(buf[:len(magic)]) == string(magic) {
			return true
		}
	}
	return false
}
