// Package cuesheet parses the CUE sheet subset spec.md §6 lists as
// consumed: PERFORMER, TITLE, FILE "…" WAVE, per-track TRACK/TITLE/
// PERFORMER/INDEX 00/INDEX 01, and REM DATE/REM DISCID. Parsing follows the
// line-oriented regexp scan Ambrevar-demlo/cuesheet uses, narrowed from that
// package's generic tag bag to the typed fields the catalog and DiscID
// engine need.
package cuesheet

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reFile      = regexp.MustCompile(`^\s*FILE\s+"([^"]+)"\s+WAVE\s*$`)
	reTrack     = regexp.MustCompile(`^\s*TRACK\s+(\d+)\s+AUDIO\s*$`)
	reIndex     = regexp.MustCompile(`^\s*INDEX\s+(\d+)\s+(\d+):(\d+):(\d+)\s*$`)
	rePregap    = regexp.MustCompile(`^\s*PREGAP\s+(\d+):(\d+):(\d+)\s*$`)
	reTitle     = regexp.MustCompile(`^\s*TITLE\s+"([^"]*)"\s*$`)
	rePerformer = regexp.MustCompile(`^\s*PERFORMER\s+"([^"]*)"\s*$`)
	reRemDate   = regexp.MustCompile(`^\s*REM\s+DATE\s+(\S+)\s*$`)
	reRemDiscID = regexp.MustCompile(`^\s*REM\s+DISCID\s+(\S+)\s*$`)
)

// Position is a CUE mm:ss:ff timestamp (ff = 1/75th-second frames).
type Position struct {
	Min, Sec, Frame int
}

// Sectors converts the timestamp to raw CD-DA sectors (75 per second),
// without any lead-in adjustment.
func (p Position) Sectors() int32 {
	return int32((p.Min*60+p.Sec)*75 + p.Frame)
}

// Track is one TRACK block within a CUE sheet.
type Track struct {
	Number    int
	Title     string
	Performer string
	Index00   *Position // pregap start, if present
	Index01   Position  // audible start
	Pregap    *Position
}

// Sheet is the parsed subset of a CUE sheet this package consumes.
type Sheet struct {
	Performer string
	Title     string
	Date      string
	DiscID    string // FreeDB-style id from "REM DISCID", if present
	File      string // the single FILE "…" WAVE target; empty for multi-FILE sheets
	Tracks    []Track
}

// SingleFileCount returns how many FILE "…" WAVE lines appear in content,
// counting a repeated target once per line — a CUE with more than one is a
// documentation-only sheet
// for a one-file-per-track release, not a single CUE/FLAC image (spec
// glossary "CUE/FLAC image").
func SingleFileCount(content string) int {
	count := 0
	for _, line := range strings.Split(content, "\n") {
		if reFile.MatchString(line) {
			count++
		}
	}
	return count
}

// Parse parses content, which must already be decoded to UTF-8 text (see
// internal/textenc). It returns an error if FILE directives name two
// different targets; a sheet with no FILE directive parses without error and
// leaves File empty (callers screen multi-FILE sheets out first with
// SingleFileCount).
func Parse(content string) (Sheet, error) {
	var sheet Sheet
	var track *Track
	header := true

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()

		if m := reFile.FindStringSubmatch(line); m != nil {
			if sheet.File != "" && sheet.File != m[1] {
				return sheet, fmt.Errorf("cue sheet references more than one FILE: %q and %q", sheet.File, m[1])
			}
			sheet.File = m[1]
			continue
		}
		if m := reTrack.FindStringSubmatch(line); m != nil {
			header = false
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return sheet, fmt.Errorf("parse track number %q: %w", m[1], err)
			}
			sheet.Tracks = append(sheet.Tracks, Track{Number: n})
			track = &sheet.Tracks[len(sheet.Tracks)-1]
			continue
		}
		if m := reIndex.FindStringSubmatch(line); m != nil {
			if track == nil {
				continue
			}
			pos := parsePosition(m[2], m[3], m[4])
			switch m[1] {
			case "00":
				p := pos
				track.Index00 = &p
			case "01":
				track.Index01 = pos
			}
			continue
		}
		if m := rePregap.FindStringSubmatch(line); m != nil {
			if track != nil {
				p := parsePosition(m[1], m[2], m[3])
				track.Pregap = &p
			}
			continue
		}
		if m := reTitle.FindStringSubmatch(line); m != nil {
			if header {
				sheet.Title = m[1]
			} else if track != nil {
				track.Title = m[1]
			}
			continue
		}
		if m := rePerformer.FindStringSubmatch(line); m != nil {
			if header {
				sheet.Performer = m[1]
			} else if track != nil {
				track.Performer = m[1]
			}
			continue
		}
		if m := reRemDate.FindStringSubmatch(line); m != nil {
			sheet.Date = m[1]
			continue
		}
		if m := reRemDiscID.FindStringSubmatch(line); m != nil {
			sheet.DiscID = m[1]
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return sheet, fmt.Errorf("scan cue sheet: %w", err)
	}
	return sheet, nil
}

func parsePosition(min, sec, frame string) Position {
	m, _ := strconv.Atoi(min)
	s, _ := strconv.Atoi(sec)
	f, _ := strconv.Atoi(frame)
	return Position{Min: m, Sec: s, Frame: f}
}

// Year extracts a plausible calendar year from a REM DATE value, which may
// be a bare year or a slash-separated date — spec.md: "REM DATE yyyy[/…]".
func Year(date string) (int, bool) {
	if date == "" {
		return 0, false
	}
	head := date
	if i := strings.IndexByte(date, '/'); i >= 0 {
		head = date[:i]
	}
	y, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || y < 1900 || y > 2100 {
		return 0, false
	}
	return y, true
}
