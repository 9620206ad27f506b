// Package eaclog parses the table-of-contents section of EAC/XLD ripper
// logs, the subset spec.md §6 names: the pipe-delimited TOC table giving
// each track's start/end sector. Adapted line-for-line in spirit from
// original_source's folder_metadata_detector.rs TOC scan — same
// column-index extraction, reimplemented with bufio.Scanner and strings.Split
// instead of a hand-rolled state machine over raw byte offsets.
package eaclog

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/baebaebaebaebae/bae-core/internal/baeerr"
)

// TOC is one parsed TOC table: a start sector per track plus the sector one
// past the last track's end (spec glossary "Lead-out").
type TOC struct {
	TrackStartSectors []int32
	LeadOutSector     int32 // raw, without the +150 DiscID lead-in
}

// Parse scans log content for the ripper's TOC table and returns the start
// sector of every track plus the raw lead-out sector. content must already
// be decoded to UTF-8 (see internal/textenc).
func Parse(content string) (TOC, error) {
	var toc TOC
	var lastEndSector int32 = -1
	inTOC := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)

		if strings.Contains(lower, "toc") && (strings.Contains(lower, "cd") || strings.Contains(lower, "extracted")) {
			inTOC = true
			continue
		}
		if !inTOC {
			continue
		}
		if strings.Contains(lower, "range status") || strings.Contains(lower, "accuraterip") {
			break
		}
		if line == "" {
			if len(toc.TrackStartSectors) > 0 {
				break
			}
			continue
		}
		if strings.Contains(line, "---") {
			continue
		}
		if strings.Contains(lower, "track") && (strings.Contains(lower, "start") || strings.Contains(lower, "sector")) {
			continue
		}

		cols := strings.Split(line, "|")
		if len(cols) < 5 {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(cols[0])); err != nil {
			continue
		}
		startSector, err := strconv.Atoi(strings.TrimSpace(cols[3]))
		if err != nil || startSector < 0 {
			continue
		}
		endSector, err := strconv.Atoi(strings.TrimSpace(cols[4]))
		if err != nil || endSector <= 0 {
			continue
		}
		toc.TrackStartSectors = append(toc.TrackStartSectors, int32(startSector))
		lastEndSector = int32(endSector)
	}

	if len(toc.TrackStartSectors) == 0 {
		return toc, &baeerr.DiscIDParseError{Source: "log", Reason: "no track offsets found in TOC table"}
	}
	if lastEndSector < 0 {
		return toc, &baeerr.DiscIDParseError{Source: "log", Reason: "no end sector found in TOC table"}
	}
	toc.LeadOutSector = lastEndSector + 1
	return toc, nil
}
