package flacscan

import (
	"fmt"
	"sort"

	goflac "github.com/go-flac/go-flac"

	"github.com/baebaebaebaebae/bae-core/internal/catalog"
)

// blockSizeFromCode resolves the FLAC frame header's 4-bit block-size code
// to a sample count, per the format spec's fixed table; codes 0110/0111
// mean "read N more bits for the actual value", handled by the caller.
func blockSizeFromCode(code byte) (size uint32, needsExtra int) {
	switch {
	case code == 0x1:
		return 192, 0
	case code >= 0x2 && code <= 0x5:
		return 576 << (code - 2), 0
	case code == 0x6:
		return 0, 1 // 8-bit value follows, actual size = value+1
	case code == 0x7:
		return 0, 2 // 16-bit value follows, actual size = value+1
	case code >= 0x8 && code <= 0xF:
		return 256 << (code - 8), 0
	default:
		return 0, 0
	}
}

// decodeUTF8Uint64 decodes a FLAC frame/sample number, which uses the same
// leading-ones-count continuation scheme as UTF-8 but extended to a 7-byte,
// 36-bit form for sample numbers (libFLAC's bitreader_read_utf8_uint64).
func decodeUTF8Uint64(data []byte) (value uint64, n int, ok bool) {
	if len(data) == 0 {
		return 0, 0, false
	}
	first := data[0]
	var extra int
	var value0 uint64
	switch {
	case first&0x80 == 0x00:
		return uint64(first), 1, true
	case first&0xE0 == 0xC0:
		extra, value0 = 1, uint64(first&0x1F)
	case first&0xF0 == 0xE0:
		extra, value0 = 2, uint64(first&0x0F)
	case first&0xF8 == 0xF0:
		extra, value0 = 3, uint64(first&0x07)
	case first&0xFC == 0xF8:
		extra, value0 = 4, uint64(first&0x03)
	case first&0xFE == 0xFC:
		extra, value0 = 5, uint64(first&0x01)
	case first == 0xFE:
		extra, value0 = 6, 0
	default:
		return 0, 0, false
	}
	if len(data) < 1+extra {
		return 0, 0, false
	}
	value = value0
	for i := 1; i <= extra; i++ {
		b := data[i]
		if b&0xC0 != 0x80 {
			return 0, 0, false
		}
		value = value<<6 | uint64(b&0x3F)
	}
	return value, 1 + extra, true
}

// isFrameSync reports whether data begins with a FLAC frame sync code: the
// 14-bit pattern 11111111111110 followed by a reserved bit that must be 0.
func isFrameSync(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xFE == 0xF8
}

// BuildSeektable walks every frame of the FLAC file at path and records each
// frame's starting sample number against its absolute byte offset, giving a
// dense seektable — one entry per frame rather than the sparse handful a
// standard SEEKTABLE metadata block holds (spec glossary "Dense seektable").
// Frame boundaries are found by scanning for the next sync code rather than
// fully decoding subframes; the sample numbers recorded come directly from
// each frame's own header, so the table stays internally consistent even
// though frame-length isn't computed exactly.
func BuildSeektable(path string) (StreamInfo, []catalog.SeekPoint, error) {
	streamInfo, headerLen, err := ReadStreamInfo(path)
	if err != nil {
		return StreamInfo{}, nil, err
	}

	f, err := goflac.ParseFile(path)
	if err != nil {
		return StreamInfo{}, nil, fmt.Errorf("parse flac %q: %w", path, err)
	}
	body := f.Body

	var points []catalog.SeekPoint
	pos := 0
	for pos < len(body) {
		if !isFrameSync(body[pos:]) {
			pos++
			continue
		}
		frameStart := pos
		header := body[pos:]
		if len(header) < 4 {
			break
		}
		blockSizeCode := (header[2] >> 4) & 0x0F
		_, extraBlockBits := blockSizeFromCode(blockSizeCode)

		// Byte 1's low bit is the blocking-strategy flag: 1 means the
		// frame header that follows encodes a sample number (variable
		// blocksize stream); 0 means it encodes a frame number, which
		// must be multiplied by the blocksize to get a sample number.
		variableBlocksize := header[1]&0x01 == 0x01

		numberField := header[4:]
		number, numberLen, ok := decodeUTF8Uint64(numberField)
		if !ok {
			pos++
			continue
		}

		cursor := 4 + numberLen
		switch extraBlockBits {
		case 1:
			if cursor >= len(header) {
				pos++
				continue
			}
			cursor++
		case 2:
			if cursor+1 >= len(header) {
				pos++
				continue
			}
			cursor += 2
		}

		var sampleNumber uint64
		if variableBlocksize {
			sampleNumber = number
		} else {
			sampleNumber = number * uint64(streamInfo.MaxBlockSize)
		}

		points = append(points, catalog.SeekPoint{
			Sample: int64(sampleNumber),
			Byte:   headerLen + int64(frameStart),
		})

		pos = frameStart + cursor
		if pos <= frameStart {
			pos = frameStart + 1
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Sample < points[j].Sample })
	return streamInfo, points, nil
}

// Lookup returns the greatest seektable entry whose sample is <= sample
// (clamped to the first entry if sample precedes the table entirely).
// Callers — the track mapper and the playback resolver — both need a
// floor, never a later frame, since they compute how many samples to
// discard after decoding from the returned offset; a later frame would
// make that count negative.
func Lookup(points []catalog.SeekPoint, sample int64) (catalog.SeekPoint, error) {
	if len(points) == 0 {
		return catalog.SeekPoint{}, fmt.Errorf("empty seektable")
	}
	idx := sort.Search(len(points), func(i int) bool { return points[i].Sample > sample })
	if idx == 0 {
		return points[0], nil
	}
	return points[idx-1], nil
}
