// Package flacscan extracts STREAMINFO and builds a dense, per-frame
// seektable from a FLAC file, grounded on original_source's
// album_chunk_layout.rs::build_seektable — that code drives libFLAC's frame
// decoder and records (sample_number -> byte_pos) on every frame boundary.
// This package gets the same table without a C decoder: go-flac splits the
// metadata blocks from the raw frame stream, STREAMINFO is decoded by hand
// per the FLAC format spec, and frames are walked by their own self-describing
// headers (each carries its starting sample number and block size already).
package flacscan

import (
	"encoding/binary"
	"fmt"

	goflac "github.com/go-flac/go-flac"

	"github.com/baebaebaebaebae/bae-core/internal/baeerr"
)

// StreamInfo is the decoded METADATA_BLOCK_STREAMINFO payload.
type StreamInfo struct {
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32
	MaxFrameSize  uint32
	SampleRate    uint32
	Channels      uint8
	BitsPerSample uint8
	TotalSamples  uint64
	MD5           [16]byte
}

// DurationMs is the stream's total playback duration in milliseconds.
func (si StreamInfo) DurationMs() int64 {
	if si.SampleRate == 0 {
		return 0
	}
	return int64(si.TotalSamples * 1000 / uint64(si.SampleRate))
}

const streamInfoSize = 34

// ParseStreamInfo decodes the 34-byte STREAMINFO payload per the FLAC
// format: two 16-bit block sizes, two 24-bit frame sizes, then a packed
// 64-bit field of sample_rate(20)|channels-1(3)|bits_per_sample-1(5)|
// total_samples(36), followed by a 128-bit MD5 signature.
func ParseStreamInfo(data []byte) (StreamInfo, error) {
	if len(data) < streamInfoSize {
		return StreamInfo{}, fmt.Errorf("streaminfo block too short: %d bytes, want %d", len(data), streamInfoSize)
	}
	var si StreamInfo
	si.MinBlockSize = binary.BigEndian.Uint16(data[0:2])
	si.MaxBlockSize = binary.BigEndian.Uint16(data[2:4])
	si.MinFrameSize = uint24(data[4:7])
	si.MaxFrameSize = uint24(data[7:10])

	packed := binary.BigEndian.Uint64(data[10:18])
	si.SampleRate = uint32(packed>>44) & 0xFFFFF
	si.Channels = uint8((packed>>41)&0x7) + 1
	si.BitsPerSample = uint8((packed>>36)&0x1F) + 1
	si.TotalSamples = packed & 0xFFFFFFFFF
	copy(si.MD5[:], data[18:34])
	return si, nil
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// ReadStreamInfo parses the FLAC file at path and returns its STREAMINFO
// block plus the byte offset where the frame stream begins (i.e. the size
// of the metadata header, which BuildSeektable needs to report absolute
// file offsets).
func ReadStreamInfo(path string) (StreamInfo, int64, error) {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return StreamInfo{}, 0, fmt.Errorf("parse flac %q: %w", path, err)
	}
	for _, block := range f.Meta {
		if goflac.BlockType(block.Type) == goflac.StreamInfo {
			si, err := ParseStreamInfo(block.Data)
			if err != nil {
				return StreamInfo{}, 0, err
			}
			return si, headerSize(f), nil
		}
	}
	return StreamInfo{}, 0, &baeerr.UnsupportedAudioError{Extension: "flac (no STREAMINFO block)"}
}

// headerSize returns the total byte length of the fLaC marker plus every
// metadata block, i.e. the absolute file offset where frame data starts.
func headerSize(f *goflac.File) int64 {
	size := int64(4) // "fLaC" magic
	for _, block := range f.Meta {
		size += 4 // block header: type/last-flag byte + 3-byte length
		size += int64(len(block.Data))
	}
	return size
}
