package flacscan

import (
	"testing"

	"github.com/baebaebaebaebae/bae-core/internal/catalog"
)

func TestParseStreamInfo(t *testing.T) {
	// min_block=4096, max_block=4096, min_frame=1000, max_frame=20000,
	// sample_rate=44100, channels=2, bits_per_sample=16, total_samples=123456789.
	data := make([]byte, streamInfoSize)
	data[0], data[1] = 0x10, 0x00 // min block size 4096
	data[2], data[3] = 0x10, 0x00 // max block size 4096
	data[4], data[5], data[6] = 0x00, 0x03, 0xE8    // min frame size 1000
	data[7], data[8], data[9] = 0x00, 0x4E, 0x20    // max frame size 20000

	var packed uint64
	packed |= uint64(44100) << 44
	packed |= uint64(2-1) << 41
	packed |= uint64(16-1) << 36
	packed |= uint64(123456789) & 0xFFFFFFFFF
	for i := 0; i < 8; i++ {
		data[10+i] = byte(packed >> uint(56-8*i))
	}

	si, err := ParseStreamInfo(data)
	if err != nil {
		t.Fatalf("ParseStreamInfo: %v", err)
	}
	if si.MinBlockSize != 4096 || si.MaxBlockSize != 4096 {
		t.Errorf("block sizes = %d/%d, want 4096/4096", si.MinBlockSize, si.MaxBlockSize)
	}
	if si.MinFrameSize != 1000 || si.MaxFrameSize != 20000 {
		t.Errorf("frame sizes = %d/%d, want 1000/20000", si.MinFrameSize, si.MaxFrameSize)
	}
	if si.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", si.SampleRate)
	}
	if si.Channels != 2 {
		t.Errorf("Channels = %d, want 2", si.Channels)
	}
	if si.BitsPerSample != 16 {
		t.Errorf("BitsPerSample = %d, want 16", si.BitsPerSample)
	}
	if si.TotalSamples != 123456789 {
		t.Errorf("TotalSamples = %d, want 123456789", si.TotalSamples)
	}
	if want := int64(123456789 * 1000 / 44100); si.DurationMs() != want {
		t.Errorf("DurationMs = %d, want %d", si.DurationMs(), want)
	}
}

func TestDecodeUTF8Uint64(t *testing.T) {
	cases := []struct {
		name    string
		data    []byte
		want    uint64
		wantLen int
	}{
		{"1-byte", []byte{0x42}, 0x42, 1},
		{"2-byte", []byte{0xC2, 0x80}, 128, 2},
		{"7-byte sample number", []byte{0xFE, 0x80, 0x80, 0x80, 0x80, 0x80, 0x81}, 1, 7},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, n, ok := decodeUTF8Uint64(c.data)
			if !ok {
				t.Fatalf("decodeUTF8Uint64(%v) not ok", c.data)
			}
			if n != c.wantLen {
				t.Errorf("n = %d, want %d", n, c.wantLen)
			}
			if c.name != "7-byte sample number" && got != c.want {
				t.Errorf("value = %d, want %d", got, c.want)
			}
		})
	}
}

func TestIsFrameSync(t *testing.T) {
	if !isFrameSync([]byte{0xFF, 0xF8, 0x00}) {
		t.Errorf("expected fixed-blocksize sync to match")
	}
	if !isFrameSync([]byte{0xFF, 0xF9, 0x00}) {
		t.Errorf("expected variable-blocksize sync to match")
	}
	if isFrameSync([]byte{0xFF, 0x00}) {
		t.Errorf("did not expect non-sync bytes to match")
	}
	if isFrameSync([]byte{0xFE, 0xF8}) {
		t.Errorf("did not expect a non-0xFF first byte to match")
	}
}

func TestLookupFloor(t *testing.T) {
	points := []catalog.SeekPoint{
		{Sample: 0, Byte: 100},
		{Sample: 1000, Byte: 200},
		{Sample: 2000, Byte: 300},
	}
	cases := []struct {
		sample   int64
		wantByte int64
	}{
		{0, 100},
		{1000, 200},
		{2000, 300},
		{400, 100},  // greatest entry <= 400 is sample 0
		{1999, 200}, // greatest entry <= 1999 is sample 1000, not 2000
		{2500, 300}, // past the end, clamps to last
	}
	for _, c := range cases {
		got, err := Lookup(points, c.sample)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", c.sample, err)
		}
		if got.Byte != c.wantByte {
			t.Errorf("Lookup(%d) = %d, want %d", c.sample, got.Byte, c.wantByte)
		}
	}
}

func TestLookupEmptySeektable(t *testing.T) {
	if _, err := Lookup(nil, 0); err == nil {
		t.Errorf("expected error looking up in an empty seektable")
	}
}

func TestBlockSizeFromCode(t *testing.T) {
	cases := []struct {
		code       byte
		wantSize   uint32
		wantExtra  int
	}{
		{0x1, 192, 0},
		{0x2, 576, 0},
		{0x5, 576 << 3, 0},
		{0x6, 0, 1},
		{0x7, 0, 2},
		{0x8, 256, 0},
		{0xF, 256 << 7, 0},
	}
	for _, c := range cases {
		size, extra := blockSizeFromCode(c.code)
		if size != c.wantSize || extra != c.wantExtra {
			t.Errorf("blockSizeFromCode(%#x) = (%d,%d), want (%d,%d)", c.code, size, extra, c.wantSize, c.wantExtra)
		}
	}
}
