package textenc

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf16"
)

func TestReadPlainUTF8(t *testing.T) {
	got, err := Read(strings.NewReader("PERFORMER \"Artist\"\nTITLE \"Album\"\n"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "PERFORMER \"Artist\"\nTITLE \"Album\"\n" {
		t.Errorf("Read = %q", got)
	}
}

func TestReadUTF16LEWithBOM(t *testing.T) {
	text := "REM DISCID 1A2B3C04\n"
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFE})
	for _, r := range utf16.Encode([]rune(text)) {
		buf.WriteByte(byte(r))
		buf.WriteByte(byte(r >> 8))
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != text {
		t.Errorf("Read = %q, want %q", got, text)
	}
}

func TestReadUTF16BEWithBOM(t *testing.T) {
	text := "TRACK 01 AUDIO\n"
	var buf bytes.Buffer
	buf.Write([]byte{0xFE, 0xFF})
	for _, r := range utf16.Encode([]rune(text)) {
		buf.WriteByte(byte(r >> 8))
		buf.WriteByte(byte(r))
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != text {
		t.Errorf("Read = %q, want %q", got, text)
	}
}
