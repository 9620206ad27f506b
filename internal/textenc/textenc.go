// Package textenc reads CUE sheets and ripper logs with BOM-sniffed
// UTF-8/UTF-16 decoding, since those tools are routinely run on Windows and
// emit whichever encoding their locale defaults to.
package textenc

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadFile reads path and decodes it to UTF-8 text, sniffing a UTF-8,
// UTF-16LE, or UTF-16BE byte-order mark and falling back to UTF-8 (accepting
// the BOM literally, i.e. without requiring one) when none is present.
func ReadFile(path string) (string, error) {
	raw, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer raw.Close()
	return Read(raw)
}

// Read decodes r the same way ReadFile does, for callers that already have
// an open reader (e.g. a CUE sheet embedded in a FLAC tag).
func Read(r io.Reader) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	decoded, err := io.ReadAll(transform.NewReader(r, decoder))
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(decoded), nil
}
