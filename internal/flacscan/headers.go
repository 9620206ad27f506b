package flacscan

import (
	"fmt"
	"io"
	"os"
)

// ReadHeaderBytes returns the raw bytes from the start of the file through
// the end of its last metadata block — everything before the first frame.
// CUE/FLAC images share one physical file across many tracks, and spec.md
// §4.4 has the track mapper capture these bytes once so the playback
// resolver can prepend them ahead of any mid-file byte range it decrypts
// and decodes.
func ReadHeaderBytes(path string) ([]byte, error) {
	_, headerLen, err := ReadStreamInfo(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, headerLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("read header bytes of %q: %w", path, err)
	}
	return buf, nil
}
