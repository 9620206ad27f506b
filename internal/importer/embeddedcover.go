package importer

import (
	"fmt"

	"github.com/go-flac/flacpicture"
	goflac "github.com/go-flac/go-flac"
)

// embeddedPicture reads path as a FLAC file and returns the image bytes and
// MIME type of its first PICTURE metadata block, or nil data if the file
// carries no embedded art. Grounded on internal/flacscan's
// goflac.ParseFile/f.Meta walk, extended to the PICTURE block type instead
// of STREAMINFO.
func embeddedPicture(path string) (data []byte, contentType string, err error) {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("parse flac %q: %w", path, err)
	}
	for _, block := range f.Meta {
		if goflac.BlockType(block.Type) != goflac.Picture {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(*block)
		if err != nil {
			return nil, "", fmt.Errorf("parse picture block: %w", err)
		}
		return pic.ImageData, pic.MIME, nil
	}
	return nil, "", nil
}
