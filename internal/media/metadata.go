package media

import (
	"fmt"
	"os"
	"time"

	"github.com/evanoberholster/imagemeta"
)

// ReadCaptureTime extracts the moment a photo was taken from its EXIF data.
// DateTimeOriginal is preferred, then CreateDate, then ModifyDate.
func ReadCaptureTime(path string) (ts time.Time, err error) {
	file, err := os.Open(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	// The driver may still be writing the file; truncated data can panic
	// inside the decoder.
	defer func() {
		if rec := recover(); rec != nil {
			ts, err = time.Time{}, fmt.Errorf("decode metadata of %s: %v", path, rec)
		}
	}()

	exif, err := imagemeta.Decode(file)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode metadata: %w", err)
	}

	for _, candidate := range []func() time.Time{exif.DateTimeOriginal, exif.CreateDate, exif.ModifyDate} {
		if ts = candidate(); !ts.IsZero() {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("capture time not found in metadata")
}
