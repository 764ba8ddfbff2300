// Package imaging inspects uploaded image bytes.
package imaging

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
)

// MaxRawExif is the longest EXIF document kept with a photo's metadata.
const MaxRawExif = 4000

var registerOnce sync.Once

// Info is what could be read from an image.
type Info struct {
	ContentType string
	// RawExif is the EXIF block as JSON, or nil when absent or too large to keep.
	RawExif *string
	TakenAt *time.Time
}

// Inspect sniffs the content type and decodes EXIF data when present.
func Inspect(content []byte) Info {
	registerOnce.Do(func() {
		exif.RegisterParsers(mknote.All...)
	})

	info := Info{ContentType: http.DetectContentType(content)}

	x, err := exif.Decode(bytes.NewReader(content))
	if err != nil {
		return info
	}

	if tm, err := x.DateTime(); err == nil {
		info.TakenAt = &tm
	}
	if raw, err := x.MarshalJSON(); err == nil && len(raw) <= MaxRawExif {
		s := string(raw)
		info.RawExif = &s
	}
	return info
}
