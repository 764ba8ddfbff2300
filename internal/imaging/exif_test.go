package imaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInspectWithoutExif(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	info := Inspect(png)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Nil(t, info.RawExif)
	assert.Nil(t, info.TakenAt)
}

func TestInspectPlainBytes(t *testing.T) {
	info := Inspect([]byte("not an image"))
	assert.Equal(t, "text/plain; charset=utf-8", info.ContentType)
	assert.Nil(t, info.RawExif)
}
