package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBGRToRGBA_SwapsChannels(t *testing.T) {
	data := []byte{10, 20, 30, 40, 50, 60}

	img, err := BGRToRGBA(nil, data, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint8{30, 20, 10, 255, 60, 50, 40, 255}, img.Pix)

	again, err := BGRToRGBA(img, data, 2, 1)
	require.NoError(t, err)
	assert.Same(t, img, again)
}

func TestBGRToRGBA_RejectsWrongSize(t *testing.T) {
	_, err := BGRToRGBA(nil, make([]byte, 5), 2, 1)
	assert.Error(t, err)
}

func TestDrawRect_OutlineOnly(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	DrawRect(img, image.Rect(2, 2, 8, 8), Green, 2)

	assert.Equal(t, Green, img.RGBAAt(2, 2))
	assert.Equal(t, Green, img.RGBAAt(3, 5))
	assert.Equal(t, Green, img.RGBAAt(7, 7))
	assert.Equal(t, uint8(0), img.RGBAAt(5, 5).A, "interior stays untouched")
	assert.Equal(t, uint8(0), img.RGBAAt(8, 8).A, "outside stays untouched")
}

func TestDrawRect_ClipsToImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.NotPanics(t, func() {
		DrawRect(img, image.Rect(-5, -5, 20, 20), Green, 2)
	})
	assert.Equal(t, Green, img.RGBAAt(0, 0))
}

func TestEncodeJPEG(t *testing.T) {
	img, err := BGRToRGBA(nil, make([]byte, 8*8*3), 8, 8)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeJPEG(&buf, img, 500))

	decoded, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 8, decoded.Bounds().Dx())
}
