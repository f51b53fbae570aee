package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
)

// Green is the annotation colour for detection boxes.
var Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// BGRToRGBA converts packed BGR24 bytes into dst, allocating a new image when
// dst is nil or has the wrong bounds.
func BGRToRGBA(dst *image.RGBA, data []byte, width, height int) (*image.RGBA, error) {
	expected := width * height * 3
	if width <= 0 || height <= 0 || len(data) != expected {
		return nil, fmt.Errorf("invalid BGR data size: got %d, expected %d", len(data), expected)
	}

	if dst == nil || dst.Rect.Dx() != width || dst.Rect.Dy() != height {
		dst = image.NewRGBA(image.Rect(0, 0, width, height))
	}

	pix := dst.Pix
	for i, j := 0, 0; i < expected; i, j = i+3, j+4 {
		pix[j+0] = data[i+2]
		pix[j+1] = data[i+1]
		pix[j+2] = data[i+0]
		pix[j+3] = 255
	}
	return dst, nil
}

// DrawRect outlines r on img with the given stroke thickness, clipped to the image.
func DrawRect(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	r = r.Canon().Intersect(img.Rect)
	if r.Empty() || thickness <= 0 {
		return
	}

	fill := func(area image.Rectangle) {
		area = area.Intersect(r)
		for y := area.Min.Y; y < area.Max.Y; y++ {
			for x := area.Min.X; x < area.Max.X; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}

	fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness))
	fill(image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y))
	fill(image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y))
	fill(image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y))
}

// EncodeJPEG writes img as JPEG. Quality is clamped to 1..100.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("jpeg encode: %w", err)
	}
	return nil
}
