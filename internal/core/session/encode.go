package session

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"camwatch/internal/core/domain"
	"camwatch/pkg/imaging"
	"camwatch/pkg/optimize"
)

// ErrEncoding is wrapped by frame encode failures. The frame is skipped.
var ErrEncoding = errors.New("frame encoding failed")

// frameEncoder turns raw frames into JPEG. It is owned by one frame loop.
type frameEncoder struct {
	quality int
	buffers *optimize.BufferPool
	img     *image.RGBA
}

func newFrameEncoder(quality int, buffers *optimize.BufferPool) *frameEncoder {
	return &frameEncoder{quality: quality, buffers: buffers}
}

// encode returns a pooled buffer; hand it back with release once sent.
func (e *frameEncoder) encode(frame domain.Frame) (*bytes.Buffer, error) {
	img, err := imaging.BGRToRGBA(e.img, frame.Data, frame.Width, frame.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	e.img = img

	buf := e.buffers.Get()
	if err := imaging.EncodeJPEG(buf, img, e.quality); err != nil {
		e.buffers.Put(buf)
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return buf, nil
}

func (e *frameEncoder) release(buf *bytes.Buffer) {
	e.buffers.Put(buf)
}
