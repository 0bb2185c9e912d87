package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Encoder turns a payment URI into a scannable PNG image.
type Encoder interface {
	PNG(content string, size int) ([]byte, error)
}

type PNGEncoder struct {
	level qrcode.RecoveryLevel
}

func NewPNGEncoder() *PNGEncoder {
	return &PNGEncoder{level: qrcode.Medium}
}

func (e *PNGEncoder) PNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr: empty content")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, e.level, size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}
