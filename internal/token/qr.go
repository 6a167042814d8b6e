package token

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrRenderFailure reports that the QR codec could not encode the value.
// Non-fatal: callers still receive a placeholder image to display.
var ErrRenderFailure = errors.New("qr render failed")

// PNG encodes value as a QR code of size x size pixels. On codec failure it
// returns a static placeholder image together with ErrRenderFailure so the
// dashboard keeps rendering and can surface a transient notice.
func PNG(value string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	data, err := qrcode.Encode(value, qrcode.Medium, size)
	if err != nil {
		return placeholderPNG(size), ErrRenderFailure
	}
	return data, nil
}

// placeholderPNG is a flat light-gray square with a dark border, the visual
// stand-in when the codec is unavailable.
func placeholderPNG(size int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	fill := color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}
	border := color.RGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xff}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x < 4 || y < 4 || x >= size-4 || y >= size-4 {
				img.Set(x, y, border)
			} else {
				img.Set(x, y, fill)
			}
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
