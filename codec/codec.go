// Package codec decodes encoded images into RGBA pixels for upload.
//
// PNG, JPEG and GIF come from the standard library; BMP, TIFF and WebP
// from golang.org/x/image.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrFormat is returned for data in no registered format.
	ErrFormat = errors.New("codec: unknown image format")

	// ErrEmpty is returned for images without pixels.
	ErrEmpty = errors.New("codec: empty image")
)

// Decode decodes data into premultiplied RGBA pixels with the origin at
// the top-left.
func Decode(data []byte) (*image.RGBA, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return nil, ErrFormat
	}
	if err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, format)
	}
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst, nil
}

// DecodeMax is Decode with the result scaled down, keeping its aspect
// ratio, so neither side exceeds maxSide. Devices cap texture sizes.
func DecodeMax(data []byte, maxSide int) (*image.RGBA, error) {
	img, err := Decode(data)
	if err != nil || maxSide <= 0 {
		return img, err
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w <= maxSide && h <= maxSide {
		return img, nil
	}
	if w >= h {
		w, h = maxSide, max(1, h*maxSide/w)
	} else {
		w, h = max(1, w*maxSide/h), maxSide
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst, nil
}
