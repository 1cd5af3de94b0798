package canvas

import (
	"log/slog"

	"github.com/gogpu/canvas/internal/geometry"
	"github.com/gogpu/canvas/text"
)

// Option configures a Canvas during creation.
//
// Example:
//
//	c, err := canvas.New(dev, 800, 600,
//	    canvas.WithFont(goregular.TTF),
//	    canvas.WithPixelRatio(2),
//	)
type Option func(*options)

// options holds optional configuration for Canvas creation.
type options struct {
	logger      *slog.Logger
	font        []byte
	atlasSize   int
	pixelRatio  float32
	maxSegments int
}

// defaultOptions returns the default canvas options.
func defaultOptions() options {
	return options{
		atlasSize:   text.DefaultAtlasSize,
		pixelRatio:  1,
		maxSegments: geometry.DefaultMaxSegments,
	}
}

// WithLogger sets a logger for this canvas only, overriding the package
// logger set by SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithFont sets the TrueType or OpenType font used by DrawText. Without
// a font DrawText returns ErrNoFont.
func WithFont(data []byte) Option {
	return func(o *options) {
		o.font = data
	}
}

// WithAtlasSize sets the edge length in pixels of the glyph atlas.
func WithAtlasSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.atlasSize = size
		}
	}
}

// WithPixelRatio sets the number of device pixels per canvas unit.
// Drawing coordinates are in canvas units; the device size is in pixels.
func WithPixelRatio(ratio float32) Option {
	return func(o *options) {
		if ratio > 0 {
			o.pixelRatio = ratio
		}
	}
}

// WithMaxSegments caps the number of straight segments a curved edge is
// split into.
func WithMaxSegments(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSegments = n
		}
	}
}
