package text

import "image"

// shelf is a horizontal strip of the atlas. Glyphs on a shelf share its
// top edge; the shelf is as tall as its tallest glyph.
type shelf struct {
	y      int
	height int
	nextX  int
}

// packer places rectangles on shelves, opening a new shelf below the
// last one when no existing shelf fits.
type packer struct {
	width, height int
	padding       int
	shelves       []shelf
	used          int
}

func newPacker(width, height, padding int) *packer {
	return &packer{width: width, height: height, padding: max(padding, 0)}
}

// alloc returns the position of a w x h rectangle, or false when the
// atlas has no room left.
func (p *packer) alloc(w, h int) (image.Rectangle, bool) {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}
	pw, ph := w+p.padding, h+p.padding
	if pw > p.width || ph > p.height {
		return image.Rectangle{}, false
	}
	for i := range p.shelves {
		s := &p.shelves[i]
		if s.nextX+pw > p.width {
			continue
		}
		// A shelf grows only while it is empty.
		if ph > s.height && s.nextX > 0 {
			continue
		}
		r := image.Rect(s.nextX, s.y, s.nextX+w, s.y+h)
		s.nextX += pw
		s.height = max(s.height, ph)
		p.used += w * h
		return r, true
	}
	y := 0
	if n := len(p.shelves); n > 0 {
		y = p.shelves[n-1].y + p.shelves[n-1].height
	}
	if y+ph > p.height {
		return image.Rectangle{}, false
	}
	p.shelves = append(p.shelves, shelf{y: y, height: ph, nextX: pw})
	p.used += w * h
	return image.Rect(0, y, w, y+h), true
}

func (p *packer) reset() {
	p.shelves = p.shelves[:0]
	p.used = 0
}

// utilization is the fraction of the atlas covered by glyphs.
func (p *packer) utilization() float64 {
	return float64(p.used) / float64(p.width*p.height)
}
