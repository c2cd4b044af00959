package graphics

import (
	"errors"
	"image"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// FontCharacter describes a single character's placement and metrics within the atlas
type FontCharacter struct {
	// Pixel coordinates of the glyph in the atlas (top-left origin)
	AtlasX float32
	AtlasY float32
	// Glyph bitmap size in pixels
	Width  float32
	Height float32
	// Bearing (offset from baseline) in pixels
	BearingX float32
	BearingY float32
	// Advance in pixels
	Advance float32
}

// FontAtlas is an ASCII glyph set baked into a luminance-alpha pixel buffer.
type FontAtlas struct {
	Pixels     Pixels
	Ascent     float32
	LineHeight float32
	Characters map[rune]FontCharacter
}

// BuildFontAtlas bakes the printable ASCII range of face into an atlas of
// the given width.
func BuildFontAtlas(face font.Face, atlasW int) (*FontAtlas, error) {
	if face == nil {
		return nil, errors.New("graphics: nil font face")
	}
	const padding = 1

	type glyph struct {
		r       rune
		dr      image.Rectangle
		mask    image.Image
		maskp   image.Point
		advance fixed.Int26_6
	}
	var glyphs []glyph
	for r := rune(32); r <= 126; r++ {
		dr, mask, maskp, advance, ok := face.Glyph(fixed.P(0, 0), r)
		if !ok {
			continue
		}
		glyphs = append(glyphs, glyph{r, dr, mask, maskp, advance})
	}
	if len(glyphs) == 0 {
		return nil, errors.New("graphics: font face has no printable glyphs")
	}

	// First pass: row-pack to find the atlas height
	offsetX, offsetY, rowHeight := 0, 0, 0
	for _, g := range glyphs {
		gw, gh := g.dr.Dx(), g.dr.Dy()
		if offsetX+gw > atlasW {
			offsetX = 0
			offsetY += rowHeight + padding
			rowHeight = 0
		}
		offsetX += gw + padding
		rowHeight = max(rowHeight, gh)
	}
	atlasH := offsetY + rowHeight

	atlasImg := image.NewAlpha(image.Rect(0, 0, atlasW, atlasH))
	characters := make(map[rune]FontCharacter, len(glyphs))

	// Second pass: render each glyph into the atlas and record metrics
	offsetX, offsetY, rowHeight = 0, 0, 0
	for _, g := range glyphs {
		gw, gh := g.dr.Dx(), g.dr.Dy()
		fc := FontCharacter{
			BearingX: float32(g.dr.Min.X),
			BearingY: float32(-g.dr.Min.Y),
			Advance:  float32(g.advance.Round()),
		}
		if gw == 0 || gh == 0 || g.mask == nil {
			// Space or non-drawable glyph; still record advance
			characters[g.r] = fc
			continue
		}
		if offsetX+gw > atlasW {
			offsetX = 0
			offsetY += rowHeight + padding
			rowHeight = 0
		}
		dstRect := image.Rect(offsetX, offsetY, offsetX+gw, offsetY+gh)
		draw.Draw(atlasImg, dstRect, g.mask, g.maskp, draw.Src)

		fc.AtlasX, fc.AtlasY = float32(offsetX), float32(offsetY)
		fc.Width, fc.Height = float32(gw), float32(gh)
		characters[g.r] = fc

		offsetX += gw + padding
		rowHeight = max(rowHeight, gh)
	}

	return &FontAtlas{
		Pixels:     PixelsFromAlpha(atlasImg),
		Ascent:     float32(face.Metrics().Ascent.Ceil()),
		LineHeight: float32(face.Metrics().Height.Ceil()),
		Characters: characters,
	}, nil
}

// Measure returns the width and height in pixels the text will occupy at the given scale.
func (a *FontAtlas) Measure(text string, scale float32) (float32, float32) {
	var width, maxH float32
	for _, r := range text {
		fc, ok := a.Characters[r]
		if !ok {
			fc = a.Characters[' ']
		}
		width += fc.Advance * scale
		maxH = max(maxH, fc.Height*scale)
	}
	return width, maxH
}

// Quads lays out text with its baseline at (x, y) in a top-left-origin pixel
// space and returns x, y, u, v for four corners per visible glyph.
func (a *FontAtlas) Quads(text string, x, y, scale float32) []float32 {
	aw, ah := float32(a.Pixels.Width), float32(a.Pixels.Height)
	vertices := make([]float32, 0, len(text)*16)
	for _, r := range text {
		fc, ok := a.Characters[r]
		if !ok {
			// Skip missing glyphs
			x += a.Characters[' '].Advance * scale
			continue
		}
		if fc.Width > 0 && fc.Height > 0 {
			x0 := x + fc.BearingX*scale
			y0 := y - fc.BearingY*scale
			x1 := x0 + fc.Width*scale
			y1 := y0 + fc.Height*scale
			u0, v0 := fc.AtlasX/aw, fc.AtlasY/ah
			u1, v1 := (fc.AtlasX+fc.Width)/aw, (fc.AtlasY+fc.Height)/ah
			vertices = append(vertices,
				x0, y0, u0, v0,
				x1, y0, u1, v0,
				x1, y1, u1, v1,
				x0, y1, u0, v1,
			)
		}
		x += fc.Advance * scale
	}
	return vertices
}
