package scene

import (
	"fmt"

	"shadowstage/internal/graphics"
	"shadowstage/internal/graphics/device"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// TextureQuad draws a texture stretched over a screen-space rectangle. It
// belongs under an Ortho.
type TextureQuad struct {
	*Entity
	BaseHooks

	texture *graphics.Texture
	rect    [4]float32
	Color   mgl32.Vec4
}

// NewTextureQuad creates a quad covering x, y, width, height in pixels.
func NewTextureQuad(tex *graphics.Texture, x, y, width, height float32) *TextureQuad {
	q := &TextureQuad{
		texture: tex,
		rect:    [4]float32{x, y, width, height},
		Color:   mgl32.Vec4{1, 1, 1, 1},
	}
	q.Entity = NewEntity(q, nil)
	return q
}

func (q *TextureQuad) SetTexture(tex *graphics.Texture) { q.texture = tex }
func (q *TextureQuad) SetRect(x, y, width, height float32) {
	q.rect = [4]float32{x, y, width, height}
}

func (q *TextureQuad) DoRender(rc *Context, _ *Entity, _ Pass) {
	if q.texture == nil || !q.texture.Allocated() {
		return
	}
	x0, y0 := q.rect[0], q.rect[1]
	x1, y1 := x0+q.rect[2], y0+q.rect[3]

	rc.PushFlags(device.Texture2D)
	rc.Device.SetColor(q.Color)
	q.texture.Enable()
	// Textures have their origin at the bottom-left.
	rc.Device.DrawQuads([]float32{
		x0, y0, 0, 1,
		x1, y0, 1, 1,
		x1, y1, 1, 0,
		x0, y1, 0, 0,
	})
	q.texture.Disable()
	rc.PopFlags()
}

// Label draws a line of text from a font atlas. It belongs under an Ortho.
// Text may be supplied as a function evaluated every frame.
type Label struct {
	*Entity
	BaseHooks

	face    font.Face
	atlas   *graphics.FontAtlas
	texture *graphics.Texture
	text    string
	textFn  func() string
	x, y    float32
	Scale   float32
	Color   mgl32.Vec4
}

// NewLabel creates a label with its top-left corner at x, y. A nil face
// selects the built-in 7x13 bitmap font.
func NewLabel(face font.Face, x, y float32) *Label {
	if face == nil {
		face = basicfont.Face7x13
	}
	l := &Label{
		face:  face,
		x:     x,
		y:     y,
		Scale: 1,
		Color: mgl32.Vec4{1, 1, 1, 1},
	}
	l.Entity = NewEntity(l, nil)
	l.State().Blend = On
	return l
}

func (l *Label) SetText(s string)            { l.text, l.textFn = s, nil }
func (l *Label) SetTextFunc(f func() string) { l.textFn = f }
func (l *Label) SetPosition(x, y float32)    { l.x, l.y = x, y }

// Text returns what the label shows this frame.
func (l *Label) Text() string {
	if l.textFn != nil {
		return l.textFn()
	}
	return l.text
}

func (l *Label) DoInitialize(rc *Context, _ *Entity) error {
	atlas, err := graphics.BuildFontAtlas(l.face, 256)
	if err != nil {
		return fmt.Errorf("label: %w", err)
	}
	tex := graphics.NewTexture(rc.Device)
	tex.SetWrapMode(device.ClampToEdge)
	tex.SetFilter(device.Nearest)
	if err := tex.Load(atlas.Pixels); err != nil {
		return fmt.Errorf("label: %w", err)
	}
	l.atlas, l.texture = atlas, tex
	return nil
}

func (l *Label) DoRender(rc *Context, _ *Entity, _ Pass) {
	text := l.Text()
	if text == "" || l.atlas == nil {
		return
	}
	quads := l.atlas.Quads(text, l.x, l.y+l.atlas.Ascent*l.Scale, l.Scale)
	if len(quads) == 0 {
		return
	}
	rc.PushFlags(device.Texture2D)
	rc.Device.SetColor(l.Color)
	l.texture.Enable()
	rc.Device.DrawQuads(quads)
	l.texture.Disable()
	rc.PopFlags()
}

func (l *Label) DoDispose(*Context) {
	if l.texture != nil {
		l.texture.Dispose()
	}
}
