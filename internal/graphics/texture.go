// Package graphics wraps device textures and off-screen render targets.
package graphics

import (
	"errors"
	"fmt"

	"shadowstage/internal/graphics/device"
)

var (
	// ErrInvalidPixelFormat reports an unsupported bytes-per-pixel value.
	ErrInvalidPixelFormat = errors.New("graphics: invalid pixel format")
	// ErrIncompleteFramebuffer reports a failed completeness check.
	ErrIncompleteFramebuffer = errors.New("graphics: framebuffer incomplete")
)

// Texture owns one device texture handle.
type Texture struct {
	dev    device.Device
	id     uint32
	width  int32
	height int32
	format device.PixelFormat
	filter device.Filter
	wrap   device.WrapMode
}

// NewTexture returns an unallocated texture with linear filtering and
// repeat wrapping.
func NewTexture(dev device.Device) *Texture {
	return &Texture{dev: dev, filter: device.Linear, wrap: device.Repeat}
}

func (t *Texture) ID() uint32                 { return t.id }
func (t *Texture) Width() int32               { return t.width }
func (t *Texture) Height() int32              { return t.height }
func (t *Texture) Format() device.PixelFormat { return t.format }
func (t *Texture) Allocated() bool            { return t.id != 0 }

// Allocate (re)creates the texture storage. The contents are undefined until
// Load is called.
func (t *Texture) Allocate(width, height int32, bpp int) error {
	format, ok := device.FormatForBPP(bpp)
	if !ok {
		return fmt.Errorf("graphics: allocate texture %dx%d: %w: %d bytes per pixel", width, height, ErrInvalidPixelFormat, bpp)
	}
	if format.IsDepth() && !t.dev.Supports(device.FeatureDepthTexture) {
		return fmt.Errorf("graphics: allocate depth texture: %w: %s", device.ErrMissingFeature, device.FeatureDepthTexture)
	}
	if t.id == 0 {
		t.id = t.dev.GenTexture()
		if t.id == 0 {
			return fmt.Errorf("graphics: allocate texture: %w", device.ErrAllocation)
		}
	}
	t.width, t.height, t.format = width, height, format

	t.dev.BindTexture(t.id)
	t.dev.TexImage2D(width, height, format, nil)
	t.dev.TexParameters(t.filter, t.wrap)
	t.dev.BindTexture(0)
	return nil
}

// Load uploads p. The storage is reallocated when p is larger than the
// current capacity or has a different format, otherwise the upload happens
// in place.
func (t *Texture) Load(p Pixels) error {
	format, err := p.Format()
	if err != nil {
		return fmt.Errorf("graphics: load texture: %w", err)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("graphics: load texture %dx%d: %w: empty image", p.Width, p.Height, ErrInvalidPixelFormat)
	}
	if need := int(p.Width) * int(p.Height) * format.TexelBytes(); len(p.Data) < need {
		return fmt.Errorf("graphics: load texture %dx%d: %w: %d bytes of data, need %d",
			p.Width, p.Height, ErrInvalidPixelFormat, len(p.Data), need)
	}
	if t.id == 0 || p.Width > t.width || p.Height > t.height || format != t.format {
		if err := t.Allocate(p.Width, p.Height, p.BPP); err != nil {
			return err
		}
	}
	t.dev.BindTexture(t.id)
	t.dev.TexSubImage2D(0, 0, p.Width, p.Height, format, p.Data)
	t.dev.BindTexture(0)
	return nil
}

// Enable binds the texture for sampling and turns texturing on.
func (t *Texture) Enable() {
	t.dev.Enable(device.Texture2D)
	t.dev.BindTexture(t.id)
}

// Disable unbinds the texture and turns texturing off.
func (t *Texture) Disable() {
	t.dev.BindTexture(0)
	t.dev.Disable(device.Texture2D)
}

// Bind binds the texture without touching the texturing flag.
func (t *Texture) Bind() {
	t.dev.BindTexture(t.id)
}

// SetFilter sets the sampling filter, applied immediately when allocated.
func (t *Texture) SetFilter(f device.Filter) {
	t.filter = f
	t.applyParameters()
}

// SetWrapMode sets the wrap mode, applied immediately when allocated.
func (t *Texture) SetWrapMode(w device.WrapMode) {
	t.wrap = w
	t.applyParameters()
}

func (t *Texture) applyParameters() {
	if t.id == 0 {
		return
	}
	t.dev.BindTexture(t.id)
	t.dev.TexParameters(t.filter, t.wrap)
	t.dev.BindTexture(0)
}

// Dispose releases the device handle. It must run on the render thread.
func (t *Texture) Dispose() {
	if t.id != 0 {
		t.dev.DeleteTexture(t.id)
		t.id = 0
	}
	t.width, t.height = 0, 0
}
