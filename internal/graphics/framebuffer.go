package graphics

import (
	"fmt"

	"shadowstage/internal/graphics/device"
)

// FrameBufferFlags select the attachments created by Allocate.
type FrameBufferFlags uint8

const (
	// WithDepthBuffer attaches a depth renderbuffer.
	WithDepthBuffer FrameBufferFlags = 1 << iota
	// WithColorTexture attaches the owned texture as color output.
	WithColorTexture
	// WithDepthTexture attaches the owned texture as depth output and
	// disables color output.
	WithDepthTexture
)

// FrameBuffer is an off-screen render target.
//
// Only one FrameBuffer may be enabled at a time; Enable panics otherwise.
type FrameBuffer struct {
	dev     device.Device
	flags   FrameBufferFlags
	id      uint32
	depthRB uint32
	texture *Texture
	width   int32
	height  int32
	enabled bool
}

// NewFrameBuffer returns an unallocated target.
func NewFrameBuffer(dev device.Device, flags FrameBufferFlags) *FrameBuffer {
	return &FrameBuffer{dev: dev, flags: flags, texture: NewTexture(dev)}
}

func (f *FrameBuffer) ID() uint32        { return f.id }
func (f *FrameBuffer) Width() int32      { return f.width }
func (f *FrameBuffer) Height() int32     { return f.height }
func (f *FrameBuffer) Enabled() bool     { return f.enabled }
func (f *FrameBuffer) Texture() *Texture { return f.texture }
func (f *FrameBuffer) Resolution() device.Rect {
	return device.Rect{Width: f.width, Height: f.height}
}

// Allocate creates the device framebuffer and its attachments. bpp selects
// the format of the owned texture and must be a depth format when
// WithDepthTexture is set.
func (f *FrameBuffer) Allocate(width, height int32, bpp int) error {
	if !f.dev.Supports(device.FeatureFramebufferObject) {
		return fmt.Errorf("graphics: allocate framebuffer: %w: %s", device.ErrMissingFeature, device.FeatureFramebufferObject)
	}
	if f.flags&WithDepthTexture != 0 {
		if format, ok := device.FormatForBPP(bpp); !ok || !format.IsDepth() {
			return fmt.Errorf("graphics: allocate depth target: %w: %d bytes per pixel", ErrInvalidPixelFormat, bpp)
		}
	}
	if f.enabled {
		panic("graphics: reallocating an enabled framebuffer")
	}
	f.Dispose()

	f.id = f.dev.GenFramebuffer()
	if f.id == 0 {
		return fmt.Errorf("graphics: allocate framebuffer: %w", device.ErrAllocation)
	}
	f.width, f.height = width, height

	prev := f.dev.Framebuffer()
	f.dev.BindFramebuffer(f.id)
	err := f.attach(width, height, bpp)
	if err == nil && !f.dev.FramebufferComplete() {
		err = fmt.Errorf("graphics: allocate framebuffer %dx%d: %w", width, height, ErrIncompleteFramebuffer)
	}
	f.dev.BindFramebuffer(prev)
	if err != nil {
		f.Dispose()
		return err
	}
	return nil
}

func (f *FrameBuffer) attach(width, height int32, bpp int) error {
	if f.flags&WithDepthBuffer != 0 {
		f.depthRB = f.dev.GenRenderbuffer()
		if f.depthRB == 0 {
			return fmt.Errorf("graphics: allocate depth renderbuffer: %w", device.ErrAllocation)
		}
		f.dev.DepthRenderbufferStorage(f.depthRB, width, height)
		f.dev.FramebufferRenderbuffer(device.DepthAttachment, f.depthRB)
	}

	color := false
	switch {
	case f.flags&WithDepthTexture != 0:
		if err := f.texture.Allocate(width, height, bpp); err != nil {
			return err
		}
		f.dev.FramebufferTexture(device.DepthAttachment, f.texture.ID())
	case f.flags&WithColorTexture != 0:
		if err := f.texture.Allocate(width, height, bpp); err != nil {
			return err
		}
		f.dev.FramebufferTexture(device.ColorAttachment, f.texture.ID())
		color = true
	}
	f.dev.SetDrawColorBuffer(color)
	return nil
}

// Enable redirects drawing to the target until Disable.
func (f *FrameBuffer) Enable() {
	if f.id == 0 {
		panic("graphics: enabling an unallocated framebuffer")
	}
	if cur := f.dev.Framebuffer(); cur != 0 {
		panic(fmt.Sprintf("graphics: framebuffer %d enabled while %d is active", f.id, cur))
	}
	f.dev.BindFramebuffer(f.id)
	f.enabled = true
}

// Disable restores the window surface as render destination.
func (f *FrameBuffer) Disable() {
	if !f.enabled {
		panic("graphics: disabling a framebuffer that is not enabled")
	}
	f.dev.BindFramebuffer(0)
	f.enabled = false
}

// Dispose releases the framebuffer, its renderbuffer and its texture. It
// must run on the render thread.
func (f *FrameBuffer) Dispose() {
	if f.depthRB != 0 {
		f.dev.DeleteRenderbuffer(f.depthRB)
		f.depthRB = 0
	}
	if f.id != 0 {
		f.dev.DeleteFramebuffer(f.id)
		f.id = 0
	}
	f.texture.Dispose()
	f.width, f.height = 0, 0
}
