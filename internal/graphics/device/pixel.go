package device

// PixelFormat is the layout of texture texels.
type PixelFormat uint32

const (
	Luminance PixelFormat = iota + 1
	LuminanceAlpha
	RGB
	RGBA
	Depth8
	Depth16
)

// FormatForBPP maps a bytes-per-pixel count to a pixel format. 8 and 16
// select the depth formats.
func FormatForBPP(bpp int) (PixelFormat, bool) {
	switch bpp {
	case 1:
		return Luminance, true
	case 2:
		return LuminanceAlpha, true
	case 3:
		return RGB, true
	case 4:
		return RGBA, true
	case 8:
		return Depth8, true
	case 16:
		return Depth16, true
	}
	return 0, false
}

// BytesPerPixel is the inverse of FormatForBPP.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Luminance:
		return 1
	case LuminanceAlpha:
		return 2
	case RGB:
		return 3
	case RGBA:
		return 4
	case Depth8:
		return 8
	case Depth16:
		return 16
	}
	return 0
}

// TexelBytes is the number of bytes an upload reads per texel. Both depth
// formats are uploaded as 16-bit values.
func (f PixelFormat) TexelBytes() int {
	if f.IsDepth() {
		return 2
	}
	return f.BytesPerPixel()
}

// IsDepth reports whether f is a depth format.
func (f PixelFormat) IsDepth() bool {
	return f == Depth8 || f == Depth16
}

func (f PixelFormat) String() string {
	switch f {
	case Luminance:
		return "luminance"
	case LuminanceAlpha:
		return "luminance-alpha"
	case RGB:
		return "rgb"
	case RGBA:
		return "rgba"
	case Depth8:
		return "depth8"
	case Depth16:
		return "depth16"
	}
	return "invalid"
}
