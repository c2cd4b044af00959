package graphics

import (
	"fmt"
	"image"
	"image/draw"

	"shadowstage/internal/graphics/device"
)

// Pixels is a decoded pixel buffer as handed over by an asset source.
type Pixels struct {
	Width, Height int32
	// BPP is the number of bytes per pixel: 1 luminance, 2 luminance-alpha,
	// 3 RGB, 4 RGBA, 8 and 16 select the depth formats.
	BPP  int
	Data []byte
}

// Format returns the pixel format for p.BPP.
func (p Pixels) Format() (device.PixelFormat, error) {
	f, ok := device.FormatForBPP(p.BPP)
	if !ok {
		return 0, fmt.Errorf("%w: %d bytes per pixel", ErrInvalidPixelFormat, p.BPP)
	}
	return f, nil
}

// PixelsFromImage converts any image to an RGBA pixel buffer.
func PixelsFromImage(img image.Image) Pixels {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != rgba.Rect.Dx()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}
	size := rgba.Rect.Size()
	return Pixels{
		Width:  int32(size.X),
		Height: int32(size.Y),
		BPP:    4,
		Data:   rgba.Pix,
	}
}

// PixelsFromAlpha expands an alpha mask to white luminance-alpha pixels.
func PixelsFromAlpha(mask *image.Alpha) Pixels {
	size := mask.Rect.Size()
	data := make([]byte, 0, size.X*size.Y*2)
	for y := 0; y < size.Y; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+size.X]
		for _, a := range row {
			data = append(data, 0xff, a)
		}
	}
	return Pixels{Width: int32(size.X), Height: int32(size.Y), BPP: 2, Data: data}
}
