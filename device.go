package lensplay

import "image"

// Rect is a viewport rectangle in
// surface pixels.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Empty reports whether the
// rectangle has no area.
func (rect Rect) Empty() bool {
	return rect.Width <= 0 || rect.Height <= 0
}

// Aspect returns width over height.
func (rect Rect) Aspect() float32 {
	if rect.Height <= 0 {
		return 1
	}

	return float32(rect.Width) / float32(rect.Height)
}

// Contains reports whether the
// point lies within the rectangle.
func (rect Rect) Contains(x, y int) bool {
	return x >= rect.X && x < rect.X+rect.Width &&
		y >= rect.Y && y < rect.Y+rect.Height
}

// Image returns the rectangle as
// an image.Rectangle.
func (rect Rect) Image() image.Rectangle {
	return image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height)
}

// ScreenVertex is a projected vertex: surface
// pixel position, normalized texture coordinate
// and the color scaling the converted texels.
type ScreenVertex struct {
	DstX, DstY float32
	SrcX, SrcY float32
	R, G, B, A float32
}

// DrawCall is one textured draw clipped
// to the viewport.
type DrawCall struct {
	Viewport Rect
	Vertices []ScreenVertex
	Indices  []uint16
	Program  Program
	Texture  Texture
}

// Texture is a GPU image holding
// the latest uploaded frame.
type Texture interface {
	Size() (int, int)
	// ReplacePixels uploads width*height
	// RGBA texels.
	ReplacePixels(pix []byte) error
	Dispose()
}

// Program is a built program. Devices return
// their own type from CompileProgram.
type Program interface {
	Dispose()
}

// Device creates GPU resources. It must only
// be used from the render thread.
type Device interface {
	NewTexture(width, height int) (Texture, error)
	CompileProgram(spec ProgramSpec) (Program, error)
}

// Surface is the render target of one frame.
type Surface interface {
	Bounds() Rect
	Clear()
	Draw(call *DrawCall) error
}

// Snapshotter is implemented by surfaces
// able to read back what was drawn.
type Snapshotter interface {
	Snapshot() (image.Image, error)
}
