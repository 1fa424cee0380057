package ebitengpu

import (
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten"
	"github.com/pkg/errors"

	"github.com/zimwip/lensplay"
)

var (
	// ErrForeignResource is returned when a draw
	// uses a texture or program of another device.
	ErrForeignResource = errors.New("ebitengpu: resource not created by this device")
)

// Surface draws into an Ebiten image,
// usually the screen of the game loop.
type Surface struct {
	target   *ebiten.Image
	vertices []ebiten.Vertex
}

var (
	_ lensplay.Surface     = (*Surface)(nil)
	_ lensplay.Snapshotter = (*Surface)(nil)
)

// NewSurface returns a surface
// drawing into the image.
func NewSurface(target *ebiten.Image) *Surface {
	return &Surface{target: target}
}

// Bind makes the surface draw into another
// image, like the screen of the next frame.
func (surface *Surface) Bind(target *ebiten.Image) {
	surface.target = target
}

// Bounds returns the size of the image.
func (surface *Surface) Bounds() lensplay.Rect {
	if surface.target == nil {
		return lensplay.Rect{}
	}

	width, height := surface.target.Size()

	return lensplay.Rect{Width: width, Height: height}
}

// Clear fills the image with black.
func (surface *Surface) Clear() {
	if surface.target != nil {
		surface.target.Fill(color.Black)
	}
}

// Draw draws the textured triangles. The
// renderer already clipped them to the
// viewport of the call.
func (surface *Surface) Draw(call *lensplay.DrawCall) error {
	if surface.target == nil {
		return nil
	}

	texture, ok := call.Texture.(*Texture)

	if !ok || texture.image == nil {
		return errors.Wrap(ErrForeignResource, "texture")
	}

	program, ok := call.Program.(*Program)

	if !ok {
		return errors.Wrap(ErrForeignResource, "program")
	}

	width, height := float32(texture.width), float32(texture.height)
	surface.vertices = surface.vertices[:0]

	for _, v := range call.Vertices {
		surface.vertices = append(surface.vertices, ebiten.Vertex{
			DstX:   v.DstX,
			DstY:   v.DstY,
			SrcX:   v.SrcX * width,
			SrcY:   v.SrcY * height,
			ColorR: v.R,
			ColorG: v.G,
			ColorB: v.B,
			ColorA: v.A,
		})
	}

	surface.target.DrawTriangles(surface.vertices, call.Indices, texture.image, &ebiten.DrawTrianglesOptions{
		ColorM: program.colorM,
		Filter: ebiten.FilterLinear,
	})

	return nil
}

// Snapshot reads the image back. It is slow
// and meant for occasional captures.
func (surface *Surface) Snapshot() (image.Image, error) {
	if surface.target == nil {
		return nil, errors.New("ebitengpu: no image bound")
	}

	width, height := surface.target.Size()
	snapshot := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			snapshot.Set(x, y, surface.target.At(x, y))
		}
	}

	return snapshot, nil
}
