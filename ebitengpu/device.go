// Package ebitengpu draws lensplay frames
// with Ebiten.
package ebitengpu

import (
	"github.com/hajimehoshi/ebiten"
	"github.com/pkg/errors"

	"github.com/zimwip/lensplay"
)

// Device creates Ebiten images and color
// matrix programs.
type Device struct{}

var _ lensplay.Device = (*Device)(nil)

// NewDevice returns a device. It must only
// be used once the game loop runs.
func NewDevice() *Device {
	return &Device{}
}

// NewTexture creates an image of the given size.
func (device *Device) NewTexture(width, height int) (lensplay.Texture, error) {
	img, err := ebiten.NewImage(width, height, ebiten.FilterLinear)

	if err != nil {
		return nil, errors.Wrapf(err, "couldn't create a %dx%d image", width, height)
	}

	return &Texture{image: img, width: width, height: height}, nil
}

// CompileProgram turns the program into
// an Ebiten color matrix.
func (device *Device) CompileProgram(spec lensplay.ProgramSpec) (lensplay.Program, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	program := &Program{spec: spec}

	for i, row := range spec.Matrix {
		for j, v := range row {
			program.colorM.SetElement(i, j, float64(v))
		}
	}

	return program, nil
}

// Texture is an Ebiten image
// holding the uploaded frame.
type Texture struct {
	image  *ebiten.Image
	width  int
	height int
}

// Size returns the size in texels.
func (texture *Texture) Size() (int, int) {
	return texture.width, texture.height
}

// ReplacePixels uploads RGBA texels.
func (texture *Texture) ReplacePixels(pix []byte) error {
	return texture.image.ReplacePixels(pix)
}

// Image returns the underlying image.
func (texture *Texture) Image() *ebiten.Image {
	return texture.image
}

// Dispose releases the image.
func (texture *Texture) Dispose() {
	if texture.image != nil {
		texture.image.Dispose()
		texture.image = nil
	}
}

// Program is the color matrix
// a draw converts texels with.
type Program struct {
	spec   lensplay.ProgramSpec
	colorM ebiten.ColorM
}

// Spec returns the program description.
func (program *Program) Spec() lensplay.ProgramSpec {
	return program.spec
}

// Dispose does nothing: color
// matrices hold no GPU state.
func (program *Program) Dispose() {}
