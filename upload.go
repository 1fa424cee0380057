package lensplay

import (
	"github.com/pkg/errors"
)

// Uploader copies decoded frames into the
// texture sampled by the programs.
//
// Every format ends up in one RGBA texture of
// the frame size: RGBA as is, YUV with Y, U and V
// in the R, G and B channels and the chroma
// repeated over its 2x2 block. The sampling
// tells the programs how to read it back.
type Uploader struct {
	device  Device
	texture Texture
	width   int
	height  int
	staging []byte
}

// NewUploader returns an uploader creating
// its texture on the device.
func NewUploader(device Device) *Uploader {
	return &Uploader{device: device}
}

// Texture returns the texture holding the
// last upload, nil before the first one.
func (uploader *Uploader) Texture() Texture {
	return uploader.texture
}

// Upload copies the frame to the texture,
// recreating it when the frame size changed.
func (uploader *Uploader) Upload(frame *Frame) (Sampling, error) {
	sampling, err := samplingOf(frame.Format)

	if err != nil {
		return sampling, err
	}

	if err := checkPlanes(frame); err != nil {
		return sampling, err
	}

	if err := uploader.ensureTexture(frame.Width, frame.Height); err != nil {
		return sampling, err
	}

	switch frame.Format {
	case PixelFormatRGBA:
		packRGBA(uploader.staging, frame)
	case PixelFormatI420:
		packI420(uploader.staging, frame)
	case PixelFormatNV12:
		packNV12(uploader.staging, frame)
	}

	if err := uploader.texture.ReplacePixels(uploader.staging); err != nil {
		return sampling, errors.Wrap(err, "couldn't upload the frame")
	}

	return sampling, nil
}

// Dispose releases the texture.
func (uploader *Uploader) Dispose() {
	if uploader.texture != nil {
		trackFree(uploader.texture)
		uploader.texture.Dispose()
		uploader.texture = nil
	}
}

func (uploader *Uploader) ensureTexture(width, height int) error {
	if uploader.texture != nil && uploader.width == width && uploader.height == height {
		return nil
	}

	uploader.Dispose()

	texture, err := uploader.device.NewTexture(width, height)

	if err != nil {
		return errors.Wrapf(err, "couldn't create a %dx%d texture", width, height)
	}

	trackAlloc(ResTexture, texture)
	uploader.texture = texture
	uploader.width = width
	uploader.height = height
	uploader.staging = make([]byte, width*height*4)

	log.Debug().Int(lWidth, width).Int(lHeight, height).Msg("texture created")

	return nil
}

func samplingOf(format PixelFormat) (Sampling, error) {
	switch format {
	case PixelFormatRGBA:
		return SamplingRGB, nil
	case PixelFormatI420:
		return SamplingYUV601, nil
	case PixelFormatNV12:
		return SamplingYUV709, nil
	}

	return SamplingRGB, errors.Wrapf(ErrUnsupportedPixelFormat, "%s", format)
}

// checkPlanes makes sure the planes are
// large enough for their strides.
func checkPlanes(frame *Frame) error {
	count := frame.Format.PlaneCount()

	if frame.Width <= 0 || frame.Height <= 0 ||
		len(frame.Planes) < count || len(frame.Strides) < count {
		return errors.Wrapf(ErrUnsupportedPixelFormat,
			"%s %dx%d with %d planes", frame.Format, frame.Width, frame.Height, len(frame.Planes))
	}

	for i := 0; i < count; i++ {
		rowBytes, rows := frame.Format.PlaneGeometry(i, frame.Width, frame.Height)
		stride := frame.Strides[i]

		if stride < rowBytes || len(frame.Planes[i]) < stride*(rows-1)+rowBytes {
			return errors.Wrapf(ErrUnsupportedPixelFormat,
				"%s plane %d too small", frame.Format, i)
		}
	}

	return nil
}

func packRGBA(dst []byte, frame *Frame) {
	rowBytes := frame.Width * 4
	src, stride := frame.Planes[0], frame.Strides[0]

	for y := 0; y < frame.Height; y++ {
		copy(dst[y*rowBytes:(y+1)*rowBytes], src[y*stride:y*stride+rowBytes])
	}
}

func packI420(dst []byte, frame *Frame) {
	yp, up, vp := frame.Planes[0], frame.Planes[1], frame.Planes[2]
	ys, us, vs := frame.Strides[0], frame.Strides[1], frame.Strides[2]
	i := 0

	for y := 0; y < frame.Height; y++ {
		yrow, urow, vrow := y*ys, (y/2)*us, (y/2)*vs

		for x := 0; x < frame.Width; x++ {
			dst[i] = yp[yrow+x]
			dst[i+1] = up[urow+x/2]
			dst[i+2] = vp[vrow+x/2]
			dst[i+3] = 0xff
			i += 4
		}
	}
}

func packNV12(dst []byte, frame *Frame) {
	yp, uvp := frame.Planes[0], frame.Planes[1]
	ys, uvs := frame.Strides[0], frame.Strides[1]
	i := 0

	for y := 0; y < frame.Height; y++ {
		yrow, uvrow := y*ys, (y/2)*uvs

		for x := 0; x < frame.Width; x++ {
			c := uvrow + (x/2)*2
			dst[i] = yp[yrow+x]
			dst[i+1] = uvp[c]
			dst[i+2] = uvp[c+1]
			dst[i+3] = 0xff
			i += 4
		}
	}
}
