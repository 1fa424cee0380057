package lensplay

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// flatTransform shows the source as is,
// letterboxed, zoomed and panned.
type flatTransform struct {
	params   ProjectionParameters
	viewport Rect
	mesh     *Mesh
	passes   []DrawPass
}

func (flat *flatTransform) Mode() RenderMode {
	return ModePlain2D
}

func (flat *flatTransform) Configure(params ProjectionParameters, viewport Rect) error {
	if err := params.Validate(ModePlain2D); err != nil {
		return err
	}

	if flat.mesh == nil || params.SourceWidth != flat.params.SourceWidth ||
		params.SourceHeight != flat.params.SourceHeight {
		flat.mesh = quadMesh(params.SourceWidth, params.SourceHeight)
	}

	flat.params = params.Clone()
	flat.viewport = viewport

	return nil
}

// Passes maps yaw and pitch to a pan of up to
// half the picture, pitch up moving the view up.
func (flat *flatTransform) Passes(o ViewOrientation) []DrawPass {
	w, h := float32(flat.params.SourceWidth), float32(flat.params.SourceHeight)
	vw, vh := float32(flat.viewport.Width), float32(flat.viewport.Height)

	scale := float32(1)
	if vw > 0 && vh > 0 {
		scale = min(vw/w, vh/h) * float32(o.Zoom)
	}

	visibleW, visibleH := vw/scale, vh/scale
	cx := w/2 + float32(o.Yaw/180)*w
	cy := h/2 - float32(o.Pitch/90)*h/2
	cx = float32(clamp(float64(cx), 0, float64(w)))
	cy = float32(clamp(float64(cy), 0, float64(h)))

	mvp := mgl32.Ortho(cx-visibleW/2, cx+visibleW/2, cy+visibleH/2, cy-visibleH/2, -1, 1)

	if o.Roll != 0 {
		mvp = mgl32.HomogRotate3DZ(mgl32.DegToRad(float32(o.Roll))).Mul4(mvp)
	}

	flat.passes = append(flat.passes[:0], DrawPass{
		Viewport: flat.viewport,
		Mesh:     flat.mesh,
		MVP:      mvp,
		Stage:    StagePlain,
	})

	return flat.passes
}

// panoTransform unrolls the fisheye into an
// equirectangular band scrolled by the yaw.
type panoTransform struct {
	params   ProjectionParameters
	viewport Rect
	mesh     *Mesh
	passes   []DrawPass
}

func (pano *panoTransform) Mode() RenderMode {
	return ModeFisheye2Pano
}

func (pano *panoTransform) Configure(params ProjectionParameters, viewport Rect) error {
	if err := params.Validate(ModeFisheye2Pano); err != nil {
		return err
	}

	if pano.mesh == nil || !params.Equal(pano.params) {
		copies := 1
		if params.Pano.Wraps() {
			copies = 2
		}

		pano.mesh = panoMesh(params, copies)
		pano.params = params.Clone()
	}

	pano.viewport = viewport

	return nil
}

// Passes shows a window of the band as wide as
// the band at zoom 1 and never wider, keeping
// the viewport aspect. Yaw scrolls the window and wraps
// around full circle bands; pitch moves it
// within the latitudes.
func (pano *panoTransform) Passes(o ViewOrientation) []DrawPass {
	band := pano.params.Pano
	long1 := float64(mgl32.DegToRad(float32(band.Long1)))
	span := float64(mgl32.DegToRad(float32(band.Long2 - band.Long1)))
	lat1 := float64(mgl32.DegToRad(float32(band.Lat1)))
	height := float64(mgl32.DegToRad(float32(band.Lat2 - band.Lat1)))

	width := min(span/o.Zoom, span)
	visible := width / float64(pano.viewport.Aspect())

	cx := long1 + span/2 + float64(mgl32.DegToRad(float32(o.Yaw)))
	if band.Wraps() {
		cx = long1 + span/2 + math.Mod(cx-long1-span/2+2*span, span)
	} else {
		cx = clamp(cx, long1+width/2, long1+span-width/2)
	}

	cy := lat1 + height/2 + float64(mgl32.DegToRad(float32(o.Pitch)))
	if visible < height {
		cy = clamp(cy, lat1+visible/2, lat1+height-visible/2)
	} else {
		cy = lat1 + height/2
	}

	mvp := mgl32.Ortho(
		float32(cx-width/2), float32(cx+width/2),
		float32(cy-visible/2), float32(cy+visible/2),
		-1, 1)

	pano.passes = append(pano.passes[:0], DrawPass{
		Viewport: pano.viewport,
		Mesh:     pano.mesh,
		MVP:      mvp,
		Stage:    StageFish2Pano,
	})

	return pano.passes
}

// distortionTransform predistorts the picture
// for a viewer lens, once per eye.
type distortionTransform struct {
	distortion Distortion
	viewport   Rect
	mesh       *Mesh
	passes     []DrawPass
}

func (dist *distortionTransform) Mode() RenderMode {
	return ModeDistortion
}

func (dist *distortionTransform) Configure(params ProjectionParameters, viewport Rect) error {
	if err := params.Validate(ModeDistortion); err != nil {
		return err
	}

	if dist.mesh == nil || params.Distortion != dist.distortion {
		dist.mesh = distortionMesh(params.Distortion)
		dist.distortion = params.Distortion
	}

	dist.viewport = viewport

	return nil
}

func (dist *distortionTransform) Passes(o ViewOrientation) []DrawPass {
	half := dist.viewport.Width / 2
	zoom := float32(o.Zoom)
	mvp := mgl32.Scale3D(zoom, zoom, 1)

	dist.passes = dist.passes[:0]

	for i := 0; i < 2; i++ {
		dist.passes = append(dist.passes, DrawPass{
			Viewport: Rect{
				X:      dist.viewport.X + i*half,
				Y:      dist.viewport.Y,
				Width:  half,
				Height: dist.viewport.Height,
			},
			Mesh:  dist.mesh,
			MVP:   mvp,
			Stage: StageDistortion,
		})
	}

	return dist.passes
}
