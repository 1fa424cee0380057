package lensplay

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Clip planes of the fisheye cameras,
// in dome radii.
const (
	perspNear = 0.05
	perspFar  = 10
	domeNear  = 0.1
	domeFar   = 10
)

// perspTransform unwarps the fisheye into a
// rectilinear view: the camera sits at the
// center of the textured lens cap.
type perspTransform struct {
	mode     RenderMode
	params   ProjectionParameters
	lens     FisheyeLens
	viewport Rect
	mesh     *Mesh
	eyeShift float32
	passes   []DrawPass
}

func (persp *perspTransform) Mode() RenderMode {
	return persp.mode
}

func (persp *perspTransform) Configure(params ProjectionParameters, viewport Rect) error {
	if err := params.Validate(persp.mode); err != nil {
		return err
	}

	return persp.configureLens(params, params.Lens, viewport)
}

func (persp *perspTransform) configureLens(params ProjectionParameters, lens FisheyeLens, viewport Rect) error {
	if err := params.validatePerspective(); err != nil {
		return err
	}

	if err := lens.validate(params.SourceWidth, params.SourceHeight); err != nil {
		return err
	}

	if persp.mesh == nil || lens != persp.lens || !params.Equal(persp.params) {
		persp.mesh = capMesh(params, lens, mountBasis(lens.Mount))
		persp.params = params.Clone()
		persp.lens = lens
	}

	persp.viewport = viewport

	return nil
}

func (persp *perspTransform) Passes(o ViewOrientation) []DrawPass {
	persp.passes = append(persp.passes[:0], persp.pass(o))
	return persp.passes
}

func (persp *perspTransform) pass(o ViewOrientation) DrawPass {
	proj := perspective(persp.params.PerspectiveFOV, o.Zoom,
		persp.viewport.Aspect(), perspNear, perspFar)
	view := viewRotation(o)

	if persp.eyeShift != 0 {
		view = mgl32.Translate3D(-persp.eyeShift, 0, 0).Mul4(view)
	}

	return DrawPass{
		Viewport: persp.viewport,
		Mesh:     persp.mesh,
		MVP:      proj.Mul4(view),
		Stage:    StageFish2Persp,
	}
}

// domeTransform shows the lens cap as an
// object the camera orbits around.
type domeTransform struct {
	params   ProjectionParameters
	lens     FisheyeLens
	viewport Rect
	mesh     *Mesh
	passes   []DrawPass
}

func (dome *domeTransform) Mode() RenderMode {
	return ModeFisheye3D
}

func (dome *domeTransform) Configure(params ProjectionParameters, viewport Rect) error {
	if err := params.Validate(ModeFisheye3D); err != nil {
		return err
	}

	return dome.configureLens(params, params.Lens, viewport)
}

func (dome *domeTransform) configureLens(params ProjectionParameters, lens FisheyeLens, viewport Rect) error {
	if err := params.validateDome(); err != nil {
		return err
	}

	if err := lens.validate(params.SourceWidth, params.SourceHeight); err != nil {
		return err
	}

	if dome.mesh == nil || lens != dome.lens || !params.Equal(dome.params) {
		dome.mesh = capMesh(params, lens, domeBasis())
		dome.params = params.Clone()
		dome.lens = lens
	}

	dome.viewport = viewport

	return nil
}

func (dome *domeTransform) Passes(o ViewOrientation) []DrawPass {
	dome.passes = append(dome.passes[:0], dome.pass(o))
	return dome.passes
}

func (dome *domeTransform) pass(o ViewOrientation) DrawPass {
	proj := perspective(dome.params.DomeFOV, o.Zoom,
		dome.viewport.Aspect(), domeNear, domeFar)
	view := mgl32.Translate3D(0, 0, -float32(dome.params.DomeDistance)).
		Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(float32(-o.Roll)))).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(float32(o.Pitch)))).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(float32(-o.Yaw))))

	return DrawPass{
		Viewport: dome.viewport,
		Mesh:     dome.mesh,
		MVP:      proj.Mul4(view),
		Stage:    StageFish2Persp,
	}
}

// stereoTransform draws the unwarped view
// once per eye, side by side.
type stereoTransform struct {
	eyes   [2]perspTransform
	passes []DrawPass
}

func (stereo *stereoTransform) Mode() RenderMode {
	return ModeVR
}

func (stereo *stereoTransform) Configure(params ProjectionParameters, viewport Rect) error {
	half := viewport.Width / 2
	shift := float32(params.EyeSeparation / 2)

	for i := range stereo.eyes {
		eye := &stereo.eyes[i]
		eye.mode = ModeVR
		eye.eyeShift = shift * float32(2*i-1)
		eyeViewport := Rect{X: viewport.X + i*half, Y: viewport.Y, Width: half, Height: viewport.Height}

		if err := eye.Configure(params, eyeViewport); err != nil {
			return err
		}
	}

	return nil
}

func (stereo *stereoTransform) Passes(o ViewOrientation) []DrawPass {
	stereo.passes = stereo.passes[:0]

	for i := range stereo.eyes {
		stereo.passes = append(stereo.passes, stereo.eyes[i].pass(o))
	}

	return stereo.passes
}

// quadView is a fisheye view drawn
// into one quadrant.
type quadView interface {
	configureLens(params ProjectionParameters, lens FisheyeLens, viewport Rect) error
	pass(o ViewOrientation) DrawPass
}

// quadTransform draws the four lenses of a
// multi-quadrant source in a 2x2 grid, each
// turned by the yaw offset of its quadrant.
type quadTransform struct {
	mode     RenderMode
	views    [4]quadView
	offsets  [4]float64
	params   ProjectionParameters
	viewport Rect
	focus    int
	passes   []DrawPass
}

func (quad *quadTransform) Mode() RenderMode {
	return quad.mode
}

func (quad *quadTransform) Configure(params ProjectionParameters, viewport Rect) error {
	if err := params.Validate(quad.mode); err != nil {
		return err
	}

	for i := range quad.views {
		if quad.views[i] == nil {
			if quad.mode == ModeMultiQuadFisheye3D {
				quad.views[i] = &domeTransform{}
			} else {
				quad.views[i] = &perspTransform{mode: quad.mode}
			}
		}

		quadrant := params.Quadrants[i]

		if err := quad.views[i].configureLens(params, quadrant.Lens, quad.cell(viewport, i)); err != nil {
			return err
		}

		quad.offsets[i] = quadrant.YawOffset
	}

	quad.params = params.Clone()
	quad.viewport = viewport

	return nil
}

// cell returns the viewport of quadrant i,
// the whole viewport when it has the focus.
func (quad *quadTransform) cell(viewport Rect, i int) Rect {
	if quad.focus == i {
		return viewport
	}

	w, h := viewport.Width/2, viewport.Height/2

	return Rect{
		X:      viewport.X + (i%2)*w,
		Y:      viewport.Y + (i/2)*h,
		Width:  w,
		Height: h,
	}
}

func (quad *quadTransform) Passes(o ViewOrientation) []DrawPass {
	quad.passes = quad.passes[:0]

	for i, view := range quad.views {
		if quad.focus >= 0 && quad.focus != i {
			continue
		}

		turned := o
		turned.Yaw = wrapDegrees(o.Yaw + quad.offsets[i])
		quad.passes = append(quad.passes, view.pass(turned))
	}

	return quad.passes
}

func (quad *quadTransform) Focus(i int) {
	if i >= len(quad.views) {
		i = -1
	}

	if i == quad.focus {
		return
	}

	quad.focus = i

	if quad.views[0] == nil {
		return
	}

	for j, view := range quad.views {
		// The lenses were validated by Configure.
		_ = view.configureLens(quad.params, quad.params.Quadrants[j].Lens, quad.cell(quad.viewport, j))
	}
}

func (quad *quadTransform) Focused() int {
	return quad.focus
}

func (quad *quadTransform) ViewAt(x, y int) int {
	if quad.focus >= 0 {
		if quad.viewport.Contains(x, y) {
			return quad.focus
		}

		return -1
	}

	for i := range quad.views {
		if quad.cell(quad.viewport, i).Contains(x, y) {
			return i
		}
	}

	return -1
}
