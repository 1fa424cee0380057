package lensplay

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// DrawPass is one draw call of a frame:
// the mesh, the matrix taking it to clip
// space and the viewport it lands in.
type DrawPass struct {
	Viewport Rect
	Mesh     *Mesh
	MVP      mgl32.Mat4
	Stage    Stage
}

// Transform computes the geometry of
// a render mode.
//
// Configure tessellates the meshes and is
// cheap to call again with the same input.
// Passes only computes matrices and reuses
// its result slice between calls.
type Transform interface {
	Mode() RenderMode
	Configure(params ProjectionParameters, viewport Rect) error
	Passes(o ViewOrientation) []DrawPass
}

// NewTransform returns the transform
// implementing the mode.
func NewTransform(mode RenderMode) (Transform, error) {
	switch mode {
	case ModePlain2D:
		return &flatTransform{}, nil
	case ModeFisheye2Pano:
		return &panoTransform{}, nil
	case ModeFisheye2Persp:
		return &perspTransform{mode: mode}, nil
	case ModeFisheye3D:
		return &domeTransform{}, nil
	case ModeMultiQuadFisheye2Persp, ModeMultiQuadFisheye3D:
		return &quadTransform{mode: mode, focus: -1}, nil
	case ModeVR:
		return &stereoTransform{}, nil
	case ModeDistortion:
		return &distortionTransform{}, nil
	}

	return nil, errors.Wrapf(ErrInvalidParameters, "mode %d", int(mode))
}

// Focuser is implemented by transforms with
// several views, one of which can be shown alone.
type Focuser interface {
	// Focus shows view i alone, or
	// every view when i is negative.
	Focus(i int)
	// Focused returns the view shown
	// alone, negative if none.
	Focused() int
	// ViewAt returns the view under the
	// surface point, negative if none.
	ViewAt(x, y int) int
}

// perspective returns the projection of a
// camera whose base vertical field of view
// narrows as the zoom grows.
func perspective(baseFOV float64, zoom float64, aspect float32, near, far float32) mgl32.Mat4 {
	half := mgl32.DegToRad(float32(baseFOV)) / 2
	fovy := 2 * atan32(tan32(half)/float32(zoom))

	return mgl32.Perspective(fovy, aspect, near, far)
}

// viewRotation turns the world so the
// look direction ends up down -Z.
func viewRotation(o ViewOrientation) mgl32.Mat4 {
	return mgl32.HomogRotate3DZ(mgl32.DegToRad(float32(-o.Roll))).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(float32(-o.Pitch)))).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(float32(o.Yaw))))
}

// projector takes a pass to surface
// pixels on the CPU.
type projector struct {
	vertices []ScreenVertex
	indices  []uint16
	visible  []bool
	polygon  []ScreenVertex
	scratch  []ScreenVertex
}

// clipEpsilon is the smallest clip space w
// of a vertex in front of the camera.
const clipEpsilon = 1e-4

// project transforms the mesh of the pass, drops
// the triangles reaching behind the camera and
// clips the others to the pass viewport.
// The returned slices are reused by the next call.
func (proj *projector) project(pass DrawPass) ([]ScreenVertex, []uint16) {
	vertices := pass.Mesh.Vertices
	vp := pass.Viewport

	if cap(proj.vertices) < len(vertices) {
		proj.vertices = make([]ScreenVertex, len(vertices))
	}

	if cap(proj.visible) < len(vertices) {
		proj.visible = make([]bool, len(vertices))
	}

	proj.vertices = proj.vertices[:len(vertices)]
	proj.visible = proj.visible[:len(vertices)]
	proj.indices = proj.indices[:0]

	for i, vertex := range vertices {
		clip := pass.MVP.Mul4x1(mgl32.Vec4{vertex.X, vertex.Y, vertex.Z, 1})

		if clip[3] <= clipEpsilon {
			proj.visible[i] = false
			continue
		}

		x, y := clip[0]/clip[3], clip[1]/clip[3]
		r, g, b, a := pass.Stage.Scale(vertex.Shade, vertex.Alpha)
		proj.visible[i] = true
		proj.vertices[i] = ScreenVertex{
			DstX: float32(vp.X) + (x+1)/2*float32(vp.Width),
			DstY: float32(vp.Y) + (1-y)/2*float32(vp.Height),
			SrcX: vertex.U,
			SrcY: vertex.V,
			R:    r,
			G:    g,
			B:    b,
			A:    a,
		}
	}

	indices := pass.Mesh.Indices
	bounds := viewportBounds(vp)

	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]

		if !proj.visible[a] || !proj.visible[b] || !proj.visible[c] {
			continue
		}

		va, vb, vc := proj.vertices[a], proj.vertices[b], proj.vertices[c]

		switch {
		case bounds.contains(va) && bounds.contains(vb) && bounds.contains(vc):
			proj.indices = append(proj.indices, a, b, c)
		case bounds.outside(va, vb, vc):
		default:
			proj.clipTriangle(bounds, va, vb, vc)
		}
	}

	return proj.vertices, proj.indices
}

// clipTriangle appends the part of the
// triangle inside the bounds as a fan.
func (proj *projector) clipTriangle(bounds clipBounds, a, b, c ScreenVertex) {
	proj.polygon = append(proj.polygon[:0], a, b, c)

	for edge := 0; edge < 4; edge++ {
		proj.scratch = proj.scratch[:0]
		n := len(proj.polygon)

		for i := 0; i < n; i++ {
			cur, next := proj.polygon[i], proj.polygon[(i+1)%n]
			dCur, dNext := bounds.distance(edge, cur), bounds.distance(edge, next)

			if dCur >= 0 {
				proj.scratch = append(proj.scratch, cur)
			}

			if (dCur >= 0) != (dNext >= 0) {
				proj.scratch = append(proj.scratch, lerpVertex(cur, next, dCur/(dCur-dNext)))
			}
		}

		proj.polygon, proj.scratch = proj.scratch, proj.polygon

		if len(proj.polygon) < 3 {
			return
		}
	}

	if len(proj.vertices)+len(proj.polygon) > maxMeshVertices {
		return
	}

	first := uint16(len(proj.vertices))
	proj.vertices = append(proj.vertices, proj.polygon...)

	for i := 1; i+1 < len(proj.polygon); i++ {
		proj.indices = append(proj.indices, first, first+uint16(i), first+uint16(i+1))
	}
}

// clipBounds is a viewport in surface pixels.
type clipBounds struct {
	minX, minY, maxX, maxY float32
}

func viewportBounds(vp Rect) clipBounds {
	return clipBounds{
		minX: float32(vp.X),
		minY: float32(vp.Y),
		maxX: float32(vp.X + vp.Width),
		maxY: float32(vp.Y + vp.Height),
	}
}

func (bounds clipBounds) contains(v ScreenVertex) bool {
	return v.DstX >= bounds.minX && v.DstX <= bounds.maxX &&
		v.DstY >= bounds.minY && v.DstY <= bounds.maxY
}

// outside reports whether the three vertices
// lie beyond the same edge.
func (bounds clipBounds) outside(a, b, c ScreenVertex) bool {
	for edge := 0; edge < 4; edge++ {
		if bounds.distance(edge, a) < 0 && bounds.distance(edge, b) < 0 && bounds.distance(edge, c) < 0 {
			return true
		}
	}

	return false
}

// distance is positive on the inner
// side of the edge.
func (bounds clipBounds) distance(edge int, v ScreenVertex) float32 {
	switch edge {
	case 0:
		return v.DstX - bounds.minX
	case 1:
		return bounds.maxX - v.DstX
	case 2:
		return v.DstY - bounds.minY
	default:
		return bounds.maxY - v.DstY
	}
}

func lerpVertex(a, b ScreenVertex, t float32) ScreenVertex {
	mix := func(x, y float32) float32 {
		return x + (y-x)*t
	}

	return ScreenVertex{
		DstX: mix(a.DstX, b.DstX),
		DstY: mix(a.DstY, b.DstY),
		SrcX: mix(a.SrcX, b.SrcX),
		SrcY: mix(a.SrcY, b.SrcY),
		R:    mix(a.R, b.R),
		G:    mix(a.G, b.G),
		B:    mix(a.B, b.B),
		A:    mix(a.A, b.A),
	}
}

func tan32(x float32) float32 {
	return float32(math.Tan(float64(x)))
}

func atan32(x float32) float32 {
	return float32(math.Atan(float64(x)))
}
