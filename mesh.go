package lensplay

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is a mesh vertex: model space position,
// normalized source texture coordinate, a shade
// multiplied into the color and the alpha
// masking texels outside the lens.
type Vertex struct {
	X, Y, Z float32
	U, V    float32
	Shade   float32
	Alpha   float32
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint16
}

// distortionGrid is the number of cells per
// side of the distortion correction grid.
const distortionGrid = 40

// lensBasis orients the lens frame in the world:
// the optical axis and the image right and up.
type lensBasis struct {
	right   mgl32.Vec3
	up      mgl32.Vec3
	forward mgl32.Vec3
}

// mountBasis returns the lens frame of a camera
// seen from the inside of its dome. The world
// looks down -Z with Y up.
func mountBasis(mount Mount) lensBasis {
	switch mount {
	case MountCeiling:
		return lensBasis{
			right:   mgl32.Vec3{1, 0, 0},
			up:      mgl32.Vec3{0, 0, -1},
			forward: mgl32.Vec3{0, -1, 0},
		}
	case MountFloor:
		return lensBasis{
			right:   mgl32.Vec3{1, 0, 0},
			up:      mgl32.Vec3{0, 0, 1},
			forward: mgl32.Vec3{0, 1, 0},
		}
	default:
		return lensBasis{
			right:   mgl32.Vec3{1, 0, 0},
			up:      mgl32.Vec3{0, 1, 0},
			forward: mgl32.Vec3{0, 0, -1},
		}
	}
}

// domeBasis returns the lens frame of the dome
// seen from the outside, facing the viewer.
func domeBasis() lensBasis {
	return lensBasis{
		right:   mgl32.Vec3{1, 0, 0},
		up:      mgl32.Vec3{0, 1, 0},
		forward: mgl32.Vec3{0, 0, 1},
	}
}

// fisheyeTexCoord maps a direction of the lens
// frame to the source texture with the
// equidistant fisheye model. ok is false
// outside the lens aperture.
func fisheyeTexCoord(lens FisheyeLens, width, height int, x, y, z float64) (u, v float32, ok bool) {
	phi := math.Atan2(math.Hypot(x, y), z)
	theta := math.Atan2(y, x)
	r := phi / (lens.FOV * math.Pi / 360)

	u = float32((lens.CenterX + lens.Radius*r*math.Cos(theta)) / float64(width))
	v = float32((lens.CenterY - lens.Radius*r*math.Sin(theta)) / float64(height))

	return u, v, r <= 1
}

// quadMesh spans the source in pixels,
// Y going down like the picture rows.
func quadMesh(width, height int) *Mesh {
	w, h := float32(width), float32(height)

	return &Mesh{
		Vertices: []Vertex{
			{X: 0, Y: 0, U: 0, V: 0, Shade: 1, Alpha: 1},
			{X: w, Y: 0, U: 1, V: 0, Shade: 1, Alpha: 1},
			{X: 0, Y: h, U: 0, V: 1, Shade: 1, Alpha: 1},
			{X: w, Y: h, U: 1, V: 1, Shade: 1, Alpha: 1},
		},
		Indices: []uint16{0, 1, 2, 1, 3, 2},
	}
}

// capMesh tessellates the part of the unit sphere
// seen by the lens: stacks rings from the optical
// axis to the aperture edge, slices around it.
// Texture coordinates are precomputed per vertex.
func capMesh(params ProjectionParameters, lens FisheyeLens, basis lensBasis) *Mesh {
	slices, stacks := params.Slices, params.Stacks
	aperture := lens.FOV * math.Pi / 360
	mesh := &Mesh{
		Vertices: make([]Vertex, 0, (slices+1)*(stacks+1)),
		Indices:  make([]uint16, 0, slices*stacks*6),
	}

	for i := 0; i <= stacks; i++ {
		phi := aperture * float64(i) / float64(stacks)
		sinPhi, cosPhi := math.Sincos(phi)

		for j := 0; j <= slices; j++ {
			theta := 2 * math.Pi * float64(j) / float64(slices)
			sinTheta, cosTheta := math.Sincos(theta)

			x, y, z := sinPhi*cosTheta, sinPhi*sinTheta, cosPhi
			u, v, _ := fisheyeTexCoord(lens, params.SourceWidth, params.SourceHeight, x, y, z)
			pos := basis.right.Mul(float32(x)).
				Add(basis.up.Mul(float32(y))).
				Add(basis.forward.Mul(float32(z)))

			mesh.Vertices = append(mesh.Vertices, Vertex{
				X: pos[0], Y: pos[1], Z: pos[2],
				U: u, V: v,
				Shade: 1, Alpha: 1,
			})
		}
	}

	mesh.Indices = gridIndices(mesh.Indices, slices, stacks)

	return mesh
}

// panoMesh lays the equirectangular window out
// flat, X being the longitude and Y the latitude
// in radians. The window is repeated copies times
// side by side so a wrapping view can scroll.
func panoMesh(params ProjectionParameters, copies int) *Mesh {
	lens, pano := params.Lens, params.Pano
	basis := mountBasis(lens.Mount)
	columns, rows := params.Slices*copies, params.Stacks

	long1 := mgl32.DegToRad(float32(pano.Long1))
	span := mgl32.DegToRad(float32(pano.Long2 - pano.Long1))
	lat1 := mgl32.DegToRad(float32(pano.Lat1))
	height := mgl32.DegToRad(float32(pano.Lat2 - pano.Lat1))

	mesh := &Mesh{
		Vertices: make([]Vertex, 0, (columns+1)*(rows+1)),
		Indices:  make([]uint16, 0, columns*rows*6),
	}

	for i := 0; i <= rows; i++ {
		lat := lat1 + height*float32(i)/float32(rows)
		sinLat, cosLat := math.Sincos(float64(lat))

		for j := 0; j <= columns; j++ {
			offset := span * float32(j) / float32(params.Slices)
			long := long1 + float32(math.Mod(float64(offset), float64(span)))

			if j == columns && offset > 0 {
				long = long1 + span
			}

			sinLong, cosLong := math.Sincos(float64(long))
			dir := mgl32.Vec3{
				float32(cosLat * sinLong),
				float32(sinLat),
				float32(-cosLat * cosLong),
			}

			u, v, ok := fisheyeTexCoord(lens, params.SourceWidth, params.SourceHeight,
				float64(dir.Dot(basis.right)),
				float64(dir.Dot(basis.up)),
				float64(dir.Dot(basis.forward)))

			alpha := float32(0)
			if ok {
				alpha = 1
			}

			mesh.Vertices = append(mesh.Vertices, Vertex{
				X: long1 + offset, Y: lat,
				U: u, V: v,
				Shade: 1, Alpha: alpha,
			})
		}
	}

	mesh.Indices = gridIndices(mesh.Indices, columns, rows)

	return mesh
}

// distortionMesh is a grid over the eye in
// normalized device coordinates sampling the
// source through the radial polynomial.
func distortionMesh(distortion Distortion) *Mesh {
	n := distortionGrid
	norm := distortion.Factor(1)
	mesh := &Mesh{
		Vertices: make([]Vertex, 0, (n+1)*(n+1)),
		Indices:  make([]uint16, 0, n*n*6),
	}

	for i := 0; i <= n; i++ {
		y := 1 - 2*float64(i)/float64(n)

		for j := 0; j <= n; j++ {
			x := 2*float64(j)/float64(n) - 1
			scale := distortion.Factor(math.Hypot(x, y)) / norm
			u := 0.5 + 0.5*x*scale
			v := 0.5 - 0.5*y*scale

			vertex := Vertex{
				X: float32(x), Y: float32(y),
				U: float32(u), V: float32(v),
				Shade: vignette(u, v, distortion.Vignette),
				Alpha: 1,
			}

			if u < 0 || u > 1 || v < 0 || v > 1 {
				vertex.Alpha = 0
			}

			mesh.Vertices = append(mesh.Vertices, vertex)
		}
	}

	mesh.Indices = gridIndices(mesh.Indices, n, n)

	return mesh
}

func vignette(u, v, width float64) float32 {
	if width <= 0 {
		return 1
	}

	edge := math.Min(math.Min(u, 1-u), math.Min(v, 1-v))

	return float32(clamp(edge/width, 0, 1))
}

// gridIndices triangulates a (columns+1) x (rows+1)
// vertex grid laid out row by row.
func gridIndices(indices []uint16, columns, rows int) []uint16 {
	stride := columns + 1

	for i := 0; i < rows; i++ {
		for j := 0; j < columns; j++ {
			a := uint16(i*stride + j)
			b := a + uint16(stride)
			indices = append(indices, a, b, a+1, a+1, b, b+1)
		}
	}

	return indices
}
