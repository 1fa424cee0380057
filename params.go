package lensplay

import (
	"math"
	"slices"

	"github.com/pkg/errors"
)

// Mount is the way the fisheye
// camera is installed.
type Mount int

const (
	// MountWall looks at the horizon.
	MountWall Mount = iota
	// MountCeiling looks down.
	MountCeiling
	// MountFloor looks up.
	MountFloor
)

// String returns the name of the mount.
func (mount Mount) String() string {
	switch mount {
	case MountWall:
		return "wall"
	case MountCeiling:
		return "ceiling"
	case MountFloor:
		return "floor"
	default:
		return "unknown"
	}
}

// Limits of the lens and the views.
const (
	MaxFisheyeFOV     = 360.0
	MaxPerspectiveFOV = 170.0
	MinMeshSlices     = 4
	MinMeshStacks     = 2
	maxMeshVertices   = math.MaxUint16 + 1
)

// FisheyeLens locates the fisheye circle on
// the source picture, in source pixels.
type FisheyeLens struct {
	CenterX float64
	CenterY float64
	Radius  float64
	// FOV is the aperture of the lens
	// in degrees.
	FOV   float64
	Mount Mount
}

func (lens FisheyeLens) validate(width, height int) error {
	switch {
	case !(lens.Radius > 0):
		return errors.Wrapf(ErrInvalidParameters, "fisheye radius %g", lens.Radius)
	case !(lens.FOV > 0) || lens.FOV > MaxFisheyeFOV:
		return errors.Wrapf(ErrInvalidParameters, "fisheye fov %g", lens.FOV)
	case lens.CenterX < 0 || lens.CenterX > float64(width) ||
		lens.CenterY < 0 || lens.CenterY > float64(height):
		return errors.Wrapf(ErrInvalidParameters,
			"fisheye center %g,%g outside %dx%d", lens.CenterX, lens.CenterY, width, height)
	}

	return nil
}

// Quadrant is one of the four lenses
// of a multi-quadrant source.
type Quadrant struct {
	Lens FisheyeLens
	// YawOffset turns the quadrant view
	// relative to the shared orientation.
	YawOffset float64
}

// PanoRange is the latitude and longitude
// window unrolled by the panorama, in degrees.
type PanoRange struct {
	Lat1  float64
	Lat2  float64
	Long1 float64
	Long2 float64
}

// Wraps reports whether the range covers
// the full circle of longitudes.
func (pano PanoRange) Wraps() bool {
	return pano.Long2-pano.Long1 >= 360
}

// Distortion describes the radial polynomial
// r' = r(1 + K1 r² + K2 r⁴) of a viewer lens.
type Distortion struct {
	K1 float64
	K2 float64
	// Vignette is the width of the fade at
	// the edges, in texture coordinates.
	Vignette float64
}

// Factor returns the scale applied at radius r.
func (distortion Distortion) Factor(r float64) float64 {
	r2 := r * r
	return 1 + distortion.K1*r2 + distortion.K2*r2*r2
}

// ProjectionParameters configures the
// projections of a render session.
type ProjectionParameters struct {
	SourceWidth  int
	SourceHeight int

	Lens      FisheyeLens
	Quadrants []Quadrant

	// PerspectiveFOV is the vertical field of
	// view of the unwarped view at zoom 1.
	PerspectiveFOV float64
	// DomeFOV is the field of view of the
	// camera orbiting the fisheye dome.
	DomeFOV float64
	// DomeDistance is the distance of that
	// camera from the dome center, in radii.
	DomeDistance float64
	// EyeSeparation is the distance between
	// the VR eyes, in dome radii.
	EyeSeparation float64

	Pano       PanoRange
	Distortion Distortion

	// Slices and Stacks tessellate the meshes.
	Slices int
	Stacks int
}

// DefaultProjectionParameters returns parameters
// for a centered 180 degrees wall lens filling
// a width x height source.
func DefaultProjectionParameters(width, height int) ProjectionParameters {
	radius := float64(min(width, height)) / 2
	lens := FisheyeLens{
		CenterX: float64(width) / 2,
		CenterY: float64(height) / 2,
		Radius:  radius,
		FOV:     180,
		Mount:   MountWall,
	}

	return ProjectionParameters{
		SourceWidth:    width,
		SourceHeight:   height,
		Lens:           lens,
		Quadrants:      DefaultQuadrants(width, height),
		PerspectiveFOV: 100,
		DomeFOV:        60,
		DomeDistance:   2.4,
		EyeSeparation:  0.06,
		Pano:           DefaultPanoRange(MountWall),
		Distortion: Distortion{
			K1:       0.441,
			K2:       0.156,
			Vignette: 0.05,
		},
		Slices: 64,
		Stacks: 32,
	}
}

// DefaultQuadrants splits the source in a
// 2x2 grid, one 180 degrees lens per cell,
// each view centered on its lens.
func DefaultQuadrants(width, height int) []Quadrant {
	cw, ch := float64(width)/2, float64(height)/2
	quadrants := make([]Quadrant, 4)

	for i := range quadrants {
		col, row := float64(i%2), float64(i/2)
		quadrants[i] = Quadrant{
			Lens: FisheyeLens{
				CenterX: cw*col + cw/2,
				CenterY: ch*row + ch/2,
				Radius:  math.Min(cw, ch) / 2,
				FOV:     180,
				Mount:   MountWall,
			},
		}
	}

	return quadrants
}

// DefaultPanoRange returns the band
// around the horizon seen by the mount.
func DefaultPanoRange(mount Mount) PanoRange {
	switch mount {
	case MountCeiling:
		return PanoRange{Lat1: -60, Lat2: 0, Long1: -180, Long2: 180}
	case MountFloor:
		return PanoRange{Lat1: 0, Lat2: 60, Long1: -180, Long2: 180}
	default:
		return PanoRange{Lat1: -60, Lat2: 60, Long1: -90, Long2: 90}
	}
}

// Clone returns a deep copy.
func (params ProjectionParameters) Clone() ProjectionParameters {
	params.Quadrants = append([]Quadrant(nil), params.Quadrants...)
	return params
}

// Equal reports whether both parameter
// sets produce the same meshes.
func (params ProjectionParameters) Equal(other ProjectionParameters) bool {
	return params.SourceWidth == other.SourceWidth &&
		params.SourceHeight == other.SourceHeight &&
		params.Lens == other.Lens &&
		slices.Equal(params.Quadrants, other.Quadrants) &&
		params.PerspectiveFOV == other.PerspectiveFOV &&
		params.DomeFOV == other.DomeFOV &&
		params.DomeDistance == other.DomeDistance &&
		params.EyeSeparation == other.EyeSeparation &&
		params.Pano == other.Pano &&
		params.Distortion == other.Distortion &&
		params.Slices == other.Slices &&
		params.Stacks == other.Stacks
}

// Validate checks the parameters needed by
// the mode before any mesh is generated.
func (params ProjectionParameters) Validate(mode RenderMode) error {
	if params.SourceWidth <= 0 || params.SourceHeight <= 0 {
		return errors.Wrapf(ErrInvalidParameters,
			"source size %dx%d", params.SourceWidth, params.SourceHeight)
	}

	if mode == ModePlain2D {
		return nil
	}

	if params.Slices < MinMeshSlices || params.Stacks < MinMeshStacks ||
		(2*params.Slices+1)*(params.Stacks+1) > maxMeshVertices {
		return errors.Wrapf(ErrInvalidParameters,
			"tessellation %dx%d", params.Slices, params.Stacks)
	}

	switch mode {
	case ModeFisheye2Pano:
		pano := params.Pano
		if pano.Lat1 < -90 || pano.Lat2 > 90 || !(pano.Lat1 < pano.Lat2) ||
			!(pano.Long1 < pano.Long2) || pano.Long2-pano.Long1 > 360 {
			return errors.Wrapf(ErrInvalidParameters, "pano range %+v", pano)
		}

		return params.Lens.validate(params.SourceWidth, params.SourceHeight)

	case ModeFisheye2Persp, ModeVR:
		if err := params.validatePerspective(); err != nil {
			return err
		}

		return params.Lens.validate(params.SourceWidth, params.SourceHeight)

	case ModeFisheye3D:
		if err := params.validateDome(); err != nil {
			return err
		}

		return params.Lens.validate(params.SourceWidth, params.SourceHeight)

	case ModeMultiQuadFisheye2Persp, ModeMultiQuadFisheye3D:
		var err error
		if mode == ModeMultiQuadFisheye2Persp {
			err = params.validatePerspective()
		} else {
			err = params.validateDome()
		}

		if err != nil {
			return err
		}

		if len(params.Quadrants) != 4 {
			return errors.Wrapf(ErrInvalidParameters,
				"%d quadrants, need 4", len(params.Quadrants))
		}

		for i, quadrant := range params.Quadrants {
			if err := quadrant.Lens.validate(params.SourceWidth, params.SourceHeight); err != nil {
				return errors.Wrapf(err, "quadrant %d", i)
			}
		}

		return nil

	case ModeDistortion:
		d := params.Distortion
		if math.IsNaN(d.K1) || math.IsInf(d.K1, 0) ||
			math.IsNaN(d.K2) || math.IsInf(d.K2, 0) ||
			d.Factor(1) <= 0 || d.Vignette < 0 || d.Vignette >= 0.5 {
			return errors.Wrapf(ErrInvalidParameters, "distortion %+v", d)
		}

		return nil
	}

	return errors.Wrapf(ErrInvalidParameters, "mode %d", int(mode))
}

func (params ProjectionParameters) validatePerspective() error {
	if !(params.PerspectiveFOV > 0) || params.PerspectiveFOV > MaxPerspectiveFOV {
		return errors.Wrapf(ErrInvalidParameters,
			"perspective fov %g", params.PerspectiveFOV)
	}

	return nil
}

func (params ProjectionParameters) validateDome() error {
	if !(params.DomeFOV > 0) || params.DomeFOV > MaxPerspectiveFOV ||
		!(params.DomeDistance > 1) {
		return errors.Wrapf(ErrInvalidParameters,
			"dome fov %g distance %g", params.DomeFOV, params.DomeDistance)
	}

	return nil
}
