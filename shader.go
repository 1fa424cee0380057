package lensplay

import (
	"math"

	"github.com/pkg/errors"
)

// Stage is the projection part of a program:
// how the mask and shade of the mesh vertices
// turn into the color they scale texels by.
type Stage int

const (
	StagePlain Stage = iota
	StageFish2Persp
	StageFish2Pano
	StageDistortion
)

// String returns the name of the stage.
func (stage Stage) String() string {
	switch stage {
	case StagePlain:
		return "plain"
	case StageFish2Persp:
		return "fish2persp"
	case StageFish2Pano:
		return "fish2pano"
	case StageDistortion:
		return "distortion"
	default:
		return "unknown"
	}
}

// Scale returns the color a vertex scales the
// sampled texels by. Vertices outside the lens
// carry an alpha below one half.
func (stage Stage) Scale(shade, alpha float32) (r, g, b, a float32) {
	switch stage {
	case StageFish2Persp:
		if alpha < 0.5 {
			return 0, 0, 0, 1
		}
	case StageFish2Pano:
		edge := smoothstep(0.25, 0.75, alpha)
		return edge, edge, edge, 1
	case StageDistortion:
		if alpha < 0.5 {
			return 0, 0, 0, 1
		}

		return shade, shade, shade, 1
	}

	return 1, 1, 1, 1
}

func smoothstep(edge0, edge1, x float32) float32 {
	t := (x - edge0) / (edge1 - edge0)

	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}

	return t * t * (3 - 2*t)
}

// Sampling is the color space of the
// uploaded texture.
type Sampling int

const (
	// SamplingRGB reads the texels as is.
	SamplingRGB Sampling = iota
	// SamplingYUV601 converts limited range
	// BT.601 YUV stored in R, G and B.
	SamplingYUV601
	// SamplingYUV709 converts limited range
	// BT.709 YUV stored in R, G and B.
	SamplingYUV709
)

// Samplings lists every sampling.
var Samplings = []Sampling{SamplingRGB, SamplingYUV601, SamplingYUV709}

// String returns the name of the sampling.
func (sampling Sampling) String() string {
	switch sampling {
	case SamplingRGB:
		return "rgb"
	case SamplingYUV601:
		return "yuv601"
	case SamplingYUV709:
		return "yuv709"
	default:
		return "unknown"
	}
}

// ColorMatrix is an affine color transform. Each
// row maps (R, G, B, A, 1) of a texel, with
// components in [0, 1], to one output component.
type ColorMatrix [4][5]float32

// Apply transforms the color.
func (m ColorMatrix) Apply(c [4]float32) [4]float32 {
	var out [4]float32

	for i, row := range m {
		out[i] = row[0]*c[0] + row[1]*c[1] + row[2]*c[2] + row[3]*c[3] + row[4]
	}

	return out
}

// IdentityMatrix leaves colors unchanged.
var IdentityMatrix = ColorMatrix{
	{1, 0, 0, 0, 0},
	{0, 1, 0, 0, 0},
	{0, 0, 1, 0, 0},
	{0, 0, 0, 1, 0},
}

// yuvMatrix converts limited range YUV stored in
// R, G and B with the given coefficient rows.
func yuvMatrix(rowR, rowG, rowB [3]float32) ColorMatrix {
	const luma, chroma = 16.0 / 255.0, 128.0 / 255.0

	row := func(k [3]float32) [5]float32 {
		return [5]float32{k[0], k[1], k[2], 0, -(k[0]*luma + (k[1]+k[2])*chroma)}
	}

	return ColorMatrix{row(rowR), row(rowG), row(rowB), {0, 0, 0, 1, 0}}
}

var samplingMatrices = map[Sampling]ColorMatrix{
	SamplingRGB: IdentityMatrix,
	SamplingYUV601: yuvMatrix(
		[3]float32{1.164, 0, 1.596},
		[3]float32{1.164, -0.392, -0.813},
		[3]float32{1.164, 2.017, 0}),
	SamplingYUV709: yuvMatrix(
		[3]float32{1.164, 0, 1.793},
		[3]float32{1.164, -0.213, -0.533},
		[3]float32{1.164, 2.112, 0}),
}

// SamplingMatrix returns the color matrix
// reading textures of the sampling.
func SamplingMatrix(sampling Sampling) ColorMatrix {
	if m, ok := samplingMatrices[sampling]; ok {
		return m
	}

	return IdentityMatrix
}

// ProgramSpec describes a program
// for the device to build.
type ProgramSpec struct {
	Stage    Stage
	Sampling Sampling
	Matrix   ColorMatrix
}

// NewProgramSpec returns the program drawing
// the stage from the sampling.
func NewProgramSpec(stage Stage, sampling Sampling) ProgramSpec {
	return ProgramSpec{
		Stage:    stage,
		Sampling: sampling,
		Matrix:   SamplingMatrix(sampling),
	}
}

// Validate checks the matrix
// holds finite values.
func (spec ProgramSpec) Validate() error {
	for _, row := range spec.Matrix {
		for _, v := range row {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return errors.Wrapf(ErrShaderCompile, "%s/%s: non finite matrix", spec.Stage, spec.Sampling)
			}
		}
	}

	return nil
}

type programKey struct {
	stage    Stage
	sampling Sampling
}

// ProgramSet builds the program variants
// on first use and keeps them. It belongs
// to the render thread.
type ProgramSet struct {
	device   Device
	programs map[programKey]Program
}

// NewProgramSet returns an empty set
// building through the device.
func NewProgramSet(device Device) *ProgramSet {
	return &ProgramSet{
		device:   device,
		programs: map[programKey]Program{},
	}
}

// Program returns the program for
// the stage and the sampling.
func (set *ProgramSet) Program(stage Stage, sampling Sampling) (Program, error) {
	key := programKey{stage: stage, sampling: sampling}

	if program, ok := set.programs[key]; ok {
		return program, nil
	}

	program, err := set.device.CompileProgram(NewProgramSpec(stage, sampling))

	if err != nil {
		return nil, errors.Wrapf(ErrShaderCompile, "%s/%s: %v", stage, sampling, err)
	}

	trackAlloc(ResProgram, program)
	set.programs[key] = program
	log.Debug().Str(lStage, stage.String()).Str(lFormat, sampling.String()).Msg("program compiled")

	return program, nil
}

// Prepare builds every sampling
// variant of the stage.
func (set *ProgramSet) Prepare(stage Stage) error {
	for _, sampling := range Samplings {
		if _, err := set.Program(stage, sampling); err != nil {
			return err
		}
	}

	return nil
}

// Len returns the number of
// compiled programs.
func (set *ProgramSet) Len() int {
	return len(set.programs)
}

// Dispose releases every program.
func (set *ProgramSet) Dispose() {
	for key, program := range set.programs {
		trackFree(program)
		program.Dispose()
		delete(set.programs, key)
	}
}
