package lensplay

import (
	"strings"

	"github.com/pkg/errors"
)

// RenderMode is the projection
// used to draw the frames.
type RenderMode int

const (
	ModePlain2D RenderMode = iota
	ModeFisheye2Pano
	ModeFisheye2Persp
	ModeFisheye3D
	ModeMultiQuadFisheye2Persp
	ModeMultiQuadFisheye3D
	ModeVR
	ModeDistortion
)

// RenderModes lists every mode
// in cycling order.
var RenderModes = []RenderMode{
	ModePlain2D,
	ModeFisheye2Pano,
	ModeFisheye2Persp,
	ModeFisheye3D,
	ModeMultiQuadFisheye2Persp,
	ModeMultiQuadFisheye3D,
	ModeVR,
	ModeDistortion,
}

var modeNames = map[RenderMode]string{
	ModePlain2D:                "plain2d",
	ModeFisheye2Pano:           "fisheye2pano",
	ModeFisheye2Persp:          "fisheye2persp",
	ModeFisheye3D:              "fisheye3d",
	ModeMultiQuadFisheye2Persp: "multiquad2persp",
	ModeMultiQuadFisheye3D:     "multiquad3d",
	ModeVR:                     "vr",
	ModeDistortion:             "distortion",
}

// Names used by camera vendors
// for their display modes.
var modeAliases = map[string]RenderMode{
	"rawdata":  ModePlain2D,
	"panorama": ModeFisheye2Pano,
	"onelen":   ModeFisheye2Persp,
	"fourlens": ModeMultiQuadFisheye2Persp,
}

// String returns the name of the mode.
func (mode RenderMode) String() string {
	if name, ok := modeNames[mode]; ok {
		return name
	}

	return "unknown"
}

// ParseRenderMode returns the mode
// of the given name or alias.
func ParseRenderMode(name string) (RenderMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	for mode, modeName := range modeNames {
		if modeName == name {
			return mode, nil
		}
	}

	if mode, ok := modeAliases[name]; ok {
		return mode, nil
	}

	return ModePlain2D, errors.Errorf("unknown render mode %q", name)
}

// Stage returns the shader stage
// drawing the mode.
func (mode RenderMode) Stage() Stage {
	switch mode {
	case ModeFisheye2Pano:
		return StageFish2Pano
	case ModeFisheye2Persp, ModeFisheye3D, ModeVR,
		ModeMultiQuadFisheye2Persp, ModeMultiQuadFisheye3D:
		return StageFish2Persp
	case ModeDistortion:
		return StageDistortion
	default:
		return StagePlain
	}
}

// IsMultiPass reports whether a frame
// takes more than one draw call.
func (mode RenderMode) IsMultiPass() bool {
	switch mode {
	case ModeMultiQuadFisheye2Persp, ModeMultiQuadFisheye3D,
		ModeVR, ModeDistortion:
		return true
	default:
		return false
	}
}

// Next returns the mode after this
// one in cycling order.
func (mode RenderMode) Next() RenderMode {
	return RenderModes[(int(mode)+1)%len(RenderModes)]
}
