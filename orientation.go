package lensplay

import (
	"math"
	"sync/atomic"
)

// ViewOrientation is the look direction
// of the viewer. Angles are in degrees.
type ViewOrientation struct {
	Yaw   float64
	Pitch float64
	Roll  float64
	Zoom  float64
}

// DefaultOrientation looks straight
// ahead without zoom.
var DefaultOrientation = ViewOrientation{Zoom: 1}

// Limits bounds the orientation.
type Limits struct {
	MinPitch float64
	MaxPitch float64
	MinZoom  float64
	MaxZoom  float64
}

// DefaultLimits keeps the view off the
// poles and the zoom within 4x.
func DefaultLimits() Limits {
	return Limits{
		MinPitch: -85,
		MaxPitch: 85,
		MinZoom:  1,
		MaxZoom:  4,
	}
}

// Clamp brings the orientation within the
// limits. Yaw and roll wrap to (-180, 180].
func (limits Limits) Clamp(o ViewOrientation) ViewOrientation {
	o.Yaw = wrapDegrees(o.Yaw)
	o.Roll = wrapDegrees(o.Roll)
	o.Pitch = clamp(o.Pitch, limits.MinPitch, limits.MaxPitch)
	o.Zoom = clamp(o.Zoom, limits.MinZoom, limits.MaxZoom)

	return o
}

func (limits Limits) normalize() Limits {
	limits.MinPitch = clamp(limits.MinPitch, -90, 90)
	limits.MaxPitch = clamp(limits.MaxPitch, limits.MinPitch, 90)

	if !(limits.MinZoom > 0) {
		limits.MinZoom = 1
	}

	if limits.MaxZoom < limits.MinZoom {
		limits.MaxZoom = limits.MinZoom
	}

	return limits
}

type orientationValue struct {
	orientation ViewOrientation
	limits      Limits
}

// Orientation is the shared slot holding the
// current ViewOrientation. Input writes it,
// the renderer reads it once per frame.
// The last writer wins and nobody blocks.
type Orientation struct {
	value atomic.Pointer[orientationValue]
}

// NewOrientation returns a slot
// holding DefaultOrientation.
func NewOrientation(limits Limits) *Orientation {
	slot := &Orientation{}
	limits = limits.normalize()
	slot.value.Store(&orientationValue{
		orientation: limits.Clamp(DefaultOrientation),
		limits:      limits,
	})

	return slot
}

// Load returns the current orientation.
func (slot *Orientation) Load() ViewOrientation {
	return slot.value.Load().orientation
}

// Limits returns the current limits.
func (slot *Orientation) Limits() Limits {
	return slot.value.Load().limits
}

// Set stores the orientation clamped to the
// limits and returns what was stored.
func (slot *Orientation) Set(o ViewOrientation) ViewOrientation {
	for {
		old := slot.value.Load()
		next := &orientationValue{
			orientation: old.limits.Clamp(o),
			limits:      old.limits,
		}

		if slot.value.CompareAndSwap(old, next) {
			return next.orientation
		}
	}
}

// SetLimits replaces the limits and clamps
// the current orientation to them.
func (slot *Orientation) SetLimits(limits Limits) ViewOrientation {
	limits = limits.normalize()

	for {
		old := slot.value.Load()
		next := &orientationValue{
			orientation: limits.Clamp(old.orientation),
			limits:      limits,
		}

		if slot.value.CompareAndSwap(old, next) {
			return next.orientation
		}
	}
}

// Reset stores DefaultOrientation.
func (slot *Orientation) Reset() ViewOrientation {
	return slot.Set(DefaultOrientation)
}

func wrapDegrees(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}

	deg = math.Mod(deg, 360)

	switch {
	case deg > 180:
		deg -= 360
	case deg <= -180:
		deg += 360
	}

	return deg
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
