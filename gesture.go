package lensplay

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// InputMode picks how device motion and
// touch combine into the orientation.
type InputMode int

const (
	// InputTouchOnly ignores motion samples.
	InputTouchOnly InputMode = iota
	// InputMotionOnly follows the device
	// attitude. Touch still drives zoom.
	InputMotionOnly
	// InputMotionWithTouchOffset follows the
	// device attitude shifted by the touch deltas.
	InputMotionWithTouchOffset
)

// String returns the name of the mode.
func (mode InputMode) String() string {
	switch mode {
	case InputTouchOnly:
		return "touch"
	case InputMotionOnly:
		return "motion"
	case InputMotionWithTouchOffset:
		return "motion+touch"
	default:
		return "unknown"
	}
}

// ParseInputMode returns the
// input mode of the given name.
func ParseInputMode(name string) (InputMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "touch":
		return InputTouchOnly, nil
	case "motion":
		return InputMotionOnly, nil
	case "motion+touch", "mixed":
		return InputMotionWithTouchOffset, nil
	}

	return InputTouchOnly, errors.Errorf("unknown input mode %q", name)
}

// DefaultPanSensitivity is the number of
// degrees a one pixel drag turns the view.
const DefaultPanSensitivity = 0.15

// MotionSample is a device attitude
// in degrees.
type MotionSample struct {
	Yaw   float64
	Pitch float64
	Roll  float64
}

// GestureController turns gesture deltas and
// motion samples into the orientation slot.
//
// It is safe for concurrent use by input
// handlers; writes to the slot never wait
// on the renderer.
type GestureController struct {
	slot *Orientation

	mu          sync.Mutex
	mode        InputMode
	sensitivity float64
	touch       ViewOrientation
	motion      MotionSample
	reference   *MotionSample
}

// NewGestureController returns a controller
// writing into the slot.
func NewGestureController(slot *Orientation, mode InputMode) *GestureController {
	return &GestureController{
		slot:        slot,
		mode:        mode,
		sensitivity: DefaultPanSensitivity,
		touch:       slot.Load(),
	}
}

// Orientation returns the slot
// written by the controller.
func (gestures *GestureController) Orientation() *Orientation {
	return gestures.slot
}

// Mode returns the input mode.
func (gestures *GestureController) Mode() InputMode {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	return gestures.mode
}

// SetMode switches the input mode. Switching
// to touch only keeps the current look direction.
func (gestures *GestureController) SetMode(mode InputMode) {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	if gestures.mode == mode {
		return
	}

	gestures.touch = gestures.slot.Load()

	if mode == InputMotionWithTouchOffset {
		gestures.touch.Yaw, gestures.touch.Pitch, gestures.touch.Roll = 0, 0, 0
	}

	gestures.mode = mode
	gestures.apply()
}

// SetSensitivity sets the degrees
// per pixel of a drag.
func (gestures *GestureController) SetSensitivity(degreesPerPixel float64) {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	if degreesPerPixel > 0 {
		gestures.sensitivity = degreesPerPixel
	}
}

// Pan applies a drag of dx, dy pixels. Dragging
// right turns left, dragging down looks up.
// The turn rate shrinks as the view zooms in.
func (gestures *GestureController) Pan(dx, dy float64) ViewOrientation {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	scale := gestures.sensitivity / gestures.touch.Zoom

	return gestures.panLocked(-dx*scale, dy*scale)
}

// PanDegrees turns the view by the given angles.
func (gestures *GestureController) PanDegrees(yaw, pitch float64) ViewOrientation {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	return gestures.panLocked(yaw, pitch)
}

func (gestures *GestureController) panLocked(yaw, pitch float64) ViewOrientation {
	if gestures.mode == InputMotionOnly {
		return gestures.slot.Load()
	}

	gestures.touch.Yaw += yaw
	gestures.touch.Pitch += pitch

	return gestures.apply()
}

// Pinch multiplies the zoom by scale.
func (gestures *GestureController) Pinch(scale float64) ViewOrientation {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	if scale > 0 {
		gestures.touch.Zoom *= scale
	}

	return gestures.apply()
}

// Rotate turns the view around
// its axis by deg degrees.
func (gestures *GestureController) Rotate(deg float64) ViewOrientation {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	if gestures.mode == InputMotionOnly {
		return gestures.slot.Load()
	}

	gestures.touch.Roll += deg

	return gestures.apply()
}

// Motion feeds a device attitude sample. The
// first sample after a reset becomes the
// reference the later ones are relative to.
func (gestures *GestureController) Motion(sample MotionSample) ViewOrientation {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	if gestures.reference == nil {
		reference := sample
		gestures.reference = &reference
	}

	gestures.motion = MotionSample{
		Yaw:   wrapDegrees(sample.Yaw - gestures.reference.Yaw),
		Pitch: sample.Pitch - gestures.reference.Pitch,
		Roll:  wrapDegrees(sample.Roll - gestures.reference.Roll),
	}

	if gestures.mode == InputTouchOnly {
		return gestures.slot.Load()
	}

	return gestures.apply()
}

// ResetMotionReference makes the next
// motion sample the new reference.
func (gestures *GestureController) ResetMotionReference() {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	gestures.reference = nil
	gestures.motion = MotionSample{}
}

// Reset drops every accumulated delta.
func (gestures *GestureController) Reset() ViewOrientation {
	gestures.mu.Lock()
	defer gestures.mu.Unlock()

	gestures.touch = DefaultOrientation
	gestures.reference = nil
	gestures.motion = MotionSample{}

	return gestures.apply()
}

// apply writes the combined orientation and
// folds the clamping back into the touch
// accumulator, so pushing against a limit
// does not build up an offset to unwind.
func (gestures *GestureController) apply() ViewOrientation {
	combined := gestures.touch

	switch gestures.mode {
	case InputMotionOnly:
		combined.Yaw = gestures.motion.Yaw
		combined.Pitch = gestures.motion.Pitch
		combined.Roll = gestures.motion.Roll
	case InputMotionWithTouchOffset:
		combined.Yaw += gestures.motion.Yaw
		combined.Pitch += gestures.motion.Pitch
		combined.Roll += gestures.motion.Roll
	}

	stored := gestures.slot.Set(combined)

	switch gestures.mode {
	case InputTouchOnly:
		gestures.touch = stored
	case InputMotionOnly:
		gestures.touch.Zoom = stored.Zoom
	case InputMotionWithTouchOffset:
		gestures.touch.Yaw = wrapDegrees(stored.Yaw - gestures.motion.Yaw)
		gestures.touch.Pitch = stored.Pitch - gestures.motion.Pitch
		gestures.touch.Roll = wrapDegrees(stored.Roll - gestures.motion.Roll)
		gestures.touch.Zoom = stored.Zoom
	}

	return stored
}
