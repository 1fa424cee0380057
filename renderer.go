package lensplay

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrSnapshotUnsupported is returned when the
// surface cannot read back its pixels.
var ErrSnapshotUnsupported = errors.New("lensplay: snapshot not supported by the surface")

// PresentedFrame describes the frame
// whose upload a draw presented.
type PresentedFrame struct {
	PTS    time.Duration
	Serial uint64
	Width  int
	Height int
}

// RenderStats counts what the renderer did.
type RenderStats struct {
	// Presented frames were uploaded and drawn.
	Presented uint64
	// Redrawn draws reused the last texture.
	Redrawn uint64
	// Late frames were overtaken by a newer
	// one before they could be drawn.
	Late uint64
	// Rejected frames failed to upload.
	Rejected uint64
	// Passes is the number of draw calls.
	Passes uint64
	// ModeSwitches counts activated modes.
	ModeSwitches uint64
}

type modeRequest struct {
	mode   RenderMode
	params ProjectionParameters
	done   chan error
}

// Renderer owns the GPU side of playback: the
// active projection, its programs and the
// frame texture. Draw, Snapshot, ViewAt and
// Dispose must be called from the render
// thread; the other methods are safe anywhere.
type Renderer struct {
	device      Device
	frames      *FrameQueue
	orientation *Orientation
	programs    *ProgramSet
	uploader    *Uploader
	onPresent   func(PresentedFrame)
	onMode      func(RenderMode, ProjectionParameters)

	mu      sync.Mutex
	mode    RenderMode
	pending *modeRequest
	focus   *int
	stats   RenderStats

	reset     atomic.Bool
	showNext  atomic.Bool
	transform Transform
	params    ProjectionParameters
	viewport  Rect
	ready     bool
	sampling  Sampling
	hasImage  bool
	proj      projector
	call      DrawCall
}

// NewRenderer returns a renderer drawing the
// frames of the queue with the orientation of
// the slot. No mode is active until the first
// RequestMode is applied.
func NewRenderer(device Device, frames *FrameQueue, orientation *Orientation) *Renderer {
	return &Renderer{
		device:      device,
		frames:      frames,
		orientation: orientation,
		programs:    NewProgramSet(device),
		uploader:    NewUploader(device),
	}
}

// attach makes the renderer draw the
// frames of another queue.
func (renderer *Renderer) attach(frames *FrameQueue) {
	renderer.mu.Lock()
	renderer.frames = frames
	renderer.mu.Unlock()
}

// SetPresentHook sets the function called on
// the render thread after a new frame was drawn.
func (renderer *Renderer) SetPresentHook(hook func(PresentedFrame)) {
	renderer.onPresent = hook
}

// SetModeHook sets the function called on the
// render thread once a requested mode draws.
func (renderer *Renderer) SetModeHook(hook func(RenderMode, ProjectionParameters)) {
	renderer.onMode = hook
}

// Mode returns the active mode.
func (renderer *Renderer) Mode() RenderMode {
	renderer.mu.Lock()
	defer renderer.mu.Unlock()

	return renderer.mode
}

// Stats returns a snapshot of the counters.
func (renderer *Renderer) Stats() RenderStats {
	renderer.mu.Lock()
	defer renderer.mu.Unlock()

	return renderer.stats
}

// RequestMode asks for a mode switch at the
// next draw. Invalid parameters are rejected
// right away and the active mode is kept.
//
// The returned channel receives the outcome
// of the activation: nil once the mode draws,
// or why it could not be entered, in which
// case the previous mode stays active.
func (renderer *Renderer) RequestMode(mode RenderMode, params ProjectionParameters) (<-chan error, error) {
	if err := params.Validate(mode); err != nil {
		log.Warn().Err(err).Str(lMode, mode.String()).Msg("mode rejected")
		return nil, err
	}

	done := make(chan error, 1)

	renderer.mu.Lock()
	if renderer.pending != nil {
		renderer.pending.done <- ErrModeSuperseded
	}
	renderer.pending = &modeRequest{mode: mode, params: params.Clone(), done: done}
	renderer.mu.Unlock()

	return done, nil
}

// FocusView shows view i of a multi-view mode
// alone, or all views when i is negative.
func (renderer *Renderer) FocusView(i int) {
	renderer.mu.Lock()
	renderer.focus = &i
	renderer.mu.Unlock()
}

// ViewAt returns the view of a multi-view
// mode under the surface point, negative
// when there is none.
func (renderer *Renderer) ViewAt(x, y int) int {
	if focuser, ok := renderer.transform.(Focuser); ok {
		return focuser.ViewAt(x, y)
	}

	return -1
}

// Focused returns the view shown alone,
// negative when all views are shown.
func (renderer *Renderer) Focused() int {
	if focuser, ok := renderer.transform.(Focuser); ok {
		return focuser.Focused()
	}

	return -1
}

// Reset makes the renderer draw nothing
// until a new frame is presented.
func (renderer *Renderer) Reset() {
	renderer.reset.Store(true)
}

// ShowNext makes the next queued frame be
// presented whatever its timestamp.
func (renderer *Renderer) ShowNext() {
	renderer.showNext.Store(true)
}

// Draw runs one render cycle: apply a pending
// mode switch, take the newest frame due at
// clock, upload it and draw the passes of the
// active projection. Without a new frame the
// last texture is drawn again.
func (renderer *Renderer) Draw(surface Surface, clock time.Duration) error {
	viewport := surface.Bounds()

	if renderer.reset.Swap(false) {
		renderer.hasImage = false
	}

	renderer.applyPending(viewport)
	renderer.applyFocus()

	if renderer.transform != nil && (!renderer.ready || viewport != renderer.viewport) && !viewport.Empty() {
		if err := renderer.transform.Configure(renderer.params, viewport); err != nil {
			return errors.Wrap(err, "couldn't configure the projection")
		}

		renderer.viewport = viewport
		renderer.ready = true
	}

	presented, ok := renderer.present(clock)

	surface.Clear()

	if !renderer.hasImage || !renderer.ready {
		return nil
	}

	if err := renderer.drawPasses(surface); err != nil {
		return err
	}

	renderer.mu.Lock()
	if ok {
		renderer.stats.Presented++
	} else {
		renderer.stats.Redrawn++
	}
	renderer.mu.Unlock()

	if ok && renderer.onPresent != nil {
		renderer.onPresent(presented)
	}

	return nil
}

// present uploads the newest due frame and
// hands the frames back to the pool.
func (renderer *Renderer) present(clock time.Duration) (PresentedFrame, bool) {
	var next *Frame
	var late uint64

	renderer.mu.Lock()
	frames := renderer.frames
	renderer.mu.Unlock()

	if frames == nil {
		return PresentedFrame{}, false
	}

	eager := !renderer.hasImage || renderer.showNext.Load()

	for {
		frame, ok := frames.PopIf(func(frame *Frame) bool {
			return (eager && next == nil) || frame.PTS <= clock
		})

		if !ok {
			break
		}

		if next != nil {
			next.Release()
			late++
		}

		next = frame
	}

	if late > 0 {
		renderer.mu.Lock()
		renderer.stats.Late += late
		renderer.mu.Unlock()
	}

	if next == nil {
		return PresentedFrame{}, false
	}

	defer next.Release()

	sampling, err := renderer.uploader.Upload(next)

	if err != nil {
		log.Warn().Err(err).Dur(lPTS, next.PTS).Str(lFormat, next.Format.String()).
			Msg("frame dropped")
		renderer.mu.Lock()
		renderer.stats.Rejected++
		renderer.mu.Unlock()

		return PresentedFrame{}, false
	}

	renderer.showNext.Store(false)
	renderer.sampling = sampling
	renderer.hasImage = true

	return PresentedFrame{
		PTS:    next.PTS,
		Serial: next.Serial,
		Width:  next.Width,
		Height: next.Height,
	}, true
}

func (renderer *Renderer) drawPasses(surface Surface) error {
	texture := renderer.uploader.Texture()
	passes := renderer.transform.Passes(renderer.orientation.Load())
	drawn := 0

	for _, pass := range passes {
		program, err := renderer.programs.Program(pass.Stage, renderer.sampling)

		if err != nil {
			return err
		}

		vertices, indices := renderer.proj.project(pass)

		if len(indices) == 0 {
			continue
		}

		renderer.call = DrawCall{
			Viewport: pass.Viewport,
			Vertices: vertices,
			Indices:  indices,
			Program:  program,
			Texture:  texture,
		}

		if err := surface.Draw(&renderer.call); err != nil {
			return errors.Wrapf(err, "couldn't draw the %s pass", pass.Stage)
		}

		drawn++
	}

	renderer.mu.Lock()
	renderer.stats.Passes += uint64(drawn)
	renderer.mu.Unlock()

	return nil
}

// applyPending activates the requested mode.
// On failure the active mode is kept.
func (renderer *Renderer) applyPending(viewport Rect) {
	renderer.mu.Lock()
	req := renderer.pending
	renderer.pending = nil
	renderer.mu.Unlock()

	if req == nil {
		return
	}

	err := renderer.programs.Prepare(req.mode.Stage())

	var transform Transform

	if err == nil {
		transform, err = NewTransform(req.mode)
	}

	if err == nil && !viewport.Empty() {
		err = transform.Configure(req.params, viewport)
	}

	if err != nil {
		log.Error().Err(err).Str(lMode, req.mode.String()).
			Str(lFrom, renderer.Mode().String()).Msg("mode switch failed")
		req.done <- err

		return
	}

	renderer.mu.Lock()
	from := renderer.mode
	renderer.mode = req.mode
	renderer.stats.ModeSwitches++
	renderer.mu.Unlock()

	renderer.transform = transform
	renderer.params = req.params
	renderer.viewport = viewport
	renderer.ready = !viewport.Empty()

	log.Info().Str(lFrom, from.String()).Str(lTo, req.mode.String()).Msg("render mode switched")

	if renderer.onMode != nil {
		renderer.onMode(req.mode, req.params.Clone())
	}

	req.done <- nil
}

func (renderer *Renderer) applyFocus() {
	renderer.mu.Lock()
	focus := renderer.focus
	renderer.focus = nil
	renderer.mu.Unlock()

	if focus == nil {
		return
	}

	if focuser, ok := renderer.transform.(Focuser); ok {
		focuser.Focus(*focus)
	}
}

// Snapshot reads back the surface, when
// it supports it.
func (renderer *Renderer) Snapshot(surface Surface) (image.Image, error) {
	snapshotter, ok := surface.(Snapshotter)

	if !ok {
		return nil, ErrSnapshotUnsupported
	}

	return snapshotter.Snapshot()
}

// Dispose releases the GPU resources.
func (renderer *Renderer) Dispose() {
	renderer.programs.Dispose()
	renderer.uploader.Dispose()
	renderer.transform = nil
	renderer.hasImage = false
	renderer.ready = false
}
