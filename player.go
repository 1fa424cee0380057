package lensplay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultMinBuffered is the number of decoded
// frames needed to leave the buffering state.
const DefaultMinBuffered = 3

// PlaybackStats provides progress information during playback
type PlaybackStats struct {
	State         PlayerState
	Mode          RenderMode
	Position      time.Duration
	Duration      time.Duration
	Progress      float64
	BitRate       int64
	PacketsRead   uint64
	BytesRead     int64
	FramesDecoded uint64
	// FramesSkipped were decoded before
	// the target of a seek.
	FramesSkipped uint64
	VideoPackets  QueueStats
	AudioPackets  QueueStats
	Frames        QueueStats
	Pool          PoolStats
	Render        RenderStats
}

// SeekResult completes once the first frame
// at or after the seek target was presented,
// or the seek was abandoned.
type SeekResult struct {
	Target time.Duration

	serial uint64
	done   chan struct{}
	once   sync.Once
	err    error
}

func newSeekResult(target time.Duration) *SeekResult {
	return &SeekResult{Target: target, done: make(chan struct{})}
}

// Done is closed when the seek completed.
func (result *SeekResult) Done() <-chan struct{} {
	return result.done
}

// Err returns why the seek was abandoned,
// nil on success. Valid once Done is closed.
func (result *SeekResult) Err() error {
	select {
	case <-result.done:
		return result.err
	default:
		return nil
	}
}

// Wait blocks until the seek completed.
func (result *SeekResult) Wait(ctx context.Context) error {
	select {
	case <-result.done:
		return result.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (result *SeekResult) complete(err error) {
	result.once.Do(func() {
		result.err = err
		close(result.done)
	})
}

// seekFloor drops the frames of a playback
// generation decoded before the seek target.
type seekFloor struct {
	serial uint64
	target time.Duration
}

// session holds what lives from
// Start to Stop.
type session struct {
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	videoPackets *PacketQueue
	audioPackets *PacketQueue
	frames       *FrameQueue
	samples      *Queue[*AudioFrame]
	pool         *FramePool
	seekSignal   chan struct{}

	// frames to buffer before playing,
	// at most the frame queue capacity
	minBuffered int
}

func (sess *session) close() {
	sess.cancel()
	sess.videoPackets.Close()
	sess.audioPackets.Close()
	sess.frames.Close()
	sess.samples.Close()
}

// Player runs a playback session: the demux
// and decode workers feeding the queues, the
// state machine and the clock gating which
// frames the renderer presents.
type Player struct {
	// Config fields
	source            Source
	device            Device
	videoPacketConfig QueueConfig
	audioPacketConfig QueueConfig
	frameConfig       QueueConfig
	sampleConfig      QueueConfig
	poolCapacity      int
	mode              RenderMode
	params            *ProjectionParameters
	limits            Limits
	inputMode         InputMode
	minBuffered       int
	now               func() time.Time

	onStateChange StateChangeCallback
	onError       ErrorCallback

	// Runtime fields
	mu        sync.Mutex
	state     PlayerState
	err       error
	wantPlay  bool
	info      StreamInfo
	session   *session
	projected ProjectionParameters
	sessions  int

	orientation *Orientation
	gestures    *GestureController
	renderer    *Renderer
	clock       *clock
	frameReady  chan struct{}

	sourceMu sync.Mutex

	seekMu      sync.Mutex
	serial      atomic.Uint64
	floor       atomic.Pointer[seekFloor]
	seekTarget  *time.Duration
	pendingSeek *SeekResult

	endOfStream  atomic.Uint64
	drained      atomic.Uint64
	pushedSerial atomic.Uint64
	lastPTS      atomic.Int64
	lastWidth    atomic.Int64
	lastHeight   atomic.Int64

	packetsRead   atomic.Uint64
	bytesRead     atomic.Int64
	framesDecoded atomic.Uint64
	framesSkipped atomic.Uint64
}

// NewPlayer returns a player of the source
// drawing through the device.
func NewPlayer(source Source, device Device) *Player {
	return &Player{
		source:            source,
		device:            device,
		videoPacketConfig: DefaultQueueConfig("video packets", DefaultVideoPacketCapacity),
		audioPacketConfig: DefaultQueueConfig("audio packets", DefaultAudioPacketCapacity),
		frameConfig:       DefaultQueueConfig("video frames", DefaultVideoFrameCapacity),
		sampleConfig: QueueConfig{
			Name:     "audio frames",
			Capacity: DefaultAudioFrameCapacity,
			Policy:   OverflowDropOldest,
		},
		poolCapacity: DefaultPoolCapacity,
		mode:         ModePlain2D,
		limits:       DefaultLimits(),
		inputMode:    InputTouchOnly,
		minBuffered:  DefaultMinBuffered,
		now:          time.Now,
		frameReady:   make(chan struct{}, 1),
	}
}

// VideoQueue configures the decoded frame queue.
func (p *Player) VideoQueue(config QueueConfig) *Player {
	p.frameConfig = config
	return p
}

// AudioQueue configures the decoded audio queue.
func (p *Player) AudioQueue(config QueueConfig) *Player {
	p.sampleConfig = config
	return p
}

// PacketQueues configures the video and
// audio packet queues.
func (p *Player) PacketQueues(video, audio QueueConfig) *Player {
	p.videoPacketConfig = video
	p.audioPacketConfig = audio
	return p
}

// PoolCapacity sets the number of pooled
// frame buffers. It must exceed the
// video queue capacity.
func (p *Player) PoolCapacity(capacity int) *Player {
	p.poolCapacity = capacity
	return p
}

// Mode sets the render mode of the session.
func (p *Player) Mode(mode RenderMode) *Player {
	p.mode = mode
	return p
}

// Projection overrides the projection
// parameters declared by the source.
func (p *Player) Projection(params ProjectionParameters) *Player {
	params = params.Clone()
	p.params = &params
	return p
}

// Limits sets the orientation limits.
func (p *Player) Limits(limits Limits) *Player {
	p.limits = limits
	return p
}

// Input sets how motion and touch combine.
func (p *Player) Input(mode InputMode) *Player {
	p.inputMode = mode
	return p
}

// MinBuffered sets the number of frames to
// decode before playback can start.
func (p *Player) MinBuffered(frames int) *Player {
	p.minBuffered = frames
	return p
}

// Clock sets the time source of the
// playback clock.
func (p *Player) Clock(now func() time.Time) *Player {
	p.now = now
	return p
}

// OnStateChange sets the state change callback.
func (p *Player) OnStateChange(fn StateChangeCallback) *Player {
	p.onStateChange = fn
	return p
}

// OnError sets the failure callback.
func (p *Player) OnError(fn ErrorCallback) *Player {
	p.onError = fn
	return p
}

// Start opens a session: it allocates the
// queues, requests the render mode and starts
// the workers. The player then buffers until
// Play is called.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateNone {
		state := p.state
		p.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "start while %s", state)
	}

	p.info = p.source.Info()
	params := p.projectionLocked()
	restart := p.sessions > 0
	p.sessions++
	p.err = nil
	p.wantPlay = false

	if p.orientation == nil {
		p.orientation = NewOrientation(p.limits)
		p.gestures = NewGestureController(p.orientation, p.inputMode)
		p.clock = newClock(p.now)
		p.renderer = NewRenderer(p.device, nil, p.orientation)
		p.renderer.SetPresentHook(p.presented)
		p.renderer.SetModeHook(p.modeSwitched)
	}

	mode := p.mode
	p.mu.Unlock()

	done, err := p.renderer.RequestMode(mode, params)

	if err != nil {
		p.fail(err)
		return err
	}

	if restart {
		p.sourceMu.Lock()
		err = p.source.Seek(0)
		p.sourceMu.Unlock()

		if err != nil {
			err = errors.Wrap(ErrDecode, err.Error())
			p.fail(err)
			return err
		}
	}

	sess := p.newSession(ctx)

	p.mu.Lock()
	p.session = sess
	p.projected = params
	p.mu.Unlock()

	p.renderer.attach(sess.frames)
	p.renderer.Reset()
	p.clock.Stop()
	p.clock.Set(0)
	p.floor.Store(nil)
	p.endOfStream.Store(0)
	p.drained.Store(0)
	p.pushedSerial.Store(0)
	p.lastPTS.Store(-1)

	p.transition(StateBuffering)

	group, gctx := errgroup.WithContext(sess.ctx)
	group.Go(func() error { return p.demux(gctx, sess) })
	group.Go(func() error { return p.decodeVideo(gctx, sess) })

	if p.info.HasAudio {
		group.Go(func() error { return p.decodeAudio(gctx, sess) })
	}

	go func() {
		err := group.Wait()

		if err != nil && sess.ctx.Err() == nil {
			p.fail(err)
		}

		close(sess.done)
	}()

	go p.watchMode(sess, done)

	log.Info().Str(lMode, mode.String()).Int(lWidth, p.info.Width).
		Int(lHeight, p.info.Height).Msg("session started")

	return nil
}

func (p *Player) projectionLocked() ProjectionParameters {
	var params ProjectionParameters

	switch {
	case p.params != nil:
		params = p.params.Clone()
	case p.info.Projection != nil:
		params = p.info.Projection.Clone()
	default:
		params = DefaultProjectionParameters(p.info.Width, p.info.Height)
	}

	if params.SourceWidth == 0 && params.SourceHeight == 0 {
		params.SourceWidth, params.SourceHeight = p.info.Width, p.info.Height
	}

	return params
}

func (p *Player) newSession(ctx context.Context) *session {
	sctx, cancel := context.WithCancel(ctx)
	frames := NewFrameQueue(p.frameConfig)

	if p.minBuffered > frames.Capacity() {
		log.Warn().Int(lBuffered, p.minBuffered).Int(lCapacity, frames.Capacity()).
			Msg("min buffered frames above the queue capacity")
	}

	return &session{
		ctx:          sctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		videoPackets: NewPacketQueue(p.videoPacketConfig),
		audioPackets: NewPacketQueue(p.audioPacketConfig),
		frames:       frames,
		samples:      NewQueue[*AudioFrame](p.sampleConfig, nil),
		pool:         NewFramePool(max(p.poolCapacity, p.frameConfig.Capacity+2)),
		seekSignal:   make(chan struct{}, 1),
		minBuffered:  min(p.minBuffered, frames.Capacity()),
	}
}

// watchMode fails the session when the
// first mode cannot be entered.
func (p *Player) watchMode(sess *session, done <-chan error) {
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, ErrModeSuperseded) {
			p.fail(err)
		}
	case <-sess.ctx.Done():
	}
}

// Play starts or resumes playback.
func (p *Player) Play() error {
	p.mu.Lock()
	state, sess := p.state, p.session
	p.wantPlay = true
	p.mu.Unlock()

	switch state {
	case StateNone, StateFailed:
		return errors.Wrapf(ErrInvalidState, "play while %s", state)
	case StateFinished:
		p.Seek(0)
		return nil
	case StateSuspended, StateReadyToPlay:
		if sess.frames.Size() > 0 || p.isDrained() {
			p.startPlaying()
		} else {
			p.transition(StateBuffering)
		}
	}

	return nil
}

// Pause suspends playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	state := p.state
	p.wantPlay = false
	p.mu.Unlock()

	switch state {
	case StateNone, StateFailed, StateFinished:
		return errors.Wrapf(ErrInvalidState, "pause while %s", state)
	case StatePlaying, StateBuffering, StateReadyToPlay:
		p.clock.Stop()
		p.transition(StateSuspended)
	}

	return nil
}

// Stop ends the session: the workers leave,
// the queues are flushed and the renderer
// draws nothing until the next Start.
func (p *Player) Stop() error {
	p.mu.Lock()
	sess := p.session
	p.session = nil
	p.wantPlay = false
	p.mu.Unlock()

	if sess == nil {
		p.transition(StateNone)
		return nil
	}

	sess.close()
	<-sess.done

	p.seekMu.Lock()
	pending := p.pendingSeek
	p.pendingSeek = nil
	p.seekTarget = nil
	p.seekMu.Unlock()

	if pending != nil {
		pending.complete(ErrStopped)
	}

	p.renderer.Reset()
	p.clock.Stop()
	p.clock.Set(0)
	p.transition(StateNone)

	log.Info().Msg("session stopped")

	return nil
}

// Close stops the session and closes the source.
func (p *Player) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}

	return p.source.Close()
}

// Dispose releases the GPU resources. Call it
// from the render thread once done drawing.
func (p *Player) Dispose() {
	if renderer, _ := p.runtime(); renderer != nil {
		renderer.Dispose()
	}
}

// Seek moves playback to target. Both queues
// are flushed at once; the result completes
// when the first frame at or after the target
// is presented.
func (p *Player) Seek(target time.Duration) *SeekResult {
	result := newSeekResult(target)

	p.mu.Lock()
	state, sess, duration := p.state, p.session, p.info.Duration
	p.mu.Unlock()

	if sess == nil || !state.Active() {
		result.complete(errors.Wrapf(ErrInvalidState, "seek while %s", state))
		return result
	}

	if target < 0 {
		target = 0
	}

	if duration > 0 && target > duration {
		target = duration
	}

	result.Target = target

	p.seekMu.Lock()
	serial := p.serial.Add(1)
	result.serial = serial
	p.floor.Store(&seekFloor{serial: serial, target: target})
	p.seekTarget = &target
	sess.videoPackets.Flush()
	sess.audioPackets.Flush()
	sess.frames.Flush()
	sess.samples.Flush()
	previous := p.pendingSeek
	p.pendingSeek = result
	p.seekMu.Unlock()

	if previous != nil {
		previous.complete(ErrSeekSuperseded)
	}

	select {
	case sess.seekSignal <- struct{}{}:
	default:
	}

	p.clock.Stop()
	p.clock.Set(target)
	p.renderer.ShowNext()

	if state == StatePlaying || state == StateFinished {
		p.transition(StateBuffering)
	}

	if state == StateFinished {
		p.mu.Lock()
		p.wantPlay = true
		p.mu.Unlock()
	}

	log.Debug().Dur(lTarget, target).Uint64(lSerial, serial).Msg("seek")

	return result
}

// SetMode switches the render mode, keeping
// the view orientation. See Renderer.RequestMode.
// Before Start it only picks the first mode.
// The mode and parameters are kept once the
// mode draws; a failed switch leaves both as
// they were.
func (p *Player) SetMode(mode RenderMode, params *ProjectionParameters) (<-chan error, error) {
	p.mu.Lock()
	renderer := p.renderer

	if renderer == nil {
		defer p.mu.Unlock()

		if params != nil {
			if err := params.Validate(mode); err != nil {
				return nil, err
			}

			clone := params.Clone()
			p.params = &clone
		}

		p.mode = mode
		done := make(chan error, 1)
		done <- nil

		return done, nil
	}

	next := p.projected

	if params != nil {
		next = params.Clone()
	}

	p.mu.Unlock()

	return renderer.RequestMode(mode, next)
}

// modeSwitched runs on the render thread
// once a requested mode draws.
func (p *Player) modeSwitched(mode RenderMode, params ProjectionParameters) {
	p.mu.Lock()
	p.mode = mode
	p.projected = params
	p.mu.Unlock()
}

// runtime returns the renderer and the clock,
// both nil before the first Start.
func (p *Player) runtime() (*Renderer, *clock) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.renderer, p.clock
}

// Draw advances the state machine and renders
// the frame due at the clock. Call it from
// the render thread on every refresh.
func (p *Player) Draw(surface Surface) error {
	renderer, clk := p.runtime()

	if renderer == nil {
		surface.Clear()
		return nil
	}

	p.evaluate()

	return renderer.Draw(surface, clk.Position())
}

// evaluate moves the state machine
// along the buffer levels.
func (p *Player) evaluate() {
	p.mu.Lock()
	state, sess, wantPlay := p.state, p.session, p.wantPlay
	p.mu.Unlock()

	if sess == nil {
		return
	}

	buffered := sess.frames.Size()
	drained := p.isDrained()

	switch state {
	case StateBuffering:
		if buffered < sess.minBuffered && !drained && !sess.frames.IsFull() {
			return
		}

		if wantPlay {
			p.startPlaying()
		} else {
			p.transition(StateReadyToPlay)
		}

	case StatePlaying:
		if buffered > 0 {
			return
		}

		if drained {
			p.clock.Stop()
			p.transition(StateFinished)

			return
		}

		last := time.Duration(p.lastPTS.Load())
		if last >= 0 && p.clock.Position() > last+2*p.info.FrameDuration() {
			log.Debug().Int(lBuffered, buffered).Msg("underrun")
			p.clock.Stop()
			p.transition(StateBuffering)
		}
	}
}

func (p *Player) startPlaying() {
	if p.transition(StatePlaying) {
		p.clock.Start()
	}
}

func (p *Player) isDrained() bool {
	return p.drained.Load() == p.serial.Load()+1
}

// transition moves to the state if the state
// machine allows it and reports whether it did.
func (p *Player) transition(to PlayerState) bool {
	p.mu.Lock()
	from := p.state

	if from == to || !from.CanTransition(to) {
		p.mu.Unlock()
		return false
	}

	p.state = to
	callback := p.onStateChange
	p.mu.Unlock()

	log.Info().Str(lFrom, from.String()).Str(lTo, to.String()).Msg("player state")

	if callback != nil {
		callback(from, to)
	}

	return true
}

// fail moves the session to the failed state
// and stops the workers.
func (p *Player) fail(err error) {
	p.mu.Lock()
	if p.state == StateFailed {
		p.mu.Unlock()
		return
	}

	p.err = err
	sess := p.session
	callback := p.onError
	p.mu.Unlock()

	log.Error().Err(err).Msg("playback failed")

	if sess != nil {
		sess.close()
	}

	p.clock.Stop()
	p.transition(StateFailed)

	if callback != nil {
		callback(err)
	}
}

// presented runs on the render thread after
// a new frame was drawn.
func (p *Player) presented(frame PresentedFrame) {
	p.lastPTS.Store(int64(frame.PTS))
	p.lastWidth.Store(int64(frame.Width))
	p.lastHeight.Store(int64(frame.Height))

	p.seekMu.Lock()
	pending := p.pendingSeek

	if pending != nil && frame.Serial == pending.serial {
		p.pendingSeek = nil
	} else {
		pending = nil
	}

	p.seekMu.Unlock()

	if pending != nil {
		log.Debug().Dur(lPTS, frame.PTS).Dur(lTarget, pending.Target).Msg("seek complete")
		pending.complete(nil)
	}
}

// State returns the current state.
func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Err returns the error the session
// failed with.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

// Info returns the stream information
// of the source.
func (p *Player) Info() StreamInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.info
}

// Position returns the playback position.
func (p *Player) Position() time.Duration {
	_, clk := p.runtime()

	if clk == nil {
		return 0
	}

	pos := clk.Position()

	if duration := p.Duration(); duration > 0 && pos > duration {
		pos = duration
	}

	return pos
}

// Duration returns the duration of the media.
func (p *Player) Duration() time.Duration {
	return p.Info().Duration
}

// BitRate returns the bit rate declared by
// the source, or the one measured so far.
func (p *Player) BitRate() int64 {
	if rate := p.Info().BitRate; rate > 0 {
		return rate
	}

	pos := p.Position()

	if pos <= 0 {
		return 0
	}

	return int64(float64(p.bytesRead.Load()*8) / pos.Seconds())
}

// PresentationSize returns the size of the
// last presented frame, the stream size
// before the first one.
func (p *Player) PresentationSize() (int, int) {
	if w, h := p.lastWidth.Load(), p.lastHeight.Load(); w > 0 && h > 0 {
		return int(w), int(h)
	}

	info := p.Info()

	return info.Width, info.Height
}

// FrameReady receives a value when a decoded
// frame was queued, for hosts scheduling their
// refresh on demand.
func (p *Player) FrameReady() <-chan struct{} {
	return p.frameReady
}

// Gestures returns the controller to feed
// the input of the viewer to.
func (p *Player) Gestures() *GestureController {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.gestures
}

// Renderer returns the renderer, nil
// before the first Start.
func (p *Player) Renderer() *Renderer {
	renderer, _ := p.runtime()
	return renderer
}

// AudioSamples returns the decoded audio
// queue of the session, nil when stopped.
func (p *Player) AudioSamples() *Queue[*AudioFrame] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil
	}

	return p.session.samples
}

// Stats returns a snapshot of the
// playback counters.
func (p *Player) Stats() PlaybackStats {
	p.mu.Lock()
	sess, renderer := p.session, p.renderer
	stats := PlaybackStats{
		State:    p.state,
		Mode:     p.mode,
		Duration: p.info.Duration,
	}
	p.mu.Unlock()

	stats.Position = p.Position()
	stats.BitRate = p.BitRate()
	stats.PacketsRead = p.packetsRead.Load()
	stats.BytesRead = p.bytesRead.Load()
	stats.FramesDecoded = p.framesDecoded.Load()
	stats.FramesSkipped = p.framesSkipped.Load()

	if stats.Duration > 0 {
		stats.Progress = float64(stats.Position) / float64(stats.Duration)
	}

	if sess != nil {
		stats.VideoPackets = sess.videoPackets.Stats()
		stats.AudioPackets = sess.audioPackets.Stats()
		stats.Frames = sess.frames.Stats()
		stats.Pool = sess.pool.Stats()
	}

	if renderer != nil {
		stats.Render = renderer.Stats()
	}

	return stats
}
