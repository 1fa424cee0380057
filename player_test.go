package lensplay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playerFixture struct {
	source  *fakeSource
	device  *fakeDevice
	player  *Player
	surface *fakeSurface
	now     *fakeNow

	mu     sync.Mutex
	states []PlayerState
	errs   []error
}

func newPlayerFixture(t *testing.T, source *fakeSource) *playerFixture {
	t.Helper()

	fx := &playerFixture{
		source:  source,
		device:  &fakeDevice{},
		surface: newFakeSurface(320, 240),
		now:     &fakeNow{t: time.Unix(1000, 0)},
	}

	fx.player = NewPlayer(source, fx.device).
		Clock(fx.now.now).
		OnStateChange(func(from, to PlayerState) {
			fx.mu.Lock()
			fx.states = append(fx.states, to)
			fx.mu.Unlock()
		}).
		OnError(func(err error) {
			fx.mu.Lock()
			fx.errs = append(fx.errs, err)
			fx.mu.Unlock()
		})

	t.Cleanup(func() {
		fx.player.Stop()
	})

	return fx
}

// drawUntil draws on the test goroutine, the
// render thread, until cond holds, advancing
// the clock by step before every draw.
func (fx *playerFixture) drawUntil(t *testing.T, step time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, player %s", fx.player.State())
		}

		fx.now.advance(step)
		require.NoError(t, fx.player.Draw(fx.surface))
		time.Sleep(time.Millisecond)
	}
}

// completed reports whether the seek is over.
func completed(result *SeekResult) func() bool {
	return func() bool {
		select {
		case <-result.Done():
			return true
		default:
			return false
		}
	}
}

func (fx *playerFixture) inState(state PlayerState) func() bool {
	return func() bool {
		return fx.player.State() == state
	}
}

func (fx *playerFixture) seen(state PlayerState) bool {
	fx.mu.Lock()
	defer fx.mu.Unlock()

	for _, s := range fx.states {
		if s == state {
			return true
		}
	}

	return false
}

func TestPlayer_RejectsCallsBeforeStart(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(10))

	assert.ErrorIs(t, fx.player.Play(), ErrInvalidState)
	assert.ErrorIs(t, fx.player.Pause(), ErrInvalidState)
	assert.ErrorIs(t, fx.player.Seek(time.Second).Err(), ErrInvalidState)
	assert.Equal(t, StateNone, fx.player.State())
	assert.Nil(t, fx.player.AudioSamples())

	require.NoError(t, fx.player.Draw(fx.surface))
	assert.Equal(t, 1, fx.surface.clears)
}

func TestPlayer_StartTwice(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(10))

	require.NoError(t, fx.player.Start(context.Background()))
	assert.Equal(t, StateBuffering, fx.player.State())

	assert.ErrorIs(t, fx.player.Start(context.Background()), ErrInvalidState)
}

func TestPlayer_BuffersThenWaitsForPlay(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(50))
	require.NoError(t, fx.player.Start(context.Background()))

	fx.drawUntil(t, 0, fx.inState(StateReadyToPlay))

	assert.Zero(t, fx.player.Position())
	require.NoError(t, fx.player.Play())
	assert.Equal(t, StatePlaying, fx.player.State())
}

func TestPlayer_PlaysToTheEnd(t *testing.T) {
	source := newFakeSource(20)
	fx := newPlayerFixture(t, source)
	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Play())

	fx.drawUntil(t, 20*time.Millisecond, fx.inState(StateFinished))

	stats := fx.player.Stats()
	assert.Equal(t, uint64(20), stats.FramesDecoded)
	assert.Equal(t, uint64(20), stats.PacketsRead)
	assert.Equal(t, int64(20*16), stats.BytesRead)
	assert.Zero(t, stats.Frames.Len)
	assert.Positive(t, stats.Render.Presented)
	assert.Equal(t, 760*time.Millisecond, time.Duration(fx.player.lastPTS.Load()))
	assert.True(t, fx.seen(StatePlaying))
	assert.False(t, fx.player.clock.Running())

	width, height := fx.player.PresentationSize()
	assert.Equal(t, 64, width)
	assert.Equal(t, 48, height)
}

func TestPlayer_PauseFreezesClock(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(100))
	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Play())

	fx.drawUntil(t, 10*time.Millisecond, func() bool {
		return fx.player.Position() >= 100*time.Millisecond
	})

	require.NoError(t, fx.player.Pause())
	assert.Equal(t, StateSuspended, fx.player.State())

	position := fx.player.Position()
	fx.now.advance(time.Second)
	require.NoError(t, fx.player.Draw(fx.surface))

	assert.Equal(t, position, fx.player.Position())

	require.NoError(t, fx.player.Play())
	assert.Equal(t, StatePlaying, fx.player.State())
}

func TestPlayer_SeekFlushesAndLandsOnTarget(t *testing.T) {
	source := newFakeSource(100)
	fx := newPlayerFixture(t, source)
	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Play())

	fx.drawUntil(t, 10*time.Millisecond, func() bool {
		return fx.player.Stats().Frames.Len >= 3 && fx.player.Position() > 0
	})

	target := 2*time.Second + 20*time.Millisecond
	result := fx.player.Seek(target)

	assert.Equal(t, target, fx.player.Position())

	if frame, ok := fx.player.session.frames.Peek(); ok {
		assert.GreaterOrEqual(t, frame.PTS, target)
	}

	fx.drawUntil(t, 0, completed(result))

	require.NoError(t, result.Err())
	assert.Equal(t, 2*time.Second+40*time.Millisecond, time.Duration(fx.player.lastPTS.Load()))
	assert.Positive(t, fx.player.Stats().FramesSkipped)
	assert.Positive(t, fx.player.Stats().Frames.Flushed)

	source.mu.Lock()
	assert.Equal(t, []time.Duration{target}, source.seeks)
	source.mu.Unlock()

	fx.drawUntil(t, 0, fx.inState(StatePlaying))
}

func TestPlayer_SeekSupersedesPending(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(100))
	require.NoError(t, fx.player.Start(context.Background()))

	first := fx.player.Seek(time.Second)
	second := fx.player.Seek(3 * time.Second)

	assert.ErrorIs(t, first.Err(), ErrSeekSuperseded)

	fx.drawUntil(t, 0, completed(second))

	require.NoError(t, second.Err())
	assert.Equal(t, 3*time.Second, time.Duration(fx.player.lastPTS.Load()))
}

func TestPlayer_SeekPastLastFrame(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(20))
	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Play())

	result := fx.player.Seek(time.Hour)
	assert.Equal(t, fx.player.Duration(), result.Target)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.ErrorIs(t, result.Wait(ctx), ErrEndOfStream)

	fx.drawUntil(t, 0, fx.inState(StateFinished))
}

func TestPlayer_PlayAfterFinishRestarts(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(10))
	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Play())

	fx.drawUntil(t, 40*time.Millisecond, fx.inState(StateFinished))

	require.NoError(t, fx.player.Play())
	assert.Equal(t, StateBuffering, fx.player.State())
	assert.Zero(t, fx.player.Position())

	fx.drawUntil(t, 0, fx.inState(StatePlaying))
}

func TestPlayer_StopAbandonsSeek(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(100))
	require.NoError(t, fx.player.Start(context.Background()))

	result := fx.player.Seek(2 * time.Second)

	require.NoError(t, fx.player.Stop())

	assert.ErrorIs(t, result.Err(), ErrStopped)
	assert.Equal(t, StateNone, fx.player.State())
	assert.Zero(t, fx.player.Position())
	assert.Nil(t, fx.player.AudioSamples())

	require.NoError(t, fx.player.Draw(fx.surface))
	assert.Empty(t, fx.surface.calls)
}

func TestPlayer_RestartReadsFromStart(t *testing.T) {
	source := newFakeSource(30)
	fx := newPlayerFixture(t, source)
	require.NoError(t, fx.player.Start(context.Background()))

	fx.drawUntil(t, 0, fx.inState(StateReadyToPlay))
	require.NoError(t, fx.player.Stop())

	require.NoError(t, fx.player.Start(context.Background()))
	fx.drawUntil(t, 0, fx.inState(StateReadyToPlay))

	source.mu.Lock()
	assert.Equal(t, []time.Duration{0}, source.seeks)
	source.mu.Unlock()

	assert.Zero(t, time.Duration(fx.player.lastPTS.Load()))
}

func TestPlayer_DecodeErrorFails(t *testing.T) {
	source := newFakeSource(30)
	source.failAt = 5
	fx := newPlayerFixture(t, source)
	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Play())

	fx.drawUntil(t, 40*time.Millisecond, fx.inState(StateFailed))

	assert.ErrorIs(t, fx.player.Err(), ErrDecode)
	assert.ErrorIs(t, fx.player.Play(), ErrInvalidState)
	assert.ErrorIs(t, fx.player.Start(context.Background()), ErrInvalidState)

	require.Eventually(t, func() bool {
		fx.mu.Lock()
		defer fx.mu.Unlock()

		return len(fx.errs) > 0
	}, 5*time.Second, time.Millisecond)

	fx.mu.Lock()
	assert.Len(t, fx.errs, 1)
	assert.ErrorIs(t, fx.errs[0], ErrDecode)
	fx.mu.Unlock()

	require.NoError(t, fx.player.Stop())
	assert.Equal(t, StateNone, fx.player.State())
}

func TestPlayer_SetModeKeepsOrientation(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(50))
	require.NoError(t, fx.player.Start(context.Background()))
	fx.drawUntil(t, 0, fx.inState(StateReadyToPlay))

	fx.player.Gestures().PanDegrees(30, 0)

	done, err := fx.player.SetMode(ModeFisheye2Persp, nil)
	require.NoError(t, err)
	require.NoError(t, fx.player.Draw(fx.surface))
	require.NoError(t, <-done)

	assert.Equal(t, ModeFisheye2Persp, fx.player.Renderer().Mode())
	assert.Equal(t, ModeFisheye2Persp, fx.player.Stats().Mode)
	assert.InDelta(t, 30, fx.player.Gestures().Orientation().Load().Yaw, 1e-9)
}

func TestPlayer_SetModeRejectsInvalidParameters(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(50))
	require.NoError(t, fx.player.Start(context.Background()))

	params := DefaultProjectionParameters(64, 48)
	params.Lens.Radius = 0

	_, err := fx.player.SetMode(ModeVR, &params)

	assert.ErrorIs(t, err, ErrInvalidParameters)
	assert.Equal(t, ModePlain2D, fx.player.Stats().Mode)

	require.NoError(t, fx.player.Draw(fx.surface))
	assert.Equal(t, ModePlain2D, fx.player.Renderer().Mode())
}

func TestPlayer_FailedModeSwitchKeepsMode(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(50))
	require.NoError(t, fx.player.Start(context.Background()))
	fx.drawUntil(t, 0, fx.inState(StateReadyToPlay))

	stage := StageDistortion
	fx.device.failStage = &stage

	params := DefaultProjectionParameters(64, 48)
	params.PerspectiveFOV = 90

	done, err := fx.player.SetMode(ModeDistortion, &params)
	require.NoError(t, err)
	require.NoError(t, fx.player.Draw(fx.surface))
	require.ErrorIs(t, <-done, ErrShaderCompile)

	assert.Equal(t, ModePlain2D, fx.player.Stats().Mode)
	assert.Equal(t, ModePlain2D, fx.player.Renderer().Mode())
	assert.Equal(t, StateReadyToPlay, fx.player.State())

	done, err = fx.player.SetMode(ModeFisheye2Persp, nil)
	require.NoError(t, err)
	require.NoError(t, fx.player.Draw(fx.surface))
	require.NoError(t, <-done)

	assert.Equal(t, ModeFisheye2Persp, fx.player.Stats().Mode)

	fx.player.mu.Lock()
	projected := fx.player.projected
	fx.player.mu.Unlock()

	assert.InDelta(t, 100, projected.PerspectiveFOV, 1e-9)
}

func TestPlayer_DrawWhileStarting(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(50))
	surface := newFakeSurface(320, 240)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := 0; i < 200; i++ {
			assert.NoError(t, fx.player.Draw(surface))
			_ = fx.player.Stats()
			_ = fx.player.Position()
			_ = fx.player.Gestures()
			_ = fx.player.Renderer()
		}
	}()

	require.NoError(t, fx.player.Start(context.Background()))
	wg.Wait()

	fx.drawUntil(t, 0, fx.inState(StateReadyToPlay))
	assert.NotNil(t, fx.player.Renderer())
}

func TestPlayer_MinBufferedAboveQueueCapacity(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(30))
	fx.player.VideoQueue(DefaultQueueConfig("frames", 2)).MinBuffered(3)

	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Play())

	fx.drawUntil(t, 20*time.Millisecond, fx.inState(StateFinished))

	assert.True(t, fx.seen(StatePlaying))
	assert.Equal(t, 29*40*time.Millisecond, time.Duration(fx.player.lastPTS.Load()))
}

func TestPlayer_SetModeBeforeStart(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(50))

	done, err := fx.player.SetMode(ModeFisheye3D, nil)
	require.NoError(t, err)
	require.NoError(t, <-done)

	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Draw(fx.surface))

	assert.Equal(t, ModeFisheye3D, fx.player.Renderer().Mode())
}

func TestPlayer_UnusableProjectionFailsStart(t *testing.T) {
	source := newFakeSource(10)
	params := DefaultProjectionParameters(64, 48)
	params.Lens.FOV = 0
	source.info.Projection = &params

	fx := newPlayerFixture(t, source)
	fx.player.Mode(ModeFisheye2Persp)

	assert.ErrorIs(t, fx.player.Start(context.Background()), ErrInvalidParameters)
	assert.Equal(t, StateFailed, fx.player.State())
}

func TestPlayer_DecodesAudio(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(20).withAudio())
	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Play())

	samples := fx.player.AudioSamples()
	require.NotNil(t, samples)

	fx.drawUntil(t, 40*time.Millisecond, func() bool {
		return samples.Stats().Pushed >= 20
	})

	assert.GreaterOrEqual(t, fx.player.Stats().AudioPackets.Pushed, uint64(20))

	frame, ok := samples.Peek()
	require.True(t, ok)
	assert.Len(t, frame.Samples, 8)
}

func TestPlayer_FrameReady(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(10))
	require.NoError(t, fx.player.Start(context.Background()))

	select {
	case <-fx.player.FrameReady():
	case <-time.After(5 * time.Second):
		t.Fatal("no frame was queued")
	}
}

func TestPlayer_BitRateFallsBackToMeasured(t *testing.T) {
	fx := newPlayerFixture(t, newFakeSource(100))
	require.NoError(t, fx.player.Start(context.Background()))
	require.NoError(t, fx.player.Play())

	fx.drawUntil(t, 100*time.Millisecond, func() bool {
		return fx.player.Position() >= time.Second
	})

	assert.Positive(t, fx.player.BitRate())

	fx.source.mu.Lock()
	fx.source.info.BitRate = 4000
	fx.source.mu.Unlock()

	require.NoError(t, fx.player.Stop())
	require.NoError(t, fx.player.Start(context.Background()))
	assert.Equal(t, int64(4000), fx.player.BitRate())
}
