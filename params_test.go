package lensplay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionParameters_DefaultsAreValid(t *testing.T) {
	params := DefaultProjectionParameters(1920, 1080)

	for _, mode := range RenderModes {
		assert.NoError(t, params.Validate(mode), mode.String())
	}
}

func TestProjectionParameters_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mode   RenderMode
		mutate func(*ProjectionParameters)
	}{
		{"no source size", ModePlain2D, func(p *ProjectionParameters) { p.SourceWidth = 0 }},
		{"zero radius", ModeVR, func(p *ProjectionParameters) { p.Lens.Radius = 0 }},
		{"wide lens", ModeFisheye2Persp, func(p *ProjectionParameters) { p.Lens.FOV = 361 }},
		{"center outside", ModeFisheye2Pano, func(p *ProjectionParameters) { p.Lens.CenterX = -1 }},
		{"perspective fov", ModeFisheye2Persp, func(p *ProjectionParameters) { p.PerspectiveFOV = 180 }},
		{"dome inside", ModeFisheye3D, func(p *ProjectionParameters) { p.DomeDistance = 1 }},
		{"inverted pano", ModeFisheye2Pano, func(p *ProjectionParameters) { p.Pano.Lat1, p.Pano.Lat2 = 10, -10 }},
		{"pano over the pole", ModeFisheye2Pano, func(p *ProjectionParameters) { p.Pano.Lat2 = 100 }},
		{"three quadrants", ModeMultiQuadFisheye2Persp, func(p *ProjectionParameters) { p.Quadrants = p.Quadrants[:3] }},
		{"bad quadrant", ModeMultiQuadFisheye3D, func(p *ProjectionParameters) { p.Quadrants[2].Lens.Radius = -1 }},
		{"coarse mesh", ModeFisheye3D, func(p *ProjectionParameters) { p.Slices = 2 }},
		{"huge mesh", ModeFisheye3D, func(p *ProjectionParameters) { p.Slices, p.Stacks = 1000, 1000 }},
		{"folding distortion", ModeDistortion, func(p *ProjectionParameters) { p.Distortion.K1 = -2 }},
		{"wide vignette", ModeDistortion, func(p *ProjectionParameters) { p.Distortion.Vignette = 0.5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := DefaultProjectionParameters(1920, 1080).Clone()
			tc.mutate(&params)

			assert.ErrorIs(t, params.Validate(tc.mode), ErrInvalidParameters)
		})
	}
}

func TestProjectionParameters_PlainIgnoresLens(t *testing.T) {
	params := DefaultProjectionParameters(640, 480)
	params.Lens.Radius = 0
	params.Slices = 0

	assert.NoError(t, params.Validate(ModePlain2D))
	assert.ErrorIs(t, params.Validate(ModeFisheye2Persp), ErrInvalidParameters)
}

func TestProjectionParameters_CloneAndEqual(t *testing.T) {
	params := DefaultProjectionParameters(1920, 1080)
	clone := params.Clone()

	assert.True(t, params.Equal(clone))

	clone.Quadrants[0].YawOffset = 45
	assert.Equal(t, 0.0, params.Quadrants[0].YawOffset)
	assert.False(t, params.Equal(clone))

	clone = params.Clone()
	clone.Lens.FOV = 190
	assert.False(t, params.Equal(clone))
}

func TestProjectionParameters_EqualComparesEveryField(t *testing.T) {
	base := DefaultProjectionParameters(1920, 1080)

	for _, tc := range []struct {
		name   string
		change func(*ProjectionParameters)
	}{
		{"source width", func(p *ProjectionParameters) { p.SourceWidth++ }},
		{"source height", func(p *ProjectionParameters) { p.SourceHeight++ }},
		{"lens", func(p *ProjectionParameters) { p.Lens.Mount = MountCeiling }},
		{"quadrant count", func(p *ProjectionParameters) { p.Quadrants = p.Quadrants[:3] }},
		{"quadrant lens", func(p *ProjectionParameters) { p.Quadrants[2].Lens.Radius++ }},
		{"perspective fov", func(p *ProjectionParameters) { p.PerspectiveFOV++ }},
		{"dome fov", func(p *ProjectionParameters) { p.DomeFOV++ }},
		{"dome distance", func(p *ProjectionParameters) { p.DomeDistance++ }},
		{"eye separation", func(p *ProjectionParameters) { p.EyeSeparation++ }},
		{"pano", func(p *ProjectionParameters) { p.Pano.Lat2-- }},
		{"distortion", func(p *ProjectionParameters) { p.Distortion.K2 = 0 }},
		{"slices", func(p *ProjectionParameters) { p.Slices++ }},
		{"stacks", func(p *ProjectionParameters) { p.Stacks++ }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			changed := base.Clone()
			tc.change(&changed)

			assert.False(t, base.Equal(changed))
			assert.False(t, changed.Equal(base))
		})
	}

	noQuadrants, emptyQuadrants := base.Clone(), base.Clone()
	noQuadrants.Quadrants = nil
	emptyQuadrants.Quadrants = []Quadrant{}
	assert.True(t, noQuadrants.Equal(emptyQuadrants))
}

func TestDefaultQuadrants(t *testing.T) {
	quadrants := DefaultQuadrants(2000, 1000)
	require.Len(t, quadrants, 4)

	assert.Equal(t, 500.0, quadrants[0].Lens.CenterX)
	assert.Equal(t, 250.0, quadrants[0].Lens.CenterY)
	assert.Equal(t, 1500.0, quadrants[3].Lens.CenterX)
	assert.Equal(t, 750.0, quadrants[3].Lens.CenterY)
	assert.Equal(t, 250.0, quadrants[1].Lens.Radius)
	assert.Zero(t, quadrants[3].YawOffset)
}

func TestDefaultPanoRange(t *testing.T) {
	assert.False(t, DefaultPanoRange(MountWall).Wraps())
	assert.True(t, DefaultPanoRange(MountCeiling).Wraps())
	assert.True(t, DefaultPanoRange(MountFloor).Wraps())
}

func TestDistortion_Factor(t *testing.T) {
	d := Distortion{K1: 0.5, K2: 0.25}

	assert.Equal(t, 1.0, d.Factor(0))
	assert.InDelta(t, 1.75, d.Factor(1), 1e-9)
}

func TestRenderMode_Parse(t *testing.T) {
	for _, mode := range RenderModes {
		parsed, err := ParseRenderMode(" " + mode.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}

	mode, err := ParseRenderMode("FourLens")
	require.NoError(t, err)
	assert.Equal(t, ModeMultiQuadFisheye2Persp, mode)

	_, err = ParseRenderMode("cubemap")
	assert.Error(t, err)
}

func TestRenderMode_Next(t *testing.T) {
	mode := ModePlain2D
	seen := map[RenderMode]bool{}

	for range RenderModes {
		seen[mode] = true
		mode = mode.Next()
	}

	assert.Equal(t, ModePlain2D, mode)
	assert.Len(t, seen, len(RenderModes))
}

func TestRenderMode_Stage(t *testing.T) {
	assert.Equal(t, StagePlain, ModePlain2D.Stage())
	assert.Equal(t, StageFish2Pano, ModeFisheye2Pano.Stage())
	assert.Equal(t, StageFish2Persp, ModeVR.Stage())
	assert.Equal(t, StageFish2Persp, ModeMultiQuadFisheye3D.Stage())
	assert.Equal(t, StageDistortion, ModeDistortion.Stage())

	assert.True(t, ModeVR.IsMultiPass())
	assert.False(t, ModeFisheye3D.IsMultiPass())
}

func TestPlayerState_Transitions(t *testing.T) {
	assert.True(t, StateNone.CanTransition(StateBuffering))
	assert.False(t, StateNone.CanTransition(StatePlaying))
	assert.True(t, StateBuffering.CanTransition(StatePlaying))
	assert.True(t, StatePlaying.CanTransition(StateBuffering))
	assert.False(t, StateFinished.CanTransition(StatePlaying))
	assert.True(t, StateFailed.CanTransition(StateNone))
	assert.False(t, StateFailed.CanTransition(StateBuffering))

	for _, state := range []PlayerState{StateBuffering, StateReadyToPlay, StatePlaying, StateSuspended, StateFinished} {
		assert.True(t, state.Active(), state.String())
		assert.True(t, state.CanTransition(StateNone), state.String())
	}

	assert.False(t, StateNone.Active())
	assert.False(t, StateFailed.Active())
}

// fakeNow is a manual clock.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestClock(t *testing.T) {
	fake := &fakeNow{t: time.Unix(1000, 0)}
	c := newClock(fake.now)

	fake.advance(time.Second)
	assert.Zero(t, c.Position())

	c.Start()
	fake.advance(2 * time.Second)
	assert.Equal(t, 2*time.Second, c.Position())
	assert.True(t, c.Running())

	c.Stop()
	fake.advance(time.Second)
	assert.Equal(t, 2*time.Second, c.Position())

	c.Set(10 * time.Second)
	c.Start()
	fake.advance(500 * time.Millisecond)
	assert.Equal(t, 10500*time.Millisecond, c.Position())

	c.Set(time.Second)
	fake.advance(time.Second)
	assert.Equal(t, 2*time.Second, c.Position())
}
