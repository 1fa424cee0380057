//go:build leakcheck

package lensplay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RendererDisposeFreesResources(t *testing.T) {
	ResetTracker()
	t.Cleanup(ResetTracker)

	fx := newRendererFixture(t, ModeFisheye2Persp)
	fx.push(t, 0)
	require.NoError(t, fx.renderer.Draw(fx.surface, 10*time.Millisecond))

	assert.Equal(t, len(Samplings)+1, TrackedCount())

	fx.renderer.Dispose()

	assert.Zero(t, TrackedCount(), "%+v", DumpLeaks())
}

func TestTracker_ResizeFreesOldTexture(t *testing.T) {
	ResetTracker()
	t.Cleanup(ResetTracker)

	fx := newRendererFixture(t, ModePlain2D)
	fx.push(t, 0)
	require.NoError(t, fx.renderer.Draw(fx.surface, 0))

	frame := pooledFrame(fx.pool, PixelFormatI420, 32, 24, 40*time.Millisecond)
	require.True(t, fx.frames.Push(frame))
	require.NoError(t, fx.renderer.Draw(fx.surface, 40*time.Millisecond))

	leaks := DumpLeaks()
	textures := 0

	for _, leak := range leaks {
		if leak.Kind == ResTexture {
			textures++
		}
	}

	assert.Equal(t, 1, textures)
}
