package lensplay

import (
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type fakeTexture struct {
	width    int
	height   int
	pix      []byte
	uploads  int
	disposed bool
}

func (texture *fakeTexture) Size() (int, int) {
	return texture.width, texture.height
}

func (texture *fakeTexture) ReplacePixels(pix []byte) error {
	if len(pix) != texture.width*texture.height*4 {
		return errors.Errorf("%d bytes for a %dx%d texture", len(pix), texture.width, texture.height)
	}

	texture.pix = append(texture.pix[:0], pix...)
	texture.uploads++

	return nil
}

func (texture *fakeTexture) Dispose() {
	texture.disposed = true
}

type fakeProgram struct {
	spec     ProgramSpec
	disposed bool
}

func (program *fakeProgram) Dispose() {
	program.disposed = true
}

// fakeDevice records the resources it hands out.
type fakeDevice struct {
	failStage *Stage
	textures  []*fakeTexture
	programs  []*fakeProgram
}

func (device *fakeDevice) NewTexture(width, height int) (Texture, error) {
	texture := &fakeTexture{width: width, height: height}
	device.textures = append(device.textures, texture)

	return texture, nil
}

func (device *fakeDevice) CompileProgram(spec ProgramSpec) (Program, error) {
	if device.failStage != nil && *device.failStage == spec.Stage {
		return nil, errors.New("syntax error")
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	program := &fakeProgram{spec: spec}
	device.programs = append(device.programs, program)

	return program, nil
}

type drawnCall struct {
	viewport Rect
	stage    Stage
	sampling Sampling
	indices  int
}

// fakeSurface records the draw calls
// of the last frame.
type fakeSurface struct {
	bounds Rect
	clears int
	calls  []drawnCall
}

func newFakeSurface(width, height int) *fakeSurface {
	return &fakeSurface{bounds: Rect{Width: width, Height: height}}
}

func (surface *fakeSurface) Bounds() Rect {
	return surface.bounds
}

func (surface *fakeSurface) Clear() {
	surface.clears++
	surface.calls = surface.calls[:0]
}

func (surface *fakeSurface) Draw(call *DrawCall) error {
	const slack = 1e-3

	vp := call.Viewport

	for _, i := range call.Indices {
		v := call.Vertices[i]

		if v.DstX < float32(vp.X)-slack || v.DstX > float32(vp.X+vp.Width)+slack ||
			v.DstY < float32(vp.Y)-slack || v.DstY > float32(vp.Y+vp.Height)+slack {
			return errors.Errorf("vertex %d at (%g, %g) outside %+v", i, v.DstX, v.DstY, vp)
		}
	}

	program := call.Program.(*fakeProgram)
	surface.calls = append(surface.calls, drawnCall{
		viewport: call.Viewport,
		stage:    program.spec.Stage,
		sampling: program.spec.Sampling,
		indices:  len(call.Indices),
	})

	return nil
}

// snapshotSurface can read its pixels back.
type snapshotSurface struct {
	*fakeSurface
}

func (surface snapshotSurface) Snapshot() (image.Image, error) {
	img := image.NewRGBA(surface.bounds.Image())

	for y := 0; y < surface.bounds.Height; y++ {
		for x := 0; x < surface.bounds.Width; x++ {
			img.Set(x, y, color.Black)
		}
	}

	return img, nil
}

// fakeSource produces numbered I420 frames
// with a key frame every keyInterval.
type fakeSource struct {
	mu          sync.Mutex
	info        StreamInfo
	frames      int
	keyInterval int
	next        int
	seeks       []time.Duration
	failAt      int
	audio       bool
	audioNext   bool
	period      time.Duration
}

func newFakeSource(frames int) *fakeSource {
	return &fakeSource{
		info: StreamInfo{
			Codec:     "fake",
			Width:     64,
			Height:    48,
			FrameRate: 25,
			Duration:  time.Duration(frames) * 40 * time.Millisecond,
		},
		frames:      frames,
		keyInterval: 10,
		failAt:      -1,
		period:      40 * time.Millisecond,
	}
}

func (source *fakeSource) withAudio() *fakeSource {
	source.audio = true
	source.info.HasAudio = true

	return source
}

// frameDuration is fixed at creation so the
// decoder needs no lock to read it.
func (source *fakeSource) frameDuration() time.Duration {
	return source.period
}

func (source *fakeSource) Info() StreamInfo {
	source.mu.Lock()
	defer source.mu.Unlock()

	return source.info
}

func (source *fakeSource) ReadPacket() (*Packet, bool, error) {
	source.mu.Lock()
	defer source.mu.Unlock()

	// every video packet is followed by the
	// audio packet of the same timestamp
	if source.audio && source.audioNext {
		source.audioNext = false
		pkt := NewPacket(1, StreamAudio, make([]byte, 8))
		pkt.PTS = time.Duration(source.next-1) * source.frameDuration()

		return pkt, true, nil
	}

	if source.next >= source.frames {
		return nil, false, nil
	}

	pts := time.Duration(source.next) * source.frameDuration()

	pkt := NewPacket(0, StreamVideo, make([]byte, 16))
	pkt.PTS = pts
	pkt.DTS = pts
	pkt.Duration = source.frameDuration()
	pkt.KeyFrame = source.next%source.keyInterval == 0
	source.next++
	source.audioNext = source.audio

	return pkt, true, nil
}

func (source *fakeSource) DecodeVideo(pkt *Packet, alloc FrameAllocator) (*Frame, bool, error) {
	if pkt == nil || pkt.EndOfStream {
		return nil, false, nil
	}

	source.mu.Lock()
	failAt := source.failAt
	width, height := source.info.Width, source.info.Height
	source.mu.Unlock()

	index := int(pkt.PTS / source.frameDuration())

	if index == failAt {
		return nil, false, errors.New("corrupt packet")
	}

	buf, err := alloc.Acquire(PixelFormatI420, width, height)

	if err != nil {
		return nil, false, err
	}

	buf.Planes[0][0] = byte(index)

	return NewFrame(buf, pkt.PTS, pkt.Duration), true, nil
}

func (source *fakeSource) DecodeAudio(pkt *Packet) (*AudioFrame, bool, error) {
	if pkt == nil || pkt.EndOfStream {
		return nil, false, nil
	}

	return &AudioFrame{PTS: pkt.PTS, Samples: make([]float32, 8)}, true, nil
}

func (source *fakeSource) Seek(target time.Duration) error {
	source.mu.Lock()
	defer source.mu.Unlock()

	index := int(target / source.frameDuration())
	index -= index % source.keyInterval

	source.next = min(index, source.frames)
	source.audioNext = false
	source.seeks = append(source.seeks, target)

	return nil
}

func (source *fakeSource) Close() error {
	return nil
}

// pooledFrame returns a frame of the pool.
func pooledFrame(pool *FramePool, format PixelFormat, width, height int, pts time.Duration) *Frame {
	buf, err := pool.Acquire(format, width, height)

	if err != nil {
		panic(err)
	}

	return NewFrame(buf, pts, 40*time.Millisecond)
}
