package ffmpeg

// #cgo pkg-config: libavcodec libavutil
// #include <libavcodec/avcodec.h>
// #include <libavutil/frame.h>
import "C"

import (
	"math"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/zimwip/lensplay"
)

// Format of the decoded samples:
// interleaved float32 stereo.
const (
	SampleRate = 44100
	Channels   = 2
)

// AudioStream decodes the audio stream and
// resamples it through a filter graph.
type AudioStream struct {
	baseStream
	userFilter   string
	graph        *filterContext
	graphDrained bool
	filtered     *C.AVFrame
}

// Open opens the audio stream for decoding.
// The filter, when set, runs before the
// conversion to the output format.
func (audio *AudioStream) Open(filter string) error {
	if err := audio.open(); err != nil {
		return err
	}

	audio.userFilter = filter
	audio.filtered = C.av_frame_alloc()

	if audio.filtered == nil {
		return errors.New(
			"couldn't allocate a new frame")
	}

	return nil
}

// Decode feeds the packet to the decoder, nil
// to collect a pending frame, and returns the
// next block of samples if one is ready.
func (audio *AudioStream) Decode(pkt *lensplay.Packet) (*lensplay.AudioFrame, bool, error) {
	if pkt != nil {
		if err := audio.send(pkt); err != nil {
			return nil, false, err
		}
	}

	for {
		frame, ok, err := audio.pull()

		if err != nil || ok {
			return frame, ok, err
		}

		got, err := audio.receive()

		if err != nil {
			return nil, false, err
		}

		if !got {
			if !audio.draining || audio.graph == nil || audio.graphDrained {
				return nil, false, nil
			}

			audio.graphDrained = true

			if err := audio.graph.push(nil); err != nil {
				return nil, false, err
			}

			continue
		}

		if err := audio.filter(); err != nil {
			return nil, false, err
		}
	}
}

// filter pushes the decoded frame
// into the graph.
func (audio *AudioStream) filter() error {
	defer C.av_frame_unref(audio.frame)

	if audio.graph == nil {
		args, err := audioSourceArgs(audio.frame, audio.inner.time_base)

		if err != nil {
			return err
		}

		spec := buildAudioFilterSpec(audio.userFilter, "flt", SampleRate, "stereo")
		graph, err := initAudioFilterGraph(args, spec)

		if err != nil {
			return err
		}

		audio.graph = graph
		audio.graphDrained = false
	}

	pts := int64(audio.frame.best_effort_timestamp)

	if pts != noPTS {
		pts -= audio.startTime()
	}

	audio.frame.pts = C.int64_t(pts)

	return audio.graph.push(audio.frame)
}

// pull returns the next filtered frame.
func (audio *AudioStream) pull() (*lensplay.AudioFrame, bool, error) {
	if audio.graph == nil {
		return nil, false, nil
	}

	ok, err := audio.graph.pull(audio.filtered)

	if err != nil || !ok {
		return nil, false, err
	}

	defer C.av_frame_unref(audio.filtered)

	count := int(audio.filtered.nb_samples) * Channels
	samples := make([]float32, count)

	if count > 0 {
		copy(samples, unsafe.Slice((*float32)(unsafe.Pointer(audio.filtered.data[0])), count))
	}

	var pts time.Duration
	tb := audio.graph.timeBase()

	if p := int64(audio.filtered.pts); p != noPTS && tb.den != 0 {
		pts = time.Duration(math.Round(float64(p) * float64(tb.num) *
			float64(time.Second) / float64(tb.den)))
	}

	return &lensplay.AudioFrame{PTS: pts, Samples: samples}, true, nil
}

// flush drops the samples held by the
// decoder and the filter graph.
func (audio *AudioStream) flush() {
	audio.baseStream.flush()

	if audio.graph != nil {
		audio.graph.close()
		audio.graph = nil
	}
}

// Close closes the audio stream for decoding.
func (audio *AudioStream) Close() {
	if audio.graph != nil {
		audio.graph.close()
		audio.graph = nil
	}

	if audio.filtered != nil {
		C.av_frame_free(&audio.filtered)
	}

	audio.close()
}
