package ffmpeg

/*
#cgo pkg-config: libavfilter libavutil libavcodec
#include <stdlib.h>
#include <libavfilter/avfilter.h>
#include <libavfilter/buffersink.h>
#include <libavfilter/buffersrc.h>
#include <libavcodec/avcodec.h>
#include <libavutil/channel_layout.h>
#include <libavutil/samplefmt.h>

// describeLayout writes the channel layout of the frame,
// guessing the default one when the order is unspecified.
static int describeLayout(AVFrame *frame, char *buf, size_t size) {
    AVChannelLayout layout = {0};
    int ret;

    if (frame->ch_layout.order == AV_CHANNEL_ORDER_UNSPEC) {
        av_channel_layout_default(&layout, frame->ch_layout.nb_channels);
    } else if (av_channel_layout_copy(&layout, &frame->ch_layout) < 0) {
        return -1;
    }

    ret = av_channel_layout_describe(&layout, buf, size);
    av_channel_layout_uninit(&layout);

    return ret;
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
)

// filterContext holds the AVFilterGraph and endpoint contexts
type filterContext struct {
	graph      *C.AVFilterGraph
	bufferSrc  *C.AVFilterContext
	bufferSink *C.AVFilterContext
}

// buildAudioFilterSpec builds the audio filter description string
func buildAudioFilterSpec(userFilter string, sampleFmt string, sampleRate int, channelLayout string) string {
	formatFilter := fmt.Sprintf("aformat=sample_fmts=%s:sample_rates=%d:channel_layouts=%s",
		sampleFmt, sampleRate, channelLayout)
	if userFilter == "" {
		return formatFilter
	}
	return fmt.Sprintf("%s,%s", userFilter, formatFilter)
}

// audioSourceArgs describes the decoded frames
// to the abuffer filter.
func audioSourceArgs(frame *C.AVFrame, timeBase C.AVRational) (string, error) {
	var layout [64]C.char

	if status := C.describeLayout(frame, &layout[0], C.size_t(len(layout))); status < 0 {
		return "", errors.Errorf("%d: couldn't describe the channel layout", status)
	}

	sampleFmt := C.av_get_sample_fmt_name(C.enum_AVSampleFormat(frame.format))

	if sampleFmt == nil {
		return "", errors.Errorf("unknown sample format %d", frame.format)
	}

	return fmt.Sprintf("time_base=%d/%d:sample_rate=%d:sample_fmt=%s:channel_layout=%s",
		timeBase.num, timeBase.den, frame.sample_rate,
		C.GoString(sampleFmt), C.GoString(&layout[0])), nil
}

// initAudioFilterGraph creates an audio filter graph
// running the filterSpec chain on frames described by args.
func initAudioFilterGraph(args, filterSpec string) (*filterContext, error) {
	fc := &filterContext{}

	fc.graph = C.avfilter_graph_alloc()
	if fc.graph == nil {
		return nil, errors.New("couldn't allocate filter graph")
	}

	cSrcName := C.CString("abuffer")
	defer C.free(unsafe.Pointer(cSrcName))
	cSinkName := C.CString("abuffersink")
	defer C.free(unsafe.Pointer(cSinkName))

	bufferSrc := C.avfilter_get_by_name(cSrcName)
	bufferSink := C.avfilter_get_by_name(cSinkName)
	if bufferSrc == nil || bufferSink == nil {
		fc.close()
		return nil, errors.New("couldn't find buffer filters")
	}

	cArgs := C.CString(args)
	defer C.free(unsafe.Pointer(cArgs))
	cIn := C.CString("in")
	defer C.free(unsafe.Pointer(cIn))

	status := C.avfilter_graph_create_filter(&fc.bufferSrc, bufferSrc, cIn,
		cArgs, nil, fc.graph)
	if status < 0 {
		fc.close()
		return nil, errors.Errorf("%d: couldn't create buffer source", status)
	}

	cOut := C.CString("out")
	defer C.free(unsafe.Pointer(cOut))

	status = C.avfilter_graph_create_filter(&fc.bufferSink, bufferSink, cOut,
		nil, nil, fc.graph)
	if status < 0 {
		fc.close()
		return nil, errors.Errorf("%d: couldn't create buffer sink", status)
	}

	// avfilter_graph_parse_ptr takes ownership of the inout
	// structures, so they are only freed after it returns.
	outputs := C.avfilter_inout_alloc()
	inputs := C.avfilter_inout_alloc()

	outputs.name = C.av_strdup(cIn)
	outputs.filter_ctx = fc.bufferSrc
	outputs.pad_idx = 0
	outputs.next = nil

	inputs.name = C.av_strdup(cOut)
	inputs.filter_ctx = fc.bufferSink
	inputs.pad_idx = 0
	inputs.next = nil

	cFilterSpec := C.CString(filterSpec)
	status = C.avfilter_graph_parse_ptr(fc.graph, cFilterSpec, &inputs, &outputs, nil)
	C.free(unsafe.Pointer(cFilterSpec))

	C.avfilter_inout_free(&inputs)
	C.avfilter_inout_free(&outputs)

	if status < 0 {
		fc.close()
		return nil, errors.Errorf("%d: couldn't parse filter graph %q", status, filterSpec)
	}

	status = C.avfilter_graph_config(fc.graph, nil)
	if status < 0 {
		fc.close()
		return nil, errors.Errorf("%d: couldn't configure filter graph", status)
	}

	return fc, nil
}

// push hands the frame to the graph,
// nil to flush it.
func (fc *filterContext) push(frame *C.AVFrame) error {
	status := C.av_buffersrc_add_frame(fc.bufferSrc, frame)

	if status < 0 {
		return errors.Errorf("%d: couldn't feed the filter graph", status)
	}

	return nil
}

// pull reads the next filtered frame.
// It returns false when the graph
// needs more input.
func (fc *filterContext) pull(frame *C.AVFrame) (bool, error) {
	status := C.av_buffersink_get_frame(fc.bufferSink, frame)

	switch {
	case status == C.int(ErrorAgain), status == C.int(ErrorEndOfFile):
		return false, nil
	case status < 0:
		return false, errors.Errorf("%d: couldn't read the filter graph", status)
	}

	return true, nil
}

// timeBase returns the time base
// of the filtered frames.
func (fc *filterContext) timeBase() C.AVRational {
	return C.av_buffersink_get_time_base(fc.bufferSink)
}

// close frees the filter graph resources
func (fc *filterContext) close() {
	if fc.graph != nil {
		C.avfilter_graph_free(&fc.graph)
		fc.graph = nil
	}
}
