package ffmpeg

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/zimwip/lensplay"
)

// Options tune how a source decodes.
type Options struct {
	// NoAudio skips the audio stream.
	NoAudio bool
	// AudioFilter is an FFmpeg filter chain
	// run on the audio before resampling.
	AudioFilter string
	// Projection is the lens geometry of the
	// media, nil to let the player pick one.
	Projection *lensplay.ProjectionParameters
}

// Source plays a media container
// through the FFmpeg decoders.
type Source struct {
	media *Media
	info  lensplay.StreamInfo
}

var _ lensplay.Source = (*Source)(nil)

// Open opens the media file.
func Open(filename string, opts Options) (*Source, error) {
	media, err := NewMedia(filename)

	if err != nil {
		return nil, err
	}

	return newSource(media, opts)
}

// OpenReader opens the media read from the
// reader, which must stay open until the
// source is closed.
func OpenReader(reader io.ReadSeeker, opts Options) (*Source, error) {
	media, err := NewMediaFromReader(reader)

	if err != nil {
		return nil, err
	}

	return newSource(media, opts)
}

func newSource(media *Media, opts Options) (*Source, error) {
	video := media.VideoStream()

	if err := video.Open(); err != nil {
		media.Close()
		return nil, errors.Wrap(err, "couldn't open the video stream")
	}

	audio := media.AudioStream()

	if audio != nil && !opts.NoAudio {
		if err := audio.Open(opts.AudioFilter); err != nil {
			log.Warn().Err(err).Int(lStream, audio.Index()).Msg("audio disabled")
			audio.Close()
		}
	}

	source := &Source{
		media: media,
		info: lensplay.StreamInfo{
			Codec:      video.CodecName(),
			Width:      video.Width(),
			Height:     video.Height(),
			FrameRate:  video.FrameRate(),
			Duration:   media.Duration(),
			BitRate:    media.BitRate(),
			HasAudio:   audio != nil && audio.opened(),
			Projection: opts.Projection,
		},
	}

	if source.info.Duration == 0 {
		source.info.Duration = video.Duration()
	}

	log.Info().Str(lFormat, media.FormatName()).Str(lCodec, source.info.Codec).
		Int(lWidth, source.info.Width).Int(lHeight, source.info.Height).Msg("media opened")

	return source, nil
}

// Info returns the stream information.
func (source *Source) Info() lensplay.StreamInfo {
	return source.info
}

// ReadPacket reads the next packet.
func (source *Source) ReadPacket() (*lensplay.Packet, bool, error) {
	return source.media.ReadPacket()
}

// DecodeVideo decodes a video packet.
func (source *Source) DecodeVideo(pkt *lensplay.Packet, alloc lensplay.FrameAllocator) (*lensplay.Frame, bool, error) {
	return source.media.VideoStream().Decode(pkt, alloc)
}

// DecodeAudio decodes an audio packet.
func (source *Source) DecodeAudio(pkt *lensplay.Packet) (*lensplay.AudioFrame, bool, error) {
	audio := source.media.AudioStream()

	if audio == nil || !audio.opened() {
		return nil, false, nil
	}

	return audio.Decode(pkt)
}

// Seek moves to the key frame
// at or before target.
func (source *Source) Seek(target time.Duration) error {
	return source.media.Seek(target)
}

// Close closes the media.
func (source *Source) Close() error {
	source.media.Close()
	return nil
}

func frameDuration(rate float64) time.Duration {
	if rate <= 0 {
		return 0
	}

	return time.Duration(float64(time.Second) / rate)
}
