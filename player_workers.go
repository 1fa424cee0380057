package lensplay

import (
	"context"

	"github.com/pkg/errors"
)

// applySeek moves the source to the pending
// seek target, if any, and returns the serial
// the packets read next belong to.
func (p *Player) applySeek() (uint64, error) {
	p.seekMu.Lock()
	target := p.seekTarget
	p.seekTarget = nil
	serial := p.serial.Load()
	p.seekMu.Unlock()

	if target == nil {
		return serial, nil
	}

	p.sourceMu.Lock()
	err := p.source.Seek(*target)
	p.sourceMu.Unlock()

	if err != nil {
		return 0, errors.Wrapf(ErrDecode, "couldn't seek to %s: %v", *target, err)
	}

	p.endOfStream.Store(0)
	log.Debug().Dur(lTarget, *target).Uint64(lSerial, serial).Msg("source moved")

	return serial, nil
}

// stale reports whether a seek was requested
// since the serial was current.
func (p *Player) stale(serial uint64) bool {
	p.seekMu.Lock()
	defer p.seekMu.Unlock()

	return p.seekTarget != nil || p.serial.Load() != serial
}

func (p *Player) seekRequested() bool {
	p.seekMu.Lock()
	defer p.seekMu.Unlock()

	return p.seekTarget != nil
}

// demux reads the packets of the source
// into the packet queues.
func (p *Player) demux(ctx context.Context, sess *session) error {
	for ctx.Err() == nil {
		serial, err := p.applySeek()

		if err != nil {
			return err
		}

		videoSerial, audioSerial := sess.videoPackets.Serial(), sess.audioPackets.Serial()

		p.sourceMu.Lock()
		pkt, ok, err := p.source.ReadPacket()
		p.sourceMu.Unlock()

		if err != nil {
			return errors.Wrapf(ErrDecode, "couldn't read a packet: %v", err)
		}

		if p.stale(serial) {
			if ok {
				pkt.Release()
			}

			continue
		}

		if !ok {
			if err := p.endStream(ctx, sess, serial, videoSerial, audioSerial); err != nil {
				return nil
			}

			continue
		}

		p.packetsRead.Add(1)
		p.bytesRead.Add(int64(pkt.Size()))
		pkt.Serial = serial

		var queue *PacketQueue
		var queueSerial uint64

		switch {
		case pkt.Kind == StreamVideo:
			queue, queueSerial = sess.videoPackets, videoSerial
		case pkt.Kind == StreamAudio && p.info.HasAudio:
			queue, queueSerial = sess.audioPackets, audioSerial
		default:
			pkt.Release()
			continue
		}

		err = queue.PushSerialContext(ctx, pkt, queueSerial)

		switch {
		case err == nil:
		case errors.Is(err, ErrFlushed), errors.Is(err, ErrBackpressure):
			pkt.Release()
		default:
			pkt.Release()
			return nil
		}
	}

	return nil
}

// endStream queues the end of stream packets
// and waits for a seek. It fails when the
// session is over.
func (p *Player) endStream(ctx context.Context, sess *session, serial, videoSerial, audioSerial uint64) error {
	if p.endOfStream.Load() != serial+1 {
		p.endOfStream.Store(serial + 1)
		log.Debug().Uint64(lSerial, serial).Msg("end of stream")

		eos := NewEndOfStream(StreamVideo)
		eos.Serial = serial

		if err := sess.videoPackets.PushSerialContext(ctx, eos, videoSerial); errors.Is(err, ErrQueueClosed) {
			return err
		}

		if p.info.HasAudio {
			eos = NewEndOfStream(StreamAudio)
			eos.Serial = serial

			if err := sess.audioPackets.PushSerialContext(ctx, eos, audioSerial); errors.Is(err, ErrQueueClosed) {
				return err
			}
		}
	}

	for !p.seekRequested() {
		select {
		case <-sess.seekSignal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// decodeVideo turns the video packets
// into frames.
func (p *Player) decodeVideo(ctx context.Context, sess *session) error {
	alloc := contextAllocator{ctx: ctx, pool: sess.pool}
	var frames []*Frame

	for {
		pkt, err := sess.videoPackets.PopContext(ctx)

		if err != nil {
			return nil
		}

		frameSerial := sess.frames.Serial()
		frames, err = p.decodeVideoPacket(pkt, alloc, frames[:0])

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		if err := p.queueFrames(ctx, sess, pkt.Serial, frameSerial, frames); err != nil {
			return nil
		}

		if pkt.EndOfStream {
			p.streamDrained(pkt.Serial)
		}
	}
}

// decodeVideoPacket feeds the packet to the
// decoder and collects what it returns. The
// packet is dropped when a seek made it stale.
func (p *Player) decodeVideoPacket(pkt *Packet, alloc FrameAllocator, frames []*Frame) ([]*Frame, error) {
	defer pkt.Release()

	p.sourceMu.Lock()
	defer p.sourceMu.Unlock()

	if pkt.Serial != p.serial.Load() {
		return frames, nil
	}

	frame, ok, err := p.source.DecodeVideo(pkt, alloc)

	for err == nil && ok {
		frame.Serial = pkt.Serial
		frames = append(frames, frame)
		frame, ok, err = p.source.DecodeVideo(nil, alloc)
	}

	if err != nil {
		for _, frame := range frames {
			frame.Release()
		}

		return frames[:0], errors.Wrapf(ErrDecode, "couldn't decode the video packet at %s: %v", pkt.PTS, err)
	}

	return frames, nil
}

// queueFrames hands the decoded frames to
// the renderer, dropping the ones before the
// target of the last seek. It fails when the
// session is over.
func (p *Player) queueFrames(ctx context.Context, sess *session, serial, frameSerial uint64, frames []*Frame) error {
	floor := p.floor.Load()

	for i, frame := range frames {
		p.framesDecoded.Add(1)

		if floor != nil && floor.serial == serial && frame.PTS < floor.target {
			p.framesSkipped.Add(1)
			frame.Release()

			continue
		}

		err := sess.frames.PushSerialContext(ctx, frame, frameSerial)

		switch {
		case err == nil:
			p.pushedSerial.Store(serial + 1)

			select {
			case p.frameReady <- struct{}{}:
			default:
			}

		case errors.Is(err, ErrFlushed), errors.Is(err, ErrBackpressure):
			frame.Release()

		default:
			for _, frame := range frames[i:] {
				frame.Release()
			}

			return err
		}
	}

	return nil
}

// streamDrained marks the end of the stream
// as decoded. A seek past the last frame
// completes here.
func (p *Player) streamDrained(serial uint64) {
	p.seekMu.Lock()
	current := p.serial.Load() == serial
	pending := p.pendingSeek

	if current && pending != nil && pending.serial == serial && p.pushedSerial.Load() != serial+1 {
		p.pendingSeek = nil
	} else {
		pending = nil
	}

	p.seekMu.Unlock()

	if !current {
		return
	}

	p.drained.Store(serial + 1)
	log.Debug().Uint64(lSerial, serial).Msg("stream drained")

	if pending != nil {
		pending.complete(ErrEndOfStream)
	}
}

// decodeAudio turns the audio packets into
// samples for the audio sink.
func (p *Player) decodeAudio(ctx context.Context, sess *session) error {
	for {
		pkt, err := sess.audioPackets.PopContext(ctx)

		if err != nil {
			return nil
		}

		sampleSerial := sess.samples.Serial()
		frames, err := p.decodeAudioPacket(pkt)

		if err != nil {
			return err
		}

		floor := p.floor.Load()

		for _, frame := range frames {
			if floor != nil && floor.serial == frame.Serial && frame.PTS < floor.target {
				continue
			}

			err := sess.samples.PushSerialContext(ctx, frame, sampleSerial)

			if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
		}
	}
}

func (p *Player) decodeAudioPacket(pkt *Packet) ([]*AudioFrame, error) {
	defer pkt.Release()

	p.sourceMu.Lock()
	defer p.sourceMu.Unlock()

	if pkt.Serial != p.serial.Load() {
		return nil, nil
	}

	var frames []*AudioFrame

	frame, ok, err := p.source.DecodeAudio(pkt)

	for err == nil && ok {
		frame.Serial = pkt.Serial
		frames = append(frames, frame)
		frame, ok, err = p.source.DecodeAudio(nil)
	}

	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "couldn't decode the audio packet at %s: %v", pkt.PTS, err)
	}

	return frames, nil
}
