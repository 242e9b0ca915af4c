package audio

import (
	"fmt"
	"sync/atomic"
)

// Canonical frame format for the transcription pipeline: 16 kHz mono,
// signed 16-bit little-endian PCM, 800 samples (50 ms) per frame.
const (
	SampleRate   = 16000
	FrameSamples = 800
	FrameBytes   = FrameSamples * 2
)

// Resampler converts a continuous native-rate sample stream into
// fixed-size PCM16 frames using nearest-neighbor decimation. There is no
// anti-aliasing filter: the trade is speech clarity for near-zero added
// latency, which is the right call for an STT feed.
//
// The Process entry point is designed to be driven by a host audio
// callback. It never blocks, performs no I/O, and only mutates a small
// rolling frame buffer. Completed frames are handed off with a single
// non-blocking channel post; when the consumer is behind the frame is
// dropped and a counter incremented rather than stalling the callback.
type Resampler struct {
	nativeRate int
	ratio      float64
	acc        float64

	frame   []byte
	filled  int
	out     chan<- []byte
	dropped int64
}

// NewResampler creates a resampler for the given native rate. Completed
// frames are posted to out; ownership of each posted slice transfers to
// the receiver and the resampler never touches it again.
func NewResampler(nativeRate int, out chan<- []byte) (*Resampler, error) {
	if nativeRate < SampleRate {
		return nil, fmt.Errorf("native rate %d below target %d", nativeRate, SampleRate)
	}
	if out == nil {
		return nil, fmt.Errorf("nil frame channel")
	}
	return &Resampler{
		nativeRate: nativeRate,
		ratio:      float64(nativeRate) / float64(SampleRate),
		frame:      make([]byte, FrameBytes),
		out:        out,
	}, nil
}

// Process consumes one block of native-rate mono float32 samples. It
// returns true always: an empty block (no input channel this quantum)
// produces nothing but keeps the stage alive for the host scheduler.
func (r *Resampler) Process(block []float32) bool {
	if len(block) == 0 {
		return true
	}
	for _, s := range block {
		r.acc++
		if r.acc < r.ratio {
			continue
		}
		r.acc -= r.ratio
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		r.frame[r.filled*2] = byte(v)
		r.frame[r.filled*2+1] = byte(uint16(v) >> 8)
		r.filled++
		if r.filled == FrameSamples {
			r.post()
		}
	}
	return true
}

// post hands the completed frame to the outbound transport without
// blocking. The frame buffer is replaced, not reused: the receiver owns
// the posted slice exclusively.
func (r *Resampler) post() {
	f := r.frame
	r.frame = make([]byte, FrameBytes)
	r.filled = 0
	select {
	case r.out <- f:
	default:
		atomic.AddInt64(&r.dropped, 1)
	}
}

// Dropped reports how many completed frames were discarded because the
// outbound channel was full.
func (r *Resampler) Dropped() int64 {
	return atomic.LoadInt64(&r.dropped)
}

// NativeRate returns the configured input rate.
func (r *Resampler) NativeRate() int { return r.nativeRate }
