package audio

import (
	"fmt"

	"github.com/hraban/opus"
)

// opusRate is the decode rate for compressed ingest. Browser encoders
// (MediaRecorder, RTC tracks) produce 48 kHz opus regardless of the
// capture device rate.
const opusRate = 48000

// OpusIngest decodes compressed microphone packets into native-rate
// samples and feeds them through a Resampler. It exists for clients that
// cannot ship raw float32 blocks and negotiate opus on the relay socket
// instead.
type OpusIngest struct {
	dec *opus.Decoder
	pcm []int16
	buf []float32
	res *Resampler
}

// NewOpusIngest creates a decoder feeding the given resampler. The
// resampler must have been constructed with a 48 kHz native rate.
func NewOpusIngest(res *Resampler) (*OpusIngest, error) {
	if res == nil {
		return nil, fmt.Errorf("nil resampler")
	}
	if res.NativeRate() != opusRate {
		return nil, fmt.Errorf("opus ingest requires a %d Hz resampler, got %d", opusRate, res.NativeRate())
	}
	dec, err := opus.NewDecoder(opusRate, 1)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &OpusIngest{
		dec: dec,
		// 120 ms at 48 kHz is the maximum opus frame size.
		pcm: make([]int16, opusRate/1000*120),
		buf: make([]float32, opusRate/1000*120),
		res: res,
	}, nil
}

// Decode decompresses one opus packet and pushes the samples into the
// resampler. Decode errors are returned to the caller; the ingest stays
// usable for subsequent packets.
func (o *OpusIngest) Decode(packet []byte) error {
	n, err := o.dec.Decode(packet, o.pcm)
	if err != nil {
		return fmt.Errorf("opus decode: %w", err)
	}
	for i := 0; i < n; i++ {
		o.buf[i] = float32(o.pcm[i]) / 32768
	}
	o.res.Process(o.buf[:n])
	return nil
}
