package audio

import (
	"encoding/binary"
	"testing"
)

// TestResamplerClipAndScale verifies the clip+scale boundary: one second of
// constant full-scale input at 48 kHz must come out as exactly 20 frames of
// 800 samples, every sample 0x7FFF.
func TestResamplerClipAndScale(t *testing.T) {
	out := make(chan []byte, 32)
	r, err := NewResampler(48000, out)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}

	block := make([]float32, 48000)
	for i := range block {
		block[i] = 1.0
	}
	if !r.Process(block) {
		t.Fatalf("Process returned false")
	}

	frames := len(out)
	if frames != 20 {
		t.Fatalf("frame count mismatch: want=20 got=%d", frames)
	}
	for fi := 0; fi < frames; fi++ {
		f := <-out
		if len(f) != FrameBytes {
			t.Fatalf("frame %d length mismatch: want=%d got=%d", fi, FrameBytes, len(f))
		}
		for s := 0; s < FrameSamples; s++ {
			v := int16(binary.LittleEndian.Uint16(f[s*2:]))
			if v != 0x7FFF {
				t.Fatalf("frame %d sample %d: want=0x7FFF got=%#x", fi, s, uint16(v))
			}
		}
	}
}

// TestResamplerClipsOutOfRange confirms samples outside [-1, 1] are clipped
// before scaling rather than wrapping.
func TestResamplerClipsOutOfRange(t *testing.T) {
	out := make(chan []byte, 4)
	r, err := NewResampler(16000, out)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	block := make([]float32, FrameSamples)
	for i := range block {
		if i%2 == 0 {
			block[i] = 5.0
		} else {
			block[i] = -5.0
		}
	}
	r.Process(block)
	if len(out) != 1 {
		t.Fatalf("expected one frame, got %d", len(out))
	}
	f := <-out
	for s := 0; s < FrameSamples; s++ {
		v := int16(binary.LittleEndian.Uint16(f[s*2:]))
		if s%2 == 0 && v != 32767 {
			t.Fatalf("sample %d: want=32767 got=%d", s, v)
		}
		if s%2 == 1 && v != -32767 {
			t.Fatalf("sample %d: want=-32767 got=%d", s, v)
		}
	}
}

// TestResamplerFractionalRatio checks a non-integer decimation ratio
// (44100/16000) still yields the right output sample count.
func TestResamplerFractionalRatio(t *testing.T) {
	out := make(chan []byte, 32)
	r, err := NewResampler(44100, out)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	r.Process(make([]float32, 44100))
	if len(out) != 20 {
		t.Fatalf("frame count mismatch: want=20 got=%d", len(out))
	}
}

func TestResamplerSilentQuantum(t *testing.T) {
	out := make(chan []byte, 1)
	r, err := NewResampler(48000, out)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	if !r.Process(nil) {
		t.Fatalf("silent quantum must keep the stage alive")
	}
	if len(out) != 0 {
		t.Fatalf("silent quantum produced a frame")
	}
}

// TestResamplerDropsWhenConsumerBehind verifies the handoff never blocks:
// with a full channel the completed frame is dropped and counted.
func TestResamplerDropsWhenConsumerBehind(t *testing.T) {
	out := make(chan []byte, 1)
	r, err := NewResampler(16000, out)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	r.Process(make([]float32, FrameSamples*3))
	if len(out) != 1 {
		t.Fatalf("expected exactly one queued frame, got %d", len(out))
	}
	if got := r.Dropped(); got != 2 {
		t.Fatalf("dropped count mismatch: want=2 got=%d", got)
	}
}

func TestNewResamplerRejectsLowRate(t *testing.T) {
	if _, err := NewResampler(8000, make(chan []byte, 1)); err == nil {
		t.Fatalf("expected an error for 8 kHz native rate")
	}
}
