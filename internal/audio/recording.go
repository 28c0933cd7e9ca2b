// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Capture is a Sink that keeps everything written to it in memory.
type Capture struct {
	mu       sync.Mutex
	channels int
	samples  []float32
}

// NewCapture pre-allocates room for frames frames of channels channels.
func NewCapture(channels int, frames int64) *Capture {
	if channels <= 0 {
		channels = 1
	}
	return &Capture{
		channels: channels,
		samples:  make([]float32, 0, frames*int64(channels)),
	}
}

// Write appends a copy of samples. It runs on the callback thread, so the
// capacity given to NewCapture should cover the whole run.
func (c *Capture) Write(samples []float32) {
	c.mu.Lock()
	c.samples = append(c.samples, samples...)
	c.mu.Unlock()
}

// Samples returns a copy of the first frames frames captured; frames < 0
// returns everything.
func (c *Capture) Samples(frames int64) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(c.samples))
	if frames >= 0 && frames*int64(c.channels) < n {
		n = frames * int64(c.channels)
	}
	out := make([]float32, n)
	copy(out, c.samples[:n])
	return out
}

// Frames returns the number of whole frames captured.
func (c *Capture) Frames() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.samples) / c.channels)
}

// Channels returns the interleaved channel count.
func (c *Capture) Channels() int { return c.channels }

// WriteWAV encodes interleaved float samples in [-1,1] as a PCM WAV file.
// bitDepth is 8, 16, 24 or 32; out-of-range samples are clipped.
func WriteWAV(filename string, samples []float32, channels int, sampleRate float64, bitDepth int) error {
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
	if channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", channels)
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	encoder := wav.NewEncoder(file, int(sampleRate), bitDepth, channels, 1)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  int(sampleRate),
		},
		Data:           make([]int, len(samples)-len(samples)%channels),
		SourceBitDepth: bitDepth,
	}
	scale := float64(int64(1)<<(bitDepth-1)) - 1
	for i := range buf.Data {
		v := float64(samples[i])
		v = max(-1, min(1, v))
		if bitDepth == 8 {
			// 8-bit wav is unsigned
			buf.Data[i] = int(v*127) + 128
		} else {
			buf.Data[i] = int(v * scale)
		}
	}

	if err := encoder.Write(buf); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to finalise %s: %w", filename, err)
	}
	return file.Close()
}
