// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for files that are not decodable PCM WAV.
var ErrInvalidWAV = errors.New("not a valid PCM wav file")

// LoadWAV decodes the whole PCM WAV file at path into a Buffer engine and
// returns it with the file's sample rate. Samples are normalised to [-1,1)
// by bit depth.
func LoadWAV(path string) (*Buffer, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open sample file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, 0, fmt.Errorf("%s: unsupported bit depth %d: %w", path, dec.BitDepth, ErrInvalidWAV)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	channels := int(dec.NumChans)
	if channels <= 0 {
		return nil, 0, fmt.Errorf("%s: no channels: %w", path, ErrInvalidWAV)
	}

	samples := make([]float32, len(pcm.Data))
	if dec.BitDepth == 8 {
		// 8-bit wav is unsigned
		for i, v := range pcm.Data {
			samples[i] = float32(v-128) / 128
		}
	} else {
		scale := float32(int64(1) << (dec.BitDepth - 1))
		for i, v := range pcm.Data {
			samples[i] = float32(v) / scale
		}
	}

	return NewBuffer(samples, channels), float64(dec.SampleRate), nil
}
