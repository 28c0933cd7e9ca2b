// SPDX-License-Identifier: MIT

// Package utils holds small signal helpers shared by analysis and tests.
package utils

import "math"

// SineWave returns frames of an interleaved sine at frequency Hz with the
// same value on every channel.
func SineWave(frames, channels int, sampleRate, frequency, amplitude float64) []float32 {
	if channels <= 0 {
		channels = 1
	}
	buffer := make([]float32, frames*channels)
	for i := range frames {
		t := float64(i) / sampleRate
		v := float32(amplitude * math.Sin(2*math.Pi*frequency*t))
		for c := range channels {
			buffer[i*channels+c] = v
		}
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin], clamping the range to the slice. Empty input or an
// empty range returns 0.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}
	if startBin > endBin {
		return 0
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
