// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"os"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 44100
	testFrequency  = 440.0 // A4 note
)

var testMagnitudes []float64

func TestMain(m *testing.M) {
	testMagnitudes = make([]float64, testSize)

	// A "hill" with its peak at testSize/4.
	for i := range testMagnitudes {
		testMagnitudes[i] = math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2))
	}

	os.Exit(m.Run())
}

func TestSineWave(t *testing.T) {
	tests := []struct {
		name       string
		channels   int
		sampleRate float64
		frequency  float64
	}{
		{"A4 Note", 1, 44100, 440.0},
		{"Middle C", 1, 44100, 261.63},
		{"Stereo", 2, 48000, 440.0},
		{"High Sample Rate", 1, 192000, 440.0},
		{"Low Sample Rate", 1, 8000, 440.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SineWave(testSize, tt.channels, tt.sampleRate, tt.frequency, 0.5)

			if len(result) != testSize*tt.channels {
				t.Fatalf("SineWave() buffer size = %d, want %d", len(result), testSize*tt.channels)
			}

			// Two zero crossings per cycle, with 20% margin for phase alignment.
			samplesPerCycle := tt.sampleRate / tt.frequency
			crossCount := 0
			for i := 1; i < testSize; i++ {
				prev, cur := result[(i-1)*tt.channels], result[i*tt.channels]
				if (prev < 0 && cur >= 0) || (prev >= 0 && cur < 0) {
					crossCount++
				}
			}
			expectedCrossings := float64(testSize) / (samplesPerCycle / 2)
			tolerance := 0.2 * expectedCrossings
			if math.Abs(float64(crossCount)-expectedCrossings) > tolerance {
				t.Errorf("SineWave() zero crossings = %d, expected approximately %.1f±%.1f",
					crossCount, expectedCrossings, tolerance)
			}

			for i := 0; i < testSize; i++ {
				for c := 1; c < tt.channels; c++ {
					if result[i*tt.channels+c] != result[i*tt.channels] {
						t.Fatalf("channel %d differs at frame %d", c, i)
					}
				}
			}
		})
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name     string
		mags     []float64
		start    int
		end      int
		expected int
	}{
		{"Full Range", testMagnitudes, 0, testSize - 1, testSize / 4},
		{"Partial Range Start", testMagnitudes, testSize / 8, testSize - 1, testSize / 4},
		{"Partial Range End", testMagnitudes, 0, testSize / 3, testSize / 4},
		{"Negative Start", testMagnitudes, -10, testSize - 1, testSize / 4},
		{"Out of Range End", testMagnitudes, 0, testSize * 2, testSize / 4},
		{"Range Past Peak", testMagnitudes, testSize / 2, testSize - 1, testSize / 2},
		{"Empty Range", testMagnitudes, 10, 5, 0},
		{"Empty Slice", []float64{}, 0, 10, 0},
		{"Single Value", []float64{1.0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := FindPeakBin(tt.mags, tt.start, tt.end); result != tt.expected {
				t.Errorf("FindPeakBin() = %d, want %d", result, tt.expected)
			}
		})
	}
}
