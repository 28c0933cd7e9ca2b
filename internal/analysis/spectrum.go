// SPDX-License-Identifier: MIT
/*
Package analysis inspects rendered output offline: level (peak, RMS) and the
dominant frequency of a channel via a windowed FFT. It is never called from the
real-time callback; renders are analysed after the stream has stopped.
*/
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"hvstream/pkg/bitint"
	"hvstream/pkg/utils"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// MaxFFTSize caps the analysis window of Analyze.
const MaxFFTSize = 1 << 16

// WindowFunc selects the FFT window function.
type WindowFunc int

// Windows available from gonum's dsp/window package.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

// Errors returned by Analyze and NewSpectrum.
var (
	ErrNoSamples  = errors.New("no samples to analyse")
	ErrFFTSize    = errors.New("fft size must be a power of 2")
	ErrSampleRate = errors.New("sample rate must be positive")
)

// Report summarises one rendered signal.
type Report struct {
	Frames     int     // frames analysed for level
	Channels   int     // interleaved channel count
	Peak       float64 // max |sample| over all channels
	RMS        float64 // RMS over all channels
	FFTSize    int     // frames of channel 0 used for the spectrum
	DominantHz float64 // centre frequency of the strongest non-DC bin
	Resolution float64 // bin width in Hz
	Bands      []BandEnergy
}

// String formats the report for the render command's output.
func (r Report) String() string {
	s := fmt.Sprintf("frames=%d channels=%d peak=%.4f rms=%.4f dominant=%.1fHz (±%.1fHz, fft=%d)",
		r.Frames, r.Channels, r.Peak, r.RMS, r.DominantHz, r.Resolution/2, r.FFTSize)
	if len(r.Bands) > 0 {
		s += "\nbands: " + formatBands(r.Bands)
	}
	return s
}

// Analyze computes a Report for interleaved samples with a Hann window.
func Analyze(samples []float32, channels int, sampleRate float64) (Report, error) {
	return AnalyzeWith(samples, channels, sampleRate, Hann)
}

// AnalyzeWith is Analyze with an explicit window function.
func AnalyzeWith(samples []float32, channels int, sampleRate float64, windowType WindowFunc) (Report, error) {
	if channels <= 0 {
		channels = 1
	}
	frames := len(samples) / channels
	if frames == 0 {
		return Report{}, ErrNoSamples
	}

	r := Report{Frames: frames, Channels: channels}
	var sumSquares float64
	for _, s := range samples[:frames*channels] {
		v := float64(s)
		sumSquares += v * v
		if a := math.Abs(v); a > r.Peak {
			r.Peak = a
		}
	}
	r.RMS = math.Sqrt(sumSquares / float64(frames*channels))

	size := bitint.PrevPowerOfTwo(frames)
	if size > MaxFFTSize {
		size = MaxFFTSize
	}
	if size < 2 {
		return r, nil
	}

	sp, err := NewSpectrum(size, sampleRate, windowType)
	if err != nil {
		return r, err
	}
	sp.ProcessInterleaved(samples, channels, 0)
	r.FFTSize = size
	r.Resolution = sampleRate / float64(size)
	r.DominantHz = sp.DominantFrequency()
	r.Bands = sp.BandEnergies(DefaultBands, nil)
	return r, nil
}

// Spectrum holds pre-allocated buffers for repeated FFTs of one size.
type Spectrum struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	input      []float64
	coeffs     []complex128
	magnitude  []float64
	window     []float64
}

// NewSpectrum prepares an FFT of size points (a power of 2).
func NewSpectrum(size int, sampleRate float64, windowType WindowFunc) (*Spectrum, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("%w, got %d", ErrFFTSize, size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w, got %f", ErrSampleRate, sampleRate)
	}
	coeffs := make([]float64, size)
	applyWindow(coeffs, windowType)

	return &Spectrum{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
		magnitude:  make([]float64, size/2+1),
		window:     coeffs,
	}, nil
}

// ProcessInterleaved windows channel ch of the interleaved samples and
// computes magnitudes. Missing frames are zero padded.
func (s *Spectrum) ProcessInterleaved(samples []float32, channels, ch int) {
	for i := range s.size {
		idx := i*channels + ch
		if idx < len(samples) {
			s.input[i] = float64(samples[idx]) * s.window[i]
		} else {
			s.input[i] = 0
		}
	}
	s.fft.Coefficients(s.coeffs, s.input)
	for i, c := range s.coeffs {
		s.magnitude[i] = cmplx.Abs(c)
	}
}

// Magnitudes returns the magnitude buffer; it is overwritten by the next
// ProcessInterleaved call.
func (s *Spectrum) Magnitudes() []float64 { return s.magnitude }

// FrequencyForBin returns the centre frequency in Hz of bin i.
func (s *Spectrum) FrequencyForBin(i int) float64 {
	if i < 0 || i >= len(s.magnitude) {
		return 0
	}
	return s.fft.Freq(i) * s.sampleRate
}

// DominantFrequency returns the centre frequency of the strongest bin,
// ignoring DC.
func (s *Spectrum) DominantFrequency() float64 {
	return s.FrequencyForBin(utils.FindPeakBin(s.magnitude, 1, len(s.magnitude)-1))
}

// ParseWindowFunc converts a window name (case-insensitive) to a WindowFunc.
// Unknown names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown window function name: %q", name)
	}
}

func applyWindow(coeffs []float64, windowType WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}
