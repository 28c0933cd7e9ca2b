// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"strings"
)

// Band is a frequency range [LowHz, HighHz).
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands cover the audible range. The last band extends to Nyquist.
var DefaultBands = []Band{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandEnergy is the share of total spectral energy (excluding DC) that
// falls into one band.
type BandEnergy struct {
	Band
	Share float64 // 0..1
}

// BandEnergies splits the current magnitudes into bands and writes one
// entry per band into dst, which must have len(bands) capacity to avoid
// allocating. Bins outside every band still count toward the total.
func (s *Spectrum) BandEnergies(bands []Band, dst []BandEnergy) []BandEnergy {
	dst = dst[:0]
	for _, b := range bands {
		dst = append(dst, BandEnergy{Band: b})
	}

	var total float64
	for i := 1; i < len(s.magnitude); i++ {
		e := s.magnitude[i] * s.magnitude[i]
		total += e
		freq := s.FrequencyForBin(i)
		for j := range dst {
			if freq >= dst[j].LowHz && freq < dst[j].HighHz {
				dst[j].Share += e
				break
			}
		}
	}
	if total == 0 {
		return dst
	}
	for j := range dst {
		dst[j].Share /= total
	}
	return dst
}

func formatBands(bands []BandEnergy) string {
	var sb strings.Builder
	for i, b := range bands {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=%.1f%%", b.Name, 100*b.Share)
	}
	return sb.String()
}
