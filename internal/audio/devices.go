// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"time"
)

// Device represents an audio device.
type Device struct {
	ID                       int
	Name                     string
	HostAPI                  string
	MaxInputChannels         int
	MaxOutputChannels        int
	DefaultSampleRate        float64
	DefaultLowOutputLatency  time.Duration
	DefaultHighOutputLatency time.Duration
	IsDefaultOutput          bool
}

// OutputDevices returns the devices of b that can play audio.
func OutputDevices(b Backend) ([]Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListDevices prints the output devices of b to w.
// For each device, it shows:
// - Device ID and name (default marked)
// - Host API
// - Channel count
// - Default sample rate
// - Latency range
func ListDevices(w io.Writer, b Backend) error {
	devices, err := OutputDevices(b)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Output Devices (%s)\n\n", b.Name())
	if len(devices) == 0 {
		fmt.Fprintln(w, "  none")
		return nil
	}

	for _, device := range devices {
		marker := ""
		if device.IsDefaultOutput {
			marker = " [default]"
		}
		fmt.Fprintf(w, "[%d] %s%s\n", device.ID, device.Name, marker)
		if device.HostAPI != "" {
			fmt.Fprintf(w, "    Host API: %s\n", device.HostAPI)
		}
		fmt.Fprintf(w, "    Output channels: %d\n", device.MaxOutputChannels)
		if device.DefaultSampleRate > 0 {
			fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		}
		if device.DefaultHighOutputLatency > 0 {
			fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
				device.DefaultLowOutputLatency.Seconds()*1000,
				device.DefaultHighOutputLatency.Seconds()*1000)
		}
		fmt.Fprintln(w)
	}

	return nil
}
