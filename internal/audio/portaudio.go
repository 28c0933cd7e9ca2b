// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio library entry points, replaced in tests.
var (
	paLibInitialize              = portaudio.Initialize
	paLibTerminate               = portaudio.Terminate
	paLibDevicesFunc             = portaudio.Devices
	paLibDefaultOutputDeviceFunc = portaudio.DefaultOutputDevice
	paLibOpenStream              = func(p portaudio.StreamParameters, cb any) (Stream, error) {
		s, err := portaudio.OpenStream(p, cb)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

// PortAudio is the hardware backend.
type PortAudio struct{}

// NewPortAudio returns the PortAudio backend. Call Initialize before use
// and Terminate when done.
func NewPortAudio() *PortAudio { return &PortAudio{} }

// Name returns BackendPortAudio.
func (*PortAudio) Name() string { return BackendPortAudio }

// Initialize sets up the PortAudio subsystem.
// It must be paired with a Terminate call.
func (*PortAudio) Initialize() error {
	if err := paLibInitialize(); err != nil {
		return newStreamError("initialize", fmt.Errorf("failed to initialize PortAudio: %w", err))
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem.
func (*PortAudio) Terminate() error {
	if err := paLibTerminate(); err != nil {
		return newStreamError("terminate", fmt.Errorf("failed to terminate PortAudio: %w", err))
	}
	return nil
}

// Devices returns every device PortAudio reports, input-only ones included.
func (*PortAudio) Devices() ([]Device, error) {
	infos, err := paDevices()
	if err != nil {
		return nil, err
	}
	def, _ := paLibDefaultOutputDeviceFunc()

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                       i,
			Name:                     info.Name,
			MaxInputChannels:         info.MaxInputChannels,
			MaxOutputChannels:        info.MaxOutputChannels,
			DefaultSampleRate:        info.DefaultSampleRate,
			DefaultLowOutputLatency:  info.DefaultLowOutputLatency,
			DefaultHighOutputLatency: info.DefaultHighOutputLatency,
			IsDefaultOutput:          sameDevice(info, def),
		}
		if info.HostApi != nil {
			devices[i].HostAPI = info.HostApi.Name
		}
	}
	return devices, nil
}

// OutputDevice retrieves the output device for deviceID.
// DefaultDeviceID (-1) selects the system default output device.
func OutputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == DefaultDeviceID {
		device, err := paLibDefaultOutputDeviceFunc()
		if err != nil || device == nil || device.MaxOutputChannels <= 0 {
			return nil, &StreamError{Op: "open", Code: CodeInvalidDevice, Err: ErrNoOutputDevice}
		}
		return device, nil
	}

	devices, err := paDevices()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, &StreamError{Op: "open", Code: CodeInvalidDevice, Err: fmt.Errorf("invalid device ID: %d", deviceID)}
	}
	device := devices[deviceID]
	if device.MaxOutputChannels <= 0 {
		return nil, &StreamError{Op: "open", Code: CodeInvalidDevice,
			Err: fmt.Errorf("device %d (%s) does not support output", deviceID, device.Name)}
	}
	return device, nil
}

// OpenStream opens an output-only float32 stream with clipping disabled.
// The binding's callbacks cannot return paComplete, so completion reaches
// the control thread through the session instead of the stream.
func (*PortAudio) OpenStream(p StreamParams, cb Callback) (Stream, error) {
	if err := p.validate(); err != nil {
		return nil, newStreamError("open", err)
	}
	device, err := OutputDevice(p.DeviceID)
	if err != nil {
		return nil, newStreamError("open", err)
	}

	latency := device.DefaultHighOutputLatency
	if p.LowLatency {
		latency = device.DefaultLowOutputLatency
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: p.Channels,
			Latency:  latency,
		},
		SampleRate:      p.SampleRate,
		FramesPerBuffer: p.FramesPerBuffer,
		Flags:           portaudio.ClipOff,
	}

	process := func(out []float32, ti portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		cb(out, TimeInfo{
			InputBufferAdcTime:  ti.InputBufferAdcTime,
			CurrentTime:         ti.CurrentTime,
			OutputBufferDacTime: ti.OutputBufferDacTime,
		}, StatusFlags(flags))
	}

	stream, err := paLibOpenStream(params, process)
	if err != nil {
		return nil, newStreamError("open", err)
	}
	return &paStream{stream: stream}, nil
}

type paStream struct {
	stream Stream
}

func (s *paStream) Start() error { return newStreamError("start", s.stream.Start()) }
func (s *paStream) Stop() error  { return newStreamError("stop", s.stream.Stop()) }
func (s *paStream) Close() error { return newStreamError("close", s.stream.Close()) }

func sameDevice(a, b *portaudio.DeviceInfo) bool {
	if a == nil || b == nil {
		return false
	}
	return a == b || (a.Name == b.Name && a.HostApi == b.HostApi)
}

// paDevices returns all PortAudio devices, never nil on success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}
