// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"hvstream/internal/session"

	"github.com/gordonklaus/portaudio"
)

var (
	mockHostAPI = &portaudio.HostApiInfo{Name: "Core Audio"}
	mockDevices = []*portaudio.DeviceInfo{
		{Name: "Built-in Microphone", MaxInputChannels: 2, DefaultSampleRate: 48000, HostApi: mockHostAPI},
		{
			Name:                     "Built-in Output",
			MaxOutputChannels:        2,
			DefaultSampleRate:        44100,
			DefaultLowOutputLatency:  5 * time.Millisecond,
			DefaultHighOutputLatency: 40 * time.Millisecond,
			HostApi:                  mockHostAPI,
		},
		{Name: "USB Interface", MaxInputChannels: 4, MaxOutputChannels: 4, DefaultSampleRate: 96000, HostApi: mockHostAPI},
	}
)

// mockPortAudio swaps the PortAudio entry points for the duration of a test.
func mockPortAudio(t *testing.T, devices []*portaudio.DeviceInfo, def *portaudio.DeviceInfo) {
	t.Helper()
	origDevices, origDefault := paLibDevicesFunc, paLibDefaultOutputDeviceFunc
	t.Cleanup(func() {
		paLibDevicesFunc, paLibDefaultOutputDeviceFunc = origDevices, origDefault
	})

	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return devices, nil }
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		if def == nil {
			return nil, portaudio.Error(-9996)
		}
		return def, nil
	}
}

func TestPortAudioDevices(t *testing.T) {
	mockPortAudio(t, mockDevices, mockDevices[1])

	devices, err := NewPortAudio().Devices()
	if err != nil {
		t.Fatalf("Devices error: %v", err)
	}
	if len(devices) != len(mockDevices) {
		t.Fatalf("got %d devices, want %d", len(devices), len(mockDevices))
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
		if d.HostAPI != "Core Audio" {
			t.Errorf("Device %d host API = %q", i, d.HostAPI)
		}
		if d.IsDefaultOutput != (i == 1) {
			t.Errorf("Device %d IsDefaultOutput = %v", i, d.IsDefaultOutput)
		}
	}
	if devices[1].DefaultLowOutputLatency != 5*time.Millisecond {
		t.Errorf("low latency = %v", devices[1].DefaultLowOutputLatency)
	}
}

func TestPortAudioDevices_paDevicesError(t *testing.T) {
	orig := paLibDevicesFunc
	defer func() { paLibDevicesFunc = orig }()
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock error")
	}

	_, err := NewPortAudio().Devices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestNilDevices(t *testing.T) {
	mockPortAudio(t, nil, nil)

	devices, err := paDevices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devices == nil {
		t.Errorf("expected empty slice, got nil")
	}
}

func TestOutputDevice(t *testing.T) {
	mockPortAudio(t, mockDevices, mockDevices[1])

	dev, err := OutputDevice(DefaultDeviceID)
	if err != nil || dev.Name != "Built-in Output" {
		t.Errorf("default output = %v, %v", dev, err)
	}
	if dev, err := OutputDevice(2); err != nil || dev.Name != "USB Interface" {
		t.Errorf("OutputDevice(2) = %v, %v", dev, err)
	}

	tests := []struct {
		name   string
		id     int
		substr string
	}{
		{"Negative ID", -2, "invalid device ID"},
		{"Too high ID", len(mockDevices) + 10, "invalid device ID"},
		{"Input-only device", 0, "does not support output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OutputDevice(tt.id)
			if err == nil {
				t.Fatalf("Expected error for ID %d", tt.id)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Error = %q, want substring %q", err.Error(), tt.substr)
			}
			if ErrorCode(err) != CodeInvalidDevice {
				t.Errorf("code = %d, want %d", ErrorCode(err), CodeInvalidDevice)
			}
			if errors.Is(err, ErrNoOutputDevice) {
				t.Error("explicit device errors must not report ErrNoOutputDevice")
			}
		})
	}
}

func TestOutputDeviceNoDefault(t *testing.T) {
	mockPortAudio(t, mockDevices[:1], nil)

	_, err := OutputDevice(DefaultDeviceID)
	if !errors.Is(err, ErrNoOutputDevice) {
		t.Fatalf("expected ErrNoOutputDevice, got %v", err)
	}
	if ErrorCode(err) != CodeInvalidDevice {
		t.Errorf("code = %d, want %d", ErrorCode(err), CodeInvalidDevice)
	}
}

func TestPortAudioOpenStream(t *testing.T) {
	mockPortAudio(t, mockDevices, mockDevices[1])

	var gotParams portaudio.StreamParameters
	var gotCallback func([]float32, portaudio.StreamCallbackTimeInfo, portaudio.StreamCallbackFlags)
	origOpen := paLibOpenStream
	defer func() { paLibOpenStream = origOpen }()
	paLibOpenStream = func(p portaudio.StreamParameters, cb any) (Stream, error) {
		gotParams = p
		gotCallback, _ = cb.(func([]float32, portaudio.StreamCallbackTimeInfo, portaudio.StreamCallbackFlags))
		return &fakeStream{}, nil
	}

	var seenFlags StatusFlags
	var seenTime time.Duration
	cb := func(out []float32, info TimeInfo, flags StatusFlags) session.Result {
		seenFlags, seenTime = flags, info.CurrentTime
		return session.Continue
	}

	b := NewPortAudio()
	if _, err := b.OpenStream(StreamParams{DeviceID: DefaultDeviceID, SampleRate: 44100, Channels: 1, FramesPerBuffer: 256, LowLatency: true}, cb); err != nil {
		t.Fatalf("OpenStream error: %v", err)
	}

	if gotParams.Flags != portaudio.ClipOff {
		t.Errorf("flags = %v, want ClipOff", gotParams.Flags)
	}
	if gotParams.Output.Latency != 5*time.Millisecond {
		t.Errorf("latency = %v, want low latency", gotParams.Output.Latency)
	}
	if gotParams.Output.Channels != 1 || gotParams.Input.Channels != 0 {
		t.Errorf("channels in=%d out=%d", gotParams.Input.Channels, gotParams.Output.Channels)
	}
	if gotParams.FramesPerBuffer != 256 || gotParams.SampleRate != 44100 {
		t.Errorf("unexpected params %+v", gotParams)
	}
	if gotCallback == nil {
		t.Fatal("callback has the wrong signature for the binding")
	}

	gotCallback(make([]float32, 256), portaudio.StreamCallbackTimeInfo{CurrentTime: time.Second}, portaudio.OutputUnderflow)
	if seenFlags != OutputUnderflow || seenTime != time.Second {
		t.Errorf("callback saw flags=%v time=%v", seenFlags, seenTime)
	}

	if _, err := b.OpenStream(StreamParams{DeviceID: DefaultDeviceID, SampleRate: 44100, Channels: 1}, cb); err != nil {
		t.Fatalf("OpenStream error: %v", err)
	}
	if gotParams.Output.Latency != 40*time.Millisecond {
		t.Errorf("latency = %v, want high latency", gotParams.Output.Latency)
	}
}

func TestPortAudioOpenStreamError(t *testing.T) {
	mockPortAudio(t, mockDevices, mockDevices[1])

	origOpen := paLibOpenStream
	defer func() { paLibOpenStream = origOpen }()
	paLibOpenStream = func(portaudio.StreamParameters, any) (Stream, error) {
		return nil, portaudio.Error(-9997)
	}

	_, err := NewPortAudio().OpenStream(StreamParams{DeviceID: DefaultDeviceID, SampleRate: 1, Channels: 1}, nil)
	if ErrorCode(err) != -9997 || ErrorOp(err) != "open" {
		t.Errorf("got code %d op %q from %v", ErrorCode(err), ErrorOp(err), err)
	}
}

func TestErrorInitialize(t *testing.T) {
	orig := paLibInitialize
	defer func() { paLibInitialize = orig }()

	paLibInitialize = func() error { return nil }
	if err := NewPortAudio().Initialize(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibInitialize = func() error { return portaudio.Error(-10000) }
	err := NewPortAudio().Initialize()
	if err == nil || ErrorCode(err) != -10000 || ErrorOp(err) != "initialize" {
		t.Errorf("expected initialize error with code -10000, got %v", err)
	}
}

func TestErrorTerminate(t *testing.T) {
	orig := paLibTerminate
	defer func() { paLibTerminate = orig }()

	paLibTerminate = func() error { return nil }
	if err := NewPortAudio().Terminate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibTerminate = func() error { return fmt.Errorf("mock term error") }
	if err := NewPortAudio().Terminate(); err == nil || !strings.Contains(err.Error(), "mock term error") {
		t.Errorf("expected mock term error, got %v", err)
	}
}

func TestListDevices(t *testing.T) {
	mockPortAudio(t, mockDevices, mockDevices[1])

	var buf bytes.Buffer
	if err := ListDevices(&buf, NewPortAudio()); err != nil {
		t.Fatalf("ListDevices error: %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "Built-in Microphone") {
		t.Error("input-only device listed")
	}
	for _, want := range []string{"[1] Built-in Output [default]", "[2] USB Interface", "Latency: Low=5.00ms, High=40.00ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestListDevicesNone(t *testing.T) {
	var buf bytes.Buffer
	if err := ListDevices(&buf, &Offline{NoDevice: true}); err != nil {
		t.Fatalf("ListDevices error: %v", err)
	}
	if !strings.Contains(buf.String(), "none") {
		t.Errorf("expected empty listing, got %q", buf.String())
	}
}

func TestNewBackend(t *testing.T) {
	for _, name := range BackendNames() {
		b, err := NewBackend(name)
		if err != nil {
			t.Fatalf("NewBackend(%q) error: %v", name, err)
		}
		if b.Name() != name {
			t.Errorf("NewBackend(%q).Name() = %q", name, b.Name())
		}
	}
	if _, err := NewBackend("alsa"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

type fakeStream struct {
	starts, stops, closes int
}

func (f *fakeStream) Start() error { f.starts++; return nil }
func (f *fakeStream) Stop() error  { f.stops++; return nil }
func (f *fakeStream) Close() error { f.closes++; return nil }
