package voice

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrMicUnavailable means the microphone could not be opened
var ErrMicUnavailable = errors.New("microphone unavailable")

// Source is a capture device delivering interleaved int16 samples
type Source interface {
	Start(onSamples func([]int16)) error
	Stop() error
}

// DefaultDevice selects the system default input device
const DefaultDevice = -1

// MicrophoneConfig selects and shapes the PortAudio input stream
type MicrophoneConfig struct {
	DeviceID        int // PortAudio device index, DefaultDevice for the system default
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// Microphone captures from a PortAudio input device. Each Start initializes
// PortAudio and each Stop terminates it.
type Microphone struct {
	config MicrophoneConfig

	mu     sync.Mutex
	stream *portaudio.Stream
}

func NewMicrophone(cfg MicrophoneConfig) *Microphone {
	return &Microphone{config: cfg}
}

// Start opens the input stream. Every failure is reported as
// ErrMicUnavailable wrapping the PortAudio error.
func (m *Microphone) Start(onSamples func([]int16)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return fmt.Errorf("microphone already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: failed to initialize PortAudio: %v", ErrMicUnavailable, err)
	}

	params, err := m.inputParams()
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrMicUnavailable, err)
	}

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		// PortAudio reuses the buffer between callbacks
		samples := make([]int16, len(in))
		copy(samples, in)
		onSamples(samples)
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: failed to open audio stream: %v", ErrMicUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: failed to start audio stream: %v", ErrMicUnavailable, err)
	}

	m.stream = stream
	return nil
}

// Stop halts capture and releases PortAudio
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}
	defer func() {
		m.stream = nil
		portaudio.Terminate()
	}()

	if err := m.stream.Stop(); err != nil {
		m.stream.Close()
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}
	if err := m.stream.Close(); err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}
	return nil
}

func (m *Microphone) inputParams() (portaudio.StreamParameters, error) {
	var device *portaudio.DeviceInfo

	if m.config.DeviceID != DefaultDevice {
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get audio devices: %w", err)
		}
		device, err = findInputDevice(devices, m.config.DeviceID)
		if err != nil {
			return portaudio.StreamParameters{}, err
		}
		slog.Info("Using specified audio device",
			"deviceID", m.config.DeviceID,
			"deviceName", device.Name,
			"sampleRate", device.DefaultSampleRate,
			"inputChannels", device.MaxInputChannels)
	} else {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get default input device: %w", err)
		}
		slog.Info("Using default audio device",
			"deviceName", device.Name,
			"sampleRate", device.DefaultSampleRate,
			"inputChannels", device.MaxInputChannels)
	}

	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: m.config.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(m.config.SampleRate),
		FramesPerBuffer: m.config.FramesPerBuffer,
	}, nil
}

// InputDevice is a device that can capture audio. Index is its PortAudio
// device index, the value MicrophoneConfig.DeviceID expects.
type InputDevice struct {
	Index int
	Info  *portaudio.DeviceInfo
}

func inputDevices(all []*portaudio.DeviceInfo) []InputDevice {
	out := make([]InputDevice, 0, len(all))
	for i, device := range all {
		if device != nil && device.MaxInputChannels > 0 {
			out = append(out, InputDevice{Index: i, Info: device})
		}
	}
	return out
}

func findInputDevice(all []*portaudio.DeviceInfo, id int) (*portaudio.DeviceInfo, error) {
	if id < 0 || id >= len(all) || all[id] == nil {
		return nil, fmt.Errorf("invalid device ID %d", id)
	}
	device := all[id]
	if device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) is not an input device", id, device.Name)
	}
	return device, nil
}

// ListAudioDevices returns the devices that can capture audio
func ListAudioDevices() ([]InputDevice, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	return inputDevices(devices), nil
}
