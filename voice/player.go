package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/bosley/pdfchat/audio"
)

const playbackFramesPerBuffer = 1024

// Player plays WAV clips on the default output device, one at a time
type Player struct {
	mu sync.Mutex
}

func NewPlayer() *Player {
	return &Player{}
}

// PlayFile plays a WAV file from disk until it ends or ctx is done
func (p *Player) PlayFile(ctx context.Context, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	return p.Play(ctx, data)
}

// Play decodes a WAV payload and blocks until playback finishes or ctx is done
func (p *Player) Play(ctx context.Context, data []byte) error {
	samples, format, err := audio.DecodeClip(data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	done := make(chan struct{})
	var once sync.Once
	pos := 0

	stream, err := portaudio.OpenDefaultStream(
		0,
		format.Channels,
		float64(format.SampleRate),
		playbackFramesPerBuffer,
		func(out []int16) {
			n := copy(out, samples[pos:])
			pos += n
			// Fill remaining buffer with silence if needed
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
			if pos >= len(samples) {
				once.Do(func() { close(done) })
			}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	slog.Debug("Playing audio",
		"samples", len(samples),
		"sampleRate", format.SampleRate,
		"channels", format.Channels)

	select {
	case <-done:
	case <-ctx.Done():
	}

	return stream.Stop()
}
