package voice

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/pdfchat/audio"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// Recorder is the capture state machine: idle -> recording -> idle. Stopping
// flushes the buffered chunks into one WAV clip.
type Recorder struct {
	source  Source
	format  audio.Format
	buffer  *audio.ChunkBuffer
	onLimit func(generation uint64)

	mu         sync.Mutex
	recording  bool
	generation uint64
	limitHit  bool
	startedAt time.Time
	dropped   int
}

// NewRecorder creates a recorder over source that buffers at most maxBytes of
// PCM per recording
func NewRecorder(source Source, format audio.Format, maxBytes int) *Recorder {
	return &Recorder{
		source: source,
		format: format,
		buffer: audio.NewChunkBuffer(maxBytes),
	}
}

// OnLimit registers a hook fired once per recording, on its own goroutine,
// when the buffer cap is reached. The hook receives the generation of the
// recording that hit the cap.
func (r *Recorder) OnLimit(fn func(generation uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLimit = fn
}

// Recording reports whether capture is active
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Generation numbers recordings; it increases on every successful Start
func (r *Recorder) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Start begins a new recording. A source failure leaves the recorder idle and
// is returned wrapped, ErrMicUnavailable included.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}

	r.buffer.Reset()
	r.limitHit = false
	r.dropped = 0

	if err := r.source.Start(r.capture); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	r.recording = true
	r.generation++
	r.startedAt = time.Now()
	slog.Debug("Recording started", "sampleRate", r.format.SampleRate, "channels", r.format.Channels)
	return nil
}

// Stop ends the recording and returns the finalized clip. A recording with no
// captured chunks still yields a valid, empty clip.
func (r *Recorder) Stop() (audio.Clip, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return audio.Clip{}, ErrNotRecording
	}
	r.recording = false
	elapsed := time.Since(r.startedAt)
	r.mu.Unlock()

	// Stop outside the lock: the source may be blocked delivering a chunk
	if err := r.source.Stop(); err != nil {
		slog.Error("Failed to stop capture source", "error", err)
	}

	chunks := r.buffer.ChunkCount()
	clip, err := audio.EncodeClip(r.buffer.Flush(), r.format)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to encode recording: %w", err)
	}

	r.mu.Lock()
	dropped := r.dropped
	r.mu.Unlock()

	slog.Info("Recording finished",
		"chunks", chunks,
		"droppedChunks", dropped,
		"bytes", len(clip.Data),
		"audioDuration", clip.Duration,
		"wallDuration", elapsed)

	return clip, nil
}

func (r *Recorder) capture(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return
	}

	if err := r.buffer.Append(audio.PCMFromSamples(samples)); err != nil {
		r.dropped++
		if errors.Is(err, audio.ErrBufferFull) && !r.limitHit {
			r.limitHit = true
			slog.Warn("Recording limit reached, dropping further audio",
				"maxBytes", r.buffer.MaxSize())
			if r.onLimit != nil {
				go r.onLimit(r.generation)
			}
		}
	}
}
