package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/pdfchat/audio"
	"github.com/bosley/pdfchat/backend"
	"github.com/bosley/pdfchat/metrics"
	"github.com/bosley/pdfchat/state"
)

var (
	ErrNoSelection     = errors.New("no pdf selected")
	ErrMessageNotFound = errors.New("message not found")
	ErrNoAudio         = errors.New("message has no audio")
)

// Backend is the subset of the backend client the controller drives
type Backend interface {
	UploadPDF(ctx context.Context, filename string, r io.Reader) (*backend.UploadResult, error)
	ListPDFs(ctx context.Context) ([]string, error)
	SendChat(ctx context.Context, pdfFilename string, clip []byte) (*backend.ChatReply, error)
	FetchAudio(ctx context.Context, ref string) ([]byte, string, error)
}

// Recorder captures one clip between Start and Stop. Generation identifies
// the recording started last.
type Recorder interface {
	Start() error
	Stop() (audio.Clip, error)
	Generation() uint64
}

// Player plays a WAV payload
type Player interface {
	Play(ctx context.Context, data []byte) error
}

// Publisher receives a snapshot after every state change. Publish is called
// with the controller lock held and must not block.
type Publisher interface {
	Publish(snap state.Snapshot)
}

// Options tunes chat turn behavior
type Options struct {
	Autoplay            bool
	SendEmptyRecordings bool
}

// Controller owns the session state and is the only writer to it. Network
// calls run outside the lock; each chat turn runs on its own goroutine.
type Controller struct {
	ctx      context.Context
	backend  Backend
	recorder Recorder
	metrics  *metrics.Metrics
	opts     Options

	mu           sync.Mutex
	session      *state.Session
	publisher    Publisher
	player       Player
	recordingGen uint64

	turns sync.WaitGroup
}

// New creates a controller. ctx bounds the background chat turns and reply
// playback.
func New(ctx context.Context, b Backend, r Recorder, m *metrics.Metrics, opts Options) *Controller {
	return &Controller{
		ctx:      ctx,
		backend:  b,
		recorder: r,
		metrics:  m,
		opts:     opts,
		session:  state.NewSession(),
	}
}

// SetPublisher installs the renderer and immediately publishes the current
// state to it
func (c *Controller) SetPublisher(p Publisher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publisher = p
	c.publishLocked()
}

// SetPlayer enables local playback of assistant audio replies
func (c *Controller) SetPlayer(p Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player = p
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() state.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// Wait blocks until every in-flight chat turn has resolved
func (c *Controller) Wait() {
	c.turns.Wait()
}

func (c *Controller) publishLocked() {
	if c.publisher != nil {
		c.publisher.Publish(c.session.Snapshot())
	}
}

// HandleFileChosen uploads a PDF and refreshes the catalog on success. A
// failed upload is surfaced as the upload status and leaves the selection
// alone.
func (c *Controller) HandleFileChosen(ctx context.Context, filename string, r io.Reader) error {
	if filename == "" || r == nil {
		return backend.ErrNoFile
	}

	c.mu.Lock()
	c.session.BeginUpload()
	c.publishLocked()
	c.mu.Unlock()

	result, err := c.backend.UploadPDF(ctx, filename, r)

	c.mu.Lock()
	if err != nil {
		c.session.UploadFailed(backend.ErrorText(err, state.StatusUploadFailed))
		c.publishLocked()
		c.mu.Unlock()

		c.metrics.Uploads.WithLabelValues(metrics.ResultFailure).Inc()
		slog.Error("Failed to upload PDF", "error", err, "filename", filename)
		return fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	uploaded := result.Filename
	if uploaded == "" {
		uploaded = filename
	}
	c.session.UploadSucceeded(uploaded)
	c.publishLocked()
	c.mu.Unlock()

	c.metrics.Uploads.WithLabelValues(metrics.ResultSuccess).Inc()
	slog.Info("PDF uploaded", "filename", uploaded)

	return c.RefreshCatalog(ctx)
}

// RefreshCatalog reloads the document list from the backend. On failure the
// current cards stay as they are.
func (c *Controller) RefreshCatalog(ctx context.Context) error {
	docs, err := c.backend.ListPDFs(ctx)
	if err != nil {
		c.metrics.CatalogRefreshes.WithLabelValues(metrics.ResultFailure).Inc()
		slog.Error("Failed to list PDFs", "error", err)
		return fmt.Errorf("failed to refresh catalog: %w", err)
	}

	c.mu.Lock()
	c.session.ApplyCatalog(docs)
	stale := c.session.SelectionStale()
	c.publishLocked()
	c.mu.Unlock()

	c.metrics.CatalogRefreshes.WithLabelValues(metrics.ResultSuccess).Inc()
	c.metrics.CatalogSize.Set(float64(len(docs)))
	if stale {
		slog.Warn("Selected PDF is no longer in the catalog", "documents", len(docs))
	}
	slog.Debug("Catalog refreshed", "documents", len(docs))
	return nil
}

// SelectCard selects a catalog document and starts a fresh conversation
func (c *Controller) SelectCard(filename string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.Select(filename); err != nil {
		return fmt.Errorf("failed to select %s: %w", filename, err)
	}
	c.publishLocked()

	c.metrics.Selections.Inc()
	slog.Info("PDF selected", "filename", filename)
	return nil
}

// ToggleRecording starts a recording when idle, or stops the current one and
// sends it as a chat turn. Recording requires a selected document.
func (c *Controller) ToggleRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Selected() == "" {
		return ErrNoSelection
	}
	if !c.session.Recording() {
		return c.startRecordingLocked()
	}
	return c.stopRecordingLocked()
}

// RecordingLimitReached is the recorder's limit hook. It only stops the
// recording identified by generation; a hook that arrives after that
// recording ended is ignored.
func (c *Controller) RecordingLimitReached(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.Recording() || generation != c.recordingGen {
		slog.Debug("Ignoring limit of a finished recording",
			"generation", generation,
			"current", c.recordingGen)
		return
	}

	c.metrics.RecordingLimits.Inc()
	if err := c.stopRecordingLocked(); err != nil {
		slog.Error("Failed to stop recording at limit", "error", err)
	}
}

func (c *Controller) startRecordingLocked() error {
	if err := c.recorder.Start(); err != nil {
		// no capture capability: tell the user in the thread, stay idle
		c.metrics.RecordingFailures.Inc()
		slog.Error("Failed to start recording", "error", err)
		c.session.Transcript().AppendText(state.SpeakerAssistant, state.MicUnavailableText)
		c.publishLocked()
		return nil
	}

	c.recordingGen = c.recorder.Generation()
	c.session.SetRecording(true)
	c.publishLocked()
	return nil
}

func (c *Controller) stopRecordingLocked() error {
	clip, err := c.recorder.Stop()
	c.session.SetRecording(false)
	if err != nil {
		c.publishLocked()
		return fmt.Errorf("failed to stop recording: %w", err)
	}

	c.metrics.Recordings.Inc()
	c.metrics.RecordingDuration.Observe(clip.Duration.Seconds())

	tr := c.session.Transcript()
	if clip.Empty() && !c.opts.SendEmptyRecordings {
		tr.AppendText(state.SpeakerAssistant, state.EmptyRecordingText)
		c.publishLocked()
		return nil
	}

	pdf := c.session.Selected()
	tr.AppendAudioClip(state.SpeakerUser, clip.Data)
	placeholderID := tr.AppendPlaceholder()
	c.publishLocked()

	c.turns.Add(1)
	go c.runTurn(pdf, clip.Data, placeholderID)
	return nil
}

func (c *Controller) runTurn(pdf string, clip []byte, placeholderID string) {
	defer c.turns.Done()

	c.metrics.ChatInFlight.Inc()
	start := time.Now()
	reply, err := c.backend.SendChat(c.ctx, pdf, clip)
	c.metrics.ChatInFlight.Dec()
	c.metrics.ChatLatency.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	var applied bool
	if err != nil {
		c.metrics.ChatTurns.WithLabelValues(metrics.ResultFailure).Inc()
		slog.Error("Chat request failed", "error", err, "pdf", pdf)
		applied = c.session.Transcript().Fail(placeholderID, backend.ErrorText(err, state.ChatFailedText))
	} else {
		c.metrics.ChatTurns.WithLabelValues(metrics.ResultSuccess).Inc()
		slog.Info("Chat reply received",
			"pdf", pdf,
			"textLength", len(reply.ResponseText),
			"ttsAudio", reply.TTSAudioURL,
			"duration", time.Since(start))
		applied = c.session.Transcript().Resolve(placeholderID, reply.ResponseText, reply.TTSAudioURL)
	}
	if applied {
		c.publishLocked()
	}
	player := c.player
	c.mu.Unlock()

	if !applied {
		c.metrics.DiscardedReplies.Inc()
		slog.Info("Dropping chat reply for a cleared conversation", "pdf", pdf)
		return
	}

	if err == nil && reply.TTSAudioURL != "" && c.opts.Autoplay && player != nil {
		c.playReply(player, reply.TTSAudioURL)
	}
}

func (c *Controller) playReply(player Player, ref string) {
	data, _, err := c.backend.FetchAudio(c.ctx, ref)
	if err != nil {
		slog.Error("Failed to fetch reply audio", "error", err, "url", ref)
		return
	}
	if err := player.Play(c.ctx, data); err != nil {
		slog.Error("Failed to play reply audio", "error", err, "url", ref)
	}
}

// MessageAudio returns the audio payload of a message: the recorded clip for
// user messages, or the downloaded reply for assistant messages.
func (c *Controller) MessageAudio(ctx context.Context, id string) ([]byte, string, error) {
	c.mu.Lock()
	msg, ok := c.session.Transcript().Get(id)
	c.mu.Unlock()

	if !ok {
		return nil, "", ErrMessageNotFound
	}
	if msg.Kind != state.KindAudio {
		return nil, "", ErrNoAudio
	}
	if msg.Audio != nil {
		return msg.Audio, audio.ContentType, nil
	}
	return c.backend.FetchAudio(ctx, msg.AudioURL)
}
