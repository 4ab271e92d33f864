package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var ErrQueueFull = errors.New("upload queue is full")

const defaultSettle = 500 * time.Millisecond

// Uploader takes a PDF found in the inbox
type Uploader interface {
	HandleFileChosen(ctx context.Context, filename string, r io.Reader) error
}

// Configuration for the inbox watcher
type Config struct {
	// Directory watched for new PDFs
	Dir string

	// Number of upload workers
	Workers int

	// Capacity of the upload queue
	QueueSize int

	// Quiet period after the last write before a file is queued
	Settle time.Duration
}

// Job is one file waiting to be uploaded
type Job struct {
	Path   string
	Queued time.Time
}

// Inbox uploads PDFs dropped into a directory
type Inbox struct {
	config   Config
	uploader Uploader

	watcher *fsnotify.Watcher

	queue   chan Job
	workers sync.WaitGroup

	mu      sync.Mutex
	pending map[string]pendingFile
	seq     uint64
}

// pendingFile is a PDF waiting for its writes to settle. gen changes on
// every write, so a timer that fired before the latest write is ignored.
type pendingFile struct {
	timer *time.Timer
	gen   uint64
}

// New creates the directory if needed and starts watching it. Files already
// present are left alone.
func New(cfg Config, u Uploader) (*Inbox, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(cfg.Dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.Dir, err)
	}

	return &Inbox{
		config:   cfg,
		uploader: u,
		watcher:  watcher,
		queue:    make(chan Job, cfg.QueueSize),
		pending:  make(map[string]pendingFile),
	}, nil
}

// Run processes file events until ctx is done, then waits for the workers
func (in *Inbox) Run(ctx context.Context) error {
	defer in.watcher.Close()

	for i := 0; i < in.config.Workers; i++ {
		in.workers.Add(1)
		go in.worker(ctx)
	}

	slog.Info("Watching inbox directory",
		"path", in.config.Dir,
		"workers", in.config.Workers)

	defer func() {
		in.stopPending()
		in.workers.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-in.watcher.Events:
			if !ok {
				return nil
			}
			in.handleFSEvent(event)

		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// handleFSEvent (re)arms the settle timer for a PDF that was created or
// written to; the file is queued once writes stop
func (in *Inbox) handleFSEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isPDF(event.Name) || strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	path := event.Name
	if p, ok := in.pending[path]; ok {
		p.timer.Stop()
	}

	in.seq++
	gen := in.seq
	in.pending[path] = pendingFile{
		gen: gen,
		timer: time.AfterFunc(in.config.Settle, func() {
			in.settled(path, gen)
		}),
	}
}

// settled queues path if no write has arrived since timer gen was armed
func (in *Inbox) settled(path string, gen uint64) {
	in.mu.Lock()
	p, ok := in.pending[path]
	if !ok || p.gen != gen {
		in.mu.Unlock()
		return
	}
	delete(in.pending, path)
	in.mu.Unlock()

	if err := in.enqueue(path); err != nil {
		slog.Error("Failed to queue inbox file", "error", err, "file", filepath.Base(path))
	}
}

func (in *Inbox) stopPending() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for path, p := range in.pending {
		p.timer.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) enqueue(path string) error {
	job := Job{
		Path:   path,
		Queued: time.Now(),
	}

	select {
	case in.queue <- job:
		slog.Info("Queued inbox file for upload", "file", filepath.Base(path))
	default:
		return ErrQueueFull
	}
	return nil
}

func (in *Inbox) worker(ctx context.Context) {
	slog.Debug("Inbox worker starting")
	defer func() {
		slog.Debug("Inbox worker shutting down")
		in.workers.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case job := <-in.queue:
			if err := in.processJob(ctx, job); err != nil {
				slog.Error("Failed to upload inbox file",
					"error", err,
					"file", job.Path)
			}
		}
	}
}

func (in *Inbox) processJob(ctx context.Context, job Job) error {
	f, err := os.Open(job.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("Inbox file removed before upload", "file", job.Path)
			return nil
		}
		return fmt.Errorf("failed to open inbox file: %w", err)
	}
	defer f.Close()

	name := filepath.Base(job.Path)
	if err := in.uploader.HandleFileChosen(ctx, name, f); err != nil {
		return err
	}

	slog.Info("Uploaded inbox file",
		"file", name,
		"waited", time.Since(job.Queued))
	return nil
}
