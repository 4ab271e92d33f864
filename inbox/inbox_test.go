package inbox

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads map[string]string
	err     error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: make(map[string]string)}
}

func (f *fakeUploader) HandleFileChosen(ctx context.Context, filename string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[filename] = string(data)
	return f.err
}

func (f *fakeUploader) get(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.uploads[name]
	return v, ok
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func startInbox(t *testing.T, dir string, u Uploader) *Inbox {
	t.Helper()
	in, err := New(Config{Dir: dir, Workers: 2, QueueSize: 10, Settle: 50 * time.Millisecond}, u)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, in.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return in
}

func TestUploadsDroppedPDFs(t *testing.T) {
	dir := t.TempDir()
	u := newFakeUploader()
	startInbox(t, dir, u)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("%PDF-report"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SCAN.PDF"), []byte("%PDF-scan"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0644))

	require.Eventually(t, func() bool {
		return u.count() == 2
	}, 5*time.Second, 20*time.Millisecond)

	got, ok := u.get("report.pdf")
	require.True(t, ok)
	assert.Equal(t, "%PDF-report", got)

	_, ok = u.get("SCAN.PDF")
	assert.True(t, ok)

	// nothing else shows up for the text file
	time.Sleep(200 * time.Millisecond)
	_, ok = u.get("notes.txt")
	assert.False(t, ok)
}

func TestUploadWaitsForWritesToSettle(t *testing.T) {
	dir := t.TempDir()
	u := newFakeUploader()
	startInbox(t, dir, u)

	path := filepath.Join(dir, "big.pdf")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.WriteString("%PDF-")
	require.NoError(t, err)
	_, err = f.WriteString("rest")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return u.count() == 1
	}, 5*time.Second, 20*time.Millisecond)

	got, _ := u.get("big.pdf")
	assert.Equal(t, "%PDF-rest", got)
}

func TestUploadErrorDoesNotStopWorkers(t *testing.T) {
	dir := t.TempDir()
	u := newFakeUploader()
	u.err = errors.New("backend down")
	startInbox(t, dir, u)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.pdf"), []byte("1"), 0644))
	require.Eventually(t, func() bool { return u.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.pdf"), []byte("2"), 0644))
	require.Eventually(t, func() bool { return u.count() == 2 }, 5*time.Second, 20*time.Millisecond)
}

func TestEnqueueQueueFull(t *testing.T) {
	in, err := New(Config{Dir: t.TempDir(), QueueSize: 1}, newFakeUploader())
	require.NoError(t, err)
	defer in.watcher.Close()

	require.NoError(t, in.enqueue("a.pdf"))
	assert.ErrorIs(t, in.enqueue("b.pdf"), ErrQueueFull)
}

func TestTimerFiredBeforeLatestWriteIsIgnored(t *testing.T) {
	in, err := New(Config{Dir: t.TempDir(), Settle: time.Hour}, newFakeUploader())
	require.NoError(t, err)
	defer in.watcher.Close()
	defer in.stopPending()

	path := filepath.Join(in.config.Dir, "a.pdf")
	in.handleFSEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})
	first := in.pending[path].gen
	in.handleFSEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	latest := in.pending[path].gen
	require.NotEqual(t, first, latest)

	// the first timer already fired and was waiting on the lock
	in.settled(path, first)
	assert.Len(t, in.queue, 0)
	require.Contains(t, in.pending, path)

	in.settled(path, latest)
	assert.Len(t, in.queue, 1)
	assert.NotContains(t, in.pending, path)

	in.settled(path, latest)
	assert.Len(t, in.queue, 1)
}

func TestIgnoresNonPDFAndHiddenFiles(t *testing.T) {
	in, err := New(Config{Dir: t.TempDir(), Settle: time.Hour}, newFakeUploader())
	require.NoError(t, err)
	defer in.watcher.Close()
	defer in.stopPending()

	in.handleFSEvent(fsnotify.Event{Name: filepath.Join(in.config.Dir, "notes.txt"), Op: fsnotify.Create})
	in.handleFSEvent(fsnotify.Event{Name: filepath.Join(in.config.Dir, ".tmp.pdf"), Op: fsnotify.Create})
	in.handleFSEvent(fsnotify.Event{Name: filepath.Join(in.config.Dir, "b.pdf"), Op: fsnotify.Remove})
	assert.Empty(t, in.pending)
}

func TestProcessJobMissingFile(t *testing.T) {
	u := newFakeUploader()
	in, err := New(Config{Dir: t.TempDir()}, u)
	require.NoError(t, err)
	defer in.watcher.Close()

	err = in.processJob(context.Background(), Job{Path: filepath.Join(in.config.Dir, "gone.pdf")})
	assert.NoError(t, err)
	assert.Zero(t, u.count())
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "inbox")
	in, err := New(Config{Dir: dir}, newFakeUploader())
	require.NoError(t, err)
	defer in.watcher.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, 1, in.config.Workers)
	assert.Equal(t, defaultSettle, in.config.Settle)
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.pdf", true},
		{"A.PdF", true},
		{"/tmp/x/y.pdf", true},
		{"a.pdf.tmp", false},
		{"pdf", false},
		{"a.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPDF(tt.name))
		})
	}
}
