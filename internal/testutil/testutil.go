// Package testutil builds synthetic /proc and /sys trees for package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/task"
)

// WriteTree writes files (host path to content) under root.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// Mkdir creates empty directories under root.
func Mkdir(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

// Queue returns a started task queue stopped at test cleanup.
func Queue(t *testing.T) *task.Queue {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	q := task.NewQueue(4, logger.Discard())
	q.Start(ctx)
	t.Cleanup(func() {
		cancel()
		q.Stop()
	})
	return q
}

// FS returns a reader rooted at a fresh temp dir populated with files.
func FS(t *testing.T, files map[string]string) (*file.FS, *task.Tasks) {
	t.Helper()
	root := t.TempDir()
	WriteTree(t, root, files)
	tasks := Queue(t).NewTasks()
	return file.New(root, tasks, time.Second), tasks
}

// CountingReader records every path read through it.
type CountingReader struct {
	file.Reader

	mu    sync.Mutex
	reads []string
}

func NewCountingReader(r file.Reader) *CountingReader {
	return &CountingReader{Reader: r}
}

func (c *CountingReader) record(path string) {
	c.mu.Lock()
	c.reads = append(c.reads, path)
	c.mu.Unlock()
}

func (c *CountingReader) Exists(ctx context.Context, path string) (bool, error) {
	c.record(path)
	return c.Reader.Exists(ctx, path)
}

func (c *CountingReader) ReadAll(ctx context.Context, path string) ([]byte, error) {
	c.record(path)
	return c.Reader.ReadAll(ctx, path)
}

func (c *CountingReader) List(ctx context.Context, path string) ([]string, error) {
	c.record(path)
	return c.Reader.List(ctx, path)
}

func (c *CountingReader) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reads)
}

// FaultReader passes reads through to Reader unless the fault function set
// with SetFault returns an error for the path.
type FaultReader struct {
	file.Reader

	mu    sync.Mutex
	fault func(ctx context.Context, path string) error
}

func NewFaultReader(r file.Reader) *FaultReader {
	return &FaultReader{Reader: r}
}

// SetFault replaces the fault function. nil clears it.
func (f *FaultReader) SetFault(fn func(ctx context.Context, path string) error) {
	f.mu.Lock()
	f.fault = fn
	f.mu.Unlock()
}

func (f *FaultReader) check(ctx context.Context, path string) error {
	f.mu.Lock()
	fn := f.fault
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, path)
}

func (f *FaultReader) Exists(ctx context.Context, path string) (bool, error) {
	if err := f.check(ctx, path); err != nil {
		return false, err
	}
	return f.Reader.Exists(ctx, path)
}

func (f *FaultReader) ReadAll(ctx context.Context, path string) ([]byte, error) {
	if err := f.check(ctx, path); err != nil {
		return nil, err
	}
	return f.Reader.ReadAll(ctx, path)
}

func (f *FaultReader) List(ctx context.Context, path string) ([]string, error) {
	if err := f.check(ctx, path); err != nil {
		return nil, err
	}
	return f.Reader.List(ctx, path)
}

// Stall blocks until ctx is done and fails the way file.FS does when the
// caller's context ends mid read.
func Stall(ctx context.Context, path string) error {
	<-ctx.Done()
	return &file.PathError{Op: "read", Path: path, Err: ctx.Err()}
}
