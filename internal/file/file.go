// Package file reads pseudo-filesystem entries without blocking the caller's
// scheduling loop. Each operation runs as a subtask on the owner's task set
// and the caller waits for the result, its context or the read timeout.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"horizonx-meter/internal/task"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrPermission = errors.New("permission denied")
	ErrIO         = errors.New("i/o error")
	ErrCancelled  = errors.New("cancelled")
	ErrTimeout    = errors.New("timed out")
)

type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("file: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

type Reader interface {
	Exists(ctx context.Context, path string) (bool, error)
	ReadAll(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, path string) ([]string, error)
}

// FS resolves every path under root. Paths are written as absolute host
// paths, such as /proc/stat.
type FS struct {
	root    string
	tasks   *task.Tasks
	timeout time.Duration
}

func New(root string, tasks *task.Tasks, timeout time.Duration) *FS {
	if root == "" {
		root = "/"
	}
	return &FS{root: root, tasks: tasks, timeout: timeout}
}

func (f *FS) Root() string {
	return f.root
}

// Resolve maps a host path to its location under root.
func (f *FS) Resolve(path string) string {
	return filepath.Join(f.root, filepath.Clean("/"+path))
}

func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	return do(ctx, f, "stat", path, func(p string) (bool, error) {
		_, err := os.Lstat(p)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	})
}

func (f *FS) ReadAll(ctx context.Context, path string) ([]byte, error) {
	return do(ctx, f, "read", path, os.ReadFile)
}

// List returns the entry names of a directory in lexical order.
func (f *FS) List(ctx context.Context, path string) ([]string, error) {
	return do(ctx, f, "list", path, func(p string) ([]string, error) {
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		return names, nil
	})
}

func (f *FS) Create(ctx context.Context, path string, data []byte) error {
	_, err := do(ctx, f, "create", path, func(p string) (struct{}, error) {
		return struct{}{}, os.WriteFile(p, data, 0o644)
	})
	return err
}

func (f *FS) Append(ctx context.Context, path string, data []byte) error {
	_, err := do(ctx, f, "append", path, func(p string) (struct{}, error) {
		fh, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return struct{}{}, err
		}
		if _, err := fh.Write(data); err != nil {
			fh.Close()
			return struct{}{}, err
		}
		return struct{}{}, fh.Close()
	})
	return err
}

func (f *FS) Delete(ctx context.Context, path string) error {
	_, err := do(ctx, f, "delete", path, func(p string) (struct{}, error) {
		return struct{}{}, os.Remove(p)
	})
	return err
}

func (f *FS) Rename(ctx context.Context, from, to string) error {
	target := f.Resolve(to)
	_, err := do(ctx, f, "rename", from, func(p string) (struct{}, error) {
		return struct{}{}, os.Rename(p, target)
	})
	return err
}

func do[T any](ctx context.Context, f *FS, op, path string, fn func(resolved string) (T, error)) (T, error) {
	resolved := f.Resolve(path)

	readCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	v, err := task.Await(readCtx, f.tasks, func() (T, error) {
		return fn(resolved)
	})
	if err == nil {
		return v, nil
	}

	switch {
	case errors.Is(err, task.ErrCancelled):
		err = ErrCancelled
	case errors.Is(err, context.Canceled):
		err = errors.Join(ErrCancelled, err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		err = ErrTimeout
	}

	var zero T
	return zero, &PathError{Op: op, Path: path, Err: classify(err)}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermission, err)
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
}

// IsNotFound reports whether err means the path is absent. ENODEV and
// ENXIO, which sysfs attributes return when a device lacks the sensor,
// count as absent too.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	return errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.ENXIO)
}
