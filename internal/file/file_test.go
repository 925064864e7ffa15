package file_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/task"
	"horizonx-meter/internal/testutil"
)

func TestReadAllAndList(t *testing.T) {
	fsys, _ := testutil.FS(t, map[string]string{
		"/proc/loadavg":             "0.50 0.40 0.30 2/345 12345\n",
		"/sys/class/net/lo/type":    "772\n",
		"/sys/class/net/eth0/type":  "1\n",
		"/sys/class/net/wlan0/type": "1\n",
	})
	ctx := context.Background()

	data, err := fsys.ReadAll(ctx, "/proc/loadavg")
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(data) != "0.50 0.40 0.30 2/345 12345\n" {
		t.Errorf("ReadAll() = %q", data)
	}

	names, err := fsys.List(ctx, "/sys/class/net")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	want := []string{"eth0", "lo", "wlan0"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestExists(t *testing.T) {
	fsys, _ := testutil.FS(t, map[string]string{"/sys/class/net/wlan0/wireless/.keep": ""})
	ctx := context.Background()

	ok, err := fsys.Exists(ctx, "/sys/class/net/wlan0/wireless")
	if err != nil || !ok {
		t.Errorf("Exists(wireless) = %v, %v; want true, nil", ok, err)
	}

	ok, err = fsys.Exists(ctx, "/sys/class/net/eth0/wireless")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false, nil", ok, err)
	}
}

func TestNotFound(t *testing.T) {
	fsys, _ := testutil.FS(t, nil)

	_, err := fsys.ReadAll(context.Background(), "/proc/meminfo")
	if !errors.Is(err, file.ErrNotFound) {
		t.Fatalf("ReadAll() error = %v, want ErrNotFound", err)
	}
	if !file.IsNotFound(err) {
		t.Error("IsNotFound() = false, want true")
	}

	var pe *file.PathError
	if !errors.As(err, &pe) || pe.Path != "/proc/meminfo" || pe.Op != "read" {
		t.Errorf("PathError = %+v, want read /proc/meminfo", pe)
	}
}

func TestPathsStayUnderRoot(t *testing.T) {
	fsys, _ := testutil.FS(t, map[string]string{"/etc/hostname": "box\n"})

	data, err := fsys.ReadAll(context.Background(), "../../etc/hostname")
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(data) != "box\n" {
		t.Errorf("ReadAll() = %q, want box", data)
	}
}

func TestWriteOperations(t *testing.T) {
	fsys, _ := testutil.FS(t, map[string]string{"/var/lib/meter/.keep": ""})
	ctx := context.Background()

	if err := fsys.Create(ctx, "/var/lib/meter/state", []byte("a")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := fsys.Append(ctx, "/var/lib/meter/state", []byte("b")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := fsys.Rename(ctx, "/var/lib/meter/state", "/var/lib/meter/state.old"); err != nil {
		t.Fatalf("Rename() error: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(fsys.Root(), "var/lib/meter/state.old"))
	if err != nil || string(got) != "ab" {
		t.Errorf("renamed content = %q, %v; want ab", got, err)
	}

	if err := fsys.Delete(ctx, "/var/lib/meter/state.old"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := fsys.Delete(ctx, "/var/lib/meter/state.old"); !errors.Is(err, file.ErrNotFound) {
		t.Errorf("second Delete() = %v, want ErrNotFound", err)
	}
}

func TestCancelledTasks(t *testing.T) {
	fsys, tasks := testutil.FS(t, map[string]string{"/proc/stat": "cpu 1 2 3 4\n"})
	tasks.Cancel()

	_, err := fsys.ReadAll(context.Background(), "/proc/stat")
	if !errors.Is(err, file.ErrCancelled) {
		t.Fatalf("ReadAll() error = %v, want ErrCancelled", err)
	}
}

func TestTimeoutWhenQueueStalls(t *testing.T) {
	// A queue that is never started leaves the read pending.
	q := task.NewQueue(1, logger.Discard())
	fsys := file.New(t.TempDir(), q.NewTasks(), 20*time.Millisecond)

	_, err := fsys.ReadAll(context.Background(), "/proc/stat")
	if !errors.Is(err, file.ErrTimeout) {
		t.Fatalf("ReadAll() error = %v, want ErrTimeout", err)
	}
}

func TestContextCancel(t *testing.T) {
	q := task.NewQueue(1, logger.Discard())
	fsys := file.New(t.TempDir(), q.NewTasks(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fsys.ReadAll(ctx, "/proc/stat")
	if !errors.Is(err, file.ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("ReadAll() error = %v, want ErrCancelled and context.Canceled", err)
	}
}
