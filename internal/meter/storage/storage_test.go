package storage

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/testutil"
)

type fakeStatter map[string]Usage

func (f fakeStatter) Usage(_ context.Context, path string) (Usage, error) {
	u, ok := f[path]
	if !ok {
		return Usage{}, errors.New("statfs: no such mount")
	}
	return u, nil
}

const mounts = `sysfs /sys sysfs rw,nosuid 0 0
proc /proc proc rw 0 0
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
/dev/nvme0n1p1 /boot/efi vfat rw 0 0
tmpfs /run tmpfs rw 0 0
/dev/sdb1 /mnt/backup\040disk xfs rw 0 0
/dev/sdc1 /srv btrfs rw 0 0
/dev/sdd1 /broken ext4 rw 0 0
overlay /var/lib/docker/overlay2/x/merged overlay rw 0 0
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
`

func newMeter(t *testing.T, stat Statter) *Meter {
	t.Helper()
	r, tasks := testutil.FS(t, map[string]string{"/proc/mounts": mounts})
	return New(r, stat, tasks, time.Second, logger.Discard())
}

// hungStatter never answers for one mount point, like statfs on a dead
// network share.
type hungStatter struct {
	fakeStatter
	hung string
}

func (h hungStatter) Usage(ctx context.Context, path string) (Usage, error) {
	if path == h.hung {
		<-ctx.Done()
		return Usage{}, ctx.Err()
	}
	return h.fakeStatter.Usage(ctx, path)
}

func TestCalculateUsage(t *testing.T) {
	m := newMeter(t, fakeStatter{"/": {Total: 1000, Free: 250}})

	got, err := m.CalculateUsage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-75) > 1e-9 {
		t.Errorf("CalculateUsage() = %f, want 75", got)
	}
}

func TestCalculateUsageEmptyFilesystem(t *testing.T) {
	m := newMeter(t, fakeStatter{"/": {}})

	got, err := m.CalculateUsage(context.Background())
	if err != nil || got != 0 {
		t.Errorf("CalculateUsage() = %f, %v; want 0, nil", got, err)
	}
}

func TestDirectories(t *testing.T) {
	m := newMeter(t, fakeStatter{
		"/":                {Total: 10000, Free: 500},
		"/boot/efi":        {Total: 1000, Free: 100},
		"/mnt/backup disk": {Total: 90000, Free: 9000},
		"/srv":             {Total: 5000, Free: 700},
		"/run":             {Total: 10, Free: 1},
		"/proc":            {Total: 0, Free: 0},
	})

	got, err := m.Directories(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		name string
		free uint64
	}{{"/boot/efi", 100}, {"/", 500}, {"/srv", 700}}
	if len(got) != len(want) {
		t.Fatalf("Directories() = %+v", got)
	}
	for i, w := range want {
		if got[i].Name != w.name || got[i].FreeBytes != w.free {
			t.Errorf("Directories()[%d] = %+v, want %s %d", i, got[i], w.name, w.free)
		}
	}
}

func TestParseMounts(t *testing.T) {
	got := ParseMounts([]byte(mounts))

	if len(got) != 9 {
		t.Fatalf("ParseMounts() returned %d mounts, want 9", len(got))
	}
	if got[5].MountPoint != "/mnt/backup disk" || got[5].FSType != "xfs" {
		t.Errorf("ParseMounts()[5] = %+v", got[5])
	}
}

func TestDirectoriesSkipsHungMount(t *testing.T) {
	stat := hungStatter{
		fakeStatter: fakeStatter{
			"/":         {Total: 10000, Free: 500},
			"/boot/efi": {Total: 1000, Free: 100},
			"/srv":      {Total: 5000, Free: 700},
		},
		hung: "/srv",
	}
	r, tasks := testutil.FS(t, map[string]string{"/proc/mounts": mounts})
	m := New(r, stat, tasks, 50*time.Millisecond, logger.Discard())

	start := time.Now()
	got, err := m.Directories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Directories() took %s with a hung mount", elapsed)
	}
	if len(got) != 2 || got[0].Name != "/boot/efi" || got[1].Name != "/" {
		t.Errorf("Directories() = %+v, want /boot/efi and / only", got)
	}
}

func TestUsageTimeout(t *testing.T) {
	r, tasks := testutil.FS(t, map[string]string{"/proc/mounts": mounts})
	m := New(r, hungStatter{fakeStatter: fakeStatter{}, hung: "/"}, tasks, 20*time.Millisecond, logger.Discard())

	_, err := m.CalculateUsage(context.Background())
	if !errors.Is(err, file.ErrTimeout) {
		t.Errorf("CalculateUsage() error = %v, want ErrTimeout", err)
	}
}
