package storage

import (
	"context"
	"path/filepath"
	"time"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/task"

	"github.com/shirou/gopsutil/v3/disk"
)

const topDirectories = 3

// Usage is the statfs view of one mounted filesystem, in bytes. Free
// counts blocks available to unprivileged users.
type Usage struct {
	Total uint64
	Free  uint64
}

type Statter interface {
	Usage(ctx context.Context, path string) (Usage, error)
}

// DiskStatter asks gopsutil for filesystem usage of paths under root.
type DiskStatter struct {
	root string
}

func NewDiskStatter(root string) *DiskStatter {
	return &DiskStatter{root: root}
}

func (d *DiskStatter) Usage(ctx context.Context, path string) (Usage, error) {
	st, err := disk.UsageWithContext(ctx, filepath.Join(d.root, path))
	if err != nil {
		return Usage{}, err
	}
	return Usage{Total: st.Total, Free: st.Free}, nil
}

type Meter struct {
	meter.Base

	log     logger.Logger
	r       file.Reader
	stat    Statter
	tasks   *task.Tasks
	timeout time.Duration
}

// New builds a storage meter. Each statfs call is bounded by timeout, the
// same limit file reads get; zero leaves it bounded by the tick only.
func New(r file.Reader, stat Statter, tasks *task.Tasks, timeout time.Duration, log logger.Logger) *Meter {
	return &Meter{r: r, stat: stat, tasks: tasks, timeout: timeout, log: log}
}
