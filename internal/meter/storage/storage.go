// Package storage measures root filesystem usage and lists the mounted
// filesystems closest to running out of space.
package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/rank"
	"horizonx-meter/internal/task"
)

// realFilesystems are the on-disk types worth reporting. Pseudo, network
// and overlay filesystems are left out.
var realFilesystems = map[string]bool{
	"ext2": true, "ext3": true, "ext4": true,
	"xfs": true, "btrfs": true, "zfs": true, "f2fs": true, "jfs": true,
	"reiserfs": true, "nilfs2": true, "bcachefs": true,
	"vfat": true, "exfat": true, "ntfs": true, "ntfs3": true,
	"fuseblk": true, "hfsplus": true,
}

type Mount struct {
	Device     string
	MountPoint string
	FSType     string
}

func (m *Meter) CalculateUsage(ctx context.Context) (float64, error) {
	u, err := m.usage(ctx, "/")
	if err != nil {
		return 0, err
	}
	if u.Total == 0 {
		return 0, nil
	}
	free := min(u.Free, u.Total)
	return float64(u.Total-free) / float64(u.Total) * 100, nil
}

func (m *Meter) Directories(ctx context.Context) ([]meter.DirEntry, error) {
	data, err := m.r.ReadAll(ctx, "/proc/mounts")
	if err != nil {
		return nil, err
	}

	mounts := ParseMounts(data)
	entries := make([]meter.DirEntry, 0, len(mounts))
	for _, mnt := range mounts {
		if !realFilesystems[mnt.FSType] {
			continue
		}

		u, err := m.usage(ctx, mnt.MountPoint)
		if err != nil {
			if meter.Interrupted(ctx, err) {
				return nil, err
			}
			m.log.Debug("storage: statfs failed", "mount", mnt.MountPoint, "error", err)
			continue
		}
		entries = append(entries, meter.DirEntry{Name: mnt.MountPoint, FreeBytes: u.Free})
	}

	return rank.Top(entries, func(e meter.DirEntry) float64 { return float64(e.FreeBytes) }, topDirectories, rank.Ascending), nil
}

func (m *Meter) usage(ctx context.Context, path string) (Usage, error) {
	statCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		statCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	u, err := task.Await(statCtx, m.tasks, func() (Usage, error) {
		return m.stat.Usage(statCtx, path)
	})
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return Usage{}, &file.PathError{Op: "statfs", Path: path, Err: fmt.Errorf("%w after %s", file.ErrTimeout, m.timeout)}
	}
	return u, err
}

// ParseMounts reads /proc/mounts. Each mount point is reported once, as
// first listed.
func ParseMounts(data []byte) []Mount {
	var out []Mount
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}

		mp := unescape(fields[1])
		if seen[mp] {
			continue
		}
		seen[mp] = true

		out = append(out, Mount{Device: unescape(fields[0]), MountPoint: mp, FSType: fields[2]})
	}
	return out
}

// unescape decodes the octal escapes the kernel uses for blanks in paths.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
