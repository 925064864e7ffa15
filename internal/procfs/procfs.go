// Package procfs parses the /proc entries shared by several meters.
package procfs

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/meter"
)

// PIDs lists the numeric entries of /proc.
func PIDs(ctx context.Context, r file.Reader) ([]int, error) {
	names, err := r.List(ctx, "/proc")
	if err != nil {
		return nil, err
	}

	pids := make([]int, 0, len(names))
	for _, name := range names {
		pid, err := strconv.Atoi(name)
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

type Stat struct {
	PID   int
	Comm  string
	State string
	UTime uint64
	STime uint64
}

// ReadStat parses /proc/<pid>/stat. The command name may contain spaces and
// parentheses, so fields are counted from the last closing parenthesis.
func ReadStat(ctx context.Context, r file.Reader, pid int) (Stat, error) {
	data, err := r.ReadAll(ctx, path(pid, "stat"))
	if err != nil {
		return Stat{}, err
	}
	return ParseStat(pid, data)
}

func ParseStat(pid int, data []byte) (Stat, error) {
	s := string(data)
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return Stat{}, meter.ParseErrorf("/proc/%d/stat: missing command", pid)
	}

	fields := strings.Fields(s[end+1:])
	// fields[0] is state (3rd field); utime and stime are the 14th and 15th.
	if len(fields) < 13 {
		return Stat{}, meter.ParseErrorf("/proc/%d/stat: %d fields", pid, len(fields))
	}

	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return Stat{}, meter.ParseErrorf("/proc/%d/stat utime: %v", pid, err)
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return Stat{}, meter.ParseErrorf("/proc/%d/stat stime: %v", pid, err)
	}

	return Stat{
		PID:   pid,
		Comm:  s[open+1 : end],
		State: fields[0],
		UTime: utime,
		STime: stime,
	}, nil
}

// Statm holds /proc/<pid>/statm counts in pages.
type Statm struct {
	Size     uint64
	Resident uint64
	Shared   uint64
}

func ReadStatm(ctx context.Context, r file.Reader, pid int) (Statm, error) {
	data, err := r.ReadAll(ctx, path(pid, "statm"))
	if err != nil {
		return Statm{}, err
	}

	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return Statm{}, meter.ParseErrorf("/proc/%d/statm: %d fields", pid, len(fields))
	}

	var vals [3]uint64
	for i := range vals {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return Statm{}, meter.ParseErrorf("/proc/%d/statm: %v", pid, err)
		}
		vals[i] = v
	}

	return Statm{Size: vals[0], Resident: vals[1], Shared: vals[2]}, nil
}

// Command returns the process arguments joined by spaces. Kernel threads
// have no arguments and yield an empty string.
func Command(ctx context.Context, r file.Reader, pid int) (string, error) {
	data, err := r.ReadAll(ctx, path(pid, "cmdline"))
	if err != nil {
		return "", err
	}

	data = bytes.TrimRight(data, "\x00")
	return strings.TrimSpace(string(bytes.ReplaceAll(data, []byte{0}, []byte{' '}))), nil
}

// StatusKB reads a "Name:   123 kB" field of /proc/<pid>/status.
func StatusKB(ctx context.Context, r file.Reader, pid int, field string) (uint64, error) {
	data, err := r.ReadAll(ctx, path(pid, "status"))
	if err != nil {
		return 0, err
	}

	v, ok := ParseKB(data, field)
	if !ok {
		return 0, meter.ParseErrorf("/proc/%d/status: no %s", pid, field)
	}
	return v, nil
}

// ParseKB finds "field: N" in a meminfo style listing and returns N.
func ParseKB(data []byte, field string) (uint64, bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	prefix := field + ":"
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		parts := strings.Fields(strings.TrimPrefix(line, prefix))
		if len(parts) == 0 {
			return 0, false
		}
		v, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// Meminfo parses every "Key: value [kB]" line. Values stay in kB.
func Meminfo(data []byte) map[string]uint64 {
	out := make(map[string]uint64)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		parts := strings.Fields(rest)
		if len(parts) == 0 {
			continue
		}
		v, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(key)] = v
	}
	return out
}

func path(pid int, name string) string {
	return "/proc/" + strconv.Itoa(pid) + "/" + name
}
