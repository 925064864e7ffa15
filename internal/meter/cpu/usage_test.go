package cpu

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/testutil"
)

func TestUsage(t *testing.T) {
	tests := []struct {
		name       string
		prev, curr Sample
		want       float64
	}{
		{
			name: "busy period",
			prev: Sample{User: 100, System: 50, Idle: 800},
			curr: Sample{User: 150, System: 60, Idle: 830},
			want: 60.0 / 90.0 * 100,
		},
		{
			name: "no elapsed time",
			prev: Sample{User: 100, Idle: 100},
			curr: Sample{User: 100, Idle: 100},
			want: 0,
		},
		{
			name: "guest time is not counted twice",
			prev: Sample{User: 100, Idle: 100, Guest: 0},
			curr: Sample{User: 200, Idle: 200, Guest: 50},
			want: 100.0 / 200.0 * 100,
		},
		{
			name: "idle only",
			prev: Sample{Idle: 10, IOWait: 5},
			curr: Sample{Idle: 110, IOWait: 5},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Usage(tt.prev, tt.curr)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Usage() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestParseStat(t *testing.T) {
	s, err := ParseStat([]byte("cpu  10 20 30 40 50 60 70 80 90 100\ncpu0 1 2 3 4 5 6 7 8 9 10\nintr 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := Sample{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if s != want {
		t.Errorf("ParseStat() = %+v, want %+v", s, want)
	}

	short, err := ParseStat([]byte("cpu 1 2 3 4\n"))
	if err != nil || short.Idle != 4 || short.Steal != 0 {
		t.Errorf("ParseStat(short) = %+v, %v", short, err)
	}

	for _, bad := range []string{"cpu 1 2\n", "cpu a b c d\n", "intr 1\n"} {
		if _, err := ParseStat([]byte(bad)); !errors.Is(err, meter.ErrParse) {
			t.Errorf("ParseStat(%q) error = %v, want ErrParse", bad, err)
		}
	}
}

func TestCalculateUsageCommitsOnlyOnCommit(t *testing.T) {
	r, _ := testutil.FS(t, map[string]string{"/proc/stat": "cpu 100 0 50 800\n"})
	m := New(r, logger.Discard())
	ctx := context.Background()

	if _, err := m.CalculateUsage(ctx); err != nil {
		t.Fatal(err)
	}
	m.Commit()

	root := r.Root()
	if err := os.WriteFile(filepath.Join(root, "proc/stat"), []byte("cpu 150 0 60 830\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	first, err := m.CalculateUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Without a commit the baseline stays at the first sample.
	again, err := m.CalculateUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}

	want := 60.0 / 90.0 * 100
	if math.Abs(first-want) > 1e-9 || math.Abs(again-want) > 1e-9 {
		t.Errorf("usage = %f then %f, want %f twice", first, again, want)
	}

	m.Commit()
	idle, err := m.CalculateUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if idle != 0 {
		t.Errorf("usage after commit with same sample = %f, want 0", idle)
	}
}

func TestProcesses(t *testing.T) {
	stat := func(comm string, utime, stime int) string {
		return "1 (" + comm + ") S 0 1 1 0 -1 0 0 0 0 0 " + strconv.Itoa(utime) + " " + strconv.Itoa(stime) + " 0 0 20 0 1 0 1 0 0\n"
	}
	r, _ := testutil.FS(t, map[string]string{
		"/proc/stat":        "cpu 1 1 1 1\n",
		"/proc/10/stat":     stat("a", 100, 10),
		"/proc/10/cmdline":  "alpha\x00",
		"/proc/11/stat":     stat("b", 500, 0),
		"/proc/11/cmdline":  "beta\x00--flag\x00",
		"/proc/12/stat":     stat("kworker", 9000, 0),
		"/proc/12/cmdline":  "",
		"/proc/13/stat":     stat("c", 50, 50),
		"/proc/13/cmdline":  "gamma\x00",
		"/proc/14/stat":     stat("d", 1, 0),
		"/proc/14/cmdline":  "delta\x00",
		"/proc/15/cmdline":  "vanished\x00",
		"/proc/uptime":      "1 1\n",
		"/proc/sys/.keep":   "",
		"/proc/self/status": "",
	})
	m := New(r, logger.Discard())

	got, err := m.Processes(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"beta --flag", "alpha", "gamma"}
	if len(got) != len(want) {
		t.Fatalf("Processes() = %+v", got)
	}
	for i, w := range want {
		if got[i].Command != w {
			t.Errorf("Processes()[%d] = %q, want %q", i, got[i].Command, w)
		}
	}
	if got[0].Value != 500 {
		t.Errorf("Processes()[0].Value = %v, want 500", got[0].Value)
	}
}
