package pkg

import "testing"

func TestContainsAny(t *testing.T) {
	tests := []struct {
		s        string
		patterns []string
		want     bool
	}{
		{"Advanced Micro Devices, Inc. [AMD/ATI]", []string{"amd/ati"}, true},
		{"NVIDIA Corporation", []string{"nvidia*"}, true},
		{"GeForce RTX 3070 NVIDIA", []string{"nvidia*"}, false},
		{"GeForce RTX 3070 NVIDIA", []string{"*nvidia"}, true},
		{"Intel Corporation", []string{"amd", "nvidia"}, false},
		{"", nil, false},
	}

	for _, tt := range tests {
		if got := ContainsAny(tt.s, tt.patterns); got != tt.want {
			t.Errorf("ContainsAny(%q, %v) = %v, want %v", tt.s, tt.patterns, got, tt.want)
		}
	}
}

func TestTrimPrefixFold(t *testing.T) {
	if got := TrimPrefixFold("AMD Radeon RX 7900 XTX", "amd "); got != "Radeon RX 7900 XTX" {
		t.Errorf("TrimPrefixFold() = %q", got)
	}
	if got := TrimPrefixFold("Radeon", "AMD "); got != "Radeon" {
		t.Errorf("TrimPrefixFold() = %q", got)
	}
}
