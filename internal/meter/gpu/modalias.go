package gpu

import (
	"regexp"
	"strconv"
	"strings"

	"horizonx-meter/internal/meter"
)

var modaliasPattern = regexp.MustCompile(`^pci:v([0-9A-Fa-f]{8})d([0-9A-Fa-f]{8})(?:sv([0-9A-Fa-f]{8})sd([0-9A-Fa-f]{8}))?`)

type Modalias struct {
	Vendor    uint16
	Device    uint16
	SubVendor uint16
	SubDevice uint16
}

// ParseModalias decodes "pci:v00001002d0000744Csv00001DA2sd0000E471bc03sc00i00".
func ParseModalias(s string) (Modalias, error) {
	m := modaliasPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Modalias{}, meter.ParseErrorf("modalias %q", s)
	}

	var ids [4]uint16
	for i, group := range m[1:] {
		if group == "" {
			continue
		}
		v, err := strconv.ParseUint(group, 16, 32)
		if err != nil {
			return Modalias{}, meter.ParseErrorf("modalias %q: %v", s, err)
		}
		ids[i] = uint16(v)
	}

	return Modalias{Vendor: ids[0], Device: ids[1], SubVendor: ids[2], SubDevice: ids[3]}, nil
}

// isCard matches DRM card nodes such as card0, not connectors like card0-DP-1.
func isCard(name string) bool {
	rest, ok := strings.CutPrefix(name, "card")
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

func parseRevision(s string) (uint8, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

func parseUevent(data []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
			out[k] = v
		}
	}
	return out
}
