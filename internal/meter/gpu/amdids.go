package gpu

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// lookupAMDGPUIDs finds the marketing name for a device and revision in
// libdrm's amdgpu.ids, whose entries read "744C,\tC8,\tAMD Radeon RX 7900 XTX".
func lookupAMDGPUIDs(data []byte, device uint16, revision uint8) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			continue
		}

		dev, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 16)
		if err != nil || uint16(dev) != device {
			continue
		}
		rev, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 16, 8)
		if err != nil || uint8(rev) != revision {
			continue
		}
		return strings.TrimSpace(parts[2])
	}
	return ""
}
