package gpu

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// lookupPCIIDs finds vendor and device names in a pci.ids listing:
//
//	1002  Advanced Micro Devices, Inc. [AMD/ATI]
//		744c  Navi 31 [Radeon RX 7900 XT/7900 XTX/7900 GRE/7900M]
func lookupPCIIDs(data []byte, vendor, device uint16) (vendorName, deviceName string) {
	vkey := fmt.Sprintf("%04x", vendor)
	dkey := fmt.Sprintf("%04x", device)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	inVendor := false
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] != '\t' {
			if inVendor {
				return vendorName, deviceName
			}
			id, name, ok := splitID(line)
			if ok && strings.EqualFold(id, vkey) {
				inVendor = true
				vendorName = name
			}
			continue
		}

		if !inVendor || strings.HasPrefix(line, "\t\t") {
			continue
		}
		id, name, ok := splitID(line[1:])
		if ok && strings.EqualFold(id, dkey) {
			deviceName = name
			return vendorName, deviceName
		}
	}

	return vendorName, deviceName
}

func splitID(line string) (id, name string, ok bool) {
	if len(line) < 6 || line[4] != ' ' {
		return "", "", false
	}
	for _, c := range line[:4] {
		if !isHex(c) {
			return "", "", false
		}
	}
	return line[:4], strings.TrimSpace(line[4:]), true
}

func isHex(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
