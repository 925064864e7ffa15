package gpu

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// lookupHwdb reads the udev PCI hwdb source:
//
//	pci:v00001002*
//	 ID_VENDOR_FROM_DATABASE=Advanced Micro Devices, Inc. [AMD/ATI]
//
//	pci:v00001002d0000744C*
//	 ID_MODEL_FROM_DATABASE=Navi 31 [Radeon RX 7900 XT/7900 XTX/7900 GRE/7900M]
func lookupHwdb(data []byte, vendor, device uint16) (vendorName, deviceName string) {
	vkey := fmt.Sprintf("pci:v%08X*", vendor)
	dkey := fmt.Sprintf("pci:v%08Xd%08X*", vendor, device)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var current string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "" || line[0] == '#':
			current = ""
		case line[0] != ' ':
			current = strings.ToUpper(strings.TrimSpace(line))
		case current == strings.ToUpper(vkey):
			if v, ok := strings.CutPrefix(strings.TrimSpace(line), "ID_VENDOR_FROM_DATABASE="); ok {
				vendorName = v
			}
		case current == strings.ToUpper(dkey):
			if v, ok := strings.CutPrefix(strings.TrimSpace(line), "ID_MODEL_FROM_DATABASE="); ok {
				deviceName = v
			}
		}

		if vendorName != "" && deviceName != "" {
			break
		}
	}

	return vendorName, deviceName
}
