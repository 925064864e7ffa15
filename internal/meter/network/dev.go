package network

import (
	"context"
	"strconv"
	"strings"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/meter"
)

const sysNet = "/sys/class/net"

// scan lists loopback devices and devices whose operstate is up. An
// unreadable device is skipped; an interrupted tick fails the scan.
func (m *Meter) scan(ctx context.Context) ([]device, error) {
	names, err := m.r.List(ctx, sysNet)
	if err != nil {
		return nil, err
	}

	devices := make([]device, 0, len(names))
	for _, name := range names {
		dev, ok, err := m.readDevice(ctx, name)
		if err != nil {
			if meter.Interrupted(ctx, err) {
				return nil, err
			}
			m.log.Debug("network: device skipped", "device", name, "error", err)
			continue
		}
		if ok {
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

func (m *Meter) readDevice(ctx context.Context, name string) (device, bool, error) {
	base := sysNet + "/" + name

	typ, err := m.readInt(ctx, base+"/type")
	if err != nil {
		return device{}, false, err
	}

	if typ != arphrdLoopback {
		state, err := m.r.ReadAll(ctx, base+"/operstate")
		if err != nil {
			return device{}, false, err
		}
		if strings.TrimSpace(string(state)) != "up" {
			return device{}, false, nil
		}
	}

	kind, err := m.kind(ctx, base, typ)
	if err != nil {
		return device{}, false, err
	}

	rx, err := m.readInt(ctx, base+"/statistics/rx_bytes")
	if err != nil {
		return device{}, false, err
	}
	tx, err := m.readInt(ctx, base+"/statistics/tx_bytes")
	if err != nil {
		return device{}, false, err
	}

	return device{name: name, kind: kind, counters: Counters{RX: rx, TX: tx}}, true, nil
}

func (m *Meter) kind(ctx context.Context, base string, typ uint64) (meter.InterfaceKind, error) {
	if typ == arphrdLoopback {
		return meter.InterfaceLoopback, nil
	}

	for _, marker := range []string{"/wireless", "/phy80211"} {
		ok, err := m.r.Exists(ctx, base+marker)
		if err != nil {
			return meter.InterfaceUnknown, err
		}
		if ok {
			return meter.InterfaceWireless, nil
		}
	}

	if typ == arphrdEther {
		return meter.InterfaceWired, nil
	}
	return meter.InterfaceUnknown, nil
}

func (m *Meter) readInt(ctx context.Context, path string) (uint64, error) {
	data, err := m.r.ReadAll(ctx, path)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, &file.PathError{Op: "parse", Path: path, Err: meter.ParseErrorf("%v", err)}
	}
	return v, nil
}
