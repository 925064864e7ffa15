package gpu

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"

	"golang.org/x/sync/errgroup"
)

const drmRoot = "/sys/class/drm"

// Discovery enumerates GPUs once and caches the result for every GPU meter
// of the process.
type Discovery struct {
	r     file.Reader
	paths Paths
	log   logger.Logger

	mu      sync.Mutex
	devices []Device
	done    bool
}

func NewDiscovery(r file.Reader, paths Paths, log logger.Logger) *Discovery {
	return &Discovery{r: r, paths: paths, log: log}
}

// Devices returns every DRM card with its identity resolved. A failed
// discovery is retried on the next call.
func (d *Discovery) Devices(ctx context.Context) ([]Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done {
		return d.devices, nil
	}

	devices, err := d.discover(ctx)
	if err != nil {
		return nil, err
	}

	d.devices = devices
	d.done = true

	for _, dev := range devices {
		d.log.Info("gpu: detected", "card", dev.Card, "name", dev.Name, "primary", dev.Primary, "slot", dev.Slot)
	}
	return devices, nil
}

// Primary returns the display GPU. ok is false when the host has none.
func (d *Discovery) Primary(ctx context.Context) (Device, bool, error) {
	devices, err := d.Devices(ctx)
	if err != nil {
		return Device{}, false, err
	}
	for _, dev := range devices {
		if dev.Primary {
			return dev, true, nil
		}
	}
	return Device{}, false, nil
}

func (d *Discovery) discover(ctx context.Context) ([]Device, error) {
	names, err := d.r.List(ctx, drmRoot)
	if err != nil {
		if file.IsNotFound(err) {
			return []Device{}, nil
		}
		return nil, err
	}

	var cards []string
	for _, name := range names {
		if isCard(name) {
			cards = append(cards, name)
		}
	}
	if len(cards) == 0 {
		return []Device{}, nil
	}

	devices := make([]Device, len(cards))
	g, gctx := errgroup.WithContext(ctx)
	for i, card := range cards {
		g.Go(func() error {
			dev, err := d.identify(gctx, card)
			if err != nil {
				return err
			}
			devices[i] = dev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := d.markPrimary(ctx, devices); err != nil {
		return nil, err
	}

	if err := d.resolveNames(ctx, devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (d *Discovery) identify(ctx context.Context, card string) (Device, error) {
	base := drmRoot + "/" + card + "/device"
	dev := Device{Card: card, Path: base}

	raw, err := d.r.ReadAll(ctx, base+"/modalias")
	if err != nil {
		return Device{}, err
	}
	alias, err := ParseModalias(string(raw))
	if err != nil {
		return Device{}, fmt.Errorf("gpu %s: %w", card, err)
	}
	dev.VendorID = alias.Vendor
	dev.DeviceID = alias.Device
	dev.SubVendor = alias.SubVendor
	dev.SubDevice = alias.SubDevice

	if raw, err := d.r.ReadAll(ctx, base+"/revision"); err == nil {
		dev.Revision, _ = parseRevision(string(raw))
	} else if meter.Interrupted(ctx, err) {
		return Device{}, err
	}

	if raw, err := d.r.ReadAll(ctx, base+"/uevent"); err == nil {
		ue := parseUevent(raw)
		dev.Slot = ue["PCI_SLOT_NAME"]
		dev.Driver = ue["DRIVER"]
	} else if meter.Interrupted(ctx, err) {
		return Device{}, err
	}

	return dev, nil
}

// markPrimary picks the only card, or the one firmware booted the display
// on. Without any boot_vga flag the first card is used.
func (d *Discovery) markPrimary(ctx context.Context, devices []Device) error {
	if len(devices) == 1 {
		devices[0].Primary = true
		return nil
	}

	flags := make([]bool, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	for i, dev := range devices {
		g.Go(func() error {
			raw, err := d.r.ReadAll(gctx, dev.Path+"/boot_vga")
			if err != nil {
				if meter.Interrupted(gctx, err) {
					return err
				}
				return nil
			}
			flags[i] = strings.TrimSpace(string(raw)) == "1"
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, on := range flags {
		if on {
			devices[i].Primary = true
			return nil
		}
	}

	d.log.Debug("gpu: no boot_vga flag set, using first card", "card", devices[0].Card)
	devices[0].Primary = true
	return nil
}

func (d *Discovery) resolveNames(ctx context.Context, devices []Device) error {
	lookup, err := d.lookup(ctx)
	if err != nil {
		return err
	}

	var amdIDs []byte
	for i := range devices {
		dev := &devices[i]

		dbVendor, dbModel := "", ""
		if lookup != nil {
			dbVendor, dbModel = lookup(dev.VendorID, dev.DeviceID)
		}

		dev.Vendor = vendorShortName(dev.VendorID, dbVendor)
		dev.Model = modelName(dbModel, dev.Vendor)

		if dev.VendorID == VendorAMD && (dev.Model == "" || ambiguous(dev.Model)) {
			if amdIDs == nil {
				amdIDs = d.readOptional(ctx, d.paths.AMDGPUIDs)
			}
			if name := lookupAMDGPUIDs(amdIDs, dev.DeviceID, dev.Revision); name != "" {
				dev.Model = stripVendor(name, dev.Vendor)
			}
		}

		if dev.Model == "" {
			dev.Model = fmt.Sprintf("Device %04x", dev.DeviceID)
		}
		dev.Name = dev.Vendor + " " + dev.Model
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

type lookupFunc func(vendor, device uint16) (string, string)

// lookup selects one ID database: the first installed pci.ids file, else
// the first installed hwdb. Nil means neither is installed.
func (d *Discovery) lookup(ctx context.Context) (lookupFunc, error) {
	for _, path := range d.paths.PCIIDs {
		data, err := d.r.ReadAll(ctx, path)
		if err != nil {
			if meter.Interrupted(ctx, err) {
				return nil, err
			}
			continue
		}
		d.log.Debug("gpu: using pci.ids", "path", path)
		return func(v, dev uint16) (string, string) { return lookupPCIIDs(data, v, dev) }, nil
	}

	for _, path := range d.paths.Hwdb {
		data, err := d.r.ReadAll(ctx, path)
		if err != nil {
			if meter.Interrupted(ctx, err) {
				return nil, err
			}
			continue
		}
		d.log.Debug("gpu: using udev hwdb", "path", path)
		return func(v, dev uint16) (string, string) { return lookupHwdb(data, v, dev) }, nil
	}

	d.log.Warn("gpu: no pci id database found")
	return nil, nil
}

func (d *Discovery) readOptional(ctx context.Context, path string) []byte {
	if path == "" {
		return []byte{}
	}
	data, err := d.r.ReadAll(ctx, path)
	if err != nil {
		return []byte{}
	}
	return data
}
