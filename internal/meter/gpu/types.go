package gpu

import (
	"sync"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/pkg"
	"horizonx-meter/internal/task"
)

const (
	VendorAMD    uint16 = 0x1002
	VendorNVIDIA uint16 = 0x10de
	VendorIntel  uint16 = 0x8086
)

const busyWindow = 4

// Device is one DRM card with its resolved identity.
type Device struct {
	Card      string
	Path      string
	VendorID  uint16
	DeviceID  uint16
	SubVendor uint16
	SubDevice uint16
	Revision  uint8
	Slot      string
	Driver    string
	Primary   bool

	Vendor string
	Model  string
	Name   string
}

// Paths lists the ID databases to consult. The first existing PCI ID file
// wins; the udev hwdb is only used when none exists.
type Paths struct {
	PCIIDs    []string
	Hwdb      []string
	AMDGPUIDs string
}

type Meter struct {
	meter.Base

	log       logger.Logger
	r         file.Reader
	discovery *Discovery
	runner    Runner
	nvidiaSMI string
	tasks     *task.Tasks

	mu      sync.Mutex
	busy    *pkg.RollingAverage
	pending reading
}

// reading is one tick's collection. busy is the raw busy percent; it
// joins the rolling window only on Commit.
type reading struct {
	info    meter.GPUInfo
	busy    float64
	hasBusy bool
}

// Config wires a GPU meter. Discovery is shared between meters of one
// process; Tasks belongs to this meter alone.
type Config struct {
	Reader    file.Reader
	Discovery *Discovery
	Runner    Runner
	NvidiaSMI string
	Tasks     *task.Tasks
	Log       logger.Logger
}

func New(cfg Config) *Meter {
	if cfg.NvidiaSMI == "" {
		cfg.NvidiaSMI = "nvidia-smi"
	}
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}

	return &Meter{
		r:         cfg.Reader,
		log:       cfg.Log,
		discovery: cfg.Discovery,
		runner:    cfg.Runner,
		nvidiaSMI: cfg.NvidiaSMI,
		tasks:     cfg.Tasks,
		busy:      pkg.NewRollingAverage(busyWindow),
	}
}
