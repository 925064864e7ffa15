package network

import (
	"sync"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
)

const (
	arphrdEther    = 1
	arphrdLoopback = 772
)

type Counters struct {
	RX uint64
	TX uint64
}

type Speed struct {
	Up   float64
	Down float64
}

type device struct {
	name     string
	kind     meter.InterfaceKind
	counters Counters
}

type reading struct {
	counters   map[string]Counters
	maxima     map[string]Speed
	usage      float64
	interfaces []meter.InterfaceEntry
}

type Meter struct {
	meter.Base

	log     logger.Logger
	r       file.Reader
	refresh float64

	mu       sync.Mutex
	previous map[string]Counters
	maxima   map[string]Speed
	pending  *reading
}

// New builds a network meter. refreshSeconds is the tick interval that
// byte deltas are divided by.
func New(r file.Reader, refreshSeconds float64, log logger.Logger) *Meter {
	if refreshSeconds <= 0 {
		refreshSeconds = 1
	}
	return &Meter{
		r:        r,
		log:      log,
		refresh:  refreshSeconds,
		previous: make(map[string]Counters),
		maxima:   make(map[string]Speed),
	}
}
