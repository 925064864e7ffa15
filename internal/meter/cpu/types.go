package cpu

import (
	"sync"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
)

const topProcesses = 3

// Sample is the aggregate "cpu" line of /proc/stat, in clock ticks.
type Sample struct {
	User      uint64
	Nice      uint64
	System    uint64
	Idle      uint64
	IOWait    uint64
	IRQ       uint64
	SoftIRQ   uint64
	Steal     uint64
	Guest     uint64
	GuestNice uint64
}

type Meter struct {
	meter.Base

	log logger.Logger
	r   file.Reader

	mu       sync.Mutex
	previous Sample
	pending  *Sample
}

func New(r file.Reader, log logger.Logger) *Meter {
	return &Meter{r: r, log: log}
}
