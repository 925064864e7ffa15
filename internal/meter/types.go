package meter

import "time"

type Update struct {
	Kind        Kind             `json:"kind"`
	Percent     float64          `json:"percent"`
	Processes   []ProcessEntry   `json:"processes"`
	Interfaces  []InterfaceEntry `json:"interfaces"`
	SystemLoad  LoadInfo         `json:"system_load"`
	Directories []DirEntry       `json:"directories"`
	GPU         GPUInfo          `json:"gpu"`
	HasActivity bool             `json:"has_activity"`
	RecordedAt  time.Time        `json:"recorded_at"`
}

type ProcessEntry struct {
	PID     int     `json:"pid"`
	Command string  `json:"command"`
	Value   float64 `json:"value"`
}

type DirEntry struct {
	Name      string `json:"name"`
	FreeBytes uint64 `json:"free_bytes"`
}

type InterfaceKind string

const (
	InterfaceWired    InterfaceKind = "wired"
	InterfaceWireless InterfaceKind = "wireless"
	InterfaceLoopback InterfaceKind = "loopback"
	InterfaceUnknown  InterfaceKind = "unknown"
)

type InterfaceEntry struct {
	Name                string        `json:"name"`
	UploadBytesPerSec   float64       `json:"upload_bytes_per_sec"`
	DownloadBytesPerSec float64       `json:"download_bytes_per_sec"`
	Kind                InterfaceKind `json:"kind"`
}

type LoadInfo struct {
	Load1        float64 `json:"load1"`
	Load5        float64 `json:"load5"`
	Load15       float64 `json:"load15"`
	RunningTasks int     `json:"running_tasks"`
	TotalTasks   int     `json:"total_tasks"`
}

type GPUInfo struct {
	Name         string  `json:"name"`
	Vendor       string  `json:"vendor"`
	Model        string  `json:"model"`
	Card         string  `json:"card"`
	Primary      bool    `json:"primary"`
	UsagePercent float64 `json:"usage_percent"`
	MemTotal     uint64  `json:"mem_total_bytes"`
	MemUsed      uint64  `json:"mem_used_bytes"`
	TempCelsius  float64 `json:"temp_celsius"`
	PowerWatts   float64 `json:"power_watts"`
	CoreClockMHz float64 `json:"core_clock_mhz"`
	MemClockMHz  float64 `json:"mem_clock_mhz"`
}
