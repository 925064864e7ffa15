// Package config
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"horizonx-meter/internal/validator"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Address   string        `yaml:"http_addr" validate:"required"`
	Mode      string        `yaml:"mode" validate:"oneof=serve stream snapshot"`
	Interval  time.Duration `yaml:"interval" validate:"gt=0"`
	LogLevel  string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string        `yaml:"log_format" validate:"oneof=text json"`

	Meters            []string `yaml:"meters" validate:"min=1,dive,oneof=cpu memory swap storage network load gpu"`
	ActivityThreshold float64  `yaml:"activity_threshold" validate:"gte=0,lte=100"`
	MemoryCalculation string   `yaml:"memory_calculation" validate:"oneof=ram_only all"`

	HostRoot      string   `yaml:"host_root" validate:"required"`
	PCIIDsPaths   []string `yaml:"pci_ids_paths"`
	HwdbPaths     []string `yaml:"hwdb_paths"`
	AMDGPUIDsPath string   `yaml:"amdgpu_ids_path"`
	NvidiaSMI     string   `yaml:"nvidia_smi"`

	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"gt=0"`
	CommandTimeout time.Duration `yaml:"command_timeout" validate:"gt=0"`
	TaskWorkers    int           `yaml:"task_workers" validate:"gte=1,lte=64"`

	DBPath           string        `yaml:"db_path"`
	HistoryRetention time.Duration `yaml:"history_retention" validate:"gte=0"`

	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

const (
	ModeServe    = "serve"
	ModeStream   = "stream"
	ModeSnapshot = "snapshot"
)

const (
	MemoryRAMOnly = "ram_only"
	MemoryAll     = "all"
)

var AllMeters = []string{"cpu", "memory", "swap", "storage", "network", "load", "gpu"}

func Default() *Config {
	return &Config{
		Address:   ":3000",
		Mode:      ModeServe,
		Interval:  time.Second,
		LogLevel:  "info",
		LogFormat: "text",

		Meters:            append([]string(nil), AllMeters...),
		ActivityThreshold: 10,
		MemoryCalculation: MemoryRAMOnly,

		HostRoot:      "/",
		PCIIDsPaths:   []string{"/usr/share/hwdata/pci.ids", "/usr/share/misc/pci.ids"},
		HwdbPaths:     []string{"/usr/lib/udev/hwdb.d/20-pci-vendor-model.hwdb", "/lib/udev/hwdb.d/20-pci-vendor-model.hwdb"},
		AMDGPUIDsPath: "/usr/share/libdrm/amdgpu.ids",
		NvidiaSMI:     "nvidia-smi",

		ReadTimeout:    time.Second,
		CommandTimeout: 2 * time.Second,
		TaskWorkers:    4,

		HistoryRetention: 24 * time.Hour,
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE
// YAML overlay and the environment, in that order.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.Address, "HTTP_ADDR")
	setString(&c.Mode, "MODE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.MemoryCalculation, "MEMORY_CALCULATION")
	setString(&c.HostRoot, "HOST_ROOT")
	setString(&c.AMDGPUIDsPath, "AMDGPU_IDS_PATH")
	setString(&c.NvidiaSMI, "NVIDIA_SMI")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.JWTSecret, "JWT_SECRET")

	setList(&c.Meters, "METERS")
	setList(&c.PCIIDsPaths, "PCI_IDS_PATHS")
	setList(&c.HwdbPaths, "HWDB_PATHS")
	setList(&c.AllowedOrigins, "ALLOWED_ORIGINS")

	durations := map[string]*time.Duration{
		"SCRAPE_INTERVAL":   &c.Interval,
		"READ_TIMEOUT":      &c.ReadTimeout,
		"COMMAND_TIMEOUT":   &c.CommandTimeout,
		"HISTORY_RETENTION": &c.HistoryRetention,
	}
	for key, dst := range durations {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = parsed
	}

	if raw := os.Getenv("ACTIVITY_THRESHOLD"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("config: ACTIVITY_THRESHOLD: %w", err)
		}
		c.ActivityThreshold = v
	}

	if raw := os.Getenv("TASK_WORKERS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("config: TASK_WORKERS: %w", err)
		}
		c.TaskWorkers = v
	}

	return nil
}

func (c *Config) Validate() error {
	errs := validator.NewValidator().Validate(c)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %s", validator.Summary(errs))
}

func (c *Config) HistoryEnabled() bool {
	return c.DBPath != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
