package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/brettbedarf/sdfat/cpath"
	"github.com/brettbedarf/sdfat/internal/util"
	"gopkg.in/yaml.v3"
)

// Bytes per MB
const MB = 1024 * 1024

// Log verbosity values accepted by [ConfigOverride.LogLvl].
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultMountPoint = "/sdcard"
	DefaultLogLvl     = util.InfoLevel
	DefaultDriver     = "memory"
	DefaultCardDir    = ""
	DefaultCardSize   = 64 * MB

	// DefaultBusWidth uses a single data line, which every card supports
	DefaultBusWidth = 1
	// DefaultSlotWidth is the number of data lines wired to the slot
	DefaultSlotWidth = 4
	DefaultSlot      = 1

	// DefaultMaxFreqKHz is the default-speed card clock (20 MHz)
	DefaultMaxFreqKHz       = 20_000
	DefaultIOVoltage        = 3.3
	DefaultCommandTimeoutMs = 0

	// DefaultMaxFiles bounds simultaneously open files
	DefaultMaxFiles            = 5
	DefaultFormatIfMountFailed = false
	DefaultAllocationUnitSize  = 0

	// DefaultMkdirPerm is rw for everyone; FAT only keeps the read-only bit
	DefaultMkdirPerm = 0o666

	// DefaultPathCapacity is the bounded path buffer size, terminator included
	DefaultPathCapacity = cpath.Capacity

	// DefaultReadChunkSize is the chunk used when reading a file to the end
	DefaultReadChunkSize = 1024
)

// Config contains runtime configuration values for a mounted card.
type Config struct {
	Export ExportOptions

	MountPoint string        `validate:"required,startswith=/"` // Root path of the volume (Default "/sdcard")
	LogLvl     util.LogLevel // Minimum log level (Default info)
	Driver     string        `validate:"required"` // Registered driver name (Default "memory")
	CardDir    string        // Host directory backing the card for the "hostdir" driver
	CardSize   uint64        `validate:"gt=0"` // Simulated card capacity in bytes (Default 64MB)

	// NOTE: Host and slot settings; keep the defaults unless the board wiring differs:

	BusWidth         int     `validate:"oneof=1 4 8"`    // Data lines used by the host (Default 1)
	SlotWidth        int     `validate:"oneof=1 4 8"`    // Data lines wired to the slot (Default 4)
	Slot             int     `validate:"oneof=0 1"`      // Host slot (Default 1)
	MaxFreqKHz       int     `validate:"gt=0,lte=52000"` // Card clock limit in kHz (Default 20000)
	IOVoltage        float64 `validate:"gt=0,lte=3.6"`   // Signalling voltage (Default 3.3)
	CommandTimeoutMs int     `validate:"gte=0"`          // Command timeout, 0 = driver default (Default 0)

	// NOTE: FAT mount settings:

	MaxFiles            int    `validate:"gte=1"` // Max simultaneously open files (Default 5)
	FormatIfMountFailed bool   // Format the card if it has no filesystem (Default false)
	AllocationUnitSize  int    `validate:"gte=0"`         // Cluster size used when formatting (Default 0 = sector size)
	MkdirPerm           uint32 `validate:"lte=511"`       // Permission bits for Mkdir (Default 0o666)
	PathCapacity        int    `validate:"gte=2,lte=129"` // Path buffer size incl. terminator (Default 129)
	ReadChunkSize       int    `validate:"gte=1"`         // Chunk size for File.ReadAll (Default 1024)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	FsName *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty" toml:"fs_name,omitempty"`
	Name   *string `yaml:"name,omitempty" json:"name,omitempty" toml:"name,omitempty"`
	Debug  *bool   `yaml:"fuse_debug,omitempty" json:"fuse_debug,omitempty" toml:"fuse_debug,omitempty"`

	MountPoint *string `yaml:"mount_point,omitempty" json:"mount_point,omitempty" toml:"mount_point,omitempty"`
	// LogLvl is a verbosity between ErrorVerbose (1) and TraceVerbose (5)
	LogLvl   *int    `yaml:"verbose,omitempty" json:"verbose,omitempty" toml:"verbose,omitempty"`
	Driver   *string `yaml:"driver,omitempty" json:"driver,omitempty" toml:"driver,omitempty"`
	CardDir  *string `yaml:"card_dir,omitempty" json:"card_dir,omitempty" toml:"card_dir,omitempty"`
	CardSize *uint64 `yaml:"card_size,omitempty" json:"card_size,omitempty" toml:"card_size,omitempty"`

	BusWidth         *int     `yaml:"bus_width,omitempty" json:"bus_width,omitempty" toml:"bus_width,omitempty"`
	SlotWidth        *int     `yaml:"slot_width,omitempty" json:"slot_width,omitempty" toml:"slot_width,omitempty"`
	Slot             *int     `yaml:"slot,omitempty" json:"slot,omitempty" toml:"slot,omitempty"`
	MaxFreqKHz       *int     `yaml:"max_freq_khz,omitempty" json:"max_freq_khz,omitempty" toml:"max_freq_khz,omitempty"`
	IOVoltage        *float64 `yaml:"io_voltage,omitempty" json:"io_voltage,omitempty" toml:"io_voltage,omitempty"`
	CommandTimeoutMs *int     `yaml:"command_timeout_ms,omitempty" json:"command_timeout_ms,omitempty" toml:"command_timeout_ms,omitempty"`

	MaxFiles            *int    `yaml:"max_files,omitempty" json:"max_files,omitempty" toml:"max_files,omitempty"`
	FormatIfMountFailed *bool   `yaml:"format_if_mount_failed,omitempty" json:"format_if_mount_failed,omitempty" toml:"format_if_mount_failed,omitempty"`
	AllocationUnitSize  *int    `yaml:"allocation_unit_size,omitempty" json:"allocation_unit_size,omitempty" toml:"allocation_unit_size,omitempty"`
	MkdirPerm           *uint32 `yaml:"mkdir_perm,omitempty" json:"mkdir_perm,omitempty" toml:"mkdir_perm,omitempty"`
	PathCapacity        *int    `yaml:"path_capacity,omitempty" json:"path_capacity,omitempty" toml:"path_capacity,omitempty"`
	ReadChunkSize       *int    `yaml:"read_chunk_size,omitempty" json:"read_chunk_size,omitempty" toml:"read_chunk_size,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		Export: ExportOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		MountPoint:          DefaultMountPoint,
		LogLvl:              DefaultLogLvl,
		Driver:              DefaultDriver,
		CardDir:             DefaultCardDir,
		CardSize:            DefaultCardSize,
		BusWidth:            DefaultBusWidth,
		SlotWidth:           DefaultSlotWidth,
		Slot:                DefaultSlot,
		MaxFreqKHz:          DefaultMaxFreqKHz,
		IOVoltage:           DefaultIOVoltage,
		CommandTimeoutMs:    DefaultCommandTimeoutMs,
		MaxFiles:            DefaultMaxFiles,
		FormatIfMountFailed: DefaultFormatIfMountFailed,
		AllocationUnitSize:  DefaultAllocationUnitSize,
		MkdirPerm:           DefaultMkdirPerm,
		PathCapacity:        DefaultPathCapacity,
		ReadChunkSize:       DefaultReadChunkSize,
	}
}

// NewConfig returns the defaults with override applied. A nil override
// yields the plain defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.Export.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Export.Name = *override.Name
	}
	if override.Debug != nil {
		c.Export.Debug = *override.Debug
	}
	if override.MountPoint != nil {
		c.MountPoint = *override.MountPoint
	}
	if override.LogLvl != nil {
		c.LogLvl = util.LevelFromVerbosity(*override.LogLvl)
	}
	if override.Driver != nil {
		c.Driver = *override.Driver
	}
	if override.CardDir != nil {
		c.CardDir = *override.CardDir
	}
	if override.CardSize != nil {
		c.CardSize = *override.CardSize
	}
	if override.BusWidth != nil {
		c.BusWidth = *override.BusWidth
	}
	if override.SlotWidth != nil {
		c.SlotWidth = *override.SlotWidth
	}
	if override.Slot != nil {
		c.Slot = *override.Slot
	}
	if override.MaxFreqKHz != nil {
		c.MaxFreqKHz = *override.MaxFreqKHz
	}
	if override.IOVoltage != nil {
		c.IOVoltage = *override.IOVoltage
	}
	if override.CommandTimeoutMs != nil {
		c.CommandTimeoutMs = *override.CommandTimeoutMs
	}
	if override.MaxFiles != nil {
		c.MaxFiles = *override.MaxFiles
	}
	if override.FormatIfMountFailed != nil {
		c.FormatIfMountFailed = *override.FormatIfMountFailed
	}
	if override.AllocationUnitSize != nil {
		c.AllocationUnitSize = *override.AllocationUnitSize
	}
	if override.MkdirPerm != nil {
		c.MkdirPerm = *override.MkdirPerm
	}
	if override.PathCapacity != nil {
		c.PathCapacity = *override.PathCapacity
	}
	if override.ReadChunkSize != nil {
		c.ReadChunkSize = *override.ReadChunkSize
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports YAML (.yaml, .yml), JSON (.json) and TOML (.toml) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults
// and validates the result.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg := NewConfig(override)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
