package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/brettbedarf/sdfat/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestNewConfig_WithNilOverride tests that NewConfig creates a config with all default values
// when no override is provided.
func TestNewConfig_WithNilOverride(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(nil)

	require.NotNil(t, cfg)
	assert.Equal(t, createDefaultCfg(), cfg, "must use default values when no config provided")
	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

// TestNewConfig_WithAllOverride tests that NewConfig properly applies every override.
func TestNewConfig_WithAllOverride(t *testing.T) {
	t.Parallel()

	override := createOverride()
	override.LogLvl = util.Pointer(TraceVerbose)
	cfg := NewConfig(override)

	expCfg := &Config{
		Export: ExportOptions{
			FsName: "test_fs",
			Name:   "test_name",
			Debug:  true,
		},
		MountPoint:          "/card",
		LogLvl:              util.TraceLevel,
		Driver:              "hostdir",
		CardDir:             "/tmp/card",
		CardSize:            *override.CardSize,
		BusWidth:            *override.BusWidth,
		SlotWidth:           *override.SlotWidth,
		Slot:                *override.Slot,
		MaxFreqKHz:          *override.MaxFreqKHz,
		IOVoltage:           *override.IOVoltage,
		CommandTimeoutMs:    *override.CommandTimeoutMs,
		MaxFiles:            *override.MaxFiles,
		FormatIfMountFailed: *override.FormatIfMountFailed,
		AllocationUnitSize:  *override.AllocationUnitSize,
		MkdirPerm:           *override.MkdirPerm,
		PathCapacity:        *override.PathCapacity,
		ReadChunkSize:       *override.ReadChunkSize,
	}
	require.NotNil(t, cfg)
	assert.Equal(t, expCfg, cfg, "must override all provided fields")
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Merge_LogLvlConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		verboseValue  int
		expectedLevel util.LogLevel
	}{
		{"verbose_1_error", 1, util.ErrorLevel},
		{"verbose_2_warn", 2, util.WarnLevel},
		{"verbose_3_info", 3, util.InfoLevel},
		{"verbose_4_debug", 4, util.DebugLevel},
		{"verbose_5_trace", 5, util.TraceLevel},
		{"verbose_0_clamped_to_1", 0, util.ErrorLevel},
		{"verbose_100_clamped_to_5", 100, util.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			override := &ConfigOverride{
				LogLvl: &tt.verboseValue,
			}

			cfg := NewConfig(override)

			assert.Equal(t, tt.expectedLevel, cfg.LogLvl,
				"CLI verbose %d should map to util.LogLevel %v", tt.verboseValue, tt.expectedLevel)
		})
	}
}

func TestConfig_Merge_NilOverrideVals(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(&ConfigOverride{})

	require.NotNil(t, cfg)
	assert.Equal(t, createDefaultCfg(), cfg, "must use default values for nil override fields")
}

func TestConfig_Merge_PartialOverride(t *testing.T) {
	t.Parallel()

	override := &ConfigOverride{
		FsName:   util.Pointer("test_fs"),
		MaxFiles: util.Pointer(DefaultMaxFiles + 1),
	}
	cfg := NewConfig(override)

	expCfg := createDefaultCfg()
	expCfg.Export.FsName = "test_fs"
	expCfg.MaxFiles = DefaultMaxFiles + 1

	require.NotNil(t, cfg)
	assert.Equal(t, expCfg, cfg, "must override all provided fields and leave rest default")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		errPart string
	}{
		{"bus width not supported", func(c *Config) { c.BusWidth = 2 }, "BusWidth"},
		{"bus wider than slot", func(c *Config) { c.BusWidth, c.SlotWidth = 8, 4 }, "bus_width"},
		{"clock too fast", func(c *Config) { c.MaxFreqKHz = 80_000 }, "MaxFreqKHz"},
		{"relative mount point", func(c *Config) { c.MountPoint = "sdcard" }, "MountPoint"},
		{"no open files", func(c *Config) { c.MaxFiles = 0 }, "MaxFiles"},
		{"path capacity over buffer", func(c *Config) { c.PathCapacity = 200 }, "PathCapacity"},
		{"path capacity below mount point", func(c *Config) { c.PathCapacity = 9 }, "path_capacity"},
		{"odd allocation unit", func(c *Config) { c.AllocationUnitSize = 1000 }, "allocation_unit_size"},
		{"permission bits", func(c *Config) { c.MkdirPerm = 0o1777 }, "MkdirPerm"},
		{"hostdir without dir", func(c *Config) { c.Driver = "hostdir" }, "card_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}

	t.Run("valid allocation unit", func(t *testing.T) {
		t.Parallel()
		cfg := NewDefaultConfig()
		cfg.AllocationUnitSize = 16 * 1024
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadConfigOverrideFile_Valid(t *testing.T) {
	t.Parallel()

	type tc struct {
		ext   string
		build func(t *testing.T) (*ConfigOverride, []byte)
	}

	cases := []tc{
		{
			ext: ".yaml",
			build: func(t *testing.T) (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := yaml.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
		{
			ext: ".yml",
			build: func(t *testing.T) (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := yaml.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
		{
			ext: ".json",
			build: func(t *testing.T) (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := json.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
	}

	for _, c := range cases {
		name := "valid" + c.ext
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			override, data := c.build(t)
			dir := t.TempDir()
			path := filepath.Join(dir, "override"+c.ext)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			loaded, err := LoadConfigOverrideFile(path)

			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, *override, *loaded)
		})
	}
}

func TestLoadConfigOverrideFile_HandWrittenYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "card.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mount_point: /sd\nmax_files: 8\nformat_if_mount_failed: true\n"), 0o600))

	cfg, err := NewConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/sd", cfg.MountPoint)
	assert.Equal(t, 8, cfg.MaxFiles)
	assert.True(t, cfg.FormatIfMountFailed)
	assert.Equal(t, DefaultMaxFreqKHz, cfg.MaxFreqKHz)
}

func TestLoadConfigOverrideFile_HandWrittenTOML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "card.toml")
	data := "driver = \"hostdir\"\ncard_dir = \"/tmp/card\"\nio_voltage = 1.8\nbus_width = 4\nfuse_debug = true\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := NewConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hostdir", cfg.Driver)
	assert.Equal(t, "/tmp/card", cfg.CardDir)
	assert.Equal(t, 1.8, cfg.IOVoltage)
	assert.Equal(t, 4, cfg.BusWidth)
	assert.True(t, cfg.Export.Debug)
	assert.Equal(t, DefaultMountPoint, cfg.MountPoint)
}

// TestLoadConfigOverrideFile_NonExistentFile tests error handling
// when trying to load a file that doesn't exist.
func TestLoadConfigOverrideFile_NonExistentFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "does_not_exist.yaml")

	_, err := LoadConfigOverrideFile(path)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err), "expected not exist error, got %v", err)
}

// TestLoadConfigOverrideFile_UnsupportedExtension tests error handling
// for file extensions that aren't supported (.txt, .xml, etc).
func TestLoadConfigOverrideFile_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "override.txt")
	require.NoError(t, os.WriteFile(path, []byte("max_files: 1"), 0o600))

	_, err := LoadConfigOverrideFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config file extension")
}

// TestNewConfigFromFile_FileError tests that file loading errors
// are properly propagated by the convenience function.
func TestNewConfigFromFile_FileError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := NewConfigFromFile(path)
	require.Error(t, err)
}

func TestNewConfigFromFile_InvalidValues(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bus_width": 3}`), 0o600))

	_, err := NewConfigFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BusWidth")
}

func createDefaultCfg() *Config {
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

// createOverride makes a ConfigOverride with all non-default values
func createOverride() *ConfigOverride {
	testLogVerbose := TraceVerbose
	if DefaultLogLvl == util.TraceLevel {
		testLogVerbose = DebugVerbose
	}
	return &ConfigOverride{
		FsName:              util.Pointer("test_fs"),
		Name:                util.Pointer("test_name"),
		Debug:               util.Pointer(true),
		MountPoint:          util.Pointer("/card"),
		LogLvl:              util.Pointer(testLogVerbose),
		Driver:              util.Pointer("hostdir"),
		CardDir:             util.Pointer("/tmp/card"),
		CardSize:            util.Pointer(uint64(DefaultCardSize * 2)),
		BusWidth:            util.Pointer(4),
		SlotWidth:           util.Pointer(8),
		Slot:                util.Pointer(0),
		MaxFreqKHz:          util.Pointer(40_000),
		IOVoltage:           util.Pointer(1.8),
		CommandTimeoutMs:    util.Pointer(500),
		MaxFiles:            util.Pointer(DefaultMaxFiles + 1),
		FormatIfMountFailed: util.Pointer(!DefaultFormatIfMountFailed),
		AllocationUnitSize:  util.Pointer(4096),
		MkdirPerm:           util.Pointer(uint32(0o755)),
		PathCapacity:        util.Pointer(DefaultPathCapacity - 1),
		ReadChunkSize:       util.Pointer(DefaultReadChunkSize * 4),
	}
}
