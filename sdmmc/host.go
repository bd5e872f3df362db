package sdmmc

import (
	"github.com/brettbedarf/sdfat"
	"github.com/brettbedarf/sdfat/config"
)

// busFlags returns the host capability flags for a bus of width lines.
// Narrower modes stay enabled so the card can fall back.
func busFlags(width int) uint32 {
	switch width {
	case 8:
		return sdfat.HostFlag1Bit | sdfat.HostFlag4Bit | sdfat.HostFlag8Bit
	case 4:
		return sdfat.HostFlag1Bit | sdfat.HostFlag4Bit
	}
	return sdfat.HostFlag1Bit
}

func hostConfig(cfg *config.Config) *sdfat.HostConfig {
	return &sdfat.HostConfig{
		Flags:            busFlags(cfg.BusWidth),
		Slot:             cfg.Slot,
		MaxFreqKHz:       cfg.MaxFreqKHz,
		IOVoltage:        float32(cfg.IOVoltage),
		CommandTimeoutMs: cfg.CommandTimeoutMs,
	}
}

func slotConfig(cfg *config.Config) *sdfat.SlotConfig {
	return &sdfat.SlotConfig{
		GPIOCardDetect:   sdfat.GPIONotConnected,
		GPIOWriteProtect: sdfat.GPIONotConnected,
		Width:            uint8(cfg.SlotWidth),
	}
}

func mountConfig(cfg *config.Config) *sdfat.MountConfig {
	return &sdfat.MountConfig{
		FormatIfMountFailed: cfg.FormatIfMountFailed,
		MaxFiles:            cfg.MaxFiles,
		AllocationUnitSize:  cfg.AllocationUnitSize,
	}
}
