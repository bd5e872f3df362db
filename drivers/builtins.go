package drivers

import (
	"github.com/brettbedarf/sdfat"
	"github.com/brettbedarf/sdfat/config"
	"github.com/brettbedarf/sdfat/drivers/simcard"
)

type BuiltInDriverType = string

const (
	// MemoryDriverType simulates a formatted card held in RAM
	MemoryDriverType BuiltInDriverType = "memory"
	// HostDirDriverType simulates a card whose files live in config.Config.CardDir
	HostDirDriverType BuiltInDriverType = "hostdir"
)

// RegisterBuiltins registers all built-in drivers with r, or only the named ones.
func RegisterBuiltins(r *Registry, names ...BuiltInDriverType) {
	if len(names) == 0 {
		names = append(names, MemoryDriverType, HostDirDriverType)
	}

	for _, name := range names {
		switch name {
		case MemoryDriverType:
			r.Register(name, newMemoryDriver)
		case HostDirDriverType:
			r.Register(name, newHostDirDriver)
		}
	}
}

func newMemoryDriver(cfg *config.Config) (sdfat.Driver, error) {
	return simcard.NewWithCard(cfg.Slot, simcard.NewMemCard(cfg.CardSize)), nil
}

func newHostDirDriver(cfg *config.Config) (sdfat.Driver, error) {
	card, err := simcard.NewHostCard(cfg.CardDir, cfg.CardSize)
	if err != nil {
		return nil, err
	}
	return simcard.NewWithCard(cfg.Slot, card), nil
}
