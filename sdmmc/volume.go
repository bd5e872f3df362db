// Package sdmmc gives safe access to a FAT formatted SD/MMC card.
//
// A [Volume] owns one mounted card. [File] and [Dir] handles are opened by
// name relative to the mount point and each holds a reference on the volume:
// closing the volume while handles are open only marks it closing, and the
// card is unmounted when the last handle is closed. Every native resource is
// released exactly once, either by Close or, for handles that were dropped
// without it, by a cleanup that also logs the leak.
package sdmmc

import (
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/brettbedarf/sdfat"
	"github.com/brettbedarf/sdfat/config"
	"github.com/brettbedarf/sdfat/cpath"
	"github.com/brettbedarf/sdfat/internal/util"
	"github.com/brettbedarf/sdfat/metrics"
)

// noCopy flags copies of a Volume under go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Volume is a mounted card. It must not be copied.
type Volume struct {
	_       noCopy
	v       *volume
	cleanup runtime.Cleanup
}

// volume is the state shared between a Volume and its handles. It never
// points back at the Volume so that an unreachable Volume can be cleaned up.
type volume struct {
	mountPoint string
	base       cpath.Path // built once, reused for unmount
	drive      cpath.Path // logical drive for space queries, "0:" for the first mount
	card       *sdfat.Card
	drv        sdfat.Driver
	cfg        *config.Config
	metrics    metrics.VolumeMetrics
	logger     util.Logger

	mu      sync.Mutex
	refs    int // live File and Dir handles
	closing bool
}

type options struct {
	metrics metrics.VolumeMetrics
}

// Option customizes Mount.
type Option func(*options)

// WithMetrics records volume activity to m.
func WithMetrics(m metrics.VolumeMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Mount initialises the card through drv and registers it at mountPoint.
// Host, slot and FAT settings come from cfg; a nil cfg uses the defaults.
//
// An invalid cfg is rejected before the driver is called.
// A non-OK native status is returned as *MountError. A mount point that
// does not fit the path buffer yields ErrPathTooLong without calling drv.
func Mount(drv sdfat.Driver, mountPoint string, cfg *config.Config, opts ...Option) (*Volume, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNoopVolumeMetrics()
	}
	logger := util.GetLogger("Volume").With().Str("mount", mountPoint).Logger()

	base, err := cpath.NewLimit(cfg.PathCapacity, mountPoint)
	if err != nil {
		return nil, ErrPathTooLong
	}

	host := hostConfig(cfg)
	card, status := drv.Mount(base, host, slotConfig(cfg), mountConfig(cfg))
	o.metrics.RecordMount(status.String())
	if status != sdfat.StatusOK {
		logger.Error().Str("status", status.String()).Msg("Mount failed")
		return nil, &MountError{Code: status}
	}
	if card == nil {
		logger.Error().Msg("Driver mounted without a card descriptor")
		return nil, &MountError{Code: sdfat.StatusInvalidState}
	}

	drive := cpath.MustNew(strconv.Itoa(int(card.Drive)), ":")
	v := &volume{
		mountPoint: mountPoint,
		base:       base,
		drive:      drive,
		card:       card,
		drv:        drv,
		cfg:        cfg,
		metrics:    o.metrics,
		logger:     logger,
	}
	vol := &Volume{v: v}
	vol.cleanup = runtime.AddCleanup(vol, func(v *volume) {
		if v.close() {
			v.logger.Error().Msg("Volume garbage collected without Close")
		}
	}, v)

	logger.Info().
		Str("card", card.Name).
		Uint64("capacity", card.Capacity()).
		Int("bus_width", card.BusWidth).
		Int("freq_khz", card.MaxFreqKHz).
		Uint8("drive", card.Drive).
		Msg("Volume mounted")
	return vol, nil
}

// MountPoint returns the path the volume is registered under.
func (vol *Volume) MountPoint() string {
	return vol.v.mountPoint
}

// Card returns the native card descriptor. It is owned by the volume.
func (vol *Volume) Card() *sdfat.Card {
	return vol.v.card
}

// OpenHandles returns the number of files and directories not yet closed.
func (vol *Volume) OpenHandles() int {
	vol.v.mu.Lock()
	defer vol.v.mu.Unlock()
	return vol.v.refs
}

// Close unmounts the card. With handles still open the unmount happens when
// the last of them is closed; new opens fail with ErrClosed right away.
// Unmount failures are logged. Close is idempotent and always returns nil.
func (vol *Volume) Close() error {
	vol.cleanup.Stop()
	vol.v.close()
	return nil
}

// path builds mountPoint + "/" + name within the configured capacity.
func (v *volume) path(name string) (cpath.Path, error) {
	p, err := cpath.NewLimit(v.cfg.PathCapacity, v.mountPoint, "/", name)
	if err != nil {
		return cpath.Path{}, ErrPathTooLong
	}
	return p, nil
}

func (v *volume) isClosing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closing
}

// acquire takes a reference for a new handle.
func (v *volume) acquire() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closing {
		return ErrClosed
	}
	v.refs++
	v.metrics.SetOpenHandles(v.refs)
	return nil
}

// release drops a handle reference and finishes a pending unmount.
func (v *volume) release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refs--
	v.metrics.SetOpenHandles(v.refs)
	if v.closing && v.refs == 0 {
		v.unmountLocked()
	}
}

// close marks the volume closing and reports whether this call did it.
func (v *volume) close() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closing {
		return false
	}
	v.closing = true
	if v.refs > 0 {
		v.logger.Info().Int("handles", v.refs).Msg("Unmount deferred until handles are closed")
		return true
	}
	v.unmountLocked()
	return true
}

func (v *volume) unmountLocked() {
	start := time.Now()
	status := v.drv.Unmount(v.base, v.card)
	v.metrics.RecordUnmount()
	if status != sdfat.StatusOK {
		v.logger.Warn().Str("status", status.String()).Dur("took", time.Since(start)).Msg("Unmount failed")
		return
	}
	v.logger.Info().Dur("took", time.Since(start)).Msg("Volume unmounted")
}

// observe records the duration and outcome of op.
func (v *volume) observe(op string, start time.Time, err error) {
	v.metrics.RecordOperation(op, time.Since(start), err)
}
