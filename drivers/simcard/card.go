package simcard

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/brettbedarf/sdfat"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Card is a simulated SD card. Its FAT content lives in an afero filesystem:
// memory for RAM cards or a host directory.
type Card struct {
	mu        sync.Mutex
	fs        afero.Fs
	hostDir   string // empty for memory cards
	id        uuid.UUID
	name      string
	capacity  uint64
	inserted  bool
	formatted bool
	geo       geometry
}

// NewMemCard returns an inserted, formatted card of capacity bytes backed by memory.
func NewMemCard(capacity uint64) *Card {
	c := newCard(afero.NewMemMapFs(), "", capacity)
	c.formatted = true
	c.geo = newGeometry(capacity, defaultClusterBytes(capacity))
	return c
}

// NewBlankCard returns an inserted memory card without a filesystem.
// Mounting it fails unless formatting on mount is enabled.
func NewBlankCard(capacity uint64) *Card {
	return newCard(afero.NewMemMapFs(), "", capacity)
}

// NewHostCard returns a formatted card whose files live under dir, which
// must exist. Files already in dir count against capacity.
func NewHostCard(dir string, capacity uint64) (*Card, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("card directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("card directory %s: %w", abs, fs.ErrInvalid)
	}

	c := newCard(afero.NewBasePathFs(afero.NewOsFs(), abs), abs, capacity)
	c.formatted = true
	c.geo = newGeometry(capacity, defaultClusterBytes(capacity))
	return c, nil
}

func newCard(backing afero.Fs, hostDir string, capacity uint64) *Card {
	id := uuid.New()
	return &Card{
		fs:       backing,
		hostDir:  hostDir,
		id:       id,
		name:     "SD" + id.String()[:3],
		capacity: capacity,
		inserted: true,
	}
}

// ID returns the card identification register.
func (c *Card) ID() [16]byte {
	return c.id
}

// Name returns the product name reported by the card.
func (c *Card) Name() string {
	return c.name
}

// Capacity returns the raw size in bytes.
func (c *Card) Capacity() uint64 {
	return c.capacity
}

// Fs exposes the backing filesystem for inspection in tests and tools.
func (c *Card) Fs() afero.Fs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fs
}

// Eject removes the card from its slot. A mounted volume stays registered
// but every call on it fails with EIO until the card is inserted again.
func (c *Card) Eject() {
	c.mu.Lock()
	c.inserted = false
	c.mu.Unlock()
}

// Insert puts the card back into its slot.
func (c *Card) Insert() {
	c.mu.Lock()
	c.inserted = true
	c.mu.Unlock()
}

// Inserted reports whether the card is in its slot.
func (c *Card) Inserted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inserted
}

// Formatted reports whether the card carries a FAT filesystem.
func (c *Card) Formatted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formatted
}

// format wipes the card and lays out a new filesystem with clusters of
// allocUnit bytes.
func (c *Card) format(allocUnit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hostDir == "" {
		c.fs = afero.NewMemMapFs()
	} else {
		entries, err := afero.ReadDir(c.fs, "/")
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := c.fs.RemoveAll("/" + e.Name()); err != nil {
				return err
			}
		}
	}
	c.geo = newGeometry(c.capacity, formatClusterBytes(allocUnit))
	c.formatted = true
	return nil
}

// state returns a consistent view of the card.
func (c *Card) state() (fsys afero.Fs, geo geometry, inserted, formatted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fs, c.geo, c.inserted, c.formatted
}

// usedClusters walks fsys and counts allocated clusters: file data rounded
// up to whole clusters plus one cluster per subdirectory. The FAT32 root
// directory also lives in a cluster.
func usedClusters(fsys afero.Fs, geo geometry) (int64, error) {
	var used int64
	if geo.fsType == sdfat.FSTypeFAT32 {
		used++
	}
	err := afero.Walk(fsys, "/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == "/" {
			return nil
		}
		if info.IsDir() {
			used++
			return nil
		}
		used += geo.clustersFor(info.Size())
		return nil
	})
	return used, err
}

// freeClusters returns the clusters still available on fsys.
func freeClusters(fsys afero.Fs, geo geometry) (int64, error) {
	used, err := usedClusters(fsys, geo)
	if err != nil {
		return 0, err
	}
	return max(int64(geo.clusters)-used, 0), nil
}
