package simcard

import (
	"os"
	"testing"

	"github.com/brettbedarf/sdfat"
	"github.com/stretchr/testify/assert"
)

func TestNewGeometry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		capacity     uint64
		clusterBytes int
		fsType       uint8
		csize        uint16
	}{
		{"64KB", 64 << 10, 1024, sdfat.FSTypeFAT12, 2},
		{"64MB", 64 << 20, 2048, sdfat.FSTypeFAT16, 4},
		{"4GB", 4 << 30, 4096, sdfat.FSTypeFAT32, 8},
		{"8MB sector clusters", 8 << 20, 512, sdfat.FSTypeFAT16, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := newGeometry(tt.capacity, tt.clusterBytes)

			assert.Equal(t, tt.fsType, g.fsType)
			assert.Equal(t, tt.csize, g.clusterSectors)
			assert.Positive(t, g.clusters)
			data := uint64(g.clusters) * uint64(g.clusterBytes())
			assert.Less(t, data, tt.capacity, "FAT overhead is subtracted")
		})
	}
}

func TestGeometry_ClustersFor(t *testing.T) {
	t.Parallel()

	g := geometry{clusterSectors: 4}
	assert.Equal(t, int64(0), g.clustersFor(0))
	assert.Equal(t, int64(1), g.clustersFor(1))
	assert.Equal(t, int64(1), g.clustersFor(2048))
	assert.Equal(t, int64(2), g.clustersFor(2049))
}

func TestFormatClusterBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 512, formatClusterBytes(0))
	assert.Equal(t, 512, formatClusterBytes(100))
	assert.Equal(t, 4096, formatClusterBytes(4096))
	assert.Equal(t, 4096, formatClusterBytes(6000))
	assert.Equal(t, 64<<10, formatClusterBytes(1<<20))
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode  string
		ok    bool
		flag  int
		read  bool
		write bool
		app   bool
	}{
		{"r", true, os.O_RDONLY, true, false, false},
		{"rb", true, os.O_RDONLY, true, false, false},
		{"r+", true, os.O_RDWR, true, true, false},
		{"w", true, os.O_WRONLY | os.O_CREATE | os.O_TRUNC, false, true, false},
		{"w+b", true, os.O_RDWR | os.O_CREATE | os.O_TRUNC, true, true, false},
		{"wx", true, os.O_WRONLY | os.O_CREATE | os.O_TRUNC | os.O_EXCL, false, true, false},
		{"a", true, os.O_WRONLY | os.O_CREATE, false, true, true},
		{"ab+", true, os.O_RDWR | os.O_CREATE, true, true, true},
		{"", false, 0, false, false, false},
		{"x", false, 0, false, false, false},
		{"rx", false, 0, false, false, false},
		{"r++", false, 0, false, false, false},
		{"rw", false, 0, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			t.Parallel()
			m, ok := parseMode(tt.mode)

			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.flag, m.flag)
			assert.Equal(t, tt.read, m.read)
			assert.Equal(t, tt.write, m.write)
			assert.Equal(t, tt.app, m.append)
		})
	}
}
