package simcard

import "github.com/brettbedarf/sdfat"

// SectorSize is the block size of every simulated card.
const SectorSize = 512

// Cluster count limits that decide the FAT variant.
const (
	maxFAT12Clusters = 4084
	maxFAT16Clusters = 65524
)

// maxClusterSectors bounds the allocation unit at 64KB.
const maxClusterSectors = 128

// geometry is the layout fixed when a card is formatted.
type geometry struct {
	fsType         uint8
	clusterSectors uint16
	clusters       uint32 // data clusters, excluding the two reserved FAT entries
}

func (g geometry) clusterBytes() int64 {
	return int64(g.clusterSectors) * SectorSize
}

// fatfs returns the FAT object reported by GetFree.
func (g geometry) fatfs(free uint32) *sdfat.FATFS {
	return &sdfat.FATFS{
		FSType:   g.fsType,
		Csize:    g.clusterSectors,
		Ssize:    SectorSize,
		NFatent:  g.clusters + 2,
		FreeClst: free,
	}
}

// clustersFor returns how many clusters size bytes occupy.
func (g geometry) clustersFor(size int64) int64 {
	if size <= 0 {
		return 0
	}
	cb := g.clusterBytes()
	return (size + cb - 1) / cb
}

// defaultClusterBytes picks the allocation unit a card ships with.
func defaultClusterBytes(capacity uint64) int {
	switch {
	case capacity <= 16<<20:
		return 1024
	case capacity <= 128<<20:
		return 2048
	case capacity <= 8<<30:
		return 4096
	case capacity <= 16<<30:
		return 8192
	case capacity <= 32<<30:
		return 16384
	}
	return 32768
}

// formatClusterBytes resolves the allocation unit used when formatting:
// 0 selects one sector, anything else is rounded down to a power of two
// sector multiple within the FAT limit.
func formatClusterBytes(allocUnit int) int {
	if allocUnit < SectorSize {
		return SectorSize
	}
	sectors := 1
	for sectors*2*SectorSize <= allocUnit && sectors < maxClusterSectors {
		sectors *= 2
	}
	return sectors * SectorSize
}

// newGeometry lays out a FAT volume of capacity bytes with clusters of
// clusterBytes. The reserved area, FAT copies and the fixed root directory
// of FAT12/16 are subtracted from the data region.
func newGeometry(capacity uint64, clusterBytes int) geometry {
	sectors := capacity / SectorSize
	csize := uint64(clusterBytes / SectorSize)

	// first pass assumes FAT32, refined once the cluster count is known
	fsType := sdfat.FSTypeFAT32
	var clusters uint64
	for range 2 {
		reserved, rootDir := uint64(1), uint64(32)
		entryBits := uint64(16)
		switch fsType {
		case sdfat.FSTypeFAT32:
			reserved, rootDir, entryBits = 32, 0, 32
		case sdfat.FSTypeFAT12:
			entryBits = 12
		}
		overhead := reserved + rootDir
		if sectors <= overhead {
			clusters = 0
			break
		}
		clusters = (sectors - overhead) / csize
		fatSectors := ((clusters+2)*entryBits/8 + SectorSize - 1) / SectorSize
		if sectors <= overhead+2*fatSectors {
			clusters = 0
			break
		}
		clusters = (sectors - overhead - 2*fatSectors) / csize

		switch {
		case clusters <= maxFAT12Clusters:
			fsType = sdfat.FSTypeFAT12
		case clusters <= maxFAT16Clusters:
			fsType = sdfat.FSTypeFAT16
		default:
			fsType = sdfat.FSTypeFAT32
		}
	}

	return geometry{
		fsType:         fsType,
		clusterSectors: uint16(csize),
		clusters:       uint32(min(clusters, 0x0FFFFFF5)),
	}
}
