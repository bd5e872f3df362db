package sdfat

import "github.com/brettbedarf/sdfat/cpath"

// Stream is an open native file stream. The zero value is NULL.
type Stream uintptr

// DirStream is an open native directory stream. The zero value is NULL.
type DirStream uintptr

// Driver is the native filesystem and block-driver API.
//
// Integer returns follow the C conventions of the wrapped layer: 0 on
// success, non-zero on failure with details in [Driver.Errno].
type Driver interface {
	// Mount probes the card on the configured host slot and registers a FAT
	// volume under base. A second mount at the same base fails with
	// StatusInvalidState.
	Mount(base cpath.Path, host *HostConfig, slot *SlotConfig, mnt *MountConfig) (*Card, Status)

	// Unmount unregisters the volume mounted at base and releases card.
	Unmount(base cpath.Path, card *Card) Status

	// GetFree reports the free cluster count of a logical drive ("0:", "1:")
	// together with the filesystem object it was read from. fs is nil when
	// the drive cannot be resolved.
	GetFree(drive cpath.Path) (freeClusters uint32, fs *FATFS, res FResult)

	// Open opens path with an fopen mode string ("r", "w", "a", "r+", ...).
	// Returns 0 on failure.
	Open(path, mode cpath.Path) Stream
	Close(s Stream) int
	// Read reads up to len(buf) bytes and returns the count; 0 means end of
	// stream or error.
	Read(s Stream, buf []byte) int
	// Write writes buf and returns the count written.
	Write(s Stream, buf []byte) int

	// OpenDir opens a directory stream. Returns 0 on failure.
	OpenDir(path cpath.Path) DirStream
	// ReadDir returns the next entry or nil at the end. The returned Dirent is
	// owned by the stream and overwritten by the next call.
	ReadDir(d DirStream) *Dirent
	CloseDir(d DirStream) int

	Mkdir(path cpath.Path, perm uint32) int
	Rmdir(path cpath.Path) int
	Stat(path cpath.Path, st *StatBuf) int

	// Errno returns the error number left by the last failed call.
	Errno() Errno
}

// Host capability flags.
const (
	HostFlag1Bit uint32 = 1 << iota
	HostFlag4Bit
	HostFlag8Bit
	HostFlagDDR
)

// HostConfig describes the SD/MMC host controller.
type HostConfig struct {
	Flags            uint32  // HostFlag* bits; the widest bit sets the bus width
	Slot             int     // host slot the card is attached to
	MaxFreqKHz       int     // upper bound for the card clock
	IOVoltage        float32 // signalling voltage
	CommandTimeoutMs int     // 0 selects the driver default
}

// BusWidth returns the widest data bus enabled in Flags, or 0 if none is.
func (h *HostConfig) BusWidth() int {
	switch {
	case h.Flags&HostFlag8Bit != 0:
		return 8
	case h.Flags&HostFlag4Bit != 0:
		return 4
	case h.Flags&HostFlag1Bit != 0:
		return 1
	}
	return 0
}

// GPIONotConnected marks an unused card-detect or write-protect line.
const GPIONotConnected = -1

// SlotConfig describes how the card slot is wired.
type SlotConfig struct {
	GPIOCardDetect   int
	GPIOWriteProtect int
	Width            uint8 // lines physically wired to the slot
	Flags            uint32
}

// MountConfig controls the FAT layer at mount time.
type MountConfig struct {
	FormatIfMountFailed bool
	MaxFiles            int // simultaneously open files
	AllocationUnitSize  int // cluster size used when formatting; 0 = sector size
}

// Card is the native descriptor of an initialised card. It is allocated by
// Mount and must be handed back to Unmount unchanged.
type Card struct {
	Drive      uint8    // logical FAT drive number
	CID        [16]byte // card identification register
	Name       string   // product name from the CID
	SectorSize uint32
	Sectors    uint64
	MaxFreqKHz int // clock actually negotiated
	BusWidth   int
}

// Capacity returns the raw card size in bytes.
func (c *Card) Capacity() uint64 {
	return c.Sectors * uint64(c.SectorSize)
}

// FAT variants.
const (
	FSTypeFAT12 uint8 = 1 + iota
	FSTypeFAT16
	FSTypeFAT32
)

// FATFS is the subset of the FAT filesystem object needed for space accounting.
type FATFS struct {
	FSType   uint8
	Csize    uint16 // sectors per cluster
	Ssize    uint16 // bytes per sector
	NFatent  uint32 // FAT entries: cluster count + 2
	FreeClst uint32
}

// ClusterBytes returns the allocation unit in bytes.
func (f *FATFS) ClusterBytes() uint64 {
	return uint64(f.Csize) * uint64(f.Ssize)
}

// Directory entry types.
const (
	DTUnknown uint8 = iota
	DTReg
	DTDir
)

// NameMax is the longest entry name a Dirent holds, excluding the terminator.
const NameMax = 255

// Dirent is a directory entry as returned by ReadDir.
type Dirent struct {
	Ino  uint32
	Type uint8
	Name [NameMax + 1]byte // NUL-terminated
}

// NameBytes returns the name up to the terminator.
func (d *Dirent) NameBytes() []byte {
	for i, c := range d.Name {
		if c == 0 {
			return d.Name[:i]
		}
	}
	return d.Name[:]
}

// File mode bits used in StatBuf.Mode.
const (
	ModeTypeMask uint32 = 0o170000
	ModeDir      uint32 = 0o040000
	ModeRegular  uint32 = 0o100000
)

// StatBuf receives the result of Stat.
type StatBuf struct {
	Mode  uint32
	Size  int64
	Atime int64 // unix seconds
	Mtime int64
	Ctime int64
}

// IsDir reports whether the mode describes a directory.
func (st *StatBuf) IsDir() bool {
	return st.Mode&ModeTypeMask == ModeDir
}
