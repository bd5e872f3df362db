package sdmmc

import (
	"io/fs"
	"path"
	"time"

	"github.com/brettbedarf/sdfat"
)

// SpaceInfo is the capacity of a mounted FAT volume.
// FreeBytes never exceeds TotalBytes.
type SpaceInfo struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// UsedBytes returns TotalBytes - FreeBytes.
func (s SpaceInfo) UsedBytes() uint64 {
	return s.TotalBytes - s.FreeBytes
}

// FAT attribute bits reported in StatInfo.Attr.
const (
	AttrReadOnly  uint8 = 0x01
	AttrHidden    uint8 = 0x02
	AttrSystem    uint8 = 0x04
	AttrDirectory uint8 = 0x10
	AttrArchive   uint8 = 0x20
)

// StatInfo describes a file or directory on the volume.
type StatInfo struct {
	Name    string      // last element of the path
	Size    int64       // 0 for directories
	Mode    fs.FileMode // permission bits plus fs.ModeDir for directories
	ModTime time.Time   // 2 second resolution
	Attr    uint8       // FAT attribute bits
}

// IsDir reports whether the entry is a directory.
func (s StatInfo) IsDir() bool {
	return s.Mode.IsDir()
}

// spaceFromFATFS converts the FAT object into byte counts. It reports false
// when the object is missing or inconsistent.
func spaceFromFATFS(fatfs *sdfat.FATFS) (SpaceInfo, bool) {
	if fatfs == nil || fatfs.NFatent < 2 {
		return SpaceInfo{}, false
	}
	cluster := fatfs.ClusterBytes()
	info := SpaceInfo{
		TotalBytes: cluster * uint64(fatfs.NFatent-2),
		FreeBytes:  cluster * uint64(fatfs.FreeClst),
	}
	if info.FreeBytes > info.TotalBytes {
		return SpaceInfo{}, false
	}
	return info, true
}

// Info queries total and free space. It reports false when the FAT metadata
// cannot be resolved, for example when the card was removed, or after Close.
func (vol *Volume) Info() (SpaceInfo, bool) {
	v := vol.v
	if v.isClosing() {
		return SpaceInfo{}, false
	}

	start := time.Now()
	_, fatfs, res := v.drv.GetFree(v.drive)
	info, ok := spaceFromFATFS(fatfs)
	if !ok {
		v.logger.Debug().Str("result", res.String()).Msg("Space query unresolved")
		v.observe("getfree", start, ErrAbsent)
		return SpaceInfo{}, false
	}
	v.observe("getfree", start, nil)
	v.metrics.SetSpace(info.TotalBytes, info.FreeBytes)
	return info, true
}

// Stat returns metadata for name. A path the driver cannot resolve yields
// an error matching ErrAbsent.
func (vol *Volume) Stat(name string) (StatInfo, error) {
	v := vol.v
	if v.isClosing() {
		return StatInfo{}, ErrClosed
	}
	p, err := v.path(name)
	if err != nil {
		return StatInfo{}, err
	}

	start := time.Now()
	var st sdfat.StatBuf
	if v.drv.Stat(p, &st) != 0 {
		errno := v.drv.Errno()
		v.logger.Debug().Str("path", p.String()).Str("errno", errno.Error()).Msg("Stat failed")
		err := absent("stat", p.String(), errno)
		v.observe("stat", start, err)
		return StatInfo{}, err
	}
	v.observe("stat", start, nil)
	return statInfo(path.Base(p.String()), &st), nil
}

func statInfo(name string, st *sdfat.StatBuf) StatInfo {
	info := StatInfo{
		Name:    name,
		Size:    st.Size,
		Mode:    fs.FileMode(st.Mode & 0o777),
		ModTime: time.Unix(st.Mtime, 0),
		Attr:    AttrArchive,
	}
	if st.IsDir() {
		info.Mode |= fs.ModeDir
		info.Attr = AttrDirectory
	}
	if st.Mode&0o222 == 0 {
		info.Attr |= AttrReadOnly
	}
	return info
}
