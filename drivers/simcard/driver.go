// Package simcard simulates an SD/MMC host with a FAT virtual filesystem.
//
// A [Driver] implements sdfat.Driver on top of [Card] values plugged into
// host slots. Card content is kept in an afero filesystem while the FAT
// layout (sector and cluster sizes, cluster accounting, open file limits and
// errno values) follows what the embedded stack reports.
package simcard

import (
	"io"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/sdfat"
	"github.com/brettbedarf/sdfat/cpath"
	"github.com/brettbedarf/sdfat/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/spf13/afero"
)

// MaxDrives is the number of logical FAT drives that can be mounted at once.
const MaxDrives = 2

// MaxCardFreqKHz is the fastest clock the simulated cards accept.
const MaxCardFreqKHz = 50_000

// invalidNameChars may not appear in FAT long file names.
const invalidNameChars = "\"*:<>?\\|"

// mount is one registered FAT volume.
type mount struct {
	mu        sync.Mutex // serializes FAT access on the volume
	base      string
	card      *Card
	desc      *sdfat.Card
	maxFiles  int
	openFiles int
}

// ready returns the card content, or EIO when the card was pulled or lost
// its filesystem.
func (m *mount) ready() (afero.Fs, geometry, sdfat.Errno) {
	fsys, geo, inserted, formatted := m.card.state()
	if !inserted || !formatted {
		return nil, geometry{}, sdfat.EIO
	}
	return fsys, geo, 0
}

type stream struct {
	m    *mount
	f    afero.File
	mode openMode
}

type dirEntry struct {
	name string
	dir  bool
}

type dirStream struct {
	m       *mount
	entries []dirEntry
	next    int
	buf     sdfat.Dirent
}

// Driver is a simulated sdfat.Driver. The zero value is not usable; create
// one with [New].
type Driver struct {
	slots   *xsync.Map[int, *Card]
	mounts  *xsync.Map[string, *mount]
	streams *xsync.Map[sdfat.Stream, *stream]
	dirs    *xsync.Map[sdfat.DirStream, *dirStream]
	mountMu sync.Mutex // serializes Mount and Unmount
	nextID  atomic.Uintptr
	errno   atomic.Int32
	logger  util.Logger
}

// New returns a driver with empty slots.
func New() *Driver {
	return &Driver{
		slots:   xsync.NewMap[int, *Card](),
		mounts:  xsync.NewMap[string, *mount](),
		streams: xsync.NewMap[sdfat.Stream, *stream](),
		dirs:    xsync.NewMap[sdfat.DirStream, *dirStream](),
		logger:  util.GetLogger("SimCard"),
	}
}

// NewWithCard returns a driver with c plugged into slot.
func NewWithCard(slot int, c *Card) *Driver {
	d := New()
	d.InsertCard(slot, c)
	return d
}

// InsertCard plugs c into slot, replacing any card already there.
func (d *Driver) InsertCard(slot int, c *Card) {
	d.slots.Store(slot, c)
}

// RemoveCard unplugs the card in slot. Volumes mounted from it stay
// registered and fail with EIO.
func (d *Driver) RemoveCard(slot int) {
	if c, ok := d.slots.LoadAndDelete(slot); ok {
		c.Eject()
	}
}

// OpenStreams returns the number of live file and directory streams.
func (d *Driver) OpenStreams() int {
	return d.streams.Size() + d.dirs.Size()
}

func (d *Driver) fail(e sdfat.Errno) {
	d.errno.Store(int32(e))
}

// Errno returns the error number of the last failed call.
func (d *Driver) Errno() sdfat.Errno {
	return sdfat.Errno(d.errno.Load())
}

func (d *Driver) Mount(base cpath.Path, host *sdfat.HostConfig, slot *sdfat.SlotConfig, mnt *sdfat.MountConfig) (*sdfat.Card, sdfat.Status) {
	if base.IsZero() || host == nil || slot == nil || mnt == nil {
		return nil, sdfat.StatusInvalidArg
	}
	width := host.BusWidth()
	if width == 0 || width > int(slot.Width) {
		d.logger.Debug().Int("bus", width).Uint8("slot", slot.Width).Msg("Bus width not supported by slot")
		return nil, sdfat.StatusInvalidArg
	}
	if host.MaxFreqKHz <= 0 || host.IOVoltage <= 0 || host.IOVoltage > 3.6 || mnt.MaxFiles < 1 {
		return nil, sdfat.StatusInvalidArg
	}

	d.mountMu.Lock()
	defer d.mountMu.Unlock()

	b := base.String()
	if _, ok := d.mounts.Load(b); ok {
		return nil, sdfat.StatusInvalidState
	}

	card, ok := d.slots.Load(host.Slot)
	if !ok || !card.Inserted() {
		d.logger.Debug().Int("slot", host.Slot).Msg("No card responding")
		return nil, sdfat.StatusTimeout
	}

	drive := d.freeDrive()
	if drive < 0 {
		return nil, sdfat.StatusNoMem
	}

	if !card.Formatted() {
		if !mnt.FormatIfMountFailed {
			d.logger.Debug().Str("base", b).Msg("No FAT filesystem on card")
			return nil, sdfat.StatusFail
		}
		if err := card.format(mnt.AllocationUnitSize); err != nil {
			d.logger.Warn().Err(err).Str("base", b).Msg("Format failed")
			return nil, sdfat.StatusFail
		}
		d.logger.Info().Str("base", b).Int("allocation_unit", mnt.AllocationUnitSize).Msg("Card formatted")
	}

	desc := &sdfat.Card{
		Drive:      uint8(drive),
		CID:        card.ID(),
		Name:       card.Name(),
		SectorSize: SectorSize,
		Sectors:    card.Capacity() / SectorSize,
		MaxFreqKHz: min(host.MaxFreqKHz, MaxCardFreqKHz),
		BusWidth:   width,
	}
	d.mounts.Store(b, &mount{
		base:     b,
		card:     card,
		desc:     desc,
		maxFiles: mnt.MaxFiles,
	})
	d.logger.Debug().Str("base", b).Uint8("drive", desc.Drive).Str("card", desc.Name).Msg("Card mounted")
	return desc, sdfat.StatusOK
}

// freeDrive returns the lowest unused drive number or -1. Callers hold mountMu.
func (d *Driver) freeDrive() int {
	var used [MaxDrives]bool
	d.mounts.Range(func(_ string, m *mount) bool {
		used[m.desc.Drive] = true
		return true
	})
	for i, u := range used {
		if !u {
			return i
		}
	}
	return -1
}

func (d *Driver) Unmount(base cpath.Path, card *sdfat.Card) sdfat.Status {
	d.mountMu.Lock()
	defer d.mountMu.Unlock()

	b := base.String()
	m, ok := d.mounts.Load(b)
	if !ok {
		return sdfat.StatusInvalidState
	}
	if card == nil || card != m.desc {
		return sdfat.StatusInvalidArg
	}
	d.mounts.Delete(b)

	m.mu.Lock()
	defer m.mu.Unlock()

	// streams left open are invalidated with the volume
	stale := 0
	d.streams.Range(func(id sdfat.Stream, s *stream) bool {
		if s.m == m {
			_ = s.f.Close()
			d.streams.Delete(id)
			stale++
		}
		return true
	})
	d.dirs.Range(func(id sdfat.DirStream, ds *dirStream) bool {
		if ds.m == m {
			d.dirs.Delete(id)
			stale++
		}
		return true
	})
	m.openFiles = 0
	if stale > 0 {
		d.logger.Warn().Str("base", b).Int("streams", stale).Msg("Unmounted with open streams")
	}
	d.logger.Debug().Str("base", b).Msg("Card unmounted")
	return sdfat.StatusOK
}

func (d *Driver) GetFree(drive cpath.Path) (uint32, *sdfat.FATFS, sdfat.FResult) {
	num, ok := parseDrive(drive.String())
	if !ok {
		return 0, nil, sdfat.FRInvalidDrive
	}

	var m *mount
	d.mounts.Range(func(_ string, candidate *mount) bool {
		if int(candidate.desc.Drive) == num {
			m = candidate
			return false
		}
		return true
	})
	if m == nil {
		return 0, nil, sdfat.FRNotEnabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fsys, geo, inserted, formatted := m.card.state()
	switch {
	case !inserted:
		return 0, nil, sdfat.FRNotReady
	case !formatted:
		return 0, nil, sdfat.FRNoFilesystem
	}
	free, err := freeClusters(fsys, geo)
	if err != nil {
		d.logger.Debug().Err(err).Str("base", m.base).Msg("Cluster scan failed")
		return 0, nil, sdfat.FRDiskErr
	}
	return uint32(free), geo.fatfs(uint32(free)), sdfat.FROK
}

// parseDrive reads a logical drive prefix such as "0:".
func parseDrive(s string) (int, bool) {
	num, ok := strings.CutSuffix(s, ":")
	if !ok || num == "" {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 || n >= MaxDrives {
		return 0, false
	}
	return n, true
}

// lookup resolves p to its volume and the path inside the card.
func (d *Driver) lookup(p cpath.Path) (*mount, string, sdfat.Errno) {
	full := p.String()
	var (
		found *mount
		rel   string
	)
	d.mounts.Range(func(base string, m *mount) bool {
		if full == base || strings.HasPrefix(full, base+"/") {
			found, rel = m, full[len(base):]
			return false
		}
		return true
	})
	if found == nil {
		return nil, "", sdfat.ENOENT
	}

	rel = path.Clean("/" + rel)
	for _, part := range strings.Split(rel[1:], "/") {
		if len(part) > sdfat.NameMax {
			return nil, "", sdfat.ENAMETOOLONG
		}
		if strings.ContainsAny(part, invalidNameChars) {
			return nil, "", sdfat.EINVAL
		}
	}
	return found, rel, 0
}

// checkParent verifies that the directory holding rel exists.
func checkParent(fsys afero.Fs, rel string) sdfat.Errno {
	info, err := fsys.Stat(path.Dir(rel))
	if err != nil {
		return sdfat.ENOENT
	}
	if !info.IsDir() {
		return sdfat.ENOTDIR
	}
	return 0
}

func (d *Driver) Open(p, mode cpath.Path) sdfat.Stream {
	om, ok := parseMode(mode.String())
	if !ok {
		d.fail(sdfat.EINVAL)
		return 0
	}
	m, rel, errno := d.lookup(p)
	if errno != 0 {
		d.fail(errno)
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fsys, _, errno := m.ready()
	if errno != 0 {
		d.fail(errno)
		return 0
	}
	if m.openFiles >= m.maxFiles {
		d.fail(sdfat.ENFILE)
		return 0
	}

	info, err := fsys.Stat(rel)
	switch {
	case err == nil && info.IsDir():
		d.fail(sdfat.EISDIR)
		return 0
	case err == nil && om.flag&os.O_EXCL != 0:
		d.fail(sdfat.EEXIST)
		return 0
	case err != nil && om.flag&os.O_CREATE == 0:
		d.fail(sdfat.ENOENT)
		return 0
	case err != nil:
		if errno := checkParent(fsys, rel); errno != 0 {
			d.fail(errno)
			return 0
		}
	}

	f, err := fsys.OpenFile(rel, om.flag, 0o666)
	if err != nil {
		d.logger.Debug().Err(err).Str("path", rel).Msg("Open failed")
		d.fail(errnoFor(err))
		return 0
	}

	id := sdfat.Stream(d.nextID.Add(1))
	d.streams.Store(id, &stream{m: m, f: f, mode: om})
	m.openFiles++
	return id
}

func (d *Driver) Close(s sdfat.Stream) int {
	st, ok := d.streams.LoadAndDelete(s)
	if !ok {
		d.fail(sdfat.EBADF)
		return -1
	}

	st.m.mu.Lock()
	defer st.m.mu.Unlock()

	st.m.openFiles--
	if err := st.f.Close(); err != nil {
		d.fail(sdfat.EIO)
		return -1
	}
	return 0
}

func (d *Driver) Read(s sdfat.Stream, buf []byte) int {
	st, ok := d.streams.Load(s)
	if !ok {
		d.fail(sdfat.EBADF)
		return 0
	}

	st.m.mu.Lock()
	defer st.m.mu.Unlock()

	if _, _, errno := st.m.ready(); errno != 0 {
		d.fail(errno)
		return 0
	}
	if !st.mode.read {
		d.fail(sdfat.EBADF)
		return 0
	}
	if len(buf) == 0 {
		return 0
	}

	n, err := io.ReadFull(st.f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		d.fail(sdfat.EIO)
	}
	return n
}

func (d *Driver) Write(s sdfat.Stream, buf []byte) int {
	st, ok := d.streams.Load(s)
	if !ok {
		d.fail(sdfat.EBADF)
		return 0
	}

	st.m.mu.Lock()
	defer st.m.mu.Unlock()

	fsys, geo, errno := st.m.ready()
	if errno != 0 {
		d.fail(errno)
		return 0
	}
	if !st.mode.write {
		d.fail(sdfat.EBADF)
		return 0
	}
	if len(buf) == 0 {
		return 0
	}

	if st.mode.append {
		if _, err := st.f.Seek(0, io.SeekEnd); err != nil {
			d.fail(sdfat.EIO)
			return 0
		}
	}
	pos, err := st.f.Seek(0, io.SeekCurrent)
	if err != nil {
		d.fail(sdfat.EIO)
		return 0
	}
	info, err := st.f.Stat()
	if err != nil {
		d.fail(sdfat.EIO)
		return 0
	}
	free, err := freeClusters(fsys, geo)
	if err != nil {
		d.fail(sdfat.EIO)
		return 0
	}

	// bytes that fit in the clusters the file owns plus the free ones
	limit := (geo.clustersFor(info.Size())+free)*geo.clusterBytes() - pos
	n, short := len(buf), false
	if int64(n) > limit {
		n, short = int(max(limit, 0)), true
	}

	w, err := st.f.Write(buf[:n])
	if err != nil {
		d.fail(sdfat.EIO)
		return w
	}
	if short {
		d.fail(sdfat.ENOSPC)
	}
	return w
}

func (d *Driver) OpenDir(p cpath.Path) sdfat.DirStream {
	m, rel, errno := d.lookup(p)
	if errno != 0 {
		d.fail(errno)
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fsys, _, errno := m.ready()
	if errno != 0 {
		d.fail(errno)
		return 0
	}
	info, err := fsys.Stat(rel)
	if err != nil {
		d.fail(sdfat.ENOENT)
		return 0
	}
	if !info.IsDir() {
		d.fail(sdfat.ENOTDIR)
		return 0
	}

	infos, err := afero.ReadDir(fsys, rel)
	if err != nil {
		d.fail(sdfat.EIO)
		return 0
	}
	entries := make([]dirEntry, 0, len(infos)+2)
	entries = append(entries, dirEntry{".", true}, dirEntry{"..", true})
	for _, fi := range infos {
		entries = append(entries, dirEntry{fi.Name(), fi.IsDir()})
	}

	id := sdfat.DirStream(d.nextID.Add(1))
	d.dirs.Store(id, &dirStream{m: m, entries: entries})
	return id
}

func (d *Driver) ReadDir(ds sdfat.DirStream) *sdfat.Dirent {
	st, ok := d.dirs.Load(ds)
	if !ok {
		d.fail(sdfat.EBADF)
		return nil
	}

	st.m.mu.Lock()
	defer st.m.mu.Unlock()

	if _, _, errno := st.m.ready(); errno != 0 {
		d.fail(errno)
		return nil
	}
	if st.next >= len(st.entries) {
		return nil
	}

	e := st.entries[st.next]
	st.next++
	st.buf = sdfat.Dirent{Ino: uint32(st.next), Type: sdfat.DTReg}
	if e.dir {
		st.buf.Type = sdfat.DTDir
	}
	copy(st.buf.Name[:sdfat.NameMax], e.name)
	return &st.buf
}

func (d *Driver) CloseDir(ds sdfat.DirStream) int {
	if _, ok := d.dirs.LoadAndDelete(ds); !ok {
		d.fail(sdfat.EBADF)
		return -1
	}
	return 0
}

func (d *Driver) Mkdir(p cpath.Path, perm uint32) int {
	m, rel, errno := d.lookup(p)
	if errno != 0 {
		d.fail(errno)
		return -1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fsys, geo, errno := m.ready()
	if errno != 0 {
		d.fail(errno)
		return -1
	}
	if _, err := fsys.Stat(rel); err == nil {
		d.fail(sdfat.EEXIST)
		return -1
	}
	if errno := checkParent(fsys, rel); errno != 0 {
		d.fail(errno)
		return -1
	}
	if free, err := freeClusters(fsys, geo); err != nil || free < 1 {
		d.fail(sdfat.ENOSPC)
		return -1
	}

	// FAT keeps no permission bits; the backing directory must stay traversable
	if err := fsys.Mkdir(rel, fs.FileMode(perm)|0o700); err != nil {
		d.logger.Debug().Err(err).Str("path", rel).Msg("Mkdir failed")
		d.fail(errnoFor(err))
		return -1
	}
	return 0
}

func (d *Driver) Rmdir(p cpath.Path) int {
	m, rel, errno := d.lookup(p)
	if errno != 0 {
		d.fail(errno)
		return -1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fsys, _, errno := m.ready()
	if errno != 0 {
		d.fail(errno)
		return -1
	}
	if rel == "/" {
		d.fail(sdfat.EBUSY)
		return -1
	}
	info, err := fsys.Stat(rel)
	if err != nil {
		d.fail(sdfat.ENOENT)
		return -1
	}
	if !info.IsDir() {
		d.fail(sdfat.ENOTDIR)
		return -1
	}
	if empty, err := afero.IsEmpty(fsys, rel); err != nil || !empty {
		d.fail(sdfat.ENOTEMPTY)
		return -1
	}
	if err := fsys.Remove(rel); err != nil {
		d.fail(errnoFor(err))
		return -1
	}
	return 0
}

func (d *Driver) Stat(p cpath.Path, st *sdfat.StatBuf) int {
	m, rel, errno := d.lookup(p)
	if errno != 0 {
		d.fail(errno)
		return -1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fsys, _, errno := m.ready()
	if errno != 0 {
		d.fail(errno)
		return -1
	}
	info, err := fsys.Stat(rel)
	if err != nil {
		d.fail(sdfat.ENOENT)
		return -1
	}

	*st = sdfat.StatBuf{Mode: sdfat.ModeRegular | 0o777, Size: info.Size()}
	if info.IsDir() {
		st.Mode = sdfat.ModeDir | 0o777
		st.Size = 0
	}
	// FAT keeps modification times in 2 second steps and access as a date
	mtime := info.ModTime().Unix()
	mtime -= mtime % 2
	st.Mtime, st.Ctime = mtime, mtime
	st.Atime = mtime - mtime%86400
	return 0
}

// errnoFor maps a backing filesystem error onto an errno.
func errnoFor(err error) sdfat.Errno {
	switch {
	case os.IsNotExist(err):
		return sdfat.ENOENT
	case os.IsExist(err):
		return sdfat.EEXIST
	case os.IsPermission(err):
		return sdfat.EACCES
	}
	return sdfat.EIO
}

var _ sdfat.Driver = (*Driver)(nil)
