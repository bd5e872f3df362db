// Package server exports a mounted volume read-only over FUSE so the card
// content can be inspected with ordinary host tools.
package server

import (
	"context"
	"errors"
	"path"
	"syscall"

	"github.com/brettbedarf/sdfat/config"
	"github.com/brettbedarf/sdfat/internal/util"
	"github.com/brettbedarf/sdfat/sdmmc"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Export serves one volume at a host directory.
type Export struct {
	vol    *sdmmc.Volume
	cfg    *config.Config
	server *fuse.Server
	logger util.Logger
}

// New creates an Export for vol. The volume must stay open until Unmount.
func New(vol *sdmmc.Volume, cfg *config.Config) *Export {
	return &Export{
		vol:    vol,
		cfg:    cfg,
		logger: util.GetLogger("Export"),
	}
}

// Root returns the node for the volume's top directory.
func (e *Export) Root() fs.InodeEmbedder {
	return &dirNode{e: e}
}

// Serve mounts the export at dir and returns once the kernel sees it.
func (e *Export) Serve(dir string) error {
	opts := e.cfg.Export
	lvl := util.DebugLevel
	if e.cfg.LogLvl == util.TraceLevel {
		lvl = util.TraceLevel
	}
	srv, err := fs.Mount(dir, e.Root(), &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:   opts.Name,
			FsName: opts.FsName,
			Debug:  opts.Debug,
			Logger: util.NewLogLogger("FuseServer", lvl),
			// volume handles are owned by one goroutine at a time
			SingleThreaded: true,
			Options:        []string{"ro"},
		},
	})
	if err != nil {
		return err
	}
	e.server = srv
	e.logger.Info().Str("dir", dir).Str("volume", e.vol.MountPoint()).Msg("Volume exported")
	return nil
}

// ServeAsync runs Serve in a goroutine and reports its result.
func (e *Export) ServeAsync(dir string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- e.Serve(dir)
		close(done)
	}()

	return done
}

// Wait blocks until the export is unmounted.
func (e *Export) Wait() {
	if e.server != nil {
		e.server.Wait()
	}
}

// Unmount removes the export. The volume stays mounted.
func (e *Export) Unmount() error {
	if e.server == nil {
		return nil
	}
	return e.server.Unmount()
}

// toErrno maps volume errors onto FUSE replies.
func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return fs.OK
	case errors.Is(err, sdmmc.ErrPathTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, sdmmc.ErrAbsent):
		return syscall.ENOENT
	}
	return syscall.EIO
}

// fillAttr copies volume metadata into a FUSE attribute, without write bits.
func fillAttr(out *fuse.Attr, info sdmmc.StatInfo) {
	out.Mode = uint32(info.Mode.Perm()) & 0o555
	if info.IsDir() {
		out.Mode |= fuse.S_IFDIR
	} else {
		out.Mode |= fuse.S_IFREG
	}
	out.Size = uint64(info.Size)
	out.Nlink = 1
	mtime := uint64(info.ModTime.Unix())
	out.Mtime, out.Ctime, out.Atime = mtime, mtime, mtime
}

// node is shared by files and directories.
type node struct {
	fs.Inode
	e   *Export
	rel string // path below the volume root, "" for the root
}

func (n *node) child(name string) string {
	return path.Join(n.rel, name)
}

// Getattr implements fs.NodeGetattrer.
func (n *node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	info, err := n.e.vol.Stat(n.rel)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&out.Attr, info)
	return fs.OK
}

type dirNode struct {
	node
}

var _ = (fs.NodeLookuper)((*dirNode)(nil))
var _ = (fs.NodeReaddirer)((*dirNode)(nil))
var _ = (fs.NodeGetattrer)((*dirNode)(nil))

// Lookup implements fs.NodeLookuper.
func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	rel := d.child(name)
	info, err := d.e.vol.Stat(rel)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, info)

	if info.IsDir() {
		child := &dirNode{node{e: d.e, rel: rel}}
		return d.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR}), fs.OK
	}
	child := &fileNode{node{e: d.e, rel: rel}}
	return d.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG}), fs.OK
}

// Readdir implements fs.NodeReaddirer.
func (d *dirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	dir, err := d.e.vol.OpenDir(d.rel)
	if err != nil {
		return nil, toErrno(err)
	}
	defer dir.Close()

	var result []fuse.DirEntry
	for entry := range dir.Entries() {
		name, err := entry.Name()
		if err != nil {
			d.e.logger.Warn().Err(err).Str("dir", d.rel).Msg("Skipping undecodable entry")
			continue
		}
		if name == "." || name == ".." {
			continue
		}
		mode := uint32(fuse.S_IFREG)
		if entry.IsDir() {
			mode = fuse.S_IFDIR
		}
		result = append(result, fuse.DirEntry{Name: name, Mode: mode})
	}
	return fs.NewListDirStream(result), fs.OK
}

type fileNode struct {
	node
}

var _ = (fs.NodeOpener)((*fileNode)(nil))
var _ = (fs.NodeReader)((*fileNode)(nil))
var _ = (fs.NodeGetattrer)((*fileNode)(nil))

// fileHandle holds the content read when the file was opened.
type fileHandle struct {
	data []byte
}

// Open implements fs.NodeOpener. The file is read whole since streams on the
// volume cannot seek.
func (f *fileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	file, err := f.e.vol.OpenFile(f.rel, "r")
	if err != nil {
		return nil, 0, toErrno(err)
	}
	defer file.Close()
	return &fileHandle{data: file.ReadAll()}, fuse.FOPEN_KEEP_CACHE, fs.OK
}

// Read implements fs.NodeReader.
func (f *fileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h, ok := fh.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	if off >= int64(len(h.data)) {
		return fuse.ReadResultData(nil), fs.OK
	}
	end := min(off+int64(len(dest)), int64(len(h.data)))
	return fuse.ReadResultData(h.data[off:end]), fs.OK
}
