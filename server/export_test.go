package server

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/brettbedarf/sdfat/config"
	"github.com/brettbedarf/sdfat/drivers/simcard"
	"github.com/brettbedarf/sdfat/sdmmc"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestExport mounts a simulated card holding hello.txt and logs/.
func newTestExport(t *testing.T) (*Export, *dirNode) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	drv := simcard.NewWithCard(cfg.Slot, simcard.NewMemCard(cfg.CardSize))
	vol, err := sdmmc.Mount(drv, cfg.MountPoint, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { vol.Close() })

	f, err := vol.OpenFile("hello.txt", "w")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello card"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, vol.Mkdir("logs"))

	e := New(vol, cfg)
	root := e.Root().(*dirNode)
	// initializes the inode tree without a kernel mount
	fs.NewNodeFS(root, &fs.Options{})
	return e, root
}

func readDirNames(t *testing.T, stream fs.DirStream) map[string]uint32 {
	t.Helper()
	defer stream.Close()
	names := make(map[string]uint32)
	for stream.HasNext() {
		entry, errno := stream.Next()
		require.Equal(t, fs.OK, errno)
		names[entry.Name] = entry.Mode
	}
	return names
}

func TestReaddir_ListsVolumeWithoutDotEntries(t *testing.T) {
	t.Parallel()

	_, root := newTestExport(t)

	stream, errno := root.Readdir(context.Background())
	require.Equal(t, fs.OK, errno)

	names := readDirNames(t, stream)
	assert.Equal(t, map[string]uint32{
		"hello.txt": fuse.S_IFREG,
		"logs":      fuse.S_IFDIR,
	}, names)
}

func TestGetattr_RootIsReadOnlyDir(t *testing.T) {
	t.Parallel()

	_, root := newTestExport(t)

	var out fuse.AttrOut
	errno := root.Getattr(context.Background(), nil, &out)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, uint32(fuse.S_IFDIR), out.Attr.Mode&syscall.S_IFMT)
	assert.Zero(t, out.Attr.Mode&0o222, "write bits are masked")
}

func TestLookup(t *testing.T) {
	t.Parallel()

	_, root := newTestExport(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		wantErr  syscall.Errno
		wantMode uint32
		wantSize uint64
	}{
		{name: "hello.txt", wantErr: fs.OK, wantMode: fuse.S_IFREG, wantSize: 10},
		{name: "logs", wantErr: fs.OK, wantMode: fuse.S_IFDIR},
		{name: "missing.txt", wantErr: syscall.ENOENT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out fuse.EntryOut
			child, errno := root.Lookup(ctx, tt.name, &out)
			require.Equal(t, tt.wantErr, errno)
			if tt.wantErr != fs.OK {
				assert.Nil(t, child)
				return
			}
			require.NotNil(t, child)
			assert.Equal(t, tt.wantMode, out.Attr.Mode&syscall.S_IFMT)
			assert.Equal(t, tt.wantSize, out.Attr.Size)
			assert.Equal(t, tt.wantMode, child.StableAttr().Mode)
		})
	}
}

func TestLookup_Nested(t *testing.T) {
	t.Parallel()

	e, root := newTestExport(t)
	f, err := e.vol.OpenFile("logs/boot.log", "w")
	require.NoError(t, err)
	_, err = f.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ctx := context.Background()
	var out fuse.EntryOut
	logs, errno := root.Lookup(ctx, "logs", &out)
	require.Equal(t, fs.OK, errno)

	dir := logs.Operations().(*dirNode)
	assert.Equal(t, "logs", dir.rel)
	stream, errno := dir.Readdir(ctx)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, map[string]uint32{"boot.log": fuse.S_IFREG}, readDirNames(t, stream))
}

func TestFile_OpenAndRead(t *testing.T) {
	t.Parallel()

	e, _ := newTestExport(t)
	file := &fileNode{node{e: e, rel: "hello.txt"}}
	ctx := context.Background()

	fh, flags, errno := file.Open(ctx, syscall.O_RDONLY)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, uint32(fuse.FOPEN_KEEP_CACHE), flags)
	assert.Zero(t, e.vol.OpenHandles(), "content is read at open")

	tests := []struct {
		off  int64
		size int
		want string
	}{
		{off: 0, size: 64, want: "hello card"},
		{off: 6, size: 2, want: "ca"},
		{off: 10, size: 4, want: ""},
		{off: 100, size: 4, want: ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("off=%d,size=%d", tt.off, tt.size), func(t *testing.T) {
			dest := make([]byte, tt.size)
			res, errno := file.Read(ctx, fh, dest, tt.off)
			require.Equal(t, fs.OK, errno)
			got, status := res.Bytes(dest)
			require.Equal(t, fuse.OK, status)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFile_OpenRejectsWrites(t *testing.T) {
	t.Parallel()

	e, _ := newTestExport(t)
	file := &fileNode{node{e: e, rel: "hello.txt"}}

	for _, flags := range []uint32{syscall.O_WRONLY, syscall.O_RDWR, syscall.O_RDONLY | syscall.O_TRUNC} {
		_, _, errno := file.Open(context.Background(), flags)
		assert.Equal(t, syscall.EROFS, errno)
	}
}

func TestFile_OpenMissing(t *testing.T) {
	t.Parallel()

	e, _ := newTestExport(t)
	file := &fileNode{node{e: e, rel: "gone.txt"}}

	_, _, errno := file.Open(context.Background(), syscall.O_RDONLY)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestToErrno(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{name: "nil", err: nil, want: fs.OK},
		{name: "too long", err: fmt.Errorf("open: %w", sdmmc.ErrPathTooLong), want: syscall.ENAMETOOLONG},
		{name: "absent", err: fmt.Errorf("stat: %w", sdmmc.ErrAbsent), want: syscall.ENOENT},
		{name: "closed", err: sdmmc.ErrClosed, want: syscall.EIO},
		{name: "other", err: errors.New("boom"), want: syscall.EIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toErrno(tt.err))
		})
	}
}

func TestUnmount_NotServing(t *testing.T) {
	t.Parallel()

	e, _ := newTestExport(t)
	assert.NoError(t, e.Unmount())
	e.Wait()
}
