package sdmmc

import (
	"bytes"
	"io"
	"runtime"
	"time"

	"github.com/brettbedarf/sdfat"
	"github.com/brettbedarf/sdfat/config"
	"github.com/brettbedarf/sdfat/cpath"
)

// File is an open stream on the volume. It is not safe for concurrent use.
type File struct {
	o       *owned
	stream  sdfat.Stream
	cleanup runtime.Cleanup
}

// OpenFile opens name with a C mode string ("r", "w", "a", "r+", ...).
// A stream the driver refuses to open yields an error matching ErrAbsent.
func (vol *Volume) OpenFile(name, mode string) (*File, error) {
	v := vol.v
	p, err := v.path(name)
	if err != nil {
		return nil, err
	}
	m, err := cpathMode(mode)
	if err != nil {
		return nil, err
	}
	if err := v.acquire(); err != nil {
		return nil, err
	}

	start := time.Now()
	stream := v.drv.Open(p, m)
	if stream == 0 {
		errno := v.drv.Errno()
		v.release()
		v.logger.Debug().Str("path", p.String()).Str("mode", mode).Str("errno", errno.Error()).Msg("Open failed")
		err := absent("open", p.String(), errno)
		v.observe("open", start, err)
		return nil, err
	}
	v.observe("open", start, nil)

	drv := v.drv
	o := &owned{
		vol:         v,
		kind:        "file",
		path:        p.String(),
		closeNative: func() int { return drv.Close(stream) },
	}
	f := &File{o: o, stream: stream}
	f.cleanup = runtime.AddCleanup(f, collect, o)
	v.logger.Trace().Str("path", o.path).Str("mode", mode).Msg("File opened")
	return f, nil
}

// Name returns the full path the file was opened with.
func (f *File) Name() string {
	return f.o.path
}

// Write hands p to the native layer in one call. Anything short of len(p)
// bytes is reported as ErrWriteFailed; there is no retry.
func (f *File) Write(p []byte) (int, error) {
	if f.o.closed.Load() {
		return 0, ErrClosed
	}
	v := f.o.vol
	start := time.Now()
	n := v.drv.Write(f.stream, p)
	runtime.KeepAlive(f)
	v.metrics.RecordBytes("write", n)
	if n != len(p) {
		v.logger.Debug().Str("path", f.o.path).Int("want", len(p)).Int("wrote", n).
			Str("errno", v.drv.Errno().Error()).Msg("Short write")
		v.observe("write", start, ErrWriteFailed)
		return n, ErrWriteFailed
	}
	v.observe("write", start, nil)
	return n, nil
}

// Read reads up to len(p) bytes in one native call. A zero count is
// returned as io.EOF; the native layer does not tell end of file from a
// read error.
func (f *File) Read(p []byte) (int, error) {
	if f.o.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	v := f.o.vol
	start := time.Now()
	n := v.drv.Read(f.stream, p)
	runtime.KeepAlive(f)
	v.observe("read", start, nil)
	if n == 0 {
		return 0, io.EOF
	}
	v.metrics.RecordBytes("read", n)
	return n, nil
}

// ReadAll reads from the current position to the end in chunks of the
// configured read chunk size.
func (f *File) ReadAll() []byte {
	size := f.o.vol.cfg.ReadChunkSize
	if size < 1 {
		size = config.DefaultReadChunkSize
	}
	var out bytes.Buffer
	chunk := make([]byte, size)
	for {
		n, err := f.Read(chunk)
		if err != nil || n == 0 {
			return out.Bytes()
		}
		out.Write(chunk[:n])
	}
}

// Close releases the stream. Later calls do nothing. Native close failures
// are logged and never returned.
func (f *File) Close() error {
	f.cleanup.Stop()
	f.o.close()
	return nil
}

// cpathMode bounds the mode string like any other path handed to the driver.
func cpathMode(mode string) (cpath.Path, error) {
	m, err := cpath.New(mode)
	if err != nil {
		return cpath.Path{}, ErrPathTooLong
	}
	return m, nil
}

var _ io.ReadWriteCloser = (*File)(nil)
