package sdmmc

import (
	"bytes"
	"fmt"
	"iter"
	"runtime"
	"time"
	"unicode/utf8"

	"github.com/brettbedarf/sdfat"
)

// Dir is an open directory stream. Entries are produced lazily, forward
// only, and the stream cannot be restarted.
type Dir struct {
	o       *owned
	stream  sdfat.DirStream
	done    bool
	cleanup runtime.Cleanup
}

// DirEntry is a view of the directory stream's entry buffer. It is valid
// until the next Next call or Close; use Name to keep a copy.
type DirEntry struct {
	ent *sdfat.Dirent
}

// OpenDir opens the directory name. A stream the driver refuses to open
// yields an error matching ErrAbsent.
func (vol *Volume) OpenDir(name string) (*Dir, error) {
	v := vol.v
	p, err := v.path(name)
	if err != nil {
		return nil, err
	}
	if err := v.acquire(); err != nil {
		return nil, err
	}

	start := time.Now()
	stream := v.drv.OpenDir(p)
	if stream == 0 {
		errno := v.drv.Errno()
		v.release()
		v.logger.Debug().Str("path", p.String()).Str("errno", errno.Error()).Msg("Opendir failed")
		err := absent("opendir", p.String(), errno)
		v.observe("opendir", start, err)
		return nil, err
	}
	v.observe("opendir", start, nil)

	drv := v.drv
	o := &owned{
		vol:         v,
		kind:        "dir",
		path:        p.String(),
		closeNative: func() int { return drv.CloseDir(stream) },
	}
	d := &Dir{o: o, stream: stream}
	d.cleanup = runtime.AddCleanup(d, collect, o)
	return d, nil
}

// Next fetches the next entry. Once it reports false every later call does
// too.
func (d *Dir) Next() (DirEntry, bool) {
	if d.done || d.o.closed.Load() {
		return DirEntry{}, false
	}
	ent := d.o.vol.drv.ReadDir(d.stream)
	runtime.KeepAlive(d)
	if ent == nil {
		d.done = true
		return DirEntry{}, false
	}
	return DirEntry{ent: ent}, true
}

// Entries returns an iterator over the remaining entries. It shares the
// stream with Next, so a second range over it continues where the first
// stopped.
func (d *Dir) Entries() iter.Seq[DirEntry] {
	return func(yield func(DirEntry) bool) {
		for {
			e, ok := d.Next()
			if !ok || !yield(e) {
				return
			}
		}
	}
}

// Close releases the stream. Later calls do nothing.
func (d *Dir) Close() error {
	d.cleanup.Stop()
	d.o.close()
	return nil
}

// Name decodes the entry name as UTF-8.
func (e DirEntry) Name() (string, error) {
	raw := e.Raw()
	if !utf8.Valid(raw) {
		off := 0
		for off < len(raw) {
			r, size := utf8.DecodeRune(raw[off:])
			if r == utf8.RuneError && size == 1 {
				break
			}
			off += size
		}
		return "", &DecodeError{Raw: bytes.Clone(raw), Offset: off}
	}
	return string(raw), nil
}

// Raw returns the name bytes without the terminator. The slice aliases the
// stream's buffer.
func (e DirEntry) Raw() []byte {
	if e.ent == nil {
		return nil
	}
	return e.ent.NameBytes()
}

// IsDir reports whether the entry is a directory.
func (e DirEntry) IsDir() bool {
	return e.ent != nil && e.ent.Type == sdfat.DTDir
}

func (e DirEntry) String() string {
	name, err := e.Name()
	if err != nil {
		name = fmt.Sprintf("%q", e.Raw())
	}
	if e.IsDir() {
		return name + "/"
	}
	return name
}

// Mkdir creates the directory name with the configured permission bits.
// Any native failure is reported as ErrOperationFailed.
func (vol *Volume) Mkdir(name string) error {
	v := vol.v
	if v.isClosing() {
		return ErrClosed
	}
	p, err := v.path(name)
	if err != nil {
		return err
	}

	start := time.Now()
	if v.drv.Mkdir(p, v.cfg.MkdirPerm) != 0 {
		return v.failed("mkdir", p.String(), start)
	}
	v.observe("mkdir", start, nil)
	return nil
}

// Rmdir removes the empty directory name.
// Any native failure is reported as ErrOperationFailed.
func (vol *Volume) Rmdir(name string) error {
	v := vol.v
	if v.isClosing() {
		return ErrClosed
	}
	p, err := v.path(name)
	if err != nil {
		return err
	}

	start := time.Now()
	if v.drv.Rmdir(p) != 0 {
		return v.failed("rmdir", p.String(), start)
	}
	v.observe("rmdir", start, nil)
	return nil
}

// failed logs the errno of a failed directory call and drops it from the
// returned error.
func (v *volume) failed(op, path string, start time.Time) error {
	v.logger.Debug().Str("op", op).Str("path", path).Str("errno", v.drv.Errno().Error()).Msg("Native call failed")
	err := fmt.Errorf("%s %s: %w", op, path, ErrOperationFailed)
	v.observe(op, start, err)
	return err
}
