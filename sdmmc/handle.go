package sdmmc

import "sync/atomic"

// owned ties one native handle to a volume reference. It is the argument of
// the handle's cleanup, so it must not point at the File or Dir.
type owned struct {
	vol         *volume
	kind        string // "file" or "dir"
	path        string
	closed      atomic.Bool
	closeNative func() int
}

// close releases the native handle and the volume reference exactly once.
// It reports whether this call did the release and the native return code.
func (o *owned) close() (bool, int) {
	if !o.closed.CompareAndSwap(false, true) {
		return false, 0
	}
	rc := o.closeNative()
	if rc != 0 {
		o.vol.logger.Warn().
			Str("kind", o.kind).
			Str("path", o.path).
			Str("errno", o.vol.drv.Errno().Error()).
			Msg("Native close failed")
	}
	o.vol.release()
	return true, rc
}

// collect is the cleanup for handles dropped without Close.
func collect(o *owned) {
	if released, _ := o.close(); released {
		o.vol.logger.Error().Str("kind", o.kind).Str("path", o.path).Msg("Handle garbage collected without Close")
	}
}
