package sdmmc

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/brettbedarf/sdfat"
	"github.com/brettbedarf/sdfat/cpath"
)

var (
	// ErrPathTooLong is returned when mount point, separator and name do not
	// fit the path buffer. Nothing is handed to the driver in that case.
	ErrPathTooLong = cpath.ErrTooLong

	// ErrOperationFailed is returned by Mkdir and Rmdir on any native failure.
	ErrOperationFailed = errors.New("operation failed")

	// ErrWriteFailed is returned when the native layer accepts fewer bytes
	// than requested.
	ErrWriteFailed = errors.New("short write")

	// ErrAbsent is matched by every failed open or stat. When the driver
	// reported ENOENT the error also matches fs.ErrNotExist.
	ErrAbsent = errors.New("not available")

	// ErrClosed is returned when a volume or handle is used after Close.
	ErrClosed = errors.New("closed")
)

// MountError carries the native status of a failed mount.
type MountError struct {
	Code sdfat.Status
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mount failed: %s", e.Code)
}

// DecodeError is returned when a directory entry name is not valid UTF-8.
type DecodeError struct {
	Raw    []byte // copy of the undecodable name
	Offset int    // index of the first invalid byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("entry name is not valid UTF-8 at byte %d", e.Offset)
}

// absence is the cause inside the *fs.PathError of a failed open or stat.
type absence struct {
	errno sdfat.Errno
}

func (a absence) Error() string {
	if a.errno == 0 {
		return ErrAbsent.Error()
	}
	return fmt.Sprintf("%s (%s)", ErrAbsent, a.errno)
}

func (a absence) Is(target error) bool {
	return target == ErrAbsent
}

func (a absence) Unwrap() error {
	if a.errno == 0 {
		return nil
	}
	return a.errno
}

func absent(op, path string, errno sdfat.Errno) error {
	return &fs.PathError{Op: op, Path: path, Err: absence{errno: errno}}
}
