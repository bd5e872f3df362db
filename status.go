package sdfat

import (
	"fmt"
	"io/fs"
)

// Status is a native status code as returned by Mount and Unmount.
type Status int32

// Native status codes.
const (
	StatusOK              Status = 0
	StatusFail            Status = -1
	StatusNoMem           Status = 0x101
	StatusInvalidArg      Status = 0x102
	StatusInvalidState    Status = 0x103
	StatusInvalidSize     Status = 0x104
	StatusNotFound        Status = 0x105
	StatusNotSupported    Status = 0x106
	StatusTimeout         Status = 0x107
	StatusInvalidResponse Status = 0x108
	StatusInvalidCRC      Status = 0x109
)

var statusNames = map[Status]string{
	StatusOK:              "ESP_OK",
	StatusFail:            "ESP_FAIL",
	StatusNoMem:           "ESP_ERR_NO_MEM",
	StatusInvalidArg:      "ESP_ERR_INVALID_ARG",
	StatusInvalidState:    "ESP_ERR_INVALID_STATE",
	StatusInvalidSize:     "ESP_ERR_INVALID_SIZE",
	StatusNotFound:        "ESP_ERR_NOT_FOUND",
	StatusNotSupported:    "ESP_ERR_NOT_SUPPORTED",
	StatusTimeout:         "ESP_ERR_TIMEOUT",
	StatusInvalidResponse: "ESP_ERR_INVALID_RESPONSE",
	StatusInvalidCRC:      "ESP_ERR_INVALID_CRC",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ESP_ERR_0x%x", int32(s))
}

// Errno is an error number left behind by a failed stream or directory call.
type Errno int

// Error numbers, using the values of the embedded C library.
const (
	EPERM        Errno = 1
	ENOENT       Errno = 2
	EIO          Errno = 5
	EBADF        Errno = 9
	ENOMEM       Errno = 12
	EACCES       Errno = 13
	EBUSY        Errno = 16
	EEXIST       Errno = 17
	ENODEV       Errno = 19
	ENOTDIR      Errno = 20
	EISDIR       Errno = 21
	EINVAL       Errno = 22
	ENFILE       Errno = 23
	EMFILE       Errno = 24
	ENOSPC       Errno = 28
	EROFS        Errno = 30
	ENOTEMPTY    Errno = 90
	ENAMETOOLONG Errno = 91
)

var errnoNames = map[Errno]string{
	EPERM:        "operation not permitted",
	ENOENT:       "no such file or directory",
	EIO:          "input/output error",
	EBADF:        "bad file descriptor",
	ENOMEM:       "out of memory",
	EACCES:       "permission denied",
	EBUSY:        "device busy",
	EEXIST:       "file exists",
	ENODEV:       "no such device",
	ENOTDIR:      "not a directory",
	EISDIR:       "is a directory",
	EINVAL:       "invalid argument",
	ENFILE:       "too many open files in system",
	EMFILE:       "too many open files",
	ENOSPC:       "no space left on device",
	EROFS:        "read-only file system",
	ENOTEMPTY:    "directory not empty",
	ENAMETOOLONG: "file name too long",
}

func (e Errno) Error() string {
	if msg, ok := errnoNames[e]; ok {
		return msg
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Is lets an Errno match the io/fs sentinel errors, as syscall.Errno does.
func (e Errno) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e == ENOENT
	case fs.ErrExist:
		return e == EEXIST || e == ENOTEMPTY
	case fs.ErrPermission:
		return e == EACCES || e == EPERM || e == EROFS
	}
	return false
}

// FResult is a result code of the FAT layer.
type FResult int

// FAT layer result codes.
const (
	FROK FResult = iota
	FRDiskErr
	FRIntErr
	FRNotReady
	FRNoFile
	FRNoPath
	FRInvalidName
	FRDenied
	FRExist
	FRInvalidObject
	FRWriteProtected
	FRInvalidDrive
	FRNotEnabled
	FRNoFilesystem
)

var fresultNames = [...]string{
	FROK:             "FR_OK",
	FRDiskErr:        "FR_DISK_ERR",
	FRIntErr:         "FR_INT_ERR",
	FRNotReady:       "FR_NOT_READY",
	FRNoFile:         "FR_NO_FILE",
	FRNoPath:         "FR_NO_PATH",
	FRInvalidName:    "FR_INVALID_NAME",
	FRDenied:         "FR_DENIED",
	FRExist:          "FR_EXIST",
	FRInvalidObject:  "FR_INVALID_OBJECT",
	FRWriteProtected: "FR_WRITE_PROTECTED",
	FRInvalidDrive:   "FR_INVALID_DRIVE",
	FRNotEnabled:     "FR_NOT_ENABLED",
	FRNoFilesystem:   "FR_NO_FILESYSTEM",
}

func (r FResult) String() string {
	if r >= 0 && int(r) < len(fresultNames) {
		return fresultNames[r]
	}
	return fmt.Sprintf("FR_%d", int(r))
}
