package mocks

import (
	"github.com/brettbedarf/sdfat"
	"github.com/brettbedarf/sdfat/cpath"
	"github.com/stretchr/testify/mock"
)

// MockDriver implements sdfat.Driver for testing across packages.
//
// Paths are recorded as strings so expectations can be written as
// d.On("Open", "/sdcard/a.txt", "r").
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Mount(base cpath.Path, host *sdfat.HostConfig, slot *sdfat.SlotConfig, mnt *sdfat.MountConfig) (*sdfat.Card, sdfat.Status) {
	args := m.Called(base.String(), host, slot, mnt)

	// Handle nil returns
	if args.Get(0) == nil {
		return nil, args.Get(1).(sdfat.Status)
	}
	return args.Get(0).(*sdfat.Card), args.Get(1).(sdfat.Status)
}

func (m *MockDriver) Unmount(base cpath.Path, card *sdfat.Card) sdfat.Status {
	args := m.Called(base.String(), card)
	return args.Get(0).(sdfat.Status)
}

func (m *MockDriver) GetFree(drive cpath.Path) (uint32, *sdfat.FATFS, sdfat.FResult) {
	args := m.Called(drive.String())

	var fs *sdfat.FATFS
	if v := args.Get(1); v != nil {
		fs = v.(*sdfat.FATFS)
	}
	return args.Get(0).(uint32), fs, args.Get(2).(sdfat.FResult)
}

func (m *MockDriver) Open(path, mode cpath.Path) sdfat.Stream {
	args := m.Called(path.String(), mode.String())
	return args.Get(0).(sdfat.Stream)
}

func (m *MockDriver) Close(s sdfat.Stream) int {
	args := m.Called(s)
	return args.Int(0)
}

func (m *MockDriver) Read(s sdfat.Stream, buf []byte) int {
	args := m.Called(s, buf)

	// Handle function return types so tests can fill buf
	if fn, ok := args.Get(0).(func(sdfat.Stream, []byte) int); ok {
		return fn(s, buf)
	}
	return args.Int(0)
}

func (m *MockDriver) Write(s sdfat.Stream, buf []byte) int {
	args := m.Called(s, buf)
	return args.Int(0)
}

func (m *MockDriver) OpenDir(path cpath.Path) sdfat.DirStream {
	args := m.Called(path.String())
	return args.Get(0).(sdfat.DirStream)
}

func (m *MockDriver) ReadDir(d sdfat.DirStream) *sdfat.Dirent {
	args := m.Called(d)

	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*sdfat.Dirent)
}

func (m *MockDriver) CloseDir(d sdfat.DirStream) int {
	args := m.Called(d)
	return args.Int(0)
}

func (m *MockDriver) Mkdir(path cpath.Path, perm uint32) int {
	args := m.Called(path.String(), perm)
	return args.Int(0)
}

func (m *MockDriver) Rmdir(path cpath.Path) int {
	args := m.Called(path.String())
	return args.Int(0)
}

func (m *MockDriver) Stat(path cpath.Path, st *sdfat.StatBuf) int {
	args := m.Called(path.String(), st)

	// Handle function return types so tests can fill st
	if fn, ok := args.Get(0).(func(*sdfat.StatBuf) int); ok {
		return fn(st)
	}
	return args.Int(0)
}

func (m *MockDriver) Errno() sdfat.Errno {
	args := m.Called()
	return args.Get(0).(sdfat.Errno)
}

var _ sdfat.Driver = (*MockDriver)(nil)

// NewDirent builds a Dirent for ReadDir expectations.
func NewDirent(name string, typ uint8) *sdfat.Dirent {
	d := &sdfat.Dirent{Type: typ}
	copy(d.Name[:sdfat.NameMax], name)
	return d
}
