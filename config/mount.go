package config

// Defaults for [ExportOptions].
const (
	DefaultFsName = "sdfat"
	DefaultName   = "sdfat"
)

// ExportOptions holds settings for exporting a volume to the host over FUSE.
// No go-fuse types are exposed here.
type ExportOptions struct {
	Debug  bool   // fuse debug logs
	FsName string // mount's FsName
	Name   string // mount's Name
}
