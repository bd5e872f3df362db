// Package sdfat contains the native storage contract that the rest of the
// module is built on.
//
// The [Driver] interface mirrors the handle-based API of an SD/MMC host
// driver with a FAT virtual filesystem on top of it: mount and unmount a card,
// open and close streams, read directory entries and query cluster
// accounting. Paths cross this boundary as NUL-terminated [cpath.Path]
// values and failures come back as integer codes ([Status], [Errno],
// [FResult]).
//
// Application code should not call a Driver directly. Package sdmmc wraps it
// with owned Volume, File and Dir handles that release every native resource
// exactly once.
package sdfat
