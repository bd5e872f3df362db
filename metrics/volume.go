package metrics

import "time"

// VolumeMetrics records activity of one mounted volume.
//
// Implementations are bound to a mount point when created. A nil
// VolumeMetrics is never handed to a volume; use [NewNoopVolumeMetrics].
type VolumeMetrics interface {
	// RecordMount records a mount attempt. status is the native status name
	// ("ESP_OK" on success).
	RecordMount(status string)

	// RecordUnmount records that the card was released.
	RecordUnmount()

	// RecordOperation records a completed volume, file or directory call.
	// op is a short lowercase name ("open", "write", "mkdir", ...).
	RecordOperation(op string, duration time.Duration, err error)

	// RecordBytes adds to the bytes moved in direction "read" or "write".
	RecordBytes(direction string, n int)

	// SetOpenHandles updates the number of live file and directory handles.
	SetOpenHandles(n int)

	// SetSpace records the last space report.
	SetSpace(totalBytes, freeBytes uint64)
}

type noopVolumeMetrics struct{}

// NewNoopVolumeMetrics returns a VolumeMetrics that discards everything.
func NewNoopVolumeMetrics() VolumeMetrics {
	return noopVolumeMetrics{}
}

func (noopVolumeMetrics) RecordMount(string) {}
func (noopVolumeMetrics) RecordUnmount() {}
func (noopVolumeMetrics) RecordOperation(string, time.Duration, error) {}
func (noopVolumeMetrics) RecordBytes(string, int) {}
func (noopVolumeMetrics) SetOpenHandles(int) {}
func (noopVolumeMetrics) SetSpace(uint64, uint64) {}
