package overlay

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied  = errors.New("permission denied creating virtual device")
	ErrDeviceUnavailable = errors.New("virtual device is already bound")
	ErrResourceExhausted = errors.New("system could not allocate virtual device")
	ErrOversizedDatagram = errors.New("datagram exceeds receive buffer capacity")
	ErrDeviceTornDown    = errors.New("virtual device is no longer readable")
)

// OpenError describes a failed acquisition. Kind is one of the acquisition sentinels, or nil when the
// failure did not fit any of them.
type OpenError struct {
	Device string
	Mode   Mode
	Kind   error
	Err    error
}

func (e *OpenError) Error() string {
	if e.Kind == nil {
		return fmt.Sprintf("failed to open %s device %q: %v", e.Mode, e.Device, e.Err)
	}
	return fmt.Sprintf("failed to open %s device %q: %v: %v", e.Mode, e.Device, e.Kind, e.Err)
}

func (e *OpenError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}
