//go:build !linux
// +build !linux

package overlay

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
)

func Open(_ *logrus.Logger, name string, mode Mode, _ Options) (Device, error) {
	return nil, &OpenError{Device: name, Mode: mode, Err: fmt.Errorf("virtual devices are not supported on %s", runtime.GOOS)}
}
