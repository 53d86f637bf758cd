// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// CPU pinning for polling goroutines. A spooler polling a device buffer
// at short intervals keeps steadier timing when its OS thread stays on one
// core. Platform-specific implementations live in build-tagged files.

package affinity

import (
	"errors"
	"runtime"
)

// ErrUnsupported is returned where thread pinning is unavailable.
var ErrUnsupported = errors.New("affinity: not supported on this platform")

// SetAffinity pins the current OS thread to logical CPU cpuID.
func SetAffinity(cpuID int) error {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return errors.New("affinity: cpu out of range")
	}
	return setAffinityPlatform(cpuID)
}

// Pin locks the calling goroutine to its OS thread and pins that thread to
// cpuID. The lock is never released: when the goroutine exits the runtime
// terminates the pinned thread instead of reusing it.
func Pin(cpuID int) error {
	runtime.LockOSThread()
	return SetAffinity(cpuID)
}
