// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named probes evaluated on demand. Buffer probes read descriptor state and
// may query the device, so probes run outside the registry lock.

package control

import (
	"fmt"
	"sort"
	"sync"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{probes: make(map[string]func() any)}
}

// RegisterProbe inserts or replaces a named probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	dp.probes[name] = fn
	dp.mu.Unlock()
}

// UnregisterProbe removes a probe; unknown names are ignored.
func (dp *DebugProbes) UnregisterProbe(name string) {
	dp.mu.Lock()
	delete(dp.probes, name)
	dp.mu.Unlock()
}

// Names returns the registered probe names in order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	names := make([]string, 0, len(dp.probes))
	for k := range dp.probes {
		names = append(names, k)
	}
	dp.mu.RUnlock()
	sort.Strings(names)
	return names
}

// DumpState evaluates every probe. A panicking probe reports the panic
// as its value.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	probes := make(map[string]func() any, len(dp.probes))
	for k, fn := range dp.probes {
		probes[k] = fn
	}
	dp.mu.RUnlock()

	out := make(map[string]any, len(probes))
	for k, fn := range probes {
		out[k] = eval(fn)
	}
	return out
}

func eval(fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			v = fmt.Sprintf("probe panic: %v", r)
		}
	}()
	return fn()
}
