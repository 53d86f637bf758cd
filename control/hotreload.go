// control/hotreload.go
// Manages process-wide hot-reload hooks for config changes.

package control

import "sync"

type reloadHook struct {
	id uint64
	fn func()
}

var (
	hooksMu     sync.Mutex
	hookSeq     uint64
	reloadHooks []reloadHook
)

// RegisterReloadHook adds a new component reload listener. The returned
// func removes it again and may be called more than once.
func RegisterReloadHook(fn func()) (unregister func()) {
	hooksMu.Lock()
	hookSeq++
	id := hookSeq
	reloadHooks = append(reloadHooks, reloadHook{id: id, fn: fn})
	hooksMu.Unlock()
	return func() {
		hooksMu.Lock()
		defer hooksMu.Unlock()
		for i, h := range reloadHooks {
			if h.id == id {
				reloadHooks = append(reloadHooks[:i:i], reloadHooks[i+1:]...)
				return
			}
		}
	}
}

// TriggerHotReload dispatches all reload hooks asynchronously.
func TriggerHotReload() {
	for _, fn := range hooks() {
		go fn()
	}
}

// TriggerHotReloadSync invokes all reload hooks synchronously (for test determinism).
func TriggerHotReloadSync() {
	for _, fn := range hooks() {
		fn()
	}
}

func hooks() []func() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	fns := make([]func(), len(reloadHooks))
	for i, h := range reloadHooks {
		fns[i] = h.fn
	}
	return fns
}
