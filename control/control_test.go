package control_test

import (
	"testing"
	"time"

	"github.com/momentics/hioload-dsp/control"
)

func TestMetricsRegistryAdd(t *testing.T) {
	reg := control.NewMetricsRegistry()
	reg.Add("ai1.samples_read", 100)
	reg.Add("ai1.samples_read", 25)
	reg.Set("state", "ok")

	snap := reg.GetSnapshot()
	if snap["ai1.samples_read"] != int64(125) {
		t.Errorf("counter = %v, want 125", snap["ai1.samples_read"])
	}
	if snap["state"] != "ok" {
		t.Error("string value mismatch")
	}
	if reg.Updated().IsZero() {
		t.Error("updated timestamp not set")
	}
}

func TestConfigStoreReload(t *testing.T) {
	cs := control.NewConfigStore()
	calls := 0
	cs.OnReload(func() { calls++ })
	cs.SetConfig(map[string]any{"acquire.trials": 3})
	if calls != 1 {
		t.Fatalf("reload listener called %d times, want 1", calls)
	}
	snap := cs.GetSnapshot()
	if got := control.Int(snap, "acquire.trials", 1); got != 3 {
		t.Errorf("trials = %d, want 3", got)
	}
	snap["acquire.trials"] = 9
	if control.Int(cs.GetSnapshot(), "acquire.trials", 1) != 3 {
		t.Error("snapshot must be a copy")
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := map[string]any{
		"a": 50 * time.Millisecond,
		"b": "250ms",
		"c": int64(1000),
		"d": true,
		"e": "bogus",
	}
	cases := []struct {
		key  string
		want time.Duration
	}{
		{"a", 50 * time.Millisecond},
		{"b", 250 * time.Millisecond},
		{"c", time.Microsecond},
		{"e", time.Second},
		{"missing", time.Second},
	}
	for _, c := range cases {
		if got := control.Duration(cfg, c.key, time.Second); got != c.want {
			t.Errorf("Duration(%q) = %v, want %v", c.key, got, c.want)
		}
	}
	if !control.Bool(cfg, "d", false) {
		t.Error("Bool(d) = false")
	}
	if control.Bool(cfg, "missing", false) {
		t.Error("Bool(missing) should default to false")
	}
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	dp.RegisterProbe("buffer.ai1", func() any { return 42 })
	state := dp.DumpState()
	if state["buffer.ai1"] != 42 {
		t.Errorf("probe value = %v", state["buffer.ai1"])
	}
	if _, ok := state["platform.cpus"]; !ok {
		t.Error("platform probe missing")
	}

	dp.RegisterProbe("broken", func() any { panic("closed") })
	if v, _ := dp.DumpState()["broken"].(string); v != "probe panic: closed" {
		t.Errorf("panicking probe = %q", v)
	}
	dp.UnregisterProbe("broken")
	for _, n := range dp.Names() {
		if n == "broken" {
			t.Error("probe not removed")
		}
	}
}

func TestHotReloadSync(t *testing.T) {
	fired := 0
	unregister := control.RegisterReloadHook(func() { fired++ })
	control.TriggerHotReloadSync()
	if fired != 1 {
		t.Errorf("hook invoked %d times, want 1", fired)
	}
	unregister()
	unregister()
	control.TriggerHotReloadSync()
	if fired != 1 {
		t.Error("unregistered hook still invoked")
	}
}
