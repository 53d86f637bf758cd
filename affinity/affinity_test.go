package affinity

import (
	"runtime"
	"testing"
)

func TestPinCurrentThread(t *testing.T) {
	errc := make(chan error, 1)
	go func() {
		// The goroutine exits still locked, so its pinned thread is discarded.
		errc <- Pin(0)
	}()
	err := <-errc
	if runtime.GOOS != "linux" {
		if err != ErrUnsupported {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		return
	}
	if err != nil {
		t.Skipf("pinning not permitted here: %v", err)
	}
}

func TestSetAffinityRange(t *testing.T) {
	if err := SetAffinity(-1); err == nil {
		t.Fatal("negative cpu accepted")
	}
	if err := SetAffinity(runtime.NumCPU()); err == nil {
		t.Fatal("cpu beyond NumCPU accepted")
	}
}
