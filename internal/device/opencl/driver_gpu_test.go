//go:build gpu

package opencl

import (
	"errors"
	"testing"

	"github.com/cwbudde/keccakminer/internal/device"
)

func TestDriverEnumeratesPlatforms(t *testing.T) {
	drv, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	platforms, err := device.NewEnumerator(drv).Describe()
	if err != nil {
		t.Skipf("OpenCL unavailable: %v", err)
	}
	if len(platforms) == 0 {
		t.Skip("no OpenCL platforms installed")
	}
	for _, p := range platforms {
		if p.Name == "" {
			t.Error("platform without a name")
		}
		for _, d := range p.Devices {
			if d.MaxWorkGroupSize <= 0 {
				t.Errorf("device %q reports max work group size %d", d.Name, d.MaxWorkGroupSize)
			}
		}
	}
}

func TestDriverRejectsDeviceIndexPastEnd(t *testing.T) {
	drv, _ := New()
	_, err := device.NewEnumerator(drv).Select("", 1<<20)
	if errors.Is(err, device.ErrSetup) {
		t.Skipf("OpenCL unavailable: %v", err)
	}
	if !errors.Is(err, device.ErrInvalidDevice) {
		t.Fatalf("Select error = %v, want ErrInvalidDevice", err)
	}
}
