package device_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/cwbudde/keccakminer/internal/device"
	"github.com/cwbudde/keccakminer/internal/device/emulator"
)

func TestSelectPlatform(t *testing.T) {
	names := []string{"Intel", "NVIDIA CUDA", "NVIDIA CUDA"}
	tests := []struct {
		hint string
		want int
	}{
		{"", 0},
		{"NVIDIA CUDA", 1},
		{"nvidia cuda", 0},
		{"AMD", 0},
	}
	for _, tt := range tests {
		if got := device.SelectPlatform(names, tt.hint); got != tt.want {
			t.Errorf("SelectPlatform(%q) = %d, want %d", tt.hint, got, tt.want)
		}
	}
}

func twoPlatformDriver() *emulator.Driver {
	second := emulator.DefaultDevice
	second.Name = "Second GPU"
	return emulator.New(emulator.Config{Platforms: []emulator.PlatformSpec{
		{Name: "Alpha", Devices: []device.DeviceInfo{emulator.DefaultDevice}},
		{Name: "Beta", Devices: []device.DeviceInfo{emulator.DefaultDevice, second}},
	}})
}

func TestEnumeratorSelect(t *testing.T) {
	drv := twoPlatformDriver()
	sel, err := device.NewEnumerator(drv).Select("Beta", 1)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.PlatformIndex != 1 || sel.DeviceCount != 2 || sel.DeviceIndex != 1 {
		t.Errorf("selection = %+v", sel)
	}
	info, _ := sel.Device.Info()
	if info.Name != "Second GPU" {
		t.Errorf("device name = %q", info.Name)
	}
	if drv.LiveTotal() != 0 {
		t.Errorf("Select allocated %d handles", drv.LiveTotal())
	}
}

func TestEnumeratorRejectsOutOfRangeDevice(t *testing.T) {
	drv := twoPlatformDriver()
	enum := device.NewEnumerator(drv)
	for _, idx := range []int{1, 2, -1} {
		if _, err := enum.Select("Alpha", idx); !errors.Is(err, device.ErrInvalidDevice) {
			t.Errorf("Select(Alpha, %d) error = %v, want ErrInvalidDevice", idx, err)
		}
	}
	if drv.Allocated(emulator.KindContext) != 0 {
		t.Error("invalid selection must not create a context")
	}
}

func TestEnumeratorSetupFailures(t *testing.T) {
	boom := errors.New("icd loader missing")
	tests := map[string]emulator.Config{
		"platforms": {Faults: emulator.Faults{Platforms: boom}},
		"devices":   {Faults: emulator.Faults{Devices: boom}},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := device.NewEnumerator(emulator.New(cfg)).Select("", 0)
			if !errors.Is(err, device.ErrSetup) || !errors.Is(err, boom) {
				t.Errorf("error = %v, want ErrSetup wrapping cause", err)
			}
		})
	}
}

func TestResourcesReleasePartialSet(t *testing.T) {
	drv := emulator.New(emulator.Config{})
	sel, _ := device.NewEnumerator(drv).Select("", 0)

	var res device.Resources
	ctx, err := sel.Device.CreateContext()
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	res.Context = ctx
	for i := 0; i < 2; i++ {
		b, err := ctx.CreateBuffer(device.MemReadWrite, 4, nil)
		if err != nil {
			t.Fatalf("CreateBuffer: %v", err)
		}
		res.AddBuffer(b)
	}
	res.Buffers = append(res.Buffers, nil, nil)

	res.Release()
	res.Release()

	if drv.LiveTotal() != 0 {
		t.Errorf("live handles = %d, want 0", drv.LiveTotal())
	}
	if drv.DoubleReleases() != 0 {
		t.Errorf("double releases = %d, want 0", drv.DoubleReleases())
	}
	got := drv.Releases()
	want := []emulator.Kind{emulator.KindBuffer, emulator.KindBuffer, emulator.KindContext}
	if len(got) != len(want) {
		t.Fatalf("releases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("releases[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestResourcesReleaseNil(t *testing.T) {
	var res *device.Resources
	res.Release()

	var empty device.Resources
	empty.Release()
}

func TestTextObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := device.NewTextObserver(&buf)
	obs.PlatformsListed([]string{"Alpha", "Beta"}, 1)
	obs.DeviceSelected(0, device.DeviceInfo{
		Name:             "Test GPU",
		Version:          "OpenCL 3.0",
		MaxComputeUnits:  16,
		MaxWorkGroupSize: 1024,
		MaxWorkItemSizes: []int{1024, 1024, 64},
		GlobalMemSize:    8 << 30,
	})

	out := buf.String()
	for _, want := range []string{
		"   [0] Alpha",
		" * [1] Beta",
		"Device 0: Test GPU",
		"Compute units: 16",
		"Max work group size: 1024",
		"Max work item sizes: [1024, 1024, 64]",
		"Global memory size: 8192 MB",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestKind(t *testing.T) {
	err := &device.BuildLogError{Log: "x"}
	if device.Kind(err) != device.ErrBuild {
		t.Errorf("Kind(BuildLogError) = %v", device.Kind(err))
	}
	if device.Kind(errors.New("other")) != nil {
		t.Error("Kind of unrelated error should be nil")
	}
}
