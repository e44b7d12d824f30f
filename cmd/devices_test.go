package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cwbudde/keccakminer/internal/device"
	"github.com/cwbudde/keccakminer/internal/device/emulator"
)

func emulatedPlatforms(t *testing.T) []device.PlatformInfo {
	t.Helper()
	drv := emulator.New(emulator.Config{
		Platforms: []emulator.PlatformSpec{
			{Name: "Alpha", Devices: []device.DeviceInfo{emulator.DefaultDevice}},
			{Name: "Beta"},
		},
	})
	platforms, err := device.NewEnumerator(drv).Describe()
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	return platforms
}

func TestPrintDevices_Text(t *testing.T) {
	var out bytes.Buffer
	if err := printDevices(&out, emulatedPlatforms(t), "Beta", false); err != nil {
		t.Fatal(err)
	}

	text := out.String()
	for _, want := range []string{
		"   [0] Alpha",
		" * [1] Beta",
		"Device 0: Emulated GPU",
		"Max work group size: 256",
		"Global memory size: 1024 MB",
		"No GPU devices.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Output missing %q:\n%s", want, text)
		}
	}
}

func TestPrintDevices_JSON(t *testing.T) {
	var out bytes.Buffer
	if err := printDevices(&out, emulatedPlatforms(t), "", true); err != nil {
		t.Fatal(err)
	}

	var decoded []device.PlatformInfo
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(decoded) != 2 || len(decoded[0].Devices) != 1 || decoded[0].Devices[0].MaxComputeUnits != 8 {
		t.Errorf("Unexpected platforms %+v", decoded)
	}
}

func TestPrintDevices_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := printDevices(&out, nil, "", false); err != nil {
		t.Fatal(err)
	}
	if out.String() != "No platforms found.\n" {
		t.Errorf("Unexpected output %q", out.String())
	}
}
