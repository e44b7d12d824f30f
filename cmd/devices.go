package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cwbudde/keccakminer/internal/device"
	"github.com/cwbudde/keccakminer/internal/device/emulator"
	"github.com/cwbudde/keccakminer/internal/device/opencl"
	"github.com/cwbudde/keccakminer/internal/miner"
	"github.com/spf13/cobra"
)

var (
	devicesBackend  string
	devicesPlatform string
	devicesJSON     bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List compute platforms and their GPU devices",
	Long: `Lists every platform with a marker on the one "mine" would select, followed
by the attributes of its GPU devices.`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesBackend, "backend", "opencl", "Device backend: opencl or emulator")
	devicesCmd.Flags().StringVar(&devicesPlatform, "platform", "", "Platform name to mark as selected")
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "Print JSON instead of text")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	var drv device.Driver
	switch miner.NormalizeBackend(devicesBackend) {
	case miner.BackendOpenCL:
		d, err := opencl.New()
		if err != nil {
			return fmt.Errorf("%w: %w", miner.ErrBackendUnavailable, err)
		}
		drv = d
	case miner.BackendEmulator:
		drv = emulator.New(emulator.Config{})
	default:
		return fmt.Errorf("%w: %s has no devices to list", miner.ErrUnknownBackend, devicesBackend)
	}

	platforms, err := device.NewEnumerator(drv).Describe()
	if err != nil {
		return err
	}
	return printDevices(cmd.OutOrStdout(), platforms, devicesPlatform, devicesJSON)
}

func printDevices(out io.Writer, platforms []device.PlatformInfo, hint string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(platforms)
	}

	if len(platforms) == 0 {
		fmt.Fprintln(out, "No platforms found.")
		return nil
	}

	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = p.Name
	}
	obs := device.NewTextObserver(out)
	obs.PlatformsListed(names, device.SelectPlatform(names, hint))

	for _, p := range platforms {
		fmt.Fprintf(out, "\n%s", p.Name)
		if p.Version != "" {
			fmt.Fprintf(out, " (%s)", strings.TrimSpace(p.Version))
		}
		fmt.Fprintln(out)
		if len(p.Devices) == 0 {
			fmt.Fprintln(out, "No GPU devices.")
			continue
		}
		for i, d := range p.Devices {
			obs.DeviceSelected(i, d)
		}
	}
	return nil
}
