package device

// DeviceType describes the class of a compute device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// DeviceInfo captures descriptive attributes of a device. It is used for
// diagnostics only.
type DeviceInfo struct {
	Name             string     `json:"name"`
	Vendor           string     `json:"vendor,omitempty"`
	Version          string     `json:"version"`
	Type             DeviceType `json:"type"`
	MaxComputeUnits  uint32     `json:"maxComputeUnits"`
	MaxWorkGroupSize int        `json:"maxWorkGroupSize"`
	MaxWorkItemSizes []int      `json:"maxWorkItemSizes"`
	GlobalMemSize    uint64     `json:"globalMemSize"`
}

// GlobalMemMB returns the global memory size in whole mebibytes.
func (d DeviceInfo) GlobalMemMB() uint64 {
	return d.GlobalMemSize / (1024 * 1024)
}

// PlatformInfo captures metadata about a platform and its GPU devices.
type PlatformInfo struct {
	Name    string       `json:"name"`
	Vendor  string       `json:"vendor,omitempty"`
	Version string       `json:"version,omitempty"`
	Devices []DeviceInfo `json:"devices,omitempty"`
}
