package device

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Observer receives diagnostic events from a dispatch call. Implementations
// must not influence control flow.
type Observer interface {
	PlatformsListed(names []string, selected int)
	DeviceSelected(index int, info DeviceInfo)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) PlatformsListed([]string, int)   {}
func (NopObserver) DeviceSelected(int, DeviceInfo) {}

// TextObserver writes human readable diagnostics to W.
type TextObserver struct {
	mu sync.Mutex
	W  io.Writer
}

// NewTextObserver returns an observer writing to w.
func NewTextObserver(w io.Writer) *TextObserver {
	return &TextObserver{W: w}
}

func (o *TextObserver) PlatformsListed(names []string, selected int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	fmt.Fprintln(o.W, "Platforms:")
	for i, name := range names {
		marker := " "
		if i == selected {
			marker = "*"
		}
		fmt.Fprintf(o.W, " %s [%d] %s\n", marker, i, name)
	}
}

func (o *TextObserver) DeviceSelected(index int, info DeviceInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sizes := make([]string, len(info.MaxWorkItemSizes))
	for i, s := range info.MaxWorkItemSizes {
		sizes[i] = fmt.Sprint(s)
	}

	fmt.Fprintf(o.W, "Device %d: %s\n", index, info.Name)
	fmt.Fprintf(o.W, "Version: %s\n", info.Version)
	fmt.Fprintf(o.W, "Compute units: %d\n", info.MaxComputeUnits)
	fmt.Fprintf(o.W, "Max work group size: %d\n", info.MaxWorkGroupSize)
	fmt.Fprintf(o.W, "Max work item sizes: [%s]\n", strings.Join(sizes, ", "))
	fmt.Fprintf(o.W, "Global memory size: %d MB\n", info.GlobalMemMB())
}
