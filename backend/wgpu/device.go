//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Device errors.
var (
	// ErrNoBackend is returned when no graphics backend is compiled in
	// or available at runtime.
	ErrNoBackend = errors.New("wgpu: no graphics backend available")
	// ErrNoAdapter is returned when the backend exposes no usable GPU.
	ErrNoAdapter = errors.New("wgpu: no GPU adapters found")
	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("wgpu: device closed")
)

// GPUInfo describes the selected adapter.
type GPUInfo struct {
	// Name is the GPU name (e.g., "NVIDIA GeForce RTX 3080").
	Name string
	// DeviceType is the adapter class (discrete, integrated, etc.).
	DeviceType gputypes.DeviceType
	// Backend is the graphics API in use.
	Backend gputypes.Backend
}

// String returns a human-readable description of the GPU.
func (g *GPUInfo) String() string {
	return fmt.Sprintf("%s (%v, %v)", g.Name, g.DeviceType, g.Backend)
}

// DeviceOptions configures Open.
type DeviceOptions struct {
	// Backend forces a specific graphics API. Zero selects Vulkan.
	Backend gputypes.Backend
	// PreferIntegrated picks an integrated adapter over a discrete one,
	// trading throughput for power.
	PreferIntegrated bool
	// Features requests optional device features beyond the baseline.
	Features gputypes.Features
	// SurfaceFormat overrides the format reported to gpucontext
	// consumers. Zero selects BGRA8Unorm.
	SurfaceFormat gputypes.TextureFormat
}

// Device owns a HAL instance, adapter and logical device. It implements
// the HalDevice/HalQueue provider contract consumed by termgpu.New and
// gpucontext.DeviceProvider so other gogpu consumers can share it.
type Device struct {
	mu       sync.Mutex
	instance hal.Instance
	adapter  any
	device   hal.Device
	queue    hal.Queue
	format   gputypes.TextureFormat
	info     GPUInfo
	closed   bool
}

var _ gpucontext.DeviceProvider = (*Device)(nil)

// Open initializes a graphics backend, picks an adapter and opens a
// logical device on it.
func Open(opts DeviceOptions) (*Device, error) {
	api := opts.Backend
	if api == gputypes.Backend(0) {
		api = gputypes.BackendVulkan
	}
	backend, ok := hal.GetBackend(api)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, api)
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := pickAdapter(adapters, opts.PreferIntegrated)

	format := opts.SurfaceFormat
	if format == gputypes.TextureFormat(0) {
		format = gputypes.TextureFormatBGRA8Unorm
	}

	openDev, err := selected.Adapter.Open(opts.Features, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	d := &Device{
		instance: instance,
		adapter:  selected.Adapter,
		device:   openDev.Device,
		queue:    openDev.Queue,
		format:   format,
		info: GPUInfo{
			Name:       selected.Info.Name,
			DeviceType: selected.Info.DeviceType,
			Backend:    api,
		},
	}
	logger().Info("wgpu: device opened", "adapter", d.info.Name, "backend", api)
	return d, nil
}

// pickAdapter prefers a discrete GPU, then an integrated one, then
// whatever the backend enumerated first (software rasterizers included).
func pickAdapter(adapters []hal.ExposedAdapter, preferIntegrated bool) *hal.ExposedAdapter {
	first, second := gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU
	if preferIntegrated {
		first, second = second, first
	}
	for i := range adapters {
		if adapters[i].Info.DeviceType == first {
			return &adapters[i]
		}
	}
	for i := range adapters {
		if adapters[i].Info.DeviceType == second {
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// HalDevice returns the underlying hal.Device. Part of the device
// provider contract.
func (d *Device) HalDevice() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	return d.device
}

// HalQueue returns the underlying hal.Queue. Part of the device
// provider contract.
func (d *Device) HalQueue() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	return d.queue
}

// contextDevice adapts the device to the gpucontext.Device interface.
// The HAL device is driven by fences rather than polling, so Poll is a
// no-op.
type contextDevice struct{ d *Device }

func (c contextDevice) Poll(wait bool) {}
func (c contextDevice) Destroy()       { _ = c.d.Close() }

// Device implements gpucontext.DeviceProvider.
func (d *Device) Device() gpucontext.Device { return contextDevice{d} }

// Queue implements gpucontext.DeviceProvider.
func (d *Device) Queue() gpucontext.Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue
}

// Adapter implements gpucontext.DeviceProvider.
func (d *Device) Adapter() gpucontext.Adapter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapter
}

// SurfaceFormat implements gpucontext.DeviceProvider. It reports the
// swapchain format renderers built on this device should target.
func (d *Device) SurfaceFormat() gputypes.TextureFormat { return d.format }

// Info returns the selected adapter's description.
func (d *Device) Info() GPUInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// AdapterDescription returns a one-line adapter summary. Renderers pick
// it up for their diagnostics through an optional provider interface.
func (d *Device) AdapterDescription() string {
	info := d.Info()
	return info.String()
}

// Close destroys the device and instance. Renderers built on this
// device must be released first. Idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	if d.device != nil {
		d.device.Destroy()
		d.device = nil
		d.queue = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	return nil
}
