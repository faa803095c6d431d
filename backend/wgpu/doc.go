// Package wgpu bootstraps a GPU device for the terminal renderer.
//
// It wraps the wgpu HAL's instance/adapter/device dance into a single
// Open call and exposes the result through the HalDevice()/HalQueue()
// provider contract that termgpu.New consumes:
//
//	dev, err := wgpu.Open(wgpu.DeviceOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	r, err := termgpu.New(
//		termgpu.WithDeviceProvider(dev),
//		termgpu.WithFontData(fontBytes),
//	)
//
// Adapter selection prefers discrete GPUs, falling back to integrated
// and then to whatever the backend enumerates (including software
// rasterizers like lavapipe). Set DeviceOptions.PreferIntegrated to
// flip the first two.
//
// The package is excluded from nogpu builds; everything else in the
// module that compiles under nogpu is pure CPU code.
package wgpu
