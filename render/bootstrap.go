// Package render owns the per-frame GPU resource and command submission
// lifecycle: adapter and device bootstrap, descriptor heaps, upload-heap
// buffers and default-heap textures, the texture cache, and the frame state
// machine that keeps exactly one frame in flight.
package render

import (
	"log"

	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/gpu"
)

var (
	ErrNoAdapter      = errors.New("no hardware adapter found")
	ErrNoFeatureLevel = errors.New("adapter supports none of the required feature levels")
	ErrListOpen       = errors.New("command list must be closed before submission")
	ErrListClosed     = errors.New("command list is closed")
	ErrBadState       = errors.New("invalid frame state transition")
	ErrHeapFull       = errors.New("descriptor heap is full")
	ErrCacheFull      = errors.New("texture cache is full")
	ErrFenceTimeout   = errors.New("timed out waiting for fence")
	ErrClosed         = errors.New("renderer is closed")
)

// featureLevels is probed from best to worst.
var featureLevels = []gpu.FeatureLevel{
	gpu.FeatureLevel12_2,
	gpu.FeatureLevel12_1,
	gpu.FeatureLevel12_0,
}

// SelectAdapter returns the first hardware adapter enumerated by the
// factory that can create a device at one of the required feature levels,
// together with that device. Every other adapter is released.
func SelectAdapter(factory gpu.Factory) (gpu.Adapter, gpu.Device, error) {
	adapters, err := factory.Adapters()
	if err != nil {
		return nil, nil, errors.Wrap(err, "enumerate adapters")
	}

	var chosen gpu.Adapter
	var device gpu.Device
	for i, adapter := range adapters {
		if chosen != nil {
			adapter.Release()
			continue
		}
		desc := adapter.Desc()
		if desc.Software {
			adapter.Release()
			continue
		}

		device, err = CreateDevice(adapter)
		if errors.Is(err, ErrNoFeatureLevel) {
			adapter.Release()
			continue
		} else if err != nil {
			for _, rest := range adapters[i:] {
				rest.Release()
			}
			return nil, nil, err
		}
		log.Printf("Use Adapter: %s", desc.Description)
		chosen = adapter
	}

	if chosen == nil {
		return nil, nil, ErrNoAdapter
	}
	return chosen, device, nil
}

// CreateDevice creates a device at the highest feature level the adapter
// supports.
func CreateDevice(adapter gpu.Adapter) (gpu.Device, error) {
	for _, level := range featureLevels {
		device, err := adapter.CreateDevice(level)
		if errors.Is(err, gpu.ErrUnsupportedFeatureLevel) {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "create device at feature level %s", level)
		}
		log.Printf("FeatureLevel: %s", level)
		log.Printf("Complete create device")
		return device, nil
	}
	return nil, errors.Wrapf(ErrNoFeatureLevel, "%s", adapter.Desc().Description)
}
