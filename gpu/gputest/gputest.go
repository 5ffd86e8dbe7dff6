// Package gputest provides an in-memory gpu backend.
//
// Command lists submitted to a queue are replayed on a goroutine that plays
// the part of the GPU timeline, so CPU and GPU genuinely run concurrently.
// The replay validates resource-state barriers, copies staged texture data,
// and snapshots every bound constant buffer at draw time. Tests inspect the
// results through Device.Draws, Device.Errors and Device.Calls.
package gputest

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/gpu"
)

// ErrOutOfMemory is returned once Options.MaxResources is exceeded.
var ErrOutOfMemory = errors.New("gputest: out of device memory")

type Options struct {
	// Latency is how long the simulated GPU spends on each executed
	// command list.
	Latency time.Duration
	// MaxResources limits committed resource creation. Zero means no
	// limit.
	MaxResources int
}

type Factory struct {
	adapters []*Adapter
}

// NewFactory returns a factory enumerating adapters in the given order.
func NewFactory(adapters ...*Adapter) *Factory {
	return &Factory{adapters: adapters}
}

func (f *Factory) Adapters() ([]gpu.Adapter, error) {
	out := make([]gpu.Adapter, len(f.adapters))
	for i, a := range f.adapters {
		out[i] = a
	}
	return out, nil
}

func (f *Factory) Release() {}

type Adapter struct {
	Description string
	Software    bool
	// MaxLevel is the highest feature level CreateDevice accepts.
	MaxLevel gpu.FeatureLevel
	Options  Options
	// CreateErr, when set, fails every CreateDevice call.
	CreateErr error

	// Attempts records every feature level CreateDevice was called with.
	Attempts []gpu.FeatureLevel
	// Device is the last device created from the adapter.
	Device *Device
	// Releases counts calls to Release.
	Releases int
}

// NewAdapter returns a hardware adapter supporting every feature level.
func NewAdapter(description string) *Adapter {
	return &Adapter{Description: description, MaxLevel: gpu.FeatureLevel12_2}
}

func (a *Adapter) Desc() gpu.AdapterDesc {
	return gpu.AdapterDesc{Description: a.Description, Software: a.Software}
}

func (a *Adapter) CreateDevice(level gpu.FeatureLevel) (gpu.Device, error) {
	a.Attempts = append(a.Attempts, level)
	if a.CreateErr != nil {
		return nil, a.CreateErr
	}
	if level > a.MaxLevel {
		return nil, errors.Wrapf(gpu.ErrUnsupportedFeatureLevel, "%s", level)
	}
	a.Device = NewDevice(level, a.Options)
	return a.Device, nil
}

func (a *Adapter) Release() { a.Releases++ }
