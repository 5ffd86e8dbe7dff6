package vk

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_portability_subset"

	"github.com/cg2go/renderer/gpu"
)

// Adapter is a physical device with a queue family that can present to
// the factory surface.
type Adapter struct {
	factory        *Factory
	physicalDevice core1_0.PhysicalDevice
	properties     *core1_0.PhysicalDeviceProperties
	family         int
}

var _ gpu.Adapter = (*Adapter)(nil)

func (a *Adapter) Desc() gpu.AdapterDesc {
	return gpu.AdapterDesc{
		Description: a.properties.DriverName,
		Software:    a.properties.DriverType == core1_0.PhysicalDeviceTypeCPU,
	}
}

func (a *Adapter) rank() int {
	switch a.properties.DriverType {
	case core1_0.PhysicalDeviceTypeDiscreteGPU:
		return 0
	case core1_0.PhysicalDeviceTypeIntegratedGPU:
		return 1
	case core1_0.PhysicalDeviceTypeCPU:
		return 3
	}
	return 2
}

// apiVersion is the Vulkan version standing in for a feature level.
func apiVersion(level gpu.FeatureLevel) common.APIVersion {
	switch level {
	case gpu.FeatureLevel12_2:
		return common.Vulkan1_2
	case gpu.FeatureLevel12_1:
		return common.Vulkan1_1
	}
	return common.Vulkan1_0
}

func (a *Adapter) CreateDevice(level gpu.FeatureLevel) (gpu.Device, error) {
	if !a.properties.APIVersion.IsAtLeast(apiVersion(level)) {
		return nil, errors.Wrapf(gpu.ErrUnsupportedFeatureLevel, "%s reports vulkan %s", a.properties.DriverName, a.properties.APIVersion)
	}

	extensionNames := append([]string(nil), deviceExtensions...)

	// Makes this compatible with vulkan portability, necessary to run on mobile & mac
	extensions, _, err := a.physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return nil, err
	}
	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, _, err := a.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: a.family,
				QueuePriorities:  []float32{1.0},
			},
		},
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create logical device")
	}

	return newDevice(a, level, device)
}

func (a *Adapter) Release() {}
