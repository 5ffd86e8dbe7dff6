package vk

import (
	"log"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"

	"github.com/cg2go/renderer/gpu"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// VK_KHR_portability_enumeration has no binding in the extensions module,
// so it is enabled by name with its instance create flag.
const (
	portabilityEnumeration       = "VK_KHR_portability_enumeration"
	instanceEnumeratePortability = core1_0.InstanceCreateFlags(0x1)
)

// Factory owns the Vulkan instance and the presentation surface of one
// SDL window.
type Factory struct {
	window *sdl.Window
	loader core.Loader

	instance       core1_0.Instance
	debugMessenger ext_debug_utils.Messenger
	surface        khr_surface.Surface
}

var _ gpu.Factory = (*Factory)(nil)

// NewFactory creates the instance for window, which must have been created
// with sdl.WINDOW_VULKAN. With validation the Khronos validation layer is
// enabled and its messages are logged.
func NewFactory(window *sdl.Window, validation bool) (*Factory, error) {
	f := &Factory{window: window}

	var err error
	f.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "create vulkan loader")
	}

	if err := f.createInstance(validation); err != nil {
		f.Release()
		return nil, err
	}

	if validation {
		debugLoader := ext_debug_utils.CreateExtensionFromInstance(f.instance)
		f.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(f.instance, nil, f.debugMessengerOptions())
		if err != nil {
			f.Release()
			return nil, errors.Wrap(err, "create debug messenger")
		}
	}

	surfaceLoader := vkng_sdl2.CreateExtensionFromInstance(f.instance)
	f.surface, _, err = surfaceLoader.CreateSurface(f.instance, window)
	if err != nil {
		f.Release()
		return nil, errors.Wrap(err, "create surface")
	}
	return f, nil
}

func (f *Factory) createInstance(validation bool) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    "CG2",
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := f.window.VulkanGetInstanceExtensions()
	extensions, _, err := f.loader.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("createinstance: cannot initialize sdl: missing extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	enablePortability(&instanceOptions, extensions)

	if validation {
		layers, _, err := f.loader.AvailableLayers()
		if err != nil {
			return err
		}
		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("createInstance: cannot add validation- layer %s not available- install LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = f.debugMessengerOptions()
	}

	f.instance, _, err = f.loader.CreateInstance(nil, instanceOptions)
	return err
}

// enablePortability lets the loader report portability drivers such as
// MoltenVK when the loader knows the extension.
func enablePortability(options *core1_0.InstanceCreateInfo, available map[string]*core1_0.ExtensionProperties) {
	if _, ok := available[portabilityEnumeration]; !ok {
		return
	}
	options.EnabledExtensionNames = append(options.EnabledExtensionNames, portabilityEnumeration)
	options.Flags |= instanceEnumeratePortability
}

func (f *Factory) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func logDebug(msgType ext_debug_utils.MessageTypes, severity ext_debug_utils.MessageSeverities, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	log.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

// Adapters lists the physical devices able to render to and present on
// the window surface, discrete GPUs first.
func (f *Factory) Adapters() ([]gpu.Adapter, error) {
	physicalDevices, _, err := f.instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}

	var adapters []*Adapter
	for _, device := range physicalDevices {
		a, err := f.newAdapter(device)
		if err != nil {
			return nil, err
		}
		if a != nil {
			adapters = append(adapters, a)
		}
	}
	sort.SliceStable(adapters, func(i, j int) bool {
		return adapters[i].rank() < adapters[j].rank()
	})

	out := make([]gpu.Adapter, len(adapters))
	for i, a := range adapters {
		out[i] = a
	}
	return out, nil
}

// newAdapter returns nil for devices that cannot drive the surface.
func (f *Factory) newAdapter(device core1_0.PhysicalDevice) (*Adapter, error) {
	family, ok, err := f.findQueueFamily(device)
	if err != nil || !ok {
		return nil, err
	}
	if !checkDeviceExtensionSupport(device) {
		return nil, nil
	}
	formats, _, err := f.surface.PhysicalDeviceSurfaceFormats(device)
	if err != nil {
		return nil, err
	}
	modes, _, err := f.surface.PhysicalDeviceSurfacePresentModes(device)
	if err != nil {
		return nil, err
	}
	if len(formats) == 0 || len(modes) == 0 {
		return nil, nil
	}

	props, err := device.Properties()
	if err != nil {
		return nil, err
	}
	return &Adapter{factory: f, physicalDevice: device, properties: props, family: family}, nil
}

// findQueueFamily looks for a family that both renders and presents.
func (f *Factory) findQueueFamily(device core1_0.PhysicalDevice) (int, bool, error) {
	for queueFamilyIdx, queueFamily := range device.QueueFamilyProperties() {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) == 0 {
			continue
		}
		supported, _, err := f.surface.PhysicalDeviceSurfaceSupport(device, queueFamilyIdx)
		if err != nil {
			return 0, false, err
		}
		if supported {
			return queueFamilyIdx, true, nil
		}
	}
	return 0, false, nil
}

func checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

func (f *Factory) Release() {
	if f.surface != nil {
		f.surface.Destroy(nil)
		f.surface = nil
	}
	if f.debugMessenger != nil {
		f.debugMessenger.Destroy(nil)
		f.debugMessenger = nil
	}
	if f.instance != nil {
		f.instance.Destroy(nil)
		f.instance = nil
	}
}
