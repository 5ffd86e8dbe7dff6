package vk

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/cg2go/renderer/gpu"
)

// SwapChain presents on the factory surface. The next image is acquired
// right after every present and waited for on the host, so
// CurrentBackBufferIndex is always ready to render to.
type SwapChain struct {
	dev   *Device
	queue *Queue

	swapchainExtension khr_swapchain.Extension
	swapchain          khr_swapchain.Swapchain
	extent             core1_0.Extent2D
	buffers            []*Resource
	current            int
	acquired           core1_0.Fence
}

var _ gpu.SwapChain = (*SwapChain)(nil)

func newSwapChain(d *Device, q *Queue, desc gpu.SwapChainDesc) (*SwapChain, error) {
	s := &SwapChain{dev: d, queue: q}
	if err := s.create(desc); err != nil {
		s.Release()
		return nil, err
	}
	if err := s.acquire(); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

func (s *SwapChain) create(desc gpu.SwapChainDesc) error {
	d := s.dev
	surface := d.adapter.factory.surface
	ext := khr_swapchain.CreateExtensionFromDevice(d.device)
	if ext == nil {
		return errors.Newf("vk: %s is not active on the device", khr_swapchain.ExtensionName)
	}
	s.swapchainExtension = ext

	capabilities, _, err := surface.PhysicalDeviceSurfaceCapabilities(d.adapter.physicalDevice)
	if err != nil {
		return err
	}
	formats, _, err := surface.PhysicalDeviceSurfaceFormats(d.adapter.physicalDevice)
	if err != nil {
		return err
	}

	surfaceFormat := chooseSwapSurfaceFormat(formats)
	extent := chooseSwapExtent(capabilities, desc.Width, desc.Height)

	imageCount := max(desc.BufferCount, capabilities.MinImageCount)
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}

	s.swapchain, _, err = s.swapchainExtension.CreateSwapchain(d.device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode: core1_0.SharingModeExclusive,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,

		// FIFO is the vsynced mode every driver supports.
		PresentMode: khr_surface.PresentModeFIFO,
		Clipped:     true,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	s.extent = extent

	images, _, err := s.swapchain.SwapchainImages()
	if err != nil {
		return err
	}
	for _, image := range images {
		s.buffers = append(s.buffers, &Resource{
			dev: d,
			desc: gpu.ResourceDesc{
				Dimension:        gpu.DimensionTexture2D,
				Width:            uint64(extent.Width),
				Height:           uint32(extent.Height),
				DepthOrArraySize: 1,
				MipLevels:        1,
				Format:           desc.Format,
				Flags:            gpu.FlagAllowRenderTarget,
			},
			image:  image,
			format: surfaceFormat.Format,
			swap:   true,
		})
	}

	d.mu.Lock()
	d.surfaceFormat = surfaceFormat.Format
	d.mu.Unlock()

	s.acquired, _, err = d.device.CreateFence(nil, core1_0.FenceCreateInfo{})
	return errors.Wrap(err, "create acquire fence")
}

func chooseSwapSurfaceFormat(availableFormats []khr_surface.Format) khr_surface.Format {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

func chooseSwapExtent(capabilities *khr_surface.Capabilities, width, height int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	width = min(max(width, capabilities.MinImageExtent.Width), capabilities.MaxImageExtent.Width)
	height = min(max(height, capabilities.MinImageExtent.Height), capabilities.MaxImageExtent.Height)
	return core1_0.Extent2D{Width: width, Height: height}
}

func (s *SwapChain) acquire() error {
	imageIndex, res, err := s.swapchain.AcquireNextImage(common.NoTimeout, nil, s.acquired)
	if res == khr_swapchain.VKErrorOutOfDate {
		return errors.Wrap(err, "acquire back buffer: swapchain out of date")
	} else if err != nil {
		return errors.Wrap(err, "acquire back buffer")
	}

	if _, err := s.acquired.Wait(common.NoTimeout); err != nil {
		return errors.Wrap(err, "wait for back buffer")
	}
	if _, err := s.dev.device.ResetFences([]core1_0.Fence{s.acquired}); err != nil {
		return err
	}
	s.current = imageIndex
	return nil
}

func (s *SwapChain) BufferCount() int            { return len(s.buffers) }
func (s *SwapChain) CurrentBackBufferIndex() int { return s.current }

func (s *SwapChain) Buffer(i int) (gpu.Resource, error) {
	if i < 0 || i >= len(s.buffers) {
		return nil, errors.Newf("vk: back buffer %d of %d", i, len(s.buffers))
	}
	return s.buffers[i], nil
}

// Present queues the current back buffer. Only vsynced presentation is
// supported; syncInterval 0 is treated as 1.
func (s *SwapChain) Present(syncInterval int) error {
	if err := s.dev.check(); err != nil {
		return err
	}
	info := khr_swapchain.PresentInfo{
		Swapchains:   []khr_swapchain.Swapchain{s.swapchain},
		ImageIndices: []int{s.current},
	}
	if s.queue.presentWait {
		info.WaitSemaphores = []core1_0.Semaphore{s.queue.renderDone}
		s.queue.presentWait = false
	}

	res, err := s.swapchainExtension.QueuePresent(s.queue.queue, info)
	if res == core1_0.VKErrorDeviceLost {
		s.dev.remove(err)
		return gpu.ErrDeviceRemoved
	} else if err != nil && res != khr_swapchain.VKSuboptimal {
		return errors.Wrap(err, "present")
	}
	return s.acquire()
}

func (s *SwapChain) Release() {
	if s.acquired != nil {
		s.acquired.Destroy(nil)
		s.acquired = nil
	}
	s.buffers = nil
	if s.swapchain != nil {
		s.swapchain.Destroy(nil)
		s.swapchain = nil
	}
}
