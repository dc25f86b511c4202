package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

type VulkanSwapchain struct {
	Handle vk.Swapchain
	Format vk.SurfaceFormat
	Extent vk.Extent2D
	// Images are registered in the image arena so passes can target them
	// like any other attachment.
	Images []gpu.Image
}

// VK_EXT_swapchain_colorspace values.
const (
	colorSpaceExtendedSrgbLinear vk.ColorSpace = 1000104002
	colorSpaceHdr10St2084        vk.ColorSpace = 1000104008
)

var colorSpaces = map[gpu.ColorSpace]vk.ColorSpace{
	gpu.ColorSpaceSRGBNonLinear:      vk.ColorSpaceSrgbNonlinear,
	gpu.ColorSpaceExtendedSRGBLinear: colorSpaceExtendedSrgbLinear,
	gpu.ColorSpaceHDR10:              colorSpaceHdr10St2084,
}

func fromVkColorSpace(c vk.ColorSpace) (gpu.ColorSpace, bool) {
	for k, v := range colorSpaces {
		if v == c {
			return k, true
		}
	}
	return 0, false
}

// SurfaceCapabilities queries the window surface. Formats and present modes
// without a portable equivalent are left out.
func (d *Device) SurfaceCapabilities() (gpu.SurfaceCaps, error) {
	physical := d.context.Device.PhysicalDevice
	surface := d.context.Surface

	var capabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &capabilities); res != vk.Success {
		return gpu.SurfaceCaps{}, resultError("vkGetPhysicalDeviceSurfaceCapabilities", res)
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, nil); res != vk.Success {
		return gpu.SurfaceCaps{}, resultError("vkGetPhysicalDeviceSurfaceFormats", res)
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	if formatCount > 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, formats); res != vk.Success {
			return gpu.SurfaceCaps{}, resultError("vkGetPhysicalDeviceSurfaceFormats", res)
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, nil); res != vk.Success {
		return gpu.SurfaceCaps{}, resultError("vkGetPhysicalDeviceSurfacePresentModes", res)
	}
	modes := make([]vk.PresentMode, modeCount)
	if modeCount > 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, modes); res != vk.Success {
			return gpu.SurfaceCaps{}, resultError("vkGetPhysicalDeviceSurfacePresentModes", res)
		}
	}

	caps := gpu.SurfaceCaps{
		CurrentExtent: gpu.Extent2D{Width: capabilities.CurrentExtent.Width, Height: capabilities.CurrentExtent.Height},
		MinExtent:     gpu.Extent2D{Width: capabilities.MinImageExtent.Width, Height: capabilities.MinImageExtent.Height},
		MaxExtent:     gpu.Extent2D{Width: capabilities.MaxImageExtent.Width, Height: capabilities.MaxImageExtent.Height},
		MinImageCount: capabilities.MinImageCount,
		MaxImageCount: capabilities.MaxImageCount,
	}
	for i := range formats {
		formats[i].Deref()
		format, ok := fromVkFormat(formats[i].Format)
		if !ok {
			continue
		}
		space, ok := fromVkColorSpace(formats[i].ColorSpace)
		if !ok {
			continue
		}
		caps.Formats = append(caps.Formats, gpu.SurfaceFormat{Format: format, ColorSpace: space})
	}
	for _, m := range modes {
		if mode, ok := fromVkPresentMode(m); ok {
			caps.PresentModes = append(caps.PresentModes, mode)
		}
	}
	if len(caps.Formats) == 0 {
		return caps, fmt.Errorf("surface reports no usable format: %w", core.ErrSurfaceUnsupported)
	}
	return caps, nil
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, []gpu.Image, error) {
	format, ok := toVkFormat(desc.Format.Format)
	if !ok {
		return gpu.Swapchain{}, nil, fmt.Errorf("swapchain format %s: %w", desc.Format.Format, core.ErrSurfaceUnsupported)
	}
	space, ok := colorSpaces[desc.Format.ColorSpace]
	if !ok {
		return gpu.Swapchain{}, nil, fmt.Errorf("swapchain color space %d: %w", desc.Format.ColorSpace, core.ErrSurfaceUnsupported)
	}

	var capabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(d.context.Device.PhysicalDevice, d.context.Surface, &capabilities); res != vk.Success {
		return gpu.Swapchain{}, nil, resultError("vkGetPhysicalDeviceSurfaceCapabilities", res)
	}
	capabilities.Deref()

	var old vk.Swapchain
	if desc.Old.IsValid() {
		if prev, err := lookup(d, d.swapchains, desc.Old.Handle, "swapchain"); err == nil {
			old = prev.Handle
		}
	}

	sc := &VulkanSwapchain{
		Format: vk.SurfaceFormat{Format: format, ColorSpace: space},
		Extent: vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
	}
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.context.Surface,
		MinImageCount:    desc.ImageCount,
		ImageFormat:      format,
		ImageColorSpace:  space,
		ImageExtent:      sc.Extent,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) |
			vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: vk.CompositeAlphaOpaqueBit,
		PresentMode:    toVkPresentMode(desc.PresentMode),
		Clipped:        vk.True,
		OldSwapchain:   old,
	}

	dev := d.context.Device
	if dev.GraphicsQueueIndex != dev.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{uint32(dev.GraphicsQueueIndex), uint32(dev.PresentQueueIndex)}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	if res := vk.CreateSwapchain(d.logical(), &createInfo, d.context.Allocator, &sc.Handle); res != vk.Success {
		err := resultError("vkCreateSwapchain", res)
		if !core.IsFatal(err) {
			err = fmt.Errorf("%w: %w", core.ErrSurfaceUnsupported, err)
		}
		return gpu.Swapchain{}, nil, err
	}

	var imageCount uint32
	if res := vk.GetSwapchainImages(d.logical(), sc.Handle, &imageCount, nil); res != vk.Success {
		d.destroySwapchain(sc)
		return gpu.Swapchain{}, nil, resultError("vkGetSwapchainImages", res)
	}
	handles := make([]vk.Image, imageCount)
	if res := vk.GetSwapchainImages(d.logical(), sc.Handle, &imageCount, handles); res != vk.Success {
		d.destroySwapchain(sc)
		return gpu.Swapchain{}, nil, resultError("vkGetSwapchainImages", res)
	}

	for _, handle := range handles {
		img := &vulkanImage{
			Handle:    handle,
			Width:     sc.Extent.Width,
			Height:    sc.Extent.Height,
			Format:    format,
			Aspect:    vk.ImageAspectFlags(vk.ImageAspectColorBit),
			swapchain: true,
		}
		view, err := d.createImageView(img, vk.ImageViewType2d, 0, 1)
		if err != nil {
			d.destroySwapchain(sc)
			return gpu.Swapchain{}, nil, err
		}
		img.View = view
		sc.Images = append(sc.Images, gpu.Image{Handle: insert(d, d.images, img)})
	}

	core.LogInfo("swapchain created: %dx%d, %d images, %s", sc.Extent.Width, sc.Extent.Height, imageCount, desc.PresentMode)
	images := make([]gpu.Image, len(sc.Images))
	copy(images, sc.Images)
	return gpu.Swapchain{Handle: insert(d, d.swapchains, sc)}, images, nil
}

// DestroySwapchain releases the chain and the views of its images. The
// caller waits for the device to go idle first.
func (d *Device) DestroySwapchain(h gpu.Swapchain) {
	if sc, ok := remove(d, d.swapchains, h.Handle); ok {
		d.destroySwapchain(sc)
	}
}

func (d *Device) destroySwapchain(sc *VulkanSwapchain) {
	for _, ih := range sc.Images {
		if img, ok := remove(d, d.images, ih.Handle); ok {
			d.forgetViews(img)
			d.destroyImage(img)
		}
	}
	sc.Images = nil
	if sc.Handle != nil {
		vk.DestroySwapchain(d.logical(), sc.Handle, d.context.Allocator)
		sc.Handle = nil
	}
}

// AcquireNextImage returns core.ErrSuboptimal together with a usable index.
func (d *Device) AcquireNextImage(h gpu.Swapchain, signal gpu.Semaphore, timeout time.Duration) (uint32, error) {
	sc, err := lookup(d, d.swapchains, h.Handle, "swapchain")
	if err != nil {
		return 0, err
	}
	semaphores, err := d.semaphoreList(signal)
	if err != nil {
		return 0, err
	}
	var semaphore vk.Semaphore
	if len(semaphores) > 0 {
		semaphore = semaphores[0]
	}
	var index uint32
	res := vk.AcquireNextImage(d.logical(), sc.Handle, timeoutNanos(timeout), semaphore, vk.NullFence, &index)
	switch res {
	case vk.Success:
		return index, nil
	case vk.Suboptimal:
		return index, resultError("vkAcquireNextImage", res)
	}
	return 0, resultError("vkAcquireNextImage", res)
}

func (d *Device) Present(h gpu.Swapchain, index uint32, wait gpu.Semaphore) error {
	sc, err := lookup(d, d.swapchains, h.Handle, "swapchain")
	if err != nil {
		return err
	}
	waits, err := d.semaphoreList(wait)
	if err != nil {
		return err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{index},
	}
	return d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkQueuePresent", vk.QueuePresent(d.context.Device.PresentQueue, &presentInfo))
	})
}
