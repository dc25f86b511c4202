package vulkan

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

type vulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	// LayerViews address single layers of an array image as attachments.
	LayerViews []vk.ImageView
	Width      uint32
	Height     uint32
	Format     vk.Format
	Aspect     vk.ImageAspectFlags
	Depth      bool
	// swapchain images are owned by their swapchain; only the views are ours.
	swapchain bool
}

// attachmentView returns the view to render into layer.
func (img *vulkanImage) attachmentView(layer uint32) vk.ImageView {
	if len(img.LayerViews) == 0 {
		return img.View
	}
	return img.LayerViews[layer]
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	format, ok := toVkFormat(desc.Format)
	if !ok {
		return gpu.Image{}, fmt.Errorf("%w: image %q format %s", core.ErrInvalidConfig, desc.Label, desc.Format)
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	img := &vulkanImage{
		Width:  desc.Extent.Width,
		Height: desc.Extent.Height,
		Format: format,
		Aspect: imageAspect(desc),
		Depth:  isDepthFormat(desc.Format),
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   layers,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         imageUsage(desc),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	if res := vk.CreateImage(d.logical(), &createInfo, d.context.Allocator, &img.Handle); res != vk.Success {
		return gpu.Image{}, resultError("vkCreateImage "+desc.Label, res)
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical(), img.Handle, &requirements)
	requirements.Deref()

	memoryType := d.context.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if memoryType == -1 {
		d.destroyImage(img)
		return gpu.Image{}, fmt.Errorf("image %q: no device local memory type: %w", desc.Label, core.ErrOutOfMemory)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if res := vk.AllocateMemory(d.logical(), &allocateInfo, d.context.Allocator, &img.Memory); res != vk.Success {
		d.destroyImage(img)
		return gpu.Image{}, resultError("vkAllocateMemory "+desc.Label, res)
	}
	// TODO: configurable memory offset for use cases such as image pooling.
	if res := vk.BindImageMemory(d.logical(), img.Handle, img.Memory, 0); res != vk.Success {
		d.destroyImage(img)
		return gpu.Image{}, resultError("vkBindImageMemory "+desc.Label, res)
	}

	var err error
	if layers > 1 {
		img.View, err = d.createImageView(img, vk.ImageViewType2dArray, 0, layers)
		for layer := uint32(0); err == nil && layer < layers; layer++ {
			var view vk.ImageView
			view, err = d.createImageView(img, vk.ImageViewType2d, layer, 1)
			img.LayerViews = append(img.LayerViews, view)
		}
	} else {
		img.View, err = d.createImageView(img, vk.ImageViewType2d, 0, 1)
	}
	if err != nil {
		d.destroyImage(img)
		return gpu.Image{}, err
	}
	return gpu.Image{Handle: insert(d, d.images, img)}, nil
}

func (d *Device) createImageView(img *vulkanImage, viewType vk.ImageViewType, baseLayer, layers uint32) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: viewType,
		Format:   img.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     img.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: baseLayer,
			LayerCount:     layers,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.logical(), &viewInfo, d.context.Allocator, &view); res != vk.Success {
		return nil, resultError("vkCreateImageView", res)
	}
	return view, nil
}

func (d *Device) DestroyImage(h gpu.Image) {
	img, ok := remove(d, d.images, h.Handle)
	if !ok {
		return
	}
	d.forgetViews(img)
	d.destroyImage(img)
}

func (d *Device) destroyImage(img *vulkanImage) {
	for _, view := range img.LayerViews {
		if view != nil {
			vk.DestroyImageView(d.logical(), view, d.context.Allocator)
		}
	}
	img.LayerViews = nil
	if img.View != nil {
		vk.DestroyImageView(d.logical(), img.View, d.context.Allocator)
		img.View = nil
	}
	if img.swapchain {
		return
	}
	if img.Memory != nil {
		vk.FreeMemory(d.logical(), img.Memory, d.context.Allocator)
		img.Memory = nil
	}
	if img.Handle != nil {
		vk.DestroyImage(d.logical(), img.Handle, d.context.Allocator)
		img.Handle = nil
	}
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        filter(desc.Filter),
		MinFilter:        filter(desc.Filter),
		AddressModeU:     addressMode(desc.Address),
		AddressModeV:     addressMode(desc.Address),
		AddressModeW:     addressMode(desc.Address),
		AnisotropyEnable: vk.False,
		MaxAnisotropy:    1,
		BorderColor:      vk.BorderColorFloatOpaqueWhite,
		MipmapMode:       vk.SamplerMipmapModeLinear,
		CompareEnable:    vk.False,
		CompareOp:        vk.CompareOpAlways,
	}
	if desc.Compare != gputypes.CompareFunctionUndefined {
		createInfo.CompareEnable = vk.True
		createInfo.CompareOp = compareOp(desc.Compare)
	}
	if desc.Filter == gputypes.FilterModeNearest {
		createInfo.MipmapMode = vk.SamplerMipmapModeNearest
	}

	var sampler vk.Sampler
	if res := vk.CreateSampler(d.logical(), &createInfo, d.context.Allocator, &sampler); res != vk.Success {
		return gpu.Sampler{}, resultError("vkCreateSampler", res)
	}
	return gpu.Sampler{Handle: insert(d, d.samplers, sampler)}, nil
}

func (d *Device) DestroySampler(h gpu.Sampler) {
	if sampler, ok := remove(d, d.samplers, h.Handle); ok {
		vk.DestroySampler(d.logical(), sampler, d.context.Allocator)
	}
}
