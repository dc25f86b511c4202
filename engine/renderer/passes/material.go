package passes

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/binding"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

const solidTextureTimeout = 5 * time.Second

// SolidTexture makes a 1x1 sampled texture of color by clearing it as a
// render target once. It blocks until the clear has finished on the GPU.
func SolidTexture(device gpu.Device, label string, color gputypes.Color) (gpu.Image, error) {
	img, err := device.CreateImage(gpu.ImageDesc{
		Label:  label,
		Extent: gpu.Extent2D{Width: 1, Height: 1},
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return gpu.Image{}, err
	}

	stream, err := device.CreateCommandStream()
	if err != nil {
		device.DestroyImage(img)
		return gpu.Image{}, err
	}
	defer device.DestroyCommandStream(stream)

	fence, err := device.CreateFence(false)
	if err != nil {
		device.DestroyImage(img)
		return gpu.Image{}, err
	}
	defer device.DestroyFence(fence)

	if err := stream.Begin(); err != nil {
		device.DestroyImage(img)
		return gpu.Image{}, err
	}
	stream.Barrier(img, gpu.LayoutUndefined, gpu.LayoutColorAttachment)
	stream.BeginPass(gpu.PassDesc{
		Name:   label,
		Extent: gpu.Extent2D{Width: 1, Height: 1},
		Color: []gpu.ColorAttachment{{
			Image: img,
			Load:  gputypes.LoadOpClear,
			Store: gputypes.StoreOpStore,
			Clear: color,
		}},
	})
	stream.EndPass()
	stream.Barrier(img, gpu.LayoutColorAttachment, gpu.LayoutShaderRead)

	err = stream.End()
	if err == nil {
		err = device.Submit(stream, gpu.Semaphore{}, gpu.Semaphore{}, fence)
	}
	if err == nil {
		err = device.WaitFence(fence, solidTextureTimeout)
	}
	if err != nil {
		device.DestroyImage(img)
		return gpu.Image{}, fmt.Errorf("clear %s: %w", label, err)
	}
	return img, nil
}

// defaultMaterial is bound for draw items that carry no material set: plain
// white albedo.
type defaultMaterial struct {
	image   gpu.Image
	sampler gpu.Sampler
	set     gpu.BindingSet
}

func newDefaultMaterial(device gpu.Device, allocator *binding.Allocator) (defaultMaterial, error) {
	var m defaultMaterial
	var err error
	if m.image, err = SolidTexture(device, "material.default", gputypes.Color{R: 1, G: 1, B: 1, A: 1}); err != nil {
		return defaultMaterial{}, err
	}
	if m.sampler, err = device.CreateSampler(gpu.SamplerDesc{
		Filter:  gputypes.FilterModeNearest,
		Address: gputypes.AddressModeRepeat,
	}); err != nil {
		m.destroy(device, allocator)
		return defaultMaterial{}, err
	}
	if m.set, err = allocator.MakeSet(MaterialBindings(m.image, m.sampler)); err != nil {
		m.destroy(device, allocator)
		return defaultMaterial{}, err
	}
	return m, nil
}

func (m *defaultMaterial) destroy(device gpu.Device, allocator *binding.Allocator) {
	freeSet(allocator, &m.set)
	if m.sampler.IsValid() {
		device.DestroySampler(m.sampler)
	}
	if m.image.IsValid() {
		device.DestroyImage(m.image)
	}
	*m = defaultMaterial{}
}
