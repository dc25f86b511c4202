package vulkan

import (
	vk "github.com/goki/vulkan"
)

type framebufferKey struct {
	Renderpass vk.RenderPass
	Views      [maxColorAttachments + 1]vk.ImageView
	Count      int
	Width      uint32
	Height     uint32
}

func (k framebufferKey) uses(view vk.ImageView) bool {
	for i := 0; i < k.Count; i++ {
		if k.Views[i] == view {
			return true
		}
	}
	return false
}

// framebuffer returns the framebuffer for key, creating it on first use.
func (d *Device) framebuffer(key framebufferKey) (vk.Framebuffer, error) {
	var out vk.Framebuffer
	err := d.locks.SafeCall(PipelineManagement, func() error {
		if fb, ok := d.framebuffers[key]; ok {
			out = fb
			return nil
		}
		createInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      key.Renderpass,
			AttachmentCount: uint32(key.Count),
			PAttachments:    key.Views[:key.Count],
			Width:           key.Width,
			Height:          key.Height,
			Layers:          1,
		}
		var fb vk.Framebuffer
		if res := vk.CreateFramebuffer(d.logical(), &createInfo, d.context.Allocator, &fb); res != vk.Success {
			return resultError("vkCreateFramebuffer", res)
		}
		d.framebuffers[key] = fb
		out = fb
		return nil
	})
	return out, err
}

// forgetViews destroys every framebuffer that references one of the views
// of img. Called before the image goes away.
func (d *Device) forgetViews(img *vulkanImage) {
	views := append([]vk.ImageView{img.View}, img.LayerViews...)
	d.locks.SafeCall(PipelineManagement, func() error {
		for key, fb := range d.framebuffers {
			for _, view := range views {
				if key.uses(view) {
					vk.DestroyFramebuffer(d.logical(), fb, d.context.Allocator)
					delete(d.framebuffers, key)
					break
				}
			}
		}
		return nil
	})
}

func (d *Device) destroyCaches() {
	d.locks.SafeCall(PipelineManagement, func() error {
		for key, fb := range d.framebuffers {
			vk.DestroyFramebuffer(d.logical(), fb, d.context.Allocator)
			delete(d.framebuffers, key)
		}
		for key, rp := range d.renderpasses {
			vk.DestroyRenderPass(d.logical(), rp, d.context.Allocator)
			delete(d.renderpasses, key)
		}
		return nil
	})
}
