package vulkan

import (
	vk "github.com/goki/vulkan"
)

type attachmentKey struct {
	Format vk.Format
	Load   vk.AttachmentLoadOp
	Store  vk.AttachmentStoreOp
}

// renderpassKey identifies a cached render pass. Images are moved into their
// attachment layout by explicit barriers before a pass begins, so the layouts
// never vary and are not part of the key.
type renderpassKey struct {
	Colors     [maxColorAttachments]attachmentKey
	ColorCount int
	Depth      attachmentKey
	HasDepth   bool
}

// renderpass returns the render pass for key, creating it on first use.
func (d *Device) renderpass(key renderpassKey) (vk.RenderPass, error) {
	var out vk.RenderPass
	err := d.locks.SafeCall(PipelineManagement, func() error {
		if rp, ok := d.renderpasses[key]; ok {
			out = rp
			return nil
		}
		rp, err := d.createRenderpass(key)
		if err != nil {
			return err
		}
		d.renderpasses[key] = rp
		out = rp
		return nil
	})
	return out, err
}

func (d *Device) createRenderpass(key renderpassKey) (vk.RenderPass, error) {
	descriptions := make([]vk.AttachmentDescription, 0, key.ColorCount+1)
	colorReferences := make([]vk.AttachmentReference, key.ColorCount)
	for i := 0; i < key.ColorCount; i++ {
		c := key.Colors[i]
		descriptions = append(descriptions, vk.AttachmentDescription{
			Format:         c.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         c.Load,
			StoreOp:        c.Store,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorReferences[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(key.ColorCount),
		PColorAttachments:    colorReferences,
	}

	if key.HasDepth {
		descriptions = append(descriptions, vk.AttachmentDescription{
			Format:         key.Depth.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         key.Depth.Load,
			StoreOp:        key.Depth.Store,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(key.ColorCount),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
		vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:   vk.SubpassExternal,
		DstSubpass:   0,
		SrcStageMask: stages,
		DstStageMask: stages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descriptions)),
		PAttachments:    descriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if res := vk.CreateRenderPass(d.logical(), &createInfo, d.context.Allocator, &rp); res != vk.Success {
		return nil, resultError("vkCreateRenderPass", res)
	}
	return rp, nil
}
