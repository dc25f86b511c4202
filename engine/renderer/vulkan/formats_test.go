package vulkan

import (
	"testing"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

func TestTextureFormatsRoundTrip(t *testing.T) {
	for format := range textureFormats {
		v, ok := toVkFormat(format)
		if !ok {
			t.Fatalf("%s not mapped", format)
		}
		back, ok := fromVkFormat(v)
		if !ok || back != format {
			t.Errorf("%s came back as %s", format, back)
		}
	}
	if _, ok := toVkFormat(gputypes.TextureFormatUndefined); ok {
		t.Error("undefined format should not map")
	}
}

func TestAttachmentUsage(t *testing.T) {
	depth := gpu.ImageDesc{
		Format: gputypes.TextureFormatDepth32Float,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	}
	usage := imageUsage(depth)
	if usage&vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit) == 0 {
		t.Error("depth target lacks depth attachment usage")
	}
	if usage&vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) != 0 {
		t.Error("depth target has color attachment usage")
	}
	if imageAspect(depth) != vk.ImageAspectFlags(vk.ImageAspectDepthBit) {
		t.Error("depth target aspect should be depth")
	}

	ldr := gpu.ImageDesc{
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	}
	usage = imageUsage(ldr)
	if usage&vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) == 0 || usage&vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit) == 0 {
		t.Errorf("ldr usage = %#x", usage)
	}
	if imageAspect(ldr) != vk.ImageAspectFlags(vk.ImageAspectColorBit) {
		t.Error("color target aspect should be color")
	}
}

func TestImageLayouts(t *testing.T) {
	tests := map[gpu.ImageLayout]vk.ImageLayout{
		gpu.LayoutUndefined:       vk.ImageLayoutUndefined,
		gpu.LayoutColorAttachment: vk.ImageLayoutColorAttachmentOptimal,
		gpu.LayoutDepthAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
		gpu.LayoutShaderRead:      vk.ImageLayoutShaderReadOnlyOptimal,
		gpu.LayoutDepthRead:       vk.ImageLayoutDepthStencilReadOnlyOptimal,
		gpu.LayoutPresentSrc:      vk.ImageLayoutPresentSrc,
	}
	for in, want := range tests {
		if got := imageLayout(in); got != want {
			t.Errorf("imageLayout(%s) = %d, want %d", in, got, want)
		}
	}

	// Leaving undefined waits on nothing.
	stage, access := layoutAccess(gpu.LayoutUndefined)
	if stage != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) || access != 0 {
		t.Errorf("undefined: stage %#x access %#x", stage, access)
	}
	_, access = layoutAccess(gpu.LayoutColorAttachment)
	if access&vk.AccessFlags(vk.AccessColorAttachmentWriteBit) == 0 {
		t.Error("color attachment layout should cover attachment writes")
	}
}

func TestPresentModes(t *testing.T) {
	if toVkPresentMode(gputypes.PresentModeUndefined) != vk.PresentModeFifo {
		t.Error("unknown present mode should fall back to fifo")
	}
	for mode, v := range presentModes {
		back, ok := fromVkPresentMode(v)
		if !ok || back != mode {
			t.Errorf("%s came back as %s", mode, back)
		}
	}
}

func TestCompatibleKey(t *testing.T) {
	key := compatibleKey(gpu.PipelineDesc{
		ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRGBA16Float},
		DepthFormat:  gputypes.TextureFormatDepth32Float,
	})
	if key.ColorCount != 2 || !key.HasDepth {
		t.Fatalf("key = %+v", key)
	}
	if key.Depth.Format != vk.FormatD32Sfloat {
		t.Errorf("depth format = %d", key.Depth.Format)
	}

	shadow := compatibleKey(gpu.PipelineDesc{DepthFormat: gputypes.TextureFormatDepth16Unorm})
	if shadow.ColorCount != 0 || !shadow.HasDepth {
		t.Errorf("depth only key = %+v", shadow)
	}
}

func TestVertexInput(t *testing.T) {
	bindings, attributes := vertexInput([]gputypes.VertexBufferLayout{{
		ArrayStride: 32,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
		},
	}})
	if len(bindings) != 1 || bindings[0].Stride != 32 || bindings[0].InputRate != vk.VertexInputRateVertex {
		t.Fatalf("bindings = %+v", bindings)
	}
	if len(attributes) != 3 || attributes[2].Offset != 24 || attributes[2].Format != vk.FormatR32g32Sfloat {
		t.Errorf("attributes = %+v", attributes)
	}
}

func TestSwapImageBarrierWaitsForAcquire(t *testing.T) {
	colorOutput := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	for _, from := range []gpu.ImageLayout{gpu.LayoutUndefined, gpu.LayoutPresentSrc} {
		srcStage, srcAccess, dstStage, _ := barrierMasks(from, gpu.LayoutColorAttachment, true)
		if srcStage != colorOutput || srcAccess != 0 {
			t.Errorf("swap image %s -> ColorAttachment: src stage %#x access %#x", from, srcStage, srcAccess)
		}
		if dstStage != colorOutput {
			t.Errorf("swap image %s -> ColorAttachment: dst stage %#x", from, dstStage)
		}
	}

	// offscreen targets keep the plain masks
	srcStage, _, _, _ := barrierMasks(gpu.LayoutUndefined, gpu.LayoutColorAttachment, false)
	if srcStage != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Errorf("offscreen Undefined src stage = %#x", srcStage)
	}
	srcStage, srcAccess, _, _ := barrierMasks(gpu.LayoutColorAttachment, gpu.LayoutPresentSrc, true)
	if srcStage != colorOutput || srcAccess&vk.AccessFlags(vk.AccessColorAttachmentWriteBit) == 0 {
		t.Errorf("swap image ColorAttachment -> PresentSrc: src stage %#x access %#x", srcStage, srcAccess)
	}
}
