package vulkan

import (
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

var textureFormats = map[gputypes.TextureFormat]vk.Format{
	gputypes.TextureFormatR8Unorm:             vk.FormatR8Unorm,
	gputypes.TextureFormatR16Float:            vk.FormatR16Sfloat,
	gputypes.TextureFormatR32Float:            vk.FormatR32Sfloat,
	gputypes.TextureFormatRG16Float:           vk.FormatR16g16Sfloat,
	gputypes.TextureFormatRG32Float:           vk.FormatR32g32Sfloat,
	gputypes.TextureFormatRGBA8Unorm:          vk.FormatR8g8b8a8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:      vk.FormatR8g8b8a8Srgb,
	gputypes.TextureFormatBGRA8Unorm:          vk.FormatB8g8r8a8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:      vk.FormatB8g8r8a8Srgb,
	gputypes.TextureFormatRGB10A2Unorm:        vk.FormatA2b10g10r10UnormPack32,
	gputypes.TextureFormatRGBA16Float:         vk.FormatR16g16b16a16Sfloat,
	gputypes.TextureFormatRGBA32Float:         vk.FormatR32g32b32a32Sfloat,
	gputypes.TextureFormatDepth16Unorm:        vk.FormatD16Unorm,
	gputypes.TextureFormatDepth24Plus:         vk.FormatX8D24UnormPack32,
	gputypes.TextureFormatDepth24PlusStencil8: vk.FormatD24UnormS8Uint,
	gputypes.TextureFormatDepth32Float:        vk.FormatD32Sfloat,
}

func toVkFormat(f gputypes.TextureFormat) (vk.Format, bool) {
	v, ok := textureFormats[f]
	return v, ok
}

func fromVkFormat(f vk.Format) (gputypes.TextureFormat, bool) {
	for k, v := range textureFormats {
		if v == f {
			return k, true
		}
	}
	return gputypes.TextureFormatUndefined, false
}

func isDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth16Unorm,
		gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return true
	}
	return false
}

func imageAspect(desc gpu.ImageDesc) vk.ImageAspectFlags {
	switch {
	case desc.Aspect == gputypes.TextureAspectStencilOnly:
		return vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	case desc.Aspect == gputypes.TextureAspectDepthOnly, isDepthFormat(desc.Format):
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func imageUsage(desc gpu.ImageDesc) vk.ImageUsageFlags {
	var usage vk.ImageUsageFlags
	if desc.Usage&gputypes.TextureUsageRenderAttachment != 0 {
		if isDepthFormat(desc.Format) {
			usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		} else {
			usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
		}
	}
	if desc.Usage&gputypes.TextureUsageTextureBinding != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if desc.Usage&gputypes.TextureUsageStorageBinding != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if desc.Usage&gputypes.TextureUsageCopySrc != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if desc.Usage&gputypes.TextureUsageCopyDst != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	return usage
}

func bufferUsage(u gputypes.BufferUsage) vk.BufferUsageFlags {
	var usage vk.BufferUsageFlags
	if u&gputypes.BufferUsageUniform != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&gputypes.BufferUsageStorage != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if u&gputypes.BufferUsageVertex != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&gputypes.BufferUsageIndex != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&gputypes.BufferUsageIndirect != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit)
	}
	if u&gputypes.BufferUsageCopySrc != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if u&gputypes.BufferUsageCopyDst != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	return usage
}

func imageLayout(l gpu.ImageLayout) vk.ImageLayout {
	switch l {
	case gpu.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.LayoutShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.LayoutDepthRead:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case gpu.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

// layoutAccess returns the stages and accesses that touch an image while it
// sits in layout l. Barriers wait on the source pair and block the
// destination pair.
// barrierMasks returns the source and destination stage and access masks of
// a layout transition. Swap images leaving Undefined or PresentSrc start at
// color attachment output, the stage the acquire semaphore is waited on, so
// the transition is ordered after the presentation engine releases the image.
func barrierMasks(from, to gpu.ImageLayout, swapImage bool) (srcStage vk.PipelineStageFlags, srcAccess vk.AccessFlags, dstStage vk.PipelineStageFlags, dstAccess vk.AccessFlags) {
	srcStage, srcAccess = layoutAccess(from)
	dstStage, dstAccess = layoutAccess(to)
	if swapImage && (from == gpu.LayoutUndefined || from == gpu.LayoutPresentSrc) {
		srcStage, srcAccess = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), 0
	}
	return srcStage, srcAccess, dstStage, dstAccess
}

func layoutAccess(l gpu.ImageLayout) (vk.PipelineStageFlags, vk.AccessFlags) {
	switch l {
	case gpu.LayoutGeneral:
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
			vk.AccessFlags(vk.AccessMemoryReadBit) | vk.AccessFlags(vk.AccessMemoryWriteBit)
	case gpu.LayoutColorAttachment:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	case gpu.LayoutDepthAttachment:
		return vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	case gpu.LayoutShaderRead, gpu.LayoutDepthRead:
		return vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), vk.AccessFlags(vk.AccessShaderReadBit)
	case gpu.LayoutTransferSrc:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.AccessFlags(vk.AccessTransferReadBit)
	case gpu.LayoutTransferDst:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.AccessFlags(vk.AccessTransferWriteBit)
	case gpu.LayoutPresentSrc:
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), 0
	}
	return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), 0
}

func loadOp(op gputypes.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gputypes.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case gputypes.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

func storeOp(op gputypes.StoreOp) vk.AttachmentStoreOp {
	if op == gputypes.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func shaderStages(s gputypes.ShaderStages) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	if s&gputypes.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&gputypes.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if s&gputypes.ShaderStageCompute != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return flags
}

func descriptorType(k gpu.BindingKind) vk.DescriptorType {
	switch k {
	case gpu.BindingStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gpu.BindingSampledImage:
		return vk.DescriptorTypeSampledImage
	case gpu.BindingCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case gpu.BindingSampler:
		return vk.DescriptorTypeSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func compareOp(f gputypes.CompareFunction) vk.CompareOp {
	switch f {
	case gputypes.CompareFunctionNever:
		return vk.CompareOpNever
	case gputypes.CompareFunctionLess:
		return vk.CompareOpLess
	case gputypes.CompareFunctionEqual:
		return vk.CompareOpEqual
	case gputypes.CompareFunctionLessEqual:
		return vk.CompareOpLessOrEqual
	case gputypes.CompareFunctionGreater:
		return vk.CompareOpGreater
	case gputypes.CompareFunctionNotEqual:
		return vk.CompareOpNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	}
	return vk.CompareOpAlways
}

func filter(f gputypes.FilterMode) vk.Filter {
	if f == gputypes.FilterModeNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func addressMode(m gputypes.AddressMode) vk.SamplerAddressMode {
	switch m {
	case gputypes.AddressModeRepeat:
		return vk.SamplerAddressModeRepeat
	case gputypes.AddressModeMirrorRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	}
	return vk.SamplerAddressModeClampToEdge
}

func vertexFormat(f gputypes.VertexFormat) vk.Format {
	switch f {
	case gputypes.VertexFormatFloat32:
		return vk.FormatR32Sfloat
	case gputypes.VertexFormatFloat32x2:
		return vk.FormatR32g32Sfloat
	case gputypes.VertexFormatFloat32x3:
		return vk.FormatR32g32b32Sfloat
	case gputypes.VertexFormatFloat32x4:
		return vk.FormatR32g32b32a32Sfloat
	case gputypes.VertexFormatUnorm8x4:
		return vk.FormatR8g8b8a8Unorm
	case gputypes.VertexFormatUint32:
		return vk.FormatR32Uint
	case gputypes.VertexFormatUint32x2:
		return vk.FormatR32g32Uint
	case gputypes.VertexFormatUint32x4:
		return vk.FormatR32g32b32a32Uint
	}
	return vk.FormatUndefined
}

func topology(t gputypes.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case gputypes.PrimitiveTopologyPointList:
		return vk.PrimitiveTopologyPointList
	case gputypes.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gputypes.PrimitiveTopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case gputypes.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	}
	return vk.PrimitiveTopologyTriangleList
}

func cullMode(m gputypes.CullMode) vk.CullModeFlags {
	switch m {
	case gputypes.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gputypes.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func frontFace(f gputypes.FrontFace) vk.FrontFace {
	if f == gputypes.FrontFaceCW {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func indexType(f gputypes.IndexFormat) vk.IndexType {
	if f == gputypes.IndexFormatUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

var presentModes = map[gputypes.PresentMode]vk.PresentMode{
	gputypes.PresentModeFifo:        vk.PresentModeFifo,
	gputypes.PresentModeFifoRelaxed: vk.PresentModeFifoRelaxed,
	gputypes.PresentModeImmediate:   vk.PresentModeImmediate,
	gputypes.PresentModeMailbox:     vk.PresentModeMailbox,
}

func toVkPresentMode(m gputypes.PresentMode) vk.PresentMode {
	if v, ok := presentModes[m]; ok {
		return v
	}
	return vk.PresentModeFifo
}

func fromVkPresentMode(m vk.PresentMode) (gputypes.PresentMode, bool) {
	for k, v := range presentModes {
		if v == m {
			return k, true
		}
	}
	return gputypes.PresentModeUndefined, false
}
