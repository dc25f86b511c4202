package vulkan

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

// VulkanPipeline holds a graphics pipeline and its layout.
type VulkanPipeline struct {
	Handle         vk.Pipeline
	PipelineLayout vk.PipelineLayout
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if len(desc.ColorFormats) > maxColorAttachments {
		return gpu.Pipeline{}, fmt.Errorf("%w: pipeline %q has %d color targets", core.ErrInvalidConfig, desc.Name, len(desc.ColorFormats))
	}

	vertexEntry, fragmentEntry := desc.VertexEntry, desc.FragmentEntry
	if vertexEntry == "" {
		vertexEntry = "vs_main"
	}
	if fragmentEntry == "" {
		fragmentEntry = "fs_main"
	}

	var stages []shaderStage
	defer func() { d.destroyShaderStages(stages) }()

	vs, err := d.newShaderStage(desc.Name+".vert", desc.Vertex, vk.ShaderStageVertexBit, vertexEntry)
	if err != nil {
		return gpu.Pipeline{}, err
	}
	stages = append(stages, vs)
	// Depth only passes may run without a fragment stage.
	if len(desc.Fragment) > 0 {
		fs, err := d.newShaderStage(desc.Name+".frag", desc.Fragment, vk.ShaderStageFragmentBit, fragmentEntry)
		if err != nil {
			return gpu.Pipeline{}, err
		}
		stages = append(stages, fs)
	}
	stageInfos := make([]vk.PipelineShaderStageCreateInfo, len(stages))
	for i, s := range stages {
		stageInfos[i] = s.CreateInfo
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(desc.Layouts))
	for i, l := range desc.Layouts {
		if setLayouts[i], err = lookup(d, d.layouts, l.Handle, "binding layout"); err != nil {
			return gpu.Pipeline{}, err
		}
	}

	renderpass, err := d.renderpass(compatibleKey(desc))
	if err != nil {
		return gpu.Pipeline{}, err
	}

	out := &VulkanPipeline{}
	if out.PipelineLayout, err = d.createPipelineLayout(desc, setLayouts); err != nil {
		return gpu.Pipeline{}, err
	}

	// Viewport and scissor are dynamic; the counts still have to be declared.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                cullMode(desc.CullMode),
		FrontFace:               frontFace(desc.FrontFace),
		DepthBiasEnable:         vk.False,
	}
	if desc.DepthBias {
		rasterizer.DepthBiasEnable = vk.True
		rasterizer.DepthBiasConstantFactor = depthBiasConstant
		rasterizer.DepthBiasSlopeFactor = depthBiasSlope
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = compareOp(desc.DepthCompare)
		if desc.DepthCompare == gputypes.CompareFunctionUndefined {
			depthStencil.DepthCompareOp = vk.CompareOpLess
		}
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	writeMask := vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
		vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit)
	blendStates := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColorFormats))
	for i := range blendStates {
		blendStates[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:    vk.False,
			ColorWriteMask: writeMask,
		}
		if desc.Blend {
			blendStates[i] = vk.PipelineColorBlendAttachmentState{
				BlendEnable:         vk.True,
				SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
				DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				ColorBlendOp:        vk.BlendOpAdd,
				SrcAlphaBlendFactor: vk.BlendFactorOne,
				DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				AlphaBlendOp:        vk.BlendOpAdd,
				ColorWriteMask:      writeMask,
			}
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendStates)),
		PAttachments:    blendStates,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindings, attributes := vertexInput(desc.VertexLayouts)
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               topology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stageInfos)),
		PStages:             stageInfos,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              out.PipelineLayout,
		RenderPass:          renderpass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	err = d.locks.SafeCall(PipelineManagement, func() error {
		res := vk.CreateGraphicsPipelines(d.logical(), vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, d.context.Allocator, pipelines)
		return resultError("vkCreateGraphicsPipelines "+desc.Name, res)
	})
	if err != nil {
		d.destroyPipeline(out)
		if core.IsFatal(err) {
			return gpu.Pipeline{}, err
		}
		return gpu.Pipeline{}, fmt.Errorf("%w: %w", core.ErrPipelineCreation, err)
	}
	out.Handle = pipelines[0]

	core.LogDebug("graphics pipeline %q created", desc.Name)
	return gpu.Pipeline{Handle: insert(d, d.pipelines, out)}, nil
}

func (d *Device) createPipelineLayout(desc gpu.PipelineDesc, setLayouts []vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if desc.PushConstants > 0 {
		stages := shaderStages(desc.PushStages)
		if stages == 0 {
			stages = vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
		}
		createInfo.PushConstantRangeCount = 1
		createInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: stages,
			Offset:     0,
			Size:       desc.PushConstants,
		}}
	}
	var layout vk.PipelineLayout
	err := d.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreatePipelineLayout "+desc.Name,
			vk.CreatePipelineLayout(d.logical(), &createInfo, d.context.Allocator, &layout))
	})
	if err != nil {
		if core.IsFatal(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrPipelineCreation, err)
	}
	return layout, nil
}

// compatibleKey builds a render pass key that any pass with the same target
// formats can use; load and store ops do not affect compatibility.
func compatibleKey(desc gpu.PipelineDesc) renderpassKey {
	var key renderpassKey
	for i, f := range desc.ColorFormats {
		format, _ := toVkFormat(f)
		key.Colors[i] = attachmentKey{Format: format, Load: vk.AttachmentLoadOpClear, Store: vk.AttachmentStoreOpStore}
	}
	key.ColorCount = len(desc.ColorFormats)
	if desc.DepthFormat != gputypes.TextureFormatUndefined {
		format, _ := toVkFormat(desc.DepthFormat)
		key.Depth = attachmentKey{Format: format, Load: vk.AttachmentLoadOpClear, Store: vk.AttachmentStoreOpStore}
		key.HasDepth = true
	}
	return key
}

func vertexInput(layouts []gputypes.VertexBufferLayout) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	bindings := make([]vk.VertexInputBindingDescription, 0, len(layouts))
	var attributes []vk.VertexInputAttributeDescription
	for i, l := range layouts {
		rate := vk.VertexInputRateVertex
		if l.StepMode == gputypes.VertexStepModeInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings = append(bindings, vk.VertexInputBindingDescription{
			Binding:   uint32(i),
			Stride:    uint32(l.ArrayStride),
			InputRate: rate,
		})
		for _, a := range l.Attributes {
			attributes = append(attributes, vk.VertexInputAttributeDescription{
				Location: a.ShaderLocation,
				Binding:  uint32(i),
				Format:   vertexFormat(a.Format),
				Offset:   uint32(a.Offset),
			})
		}
	}
	return bindings, attributes
}

func (d *Device) DestroyPipeline(h gpu.Pipeline) {
	if p, ok := remove(d, d.pipelines, h.Handle); ok {
		d.destroyPipeline(p)
	}
}

func (d *Device) destroyPipeline(p *VulkanPipeline) {
	d.locks.SafeCall(PipelineManagement, func() error {
		if p.Handle != nil {
			vk.DestroyPipeline(d.logical(), p.Handle, d.context.Allocator)
			p.Handle = nil
		}
		if p.PipelineLayout != nil {
			vk.DestroyPipelineLayout(d.logical(), p.PipelineLayout, d.context.Allocator)
			p.PipelineLayout = nil
		}
		return nil
	})
}
