package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type pipeline struct {
	ctx *vkContext
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	Layout vk.PipelineLayout
	/** @brief Graphics or compute. */
	BindPoint vk.PipelineBindPoint
}

func (p *pipeline) Compute() bool {
	return p.BindPoint == vk.PipelineBindPointCompute
}

func colorWriteAll() vk.ColorComponentFlags {
	return vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
		vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit)
}

func blendAttachment(mode metadata.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		BlendEnable:    vk.False,
		ColorWriteMask: colorWriteAll(),
	}
	switch mode {
	case metadata.BlendModeAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
		state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.AlphaBlendOp = vk.BlendOpAdd
	case metadata.BlendModeAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorOne
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOne
		state.AlphaBlendOp = vk.BlendOpAdd
	}
	return state
}

func vertexInput(layout metadata.VertexLayout) vk.PipelineVertexInputStateCreateInfo {
	info := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if layout.Stride == 0 {
		// Vertices generated in the shader.
		return info
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(layout.Attributes))
	for i, a := range layout.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   vkFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	info.VertexBindingDescriptionCount = 1
	info.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    layout.Stride,
		InputRate: vk.VertexInputRateVertex,
	}}
	info.VertexAttributeDescriptionCount = uint32(len(attributes))
	info.PVertexAttributeDescriptions = attributes
	return info
}

func newPipelineLayout(ctx *vkContext, sh *shader) (vk.PipelineLayout, error) {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	if sh.SetLayout != nil {
		createInfo.SetLayoutCount = 1
		createInfo.PSetLayouts = []vk.DescriptorSetLayout{sh.SetLayout}
	}
	// Push constants
	if size := sh.desc.PushConstantSize; size > 0 {
		limit := ctx.Device.Properties.Limits.MaxPushConstantsSize
		if limit > 0 && size > limit {
			return nil, core.Recoverablef("shader %q: %d bytes of push constants, device allows %d", sh.desc.Name, size, limit)
		}
		createInfo.PushConstantRangeCount = 1
		createInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: sh.stageFlags(),
			Offset:     0,
			Size:       size,
		}}
	}

	var layout vk.PipelineLayout
	err := ctx.locks.safeCall(pipelineManagement, func() error {
		return check(vk.CreatePipelineLayout(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &layout), "vkCreatePipelineLayout %q", sh.desc.Name)
	})
	return layout, err
}

func newPipeline(ctx *vkContext, state *driver.PipelineState) (*pipeline, error) {
	desc := state.Desc
	sh, ok := state.Shader.(*shader)
	if !ok || len(sh.modules) == 0 {
		return nil, core.Fatalf("pipeline %q: shader is not a live vulkan shader", desc.Name)
	}
	layout, err := newPipelineLayout(ctx, sh)
	if err != nil {
		return nil, err
	}
	p := &pipeline{ctx: ctx, Layout: layout, BindPoint: vk.PipelineBindPointGraphics}
	if sh.desc.IsCompute() {
		p.BindPoint = vk.PipelineBindPointCompute
		err = p.createCompute(sh)
	} else {
		err = p.createGraphics(desc, sh, state.RenderPass)
	}
	if err != nil {
		p.Destroy()
		return nil, err
	}
	core.LogDebug("pipeline %q created", desc.Name)
	return p, nil
}

func (p *pipeline) createCompute(sh *shader) error {
	info := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              sh.stages[0],
		Layout:             p.Layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	return p.ctx.locks.safeCall(pipelineManagement, func() error {
		if err := check(vk.CreateComputePipelines(p.ctx.Device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.ComputePipelineCreateInfo{info}, p.ctx.Allocator, pipelines), "vkCreateComputePipelines %q", sh.desc.Name); err != nil {
			return err
		}
		p.Handle = pipelines[0]
		return nil
	})
}

func (p *pipeline) createGraphics(desc *metadata.PipelineDesc, sh *shader, pass driver.RenderPass) error {
	rp, ok := pass.(*renderPass)
	if !ok || rp.Handle == vk.NullRenderPass {
		return core.Fatalf("pipeline %q: render pass is not a live vulkan render pass", desc.Name)
	}
	if desc.Subpass < 0 || desc.Subpass >= len(rp.colors) {
		return core.Recoverablef("pipeline %q: subpass %d out of range", desc.Name, desc.Subpass)
	}

	// Viewport and scissor are dynamic.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vkCullMode(desc.Cull),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if desc.Wireframe {
		rasterizer.PolygonMode = vk.PolygonModeLine
	}

	// Multisampling.
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vkSamples(desc.Samples),
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		DepthCompareOp:    vkCompareOp(desc.DepthCompare),
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	attachments := make([]vk.PipelineColorBlendAttachmentState, rp.colors[desc.Subpass])
	for i := range attachments {
		attachments[i] = blendAttachment(desc.Blend)
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vertexInput(desc.Vertex)

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vkTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(sh.stages)),
		PStages:             sh.stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              p.Layout,
		RenderPass:          rp.Handle,
		Subpass:             uint32(desc.Subpass),
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	return p.ctx.locks.safeCall(pipelineManagement, func() error {
		if err := check(vk.CreateGraphicsPipelines(p.ctx.Device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{createInfo}, p.ctx.Allocator, pipelines), "vkCreateGraphicsPipelines %q", desc.Name); err != nil {
			return err
		}
		p.Handle = pipelines[0]
		return nil
	})
}

func (p *pipeline) Destroy() {
	_ = p.ctx.locks.safeCall(pipelineManagement, func() error {
		if p.Handle != vk.NullPipeline {
			vk.DestroyPipeline(p.ctx.Device.LogicalDevice, p.Handle, p.ctx.Allocator)
			p.Handle = vk.NullPipeline
		}
		if p.Layout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(p.ctx.Device.LogicalDevice, p.Layout, p.ctx.Allocator)
			p.Layout = vk.NullPipelineLayout
		}
		return nil
	})
}
