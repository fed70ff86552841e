package metadata

type PrimitiveTopology int

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeBack
	CullModeFront
)

type BlendMode int

const (
	BlendModeOff BlendMode = iota
	BlendModeAlpha
	BlendModeAdditive
)

/**
 * @brief Describes a pipeline against a shader and one subpass of a render pass.
 * Compute pipelines leave RenderPass unset.
 */
type PipelineDesc struct {
	Name         string
	Shader       ShaderHandle
	RenderPass   RPHandle
	Subpass      int
	Vertex       VertexLayout
	Topology     PrimitiveTopology
	Cull         CullMode
	Wireframe    bool
	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareOp
	Blend        BlendMode
	Samples      SampleCount
}
