package metadata

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vert"
	case ShaderStageFragment:
		return "frag"
	case ShaderStageCompute:
		return "comp"
	default:
		return "stages"
	}
}

/** @brief Compiled code of one shader stage. */
type ShaderCode struct {
	Stage      ShaderStage
	EntryPoint string
	Code       []byte
}

/**
 * @brief A combined image sampler binding. The sampler is one of the immutable
 * samplers and is baked into the descriptor set layout.
 */
type TextureBinding struct {
	Binding uint32
	Stages  ShaderStage
	Sampler Sampler
}

type UniformBinding struct {
	Binding uint32
	Stages  ShaderStage
	Size    uint32
}

/**
 * @brief Describes a shader program: its stage code and the resources it reads.
 */
type ShaderDesc struct {
	Name             string
	Stages           []ShaderCode
	Textures         []TextureBinding
	Uniforms         []UniformBinding
	PushConstantSize uint32
}

func (d *ShaderDesc) IsCompute() bool {
	return len(d.Stages) == 1 && d.Stages[0].Stage == ShaderStageCompute
}
