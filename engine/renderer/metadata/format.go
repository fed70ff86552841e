package metadata

/** @brief Backend-neutral pixel and vertex attribute formats. */
type Format int

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatRGB10A2Unorm
	FormatR16Float
	FormatRGBA16Float
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatR32Uint
	FormatD32Float
	FormatD24UnormS8Uint
	FormatD32FloatS8Uint
	formatCount
)

var formatNames = [formatCount]string{
	"undefined", "r8_unorm", "rgba8_unorm", "rgba8_srgb", "bgra8_unorm", "bgra8_srgb",
	"rgb10a2_unorm", "r16_float", "rgba16_float", "r32_float", "rg32_float", "rgb32_float",
	"rgba32_float", "r32_uint", "d32_float", "d24_unorm_s8_uint", "d32_float_s8_uint",
}

func (f Format) String() string {
	if f < 0 || f >= formatCount {
		return "format(?)"
	}
	return formatNames[f]
}

func (f Format) Valid() bool {
	return f > FormatUndefined && f < formatCount
}

func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD24UnormS8Uint || f == FormatD32FloatS8Uint
}

func (f Format) IsSrgb() bool {
	return f == FormatRGBA8Srgb || f == FormatBGRA8Srgb
}

func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32FloatS8Uint
}

// Size is the size of one texel or vertex element in bytes.
func (f Format) Size() int {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatR16Float:
		return 2
	case FormatRGBA8Unorm, FormatRGBA8Srgb, FormatBGRA8Unorm, FormatBGRA8Srgb, FormatRGB10A2Unorm,
		FormatR32Float, FormatR32Uint, FormatD32Float, FormatD24UnormS8Uint:
		return 4
	case FormatRGBA16Float, FormatRG32Float, FormatD32FloatS8Uint:
		return 8
	case FormatRGB32Float:
		return 12
	case FormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

/** @brief Number of samples per pixel. Zero is treated as one. */
type SampleCount int

func (s SampleCount) Count() int {
	if s <= 0 {
		return 1
	}
	return int(s)
}

/** @brief Image layouts an attachment or texture can be in. */
type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachment
	ImageLayoutDepthStencilAttachment
	ImageLayoutDepthStencilReadOnly
	/** @brief Shader read only, sampled from the fragment stage. */
	ImageLayoutFSReadOnly
	/** @brief Shader read only, sampled from the vertex or compute stage. */
	ImageLayoutVSReadOnly
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutPresentSrc
	imageLayoutCount
)

var imageLayoutNames = [imageLayoutCount]string{
	"undefined", "general", "color_attachment", "depth_stencil_attachment",
	"depth_stencil_read_only", "fs_read_only", "vs_read_only", "transfer_src",
	"transfer_dst", "present_src",
}

func (l ImageLayout) String() string {
	if l < 0 || l >= imageLayoutCount {
		return "layout(?)"
	}
	return imageLayoutNames[l]
}

func (l ImageLayout) Valid() bool {
	return l >= 0 && l < imageLayoutCount
}

// IsShaderReadOnly reports whether the layout is one of the sampled layouts.
func (l ImageLayout) IsShaderReadOnly() bool {
	return l == ImageLayoutFSReadOnly || l == ImageLayoutVSReadOnly
}
