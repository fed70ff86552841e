package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"golang.org/x/exp/constraints"
)

var formats = map[metadata.Format]vk.Format{
	metadata.FormatUndefined:      vk.FormatUndefined,
	metadata.FormatR8Unorm:        vk.FormatR8Unorm,
	metadata.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	metadata.FormatRGBA8Srgb:      vk.FormatR8g8b8a8Srgb,
	metadata.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	metadata.FormatBGRA8Srgb:      vk.FormatB8g8r8a8Srgb,
	metadata.FormatRGB10A2Unorm:   vk.FormatA2b10g10r10UnormPack32,
	metadata.FormatR16Float:       vk.FormatR16Sfloat,
	metadata.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	metadata.FormatR32Float:       vk.FormatR32Sfloat,
	metadata.FormatRG32Float:      vk.FormatR32g32Sfloat,
	metadata.FormatRGB32Float:     vk.FormatR32g32b32Sfloat,
	metadata.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	metadata.FormatR32Uint:        vk.FormatR32Uint,
	metadata.FormatD32Float:       vk.FormatD32Sfloat,
	metadata.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	metadata.FormatD32FloatS8Uint: vk.FormatD32SfloatS8Uint,
}

func vkFormat(f metadata.Format) vk.Format {
	return formats[f]
}

// fromVkFormat is the reverse lookup, for formats reported by the surface.
func fromVkFormat(f vk.Format) metadata.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return metadata.FormatUndefined
}

var layouts = [...]vk.ImageLayout{
	metadata.ImageLayoutUndefined:              vk.ImageLayoutUndefined,
	metadata.ImageLayoutGeneral:                vk.ImageLayoutGeneral,
	metadata.ImageLayoutColorAttachment:        vk.ImageLayoutColorAttachmentOptimal,
	metadata.ImageLayoutDepthStencilAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
	metadata.ImageLayoutDepthStencilReadOnly:   vk.ImageLayoutDepthStencilReadOnlyOptimal,
	metadata.ImageLayoutFSReadOnly:             vk.ImageLayoutShaderReadOnlyOptimal,
	metadata.ImageLayoutVSReadOnly:             vk.ImageLayoutShaderReadOnlyOptimal,
	metadata.ImageLayoutTransferSrc:            vk.ImageLayoutTransferSrcOptimal,
	metadata.ImageLayoutTransferDst:            vk.ImageLayoutTransferDstOptimal,
	metadata.ImageLayoutPresentSrc:             vk.ImageLayoutPresentSrc,
}

func vkLayout(l metadata.ImageLayout) vk.ImageLayout {
	if !l.Valid() {
		return vk.ImageLayoutUndefined
	}
	return layouts[l]
}

func vkLoadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case metadata.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	default:
		return vk.AttachmentLoadOpLoad
	}
}

func vkStoreOp(op metadata.StoreOp) vk.AttachmentStoreOp {
	if op == metadata.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func vkSamples(n metadata.SampleCount) vk.SampleCountFlagBits {
	switch n.Count() {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	case 16:
		return vk.SampleCount16Bit
	default:
		return vk.SampleCount1Bit
	}
}

// mapBits translates a backend-neutral bit set through a bit to bit table.
func mapBits[F constraints.Integer, T constraints.Integer](flags F, table map[F]T) T {
	var out T
	for bit, v := range table {
		if flags&bit != 0 {
			out |= v
		}
	}
	return out
}

var stageBits = map[metadata.PipelineStage]vk.PipelineStageFlagBits{
	metadata.PipelineStageTopOfPipe:             vk.PipelineStageTopOfPipeBit,
	metadata.PipelineStageVertexShader:          vk.PipelineStageVertexShaderBit,
	metadata.PipelineStageFragmentShader:        vk.PipelineStageFragmentShaderBit,
	metadata.PipelineStageEarlyFragmentTests:    vk.PipelineStageEarlyFragmentTestsBit,
	metadata.PipelineStageLateFragmentTests:     vk.PipelineStageLateFragmentTestsBit,
	metadata.PipelineStageColorAttachmentOutput: vk.PipelineStageColorAttachmentOutputBit,
	metadata.PipelineStageComputeShader:         vk.PipelineStageComputeShaderBit,
	metadata.PipelineStageTransfer:              vk.PipelineStageTransferBit,
	metadata.PipelineStageBottomOfPipe:          vk.PipelineStageBottomOfPipeBit,
	metadata.PipelineStageAllCommands:           vk.PipelineStageAllCommandsBit,
}

func vkStages(s metadata.PipelineStage) vk.PipelineStageFlags {
	return vk.PipelineStageFlags(mapBits(s, stageBits))
}

var accessBits = map[metadata.Access]vk.AccessFlagBits{
	metadata.AccessInputAttachmentRead:         vk.AccessInputAttachmentReadBit,
	metadata.AccessShaderRead:                  vk.AccessShaderReadBit,
	metadata.AccessShaderWrite:                 vk.AccessShaderWriteBit,
	metadata.AccessColorAttachmentRead:         vk.AccessColorAttachmentReadBit,
	metadata.AccessColorAttachmentWrite:        vk.AccessColorAttachmentWriteBit,
	metadata.AccessDepthStencilAttachmentRead:  vk.AccessDepthStencilAttachmentReadBit,
	metadata.AccessDepthStencilAttachmentWrite: vk.AccessDepthStencilAttachmentWriteBit,
	metadata.AccessTransferRead:                vk.AccessTransferReadBit,
	metadata.AccessTransferWrite:               vk.AccessTransferWriteBit,
	metadata.AccessHostWrite:                   vk.AccessHostWriteBit,
}

func vkAccess(a metadata.Access) vk.AccessFlags {
	return vk.AccessFlags(mapBits(a, accessBits))
}

func vkDependencyFlags(f metadata.DependencyFlags) vk.DependencyFlags {
	if f&metadata.DependencyByRegion != 0 {
		return vk.DependencyFlags(vk.DependencyByRegionBit)
	}
	return 0
}

var aspectBits = map[metadata.ImageAspect]vk.ImageAspectFlagBits{
	metadata.ImageAspectColor:   vk.ImageAspectColorBit,
	metadata.ImageAspectDepth:   vk.ImageAspectDepthBit,
	metadata.ImageAspectStencil: vk.ImageAspectStencilBit,
}

func vkAspect(a metadata.ImageAspect) vk.ImageAspectFlags {
	return vk.ImageAspectFlags(mapBits(a, aspectBits))
}

// aspectOf is the full aspect of an image of format f.
func aspectOf(f metadata.Format) vk.ImageAspectFlags {
	switch {
	case f.HasStencil():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case f.IsDepth():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}

var shaderStageBits = map[metadata.ShaderStage]vk.ShaderStageFlagBits{
	metadata.ShaderStageVertex:   vk.ShaderStageVertexBit,
	metadata.ShaderStageFragment: vk.ShaderStageFragmentBit,
	metadata.ShaderStageCompute:  vk.ShaderStageComputeBit,
}

func vkShaderStages(s metadata.ShaderStage) vk.ShaderStageFlags {
	return vk.ShaderStageFlags(mapBits(s, shaderStageBits))
}

var bufferUsageBits = map[metadata.BufferUsage]vk.BufferUsageFlagBits{
	metadata.BufferUsageVertex:      vk.BufferUsageVertexBufferBit,
	metadata.BufferUsageIndex:       vk.BufferUsageIndexBufferBit,
	metadata.BufferUsageUniform:     vk.BufferUsageUniformBufferBit,
	metadata.BufferUsageStorage:     vk.BufferUsageStorageBufferBit,
	metadata.BufferUsageTransferSrc: vk.BufferUsageTransferSrcBit,
	metadata.BufferUsageTransferDst: vk.BufferUsageTransferDstBit,
}

func vkBufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	return vk.BufferUsageFlags(mapBits(u, bufferUsageBits))
}

var textureUsageBits = map[metadata.TextureUsage]vk.ImageUsageFlagBits{
	metadata.TextureUsageSampled:                vk.ImageUsageSampledBit,
	metadata.TextureUsageColorAttachment:        vk.ImageUsageColorAttachmentBit,
	metadata.TextureUsageDepthStencilAttachment: vk.ImageUsageDepthStencilAttachmentBit,
	metadata.TextureUsageInputAttachment:        vk.ImageUsageInputAttachmentBit,
	metadata.TextureUsageStorage:                vk.ImageUsageStorageBit,
	metadata.TextureUsageTransferSrc:            vk.ImageUsageTransferSrcBit,
	metadata.TextureUsageTransferDst:            vk.ImageUsageTransferDstBit,
}

func vkImageUsage(u metadata.TextureUsage) vk.ImageUsageFlags {
	return vk.ImageUsageFlags(mapBits(u, textureUsageBits))
}

func vkFilter(f metadata.Filter) vk.Filter {
	if f == metadata.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func vkMipmapMode(f metadata.Filter) vk.SamplerMipmapMode {
	if f == metadata.FilterNearest {
		return vk.SamplerMipmapModeNearest
	}
	return vk.SamplerMipmapModeLinear
}

func vkAddressMode(m metadata.AddressMode) vk.SamplerAddressMode {
	switch m {
	case metadata.AddressModeClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case metadata.AddressModeClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	case metadata.AddressModeMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	default:
		return vk.SamplerAddressModeRepeat
	}
}

var compareOps = [...]vk.CompareOp{
	metadata.CompareOpNever:          vk.CompareOpNever,
	metadata.CompareOpLess:           vk.CompareOpLess,
	metadata.CompareOpEqual:          vk.CompareOpEqual,
	metadata.CompareOpLessOrEqual:    vk.CompareOpLessOrEqual,
	metadata.CompareOpGreater:        vk.CompareOpGreater,
	metadata.CompareOpNotEqual:       vk.CompareOpNotEqual,
	metadata.CompareOpGreaterOrEqual: vk.CompareOpGreaterOrEqual,
	metadata.CompareOpAlways:         vk.CompareOpAlways,
}

func vkCompareOp(op metadata.CompareOp) vk.CompareOp {
	if op < 0 || int(op) >= len(compareOps) {
		return vk.CompareOpAlways
	}
	return compareOps[op]
}

func vkBorderColor(c metadata.BorderColor) vk.BorderColor {
	switch c {
	case metadata.BorderColorTransparentBlack:
		return vk.BorderColorFloatTransparentBlack
	case metadata.BorderColorOpaqueWhite:
		return vk.BorderColorFloatOpaqueWhite
	default:
		return vk.BorderColorFloatOpaqueBlack
	}
}

func vkTopology(t metadata.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case metadata.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case metadata.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case metadata.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func vkCullMode(c metadata.CullMode) vk.CullModeFlags {
	switch c {
	case metadata.CullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	default:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
}

func vkIndexType(t metadata.IndexType) vk.IndexType {
	if t == metadata.IndexTypeUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func vkClearValues(formats []metadata.Format, clear []metadata.ClearValue) []vk.ClearValue {
	out := make([]vk.ClearValue, len(clear))
	for i, c := range clear {
		if i < len(formats) && formats[i].IsDepth() {
			out[i].SetDepthStencil(c.Depth, c.Stencil)
			continue
		}
		out[i].SetColor([]float32{c.Color[0], c.Color[1], c.Color[2], c.Color[3]})
	}
	return out
}
