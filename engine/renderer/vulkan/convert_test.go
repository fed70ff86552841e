package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
)

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		assert.Equal(t, f, fromVkFormat(vkFormat(f)), f.String())
	}
	assert.Equal(t, metadata.FormatUndefined, fromVkFormat(vk.FormatR8g8Unorm))
}

func TestLayouts(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, vkLayout(metadata.ImageLayoutFSReadOnly))
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, vkLayout(metadata.ImageLayoutVSReadOnly))
	assert.Equal(t, vk.ImageLayoutPresentSrc, vkLayout(metadata.ImageLayoutPresentSrc))
	assert.Equal(t, vk.ImageLayoutUndefined, vkLayout(metadata.ImageLayout(-1)))
}

func TestMapBits(t *testing.T) {
	stages := vkStages(metadata.PipelineStageColorAttachmentOutput | metadata.PipelineStageFragmentShader)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit|vk.PipelineStageFragmentShaderBit), stages)
	assert.Zero(t, vkStages(0))

	access := vkAccess(metadata.AccessColorAttachmentWrite | metadata.AccessShaderRead)
	assert.Equal(t, vk.AccessFlags(vk.AccessColorAttachmentWriteBit|vk.AccessShaderReadBit), access)

	assert.Equal(t, vk.DependencyFlags(vk.DependencyByRegionBit), vkDependencyFlags(metadata.DependencyByRegion))
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
		vkShaderStages(metadata.ShaderStageVertex|metadata.ShaderStageFragment))
}

func TestAspectOf(t *testing.T) {
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), aspectOf(metadata.FormatRGBA8Unorm))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspectOf(metadata.FormatD32Float))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), aspectOf(metadata.FormatD24UnormS8Uint))
}

func TestSamples(t *testing.T) {
	assert.Equal(t, vk.SampleCount1Bit, vkSamples(0))
	assert.Equal(t, vk.SampleCount1Bit, vkSamples(1))
	assert.Equal(t, vk.SampleCount4Bit, vkSamples(4))
	assert.Equal(t, vk.SampleCount1Bit, vkSamples(3))
}

func TestClearValues(t *testing.T) {
	values := vkClearValues(
		[]metadata.Format{metadata.FormatBGRA8Srgb, metadata.FormatD32Float},
		[]metadata.ClearValue{metadata.ClearColor(0, 0, 0.2, 1), metadata.ClearDepth(1, 0)},
	)
	assert.Len(t, values, 2)
}
