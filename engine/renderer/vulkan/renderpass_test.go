package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPassInfo(t *testing.T) {
	depth := metadata.Ref("depth", metadata.ImageLayoutDepthStencilAttachment)
	plan, err := metadata.BuildRenderPassPlan(
		[]metadata.AttachmentDesc{
			metadata.Attachment("color", metadata.FormatBGRA8Srgb).LoadOpClear().
				Layout(metadata.ImageLayoutUndefined, metadata.ImageLayoutPresentSrc),
			metadata.Attachment("gbuffer", metadata.FormatRGBA16Float).LoadOpClear().StoreOpDontCare().
				Layout(metadata.ImageLayoutUndefined, metadata.ImageLayoutColorAttachment),
			metadata.Attachment("depth", metadata.FormatD32Float).LoadOpClear().
				Layout(metadata.ImageLayoutUndefined, metadata.ImageLayoutDepthStencilAttachment),
		},
		[]metadata.SubpassDesc{
			{
				Name:         "geometry",
				Color:        []metadata.AttachmentRef{metadata.Ref("gbuffer", metadata.ImageLayoutColorAttachment)},
				DepthStencil: &depth,
			},
			{
				Name:     "lighting",
				Input:    []metadata.AttachmentRef{metadata.Ref("gbuffer", metadata.ImageLayoutFSReadOnly)},
				Color:    []metadata.AttachmentRef{metadata.Ref("color", metadata.ImageLayoutColorAttachment)},
				Preserve: []string{"depth"},
			},
		},
		[]metadata.DependencyDesc{
			{Src: "", Dst: "geometry"},
			{Src: "geometry", Dst: "lighting", Mode: metadata.DependencyModeColorToFragmentRead},
		},
	)
	require.NoError(t, err)

	info := vkRenderPassInfo(plan)
	require.Len(t, info.PAttachments, 3)
	assert.Equal(t, vk.FormatB8g8r8a8Srgb, info.PAttachments[0].Format)
	assert.Equal(t, vk.AttachmentLoadOpClear, info.PAttachments[0].LoadOp)
	assert.Equal(t, vk.AttachmentStoreOpDontCare, info.PAttachments[1].StoreOp)
	assert.Equal(t, vk.ImageLayoutPresentSrc, info.PAttachments[0].FinalLayout)

	require.Len(t, info.PSubpasses, 2)
	geometry := info.PSubpasses[0]
	assert.Equal(t, uint32(1), geometry.ColorAttachmentCount)
	assert.Equal(t, uint32(1), geometry.PColorAttachments[0].Attachment)
	require.NotNil(t, geometry.PDepthStencilAttachment)
	assert.Equal(t, uint32(2), geometry.PDepthStencilAttachment.Attachment)

	lighting := info.PSubpasses[1]
	assert.Equal(t, uint32(1), lighting.InputAttachmentCount)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, lighting.PInputAttachments[0].Layout)
	assert.Nil(t, lighting.PDepthStencilAttachment)
	assert.Equal(t, []uint32{2}, lighting.PPreserveAttachments)

	require.Len(t, info.PDependencies, 2)
	assert.Equal(t, uint32(vk.SubpassExternal), info.PDependencies[0].SrcSubpass)
	assert.Equal(t, uint32(0), info.PDependencies[0].DstSubpass)
	assert.Equal(t, vk.DependencyFlags(vk.DependencyByRegionBit), info.PDependencies[1].DependencyFlags)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), info.PDependencies[1].DstStageMask)
}
