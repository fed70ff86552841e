package metadata

import (
	"testing"

	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionMasks(t *testing.T) {
	m, err := TransitionMasks(FormatRGBA8Unorm, ImageLayoutUndefined, ImageLayoutTransferDst)
	require.NoError(t, err)
	assert.Equal(t, PipelineStageTopOfPipe, m.SrcStage)
	assert.Equal(t, PipelineStageTransfer, m.DstStage)
	assert.Equal(t, AccessTransferWrite, m.DstAccess)
	assert.Equal(t, ImageAspectColor, m.Aspect)

	m, err = TransitionMasks(FormatRGBA8Unorm, ImageLayoutTransferDst, ImageLayoutVSReadOnly)
	require.NoError(t, err)
	assert.Equal(t, AccessTransferWrite, m.SrcAccess)
	assert.Equal(t, PipelineStageVertexShader|PipelineStageComputeShader, m.DstStage)

	m, err = TransitionMasks(FormatD24UnormS8Uint, ImageLayoutUndefined, ImageLayoutDepthStencilAttachment)
	require.NoError(t, err)
	assert.Equal(t, ImageAspectDepth|ImageAspectStencil, m.Aspect)
	assert.Equal(t, PipelineStageEarlyFragmentTests, m.DstStage)

	m, err = TransitionMasks(FormatD32Float, ImageLayoutUndefined, ImageLayoutDepthStencilReadOnly)
	require.NoError(t, err)
	assert.Equal(t, ImageAspectDepth, m.Aspect)

	m, err = TransitionMasks(FormatRGBA8Unorm, ImageLayoutColorAttachment, ImageLayoutFSReadOnly)
	require.NoError(t, err)
	assert.Equal(t, PipelineStageColorAttachmentOutput, m.SrcStage)
	assert.Equal(t, PipelineStageFragmentShader, m.DstStage)
}

func TestTransitionMasksUnsupported(t *testing.T) {
	_, err := TransitionMasks(FormatRGBA8Unorm, ImageLayoutPresentSrc, ImageLayoutGeneral)
	assert.True(t, core.IsRecoverable(err))
}

func TestCubeMapFace(t *testing.T) {
	var f CubeMapFace
	assert.Equal(t, CubeMapFaceNone, f)
	assert.False(t, f.IsFace())
	assert.Equal(t, -1, CubeMapFaceAll.Layer())
	assert.Equal(t, 0, CubeMapFacePosX.Layer())
	assert.Equal(t, 5, CubeMapFaceNegZ.Layer())
}
