package metadata

import "github.com/spaghettifunk/anima-cgi/engine/core"

type ImageAspect uint32

const (
	ImageAspectColor ImageAspect = 1 << iota
	ImageAspectDepth
	ImageAspectStencil
)

/** @brief Stages and access masks of one image layout transition. */
type BarrierMasks struct {
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
	Aspect    ImageAspect
}

// readStage is the stage that waits on a sampled layout.
func readStage(l ImageLayout) PipelineStage {
	if l == ImageLayoutVSReadOnly {
		return PipelineStageVertexShader | PipelineStageComputeShader
	}
	return PipelineStageFragmentShader
}

func depthAspect(f Format) ImageAspect {
	a := ImageAspectDepth
	if f.HasStencil() {
		a |= ImageAspectStencil
	}
	return a
}

// TransitionMasks returns the barrier for moving an image of format f from
// oldLayout to newLayout. Pairs outside the supported table are data errors.
func TransitionMasks(f Format, oldLayout, newLayout ImageLayout) (BarrierMasks, error) {
	m := BarrierMasks{
		SrcStage: PipelineStageTopOfPipe,
		DstStage: PipelineStageBottomOfPipe,
		Aspect:   ImageAspectColor,
	}
	switch {
	case oldLayout == ImageLayoutUndefined && newLayout == ImageLayoutGeneral:
		// storage image initialization
		m.DstStage = PipelineStageTransfer
		m.DstAccess = AccessTransferWrite
	case oldLayout == ImageLayoutUndefined && newLayout == ImageLayoutDepthStencilAttachment:
		m.DstStage = PipelineStageEarlyFragmentTests
		m.DstAccess = AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite
		m.Aspect = depthAspect(f)
	case oldLayout == ImageLayoutUndefined && newLayout == ImageLayoutDepthStencilReadOnly:
		// shadow map initialization
		m.DstStage = PipelineStageFragmentShader
		m.DstAccess = AccessShaderRead
		m.Aspect = depthAspect(f)
	case oldLayout == ImageLayoutUndefined && newLayout.IsShaderReadOnly():
		// render target initialization
		m.DstStage = readStage(newLayout)
		m.DstAccess = AccessShaderRead
	case oldLayout == ImageLayoutUndefined && newLayout == ImageLayoutColorAttachment:
		m.DstStage = PipelineStageColorAttachmentOutput
		m.DstAccess = AccessColorAttachmentRead | AccessColorAttachmentWrite
	case oldLayout == ImageLayoutUndefined && newLayout == ImageLayoutTransferDst:
		m.DstStage = PipelineStageTransfer
		m.DstAccess = AccessTransferWrite
	case oldLayout == ImageLayoutGeneral && newLayout == ImageLayoutTransferSrc:
		m.DstStage = PipelineStageTransfer
		m.DstAccess = AccessTransferRead
	case oldLayout.IsShaderReadOnly() && newLayout.IsShaderReadOnly():
		// vertex texture fetch
		m.SrcStage = PipelineStageFragmentShader
		m.DstStage = readStage(newLayout)
		m.DstAccess = AccessShaderRead
	case oldLayout.IsShaderReadOnly() && newLayout == ImageLayoutTransferDst:
		m.SrcStage = PipelineStageFragmentShader
		m.DstStage = PipelineStageTransfer
		m.DstAccess = AccessTransferWrite
	case oldLayout == ImageLayoutTransferDst && newLayout.IsShaderReadOnly():
		m.SrcStage = PipelineStageTransfer
		m.SrcAccess = AccessTransferWrite
		m.DstStage = readStage(newLayout)
		m.DstAccess = AccessShaderRead
	case oldLayout == ImageLayoutColorAttachment && newLayout.IsShaderReadOnly():
		m.SrcStage = PipelineStageColorAttachmentOutput
		m.SrcAccess = AccessColorAttachmentWrite
		m.DstStage = readStage(newLayout)
		m.DstAccess = AccessShaderRead
	case oldLayout.IsShaderReadOnly() && newLayout == ImageLayoutColorAttachment:
		m.SrcStage = PipelineStageFragmentShader
		m.DstStage = PipelineStageColorAttachmentOutput
		m.DstAccess = AccessColorAttachmentRead | AccessColorAttachmentWrite
	default:
		return BarrierMasks{}, core.Recoverablef("unsupported layout transition %s -> %s", oldLayout, newLayout)
	}
	return m, nil
}
