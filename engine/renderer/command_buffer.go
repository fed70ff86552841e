package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

// CommandBuffer is the single mutation point during a frame. It records into
// whatever native command buffer the frame cycle has open and holds no
// synchronization state of its own.
type CommandBuffer struct {
	renderer *Renderer

	renderPass *renderPass
	subpass    int

	viewportSize  mgl32.Vec4
	viewScaleBias mgl32.Vec4
}

func newCommandBuffer(r *Renderer) *CommandBuffer {
	return &CommandBuffer{
		renderer:      r,
		viewScaleBias: mgl32.Vec4{1, 1, 0, 0},
	}
}

func (cb *CommandBuffer) detach() {
	cb.renderer = nil
	cb.renderPass = nil
}

func (cb *CommandBuffer) recorder() (driver.Recorder, error) {
	if cb.renderer == nil {
		return nil, errors.Mark(errors.Wrap(core.ErrInvalidHandle, "command buffer was deleted"), core.ErrFatal)
	}
	if cb.renderer.state != FrameStateRecording || cb.renderer.recorder == nil {
		return nil, errors.Mark(errors.Wrapf(core.ErrFrameState, "recording in state %s", cb.renderer.state), core.ErrFatal)
	}
	return cb.renderer.recorder, nil
}

// ViewportSize is (width, height, 1/width, 1/height) of the last viewport.
func (cb *CommandBuffer) ViewportSize() mgl32.Vec4 {
	return cb.viewportSize
}

// ViewScaleBias maps display coordinates into the last viewport:
// (width/displayWidth, height/displayHeight, x/displayWidth, y/displayHeight).
func (cb *CommandBuffer) ViewScaleBias() mgl32.Vec4 {
	return cb.viewScaleBias
}

// BeginRenderPass starts the first subpass. With setViewportAndScissor the
// viewport and scissor cover the whole framebuffer.
func (cb *CommandBuffer) BeginRenderPass(rp metadata.RPHandle, fb metadata.FBHandle, clear []metadata.ClearValue, setViewportAndScissor bool) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if cb.renderPass != nil {
		return core.Fatalf("render pass begun inside another render pass")
	}
	pass, err := cb.renderer.renderPass(rp)
	if err != nil {
		return err
	}
	frame, err := cb.renderer.Framebuffer(fb)
	if err != nil {
		return err
	}
	if !frame.RenderPass.Equal(rp) {
		core.LogWarn("%s begun with %s built for %s", rp, fb, frame.RenderPass)
	}

	rec.BeginRenderPass(pass.native, frame.native, metadata.Rect{Width: frame.Width, Height: frame.Height}, clear)
	cb.renderPass = pass
	cb.subpass = 0

	if setViewportAndScissor {
		vp := metadata.Viewport{Width: float32(frame.Width), Height: float32(frame.Height), MaxDepth: 1}
		if err := cb.SetViewport([]metadata.Viewport{vp}); err != nil {
			return err
		}
		return cb.SetScissor([]metadata.Rect{{Width: frame.Width, Height: frame.Height}})
	}
	return nil
}

func (cb *CommandBuffer) NextSubpass() error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if cb.renderPass == nil {
		return core.Fatalf("next subpass outside a render pass")
	}
	if cb.subpass+1 >= len(cb.renderPass.plan.Subpasses) {
		return core.Fatalf("next subpass past the last of %d subpasses", len(cb.renderPass.plan.Subpasses))
	}
	rec.NextSubpass()
	cb.subpass++
	return nil
}

func (cb *CommandBuffer) EndRenderPass() error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if cb.renderPass == nil {
		return core.Fatalf("end render pass outside a render pass")
	}
	rec.EndRenderPass()
	cb.renderPass = nil
	return nil
}

// Subpass is the index of the current subpass, or -1 outside a render pass.
func (cb *CommandBuffer) Subpass() int {
	if cb.renderPass == nil {
		return -1
	}
	return cb.subpass
}

func (cb *CommandBuffer) BindPipeline(h metadata.PipelineHandle) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	p, err := cb.renderer.Pipeline(h)
	if err != nil {
		return err
	}
	rec.BindPipeline(p.native)
	return nil
}

func (cb *CommandBuffer) BindVertexBuffers(h metadata.GeometryHandle) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	g, err := cb.renderer.Geometry(h)
	if err != nil {
		return err
	}
	rec.BindVertexBuffers(0, []driver.Buffer{g.vertices}, []uint64{0})
	return nil
}

func (cb *CommandBuffer) BindIndexBuffer(h metadata.GeometryHandle) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	g, err := cb.renderer.Geometry(h)
	if err != nil {
		return err
	}
	if g.indices == nil {
		return core.Recoverablef("geometry %q has no index buffer", g.name)
	}
	rec.BindIndexBuffer(g.indices, 0, g.indexType)
	return nil
}

func (cb *CommandBuffer) BindDescriptors(h metadata.PipelineHandle, set uint32, ds driver.DescriptorSet) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	p, err := cb.renderer.Pipeline(h)
	if err != nil {
		return err
	}
	rec.BindDescriptorSet(p.native, set, ds)
	return nil
}

func (cb *CommandBuffer) PushConstants(h metadata.PipelineHandle, stages metadata.ShaderStage, offset uint32, data []byte) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	p, err := cb.renderer.Pipeline(h)
	if err != nil {
		return err
	}
	if sh, err := cb.renderer.Shader(p.desc.Shader); err == nil {
		if limit := sh.desc.PushConstantSize; offset+uint32(len(data)) > limit {
			return core.Recoverablef("push constants [%d,%d) exceed %d bytes", offset, offset+uint32(len(data)), limit)
		}
	}
	rec.PushConstants(p.native, stages, offset, data)
	return nil
}

// SetViewport sets the viewports and derives ViewportSize and ViewScaleBias
// from the first one.
func (cb *CommandBuffer) SetViewport(vp []metadata.Viewport) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if len(vp) == 0 {
		return nil
	}
	rec.SetViewport(vp)

	w, h := vp[0].Width, vp[0].Height
	if w > 0 && h > 0 {
		cb.viewportSize = mgl32.Vec4{w, h, 1 / w, 1 / h}
	}
	dw, dh := cb.renderer.SwapChainSize()
	if dw > 0 && dh > 0 {
		fw, fh := float32(dw), float32(dh)
		cb.viewScaleBias = mgl32.Vec4{w / fw, h / fh, vp[0].X / fw, vp[0].Y / fh}
	}
	return nil
}

func (cb *CommandBuffer) SetScissor(rc []metadata.Rect) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if len(rc) > 0 {
		rec.SetScissor(rc)
	}
	return nil
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if cb.renderPass == nil {
		return core.Fatalf("draw outside a render pass")
	}
	rec.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if cb.renderPass == nil {
		return core.Fatalf("draw outside a render pass")
	}
	rec.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	return nil
}

func (cb *CommandBuffer) Dispatch(x, y, z uint32) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if cb.renderPass != nil {
		return core.Fatalf("dispatch inside a render pass")
	}
	rec.Dispatch(x, y, z)
	return nil
}

// PipelineImageMemoryBarrier transitions mip levels [mipBase, mipBase+mipCount)
// of one layer of a texture and remembers the new layout.
func (cb *CommandBuffer) PipelineImageMemoryBarrier(h metadata.TextureHandle, oldLayout, newLayout metadata.ImageLayout, mipBase, mipCount uint32, layer int) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	t, err := cb.renderer.Texture(h)
	if err != nil {
		return err
	}
	if mipCount == 0 || mipBase+mipCount > t.desc.Mips() || layer < 0 || layer >= int(t.desc.Layers()) {
		return core.Recoverablef("texture %q: barrier range mip %d+%d layer %d out of bounds", t.desc.Name, mipBase, mipCount, layer)
	}
	masks, err := metadata.TransitionMasks(t.desc.Format, oldLayout, newLayout)
	if err != nil {
		return err
	}
	rec.ImageBarrier(t.native, oldLayout, newLayout, masks, mipBase, mipCount, layer)
	for mip := mipBase; mip < mipBase+mipCount; mip++ {
		t.layouts[t.subresource(mip, layer)] = newLayout
	}
	return nil
}

func (cb *CommandBuffer) CopyBuffer(src, dst driver.Buffer, srcOffset, dstOffset, size uint64) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if cb.renderPass != nil {
		return core.Fatalf("copy inside a render pass")
	}
	if srcOffset+size > uint64(src.Size()) || dstOffset+size > uint64(dst.Size()) {
		return core.Recoverablef("copy of %d bytes out of bounds", size)
	}
	rec.CopyBuffer(src, dst, srcOffset, dstOffset, size)
	return nil
}

func (cb *CommandBuffer) copyBufferToImage(src driver.Buffer, t *Texture, mip uint32, layer int, width, height uint32) error {
	rec, err := cb.recorder()
	if err != nil {
		return err
	}
	if cb.renderPass != nil {
		return core.Fatalf("copy inside a render pass")
	}
	rec.CopyBufferToImage(src, t.native, mip, layer, width, height)
	return nil
}
