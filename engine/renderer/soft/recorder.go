package soft

import (
	"fmt"

	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

// Recorder logs commands as text. The first misuse is kept and returned by
// Driver.EndRecording, the way a validation layer fails a submission.
type Recorder struct {
	d    *Driver
	slot int
	open bool
	cmds []string
	err  error

	pass    *renderPass
	subpass int
}

func (r *Recorder) log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.d.mu.Lock()
	r.cmds = append(r.cmds, msg)
	r.d.mu.Unlock()
}

func (r *Recorder) fail(format string, args ...interface{}) {
	err := core.Fatalf(format, args...)
	r.d.reportMisuse(err)
	if r.err == nil {
		r.err = err
	}
}

func (r *Recorder) checkAlive(o *object) {
	if !o.alive() {
		r.fail("%s used after destroy", o)
	}
}

func (r *Recorder) BeginRenderPass(rp driver.RenderPass, fb driver.Framebuffer, area metadata.Rect, clear []metadata.ClearValue) {
	pass := rp.(*renderPass)
	frame := fb.(*framebuffer)
	r.checkAlive(&pass.object)
	r.checkAlive(&frame.object)
	for _, v := range frame.views {
		r.checkAlive(&v.object)
	}
	if r.pass != nil {
		r.fail("render pass begun inside a render pass")
	}
	r.pass, r.subpass = pass, 0
	r.log("begin render pass %dx%d clear=%d", area.Width, area.Height, len(clear))
}

func (r *Recorder) NextSubpass() {
	if r.pass == nil {
		r.fail("next subpass outside a render pass")
		return
	}
	r.subpass++
	r.log("next subpass %d", r.subpass)
}

func (r *Recorder) EndRenderPass() {
	if r.pass == nil {
		r.fail("end render pass outside a render pass")
	}
	r.pass = nil
	r.log("end render pass")
}

func (r *Recorder) BindPipeline(p driver.Pipeline) {
	r.checkAlive(&p.(*pipeline).object)
	r.log("bind pipeline")
}

func (r *Recorder) BindVertexBuffers(first uint32, buffers []driver.Buffer, offsets []uint64) {
	for _, b := range buffers {
		r.checkAlive(&b.(*buffer).object)
	}
	r.log("bind vertex buffers %d+%d", first, len(buffers))
}

func (r *Recorder) BindIndexBuffer(buf driver.Buffer, offset uint64, t metadata.IndexType) {
	r.checkAlive(&buf.(*buffer).object)
	r.log("bind index buffer offset=%d size=%d", offset, t.Size())
}

func (r *Recorder) BindDescriptorSet(p driver.Pipeline, set uint32, ds driver.DescriptorSet) {
	r.checkAlive(&ds.(*descriptorSet).object)
	r.log("bind descriptor set %d", set)
}

func (r *Recorder) PushConstants(p driver.Pipeline, stages metadata.ShaderStage, offset uint32, data []byte) {
	r.log("push constants %d+%d", offset, len(data))
}

func (r *Recorder) SetViewport(vp []metadata.Viewport) {
	for _, v := range vp {
		r.log("viewport %g,%g %gx%g", v.X, v.Y, v.Width, v.Height)
	}
}

func (r *Recorder) SetScissor(rc []metadata.Rect) {
	for _, s := range rc {
		r.log("scissor %d,%d %dx%d", s.X, s.Y, s.Width, s.Height)
	}
}

func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if r.pass == nil {
		r.fail("draw outside a render pass")
	}
	r.log("draw %d x%d", vertexCount, instanceCount)
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if r.pass == nil {
		r.fail("draw outside a render pass")
	}
	r.log("draw indexed %d x%d", indexCount, instanceCount)
}

func (r *Recorder) Dispatch(x, y, z uint32) {
	r.log("dispatch %d,%d,%d", x, y, z)
}

func (r *Recorder) ImageBarrier(tex driver.Texture, oldLayout, newLayout metadata.ImageLayout, masks metadata.BarrierMasks, mipBase, mipCount uint32, layer int) {
	r.checkAlive(&tex.(*texture).object)
	r.log("barrier %s -> %s mip %d+%d layer %d", oldLayout, newLayout, mipBase, mipCount, layer)
}

func (r *Recorder) CopyBuffer(src, dst driver.Buffer, srcOffset, dstOffset, size uint64) {
	s, d := src.(*buffer), dst.(*buffer)
	r.checkAlive(&s.object)
	r.checkAlive(&d.object)
	copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	r.log("copy buffer %d bytes", size)
}

func (r *Recorder) CopyBufferToImage(src driver.Buffer, dst driver.Texture, mip uint32, layer int, width, height uint32) {
	r.checkAlive(&src.(*buffer).object)
	r.checkAlive(&dst.(*texture).object)
	r.log("copy buffer to image mip %d layer %d %dx%d", mip, layer, width, height)
}
