package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

type commandBufferState int

const (
	commandBufferReady commandBufferState = iota
	commandBufferRecording
	commandBufferInRenderPass
	commandBufferRecordingEnded
	commandBufferSubmitted
)

// recorder records into the primary command buffer of one ring slot. The
// first misuse sticks and is returned by EndRecording.
type recorder struct {
	ctx   *vkContext
	cmd   vk.CommandBuffer
	state commandBufferState
	pass  *renderPass
	err   error
}

func (r *recorder) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = core.Fatalf(format, args...)
	}
}

func (r *recorder) begin() error {
	if r.state == commandBufferRecording || r.state == commandBufferInRenderPass {
		return core.Fatalf("command buffer already recording")
	}
	if err := check(vk.BeginCommandBuffer(r.cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	r.state = commandBufferRecording
	r.pass = nil
	r.err = nil
	return nil
}

func (r *recorder) end() error {
	if r.state != commandBufferRecording && r.state != commandBufferInRenderPass {
		return core.Fatalf("command buffer is not recording")
	}
	if r.state == commandBufferInRenderPass {
		r.fail("command buffer ended inside a render pass")
		vk.CmdEndRenderPass(r.cmd)
	}
	if err := check(vk.EndCommandBuffer(r.cmd), "vkEndCommandBuffer"); err != nil && r.err == nil {
		r.err = err
	}
	r.state = commandBufferRecordingEnded
	return r.err
}

func (r *recorder) recording() bool {
	if r.state != commandBufferRecording && r.state != commandBufferInRenderPass {
		r.fail("command recorded outside BeginRecording/EndRecording")
		return false
	}
	return true
}

func (r *recorder) inPass(what string) bool {
	if !r.recording() {
		return false
	}
	if r.state != commandBufferInRenderPass {
		r.fail("%s outside a render pass", what)
		return false
	}
	return true
}

func (r *recorder) BeginRenderPass(rp driver.RenderPass, fb driver.Framebuffer, area metadata.Rect, clear []metadata.ClearValue) {
	if !r.recording() {
		return
	}
	if r.state == commandBufferInRenderPass {
		r.fail("render pass begun inside a render pass")
		return
	}
	pass, ok := rp.(*renderPass)
	if !ok || pass.Handle == vk.NullRenderPass {
		r.fail("begin render pass: not a live vulkan render pass")
		return
	}
	frame, ok := fb.(*framebuffer)
	if !ok || frame.Handle == vk.NullFramebuffer {
		r.fail("begin render pass: not a live vulkan framebuffer")
		return
	}
	clearValues := vkClearValues(pass.formats, clear)
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass.Handle,
		Framebuffer: frame.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: area.X, Y: area.Y},
			Extent: vk.Extent2D{Width: area.Width, Height: area.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(r.cmd, &beginInfo, vk.SubpassContentsInline)
	r.state = commandBufferInRenderPass
	r.pass = pass
}

func (r *recorder) NextSubpass() {
	if !r.inPass("next subpass") {
		return
	}
	vk.CmdNextSubpass(r.cmd, vk.SubpassContentsInline)
}

func (r *recorder) EndRenderPass() {
	if !r.inPass("end render pass") {
		return
	}
	vk.CmdEndRenderPass(r.cmd)
	r.state = commandBufferRecording
	r.pass = nil
}

func (r *recorder) BindPipeline(p driver.Pipeline) {
	pl, ok := p.(*pipeline)
	if !r.recording() {
		return
	}
	if !ok || pl.Handle == vk.NullPipeline {
		r.fail("bind pipeline: not a live vulkan pipeline")
		return
	}
	vk.CmdBindPipeline(r.cmd, pl.BindPoint, pl.Handle)
}

func (r *recorder) BindVertexBuffers(first uint32, buffers []driver.Buffer, offsets []uint64) {
	if !r.recording() {
		return
	}
	if len(offsets) != len(buffers) {
		r.fail("bind vertex buffers: %d offsets for %d buffers", len(offsets), len(buffers))
		return
	}
	handles := make([]vk.Buffer, len(buffers))
	sizes := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		buf, ok := b.(*buffer)
		if !ok || buf.Handle == vk.NullBuffer {
			r.fail("bind vertex buffers: buffer %d is not a live vulkan buffer", i)
			return
		}
		handles[i] = buf.Handle
		sizes[i] = vk.DeviceSize(offsets[i])
	}
	vk.CmdBindVertexBuffers(r.cmd, first, uint32(len(handles)), handles, sizes)
}

func (r *recorder) BindIndexBuffer(buf driver.Buffer, offset uint64, t metadata.IndexType) {
	if !r.recording() {
		return
	}
	b, ok := buf.(*buffer)
	if !ok || b.Handle == vk.NullBuffer {
		r.fail("bind index buffer: not a live vulkan buffer")
		return
	}
	vk.CmdBindIndexBuffer(r.cmd, b.Handle, vk.DeviceSize(offset), vkIndexType(t))
}

func (r *recorder) BindDescriptorSet(p driver.Pipeline, set uint32, ds driver.DescriptorSet) {
	if !r.recording() {
		return
	}
	pl, ok := p.(*pipeline)
	if !ok || pl.Layout == vk.NullPipelineLayout {
		r.fail("bind descriptor set: not a live vulkan pipeline")
		return
	}
	d, ok := ds.(*descriptorSet)
	if !ok || d.Handle == nil {
		r.fail("bind descriptor set: not a live vulkan descriptor set")
		return
	}
	vk.CmdBindDescriptorSets(r.cmd, pl.BindPoint, pl.Layout, set, 1, []vk.DescriptorSet{d.Handle}, 0, nil)
}

func (r *recorder) PushConstants(p driver.Pipeline, stages metadata.ShaderStage, offset uint32, data []byte) {
	if !r.recording() || len(data) == 0 {
		return
	}
	pl, ok := p.(*pipeline)
	if !ok || pl.Layout == vk.NullPipelineLayout {
		r.fail("push constants: not a live vulkan pipeline")
		return
	}
	vk.CmdPushConstants(r.cmd, pl.Layout, vkShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

// SetViewport flips Y so clip space matches the other backends, y up.
func (r *recorder) SetViewport(vp []metadata.Viewport) {
	if !r.recording() || len(vp) == 0 {
		return
	}
	out := make([]vk.Viewport, len(vp))
	for i, v := range vp {
		out[i] = vk.Viewport{
			X:        v.X,
			Y:        v.Y + v.Height,
			Width:    v.Width,
			Height:   -v.Height,
			MinDepth: v.MinDepth,
			MaxDepth: v.MaxDepth,
		}
	}
	vk.CmdSetViewport(r.cmd, 0, uint32(len(out)), out)
}

func (r *recorder) SetScissor(rc []metadata.Rect) {
	if !r.recording() || len(rc) == 0 {
		return
	}
	out := make([]vk.Rect2D, len(rc))
	for i, s := range rc {
		out[i] = vk.Rect2D{
			Offset: vk.Offset2D{X: s.X, Y: s.Y},
			Extent: vk.Extent2D{Width: s.Width, Height: s.Height},
		}
	}
	vk.CmdSetScissor(r.cmd, 0, uint32(len(out)), out)
}

func (r *recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !r.inPass("draw") {
		return
	}
	vk.CmdDraw(r.cmd, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (r *recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if !r.inPass("draw") {
		return
	}
	vk.CmdDrawIndexed(r.cmd, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (r *recorder) Dispatch(x, y, z uint32) {
	if !r.recording() {
		return
	}
	if r.state == commandBufferInRenderPass {
		r.fail("dispatch inside a render pass")
		return
	}
	vk.CmdDispatch(r.cmd, x, y, z)
}

// ImageBarrier transitions a mip range of one layer, or of every layer when
// layer is negative.
func (r *recorder) ImageBarrier(tex driver.Texture, oldLayout, newLayout metadata.ImageLayout, masks metadata.BarrierMasks,
	mipBase, mipCount uint32, layer int) {
	if !r.recording() {
		return
	}
	t, ok := tex.(*texture)
	if !ok || t.Handle == vk.NullImage {
		r.fail("image barrier: not a live vulkan texture")
		return
	}
	baseLayer, layerCount := uint32(0), t.desc.Layers()
	if layer >= 0 {
		if uint32(layer) >= layerCount {
			r.fail("image barrier: layer %d of %d", layer, layerCount)
			return
		}
		baseLayer, layerCount = uint32(layer), 1
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vkAccess(masks.SrcAccess),
		DstAccessMask:       vkAccess(masks.DstAccess),
		OldLayout:           vkLayout(oldLayout),
		NewLayout:           vkLayout(newLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vkAspect(masks.Aspect),
			BaseMipLevel:   mipBase,
			LevelCount:     mipCount,
			BaseArrayLayer: baseLayer,
			LayerCount:     layerCount,
		},
	}
	vk.CmdPipelineBarrier(r.cmd, vkStages(masks.SrcStage), vkStages(masks.DstStage), 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (r *recorder) CopyBuffer(src, dst driver.Buffer, srcOffset, dstOffset, size uint64) {
	if !r.recording() {
		return
	}
	s, ok1 := src.(*buffer)
	d, ok2 := dst.(*buffer)
	if !ok1 || !ok2 || s.Handle == vk.NullBuffer || d.Handle == vk.NullBuffer {
		r.fail("copy buffer: not a live vulkan buffer")
		return
	}
	if srcOffset+size > uint64(s.size) || dstOffset+size > uint64(d.size) {
		r.fail("copy buffer: %d bytes overflow source %d or destination %d", size, s.size, d.size)
		return
	}
	vk.CmdCopyBuffer(r.cmd, s.Handle, d.Handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

// CopyBufferToImage expects the image in the transfer destination layout.
func (r *recorder) CopyBufferToImage(src driver.Buffer, dst driver.Texture, mip uint32, layer int, width, height uint32) {
	if !r.recording() {
		return
	}
	s, ok1 := src.(*buffer)
	t, ok2 := dst.(*texture)
	if !ok1 || !ok2 || s.Handle == vk.NullBuffer || t.Handle == vk.NullImage {
		r.fail("copy buffer to image: not a live vulkan object")
		return
	}
	if layer < 0 || uint32(layer) >= t.desc.Layers() {
		r.fail("copy buffer to image: layer %d of %d", layer, t.desc.Layers())
		return
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspectOf(t.desc.Format),
			MipLevel:       mip,
			BaseArrayLayer: uint32(layer),
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(r.cmd, s.Handle, t.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}
