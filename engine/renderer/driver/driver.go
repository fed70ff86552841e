// Package driver defines the boundary between the renderer and a native
// graphics backend. The renderer owns every slot table and the frame state
// machine; a Driver only creates native objects and executes what it is told.
package driver

import (
	"time"

	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

// Destroyer is the interface that wraps the Destroy method.
// Native objects are not managed by the GC, so Destroy must be
// called explicitly. Destroy on an already destroyed object is a no-op.
type Destroyer interface {
	Destroy()
}

// ImageView is an attachable view of an image.
type ImageView interface {
	Destroyer
	Width() uint32
	Height() uint32
}

// RenderPass is a compiled render pass.
type RenderPass interface {
	Destroyer
	// NewFramebuffer binds views to the pass attachments in order.
	NewFramebuffer(views []ImageView, width, height uint32) (Framebuffer, error)
}

type Framebuffer interface {
	Destroyer
}

// Texture is an image plus the views the renderer may attach or sample.
type Texture interface {
	Destroyer
	Desc() metadata.TextureDesc
	// View is the base view over every layer.
	View() ImageView
	// FaceView is a 2D view of one array layer of a cube map.
	FaceView(layer int) ImageView
}

// Buffer is a host visible buffer.
type Buffer interface {
	Destroyer
	Size() int
	Usage() metadata.BufferUsage
	Write(offset int, data []byte) error
}

// DescriptorSet binds textures and uniform buffers to a shader's bindings.
type DescriptorSet interface {
	Destroyer
	SetTexture(binding uint32, tex Texture) error
	SetUniform(binding uint32, buf Buffer, offset, size int) error
}

type Shader interface {
	Destroyer
	Desc() *metadata.ShaderDesc
	NewDescriptorSet() (DescriptorSet, error)
}

type Pipeline interface {
	Destroyer
	Compute() bool
}

// Sampler is one of the immutable samplers. Samplers are owned by the driver.
type Sampler interface {
	Desc() metadata.SamplerDesc
}

// PipelineState is everything a driver needs to build a pipeline.
type PipelineState struct {
	Desc       *metadata.PipelineDesc
	Shader     Shader
	RenderPass RenderPass
}

// Config carries the settings a driver reads at initialization.
type Config struct {
	ApplicationName string
	Width           uint32
	Height          uint32
	VSync           bool
	Debug           bool
	// RingSize is the number of frames in flight. Each ring slot gets its own
	// command pool, acquire semaphore, submit semaphore and fence.
	RingSize     int
	Sampling     metadata.SamplerOptions
	FenceTimeout time.Duration
}

type SwapChainInfo struct {
	ImageCount int
	Format     metadata.Format
	Width      uint32
	Height     uint32
}

// Recorder records commands into the command buffer of the current ring
// slot. Recording never fails eagerly; a misuse is remembered and reported by
// Driver.EndRecording.
type Recorder interface {
	BeginRenderPass(rp RenderPass, fb Framebuffer, area metadata.Rect, clear []metadata.ClearValue)
	NextSubpass()
	EndRenderPass()
	BindPipeline(p Pipeline)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, t metadata.IndexType)
	BindDescriptorSet(p Pipeline, set uint32, ds DescriptorSet)
	PushConstants(p Pipeline, stages metadata.ShaderStage, offset uint32, data []byte)
	SetViewport(vp []metadata.Viewport)
	SetScissor(rc []metadata.Rect)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	ImageBarrier(tex Texture, oldLayout, newLayout metadata.ImageLayout, masks metadata.BarrierMasks, mipBase, mipCount uint32, layer int)
	CopyBuffer(src, dst Buffer, srcOffset, dstOffset, size uint64)
	CopyBufferToImage(src Buffer, dst Texture, mip uint32, layer int, width, height uint32)
}

// Driver is a native graphics backend. Ring slot arguments are in
// [0, Config.RingSize).
type Driver interface {
	Initialize(cfg *Config) error
	Shutdown() error
	Name() string

	QueueFamilies() metadata.QueueFamilies
	SwapChain() SwapChainInfo
	SwapChainView(index int) ImageView
	// ResizeSwapChain recreates the swapchain using the old one as a hint.
	// The old swapchain is destroyed only after the new views exist.
	ResizeSwapChain(width, height uint32) error

	WaitForFence(slot int) error
	ResetFence(slot int) error
	// AcquireNextImage signals the slot's acquire semaphore when the image is ready.
	AcquireNextImage(slot int) (int, error)
	ResetCommandPool(slot int) error
	BeginRecording(slot int) (Recorder, error)
	EndRecording(slot int) error
	Submit(slot int, plan metadata.SubmitPlan) error
	// Present returns an error matching core.ErrSurfaceOutOfDate when the
	// surface no longer matches the swapchain.
	Present(slot int, image int, plan metadata.PresentPlan) error
	WaitIdle() error

	NewRenderPass(plan *metadata.RenderPassPlan) (RenderPass, error)
	NewTexture(desc *metadata.TextureDesc) (Texture, error)
	NewBuffer(size int, usage metadata.BufferUsage) (Buffer, error)
	NewShader(desc *metadata.ShaderDesc) (Shader, error)
	NewPipeline(state *PipelineState) (Pipeline, error)
	ImmutableSampler(s metadata.Sampler) Sampler
}
