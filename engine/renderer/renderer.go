package renderer

import (
	"time"

	"github.com/spaghettifunk/anima-cgi/engine/containers"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"golang.org/x/exp/rand"
)

// RingBufferSize is the number of frames in flight.
const RingBufferSize = 3

type Config struct {
	ApplicationName string
	Width           uint32
	Height          uint32
	VSync           bool
	Debug           bool
	Sampling        metadata.SamplerOptions
	FenceTimeout    time.Duration
	// RandSource seeds the scheduled update jitter. Nil uses a fixed seed.
	RandSource rand.Source
}

// SwapChainListener is called after the swapchain has been recreated, with
// the new size, so owners of swapchain framebuffers can rebuild them.
type SwapChainListener func(width, height uint32) error

// Renderer owns every GPU resource slot table and drives the frame cycle on
// top of a driver. It is not safe for concurrent use: resources are created
// and destroyed between frames on the thread that records them.
type Renderer struct {
	driver driver.Driver
	cfg    Config

	renderPasses   *containers.SlotStore[renderPass]
	framebuffers   *containers.SlotStore[Framebuffer]
	commandBuffers *containers.SlotStore[CommandBuffer]
	geometries     *containers.SlotStore[Geometry]
	pipelines      *containers.SlotStore[Pipeline]
	shaders        *containers.SlotStore[Shader]
	textures       *containers.SlotStore[Texture]

	scheduler *Scheduler
	listeners []SwapChainListener

	state         FrameState
	recorder      driver.Recorder
	ringIndex     int
	frameCount    uint64
	imageIndex    int
	imageAcquired bool
	presenting    bool
	needsResize   bool
	mainCommands  metadata.CommandBufferHandle
	initialized   bool
}

func New(d driver.Driver, cfg *Config) *Renderer {
	return &Renderer{
		driver:         d,
		cfg:            *cfg,
		renderPasses:   containers.NewSlotStore[renderPass](),
		framebuffers:   containers.NewSlotStore[Framebuffer](),
		commandBuffers: containers.NewSlotStore[CommandBuffer](),
		geometries:     containers.NewSlotStore[Geometry](),
		pipelines:      containers.NewSlotStore[Pipeline](),
		shaders:        containers.NewSlotStore[Shader](),
		textures:       containers.NewSlotStore[Texture](),
		scheduler:      NewScheduler(RingBufferSize, cfg.RandSource),
		imageIndex:     -1,
	}
}

// Initialize brings up the driver and creates the main command buffer.
func (r *Renderer) Initialize() error {
	if err := r.driver.Initialize(&driver.Config{
		ApplicationName: r.cfg.ApplicationName,
		Width:           r.cfg.Width,
		Height:          r.cfg.Height,
		VSync:           r.cfg.VSync,
		Debug:           r.cfg.Debug,
		RingSize:        RingBufferSize,
		Sampling:        r.cfg.Sampling,
		FenceTimeout:    r.cfg.FenceTimeout,
	}); err != nil {
		return core.WrapFatal(err, "initializing %s driver", r.driver.Name())
	}
	r.initialized = true
	r.mainCommands = r.InsertCommandBuffer()

	sc := r.driver.SwapChain()
	core.LogInfo("renderer initialized on %s: %d swapchain images, %dx%d, %d frames in flight",
		r.driver.Name(), sc.ImageCount, sc.Width, sc.Height, RingBufferSize)
	return nil
}

// Shutdown waits for the device, destroys every resource still held in the
// slot tables and shuts the driver down.
func (r *Renderer) Shutdown() error {
	if !r.initialized {
		return nil
	}
	if err := r.WaitIdle(); err != nil {
		core.LogError("wait idle before shutdown: %v", err)
	}

	r.DeleteFramebuffer(metadata.All[metadata.FramebufferKind]())
	r.DeleteRenderPass(metadata.All[metadata.RenderPassKind]())
	r.DeletePipeline(metadata.All[metadata.PipelineKind]())
	r.DeleteShader(metadata.All[metadata.ShaderKind]())
	r.DeleteGeometry(metadata.All[metadata.GeometryKind]())
	r.DeleteTexture(metadata.All[metadata.TextureKind]())
	r.DeleteCommandBuffer(metadata.All[metadata.CommandBufferKind]())

	r.initialized = false
	r.state = FrameStateIdle
	if err := r.driver.Shutdown(); err != nil {
		return core.WrapFatal(err, "shutting down %s driver", r.driver.Name())
	}
	core.LogInfo("renderer shut down after %d frames", r.frameCount)
	return nil
}

func (r *Renderer) Driver() driver.Driver {
	return r.driver
}

func (r *Renderer) Scheduler() *Scheduler {
	return r.scheduler
}

// Schedule registers u for a deferred update; see Scheduler.Schedule.
func (r *Renderer) Schedule(u ScheduledUpdater, extraFrames int) {
	r.scheduler.Schedule(u, extraFrames)
}

// OnSwapChainResized registers fn to run after every swapchain recreation.
func (r *Renderer) OnSwapChainResized(fn SwapChainListener) {
	r.listeners = append(r.listeners, fn)
}

// ImmutableSampler returns one of the samplers created at startup.
func (r *Renderer) ImmutableSampler(s metadata.Sampler) (driver.Sampler, error) {
	if !s.Valid() {
		return nil, core.Recoverablef("unknown sampler %d", int(s))
	}
	return r.driver.ImmutableSampler(s), nil
}

// SwapChainBufferCount is the number of swapchain images.
func (r *Renderer) SwapChainBufferCount() int {
	return r.driver.SwapChain().ImageCount
}

// SwapChainSize is the current display size.
func (r *Renderer) SwapChainSize() (uint32, uint32) {
	sc := r.driver.SwapChain()
	return sc.Width, sc.Height
}
