// Package vulkan is the native graphics driver. It turns the renderer's
// backend-neutral plans into Vulkan objects and executes the frame cycle the
// renderer drives: one command pool, acquire semaphore, submit semaphore and
// fence per ring slot.
package vulkan

import (
	"runtime"
	"slices"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Window is what the driver needs from the platform window. *glfw.Window
// satisfies it.
type Window interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

type Driver struct {
	window Window
	cfg    driver.Config

	context    *vkContext
	swapchain  *swapchain
	slots      []*frameSlot
	samplers   [metadata.SamplerCount]*sampler
	anisotropy bool
}

func New(window Window) *Driver {
	return &Driver{window: window}
}

func (d *Driver) Name() string {
	return "vulkan"
}

func (d *Driver) Initialize(cfg *driver.Config) error {
	if cfg.RingSize <= 0 {
		return core.Fatalf("ring size %d", cfg.RingSize)
	}
	if d.window == nil {
		return core.Fatalf("the vulkan driver needs a window")
	}
	d.cfg = *cfg
	d.anisotropy = cfg.Sampling.Anisotropy > 1

	if err := d.initialize(); err != nil {
		d.teardown()
		return err
	}
	core.LogInfo("vulkan driver initialized: %d ring slots", len(d.slots))
	return nil
}

func (d *Driver) initialize() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return core.Fatalf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return core.WrapFatal(err, "initialize vulkan loader")
	}

	d.context = &vkContext{
		Allocator: nil,
		locks:     newLockPool(),
	}
	if err := d.createInstance(); err != nil {
		return err
	}

	// Debugger
	if d.cfg.Debug {
		core.LogDebug("creating vulkan debugger")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(debugReportFlags),
			PfnCallback: dbgCallbackFunc,
		}
		if err := check(vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, nil, &d.context.debugCallback), "vkCreateDebugReportCallbackEXT"); err != nil {
			return err
		}
	}

	// Surface
	surface, err := d.window.CreateWindowSurface(d.context.Instance, nil)
	if err != nil {
		return core.WrapFatal(err, "create window surface")
	}
	d.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("vulkan surface created")

	if err := selectPhysicalDevice(d.context, d.anisotropy); err != nil {
		return err
	}
	if err := createLogicalDevice(d.context, d.anisotropy); err != nil {
		return err
	}

	if d.swapchain, err = createSwapchain(d.context, d.cfg.Width, d.cfg.Height, d.cfg.VSync, vk.NullSwapchain); err != nil {
		return err
	}

	d.slots = make([]*frameSlot, d.cfg.RingSize)
	for i := range d.slots {
		if d.slots[i], err = newFrameSlot(d.context); err != nil {
			return errors.Wrapf(err, "ring slot %d", i)
		}
	}

	d.samplers, err = newSamplers(d.context, d.cfg.Sampling, d.anisotropy)
	return err
}

func (d *Driver) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(d.cfg.ApplicationName),
		PEngineName:        safeString("Anima CGI"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	extensions := []string{vk.KhrSurfaceExtensionName}
	for _, ext := range d.window.GetRequiredInstanceExtensions() {
		if !slices.Contains(extensions, ext) {
			extensions = append(extensions, ext)
		}
	}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if d.cfg.Debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("required instance extensions: %v", extensions)
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)

	// Validation layers should only be enabled on debug runs.
	if d.cfg.Debug {
		ok, err := hasInstanceLayer(validationLayer)
		if err != nil {
			return err
		}
		if !ok {
			return core.Fatalf("required validation layer is missing: %s", validationLayer)
		}
		layers := []string{validationLayer}
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = safeStrings(layers)
		core.LogInfo("validation layers enabled")
	}

	if err := check(vk.CreateInstance(&createInfo, d.context.Allocator, &d.context.Instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(d.context.Instance); err != nil {
		return core.WrapFatal(err, "initialize instance functions")
	}
	core.LogInfo("vulkan instance created")
	return nil
}

func hasInstanceLayer(name string) (bool, error) {
	var count uint32
	if err := check(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return false, err
	}
	layers := make([]vk.LayerProperties, count)
	if err := check(vk.EnumerateInstanceLayerProperties(&count, layers), "vkEnumerateInstanceLayerProperties"); err != nil {
		return false, err
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

// Shutdown waits for the device and releases everything in reverse order of
// creation.
func (d *Driver) Shutdown() error {
	var err error
	if d.context != nil && d.context.Device != nil && d.context.Device.LogicalDevice != nil {
		err = d.WaitIdle()
	}
	d.teardown()
	core.LogInfo("vulkan driver shut down")
	return err
}

func (d *Driver) teardown() {
	ctx := d.context
	if ctx == nil {
		return
	}
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		destroySamplers(ctx, &d.samplers)
		for _, s := range d.slots {
			if s != nil {
				s.destroy(ctx)
			}
		}
		d.slots = nil
		if d.swapchain != nil {
			d.swapchain.destroyViews()
			d.swapchain.destroy(ctx)
			d.swapchain = nil
		}
		destroyDevice(ctx)
	}
	if ctx.Surface != vk.NullSurface {
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}
	if ctx.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
		ctx.debugCallback = vk.NullDebugReportCallback
	}
	if ctx.Instance != nil {
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
	d.context = nil
}

func (d *Driver) QueueFamilies() metadata.QueueFamilies {
	if d.context == nil || d.context.Device == nil {
		return metadata.QueueFamilies{Graphics: -1, Present: -1}
	}
	return d.context.Device.Families
}

func (d *Driver) SwapChain() driver.SwapChainInfo {
	if d.swapchain == nil {
		return driver.SwapChainInfo{}
	}
	return driver.SwapChainInfo{
		ImageCount: len(d.swapchain.Views),
		Format:     fromVkFormat(d.swapchain.ImageFormat.Format),
		Width:      d.swapchain.Extent.Width,
		Height:     d.swapchain.Extent.Height,
	}
}

func (d *Driver) SwapChainView(index int) driver.ImageView {
	if d.swapchain == nil || index < 0 || index >= len(d.swapchain.Views) {
		return nil
	}
	return d.swapchain.Views[index]
}

// ResizeSwapChain destroys the old views, builds the new swapchain with the
// old one as a hint, and only then destroys the old swapchain.
func (d *Driver) ResizeSwapChain(width, height uint32) error {
	if width == 0 || height == 0 {
		return core.Recoverablef("swapchain size %dx%d", width, height)
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}
	old := d.swapchain
	oldHandle := vk.NullSwapchain
	if old != nil {
		old.destroyViews()
		oldHandle = old.Handle
	}
	sc, err := createSwapchain(d.context, width, height, d.cfg.VSync, oldHandle)
	if old != nil {
		old.destroy(d.context)
	}
	if err != nil {
		d.swapchain = nil
		return err
	}
	d.swapchain = sc
	return nil
}

func (d *Driver) slot(i int) (*frameSlot, error) {
	if i < 0 || i >= len(d.slots) {
		return nil, core.Fatalf("ring slot %d out of range [0, %d)", i, len(d.slots))
	}
	return d.slots[i], nil
}

func (d *Driver) WaitForFence(slot int) error {
	s, err := d.slot(slot)
	if err != nil {
		return err
	}
	if err := s.Fence.wait(d.context, slot, d.cfg.FenceTimeout); err != nil {
		return err
	}
	s.inFlight = false
	return nil
}

func (d *Driver) ResetFence(slot int) error {
	s, err := d.slot(slot)
	if err != nil {
		return err
	}
	if s.inFlight {
		return core.Fatalf("fence %d reset while its frame is in flight", slot)
	}
	return s.Fence.reset(d.context)
}

func (d *Driver) AcquireNextImage(slot int) (int, error) {
	s, err := d.slot(slot)
	if err != nil {
		return -1, err
	}
	if d.swapchain == nil || d.swapchain.Handle == vk.NullSwapchain {
		return -1, errors.Wrap(core.ErrSwapchainBooting, "acquire")
	}
	return d.swapchain.acquireNextImage(d.context, s.Acquire)
}

func (d *Driver) ResetCommandPool(slot int) error {
	s, err := d.slot(slot)
	if err != nil {
		return err
	}
	if s.inFlight {
		return core.Fatalf("command pool %d reset while its frame is in flight", slot)
	}
	if err := s.resetCommandPool(d.context); err != nil {
		return err
	}
	if s.recorder != nil {
		s.recorder.state = commandBufferReady
	}
	return nil
}

func (d *Driver) BeginRecording(slot int) (driver.Recorder, error) {
	s, err := d.slot(slot)
	if err != nil {
		return nil, err
	}
	if s.recorder == nil {
		s.recorder = &recorder{ctx: d.context, cmd: s.CommandBuffer}
	}
	if err := s.recorder.begin(); err != nil {
		return nil, errors.Wrapf(err, "command buffer %d", slot)
	}
	return s.recorder, nil
}

func (d *Driver) EndRecording(slot int) error {
	s, err := d.slot(slot)
	if err != nil {
		return err
	}
	if s.recorder == nil {
		return core.Fatalf("command buffer %d is not recording", slot)
	}
	return s.recorder.end()
}

func (d *Driver) Submit(slot int, plan metadata.SubmitPlan) error {
	s, err := d.slot(slot)
	if err != nil {
		return err
	}
	if s.Fence.IsSignaled {
		return core.Fatalf("submit on slot %d with a signaled fence", slot)
	}
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{s.CommandBuffer},
	}
	if plan.WaitAcquire {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{s.Acquire}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{vkStages(plan.WaitStage)}
	}
	if plan.SignalSubmit {
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{s.Submit}
	}
	fence := vk.NullFence
	if plan.SignalFence {
		fence = s.Fence.Handle
	}

	ctx := d.context
	if err := ctx.locks.safeQueueCall(uint32(ctx.Device.Families.Graphics), func() error {
		return check(vk.QueueSubmit(ctx.Device.GraphicsQueue, 1, []vk.SubmitInfo{info}, fence), "vkQueueSubmit slot %d", slot)
	}); err != nil {
		return err
	}
	s.inFlight = plan.SignalFence
	if s.recorder != nil {
		s.recorder.state = commandBufferSubmitted
	}
	return nil
}

func (d *Driver) Present(slot int, image int, plan metadata.PresentPlan) error {
	s, err := d.slot(slot)
	if err != nil {
		return err
	}
	if d.swapchain == nil {
		return errors.Wrap(core.ErrSwapchainBooting, "present")
	}
	var wait []vk.Semaphore
	if plan.WaitSubmit {
		wait = []vk.Semaphore{s.Submit}
	}
	return d.swapchain.present(d.context, image, wait)
}

// WaitIdle waits for the device. Every submitted fence is signaled after.
func (d *Driver) WaitIdle() error {
	if d.context == nil || d.context.Device == nil {
		return nil
	}
	if err := check(vk.DeviceWaitIdle(d.context.Device.LogicalDevice), "vkDeviceWaitIdle"); err != nil {
		return err
	}
	for _, s := range d.slots {
		if s.inFlight {
			s.Fence.IsSignaled = true
			s.inFlight = false
		}
	}
	return nil
}

func (d *Driver) NewRenderPass(plan *metadata.RenderPassPlan) (driver.RenderPass, error) {
	rp, err := newRenderPass(d.context, plan)
	if err != nil {
		return nil, err
	}
	return rp, nil
}

func (d *Driver) NewTexture(desc *metadata.TextureDesc) (driver.Texture, error) {
	t, err := newTexture(d.context, desc)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (d *Driver) NewBuffer(size int, usage metadata.BufferUsage) (driver.Buffer, error) {
	b, err := newBuffer(d.context, size, usage)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (d *Driver) NewShader(desc *metadata.ShaderDesc) (driver.Shader, error) {
	s, err := newShader(d.context, desc, &d.samplers)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Driver) NewPipeline(state *driver.PipelineState) (driver.Pipeline, error) {
	p, err := newPipeline(d.context, state)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Driver) ImmutableSampler(s metadata.Sampler) driver.Sampler {
	if !s.Valid() || d.samplers[s] == nil {
		return nil
	}
	return d.samplers[s]
}

const debugReportFlags = vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit |
	vk.DebugReportInformationBit | vk.DebugReportDebugBit

// debugReportLevel maps validation layer severities onto the engine log.
func debugReportLevel(flags vk.DebugReportFlags) core.LogLevel {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		return core.LogLevelError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		return core.LogLevelWarn
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		return core.LogLevelInfo
	default:
		return core.LogLevelDebug
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	if flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0 {
		pLayerPrefix = "performance: " + pLayerPrefix
	}
	switch debugReportLevel(flags) {
	case core.LogLevelError:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case core.LogLevelWarn:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case core.LogLevelInfo:
		core.LogInfo("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.False
}
