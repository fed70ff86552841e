package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

// FrameState is the position of the renderer in the frame cycle.
type FrameState int

const (
	FrameStateIdle FrameState = iota
	FrameStateAcquiring
	FrameStateRecording
	FrameStateSubmitted
	FrameStatePresented
)

func (s FrameState) String() string {
	switch s {
	case FrameStateIdle:
		return "idle"
	case FrameStateAcquiring:
		return "acquiring"
	case FrameStateRecording:
		return "recording"
	case FrameStateSubmitted:
		return "submitted"
	case FrameStatePresented:
		return "presented"
	default:
		return "unknown"
	}
}

func (r *Renderer) expectState(op string, allowed ...FrameState) error {
	if !r.initialized {
		return errors.Mark(errors.Wrapf(core.ErrFrameState, "%s: renderer not initialized", op), core.ErrFatal)
	}
	for _, s := range allowed {
		if r.state == s {
			return nil
		}
	}
	return errors.Mark(errors.Wrapf(core.ErrFrameState, "%s in state %s", op, r.state), core.ErrFatal)
}

func (r *Renderer) State() FrameState {
	return r.state
}

// RingBufferIndex is the ring slot used by the frame being recorded.
func (r *Renderer) RingBufferIndex() int {
	return r.ringIndex
}

// FrameCount is the number of frames completed through Sync.
func (r *Renderer) FrameCount() uint64 {
	return r.frameCount
}

// SwapChainImageIndex is the image acquired for this frame, or -1.
func (r *Renderer) SwapChainImageIndex() int {
	if !r.imageAcquired {
		return -1
	}
	return r.imageIndex
}

// NeedsResize reports that a present found the surface out of date.
func (r *Renderer) NeedsResize() bool {
	return r.needsResize
}

// BeginFrame resets the ring slot's fence, acquires a swapchain image when
// the frame will be presented, resets the slot's command pool and begins
// recording into the main command buffer.
func (r *Renderer) BeginFrame(present bool) error {
	if err := r.expectState("BeginFrame", FrameStateIdle); err != nil {
		return err
	}
	r.state = FrameStateAcquiring
	r.imageAcquired = false
	r.presenting = false

	// Sync already waited on this fence; the first frame finds it signaled.
	if err := r.driver.ResetFence(r.ringIndex); err != nil {
		return core.WrapFatal(err, "reset fence %d", r.ringIndex)
	}
	if present {
		if err := r.acquire(); err != nil {
			if core.IsRecoverable(err) {
				// Nothing was recorded yet, so the frame can be dropped.
				r.state = FrameStateIdle
			}
			return err
		}
	}
	if err := r.driver.ResetCommandPool(r.ringIndex); err != nil {
		return core.WrapFatal(err, "reset command pool %d", r.ringIndex)
	}
	rec, err := r.driver.BeginRecording(r.ringIndex)
	if err != nil {
		return core.WrapFatal(err, "begin command buffer %d", r.ringIndex)
	}
	r.recorder = rec
	r.state = FrameStateRecording
	return nil
}

// acquire reports a swapchain that is out of date or being recreated as a
// recoverable error and flags NeedsResize.
func (r *Renderer) acquire() error {
	index, err := r.driver.AcquireNextImage(r.ringIndex)
	if errors.Is(err, core.ErrSurfaceOutOfDate) || errors.Is(err, core.ErrSwapchainBooting) {
		r.needsResize = true
		return core.WrapRecoverable(err, "acquire next image")
	}
	if err != nil {
		return core.WrapFatal(err, "acquire next image")
	}
	r.imageIndex = index
	r.imageAcquired = true
	return nil
}

// AcquireSwapChainImage returns the swapchain image for this frame,
// acquiring it now if BeginFrame did not. When the swapchain is out of date
// the error is recoverable and the frame should end without presenting.
func (r *Renderer) AcquireSwapChainImage() (int, error) {
	if err := r.expectState("AcquireSwapChainImage", FrameStateRecording); err != nil {
		return -1, err
	}
	if !r.imageAcquired {
		if err := r.acquire(); err != nil {
			return -1, err
		}
	}
	return r.imageIndex, nil
}

// EndFrame drains scheduled updates, ends recording and submits. The
// submission waits on the acquire semaphore when an image was acquired,
// signals the submit semaphore only when present runs on another queue, and
// signals the slot's fence.
func (r *Renderer) EndFrame(present bool) error {
	if err := r.expectState("EndFrame", FrameStateRecording); err != nil {
		return err
	}
	if present && !r.imageAcquired {
		return errors.Mark(errors.Wrap(core.ErrFrameState, "EndFrame: present requested without an acquired image"), core.ErrFatal)
	}
	if !present && r.imageAcquired {
		core.LogWarn("frame %d acquired image %d but will not present it", r.frameCount, r.imageIndex)
	}

	r.scheduler.Update(r.frameCount)

	r.recorder = nil
	if err := r.driver.EndRecording(r.ringIndex); err != nil {
		return core.WrapFatal(err, "end command buffer %d", r.ringIndex)
	}
	plan := metadata.PlanSubmit(r.driver.QueueFamilies(), r.imageAcquired)
	if err := r.driver.Submit(r.ringIndex, plan); err != nil {
		return core.WrapFatal(err, "queue submit %d", r.ringIndex)
	}
	r.presenting = present
	r.state = FrameStateSubmitted
	return nil
}

// Present queues the acquired image for display. A frame that is not
// presenting passes through. An out of date surface is not an error: it is
// remembered in NeedsResize for the owner to recreate the swapchain.
func (r *Renderer) Present() error {
	if err := r.expectState("Present", FrameStateSubmitted); err != nil {
		return err
	}
	r.state = FrameStatePresented
	if !r.presenting {
		return nil
	}
	r.presenting = false

	err := r.driver.Present(r.ringIndex, r.imageIndex, metadata.PlanPresent(r.driver.QueueFamilies()))
	if errors.Is(err, core.ErrSurfaceOutOfDate) {
		core.LogDebug("present: surface out of date, swapchain will be recreated")
		r.needsResize = true
		return nil
	}
	if err != nil {
		return core.WrapFatal(err, "queue present")
	}
	return nil
}

// Sync moves to the next ring slot and blocks until the GPU has finished the
// frame that last used it. This bounds the CPU to RingBufferSize-1 frames
// ahead of the GPU.
func (r *Renderer) Sync() error {
	if err := r.expectState("Sync", FrameStateSubmitted, FrameStatePresented); err != nil {
		return err
	}
	r.ringIndex = (r.ringIndex + 1) % RingBufferSize
	if err := r.driver.WaitForFence(r.ringIndex); err != nil {
		return core.WrapFatal(err, "wait for fence %d", r.ringIndex)
	}
	r.frameCount++
	r.scheduler.SetFrameCount(r.frameCount)
	r.imageAcquired = false
	r.state = FrameStateIdle
	return nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (r *Renderer) WaitIdle() error {
	if !r.initialized {
		return nil
	}
	return core.WrapFatal(r.driver.WaitIdle(), "wait idle")
}

// OnMinimized idles the device and flushes a frame that is still waiting to
// be presented so the swapchain does not hold an acquired image.
func (r *Renderer) OnMinimized() error {
	if err := r.WaitIdle(); err != nil {
		return err
	}
	if r.state == FrameStateSubmitted {
		return r.Present()
	}
	return nil
}

// ResizeSwapChain recreates the swapchain between frames and notifies the
// registered listeners so they can rebuild swapchain framebuffers.
func (r *Renderer) ResizeSwapChain(width, height uint32) error {
	if err := r.expectState("ResizeSwapChain", FrameStateIdle); err != nil {
		return err
	}
	if width == 0 || height == 0 {
		core.LogDebug("resize to %dx%d skipped while minimized", width, height)
		return nil
	}
	if err := r.WaitIdle(); err != nil {
		return err
	}
	if err := r.driver.ResizeSwapChain(width, height); err != nil {
		return core.WrapFatal(err, "resize swapchain to %dx%d", width, height)
	}
	r.needsResize = false
	r.imageIndex = -1

	sc := r.driver.SwapChain()
	core.LogInfo("swapchain resized to %dx%d (%d images)", sc.Width, sc.Height, sc.ImageCount)
	for _, fn := range r.listeners {
		if err := fn(sc.Width, sc.Height); err != nil {
			return err
		}
	}
	return nil
}
