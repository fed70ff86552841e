package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
)

type fence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func newFence(ctx *vkContext, signaled bool) (*fence, error) {
	f := &fence{IsSignaled: signaled}
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	if err := check(vk.CreateFence(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &f.Handle), "vkCreateFence"); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *fence) destroy(ctx *vkContext) {
	if f.Handle != vk.NullFence {
		vk.DestroyFence(ctx.Device.LogicalDevice, f.Handle, ctx.Allocator)
		f.Handle = vk.NullFence
	}
	f.IsSignaled = false
}

// wait blocks until the fence is signaled. A zero timeout waits forever.
func (f *fence) wait(ctx *vkContext, slot int, timeout time.Duration) error {
	if f.IsSignaled {
		return nil
	}
	ns := uint64(vk.MaxUint64)
	if timeout > 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	res := vk.WaitForFences(ctx.Device.LogicalDevice, 1, []vk.Fence{f.Handle}, vk.True, ns)
	switch res {
	case vk.Success:
		f.IsSignaled = true
		return nil
	case vk.Timeout:
		return core.Fatalf("fence %d timed out after %s", slot, timeout)
	default:
		return check(res, "vkWaitForFences")
	}
}

func (f *fence) reset(ctx *vkContext) error {
	if !f.IsSignaled {
		return nil
	}
	if err := ctx.locks.safeCall(synchronizationManagement, func() error {
		return check(vk.ResetFences(ctx.Device.LogicalDevice, 1, []vk.Fence{f.Handle}), "vkResetFences")
	}); err != nil {
		return err
	}
	f.IsSignaled = false
	return nil
}

func newSemaphore(ctx *vkContext) (vk.Semaphore, error) {
	var s vk.Semaphore
	err := check(vk.CreateSemaphore(ctx.Device.LogicalDevice, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, ctx.Allocator, &s), "vkCreateSemaphore")
	return s, err
}

// frameSlot is everything one ring slot owns: a command pool with its one
// primary command buffer, the acquire and submit semaphores and the fence
// the submission signals.
type frameSlot struct {
	CommandPool   vk.CommandPool
	CommandBuffer vk.CommandBuffer
	Acquire       vk.Semaphore
	Submit        vk.Semaphore
	Fence         *fence
	inFlight      bool
	recorder      *recorder
}

func newFrameSlot(ctx *vkContext) (*frameSlot, error) {
	s := &frameSlot{}
	err := ctx.locks.safeCall(commandPoolManagement, func() error {
		return check(vk.CreateCommandPool(ctx.Device.LogicalDevice, &vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: uint32(ctx.Device.Families.Graphics),
		}, ctx.Allocator, &s.CommandPool), "vkCreateCommandPool")
	})
	if err != nil {
		return nil, err
	}

	buffers := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(ctx.Device.LogicalDevice, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        s.CommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, buffers), "vkAllocateCommandBuffers"); err != nil {
		s.destroy(ctx)
		return nil, err
	}
	s.CommandBuffer = buffers[0]

	if s.Acquire, err = newSemaphore(ctx); err != nil {
		s.destroy(ctx)
		return nil, err
	}
	if s.Submit, err = newSemaphore(ctx); err != nil {
		s.destroy(ctx)
		return nil, err
	}
	// Created signaled so the first wait on a fresh slot returns at once.
	if s.Fence, err = newFence(ctx, true); err != nil {
		s.destroy(ctx)
		return nil, err
	}
	return s, nil
}

func (s *frameSlot) resetCommandPool(ctx *vkContext) error {
	return ctx.locks.safeCall(commandPoolManagement, func() error {
		return check(vk.ResetCommandPool(ctx.Device.LogicalDevice, s.CommandPool, 0), "vkResetCommandPool")
	})
}

func (s *frameSlot) destroy(ctx *vkContext) {
	dev := ctx.Device.LogicalDevice
	if s.Fence != nil {
		s.Fence.destroy(ctx)
		s.Fence = nil
	}
	if s.Submit != vk.NullSemaphore {
		vk.DestroySemaphore(dev, s.Submit, ctx.Allocator)
		s.Submit = vk.NullSemaphore
	}
	if s.Acquire != vk.NullSemaphore {
		vk.DestroySemaphore(dev, s.Acquire, ctx.Allocator)
		s.Acquire = vk.NullSemaphore
	}
	if s.CommandPool != vk.NullCommandPool {
		// Destroying the pool frees its command buffers.
		_ = ctx.locks.safeCall(commandPoolManagement, func() error {
			vk.DestroyCommandPool(dev, s.CommandPool, ctx.Allocator)
			return nil
		})
		s.CommandPool = vk.NullCommandPool
		s.CommandBuffer = nil
	}
}
