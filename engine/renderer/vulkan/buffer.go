package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

// buffer is a host visible, host coherent buffer that stays mapped for its
// whole life.
type buffer struct {
	ctx     *vkContext
	usage   metadata.BufferUsage
	size    int
	Handle  vk.Buffer
	Memory  vk.DeviceMemory
	hostPtr unsafe.Pointer
}

func newBuffer(ctx *vkContext, size int, usage metadata.BufferUsage) (*buffer, error) {
	if size <= 0 {
		return nil, core.Recoverablef("buffer size %d", size)
	}
	b := &buffer{ctx: ctx, usage: usage, size: size}
	if err := ctx.locks.safeCall(resourceManagement, func() error {
		return check(vk.CreateBuffer(ctx.Device.LogicalDevice, &vk.BufferCreateInfo{
			SType:       vk.StructureTypeBufferCreateInfo,
			Size:        vk.DeviceSize(size),
			Usage:       vkBufferUsage(usage),
			SharingMode: vk.SharingModeExclusive,
		}, ctx.Allocator, &b.Handle), "vkCreateBuffer")
	}); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device.LogicalDevice, b.Handle, &reqs)
	mem, err := ctx.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		b.Destroy()
		return nil, err
	}
	b.Memory = mem
	if err := check(vk.BindBufferMemory(ctx.Device.LogicalDevice, b.Handle, b.Memory, 0), "vkBindBufferMemory"); err != nil {
		b.Destroy()
		return nil, err
	}
	if err := check(vk.MapMemory(ctx.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(size), 0, &b.hostPtr), "vkMapMemory"); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func (b *buffer) Size() int                   { return b.size }
func (b *buffer) Usage() metadata.BufferUsage { return b.usage }

func (b *buffer) Write(offset int, data []byte) error {
	if b.hostPtr == nil {
		return core.Fatalf("write to a destroyed buffer")
	}
	if offset < 0 || offset+len(data) > b.size {
		return core.Recoverablef("write of %d bytes at %d overflows buffer of %d", len(data), offset, b.size)
	}
	copy(unsafe.Slice((*byte)(b.hostPtr), b.size)[offset:], data)
	return nil
}

func (b *buffer) Destroy() {
	dev := b.ctx.Device.LogicalDevice
	if b.hostPtr != nil {
		vk.UnmapMemory(dev, b.Memory)
		b.hostPtr = nil
	}
	if b.Handle != vk.NullBuffer {
		_ = b.ctx.locks.safeCall(resourceManagement, func() error {
			vk.DestroyBuffer(dev, b.Handle, b.ctx.Allocator)
			return nil
		})
		b.Handle = vk.NullBuffer
	}
	b.ctx.free(&b.Memory)
}
