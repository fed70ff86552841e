package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
)

// vkContext holds the instance level objects and the device every other
// object in this package is created from.
type vkContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device *device
	locks  *lockPool
}

// findMemoryIndex returns the first memory type allowed by typeFilter that
// has every property flag, or -1.
func (c *vkContext) findMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	memory := c.Device.Memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("unable to find a suitable memory type for filter %#x flags %#x", typeFilter, uint32(propertyFlags))
	return -1
}

// allocate backs the memory requirements with a new allocation.
func (c *vkContext) allocate(reqs vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	reqs.Deref()
	index := c.findMemoryIndex(reqs.MemoryTypeBits, flags)
	if index < 0 {
		return vk.NullDeviceMemory, core.Fatalf("no memory type for %d bytes", reqs.Size)
	}
	var mem vk.DeviceMemory
	err := c.locks.safeCall(resourceManagement, func() error {
		return check(vk.AllocateMemory(c.Device.LogicalDevice, &vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  reqs.Size,
			MemoryTypeIndex: uint32(index),
		}, c.Allocator, &mem), "vkAllocateMemory")
	})
	return mem, err
}

func (c *vkContext) free(mem *vk.DeviceMemory) {
	if *mem == vk.NullDeviceMemory {
		return
	}
	vk.FreeMemory(c.Device.LogicalDevice, *mem, c.Allocator)
	*mem = vk.NullDeviceMemory
}
