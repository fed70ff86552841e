package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

type device struct {
	PhysicalDevice   vk.PhysicalDevice
	LogicalDevice    vk.Device
	SwapchainSupport swapchainSupportInfo

	Families metadata.QueueFamilies

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type physicalDeviceRequirements struct {
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
}

const portabilitySubset = "VK_KHR_portability_subset"

var deviceTypes = map[vk.PhysicalDeviceType]string{
	vk.PhysicalDeviceTypeOther:         "Unknown",
	vk.PhysicalDeviceTypeIntegratedGpu: "Integrated",
	vk.PhysicalDeviceTypeDiscreteGpu:   "Discrete",
	vk.PhysicalDeviceTypeVirtualGpu:    "Virtual",
	vk.PhysicalDeviceTypeCpu:           "CPU",
}

func versionString(v uint32) string {
	ver := vk.Version(v)
	return fmt.Sprintf("%d.%d.%d", ver.Major(), ver.Minor(), ver.Patch())
}

// selectPhysicalDevice takes the first device that meets the requirements.
func selectPhysicalDevice(ctx *vkContext, anisotropy bool) error {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(ctx.Instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if count == 0 {
		return core.Fatalf("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(ctx.Instance, &count, physicalDevices), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}

	requirements := physicalDeviceRequirements{
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
		SamplerAnisotropy:    anisotropy,
	}

	for _, pd := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()
		properties.Limits.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(pd, &features)
		features.Deref()

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
		memory.Deref()

		name := cString(properties.DeviceName[:])
		families, support, ok := physicalDeviceMeetsRequirements(pd, ctx.Surface, name, &features, &requirements)
		if !ok {
			continue
		}

		core.LogInfo("selected device: %q (%s GPU)", name, deviceTypes[properties.DeviceType])
		core.LogInfo("GPU driver version: %s", versionString(properties.DriverVersion))
		core.LogInfo("Vulkan API version: %s", versionString(properties.ApiVersion))
		for j := uint32(0); j < memory.MemoryHeapCount; j++ {
			memory.MemoryHeaps[j].Deref()
			gib := float64(memory.MemoryHeaps[j].Size) / 1024 / 1024 / 1024
			if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
				core.LogInfo("local GPU memory: %.2f GiB", gib)
			} else {
				core.LogInfo("shared system memory: %.2f GiB", gib)
			}
		}

		ctx.Device = &device{
			PhysicalDevice:   pd,
			SwapchainSupport: support,
			Families:         families,
			Properties:       properties,
			Features:         features,
			Memory:           memory,
		}
		return nil
	}
	return core.Fatalf("no physical devices were found which meet the requirements")
}

// physicalDeviceMeetsRequirements picks the graphics and present families,
// preferring one family that can do both.
func physicalDeviceMeetsRequirements(pd vk.PhysicalDevice, surface vk.Surface, name string, features *vk.PhysicalDeviceFeatures,
	requirements *physicalDeviceRequirements) (metadata.QueueFamilies, swapchainSupportInfo, bool) {
	families := metadata.QueueFamilies{Graphics: -1, Present: -1}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, queueFamilies)

	for i := range queueFamilies {
		queueFamilies[i].Deref()
		graphics := vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &supportsPresent); res != vk.Success {
			core.LogWarn("%s: querying present support of family %d: %s", name, i, ResultString(res))
			continue
		}
		present := supportsPresent == vk.True

		if graphics && present {
			families = metadata.QueueFamilies{Graphics: i, Present: i}
			break
		}
		if graphics && families.Graphics < 0 {
			families.Graphics = i
		}
		if present && families.Present < 0 {
			families.Present = i
		}
	}
	core.LogDebug("%s: graphics family %d, present family %d", name, families.Graphics, families.Present)
	if !families.IsComplete() {
		core.LogInfo("%s: missing a graphics or present queue, skipping device", name)
		return families, swapchainSupportInfo{}, false
	}

	support, err := querySwapchainSupport(pd, surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("%s: required swapchain support not present, skipping device", name)
		return families, support, false
	}

	available, err := deviceExtensions(pd)
	if err != nil {
		return families, support, false
	}
	for _, ext := range requirements.DeviceExtensionNames {
		if !available[ext] {
			core.LogInfo("%s: required extension %q not found, skipping device", name, ext)
			return families, support, false
		}
	}

	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("%s: samplerAnisotropy not supported, skipping device", name)
		return families, support, false
	}
	return families, support, true
}

func deviceExtensions(pd vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if err := check(vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := check(vk.EnumerateDeviceExtensionProperties(pd, "", &count, props), "vkEnumerateDeviceExtensionProperties"); err != nil {
			return nil, err
		}
	}
	out := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		out[cString(props[i].ExtensionName[:])] = true
	}
	return out, nil
}

// createLogicalDevice creates the device with one queue per distinct family.
func createLogicalDevice(ctx *vkContext, anisotropy bool) error {
	d := ctx.Device
	indices := []uint32{uint32(d.Families.Graphics)}
	if !d.Families.IsSameQueue() {
		indices = append(indices, uint32(d.Families.Present))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	features := vk.PhysicalDeviceFeatures{}
	if anisotropy {
		features.SamplerAnisotropy = vk.True
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(d.PhysicalDevice)
	if err != nil {
		return err
	}
	if available[portabilitySubset] {
		core.LogInfo("adding required extension %q", portabilitySubset)
		extensionNames = append(extensionNames, portabilitySubset)
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: safeStrings(extensionNames),
	}
	if err := check(vk.CreateDevice(d.PhysicalDevice, &createInfo, ctx.Allocator, &d.LogicalDevice), "vkCreateDevice"); err != nil {
		return err
	}
	core.LogInfo("logical device created")

	vk.GetDeviceQueue(d.LogicalDevice, uint32(d.Families.Graphics), 0, &d.GraphicsQueue)
	vk.GetDeviceQueue(d.LogicalDevice, uint32(d.Families.Present), 0, &d.PresentQueue)
	core.LogDebug("queues obtained")

	if !detectDepthFormat(d) {
		core.LogWarn("no supported depth format found")
	}
	return nil
}

func destroyDevice(ctx *vkContext) {
	d := ctx.Device
	if d == nil {
		return
	}
	d.GraphicsQueue = nil
	d.PresentQueue = nil
	if d.LogicalDevice != nil {
		core.LogDebug("destroying logical device")
		vk.DestroyDevice(d.LogicalDevice, ctx.Allocator)
		d.LogicalDevice = nil
	}
	d.PhysicalDevice = nil
	d.Families = metadata.QueueFamilies{Graphics: -1, Present: -1}
}

// detectDepthFormat picks the first depth format usable as an attachment.
func detectDepthFormat(d *device) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.LinearTilingFeatures&flags == flags || properties.OptimalTilingFeatures&flags == flags {
			d.DepthFormat = candidate
			return true
		}
	}
	d.DepthFormat = vk.FormatUndefined
	return false
}
