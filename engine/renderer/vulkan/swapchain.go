package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/math"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

const swapchainFormat = metadata.FormatBGRA8Srgb

type swapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

type swapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      vk.Extent2D
	Images      []vk.Image
	Views       []*imageView
}

func querySwapchainSupport(pd vk.PhysicalDevice, surface vk.Surface) (swapchainSupportInfo, error) {
	var info swapchainSupportInfo
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &info.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return info, err
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return info, err
	}
	if formatCount > 0 {
		info.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, info.Formats), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
			return info, err
		}
		for i := range info.Formats {
			info.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return info, err
	}
	if modeCount > 0 {
		info.PresentModes = make([]vk.PresentMode, modeCount)
		if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, info.PresentModes), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
			return info, err
		}
	}
	return info, nil
}

// chooseSurfaceFormat prefers 8 bit sRGB BGRA, falling back to the first
// format the surface reports.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	want := vkFormat(swapchainFormat)
	for _, f := range formats {
		if f.Format == want && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	core.LogWarn("surface does not offer %s, using its first format", swapchainFormat)
	return formats[0]
}

// choosePresentMode uses mailbox with vsync when the surface supports it.
// FIFO is always available.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		for _, m := range modes {
			if m == vk.PresentModeMailbox {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

// chooseImageCount asks for triple buffering with vsync and double buffering
// without, within what the surface allows.
func chooseImageCount(caps vk.SurfaceCapabilities, vsync bool) uint32 {
	count := uint32(2)
	if vsync {
		count = 3
	}
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  math.Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func chooseCompositeAlpha(caps vk.SurfaceCapabilities) vk.CompositeAlphaFlagBits {
	for _, alpha := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if vk.CompositeAlphaFlagBits(caps.SupportedCompositeAlpha)&alpha != 0 {
			return alpha
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

// createSwapchain builds a swapchain and its image views. A non-null old
// handle is passed as the recreation hint; the caller destroys it afterwards.
func createSwapchain(ctx *vkContext, width, height uint32, vsync bool, old vk.Swapchain) (*swapchain, error) {
	support, err := querySwapchainSupport(ctx.Device.PhysicalDevice, ctx.Surface)
	if err != nil {
		return nil, err
	}
	if len(support.Formats) == 0 {
		return nil, core.Fatalf("surface reports no formats")
	}
	ctx.Device.SwapchainSupport = support
	caps := support.Capabilities

	sc := &swapchain{
		ImageFormat: chooseSurfaceFormat(support.Formats),
		PresentMode: choosePresentMode(support.PresentModes, vsync),
		Extent:      chooseExtent(caps, width, height),
	}

	sharing := metadata.SelectSharing(ctx.Device.Families)
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          ctx.Surface,
		MinImageCount:    chooseImageCount(caps, vsync),
		ImageFormat:      sc.ImageFormat.Format,
		ImageColorSpace:  sc.ImageFormat.ColorSpace,
		ImageExtent:      sc.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   chooseCompositeAlpha(caps),
		PresentMode:      sc.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	if sharing.Mode == metadata.SharingModeConcurrent {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(sharing.QueueFamilyIndices))
		createInfo.PQueueFamilyIndices = sharing.QueueFamilyIndices
	}

	if err := ctx.locks.safeCall(swapchainManagement, func() error {
		return check(vk.CreateSwapchain(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &sc.Handle), "vkCreateSwapchainKHR")
	}); err != nil {
		return nil, err
	}

	var count uint32
	if err := check(vk.GetSwapchainImages(ctx.Device.LogicalDevice, sc.Handle, &count, nil), "vkGetSwapchainImagesKHR"); err != nil {
		sc.destroy(ctx)
		return nil, err
	}
	sc.Images = make([]vk.Image, count)
	if err := check(vk.GetSwapchainImages(ctx.Device.LogicalDevice, sc.Handle, &count, sc.Images), "vkGetSwapchainImagesKHR"); err != nil {
		sc.destroy(ctx)
		return nil, err
	}

	sc.Views = make([]*imageView, 0, count)
	for _, img := range sc.Images {
		view, err := newImageView(ctx, img, vk.ImageViewType2d, sc.ImageFormat.Format,
			vk.ImageAspectFlags(vk.ImageAspectColorBit), 0, 1, 1, sc.Extent.Width, sc.Extent.Height)
		if err != nil {
			sc.destroyViews()
			sc.destroy(ctx)
			return nil, err
		}
		sc.Views = append(sc.Views, view)
	}

	core.LogInfo("swapchain created: %d images %dx%d", count, sc.Extent.Width, sc.Extent.Height)
	return sc, nil
}

// destroyViews releases the image views. The images belong to the swapchain.
func (sc *swapchain) destroyViews() {
	for _, v := range sc.Views {
		v.Destroy()
	}
	sc.Views = nil
}

func (sc *swapchain) destroy(ctx *vkContext) {
	if sc.Handle == vk.NullSwapchain {
		return
	}
	_ = ctx.locks.safeCall(swapchainManagement, func() error {
		vk.DestroySwapchain(ctx.Device.LogicalDevice, sc.Handle, ctx.Allocator)
		return nil
	})
	sc.Handle = vk.NullSwapchain
	sc.Images = nil
}

// acquireNextImage signals the semaphore once the returned image is free.
func (sc *swapchain) acquireNextImage(ctx *vkContext, semaphore vk.Semaphore) (int, error) {
	var index uint32
	res := vk.AcquireNextImage(ctx.Device.LogicalDevice, sc.Handle, vk.MaxUint64, semaphore, vk.NullFence, &index)
	if res == vk.Suboptimal {
		// The semaphore is signaled, so the frame has to go ahead.
		core.LogDebug("acquired image %d from a suboptimal swapchain", index)
		return int(index), nil
	}
	if err := check(res, "vkAcquireNextImageKHR"); err != nil {
		return -1, err
	}
	return int(index), nil
}

// present returns the image to the swapchain on the present queue.
func (sc *swapchain) present(ctx *vkContext, index int, wait []vk.Semaphore) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{uint32(index)},
	}
	return ctx.locks.safeQueueCall(uint32(ctx.Device.Families.Present), func() error {
		return check(vk.QueuePresent(ctx.Device.PresentQueue, &presentInfo), "vkQueuePresentKHR")
	})
}
