package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestChooseImageCount(t *testing.T) {
	caps := vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}
	assert.Equal(t, uint32(3), chooseImageCount(caps, true))
	assert.Equal(t, uint32(2), chooseImageCount(caps, false))

	caps = vk.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 0}
	assert.Equal(t, uint32(3), chooseImageCount(caps, false))

	caps = vk.SurfaceCapabilities{MinImageCount: 1, MaxImageCount: 2}
	assert.Equal(t, uint32(2), chooseImageCount(caps, true))
}

func TestChoosePresentMode(t *testing.T) {
	modes := []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeMailbox, vk.PresentModeFifo}
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode(modes, true))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(modes, false))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo}, true))
}

func TestChooseExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent: vk.Extent2D{Width: 800, Height: 600},
	}
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, 1024, 768))

	caps = vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 64, Height: 64},
		MaxImageExtent: vk.Extent2D{Width: 1920, Height: 1080},
	}
	assert.Equal(t, vk.Extent2D{Width: 1920, Height: 64}, chooseExtent(caps, 4000, 10))
}

func TestChooseSurfaceFormat(t *testing.T) {
	formats := []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}
	assert.Equal(t, vk.FormatB8g8r8a8Srgb, chooseSurfaceFormat(formats).Format)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, chooseSurfaceFormat(formats[:1]).Format)
}
