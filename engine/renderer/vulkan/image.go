package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

type imageView struct {
	ctx    *vkContext
	Handle vk.ImageView
	width  uint32
	height uint32
}

func newImageView(ctx *vkContext, image vk.Image, viewType vk.ImageViewType, format vk.Format, aspect vk.ImageAspectFlags,
	baseLayer, layerCount, mips, width, height uint32) (*imageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: viewType,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mips,
			BaseArrayLayer: baseLayer,
			LayerCount:     layerCount,
		},
	}
	v := &imageView{ctx: ctx, width: width, height: height}
	if err := check(vk.CreateImageView(ctx.Device.LogicalDevice, &viewInfo, ctx.Allocator, &v.Handle), "vkCreateImageView"); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *imageView) Width() uint32  { return v.width }
func (v *imageView) Height() uint32 { return v.height }

func (v *imageView) Destroy() {
	if v == nil || v.Handle == vk.NullImageView {
		return
	}
	vk.DestroyImageView(v.ctx.Device.LogicalDevice, v.Handle, v.ctx.Allocator)
	v.Handle = vk.NullImageView
}

// texture is a device local image with a view over every layer and, for cube
// maps, one 2D view per face.
type texture struct {
	ctx    *vkContext
	desc   metadata.TextureDesc
	Handle vk.Image
	Memory vk.DeviceMemory
	view   *imageView
	faces  []*imageView
}

func newTexture(ctx *vkContext, desc *metadata.TextureDesc) (*texture, error) {
	if !desc.Format.Valid() {
		return nil, core.Recoverablef("texture %q: unsupported format %s", desc.Name, desc.Format)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, core.Recoverablef("texture %q: size %dx%d", desc.Name, desc.Width, desc.Height)
	}

	t := &texture{ctx: ctx, desc: *desc}
	format := vkFormat(desc.Format)
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.Mips(),
		ArrayLayers:   desc.Layers(),
		Samples:       vkSamples(desc.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if desc.TextureType == metadata.TextureTypeCube {
		imageInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	if err := ctx.locks.safeCall(resourceManagement, func() error {
		return check(vk.CreateImage(ctx.Device.LogicalDevice, &imageInfo, ctx.Allocator, &t.Handle), "vkCreateImage %q", desc.Name)
	}); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.Device.LogicalDevice, t.Handle, &reqs)
	mem, err := ctx.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		t.Destroy()
		return nil, err
	}
	t.Memory = mem
	if err := check(vk.BindImageMemory(ctx.Device.LogicalDevice, t.Handle, t.Memory, 0), "vkBindImageMemory %q", desc.Name); err != nil {
		t.Destroy()
		return nil, err
	}

	aspect := aspectOf(desc.Format)
	viewType := vk.ImageViewType2d
	if desc.TextureType == metadata.TextureTypeCube {
		viewType = vk.ImageViewTypeCube
	}
	if t.view, err = newImageView(ctx, t.Handle, viewType, format, aspect, 0, desc.Layers(), desc.Mips(), desc.Width, desc.Height); err != nil {
		t.Destroy()
		return nil, err
	}
	if desc.TextureType == metadata.TextureTypeCube {
		for layer := uint32(0); layer < desc.Layers(); layer++ {
			face, err := newImageView(ctx, t.Handle, vk.ImageViewType2d, format, aspect, layer, 1, 1, desc.Width, desc.Height)
			if err != nil {
				t.Destroy()
				return nil, err
			}
			t.faces = append(t.faces, face)
		}
	}
	core.LogDebug("texture %q created: %s %dx%d, %d mips, %d layers",
		desc.Name, desc.Format, desc.Width, desc.Height, desc.Mips(), desc.Layers())
	return t, nil
}

func (t *texture) Desc() metadata.TextureDesc { return t.desc }
func (t *texture) View() driver.ImageView     { return t.view }

func (t *texture) FaceView(layer int) driver.ImageView {
	if layer < 0 || layer >= len(t.faces) {
		return nil
	}
	return t.faces[layer]
}

func (t *texture) Destroy() {
	for _, f := range t.faces {
		f.Destroy()
	}
	t.faces = nil
	t.view.Destroy()
	t.view = nil
	if t.Handle != vk.NullImage {
		_ = t.ctx.locks.safeCall(resourceManagement, func() error {
			vk.DestroyImage(t.ctx.Device.LogicalDevice, t.Handle, t.ctx.Allocator)
			return nil
		})
		t.Handle = vk.NullImage
	}
	t.ctx.free(&t.Memory)
}
