package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
)

type framebuffer struct {
	ctx         *vkContext
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	RenderPass  *renderPass
	width       uint32
	height      uint32
}

func newFramebuffer(rp *renderPass, views []driver.ImageView, width, height uint32) (*framebuffer, error) {
	if len(views) != len(rp.formats) {
		return nil, core.Recoverablef("framebuffer has %d views for %d attachments", len(views), len(rp.formats))
	}
	fb := &framebuffer{
		ctx:         rp.ctx,
		Attachments: make([]vk.ImageView, len(views)),
		RenderPass:  rp,
		width:       width,
		height:      height,
	}
	for i, v := range views {
		iv, ok := v.(*imageView)
		if !ok || iv == nil {
			return nil, core.Fatalf("framebuffer view %d is not a vulkan image view", i)
		}
		fb.Attachments[i] = iv.Handle
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.Handle,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	if err := check(vk.CreateFramebuffer(rp.ctx.Device.LogicalDevice, &createInfo, rp.ctx.Allocator, &fb.Handle), "vkCreateFramebuffer"); err != nil {
		return nil, err
	}
	return fb, nil
}

func (fb *framebuffer) Destroy() {
	if fb.Handle == vk.NullFramebuffer {
		return
	}
	vk.DestroyFramebuffer(fb.ctx.Device.LogicalDevice, fb.Handle, fb.ctx.Allocator)
	fb.Handle = vk.NullFramebuffer
	fb.Attachments = nil
}
