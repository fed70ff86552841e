package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

type renderPass struct {
	ctx    *vkContext
	Handle vk.RenderPass
	// formats drives the clear value conversion at begin time.
	formats []metadata.Format
	// colors is the color attachment count of each subpass, which pipelines
	// need one blend state per.
	colors []int
}

func attachmentIndex(i int) uint32 {
	if i == metadata.AttachmentUnused {
		return uint32(vk.AttachmentUnused)
	}
	return uint32(i)
}

func subpassIndex(i int) uint32 {
	if i == metadata.SubpassExternal {
		return uint32(vk.SubpassExternal)
	}
	return uint32(i)
}

func vkReferences(refs []metadata.AttachmentReference) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		out[i] = vk.AttachmentReference{
			Attachment: attachmentIndex(r.Attachment),
			Layout:     vkLayout(r.Layout),
		}
	}
	return out
}

// vkRenderPassInfo translates a finished plan. The plan's arenas are already
// frozen, so the per-subpass slices can be converted independently.
func vkRenderPassInfo(plan *metadata.RenderPassPlan) vk.RenderPassCreateInfo {
	attachments := make([]vk.AttachmentDescription, len(plan.Attachments))
	for i, a := range plan.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         vkFormat(a.Format),
			Samples:        vkSamples(a.Samples),
			LoadOp:         vkLoadOp(a.LoadOp),
			StoreOp:        vkStoreOp(a.StoreOp),
			StencilLoadOp:  vkLoadOp(a.StencilLoadOp),
			StencilStoreOp: vkStoreOp(a.StencilStoreOp),
			InitialLayout:  vkLayout(a.InitialLayout),
			FinalLayout:    vkLayout(a.FinalLayout),
		}
	}

	subpasses := make([]vk.SubpassDescription, len(plan.Subpasses))
	for i, s := range plan.Subpasses {
		sd := vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			InputAttachmentCount: uint32(len(s.Input)),
			PInputAttachments:    vkReferences(s.Input),
			ColorAttachmentCount: uint32(len(s.Color)),
			PColorAttachments:    vkReferences(s.Color),
			PResolveAttachments:  vkReferences(s.Resolve),
		}
		if s.DepthStencil != nil {
			ds := vkReferences([]metadata.AttachmentReference{*s.DepthStencil})
			sd.PDepthStencilAttachment = &ds[0]
		}
		if len(s.Preserve) > 0 {
			sd.PreserveAttachmentCount = uint32(len(s.Preserve))
			sd.PPreserveAttachments = make([]uint32, len(s.Preserve))
			for j, p := range s.Preserve {
				sd.PPreserveAttachments[j] = attachmentIndex(p)
			}
		}
		subpasses[i] = sd
	}

	dependencies := make([]vk.SubpassDependency, len(plan.Dependencies))
	for i, d := range plan.Dependencies {
		dependencies[i] = vk.SubpassDependency{
			SrcSubpass:      subpassIndex(d.Src),
			DstSubpass:      subpassIndex(d.Dst),
			SrcStageMask:    vkStages(d.SrcStage),
			DstStageMask:    vkStages(d.DstStage),
			SrcAccessMask:   vkAccess(d.SrcAccess),
			DstAccessMask:   vkAccess(d.DstAccess),
			DependencyFlags: vkDependencyFlags(d.Flags),
		}
	}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
}

func newRenderPass(ctx *vkContext, plan *metadata.RenderPassPlan) (*renderPass, error) {
	if len(plan.Subpasses) == 0 {
		return nil, core.Recoverablef("render pass has no subpasses")
	}
	rp := &renderPass{
		ctx:     ctx,
		formats: make([]metadata.Format, len(plan.Attachments)),
		colors:  make([]int, len(plan.Subpasses)),
	}
	for i, a := range plan.Attachments {
		rp.formats[i] = a.Format
	}
	for i, sp := range plan.Subpasses {
		rp.colors[i] = len(sp.Color)
	}

	createInfo := vkRenderPassInfo(plan)
	if err := ctx.locks.safeCall(renderPassManagement, func() error {
		return check(vk.CreateRenderPass(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &rp.Handle), "vkCreateRenderPass")
	}); err != nil {
		return nil, err
	}
	core.LogDebug("render pass created: %d attachments, %d subpasses, %d dependencies",
		len(plan.Attachments), len(plan.Subpasses), len(plan.Dependencies))
	return rp, nil
}

func (rp *renderPass) NewFramebuffer(views []driver.ImageView, width, height uint32) (driver.Framebuffer, error) {
	fb, err := newFramebuffer(rp, views, width, height)
	if err != nil {
		return nil, err
	}
	return fb, nil
}

func (rp *renderPass) Destroy() {
	if rp.Handle == vk.NullRenderPass {
		return
	}
	_ = rp.ctx.locks.safeCall(renderPassManagement, func() error {
		vk.DestroyRenderPass(rp.ctx.Device.LogicalDevice, rp.Handle, rp.ctx.Allocator)
		return nil
	})
	rp.Handle = vk.NullRenderPass
}
