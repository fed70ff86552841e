package renderer

import (
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

type renderPass struct {
	native driver.RenderPass
	plan   *metadata.RenderPassPlan
}

// CreateRenderPass compiles attachments, subpasses and dependencies into a
// native render pass. Malformed descriptions are recoverable errors; a native
// creation failure is fatal. No handle is returned on error.
func (r *Renderer) CreateRenderPass(attachments []metadata.AttachmentDesc, subpasses []metadata.SubpassDesc, dependencies []metadata.DependencyDesc) (metadata.RPHandle, error) {
	plan, err := metadata.BuildRenderPassPlan(attachments, subpasses, dependencies)
	if err != nil {
		return metadata.RPHandle{}, err
	}

	native, err := r.driver.NewRenderPass(plan)
	if err != nil {
		return metadata.RPHandle{}, core.WrapFatal(err, "creating render pass")
	}

	index := r.renderPasses.Insert(&renderPass{native: native, plan: plan})
	core.LogDebug("render pass %d created: %d attachments, %d subpasses, %d dependencies",
		index, len(plan.Attachments), len(plan.Subpasses), len(plan.Dependencies))
	return metadata.MakeHandle[metadata.RenderPassKind](index), nil
}

// DeleteRenderPass destroys one render pass, or all of them. Deleting an
// unset or already deleted handle does nothing.
func (r *Renderer) DeleteRenderPass(ref metadata.Reference[metadata.RenderPassKind]) {
	if ref.IsAll() {
		for _, rp := range r.renderPasses.Clear() {
			rp.native.Destroy()
		}
		return
	}
	if rp, ok := r.renderPasses.Delete(ref.Handle().Index()); ok {
		rp.native.Destroy()
	}
}

func (r *Renderer) renderPass(h metadata.RPHandle) (*renderPass, error) {
	rp, ok := r.renderPasses.Get(h.Index())
	if !ok {
		return nil, core.WrapRecoverable(core.ErrInvalidHandle, "%s", h)
	}
	return rp, nil
}

// RenderPassPlan returns the resolved plan a render pass was built from.
func (r *Renderer) RenderPassPlan(h metadata.RPHandle) (*metadata.RenderPassPlan, error) {
	rp, err := r.renderPass(h)
	if err != nil {
		return nil, err
	}
	return rp.plan, nil
}

// RenderPassCount is the length of the render pass slot table.
func (r *Renderer) RenderPassCount() int {
	return r.renderPasses.Len()
}
