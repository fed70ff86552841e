package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
)

// descriptorSet is allocated from its shader's pool and freed back to it.
type descriptorSet struct {
	shader *shader
	Handle vk.DescriptorSet
}

func newDescriptorSet(s *shader) (*descriptorSet, error) {
	ds := &descriptorSet{shader: s}
	err := s.ctx.locks.safeCall(descriptorManagement, func() error {
		return check(vk.AllocateDescriptorSets(s.ctx.Device.LogicalDevice, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     s.Pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{s.SetLayout},
		}, &ds.Handle), "vkAllocateDescriptorSets %q", s.desc.Name)
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (ds *descriptorSet) write(w vk.WriteDescriptorSet) error {
	if ds.Handle == nil {
		return core.Fatalf("write to a destroyed descriptor set")
	}
	w.SType = vk.StructureTypeWriteDescriptorSet
	w.DstSet = ds.Handle
	w.DescriptorCount = 1
	return ds.shader.ctx.locks.safeCall(descriptorManagement, func() error {
		vk.UpdateDescriptorSets(ds.shader.ctx.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{w}, 0, nil)
		return nil
	})
}

// SetTexture points a combined image sampler binding at the texture's base
// view. The sampler half comes from the layout.
func (ds *descriptorSet) SetTexture(binding uint32, tex driver.Texture) error {
	found := false
	for _, b := range ds.shader.desc.Textures {
		found = found || b.Binding == binding
	}
	if !found {
		return core.Recoverablef("shader %q has no texture binding %d", ds.shader.desc.Name, binding)
	}
	t, ok := tex.(*texture)
	if !ok || t.view == nil {
		return core.Fatalf("binding %d: not a live vulkan texture", binding)
	}
	layout := vk.ImageLayoutShaderReadOnlyOptimal
	if t.desc.Format.IsDepth() {
		layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
	}
	return ds.write(vk.WriteDescriptorSet{
		DstBinding:     binding,
		DescriptorType: vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   t.view.Handle,
			ImageLayout: layout,
		}},
	})
}

func (ds *descriptorSet) SetUniform(binding uint32, buf driver.Buffer, offset, size int) error {
	found := false
	for _, b := range ds.shader.desc.Uniforms {
		found = found || b.Binding == binding
	}
	if !found {
		return core.Recoverablef("shader %q has no uniform binding %d", ds.shader.desc.Name, binding)
	}
	b, ok := buf.(*buffer)
	if !ok || b.Handle == vk.NullBuffer {
		return core.Fatalf("binding %d: not a live vulkan buffer", binding)
	}
	if offset < 0 || size <= 0 || offset+size > b.size {
		return core.Recoverablef("uniform range %d+%d outside buffer of %d", offset, size, b.size)
	}
	return ds.write(vk.WriteDescriptorSet{
		DstBinding:     binding,
		DescriptorType: vk.DescriptorTypeUniformBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: b.Handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(size),
		}},
	})
}

func (ds *descriptorSet) Destroy() {
	if ds.Handle == nil || ds.shader.Pool == nil {
		ds.Handle = nil
		return
	}
	ctx := ds.shader.ctx
	_ = ctx.locks.safeCall(descriptorManagement, func() error {
		return check(vk.FreeDescriptorSets(ctx.Device.LogicalDevice, ds.shader.Pool, 1, &ds.Handle), "vkFreeDescriptorSets")
	})
	ds.Handle = nil
}
