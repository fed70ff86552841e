package vulkan

import (
	"encoding/binary"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

const (
	spirvMagic = 0x07230203
	// maxDescriptorSets bounds the sets one shader can hand out at a time.
	maxDescriptorSets = 64
)

// spirvWords reinterprets SPIR-V bytes as the little endian words Vulkan
// expects.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, core.Recoverablef("SPIR-V code of %d bytes is not a whole number of words", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, core.Recoverablef("not SPIR-V, magic is %#08x", words[0])
	}
	return words, nil
}

type shader struct {
	ctx     *vkContext
	desc    metadata.ShaderDesc
	modules []vk.ShaderModule
	stages  []vk.PipelineShaderStageCreateInfo

	SetLayout vk.DescriptorSetLayout
	Pool      vk.DescriptorPool
}

func newShader(ctx *vkContext, desc *metadata.ShaderDesc, samplers *[metadata.SamplerCount]*sampler) (*shader, error) {
	if len(desc.Stages) == 0 {
		return nil, core.Recoverablef("shader %q has no stages", desc.Name)
	}
	s := &shader{ctx: ctx, desc: *desc}

	for _, st := range desc.Stages {
		words, err := spirvWords(st.Code)
		if err != nil {
			s.Destroy()
			return nil, core.WrapRecoverable(err, "shader %q stage %s", desc.Name, st.Stage)
		}
		var module vk.ShaderModule
		if err := check(vk.CreateShaderModule(ctx.Device.LogicalDevice, &vk.ShaderModuleCreateInfo{
			SType:    vk.StructureTypeShaderModuleCreateInfo,
			CodeSize: uint64(len(st.Code)),
			PCode:    words,
		}, ctx.Allocator, &module), "vkCreateShaderModule %q %s", desc.Name, st.Stage); err != nil {
			s.Destroy()
			return nil, err
		}
		s.modules = append(s.modules, module)

		entry := st.EntryPoint
		if entry == "" {
			entry = "main"
		}
		s.stages = append(s.stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(vkShaderStages(st.Stage)),
			Module: module,
			PName:  safeString(entry),
		})
	}

	if len(desc.Textures)+len(desc.Uniforms) > 0 {
		if err := s.createDescriptorLayout(samplers); err != nil {
			s.Destroy()
			return nil, err
		}
	}
	core.LogDebug("shader %q created: %d stages, %d textures, %d uniforms",
		desc.Name, len(desc.Stages), len(desc.Textures), len(desc.Uniforms))
	return s, nil
}

// createDescriptorLayout bakes the immutable samplers into the layout and
// creates the pool descriptor sets are allocated from.
func (s *shader) createDescriptorLayout(samplers *[metadata.SamplerCount]*sampler) error {
	ctx := s.ctx
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(s.desc.Textures)+len(s.desc.Uniforms))
	for _, t := range s.desc.Textures {
		if !t.Sampler.Valid() {
			return core.Recoverablef("shader %q binding %d: unknown sampler %d", s.desc.Name, t.Binding, int(t.Sampler))
		}
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:            t.Binding,
			DescriptorType:     vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount:    1,
			StageFlags:         vkShaderStages(t.Stages),
			PImmutableSamplers: []vk.Sampler{samplers[t.Sampler].Handle},
		})
	}
	for _, u := range s.desc.Uniforms {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         u.Binding,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vkShaderStages(u.Stages),
		})
	}

	return ctx.locks.safeCall(descriptorManagement, func() error {
		if err := check(vk.CreateDescriptorSetLayout(ctx.Device.LogicalDevice, &vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}, ctx.Allocator, &s.SetLayout), "vkCreateDescriptorSetLayout %q", s.desc.Name); err != nil {
			return err
		}

		var sizes []vk.DescriptorPoolSize
		if n := len(s.desc.Textures); n > 0 {
			sizes = append(sizes, vk.DescriptorPoolSize{
				Type:            vk.DescriptorTypeCombinedImageSampler,
				DescriptorCount: uint32(n * maxDescriptorSets),
			})
		}
		if n := len(s.desc.Uniforms); n > 0 {
			sizes = append(sizes, vk.DescriptorPoolSize{
				Type:            vk.DescriptorTypeUniformBuffer,
				DescriptorCount: uint32(n * maxDescriptorSets),
			})
		}
		return check(vk.CreateDescriptorPool(ctx.Device.LogicalDevice, &vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
			MaxSets:       maxDescriptorSets,
			PoolSizeCount: uint32(len(sizes)),
			PPoolSizes:    sizes,
		}, ctx.Allocator, &s.Pool), "vkCreateDescriptorPool %q", s.desc.Name)
	})
}

func (s *shader) Desc() *metadata.ShaderDesc { return &s.desc }

// stageFlags is every stage the program has, the range push constants are
// visible to.
func (s *shader) stageFlags() vk.ShaderStageFlags {
	var stages metadata.ShaderStage
	for _, st := range s.desc.Stages {
		stages |= st.Stage
	}
	return vkShaderStages(stages)
}

func (s *shader) NewDescriptorSet() (driver.DescriptorSet, error) {
	if s.Pool == nil {
		return nil, core.Recoverablef("shader %q has no bindings", s.desc.Name)
	}
	ds, err := newDescriptorSet(s)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (s *shader) Destroy() {
	ctx := s.ctx
	_ = ctx.locks.safeCall(descriptorManagement, func() error {
		if s.Pool != nil {
			vk.DestroyDescriptorPool(ctx.Device.LogicalDevice, s.Pool, ctx.Allocator)
			s.Pool = nil
		}
		if s.SetLayout != nil {
			vk.DestroyDescriptorSetLayout(ctx.Device.LogicalDevice, s.SetLayout, ctx.Allocator)
			s.SetLayout = nil
		}
		return nil
	})
	for _, m := range s.modules {
		vk.DestroyShaderModule(ctx.Device.LogicalDevice, m, ctx.Allocator)
	}
	s.modules = nil
	s.stages = nil
}
