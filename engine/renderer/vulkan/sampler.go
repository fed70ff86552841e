package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

type sampler struct {
	Handle vk.Sampler
	desc   metadata.SamplerDesc
}

func (s *sampler) Desc() metadata.SamplerDesc { return s.desc }

// samplerInfo converts a description. Anisotropy is dropped when the device
// was created without it and clamped to the device limit otherwise.
func samplerInfo(d metadata.SamplerDesc, anisotropy bool, maxAnisotropy float32) vk.SamplerCreateInfo {
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vkFilter(d.MagFilter),
		MinFilter:               vkFilter(d.MinFilter),
		MipmapMode:              vkMipmapMode(d.MipmapMode),
		AddressModeU:            vkAddressMode(d.AddressU),
		AddressModeV:            vkAddressMode(d.AddressV),
		AddressModeW:            vkAddressMode(d.AddressW),
		MipLodBias:              d.MipLodBias,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vkCompareOp(d.CompareOp),
		MinLod:                  d.MinLod,
		MaxLod:                  d.MaxLod,
		BorderColor:             vkBorderColor(d.BorderColor),
		UnnormalizedCoordinates: vk.False,
	}
	if d.Anisotropy && anisotropy && d.MaxAnisotropy > 1 {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = d.MaxAnisotropy
		if maxAnisotropy > 0 && info.MaxAnisotropy > maxAnisotropy {
			info.MaxAnisotropy = maxAnisotropy
		}
	}
	if d.Compare {
		info.CompareEnable = vk.True
	}
	return info
}

// newSamplers creates the immutable sampler table.
func newSamplers(ctx *vkContext, opts metadata.SamplerOptions, anisotropy bool) ([metadata.SamplerCount]*sampler, error) {
	var out [metadata.SamplerCount]*sampler
	limit := ctx.Device.Properties.Limits.MaxSamplerAnisotropy
	for i, desc := range metadata.SamplerTable(opts) {
		s := &sampler{desc: desc}
		info := samplerInfo(desc, anisotropy, limit)
		if err := ctx.locks.safeCall(samplerManagement, func() error {
			return check(vk.CreateSampler(ctx.Device.LogicalDevice, &info, ctx.Allocator, &s.Handle), "vkCreateSampler %s", metadata.Sampler(i))
		}); err != nil {
			destroySamplers(ctx, &out)
			return out, err
		}
		out[i] = s
	}
	core.LogDebug("%d immutable samplers created", len(out))
	return out, nil
}

func destroySamplers(ctx *vkContext, samplers *[metadata.SamplerCount]*sampler) {
	_ = ctx.locks.safeCall(samplerManagement, func() error {
		for i, s := range samplers {
			if s == nil {
				continue
			}
			vk.DestroySampler(ctx.Device.LogicalDevice, s.Handle, ctx.Allocator)
			samplers[i] = nil
		}
		return nil
	})
}
