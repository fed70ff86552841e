package metadata

import "math"

/** @brief The fixed set of immutable samplers created at startup. */
type Sampler int

const (
	SamplerShadow Sampler = iota
	SamplerAniso
	SamplerLinear3D
	SamplerNearest3D
	SamplerLinear2D
	SamplerNearest2D
	SamplerLinearClamp3D
	SamplerNearestClamp3D
	SamplerLinearClamp2D
	SamplerNearestClamp2D
	SamplerCount
)

var samplerNames = [SamplerCount]string{
	"shadow", "aniso", "linear3d", "nearest3d", "linear2d", "nearest2d",
	"linear_clamp3d", "nearest_clamp3d", "linear_clamp2d", "nearest_clamp2d",
}

func (s Sampler) String() string {
	if s < 0 || s >= SamplerCount {
		return "sampler(?)"
	}
	return samplerNames[s]
}

func (s Sampler) Valid() bool {
	return s >= 0 && s < SamplerCount
}

type Filter int

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode int

const (
	AddressModeRepeat AddressMode = iota
	AddressModeClampToEdge
	AddressModeClampToBorder
	AddressModeMirroredRepeat
)

type CompareOp int

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpEqual
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpNotEqual
	CompareOpGreaterOrEqual
	CompareOpAlways
)

type BorderColor int

const (
	BorderColorOpaqueBlack BorderColor = iota
	BorderColorTransparentBlack
	BorderColorOpaqueWhite
)

/** @brief Backend-neutral sampler state. */
type SamplerDesc struct {
	MagFilter     Filter
	MinFilter     Filter
	MipmapMode    Filter
	AddressU      AddressMode
	AddressV      AddressMode
	AddressW      AddressMode
	MipLodBias    float32
	Anisotropy    bool
	MaxAnisotropy float32
	Compare       bool
	CompareOp     CompareOp
	MinLod        float32
	MaxLod        float32
	BorderColor   BorderColor
}

/** @brief Quality settings that shape the sampler table. */
type SamplerOptions struct {
	Trilinear     bool
	Anisotropy    float32
	NearestShadow bool
}

func baseSampler(o SamplerOptions) SamplerDesc {
	d := SamplerDesc{
		MagFilter:   FilterLinear,
		MinFilter:   FilterLinear,
		MipmapMode:  FilterNearest,
		AddressU:    AddressModeRepeat,
		AddressV:    AddressModeRepeat,
		AddressW:    AddressModeRepeat,
		CompareOp:   CompareOpAlways,
		MaxLod:      math.MaxFloat32,
		BorderColor: BorderColorOpaqueBlack,
	}
	if o.Trilinear {
		d.MipmapMode = FilterLinear
	}
	return d
}

func nearestFilter(d SamplerDesc) SamplerDesc {
	d.MagFilter = FilterNearest
	d.MinFilter = FilterNearest
	return d
}

func nearestMip(d SamplerDesc) SamplerDesc {
	d.MipmapMode = FilterNearest
	return d
}

func clamp(d SamplerDesc) SamplerDesc {
	d.AddressU = AddressModeClampToEdge
	d.AddressV = AddressModeClampToEdge
	d.AddressW = AddressModeClampToEdge
	return d
}

// SamplerTable returns the description of every immutable sampler, indexed
// by Sampler.
func SamplerTable(o SamplerOptions) [SamplerCount]SamplerDesc {
	var t [SamplerCount]SamplerDesc
	base := baseSampler(o)

	shadow := clamp(nearestMip(base))
	if o.NearestShadow {
		shadow = nearestFilter(shadow)
	}
	shadow.Compare = true
	shadow.CompareOp = CompareOpLessOrEqual
	t[SamplerShadow] = shadow

	aniso := base
	aniso.Anisotropy = true
	aniso.MaxAnisotropy = o.Anisotropy
	t[SamplerAniso] = aniso

	t[SamplerLinear3D] = base
	t[SamplerNearest3D] = nearestFilter(base)
	t[SamplerLinear2D] = nearestMip(base)
	t[SamplerNearest2D] = nearestMip(nearestFilter(base))

	t[SamplerLinearClamp3D] = clamp(base)
	t[SamplerNearestClamp3D] = clamp(nearestFilter(base))
	t[SamplerLinearClamp2D] = clamp(nearestMip(base))
	t[SamplerNearestClamp2D] = clamp(nearestMip(nearestFilter(base)))
	return t
}
