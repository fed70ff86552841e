package metadata

import "strconv"

/**
 * @brief Kind tags a Handle with the slot table it indexes. Handles of
 * different kinds are different types and cannot be mixed up.
 */
type Kind interface {
	kindName() string
}

type RenderPassKind struct{}
type FramebufferKind struct{}
type CommandBufferKind struct{}
type GeometryKind struct{}
type PipelineKind struct{}
type ShaderKind struct{}
type TextureKind struct{}

func (RenderPassKind) kindName() string    { return "render pass" }
func (FramebufferKind) kindName() string   { return "framebuffer" }
func (CommandBufferKind) kindName() string { return "command buffer" }
func (GeometryKind) kindName() string      { return "geometry" }
func (PipelineKind) kindName() string      { return "pipeline" }
func (ShaderKind) kindName() string        { return "shader" }
func (TextureKind) kindName() string       { return "texture" }

/**
 * @brief Handle is a copyable reference into a slot table. It owns nothing.
 * The zero value is unset.
 */
type Handle[K Kind] struct {
	// index + 1, so that the zero value is unset
	slot int
}

type (
	RPHandle            = Handle[RenderPassKind]
	FBHandle            = Handle[FramebufferKind]
	CommandBufferHandle = Handle[CommandBufferKind]
	GeometryHandle      = Handle[GeometryKind]
	PipelineHandle      = Handle[PipelineKind]
	ShaderHandle        = Handle[ShaderKind]
	TextureHandle       = Handle[TextureKind]
)

// MakeHandle returns a handle for index. A negative index yields an unset handle.
func MakeHandle[K Kind](index int) Handle[K] {
	if index < 0 {
		return Handle[K]{}
	}
	return Handle[K]{slot: index + 1}
}

// Index returns the slot index, or -1 when the handle is unset.
func (h Handle[K]) Index() int {
	return h.slot - 1
}

func (h Handle[K]) IsSet() bool {
	return h.Index() >= 0
}

func (h Handle[K]) Equal(o Handle[K]) bool {
	return h.slot == o.slot
}

func (h Handle[K]) String() string {
	var k K
	if !h.IsSet() {
		return k.kindName() + "(unset)"
	}
	return k.kindName() + "(" + strconv.Itoa(h.Index()) + ")"
}

/**
 * @brief Reference selects either a single slot or every live slot of a kind.
 * It is what the Delete calls accept, so "delete everything" is spelled out at
 * the call site rather than encoded in a magic index.
 */
type Reference[K Kind] struct {
	handle Handle[K]
	all    bool
}

func One[K Kind](h Handle[K]) Reference[K] {
	return Reference[K]{handle: h}
}

func All[K Kind]() Reference[K] {
	return Reference[K]{all: true}
}

func (r Reference[K]) IsAll() bool {
	return r.all
}

func (r Reference[K]) Handle() Handle[K] {
	return r.handle
}
