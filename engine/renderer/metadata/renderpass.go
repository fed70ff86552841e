package metadata

import (
	"github.com/spaghettifunk/anima-cgi/engine/core"
)

type LoadOp int

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

func (op LoadOp) String() string {
	switch op {
	case LoadOpLoad:
		return "load"
	case LoadOpClear:
		return "clear"
	case LoadOpDontCare:
		return "dont_care"
	default:
		return "load_op(?)"
	}
}

func (op LoadOp) Valid() bool {
	return op >= LoadOpLoad && op <= LoadOpDontCare
}

type StoreOp int

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

func (op StoreOp) String() string {
	switch op {
	case StoreOpStore:
		return "store"
	case StoreOpDontCare:
		return "dont_care"
	default:
		return "store_op(?)"
	}
}

func (op StoreOp) Valid() bool {
	return op == StoreOpStore || op == StoreOpDontCare
}

/**
 * @brief Describes one render pass attachment. Name is only used to resolve
 * references within a single build and is not kept in the resulting plan.
 */
type AttachmentDesc struct {
	Name           string
	Format         Format
	Samples        SampleCount
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

// Attachment starts an attachment description with load and store enabled and
// stencil ignored.
func Attachment(name string, format Format) AttachmentDesc {
	return AttachmentDesc{
		Name:           name,
		Format:         format,
		Samples:        1,
		LoadOp:         LoadOpLoad,
		StoreOp:        StoreOpStore,
		StencilLoadOp:  LoadOpDontCare,
		StencilStoreOp: StoreOpDontCare,
	}
}

func (a AttachmentDesc) LoadOpClear() AttachmentDesc {
	a.LoadOp = LoadOpClear
	return a
}

func (a AttachmentDesc) LoadOpDontCare() AttachmentDesc {
	a.LoadOp = LoadOpDontCare
	return a
}

func (a AttachmentDesc) StoreOpDontCare() AttachmentDesc {
	a.StoreOp = StoreOpDontCare
	return a
}

func (a AttachmentDesc) StencilOps(load LoadOp, store StoreOp) AttachmentDesc {
	a.StencilLoadOp = load
	a.StencilStoreOp = store
	return a
}

func (a AttachmentDesc) Layout(initial, final ImageLayout) AttachmentDesc {
	a.InitialLayout = initial
	a.FinalLayout = final
	return a
}

func (a AttachmentDesc) SampleCount(n SampleCount) AttachmentDesc {
	a.Samples = n
	return a
}

/** @brief A named reference to an attachment and the layout a subpass needs it in. */
type AttachmentRef struct {
	Name   string
	Layout ImageLayout
}

func Ref(name string, layout ImageLayout) AttachmentRef {
	return AttachmentRef{Name: name, Layout: layout}
}

/**
 * @brief Describes one subpass. An empty reference name marks the slot unused.
 * Resolve, when given, must pair one to one with Color.
 */
type SubpassDesc struct {
	Name         string
	Input        []AttachmentRef
	Color        []AttachmentRef
	Resolve      []AttachmentRef
	DepthStencil *AttachmentRef
	Preserve     []string
}

/** @brief Selects a fixed pair of stage and access transitions for a dependency. */
type DependencyMode int

const (
	/** @brief Wait for nothing, block all later color and depth reads and writes. */
	DependencyModeDefault DependencyMode = iota
	/** @brief Color writes must finish before fragment shader reads, per region. */
	DependencyModeColorToFragmentRead
)

/** @brief Orders two subpasses. An empty name is the external subpass. */
type DependencyDesc struct {
	Src  string
	Dst  string
	Mode DependencyMode
}

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageBottomOfPipe
	PipelineStageAllCommands
)

type Access uint32

const (
	AccessInputAttachmentRead Access = 1 << iota
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostWrite
)

type DependencyFlags uint32

const (
	DependencyByRegion DependencyFlags = 1 << iota
)

type DependencyMasks struct {
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
	Flags     DependencyFlags
}

// Masks returns the transitions for the mode. Unknown modes are data errors.
func (m DependencyMode) Masks() (DependencyMasks, error) {
	switch m {
	case DependencyModeDefault:
		return DependencyMasks{
			SrcStage:  PipelineStageTopOfPipe,
			SrcAccess: 0,
			DstStage:  PipelineStageAllCommands,
			DstAccess: AccessInputAttachmentRead |
				AccessColorAttachmentRead |
				AccessColorAttachmentWrite |
				AccessDepthStencilAttachmentRead |
				AccessDepthStencilAttachmentWrite,
		}, nil
	case DependencyModeColorToFragmentRead:
		return DependencyMasks{
			SrcStage:  PipelineStageColorAttachmentOutput,
			SrcAccess: AccessColorAttachmentWrite,
			DstStage:  PipelineStageFragmentShader,
			DstAccess: AccessShaderRead,
			Flags:     DependencyByRegion,
		}, nil
	default:
		return DependencyMasks{}, core.Recoverablef("unsupported dependency mode %d", int(m))
	}
}

const (
	/** @brief Attachment index of an unused reference. */
	AttachmentUnused = -1
	/** @brief Subpass index of the implicit subpass outside the render pass. */
	SubpassExternal = -1
	noOffset        = -1
)

type AttachmentPlan struct {
	Format         Format
	Samples        SampleCount
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

type AttachmentReference struct {
	Attachment int
	Layout     ImageLayout
}

/**
 * @brief Arena offsets recorded for a subpass while the arenas are still growing.
 * An offset of -1 means the subpass has no references of that kind.
 */
type SubpassOffsets struct {
	Input        int
	InputCount   int
	Color        int
	ColorCount   int
	Resolve      int
	ResolveCount int
	DepthStencil int
	Preserve     int
	PreserveCnt  int
}

/** @brief A subpass whose reference slices point into the frozen plan arenas. */
type SubpassPlan struct {
	Input        []AttachmentReference
	Color        []AttachmentReference
	Resolve      []AttachmentReference
	DepthStencil *AttachmentReference
	Preserve     []int
	Offsets      SubpassOffsets
}

type DependencyPlan struct {
	Src int
	Dst int
	DependencyMasks
}

/**
 * @brief The finished, backend-neutral form of a render pass. References and
 * PreserveIndices are the shared arenas every SubpassPlan slices into.
 */
type RenderPassPlan struct {
	Attachments     []AttachmentPlan
	References      []AttachmentReference
	PreserveIndices []int
	Subpasses       []SubpassPlan
	Dependencies    []DependencyPlan
}

/**
 * @brief RenderPassPlanner is the first phase of the render pass build. It
 * resolves names and appends references into shared arenas, remembering only
 * offsets. Finalize is the second phase: it freezes the arenas and only then
 * turns offsets into slices, so no slice ever points at storage an append
 * could still move.
 */
type RenderPassPlanner struct {
	attachments  []AttachmentDesc
	plans        []AttachmentPlan
	subpassNames []string
	offsets      []SubpassOffsets
	refs         []AttachmentReference
	preserve     []int
	finalized    bool
	err          error
}

func NewRenderPassPlanner(attachments []AttachmentDesc) *RenderPassPlanner {
	p := &RenderPassPlanner{
		attachments: attachments,
		plans:       make([]AttachmentPlan, 0, len(attachments)),
	}
	for i, a := range attachments {
		if !a.LoadOp.Valid() || !a.StencilLoadOp.Valid() {
			p.err = core.Recoverablef("attachment %q: unsupported load op", a.Name)
			return p
		}
		if !a.StoreOp.Valid() || !a.StencilStoreOp.Valid() {
			p.err = core.Recoverablef("attachment %q: unsupported store op", a.Name)
			return p
		}
		if !a.Format.Valid() {
			p.err = core.Recoverablef("attachment %q: unsupported format %s", a.Name, a.Format)
			return p
		}
		if !a.InitialLayout.Valid() || !a.FinalLayout.Valid() {
			p.err = core.Recoverablef("attachment %q: unsupported layout", a.Name)
			return p
		}
		for _, prev := range attachments[:i] {
			if a.Name != "" && prev.Name == a.Name {
				p.err = core.Recoverablef("attachment %q declared twice", a.Name)
				return p
			}
		}
		p.plans = append(p.plans, AttachmentPlan{
			Format:         a.Format,
			Samples:        SampleCount(a.Samples.Count()),
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  a.StencilLoadOp,
			StencilStoreOp: a.StencilStoreOp,
			InitialLayout:  a.InitialLayout,
			FinalLayout:    a.FinalLayout,
		})
	}
	return p
}

func (p *RenderPassPlanner) attachmentIndex(name string) (int, error) {
	if name == "" {
		return AttachmentUnused, nil
	}
	for i, a := range p.attachments {
		if a.Name == name {
			return i, nil
		}
	}
	return AttachmentUnused, core.Recoverablef("attachment %q not found", name)
}

func (p *RenderPassPlanner) appendRefs(refs []AttachmentRef) (int, error) {
	offset := len(p.refs)
	for _, r := range refs {
		idx, err := p.attachmentIndex(r.Name)
		if err != nil {
			return noOffset, err
		}
		if !r.Layout.Valid() {
			return noOffset, core.Recoverablef("reference %q: unsupported layout", r.Name)
		}
		p.refs = append(p.refs, AttachmentReference{Attachment: idx, Layout: r.Layout})
	}
	return offset, nil
}

// AddSubpass appends the subpass's input, color, resolve and depth-stencil
// references (in that order) to the shared arena and its preserve indices to
// the preserve arena. The first error sticks; later calls are ignored.
func (p *RenderPassPlanner) AddSubpass(s SubpassDesc) error {
	if p.err != nil {
		return p.err
	}
	if p.finalized {
		p.err = core.Fatalf("render pass planner already finalized")
		return p.err
	}
	if s.Name != "" {
		for _, n := range p.subpassNames {
			if n == s.Name {
				p.err = core.Recoverablef("subpass %q declared twice", s.Name)
				return p.err
			}
		}
	}
	if len(s.Resolve) > 0 && len(s.Resolve) != len(s.Color) {
		p.err = core.Recoverablef("subpass %q: %d resolve references for %d color references",
			s.Name, len(s.Resolve), len(s.Color))
		return p.err
	}

	off := SubpassOffsets{
		Input: noOffset, Color: noOffset, Resolve: noOffset,
		DepthStencil: noOffset, Preserve: noOffset,
	}
	var err error
	if len(s.Input) > 0 {
		if off.Input, err = p.appendRefs(s.Input); err != nil {
			p.err = err
			return err
		}
		off.InputCount = len(s.Input)
	}
	if len(s.Color) > 0 {
		if off.Color, err = p.appendRefs(s.Color); err != nil {
			p.err = err
			return err
		}
		off.ColorCount = len(s.Color)
	}
	if len(s.Resolve) > 0 {
		if off.Resolve, err = p.appendRefs(s.Resolve); err != nil {
			p.err = err
			return err
		}
		off.ResolveCount = len(s.Resolve)
	}
	if s.DepthStencil != nil && s.DepthStencil.Name != "" {
		if off.DepthStencil, err = p.appendRefs([]AttachmentRef{*s.DepthStencil}); err != nil {
			p.err = err
			return err
		}
	}
	if len(s.Preserve) > 0 {
		off.Preserve = len(p.preserve)
		for _, name := range s.Preserve {
			// Vulkan has no unused entry in a preserve list.
			if name == "" {
				p.err = core.Recoverablef("subpass %q: empty preserve attachment name", s.Name)
				return p.err
			}
			idx, err := p.attachmentIndex(name)
			if err != nil {
				p.err = err
				return err
			}
			p.preserve = append(p.preserve, idx)
		}
		off.PreserveCnt = len(s.Preserve)
	}

	p.subpassNames = append(p.subpassNames, s.Name)
	p.offsets = append(p.offsets, off)
	return nil
}

func (p *RenderPassPlanner) subpassIndex(name string) (int, error) {
	if name == "" {
		return SubpassExternal, nil
	}
	for i, n := range p.subpassNames {
		if n == name {
			return i, nil
		}
	}
	return SubpassExternal, core.Recoverablef("subpass %q not found", name)
}

func arenaSlice[T any](arena []T, offset, count int) []T {
	if offset == noOffset || count == 0 {
		return nil
	}
	return arena[offset : offset+count : offset+count]
}

// Finalize freezes the arenas, resolves every recorded offset into a slice and
// translates the dependencies.
func (p *RenderPassPlanner) Finalize(dependencies []DependencyDesc) (*RenderPassPlan, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.finalized {
		return nil, core.Fatalf("render pass planner already finalized")
	}
	if len(p.refs) == 0 {
		return nil, core.Recoverablef("render pass has no attachment references")
	}
	p.finalized = true

	plan := &RenderPassPlan{
		Attachments:     p.plans,
		References:      p.refs,
		PreserveIndices: p.preserve,
		Subpasses:       make([]SubpassPlan, len(p.offsets)),
		Dependencies:    make([]DependencyPlan, 0, len(dependencies)),
	}
	for i, off := range p.offsets {
		sp := SubpassPlan{
			Input:    arenaSlice(plan.References, off.Input, off.InputCount),
			Color:    arenaSlice(plan.References, off.Color, off.ColorCount),
			Resolve:  arenaSlice(plan.References, off.Resolve, off.ResolveCount),
			Preserve: arenaSlice(plan.PreserveIndices, off.Preserve, off.PreserveCnt),
			Offsets:  off,
		}
		if off.DepthStencil != noOffset {
			sp.DepthStencil = &plan.References[off.DepthStencil]
		}
		plan.Subpasses[i] = sp
	}

	for _, d := range dependencies {
		src, err := p.subpassIndex(d.Src)
		if err != nil {
			return nil, err
		}
		dst, err := p.subpassIndex(d.Dst)
		if err != nil {
			return nil, err
		}
		masks, err := d.Mode.Masks()
		if err != nil {
			return nil, err
		}
		plan.Dependencies = append(plan.Dependencies, DependencyPlan{Src: src, Dst: dst, DependencyMasks: masks})
	}
	return plan, nil
}

// BuildRenderPassPlan runs both phases over complete descriptions.
func BuildRenderPassPlan(attachments []AttachmentDesc, subpasses []SubpassDesc, dependencies []DependencyDesc) (*RenderPassPlan, error) {
	p := NewRenderPassPlanner(attachments)
	for _, s := range subpasses {
		if err := p.AddSubpass(s); err != nil {
			return nil, err
		}
	}
	return p.Finalize(dependencies)
}

// ReferenceCount is the number of input, color, resolve and depth-stencil
// references summed over every subpass.
func (p *RenderPassPlan) ReferenceCount() int {
	n := 0
	for _, s := range p.Subpasses {
		n += len(s.Input) + len(s.Color) + len(s.Resolve)
		if s.DepthStencil != nil {
			n++
		}
	}
	return n
}
