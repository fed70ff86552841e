package metadata

import (
	"testing"

	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deferredAttachments() []AttachmentDesc {
	return []AttachmentDesc{
		Attachment("gbuffer0", FormatRGBA8Srgb).LoadOpClear().Layout(ImageLayoutUndefined, ImageLayoutFSReadOnly),
		Attachment("gbuffer1", FormatRGBA16Float).LoadOpClear().Layout(ImageLayoutUndefined, ImageLayoutFSReadOnly),
		Attachment("depth", FormatD24UnormS8Uint).LoadOpClear().Layout(ImageLayoutUndefined, ImageLayoutDepthStencilReadOnly),
		Attachment("light", FormatRGBA16Float).LoadOpClear().Layout(ImageLayoutUndefined, ImageLayoutFSReadOnly),
	}
}

func deferredSubpasses() []SubpassDesc {
	depth := Ref("depth", ImageLayoutDepthStencilAttachment)
	depthRO := Ref("depth", ImageLayoutDepthStencilReadOnly)
	return []SubpassDesc{
		{
			Name:         "geometry",
			Color:        []AttachmentRef{Ref("gbuffer0", ImageLayoutColorAttachment), Ref("gbuffer1", ImageLayoutColorAttachment)},
			DepthStencil: &depth,
			Preserve:     []string{"light"},
		},
		{
			Name:         "lighting",
			Input:        []AttachmentRef{Ref("gbuffer0", ImageLayoutFSReadOnly), Ref("gbuffer1", ImageLayoutFSReadOnly), Ref("depth", ImageLayoutDepthStencilReadOnly)},
			Color:        []AttachmentRef{Ref("light", ImageLayoutColorAttachment)},
			DepthStencil: &depthRO,
		},
	}
}

func TestBuildRenderPassPlanReferenceIntegrity(t *testing.T) {
	plan, err := BuildRenderPassPlan(deferredAttachments(), deferredSubpasses(), []DependencyDesc{
		{Src: "geometry", Dst: "lighting", Mode: DependencyModeColorToFragmentRead},
		{Src: "", Dst: "geometry", Mode: DependencyModeDefault},
	})
	require.NoError(t, err)

	require.Len(t, plan.Attachments, 4)
	require.Len(t, plan.Subpasses, 2)

	// 2 color + 1 depth, then 3 input + 1 color + 1 depth
	assert.Len(t, plan.References, 8)
	assert.Equal(t, len(plan.References), plan.ReferenceCount())

	geo := plan.Subpasses[0]
	assert.Equal(t, []AttachmentReference{{0, ImageLayoutColorAttachment}, {1, ImageLayoutColorAttachment}}, geo.Color)
	require.NotNil(t, geo.DepthStencil)
	assert.Equal(t, 2, geo.DepthStencil.Attachment)
	assert.Empty(t, geo.Input)
	assert.Equal(t, []int{3}, geo.Preserve)

	light := plan.Subpasses[1]
	assert.Equal(t, []AttachmentReference{
		{0, ImageLayoutFSReadOnly}, {1, ImageLayoutFSReadOnly}, {2, ImageLayoutDepthStencilReadOnly},
	}, light.Input)
	assert.Equal(t, []AttachmentReference{{3, ImageLayoutColorAttachment}}, light.Color)

	// every slice is a window of the shared arena at its recorded offset
	for _, sp := range plan.Subpasses {
		if len(sp.Input) > 0 {
			assert.Same(t, &plan.References[sp.Offsets.Input], &sp.Input[0])
		}
		if len(sp.Color) > 0 {
			assert.Same(t, &plan.References[sp.Offsets.Color], &sp.Color[0])
		}
		if sp.DepthStencil != nil {
			assert.Same(t, &plan.References[sp.Offsets.DepthStencil], sp.DepthStencil)
		}
	}
	assert.Equal(t, 0, geo.Offsets.Color)
	assert.Equal(t, 2, geo.Offsets.DepthStencil)
	assert.Equal(t, 3, light.Offsets.Input)
	assert.Equal(t, 6, light.Offsets.Color)
	assert.Equal(t, 7, light.Offsets.DepthStencil)

	require.Len(t, plan.Dependencies, 2)
	assert.Equal(t, 0, plan.Dependencies[0].Src)
	assert.Equal(t, 1, plan.Dependencies[0].Dst)
	assert.Equal(t, DependencyByRegion, plan.Dependencies[0].Flags)
	assert.Equal(t, SubpassExternal, plan.Dependencies[1].Src)
	assert.Equal(t, PipelineStageAllCommands, plan.Dependencies[1].DstStage)
}

func TestBuildRenderPassPlanManySubpassesKeepsSlicesValid(t *testing.T) {
	atts := []AttachmentDesc{Attachment("c", FormatRGBA8Unorm)}
	var subs []SubpassDesc
	for i := 0; i < 64; i++ {
		subs = append(subs, SubpassDesc{
			Name:  string(rune('A' + i)),
			Input: []AttachmentRef{Ref("c", ImageLayoutFSReadOnly)},
			Color: []AttachmentRef{Ref("c", ImageLayoutColorAttachment), Ref("", ImageLayoutUndefined)},
		})
	}
	plan, err := BuildRenderPassPlan(atts, subs, nil)
	require.NoError(t, err)
	assert.Len(t, plan.References, 64*3)
	assert.Equal(t, 64*3, plan.ReferenceCount())
	for i, sp := range plan.Subpasses {
		assert.Equal(t, i*3, sp.Offsets.Input)
		assert.Same(t, &plan.References[i*3+1], &sp.Color[0])
		assert.Equal(t, AttachmentUnused, sp.Color[1].Attachment)
	}
}

func TestBuildRenderPassPlanResolve(t *testing.T) {
	atts := []AttachmentDesc{
		Attachment("msaa", FormatRGBA8Unorm).SampleCount(4).LoadOpClear().StoreOpDontCare(),
		Attachment("resolved", FormatRGBA8Unorm).LoadOpDontCare(),
	}
	plan, err := BuildRenderPassPlan(atts, []SubpassDesc{{
		Name:    "main",
		Color:   []AttachmentRef{Ref("msaa", ImageLayoutColorAttachment)},
		Resolve: []AttachmentRef{Ref("resolved", ImageLayoutColorAttachment)},
	}}, nil)
	require.NoError(t, err)
	sp := plan.Subpasses[0]
	require.Len(t, sp.Resolve, 1)
	assert.Equal(t, 1, sp.Resolve[0].Attachment)
	assert.Equal(t, 1, sp.Offsets.Resolve)
	assert.Equal(t, SampleCount(4), plan.Attachments[0].Samples)

	_, err = BuildRenderPassPlan(atts, []SubpassDesc{{
		Name:    "main",
		Color:   []AttachmentRef{Ref("msaa", ImageLayoutColorAttachment)},
		Resolve: []AttachmentRef{Ref("resolved", ImageLayoutColorAttachment), Ref("msaa", ImageLayoutColorAttachment)},
	}}, nil)
	assert.True(t, core.IsRecoverable(err))
}

func TestBuildRenderPassPlanNameResolutionFailures(t *testing.T) {
	atts := []AttachmentDesc{Attachment("color", FormatRGBA8Unorm)}
	color := []AttachmentRef{Ref("color", ImageLayoutColorAttachment)}

	_, err := BuildRenderPassPlan(atts, []SubpassDesc{{Name: "main", Color: []AttachmentRef{Ref("missing", ImageLayoutColorAttachment)}}}, nil)
	assert.True(t, core.IsRecoverable(err))
	assert.Contains(t, err.Error(), "missing")

	_, err = BuildRenderPassPlan(atts, []SubpassDesc{{Name: "main", Color: color, Preserve: []string{"nope"}}}, nil)
	assert.True(t, core.IsRecoverable(err))

	_, err = BuildRenderPassPlan(atts, []SubpassDesc{{Name: "main", Color: color, Preserve: []string{""}}}, nil)
	require.Error(t, err)
	assert.True(t, core.IsRecoverable(err))
	assert.Contains(t, err.Error(), "preserve")

	missingDS := Ref("depth", ImageLayoutDepthStencilAttachment)
	_, err = BuildRenderPassPlan(atts, []SubpassDesc{{Name: "main", Color: color, DepthStencil: &missingDS}}, nil)
	assert.True(t, core.IsRecoverable(err))

	_, err = BuildRenderPassPlan(atts, []SubpassDesc{{Name: "main", Color: color}}, []DependencyDesc{{Src: "main", Dst: "post"}})
	assert.True(t, core.IsRecoverable(err))
	assert.Contains(t, err.Error(), "post")
}

func TestBuildRenderPassPlanDataErrors(t *testing.T) {
	color := []AttachmentRef{Ref("color", ImageLayoutColorAttachment)}
	sub := []SubpassDesc{{Name: "main", Color: color}}

	bad := Attachment("color", FormatRGBA8Unorm)
	bad.LoadOp = LoadOp(42)
	_, err := BuildRenderPassPlan([]AttachmentDesc{bad}, sub, nil)
	assert.True(t, core.IsRecoverable(err))

	bad = Attachment("color", FormatRGBA8Unorm)
	bad.StencilStoreOp = StoreOp(9)
	_, err = BuildRenderPassPlan([]AttachmentDesc{bad}, sub, nil)
	assert.True(t, core.IsRecoverable(err))

	dup := []AttachmentDesc{Attachment("color", FormatRGBA8Unorm), Attachment("color", FormatRGBA8Unorm)}
	_, err = BuildRenderPassPlan(dup, sub, nil)
	assert.True(t, core.IsRecoverable(err))

	_, err = BuildRenderPassPlan([]AttachmentDesc{Attachment("color", FormatRGBA8Unorm)}, sub,
		[]DependencyDesc{{Src: "", Dst: "main", Mode: DependencyMode(7)}})
	assert.True(t, core.IsRecoverable(err))
}

func TestBuildRenderPassPlanRejectsEmptyReferences(t *testing.T) {
	_, err := BuildRenderPassPlan([]AttachmentDesc{Attachment("color", FormatRGBA8Unorm)},
		[]SubpassDesc{{Name: "empty"}}, nil)
	assert.True(t, core.IsRecoverable(err))
	assert.Contains(t, err.Error(), "no attachment references")
}

func TestRenderPassPlannerFinalizeOnce(t *testing.T) {
	p := NewRenderPassPlanner([]AttachmentDesc{Attachment("color", FormatRGBA8Unorm)})
	require.NoError(t, p.AddSubpass(SubpassDesc{Name: "main", Color: []AttachmentRef{Ref("color", ImageLayoutColorAttachment)}}))
	_, err := p.Finalize(nil)
	require.NoError(t, err)

	_, err = p.Finalize(nil)
	assert.True(t, core.IsFatal(err))
	assert.Error(t, p.AddSubpass(SubpassDesc{Name: "late"}))
}

func TestDependencyModeMasks(t *testing.T) {
	m, err := DependencyModeDefault.Masks()
	require.NoError(t, err)
	assert.Equal(t, PipelineStageTopOfPipe, m.SrcStage)
	assert.Zero(t, m.SrcAccess)
	assert.Zero(t, m.Flags)
	assert.Equal(t, AccessInputAttachmentRead|AccessColorAttachmentRead|AccessColorAttachmentWrite|
		AccessDepthStencilAttachmentRead|AccessDepthStencilAttachmentWrite, m.DstAccess)

	m, err = DependencyModeColorToFragmentRead.Masks()
	require.NoError(t, err)
	assert.Equal(t, PipelineStageColorAttachmentOutput, m.SrcStage)
	assert.Equal(t, AccessColorAttachmentWrite, m.SrcAccess)
	assert.Equal(t, PipelineStageFragmentShader, m.DstStage)
	assert.Equal(t, AccessShaderRead, m.DstAccess)
	assert.Equal(t, DependencyByRegion, m.Flags)
}
