package renderer

import (
	"testing"

	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateTextureReleasesStagingAfterRing(t *testing.T) {
	r, d := newTestRenderer(t)
	th, err := r.InsertTexture(&metadata.TextureDesc{
		Name: "albedo", Format: metadata.FormatRGBA8Unorm, Width: 4, Height: 4, MipLevels: 2,
		Usage: metadata.TextureUsageSampled | metadata.TextureUsageTransferDst,
	})
	require.NoError(t, err)

	require.NoError(t, r.BeginFrame(false))
	cb := r.CommandBuffer()
	err = r.UpdateTexture(th, cb, make([]byte, 10), 0, 0)
	assert.True(t, core.IsRecoverable(err), "wrong byte size")
	err = r.UpdateTexture(th, cb, make([]byte, 4), 2, 0)
	assert.True(t, core.IsRecoverable(err), "mip out of range")

	require.NoError(t, r.UpdateTexture(th, cb, make([]byte, 4*4*4), 0, 0))
	require.NoError(t, r.UpdateTexture(th, cb, make([]byte, 2*2*4), 1, 0))
	require.NoError(t, r.EndFrame(false))

	tex, err := r.Texture(th)
	require.NoError(t, err)
	assert.Equal(t, metadata.ImageLayoutFSReadOnly, tex.Layout(0, 0))
	assert.Equal(t, metadata.ImageLayoutFSReadOnly, tex.Layout(1, 0))
	assert.Contains(t, d.Commands(0), "barrier undefined -> transfer_dst mip 0+1 layer 0")
	assert.Contains(t, d.Commands(0), "copy buffer to image mip 1 layer 0 2x2")
	require.NoError(t, r.Sync())

	assert.True(t, r.Scheduler().IsScheduled(tex))
	assert.Equal(t, 2, d.Live("buffer"))

	// the uploads were recorded in frame 0 and may be read until frame 0
	// retires, which Sync guarantees once the ring has wrapped
	for i := 0; i < RingBufferSize-1; i++ {
		runFrame(t, r, false, nil)
		assert.Equal(t, 2, d.Live("buffer"), "frame %d", r.FrameCount())
	}
	runFrame(t, r, false, nil)
	assert.Zero(t, d.Live("buffer"))
	assert.False(t, r.Scheduler().IsScheduled(tex))
}

func TestStagingOutlivesLaterUploadFrame(t *testing.T) {
	r, d := newTestRenderer(t, soft.WithManualFences())
	th, err := r.InsertTexture(&metadata.TextureDesc{
		Name: "late", Format: metadata.FormatR8Unorm, Width: 2, Height: 2,
		Usage: metadata.TextureUsageSampled | metadata.TextureUsageTransferDst,
	})
	require.NoError(t, err)

	// Each frame retires only the slot its Sync waits on, so the other
	// submitted frames stay on the GPU.
	frame := func(record func(cb *CommandBuffer), ended func()) {
		require.NoError(t, r.BeginFrame(false))
		if record != nil {
			record(r.CommandBuffer())
		}
		require.NoError(t, r.EndFrame(false))
		if ended != nil {
			ended()
		}
		require.NoError(t, r.Present())
		d.Complete((r.RingBufferIndex() + 1) % RingBufferSize)
		require.NoError(t, r.Sync())
	}

	frame(nil, nil)
	uploadSlot := r.RingBufferIndex()
	frame(func(cb *CommandBuffer) {
		require.NoError(t, r.UpdateTexture(th, cb, make([]byte, 4), 0, 0))
	}, nil)
	assert.Equal(t, uint64(2), r.FrameCount())

	for r.FrameCount() < 4 {
		frame(nil, func() {
			if d.SlotInFlight(uploadSlot) {
				assert.Equal(t, 1, d.Live("buffer"), "staging released in frame %d while its upload is in flight", r.FrameCount())
			}
		})
	}
	assert.False(t, d.SlotInFlight(uploadSlot))
	frame(nil, nil)
	assert.Zero(t, d.Live("buffer"))
}

func TestUpdateTextureFailureReleasesStaging(t *testing.T) {
	r, d := newTestRenderer(t)
	th, err := r.InsertTexture(&metadata.TextureDesc{
		Name: "target", Format: metadata.FormatRGBA8Unorm, Width: 2, Height: 2,
		Usage: metadata.TextureUsageColorAttachment | metadata.TextureUsageTransferDst,
	})
	require.NoError(t, err)

	require.NoError(t, r.BeginFrame(false))
	cb := r.CommandBuffer()
	require.NoError(t, cb.PipelineImageMemoryBarrier(th, metadata.ImageLayoutUndefined, metadata.ImageLayoutColorAttachment, 0, 1, 0))

	// color attachment -> transfer dst has no barrier masks
	err = r.UpdateTexture(th, cb, make([]byte, 2*2*4), 0, 0)
	require.Error(t, err)
	assert.True(t, core.IsRecoverable(err))
	assert.Zero(t, d.Live("buffer"))

	tex, err := r.Texture(th)
	require.NoError(t, err)
	assert.False(t, r.Scheduler().IsScheduled(tex))
	assert.Equal(t, metadata.ImageLayoutColorAttachment, tex.Layout(0, 0))
	require.NoError(t, r.EndFrame(false))
	require.NoError(t, r.Sync())
}

func TestDeleteTextureDropsScheduledUpdate(t *testing.T) {
	r, d := newTestRenderer(t)
	th, err := r.InsertTexture(&metadata.TextureDesc{Name: "t", Format: metadata.FormatR8Unorm, Width: 2, Height: 2})
	require.NoError(t, err)

	require.NoError(t, r.BeginFrame(false))
	require.NoError(t, r.UpdateTexture(th, r.CommandBuffer(), make([]byte, 4), 0, 0))
	require.NoError(t, r.EndFrame(false))
	require.NoError(t, r.Sync())

	tex, _ := r.Texture(th)
	r.DeleteTexture(metadata.One(th))
	assert.False(t, r.Scheduler().IsScheduled(tex))
	assert.Zero(t, d.Live("buffer"))
	assert.Zero(t, d.Live("texture"))
}

func TestInsertValidation(t *testing.T) {
	r, _ := newTestRenderer(t)

	_, err := r.InsertTexture(&metadata.TextureDesc{Name: "empty", Format: metadata.FormatRGBA8Unorm})
	assert.True(t, core.IsRecoverable(err))
	_, err = r.InsertTexture(&metadata.TextureDesc{Name: "nofmt", Width: 1, Height: 1})
	assert.True(t, core.IsRecoverable(err))

	_, err = r.InsertGeometry(&metadata.GeometryDesc{Name: "odd", Layout: metadata.VertexLayout{Stride: 8}, VertexData: make([]byte, 12)})
	assert.True(t, core.IsRecoverable(err))

	_, err = r.InsertShader(&metadata.ShaderDesc{Name: "none"})
	assert.True(t, core.IsRecoverable(err))
	_, err = r.InsertShader(&metadata.ShaderDesc{
		Name:     "badsampler",
		Stages:   []metadata.ShaderCode{{Stage: metadata.ShaderStageFragment, Code: []byte{1}}},
		Textures: []metadata.TextureBinding{{Binding: 0, Sampler: metadata.SamplerCount}},
	})
	assert.True(t, core.IsRecoverable(err))
}

func TestUpdateVertices(t *testing.T) {
	r, _ := newTestRenderer(t)
	g := triangle(t, r, false)
	geo, err := r.Geometry(g)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), geo.VertexCount())

	require.NoError(t, r.UpdateVertices(g, 8, make([]byte, 8)))
	err = r.UpdateVertices(g, 20, make([]byte, 8))
	assert.True(t, core.IsRecoverable(err))
}
