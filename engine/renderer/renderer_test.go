package renderer

import (
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T, opts ...soft.Option) (*Renderer, *soft.Driver) {
	t.Helper()
	d := soft.New(opts...)
	r := New(d, &Config{ApplicationName: "test", Width: 800, Height: 600, VSync: true})
	require.NoError(t, r.Initialize())
	t.Cleanup(func() {
		assert.NoError(t, r.Shutdown())
		assert.Empty(t, d.Misuse())
		assert.Zero(t, d.Live(""), "objects leaked past shutdown")
	})
	return r, d
}

func runFrame(t *testing.T, r *Renderer, present bool, record func(cb *CommandBuffer)) {
	t.Helper()
	require.NoError(t, r.BeginFrame(present))
	if record != nil {
		record(r.CommandBuffer())
	}
	require.NoError(t, r.EndFrame(present))
	require.NoError(t, r.Present())
	require.NoError(t, r.Sync())
}

func colorPass(t *testing.T, r *Renderer, format metadata.Format, final metadata.ImageLayout) metadata.RPHandle {
	t.Helper()
	color := metadata.Ref("color", metadata.ImageLayoutColorAttachment)
	rp, err := r.CreateRenderPass(
		[]metadata.AttachmentDesc{metadata.Attachment("color", format).LoadOpClear().Layout(metadata.ImageLayoutUndefined, final)},
		[]metadata.SubpassDesc{{Name: "main", Color: []metadata.AttachmentRef{color}}},
		[]metadata.DependencyDesc{{Src: "", Dst: "main"}},
	)
	require.NoError(t, err)
	return rp
}

func colorTexture(t *testing.T, r *Renderer, name string, w, h uint32) metadata.TextureHandle {
	t.Helper()
	th, err := r.InsertTexture(&metadata.TextureDesc{
		Name:   name,
		Format: metadata.FormatRGBA8Unorm,
		Width:  w,
		Height: h,
		Usage:  metadata.TextureUsageColorAttachment | metadata.TextureUsageSampled,
	})
	require.NoError(t, err)
	return th
}

func TestRenderToOffscreenImage(t *testing.T) {
	r, d := newTestRenderer(t)

	rp := colorPass(t, r, metadata.FormatRGBA8Unorm, metadata.ImageLayoutFSReadOnly)
	target := colorTexture(t, r, "target", 512, 512)
	fb, err := r.CreateFramebuffer(rp, []metadata.TextureHandle{target}, 512, 512)
	require.NoError(t, err)

	runFrame(t, r, false, func(cb *CommandBuffer) {
		require.NoError(t, cb.BeginRenderPass(rp, fb, []metadata.ClearValue{metadata.ClearColor(0, 0, 0, 1)}, true))
		assert.Equal(t, 0, cb.Subpass())
		require.NoError(t, cb.Draw(3, 1, 0, 0))
		require.NoError(t, cb.EndRenderPass())
		assert.Equal(t, -1, cb.Subpass())
	})

	rec, err := r.Framebuffer(fb)
	require.NoError(t, err)
	assert.Equal(t, uint32(512), rec.Width)
	assert.Equal(t, uint32(512), rec.Height)
	assert.True(t, rec.RenderPass.Equal(rp))

	assert.Contains(t, d.Commands(0), "begin render pass 512x512 clear=1")
	assert.Contains(t, d.Commands(0), "draw 3 x1")
	assert.Empty(t, d.Misuse())
}

func TestCreateFramebufferAttachmentLimit(t *testing.T) {
	r, d := newTestRenderer(t)
	rp := colorPass(t, r, metadata.FormatRGBA8Unorm, metadata.ImageLayoutFSReadOnly)

	textures := make([]metadata.TextureHandle, 6)
	for i := range textures {
		textures[i] = colorTexture(t, r, "t", 64, 64)
	}

	_, err := r.CreateFramebuffer(rp, textures, 64, 64, WithSwapChainImage(0))
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Zero(t, r.FramebufferCount())
	assert.Zero(t, d.Live("framebuffer"))

	cubes := make([]metadata.TextureHandle, 2)
	for i := range cubes {
		cubes[i], err = r.InsertTexture(&metadata.TextureDesc{
			Name: "env", TextureType: metadata.TextureTypeCube, Format: metadata.FormatRGBA16Float,
			Width: 32, Height: 32, Usage: metadata.TextureUsageColorAttachment,
		})
		require.NoError(t, err)
	}
	// every face of both cubes is twelve views
	_, err = r.CreateFramebuffer(rp, cubes, 32, 32, WithCubeMapFace(metadata.CubeMapFaceAll))
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Zero(t, r.FramebufferCount())
	assert.Zero(t, d.Live("framebuffer"))

	// a flat texture among all-face attachments is a data error
	_, err = r.CreateFramebuffer(rp, []metadata.TextureHandle{cubes[0], textures[0]}, 32, 32, WithCubeMapFace(metadata.CubeMapFaceAll))
	require.Error(t, err)
	assert.True(t, core.IsRecoverable(err))
	assert.Zero(t, r.FramebufferCount())
}

func TestCreateFramebufferCubeFace(t *testing.T) {
	r, _ := newTestRenderer(t)
	rp := colorPass(t, r, metadata.FormatRGBA16Float, metadata.ImageLayoutFSReadOnly)

	flat := colorTexture(t, r, "flat", 32, 32)
	_, err := r.CreateFramebuffer(rp, []metadata.TextureHandle{flat}, 32, 32, WithCubeMapFace(metadata.CubeMapFacePosY))
	require.Error(t, err)
	assert.True(t, core.IsRecoverable(err))

	cube, err := r.InsertTexture(&metadata.TextureDesc{
		Name: "env", TextureType: metadata.TextureTypeCube, Format: metadata.FormatRGBA16Float,
		Width: 32, Height: 32, Usage: metadata.TextureUsageColorAttachment,
	})
	require.NoError(t, err)
	fb, err := r.CreateFramebuffer(rp, []metadata.TextureHandle{cube}, 32, 32, WithCubeMapFace(metadata.CubeMapFacePosY))
	require.NoError(t, err)
	assert.True(t, fb.IsSet())
}

func TestCreateFramebufferInvalidHandles(t *testing.T) {
	r, _ := newTestRenderer(t)

	_, err := r.CreateFramebuffer(metadata.RPHandle{}, nil, 16, 16)
	require.Error(t, err)
	assert.True(t, core.IsRecoverable(err))
	assert.True(t, errors.Is(err, core.ErrInvalidHandle))

	rp := colorPass(t, r, metadata.FormatRGBA8Unorm, metadata.ImageLayoutFSReadOnly)
	_, err = r.CreateFramebuffer(rp, []metadata.TextureHandle{metadata.MakeHandle[metadata.TextureKind](9)}, 16, 16)
	assert.True(t, errors.Is(err, core.ErrInvalidHandle))

	_, err = r.CreateFramebuffer(rp, nil, 16, 16, WithSwapChainImage(5))
	assert.True(t, core.IsRecoverable(err))
}

func TestDeleteRenderPassTwice(t *testing.T) {
	r, d := newTestRenderer(t)
	rp := colorPass(t, r, metadata.FormatRGBA8Unorm, metadata.ImageLayoutFSReadOnly)
	require.Equal(t, 1, d.Live("render pass"))

	r.DeleteRenderPass(metadata.One(rp))
	r.DeleteRenderPass(metadata.One(rp))

	assert.Zero(t, d.Live("render pass"))
	assert.Empty(t, d.Misuse())
	_, err := r.RenderPassPlan(rp)
	assert.True(t, errors.Is(err, core.ErrInvalidHandle))

	// the freed slot is reused
	again := colorPass(t, r, metadata.FormatRGBA8Unorm, metadata.ImageLayoutFSReadOnly)
	assert.Equal(t, rp.Index(), again.Index())
	assert.Equal(t, 1, r.RenderPassCount())
}

func TestDeleteAll(t *testing.T) {
	r, d := newTestRenderer(t)
	for i := 0; i < 3; i++ {
		colorPass(t, r, metadata.FormatRGBA8Unorm, metadata.ImageLayoutFSReadOnly)
	}
	r.DeleteRenderPass(metadata.All[metadata.RenderPassKind]())
	assert.Zero(t, d.Live("render pass"))
	assert.Zero(t, r.RenderPassCount())
}

type swapChainTargets struct {
	r   *Renderer
	rp  metadata.RPHandle
	fbs []metadata.FBHandle
}

func (s *swapChainTargets) rebuild(width, height uint32) error {
	for _, fb := range s.fbs {
		s.r.DeleteFramebuffer(metadata.One(fb))
	}
	s.fbs = s.fbs[:0]
	for i := 0; i < s.r.SwapChainBufferCount(); i++ {
		fb, err := s.r.CreateFramebuffer(s.rp, nil, width, height, WithSwapChainImage(i))
		if err != nil {
			return err
		}
		s.fbs = append(s.fbs, fb)
	}
	return nil
}

func (s *swapChainTargets) draw(t *testing.T) {
	t.Helper()
	runFrame(t, s.r, true, func(cb *CommandBuffer) {
		image, err := s.r.AcquireSwapChainImage()
		require.NoError(t, err)
		require.NoError(t, cb.BeginRenderPass(s.rp, s.fbs[image], []metadata.ClearValue{metadata.ClearColor(0.1, 0.1, 0.1, 1)}, true))
		require.NoError(t, cb.EndRenderPass())
	})
}

func TestResizeSwapChainOrdering(t *testing.T) {
	r, d := newTestRenderer(t)
	targets := &swapChainTargets{r: r, rp: colorPass(t, r, metadata.FormatBGRA8Srgb, metadata.ImageLayoutPresentSrc)}
	w, h := r.SwapChainSize()
	require.NoError(t, targets.rebuild(w, h))
	r.OnSwapChainResized(targets.rebuild)

	targets.draw(t)
	targets.draw(t)

	mark := len(d.Events())
	require.NoError(t, r.ResizeSwapChain(1024, 768))
	events := d.Events()[mark:]

	lastView, oldSwapChain := -1, -1
	for i, e := range events {
		switch {
		case strings.HasPrefix(e, "create swapchain image view"):
			lastView = i
		case strings.HasPrefix(e, "destroy swapchain ") && !strings.HasPrefix(e, "destroy swapchain image view"):
			oldSwapChain = i
		}
	}
	require.NotEqual(t, -1, lastView)
	require.NotEqual(t, -1, oldSwapChain)
	assert.Greater(t, oldSwapChain, lastView, "old swapchain destroyed before the new views existed")

	fw, fh := r.SwapChainSize()
	assert.Equal(t, uint32(1024), fw)
	assert.Equal(t, uint32(768), fh)
	fb, err := r.Framebuffer(targets.fbs[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), fb.Width)

	targets.draw(t)
	targets.draw(t)
	assert.Empty(t, d.Misuse())
}

func TestStaleSwapChainFramebufferIsReported(t *testing.T) {
	d := soft.New()
	r := New(d, &Config{Width: 800, Height: 600})
	require.NoError(t, r.Initialize())
	defer r.Shutdown()

	rp := colorPass(t, r, metadata.FormatBGRA8Srgb, metadata.ImageLayoutPresentSrc)
	fb, err := r.CreateFramebuffer(rp, nil, 800, 600, WithSwapChainImage(0))
	require.NoError(t, err)

	// nobody rebuilds fb, so it still points at the destroyed views
	require.NoError(t, r.ResizeSwapChain(640, 480))

	require.NoError(t, r.BeginFrame(false))
	cb := r.CommandBuffer()
	require.NoError(t, cb.BeginRenderPass(rp, fb, nil, false))
	require.NoError(t, cb.EndRenderPass())
	err = r.EndFrame(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "used after destroy")
	assert.NotEmpty(t, d.Misuse())
}

func TestRingBoundsFramesInFlight(t *testing.T) {
	r, d := newTestRenderer(t, soft.WithManualFences())

	runFrame(t, r, false, nil)
	runFrame(t, r, false, nil)
	assert.Equal(t, 2, d.InFlight())
	assert.Equal(t, 2, r.RingBufferIndex())

	done := make(chan error, 1)
	go func() {
		if err := r.BeginFrame(false); err != nil {
			done <- err
			return
		}
		if err := r.EndFrame(false); err != nil {
			done <- err
			return
		}
		if err := r.Present(); err != nil {
			done <- err
			return
		}
		done <- r.Sync()
	}()

	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"sync returned while the oldest frame was still on the GPU")
	assert.Equal(t, RingBufferSize, d.InFlight())

	d.Complete(0)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sync did not return after the fence completed")
	}
	assert.Equal(t, 0, r.RingBufferIndex())
	assert.Equal(t, uint64(3), r.FrameCount())
}

func TestFenceTimeout(t *testing.T) {
	d := soft.New(soft.WithManualFences())
	r := New(d, &Config{Width: 64, Height: 64, FenceTimeout: 20 * time.Millisecond})
	require.NoError(t, r.Initialize())
	defer r.Shutdown()

	for i := 0; i < 2; i++ {
		runFrame(t, r, false, nil)
	}
	require.NoError(t, r.BeginFrame(false))
	require.NoError(t, r.EndFrame(false))
	require.NoError(t, r.Present())
	err := r.Sync()
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestFrameStateErrors(t *testing.T) {
	r, _ := newTestRenderer(t)

	for name, fn := range map[string]func() error{
		"EndFrame":   func() error { return r.EndFrame(false) },
		"Present":    func() error { return r.Present() },
		"Sync":       func() error { return r.Sync() },
		"Draw":       func() error { return r.CommandBuffer().Draw(3, 1, 0, 0) },
		"Acquire":    func() error { _, err := r.AcquireSwapChainImage(); return err },
		"Dispatch":   func() error { return r.CommandBuffer().Dispatch(1, 1, 1) },
		"SetScissor": func() error { return r.CommandBuffer().SetScissor([]metadata.Rect{{Width: 1, Height: 1}}) },
	} {
		err := fn()
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, core.ErrFrameState), name)
		assert.True(t, core.IsFatal(err), name)
	}

	require.NoError(t, r.BeginFrame(false))
	err := r.BeginFrame(false)
	assert.True(t, errors.Is(err, core.ErrFrameState))

	err = r.EndFrame(true)
	assert.True(t, errors.Is(err, core.ErrFrameState), "present without an acquired image")
	require.NoError(t, r.EndFrame(false))

	err = r.ResizeSwapChain(10, 10)
	assert.True(t, errors.Is(err, core.ErrFrameState))
	require.NoError(t, r.Sync())
	assert.Equal(t, FrameStateIdle, r.State())
}

func TestUninitializedRenderer(t *testing.T) {
	r := New(soft.New(), &Config{})
	err := r.BeginFrame(false)
	assert.True(t, errors.Is(err, core.ErrFrameState))
	assert.NoError(t, r.Shutdown())
}

func TestPresentOutOfDateIsSwallowed(t *testing.T) {
	r, d := newTestRenderer(t)

	d.InjectOutOfDate(1)
	require.NoError(t, r.BeginFrame(true))
	assert.Equal(t, 0, r.SwapChainImageIndex())
	require.NoError(t, r.EndFrame(true))
	require.NoError(t, r.Present())
	assert.True(t, r.NeedsResize())
	require.NoError(t, r.Sync())
	assert.Equal(t, -1, r.SwapChainImageIndex())

	require.NoError(t, r.ResizeSwapChain(800, 600))
	assert.False(t, r.NeedsResize())
}

func TestAcquireOutOfDateDropsFrame(t *testing.T) {
	r, d := newTestRenderer(t)

	d.InjectAcquireOutOfDate(1)
	err := r.BeginFrame(true)
	require.Error(t, err)
	assert.True(t, core.IsRecoverable(err))
	assert.True(t, errors.Is(err, core.ErrSurfaceOutOfDate))
	assert.True(t, r.NeedsResize())
	assert.Equal(t, FrameStateIdle, r.State())

	require.NoError(t, r.ResizeSwapChain(640, 480))
	require.NoError(t, r.BeginFrame(true))
	require.NoError(t, r.EndFrame(true))
	require.NoError(t, r.Present())
	require.NoError(t, r.Sync())
}

func TestResizeToZeroIsSkipped(t *testing.T) {
	r, d := newTestRenderer(t)
	mark := len(d.Events())
	require.NoError(t, r.ResizeSwapChain(0, 600))
	assert.Len(t, d.Events(), mark)
}

func TestSubmitPlansFollowQueueFamilies(t *testing.T) {
	for _, tc := range []struct {
		name     string
		families metadata.QueueFamilies
		present  bool
		submit   metadata.SubmitPlan
		presents int
	}{
		{
			name:     "shared queue presenting",
			families: metadata.QueueFamilies{Graphics: 0, Present: 0},
			present:  true,
			submit:   metadata.SubmitPlan{WaitAcquire: true, WaitStage: metadata.PipelineStageColorAttachmentOutput, SignalFence: true},
			presents: 1,
		},
		{
			name:     "separate present queue",
			families: metadata.QueueFamilies{Graphics: 0, Present: 1},
			present:  true,
			submit:   metadata.SubmitPlan{WaitAcquire: true, WaitStage: metadata.PipelineStageColorAttachmentOutput, SignalSubmit: true, SignalFence: true},
			presents: 1,
		},
		{
			name:     "offscreen frame",
			families: metadata.QueueFamilies{Graphics: 0, Present: 1},
			submit:   metadata.SubmitPlan{SignalSubmit: true, SignalFence: true},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, d := newTestRenderer(t, soft.WithQueueFamilies(tc.families))
			runFrame(t, r, tc.present, nil)
			require.Len(t, d.Submits(), 1)
			assert.Equal(t, tc.submit, d.Submits()[0])
			assert.Len(t, d.Presents(), tc.presents)
			if tc.presents > 0 {
				assert.Equal(t, !tc.families.IsSameQueue(), d.Presents()[0].WaitSubmit)
			}
		})
	}
}

func TestOnMinimizedFlushesPendingPresent(t *testing.T) {
	r, d := newTestRenderer(t)
	require.NoError(t, r.BeginFrame(true))
	require.NoError(t, r.EndFrame(true))

	require.NoError(t, r.OnMinimized())
	assert.Equal(t, FrameStatePresented, r.State())
	assert.Len(t, d.Presents(), 1)
	require.NoError(t, r.Sync())
}

func TestImmutableSampler(t *testing.T) {
	d := soft.New()
	r := New(d, &Config{Width: 64, Height: 64, Sampling: metadata.SamplerOptions{Anisotropy: 8}})
	require.NoError(t, r.Initialize())
	defer r.Shutdown()

	s, err := r.ImmutableSampler(metadata.SamplerShadow)
	require.NoError(t, err)
	assert.Equal(t, metadata.CompareOpLessOrEqual, s.Desc().CompareOp)

	s, err = r.ImmutableSampler(metadata.SamplerAniso)
	require.NoError(t, err)
	assert.Equal(t, float32(8), s.Desc().MaxAnisotropy)

	_, err = r.ImmutableSampler(metadata.SamplerCount)
	assert.True(t, core.IsRecoverable(err))
}
