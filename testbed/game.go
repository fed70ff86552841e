package testbed

import (
	"context"
	"embed"
	"encoding/binary"
	"io/fs"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/anima-cgi/engine"
	"github.com/spaghettifunk/anima-cgi/engine/assets"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

// Used when the engine has no assets directory to watch.
//
//go:embed shaders/*.vert shaders/*.frag
var embeddedShaders embed.FS

// position (vec2) + color (vec3)
const vertexStride = 5 * 4

var vertexLayout = metadata.VertexLayout{
	Stride: vertexStride,
	Attributes: []metadata.VertexAttribute{
		{Location: 0, Format: metadata.FormatRG32Float, Offset: 0},
		{Location: 1, Format: metadata.FormatRGB32Float, Offset: 2 * 4},
	},
}

var trianglePositions = []mgl32.Vec2{
	{0.0, -0.6},
	{0.6, 0.5},
	{-0.6, 0.5},
}

// TestGame draws a clear pass with one spinning triangle into the swapchain.
type TestGame struct {
	*engine.Game

	engine   *engine.Engine
	renderer *renderer.Renderer

	shaders *assets.AssetManager

	rp           metadata.RPHandle
	framebuffers []metadata.FBHandle
	shader       metadata.ShaderHandle
	pipeline     metadata.PipelineHandle
	// One vertex buffer per frame in flight, so the CPU never writes what
	// the GPU may still be reading.
	geometry [renderer.RingBufferSize]metadata.GeometryHandle
	vertices []byte

	time   float64
	aspect float32
	stats  *statsReporter
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game:     &engine.Game{Name: "testbed"},
		vertices: make([]byte, len(trianglePositions)*vertexStride),
		aspect:   1,
	}
	tg.State = tg
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogInfo("initializing testbed...")
	g.engine = e
	g.renderer = e.Renderer()

	format := g.renderer.Driver().SwapChain().Format
	rp, err := g.renderer.CreateRenderPass(
		[]metadata.AttachmentDesc{
			metadata.Attachment("color", format).LoadOpClear().Layout(metadata.ImageLayoutUndefined, metadata.ImageLayoutPresentSrc),
		},
		[]metadata.SubpassDesc{
			{Name: "main", Color: []metadata.AttachmentRef{metadata.Ref("color", metadata.ImageLayoutColorAttachment)}},
		},
		[]metadata.DependencyDesc{{Src: "", Dst: "main", Mode: metadata.DependencyModeDefault}},
	)
	if err != nil {
		return err
	}
	g.rp = rp

	if g.shaders = e.Assets(); g.shaders == nil {
		sub, err := fs.Sub(embeddedShaders, "shaders")
		if err != nil {
			return err
		}
		if g.shaders, err = assets.NewAssetManagerFS(sub, e.Compiler()); err != nil {
			return err
		}
	}
	if g.shader, g.pipeline, err = g.createPipeline(); err != nil {
		return err
	}

	for i := range g.geometry {
		g.fillVertices(0)
		h, err := g.renderer.InsertGeometry(&metadata.GeometryDesc{
			Name:       "triangle",
			Layout:     vertexLayout,
			VertexData: g.vertices,
		})
		if err != nil {
			return err
		}
		g.geometry[i] = h
	}

	w, h := g.renderer.SwapChainSize()
	if err := g.rebuildFramebuffers(w, h); err != nil {
		return err
	}
	g.renderer.OnSwapChainResized(g.rebuildFramebuffers)

	g.stats = &statsReporter{game: g}
	g.stats.Bind(g.renderer.Scheduler(), g.stats)
	g.stats.Schedule(statsFrames)
	return nil
}

func (g *TestGame) createPipeline() (metadata.ShaderHandle, metadata.PipelineHandle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vert, err := g.shaders.LoadShader(ctx, "triangle.vert", nil)
	if err != nil {
		return metadata.ShaderHandle{}, metadata.PipelineHandle{}, err
	}
	var defines map[string]string
	if g.renderer.Driver().SwapChain().Format.IsSrgb() {
		// Colors are authored in sRGB space; the swapchain encodes on write.
		defines = map[string]string{"GAMMA": "2.2"}
	}
	frag, err := g.shaders.LoadShader(ctx, "triangle.frag", defines)
	if err != nil {
		return metadata.ShaderHandle{}, metadata.PipelineHandle{}, err
	}

	shader, err := g.renderer.InsertShader(&metadata.ShaderDesc{
		Name:             "triangle",
		Stages:           []metadata.ShaderCode{vert, frag},
		PushConstantSize: 16,
	})
	if err != nil {
		return metadata.ShaderHandle{}, metadata.PipelineHandle{}, err
	}
	pipeline, err := g.renderer.InsertPipeline(&metadata.PipelineDesc{
		Name:       "triangle",
		Shader:     shader,
		RenderPass: g.rp,
		Subpass:    0,
		Vertex:     vertexLayout,
		Topology:   metadata.TopologyTriangleList,
		Cull:       metadata.CullModeNone,
		Blend:      metadata.BlendModeOff,
		Samples:    1,
	})
	if err != nil {
		g.renderer.DeleteShader(metadata.One(shader))
		return metadata.ShaderHandle{}, metadata.PipelineHandle{}, err
	}
	return shader, pipeline, nil
}

// reloadPipeline swaps in a pipeline built from the current shader sources.
// A shader that fails to compile keeps the old pipeline running.
func (g *TestGame) reloadPipeline(changed string) error {
	shader, pipeline, err := g.createPipeline()
	if core.IsRecoverable(err) {
		core.LogError("shader %s: %v", changed, err)
		return nil
	}
	if err != nil {
		return err
	}
	if err := g.renderer.WaitIdle(); err != nil {
		return err
	}
	g.renderer.DeletePipeline(metadata.One(g.pipeline))
	g.renderer.DeleteShader(metadata.One(g.shader))
	g.shader, g.pipeline = shader, pipeline
	core.LogInfo("shader %s reloaded", changed)
	return nil
}

func (g *TestGame) rebuildFramebuffers(width, height uint32) error {
	for _, fb := range g.framebuffers {
		g.renderer.DeleteFramebuffer(metadata.One(fb))
	}
	g.framebuffers = g.framebuffers[:0]
	for i := 0; i < g.renderer.SwapChainBufferCount(); i++ {
		fb, err := g.renderer.CreateFramebuffer(g.rp, nil, width, height, renderer.WithSwapChainImage(i))
		if err != nil {
			return err
		}
		g.framebuffers = append(g.framebuffers, fb)
	}
	core.LogDebug("testbed: %d swapchain framebuffers at %dx%d", len(g.framebuffers), width, height)
	return nil
}

// fillVertices writes the triangle with colors cycling over time.
func (g *TestGame) fillVertices(t float64) {
	for i, p := range trianglePositions {
		g.writeVertex(i, p, vertexColor(i, t))
	}
}

func vertexColor(i int, t float64) mgl32.Vec3 {
	phase := t + float64(i)*2*math.Pi/3
	return mgl32.Vec3{
		float32(0.5 + 0.5*math.Sin(phase)),
		float32(0.5 + 0.5*math.Sin(phase+2*math.Pi/3)),
		float32(0.5 + 0.5*math.Sin(phase+4*math.Pi/3)),
	}
}

func (g *TestGame) writeVertex(i int, p mgl32.Vec2, c mgl32.Vec3) {
	v := g.vertices[i*vertexStride:]
	for j, f := range []float32{p.X(), p.Y(), c.X(), c.Y(), c.Z()} {
		binary.LittleEndian.PutUint32(v[j*4:], math.Float32bits(f))
	}
}

func (g *TestGame) Update(deltaTime float64) error {
	g.time += deltaTime

	select {
	case changed := <-g.shaders.Changes():
		if err := g.reloadPipeline(changed); err != nil {
			return err
		}
	default:
	}

	// Vertex colors are prepared on the workers, then copied into the
	// buffer of the ring slot this frame records into.
	t := g.time
	if err := g.engine.Jobs().ParallelRange(context.Background(), len(trianglePositions), func(begin, end int) {
		for i := begin; i < end; i++ {
			g.writeVertex(i, trianglePositions[i], vertexColor(i, t))
		}
	}); err != nil {
		return err
	}
	return g.renderer.UpdateVertices(g.geometry[g.renderer.RingBufferIndex()], 0, g.vertices)
}

func (g *TestGame) Render(cb *renderer.CommandBuffer, deltaTime float64) error {
	image, err := g.renderer.AcquireSwapChainImage()
	if err != nil {
		return err
	}
	if image >= len(g.framebuffers) {
		return core.Fatalf("swapchain image %d has no framebuffer", image)
	}

	clear := []metadata.ClearValue{metadata.ClearColor(0.05, 0.05, 0.08, 1)}
	if err := cb.BeginRenderPass(g.rp, g.framebuffers[image], clear, true); err != nil {
		return err
	}
	if err := cb.BindPipeline(g.pipeline); err != nil {
		return err
	}

	push := make([]byte, 16)
	binary.LittleEndian.PutUint32(push[0:], math.Float32bits(float32(g.time)))
	binary.LittleEndian.PutUint32(push[4:], math.Float32bits(g.aspect))
	if err := cb.PushConstants(g.pipeline, metadata.ShaderStageVertex|metadata.ShaderStageFragment, 0, push); err != nil {
		return err
	}

	geometry := g.geometry[g.renderer.RingBufferIndex()]
	if err := cb.BindVertexBuffers(geometry); err != nil {
		return err
	}
	if err := cb.Draw(uint32(len(trianglePositions)), 1, 0, 0); err != nil {
		return err
	}
	return cb.EndRenderPass()
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	if height > 0 {
		g.aspect = float32(width) / float32(height)
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("testbed shutting down after %.1fs", g.time)
	// The renderer releases everything left in its tables.
	return nil
}

const statsFrames = 600

// statsReporter logs resource counts every few hundred frames through the
// renderer's deferred update list.
type statsReporter struct {
	renderer.Scheduled
	game *TestGame
}

func (s *statsReporter) UpdateScheduled() bool {
	r := s.game.renderer
	w, h := r.SwapChainSize()
	core.LogDebug("frame %d: %dx%d, %d render passes, %d framebuffers",
		r.FrameCount(), w, h, r.RenderPassCount(), r.FramebufferCount())
	s.Schedule(statsFrames)
	return false
}
