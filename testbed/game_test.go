package testbed

import (
	"context"
	"testing"

	"github.com/spaghettifunk/anima-cgi/engine"
	"github.com/spaghettifunk/anima-cgi/engine/config"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/shaderc"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCompiler stands in for glslc; the soft driver never looks at bytecode.
type stubCompiler struct {
	stages  []metadata.ShaderStage
	defines []map[string]string
}

func (c *stubCompiler) Compile(ctx context.Context, source []byte, defines map[string]string, entryPoint string, target shaderc.Target) ([]byte, error) {
	c.stages = append(c.stages, target.Stage)
	c.defines = append(c.defines, defines)
	return []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 0, 0}, nil
}

func TestTestbedRunsHeadless(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendSoft
	d := soft.New()
	compiler := &stubCompiler{}

	tg := NewTestGame()
	e, err := engine.New(tg.Game, engine.Options{
		Config:    cfg,
		Driver:    d,
		Compiler:  compiler,
		MaxFrames: 8,
		Workers:   2,
	})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	assert.Equal(t, []metadata.ShaderStage{metadata.ShaderStageVertex, metadata.ShaderStageFragment}, compiler.stages)
	assert.Len(t, tg.framebuffers, e.Renderer().SwapChainBufferCount())
	assert.Equal(t, 1, d.Live("pipeline"))

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(8), e.Renderer().FrameCount())
	assert.Greater(t, tg.time, 0.0)

	// A resize rebuilds the swapchain framebuffers through the listener.
	require.NoError(t, e.Renderer().ResizeSwapChain(640, 480))
	fb, err := e.Renderer().Framebuffer(tg.framebuffers[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(640), fb.Width)

	require.NoError(t, e.Shutdown())
	assert.Empty(t, d.Misuse())
	assert.Zero(t, d.Live(""))
}

func TestShaderReloadSwapsPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendSoft
	d := soft.New()
	compiler := &stubCompiler{}

	tg := NewTestGame()
	e, err := engine.New(tg.Game, engine.Options{
		Config:    cfg,
		Driver:    d,
		Compiler:  compiler,
		AssetsDir: "shaders",
		MaxFrames: 1,
		Workers:   1,
	})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Same(t, e.Assets(), tg.shaders)

	old := tg.pipeline
	require.NoError(t, tg.reloadPipeline("triangle.frag"))
	assert.NotEqual(t, old, tg.pipeline)
	assert.Equal(t, 1, d.Live("pipeline"))
	_, err = e.Renderer().Pipeline(old)
	assert.Error(t, err)

	require.NoError(t, e.Run(context.Background()))
	require.NoError(t, e.Shutdown())
	assert.Zero(t, d.Live(""))
}

func TestVertexColorStaysInRange(t *testing.T) {
	for i := range trianglePositions {
		for _, tm := range []float64{0, 0.5, 10, 1234.5} {
			c := vertexColor(i, tm)
			for _, v := range c {
				assert.GreaterOrEqual(t, v, float32(0))
				assert.LessOrEqual(t, v, float32(1))
			}
		}
	}
}

func TestWriteVertexLayout(t *testing.T) {
	tg := NewTestGame()
	tg.fillVertices(0)
	assert.Len(t, tg.vertices, len(trianglePositions)*int(vertexLayout.Stride))
	assert.Equal(t, uint32(3), (&metadata.GeometryDesc{Layout: vertexLayout, VertexData: tg.vertices}).VertexCount())
}
