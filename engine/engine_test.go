package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-cgi/engine/config"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGame struct {
	initialized bool
	updates     int
	renders     int
	resizes     [][2]uint32
	shutdown    bool
}

func (g *recordingGame) game() *Game {
	return &Game{
		Name: "recording",
		FnInitialize: func(e *Engine) error {
			g.initialized = e.Renderer() != nil && e.Jobs() != nil
			return nil
		},
		FnUpdate: func(float64) error {
			g.updates++
			return nil
		},
		FnRender: func(cb *renderer.CommandBuffer, _ float64) error {
			g.renders++
			return nil
		},
		FnOnResize: func(w, h uint32) error {
			g.resizes = append(g.resizes, [2]uint32{w, h})
			return nil
		},
		FnShutdown: func() error {
			g.shutdown = true
			return nil
		},
	}
}

func headless(frames uint64) Options {
	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendSoft
	cfg.Application.Width = 320
	cfg.Application.Height = 240
	return Options{Config: cfg, MaxFrames: frames, Workers: 2}
}

func TestHeadlessRun(t *testing.T) {
	g := &recordingGame{}
	e, err := New(g.game(), headless(5))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.True(t, g.initialized)
	assert.Equal(t, [][2]uint32{{320, 240}}, g.resizes)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(5), e.Frames())
	assert.Equal(t, uint64(5), e.Renderer().FrameCount())
	assert.Equal(t, 5, g.updates)
	assert.Equal(t, 5, g.renders)

	require.NoError(t, e.Shutdown())
	assert.True(t, g.shutdown)
	assert.Equal(t, EngineStageShutdown, e.Stage())
}

func TestResizeAppliedBeforeNextFrame(t *testing.T) {
	g := &recordingGame{}
	d := soft.New()
	opts := headless(2)
	opts.Driver = d
	e, err := New(g.game(), opts)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	e.onResized(640, 480)
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, [][2]uint32{{320, 240}, {640, 480}}, g.resizes)
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(640), w)
	assert.Equal(t, uint32(480), h)
	assert.Equal(t, uint32(640), d.SwapChain().Width)
}

func TestMinimizeSuspendsFrames(t *testing.T) {
	g := &recordingGame{}
	e, err := New(g.game(), headless(1))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	e.onMinimized(true)
	assert.True(t, e.isSuspended)
	e.onMinimized(false)
	assert.False(t, e.isSuspended)
	assert.True(t, e.pendingResize)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 1, g.renders)
}

func TestRunStopsOnCancel(t *testing.T) {
	g := &recordingGame{}
	e, err := New(g.game(), headless(0))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	e.gameInstance.FnUpdate = func(float64) error {
		g.updates++
		if g.updates == 3 {
			cancel()
		}
		return nil
	}
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, 3, g.updates)
}

func TestGameErrorStopsRun(t *testing.T) {
	g := &recordingGame{}
	e, err := New(g.game(), headless(10))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	e.gameInstance.FnUpdate = func(float64) error {
		return core.Recoverablef("asset missing")
	}
	err = e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}

func TestApplyConfigChangesLogLevel(t *testing.T) {
	g := &recordingGame{}
	e, err := New(g.game(), headless(1))
	require.NoError(t, err)
	defer core.SetLogLevel(core.LogLevelInfo)

	next := *e.Config()
	next.Log.Level = "error"
	e.applyConfig(&next)
	assert.Equal(t, core.LogLevelError, core.GetLogLevel())
	assert.Equal(t, "error", e.Config().Log.Level)
}

func TestInvalidConfigRejected(t *testing.T) {
	opts := headless(1)
	opts.Config.Renderer.Backend = "metal"
	_, err := New((&recordingGame{}).game(), opts)
	require.Error(t, err)
	assert.True(t, core.IsRecoverable(err))
}

func TestAssetsDirIndexedAndWatched(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tri.vert"), []byte("void main(){}"), 0o644))

	opts := headless(3)
	opts.AssetsDir = dir
	e, err := New((&recordingGame{}).game(), opts)
	require.NoError(t, err)
	assert.Nil(t, e.Assets())
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	require.NotNil(t, e.Assets())
	assert.Len(t, e.Assets().Assets(), 1)
	// The watcher stops with the run.
	require.NoError(t, e.Run(context.Background()))
}

func TestMissingAssetsDirFailsInitialize(t *testing.T) {
	opts := headless(1)
	opts.AssetsDir = filepath.Join(t.TempDir(), "missing")
	e, err := New((&recordingGame{}).game(), opts)
	require.NoError(t, err)
	defer e.Shutdown()
	require.Error(t, e.Initialize())
}
