package engine

import (
	"context"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-cgi/engine/assets"
	"github.com/spaghettifunk/anima-cgi/engine/config"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/platform"
	"github.com/spaghettifunk/anima-cgi/engine/renderer"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/shaderc"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/soft"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/systems"
	"golang.org/x/sync/errgroup"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine has released everything
	EngineStageShutdown
)

// How often frame metrics are logged.
const metricsInterval = 5 * time.Second

// Engine owns every subsystem and the order they start and stop in. There
// are no package level singletons; everything a game needs is reached
// through the Engine passed to its Initialize callback.
type Engine struct {
	currentStage Stage
	gameInstance *Game
	opts         Options
	cfg          *config.Config
	runID        uuid.UUID

	// platform is nil when running headless.
	platform *platform.Platform
	renderer *renderer.Renderer
	jobs     *systems.JobSystem
	watcher  *config.Watcher
	compiler shaderc.Compiler
	// assets is nil unless Options.AssetsDir is set.
	assets *assets.AssetManager

	clock         *core.Clock
	metrics       *core.Metrics
	lastTime      float64
	lastReport    float64
	frames        uint64
	isSuspended   bool
	pendingResize bool
	width         uint32
	height        uint32
}

func New(g *Game, opts Options) (*Engine, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(cfg.LogLevel())

	compiler := opts.Compiler
	if compiler == nil {
		compiler = shaderc.NewCache(shaderc.NewGLSLC())
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		opts:         opts,
		cfg:          cfg,
		runID:        uuid.New(),
		compiler:     compiler,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        cfg.Application.Width,
		height:       cfg.Application.Height,
	}
	core.LogInfo("engine run %s: %s, backend %s", e.runID, cfg.Application.Name, cfg.Renderer.Backend)
	return e, nil
}

func (e *Engine) newDriver() (driver.Driver, error) {
	if e.opts.Driver != nil {
		return e.opts.Driver, nil
	}
	switch e.cfg.Renderer.Backend {
	case config.BackendSoft:
		return soft.New(), nil
	case config.BackendVulkan:
		p := platform.New()
		app := e.cfg.Application
		if err := p.Startup(app.Name, app.X, app.Y, app.Width, app.Height); err != nil {
			return nil, err
		}
		p.OnResize(e.onResized)
		p.OnMinimize(e.onMinimized)
		e.platform = p
		return vulkan.New(p.Window), nil
	default:
		return nil, core.Recoverablef("unknown renderer backend %q", e.cfg.Renderer.Backend)
	}
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return core.Fatalf("engine initialized twice")
	}
	e.currentStage = EngineStageInitializing

	drv, err := e.newDriver()
	if err != nil {
		return err
	}
	if e.platform != nil {
		e.width, e.height = e.platform.FramebufferSize()
	}

	rc := e.cfg.Renderer
	e.renderer = renderer.New(drv, &renderer.Config{
		ApplicationName: e.cfg.Application.Name,
		Width:           e.width,
		Height:          e.height,
		VSync:           rc.VSync,
		Debug:           rc.Debug,
		Sampling: metadata.SamplerOptions{
			Trilinear:  rc.Trilinear,
			Anisotropy: rc.Anisotropy,
		},
		FenceTimeout: rc.FenceTimeout.Duration,
	})
	if err := e.renderer.Initialize(); err != nil {
		return err
	}
	e.width, e.height = e.renderer.SwapChainSize()

	workers := e.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}
	if e.jobs, err = systems.NewJobSystem(workers, 64); err != nil {
		return err
	}

	if e.opts.WatchConfig && e.opts.ConfigPath != "" {
		if e.watcher, err = config.NewWatcher(e.opts.ConfigPath); err != nil {
			// Running without reload is fine.
			core.LogWarn("configuration reload disabled: %v", err)
		}
	}

	if e.opts.AssetsDir != "" {
		if e.assets, err = assets.NewAssetManager(e.opts.AssetsDir, e.compiler); err != nil {
			return err
		}
	}

	if fn := e.gameInstance.FnInitialize; fn != nil {
		if err := fn(e); err != nil {
			return core.WrapFatal(err, "initializing %s", e.gameInstance.Name)
		}
	}
	if fn := e.gameInstance.FnOnResize; fn != nil {
		if err := fn(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives frames on the calling goroutine, which must be the main thread
// when a window is open, until the window closes, ctx is cancelled,
// MaxFrames is reached or a frame fails.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return core.Fatalf("engine run in stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	grp, gctx := errgroup.WithContext(runCtx)

	var updates <-chan *config.Config
	if e.watcher != nil {
		updates = e.watcher.Updates()
		grp.Go(func() error {
			return e.watcher.Run(gctx)
		})
	}
	if e.assets != nil {
		grp.Go(func() error {
			return e.assets.Watch(gctx)
		})
	}
	if e.platform != nil {
		// A minimized window blocks in WaitMessages.
		grp.Go(func() error {
			<-gctx.Done()
			e.platform.Wake()
			return nil
		})
	}

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	loopErr := e.loop(gctx, updates)
	cancel()
	return errors.CombineErrors(loopErr, grp.Wait())
}

func (e *Engine) loop(ctx context.Context, updates <-chan *config.Config) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-updates:
			if ok {
				e.applyConfig(next)
			}
		default:
		}

		if e.platform != nil {
			var running bool
			if e.isSuspended {
				running = e.platform.WaitMessages()
			} else {
				running = e.platform.PumpMessages()
			}
			if !running {
				core.LogInfo("window closed, shutting down")
				return nil
			}
		}
		if e.isSuspended {
			continue
		}

		if err := e.frame(); err != nil {
			return err
		}
		e.frames++
		if e.opts.MaxFrames > 0 && e.frames >= e.opts.MaxFrames {
			return nil
		}
	}
}

func (e *Engine) frame() error {
	if e.pendingResize || e.renderer.NeedsResize() {
		if err := e.resize(); err != nil {
			return err
		}
	}

	// Update clock and get delta time.
	e.clock.Update()
	currentTime := e.clock.Elapsed()
	delta := currentTime - e.lastTime

	if fn := e.gameInstance.FnUpdate; fn != nil {
		if err := fn(delta); err != nil {
			return core.WrapFatal(err, "game update")
		}
	}
	e.jobs.Update()

	err := e.renderer.BeginFrame(true)
	if core.IsRecoverable(err) {
		// The swapchain went out of date; the next frame resizes first.
		core.LogDebug("frame skipped: %v", err)
		return nil
	}
	if err != nil {
		return err
	}
	if fn := e.gameInstance.FnRender; fn != nil {
		if err := fn(e.renderer.CommandBuffer(), delta); err != nil {
			return core.WrapFatal(err, "game render")
		}
	}
	if err := e.renderer.EndFrame(true); err != nil {
		return err
	}
	if err := e.renderer.Present(); err != nil {
		return err
	}
	if err := e.renderer.Sync(); err != nil {
		return err
	}

	e.clock.Update()
	e.metrics.Update(e.clock.Elapsed() - currentTime)
	if currentTime-e.lastReport >= metricsInterval.Seconds() {
		fps, ms := e.metrics.Frame()
		core.LogInfo("frame %d: %.1f fps, %.2f ms", e.renderer.FrameCount(), fps, ms)
		e.lastReport = currentTime
	}
	e.lastTime = currentTime
	return nil
}

func (e *Engine) resize() error {
	width, height := e.width, e.height
	if e.platform != nil {
		width, height = e.platform.FramebufferSize()
	}
	if err := e.renderer.ResizeSwapChain(width, height); err != nil {
		return err
	}
	e.pendingResize = false
	e.width, e.height = e.renderer.SwapChainSize()
	if fn := e.gameInstance.FnOnResize; fn != nil {
		return fn(e.width, e.height)
	}
	return nil
}

func (e *Engine) onResized(width, height uint32) {
	if width == e.width && height == e.height {
		return
	}
	core.LogDebug("Window resize: %d, %d", width, height)
	e.width = width
	e.height = height
	e.pendingResize = true
}

func (e *Engine) onMinimized(minimized bool) {
	if minimized == e.isSuspended {
		return
	}
	e.isSuspended = minimized
	if !minimized {
		core.LogInfo("Window restored, resuming application.")
		e.pendingResize = true
		return
	}
	core.LogInfo("Window minimized, suspending application.")
	if e.renderer != nil {
		if err := e.renderer.OnMinimized(); err != nil {
			core.LogError("minimize: %v", err)
		}
	}
}

// applyConfig takes what can change live from a reloaded configuration.
func (e *Engine) applyConfig(next *config.Config) {
	if lvl := next.LogLevel(); lvl != e.cfg.LogLevel() {
		core.SetLogLevel(lvl)
		core.LogInfo("log level set to %s", lvl)
	}
	if e.cfg.RequiresRestart(next) {
		core.LogWarn("configuration changed; application and renderer settings apply after a restart")
	}
	e.cfg.Log = next.Log
}

// Shutdown stops every subsystem in reverse start order. It is safe after a
// failed Initialize.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var errs error
	if e.renderer != nil {
		errs = errors.CombineErrors(errs, e.renderer.WaitIdle())
	}
	if fn := e.gameInstance.FnShutdown; fn != nil && e.renderer != nil {
		errs = errors.CombineErrors(errs, fn())
	}
	if e.jobs != nil {
		errs = errors.CombineErrors(errs, e.jobs.Shutdown())
	}
	if e.renderer != nil {
		errs = errors.CombineErrors(errs, e.renderer.Shutdown())
	}
	if e.platform != nil {
		errs = errors.CombineErrors(errs, e.platform.Shutdown())
	}
	e.currentStage = EngineStageShutdown
	core.LogInfo("engine run %s stopped after %d frames", e.runID, e.frames)
	return errs
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) RunID() uuid.UUID {
	return e.runID
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Jobs() *systems.JobSystem {
	return e.jobs
}

func (e *Engine) Compiler() shaderc.Compiler {
	return e.compiler
}

// Assets is nil when the engine was built without an assets directory.
func (e *Engine) Assets() *assets.AssetManager {
	return e.assets
}

// Frames is the number of frames run so far.
func (e *Engine) Frames() uint64 {
	return e.frames
}

// GetFramebufferSize returns the width and height (in this order) of the
// swapchain.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}
