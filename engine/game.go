package engine

import (
	"github.com/spaghettifunk/anima-cgi/engine/renderer"
)

// Game is the set of callbacks the engine drives. Every callback runs on
// the main thread.
type Game struct {
	Name         string
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Initialize runs once the renderer is up. Create render passes, pipelines
// and other long lived resources here.
type Initialize func(e *Engine) error
type Update func(deltaTime float64) error

// Render records the frame into cb, which is already recording.
type Render func(cb *renderer.CommandBuffer, deltaTime float64) error

// OnResize runs after the swapchain has been recreated.
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
