package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-cgi/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// ResizeFunc receives the new framebuffer size in pixels.
type ResizeFunc func(width, height uint32)

// MinimizeFunc receives true when the window is iconified and false when it
// is restored.
type MinimizeFunc func(minimized bool)

// Platform owns the native window. All methods must be called from the main
// thread; callbacks run inside PumpMessages on that same thread.
type Platform struct {
	Window *glfw.Window

	onResize   []ResizeFunc
	onMinimize []MinimizeFunc
	minimized  bool
	startTime  float64
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(applicationName string, x, y int, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		return core.WrapFatal(err, "failed to initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return core.Fatalf("glfw reports no vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		return core.WrapFatal(err, "failed to create window")
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetIconifyCallback(p.iconifyCallback)
	p.Window.SetPos(x, y)
	p.Window.Show()

	p.startTime = glfw.GetTime()
	core.LogInfo("window %q created at %dx%d", applicationName, width, height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events and reports whether the
// application should keep running.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// WaitMessages blocks until at least one event arrives. Used while
// minimized so the loop does not spin.
func (p *Platform) WaitMessages() bool {
	glfw.WaitEvents()
	return !p.Window.ShouldClose()
}

// Wake unblocks a pending WaitMessages. Safe to call from any goroutine.
func (p *Platform) Wake() {
	glfw.PostEmptyEvent()
}

// RequestClose makes the next PumpMessages return false.
func (p *Platform) RequestClose() {
	if p.Window != nil {
		p.Window.SetShouldClose(true)
	}
}

func (p *Platform) OnResize(fn ResizeFunc) {
	p.onResize = append(p.onResize, fn)
}

func (p *Platform) OnMinimize(fn MinimizeFunc) {
	p.onMinimize = append(p.onMinimize, fn)
}

func (p *Platform) Minimized() bool {
	return p.minimized
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// GetAbsoluteTime returns the seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
	}
}

func (p *Platform) setMinimized(m bool) {
	if p.minimized == m {
		return
	}
	p.minimized = m
	for _, fn := range p.onMinimize {
		fn(m)
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	// Some platforms report minimize only as a zero sized framebuffer.
	if width == 0 || height == 0 {
		p.setMinimized(true)
		return
	}
	p.setMinimized(false)
	for _, fn := range p.onResize {
		fn(uint32(width), uint32(height))
	}
}

func (p *Platform) iconifyCallback(w *glfw.Window, iconified bool) {
	p.setMinimized(iconified)
}
