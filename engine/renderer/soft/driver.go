// Package soft is an in-memory graphics driver. It simulates a GPU timeline
// with per ring slot fences that complete immediately or on demand, tracks
// the liveness of every native object it hands out and keeps an ordered log
// of what was created, destroyed, recorded, submitted and presented. It backs
// headless runs and the renderer tests.
package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

const swapChainFormat = metadata.FormatBGRA8Srgb

type Option func(*Driver)

// WithQueueFamilies sets the graphics and present queue families the
// simulated device reports.
func WithQueueFamilies(q metadata.QueueFamilies) Option {
	return func(d *Driver) {
		d.families = q
	}
}

// WithImageCount overrides the swapchain image count, which otherwise follows
// the vsync rule of the real backend.
func WithImageCount(n int) Option {
	return func(d *Driver) {
		d.imageCount = n
	}
}

// WithManualFences leaves submitted work pending until Complete is called.
func WithManualFences() Option {
	return func(d *Driver) {
		d.manual = true
	}
}

type slotState struct {
	signaled bool
	inFlight bool
	recorder *Recorder
}

type Driver struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg        driver.Config
	families   metadata.QueueFamilies
	imageCount int
	manual     bool

	kinds  map[uuid.UUID]string
	alive  map[uuid.UUID]bool
	events []string
	misuse []error

	slots         []slotState
	submits       []metadata.SubmitPlan
	presents      []metadata.PresentPlan
	swapchain     *object
	views         []*imageView
	width         uint32
	height        uint32
	nextImage     int
	outOfDate     int
	staleAcquires int
	samplers      [metadata.SamplerCount]sampler
}

func New(opts ...Option) *Driver {
	d := &Driver{
		families: metadata.QueueFamilies{Graphics: 0, Present: 0},
		kinds:    make(map[uuid.UUID]string),
		alive:    make(map[uuid.UUID]bool),
	}
	d.cond = sync.NewCond(&d.mu)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Name() string {
	return "soft"
}

func (d *Driver) Initialize(cfg *driver.Config) error {
	if cfg.RingSize <= 0 {
		return core.Fatalf("ring size %d", cfg.RingSize)
	}
	if !d.families.IsComplete() {
		return core.Fatalf("no suitable queue families: %+v", d.families)
	}
	d.cfg = *cfg
	if d.imageCount == 0 {
		d.imageCount = 2
		if cfg.VSync {
			d.imageCount = 3
		}
	}

	d.mu.Lock()
	d.slots = make([]slotState, cfg.RingSize)
	for i := range d.slots {
		d.slots[i].signaled = true
	}
	d.mu.Unlock()

	d.samplers = [metadata.SamplerCount]sampler{}
	for i, desc := range metadata.SamplerTable(cfg.Sampling) {
		d.samplers[i] = sampler{desc: desc}
	}
	d.createSwapChain(cfg.Width, cfg.Height)
	d.event("initialize %s", cfg.ApplicationName)
	return nil
}

func (d *Driver) Shutdown() error {
	if err := d.WaitIdle(); err != nil {
		return err
	}
	for _, v := range d.views {
		v.Destroy()
	}
	d.views = nil
	if d.swapchain != nil {
		d.swapchain.Destroy()
		d.swapchain = nil
	}
	if n := d.Live(""); n > 0 {
		core.LogWarn("soft driver shut down with %d live objects", n)
	}
	d.event("shutdown")
	return nil
}

func (d *Driver) QueueFamilies() metadata.QueueFamilies {
	return d.families
}

func (d *Driver) SwapChain() driver.SwapChainInfo {
	return driver.SwapChainInfo{
		ImageCount: len(d.views),
		Format:     swapChainFormat,
		Width:      d.width,
		Height:     d.height,
	}
}

func (d *Driver) SwapChainView(index int) driver.ImageView {
	return d.views[index]
}

func (d *Driver) createSwapChain(width, height uint32) {
	sc := &object{}
	d.register(sc, "swapchain")
	d.swapchain = sc
	d.width, d.height = width, height
	d.views = make([]*imageView, d.imageCount)
	for i := range d.views {
		v := &imageView{width: width, height: height}
		d.register(&v.object, "swapchain image view")
		d.views[i] = v
	}
	d.nextImage = 0
}

// ResizeSwapChain destroys the old views, builds the new swapchain and its
// views, and only then destroys the old swapchain.
func (d *Driver) ResizeSwapChain(width, height uint32) error {
	if err := d.WaitIdle(); err != nil {
		return err
	}
	old := d.swapchain
	for _, v := range d.views {
		v.Destroy()
	}
	d.createSwapChain(width, height)
	if old != nil {
		old.Destroy()
	}
	return nil
}

func (d *Driver) WaitForFence(slot int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var deadline time.Time
	if d.cfg.FenceTimeout > 0 {
		deadline = time.Now().Add(d.cfg.FenceTimeout)
		t := time.AfterFunc(d.cfg.FenceTimeout, func() {
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		})
		defer t.Stop()
	}
	for !d.slots[slot].signaled {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return core.Fatalf("fence %d timed out after %s", slot, d.cfg.FenceTimeout)
		}
		d.cond.Wait()
	}
	return nil
}

func (d *Driver) ResetFence(slot int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.slots[slot].inFlight {
		return core.Fatalf("fence %d reset while its frame is in flight", slot)
	}
	d.slots[slot].signaled = false
	return nil
}

func (d *Driver) AcquireNextImage(slot int) (int, error) {
	if len(d.views) == 0 {
		return -1, errors.Wrap(core.ErrSwapchainBooting, "acquire")
	}
	d.mu.Lock()
	stale := d.staleAcquires > 0
	if stale {
		d.staleAcquires--
	}
	d.mu.Unlock()
	if stale {
		d.event("acquire out of date on slot %d", slot)
		return -1, errors.Wrapf(core.ErrSurfaceOutOfDate, "acquire on slot %d", slot)
	}
	index := d.nextImage
	d.nextImage = (d.nextImage + 1) % len(d.views)
	d.event("acquire image %d on slot %d", index, slot)
	return index, nil
}

func (d *Driver) ResetCommandPool(slot int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.slots[slot].inFlight {
		return core.Fatalf("command pool %d reset while its frame is in flight", slot)
	}
	d.slots[slot].recorder = nil
	return nil
}

func (d *Driver) BeginRecording(slot int) (driver.Recorder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.slots[slot].recorder != nil && d.slots[slot].recorder.open {
		return nil, core.Fatalf("command buffer %d already recording", slot)
	}
	rec := &Recorder{d: d, slot: slot, open: true}
	d.slots[slot].recorder = rec
	return rec, nil
}

func (d *Driver) EndRecording(slot int) error {
	d.mu.Lock()
	rec := d.slots[slot].recorder
	d.mu.Unlock()
	if rec == nil || !rec.open {
		return core.Fatalf("command buffer %d is not recording", slot)
	}
	rec.open = false
	if rec.pass != nil {
		rec.fail("command buffer ended inside a render pass")
	}
	return rec.err
}

func (d *Driver) Submit(slot int, plan metadata.SubmitPlan) error {
	d.mu.Lock()
	if d.slots[slot].signaled {
		d.mu.Unlock()
		return core.Fatalf("submit on slot %d with a signaled fence", slot)
	}
	d.slots[slot].inFlight = true
	d.submits = append(d.submits, plan)
	d.mu.Unlock()

	d.event("submit slot %d", slot)
	if !d.manual {
		d.Complete(slot)
	}
	return nil
}

func (d *Driver) Present(slot int, image int, plan metadata.PresentPlan) error {
	d.mu.Lock()
	d.presents = append(d.presents, plan)
	stale := d.outOfDate > 0
	if stale {
		d.outOfDate--
	}
	d.mu.Unlock()

	if stale {
		d.event("present image %d out of date", image)
		return errors.Wrapf(core.ErrSurfaceOutOfDate, "present image %d", image)
	}
	d.event("present image %d from slot %d", image, slot)
	return nil
}

// WaitIdle completes every frame in flight.
func (d *Driver) WaitIdle() error {
	d.mu.Lock()
	for i := range d.slots {
		d.slots[i].signaled = d.slots[i].signaled || d.slots[i].inFlight
		d.slots[i].inFlight = false
	}
	d.cond.Broadcast()
	d.mu.Unlock()
	return nil
}

// Complete signals the fence of a submitted ring slot.
func (d *Driver) Complete(slot int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.slots[slot].inFlight {
		return
	}
	d.slots[slot].inFlight = false
	d.slots[slot].signaled = true
	d.cond.Broadcast()
}

// SlotInFlight reports whether the frame submitted on slot is still running.
func (d *Driver) SlotInFlight(slot int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[slot].inFlight
}

// InFlight is the number of submitted frames whose fence is not signaled.
func (d *Driver) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.slots {
		if s.inFlight {
			n++
		}
	}
	return n
}

// InjectOutOfDate makes the next n presents report an out of date surface.
func (d *Driver) InjectOutOfDate(n int) {
	d.mu.Lock()
	d.outOfDate += n
	d.mu.Unlock()
}

// InjectAcquireOutOfDate makes the next n acquires report an out of date
// surface.
func (d *Driver) InjectAcquireOutOfDate(n int) {
	d.mu.Lock()
	d.staleAcquires += n
	d.mu.Unlock()
}

func (d *Driver) NewRenderPass(plan *metadata.RenderPassPlan) (driver.RenderPass, error) {
	rp := &renderPass{plan: plan}
	d.register(&rp.object, "render pass")
	return rp, nil
}

func (d *Driver) NewTexture(desc *metadata.TextureDesc) (driver.Texture, error) {
	t := &texture{desc: *desc}
	t.view = &imageView{width: desc.Width, height: desc.Height}
	d.register(&t.view.object, "image view")
	if desc.TextureType == metadata.TextureTypeCube {
		for i := 0; i < 6; i++ {
			f := &imageView{width: desc.Width, height: desc.Height}
			d.register(&f.object, "image view")
			t.faces = append(t.faces, f)
		}
	}
	d.register(&t.object, "texture")
	return t, nil
}

func (d *Driver) NewBuffer(size int, usage metadata.BufferUsage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, core.Recoverablef("buffer size %d", size)
	}
	b := &buffer{usage: usage, data: make([]byte, size)}
	d.register(&b.object, "buffer")
	return b, nil
}

func (d *Driver) NewShader(desc *metadata.ShaderDesc) (driver.Shader, error) {
	s := &shader{desc: *desc}
	d.register(&s.object, "shader")
	return s, nil
}

func (d *Driver) NewPipeline(state *driver.PipelineState) (driver.Pipeline, error) {
	sh, ok := state.Shader.(*shader)
	if !ok || !sh.alive() {
		return nil, core.Fatalf("pipeline %q: shader is not a live soft shader", state.Desc.Name)
	}
	p := &pipeline{compute: sh.desc.IsCompute()}
	d.register(&p.object, "pipeline")
	return p, nil
}

func (d *Driver) ImmutableSampler(s metadata.Sampler) driver.Sampler {
	return d.samplers[s]
}

func (d *Driver) register(o *object, kind string) {
	o.d = d
	o.id = uuid.New()
	o.kind = kind
	d.mu.Lock()
	d.kinds[o.id] = kind
	d.alive[o.id] = true
	d.mu.Unlock()
	d.event("create %s", o)
}

func (d *Driver) destroy(o *object) {
	d.mu.Lock()
	if !d.alive[o.id] {
		d.misuse = append(d.misuse, core.Fatalf("%s destroyed twice", o))
		d.mu.Unlock()
		return
	}
	d.alive[o.id] = false
	d.mu.Unlock()
	d.event("destroy %s", o)
}

func (d *Driver) event(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	d.mu.Lock()
	d.events = append(d.events, msg)
	d.mu.Unlock()
}

// Alive reports whether the object with id has been created and not destroyed.
func (d *Driver) Alive(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive[id]
}

// Live counts live objects of a kind, or of every kind when kind is empty.
func (d *Driver) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, ok := range d.alive {
		if ok && (kind == "" || d.kinds[id] == kind) {
			n++
		}
	}
	return n
}

// Events is the ordered log of driver activity.
func (d *Driver) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Misuse lists errors that a validation layer would have reported.
func (d *Driver) Misuse() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.misuse...)
}

func (d *Driver) Submits() []metadata.SubmitPlan {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]metadata.SubmitPlan(nil), d.submits...)
}

func (d *Driver) Presents() []metadata.PresentPlan {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]metadata.PresentPlan(nil), d.presents...)
}

// Commands is the command log last recorded on a ring slot.
func (d *Driver) Commands(slot int) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec := d.slots[slot].recorder; rec != nil {
		return append([]string(nil), rec.cmds...)
	}
	return nil
}

func (d *Driver) reportMisuse(err error) {
	d.mu.Lock()
	d.misuse = append(d.misuse, err)
	d.mu.Unlock()
}
