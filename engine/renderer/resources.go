package renderer

import (
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

// Texture is a native texture plus the per subresource layout the renderer
// last transitioned it to.
type Texture struct {
	native  driver.Texture
	desc    metadata.TextureDesc
	layouts []metadata.ImageLayout
	staging []driver.Buffer
}

func (t *Texture) Desc() metadata.TextureDesc {
	return t.desc
}

func (t *Texture) Native() driver.Texture {
	return t.native
}

func (t *Texture) subresource(mip uint32, layer int) int {
	return int(mip)*int(t.desc.Layers()) + layer
}

// Layout is the last recorded layout of one mip level and layer.
func (t *Texture) Layout(mip uint32, layer int) metadata.ImageLayout {
	i := t.subresource(mip, layer)
	if i < 0 || i >= len(t.layouts) {
		return metadata.ImageLayoutUndefined
	}
	return t.layouts[i]
}

// UpdateScheduled releases staging buffers once the frames that read them
// have completed.
func (t *Texture) UpdateScheduled() bool {
	for _, b := range t.staging {
		b.Destroy()
	}
	t.staging = nil
	return false
}

func (t *Texture) destroy() {
	t.UpdateScheduled()
	t.native.Destroy()
}

func (r *Renderer) InsertTexture(desc *metadata.TextureDesc) (metadata.TextureHandle, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return metadata.TextureHandle{}, core.Recoverablef("texture %q has zero size", desc.Name)
	}
	if !desc.Format.Valid() {
		return metadata.TextureHandle{}, core.Recoverablef("texture %q has unsupported format %s", desc.Name, desc.Format)
	}
	native, err := r.driver.NewTexture(desc)
	if err != nil {
		return metadata.TextureHandle{}, core.WrapFatal(err, "creating texture %q", desc.Name)
	}
	t := &Texture{
		native:  native,
		desc:    *desc,
		layouts: make([]metadata.ImageLayout, int(desc.Mips())*int(desc.Layers())),
	}
	return metadata.MakeHandle[metadata.TextureKind](r.textures.Insert(t)), nil
}

func (r *Renderer) DeleteTexture(ref metadata.Reference[metadata.TextureKind]) {
	if ref.IsAll() {
		for _, t := range r.textures.Clear() {
			r.scheduler.Unschedule(t)
			t.destroy()
		}
		return
	}
	if t, ok := r.textures.Delete(ref.Handle().Index()); ok {
		r.scheduler.Unschedule(t)
		t.destroy()
	}
}

func (r *Renderer) Texture(h metadata.TextureHandle) (*Texture, error) {
	t, ok := r.textures.Get(h.Index())
	if !ok {
		return nil, core.WrapRecoverable(core.ErrInvalidHandle, "%s", h)
	}
	return t, nil
}

// UpdateTexture records an upload of one mip level and layer through a
// staging buffer and leaves the subresource readable from fragment shaders.
// The staging buffer is released once the GPU is done with it.
func (r *Renderer) UpdateTexture(h metadata.TextureHandle, cb *CommandBuffer, data []byte, mip uint32, layer int) error {
	t, err := r.Texture(h)
	if err != nil {
		return err
	}
	if mip >= t.desc.Mips() || layer < 0 || layer >= int(t.desc.Layers()) {
		return core.Recoverablef("texture %q has no mip %d layer %d", t.desc.Name, mip, layer)
	}
	w, hgt := max(t.desc.Width>>mip, 1), max(t.desc.Height>>mip, 1)
	if want := int(w) * int(hgt) * t.desc.Format.Size(); len(data) != want {
		return core.Recoverablef("texture %q mip %d: %d bytes, want %d", t.desc.Name, mip, len(data), want)
	}

	staging, err := r.driver.NewBuffer(len(data), metadata.BufferUsageTransferSrc)
	if err != nil {
		return core.WrapFatal(err, "creating staging buffer")
	}
	if err := staging.Write(0, data); err != nil {
		staging.Destroy()
		return core.WrapFatal(err, "writing staging buffer")
	}

	if err := cb.PipelineImageMemoryBarrier(h, t.Layout(mip, layer), metadata.ImageLayoutTransferDst, mip, 1, layer); err != nil {
		staging.Destroy()
		return err
	}
	if err := cb.copyBufferToImage(staging, t, mip, layer, w, hgt); err != nil {
		staging.Destroy()
		return err
	}
	// The copy is recorded; the buffer lives until this frame leaves the ring.
	t.staging = append(t.staging, staging)
	r.scheduler.Schedule(t, 0)

	return cb.PipelineImageMemoryBarrier(h, metadata.ImageLayoutTransferDst, metadata.ImageLayoutFSReadOnly, mip, 1, layer)
}

// Geometry holds host visible vertex and index buffers.
type Geometry struct {
	vertices    driver.Buffer
	indices     driver.Buffer
	layout      metadata.VertexLayout
	indexType   metadata.IndexType
	vertexCount uint32
	indexCount  uint32
	name        string
}

func (g *Geometry) VertexCount() uint32 {
	return g.vertexCount
}

func (g *Geometry) IndexCount() uint32 {
	return g.indexCount
}

func (g *Geometry) Layout() metadata.VertexLayout {
	return g.layout
}

func (g *Geometry) destroy() {
	if g.vertices != nil {
		g.vertices.Destroy()
	}
	if g.indices != nil {
		g.indices.Destroy()
	}
}

func (r *Renderer) InsertGeometry(desc *metadata.GeometryDesc) (metadata.GeometryHandle, error) {
	if desc.Layout.Stride == 0 || len(desc.VertexData) == 0 {
		return metadata.GeometryHandle{}, core.Recoverablef("geometry %q has no vertices", desc.Name)
	}
	if len(desc.VertexData)%int(desc.Layout.Stride) != 0 {
		return metadata.GeometryHandle{}, core.Recoverablef("geometry %q: vertex data is not a multiple of stride %d", desc.Name, desc.Layout.Stride)
	}
	if len(desc.IndexData)%desc.IndexType.Size() != 0 {
		return metadata.GeometryHandle{}, core.Recoverablef("geometry %q: index data is not a multiple of %d", desc.Name, desc.IndexType.Size())
	}

	g := &Geometry{
		layout:      desc.Layout,
		indexType:   desc.IndexType,
		vertexCount: desc.VertexCount(),
		indexCount:  desc.IndexCount(),
		name:        desc.Name,
	}
	var err error
	if g.vertices, err = r.newFilledBuffer(desc.VertexData, metadata.BufferUsageVertex); err != nil {
		return metadata.GeometryHandle{}, core.WrapFatal(err, "geometry %q vertices", desc.Name)
	}
	if len(desc.IndexData) > 0 {
		if g.indices, err = r.newFilledBuffer(desc.IndexData, metadata.BufferUsageIndex); err != nil {
			g.destroy()
			return metadata.GeometryHandle{}, core.WrapFatal(err, "geometry %q indices", desc.Name)
		}
	}
	return metadata.MakeHandle[metadata.GeometryKind](r.geometries.Insert(g)), nil
}

func (r *Renderer) newFilledBuffer(data []byte, usage metadata.BufferUsage) (driver.Buffer, error) {
	b, err := r.driver.NewBuffer(len(data), usage)
	if err != nil {
		return nil, err
	}
	if err := b.Write(0, data); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// UpdateVertices overwrites part of the vertex buffer. The caller must not
// touch vertices a frame still in flight reads.
func (r *Renderer) UpdateVertices(h metadata.GeometryHandle, offset int, data []byte) error {
	g, err := r.Geometry(h)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > g.vertices.Size() {
		return core.Recoverablef("geometry %q: write [%d,%d) outside %d bytes", g.name, offset, offset+len(data), g.vertices.Size())
	}
	return core.WrapFatal(g.vertices.Write(offset, data), "geometry %q", g.name)
}

func (r *Renderer) DeleteGeometry(ref metadata.Reference[metadata.GeometryKind]) {
	if ref.IsAll() {
		for _, g := range r.geometries.Clear() {
			g.destroy()
		}
		return
	}
	if g, ok := r.geometries.Delete(ref.Handle().Index()); ok {
		g.destroy()
	}
}

func (r *Renderer) Geometry(h metadata.GeometryHandle) (*Geometry, error) {
	g, ok := r.geometries.Get(h.Index())
	if !ok {
		return nil, core.WrapRecoverable(core.ErrInvalidHandle, "%s", h)
	}
	return g, nil
}

type Shader struct {
	native driver.Shader
	desc   metadata.ShaderDesc
}

func (s *Shader) Desc() *metadata.ShaderDesc {
	return &s.desc
}

// NewDescriptorSet allocates a descriptor set matching the shader's bindings.
func (s *Shader) NewDescriptorSet() (driver.DescriptorSet, error) {
	ds, err := s.native.NewDescriptorSet()
	if err != nil {
		return nil, core.WrapFatal(err, "shader %q descriptor set", s.desc.Name)
	}
	return ds, nil
}

func (r *Renderer) InsertShader(desc *metadata.ShaderDesc) (metadata.ShaderHandle, error) {
	if len(desc.Stages) == 0 {
		return metadata.ShaderHandle{}, core.Recoverablef("shader %q has no stages", desc.Name)
	}
	for _, st := range desc.Stages {
		if len(st.Code) == 0 {
			return metadata.ShaderHandle{}, core.Recoverablef("shader %q: empty %s stage", desc.Name, st.Stage)
		}
	}
	for _, tb := range desc.Textures {
		if !tb.Sampler.Valid() {
			return metadata.ShaderHandle{}, core.Recoverablef("shader %q binding %d: unknown sampler", desc.Name, tb.Binding)
		}
	}
	native, err := r.driver.NewShader(desc)
	if err != nil {
		return metadata.ShaderHandle{}, core.WrapFatal(err, "creating shader %q", desc.Name)
	}
	return metadata.MakeHandle[metadata.ShaderKind](r.shaders.Insert(&Shader{native: native, desc: *desc})), nil
}

func (r *Renderer) DeleteShader(ref metadata.Reference[metadata.ShaderKind]) {
	if ref.IsAll() {
		for _, s := range r.shaders.Clear() {
			s.native.Destroy()
		}
		return
	}
	if s, ok := r.shaders.Delete(ref.Handle().Index()); ok {
		s.native.Destroy()
	}
}

func (r *Renderer) Shader(h metadata.ShaderHandle) (*Shader, error) {
	s, ok := r.shaders.Get(h.Index())
	if !ok {
		return nil, core.WrapRecoverable(core.ErrInvalidHandle, "%s", h)
	}
	return s, nil
}

type Pipeline struct {
	native driver.Pipeline
	desc   metadata.PipelineDesc
}

func (p *Pipeline) Desc() *metadata.PipelineDesc {
	return &p.desc
}

func (p *Pipeline) Compute() bool {
	return p.native.Compute()
}

// InsertPipeline builds a pipeline for a shader and, unless the shader is a
// compute shader, one subpass of a render pass.
func (r *Renderer) InsertPipeline(desc *metadata.PipelineDesc) (metadata.PipelineHandle, error) {
	sh, err := r.Shader(desc.Shader)
	if err != nil {
		return metadata.PipelineHandle{}, err
	}
	state := &driver.PipelineState{Desc: desc, Shader: sh.native}
	if !sh.desc.IsCompute() {
		rp, err := r.renderPass(desc.RenderPass)
		if err != nil {
			return metadata.PipelineHandle{}, err
		}
		if desc.Subpass < 0 || desc.Subpass >= len(rp.plan.Subpasses) {
			return metadata.PipelineHandle{}, core.Recoverablef("pipeline %q: subpass %d out of range", desc.Name, desc.Subpass)
		}
		state.RenderPass = rp.native
	}
	native, err := r.driver.NewPipeline(state)
	if err != nil {
		return metadata.PipelineHandle{}, core.WrapFatal(err, "creating pipeline %q", desc.Name)
	}
	return metadata.MakeHandle[metadata.PipelineKind](r.pipelines.Insert(&Pipeline{native: native, desc: *desc})), nil
}

func (r *Renderer) DeletePipeline(ref metadata.Reference[metadata.PipelineKind]) {
	if ref.IsAll() {
		for _, p := range r.pipelines.Clear() {
			p.native.Destroy()
		}
		return
	}
	if p, ok := r.pipelines.Delete(ref.Handle().Index()); ok {
		p.native.Destroy()
	}
}

func (r *Renderer) Pipeline(h metadata.PipelineHandle) (*Pipeline, error) {
	p, ok := r.pipelines.Get(h.Index())
	if !ok {
		return nil, core.WrapRecoverable(core.ErrInvalidHandle, "%s", h)
	}
	return p, nil
}

// InsertCommandBuffer creates a command buffer facade. It records into the
// frame's native command buffer while a frame is being recorded.
func (r *Renderer) InsertCommandBuffer() metadata.CommandBufferHandle {
	cb := newCommandBuffer(r)
	return metadata.MakeHandle[metadata.CommandBufferKind](r.commandBuffers.Insert(cb))
}

func (r *Renderer) DeleteCommandBuffer(ref metadata.Reference[metadata.CommandBufferKind]) {
	if ref.IsAll() {
		for _, cb := range r.commandBuffers.Clear() {
			cb.detach()
		}
		return
	}
	if cb, ok := r.commandBuffers.Delete(ref.Handle().Index()); ok {
		cb.detach()
	}
}

func (r *Renderer) CommandBufferByHandle(h metadata.CommandBufferHandle) (*CommandBuffer, error) {
	cb, ok := r.commandBuffers.Get(h.Index())
	if !ok {
		return nil, core.WrapRecoverable(core.ErrInvalidHandle, "%s", h)
	}
	return cb, nil
}

// CommandBuffer returns the main command buffer the frame cycle records into.
func (r *Renderer) CommandBuffer() *CommandBuffer {
	cb, _ := r.commandBuffers.Get(r.mainCommands.Index())
	return cb
}
