package soft

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

// object is the identity every simulated native object carries. Destroy marks
// it dead in the driver registry; destroying twice is recorded as misuse.
type object struct {
	d    *Driver
	id   uuid.UUID
	kind string
}

func (o *object) ID() uuid.UUID {
	return o.id
}

func (o *object) Destroy() {
	o.d.destroy(o)
}

func (o *object) alive() bool {
	return o.d.Alive(o.id)
}

func (o *object) String() string {
	return fmt.Sprintf("%s %s", o.kind, o.id.String()[:8])
}

type imageView struct {
	object
	width, height uint32
}

func (v *imageView) Width() uint32  { return v.width }
func (v *imageView) Height() uint32 { return v.height }

type renderPass struct {
	object
	plan *metadata.RenderPassPlan
}

func (rp *renderPass) NewFramebuffer(views []driver.ImageView, width, height uint32) (driver.Framebuffer, error) {
	if !rp.alive() {
		return nil, core.Fatalf("%s used after destroy", rp)
	}
	if len(views) != len(rp.plan.Attachments) {
		return nil, core.Recoverablef("%d views for %d attachments", len(views), len(rp.plan.Attachments))
	}
	fb := &framebuffer{width: width, height: height, pass: rp}
	for i, v := range views {
		iv, ok := v.(*imageView)
		if !ok {
			return nil, core.Fatalf("attachment %d is not a soft image view", i)
		}
		if !iv.alive() {
			return nil, core.Fatalf("image view %s used after destroy", iv)
		}
		fb.views = append(fb.views, iv)
	}
	rp.d.register(&fb.object, "framebuffer")
	return fb, nil
}

type framebuffer struct {
	object
	pass          *renderPass
	views         []*imageView
	width, height uint32
}

type texture struct {
	object
	desc  metadata.TextureDesc
	view  *imageView
	faces []*imageView
}

func (t *texture) Desc() metadata.TextureDesc          { return t.desc }
func (t *texture) View() driver.ImageView              { return t.view }
func (t *texture) FaceView(layer int) driver.ImageView { return t.faces[layer] }

func (t *texture) Destroy() {
	for _, f := range t.faces {
		f.Destroy()
	}
	t.view.Destroy()
	t.object.Destroy()
}

type buffer struct {
	object
	usage metadata.BufferUsage
	data  []byte
}

func (b *buffer) Size() int                   { return len(b.data) }
func (b *buffer) Usage() metadata.BufferUsage { return b.usage }

// Bytes is the buffer content, for assertions.
func (b *buffer) Bytes() []byte { return b.data }

func (b *buffer) Write(offset int, data []byte) error {
	if !b.alive() {
		return core.Fatalf("%s written after destroy", b)
	}
	if offset < 0 || offset+len(data) > len(b.data) {
		return core.Recoverablef("write [%d,%d) outside %d bytes", offset, offset+len(data), len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

type descriptorSet struct {
	object
	shader   *shader
	textures map[uint32]driver.Texture
	uniforms map[uint32]driver.Buffer
}

func (ds *descriptorSet) SetTexture(binding uint32, tex driver.Texture) error {
	for _, tb := range ds.shader.desc.Textures {
		if tb.Binding == binding {
			ds.textures[binding] = tex
			return nil
		}
	}
	return core.Recoverablef("shader %q has no texture binding %d", ds.shader.desc.Name, binding)
}

func (ds *descriptorSet) SetUniform(binding uint32, buf driver.Buffer, offset, size int) error {
	for _, ub := range ds.shader.desc.Uniforms {
		if ub.Binding == binding {
			if offset < 0 || offset+size > buf.Size() {
				return core.Recoverablef("uniform range [%d,%d) outside %d bytes", offset, offset+size, buf.Size())
			}
			ds.uniforms[binding] = buf
			return nil
		}
	}
	return core.Recoverablef("shader %q has no uniform binding %d", ds.shader.desc.Name, binding)
}

type shader struct {
	object
	desc metadata.ShaderDesc
}

func (s *shader) Desc() *metadata.ShaderDesc { return &s.desc }

func (s *shader) NewDescriptorSet() (driver.DescriptorSet, error) {
	ds := &descriptorSet{
		shader:   s,
		textures: make(map[uint32]driver.Texture),
		uniforms: make(map[uint32]driver.Buffer),
	}
	s.d.register(&ds.object, "descriptor set")
	return ds, nil
}

type pipeline struct {
	object
	compute bool
}

func (p *pipeline) Compute() bool { return p.compute }

type sampler struct {
	desc metadata.SamplerDesc
}

func (s sampler) Desc() metadata.SamplerDesc { return s.desc }
