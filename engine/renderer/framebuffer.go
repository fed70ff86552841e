package renderer

import (
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

// Framebuffer is a native framebuffer and the size it was created with.
type Framebuffer struct {
	native     driver.Framebuffer
	RenderPass metadata.RPHandle
	Width      uint32
	Height     uint32
}

type framebufferOptions struct {
	swapChainImage int
	face           metadata.CubeMapFace
}

type FramebufferOption func(*framebufferOptions)

// WithSwapChainImage binds the swapchain view of image index as attachment 0.
func WithSwapChainImage(index int) FramebufferOption {
	return func(o *framebufferOptions) {
		o.swapChainImage = index
	}
}

// WithCubeMapFace selects which views of cube map textures are bound.
func WithCubeMapFace(face metadata.CubeMapFace) FramebufferOption {
	return func(o *framebufferOptions) {
		o.face = face
	}
}

// CreateFramebuffer binds texture views, optionally preceded by a swapchain
// image, to the attachments of a render pass.
func (r *Renderer) CreateFramebuffer(rp metadata.RPHandle, textures []metadata.TextureHandle, width, height uint32, opts ...FramebufferOption) (metadata.FBHandle, error) {
	o := framebufferOptions{swapChainImage: -1}
	for _, opt := range opts {
		opt(&o)
	}

	pass, err := r.renderPass(rp)
	if err != nil {
		return metadata.FBHandle{}, err
	}

	views := make([]driver.ImageView, 0, metadata.MaxFramebufferAttachments)
	push := func(v driver.ImageView) error {
		if len(views) == metadata.MaxFramebufferAttachments {
			return core.Fatalf("framebuffer exceeds %d attachments", metadata.MaxFramebufferAttachments)
		}
		views = append(views, v)
		return nil
	}

	if o.swapChainImage >= 0 {
		if o.swapChainImage >= r.driver.SwapChain().ImageCount {
			return metadata.FBHandle{}, core.Recoverablef("swapchain image %d out of range", o.swapChainImage)
		}
		if err := push(r.driver.SwapChainView(o.swapChainImage)); err != nil {
			return metadata.FBHandle{}, err
		}
	}

	for i, th := range textures {
		tex, err := r.Texture(th)
		if err != nil {
			return metadata.FBHandle{}, err
		}
		switch {
		case o.face == metadata.CubeMapFaceAll:
			if tex.desc.TextureType != metadata.TextureTypeCube {
				return metadata.FBHandle{}, core.Recoverablef("texture %q is not a cube map", tex.desc.Name)
			}
			for layer := 0; layer < 6; layer++ {
				if err := push(tex.native.FaceView(layer)); err != nil {
					return metadata.FBHandle{}, err
				}
			}
		case o.face.IsFace() && i == 0:
			if tex.desc.TextureType != metadata.TextureTypeCube {
				return metadata.FBHandle{}, core.Recoverablef("texture %q is not a cube map", tex.desc.Name)
			}
			if err := push(tex.native.FaceView(o.face.Layer())); err != nil {
				return metadata.FBHandle{}, err
			}
		default:
			if err := push(tex.native.View()); err != nil {
				return metadata.FBHandle{}, err
			}
		}
	}

	native, err := pass.native.NewFramebuffer(views, width, height)
	if err != nil {
		return metadata.FBHandle{}, core.WrapFatal(err, "creating framebuffer")
	}

	index := r.framebuffers.Insert(&Framebuffer{
		native:     native,
		RenderPass: rp,
		Width:      width,
		Height:     height,
	})
	return metadata.MakeHandle[metadata.FramebufferKind](index), nil
}

// DeleteFramebuffer destroys one framebuffer, or all of them.
func (r *Renderer) DeleteFramebuffer(ref metadata.Reference[metadata.FramebufferKind]) {
	if ref.IsAll() {
		for _, fb := range r.framebuffers.Clear() {
			fb.native.Destroy()
		}
		return
	}
	if fb, ok := r.framebuffers.Delete(ref.Handle().Index()); ok {
		fb.native.Destroy()
	}
}

func (r *Renderer) Framebuffer(h metadata.FBHandle) (*Framebuffer, error) {
	fb, ok := r.framebuffers.Get(h.Index())
	if !ok {
		return nil, core.WrapRecoverable(core.ErrInvalidHandle, "%s", h)
	}
	return fb, nil
}

func (r *Renderer) FramebufferCount() int {
	return r.framebuffers.Len()
}
