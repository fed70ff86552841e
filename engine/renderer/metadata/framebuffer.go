package metadata

/** @brief The most image views one framebuffer can bind. */
const MaxFramebufferAttachments = 6

/**
 * @brief Chooses which views of a cube map texture a framebuffer binds.
 * None binds the base view of every texture, All binds the six faces of every
 * texture in order, and a concrete face binds that face of the first texture
 * and the base view of the rest.
 */
type CubeMapFace int

const (
	CubeMapFaceNone CubeMapFace = iota
	CubeMapFaceAll
	CubeMapFacePosX
	CubeMapFaceNegX
	CubeMapFacePosY
	CubeMapFaceNegY
	CubeMapFacePosZ
	CubeMapFaceNegZ
)

// IsFace reports whether f names one concrete face.
func (f CubeMapFace) IsFace() bool {
	return f >= CubeMapFacePosX && f <= CubeMapFaceNegZ
}

// Layer is the array layer of a concrete face, or -1.
func (f CubeMapFace) Layer() int {
	if !f.IsFace() {
		return -1
	}
	return int(f - CubeMapFacePosX)
}

func (f CubeMapFace) String() string {
	switch f {
	case CubeMapFaceNone:
		return "none"
	case CubeMapFaceAll:
		return "all"
	case CubeMapFacePosX:
		return "+x"
	case CubeMapFaceNegX:
		return "-x"
	case CubeMapFacePosY:
		return "+y"
	case CubeMapFaceNegY:
		return "-y"
	case CubeMapFacePosZ:
		return "+z"
	case CubeMapFaceNegZ:
		return "-z"
	default:
		return "face(?)"
	}
}
