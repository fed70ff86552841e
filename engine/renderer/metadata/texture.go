package metadata

/** @brief How a texture will be used; a bit set. */
type TextureUsage uint32

const (
	TextureUsageSampled TextureUsage = 1 << iota
	TextureUsageColorAttachment
	TextureUsageDepthStencilAttachment
	TextureUsageInputAttachment
	TextureUsageStorage
	TextureUsageTransferSrc
	TextureUsageTransferDst
)

/**
 * @brief Represents various types of textures.
 */
type TextureType int

const (
	/** @brief A standard two-dimensional texture. */
	TextureType2d TextureType = iota
	/** @brief A cube texture, used for cubemaps. */
	TextureTypeCube
)

/**
 * @brief Describes a texture to be created by the backend.
 */
type TextureDesc struct {
	/** @brief The texture Name, for logging. */
	Name string
	/** @brief The texture type. */
	TextureType TextureType
	Format      Format
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32
	/** @brief Mip level count; zero means one. */
	MipLevels uint32
	Samples   SampleCount
	Usage     TextureUsage
}

func (d *TextureDesc) Layers() uint32 {
	if d.TextureType == TextureTypeCube {
		return 6
	}
	return 1
}

func (d *TextureDesc) Mips() uint32 {
	if d.MipLevels == 0 {
		return 1
	}
	return d.MipLevels
}
