package metadata

/** @brief What a buffer is bound as; a bit set. */
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

type IndexType int

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

func (t IndexType) Size() int {
	if t == IndexTypeUint16 {
		return 2
	}
	return 4
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

/** @brief Layout of one interleaved vertex stream. */
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

/**
 * @brief Describes geometry: interleaved vertices and optional indices.
 */
type GeometryDesc struct {
	/** @brief The geometry name. */
	Name       string
	Layout     VertexLayout
	VertexData []byte
	IndexData  []byte
	IndexType  IndexType
}

func (d *GeometryDesc) VertexCount() uint32 {
	if d.Layout.Stride == 0 {
		return 0
	}
	return uint32(len(d.VertexData)) / d.Layout.Stride
}

func (d *GeometryDesc) IndexCount() uint32 {
	return uint32(len(d.IndexData) / d.IndexType.Size())
}
