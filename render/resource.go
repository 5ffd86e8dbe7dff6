package render

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/asset"
	"github.com/cg2go/renderer/gpu"
)

// DepthFormat is the format of the depth-stencil texture and its view.
const DepthFormat = gpu.FormatD24UnormS8Uint

// Allocator creates committed resources on the device. Creation never
// waits on the GPU.
type Allocator struct {
	dev gpu.Device
}

func NewAllocator(dev gpu.Device) *Allocator {
	return &Allocator{dev: dev}
}

func (a *Allocator) Device() gpu.Device { return a.dev }

// Buffer is an upload-heap buffer mapped for its whole lifetime. The
// mapped memory never moves.
type Buffer struct {
	res  gpu.Resource
	size uint64
	mem  []byte
}

// CreateBuffer allocates an upload-heap buffer of exactly size bytes in the
// generic-read state and maps it.
func (a *Allocator) CreateBuffer(size uint64) (*Buffer, error) {
	if size == 0 {
		return nil, errors.New("create buffer: size must be positive")
	}
	res, err := a.dev.NewCommittedResource(gpu.HeapUpload, gpu.BufferDesc(size), gpu.StateGenericRead, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer of %d bytes", size)
	}
	mem, err := res.Map()
	if err != nil {
		res.Release()
		return nil, errors.Wrap(err, "map buffer")
	}
	return &Buffer{res: res, size: size, mem: mem[:size:size]}, nil
}

func (b *Buffer) Resource() gpu.Resource     { return b.res }
func (b *Buffer) Size() uint64               { return b.size }
func (b *Buffer) GPUAddress() gpu.GPUAddress { return b.res.GPUAddress() }

// Bytes is the mapped memory.
func (b *Buffer) Bytes() []byte { return b.mem }

func (b *Buffer) Release() {
	if b.res == nil {
		return
	}
	b.res.Unmap()
	b.res.Release()
	b.res, b.mem = nil, nil
}

// Mapped returns the buffer memory viewed as a T. The buffer must be at
// least as large as T.
func Mapped[T any](b *Buffer) *T {
	var zero T
	if uint64(unsafe.Sizeof(zero)) > b.size {
		panic(errors.AssertionFailedf("%T needs %d bytes, buffer has %d", zero, unsafe.Sizeof(zero), b.size))
	}
	return (*T)(unsafe.Pointer(&b.mem[0]))
}

// MappedSlice returns the buffer memory viewed as n values of T.
func MappedSlice[T any](b *Buffer, n int) []T {
	var zero T
	if uint64(unsafe.Sizeof(zero))*uint64(n) > b.size {
		panic(errors.AssertionFailedf("%d x %T needs %d bytes, buffer has %d", n, zero, uint64(unsafe.Sizeof(zero))*uint64(n), b.size))
	}
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b.mem[0])), n)
}

// CreateTypedBuffer allocates a buffer sized for n values of T.
func CreateTypedBuffer[T any](a *Allocator, n int) (*Buffer, error) {
	var zero T
	return a.CreateBuffer(uint64(unsafe.Sizeof(zero)) * uint64(n))
}

// Texture is a default-heap texture.
type Texture struct {
	res  gpu.Resource
	desc gpu.ResourceDesc
}

func (t *Texture) Resource() gpu.Resource { return t.res }
func (t *Texture) Desc() gpu.ResourceDesc { return t.desc }

func (t *Texture) Release() {
	if t.res == nil {
		return
	}
	t.res.Release()
	t.res = nil
}

// CreateDepthStencilTexture allocates a width x height depth-stencil
// texture in the depth-write state, optimized for clearing to depth 1.
func (a *Allocator) CreateDepthStencilTexture(width, height int) (*Texture, error) {
	desc := gpu.ResourceDesc{
		Dimension:        gpu.DimensionTexture2D,
		Width:            uint64(width),
		Height:           uint32(height),
		DepthOrArraySize: 1,
		MipLevels:        1,
		Format:           DepthFormat,
		Flags:            gpu.FlagAllowDepthStencil,
	}
	clear := &gpu.ClearValue{Format: DepthFormat, Depth: 1.0}
	res, err := a.dev.NewCommittedResource(gpu.HeapDefault, desc, gpu.StateDepthWrite, clear)
	if err != nil {
		return nil, errors.Wrapf(err, "create depth stencil texture %dx%d", width, height)
	}
	return &Texture{res: res, desc: desc}, nil
}

// CreateColorTexture allocates a texture shaped after decoded image
// metadata, in the copy-destination state.
func (a *Allocator) CreateColorTexture(meta asset.Metadata) (*Texture, error) {
	arraySize := max(meta.ArraySize, 1)
	mips := max(meta.MipLevels, 1)
	desc := gpu.ResourceDesc{
		Dimension:        gpu.DimensionTexture2D,
		Width:            uint64(meta.Width),
		Height:           uint32(meta.Height),
		DepthOrArraySize: uint16(arraySize),
		MipLevels:        uint16(mips),
		Format:           meta.Format,
	}
	res, err := a.dev.NewCommittedResource(gpu.HeapDefault, desc, gpu.StateCopyDest, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "create texture %dx%d", meta.Width, meta.Height)
	}
	return &Texture{res: res, desc: desc}, nil
}
