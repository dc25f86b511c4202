package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
)

// NoTimeout blocks until the wait completes.
const NoTimeout = time.Duration(1<<63 - 1)

// UndefinedExtent in SurfaceCaps.CurrentExtent means the window decides.
const UndefinedExtent uint32 = 0xFFFFFFFF

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) Aspect() float32 {
	if e.Height == 0 {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// ImageLayout tags how an image is currently laid out in memory.
type ImageLayout uint8

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutShaderRead
	LayoutDepthRead
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutDepthAttachment:
		return "DepthAttachment"
	case LayoutShaderRead:
		return "ShaderRead"
	case LayoutDepthRead:
		return "DepthRead"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	case LayoutPresentSrc:
		return "PresentSrc"
	}
	return "Unknown"
}

type ColorSpace uint8

const (
	ColorSpaceSRGBNonLinear ColorSpace = iota
	ColorSpaceExtendedSRGBLinear
	ColorSpaceHDR10
)

type SurfaceFormat struct {
	Format     gputypes.TextureFormat
	ColorSpace ColorSpace
}

type SurfaceCaps struct {
	Formats       []SurfaceFormat
	PresentModes  []gputypes.PresentMode
	CurrentExtent Extent2D
	MinExtent     Extent2D
	MaxExtent     Extent2D
	MinImageCount uint32
	// MaxImageCount of zero means no limit.
	MaxImageCount uint32
}

type SwapchainDesc struct {
	Format      SurfaceFormat
	PresentMode gputypes.PresentMode
	Extent      Extent2D
	ImageCount  uint32
	Old         Swapchain
}

type ImageDesc struct {
	Label  string
	Extent Extent2D
	// Layers greater than one creates an array image with an array view.
	Layers uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
	Aspect gputypes.TextureAspect
}

type SamplerDesc struct {
	Filter  gputypes.FilterMode
	Address gputypes.AddressMode
	// CompareFunctionUndefined disables depth comparison.
	Compare gputypes.CompareFunction
}

type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

type BindingKind uint8

const (
	BindingUniformBuffer BindingKind = iota
	BindingStorageBuffer
	BindingSampledImage
	BindingCombinedImageSampler
	BindingSampler
)

func (k BindingKind) String() string {
	switch k {
	case BindingUniformBuffer:
		return "UniformBuffer"
	case BindingStorageBuffer:
		return "StorageBuffer"
	case BindingSampledImage:
		return "SampledImage"
	case BindingCombinedImageSampler:
		return "CombinedImageSampler"
	case BindingSampler:
		return "Sampler"
	}
	return "Unknown"
}

type LayoutEntry struct {
	Binding uint32
	Kind    BindingKind
	Stages  gputypes.ShaderStages
	Count   uint32
}

type PoolDesc struct {
	MaxSets uint32
	Sizes   map[BindingKind]uint32
}

type BufferRange struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

type BindingWrite struct {
	Binding uint32
	Kind    BindingKind
	Buffers []BufferRange
	Images  []Image
	Sampler Sampler
}

type ColorAttachment struct {
	Image Image
	Load  gputypes.LoadOp
	Store gputypes.StoreOp
	Clear gputypes.Color
}

type DepthAttachment struct {
	Image Image
	// Layer selects one layer of an array image.
	Layer      uint32
	Load       gputypes.LoadOp
	Store      gputypes.StoreOp
	ClearDepth float32
}

type PassDesc struct {
	Name   string
	Extent Extent2D
	Color  []ColorAttachment
	Depth  *DepthAttachment
}

type PipelineDesc struct {
	Name          string
	Vertex        []uint32
	Fragment      []uint32
	VertexEntry   string
	FragmentEntry string
	VertexLayouts []gputypes.VertexBufferLayout
	Layouts       []BindingLayout
	PushConstants uint32
	PushStages    gputypes.ShaderStages

	ColorFormats []gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat
	DepthTest    bool
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
	DepthBias    bool

	Topology  gputypes.PrimitiveTopology
	CullMode  gputypes.CullMode
	FrontFace gputypes.FrontFace
	Blend     bool
}
