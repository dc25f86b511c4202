package gpu

import (
	"errors"
	"time"

	"github.com/gogpu/gputypes"
)

// ErrTimeout is returned by WaitFence when the timeout elapsed before the
// fence signaled.
var ErrTimeout = errors.New("gpu: wait timed out")

// Device is the GPU service the renderer records against. Implementations
// report surface staleness as core.ErrOutOfDate or core.ErrSuboptimal and map
// every other failure onto the core error taxonomy.
type Device interface {
	CreateFence(signaled bool) (Fence, error)
	WaitFence(fence Fence, timeout time.Duration) error
	ResetFence(fence Fence) error
	DestroyFence(fence Fence)
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)

	CreateImage(desc ImageDesc) (Image, error)
	DestroyImage(image Image)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	DestroySampler(sampler Sampler)

	CreateBuffer(desc BufferDesc) (Buffer, error)
	WriteBuffer(buffer Buffer, offset uint64, data []byte) error
	DestroyBuffer(buffer Buffer)

	CreateBindingPool(desc PoolDesc) (BindingPool, error)
	DestroyBindingPool(pool BindingPool)
	CreateBindingLayout(entries []LayoutEntry) (BindingLayout, error)
	DestroyBindingLayout(layout BindingLayout)
	AllocateBindingSet(pool BindingPool, layout BindingLayout) (BindingSet, error)
	FreeBindingSet(pool BindingPool, set BindingSet) error
	WriteBindingSet(set BindingSet, writes []BindingWrite) error

	CreatePipeline(desc PipelineDesc) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)

	CreateCommandStream() (CommandStream, error)
	DestroyCommandStream(stream CommandStream)

	SurfaceCapabilities() (SurfaceCaps, error)
	// CreateSwapchain returns the swapchain and its images. The images are
	// owned by the swapchain and released with it.
	CreateSwapchain(desc SwapchainDesc) (Swapchain, []Image, error)
	DestroySwapchain(swapchain Swapchain)
	AcquireNextImage(swapchain Swapchain, signal Semaphore, timeout time.Duration) (uint32, error)
	Submit(stream CommandStream, wait, signal Semaphore, fence Fence) error
	Present(swapchain Swapchain, index uint32, wait Semaphore) error
	WaitIdle() error
}

// CommandStream records GPU work for one frame slot. Recording calls do not
// fail individually; errors surface from End or Submit.
type CommandStream interface {
	Begin() error
	End() error
	Reset() error

	Barrier(image Image, from, to ImageLayout)
	BeginPass(desc PassDesc)
	EndPass()
	SetViewport(extent Extent2D)

	BindPipeline(pipeline Pipeline)
	BindSet(pipeline Pipeline, index uint32, set BindingSet)
	PushConstants(pipeline Pipeline, stages gputypes.ShaderStages, offset uint32, data []byte)
	BindVertexBuffer(buffer Buffer, offset uint64)
	BindIndexBuffer(buffer Buffer, offset uint64, format gputypes.IndexFormat)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
}
