// Package gputest provides a recording gpu.Device for renderer tests.
package gputest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

type Kind string

const (
	KindFence     Kind = "fence"
	KindSemaphore Kind = "semaphore"
	KindImage     Kind = "image"
	KindSampler   Kind = "sampler"
	KindBuffer    Kind = "buffer"
	KindPool      Kind = "pool"
	KindLayout    Kind = "layout"
	KindSet       Kind = "set"
	KindPipeline  Kind = "pipeline"
	KindSwapchain Kind = "swapchain"
	KindSwapImage Kind = "swap-image"
)

type resource struct {
	kind Kind

	// fences
	signaled bool
	pending  bool

	image     gpu.ImageDesc
	buffer    []byte
	pipeline  gpu.PipelineDesc
	layout    []gpu.LayoutEntry
	writes    []gpu.BindingWrite
	pool      containers.Handle
	poolSize  uint32
	poolUsed  uint32
	swapchain *swapchainState
	owner     containers.Handle
}

type swapchainState struct {
	desc   gpu.SwapchainDesc
	images []gpu.Image
	next   uint32
}

// Device is safe for concurrent use. Fences complete when waited on, which
// keeps the in-flight count observable.
type Device struct {
	mu        sync.Mutex
	resources *containers.Arena[*resource]
	streams   []*Stream

	caps        gpu.SurfaceCaps
	acquireErrs []error
	presentErrs []error
	failures    map[string]error

	inFlight    int
	maxInFlight int

	PresentCalls     int
	Presented        int
	Acquires         int
	Submits          int
	SwapchainCreates int
	LayoutCreates    int
	PipelineCreates  int
	WaitIdleCalls    int
	BufferWrites     map[gpu.Buffer]int
}

func NewDevice() *Device {
	return &Device{
		resources: containers.NewArena[*resource](64),
		failures:  make(map[string]error),
		caps: gpu.SurfaceCaps{
			Formats: []gpu.SurfaceFormat{
				{Format: gputypes.TextureFormatRGBA8UnormSrgb, ColorSpace: gpu.ColorSpaceSRGBNonLinear},
				{Format: gputypes.TextureFormatBGRA8Unorm, ColorSpace: gpu.ColorSpaceSRGBNonLinear},
			},
			PresentModes: []gputypes.PresentMode{
				gputypes.PresentModeFifo,
				gputypes.PresentModeMailbox,
				gputypes.PresentModeImmediate,
			},
			CurrentExtent: gpu.Extent2D{Width: 1280, Height: 720},
			MinExtent:     gpu.Extent2D{Width: 1, Height: 1},
			MaxExtent:     gpu.Extent2D{Width: 16384, Height: 16384},
			MinImageCount: 2,
			MaxImageCount: 3,
		},
		BufferWrites: make(map[gpu.Buffer]int),
	}
}

// SetSurfaceCaps replaces the reported surface capabilities.
func (d *Device) SetSurfaceCaps(caps gpu.SurfaceCaps) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = caps
}

// SetSurfaceSize changes the current extent. A zero size makes acquire report
// out-of-date, like a minimized window.
func (d *Device) SetSurfaceSize(width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps.CurrentExtent = gpu.Extent2D{Width: width, Height: height}
}

// QueueAcquireResult makes the next acquire return err.
func (d *Device) QueueAcquireResult(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireErrs = append(d.acquireErrs, err)
}

// QueuePresentResult makes the next present return err.
func (d *Device) QueuePresentResult(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentErrs = append(d.presentErrs, err)
}

// FailNext makes the next call of the named Device method return err.
func (d *Device) FailNext(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method] = err
}

func (d *Device) failure(method string) error {
	if err, ok := d.failures[method]; ok {
		delete(d.failures, method)
		return err
	}
	return nil
}

func (d *Device) insert(r *resource) containers.Handle {
	return d.resources.Insert(r)
}

func (d *Device) lookup(h containers.Handle, kind Kind) (*resource, error) {
	r, ok := d.resources.Get(h)
	if !ok || r.kind != kind {
		return nil, fmt.Errorf("gputest: unknown %s handle %s", kind, h)
	}
	return r, nil
}

func (d *Device) release(h containers.Handle, kind Kind) {
	if r, ok := d.resources.Get(h); ok && r.kind == kind {
		d.resources.Remove(h)
	}
}

// Live counts live resources of a kind.
func (d *Device) Live(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	d.resources.Each(func(_ containers.Handle, r *resource) {
		if r.kind == kind {
			n++
		}
	})
	return n
}

// LiveTotal counts every live resource including swapchain images.
func (d *Device) LiveTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resources.Len()
}

func (d *Device) IsLive(h containers.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resources.Contains(h)
}

func (d *Device) ImageDesc(img gpu.Image) (gpu.ImageDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.lookup(img.Handle, KindImage)
	if err != nil {
		return gpu.ImageDesc{}, false
	}
	return r.image, true
}

func (d *Device) PipelineDesc(p gpu.Pipeline) (gpu.PipelineDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.lookup(p.Handle, KindPipeline)
	if err != nil {
		return gpu.PipelineDesc{}, false
	}
	return r.pipeline, true
}

func (d *Device) BufferData(b gpu.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.lookup(b.Handle, KindBuffer)
	if err != nil {
		return nil
	}
	return slices.Clone(r.buffer)
}

func (d *Device) SetWrites(set gpu.BindingSet) []gpu.BindingWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.lookup(set.Handle, KindSet)
	if err != nil {
		return nil
	}
	return r.writes
}

func (d *Device) SwapchainDesc(sc gpu.Swapchain) (gpu.SwapchainDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.lookup(sc.Handle, KindSwapchain)
	if err != nil {
		return gpu.SwapchainDesc{}, false
	}
	return r.swapchain.desc, true
}

// InFlight is the number of submitted fences not yet waited on.
func (d *Device) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

func (d *Device) MaxInFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInFlight
}

func (d *Device) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.streams)
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateFence"); err != nil {
		return gpu.Fence{}, err
	}
	return gpu.Fence{Handle: d.insert(&resource{kind: KindFence, signaled: signaled})}, nil
}

func (d *Device) WaitFence(fence gpu.Fence, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("WaitFence"); err != nil {
		return err
	}
	r, err := d.lookup(fence.Handle, KindFence)
	if err != nil {
		return err
	}
	if r.pending {
		r.pending = false
		r.signaled = true
		d.inFlight--
	}
	if !r.signaled {
		// nothing will ever signal it
		return fmt.Errorf("gputest: wait on idle unsignaled fence: %w", core.ErrDeviceLost)
	}
	return nil
}

func (d *Device) ResetFence(fence gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.lookup(fence.Handle, KindFence)
	if err != nil {
		return err
	}
	if r.pending {
		return fmt.Errorf("gputest: reset of in-flight fence %s", fence.Handle)
	}
	r.signaled = false
	return nil
}

func (d *Device) DestroyFence(fence gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, err := d.lookup(fence.Handle, KindFence); err == nil && r.pending {
		d.inFlight--
	}
	d.release(fence.Handle, KindFence)
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Semaphore{Handle: d.insert(&resource{kind: KindSemaphore})}, nil
}

func (d *Device) DestroySemaphore(semaphore gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(semaphore.Handle, KindSemaphore)
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateImage"); err != nil {
		return gpu.Image{}, err
	}
	if desc.Extent.IsZero() {
		return gpu.Image{}, fmt.Errorf("gputest: image %q with zero extent", desc.Label)
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		return gpu.Image{}, fmt.Errorf("gputest: image %q without format", desc.Label)
	}
	return gpu.Image{Handle: d.insert(&resource{kind: KindImage, image: desc})}, nil
}

func (d *Device) DestroyImage(image gpu.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(image.Handle, KindImage)
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Sampler{Handle: d.insert(&resource{kind: KindSampler})}, nil
}

func (d *Device) DestroySampler(sampler gpu.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(sampler.Handle, KindSampler)
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateBuffer"); err != nil {
		return gpu.Buffer{}, err
	}
	return gpu.Buffer{Handle: d.insert(&resource{kind: KindBuffer, buffer: make([]byte, desc.Size)})}, nil
}

func (d *Device) WriteBuffer(buffer gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.lookup(buffer.Handle, KindBuffer)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > uint64(len(r.buffer)) {
		return fmt.Errorf("gputest: write of %d bytes at %d overflows buffer of %d", len(data), offset, len(r.buffer))
	}
	copy(r.buffer[offset:], data)
	d.BufferWrites[buffer]++
	return nil
}

func (d *Device) DestroyBuffer(buffer gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(buffer.Handle, KindBuffer)
}

func (d *Device) CreateBindingPool(desc gpu.PoolDesc) (gpu.BindingPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.BindingPool{Handle: d.insert(&resource{kind: KindPool, poolSize: desc.MaxSets})}, nil
}

func (d *Device) DestroyBindingPool(pool gpu.BindingPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// sets allocated from the pool die with it
	var owned []containers.Handle
	d.resources.Each(func(h containers.Handle, r *resource) {
		if r.kind == KindSet && r.pool == pool.Handle {
			owned = append(owned, h)
		}
	})
	for _, h := range owned {
		d.resources.Remove(h)
	}
	d.release(pool.Handle, KindPool)
}

func (d *Device) CreateBindingLayout(entries []gpu.LayoutEntry) (gpu.BindingLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LayoutCreates++
	return gpu.BindingLayout{Handle: d.insert(&resource{kind: KindLayout, layout: slices.Clone(entries)})}, nil
}

func (d *Device) DestroyBindingLayout(layout gpu.BindingLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(layout.Handle, KindLayout)
}

func (d *Device) AllocateBindingSet(pool gpu.BindingPool, layout gpu.BindingLayout) (gpu.BindingSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pool.Handle, KindPool)
	if err != nil {
		return gpu.BindingSet{}, err
	}
	if _, err := d.lookup(layout.Handle, KindLayout); err != nil {
		return gpu.BindingSet{}, err
	}
	if p.poolUsed >= p.poolSize {
		return gpu.BindingSet{}, fmt.Errorf("gputest: pool of %d sets is full: %w", p.poolSize, core.ErrPoolExhausted)
	}
	p.poolUsed++
	return gpu.BindingSet{Handle: d.insert(&resource{kind: KindSet, pool: pool.Handle})}, nil
}

func (d *Device) FreeBindingSet(pool gpu.BindingPool, set gpu.BindingSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pool.Handle, KindPool)
	if err != nil {
		return err
	}
	s, err := d.lookup(set.Handle, KindSet)
	if err != nil {
		return err
	}
	if s.pool != pool.Handle {
		return fmt.Errorf("gputest: set %s does not belong to pool %s", set.Handle, pool.Handle)
	}
	p.poolUsed--
	d.resources.Remove(set.Handle)
	return nil
}

func (d *Device) WriteBindingSet(set gpu.BindingSet, writes []gpu.BindingWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.lookup(set.Handle, KindSet)
	if err != nil {
		return err
	}
	for _, w := range writes {
		for _, img := range w.Images {
			if !d.resources.Contains(img.Handle) {
				return fmt.Errorf("gputest: binding %d references dead image %s", w.Binding, img.Handle)
			}
		}
		for _, b := range w.Buffers {
			if !d.resources.Contains(b.Buffer.Handle) {
				return fmt.Errorf("gputest: binding %d references dead buffer %s", w.Binding, b.Buffer.Handle)
			}
		}
	}
	s.writes = slices.Clone(writes)
	return nil
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreatePipeline"); err != nil {
		return gpu.Pipeline{}, err
	}
	if len(desc.Vertex) == 0 || len(desc.Fragment) == 0 {
		return gpu.Pipeline{}, fmt.Errorf("gputest: pipeline %q without shader code: %w", desc.Name, core.ErrPipelineCreation)
	}
	d.PipelineCreates++
	return gpu.Pipeline{Handle: d.insert(&resource{kind: KindPipeline, pipeline: desc})}, nil
}

func (d *Device) DestroyPipeline(pipeline gpu.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(pipeline.Handle, KindPipeline)
}

func (d *Device) CreateCommandStream() (gpu.CommandStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Stream{id: len(d.streams)}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *Device) DestroyCommandStream(stream gpu.CommandStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := stream.(*Stream); ok {
		s.destroyed = true
	}
}

func (d *Device) SurfaceCapabilities() (gpu.SurfaceCaps, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("SurfaceCapabilities"); err != nil {
		return gpu.SurfaceCaps{}, err
	}
	caps := d.caps
	caps.Formats = slices.Clone(d.caps.Formats)
	caps.PresentModes = slices.Clone(d.caps.PresentModes)
	return caps, nil
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, []gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateSwapchain"); err != nil {
		return gpu.Swapchain{}, nil, err
	}
	if desc.Extent.IsZero() {
		return gpu.Swapchain{}, nil, fmt.Errorf("gputest: swapchain with zero extent")
	}
	if !slices.Contains(d.caps.PresentModes, desc.PresentMode) {
		return gpu.Swapchain{}, nil, fmt.Errorf("gputest: unsupported present mode %s", desc.PresentMode)
	}
	if desc.Old.IsValid() {
		if _, err := d.lookup(desc.Old.Handle, KindSwapchain); err != nil {
			return gpu.Swapchain{}, nil, fmt.Errorf("gputest: old swapchain: %w", err)
		}
	}
	state := &swapchainState{desc: desc}
	h := d.insert(&resource{kind: KindSwapchain, swapchain: state})
	for i := uint32(0); i < desc.ImageCount; i++ {
		img := gpu.Image{Handle: d.insert(&resource{
			kind:  KindSwapImage,
			owner: h,
			image: gpu.ImageDesc{
				Label:  fmt.Sprintf("swap-%d", i),
				Extent: desc.Extent,
				Layers: 1,
				Format: desc.Format.Format,
				Usage:  gputypes.TextureUsageRenderAttachment,
				Aspect: gputypes.TextureAspectAll,
			},
		})}
		state.images = append(state.images, img)
	}
	d.SwapchainCreates++
	return gpu.Swapchain{Handle: h}, slices.Clone(state.images), nil
}

func (d *Device) DestroySwapchain(swapchain gpu.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.lookup(swapchain.Handle, KindSwapchain)
	if err != nil {
		return
	}
	for _, img := range r.swapchain.images {
		d.resources.Remove(img.Handle)
	}
	d.resources.Remove(swapchain.Handle)
}

func (d *Device) AcquireNextImage(swapchain gpu.Swapchain, signal gpu.Semaphore, timeout time.Duration) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Acquires++
	r, err := d.lookup(swapchain.Handle, KindSwapchain)
	if err != nil {
		return 0, err
	}
	sem, err := d.lookup(signal.Handle, KindSemaphore)
	if err != nil {
		return 0, err
	}
	if len(d.acquireErrs) > 0 {
		err := d.acquireErrs[0]
		d.acquireErrs = d.acquireErrs[1:]
		if err != nil && !errors.Is(err, core.ErrSuboptimal) {
			return 0, err
		}
		if err != nil {
			index := d.nextImage(r.swapchain)
			sem.signaled = true
			return index, err
		}
	}
	if d.caps.CurrentExtent.IsZero() || d.caps.CurrentExtent != r.swapchain.desc.Extent {
		return 0, core.ErrOutOfDate
	}
	if sem.signaled {
		return 0, fmt.Errorf("gputest: acquire signals semaphore %s that is already signaled", signal.Handle)
	}
	sem.signaled = true
	return d.nextImage(r.swapchain), nil
}

func (d *Device) nextImage(sc *swapchainState) uint32 {
	index := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	return index
}

func (d *Device) Submit(stream gpu.CommandStream, wait, signal gpu.Semaphore, fence gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("Submit"); err != nil {
		return err
	}
	s, ok := stream.(*Stream)
	if !ok || s.recording || s.destroyed {
		return fmt.Errorf("gputest: submit of a stream that is not ready")
	}
	if wait.IsValid() {
		w, err := d.lookup(wait.Handle, KindSemaphore)
		if err != nil {
			return err
		}
		if !w.signaled {
			return fmt.Errorf("gputest: submit waits on unsignaled semaphore %s", wait.Handle)
		}
		w.signaled = false
	}
	if signal.IsValid() {
		sg, err := d.lookup(signal.Handle, KindSemaphore)
		if err != nil {
			return err
		}
		sg.signaled = true
	}
	if fence.IsValid() {
		f, err := d.lookup(fence.Handle, KindFence)
		if err != nil {
			return err
		}
		if f.pending || f.signaled {
			return fmt.Errorf("gputest: submit with fence %s that was not reset", fence.Handle)
		}
		f.pending = true
		d.inFlight++
		if d.inFlight > d.maxInFlight {
			d.maxInFlight = d.inFlight
		}
	}
	s.submits++
	d.Submits++
	return nil
}

func (d *Device) Present(swapchain gpu.Swapchain, index uint32, wait gpu.Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PresentCalls++
	r, err := d.lookup(swapchain.Handle, KindSwapchain)
	if err != nil {
		return err
	}
	if int(index) >= len(r.swapchain.images) {
		return fmt.Errorf("gputest: present of image %d out of %d", index, len(r.swapchain.images))
	}
	if wait.IsValid() {
		w, err := d.lookup(wait.Handle, KindSemaphore)
		if err != nil {
			return err
		}
		w.signaled = false
	}
	if len(d.presentErrs) > 0 {
		err := d.presentErrs[0]
		d.presentErrs = d.presentErrs[1:]
		if err != nil {
			return err
		}
	}
	d.Presented++
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WaitIdleCalls++
	d.resources.Each(func(_ containers.Handle, r *resource) {
		if r.kind == KindFence && r.pending {
			r.pending = false
			r.signaled = true
		}
	})
	d.inFlight = 0
	return nil
}

var _ gpu.Device = (*Device)(nil)
