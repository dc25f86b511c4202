package gputest

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

func TestFenceInFlightAccounting(t *testing.T) {
	d := NewDevice()
	stream, _ := d.CreateCommandStream()
	fence, _ := d.CreateFence(true)

	if err := d.Submit(stream, gpu.Semaphore{}, gpu.Semaphore{}, fence); err == nil {
		t.Fatal("submit with a signaled fence should fail")
	}
	if err := d.ResetFence(fence); err != nil {
		t.Fatal(err)
	}
	_ = stream.Begin()
	_ = stream.End()
	if err := d.Submit(stream, gpu.Semaphore{}, gpu.Semaphore{}, fence); err != nil {
		t.Fatal(err)
	}
	if d.InFlight() != 1 || d.MaxInFlight() != 1 {
		t.Fatalf("in flight = %d max = %d", d.InFlight(), d.MaxInFlight())
	}
	if err := d.WaitFence(fence, gpu.NoTimeout); err != nil {
		t.Fatal(err)
	}
	if d.InFlight() != 0 {
		t.Errorf("in flight after wait = %d", d.InFlight())
	}
	_ = d.ResetFence(fence)
	if err := d.WaitFence(fence, gpu.NoTimeout); !errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("wait on idle fence = %v", err)
	}
}

func TestPoolCapacity(t *testing.T) {
	d := NewDevice()
	pool, _ := d.CreateBindingPool(gpu.PoolDesc{MaxSets: 1})
	layout, _ := d.CreateBindingLayout([]gpu.LayoutEntry{{Kind: gpu.BindingUniformBuffer, Stages: gputypes.ShaderStageVertex, Count: 1}})

	set, err := d.AllocateBindingSet(pool, layout)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.AllocateBindingSet(pool, layout); !errors.Is(err, core.ErrPoolExhausted) {
		t.Fatalf("second allocation = %v", err)
	}
	if err := d.FreeBindingSet(pool, set); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AllocateBindingSet(pool, layout); err != nil {
		t.Errorf("allocation after free = %v", err)
	}
}

func TestSwapchainAcquireAndPresent(t *testing.T) {
	d := NewDevice()
	desc := gpu.SwapchainDesc{
		Format:      gpu.SurfaceFormat{Format: gputypes.TextureFormatBGRA8Unorm},
		PresentMode: gputypes.PresentModeFifo,
		Extent:      gpu.Extent2D{Width: 1280, Height: 720},
		ImageCount:  3,
	}
	sc, images, err := d.CreateSwapchain(desc)
	if err != nil || len(images) != 3 {
		t.Fatalf("CreateSwapchain() = %v, %d images", err, len(images))
	}
	sem, _ := d.CreateSemaphore()

	idx, err := d.AcquireNextImage(sc, sem, gpu.NoTimeout)
	if err != nil || idx != 0 {
		t.Fatalf("acquire = %d, %v", idx, err)
	}
	if err := d.Present(sc, idx, gpu.Semaphore{}); err != nil {
		t.Fatal(err)
	}

	d.SetSurfaceSize(0, 0)
	sem2, _ := d.CreateSemaphore()
	if _, err := d.AcquireNextImage(sc, sem2, gpu.NoTimeout); !errors.Is(err, core.ErrOutOfDate) {
		t.Errorf("acquire on zero surface = %v", err)
	}

	d.DestroySwapchain(sc)
	if d.Live(KindSwapImage) != 0 {
		t.Errorf("swap images leaked: %d", d.Live(KindSwapImage))
	}
}
