package surface

import (
	"errors"
	"io"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu/gputest"
)

func init() {
	core.LogSetOutput(io.Discard)
}

type window struct{ w, h uint32 }

func (w *window) DrawableSize() (uint32, uint32) { return w.w, w.h }

func TestCreateChoosesFormatAndMode(t *testing.T) {
	d := gputest.NewDevice()
	s, err := Create(d, &window{1280, 720}, true)
	if err != nil {
		t.Fatal(err)
	}
	if s.Format().Format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("format = %s, want BGRA8Unorm", s.Format().Format)
	}
	if s.PresentMode() != gputypes.PresentModeFifo {
		t.Errorf("vsync present mode = %s", s.PresentMode())
	}
	if s.ImageCount() != 3 {
		t.Errorf("image count = %d, want min+1", s.ImageCount())
	}
	if s.Extent() != (gpu.Extent2D{Width: 1280, Height: 720}) {
		t.Errorf("extent = %s", s.Extent())
	}
}

func TestPresentModeFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		modes []gputypes.PresentMode
		vsync bool
		want  gputypes.PresentMode
	}{
		{"vsync", []gputypes.PresentMode{gputypes.PresentModeMailbox, gputypes.PresentModeFifo}, true, gputypes.PresentModeFifo},
		{"mailbox", []gputypes.PresentMode{gputypes.PresentModeFifo, gputypes.PresentModeImmediate, gputypes.PresentModeMailbox}, false, gputypes.PresentModeMailbox},
		{"immediate", []gputypes.PresentMode{gputypes.PresentModeFifo, gputypes.PresentModeImmediate}, false, gputypes.PresentModeImmediate},
		{"fifo", []gputypes.PresentMode{gputypes.PresentModeFifo}, false, gputypes.PresentModeFifo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := choosePresentMode(tt.modes, tt.vsync); got != tt.want {
				t.Errorf("choosePresentMode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFormatFallsBackToFirst(t *testing.T) {
	formats := []gpu.SurfaceFormat{
		{Format: gputypes.TextureFormatRGBA16Float, ColorSpace: gpu.ColorSpaceExtendedSRGBLinear},
		{Format: gputypes.TextureFormatBGRA8Unorm, ColorSpace: gpu.ColorSpaceHDR10},
	}
	if got := chooseFormat(formats); got != formats[0] {
		t.Errorf("chooseFormat() = %+v", got)
	}
}

func TestExtentClampedWhenUndefined(t *testing.T) {
	caps := gpu.SurfaceCaps{
		CurrentExtent: gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
		MinExtent:     gpu.Extent2D{Width: 64, Height: 64},
		MaxExtent:     gpu.Extent2D{Width: 4096, Height: 2048},
	}
	got := chooseExtent(caps, gpu.Extent2D{Width: 10, Height: 9000})
	if got != (gpu.Extent2D{Width: 64, Height: 2048}) {
		t.Errorf("chooseExtent() = %s", got)
	}
	if n := chooseImageCount(gpu.SurfaceCaps{MinImageCount: 3, MaxImageCount: 3}); n != 3 {
		t.Errorf("image count capped = %d", n)
	}
	if n := chooseImageCount(gpu.SurfaceCaps{MinImageCount: 2}); n != 3 {
		t.Errorf("image count unbounded = %d", n)
	}
}

func TestCreateUnsupported(t *testing.T) {
	d := gputest.NewDevice()
	d.SetSurfaceCaps(gpu.SurfaceCaps{PresentModes: []gputypes.PresentMode{gputypes.PresentModeFifo}})
	_, err := Create(d, &window{800, 600}, true)
	if !errors.Is(err, core.ErrSurfaceUnsupported) {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestCreateMinimized(t *testing.T) {
	d := gputest.NewDevice()
	d.SetSurfaceSize(0, 0)
	s, err := Create(d, &window{0, 0}, true)
	if err != nil {
		t.Fatal(err)
	}
	if s.IsBuilt() || !s.IsStale() || d.SwapchainCreates != 0 {
		t.Fatalf("built=%v stale=%v creates=%d", s.IsBuilt(), s.IsStale(), d.SwapchainCreates)
	}
	d.SetSurfaceSize(800, 600)
	if err := s.Recreate(gpu.Extent2D{Width: 800, Height: 600}); err != nil {
		t.Fatal(err)
	}
	if !s.IsBuilt() || s.IsStale() {
		t.Errorf("built=%v stale=%v after recreate", s.IsBuilt(), s.IsStale())
	}
}

func TestRecreateReleasesOldChain(t *testing.T) {
	d := gputest.NewDevice()
	win := &window{1280, 720}
	s, _ := Create(d, win, true)
	old := s.Image(0).Image

	for i := 0; i < 3; i++ {
		prev := s.Swapchain()
		d.SetSurfaceSize(1920, 1080)
		if err := s.Recreate(gpu.Extent2D{Width: 1920, Height: 1080}); err != nil {
			t.Fatal(err)
		}
		desc, _ := d.SwapchainDesc(s.Swapchain())
		if desc.Old != prev {
			t.Errorf("recreate %d: new chain built from %v, want %v", i, desc.Old, prev)
		}
		if d.IsLive(prev.Handle) {
			t.Errorf("recreate %d: previous chain still live", i)
		}
	}
	if d.IsLive(old.Handle) {
		t.Error("old swap image still live")
	}
	if d.Live(gputest.KindSwapchain) != 1 || d.Live(gputest.KindSwapImage) != int(s.ImageCount()) {
		t.Errorf("live chains = %d images = %d", d.Live(gputest.KindSwapchain), d.Live(gputest.KindSwapImage))
	}
	if s.Extent() != (gpu.Extent2D{Width: 1920, Height: 1080}) {
		t.Errorf("extent = %s", s.Extent())
	}
	if err := s.Recreate(gpu.Extent2D{}); !errors.Is(err, core.ErrFrameSkipped) {
		t.Errorf("Recreate(0x0) = %v", err)
	}
}

func TestTransitionOnlyOnChange(t *testing.T) {
	d := gputest.NewDevice()
	s, _ := Create(d, &window{640, 480}, true)
	stream, _ := d.CreateCommandStream()
	fake := stream.(*gputest.Stream)
	_ = stream.Begin()

	s.Transition(stream, 1, gpu.LayoutColorAttachment)
	s.Transition(stream, 1, gpu.LayoutColorAttachment)
	s.Transition(stream, 1, gpu.LayoutPresentSrc)

	barriers := fake.Barriers(s.Image(1).Image)
	if len(barriers) != 2 {
		t.Fatalf("barriers = %d, want 2", len(barriers))
	}
	if barriers[1].From != gpu.LayoutColorAttachment || barriers[1].To != gpu.LayoutPresentSrc {
		t.Errorf("second barrier %s -> %s", barriers[1].From, barriers[1].To)
	}
}

func TestAcquireStaleAndVSync(t *testing.T) {
	d := gputest.NewDevice()
	s, _ := Create(d, &window{1280, 720}, true)
	sem, _ := d.CreateSemaphore()

	d.QueueAcquireResult(core.ErrOutOfDate)
	if _, err := s.AcquireNext(sem); !errors.Is(err, core.ErrOutOfDate) || !s.IsStale() {
		t.Fatalf("AcquireNext() = %v stale=%v", err, s.IsStale())
	}

	_ = s.Recreate(s.Extent())
	if s.IsStale() {
		t.Fatal("still stale after recreate")
	}
	s.SetVSync(false)
	if !s.IsStale() {
		t.Fatal("vsync change did not mark stale")
	}
	_ = s.Recreate(s.Extent())
	if s.PresentMode() != gputypes.PresentModeMailbox {
		t.Errorf("present mode without vsync = %s", s.PresentMode())
	}

	d.QueuePresentResult(errors.New("surface gone"))
	if err := s.Present(0, gpu.Semaphore{}); !errors.Is(err, core.ErrPresentLost) || !core.IsFatal(err) {
		t.Errorf("Present() = %v", err)
	}
}
