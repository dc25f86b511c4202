// Package surface manages the presentable image chain of a window.
package surface

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

// Window reports the current drawable size in pixels.
type Window interface {
	DrawableSize() (width, height uint32)
}

// SwapImage is one presentable image and the layout it was last moved to.
type SwapImage struct {
	Image  gpu.Image
	Layout gpu.ImageLayout
}

type Surface struct {
	device gpu.Device
	window Window

	vsync bool
	stale bool

	swapchain   gpu.Swapchain
	images      []SwapImage
	format      gpu.SurfaceFormat
	presentMode gputypes.PresentMode
	extent      gpu.Extent2D
	imageCount  uint32
	generation  uint64
}

// Create queries the surface and builds the first chain at the window's
// drawable size.
func Create(device gpu.Device, window Window, preferVSync bool) (*Surface, error) {
	s := &Surface{
		device: device,
		window: window,
		vsync:  preferVSync,
	}
	w, h := window.DrawableSize()
	if err := s.build(gpu.Extent2D{Width: w, Height: h}, gpu.Swapchain{}); err != nil {
		if !errors.Is(err, core.ErrFrameSkipped) {
			return nil, err
		}
		// minimized at startup: the chain is built by the first Recreate
		// that sees a drawable area
		s.stale = true
		core.LogInfo("swapchain deferred, window has no drawable area")
		return s, nil
	}
	core.LogInfo("swapchain created: %s %s %d images, %s", s.extent, s.format.Format, len(s.images), s.presentMode)
	return s, nil
}

// build creates a chain for drawable. old, when valid, is handed to the
// device so the new chain can reuse its resources; the caller destroys it.
func (s *Surface) build(drawable gpu.Extent2D, old gpu.Swapchain) error {
	caps, err := s.device.SurfaceCapabilities()
	if err != nil {
		return err
	}
	if len(caps.Formats) == 0 || len(caps.PresentModes) == 0 {
		err := fmt.Errorf("surface reports %d formats and %d present modes: %w", len(caps.Formats), len(caps.PresentModes), core.ErrSurfaceUnsupported)
		core.LogError(err.Error())
		return err
	}

	extent := chooseExtent(caps, drawable)
	if extent.IsZero() {
		return fmt.Errorf("swapchain extent %s: %w", extent, core.ErrFrameSkipped)
	}

	desc := gpu.SwapchainDesc{
		Format:      chooseFormat(caps.Formats),
		PresentMode: choosePresentMode(caps.PresentModes, s.vsync),
		Extent:      extent,
		ImageCount:  chooseImageCount(caps),
		Old:         old,
	}
	swapchain, images, err := s.device.CreateSwapchain(desc)
	if err != nil {
		core.LogError("failed to create swapchain: %s", err)
		return err
	}

	s.swapchain = swapchain
	s.images = s.images[:0]
	for _, img := range images {
		s.images = append(s.images, SwapImage{Image: img, Layout: gpu.LayoutUndefined})
	}
	s.format = desc.Format
	s.presentMode = desc.PresentMode
	s.extent = extent
	s.imageCount = uint32(len(images))
	s.stale = false
	s.generation++
	return nil
}

// chooseFormat prefers 8-bit BGRA or RGBA in sRGB non-linear space and falls
// back to the first reported format.
func chooseFormat(formats []gpu.SurfaceFormat) gpu.SurfaceFormat {
	preferred := []gputypes.TextureFormat{
		gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatRGBA8Unorm,
	}
	for _, f := range formats {
		if f.ColorSpace == gpu.ColorSpaceSRGBNonLinear && slices.Contains(preferred, f.Format) {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode returns FIFO under vsync. Otherwise Mailbox, then
// Immediate, then FIFO, which every surface supports.
func choosePresentMode(modes []gputypes.PresentMode, vsync bool) gputypes.PresentMode {
	if vsync {
		return gputypes.PresentModeFifo
	}
	for _, want := range []gputypes.PresentMode{gputypes.PresentModeMailbox, gputypes.PresentModeImmediate} {
		if slices.Contains(modes, want) {
			return want
		}
	}
	return gputypes.PresentModeFifo
}

func chooseExtent(caps gpu.SurfaceCaps, drawable gpu.Extent2D) gpu.Extent2D {
	if caps.CurrentExtent.Width != gpu.UndefinedExtent {
		return caps.CurrentExtent
	}
	return gpu.Extent2D{
		Width:  math.Clamp(drawable.Width, caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: math.Clamp(drawable.Height, caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

func chooseImageCount(caps gpu.SurfaceCaps) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// AcquireNext returns the index of the next image and signals the semaphore
// once it is ready. core.ErrSuboptimal still returns a usable index.
func (s *Surface) AcquireNext(signal gpu.Semaphore) (uint32, error) {
	index, err := s.device.AcquireNextImage(s.swapchain, signal, gpu.NoTimeout)
	if err != nil {
		if core.IsRecoverable(err) {
			s.stale = true
		}
		return index, err
	}
	return index, nil
}

// Present queues image index for display once wait is signaled.
func (s *Surface) Present(index uint32, wait gpu.Semaphore) error {
	err := s.device.Present(s.swapchain, index, wait)
	if err == nil {
		return nil
	}
	if core.IsRecoverable(err) {
		s.stale = true
		return err
	}
	if !errors.Is(err, core.ErrPresentLost) && !errors.Is(err, core.ErrDeviceLost) {
		err = fmt.Errorf("present: %s: %w", err, core.ErrPresentLost)
	}
	core.LogError(err.Error())
	return err
}

// Recreate waits for the device to go idle and builds a new chain for the
// drawable size from the current one, which is released afterwards.
func (s *Surface) Recreate(drawable gpu.Extent2D) error {
	if drawable.IsZero() {
		return fmt.Errorf("recreate at %s: %w", drawable, core.ErrFrameSkipped)
	}
	if err := s.device.WaitIdle(); err != nil {
		return err
	}
	old := s.swapchain
	err := s.build(drawable, old)
	// the old chain is retired by the create call even when it fails
	if old.IsValid() {
		s.device.DestroySwapchain(old)
	}
	if err != nil {
		s.swapchain = gpu.Swapchain{}
		s.images = s.images[:0]
		s.imageCount = 0
		s.stale = true
		return err
	}
	core.LogDebug("swapchain recreated: %s %s", s.extent, s.presentMode)
	return nil
}

// Transition records a barrier only when the image is not already in the
// target layout.
func (s *Surface) Transition(stream gpu.CommandStream, index uint32, to gpu.ImageLayout) {
	img := &s.images[index]
	if img.Layout == to {
		return
	}
	stream.Barrier(img.Image, img.Layout, to)
	img.Layout = to
}

// SetVSync changes the present mode preference. The chain is rebuilt on the
// next frame.
func (s *Surface) SetVSync(enabled bool) {
	if s.vsync == enabled {
		return
	}
	s.vsync = enabled
	s.stale = true
}

func (s *Surface) VSync() bool { return s.vsync }

func (s *Surface) IsStale() bool { return s.stale }

// MarkStale forces a rebuild on the next frame.
func (s *Surface) MarkStale() { s.stale = true }

func (s *Surface) Extent() gpu.Extent2D { return s.extent }

func (s *Surface) Format() gpu.SurfaceFormat { return s.format }

func (s *Surface) PresentMode() gputypes.PresentMode { return s.presentMode }

func (s *Surface) ImageCount() uint32 { return s.imageCount }

func (s *Surface) Image(index uint32) SwapImage { return s.images[index] }

// IsBuilt reports whether a chain exists.
func (s *Surface) IsBuilt() bool { return s.swapchain.IsValid() }

func (s *Surface) Swapchain() gpu.Swapchain { return s.swapchain }

// Generation increases on every rebuild.
func (s *Surface) Generation() uint64 { return s.generation }

func (s *Surface) destroyChain() {
	if s.swapchain.IsValid() {
		s.device.DestroySwapchain(s.swapchain)
	}
	s.swapchain = gpu.Swapchain{}
	s.images = s.images[:0]
	s.imageCount = 0
}

func (s *Surface) Destroy() {
	s.destroyChain()
}
