package renderer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/components"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/passes"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
)

func init() {
	core.LogSetOutput(io.Discard)
}

type window struct{ w, h uint32 }

func (w *window) DrawableSize() (uint32, uint32) { return w.w, w.h }

type fixture struct {
	o      *Orchestrator
	device *gputest.Device
	window *window
	camera *components.Camera
}

func newFixture(t *testing.T, frames int, width, height uint32) *fixture {
	t.Helper()
	d := gputest.NewDevice()
	d.SetSurfaceSize(width, height)
	win := &window{width, height}

	opts := DefaultOptions()
	opts.FramesInFlight = frames
	opts.MaxMaterials = 4
	opts.Library = shaders.NewStatic()
	o, err := New(context.Background(), d, win, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = o.Shutdown() })

	cam := components.NewCamera()
	cam.SetPerspective(mgl32.DegToRad(60), 16.0/9.0, 0.01, 1000)
	return &fixture{o: o, device: d, window: win, camera: cam}
}

// resize changes the window and the surface together, like a real resize.
func (f *fixture) resize(width, height uint32) {
	f.window.w, f.window.h = width, height
	f.device.SetSurfaceSize(width, height)
	f.o.NotifyResize(width, height)
}

func (f *fixture) packet(items int, lights ...metadata.Light) *metadata.RenderPacket {
	p := &metadata.RenderPacket{
		DeltaTime: 1.0 / 60.0,
		Camera:    f.camera,
		Ambient:   mgl32.Vec3{0.05, 0.05, 0.05},
		Lights:    lights,
	}
	for i := 0; i < items; i++ {
		p.DrawItems = append(p.DrawItems, drawItem(true))
	}
	return p
}

func (f *fixture) draw(t *testing.T, p *metadata.RenderPacket) {
	t.Helper()
	if err := f.o.DrawFrame(context.Background(), p); err != nil {
		t.Fatalf("frame %d: %s", f.o.frame, err)
	}
}

func drawItem(castShadows bool) metadata.DrawItem {
	return metadata.DrawItem{
		IndexFormat: gputypes.IndexFormatUint32,
		IndexCount:  6,
		Transform:   mgl32.Ident4(),
		CastShadows: castShadows,
	}
}

func sun() *metadata.DirectionalLight {
	return &metadata.DirectionalLight{
		Direction:    mgl32.Vec3{-0.3, -1, -0.2},
		Color:        mgl32.Vec3{1, 0.95, 0.9},
		Intensity:    3,
		Active:       true,
		ShadowParams: metadata.ShadowParams{CastShadows: true, Softness: 1, Samples: 16},
	}
}

func (f *fixture) stream(slot int) *gputest.Stream {
	return f.o.slots[slot].Stream.(*gputest.Stream)
}

func TestFramesInFlightBounded(t *testing.T) {
	for _, n := range []int{2, 3} {
		t.Run(fmt.Sprintf("%d slots", n), func(t *testing.T) {
			f := newFixture(t, n, 1280, 720)
			for i := 0; i < 20; i++ {
				f.draw(t, f.packet(2))
				if got := f.device.InFlight(); got > n {
					t.Fatalf("frame %d: %d frames in flight, limit %d", i, got, n)
				}
			}
			if got := f.device.MaxInFlight(); got != n {
				t.Errorf("max in flight = %d, want %d", got, n)
			}
			if f.device.Presented != 20 {
				t.Errorf("presented %d frames, want 20", f.device.Presented)
			}
			if s := f.o.Stats(); s.Frames != 20 || s.Presents != 20 || s.Dropped != 0 {
				t.Errorf("stats = %+v", s)
			}
		})
	}
}

func TestPassesRecordInOrder(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)
	f.draw(t, f.packet(3, sun()))

	want := []string{
		passes.NameDepth, passes.NameGeometry, passes.NameShadow, passes.NameLighting,
		passes.NameTonemap, passes.NameAntialias, passes.NameUIOverlay,
	}
	if got := slices.Compact(f.stream(0).Passes()); !slices.Equal(got, want) {
		t.Errorf("passes = %v, want %v", got, want)
	}
	if f.o.State() != StateIdle {
		t.Errorf("state after frame = %s", f.o.State())
	}
}

func TestQueueEmptyAfterGeometry(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		f := newFixture(t, 2, 640, 480)
		if err := f.o.BeginFrame(context.Background()); err != nil {
			t.Fatal(err)
		}
		f.o.Queue().Enqueue(drawItem(false))
		if err := f.o.Record(f.packet(n)); err != nil {
			t.Fatal(err)
		}
		if f.o.Queue().Len() != 0 {
			t.Errorf("%d items: queue holds %d after recording", n, f.o.Queue().Len())
		}
		if err := f.o.EndFrame(); err != nil {
			t.Fatal(err)
		}
		// depth and geometry draw every item once
		if got := f.stream(0).Count(gputest.OpDrawIndexed); got != 2*(n+1) {
			t.Errorf("%d items: %d indexed draws, want %d", n, got, 2*(n+1))
		}
	}
}

func TestResizeRebuildsSurfaceSizedResources(t *testing.T) {
	f := newFixture(t, 2, 1920, 1080)
	f.draw(t, f.packet(1))

	var old []gpu.Image
	for _, target := range f.o.Targets().Targets() {
		old = append(old, target.Image)
	}
	for i := uint32(0); i < f.o.Surface().ImageCount(); i++ {
		old = append(old, f.o.Surface().Image(i).Image)
	}

	f.resize(1024, 768)
	slot := f.o.current
	f.draw(t, f.packet(1))

	want := gpu.Extent2D{Width: 1024, Height: 768}
	if f.o.Extent() != want || f.o.Surface().Extent() != want {
		t.Fatalf("extents = %s / %s, want %s", f.o.Extent(), f.o.Surface().Extent(), want)
	}
	for _, target := range f.o.Targets().Targets() {
		desc, ok := f.device.ImageDesc(target.Image)
		if !ok || desc.Extent != want {
			t.Errorf("%s: extent %s, want %s", target.Name, desc.Extent, want)
		}
	}
	for _, img := range old {
		if f.device.IsLive(img.Handle) {
			t.Errorf("image %s from before the resize is still live", img.Handle)
		}
	}
	for _, c := range f.stream(slot).Commands() {
		refs := []gpu.Image{c.Image}
		for _, color := range c.Pass.Color {
			refs = append(refs, color.Image)
		}
		if c.Pass.Depth != nil {
			refs = append(refs, c.Pass.Depth.Image)
		}
		for _, img := range refs {
			if img.IsValid() && slices.Contains(old, img) {
				t.Errorf("%s references image %s from before the resize", c.Op, img.Handle)
			}
		}
	}
	if s := f.o.Stats(); s.Resizes != 1 {
		t.Errorf("resizes = %d, want 1", s.Resizes)
	}
}

func TestMinimizedWindowNeverPresents(t *testing.T) {
	f := newFixture(t, 2, 1920, 1080)
	f.draw(t, f.packet(1))
	presents := f.device.PresentCalls
	acquires := f.device.Acquires

	f.resize(0, 0)
	for i := 0; i < 5; i++ {
		err := f.o.DrawFrame(context.Background(), f.packet(3))
		if !errors.Is(err, core.ErrFrameSkipped) {
			t.Fatalf("frame while minimized = %v, want ErrFrameSkipped", err)
		}
		if f.o.State() != StateResizing {
			t.Errorf("state while minimized = %s", f.o.State())
		}
	}
	if f.device.PresentCalls != presents || f.device.Acquires != acquires {
		t.Fatalf("minimized: %d presents and %d acquires", f.device.PresentCalls-presents, f.device.Acquires-acquires)
	}
	if f.o.Queue().Len() != 0 {
		t.Error("dropped frames left items queued")
	}

	f.resize(800, 600)
	f.draw(t, f.packet(1))
	if f.device.PresentCalls != presents+1 {
		t.Errorf("present calls after restore = %d, want %d", f.device.PresentCalls, presents+1)
	}
	if want := (gpu.Extent2D{Width: 800, Height: 600}); f.o.Extent() != want {
		t.Errorf("extent after restore = %s, want %s", f.o.Extent(), want)
	}
	if s := f.o.Stats(); s.Dropped != 5 {
		t.Errorf("dropped = %d, want 5", s.Dropped)
	}
}

func TestMinimizedAtStartup(t *testing.T) {
	f := newFixture(t, 2, 0, 0)
	if f.o.State() != StateResizing {
		t.Fatalf("state = %s, want Resizing", f.o.State())
	}
	if err := f.o.DrawFrame(context.Background(), f.packet(1)); !errors.Is(err, core.ErrFrameSkipped) {
		t.Fatalf("DrawFrame() = %v, want ErrFrameSkipped", err)
	}
	if f.device.PresentCalls != 0 {
		t.Fatal("presented without a surface")
	}

	f.resize(640, 360)
	f.draw(t, f.packet(1))
	if f.device.Presented != 1 {
		t.Errorf("presented = %d, want 1", f.device.Presented)
	}
}

func TestStaleAcquireDropsFrame(t *testing.T) {
	for _, result := range []error{core.ErrOutOfDate, core.ErrSuboptimal} {
		t.Run(result.Error(), func(t *testing.T) {
			f := newFixture(t, 2, 1280, 720)
			f.draw(t, f.packet(1))
			creates := f.device.SwapchainCreates
			presents := f.device.PresentCalls

			f.device.QueueAcquireResult(result)
			f.o.Queue().Enqueue(drawItem(true))
			err := f.o.DrawFrame(context.Background(), f.packet(2))
			if !errors.Is(err, core.ErrFrameSkipped) {
				t.Fatalf("DrawFrame() = %v, want ErrFrameSkipped", err)
			}
			if f.device.SwapchainCreates != creates+1 {
				t.Errorf("swapchain not rebuilt")
			}
			if f.device.PresentCalls != presents {
				t.Errorf("dropped frame was presented")
			}
			if f.o.Queue().Len() != 0 {
				t.Errorf("queue holds %d items after a dropped frame", f.o.Queue().Len())
			}

			for i := 0; i < 3; i++ {
				f.draw(t, f.packet(2))
			}
			if f.device.PresentCalls != presents+3 {
				t.Errorf("present calls = %d, want %d", f.device.PresentCalls, presents+3)
			}
		})
	}
}

func TestStalePresentRebuilds(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)
	f.device.QueuePresentResult(core.ErrOutOfDate)
	f.draw(t, f.packet(1))
	if s := f.o.Stats(); s.Resizes != 1 || s.Presents != 0 {
		t.Errorf("stats = %+v, want one resize and no presents", s)
	}
	if f.o.State() != StateIdle {
		t.Errorf("state = %s", f.o.State())
	}
	f.draw(t, f.packet(1))
	if f.device.Presented != 1 {
		t.Errorf("presented = %d, want 1", f.device.Presented)
	}
}

func TestFatalErrorsPropagate(t *testing.T) {
	tests := []struct {
		name   string
		inject func(d *gputest.Device)
		want   error
	}{
		{"acquire device lost", func(d *gputest.Device) { d.QueueAcquireResult(core.ErrDeviceLost) }, core.ErrDeviceLost},
		{"present lost", func(d *gputest.Device) { d.QueuePresentResult(errors.New("surface gone")) }, core.ErrPresentLost},
		{"submit out of memory", func(d *gputest.Device) { d.FailNext("Submit", core.ErrOutOfMemory) }, core.ErrOutOfMemory},
		{"fence wait device lost", func(d *gputest.Device) { d.FailNext("WaitFence", core.ErrDeviceLost) }, core.ErrDeviceLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2, 1280, 720)
			tt.inject(f.device)
			err := f.o.DrawFrame(context.Background(), f.packet(1))
			if !errors.Is(err, tt.want) {
				t.Fatalf("DrawFrame() = %v, want %v", err, tt.want)
			}
			if !core.IsFatal(err) {
				t.Errorf("%v is not classified fatal", err)
			}
			if f.o.Stats().Resizes != 0 {
				t.Error("fatal error triggered a rebuild")
			}
		})
	}
}

func readF32(data []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

func TestInactiveLightUploadsNoColor(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)
	lit := &metadata.PointLight{Position: mgl32.Vec3{1, 2, 3}, Color: mgl32.Vec3{1, 0.5, 0.25}, Intensity: 4, Radius: 10, Active: true}
	off := &metadata.PointLight{Position: mgl32.Vec3{-1, 2, 3}, Color: mgl32.Vec3{0.9, 0.9, 0.9}, Intensity: 8, Radius: 10, Active: false}
	f.draw(t, f.packet(3, lit, off))

	data := f.device.BufferData(f.o.lights.Buffer(0))
	if got := binary.LittleEndian.Uint32(data[16:]); got != 2 {
		t.Fatalf("point light count = %d, want 2", got)
	}
	const header, stride, color = 32, 48, 16
	for i, want := range []float32{1, 0.5, 0.25, 4} {
		if got := readF32(data, header+color+4*i); got != want {
			t.Errorf("active light color[%d] = %v, want %v", i, got, want)
		}
	}
	for i := 0; i < 4; i++ {
		if got := readF32(data, header+stride+color+4*i); got != 0 {
			t.Errorf("inactive light color[%d] = %v, want 0", i, got)
		}
	}
}

func TestUICallbackOncePerFrame(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)
	calls := 0
	f.o.SetUICallback(func(r *passes.UIRecorder) error {
		calls++
		return nil
	})
	for i := 0; i < 3; i++ {
		f.draw(t, f.packet(0))
	}
	if calls != 3 {
		t.Errorf("ui callback called %d times, want 3", calls)
	}
}

func TestRecordFailureDiscardsFrame(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)
	boom := errors.New("boom")
	f.o.SetUICallback(func(*passes.UIRecorder) error { return boom })
	creates := f.device.SwapchainCreates
	submits := f.device.Submits
	if err := f.o.DrawFrame(context.Background(), f.packet(1)); !errors.Is(err, boom) {
		t.Fatalf("DrawFrame() = %v, want the callback error", err)
	}
	if f.o.State() != StateIdle {
		t.Errorf("state = %s, want Idle", f.o.State())
	}
	// the acquired image goes back cleared instead of forcing a rebuild
	if f.device.Submits != submits+1 || f.device.PresentCalls != 1 {
		t.Errorf("submits = %d, present calls = %d", f.device.Submits-submits, f.device.PresentCalls)
	}
	if f.device.SwapchainCreates != creates || f.o.Surface().IsStale() {
		t.Error("a recording failure rebuilt the surface")
	}
	passes := f.stream(0).Passes()
	if passes[len(passes)-1] != "discard" {
		t.Errorf("last pass = %q, want the discard clear", passes[len(passes)-1])
	}
	if got := f.o.Surface().Image(0).Layout; got != gpu.LayoutPresentSrc {
		t.Errorf("released swap image layout = %s", got)
	}

	f.o.SetUICallback(nil)
	f.draw(t, f.packet(1))
	if s := f.o.Stats(); s.Resizes != 0 || s.Presents != 1 || s.Dropped != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestShadowRangeRejectedBeforeAcquire(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)
	f.camera.SetPerspective(f.camera.FovY(), f.camera.Aspect(), 0.01, 1000)
	f.draw(t, f.packet(1, sun()))

	if err := f.o.SetShadowFarPlane(0.005); !errors.Is(err, core.ErrInvalidShadowRange) {
		t.Errorf("SetShadowFarPlane(below near) = %v", err)
	}
	if got := f.o.ShadowFarPlane(); got == 0.005 {
		t.Error("far plane below near was applied")
	}

	// a camera whose near plane moved past the far plane is caught before
	// anything is acquired
	f.camera.SetPerspective(f.camera.FovY(), f.camera.Aspect(), 500, 1000)
	creates := f.device.SwapchainCreates
	acquires := f.device.Acquires
	err := f.o.DrawFrame(context.Background(), f.packet(1, sun()))
	if !errors.Is(err, core.ErrInvalidShadowRange) {
		t.Fatalf("DrawFrame() = %v, want ErrInvalidShadowRange", err)
	}
	if core.IsRecoverable(err) {
		t.Error("configuration error classified recoverable")
	}
	if f.device.Acquires != acquires || f.device.SwapchainCreates != creates {
		t.Errorf("acquires +%d, swapchain creates +%d", f.device.Acquires-acquires, f.device.SwapchainCreates-creates)
	}
	if f.o.State() != StateIdle || f.o.Stats().Resizes != 0 {
		t.Errorf("state = %s, resizes = %d", f.o.State(), f.o.Stats().Resizes)
	}

	f.camera.SetPerspective(f.camera.FovY(), f.camera.Aspect(), 0.01, 1000)
	f.draw(t, f.packet(1, sun()))
	if f.device.Presented != 2 {
		t.Errorf("presented = %d, want 2", f.device.Presented)
	}
}

func TestTooManyLightsAfterAcquire(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)
	var lights []metadata.Light
	for i := 0; i < shadow.MaxSpotShadows+1; i++ {
		lights = append(lights, &metadata.SpotLight{Direction: mgl32.Vec3{0, -1, 0}, Range: 10, OuterCone: 0.5, Active: true,
			ShadowParams: metadata.ShadowParams{CastShadows: true}})
	}
	if err := f.o.BeginFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.o.Record(f.packet(1, lights...)); !errors.Is(err, core.ErrTooManyLights) {
		t.Fatalf("Record() = %v, want ErrTooManyLights", err)
	}
	if f.o.State() != StateIdle || f.o.Surface().IsStale() {
		t.Errorf("state = %s, stale = %t", f.o.State(), f.o.Surface().IsStale())
	}
	f.draw(t, f.packet(1))
	if s := f.o.Stats(); s.Resizes != 0 || s.Presents != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSubmitFailureKeepsSlotUsable(t *testing.T) {
	t.Run("fatal", func(t *testing.T) {
		f := newFixture(t, 2, 1280, 720)
		f.device.FailNext("Submit", core.ErrOutOfMemory)
		if err := f.o.DrawFrame(context.Background(), f.packet(1)); !errors.Is(err, core.ErrOutOfMemory) {
			t.Fatalf("DrawFrame() = %v", err)
		}
		if err := f.device.WaitFence(f.o.slots[0].Fence, 0); err != nil {
			t.Errorf("slot fence left unsignaled: %v", err)
		}
	})
	t.Run("transient", func(t *testing.T) {
		f := newFixture(t, 2, 1280, 720)
		busy := errors.New("queue busy")
		f.device.FailNext("Submit", busy)
		if err := f.o.DrawFrame(context.Background(), f.packet(1)); !errors.Is(err, busy) {
			t.Fatalf("DrawFrame() = %v", err)
		}
		for i := 0; i < 3; i++ {
			f.draw(t, f.packet(1))
		}
		if f.device.Presented != 3 {
			t.Errorf("presented = %d, want 3", f.device.Presented)
		}
	})
}

func TestContextCancelled(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.o.DrawFrame(ctx, f.packet(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("DrawFrame() = %v, want context.Canceled", err)
	}
	if f.device.Acquires != 0 {
		t.Error("acquired after cancellation")
	}
}

func TestSetters(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)

	if err := f.o.SetDebugView(metadata.RENDERER_VIEW_MODE_CASCADES + 1); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("SetDebugView(out of range) = %v", err)
	}
	if err := f.o.SetDebugView(metadata.RENDERER_VIEW_MODE_NORMALS); err != nil || f.o.DebugView() != metadata.RENDERER_VIEW_MODE_NORMALS {
		t.Errorf("SetDebugView(normals) = %v, view %d", err, f.o.DebugView())
	}
	if err := f.o.SetExposure(0); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("SetExposure(0) = %v", err)
	}
	if err := f.o.SetShadowFarPlane(-1); !errors.Is(err, core.ErrInvalidShadowRange) {
		t.Errorf("SetShadowFarPlane(-1) = %v", err)
	}
	if err := f.o.SetShadowSplitWeight(1.5); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("SetShadowSplitWeight(1.5) = %v", err)
	}
	if err := f.o.SetShadowSplitWeight(0.5); err != nil || f.o.ShadowSplitWeight() != 0.5 {
		t.Errorf("SetShadowSplitWeight(0.5) = %v", err)
	}
	if err := f.o.SetAntialiasTunables(0.2, 0.05, 2); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("SetAntialiasTunables(subpixel 2) = %v", err)
	}
	if err := f.o.SetShadowAtlasResolution(metadata.LightKindPoint, 256); err != nil {
		t.Fatal(err)
	}
	if got := f.o.ShadowAtlasResolution(metadata.LightKindPoint); got != 256 {
		t.Errorf("point atlas resolution = %d", got)
	}

	pipelines := f.device.PipelineCreates
	if err := f.o.SetShadowDepthBits(16); err != nil {
		t.Fatal(err)
	}
	if f.device.PipelineCreates != pipelines+1 {
		t.Errorf("shadow pipeline not rebuilt for the new depth format")
	}
	f.draw(t, f.packet(2, sun()))

	f.o.SetVSync(false)
	f.draw(t, f.packet(1))
	if f.o.Surface().PresentMode() != gputypes.PresentModeMailbox {
		t.Errorf("present mode without vsync = %s", f.o.Surface().PresentMode())
	}
}

func TestSettersRejectedMidFrame(t *testing.T) {
	f := newFixture(t, 2, 1280, 720)
	if err := f.o.BeginFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.o.SetShadowDepthBits(24); err == nil {
		t.Error("atlas rebuild accepted while recording")
	}
	if err := f.o.Record(f.packet(0)); err != nil {
		t.Fatal(err)
	}
	if err := f.o.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	f := newFixture(t, 3, 1280, 720)
	for i := 0; i < 4; i++ {
		f.draw(t, f.packet(2, sun()))
	}
	f.resize(800, 600)
	f.draw(t, f.packet(1))

	if err := f.o.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if live := f.device.LiveTotal(); live != 0 {
		t.Errorf("%d device resources live after shutdown", live)
	}
	if err := f.o.BeginFrame(context.Background()); err == nil {
		t.Error("BeginFrame after shutdown succeeded")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := DefaultOptions()
	if opts.FramesInFlight != 2 || !opts.VSync || opts.Passes.Operator != passes.ToneMapACES || !opts.Passes.Antialias {
		t.Errorf("default options = %+v", opts)
	}
	if _, err := ParseToneMapOperator("filmic"); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("ParseToneMapOperator(filmic) = %v", err)
	}
	opts.FramesInFlight = 4
	if err := opts.Validate(); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("4 frames in flight accepted: %v", err)
	}
}
