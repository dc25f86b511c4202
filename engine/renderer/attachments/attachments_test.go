package attachments

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

func TestFrameTargetFormats(t *testing.T) {
	want := map[string]gputypes.TextureFormat{
		TargetAlbedo:   gputypes.TextureFormatRGBA16Float,
		TargetPosition: gputypes.TextureFormatRGBA32Float,
		TargetNormal:   gputypes.TextureFormatRGBA16Float,
		TargetDepth:    gputypes.TextureFormatDepth32Float,
		TargetHDR:      gputypes.TextureFormatRGBA16Float,
		TargetLDR:      gputypes.TextureFormatRGBA8Unorm,
	}
	for _, d := range FrameTargets() {
		if want[d.Name] != d.Format {
			t.Errorf("%s format = %s, want %s", d.Name, d.Format, want[d.Name])
		}
	}
}

func TestRebuildOnResize(t *testing.T) {
	d := gputest.NewDevice()
	set, err := NewSet(d, "frame", FrameTargets(), Options{FollowSurface: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := set.Build(gpu.Extent2D{Width: 1280, Height: 720}); err != nil {
		t.Fatal(err)
	}
	var old []gpu.Image
	for _, target := range set.Targets() {
		old = append(old, target.Image)
	}
	firstID := set.ID()

	resized := gpu.Extent2D{Width: 1920, Height: 1080}
	if err := set.Build(resized); err != nil {
		t.Fatal(err)
	}
	for _, img := range old {
		if d.IsLive(img.Handle) {
			t.Errorf("old attachment %s still live", img.Handle)
		}
	}
	for _, target := range set.Targets() {
		desc, ok := d.ImageDesc(target.Image)
		if !ok || desc.Extent != resized {
			t.Errorf("%s extent = %s, want %s", target.Name, desc.Extent, resized)
		}
	}
	if set.ID() == firstID {
		t.Error("rebuild kept the build identifier")
	}
	if d.Live(gputest.KindImage) != len(FrameTargets()) || d.Live(gputest.KindSampler) != 1 {
		t.Errorf("live images = %d samplers = %d", d.Live(gputest.KindImage), d.Live(gputest.KindSampler))
	}

	set.Destroy()
	if d.LiveTotal() != 0 {
		t.Errorf("resources leaked after destroy: %d", d.LiveTotal())
	}
}

func TestTransitionExactlyOnce(t *testing.T) {
	d := gputest.NewDevice()
	set, _ := NewSet(d, "frame", FrameTargets(), Options{})
	_ = set.Build(gpu.Extent2D{Width: 64, Height: 64})
	stream, _ := d.CreateCommandStream()
	fake := stream.(*gputest.Stream)
	_ = stream.Begin()

	set.Initialize(stream)
	set.Initialize(stream)
	if got := fake.Count(gputest.OpBarrier); got != len(FrameTargets()) {
		t.Fatalf("initialize barriers = %d", got)
	}

	if set.Transition(stream, TargetAlbedo, gpu.LayoutShaderRead) {
		t.Error("barrier recorded for a target already in the layout")
	}
	if !set.Transition(stream, TargetAlbedo, gpu.LayoutColorAttachment) {
		t.Error("no barrier for a layout change")
	}
	if set.Layout(TargetAlbedo) != gpu.LayoutColorAttachment {
		t.Errorf("layout tag = %s", set.Layout(TargetAlbedo))
	}
	b := fake.Barriers(set.Image(TargetAlbedo))
	if len(b) != 2 || b[1].From != gpu.LayoutShaderRead {
		t.Errorf("albedo barriers = %+v", b)
	}
}

func TestBuildFailureReleasesPartialSet(t *testing.T) {
	d := gputest.NewDevice()
	set, _ := NewSet(d, "frame", FrameTargets(), Options{})
	d.FailNext("CreateImage", core.ErrOutOfMemory)
	err := set.Build(gpu.Extent2D{Width: 64, Height: 64})
	if !errors.Is(err, core.ErrOutOfMemory) {
		t.Fatalf("Build() = %v", err)
	}
	if d.LiveTotal() != 0 || set.IsBuilt() {
		t.Error("partial build not released")
	}
}

func TestNewSetRejectsDuplicates(t *testing.T) {
	descs := []Descriptor{
		{Name: "a", Format: gputypes.TextureFormatRGBA8Unorm},
		{Name: "a", Format: gputypes.TextureFormatRGBA8Unorm},
	}
	if _, err := NewSet(gputest.NewDevice(), "dup", descs, Options{}); err == nil {
		t.Error("duplicate names accepted")
	}
}
