package binding

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

func materialDesc(albedo gpu.Image, sampler gpu.Sampler) Description {
	return Description{Bindings: []Binding{
		{Kind: gpu.BindingUniformBuffer, Stages: gputypes.ShaderStagesVertexFragment},
		{Kind: gpu.BindingCombinedImageSampler, Stages: gputypes.ShaderStageFragment, Images: []gpu.Image{albedo}, Sampler: sampler},
	}}
}

func TestMakeLayoutCaching(t *testing.T) {
	d := gputest.NewDevice()
	a, err := NewAllocator(d, 8)
	if err != nil {
		t.Fatal(err)
	}

	img, _ := d.CreateImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 4, Height: 4}, Format: gputypes.TextureFormatRGBA8Unorm})
	other, _ := d.CreateImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 8, Height: 8}, Format: gputypes.TextureFormatRGBA8Unorm})

	l1, _ := a.MakeLayout(materialDesc(img, gpu.Sampler{}))
	l2, _ := a.MakeLayout(materialDesc(other, gpu.Sampler{}))
	if l1 != l2 {
		t.Error("equal structures produced different layouts")
	}

	differing := materialDesc(img, gpu.Sampler{})
	differing.Bindings[1].Stages = gputypes.ShaderStagesVertexFragment
	l3, _ := a.MakeLayout(differing)
	if l3 == l1 {
		t.Error("different stages share a layout")
	}

	counted := materialDesc(img, gpu.Sampler{})
	counted.Bindings[1].Count = 4
	l4, _ := a.MakeLayout(counted)
	if l4 == l1 || l4 == l3 {
		t.Error("different counts share a layout")
	}
	if d.LayoutCreates != 3 || a.CachedLayouts() != 3 {
		t.Errorf("layouts created = %d, cached = %d", d.LayoutCreates, a.CachedLayouts())
	}
}

func TestMakeSetIsAlwaysFresh(t *testing.T) {
	d := gputest.NewDevice()
	a, _ := NewAllocator(d, 8)
	img, _ := d.CreateImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 4, Height: 4}, Format: gputypes.TextureFormatRGBA8Unorm})
	sampler, _ := d.CreateSampler(gpu.SamplerDesc{})

	s1, err := a.MakeSet(materialDesc(img, sampler))
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := a.MakeSet(materialDesc(img, sampler))
	if s1 == s2 {
		t.Error("MakeSet returned the same set twice")
	}
	if got := d.SetWrites(s1); len(got) != 1 || got[0].Images[0] != img {
		t.Errorf("set writes = %+v", got)
	}
	l1, _ := a.LayoutOf(s1)
	l2, _ := a.LayoutOf(s2)
	if l1 != l2 {
		t.Error("sets of the same structure use different layouts")
	}
}

func TestUpdateRewritesImages(t *testing.T) {
	d := gputest.NewDevice()
	a, _ := NewAllocator(d, 4)
	old, _ := d.CreateImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 4, Height: 4}, Format: gputypes.TextureFormatRGBA16Float})
	set, _ := a.MakeSet(materialDesc(old, gpu.Sampler{}))

	d.DestroyImage(old)
	fresh, _ := d.CreateImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 8, Height: 8}, Format: gputypes.TextureFormatRGBA16Float})
	if err := a.Update(set, materialDesc(fresh, gpu.Sampler{})); err != nil {
		t.Fatal(err)
	}
	if got := d.SetWrites(set); got[0].Images[0] != fresh {
		t.Errorf("set still references %v", got[0].Images[0])
	}

	mismatched := Description{Bindings: []Binding{{Kind: gpu.BindingStorageBuffer}}}
	if err := a.Update(set, mismatched); err == nil {
		t.Error("update with a different structure should fail")
	}
}

func TestPoolExhaustion(t *testing.T) {
	d := gputest.NewDevice()
	a, _ := NewAllocator(d, PoolSize(1, 2, 0))
	desc := Description{Bindings: []Binding{{Kind: gpu.BindingUniformBuffer, Stages: gputypes.ShaderStageVertex}}}

	var sets []gpu.BindingSet
	for i := 0; i < 5; i++ {
		set, err := a.MakeSet(desc)
		if err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
		sets = append(sets, set)
	}
	_, err := a.MakeSet(desc)
	if !errors.Is(err, core.ErrPoolExhausted) || !core.IsFatal(err) {
		t.Fatalf("MakeSet on full pool = %v", err)
	}

	if err := a.Free(sets[0]); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(sets[0]); err == nil {
		t.Error("double free should fail")
	}
	if _, err := a.MakeSet(desc); err != nil {
		t.Errorf("MakeSet after free = %v", err)
	}

	if live := a.Destroy(); live != 5 {
		t.Errorf("Destroy() reported %d live sets", live)
	}
	if d.Live(gputest.KindLayout) != 0 || d.Live(gputest.KindPool) != 0 || d.Live(gputest.KindSet) != 0 {
		t.Error("allocator resources leaked")
	}
}
