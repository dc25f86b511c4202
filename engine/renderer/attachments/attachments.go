// Package attachments owns groups of render target images that are built and
// released together.
package attachments

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

const (
	TargetAlbedo   = "albedo"
	TargetPosition = "position"
	TargetNormal   = "normal"
	TargetDepth    = "depth"
	TargetHDR      = "hdr"
	TargetLDR      = "ldr"
)

// Descriptor is immutable once the set is built. InitialLayout is the layout
// the image is moved to before its first use after a build.
type Descriptor struct {
	Name          string
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
	Aspect        gputypes.TextureAspect
	InitialLayout gpu.ImageLayout
}

const (
	colorUsage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	depthUsage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
)

// FrameTargets describes the G-Buffer, depth and the HDR/LDR color targets.
func FrameTargets() []Descriptor {
	return []Descriptor{
		{Name: TargetAlbedo, Format: gputypes.TextureFormatRGBA16Float, Usage: colorUsage, Aspect: gputypes.TextureAspectAll, InitialLayout: gpu.LayoutShaderRead},
		{Name: TargetPosition, Format: gputypes.TextureFormatRGBA32Float, Usage: colorUsage, Aspect: gputypes.TextureAspectAll, InitialLayout: gpu.LayoutShaderRead},
		{Name: TargetNormal, Format: gputypes.TextureFormatRGBA16Float, Usage: colorUsage, Aspect: gputypes.TextureAspectAll, InitialLayout: gpu.LayoutShaderRead},
		{Name: TargetDepth, Format: gputypes.TextureFormatDepth32Float, Usage: depthUsage, Aspect: gputypes.TextureAspectDepthOnly, InitialLayout: gpu.LayoutDepthRead},
		{Name: TargetHDR, Format: gputypes.TextureFormatRGBA16Float, Usage: colorUsage, Aspect: gputypes.TextureAspectAll, InitialLayout: gpu.LayoutShaderRead},
		{Name: TargetLDR, Format: gputypes.TextureFormatRGBA8Unorm, Usage: colorUsage | gputypes.TextureUsageCopySrc, Aspect: gputypes.TextureAspectAll, InitialLayout: gpu.LayoutShaderRead},
	}
}

// Target is a built attachment with its tracked layout.
type Target struct {
	Descriptor
	Image  gpu.Image
	Layout gpu.ImageLayout
}

type Options struct {
	// FollowSurface sets are rebuilt at the drawable size on every resize.
	FollowSurface bool
	// Layers greater than one builds array images.
	Layers  uint32
	Sampler gpu.SamplerDesc
}

type Set struct {
	device      gpu.Device
	name        string
	descriptors []Descriptor
	opts        Options

	targets     []*Target
	byName      map[string]*Target
	sampler     gpu.Sampler
	extent      gpu.Extent2D
	id          core.Identifier
	initialized bool
}

func NewSet(device gpu.Device, name string, descriptors []Descriptor, opts Options) (*Set, error) {
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" || seen[d.Name] {
			return nil, fmt.Errorf("attachment set %q: duplicate or empty name %q", name, d.Name)
		}
		if d.Format == gputypes.TextureFormatUndefined {
			return nil, fmt.Errorf("attachment set %q: %q has no format", name, d.Name)
		}
		seen[d.Name] = true
	}
	if opts.Layers == 0 {
		opts.Layers = 1
	}
	if opts.Sampler.Filter == gputypes.FilterModeUndefined {
		opts.Sampler.Filter = gputypes.FilterModeLinear
	}
	if opts.Sampler.Address == gputypes.AddressModeUndefined {
		opts.Sampler.Address = gputypes.AddressModeClampToEdge
	}
	return &Set{
		device:      device,
		name:        name,
		descriptors: append([]Descriptor(nil), descriptors...),
		opts:        opts,
		byName:      make(map[string]*Target, len(descriptors)),
	}, nil
}

// Build allocates every image at extent plus the shared sampler. A built set
// is released first.
func (s *Set) Build(extent gpu.Extent2D) error {
	if extent.IsZero() {
		return fmt.Errorf("attachment set %q: build at %s: %w", s.name, extent, core.ErrFrameSkipped)
	}
	if s.IsBuilt() {
		s.Destroy()
	}

	for _, d := range s.descriptors {
		img, err := s.device.CreateImage(gpu.ImageDesc{
			Label:  s.name + "." + d.Name,
			Extent: extent,
			Layers: s.opts.Layers,
			Format: d.Format,
			Usage:  d.Usage,
			Aspect: d.Aspect,
		})
		if err != nil {
			s.Destroy()
			err = fmt.Errorf("attachment %s.%s: %w", s.name, d.Name, err)
			core.LogError(err.Error())
			return err
		}
		t := &Target{Descriptor: d, Image: img, Layout: gpu.LayoutUndefined}
		s.targets = append(s.targets, t)
		s.byName[d.Name] = t
	}

	sampler, err := s.device.CreateSampler(s.opts.Sampler)
	if err != nil {
		s.Destroy()
		return err
	}
	s.sampler = sampler
	s.extent = extent
	s.id = core.NewIdentifier()
	s.initialized = false
	core.LogDebug("attachment set %s built at %s (%s)", s.name, extent, s.id.Short())
	return nil
}

// Initialize moves every target to its initial layout. It records nothing
// after the first call following a build.
func (s *Set) Initialize(stream gpu.CommandStream) {
	if s.initialized {
		return
	}
	for _, t := range s.targets {
		if t.InitialLayout != gpu.LayoutUndefined {
			s.transition(stream, t, t.InitialLayout)
		}
	}
	s.initialized = true
}

// Transition records a barrier only if the tracked layout differs. It reports
// whether a barrier was recorded.
func (s *Set) Transition(stream gpu.CommandStream, name string, to gpu.ImageLayout) bool {
	t, ok := s.byName[name]
	if !ok {
		core.LogWarn("attachment set %s has no target %q", s.name, name)
		return false
	}
	return s.transition(stream, t, to)
}

func (s *Set) transition(stream gpu.CommandStream, t *Target, to gpu.ImageLayout) bool {
	if t.Layout == to {
		return false
	}
	stream.Barrier(t.Image, t.Layout, to)
	t.Layout = to
	return true
}

func (s *Set) Layout(name string) gpu.ImageLayout {
	if t, ok := s.byName[name]; ok {
		return t.Layout
	}
	return gpu.LayoutUndefined
}

func (s *Set) Image(name string) gpu.Image {
	if t, ok := s.byName[name]; ok {
		return t.Image
	}
	return gpu.Image{}
}

func (s *Set) Target(name string) (*Target, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Descriptor returns the description of a target whether or not the set is
// built.
func (s *Set) Descriptor(name string) (Descriptor, bool) {
	for _, d := range s.descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Targets returns the built targets in descriptor order.
func (s *Set) Targets() []*Target {
	return s.targets
}

func (s *Set) Sampler() gpu.Sampler { return s.sampler }

func (s *Set) Extent() gpu.Extent2D { return s.extent }

func (s *Set) Layers() uint32 { return s.opts.Layers }

func (s *Set) FollowSurface() bool { return s.opts.FollowSurface }

func (s *Set) Name() string { return s.name }

func (s *Set) ID() core.Identifier { return s.id }

func (s *Set) IsBuilt() bool { return len(s.targets) > 0 }

// Destroy releases the sampler and images in reverse creation order.
func (s *Set) Destroy() {
	if s.sampler.IsValid() {
		s.device.DestroySampler(s.sampler)
		s.sampler = gpu.Sampler{}
	}
	for i := len(s.targets) - 1; i >= 0; i-- {
		s.device.DestroyImage(s.targets[i].Image)
	}
	s.targets = s.targets[:0]
	for k := range s.byName {
		delete(s.byName, k)
	}
	s.extent = gpu.Extent2D{}
}
