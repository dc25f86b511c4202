// Package shadow computes shadow transforms and owns the shadow atlases.
package shadow

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/attachments"
	"github.com/spaghettifunk/umbra/engine/renderer/components"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// Shadow casters per light type. Every caster owns a fixed range of atlas
// layers: CascadeCount per directional light, six per point light, one per
// spot light.
const (
	MaxDirectionalShadows = 2
	MaxPointShadows       = 4
	MaxSpotShadows        = 8
)

const AtlasTarget = "depth"

type Settings struct {
	SplitWeight           float32
	FarPlane              float32
	DirectionalResolution uint32
	PointResolution       uint32
	SpotResolution        uint32
	DepthBits             uint32
}

func (s Settings) Validate() error {
	if s.SplitWeight < 0 || s.SplitWeight > 1 {
		return fmt.Errorf("%w: split weight %v outside [0,1]", core.ErrInvalidConfig, s.SplitWeight)
	}
	if s.FarPlane <= 0 {
		return fmt.Errorf("far plane %v: %w", s.FarPlane, core.ErrInvalidShadowRange)
	}
	if _, err := DepthFormat(s.DepthBits); err != nil {
		return err
	}
	for _, res := range []uint32{s.DirectionalResolution, s.PointResolution, s.SpotResolution} {
		if res == 0 {
			return fmt.Errorf("%w: shadow atlas resolution must be positive", core.ErrInvalidConfig)
		}
	}
	return nil
}

// DepthFormat maps a depth bit width to the atlas format.
func DepthFormat(bits uint32) (gputypes.TextureFormat, error) {
	switch bits {
	case 16:
		return gputypes.TextureFormatDepth16Unorm, nil
	case 24:
		return gputypes.TextureFormatDepth24Plus, nil
	case 32:
		return gputypes.TextureFormatDepth32Float, nil
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("%w: unsupported shadow depth bits %d", core.ErrInvalidConfig, bits)
}

// View is one depth render the shadow pass records: an atlas layer and the
// transform used to draw casters into it.
type View struct {
	Kind       metadata.LightKind
	Atlas      *attachments.Set
	Layer      uint32
	ViewProj   mgl32.Mat4
	Resolution uint32
}

type cascadeKey struct {
	camera   uint64
	dir      mgl32.Vec3
	settings uint64
}

type System struct {
	device   gpu.Device
	settings Settings
	// bumped on every settings change so cached cascades are dropped
	settingsGen uint64

	atlases atlasSet

	keys           [MaxDirectionalShadows]cascadeKey
	cached         [MaxDirectionalShadows][CascadeCount]metadata.CascadeSlice
	valid          [MaxDirectionalShadows]bool
	recomputations uint64

	views []View
}

func NewSystem(device gpu.Device, settings Settings) (*System, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	atlases, err := buildAtlases(device, settings)
	if err != nil {
		return nil, err
	}
	return &System{
		device:      device,
		settings:    settings,
		settingsGen: 1,
		atlases:     atlases,
	}, nil
}

type atlasSet struct {
	directional *attachments.Set
	point       *attachments.Set
	spot        *attachments.Set
}

func (a atlasSet) destroy() {
	for _, set := range []*attachments.Set{a.spot, a.point, a.directional} {
		if set != nil {
			set.Destroy()
		}
	}
}

// buildAtlases creates the three atlases for settings. Nothing is left
// allocated when it fails.
func buildAtlases(device gpu.Device, settings Settings) (atlasSet, error) {
	var out atlasSet
	format, err := DepthFormat(settings.DepthBits)
	if err != nil {
		return out, err
	}
	desc := []attachments.Descriptor{{
		Name:          AtlasTarget,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		Aspect:        gputypes.TextureAspectDepthOnly,
		InitialLayout: gpu.LayoutDepthRead,
	}}
	sampler := gpu.SamplerDesc{
		Filter:  gputypes.FilterModeLinear,
		Address: gputypes.AddressModeClampToEdge,
		Compare: gputypes.CompareFunctionLessEqual,
	}

	atlases := []struct {
		target **attachments.Set
		name   string
		layers uint32
		res    uint32
	}{
		{&out.directional, "shadow.directional", MaxDirectionalShadows * CascadeCount, settings.DirectionalResolution},
		{&out.point, "shadow.point", MaxPointShadows * 6, settings.PointResolution},
		{&out.spot, "shadow.spot", MaxSpotShadows, settings.SpotResolution},
	}
	for _, a := range atlases {
		set, err := attachments.NewSet(device, a.name, desc, attachments.Options{Layers: a.layers, Sampler: sampler})
		if err != nil {
			out.destroy()
			return atlasSet{}, err
		}
		if err := set.Build(gpu.Extent2D{Width: a.res, Height: a.res}); err != nil {
			set.Destroy()
			out.destroy()
			return atlasSet{}, err
		}
		*a.target = set
	}
	return out, nil
}

func (s *System) destroyAtlases() {
	s.atlases.destroy()
	s.atlases = atlasSet{}
}

func (s *System) Settings() Settings { return s.settings }

// SetSettings applies new shadow settings. Atlases are rebuilt when their
// resolution or depth format changes, so the device must be idle.
func (s *System) SetSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	old := s.settings
	if old == settings {
		return nil
	}

	if old.DepthBits != settings.DepthBits ||
		old.DirectionalResolution != settings.DirectionalResolution ||
		old.PointResolution != settings.PointResolution ||
		old.SpotResolution != settings.SpotResolution {
		// the old atlases stay in place if the new ones cannot be built
		atlases, err := buildAtlases(s.device, settings)
		if err != nil {
			return err
		}
		s.destroyAtlases()
		s.atlases = atlases
		core.LogInfo("shadow atlases rebuilt: %d bits, %d/%d/%d", settings.DepthBits,
			settings.DirectionalResolution, settings.PointResolution, settings.SpotResolution)
	}
	s.settings = settings
	s.settingsGen++
	return nil
}

// Update assigns atlas layers to shadow casting lights, refreshes directional
// cascades when the camera, light direction or settings changed, and rebuilds
// the list of depth views for the shadow pass.
func (s *System) Update(cam *components.Camera, lights []metadata.Light) error {
	s.views = s.views[:0]
	var dirCount, pointCount, spotCount int

	for _, l := range lights {
		sp := l.Shadow()
		sp.Layer = -1
		if !l.IsActive() || !sp.CastShadows {
			continue
		}

		switch light := l.(type) {
		case *metadata.DirectionalLight:
			if dirCount >= MaxDirectionalShadows {
				return fmt.Errorf("%d shadowed directional lights, at most %d: %w", dirCount+1, MaxDirectionalShadows, core.ErrTooManyLights)
			}
			cascades, err := s.cascades(dirCount, cam, light)
			if err != nil {
				return err
			}
			light.Cascades = cascades
			sp.Layer = int32(dirCount * CascadeCount)
			for i, c := range cascades {
				s.views = append(s.views, View{
					Kind:       metadata.LightKindDirectional,
					Atlas:      s.atlases.directional,
					Layer:      uint32(dirCount*CascadeCount + i),
					ViewProj:   c.ViewProj,
					Resolution: s.settings.DirectionalResolution,
				})
			}
			dirCount++

		case *metadata.PointLight:
			if pointCount >= MaxPointShadows {
				return fmt.Errorf("%d shadowed point lights, at most %d: %w", pointCount+1, MaxPointShadows, core.ErrTooManyLights)
			}
			sp.Layer = int32(pointCount * 6)
			for i, m := range PointFaceMatrices(light) {
				s.views = append(s.views, View{
					Kind:       metadata.LightKindPoint,
					Atlas:      s.atlases.point,
					Layer:      uint32(pointCount*6 + i),
					ViewProj:   m,
					Resolution: s.settings.PointResolution,
				})
			}
			pointCount++

		case *metadata.SpotLight:
			if spotCount >= MaxSpotShadows {
				return fmt.Errorf("%d shadowed spot lights, at most %d: %w", spotCount+1, MaxSpotShadows, core.ErrTooManyLights)
			}
			sp.Layer = int32(spotCount)
			s.views = append(s.views, View{
				Kind:       metadata.LightKindSpot,
				Atlas:      s.atlases.spot,
				Layer:      uint32(spotCount),
				ViewProj:   SpotMatrix(light),
				Resolution: s.settings.SpotResolution,
			})
			spotCount++
		}
	}

	for i := dirCount; i < MaxDirectionalShadows; i++ {
		s.valid[i] = false
	}
	return nil
}

func (s *System) cascades(index int, cam *components.Camera, light *metadata.DirectionalLight) ([CascadeCount]metadata.CascadeSlice, error) {
	key := cascadeKey{
		camera:   cam.Generation(),
		dir:      light.Direction,
		settings: s.settingsGen,
	}
	if s.valid[index] && s.keys[index] == key {
		return s.cached[index], nil
	}
	cascades, err := RecalculateCascades(cam, light, s.settings)
	if err != nil {
		return cascades, err
	}
	s.keys[index] = key
	s.cached[index] = cascades
	s.valid[index] = true
	s.recomputations++
	return cascades, nil
}

// Recomputations counts cascade recalculations since creation.
func (s *System) Recomputations() uint64 { return s.recomputations }

// Views returns the depth renders computed by the last Update.
func (s *System) Views() []View { return s.views }

func (s *System) Directional() *attachments.Set { return s.atlases.directional }

func (s *System) Point() *attachments.Set { return s.atlases.point }

func (s *System) Spot() *attachments.Set { return s.atlases.spot }

// Atlases returns every atlas set.
func (s *System) Atlases() []*attachments.Set {
	return []*attachments.Set{s.atlases.directional, s.atlases.point, s.atlases.spot}
}

func (s *System) Destroy() {
	s.destroyAtlases()
	s.views = nil
}
