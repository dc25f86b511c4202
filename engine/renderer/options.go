package renderer

import (
	"fmt"

	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/passes"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
)

const MaxFramesInFlight = 3

type Options struct {
	FramesInFlight int
	VSync          bool
	MaxMaterials   uint32
	// FixedSets is the headroom for sets the passes own.
	FixedSets uint32
	Shadow    shadow.Settings
	Passes    passes.Settings
	// Library provides compiled shaders. A nil Library compiles the embedded
	// shaders on creation.
	Library shaders.Library
}

func DefaultOptions() Options {
	o, _ := OptionsFromConfig(config.Default().Renderer)
	return o
}

func (o Options) Validate() error {
	if o.FramesInFlight < 1 || o.FramesInFlight > MaxFramesInFlight {
		return fmt.Errorf("%w: %d frames in flight, want 1..%d", core.ErrInvalidConfig, o.FramesInFlight, MaxFramesInFlight)
	}
	if !o.Passes.DebugView.IsValid() {
		return fmt.Errorf("%w: debug view %d", core.ErrInvalidConfig, o.Passes.DebugView)
	}
	if o.Passes.Exposure <= 0 {
		return fmt.Errorf("%w: exposure must be positive", core.ErrInvalidConfig)
	}
	return o.Shadow.Validate()
}

// OptionsFromConfig maps the [renderer] section of the settings file.
func OptionsFromConfig(r config.RendererSettings) (Options, error) {
	op, err := ParseToneMapOperator(r.Tonemap.Operator)
	if err != nil {
		return Options{}, err
	}
	o := Options{
		FramesInFlight: int(r.FramesInFlight),
		VSync:          r.VSync,
		MaxMaterials:   r.BindingPool.MaxMaterials,
		FixedSets:      r.BindingPool.FixedSets,
		Shadow: shadow.Settings{
			SplitWeight:           r.Shadow.SplitWeight,
			FarPlane:              r.Shadow.FarPlane,
			DirectionalResolution: r.Shadow.DirectionalResolution,
			PointResolution:       r.Shadow.PointResolution,
			SpotResolution:        r.Shadow.SpotResolution,
			DepthBits:             r.Shadow.DepthBits,
		},
		Passes: passes.Settings{
			DebugView:        metadata.RendererDebugViewMode(r.DebugView),
			Exposure:         r.Tonemap.Exposure,
			Operator:         op,
			Antialias:        r.Antialias.Mode == config.AntialiasFXAA,
			EdgeThreshold:    r.Antialias.EdgeThreshold,
			EdgeThresholdMin: r.Antialias.EdgeThresholdMin,
			Subpixel:         r.Antialias.Subpixel,
		},
	}
	return o, o.Validate()
}

func ParseToneMapOperator(name string) (passes.ToneMapOperator, error) {
	switch name {
	case config.ToneMapACES:
		return passes.ToneMapACES, nil
	case config.ToneMapReinhard:
		return passes.ToneMapReinhard, nil
	case config.ToneMapNone:
		return passes.ToneMapNone, nil
	}
	return 0, fmt.Errorf("%w: unknown tonemap operator %q", core.ErrInvalidConfig, name)
}
