package renderer

import (
	"fmt"

	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/passes"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
)

// Setters are applied between frames. Pass tunables take effect on the next
// recorded frame; shadow atlas changes wait for the device to go idle.

func (o *Orchestrator) between(op string) error {
	if o.state != StateIdle && o.state != StateResizing {
		return fmt.Errorf("%s while a frame is in state %s", op, o.state)
	}
	return nil
}

// SetVSync switches the present mode. The surface is rebuilt on the next
// frame.
func (o *Orchestrator) SetVSync(enabled bool) {
	o.surface.SetVSync(enabled)
}

func (o *Orchestrator) VSync() bool { return o.surface.VSync() }

func (o *Orchestrator) ShadowSettings() shadow.Settings { return o.shadows.Settings() }

// SetShadowSettings validates and applies settings. The far plane must lie
// beyond the near plane of the last camera drawn. Atlases whose resolution or
// depth format changed are rebuilt and every pass is refreshed.
func (o *Orchestrator) SetShadowSettings(settings shadow.Settings) error {
	if err := o.between("shadow settings"); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if o.near > 0 && settings.FarPlane <= o.near {
		return fmt.Errorf("far plane %v at or below camera near %v: %w", settings.FarPlane, o.near, core.ErrInvalidShadowRange)
	}
	old := o.shadows.Settings()
	if old == settings {
		return nil
	}
	atlases := old.DepthBits != settings.DepthBits ||
		old.DirectionalResolution != settings.DirectionalResolution ||
		old.PointResolution != settings.PointResolution ||
		old.SpotResolution != settings.SpotResolution
	if atlases {
		if err := o.device.WaitIdle(); err != nil {
			return err
		}
	}
	if err := o.shadows.SetSettings(settings); err != nil {
		return err
	}
	if atlases {
		return o.refreshPasses()
	}
	return nil
}

func (o *Orchestrator) SetShadowSplitWeight(w float32) error {
	s := o.shadows.Settings()
	s.SplitWeight = w
	return o.SetShadowSettings(s)
}

func (o *Orchestrator) ShadowSplitWeight() float32 { return o.shadows.Settings().SplitWeight }

func (o *Orchestrator) SetShadowFarPlane(far float32) error {
	s := o.shadows.Settings()
	s.FarPlane = far
	return o.SetShadowSettings(s)
}

func (o *Orchestrator) ShadowFarPlane() float32 { return o.shadows.Settings().FarPlane }

// SetShadowAtlasResolution sets the per layer resolution of one light type's
// atlas.
func (o *Orchestrator) SetShadowAtlasResolution(kind metadata.LightKind, resolution uint32) error {
	s := o.shadows.Settings()
	switch kind {
	case metadata.LightKindDirectional:
		s.DirectionalResolution = resolution
	case metadata.LightKindPoint:
		s.PointResolution = resolution
	case metadata.LightKindSpot:
		s.SpotResolution = resolution
	default:
		return fmt.Errorf("%w: no shadow atlas for light kind %s", core.ErrInvalidConfig, kind)
	}
	return o.SetShadowSettings(s)
}

func (o *Orchestrator) ShadowAtlasResolution(kind metadata.LightKind) uint32 {
	s := o.shadows.Settings()
	switch kind {
	case metadata.LightKindDirectional:
		return s.DirectionalResolution
	case metadata.LightKindPoint:
		return s.PointResolution
	case metadata.LightKindSpot:
		return s.SpotResolution
	}
	return 0
}

// SetShadowDepthBits selects a 16, 24 or 32 bit atlas depth format.
func (o *Orchestrator) SetShadowDepthBits(bits uint32) error {
	s := o.shadows.Settings()
	s.DepthBits = bits
	return o.SetShadowSettings(s)
}

func (o *Orchestrator) ShadowDepthBits() uint32 { return o.shadows.Settings().DepthBits }

func (o *Orchestrator) SetExposure(exposure float32) error {
	if exposure <= 0 {
		return fmt.Errorf("%w: exposure must be positive, got %v", core.ErrInvalidConfig, exposure)
	}
	o.settings.Exposure = exposure
	return nil
}

func (o *Orchestrator) Exposure() float32 { return o.settings.Exposure }

func (o *Orchestrator) SetToneMapOperator(op passes.ToneMapOperator) error {
	if op > passes.ToneMapNone {
		return fmt.Errorf("%w: tone map operator %d", core.ErrInvalidConfig, op)
	}
	o.settings.Operator = op
	return nil
}

func (o *Orchestrator) ToneMapOperator() passes.ToneMapOperator { return o.settings.Operator }

// SetAntialiasing toggles FXAA. With it off the antialias pass copies the
// LDR target unchanged.
func (o *Orchestrator) SetAntialiasing(enabled bool) { o.settings.Antialias = enabled }

func (o *Orchestrator) Antialiasing() bool { return o.settings.Antialias }

// SetAntialiasTunables sets the FXAA edge thresholds and subpixel blend.
func (o *Orchestrator) SetAntialiasTunables(edgeThreshold, edgeThresholdMin, subpixel float32) error {
	if edgeThreshold <= 0 || edgeThresholdMin < 0 || subpixel < 0 || subpixel > 1 {
		return fmt.Errorf("%w: antialias tunables %v/%v/%v", core.ErrInvalidConfig, edgeThreshold, edgeThresholdMin, subpixel)
	}
	o.settings.EdgeThreshold = edgeThreshold
	o.settings.EdgeThresholdMin = edgeThresholdMin
	o.settings.Subpixel = subpixel
	return nil
}

func (o *Orchestrator) AntialiasTunables() (edgeThreshold, edgeThresholdMin, subpixel float32) {
	return o.settings.EdgeThreshold, o.settings.EdgeThresholdMin, o.settings.Subpixel
}

func (o *Orchestrator) SetDebugView(mode metadata.RendererDebugViewMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: debug view %d", core.ErrInvalidConfig, mode)
	}
	o.settings.DebugView = mode
	return nil
}

func (o *Orchestrator) DebugView() metadata.RendererDebugViewMode { return o.settings.DebugView }

// SetUICallback registers the overlay callback. nil removes it.
func (o *Orchestrator) SetUICallback(cb passes.UICallback) { o.ui = cb }

// ApplySettings applies a reloaded [renderer] section. Frames in flight and
// the binding pool size are fixed at creation and only logged when changed.
func (o *Orchestrator) ApplySettings(r config.RendererSettings) error {
	if err := o.between("apply settings"); err != nil {
		return err
	}
	opts, err := OptionsFromConfig(r)
	if err != nil {
		return err
	}
	if opts.FramesInFlight != len(o.slots) {
		core.LogWarn("renderer %s: frames_in_flight change to %d needs a restart", o.id.Short(), opts.FramesInFlight)
	}
	if err := o.SetShadowSettings(opts.Shadow); err != nil {
		return err
	}
	o.settings = opts.Passes
	o.SetVSync(opts.VSync)
	return nil
}
