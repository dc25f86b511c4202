package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/umbra/engine/core"
)

type Settings struct {
	LogLevel string           `toml:"log_level"`
	Window   WindowSettings   `toml:"window"`
	Renderer RendererSettings `toml:"renderer"`
}

type WindowSettings struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererSettings struct {
	FramesInFlight uint32 `toml:"frames_in_flight"`
	VSync          bool   `toml:"vsync"`
	// DebugView selects the lighting output: 0 lit, 1 albedo, 2 position,
	// 3 normal, 4 depth, 5 cascade index.
	DebugView  uint32 `toml:"debug_view"`
	Validation bool   `toml:"validation"`

	Shadow      ShadowSettings      `toml:"shadow"`
	Tonemap     TonemapSettings     `toml:"tonemap"`
	Antialias   AntialiasSettings   `toml:"antialias"`
	BindingPool BindingPoolSettings `toml:"binding_pool"`
}

type ShadowSettings struct {
	SplitWeight           float32 `toml:"split_weight"`
	FarPlane              float32 `toml:"far_plane"`
	DirectionalResolution uint32  `toml:"directional_resolution"`
	PointResolution       uint32  `toml:"point_resolution"`
	SpotResolution        uint32  `toml:"spot_resolution"`
	DepthBits             uint32  `toml:"depth_bits"`
	Softness              float32 `toml:"softness"`
	Samples               uint32  `toml:"samples"`
}

type TonemapSettings struct {
	Exposure float32 `toml:"exposure"`
	Operator string  `toml:"operator"`
}

type AntialiasSettings struct {
	Mode             string  `toml:"mode"`
	EdgeThreshold    float32 `toml:"edge_threshold"`
	EdgeThresholdMin float32 `toml:"edge_threshold_min"`
	Subpixel         float32 `toml:"subpixel"`
}

type BindingPoolSettings struct {
	MaxMaterials uint32 `toml:"max_materials"`
	FixedSets    uint32 `toml:"fixed_sets"`
}

const (
	MaxDebugView uint32 = 5

	ToneMapACES     = "aces"
	ToneMapReinhard = "reinhard"
	ToneMapNone     = "none"

	AntialiasNone = "none"
	AntialiasFXAA = "fxaa"
)

func Default() *Settings {
	return &Settings{
		LogLevel: string(core.LogLevelInfo),
		Window: WindowSettings{
			Title:  "Umbra",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererSettings{
			FramesInFlight: 2,
			VSync:          true,
			DebugView:      0,
			Validation:     false,
			Shadow: ShadowSettings{
				SplitWeight:           0.87,
				FarPlane:              140,
				DirectionalResolution: 2048,
				PointResolution:       1024,
				SpotResolution:        1024,
				DepthBits:             32,
				Softness:              1.0,
				Samples:               16,
			},
			Tonemap: TonemapSettings{
				Exposure: 1.0,
				Operator: ToneMapACES,
			},
			Antialias: AntialiasSettings{
				Mode:             AntialiasFXAA,
				EdgeThreshold:    0.125,
				EdgeThresholdMin: 0.0312,
				Subpixel:         0.75,
			},
			BindingPool: BindingPoolSettings{
				MaxMaterials: 256,
				FixedSets:    8,
			},
		},
	}
}

// Load reads and validates a settings file. Keys missing from the file keep
// their default values.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Parse(data []byte) (*Settings, error) {
	s := Default()
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Marshal() ([]byte, error) {
	return toml.Marshal(s)
}

func (s *Settings) Validate() error {
	if _, ok := core.ParseLogLevel(s.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level %q", core.ErrInvalidConfig, s.LogLevel)
	}
	if s.Window.Width == 0 || s.Window.Height == 0 {
		return fmt.Errorf("%w: window size must be non-zero", core.ErrInvalidConfig)
	}

	r := s.Renderer
	if r.FramesInFlight < 2 || r.FramesInFlight > 3 {
		return fmt.Errorf("%w: frames_in_flight must be 2 or 3, got %d", core.ErrInvalidConfig, r.FramesInFlight)
	}
	if r.DebugView > MaxDebugView {
		return fmt.Errorf("%w: debug_view %d out of range", core.ErrInvalidConfig, r.DebugView)
	}
	if err := r.Shadow.Validate(); err != nil {
		return err
	}

	switch r.Tonemap.Operator {
	case ToneMapACES, ToneMapReinhard, ToneMapNone:
	default:
		return fmt.Errorf("%w: unknown tonemap operator %q", core.ErrInvalidConfig, r.Tonemap.Operator)
	}
	if r.Tonemap.Exposure <= 0 {
		return fmt.Errorf("%w: exposure must be positive", core.ErrInvalidConfig)
	}

	switch r.Antialias.Mode {
	case AntialiasNone, AntialiasFXAA:
	default:
		return fmt.Errorf("%w: unknown antialias mode %q", core.ErrInvalidConfig, r.Antialias.Mode)
	}
	if r.BindingPool.MaxMaterials == 0 {
		return fmt.Errorf("%w: binding_pool.max_materials must be positive", core.ErrInvalidConfig)
	}
	return nil
}

func (s ShadowSettings) Validate() error {
	if s.SplitWeight < 0 || s.SplitWeight > 1 {
		return fmt.Errorf("%w: split_weight %v outside [0,1]", core.ErrInvalidConfig, s.SplitWeight)
	}
	if s.FarPlane <= 0 {
		return fmt.Errorf("%w: far_plane must be positive", core.ErrInvalidShadowRange)
	}
	switch s.DepthBits {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: depth_bits must be 16, 24 or 32, got %d", core.ErrInvalidConfig, s.DepthBits)
	}
	for _, res := range []uint32{s.DirectionalResolution, s.PointResolution, s.SpotResolution} {
		if res == 0 || res&(res-1) != 0 {
			return fmt.Errorf("%w: shadow resolution %d is not a power of two", core.ErrInvalidConfig, res)
		}
	}
	return nil
}
