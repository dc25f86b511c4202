package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/umbra/engine/core"
)

func init() {
	core.LogSetOutput(io.Discard)
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestParseKeepsDefaults(t *testing.T) {
	s, err := Parse([]byte(`
log_level = "debug"

[renderer]
frames_in_flight = 3

[renderer.shadow]
split_weight = 0.5
`))
	if err != nil {
		t.Fatal(err)
	}
	if s.LogLevel != "debug" || s.Renderer.FramesInFlight != 3 || s.Renderer.Shadow.SplitWeight != 0.5 {
		t.Errorf("parsed values not applied: %+v", s.Renderer)
	}
	if s.Renderer.Shadow.FarPlane != 140 || s.Window.Width != 1280 {
		t.Errorf("defaults lost: far=%v width=%d", s.Renderer.Shadow.FarPlane, s.Window.Width)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"syntax", `renderer = [`, core.ErrInvalidConfig},
		{"frames", "[renderer]\nframes_in_flight = 5", core.ErrInvalidConfig},
		{"debug view", "[renderer]\ndebug_view = 6", core.ErrInvalidConfig},
		{"weight", "[renderer.shadow]\nsplit_weight = 1.5", core.ErrInvalidConfig},
		{"far plane", "[renderer.shadow]\nfar_plane = 0.0", core.ErrInvalidShadowRange},
		{"depth bits", "[renderer.shadow]\ndepth_bits = 8", core.ErrInvalidConfig},
		{"resolution", "[renderer.shadow]\nspot_resolution = 1000", core.ErrInvalidConfig},
		{"operator", "[renderer.tonemap]\noperator = \"filmic\"", core.ErrInvalidConfig},
		{"aa mode", "[renderer.antialias]\nmode = \"taa\"", core.ErrInvalidConfig},
		{"log level", `log_level = "loud"`, core.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMarshalRoundTripsChangedValues(t *testing.T) {
	s := Default()
	s.Renderer.Tonemap.Exposure = 2.5
	s.Renderer.Antialias.Mode = AntialiasNone

	data, err := s.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.Renderer.Tonemap.Exposure != 2.5 || back.Renderer.Antialias.Mode != AntialiasNone {
		t.Errorf("round trip lost values: %+v", back.Renderer)
	}
}

func TestWatcherDeliversValidReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "umbra.toml")
	if err := os.WriteFile(path, []byte("[renderer]\nvsync = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[renderer]\nframes_in_flight = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[renderer.tonemap]\nexposure = 3.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-w.Updates():
			if s.Renderer.FramesInFlight == 9 {
				t.Fatal("invalid settings were delivered")
			}
			if s.Renderer.Tonemap.Exposure == 3.0 {
				return
			}
		case <-timeout:
			t.Fatal("no reload delivered")
		}
	}
}
