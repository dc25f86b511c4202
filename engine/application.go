package engine

import (
	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Window starting width, if applicable.
	StartWidth uint32
	// Window starting height, if applicable.
	StartHeight uint32
	// The application name used in windowing, if applicable.
	Name     string
	LogLevel core.LogLevel
	// SettingsPath points at the TOML settings file. It is watched for
	// changes while the engine runs. Empty means built-in defaults.
	SettingsPath string
}

// apply overrides the window section of s with every field that is set.
func (c *ApplicationConfig) apply(s *config.Settings) {
	if c.Name != "" {
		s.Window.Title = c.Name
	}
	if c.StartPosX != 0 || c.StartPosY != 0 {
		s.Window.X, s.Window.Y = c.StartPosX, c.StartPosY
	}
	if c.StartWidth != 0 && c.StartHeight != 0 {
		s.Window.Width, s.Window.Height = c.StartWidth, c.StartHeight
	}
	if c.LogLevel != "" {
		s.LogLevel = string(c.LogLevel)
	}
}
