package engine

import (
	"time"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Events, Device and Renderer are set by the engine before FnInitialize
	// runs.
	Events       *core.EventBus
	Device       gpu.Device
	Renderer     *renderer.Orchestrator
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime time.Duration) error

// Render fills the packet for the frame about to be drawn.
type Render func(packet *metadata.RenderPacket, deltaTime time.Duration) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
