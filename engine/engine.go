package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/platform"
	"github.com/spaghettifunk/umbra/engine/renderer"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool
	isSuspended  bool

	settings     *config.Settings
	settingsPath string
	watcher      *config.Watcher

	events   *core.EventBus
	platform *platform.Platform
	device   *vulkan.Device
	renderer *renderer.Orchestrator
	clock    *core.Clock

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown sync.Once
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("%w: game has no application config", core.ErrInvalidConfig)
	}

	settings := config.Default()
	if path := g.ApplicationConfig.SettingsPath; path != "" {
		s, err := config.Load(path)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		settings = s
	}
	g.ApplicationConfig.apply(settings)
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := core.NewEventBus()
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		settings:     settings,
		settingsPath: g.ApplicationConfig.SettingsPath,
		events:       events,
		platform:     platform.New(events),
		clock:        core.NewClock(),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if lvl, ok := core.ParseLogLevel(e.settings.LogLevel); ok {
		core.LogSetLevel(lvl)
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	w := e.settings.Window
	if err := e.platform.Startup(w.Title, w.X, w.Y, w.Width, w.Height); err != nil {
		return err
	}

	device, err := vulkan.New(e.platform.Window, vulkan.Config{
		ApplicationName: w.Title,
		Validation:      e.settings.Renderer.Validation,
	})
	if err != nil {
		return err
	}
	e.device = device

	opts, err := renderer.OptionsFromConfig(e.settings.Renderer)
	if err != nil {
		return err
	}
	r, err := renderer.New(e.ctx, device, e.platform, opts)
	if err != nil {
		return err
	}
	e.renderer = r

	if e.settingsPath != "" {
		watcher, err := config.NewWatcher(e.settingsPath)
		if err != nil {
			// hot reload is a convenience, keep running without it
			core.LogWarn("settings hot reload disabled: %s", err)
		} else {
			e.watcher = watcher
		}
	}

	e.gameInstance.Events = e.events
	e.gameInstance.Device = device
	e.gameInstance.Renderer = r
	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}

	width, height := e.platform.DrawableSize()
	if width == 0 || height == 0 {
		e.isSuspended = true
	} else if err := e.gameInstance.FnOnResize(width, height); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives frames until the window closes, a quit event arrives or a
// fatal error surfaces from the renderer.
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	lastTime := e.clock.Elapsed()

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		if err := e.reloadSettings(); err != nil {
			return err
		}

		if e.isSuspended {
			e.platform.WaitEvents()
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - lastTime
		lastTime = currentTime

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("game update failed, shutting down: %s", err)
			return err
		}

		packet := &metadata.RenderPacket{DeltaTime: delta.Seconds()}
		if err := e.gameInstance.FnRender(packet, delta); err != nil {
			core.LogError("game render failed, shutting down: %s", err)
			return err
		}

		if err := e.renderer.DrawFrame(e.ctx, packet); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				return nil
			case errors.Is(err, core.ErrFrameSkipped), core.IsRecoverable(err):
				core.LogDebug("frame dropped: %s", err)
			default:
				core.LogError("draw frame failed: %s", err)
				return err
			}
		}
	}
	return nil
}

// reloadSettings applies the newest settings delivered by the watcher, if
// any.
func (e *Engine) reloadSettings() error {
	if e.watcher == nil {
		return nil
	}
	select {
	case s, ok := <-e.watcher.Updates():
		if !ok {
			e.watcher = nil
			return nil
		}
		if err := e.renderer.ApplySettings(s.Renderer); err != nil {
			if core.IsFatal(err) {
				return err
			}
			core.LogWarn("settings reload rejected: %s", err)
			return nil
		}
		if lvl, ok := core.ParseLogLevel(s.LogLevel); ok {
			core.LogSetLevel(lvl)
		}
		e.settings.LogLevel = s.LogLevel
		e.settings.Renderer = s.Renderer
		core.LogInfo("settings reloaded from %s", e.settingsPath)
		e.events.Fire(core.EVENT_CODE_SETTINGS_RELOADED, e, core.EventContext{Payload: s})
	default:
	}
	return nil
}

// Quit asks the main loop to stop. Safe to call from any goroutine.
func (e *Engine) Quit() {
	e.isRunning.Store(false)
	e.cancel()
}

// Shutdown releases everything Initialize created, in reverse order. Only
// the first call does any work.
func (e *Engine) Shutdown() error {
	var errs []error
	e.shutdown.Do(func() {
		e.currentStage = EngineStageShuttingDown
		e.Quit()

		if e.watcher != nil {
			if err := e.watcher.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if e.gameInstance.FnShutdown != nil {
			if err := e.gameInstance.FnShutdown(); err != nil {
				errs = append(errs, err)
			}
		}
		if e.renderer != nil {
			if err := e.renderer.Shutdown(); err != nil {
				errs = append(errs, err)
			}
			stats := e.renderer.Stats()
			core.LogInfo("rendered %d frames, dropped %d, %d resizes", stats.Frames, stats.Dropped, stats.Resizes)
		}
		if e.device != nil {
			e.device.Destroy()
		}
		e.events.Shutdown()
		if err := e.platform.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// GetFramebufferSize returns the drawable width and height (in this order).
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.platform.DrawableSize()
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if glfw.Key(data.Key) == glfw.KeyEscape {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Width, data.Height
	core.LogDebug("Window resize: %d, %d", width, height)

	if e.renderer != nil {
		e.renderer.NotifyResize(width, height)
	}

	// Handle minimization
	if width == 0 || height == 0 {
		if !e.isSuspended {
			core.LogInfo("Window minimized, suspending application.")
			e.isSuspended = true
		}
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	return false
}
