package testbed

import (
	"fmt"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/components"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	WorldCamera *components.Camera
	scene       *scene

	sun    *metadata.DirectionalLight
	lamp   *metadata.PointLight
	torch  *metadata.SpotLight
	lights []metadata.Light

	keys     map[glfw.Key]bool
	rotation float32
	width    uint32
	height   uint32
	sinceLog time.Duration
}

func NewTestGame(settingsPath string) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				StartPosX:    100,
				StartPosY:    100,
				StartWidth:   1280,
				StartHeight:  720,
				Name:         "Umbra Testbed",
				LogLevel:     core.LogLevelDebug,
				SettingsPath: settingsPath,
			},
			State: &gameState{keys: make(map[glfw.Key]bool)},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.Renderer == nil || g.Device == nil {
		return fmt.Errorf("the engine did not hand over a renderer")
	}
	state := g.State.(*gameState)

	sc, err := newScene(g.Device, g.Renderer.Allocator())
	if err != nil {
		return err
	}
	state.scene = sc

	state.WorldCamera = components.NewCamera()
	state.WorldCamera.SetPerspective(math.DegToRad(45), 16.0/9.0, 0.1, 200)
	state.WorldCamera.SetPosition(mgl32.Vec3{10.5, 5.0, 9.5})
	state.WorldCamera.Yaw(math.DegToRad(45))
	state.WorldCamera.Pitch(math.DegToRad(-15))

	state.sun = &metadata.DirectionalLight{
		Direction: mgl32.Vec3{-0.4, -1, -0.3}.Normalize(),
		Color:     mgl32.Vec3{1, 0.96, 0.9},
		Intensity: 3,
		Active:    true,
		ShadowParams: metadata.ShadowParams{
			CastShadows: true,
			Softness:    1,
			Samples:     16,
			Layer:       -1,
		},
	}
	state.lamp = &metadata.PointLight{
		Position:     mgl32.Vec3{4, 3, 4},
		Color:        mgl32.Vec3{1, 0.6, 0.3},
		Intensity:    8,
		Radius:       15,
		Active:       true,
		ShadowParams: metadata.ShadowParams{CastShadows: true, Samples: 8, Layer: -1},
	}
	state.torch = &metadata.SpotLight{
		Position:     mgl32.Vec3{-6, 6, 2},
		Direction:    mgl32.Vec3{0.6, -1, -0.2}.Normalize(),
		Color:        mgl32.Vec3{0.4, 0.6, 1},
		Intensity:    12,
		Range:        25,
		InnerCone:    math.DegToRad(15),
		OuterCone:    math.DegToRad(25),
		Active:       true,
		ShadowParams: metadata.ShadowParams{CastShadows: true, Samples: 8, Layer: -1},
	}
	state.lights = []metadata.Light{state.sun, state.lamp, state.torch}

	g.Renderer.SetUICallback(state.scene.drawUI)

	g.Events.Register(core.EVENT_CODE_KEY_PRESSED, g, g.onKey)
	g.Events.Register(core.EVENT_CODE_KEY_RELEASED, g, g.onKey)
	g.Events.Register(core.EVENT_CODE_SETTINGS_RELOADED, g, g.onSettings)

	return nil
}

const (
	moveSpeed float32 = 10.0
	turnSpeed float32 = 1.0
)

func (g *TestGame) Update(deltaTime time.Duration) error {
	state := g.State.(*gameState)
	dt := float32(deltaTime.Seconds())
	cam := state.WorldCamera

	if state.keys[glfw.KeyA] || state.keys[glfw.KeyLeft] {
		cam.Yaw(turnSpeed * dt)
	}
	if state.keys[glfw.KeyD] || state.keys[glfw.KeyRight] {
		cam.Yaw(-turnSpeed * dt)
	}
	if state.keys[glfw.KeyUp] {
		cam.Pitch(turnSpeed * dt)
	}
	if state.keys[glfw.KeyDown] {
		cam.Pitch(-turnSpeed * dt)
	}
	if state.keys[glfw.KeyW] {
		cam.MoveForward(moveSpeed * dt)
	}
	if state.keys[glfw.KeyS] {
		cam.MoveBackward(moveSpeed * dt)
	}
	if state.keys[glfw.KeyQ] {
		cam.MoveLeft(moveSpeed * dt)
	}
	if state.keys[glfw.KeyE] {
		cam.MoveRight(moveSpeed * dt)
	}
	if state.keys[glfw.KeySpace] {
		cam.MoveUp(moveSpeed * dt)
	}
	if state.keys[glfw.KeyX] {
		cam.MoveDown(moveSpeed * dt)
	}

	state.rotation += 0.5 * dt

	state.sinceLog += deltaTime
	if state.sinceLog >= 5*time.Second {
		state.sinceLog = 0
		stats := g.Renderer.Stats()
		pos := cam.GetPosition()
		core.LogDebug("FPS: %5.1f(%s) Pos=[%7.3f %7.3f %7.3f] dropped=%d",
			stats.FPS, stats.FrameTime, pos.X(), pos.Y(), pos.Z(), stats.Dropped)
	}
	return nil
}

func (g *TestGame) Render(packet *metadata.RenderPacket, deltaTime time.Duration) error {
	state := g.State.(*gameState)
	sc := state.scene

	packet.Camera = state.WorldCamera
	packet.Ambient = mgl32.Vec3{0.03, 0.03, 0.04}
	packet.Lights = state.lights

	item := func(m mesh, transform mgl32.Mat4) metadata.DrawItem {
		return metadata.DrawItem{
			VertexBuffer: m.vertices,
			IndexBuffer:  m.indices,
			IndexFormat:  gputypes.IndexFormatUint16,
			IndexCount:   m.count,
			Material:     sc.material,
			Transform:    transform,
			CastShadows:  true,
		}
	}
	packet.DrawItems = append(packet.DrawItems,
		item(sc.ground, placement(mgl32.Vec3{0, -0.1, 0}, 0)),
		item(sc.cube, placement(mgl32.Vec3{0, 1, 0}, state.rotation)),
		item(sc.cube, placement(mgl32.Vec3{5, 1, 1}, -state.rotation)),
		item(sc.cube, placement(mgl32.Vec3{-4, 1, -3}, 2*state.rotation)),
	)
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width, state.height = width, height
	if height > 0 {
		state.WorldCamera.SetAspect(float32(width) / float32(height))
	}
	return state.scene.updateUI(gpu.Extent2D{Width: width, Height: height})
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	if g.Renderer == nil || state.scene == nil {
		return nil
	}
	g.Renderer.SetUICallback(nil)
	// the engine shuts the renderer down after this, so the GPU may still
	// be using the scene
	if err := g.Device.WaitIdle(); err != nil {
		return err
	}
	return state.scene.destroy()
}

func (g *TestGame) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	state := g.State.(*gameState)
	key := glfw.Key(data.Key)
	pressed := code == core.EVENT_CODE_KEY_PRESSED
	state.keys[key] = pressed

	if !pressed {
		return false
	}
	switch key {
	case glfw.Key0, glfw.Key1, glfw.Key2, glfw.Key3, glfw.Key4, glfw.Key5:
		mode := metadata.RendererDebugViewMode(key - glfw.Key0)
		if err := g.Renderer.SetDebugView(mode); err != nil {
			core.LogWarn("debug view %d: %s", mode, err)
		}
		return true
	case glfw.KeyF:
		g.Renderer.SetAntialiasing(!g.Renderer.Antialiasing())
		core.LogInfo("antialiasing: %t", g.Renderer.Antialiasing())
		return true
	case glfw.KeyV:
		g.Renderer.SetVSync(!g.Renderer.VSync())
		core.LogInfo("vsync: %t", g.Renderer.VSync())
		return true
	case glfw.KeyL:
		state.sun.Active = !state.sun.Active
		return true
	case glfw.KeyEqual, glfw.KeyMinus:
		exposure := g.Renderer.Exposure() * 1.25
		if key == glfw.KeyMinus {
			exposure = g.Renderer.Exposure() / 1.25
		}
		if err := g.Renderer.SetExposure(exposure); err != nil {
			core.LogWarn("exposure %.2f: %s", exposure, err)
		}
		return true
	}
	return false
}

func (g *TestGame) onSettings(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogInfo("testbed picked up new settings, debug view %d", g.Renderer.DebugView())
	return false
}
