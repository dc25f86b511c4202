// Package renderer drives the deferred frame: it owns the frame slots, the
// surface and every surface sized resource, and runs the passes in order.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/attachments"
	"github.com/spaghettifunk/umbra/engine/renderer/binding"
	"github.com/spaghettifunk/umbra/engine/renderer/buffers"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/passes"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
	"github.com/spaghettifunk/umbra/engine/renderer/surface"
)

// lighting owns two sets, tonemap and antialias one each, geometry its
// default material
const defaultFixedSets = 5

// fenceSlice bounds a single fence wait so a cancelled context is noticed.
const fenceSlice = 100 * time.Millisecond

// Stats are cumulative since creation.
type Stats struct {
	Frames    uint64
	Dropped   uint64
	Presents  uint64
	Resizes   uint64
	FrameTime time.Duration
	FPS       float64
}

type activeFrame struct {
	slot      *FrameSlot
	swapIndex uint32
	started   time.Time
}

// preparedPacket is a packet whose shadow assignment and lights block are
// resolved. Nothing in it touches the GPU.
type preparedPacket struct {
	packet *metadata.RenderPacket
	lights []byte
}

// Orchestrator is the frame state machine. It is driven from a single
// thread; only NotifyResize may be called from elsewhere.
type Orchestrator struct {
	id     core.Identifier
	device gpu.Device
	window surface.Window

	surface   *surface.Surface
	allocator *binding.Allocator
	targets   *attachments.Set
	shadows   *shadow.System
	camera    *buffers.CameraMatrixBuffer
	lights    *buffers.LightsBuffer
	passes    []passes.Pass
	env       *passes.Env
	slots     []*FrameSlot
	queue     *metadata.RenderQueue

	settings passes.Settings
	ui       passes.UICallback

	state        FrameState
	current      int
	frame        uint64
	active       activeFrame
	prepared     preparedPacket
	// near plane of the last camera drawn, checked against the shadow far
	// plane by the setters
	near         float32
	needsRebuild bool
	resized      atomic.Bool
	closed       bool

	metrics  *core.FrameMetrics
	presents uint64
	resizes  uint64
}

// New creates the surface, the binding allocator, the frame targets, the
// shadow system, the per slot buffers and every pass. A window without a
// drawable area defers the surface sized resources to the first frame that
// sees one.
func New(ctx context.Context, device gpu.Device, window surface.Window, opts Options) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		id:       core.NewIdentifier(),
		device:   device,
		window:   window,
		settings: opts.Passes,
		queue:    metadata.NewRenderQueue(256),
		metrics:  core.NewFrameMetrics(),
	}
	if err := o.create(ctx, opts); err != nil {
		o.destroy()
		return nil, err
	}
	core.LogInfo("renderer %s ready: %d frames in flight, %d passes", o.id.Short(), len(o.slots), len(o.passes))
	return o, nil
}

func (o *Orchestrator) create(ctx context.Context, opts Options) error {
	library := opts.Library
	if library == nil {
		compiled := shaders.NewLibrary()
		if err := compiled.CompileAll(ctx); err != nil {
			return err
		}
		library = compiled
	}

	var err error
	if o.surface, err = surface.Create(o.device, o.window, opts.VSync); err != nil {
		return err
	}
	fixed := opts.FixedSets
	if fixed == 0 {
		fixed = defaultFixedSets
	}
	if o.allocator, err = binding.NewAllocator(o.device, binding.PoolSize(opts.MaxMaterials, uint32(opts.FramesInFlight), fixed)); err != nil {
		return err
	}
	if o.targets, err = attachments.NewSet(o.device, "frame", attachments.FrameTargets(), attachments.Options{FollowSurface: true}); err != nil {
		return err
	}
	if o.surface.IsBuilt() {
		if err := o.targets.Build(o.surface.Extent()); err != nil {
			return err
		}
	} else {
		o.needsRebuild = true
		o.state = StateResizing
	}
	if o.shadows, err = shadow.NewSystem(o.device, opts.Shadow); err != nil {
		return err
	}
	if o.camera, err = buffers.NewCameraMatrixBuffer(o.device, opts.FramesInFlight); err != nil {
		return err
	}
	if o.lights, err = buffers.NewLightsBuffer(o.device, opts.FramesInFlight); err != nil {
		return err
	}
	for i := 0; i < opts.FramesInFlight; i++ {
		slot, err := newFrameSlot(o.device, o.allocator, i, o.camera, o.lights)
		if err != nil {
			return fmt.Errorf("frame slot %d: %w", i, err)
		}
		o.slots = append(o.slots, slot)
	}

	o.env = &passes.Env{
		Device:    o.device,
		Allocator: o.allocator,
		Library:   library,
		Targets:   o.targets,
		Shadows:   o.shadows,
		Surface:   o.surface,
	}
	for _, p := range passes.Ordered() {
		if err := p.OnCreate(o.env); err != nil {
			p.OnDestroy()
			return fmt.Errorf("%s pass: %w", p.Name(), err)
		}
		o.passes = append(o.passes, p)
	}
	return nil
}

// NotifyResize flags the framebuffer as resized. The surface is rebuilt at
// the next frame boundary.
func (o *Orchestrator) NotifyResize(width, height uint32) {
	o.resized.Store(true)
	core.LogDebug("renderer %s: framebuffer resized to %dx%d", o.id.Short(), width, height)
}

func (o *Orchestrator) drawable() gpu.Extent2D {
	w, h := o.window.DrawableSize()
	return gpu.Extent2D{Width: w, Height: h}
}

// BeginFrame waits for the current slot to retire and acquires the next swap
// image. core.ErrFrameSkipped reports a dropped frame: the window has no
// drawable area or the surface was stale and has been rebuilt.
func (o *Orchestrator) BeginFrame(ctx context.Context) error {
	if o.closed {
		return fmt.Errorf("renderer %s is shut down", o.id.Short())
	}
	if o.state != StateIdle && o.state != StateResizing {
		return fmt.Errorf("begin frame in state %s", o.state)
	}
	slot := o.slots[o.current]
	if err := o.waitSlot(ctx, slot); err != nil {
		return err
	}

	drawable := o.drawable()
	if o.resized.Swap(false) || o.surface.IsStale() {
		o.needsRebuild = true
	}
	if drawable.IsZero() {
		o.state = StateResizing
		o.needsRebuild = true
		return o.drop("window has no drawable area")
	}
	if o.needsRebuild {
		if err := o.rebuild(drawable); err != nil {
			if errors.Is(err, core.ErrFrameSkipped) {
				return o.drop("surface not ready")
			}
			return err
		}
	}

	o.state = StateAcquiring
	index, err := o.surface.AcquireNext(slot.ImageAvailable)
	if err != nil {
		if !core.IsRecoverable(err) {
			o.state = StateIdle
			core.LogError("renderer %s: acquire: %s", o.id.Short(), err)
			return err
		}
		o.needsRebuild = true
		if err := o.rebuild(o.drawable()); err != nil && !errors.Is(err, core.ErrFrameSkipped) {
			return err
		}
		return o.drop(err.Error())
	}

	o.state = StateRecording
	o.active = activeFrame{slot: slot, swapIndex: index, started: time.Now()}
	if err := slot.Stream.Reset(); err != nil {
		return o.abort(err, false)
	}
	if err := slot.Stream.Begin(); err != nil {
		return o.abort(err, false)
	}
	o.targets.Initialize(slot.Stream)
	return nil
}

func (o *Orchestrator) waitSlot(ctx context.Context, slot *FrameSlot) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := o.device.WaitFence(slot.Fence, fenceSlice)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gpu.ErrTimeout) {
			core.LogError("renderer %s: wait on slot %d: %s", o.id.Short(), slot.Index, err)
			return err
		}
	}
}

// drop ends a frame that never reached the passes. Queued draw items are
// discarded so they are not submitted twice.
func (o *Orchestrator) drop(reason string) error {
	o.queue.Drain()
	o.metrics.Drop()
	core.LogDebug("renderer %s: frame %d dropped: %s", o.id.Short(), o.frame, reason)
	return core.ErrFrameSkipped
}

// abort discards a frame that failed after the swap image was acquired.
// Fatal errors are returned as they are. When the stream is still recording
// the image is handed back through release and nothing is rebuilt. Staleness,
// or a stream that can no longer be finished, rebuilds everything surface
// sized since the acquire can only be balanced by a new chain.
func (o *Orchestrator) abort(err error, recording bool) error {
	o.queue.Drain()
	o.metrics.Drop()
	defer func() { o.active = activeFrame{} }()

	if core.IsFatal(err) {
		o.state = StateIdle
		return err
	}
	if recording && !core.IsRecoverable(err) {
		relErr := o.release()
		if relErr == nil {
			o.state = StateIdle
			return err
		}
		core.LogError("renderer %s: release frame %d: %s", o.id.Short(), o.frame, relErr)
		err = errors.Join(err, relErr)
		if core.IsFatal(relErr) {
			o.state = StateIdle
			return err
		}
	}
	o.surface.MarkStale()
	o.needsRebuild = true
	o.state = StateResizing
	return err
}

// release finishes the active stream with the swap image cleared, then
// submits and presents it. Every barrier already recorded still executes, so
// the tracked layouts stay true, and the acquire is balanced by a present.
func (o *Orchestrator) release() error {
	slot, index := o.active.slot, o.active.swapIndex
	s := slot.Stream
	o.surface.Transition(s, index, gpu.LayoutColorAttachment)
	s.BeginPass(gpu.PassDesc{
		Name:   "discard",
		Extent: o.surface.Extent(),
		Color: []gpu.ColorAttachment{{
			Image: o.surface.Image(index).Image,
			Load:  gputypes.LoadOpClear,
			Store: gputypes.StoreOpStore,
			Clear: gputypes.Color{A: 1},
		}},
	})
	s.EndPass()
	o.surface.Transition(s, index, gpu.LayoutPresentSrc)
	if err := s.End(); err != nil {
		return err
	}
	if err := o.submit(slot); err != nil {
		return err
	}
	err := o.surface.Present(index, slot.RenderFinished)
	o.current = (o.current + 1) % len(o.slots)
	if core.IsRecoverable(err) {
		o.needsRebuild = true
		return nil
	}
	return err
}

// submit resets the slot fence and queues the stream. A failed submit leaves
// the slot with a fresh signaled fence.
func (o *Orchestrator) submit(slot *FrameSlot) error {
	if err := o.device.ResetFence(slot.Fence); err != nil {
		return err
	}
	err := o.device.Submit(slot.Stream, slot.ImageAvailable, slot.RenderFinished, slot.Fence)
	if err == nil {
		return nil
	}
	core.LogError("renderer %s: submit slot %d: %s", o.id.Short(), slot.Index, err)
	if fenceErr := slot.replaceFence(o.device); fenceErr != nil {
		return errors.Join(err, fenceErr)
	}
	return err
}

// prepare checks packet and resolves everything that does not touch the
// GPU: shadow layers, cascades and the encoded lights block. It runs before
// the acquire so a configuration error leaves the surface alone.
func (o *Orchestrator) prepare(packet *metadata.RenderPacket) error {
	o.prepared = preparedPacket{}
	if packet == nil || packet.Camera == nil {
		return fmt.Errorf("%w: render packet without a camera", core.ErrInvalidConfig)
	}
	// layers and cascades are assigned before the lights are encoded
	if err := o.shadows.Update(packet.Camera, packet.Lights); err != nil {
		return err
	}
	lights, err := buffers.EncodeLights(packet.Ambient, packet.Lights)
	if err != nil {
		return err
	}
	o.near = packet.Camera.Near()
	o.prepared = preparedPacket{packet: packet, lights: lights}
	return nil
}

// Record uploads the packet's camera and lights into the current slot,
// queues its draw items and records every pass.
func (o *Orchestrator) Record(packet *metadata.RenderPacket) error {
	if o.state != StateRecording {
		return fmt.Errorf("record in state %s", o.state)
	}
	slot := o.active.slot

	if packet == nil || o.prepared.packet != packet {
		if err := o.prepare(packet); err != nil {
			return o.abort(err, true)
		}
	}
	prepared := o.prepared
	o.prepared = preparedPacket{}

	if _, err := o.camera.Update(slot.Index, packet.Camera); err != nil {
		return o.abort(err, true)
	}
	if _, err := o.lights.Upload(slot.Index, prepared.lights); err != nil {
		return o.abort(err, true)
	}
	o.queue.Enqueue(packet.DrawItems...)

	settings := o.settings
	fc := &passes.FrameContext{
		Slot:      slot.Index,
		Frame:     o.frame,
		Stream:    slot.Stream,
		Extent:    o.surface.Extent(),
		Targets:   o.targets,
		Surface:   o.surface,
		SwapIndex: o.active.swapIndex,
		Queue:     o.queue,
		Shadows:   o.shadows,
		FrameSet:  slot.FrameSet,
		Settings:  &settings,
		UI:        o.ui,
	}
	for _, p := range o.passes {
		if err := p.Record(fc); err != nil {
			err = fmt.Errorf("%s pass: %w", p.Name(), err)
			core.LogError("renderer %s: %s", o.id.Short(), err)
			return o.abort(err, true)
		}
	}
	return nil
}

// EndFrame submits the current slot and presents its swap image. A stale
// surface at present rebuilds everything surface sized; the frame still
// counts as rendered.
func (o *Orchestrator) EndFrame() error {
	if o.state != StateRecording {
		return fmt.Errorf("end frame in state %s", o.state)
	}
	slot := o.active.slot
	if err := slot.Stream.End(); err != nil {
		return o.abort(err, false)
	}
	if err := o.submit(slot); err != nil {
		return o.abort(err, false)
	}
	o.state = StateSubmitted

	o.state = StatePresenting
	err := o.surface.Present(o.active.swapIndex, slot.RenderFinished)
	switch {
	case err == nil:
		o.presents++
	case core.IsRecoverable(err):
		o.needsRebuild = true
	default:
		o.state = StateIdle
		return err
	}

	o.metrics.Update(time.Since(o.active.started))
	o.active = activeFrame{}
	o.current = (o.current + 1) % len(o.slots)
	o.frame++
	o.state = StateIdle

	if o.needsRebuild || o.resized.Swap(false) {
		o.needsRebuild = true
		if err := o.rebuild(o.drawable()); err != nil && !errors.Is(err, core.ErrFrameSkipped) {
			return err
		}
	}
	return nil
}

// DrawFrame runs one full frame for packet. core.ErrFrameSkipped means the
// frame was dropped and rendering resumes on a later call. A packet that
// fails validation is rejected before anything is acquired.
func (o *Orchestrator) DrawFrame(ctx context.Context, packet *metadata.RenderPacket) error {
	if err := o.between("draw frame"); err != nil {
		return err
	}
	if err := o.prepare(packet); err != nil {
		core.LogError("renderer %s: frame %d rejected: %s", o.id.Short(), o.frame, err)
		return err
	}
	if err := o.BeginFrame(ctx); err != nil {
		return err
	}
	if err := o.Record(packet); err != nil {
		return err
	}
	return o.EndFrame()
}

// rebuild recreates the surface for drawable, then the frame targets, then
// refreshes every pass and the slot semaphores. It leaves the orchestrator
// in Resizing when it fails.
func (o *Orchestrator) rebuild(drawable gpu.Extent2D) error {
	o.state = StateResizing
	if drawable.IsZero() {
		return fmt.Errorf("rebuild at %s: %w", drawable, core.ErrFrameSkipped)
	}
	if err := o.surface.Recreate(drawable); err != nil {
		return err
	}
	if err := o.targets.Build(o.surface.Extent()); err != nil {
		return err
	}
	if err := o.refreshPasses(); err != nil {
		return err
	}
	for _, slot := range o.slots {
		if err := slot.resetSemaphores(o.device); err != nil {
			return err
		}
	}
	o.needsRebuild = false
	o.resizes++
	o.state = StateIdle
	core.LogInfo("renderer %s: rebuilt at %s", o.id.Short(), o.surface.Extent())
	return nil
}

func (o *Orchestrator) refreshPasses() error {
	for _, p := range o.passes {
		if err := p.OnResize(o.env); err != nil {
			return fmt.Errorf("%s pass: %w", p.Name(), err)
		}
	}
	return nil
}

// Queue is the render queue of the frame being recorded. Items enqueued
// after BeginFrame are drawn by the next Record.
func (o *Orchestrator) Queue() *metadata.RenderQueue { return o.queue }

func (o *Orchestrator) State() FrameState { return o.state }

func (o *Orchestrator) FramesInFlight() int { return len(o.slots) }

func (o *Orchestrator) Extent() gpu.Extent2D { return o.targets.Extent() }

// Targets exposes the frame attachments for inspection.
func (o *Orchestrator) Targets() *attachments.Set { return o.targets }

func (o *Orchestrator) Surface() *surface.Surface { return o.surface }

func (o *Orchestrator) Allocator() *binding.Allocator { return o.allocator }

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Frames:    o.metrics.Frames(),
		Dropped:   o.metrics.Dropped(),
		Presents:  o.presents,
		Resizes:   o.resizes,
		FrameTime: o.metrics.FrameTime(),
		FPS:       o.metrics.FPS(),
	}
}

// Shutdown waits for the device to go idle and releases everything in
// reverse creation order.
func (o *Orchestrator) Shutdown() error {
	if o.closed {
		return nil
	}
	err := o.device.WaitIdle()
	if err != nil {
		core.LogError("renderer %s: wait idle on shutdown: %s", o.id.Short(), err)
	}
	o.destroy()
	o.closed = true
	core.LogInfo("renderer %s shut down after %d frames", o.id.Short(), o.metrics.Frames())
	return err
}

func (o *Orchestrator) destroy() {
	for i := len(o.passes) - 1; i >= 0; i-- {
		o.passes[i].OnDestroy()
	}
	o.passes = nil
	for _, slot := range o.slots {
		slot.destroy(o.device, o.allocator)
	}
	o.slots = nil
	if o.lights != nil {
		o.lights.Destroy()
	}
	if o.camera != nil {
		o.camera.Destroy()
	}
	if o.shadows != nil {
		o.shadows.Destroy()
	}
	if o.targets != nil {
		o.targets.Destroy()
	}
	if o.allocator != nil {
		if live := o.allocator.Destroy(); live > 0 {
			core.LogWarn("renderer %s: %d binding sets released with the pool", o.id.Short(), live)
		}
	}
	if o.surface != nil {
		o.surface.Destroy()
	}
	o.state = StateIdle
}
