// Package passes records the deferred pipeline: depth, geometry, shadow,
// lighting, tonemap, antialias and the UI overlay.
package passes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/attachments"
	"github.com/spaghettifunk/umbra/engine/renderer/binding"
	"github.com/spaghettifunk/umbra/engine/renderer/buffers"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
	"github.com/spaghettifunk/umbra/engine/renderer/surface"
)

const (
	NameDepth     = "depth"
	NameGeometry  = "geometry"
	NameShadow    = "shadow"
	NameLighting  = "lighting"
	NameTonemap   = "tonemap"
	NameAntialias = "antialias"
	NameUIOverlay = "ui"
)

// Pass records one stage of the frame.
type Pass interface {
	Name() string
	// OnCreate builds pipelines and binding sets.
	OnCreate(env *Env) error
	// OnResize refreshes whatever depends on the surface or on rebuilt
	// attachments. It is called after every rebuild.
	OnResize(env *Env) error
	Record(fc *FrameContext) error
	OnDestroy()
}

// Env holds the long lived objects passes build against.
type Env struct {
	Device    gpu.Device
	Allocator *binding.Allocator
	Library   shaders.Library
	Targets   *attachments.Set
	Shadows   *shadow.System
	Surface   *surface.Surface
}

type ToneMapOperator uint32

const (
	ToneMapACES ToneMapOperator = iota
	ToneMapReinhard
	ToneMapNone
)

// Settings are the runtime tunables read by the passes every frame.
type Settings struct {
	DebugView        metadata.RendererDebugViewMode
	Exposure         float32
	Operator         ToneMapOperator
	Antialias        bool
	EdgeThreshold    float32
	EdgeThresholdMin float32
	Subpixel         float32
}

func DefaultSettings() Settings {
	return Settings{
		Exposure:         1,
		Operator:         ToneMapACES,
		Antialias:        true,
		EdgeThreshold:    0.125,
		EdgeThresholdMin: 0.0312,
		Subpixel:         0.75,
	}
}

// UIRecorder is handed to the UI callback inside the overlay pass. The
// overlay pipeline is already bound.
type UIRecorder struct {
	Stream   gpu.CommandStream
	Pipeline gpu.Pipeline
	Extent   gpu.Extent2D
}

// DrawVertices draws vertexCount UI vertices (vec2 position, vec4 color)
// from buffer as a triangle list.
func (r *UIRecorder) DrawVertices(buffer gpu.Buffer, vertexCount uint32) {
	if vertexCount == 0 {
		return
	}
	r.Stream.BindVertexBuffer(buffer, 0)
	r.Stream.Draw(vertexCount, 1, 0, 0)
}

type UICallback func(r *UIRecorder) error

// FrameContext carries the state of one frame through the pass list.
type FrameContext struct {
	Slot      int
	Frame     uint64
	Stream    gpu.CommandStream
	Extent    gpu.Extent2D
	Targets   *attachments.Set
	Surface   *surface.Surface
	SwapIndex uint32
	Queue     *metadata.RenderQueue
	Shadows   *shadow.System
	// FrameSet binds the camera and lights buffers of this slot.
	FrameSet gpu.BindingSet
	Settings *Settings
	UI       UICallback

	// Casters are the draw items the geometry pass drained, reused by the
	// shadow pass.
	Casters []metadata.DrawItem
	Draws   int
}

func (fc *FrameContext) swapImage() gpu.Image {
	return fc.Surface.Image(fc.SwapIndex).Image
}

// FrameBindings describes the per slot set: camera uniform and lights storage.
func FrameBindings(camera, lights gpu.Buffer) binding.Description {
	d := binding.Description{Bindings: []binding.Binding{
		{Kind: gpu.BindingUniformBuffer, Stages: gputypes.ShaderStagesVertexFragment},
		{Kind: gpu.BindingStorageBuffer, Stages: gputypes.ShaderStageFragment},
	}}
	if camera.IsValid() {
		d.Bindings[0].Buffers = []gpu.BufferRange{{Buffer: camera, Size: buffers.CameraBlockSize}}
	}
	if lights.IsValid() {
		d.Bindings[1].Buffers = []gpu.BufferRange{{Buffer: lights, Size: buffers.LightsBlockSize}}
	}
	return d
}

// MaterialBindings describes the geometry pass material set.
func MaterialBindings(albedo gpu.Image, sampler gpu.Sampler) binding.Description {
	d := binding.Description{Bindings: []binding.Binding{
		{Kind: gpu.BindingSampledImage, Stages: gputypes.ShaderStageFragment},
		{Kind: gpu.BindingSampler, Stages: gputypes.ShaderStageFragment, Sampler: sampler},
	}}
	if albedo.IsValid() {
		d.Bindings[0].Images = []gpu.Image{albedo}
	}
	return d
}

// textureBindings describes sampled images followed by one sampler.
func textureBindings(images []gpu.Image, sampler gpu.Sampler) binding.Description {
	d := binding.Description{}
	for _, img := range images {
		d.Bindings = append(d.Bindings, binding.Binding{
			Kind:   gpu.BindingSampledImage,
			Stages: gputypes.ShaderStageFragment,
			Images: []gpu.Image{img},
		})
	}
	d.Bindings = append(d.Bindings, binding.Binding{
		Kind:    gpu.BindingSampler,
		Stages:  gputypes.ShaderStageFragment,
		Sampler: sampler,
	})
	return d
}

// Vertex layout of scene meshes: position, normal, uv.
const meshStride = 3*4 + 3*4 + 2*4

var (
	meshLayout = gputypes.VertexBufferLayout{
		ArrayStride: meshStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
		},
	}
	positionLayout = gputypes.VertexBufferLayout{
		ArrayStride: meshStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		},
	}
)

// createPipeline fills the shader stages from the library and creates the
// pipeline. Failures that are not already fatal become ErrPipelineCreation.
func createPipeline(env *Env, program string, desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	p, err := env.Library.Program(program)
	if err != nil {
		return gpu.Pipeline{}, err
	}
	desc.Name = program
	desc.Vertex, desc.Fragment = p.Vertex, p.Fragment
	desc.VertexEntry, desc.FragmentEntry = p.VertexEntry, p.FragmentEntry
	desc.Topology = gputypes.PrimitiveTopologyTriangleList

	pipeline, err := env.Device.CreatePipeline(desc)
	if err != nil {
		if core.IsFatal(err) {
			err = fmt.Errorf("pipeline %s: %w", program, err)
		} else {
			err = fmt.Errorf("pipeline %s: %v: %w", program, err, core.ErrPipelineCreation)
		}
		core.LogError(err.Error())
		return gpu.Pipeline{}, err
	}
	return pipeline, nil
}

func destroyPipeline(device gpu.Device, p *gpu.Pipeline) {
	if p.IsValid() {
		device.DestroyPipeline(*p)
	}
	*p = gpu.Pipeline{}
}

func freeSet(allocator *binding.Allocator, set *gpu.BindingSet) {
	if set.IsValid() {
		if err := allocator.Free(*set); err != nil {
			core.LogWarn("failed to free binding set: %s", err)
		}
	}
	*set = gpu.BindingSet{}
}

// makeOrUpdate writes desc into set, allocating it on first use.
func makeOrUpdate(allocator *binding.Allocator, set *gpu.BindingSet, desc binding.Description) error {
	if set.IsValid() {
		return allocator.Update(*set, desc)
	}
	s, err := allocator.MakeSet(desc)
	if err != nil {
		return err
	}
	*set = s
	return nil
}

func targetFormat(set *attachments.Set, name string) gputypes.TextureFormat {
	d, _ := set.Descriptor(name)
	return d.Format
}

var errNotCreated = errors.New("pass recorded before OnCreate")

// push encodes push constant data, little-endian.
type push []byte

func (p push) mat4(m mgl32.Mat4) push {
	for _, f := range m {
		p = p.f32(f)
	}
	return p
}

func (p push) f32(v float32) push {
	return binary.LittleEndian.AppendUint32(p, math.Float32bits(v))
}

func (p push) u32(v uint32) push {
	return binary.LittleEndian.AppendUint32(p, v)
}

func fullscreen(stream gpu.CommandStream) {
	stream.Draw(3, 1, 0, 0)
}

// Ordered returns a fresh instance of every pass in recording order.
func Ordered() []Pass {
	return []Pass{
		NewDepthPass(),
		NewGeometryPass(),
		NewShadowPass(),
		NewLightingPass(),
		NewTonemapPass(),
		NewAntialiasPass(),
		NewUIOverlayPass(),
	}
}
