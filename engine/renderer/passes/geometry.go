package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/attachments"
	"github.com/spaghettifunk/umbra/engine/renderer/binding"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
)

var gbufferTargets = []string{attachments.TargetAlbedo, attachments.TargetPosition, attachments.TargetNormal}

// GeometryPass drains the render queue into the G-Buffer.
type GeometryPass struct {
	device    gpu.Device
	allocator *binding.Allocator
	pipeline  gpu.Pipeline
	fallback  defaultMaterial
}

func NewGeometryPass() *GeometryPass { return &GeometryPass{} }

func (p *GeometryPass) Name() string { return NameGeometry }

func (p *GeometryPass) OnCreate(env *Env) error {
	p.device, p.allocator = env.Device, env.Allocator
	frameLayout, err := env.Allocator.MakeLayout(FrameBindings(gpu.Buffer{}, gpu.Buffer{}))
	if err != nil {
		return err
	}
	materialLayout, err := env.Allocator.MakeLayout(MaterialBindings(gpu.Image{}, gpu.Sampler{}))
	if err != nil {
		return err
	}
	formats := make([]gputypes.TextureFormat, len(gbufferTargets))
	for i, name := range gbufferTargets {
		formats[i] = targetFormat(env.Targets, name)
	}
	if p.fallback, err = newDefaultMaterial(env.Device, env.Allocator); err != nil {
		return err
	}
	p.pipeline, err = createPipeline(env, shaders.Geometry, gpu.PipelineDesc{
		VertexLayouts: []gputypes.VertexBufferLayout{meshLayout},
		Layouts:       []gpu.BindingLayout{frameLayout, materialLayout},
		PushConstants: 64,
		PushStages:    gputypes.ShaderStageVertex,
		ColorFormats:  formats,
		DepthFormat:   targetFormat(env.Targets, attachments.TargetDepth),
		DepthTest:     true,
		DepthCompare:  gputypes.CompareFunctionLessEqual,
		CullMode:      gputypes.CullModeBack,
		FrontFace:     gputypes.FrontFaceCCW,
	})
	return err
}

func (p *GeometryPass) OnResize(env *Env) error { return nil }

// Record empties the queue even when recording fails, so a dropped frame
// never leaks draw items into the next one.
func (p *GeometryPass) Record(fc *FrameContext) error {
	items := fc.Queue.Drain()
	fc.Casters = items
	if !p.pipeline.IsValid() {
		return errNotCreated
	}

	s := fc.Stream
	color := make([]gpu.ColorAttachment, len(gbufferTargets))
	for i, name := range gbufferTargets {
		fc.Targets.Transition(s, name, gpu.LayoutColorAttachment)
		color[i] = gpu.ColorAttachment{
			Image: fc.Targets.Image(name),
			Load:  gputypes.LoadOpClear,
			Store: gputypes.StoreOpStore,
		}
	}
	fc.Targets.Transition(s, attachments.TargetDepth, gpu.LayoutDepthAttachment)
	s.BeginPass(gpu.PassDesc{
		Name:   NameGeometry,
		Extent: fc.Extent,
		Color:  color,
		Depth: &gpu.DepthAttachment{
			Image: fc.Targets.Image(attachments.TargetDepth),
			Load:  gputypes.LoadOpLoad,
			Store: gputypes.StoreOpStore,
		},
	})
	s.SetViewport(fc.Extent)
	s.BindPipeline(p.pipeline)
	s.BindSet(p.pipeline, 0, fc.FrameSet)
	for _, item := range items {
		if item.IndexCount == 0 {
			continue
		}
		material := item.Material
		if !material.IsValid() {
			material = p.fallback.set
		}
		s.BindSet(p.pipeline, 1, material)
		s.PushConstants(p.pipeline, gputypes.ShaderStageVertex, 0, push(nil).mat4(item.Transform))
		drawItem(s, item)
		fc.Draws++
	}
	s.EndPass()

	for _, name := range gbufferTargets {
		fc.Targets.Transition(s, name, gpu.LayoutShaderRead)
	}
	fc.Targets.Transition(s, attachments.TargetDepth, gpu.LayoutDepthRead)
	return nil
}

func (p *GeometryPass) OnDestroy() {
	if p.device != nil {
		destroyPipeline(p.device, &p.pipeline)
		p.fallback.destroy(p.device, p.allocator)
	}
}

// drawItem records an indexed draw. Callers skip items without indices.
func drawItem(s gpu.CommandStream, item metadata.DrawItem) {
	s.BindVertexBuffer(item.VertexBuffer, 0)
	s.BindIndexBuffer(item.IndexBuffer, 0, item.IndexFormat)
	s.DrawIndexed(item.IndexCount, 1, item.FirstIndex, item.VertexOffset, 0)
}
