package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/attachments"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
)

// DepthPass lays down scene depth so the geometry pass shades each pixel once.
type DepthPass struct {
	device   gpu.Device
	pipeline gpu.Pipeline
}

func NewDepthPass() *DepthPass { return &DepthPass{} }

func (p *DepthPass) Name() string { return NameDepth }

func (p *DepthPass) OnCreate(env *Env) error {
	p.device = env.Device
	frameLayout, err := env.Allocator.MakeLayout(FrameBindings(gpu.Buffer{}, gpu.Buffer{}))
	if err != nil {
		return err
	}
	p.pipeline, err = createPipeline(env, shaders.Depth, gpu.PipelineDesc{
		VertexLayouts: []gputypes.VertexBufferLayout{positionLayout},
		Layouts:       []gpu.BindingLayout{frameLayout},
		PushConstants: 64,
		PushStages:    gputypes.ShaderStageVertex,
		DepthFormat:   targetFormat(env.Targets, attachments.TargetDepth),
		DepthTest:     true,
		DepthWrite:    true,
		DepthCompare:  gputypes.CompareFunctionLess,
		CullMode:      gputypes.CullModeBack,
		FrontFace:     gputypes.FrontFaceCCW,
	})
	return err
}

func (p *DepthPass) OnResize(env *Env) error { return nil }

func (p *DepthPass) Record(fc *FrameContext) error {
	if !p.pipeline.IsValid() {
		return errNotCreated
	}
	s := fc.Stream
	fc.Targets.Transition(s, attachments.TargetDepth, gpu.LayoutDepthAttachment)
	s.BeginPass(gpu.PassDesc{
		Name:   NameDepth,
		Extent: fc.Extent,
		Depth: &gpu.DepthAttachment{
			Image:      fc.Targets.Image(attachments.TargetDepth),
			Load:       gputypes.LoadOpClear,
			Store:      gputypes.StoreOpStore,
			ClearDepth: 1,
		},
	})
	s.SetViewport(fc.Extent)
	s.BindPipeline(p.pipeline)
	s.BindSet(p.pipeline, 0, fc.FrameSet)
	for _, item := range fc.Queue.Items() {
		if item.IndexCount == 0 {
			continue
		}
		s.PushConstants(p.pipeline, gputypes.ShaderStageVertex, 0, push(nil).mat4(item.Transform))
		drawItem(s, item)
		fc.Draws++
	}
	s.EndPass()
	return nil
}

func (p *DepthPass) OnDestroy() {
	if p.device != nil {
		destroyPipeline(p.device, &p.pipeline)
	}
}
