package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
)

// ShadowPass renders casters into every atlas layer the shadow system
// assigned this frame.
type ShadowPass struct {
	device   gpu.Device
	pipeline gpu.Pipeline
	format   gputypes.TextureFormat
}

func NewShadowPass() *ShadowPass { return &ShadowPass{} }

func (p *ShadowPass) Name() string { return NameShadow }

func (p *ShadowPass) OnCreate(env *Env) error {
	p.device = env.Device
	return p.OnResize(env)
}

// OnResize rebuilds the pipeline when the atlas depth format changed.
func (p *ShadowPass) OnResize(env *Env) error {
	format := targetFormat(env.Shadows.Directional(), shadow.AtlasTarget)
	if p.pipeline.IsValid() && format == p.format {
		return nil
	}
	destroyPipeline(env.Device, &p.pipeline)
	pipeline, err := createPipeline(env, shaders.Shadow, gpu.PipelineDesc{
		VertexLayouts: []gputypes.VertexBufferLayout{positionLayout},
		PushConstants: 128,
		PushStages:    gputypes.ShaderStageVertex,
		DepthFormat:   format,
		DepthTest:     true,
		DepthWrite:    true,
		DepthCompare:  gputypes.CompareFunctionLess,
		DepthBias:     true,
		CullMode:      gputypes.CullModeNone,
		FrontFace:     gputypes.FrontFaceCCW,
	})
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	p.format = format
	return nil
}

func (p *ShadowPass) Record(fc *FrameContext) error {
	if !p.pipeline.IsValid() {
		return errNotCreated
	}
	s := fc.Stream
	for _, view := range fc.Shadows.Views() {
		view.Atlas.Transition(s, shadow.AtlasTarget, gpu.LayoutDepthAttachment)
		extent := gpu.Extent2D{Width: view.Resolution, Height: view.Resolution}
		s.BeginPass(gpu.PassDesc{
			Name:   NameShadow,
			Extent: extent,
			Depth: &gpu.DepthAttachment{
				Image:      view.Atlas.Image(shadow.AtlasTarget),
				Layer:      view.Layer,
				Load:       gputypes.LoadOpClear,
				Store:      gputypes.StoreOpStore,
				ClearDepth: 1,
			},
		})
		s.SetViewport(extent)
		s.BindPipeline(p.pipeline)
		for _, item := range fc.Casters {
			if !item.CastShadows || item.IndexCount == 0 {
				continue
			}
			s.PushConstants(p.pipeline, gputypes.ShaderStageVertex, 0, push(nil).mat4(view.ViewProj).mat4(item.Transform))
			drawItem(s, item)
			fc.Draws++
		}
		s.EndPass()
	}
	for _, atlas := range fc.Shadows.Atlases() {
		atlas.Transition(s, shadow.AtlasTarget, gpu.LayoutDepthRead)
	}
	return nil
}

func (p *ShadowPass) OnDestroy() {
	if p.device != nil {
		destroyPipeline(p.device, &p.pipeline)
	}
}

