package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/attachments"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
)

// TonemapPass maps the HDR target into the LDR target with exposure.
type TonemapPass struct {
	env      *Env
	pipeline gpu.Pipeline
	set      gpu.BindingSet
}

func NewTonemapPass() *TonemapPass { return &TonemapPass{} }

func (p *TonemapPass) Name() string { return NameTonemap }

func (p *TonemapPass) OnCreate(env *Env) error {
	p.env = env
	layout, err := env.Allocator.MakeLayout(textureBindings([]gpu.Image{{}}, gpu.Sampler{}))
	if err != nil {
		return err
	}
	p.pipeline, err = createPipeline(env, shaders.Tonemap, gpu.PipelineDesc{
		Layouts:       []gpu.BindingLayout{layout},
		PushConstants: 16,
		PushStages:    gputypes.ShaderStageFragment,
		ColorFormats:  []gputypes.TextureFormat{targetFormat(env.Targets, attachments.TargetLDR)},
		CullMode:      gputypes.CullModeNone,
		FrontFace:     gputypes.FrontFaceCCW,
	})
	if err != nil {
		return err
	}
	return p.OnResize(env)
}

func (p *TonemapPass) OnResize(env *Env) error {
	if !env.Targets.IsBuilt() {
		return nil
	}
	return makeOrUpdate(env.Allocator, &p.set,
		textureBindings([]gpu.Image{env.Targets.Image(attachments.TargetHDR)}, env.Targets.Sampler()))
}

func (p *TonemapPass) Record(fc *FrameContext) error {
	if !p.pipeline.IsValid() || !p.set.IsValid() {
		return errNotCreated
	}
	s := fc.Stream
	fc.Targets.Transition(s, attachments.TargetLDR, gpu.LayoutColorAttachment)
	s.BeginPass(gpu.PassDesc{
		Name:   NameTonemap,
		Extent: fc.Extent,
		Color: []gpu.ColorAttachment{{
			Image: fc.Targets.Image(attachments.TargetLDR),
			Load:  gputypes.LoadOpClear,
			Store: gputypes.StoreOpStore,
		}},
	})
	s.SetViewport(fc.Extent)
	s.BindPipeline(p.pipeline)
	s.BindSet(p.pipeline, 0, p.set)
	s.PushConstants(p.pipeline, gputypes.ShaderStageFragment, 0,
		push(nil).f32(fc.Settings.Exposure).u32(uint32(fc.Settings.Operator)).u32(0).u32(0))
	fullscreen(s)
	fc.Draws++
	s.EndPass()
	fc.Targets.Transition(s, attachments.TargetLDR, gpu.LayoutShaderRead)
	return nil
}

func (p *TonemapPass) OnDestroy() {
	if p.env == nil {
		return
	}
	freeSet(p.env.Allocator, &p.set)
	destroyPipeline(p.env.Device, &p.pipeline)
}
