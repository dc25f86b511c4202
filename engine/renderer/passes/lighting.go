package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/attachments"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
)

var lightingInputs = []string{
	attachments.TargetAlbedo,
	attachments.TargetPosition,
	attachments.TargetNormal,
	attachments.TargetDepth,
}

// LightingPass resolves the G-Buffer with every light into the HDR target.
type LightingPass struct {
	env       *Env
	pipeline  gpu.Pipeline
	gbuffer   gpu.BindingSet
	shadowSet gpu.BindingSet
}

func NewLightingPass() *LightingPass { return &LightingPass{} }

func (p *LightingPass) Name() string { return NameLighting }

func (p *LightingPass) gbufferBindings(env *Env) []gpu.Image {
	images := make([]gpu.Image, len(lightingInputs))
	for i, name := range lightingInputs {
		images[i] = env.Targets.Image(name)
	}
	return images
}

func (p *LightingPass) atlasBindings(env *Env) ([]gpu.Image, gpu.Sampler) {
	atlases := env.Shadows.Atlases()
	images := make([]gpu.Image, len(atlases))
	for i, a := range atlases {
		images[i] = a.Image(shadow.AtlasTarget)
	}
	return images, env.Shadows.Directional().Sampler()
}

func (p *LightingPass) OnCreate(env *Env) error {
	p.env = env
	frameLayout, err := env.Allocator.MakeLayout(FrameBindings(gpu.Buffer{}, gpu.Buffer{}))
	if err != nil {
		return err
	}
	gbufferLayout, err := env.Allocator.MakeLayout(textureBindings(make([]gpu.Image, len(lightingInputs)), gpu.Sampler{}))
	if err != nil {
		return err
	}
	shadowLayout, err := env.Allocator.MakeLayout(textureBindings(make([]gpu.Image, len(env.Shadows.Atlases())), gpu.Sampler{}))
	if err != nil {
		return err
	}
	p.pipeline, err = createPipeline(env, shaders.Lighting, gpu.PipelineDesc{
		Layouts:       []gpu.BindingLayout{frameLayout, gbufferLayout, shadowLayout},
		PushConstants: 16,
		PushStages:    gputypes.ShaderStageFragment,
		ColorFormats:  []gputypes.TextureFormat{targetFormat(env.Targets, attachments.TargetHDR)},
		CullMode:      gputypes.CullModeNone,
		FrontFace:     gputypes.FrontFaceCCW,
	})
	if err != nil {
		return err
	}
	return p.OnResize(env)
}

// OnResize rewrites both sets against the current attachment and atlas
// images.
func (p *LightingPass) OnResize(env *Env) error {
	if !env.Targets.IsBuilt() {
		return nil
	}
	if err := makeOrUpdate(env.Allocator, &p.gbuffer, textureBindings(p.gbufferBindings(env), env.Targets.Sampler())); err != nil {
		return err
	}
	images, sampler := p.atlasBindings(env)
	return makeOrUpdate(env.Allocator, &p.shadowSet, textureBindings(images, sampler))
}

func (p *LightingPass) Record(fc *FrameContext) error {
	if !p.pipeline.IsValid() || !p.gbuffer.IsValid() {
		return errNotCreated
	}
	s := fc.Stream
	fc.Targets.Transition(s, attachments.TargetHDR, gpu.LayoutColorAttachment)
	s.BeginPass(gpu.PassDesc{
		Name:   NameLighting,
		Extent: fc.Extent,
		Color: []gpu.ColorAttachment{{
			Image: fc.Targets.Image(attachments.TargetHDR),
			Load:  gputypes.LoadOpClear,
			Store: gputypes.StoreOpStore,
			Clear: gputypes.Color{A: 1},
		}},
	})
	s.SetViewport(fc.Extent)
	s.BindPipeline(p.pipeline)
	s.BindSet(p.pipeline, 0, fc.FrameSet)
	s.BindSet(p.pipeline, 1, p.gbuffer)
	s.BindSet(p.pipeline, 2, p.shadowSet)
	s.PushConstants(p.pipeline, gputypes.ShaderStageFragment, 0,
		push(nil).u32(uint32(fc.Settings.DebugView)).u32(0).u32(0).u32(0))
	fullscreen(s)
	fc.Draws++
	s.EndPass()
	fc.Targets.Transition(s, attachments.TargetHDR, gpu.LayoutShaderRead)
	return nil
}

func (p *LightingPass) OnDestroy() {
	if p.env == nil {
		return
	}
	freeSet(p.env.Allocator, &p.gbuffer)
	freeSet(p.env.Allocator, &p.shadowSet)
	destroyPipeline(p.env.Device, &p.pipeline)
}
