package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/attachments"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
)

// AntialiasPass runs FXAA over the LDR target and writes the swap image.
// With antialiasing off it is a plain copy.
type AntialiasPass struct {
	env      *Env
	layout   gpu.BindingLayout
	pipeline gpu.Pipeline
	format   gputypes.TextureFormat
	set      gpu.BindingSet
}

func NewAntialiasPass() *AntialiasPass { return &AntialiasPass{} }

func (p *AntialiasPass) Name() string { return NameAntialias }

func (p *AntialiasPass) OnCreate(env *Env) error {
	p.env = env
	layout, err := env.Allocator.MakeLayout(textureBindings([]gpu.Image{{}}, gpu.Sampler{}))
	if err != nil {
		return err
	}
	p.layout = layout
	return p.OnResize(env)
}

// OnResize follows the swap image format and the rebuilt LDR target.
func (p *AntialiasPass) OnResize(env *Env) error {
	if !env.Surface.IsBuilt() || !env.Targets.IsBuilt() {
		return nil
	}
	format := env.Surface.Format().Format
	if !p.pipeline.IsValid() || format != p.format {
		destroyPipeline(env.Device, &p.pipeline)
		pipeline, err := createPipeline(env, shaders.FXAA, gpu.PipelineDesc{
			Layouts:       []gpu.BindingLayout{p.layout},
			PushConstants: 32,
			PushStages:    gputypes.ShaderStageFragment,
			ColorFormats:  []gputypes.TextureFormat{format},
			CullMode:      gputypes.CullModeNone,
			FrontFace:     gputypes.FrontFaceCCW,
		})
		if err != nil {
			return err
		}
		p.pipeline = pipeline
		p.format = format
	}
	return makeOrUpdate(env.Allocator, &p.set,
		textureBindings([]gpu.Image{env.Targets.Image(attachments.TargetLDR)}, env.Targets.Sampler()))
}

func (p *AntialiasPass) Record(fc *FrameContext) error {
	if !p.pipeline.IsValid() || !p.set.IsValid() {
		return errNotCreated
	}
	s := fc.Stream
	fc.Surface.Transition(s, fc.SwapIndex, gpu.LayoutColorAttachment)
	s.BeginPass(gpu.PassDesc{
		Name:   NameAntialias,
		Extent: fc.Extent,
		Color: []gpu.ColorAttachment{{
			Image: fc.swapImage(),
			Load:  gputypes.LoadOpClear,
			Store: gputypes.StoreOpStore,
			Clear: gputypes.Color{A: 1},
		}},
	})
	s.SetViewport(fc.Extent)
	s.BindPipeline(p.pipeline)
	s.BindSet(p.pipeline, 0, p.set)

	var enabled uint32
	if fc.Settings.Antialias {
		enabled = 1
	}
	st := fc.Settings
	s.PushConstants(p.pipeline, gputypes.ShaderStageFragment, 0, push(nil).
		f32(st.EdgeThreshold).f32(st.EdgeThresholdMin).f32(st.Subpixel).u32(enabled).
		f32(1/float32(fc.Extent.Width)).f32(1/float32(fc.Extent.Height)).f32(0).f32(0))
	fullscreen(s)
	fc.Draws++
	s.EndPass()
	return nil
}

func (p *AntialiasPass) OnDestroy() {
	if p.env == nil {
		return
	}
	freeSet(p.env.Allocator, &p.set)
	destroyPipeline(p.env.Device, &p.pipeline)
}
