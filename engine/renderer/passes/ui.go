package passes

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
)

var uiLayout = gputypes.VertexBufferLayout{
	ArrayStride: 6 * 4,
	StepMode:    gputypes.VertexStepModeVertex,
	Attributes: []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
		{Format: gputypes.VertexFormatFloat32x4, Offset: 8, ShaderLocation: 1},
	},
}

// UIOverlayPass draws the registered UI callback over the antialiased image
// and leaves the swap image ready to present.
type UIOverlayPass struct {
	device   gpu.Device
	pipeline gpu.Pipeline
	format   gputypes.TextureFormat
}

func NewUIOverlayPass() *UIOverlayPass { return &UIOverlayPass{} }

func (p *UIOverlayPass) Name() string { return NameUIOverlay }

func (p *UIOverlayPass) OnCreate(env *Env) error {
	p.device = env.Device
	return p.OnResize(env)
}

func (p *UIOverlayPass) OnResize(env *Env) error {
	if !env.Surface.IsBuilt() {
		return nil
	}
	format := env.Surface.Format().Format
	if p.pipeline.IsValid() && format == p.format {
		return nil
	}
	destroyPipeline(env.Device, &p.pipeline)
	pipeline, err := createPipeline(env, shaders.UI, gpu.PipelineDesc{
		VertexLayouts: []gputypes.VertexBufferLayout{uiLayout},
		PushConstants: 16,
		PushStages:    gputypes.ShaderStageVertex,
		ColorFormats:  []gputypes.TextureFormat{format},
		CullMode:      gputypes.CullModeNone,
		FrontFace:     gputypes.FrontFaceCCW,
		Blend:         true,
	})
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	p.format = format
	return nil
}

func (p *UIOverlayPass) Record(fc *FrameContext) error {
	if !p.pipeline.IsValid() {
		return errNotCreated
	}
	s := fc.Stream
	fc.Surface.Transition(s, fc.SwapIndex, gpu.LayoutColorAttachment)
	s.BeginPass(gpu.PassDesc{
		Name:   NameUIOverlay,
		Extent: fc.Extent,
		Color: []gpu.ColorAttachment{{
			Image: fc.swapImage(),
			Load:  gputypes.LoadOpLoad,
			Store: gputypes.StoreOpStore,
		}},
	})
	var err error
	if fc.UI != nil {
		s.SetViewport(fc.Extent)
		s.BindPipeline(p.pipeline)
		s.PushConstants(p.pipeline, gputypes.ShaderStageVertex, 0, push(nil).
			f32(float32(fc.Extent.Width)).f32(float32(fc.Extent.Height)).f32(0).f32(0))
		if cbErr := fc.UI(&UIRecorder{Stream: s, Pipeline: p.pipeline, Extent: fc.Extent}); cbErr != nil {
			err = fmt.Errorf("ui callback: %w", cbErr)
		}
	}
	s.EndPass()
	fc.Surface.Transition(s, fc.SwapIndex, gpu.LayoutPresentSrc)
	return err
}

func (p *UIOverlayPass) OnDestroy() {
	if p.device != nil {
		destroyPipeline(p.device, &p.pipeline)
	}
}
