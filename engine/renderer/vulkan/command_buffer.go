package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

type commandStreamState int

const (
	streamReady commandStreamState = iota
	streamRecording
	streamInPass
	streamEnded
	streamSubmitted
)

var errStreamState = errors.New("vulkan: command stream used out of order")

// commandStream records into one primary command buffer. Recording calls
// keep the first failure and End reports it.
type commandStream struct {
	device *Device
	Handle vk.CommandBuffer
	state  commandStreamState
	err    error
}

var _ gpu.CommandStream = (*commandStream)(nil)

func (d *Device) CreateCommandStream() (gpu.CommandStream, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.context.Device.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	stream := &commandStream{device: d}
	err := d.locks.SafeCall(ResourceManagement, func() error {
		if res := vk.AllocateCommandBuffers(d.logical(), &allocateInfo, buffers); res != vk.Success {
			return resultError("vkAllocateCommandBuffers", res)
		}
		stream.Handle = buffers[0]
		d.streams[stream] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (d *Device) DestroyCommandStream(s gpu.CommandStream) {
	stream, ok := s.(*commandStream)
	if !ok || stream.Handle == nil {
		return
	}
	d.locks.SafeCall(ResourceManagement, func() error {
		vk.FreeCommandBuffers(d.logical(), d.context.Device.GraphicsCommandPool, 1, []vk.CommandBuffer{stream.Handle})
		delete(d.streams, stream)
		return nil
	})
	stream.Handle = nil
}

// Submit queues the stream. The wait semaphore blocks color output only, so
// depth and shadow work may start before the swapchain image is ready.
func (d *Device) Submit(s gpu.CommandStream, wait, signal gpu.Semaphore, fence gpu.Fence) error {
	stream, ok := s.(*commandStream)
	if !ok {
		return fmt.Errorf("%w: foreign command stream", core.ErrInvalidConfig)
	}
	if stream.state != streamEnded {
		return fmt.Errorf("%w: submit in state %d", errStreamState, stream.state)
	}
	waits, err := d.semaphoreList(wait)
	if err != nil {
		return err
	}
	signals, err := d.semaphoreList(signal)
	if err != nil {
		return err
	}
	var vkFence vk.Fence
	if fence.IsValid() {
		if vkFence, err = lookup(d, d.fences, fence.Handle, "fence"); err != nil {
			return err
		}
	}

	waitStages := make([]vk.PipelineStageFlags, len(waits))
	for i := range waitStages {
		waitStages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{stream.Handle},
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	err = d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vkFence))
	})
	if err != nil {
		if errors.Is(err, core.ErrDeviceLost) {
			core.LogError("queue submit: %s", err)
		}
		return err
	}
	stream.state = streamSubmitted
	return nil
}

func (s *commandStream) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *commandStream) Begin() error {
	if s.state == streamRecording || s.state == streamInPass {
		return fmt.Errorf("%w: begin while recording", errStreamState)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(s.Handle, &beginInfo); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	s.err = nil
	s.state = streamRecording
	return nil
}

func (s *commandStream) End() error {
	switch s.state {
	case streamInPass:
		vk.CmdEndRenderPass(s.Handle)
		s.fail(fmt.Errorf("%w: pass left open", errStreamState))
	case streamRecording:
	default:
		return fmt.Errorf("%w: end without begin", errStreamState)
	}
	res := vk.EndCommandBuffer(s.Handle)
	s.state = streamEnded
	if s.err != nil {
		return s.err
	}
	return resultError("vkEndCommandBuffer", res)
}

func (s *commandStream) Reset() error {
	if res := vk.ResetCommandBuffer(s.Handle, 0); res != vk.Success {
		return resultError("vkResetCommandBuffer", res)
	}
	s.err = nil
	s.state = streamReady
	return nil
}

func (s *commandStream) recording() bool {
	if s.state == streamRecording || s.state == streamInPass {
		return true
	}
	s.fail(fmt.Errorf("%w: command outside of recording", errStreamState))
	return false
}

func (s *commandStream) Barrier(h gpu.Image, from, to gpu.ImageLayout) {
	if !s.recording() {
		return
	}
	img, err := lookup(s.device, s.device.images, h.Handle, "image")
	if err != nil {
		s.fail(err)
		return
	}
	srcStage, srcAccess, dstStage, dstAccess := barrierMasks(from, to, img.swapchain)
	layers := uint32(len(img.LayerViews))
	if layers == 0 {
		layers = 1
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           imageLayout(from),
		NewLayout:           imageLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     img.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     layers,
		},
	}
	vk.CmdPipelineBarrier(s.Handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// BeginPass expects every attachment to already sit in its attachment
// layout.
func (s *commandStream) BeginPass(desc gpu.PassDesc) {
	if s.state != streamRecording {
		s.fail(fmt.Errorf("%w: begin pass %q in state %d", errStreamState, desc.Name, s.state))
		return
	}
	if len(desc.Color) > maxColorAttachments {
		s.fail(fmt.Errorf("%w: pass %q has %d color attachments", core.ErrInvalidConfig, desc.Name, len(desc.Color)))
		return
	}
	d := s.device

	var key renderpassKey
	fbKey := framebufferKey{Width: desc.Extent.Width, Height: desc.Extent.Height}
	clearValues := make([]vk.ClearValue, 0, len(desc.Color)+1)
	for i, c := range desc.Color {
		img, err := lookup(d, d.images, c.Image.Handle, "image")
		if err != nil {
			s.fail(fmt.Errorf("pass %q: %w", desc.Name, err))
			return
		}
		key.Colors[i] = attachmentKey{Format: img.Format, Load: loadOp(c.Load), Store: storeOp(c.Store)}
		fbKey.Views[fbKey.Count] = img.View
		fbKey.Count++
		clearValues = append(clearValues, vk.NewClearValue([]float32{
			float32(c.Clear.R), float32(c.Clear.G), float32(c.Clear.B), float32(c.Clear.A),
		}))
	}
	key.ColorCount = len(desc.Color)
	if desc.Depth != nil {
		img, err := lookup(d, d.images, desc.Depth.Image.Handle, "image")
		if err != nil {
			s.fail(fmt.Errorf("pass %q: %w", desc.Name, err))
			return
		}
		key.Depth = attachmentKey{Format: img.Format, Load: loadOp(desc.Depth.Load), Store: storeOp(desc.Depth.Store)}
		key.HasDepth = true
		fbKey.Views[fbKey.Count] = img.attachmentView(desc.Depth.Layer)
		fbKey.Count++
		clearValues = append(clearValues, vk.NewClearDepthStencil(desc.Depth.ClearDepth, 0))
	}

	renderpass, err := d.renderpass(key)
	if err != nil {
		s.fail(fmt.Errorf("pass %q: %w", desc.Name, err))
		return
	}
	fbKey.Renderpass = renderpass
	framebuffer, err := d.framebuffer(fbKey)
	if err != nil {
		s.fail(fmt.Errorf("pass %q: %w", desc.Name, err))
		return
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderpass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(s.Handle, &beginInfo, vk.SubpassContentsInline)
	s.state = streamInPass
	s.SetViewport(desc.Extent)
}

func (s *commandStream) EndPass() {
	if s.state != streamInPass {
		s.fail(fmt.Errorf("%w: end pass without begin", errStreamState))
		return
	}
	vk.CmdEndRenderPass(s.Handle)
	s.state = streamRecording
}

func (s *commandStream) SetViewport(extent gpu.Extent2D) {
	if !s.recording() {
		return
	}
	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetViewport(s.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(s.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (s *commandStream) pipeline(h gpu.Pipeline) (*VulkanPipeline, bool) {
	if !s.recording() {
		return nil, false
	}
	p, err := lookup(s.device, s.device.pipelines, h.Handle, "pipeline")
	if err != nil {
		s.fail(err)
		return nil, false
	}
	return p, true
}

func (s *commandStream) BindPipeline(h gpu.Pipeline) {
	if p, ok := s.pipeline(h); ok {
		vk.CmdBindPipeline(s.Handle, vk.PipelineBindPointGraphics, p.Handle)
	}
}

func (s *commandStream) BindSet(h gpu.Pipeline, index uint32, set gpu.BindingSet) {
	p, ok := s.pipeline(h)
	if !ok {
		return
	}
	vs, err := lookup(s.device, s.device.sets, set.Handle, "binding set")
	if err != nil {
		s.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(s.Handle, vk.PipelineBindPointGraphics, p.PipelineLayout, index, 1, []vk.DescriptorSet{vs.Handle}, 0, nil)
}

func (s *commandStream) PushConstants(h gpu.Pipeline, stages gputypes.ShaderStages, offset uint32, data []byte) {
	p, ok := s.pipeline(h)
	if !ok || len(data) == 0 {
		return
	}
	vk.CmdPushConstants(s.Handle, p.PipelineLayout, shaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (s *commandStream) buffer(h gpu.Buffer) (*vulkanBuffer, bool) {
	if !s.recording() {
		return nil, false
	}
	buf, err := lookup(s.device, s.device.buffers, h.Handle, "buffer")
	if err != nil {
		s.fail(err)
		return nil, false
	}
	return buf, true
}

func (s *commandStream) BindVertexBuffer(h gpu.Buffer, offset uint64) {
	if buf, ok := s.buffer(h); ok {
		vk.CmdBindVertexBuffers(s.Handle, 0, 1, []vk.Buffer{buf.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
	}
}

func (s *commandStream) BindIndexBuffer(h gpu.Buffer, offset uint64, format gputypes.IndexFormat) {
	if buf, ok := s.buffer(h); ok {
		vk.CmdBindIndexBuffer(s.Handle, buf.Handle, vk.DeviceSize(offset), indexType(format))
	}
}

func (s *commandStream) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if s.state != streamInPass {
		s.fail(fmt.Errorf("%w: draw outside of a pass", errStreamState))
		return
	}
	vk.CmdDrawIndexed(s.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (s *commandStream) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if s.state != streamInPass {
		s.fail(fmt.Errorf("%w: draw outside of a pass", errStreamState))
		return
	}
	vk.CmdDraw(s.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}
