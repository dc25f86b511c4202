package renderer

import (
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/binding"
	"github.com/spaghettifunk/umbra/engine/renderer/buffers"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/passes"
)

// FrameSlot is one of the rotating per frame contexts. The slot may only be
// reused after its fence signaled.
type FrameSlot struct {
	Index          int
	Stream         gpu.CommandStream
	Fence          gpu.Fence
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	// FrameSet binds this slot's copy of the camera and lights buffers.
	FrameSet gpu.BindingSet
}

func newFrameSlot(device gpu.Device, allocator *binding.Allocator, index int, camera *buffers.CameraMatrixBuffer, lights *buffers.LightsBuffer) (*FrameSlot, error) {
	s := &FrameSlot{Index: index}
	stream, err := device.CreateCommandStream()
	if err != nil {
		return nil, err
	}
	s.Stream = stream

	// created signaled so the first wait on every slot returns at once
	if s.Fence, err = device.CreateFence(true); err != nil {
		s.destroy(device, allocator)
		return nil, err
	}
	if err := s.createSemaphores(device); err != nil {
		s.destroy(device, allocator)
		return nil, err
	}
	if s.FrameSet, err = allocator.MakeSet(passes.FrameBindings(camera.Buffer(index), lights.Buffer(index))); err != nil {
		s.destroy(device, allocator)
		return nil, err
	}
	return s, nil
}

func (s *FrameSlot) createSemaphores(device gpu.Device) error {
	var err error
	if s.ImageAvailable, err = device.CreateSemaphore(); err != nil {
		return err
	}
	s.RenderFinished, err = device.CreateSemaphore()
	return err
}

// resetSemaphores replaces both semaphores. A dropped frame can leave the
// image-available semaphore signaled with no submit waiting on it, so they
// are recreated after every rebuild, once the device is idle.
func (s *FrameSlot) resetSemaphores(device gpu.Device) error {
	s.destroySemaphores(device)
	return s.createSemaphores(device)
}

// replaceFence swaps in a new signaled fence. A submit that failed after the
// fence was reset would otherwise leave the next wait on this slot blocked.
func (s *FrameSlot) replaceFence(device gpu.Device) error {
	fence, err := device.CreateFence(true)
	if err != nil {
		return err
	}
	if s.Fence.IsValid() {
		device.DestroyFence(s.Fence)
	}
	s.Fence = fence
	return nil
}

func (s *FrameSlot) destroySemaphores(device gpu.Device) {
	if s.ImageAvailable.IsValid() {
		device.DestroySemaphore(s.ImageAvailable)
	}
	if s.RenderFinished.IsValid() {
		device.DestroySemaphore(s.RenderFinished)
	}
	s.ImageAvailable, s.RenderFinished = gpu.Semaphore{}, gpu.Semaphore{}
}

func (s *FrameSlot) destroy(device gpu.Device, allocator *binding.Allocator) {
	if s.FrameSet.IsValid() {
		if err := allocator.Free(s.FrameSet); err != nil {
			core.LogWarn("frame slot %d: %s", s.Index, err)
		}
		s.FrameSet = gpu.BindingSet{}
	}
	s.destroySemaphores(device)
	if s.Fence.IsValid() {
		device.DestroyFence(s.Fence)
		s.Fence = gpu.Fence{}
	}
	if s.Stream != nil {
		device.DestroyCommandStream(s.Stream)
		s.Stream = nil
	}
}
