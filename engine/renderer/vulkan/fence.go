package vulkan

import (
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if res := vk.CreateFence(d.logical(), &createInfo, d.context.Allocator, &fence); res != vk.Success {
		return gpu.Fence{}, resultError("vkCreateFence", res)
	}
	return gpu.Fence{Handle: insert(d, d.fences, fence)}, nil
}

// WaitFence blocks until the fence signals or the timeout elapses, in which
// case gpu.ErrTimeout is returned.
func (d *Device) WaitFence(h gpu.Fence, timeout time.Duration) error {
	fence, err := lookup(d, d.fences, h.Handle, "fence")
	if err != nil {
		return err
	}
	res := vk.WaitForFences(d.logical(), 1, []vk.Fence{fence}, vk.True, timeoutNanos(timeout))
	switch res {
	case vk.Success:
		return nil
	case vk.Timeout:
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(res, true))
	}
	return resultError("vkWaitForFences", res)
}

func (d *Device) ResetFence(h gpu.Fence) error {
	fence, err := lookup(d, d.fences, h.Handle, "fence")
	if err != nil {
		return err
	}
	return resultError("vkResetFences", vk.ResetFences(d.logical(), 1, []vk.Fence{fence}))
}

func (d *Device) DestroyFence(h gpu.Fence) {
	if fence, ok := remove(d, d.fences, h.Handle); ok {
		vk.DestroyFence(d.logical(), fence, d.context.Allocator)
	}
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(d.logical(), &createInfo, d.context.Allocator, &semaphore); res != vk.Success {
		return gpu.Semaphore{}, resultError("vkCreateSemaphore", res)
	}
	return gpu.Semaphore{Handle: insert(d, d.semaphores, semaphore)}, nil
}

// semaphoreList resolves the valid handles of hs, skipping zero ones.
func (d *Device) semaphoreList(hs ...gpu.Semaphore) ([]vk.Semaphore, error) {
	var out []vk.Semaphore
	for _, h := range hs {
		if !h.IsValid() {
			continue
		}
		s, err := lookup(d, d.semaphores, h.Handle, "semaphore")
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *Device) DestroySemaphore(h gpu.Semaphore) {
	if semaphore, ok := remove(d, d.semaphores, h.Handle); ok {
		vk.DestroySemaphore(d.logical(), semaphore, d.context.Allocator)
	}
}

func timeoutNanos(timeout time.Duration) uint64 {
	if timeout == gpu.NoTimeout || timeout < 0 {
		return math.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}
