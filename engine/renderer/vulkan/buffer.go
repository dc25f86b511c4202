package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

// vulkanBuffer lives in host visible, coherent memory and stays mapped for
// its whole lifetime, so writes need no flush.
type vulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	mapped unsafe.Pointer
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return gpu.Buffer{}, fmt.Errorf("%w: buffer %q has zero size", core.ErrInvalidConfig, desc.Label)
	}
	buf := &vulkanBuffer{Size: desc.Size}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(d.logical(), &createInfo, d.context.Allocator, &buf.Handle); res != vk.Success {
		return gpu.Buffer{}, resultError("vkCreateBuffer "+desc.Label, res)
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical(), buf.Handle, &requirements)
	requirements.Deref()

	flags := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	memoryType := d.context.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if memoryType == -1 {
		d.destroyBuffer(buf)
		return gpu.Buffer{}, fmt.Errorf("buffer %q: no host visible memory type: %w", desc.Label, core.ErrOutOfMemory)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if res := vk.AllocateMemory(d.logical(), &allocateInfo, d.context.Allocator, &buf.Memory); res != vk.Success {
		d.destroyBuffer(buf)
		return gpu.Buffer{}, resultError("vkAllocateMemory "+desc.Label, res)
	}
	if res := vk.BindBufferMemory(d.logical(), buf.Handle, buf.Memory, 0); res != vk.Success {
		d.destroyBuffer(buf)
		return gpu.Buffer{}, resultError("vkBindBufferMemory "+desc.Label, res)
	}
	if res := vk.MapMemory(d.logical(), buf.Memory, 0, vk.DeviceSize(desc.Size), 0, &buf.mapped); res != vk.Success {
		d.destroyBuffer(buf)
		return gpu.Buffer{}, resultError("vkMapMemory "+desc.Label, res)
	}
	return gpu.Buffer{Handle: insert(d, d.buffers, buf)}, nil
}

func (d *Device) WriteBuffer(h gpu.Buffer, offset uint64, data []byte) error {
	buf, err := lookup(d, d.buffers, h.Handle, "buffer")
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > buf.Size {
		return fmt.Errorf("%w: write of %d bytes at %d overflows buffer of %d", core.ErrInvalidConfig, len(data), offset, buf.Size)
	}
	if len(data) == 0 {
		return nil
	}
	dst := unsafe.Slice((*byte)(unsafe.Add(buf.mapped, offset)), len(data))
	copy(dst, data)
	return nil
}

func (d *Device) DestroyBuffer(h gpu.Buffer) {
	if buf, ok := remove(d, d.buffers, h.Handle); ok {
		d.destroyBuffer(buf)
	}
}

func (d *Device) destroyBuffer(buf *vulkanBuffer) {
	if buf.mapped != nil {
		vk.UnmapMemory(d.logical(), buf.Memory)
		buf.mapped = nil
	}
	if buf.Memory != nil {
		vk.FreeMemory(d.logical(), buf.Memory, d.context.Allocator)
		buf.Memory = nil
	}
	if buf.Handle != nil {
		vk.DestroyBuffer(d.logical(), buf.Handle, d.context.Allocator)
		buf.Handle = nil
	}
}
