package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

type vulkanSet struct {
	Handle vk.DescriptorSet
	Pool   gpu.BindingPool
}

func (d *Device) CreateBindingPool(desc gpu.PoolDesc) (gpu.BindingPool, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(desc.Sizes))
	for kind, count := range desc.Sizes {
		if count == 0 {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            descriptorType(kind),
			DescriptorCount: count,
		})
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.logical(), &createInfo, d.context.Allocator, &pool); res != vk.Success {
		return gpu.BindingPool{}, resultError("vkCreateDescriptorPool", res)
	}
	return gpu.BindingPool{Handle: insert(d, d.pools, pool)}, nil
}

// DestroyBindingPool releases the pool and every set allocated from it.
func (d *Device) DestroyBindingPool(h gpu.BindingPool) {
	pool, ok := remove(d, d.pools, h.Handle)
	if !ok {
		return
	}
	var orphans []gpu.BindingSet
	d.locks.SafeCall(ResourceManagement, func() error {
		d.sets.Each(func(sh containers.Handle, s *vulkanSet) {
			if s.Pool == h {
				orphans = append(orphans, gpu.BindingSet{Handle: sh})
			}
		})
		for _, s := range orphans {
			d.sets.Remove(s.Handle)
		}
		return nil
	})
	vk.DestroyDescriptorPool(d.logical(), pool, d.context.Allocator)
}

func (d *Device) CreateBindingLayout(entries []gpu.LayoutEntry) (gpu.BindingLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(entries))
	for i, e := range entries {
		count := e.Count
		if count == 0 {
			count = 1
		}
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         e.Binding,
			DescriptorType:  descriptorType(e.Kind),
			DescriptorCount: count,
			StageFlags:      shaderStages(e.Stages),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.logical(), &createInfo, d.context.Allocator, &layout); res != vk.Success {
		return gpu.BindingLayout{}, resultError("vkCreateDescriptorSetLayout", res)
	}
	return gpu.BindingLayout{Handle: insert(d, d.layouts, layout)}, nil
}

func (d *Device) DestroyBindingLayout(h gpu.BindingLayout) {
	if layout, ok := remove(d, d.layouts, h.Handle); ok {
		vk.DestroyDescriptorSetLayout(d.logical(), layout, d.context.Allocator)
	}
}

// AllocateBindingSet reports an exhausted or fragmented pool as
// core.ErrPoolExhausted.
func (d *Device) AllocateBindingSet(poolHandle gpu.BindingPool, layoutHandle gpu.BindingLayout) (gpu.BindingSet, error) {
	pool, err := lookup(d, d.pools, poolHandle.Handle, "binding pool")
	if err != nil {
		return gpu.BindingSet{}, err
	}
	layout, err := lookup(d, d.layouts, layoutHandle.Handle, "binding layout")
	if err != nil {
		return gpu.BindingSet{}, err
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(d.logical(), &allocateInfo, &set); res != vk.Success {
		return gpu.BindingSet{}, resultError("vkAllocateDescriptorSets", res)
	}
	return gpu.BindingSet{Handle: insert(d, d.sets, &vulkanSet{Handle: set, Pool: poolHandle})}, nil
}

func (d *Device) FreeBindingSet(poolHandle gpu.BindingPool, h gpu.BindingSet) error {
	pool, err := lookup(d, d.pools, poolHandle.Handle, "binding pool")
	if err != nil {
		return err
	}
	set, err := lookup(d, d.sets, h.Handle, "binding set")
	if err != nil {
		return err
	}
	if set.Pool != poolHandle {
		return fmt.Errorf("%w: binding set %s freed to pool %s it was not allocated from", core.ErrInvalidConfig, h.Handle, poolHandle.Handle)
	}
	remove(d, d.sets, h.Handle)
	return resultError("vkFreeDescriptorSets", vk.FreeDescriptorSets(d.logical(), pool, 1, &set.Handle))
}

func (d *Device) WriteBindingSet(h gpu.BindingSet, writes []gpu.BindingWrite) error {
	set, err := lookup(d, d.sets, h.Handle, "binding set")
	if err != nil {
		return err
	}
	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:          vk.StructureTypeWriteDescriptorSet,
			DstSet:         set.Handle,
			DstBinding:     w.Binding,
			DescriptorType: descriptorType(w.Kind),
		}
		switch w.Kind {
		case gpu.BindingUniformBuffer, gpu.BindingStorageBuffer:
			infos := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for i, r := range w.Buffers {
				buf, err := lookup(d, d.buffers, r.Buffer.Handle, "buffer")
				if err != nil {
					return err
				}
				size := r.Size
				if size == 0 {
					size = buf.Size - r.Offset
				}
				infos[i] = vk.DescriptorBufferInfo{
					Buffer: buf.Handle,
					Offset: vk.DeviceSize(r.Offset),
					Range:  vk.DeviceSize(size),
				}
			}
			write.DescriptorCount = uint32(len(infos))
			write.PBufferInfo = infos
		case gpu.BindingSampler:
			sampler, err := lookup(d, d.samplers, w.Sampler.Handle, "sampler")
			if err != nil {
				return err
			}
			write.DescriptorCount = 1
			write.PImageInfo = []vk.DescriptorImageInfo{{Sampler: sampler}}
		default:
			var sampler vk.Sampler
			if w.Kind == gpu.BindingCombinedImageSampler {
				if sampler, err = lookup(d, d.samplers, w.Sampler.Handle, "sampler"); err != nil {
					return err
				}
			}
			infos := make([]vk.DescriptorImageInfo, len(w.Images))
			for i, ih := range w.Images {
				img, err := lookup(d, d.images, ih.Handle, "image")
				if err != nil {
					return err
				}
				layout := vk.ImageLayoutShaderReadOnlyOptimal
				if img.Depth {
					layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
				}
				infos[i] = vk.DescriptorImageInfo{
					Sampler:     sampler,
					ImageView:   img.View,
					ImageLayout: layout,
				}
			}
			write.DescriptorCount = uint32(len(infos))
			write.PImageInfo = infos
		}
		if write.DescriptorCount > 0 {
			descriptorWrites = append(descriptorWrites, write)
		}
	}
	if len(descriptorWrites) > 0 {
		vk.UpdateDescriptorSets(d.logical(), uint32(len(descriptorWrites)), descriptorWrites, 0, nil)
	}
	return nil
}
