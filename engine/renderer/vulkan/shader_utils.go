package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/core"
)

// shaderStage is one compiled module plus the create info that references it.
type shaderStage struct {
	Handle     vk.ShaderModule
	CreateInfo vk.PipelineShaderStageCreateInfo
}

// newShaderStage wraps SPIR-V words in a module for stage. Failures are
// reported as core.ErrShaderCompilation unless the device itself failed.
func (d *Device) newShaderStage(name string, code []uint32, stage vk.ShaderStageFlagBits, entry string) (shaderStage, error) {
	if len(code) == 0 {
		return shaderStage{}, fmt.Errorf("%s: empty module: %w", name, core.ErrShaderCompilation)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.logical(), &createInfo, d.context.Allocator, &module); res != vk.Success {
		err := resultError("vkCreateShaderModule "+name, res)
		if core.IsFatal(err) {
			return shaderStage{}, err
		}
		return shaderStage{}, fmt.Errorf("%w: %w", core.ErrShaderCompilation, err)
	}
	return shaderStage{
		Handle: module,
		CreateInfo: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: module,
			PName:  VulkanSafeString(entry),
		},
	}, nil
}

func (d *Device) destroyShaderStages(stages []shaderStage) {
	for _, s := range stages {
		if s.Handle != nil {
			vk.DestroyShaderModule(d.logical(), s.Handle, d.context.Allocator)
		}
	}
}
