package vulkan

import vk "github.com/goki/vulkan"

const (
	engineName        = "Umbra"
	validationLayer   = "VK_LAYER_KHRONOS_validation"
	portabilitySubset = "VK_KHR_portability_subset"

	// maxColorAttachments bounds the colour targets of one pass.
	maxColorAttachments = 4

	// Constant and slope factors for pipelines with depth bias enabled.
	depthBiasConstant float32 = 1.25
	depthBiasSlope    float32 = 1.75
)

var apiVersion = uint32(vk.MakeVersion(1, 1, 0))
