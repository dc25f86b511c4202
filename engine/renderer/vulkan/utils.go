package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

// VulkanResultString names a result code. With extended set a short
// description follows the name.
func VulkanResultString(result vk.Result, extended bool) string {
	name, desc := resultText(result)
	if extended && desc != "" {
		return name + " " + desc
	}
	return name
}

func resultText(result vk.Result) (string, string) {
	switch result {
	case vk.Success:
		return "VK_SUCCESS", "Command successfully completed"
	case vk.NotReady:
		return "VK_NOT_READY", "A fence or query has not yet completed"
	case vk.Timeout:
		return "VK_TIMEOUT", "A wait operation has not completed in the specified time"
	case vk.Incomplete:
		return "VK_INCOMPLETE", "A return array was too small for the result"
	case vk.Suboptimal:
		return "VK_SUBOPTIMAL_KHR", "The swapchain no longer matches the surface exactly but can still present"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver"
	case vk.ErrorTooManyObjects:
		return "VK_ERROR_TOO_MANY_OBJECTS", "Too many objects of the type have already been created"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY", "A pool memory allocation has failed"
	case vk.ErrorFragmentation:
		return "VK_ERROR_FRAGMENTATION", "A descriptor pool creation has failed due to fragmentation"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR", "A surface is no longer available"
	case vk.ErrorNativeWindowInUse:
		return "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "The requested window is already in use"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR", "The surface changed and is no longer compatible with the swapchain"
	case vk.ErrorIncompatibleDisplay:
		return "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR", "The display is incompatible with the swapchain"
	case vk.ErrorInvalidShaderNv:
		return "VK_ERROR_INVALID_SHADER_NV", "One or more shaders failed to compile or link"
	case vk.ErrorUnknown:
		return "VK_ERROR_UNKNOWN", "An unknown error has occurred"
	}
	return fmt.Sprintf("VkResult(%d)", int32(result)), ""
}

// resultError maps a result onto the renderer's error taxonomy. Success
// returns nil; every other code wraps the matching core error.
func resultError(op string, result vk.Result) error {
	var target error
	switch result {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		target = core.ErrSuboptimal
	case vk.ErrorOutOfDate:
		target = core.ErrOutOfDate
	case vk.Timeout, vk.NotReady:
		target = gpu.ErrTimeout
	case vk.ErrorDeviceLost:
		target = core.ErrDeviceLost
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorMemoryMapFailed, vk.ErrorTooManyObjects:
		target = core.ErrOutOfMemory
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool, vk.ErrorFragmentation:
		target = core.ErrPoolExhausted
	case vk.ErrorSurfaceLost, vk.ErrorNativeWindowInUse:
		target = core.ErrPresentLost
	case vk.ErrorFormatNotSupported, vk.ErrorIncompatibleDisplay:
		target = core.ErrSurfaceUnsupported
	case vk.ErrorInvalidShaderNv:
		target = core.ErrShaderCompilation
	default:
		target = core.ErrUnknown
	}
	return fmt.Errorf("%s: %s: %w", op, VulkanResultString(result, false), target)
}

const nul = "\x00"

// VulkanSafeString terminates s for the C side.
func VulkanSafeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + nul
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// cString reads a fixed size, NUL padded name array.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
