package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/core"
)

// PhysicalDevice is the selected adapter, its logical device and the queues
// taken from it.
type PhysicalDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	portability bool
}

type physicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Transfer             bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

type queueFamilyInfo struct {
	Graphics int32
	Present  int32
	Compute  int32
	Transfer int32
}

func createLogicalDevice(ctx *Context) error {
	if err := selectPhysicalDevice(ctx); err != nil {
		return err
	}
	d := ctx.Device

	core.LogInfo("Creating logical device...")

	// shared indices get a single queue
	indices := []uint32{uint32(d.GraphicsQueueIndex)}
	if d.PresentQueueIndex != d.GraphicsQueueIndex {
		indices = append(indices, uint32(d.PresentQueueIndex))
	}
	if d.TransferQueueIndex != d.GraphicsQueueIndex && d.TransferQueueIndex != d.PresentQueueIndex {
		indices = append(indices, uint32(d.TransferQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	features := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: d.Features.SamplerAnisotropy,
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if d.portability {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensions = append(extensions, portabilitySubset)
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	var device vk.Device
	if res := vk.CreateDevice(d.PhysicalDevice, &createInfo, ctx.Allocator, &device); res != vk.Success {
		return resultError("vkCreateDevice", res)
	}
	d.LogicalDevice = device
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(device, uint32(d.GraphicsQueueIndex), 0, &d.GraphicsQueue)
	vk.GetDeviceQueue(device, uint32(d.PresentQueueIndex), 0, &d.PresentQueue)
	vk.GetDeviceQueue(device, uint32(d.TransferQueueIndex), 0, &d.TransferQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device, &poolCreateInfo, ctx.Allocator, &pool); res != vk.Success {
		return resultError("vkCreateCommandPool", res)
	}
	d.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")
	return nil
}

func destroyLogicalDevice(ctx *Context) {
	d := ctx.Device
	if d == nil {
		return
	}
	d.GraphicsQueue, d.PresentQueue, d.TransferQueue = nil, nil, nil

	if d.LogicalDevice != nil {
		core.LogDebug("Destroying command pools...")
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, ctx.Allocator)

		core.LogDebug("Destroying logical device...")
		vk.DestroyDevice(d.LogicalDevice, ctx.Allocator)
		d.LogicalDevice = nil
	}
	// physical devices are not destroyed
	d.PhysicalDevice = nil
	d.GraphicsQueueIndex, d.PresentQueueIndex, d.TransferQueueIndex = -1, -1, -1
}

func selectPhysicalDevice(ctx *Context) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		return fmt.Errorf("no devices which support Vulkan were found: %w", core.ErrSurfaceUnsupported)
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, devices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	requirements := physicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		SamplerAnisotropy:    true,
		DiscreteGPU:          runtime.GOOS != "darwin",
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// A discrete GPU is preferred but an integrated one is taken when it is
	// all there is.
	for _, discrete := range []bool{requirements.DiscreteGPU, false} {
		requirements.DiscreteGPU = discrete
		for _, candidate := range devices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(candidate, &properties)
			properties.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(candidate, &features)
			features.Deref()

			var memory vk.PhysicalDeviceMemoryProperties
			vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)
			memory.Deref()

			queues, portability, ok := physicalDeviceMeetsRequirements(candidate, ctx.Surface, &properties, &features, &requirements)
			if !ok {
				continue
			}
			logDevice(&properties, &memory)

			ctx.Device = &PhysicalDevice{
				PhysicalDevice:     candidate,
				GraphicsQueueIndex: queues.Graphics,
				PresentQueueIndex:  queues.Present,
				TransferQueueIndex: queues.Transfer,
				Properties:         properties,
				Features:           features,
				Memory:             memory,
				portability:        portability,
			}
			core.LogInfo("Physical device selected.")
			return nil
		}
	}
	return fmt.Errorf("no physical devices were found which meet the requirements: %w", core.ErrSurfaceUnsupported)
}

func logDevice(properties *vk.PhysicalDeviceProperties, memory *vk.PhysicalDeviceMemoryProperties) {
	core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	driver := vk.Version(properties.DriverVersion)
	api := vk.Version(properties.ApiVersion)
	core.LogInfo("GPU Driver version: %d.%d.%d", driver.Major(), driver.Minor(), driver.Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d", api.Major(), api.Minor(), api.Patch())

	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		heap := memory.MemoryHeaps[j]
		heap.Deref()
		gib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
}

func physicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *physicalDeviceRequirements) (queueFamilyInfo, bool, bool) {
	info := queueFamilyInfo{Graphics: -1, Present: -1, Compute: -1, Transfer: -1}

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("Device is not a discrete GPU, and one is required. Skipping.")
		return info, false, false
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)

	minTransferScore := 255
	for i := range families {
		families[i].Deref()
		flags := vk.QueueFlagBits(families[i].QueueFlags)
		score := 0
		if flags&vk.QueueGraphicsBit != 0 && info.Graphics < 0 {
			info.Graphics = int32(i)
			score++
		}
		if flags&vk.QueueComputeBit != 0 && info.Compute < 0 {
			info.Compute = int32(i)
			score++
		}
		// the lowest scoring family is most likely a dedicated transfer queue
		if flags&vk.QueueTransferBit != 0 && score <= minTransferScore {
			minTransferScore = score
			info.Transfer = int32(i)
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return info, false, false
		}
		if supportsPresent == vk.True && (info.Present < 0 || int32(i) == info.Graphics) {
			info.Present = int32(i)
		}
	}

	core.LogDebug("Graphics | Present | Compute | Transfer | Name")
	core.LogDebug("%8d | %7d | %7d | %8d | %s", info.Graphics, info.Present, info.Compute, info.Transfer, cString(properties.DeviceName[:]))

	if (requirements.Graphics && info.Graphics < 0) ||
		(requirements.Present && info.Present < 0) ||
		(requirements.Transfer && info.Transfer < 0) {
		return info, false, false
	}

	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, nil)
	if formatCount == 0 || modeCount == 0 {
		core.LogDebug("Required swapchain support not present, skipping device.")
		return info, false, false
	}

	var extensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionCount, nil); res != vk.Success {
		return info, false, false
	}
	available := make([]vk.ExtensionProperties, extensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionCount, available); res != vk.Success {
		return info, false, false
	}
	names := make(map[string]bool, len(available))
	for i := range available {
		available[i].Deref()
		names[cString(available[i].ExtensionName[:])] = true
	}
	for _, required := range requirements.DeviceExtensionNames {
		if !names[required] {
			core.LogDebug("Required extension not found: '%s', skipping device.", required)
			return info, false, false
		}
	}

	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogDebug("Device does not support samplerAnisotropy, skipping.")
		return info, false, false
	}
	return info, names[portabilitySubset], true
}
