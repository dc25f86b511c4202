// Package vulkan implements gpu.Device on top of Vulkan.
package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

// Window is what the backend needs from the platform window. *glfw.Window
// satisfies it.
type Window interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

type Config struct {
	ApplicationName string
	// Validation enables the Khronos validation layer and the debug report
	// callback.
	Validation bool
}

// Device owns the Vulkan instance, surface and logical device. Every object
// it hands out is addressed by a generational handle.
type Device struct {
	context *Context
	debug   bool
	locks   *lockPool

	fences     *containers.Arena[vk.Fence]
	semaphores *containers.Arena[vk.Semaphore]
	images     *containers.Arena[*vulkanImage]
	samplers   *containers.Arena[vk.Sampler]
	buffers    *containers.Arena[*vulkanBuffer]
	pools      *containers.Arena[vk.DescriptorPool]
	layouts    *containers.Arena[vk.DescriptorSetLayout]
	sets       *containers.Arena[*vulkanSet]
	pipelines  *containers.Arena[*VulkanPipeline]
	swapchains *containers.Arena[*VulkanSwapchain]
	streams    map[*commandStream]struct{}

	renderpasses map[renderpassKey]vk.RenderPass
	framebuffers map[framebufferKey]vk.Framebuffer
}

var _ gpu.Device = (*Device)(nil)

// New creates the instance, the window surface and the logical device.
func New(window Window, cfg Config) (*Device, error) {
	d := &Device{
		context:      &Context{},
		debug:        cfg.Validation,
		locks:        newLockPool(),
		fences:       containers.NewArena[vk.Fence](8),
		semaphores:   containers.NewArena[vk.Semaphore](8),
		images:       containers.NewArena[*vulkanImage](16),
		samplers:     containers.NewArena[vk.Sampler](8),
		buffers:      containers.NewArena[*vulkanBuffer](16),
		pools:        containers.NewArena[vk.DescriptorPool](2),
		layouts:      containers.NewArena[vk.DescriptorSetLayout](8),
		sets:         containers.NewArena[*vulkanSet](64),
		pipelines:    containers.NewArena[*VulkanPipeline](8),
		swapchains:   containers.NewArena[*VulkanSwapchain](2),
		streams:      make(map[*commandStream]struct{}),
		renderpasses: make(map[renderpassKey]vk.RenderPass),
		framebuffers: make(map[framebufferKey]vk.Framebuffer),
	}
	if err := d.initialize(window, cfg.ApplicationName); err != nil {
		d.Destroy()
		return nil, err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return d, nil
}

func (d *Device) initialize(window Window, appName string) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w", err)
	}

	if err := d.createInstance(window, appName); err != nil {
		return err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateWindowSurface(d.context.Instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %s: %w", err, core.ErrSurfaceUnsupported)
	}
	d.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	return createLogicalDevice(d.context)
}

func (d *Device) createInstance(window Window, appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         apiVersion,
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString(engineName),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{"VK_KHR_surface"}, window.GetRequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if d.debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		core.LogDebug("Required extensions: %v", extensions)

		core.LogInfo("Validation layers enabled. Enumerating...")
		if err := requireLayer(validationLayer); err != nil {
			return err
		}
		layers = []string{validationLayer}
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, d.context.Allocator, &d.context.Instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	if err := vk.InitInstance(d.context.Instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if d.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var callback vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, d.context.Allocator, &callback); res != vk.Success {
			return resultError("vkCreateDebugReportCallback", res)
		}
		d.context.debugCallback = callback
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func requireLayer(name string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			core.LogInfo("Found validation layer %s.", name)
			return nil
		}
	}
	return fmt.Errorf("required validation layer is missing: %s", name)
}

func (d *Device) logical() vk.Device {
	return d.context.Device.LogicalDevice
}

func (d *Device) WaitIdle() error {
	return d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.logical()))
	})
}

// Destroy releases everything still alive, in the opposite order of
// creation. Objects the renderer leaked are logged.
func (d *Device) Destroy() {
	ctx := d.context
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(ctx.Device.LogicalDevice)
		d.releaseAll()
		destroyLogicalDevice(ctx)
	}

	if ctx.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}
	if ctx.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
		ctx.debugCallback = vk.NullDebugReportCallback
	}
	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
}

func (d *Device) releaseAll() {
	leaked := d.fences.Len() + d.semaphores.Len() + d.buffers.Len() + d.pipelines.Len() + d.sets.Len()
	if leaked > 0 {
		core.LogWarn("vulkan: %d objects still alive at shutdown", leaked)
	}
	for s := range d.streams {
		d.DestroyCommandStream(s)
	}
	d.swapchains.Each(func(h containers.Handle, _ *VulkanSwapchain) { d.DestroySwapchain(gpu.Swapchain{Handle: h}) })
	d.pipelines.Each(func(h containers.Handle, _ *VulkanPipeline) { d.DestroyPipeline(gpu.Pipeline{Handle: h}) })
	d.pools.Each(func(h containers.Handle, _ vk.DescriptorPool) { d.DestroyBindingPool(gpu.BindingPool{Handle: h}) })
	d.layouts.Each(func(h containers.Handle, _ vk.DescriptorSetLayout) { d.DestroyBindingLayout(gpu.BindingLayout{Handle: h}) })
	d.buffers.Each(func(h containers.Handle, _ *vulkanBuffer) { d.DestroyBuffer(gpu.Buffer{Handle: h}) })
	d.samplers.Each(func(h containers.Handle, _ vk.Sampler) { d.DestroySampler(gpu.Sampler{Handle: h}) })
	d.images.Each(func(h containers.Handle, _ *vulkanImage) { d.DestroyImage(gpu.Image{Handle: h}) })
	d.semaphores.Each(func(h containers.Handle, _ vk.Semaphore) { d.DestroySemaphore(gpu.Semaphore{Handle: h}) })
	d.fences.Each(func(h containers.Handle, _ vk.Fence) { d.DestroyFence(gpu.Fence{Handle: h}) })
	d.destroyCaches()
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
