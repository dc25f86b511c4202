package buffers

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/components"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

// CameraBlockSize is the size of the camera uniform block:
//
//	mat4 view, proj, view_proj, inv_view_proj   (256 bytes)
//	vec4 position                               ( 16 bytes)
//	vec4 near, far, aspect, fov_y               ( 16 bytes)
const CameraBlockSize = 4*64 + 16 + 16

type CameraMatrixBuffer struct {
	slots *slotBuffers
}

func NewCameraMatrixBuffer(device gpu.Device, frames int) (*CameraMatrixBuffer, error) {
	slots, err := newSlotBuffers(device, "camera", frames, CameraBlockSize,
		gputypes.BufferUsageUniform|gputypes.BufferUsageMapWrite)
	if err != nil {
		return nil, err
	}
	return &CameraMatrixBuffer{slots: slots}, nil
}

// EncodeCamera returns the camera block for cam.
func EncodeCamera(cam *components.Camera) []byte {
	view := cam.GetView()
	proj := cam.GetProjection()
	viewProj := proj.Mul4(view)

	e := newEncoder(CameraBlockSize)
	e.mat4(view)
	e.mat4(proj)
	e.mat4(viewProj)
	e.mat4(viewProj.Inv())
	e.vec3(cam.GetPosition(), 1)
	e.f32(cam.Near())
	e.f32(cam.Far())
	e.f32(cam.Aspect())
	e.f32(cam.FovY())
	return e.bytes()
}

// Update uploads the camera block into the frame's buffer. It reports false
// when the slot already held identical data.
func (b *CameraMatrixBuffer) Update(frame int, cam *components.Camera) (bool, error) {
	return b.slots.upload(frame, EncodeCamera(cam))
}

func (b *CameraMatrixBuffer) Buffer(frame int) gpu.Buffer { return b.slots.buffer(frame) }

// Uploads counts the writes that reached the device.
func (b *CameraMatrixBuffer) Uploads() uint64 { return b.slots.uploads }

func (b *CameraMatrixBuffer) Destroy() { b.slots.destroy() }
