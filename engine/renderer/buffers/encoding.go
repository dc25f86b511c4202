// Package buffers encodes per-frame uniform data and uploads it into one
// host-visible buffer per frame slot.
package buffers

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

// encoder appends little-endian, 16-byte aligned fields the way WGSL lays
// out uniform structs.
type encoder struct {
	buf []byte
}

func newEncoder(size int) *encoder {
	return &encoder{buf: make([]byte, 0, size)}
}

func (e *encoder) u32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) f32(v float32) {
	e.u32(math.Float32bits(v))
}

// vec3 writes xyz followed by w in the padding slot.
func (e *encoder) vec3(v mgl32.Vec3, w float32) {
	e.f32(v[0])
	e.f32(v[1])
	e.f32(v[2])
	e.f32(w)
}

func (e *encoder) vec4(v mgl32.Vec4) {
	for _, f := range v {
		e.f32(f)
	}
}

// mat4 writes column-major, matching mgl32 storage.
func (e *encoder) mat4(m mgl32.Mat4) {
	for _, f := range m {
		e.f32(f)
	}
}

func (e *encoder) zero(n int) {
	for i := 0; i < n; i++ {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) bytes() []byte { return e.buf }

// slotBuffers owns one buffer per frame slot and remembers the bytes last
// uploaded to each, so unchanged data is not written again.
type slotBuffers struct {
	device  gpu.Device
	label   string
	size    uint64
	buffers []gpu.Buffer
	last    [][]byte
	uploads uint64
}

func newSlotBuffers(device gpu.Device, label string, frames int, size uint64, usage gputypes.BufferUsage) (*slotBuffers, error) {
	if frames < 1 {
		return nil, fmt.Errorf("%w: %s needs at least one frame slot", core.ErrInvalidConfig, label)
	}
	s := &slotBuffers{
		device:  device,
		label:   label,
		size:    size,
		buffers: make([]gpu.Buffer, 0, frames),
		last:    make([][]byte, frames),
	}
	for i := 0; i < frames; i++ {
		b, err := device.CreateBuffer(gpu.BufferDesc{
			Label: fmt.Sprintf("%s[%d]", label, i),
			Size:  size,
			Usage: usage,
		})
		if err != nil {
			s.destroy()
			err = fmt.Errorf("failed to create %s buffer for frame %d: %w", label, i, err)
			core.LogError(err.Error())
			return nil, err
		}
		s.buffers = append(s.buffers, b)
	}
	return s, nil
}

// upload writes data into the frame's buffer unless it matches the previous
// upload for that frame. It reports whether a write happened.
func (s *slotBuffers) upload(frame int, data []byte) (bool, error) {
	if frame < 0 || frame >= len(s.buffers) {
		return false, fmt.Errorf("%s: frame %d out of range [0,%d)", s.label, frame, len(s.buffers))
	}
	if uint64(len(data)) != s.size {
		return false, fmt.Errorf("%s: encoded %d bytes, buffer holds %d", s.label, len(data), s.size)
	}
	if s.last[frame] != nil && bytes.Equal(s.last[frame], data) {
		return false, nil
	}
	if err := s.device.WriteBuffer(s.buffers[frame], 0, data); err != nil {
		return false, fmt.Errorf("failed to upload %s for frame %d: %w", s.label, frame, err)
	}
	s.last[frame] = data
	s.uploads++
	return true, nil
}

func (s *slotBuffers) buffer(frame int) gpu.Buffer {
	if frame < 0 || frame >= len(s.buffers) {
		return gpu.Buffer{}
	}
	return s.buffers[frame]
}

func (s *slotBuffers) destroy() {
	for _, b := range s.buffers {
		s.device.DestroyBuffer(b)
	}
	s.buffers = nil
	s.last = nil
}
