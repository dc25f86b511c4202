package testbed

import (
	"encoding/binary"
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/binding"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/passes"
)

// vertex matches the mesh layout of the geometry and shadow passes.
type vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// uiVertex matches the UI overlay layout.
type uiVertex struct {
	Position [2]float32
	Color    [4]float32
}

type mesh struct {
	vertices gpu.Buffer
	indices  gpu.Buffer
	count    uint32
}

// scene owns every GPU object the testbed creates.
type scene struct {
	device    gpu.Device
	allocator *binding.Allocator

	cube     mesh
	ground   mesh
	albedo   gpu.Image
	sampler  gpu.Sampler
	material gpu.BindingSet

	ui      gpu.Buffer
	uiCount uint32
}

// cubeGeometry returns a box centered on the origin with one quad per face
// so every face gets its own normal.
func cubeGeometry(width, height, depth float32) ([]vertex, []uint16) {
	x, y, z := width/2, height/2, depth/2
	faces := []struct {
		normal  [3]float32
		corners [4][3]float32
	}{
		{[3]float32{0, 0, 1}, [4][3]float32{{-x, -y, z}, {x, -y, z}, {x, y, z}, {-x, y, z}}},
		{[3]float32{0, 0, -1}, [4][3]float32{{x, -y, -z}, {-x, -y, -z}, {-x, y, -z}, {x, y, -z}}},
		{[3]float32{1, 0, 0}, [4][3]float32{{x, -y, z}, {x, -y, -z}, {x, y, -z}, {x, y, z}}},
		{[3]float32{-1, 0, 0}, [4][3]float32{{-x, -y, -z}, {-x, -y, z}, {-x, y, z}, {-x, y, -z}}},
		{[3]float32{0, 1, 0}, [4][3]float32{{-x, y, z}, {x, y, z}, {x, y, -z}, {-x, y, -z}}},
		{[3]float32{0, -1, 0}, [4][3]float32{{-x, -y, -z}, {x, -y, -z}, {x, -y, z}, {-x, -y, z}}},
	}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	vertices := make([]vertex, 0, 24)
	indices := make([]uint16, 0, 36)
	for _, f := range faces {
		base := uint16(len(vertices))
		for i, c := range f.corners {
			vertices = append(vertices, vertex{Position: c, Normal: f.normal, UV: uvs[i]})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}

// quadVertices returns two triangles covering the pixel rectangle at x, y
// of size w x h, in clip space for a surface of extent.
func quadVertices(x, y, w, h float32, extent gpu.Extent2D, color [4]float32) []uiVertex {
	if extent.IsZero() {
		return nil
	}
	toClip := func(px, py float32) [2]float32 {
		return [2]float32{px/float32(extent.Width)*2 - 1, py/float32(extent.Height)*2 - 1}
	}
	a, b := toClip(x, y), toClip(x+w, y)
	c, d := toClip(x+w, y+h), toClip(x, y+h)
	return []uiVertex{
		{a, color}, {b, color}, {c, color},
		{a, color}, {c, color}, {d, color},
	}
}

func newScene(device gpu.Device, allocator *binding.Allocator) (*scene, error) {
	s := &scene{device: device, allocator: allocator}

	var err error
	if s.cube, err = s.upload("cube", 2, 2, 2); err != nil {
		return nil, errors.Join(err, s.destroy())
	}
	if s.ground, err = s.upload("ground", 40, 0.2, 40); err != nil {
		return nil, errors.Join(err, s.destroy())
	}
	if s.albedo, err = passes.SolidTexture(device, "testbed.albedo", gputypes.Color{R: 0.8, G: 0.55, B: 0.35, A: 1}); err != nil {
		return nil, errors.Join(err, s.destroy())
	}
	if s.sampler, err = device.CreateSampler(gpu.SamplerDesc{
		Filter:  gputypes.FilterModeLinear,
		Address: gputypes.AddressModeRepeat,
	}); err != nil {
		return nil, errors.Join(err, s.destroy())
	}
	if s.material, err = allocator.MakeSet(passes.MaterialBindings(s.albedo, s.sampler)); err != nil {
		return nil, errors.Join(err, s.destroy())
	}
	if s.ui, err = device.CreateBuffer(gpu.BufferDesc{
		Label: "testbed.ui",
		Size:  uint64(binary.Size(uiVertex{})) * 6,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return nil, errors.Join(err, s.destroy())
	}
	return s, nil
}

func (s *scene) upload(label string, width, height, depth float32) (mesh, error) {
	vertices, indices := cubeGeometry(width, height, depth)

	vdata, err := binary.Append(nil, binary.LittleEndian, vertices)
	if err != nil {
		return mesh{}, err
	}
	idata, err := binary.Append(nil, binary.LittleEndian, indices)
	if err != nil {
		return mesh{}, err
	}

	m := mesh{count: uint32(len(indices))}
	if m.vertices, err = s.buffer(label+".vertices", vdata, gputypes.BufferUsageVertex); err != nil {
		return mesh{}, err
	}
	if m.indices, err = s.buffer(label+".indices", idata, gputypes.BufferUsageIndex); err != nil {
		s.device.DestroyBuffer(m.vertices)
		return mesh{}, err
	}
	return m, nil
}

func (s *scene) buffer(label string, data []byte, usage gputypes.BufferUsage) (gpu.Buffer, error) {
	b, err := s.device.CreateBuffer(gpu.BufferDesc{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return gpu.Buffer{}, err
	}
	if err := s.device.WriteBuffer(b, 0, data); err != nil {
		s.device.DestroyBuffer(b)
		return gpu.Buffer{}, err
	}
	return b, nil
}

// updateUI rewrites the overlay quad for the current surface extent.
func (s *scene) updateUI(extent gpu.Extent2D) error {
	quad := quadVertices(16, 16, 180, 24, extent, [4]float32{0.1, 0.1, 0.1, 0.6})
	if len(quad) == 0 {
		s.uiCount = 0
		return nil
	}
	data, err := binary.Append(nil, binary.LittleEndian, quad)
	if err != nil {
		return err
	}
	if err := s.device.WriteBuffer(s.ui, 0, data); err != nil {
		return err
	}
	s.uiCount = uint32(len(quad))
	return nil
}

func (s *scene) drawUI(r *passes.UIRecorder) error {
	r.DrawVertices(s.ui, s.uiCount)
	return nil
}

func (s *scene) destroy() error {
	var err error
	if s.material.IsValid() {
		err = s.allocator.Free(s.material)
	}
	for _, b := range []gpu.Buffer{s.cube.vertices, s.cube.indices, s.ground.vertices, s.ground.indices, s.ui} {
		if b.IsValid() {
			s.device.DestroyBuffer(b)
		}
	}
	if s.sampler.IsValid() {
		s.device.DestroySampler(s.sampler)
	}
	if s.albedo.IsValid() {
		s.device.DestroyImage(s.albedo)
	}
	return err
}

// placement positions a mesh at position, turned angle radians around +Y.
func placement(position mgl32.Vec3, angle float32) mgl32.Mat4 {
	return mgl32.Translate3D(position[0], position[1], position[2]).Mul4(mgl32.HomogRotate3DY(angle))
}
