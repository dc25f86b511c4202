package buffers

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
)

// Fixed capacities of the lights block.
const (
	MaxPointLights       = 64
	MaxSpotLights        = 32
	MaxDirectionalLights = 4
)

// Block layout, every field 16-byte aligned:
//
//	header       vec4 ambient, uvec4 counts (point, spot, directional, 0)
//	point[64]    vec4 position+radius, vec4 color+intensity, vec4 shadow
//	spot[32]     vec4 position+range, vec4 direction+cos(outer), vec4 color+intensity,
//	             vec4 shadow, vec4 cos(inner), mat4 view_proj
//	dir[4]       vec4 direction, vec4 color+intensity, vec4 shadow,
//	             vec4 cascade splits, mat4 cascade_view_proj[4]
//
// shadow is (cast, softness, samples, layer) with layer -1 when unassigned.
const (
	lightsHeaderSize     = 32
	pointLightSize       = 3 * 16
	spotLightSize        = 5*16 + 64
	directionalLightSize = 4*16 + metadata.CascadeCount*64

	LightsBlockSize = lightsHeaderSize +
		MaxPointLights*pointLightSize +
		MaxSpotLights*spotLightSize +
		MaxDirectionalLights*directionalLightSize
)

type LightsBuffer struct {
	slots *slotBuffers
}

func NewLightsBuffer(device gpu.Device, frames int) (*LightsBuffer, error) {
	slots, err := newSlotBuffers(device, "lights", frames, LightsBlockSize,
		gputypes.BufferUsageStorage|gputypes.BufferUsageMapWrite)
	if err != nil {
		return nil, err
	}
	return &LightsBuffer{slots: slots}, nil
}

// EncodeLights returns the lights block. Inactive lights keep their slot
// with zero color and intensity.
func EncodeLights(ambient mgl32.Vec3, lights []metadata.Light) ([]byte, error) {
	var points []*metadata.PointLight
	var spots []*metadata.SpotLight
	var dirs []*metadata.DirectionalLight
	for _, l := range lights {
		switch light := l.(type) {
		case *metadata.PointLight:
			points = append(points, light)
		case *metadata.SpotLight:
			spots = append(spots, light)
		case *metadata.DirectionalLight:
			dirs = append(dirs, light)
		}
	}
	if len(points) > MaxPointLights || len(spots) > MaxSpotLights || len(dirs) > MaxDirectionalLights {
		return nil, fmt.Errorf("%d point, %d spot, %d directional lights exceed %d/%d/%d: %w",
			len(points), len(spots), len(dirs),
			MaxPointLights, MaxSpotLights, MaxDirectionalLights, core.ErrTooManyLights)
	}

	e := newEncoder(LightsBlockSize)
	e.vec3(ambient, 0)
	e.u32(uint32(len(points)))
	e.u32(uint32(len(spots)))
	e.u32(uint32(len(dirs)))
	e.u32(0)

	for _, l := range points {
		e.vec3(l.Position, l.Radius)
		color, intensity := lightColor(l.Active, l.Color, l.Intensity)
		e.vec3(color, intensity)
		encodeShadow(e, &l.ShadowParams)
	}
	e.zero((MaxPointLights - len(points)) * pointLightSize)

	for _, l := range spots {
		dir := l.Direction
		if dir.Len() > 0 {
			dir = dir.Normalize()
		}
		e.vec3(l.Position, l.Range)
		e.vec3(dir, float32(math.Cos(float64(l.OuterCone))))
		color, intensity := lightColor(l.Active, l.Color, l.Intensity)
		e.vec3(color, intensity)
		encodeShadow(e, &l.ShadowParams)
		e.vec4(mgl32.Vec4{float32(math.Cos(float64(l.InnerCone))), 0, 0, 0})
		e.mat4(shadow.SpotMatrix(l))
	}
	e.zero((MaxSpotLights - len(spots)) * spotLightSize)

	for _, l := range dirs {
		dir := l.Direction
		if dir.Len() > 0 {
			dir = dir.Normalize()
		}
		e.vec3(dir, 0)
		color, intensity := lightColor(l.Active, l.Color, l.Intensity)
		e.vec3(color, intensity)
		encodeShadow(e, &l.ShadowParams)
		var splits mgl32.Vec4
		for i, c := range l.Cascades {
			splits[i] = c.Far
		}
		e.vec4(splits)
		for _, c := range l.Cascades {
			e.mat4(c.ViewProj)
		}
	}
	e.zero((MaxDirectionalLights - len(dirs)) * directionalLightSize)

	return e.bytes(), nil
}

func lightColor(active bool, color mgl32.Vec3, intensity float32) (mgl32.Vec3, float32) {
	if !active {
		return mgl32.Vec3{}, 0
	}
	return color, intensity
}

func encodeShadow(e *encoder, p *metadata.ShadowParams) {
	var cast uint32
	if p.CastShadows {
		cast = 1
	}
	e.u32(cast)
	e.f32(p.Softness)
	e.u32(p.Samples)
	e.u32(uint32(p.Layer))
}

// Update encodes and uploads the lights block for frame. Nothing is written
// when the light counts exceed capacity.
func (b *LightsBuffer) Update(frame int, ambient mgl32.Vec3, lights []metadata.Light) (bool, error) {
	data, err := EncodeLights(ambient, lights)
	if err != nil {
		return false, err
	}
	return b.Upload(frame, data)
}

// Upload writes a block returned by EncodeLights into the frame's buffer.
func (b *LightsBuffer) Upload(frame int, block []byte) (bool, error) {
	return b.slots.upload(frame, block)
}

func (b *LightsBuffer) Buffer(frame int) gpu.Buffer { return b.slots.buffer(frame) }

func (b *LightsBuffer) Uploads() uint64 { return b.slots.uploads }

func (b *LightsBuffer) Destroy() { b.slots.destroy() }
