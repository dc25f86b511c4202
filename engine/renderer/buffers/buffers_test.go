package buffers

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/components"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

func init() {
	core.LogSetOutput(io.Discard)
}

func readF32(data []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

func readU32(data []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(data[offset:])
}

func TestCameraBlock(t *testing.T) {
	cam := components.NewCamera()
	cam.SetPosition(mgl32.Vec3{1, 2, 3})
	data := EncodeCamera(cam)
	if len(data) != CameraBlockSize {
		t.Fatalf("len = %d", len(data))
	}

	proj := cam.GetProjection()
	viewProj := proj.Mul4(cam.GetView())
	for i := 0; i < 16; i++ {
		if got := readF32(data, 128+i*4); got != viewProj[i] {
			t.Fatalf("view_proj[%d] = %v, want %v", i, got, viewProj[i])
		}
	}
	// inverse view-projection undoes view-projection
	var inv mgl32.Mat4
	for i := range inv {
		inv[i] = readF32(data, 192+i*4)
	}
	if !inv.Mul4(viewProj).ApproxEqualThreshold(mgl32.Ident4(), 1e-2) {
		t.Error("inverse view-projection is not an inverse")
	}
	if readF32(data, 256) != 1 || readF32(data, 264) != 3 || readF32(data, 268) != 1 {
		t.Errorf("position = %v", data[256:272])
	}
	if readF32(data, 272) != cam.Near() || readF32(data, 276) != cam.Far() {
		t.Errorf("near/far = %v/%v", readF32(data, 272), readF32(data, 276))
	}
}

func TestCameraBufferSkipsUnchangedSlots(t *testing.T) {
	d := gputest.NewDevice()
	b, err := NewCameraMatrixBuffer(d, 2)
	if err != nil {
		t.Fatal(err)
	}
	cam := components.NewCamera()

	steps := []struct {
		frame int
		move  bool
		want  bool
	}{
		{0, false, true},
		{1, false, true}, // each slot keeps its own copy
		{0, false, false},
		{1, false, false},
		{0, true, true},
		{1, false, true},
	}
	for i, s := range steps {
		if s.move {
			cam.MoveForward(1)
		}
		wrote, err := b.Update(s.frame, cam)
		if err != nil {
			t.Fatal(err)
		}
		if wrote != s.want {
			t.Errorf("step %d: wrote = %v, want %v", i, wrote, s.want)
		}
	}
	if b.Uploads() != 4 || d.BufferWrites[b.Buffer(0)] != 2 {
		t.Errorf("uploads = %d, slot 0 writes = %d", b.Uploads(), d.BufferWrites[b.Buffer(0)])
	}

	if _, err := b.Update(2, cam); err == nil {
		t.Error("Update(frame 2) succeeded on two slots")
	}

	b.Destroy()
	if d.LiveTotal() != 0 {
		t.Errorf("leaked %d resources", d.LiveTotal())
	}
}

func TestLightsBlockLayout(t *testing.T) {
	lamp := &metadata.PointLight{Position: mgl32.Vec3{1, 2, 3}, Color: mgl32.Vec3{1, 0.5, 0.25}, Intensity: 4, Radius: 10, Active: true}
	off := &metadata.PointLight{Color: mgl32.Vec3{1, 1, 1}, Intensity: 2, Radius: 3}
	sun := &metadata.DirectionalLight{Direction: mgl32.Vec3{0, -2, 0}, Color: mgl32.Vec3{1, 1, 1}, Intensity: 1, Active: true,
		ShadowParams: metadata.ShadowParams{CastShadows: true, Layer: 0}}
	for i := range sun.Cascades {
		sun.Cascades[i].Far = float32(i+1) * 10
	}
	torch := &metadata.SpotLight{Direction: mgl32.Vec3{0, 0, -1}, Color: mgl32.Vec3{0, 1, 0}, Intensity: 3, Range: 8,
		OuterCone: 0.5, InnerCone: 0.25, ShadowParams: metadata.ShadowParams{Layer: -1}}

	data, err := EncodeLights(mgl32.Vec3{0.1, 0.1, 0.1}, []metadata.Light{lamp, sun, off, torch})
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != LightsBlockSize {
		t.Fatalf("len = %d, want %d", len(data), LightsBlockSize)
	}
	if readU32(data, 16) != 2 || readU32(data, 20) != 1 || readU32(data, 24) != 1 {
		t.Errorf("counts = %d %d %d", readU32(data, 16), readU32(data, 20), readU32(data, 24))
	}

	point := lightsHeaderSize
	if readF32(data, point+12) != 10 || readF32(data, point+16) != 1 || readF32(data, point+28) != 4 {
		t.Errorf("active point light encoded wrong")
	}
	second := point + pointLightSize
	for i := 0; i < 4; i++ {
		if readF32(data, second+16+i*4) != 0 {
			t.Errorf("inactive point light color[%d] = %v", i, readF32(data, second+16+i*4))
		}
	}
	if readF32(data, second+12) != 3 {
		t.Error("inactive point light lost its radius")
	}

	spot := lightsHeaderSize + MaxPointLights*pointLightSize
	if readF32(data, spot+32) != 0 || readF32(data, spot+36) != 0 {
		t.Error("inactive spot light keeps its color")
	}
	if int32(readU32(data, spot+60)) != -1 {
		t.Errorf("spot shadow layer = %d", int32(readU32(data, spot+60)))
	}

	dir := spot + MaxSpotLights*spotLightSize
	if readF32(data, dir+4) != -1 {
		t.Errorf("directional direction not normalized: %v", readF32(data, dir+4))
	}
	if readU32(data, dir+32) != 1 || readF32(data, dir+48) != 10 || readF32(data, dir+60) != 40 {
		t.Error("directional shadow data encoded wrong")
	}
}

func TestLightsBufferLimits(t *testing.T) {
	d := gputest.NewDevice()
	b, err := NewLightsBuffer(d, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	tests := []struct {
		name   string
		lights func() []metadata.Light
	}{
		{"point", func() []metadata.Light {
			out := make([]metadata.Light, MaxPointLights+1)
			for i := range out {
				out[i] = &metadata.PointLight{Active: true}
			}
			return out
		}},
		{"spot", func() []metadata.Light {
			out := make([]metadata.Light, MaxSpotLights+1)
			for i := range out {
				out[i] = &metadata.SpotLight{Active: true}
			}
			return out
		}},
		{"directional", func() []metadata.Light {
			out := make([]metadata.Light, MaxDirectionalLights+1)
			for i := range out {
				out[i] = &metadata.DirectionalLight{Active: true}
			}
			return out
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Update(0, mgl32.Vec3{}, tt.lights()); !errors.Is(err, core.ErrTooManyLights) {
				t.Errorf("Update() = %v", err)
			}
		})
	}
	if b.Uploads() != 0 {
		t.Errorf("rejected lights were uploaded %d times", b.Uploads())
	}

	lights := []metadata.Light{&metadata.PointLight{Active: true, Color: mgl32.Vec3{1, 1, 1}}}
	if wrote, _ := b.Update(0, mgl32.Vec3{}, lights); !wrote {
		t.Error("first upload skipped")
	}
	if wrote, _ := b.Update(0, mgl32.Vec3{}, lights); wrote {
		t.Error("unchanged lights uploaded again")
	}
	lights[0].(*metadata.PointLight).Active = false
	if wrote, _ := b.Update(0, mgl32.Vec3{}, lights); !wrote {
		t.Error("deactivation not uploaded")
	}
}
