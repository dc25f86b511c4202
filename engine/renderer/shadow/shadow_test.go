package shadow

import (
	"errors"
	"io"
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/components"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

func init() {
	core.LogSetOutput(io.Discard)
}

func defaultSettings() Settings {
	return Settings{
		SplitWeight:           0.87,
		FarPlane:              140,
		DirectionalResolution: 2048,
		PointResolution:       512,
		SpotResolution:        512,
		DepthBits:             32,
	}
}

func TestComputeSplitsReferenceScene(t *testing.T) {
	splits, err := ComputeSplits(0.01, 140, 0.87, CascadeCount)
	if err != nil {
		t.Fatal(err)
	}
	if len(splits) != CascadeCount+1 {
		t.Fatalf("len(splits) = %d", len(splits))
	}
	if splits[0] != 0.01 || splits[CascadeCount] != 140 {
		t.Errorf("endpoints = %v, %v", splits[0], splits[CascadeCount])
	}
	for i := 1; i < len(splits); i++ {
		if splits[i] <= splits[i-1] {
			t.Errorf("splits not increasing: %v", splits)
		}
	}
	// near + w*far/4 + (1-w)*near*(far/near)^0.25
	want := 0.01 + 0.87*35 + 0.13*0.01*gomath.Pow(14000, 0.25)
	if gomath.Abs(float64(splits[1])-want) > 1e-3 {
		t.Errorf("split_1 = %v, want %v", splits[1], want)
	}
}

func TestComputeSplitsAnyWeight(t *testing.T) {
	ranges := [][2]float32{{0.01, 140}, {0.1, 1000}, {0.5, 50}, {1, 10}}
	for _, r := range ranges {
		for w := float32(0); w <= 1.0001; w += 0.05 {
			weight := mgl32.Clamp(w, 0, 1)
			splits, err := ComputeSplits(r[0], r[1], weight, CascadeCount)
			if err != nil {
				t.Fatalf("near %v far %v w %v: %v", r[0], r[1], weight, err)
			}
			if splits[0] != r[0] || splits[CascadeCount] != r[1] {
				t.Errorf("endpoints %v for range %v", splits, r)
			}
			for i := 1; i < len(splits); i++ {
				if splits[i] <= splits[i-1] {
					t.Errorf("w=%v range %v: splits %v not strictly increasing", weight, r, splits)
				}
			}
		}
	}
}

func TestComputeSplitsErrors(t *testing.T) {
	tests := []struct {
		name      string
		near, far float32
		w         float32
		count     int
		want      error
	}{
		{"far equals near", 1, 1, 0.5, 4, core.ErrInvalidShadowRange},
		{"far below near", 10, 1, 0.5, 4, core.ErrInvalidShadowRange},
		{"collapsed by clamping", 1, 1.5, 0, 4, core.ErrInvalidShadowRange},
		{"too many cascades", 0.1, 100, 0.5, CascadeCount + 1, core.ErrTooManyCascades},
		{"weight above one", 0.1, 100, 1.2, 4, core.ErrInvalidConfig},
		{"negative weight", 0.1, 100, -0.1, 4, core.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ComputeSplits(tt.near, tt.far, tt.w, tt.count); !errors.Is(err, tt.want) {
				t.Errorf("ComputeSplits() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecalculateCascades(t *testing.T) {
	cam := components.NewCamera()
	cam.SetPerspective(mgl32.DegToRad(60), 16.0/9.0, 0.01, 500)
	cam.SetPosition(mgl32.Vec3{0, 5, 10})
	light := &metadata.DirectionalLight{Direction: mgl32.Vec3{-0.3, -1, -0.2}, Active: true}

	cascades, err := RecalculateCascades(cam, light, defaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if cascades[0].Near != 0.01 || cascades[CascadeCount-1].Far != 140 {
		t.Errorf("cascade range = [%v, %v]", cascades[0].Near, cascades[CascadeCount-1].Far)
	}
	for i, c := range cascades {
		if c.Far <= c.Near {
			t.Errorf("cascade %d is empty: %+v", i, c)
		}
		if i > 0 && c.Near != cascades[i-1].Far {
			t.Errorf("cascade %d does not continue the previous one", i)
		}
		if i > 0 && c.Radius < cascades[i-1].Radius {
			t.Errorf("cascade %d radius %v shrinks", i, c.Radius)
		}
	}

	// a point in the first slice lands inside the first cascade's clip volume
	p := cam.GetPosition().Add(cam.Forward().Mul(0.5 * (cascades[0].Near + cascades[0].Far)))
	clip := cascades[0].ViewProj.Mul4x1(p.Vec4(1))
	for i := 0; i < 3; i++ {
		if clip[i] < -1.001 || clip[i] > 1.001 {
			t.Errorf("point %v outside cascade 0: clip %v", p, clip)
		}
	}

	cam.SetPerspective(cam.FovY(), cam.Aspect(), 200, 500)
	if _, err := RecalculateCascades(cam, light, defaultSettings()); !errors.Is(err, core.ErrInvalidShadowRange) {
		t.Errorf("far below near = %v", err)
	}
}

func TestSnapCenterIsTexelAligned(t *testing.T) {
	dir := mgl32.Vec3{-0.3, -1, -0.2}.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	radius := float32(16)
	res := uint32(1024)
	texel := radius * 2 / float32(res)

	snapped := snapCenter(mgl32.Vec3{3.3711, 1.177, -7.019}, dir, up, radius, res)
	ls := mgl32.LookAtV(mgl32.Vec3{}, dir, up).Mul4x1(snapped.Vec4(1))
	for i := 0; i < 2; i++ {
		q := ls[i] / texel
		if gomath.Abs(float64(q)-gomath.Round(float64(q))) > 1e-2 {
			t.Errorf("axis %d at %v texels", i, q)
		}
	}
}

func TestSystemRecomputesOnlyOnChange(t *testing.T) {
	d := gputest.NewDevice()
	sys, err := NewSystem(d, defaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	cam := components.NewCamera()
	sun := &metadata.DirectionalLight{Direction: mgl32.Vec3{0, -1, -0.5}, Active: true, ShadowParams: metadata.ShadowParams{CastShadows: true}}
	lights := []metadata.Light{sun}

	for i := 0; i < 5; i++ {
		if err := sys.Update(cam, lights); err != nil {
			t.Fatal(err)
		}
	}
	if sys.Recomputations() != 1 {
		t.Fatalf("recomputations after idle frames = %d", sys.Recomputations())
	}
	if sun.Layer != 0 || len(sys.Views()) != CascadeCount {
		t.Errorf("layer = %d views = %d", sun.Layer, len(sys.Views()))
	}

	cam.MoveForward(1)
	_ = sys.Update(cam, lights)
	sun.Direction = mgl32.Vec3{0.2, -1, 0}
	_ = sys.Update(cam, lights)
	s := sys.Settings()
	s.SplitWeight = 0.5
	if err := sys.SetSettings(s); err != nil {
		t.Fatal(err)
	}
	_ = sys.Update(cam, lights)
	if sys.Recomputations() != 4 {
		t.Errorf("recomputations = %d, want 4", sys.Recomputations())
	}
}

func TestSystemAtlases(t *testing.T) {
	d := gputest.NewDevice()
	sys, _ := NewSystem(d, defaultSettings())

	desc, _ := d.ImageDesc(sys.Directional().Image(AtlasTarget))
	if desc.Layers != MaxDirectionalShadows*CascadeCount || desc.Format != gputypes.TextureFormatDepth32Float {
		t.Errorf("directional atlas = %+v", desc)
	}
	desc, _ = d.ImageDesc(sys.Point().Image(AtlasTarget))
	if desc.Layers != MaxPointShadows*6 || desc.Extent.Width != 512 {
		t.Errorf("point atlas = %+v", desc)
	}

	old := sys.Spot().Image(AtlasTarget)
	s := sys.Settings()
	s.DepthBits = 16
	s.SpotResolution = 256
	if err := sys.SetSettings(s); err != nil {
		t.Fatal(err)
	}
	if d.IsLive(old.Handle) {
		t.Error("old spot atlas still live")
	}
	desc, _ = d.ImageDesc(sys.Spot().Image(AtlasTarget))
	if desc.Format != gputypes.TextureFormatDepth16Unorm || desc.Extent.Width != 256 {
		t.Errorf("spot atlas after change = %+v", desc)
	}

	s.DepthBits = 8
	if err := sys.SetSettings(s); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("SetSettings(8 bits) = %v", err)
	}

	sys.Destroy()
	if d.LiveTotal() != 0 {
		t.Errorf("leaked %d resources", d.LiveTotal())
	}
}

func TestSystemTooManyCasters(t *testing.T) {
	d := gputest.NewDevice()
	sys, _ := NewSystem(d, defaultSettings())
	cam := components.NewCamera()

	var lights []metadata.Light
	for i := 0; i < MaxSpotShadows+1; i++ {
		lights = append(lights, &metadata.SpotLight{
			Direction: mgl32.Vec3{0, -1, 0}, Range: 10, OuterCone: 0.5, Active: true,
			ShadowParams: metadata.ShadowParams{CastShadows: true},
		})
	}
	if err := sys.Update(cam, lights); !errors.Is(err, core.ErrTooManyLights) {
		t.Errorf("Update() = %v", err)
	}

	inactive := &metadata.PointLight{Radius: 5, ShadowParams: metadata.ShadowParams{CastShadows: true}}
	if err := sys.Update(cam, []metadata.Light{inactive}); err != nil || inactive.Layer != -1 || len(sys.Views()) != 0 {
		t.Errorf("inactive caster: err=%v layer=%d views=%d", err, inactive.Layer, len(sys.Views()))
	}
}

func TestPointFaceMatrices(t *testing.T) {
	l := &metadata.PointLight{Position: mgl32.Vec3{1, 2, 3}, Radius: 10}
	faces := PointFaceMatrices(l)
	// a point one unit along +X is centered in the first face
	clip := faces[0].Mul4x1(mgl32.Vec4{2, 2, 3, 1})
	ndc := clip.Vec3().Mul(1 / clip.W())
	if gomath.Abs(float64(ndc.X())) > 1e-4 || gomath.Abs(float64(ndc.Y())) > 1e-4 {
		t.Errorf("+X face center ndc = %v", ndc)
	}
	if faces[0] == faces[1] {
		t.Error("faces share a matrix")
	}
}

func TestSystemRecomputesOnProjectionChange(t *testing.T) {
	d := gputest.NewDevice()
	sys, err := NewSystem(d, defaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	cam := components.NewCamera()
	sun := &metadata.DirectionalLight{Direction: mgl32.Vec3{0, -1, -0.5}, Active: true, ShadowParams: metadata.ShadowParams{CastShadows: true}}
	lights := []metadata.Light{sun}

	if err := sys.Update(cam, lights); err != nil {
		t.Fatal(err)
	}
	first := sun.Cascades[0]

	cam.SetPerspective(cam.FovY(), cam.Aspect(), 1, cam.Far())
	if err := sys.Update(cam, lights); err != nil {
		t.Fatal(err)
	}
	if sys.Recomputations() != 2 {
		t.Errorf("recomputations after near change = %d, want 2", sys.Recomputations())
	}
	if sun.Cascades[0].Near != 1 || sun.Cascades[0] == first {
		t.Errorf("first cascade after near change = %+v", sun.Cascades[0])
	}
}

func TestSetSettingsKeepsAtlasesOnFailure(t *testing.T) {
	d := gputest.NewDevice()
	sys, err := NewSystem(d, defaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	before := sys.Atlases()
	live := d.LiveTotal()

	s := sys.Settings()
	s.PointResolution = 1024
	d.FailNext("CreateImage", core.ErrOutOfMemory)
	if err := sys.SetSettings(s); !errors.Is(err, core.ErrOutOfMemory) {
		t.Fatalf("SetSettings() = %v", err)
	}
	if sys.Settings() != defaultSettings() {
		t.Errorf("settings after failed rebuild = %+v", sys.Settings())
	}
	for i, set := range sys.Atlases() {
		if set == nil || set != before[i] || !d.IsLive(set.Image(AtlasTarget).Handle) {
			t.Errorf("atlas %d replaced or released after failed rebuild", i)
		}
	}
	if d.LiveTotal() != live {
		t.Errorf("live resources = %d, want %d", d.LiveTotal(), live)
	}

	cam := components.NewCamera()
	spot := &metadata.SpotLight{Direction: mgl32.Vec3{0, -1, 0}, Range: 10, OuterCone: 0.5, Active: true,
		ShadowParams: metadata.ShadowParams{CastShadows: true}}
	if err := sys.Update(cam, []metadata.Light{spot}); err != nil {
		t.Fatal(err)
	}
	if views := sys.Views(); len(views) != 1 || views[0].Atlas == nil {
		t.Errorf("views after failed rebuild = %+v", views)
	}
}
