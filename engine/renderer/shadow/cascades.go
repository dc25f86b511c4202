package shadow

import (
	"fmt"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/components"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

const CascadeCount = metadata.CascadeCount

// ComputeSplits returns count+1 distances partitioning [near, far]. Split i
// blends a uniform and a logarithmic distribution by weight:
//
//	split_i = near + w*(far*i/C) + (1-w)*(near*(far/near)^(i/C))
//
// clamped to [near, far], with split_0 = near and split_C = far exactly.
func ComputeSplits(near, far, weight float32, count int) ([]float32, error) {
	if count > CascadeCount {
		return nil, fmt.Errorf("%d cascades requested, at most %d: %w", count, CascadeCount, core.ErrTooManyCascades)
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: cascade count %d", core.ErrInvalidConfig, count)
	}
	if weight < 0 || weight > 1 || gomath.IsNaN(float64(weight)) {
		return nil, fmt.Errorf("%w: split weight %v outside [0,1]", core.ErrInvalidConfig, weight)
	}
	if near <= 0 || far <= near {
		return nil, fmt.Errorf("near %v far %v: %w", near, far, core.ErrInvalidShadowRange)
	}

	n, f, w := float64(near), float64(far), float64(weight)
	c := float64(count)
	splits := make([]float32, count+1)
	splits[0] = near
	for i := 1; i < count; i++ {
		p := float64(i) / c
		uniform := f * p
		log := n * gomath.Pow(f/n, p)
		splits[i] = math.Clamp(float32(n+w*uniform+(1-w)*log), near, far)
	}
	splits[count] = far

	for i := 1; i <= count; i++ {
		if splits[i] <= splits[i-1] {
			return nil, fmt.Errorf("splits %v are not strictly increasing for near %v far %v: %w", splits, near, far, core.ErrInvalidShadowRange)
		}
	}
	return splits, nil
}

// RecalculateCascades fits one orthographic light projection around each
// slice of the camera frustum between the camera near plane and the shadow
// far plane.
func RecalculateCascades(cam *components.Camera, light *metadata.DirectionalLight, s Settings) ([CascadeCount]metadata.CascadeSlice, error) {
	var slices [CascadeCount]metadata.CascadeSlice

	dir := light.Direction
	if dir.Len() == 0 {
		return slices, fmt.Errorf("%w: directional light without direction", core.ErrInvalidConfig)
	}
	dir = dir.Normalize()

	near := cam.Near()
	splits, err := ComputeSplits(near, s.FarPlane, s.SplitWeight, CascadeCount)
	if err != nil {
		return slices, err
	}

	proj := mgl32.Perspective(cam.FovY(), cam.Aspect(), near, s.FarPlane)
	corners := math.FrustumCorners(proj.Mul4(cam.GetView()).Inv())
	depth := s.FarPlane - near
	up := math.StableUp(dir)

	for i := 0; i < CascadeCount; i++ {
		slice := math.SliceCorners(corners, (splits[i]-near)/depth, (splits[i+1]-near)/depth)
		sphere := math.BoundingSphere(slice)
		// a quantized radius keeps the projection size stable under rotation
		radius := float32(gomath.Ceil(float64(sphere.Radius)*16) / 16)

		center := snapCenter(sphere.Center, dir, up, radius, s.DirectionalResolution)
		eye := center.Sub(dir.Mul(radius * 2))
		view := mgl32.LookAtV(eye, center, up)
		ortho := mgl32.Ortho(-radius, radius, -radius, radius, 0, radius*4)

		slices[i] = metadata.CascadeSlice{
			Near:     splits[i],
			Far:      splits[i+1],
			Radius:   radius,
			ViewProj: ortho.Mul4(view),
		}
	}
	return slices, nil
}

// snapCenter moves center in light space to a whole number of shadow texels
// so the cascade does not shimmer as the camera moves.
func snapCenter(center, dir, up mgl32.Vec3, radius float32, resolution uint32) mgl32.Vec3 {
	if resolution == 0 {
		return center
	}
	texel := radius * 2 / float32(resolution)
	lightView := mgl32.LookAtV(mgl32.Vec3{}, dir, up)
	ls := lightView.Mul4x1(center.Vec4(1)).Vec3()
	ls[0] = math.SnapTo(ls[0], texel)
	ls[1] = math.SnapTo(ls[1], texel)
	return lightView.Inv().Mul4x1(ls.Vec4(1)).Vec3()
}

var faceDirections = [6]struct{ dir, up mgl32.Vec3 }{
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}},
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, -1}},
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, -1, 0}},
}

const shadowNear float32 = 0.05

// PointFaceMatrices returns the six 90 degree view-projections of a cube
// shadow map, in +X -X +Y -Y +Z -Z order.
func PointFaceMatrices(l *metadata.PointLight) [6]mgl32.Mat4 {
	var out [6]mgl32.Mat4
	far := math.Max(l.Radius, shadowNear*2)
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1, shadowNear, far)
	for i, f := range faceDirections {
		view := mgl32.LookAtV(l.Position, l.Position.Add(f.dir), f.up)
		out[i] = proj.Mul4(view)
	}
	return out
}

// SpotMatrix returns the perspective view-projection covering the outer cone.
func SpotMatrix(l *metadata.SpotLight) mgl32.Mat4 {
	dir := l.Direction
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, -1, 0}
	}
	dir = dir.Normalize()
	fov := math.Clamp(l.OuterCone*2, mgl32.DegToRad(1), mgl32.DegToRad(170))
	far := math.Max(l.Range, shadowNear*2)
	proj := mgl32.Perspective(fov, 1, shadowNear, far)
	view := mgl32.LookAtV(l.Position, l.Position.Add(dir), math.StableUp(dir))
	return proj.Mul4(view)
}
