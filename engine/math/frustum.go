package math

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Sphere is a world space bounding sphere.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// FrustumCorners returns the eight world space corners of the clip volume
// described by the inverse view-projection matrix. mgl32 projections map depth
// to -1..1. The first four corners lie on the near plane.
func FrustumCorners(invViewProj mgl32.Mat4) [8]mgl32.Vec3 {
	ndc := [8]mgl32.Vec4{
		{-1, -1, -1, 1}, {1, -1, -1, 1}, {1, 1, -1, 1}, {-1, 1, -1, 1},
		{-1, -1, 1, 1}, {1, -1, 1, 1}, {1, 1, 1, 1}, {-1, 1, 1, 1},
	}
	var corners [8]mgl32.Vec3
	for i, p := range ndc {
		w := invViewProj.Mul4x1(p)
		corners[i] = w.Vec3().Mul(1 / w.W())
	}
	return corners
}

// SliceCorners interpolates the corners of a frustum sub-range. near and far
// are fractions of the full near-to-far distance.
func SliceCorners(corners [8]mgl32.Vec3, near, far float32) [8]mgl32.Vec3 {
	var out [8]mgl32.Vec3
	for i := 0; i < 4; i++ {
		ray := corners[i+4].Sub(corners[i])
		out[i] = corners[i].Add(ray.Mul(near))
		out[i+4] = corners[i].Add(ray.Mul(far))
	}
	return out
}

// BoundingSphere returns the sphere centered on the corner centroid that
// contains every corner.
func BoundingSphere(points [8]mgl32.Vec3) Sphere {
	var center mgl32.Vec3
	for _, p := range points {
		center = center.Add(p)
	}
	center = center.Mul(1.0 / float32(len(points)))

	var radius float32
	for _, p := range points {
		if d := p.Sub(center).Len(); d > radius {
			radius = d
		}
	}
	return Sphere{Center: center, Radius: radius}
}

// StableUp picks an up vector that is not parallel to dir.
func StableUp(dir mgl32.Vec3) mgl32.Vec3 {
	up := mgl32.Vec3{0, 1, 0}
	if Abs(dir.Normalize().Dot(up)) > 0.99 {
		return mgl32.Vec3{0, 0, 1}
	}
	return up
}
