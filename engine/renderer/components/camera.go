package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/umbra/engine/math"
)

// Camera is a perspective camera driven by a position and euler rotation
// (pitch, yaw, roll). View and projection are rebuilt lazily.
type Camera struct {
	// Do not set directly, use SetPosition so the view is rebuilt.
	Position mgl32.Vec3
	// Do not set directly, use SetEulerRotation so the view is rebuilt.
	EulerRotation mgl32.Vec3

	// Projection parameters. Set through SetPerspective, SetAspect or SetFar
	// so the generation follows them.
	fovY   float32
	aspect float32
	near   float32
	far    float32

	IsDirty    bool
	ViewMatrix mgl32.Mat4
	projection mgl32.Mat4
	projDirty  bool

	// generation increases whenever view or projection change. Consumers
	// compare it against a cached value to skip recomputation.
	generation uint64
}

const DEFAULT_CAMERA_NAME string = "default"

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.fovY = mgl32.DegToRad(45)
	c.aspect = 16.0 / 9.0
	c.near = 0.01
	c.far = 140
	c.IsDirty = false
	c.projDirty = true
	c.ViewMatrix = mgl32.Ident4()
	c.generation++
}

func (c *Camera) GetPosition() mgl32.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.touch()
}

func (c *Camera) GetEulerRotation() mgl32.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.touch()
}

// SetPerspective updates the projection parameters.
func (c *Camera) SetPerspective(fovY, aspect, near, far float32) {
	c.fovY, c.aspect, c.near, c.far = fovY, aspect, near, far
	c.projDirty = true
	c.generation++
}

// SetAspect is called on resize.
func (c *Camera) SetAspect(aspect float32) {
	if aspect == c.aspect {
		return
	}
	c.aspect = aspect
	c.projDirty = true
	c.generation++
}

// SetFar changes the far plane, used as the shadow far distance.
func (c *Camera) SetFar(far float32) {
	if far == c.far {
		return
	}
	c.far = far
	c.projDirty = true
	c.generation++
}

func (c *Camera) FovY() float32 { return c.fovY }

func (c *Camera) Aspect() float32 { return c.aspect }

func (c *Camera) Near() float32 { return c.near }

func (c *Camera) Far() float32 { return c.far }

func (c *Camera) Generation() uint64 {
	return c.generation
}

func (c *Camera) GetView() mgl32.Mat4 {
	if c.IsDirty {
		rotation := mgl32.HomogRotate3DX(c.EulerRotation.X()).
			Mul4(mgl32.HomogRotate3DY(c.EulerRotation.Y())).
			Mul4(mgl32.HomogRotate3DZ(c.EulerRotation.Z()))
		translation := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())

		c.ViewMatrix = translation.Mul4(rotation).Inv()
		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) GetProjection() mgl32.Mat4 {
	if c.projDirty {
		c.projection = mgl32.Perspective(c.fovY, c.aspect, c.near, c.far)
		c.projDirty = false
	}
	return c.projection
}

// Forward is -Z of the camera in world space.
func (c *Camera) Forward() mgl32.Vec3 {
	inv := c.GetView().Inv()
	return inv.Col(2).Vec3().Mul(-1).Normalize()
}

func (c *Camera) Backward() mgl32.Vec3 {
	return c.Forward().Mul(-1)
}

func (c *Camera) Left() mgl32.Vec3 {
	return c.Right().Mul(-1)
}

func (c *Camera) Right() mgl32.Vec3 {
	inv := c.GetView().Inv()
	return inv.Col(0).Vec3().Normalize()
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward(), amount)
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Backward(), amount)
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Left(), amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right(), amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.move(mgl32.Vec3{0, 1, 0}, amount)
}

func (c *Camera) MoveDown(amount float32) {
	c.move(mgl32.Vec3{0, -1, 0}, amount)
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.touch()
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount

	// Clamp to avoid Gimbal lock.
	limit := float32(1.55334306) // 89 degrees
	c.EulerRotation[0] = math.Clamp(c.EulerRotation[0], -limit, limit)

	c.touch()
}

func (c *Camera) move(direction mgl32.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.Mul(amount))
	c.touch()
}

func (c *Camera) touch() {
	c.IsDirty = true
	c.generation++
}
