package metadata

import (
	"github.com/go-gl/mathgl/mgl32"
)

// CascadeCount is the number of shadow cascades per directional light.
const CascadeCount = 4

type LightKind uint8

const (
	LightKindPoint LightKind = iota
	LightKindSpot
	LightKindDirectional
)

func (k LightKind) String() string {
	switch k {
	case LightKindPoint:
		return "point"
	case LightKindSpot:
		return "spot"
	case LightKindDirectional:
		return "directional"
	}
	return "unknown"
}

/** @brief Shadow casting parameters shared by every light type. */
type ShadowParams struct {
	CastShadows bool
	Softness    float32
	Samples     uint32
	/** @brief Atlas layer assigned by the shadow system, -1 when none. */
	Layer int32
}

// Light is implemented by *PointLight, *SpotLight and *DirectionalLight.
type Light interface {
	Kind() LightKind
	IsActive() bool
	Shadow() *ShadowParams
}

type PointLight struct {
	Position  mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	/** @brief Falloff radius, also the far plane of its shadow faces. */
	Radius float32
	Active bool
	ShadowParams
}

func (l *PointLight) Kind() LightKind { return LightKindPoint }
func (l *PointLight) IsActive() bool { return l.Active }
func (l *PointLight) Shadow() *ShadowParams { return &l.ShadowParams }

type SpotLight struct {
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Range     float32
	/** @brief Cone half angles in radians. */
	InnerCone float32
	OuterCone float32
	Active    bool
	ShadowParams
}

func (l *SpotLight) Kind() LightKind { return LightKindSpot }
func (l *SpotLight) IsActive() bool { return l.Active }
func (l *SpotLight) Shadow() *ShadowParams { return &l.ShadowParams }

// CascadeSlice covers [Near, Far] of the camera view distance.
type CascadeSlice struct {
	Near   float32
	Far    float32
	Radius float32
	// ViewProj maps world space into the cascade's light clip space.
	ViewProj mgl32.Mat4
}

type DirectionalLight struct {
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Active    bool
	ShadowParams
	/** @brief Written by the shadow system. */
	Cascades [CascadeCount]CascadeSlice
}

func (l *DirectionalLight) Kind() LightKind { return LightKindDirectional }
func (l *DirectionalLight) IsActive() bool { return l.Active }
func (l *DirectionalLight) Shadow() *ShadowParams { return &l.ShadowParams }
