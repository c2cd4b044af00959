package scene

import (
	"shadowstage/internal/graphics/device"

	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a local translation, rotation (Euler angles in degrees,
// applied X then Y then Z) and scale. A zero Scale is treated as unit scale.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Scale: mgl32.Vec3{1, 1, 1}}
}

// Matrix returns T * Rx * Ry * Rz * S.
func (t Transform) Matrix() mgl32.Mat4 {
	m := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	if t.Rotation.X() != 0 {
		m = m.Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(t.Rotation.X())))
	}
	if t.Rotation.Y() != 0 {
		m = m.Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(t.Rotation.Y())))
	}
	if t.Rotation.Z() != 0 {
		m = m.Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(t.Rotation.Z())))
	}
	if t.Scale != (mgl32.Vec3{}) && t.Scale != (mgl32.Vec3{1, 1, 1}) {
		m = m.Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
	}
	return m
}

// Toggle is a per-node request for a global device flag.
type Toggle uint8

const (
	// Inherit leaves the flag as the ancestors set it.
	Inherit Toggle = iota
	On
	Off
)

// RenderState is the per-entity transform and flag set. Concrete nodes embed
// it in their own state struct to carry type-specific fields.
type RenderState struct {
	Transform  Transform
	AlphaTest  Toggle
	Blend      Toggle
	ClearFlags device.ClearMask
}

// NewRenderState returns a state with the identity transform.
func NewRenderState() RenderState {
	return RenderState{Transform: Identity()}
}
