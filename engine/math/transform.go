package math

func TransformCreate() Transform {
	return TransformFromPositionRotationScale(NewVec3Zero(), NewQuatIdentity(), NewVec3One())
}

func TransformFromPosition(position Vec3) Transform {
	return TransformFromPositionRotationScale(position, NewQuatIdentity(), NewVec3One())
}

func TransformFromRotation(rotation Quaternion) Transform {
	return TransformFromPositionRotationScale(NewVec3Zero(), rotation, NewVec3One())
}

func TransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) Transform {
	return Transform{
		Position: position,
		Rotation: rotation,
		Scale:    scale,
	}
}

// Compare reports whether both transforms describe the same placement.
// Rotations are compared as orientations, so q and -q are equal.
func (t Transform) Compare(other Transform, tolerance float32) bool {
	return t.Position.Compare(other.Position, tolerance) &&
		t.Rotation.Equivalent(other.Rotation, tolerance) &&
		t.Scale.Compare(other.Scale, tolerance)
}
