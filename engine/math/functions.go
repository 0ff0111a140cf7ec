package math

import (
	m "math"
)

const (
	K_PI float32 = 3.14159265358979323846
	/** @brief One divided by an approximation of the square root of 2. */
	K_SQRT_ONE_OVER_TWO float32 = 0.70710678118654752440
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
)

func ksin(x float32) float32 {
	return float32(m.Sin(float64(x)))
}

func kcos(x float32) float32 {
	return float32(m.Cos(float64(x)))
}

func ksqrt(x float32) float32 {
	return float32(m.Sqrt(float64(x)))
}

func kabs(x float32) float32 {
	return float32(m.Abs(float64(x)))
}

// ------------------------------------------
// Vector 3
// ------------------------------------------

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

// NewVec3FromArray builds a vector from the packed float triplets the
// capture pipeline uses for offsets and translations.
func NewVec3FromArray(a [3]float32) Vec3 {
	return Vec3{a[0], a[1], a[2]}
}

func NewVec3Zero() Vec3 {
	return Vec3{}
}

func NewVec3One() Vec3 {
	return Vec3{1, 1, 1}
}

func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

/**
 * @brief Multiplies every component of v by scalar.
 */
func (v Vec3) MulScalar(scalar float32) Vec3 {
	return Vec3{v.X * scalar, v.Y * scalar, v.Z * scalar}
}

func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		v.Y*other.Z - v.Z*other.Y,
		v.Z*other.X - v.X*other.Z,
		v.X*other.Y - v.Y*other.X}
}

/**
 * @brief Compares all elements of v and other and ensures the difference
 * is less than tolerance.
 *
 * @param tolerance The difference tolerance.
 * @return True if within tolerance; otherwise false.
 */
func (v Vec3) Compare(other Vec3, tolerance float32) bool {
	return kabs(v.X-other.X) <= tolerance &&
		kabs(v.Y-other.Y) <= tolerance &&
		kabs(v.Z-other.Z) <= tolerance
}

// ------------------------------------------
// Quaternion
// ------------------------------------------

func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1}
}

// Normal is the magnitude of q.
func (q Quaternion) Normal() float32 {
	return ksqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

func (q Quaternion) Normalize() Quaternion {
	n := q.Normal()
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

// Inverse is the normalized conjugate, exact for unit quaternions.
func (q Quaternion) Inverse() Quaternion {
	return q.Conjugate().Normalize()
}

/**
 * @brief Hamilton product q * other. Rotating a vector by the result
 * applies other first, then q.
 */
func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

// Rotate rotates v by q. q must be a unit quaternion.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).MulScalar(2.0)
	return v.Add(t.MulScalar(q.W)).Add(u.Cross(t))
}

func (q Quaternion) Compare(other Quaternion, tolerance float32) bool {
	return kabs(q.X-other.X) <= tolerance &&
		kabs(q.Y-other.Y) <= tolerance &&
		kabs(q.Z-other.Z) <= tolerance &&
		kabs(q.W-other.W) <= tolerance
}

// Equivalent reports whether q and other describe the same orientation.
// Unit quaternions double cover rotations, so q and -q are equivalent.
func (q Quaternion) Equivalent(other Quaternion, tolerance float32) bool {
	return q.Compare(other, tolerance) ||
		q.Compare(Quaternion{-other.X, -other.Y, -other.Z, -other.W}, tolerance)
}

/**
 * @brief Creates a quaternion from the given axis and angle.
 *
 * @param axis The axis of rotation.
 * @param angle The angle of rotation in radians.
 * @param normalize Indicates if the quaternion should be normalized.
 */
func NewQuatFromAxisAngle(axis Vec3, angle float32, normalize bool) Quaternion {
	s := ksin(0.5 * angle)
	c := kcos(0.5 * angle)

	q := Quaternion{s * axis.X, s * axis.Y, s * axis.Z, c}
	if normalize {
		q = q.Normalize()
	}
	return q
}

// NewQuatFromEulerZYX builds Rz * Ry * Rx from angles in degrees.
func NewQuatFromEulerZYX(degrees Vec3) Quaternion {
	rz := NewQuatFromAxisAngle(Vec3{0, 0, 1}, DegToRad(degrees.Z), false)
	ry := NewQuatFromAxisAngle(Vec3{0, 1, 0}, DegToRad(degrees.Y), false)
	rx := NewQuatFromAxisAngle(Vec3{1, 0, 0}, DegToRad(degrees.X), false)
	return rz.Mul(ry).Mul(rx)
}

// NewQuatFromPacked rebuilds a unit quaternion from its x, y and z
// components, always taking the non-negative root for w.
func NewQuatFromPacked(packed Vec3) Quaternion {
	w := 1.0 - packed.X*packed.X - packed.Y*packed.Y - packed.Z*packed.Z
	return Quaternion{packed.X, packed.Y, packed.Z, ksqrt(Saturate(w))}
}

func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}
