package lie

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Below this squared angle the exponential maps switch to their Taylor expansions.
const smallAngleSq = 1e-10

// Skew returns the 3x3 cross-product matrix of v, so Skew(v)*u == v x u
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// SO3Exp maps a rotation vector (axis * angle) to a unit quaternion
func SO3Exp(omega r3.Vector) quat.Number {
	thetaSq := omega.Norm2()

	var imagFactor, realFactor float64
	if thetaSq < smallAngleSq {
		thetaQuad := thetaSq * thetaSq
		imagFactor = 0.5 - thetaSq/48.0 + thetaQuad/3840.0
		realFactor = 1.0 - thetaSq/8.0 + thetaQuad/384.0
	} else {
		theta := math.Sqrt(thetaSq)
		halfTheta := 0.5 * theta
		imagFactor = math.Sin(halfTheta) / theta
		realFactor = math.Cos(halfTheta)
	}

	return quat.Number{
		Real: realFactor,
		Imag: imagFactor * omega.X,
		Jmag: imagFactor * omega.Y,
		Kmag: imagFactor * omega.Z,
	}
}

// QuatToRotation converts a quaternion to a row-major rotation matrix.
// The quaternion is normalized first; a zero quaternion yields the identity.
func QuatToRotation(q quat.Number) [3][3]float64 {
	n := quat.Abs(q)
	if n == 0 {
		return Identity().R
	}
	q = quat.Scale(1/n, q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// Tangent packs a rotation and translation increment into the 6-vector [rot; trans]
func Tangent(rot, trans r3.Vector) *mat.VecDense {
	return mat.NewVecDense(6, []float64{rot.X, rot.Y, rot.Z, trans.X, trans.Y, trans.Z})
}

// SplitTangent unpacks a 6-vector [rot; trans]
func SplitTangent(delta mat.Vector) (rot, trans r3.Vector) {
	rot = r3.Vector{X: delta.AtVec(0), Y: delta.AtVec(1), Z: delta.AtVec(2)}
	trans = r3.Vector{X: delta.AtVec(3), Y: delta.AtVec(4), Z: delta.AtVec(5)}
	return rot, trans
}

// SE3Exp maps a tangent vector [omega; v] to a rigid transform.
// The translation is V*v with V the left Jacobian of SO(3).
func SE3Exp(delta mat.Vector) Isometry {
	omega, v := SplitTangent(delta)
	thetaSq := omega.Norm2()
	theta := math.Sqrt(thetaSq)

	out := Isometry{R: QuatToRotation(SO3Exp(omega))}
	if theta < 1e-10 {
		out.T = out.Rotate(v)
		return out
	}

	// V*v = v + c1*(omega x v) + c2*(omega x (omega x v))
	c1 := (1.0 - math.Cos(theta)) / thetaSq
	c2 := (theta - math.Sin(theta)) / (thetaSq * theta)
	wv := omega.Cross(v)
	wwv := omega.Cross(wv)
	out.T = v.Add(wv.Mul(c1)).Add(wwv.Mul(c2))
	return out
}
