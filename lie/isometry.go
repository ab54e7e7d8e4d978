package lie

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Isometry is a rigid 3D transform: p' = R*p + T
type Isometry struct {
	R [3][3]float64 // Rotation, row-major
	T r3.Vector     // Translation
}

// Identity returns the identity transform (no rotation, no translation)
func Identity() Isometry {
	return Isometry{R: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// Translation creates a translation-only transform
func Translation(t r3.Vector) Isometry {
	iso := Identity()
	iso.T = t
	return iso
}

// FromAxisAngle creates a rotation of angle radians about axis followed by translation t.
// A zero axis yields a pure translation.
func FromAxisAngle(axis r3.Vector, angle float64, t r3.Vector) Isometry {
	if axis.Norm2() == 0 {
		return Translation(t)
	}
	omega := axis.Normalize().Mul(angle)
	return Isometry{R: QuatToRotation(SO3Exp(omega)), T: t}
}

// Rotate applies only the rotation part to p
func (a Isometry) Rotate(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: a.R[0][0]*p.X + a.R[0][1]*p.Y + a.R[0][2]*p.Z,
		Y: a.R[1][0]*p.X + a.R[1][1]*p.Y + a.R[1][2]*p.Z,
		Z: a.R[2][0]*p.X + a.R[2][1]*p.Y + a.R[2][2]*p.Z,
	}
}

// Apply transforms a point: R*p + T
func (a Isometry) Apply(p r3.Vector) r3.Vector {
	return a.Rotate(p).Add(a.T)
}

// Mul composes two transforms: result = a * b
// Applying result is equivalent to applying b first, then a
func (a Isometry) Mul(b Isometry) Isometry {
	var out Isometry
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.R[i][j] = a.R[i][0]*b.R[0][j] + a.R[i][1]*b.R[1][j] + a.R[i][2]*b.R[2][j]
		}
	}
	out.T = a.Rotate(b.T).Add(a.T)
	return out
}

// Inverse returns the inverse transform (R^T, -R^T*T)
func (a Isometry) Inverse() Isometry {
	var out Isometry
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.R[i][j] = a.R[j][i]
		}
	}
	out.T = out.Rotate(a.T).Mul(-1)
	return out
}

// RotationDense returns the rotation block as a 3x3 gonum matrix
func (a Isometry) RotationDense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a.R[0][0], a.R[0][1], a.R[0][2],
		a.R[1][0], a.R[1][1], a.R[1][2],
		a.R[2][0], a.R[2][1], a.R[2][2],
	})
}

// Matrix returns the homogeneous 4x4 form of the transform
func (a Isometry) Matrix() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		a.R[0][0], a.R[0][1], a.R[0][2], a.T.X,
		a.R[1][0], a.R[1][1], a.R[1][2], a.T.Y,
		a.R[2][0], a.R[2][1], a.R[2][2], a.T.Z,
		0, 0, 0, 1,
	})
}

// RotationAngle returns the magnitude of the rotation in radians, in [0, pi]
func (a Isometry) RotationAngle() float64 {
	c := (a.R[0][0] + a.R[1][1] + a.R[2][2] - 1) / 2
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c)
}

// ApproxEqual reports whether both rotation entries and translation agree within tol
func (a Isometry) ApproxEqual(b Isometry, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(a.R[i][j]-b.R[i][j]) > tol {
				return false
			}
		}
	}
	return a.T.Sub(b.T).Norm() <= tol
}
