package pointcloud

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/gicp/lie"
)

// Cloud stores points together with a per-point 4x4 covariance.
// Only the top-left 3x3 block of each covariance is meaningful; the
// homogeneous row and column stay zero.
type Cloud struct {
	points []r3.Vector
	covs   []*mat.SymDense
}

// New creates a cloud from points. Every covariance starts as the identity
// block until it is estimated or set explicitly.
func New(points []r3.Vector) *Cloud {
	c := &Cloud{
		points: make([]r3.Vector, len(points)),
		covs:   make([]*mat.SymDense, len(points)),
	}
	copy(c.points, points)
	for i := range c.covs {
		c.covs[i] = identityCov(1.0)
	}
	return c
}

// Size returns the number of points
func (c *Cloud) Size() int {
	return len(c.points)
}

// Point returns the i-th point
func (c *Cloud) Point(i int) r3.Vector {
	return c.points[i]
}

// Points returns the backing point slice. Callers must not modify it.
func (c *Cloud) Points() []r3.Vector {
	return c.points
}

// Cov returns the i-th 4x4 covariance. Callers must not modify it.
func (c *Cloud) Cov(i int) *mat.SymDense {
	return c.covs[i]
}

// SetCov stores the top-left 3x3 block of cov as the i-th covariance.
// cov may be 3x3 or 4x4.
func (c *Cloud) SetCov(i int, cov mat.Symmetric) {
	dst := mat.NewSymDense(4, nil)
	for r := 0; r < 3; r++ {
		for k := r; k < 3; k++ {
			dst.SetSym(r, k, cov.At(r, k))
		}
	}
	c.covs[i] = dst
}

// Transform returns a new cloud with every point mapped by T and every
// covariance rotated to R*C*R^T.
func (c *Cloud) Transform(T lie.Isometry) *Cloud {
	out := &Cloud{
		points: make([]r3.Vector, len(c.points)),
		covs:   make([]*mat.SymDense, len(c.covs)),
	}
	R := T.RotationDense()
	for i, p := range c.points {
		out.points[i] = T.Apply(p)

		var rc, rcr mat.Dense
		rc.Mul(R, c.covs[i].SliceSym(0, 3))
		rcr.Mul(&rc, R.T())
		out.SetCov(i, Symmetrize(&rcr))
	}
	return out
}

// IsotropicCovariances sets every covariance to eps*I, which turns the
// plane-to-plane weighting into plain point-to-point distance.
func IsotropicCovariances(c *Cloud, eps float64) {
	for i := range c.covs {
		c.covs[i] = identityCov(eps)
	}
}

// Symmetrize averages m with its transpose
func Symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

func identityCov(scale float64) *mat.SymDense {
	cov := mat.NewSymDense(4, nil)
	for i := 0; i < 3; i++ {
		cov.SetSym(i, i, scale)
	}
	return cov
}
