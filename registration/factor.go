package registration

import (
	"errors"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/gicp/lie"
)

// PointCloud gives read access to points and their 4x4 covariances.
// Indices are valid in [0, Size()).
type PointCloud interface {
	Size() int
	Point(i int) r3.Vector
	Cov(i int) *mat.SymDense
}

// NearestNeighborSearch finds the closest indexed point to a query.
// ok is false when no neighbor exists (e.g. the index is empty).
type NearestNeighborSearch interface {
	Nearest(q r3.Vector) (index int, sqDist float64, ok bool)
}

// Factor is the GICP correspondence state of one source point.
// A fresh value is produced by every linearization.
type Factor struct {
	SourceIndex int
	targetIndex int
	hasTarget   bool

	// Mahalanobis is the 4x4 weight; only its top-left 3x3 block is non-zero.
	// It is nil when the factor has no correspondence.
	Mahalanobis *mat.SymDense
}

// Linearization is the contribution of one factor to the normal equations
type Linearization struct {
	H *mat.SymDense // 6x6, J^T W J
	B *mat.VecDense // 6, J^T W r
	E float64       // 0.5 r^T W r
}

// TargetIndex returns the matched target point, if any
func (f Factor) TargetIndex() (int, bool) {
	return f.targetIndex, f.hasTarget
}

// Inlier reports whether the factor currently holds a correspondence
func (f Factor) Inlier() bool {
	return f.hasTarget
}

// LinearizeFactor finds the correspondence of source point sourceIndex under
// pose T and linearizes its plane-to-plane residual. The Jacobian is taken
// with respect to a right perturbation T*Exp(delta), delta = [rot; trans].
// ok is false when no neighbor is found, the rejector refuses it, or the
// combined covariance cannot be inverted; the returned factor then has no
// correspondence and the Linearization is empty.
func LinearizeFactor(target, source PointCloud, tree NearestNeighborSearch, T lie.Isometry, sourceIndex int, rejector Rejector) (Factor, Linearization, bool) {
	f := Factor{SourceIndex: sourceIndex}

	sourcePt := source.Point(sourceIndex)
	transformed := T.Apply(sourcePt)

	targetIndex, sqDist, found := tree.Nearest(transformed)
	if !found || rejector.Reject(T, targetIndex, sourceIndex, sqDist) {
		return f, Linearization{}, false
	}

	R := T.RotationDense()
	var rc, rcr mat.Dense
	rc.Mul(R, source.Cov(sourceIndex).SliceSym(0, 3))
	rcr.Mul(&rc, R.T())
	rcr.Add(&rcr, target.Cov(targetIndex).SliceSym(0, 3))

	weight, ok := mahalanobis(&rcr)
	if !ok {
		return f, Linearization{}, false
	}
	f.targetIndex = targetIndex
	f.hasTarget = true
	f.Mahalanobis = weight

	residual := residual(target.Point(targetIndex), transformed)

	J := mat.NewDense(4, 6, nil)
	var rs mat.Dense
	rs.Mul(R, lie.Skew(sourcePt))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			J.Set(i, j, rs.At(i, j))
			J.Set(i, j+3, -R.At(i, j))
		}
	}

	var wj, h mat.Dense
	wj.Mul(weight, J)
	h.Mul(J.T(), &wj)

	var wr mat.VecDense
	wr.MulVec(weight, residual)
	b := mat.NewVecDense(6, nil)
	b.MulVec(J.T(), &wr)

	return f, Linearization{
		H: symmetric(&h),
		B: b,
		E: 0.5 * mat.Dot(residual, &wr),
	}, true
}

// Error evaluates the cost of the cached correspondence at pose T without
// searching again. It returns 0 for a factor without correspondence.
func (f Factor) Error(target, source PointCloud, T lie.Isometry) float64 {
	if !f.hasTarget {
		return 0
	}
	r := residual(target.Point(f.targetIndex), T.Apply(source.Point(f.SourceIndex)))
	var wr mat.VecDense
	wr.MulVec(f.Mahalanobis, r)
	return 0.5 * mat.Dot(r, &wr)
}

// residual returns target - transformed as a homogeneous difference (w = 0)
func residual(target, transformed r3.Vector) *mat.VecDense {
	d := target.Sub(transformed)
	return mat.NewVecDense(4, []float64{d.X, d.Y, d.Z, 0})
}

// mahalanobis inverts a 3x3 combined covariance and embeds it in a 4x4 weight
func mahalanobis(rcr mat.Matrix) (*mat.SymDense, bool) {
	var chol mat.Cholesky
	if !chol.Factorize(symmetric(rcr)) {
		return nil, false
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, false
		}
	}

	w := mat.NewSymDense(4, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			w.SetSym(i, j, inv.At(i, j))
		}
	}
	return w, true
}

func symmetric(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}
