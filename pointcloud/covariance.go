package pointcloud

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultNumNeighbors is the neighborhood size used for covariance estimation
const DefaultNumNeighbors = 20

// planeEigenvalues replaces the sorted eigenvalues of a local covariance so every
// neighborhood is modeled as a thin plane regardless of its sampling density.
var planeEigenvalues = [3]float64{1e-3, 1.0, 1.0}

// EstimateCovariances computes a plane-regularized covariance for every point
// of c from its k nearest neighbors in tree. Points with fewer than 3 usable
// neighbors keep an identity covariance.
func EstimateCovariances(c *Cloud, tree *Tree, k int) {
	if k <= 0 {
		k = DefaultNumNeighbors
	}
	for i := 0; i < c.Size(); i++ {
		c.covs[i] = estimateCovariance(c, tree, i, k)
	}
}

func estimateCovariance(c *Cloud, tree *Tree, i, k int) *mat.SymDense {
	indices, _ := tree.KNearest(c.Point(i), k)
	if len(indices) < 3 {
		return identityCov(1.0)
	}

	obs := mat.NewDense(len(indices), 3, nil)
	for row, j := range indices {
		p := c.Point(j)
		obs.SetRow(row, []float64{p.X, p.Y, p.Z})
	}

	var sample mat.SymDense
	stat.CovarianceMatrix(&sample, obs, nil)

	regularized, ok := regularizePlane(&sample)
	if !ok {
		return identityCov(1.0)
	}

	cov := mat.NewSymDense(4, nil)
	for r := 0; r < 3; r++ {
		for q := r; q < 3; q++ {
			cov.SetSym(r, q, regularized.At(r, q))
		}
	}
	return cov
}

// regularizePlane rebuilds a 3x3 covariance as V * diag(planeEigenvalues) * V^T
func regularizePlane(sample mat.Symmetric) (*mat.SymDense, bool) {
	var es mat.EigenSym
	if !es.Factorize(sample, true) {
		return nil, false
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// EigenSym orders eigenvalues ascending, so the normal direction comes first
	var scaled mat.Dense
	scaled.Mul(&vecs, mat.NewDiagDense(3, planeEigenvalues[:]))
	var out mat.Dense
	out.Mul(&scaled, vecs.T())
	return Symmetrize(&out), true
}
