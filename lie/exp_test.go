package lie

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func randomVector(rng *rand.Rand, scale float64) r3.Vector {
	return r3.Vector{
		X: (rng.Float64()*2 - 1) * scale,
		Y: (rng.Float64()*2 - 1) * scale,
		Z: (rng.Float64()*2 - 1) * scale,
	}
}

func TestSkew_CrossProduct(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		v := randomVector(rng, 3)
		u := randomVector(rng, 3)

		var got mat.VecDense
		got.MulVec(Skew(v), mat.NewVecDense(3, []float64{u.X, u.Y, u.Z}))
		want := v.Cross(u)

		assert.InDelta(t, want.X, got.AtVec(0), 1e-12)
		assert.InDelta(t, want.Y, got.AtVec(1), 1e-12)
		assert.InDelta(t, want.Z, got.AtVec(2), 1e-12)
	}
}

func TestSE3Exp_Zero(t *testing.T) {
	iso := SE3Exp(mat.NewVecDense(6, nil))
	assert.True(t, iso.ApproxEqual(Identity(), 1e-15))
}

func TestSE3Exp_PureTranslation(t *testing.T) {
	iso := SE3Exp(Tangent(r3.Vector{}, r3.Vector{X: 1, Y: -2, Z: 3}))
	assert.True(t, iso.ApproxEqual(Translation(r3.Vector{X: 1, Y: -2, Z: 3}), 1e-12))
}

func TestSE3Exp_RotationAboutZ(t *testing.T) {
	iso := SE3Exp(Tangent(r3.Vector{Z: math.Pi / 2}, r3.Vector{}))
	p := iso.Apply(r3.Vector{X: 1})

	assert.InDelta(t, 0.0, p.X, 1e-12)
	assert.InDelta(t, 1.0, p.Y, 1e-12)
	assert.InDelta(t, 0.0, p.Z, 1e-12)
	assert.InDelta(t, math.Pi/2, iso.RotationAngle(), 1e-12)
}

func TestSE3Exp_Orthonormal(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 50; i++ {
		iso := SE3Exp(Tangent(randomVector(rng, 2), randomVector(rng, 5)))
		R := iso.RotationDense()

		var rtr mat.Dense
		rtr.Mul(R.T(), R)
		assert.True(t, mat.EqualApprox(&rtr, eye(3), 1e-12), "R^T R must be identity")
		assert.InDelta(t, 1.0, mat.Det(R), 1e-12)
	}
}

func TestSE3Exp_SmallAngleContinuity(t *testing.T) {
	// The Taylor branch and the closed form must agree near the switch point.
	v := r3.Vector{X: 0.3, Y: -0.1, Z: 0.2}
	below := SE3Exp(Tangent(r3.Vector{X: 5e-6}, v))
	above := SE3Exp(Tangent(r3.Vector{X: 2e-5}, v))
	assert.True(t, below.ApproxEqual(above, 1e-4))
}

func TestSE3Exp_OneParameterGroup(t *testing.T) {
	// exp(a) * exp(a) == exp(2a) for any single tangent direction
	delta := Tangent(r3.Vector{X: 0.2, Y: 0.4, Z: -0.1}, r3.Vector{X: 1, Y: 0.5, Z: -2})
	var twice mat.VecDense
	twice.ScaleVec(2, delta)

	once := SE3Exp(delta)
	assert.True(t, once.Mul(once).ApproxEqual(SE3Exp(&twice), 1e-12))
}

func TestIsometry_Inverse(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		iso := FromAxisAngle(randomVector(rng, 1), rng.Float64()*math.Pi, randomVector(rng, 10))
		assert.True(t, iso.Mul(iso.Inverse()).ApproxEqual(Identity(), 1e-12))
		assert.True(t, iso.Inverse().Mul(iso).ApproxEqual(Identity(), 1e-12))
	}
}

func TestIsometry_MatrixMatchesApply(t *testing.T) {
	iso := FromAxisAngle(r3.Vector{X: 1, Y: 1}, 0.7, r3.Vector{X: 3, Y: 2, Z: 1})
	p := r3.Vector{X: -1, Y: 4, Z: 2}

	var h mat.VecDense
	h.MulVec(iso.Matrix(), mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1}))
	want := iso.Apply(p)

	assert.InDelta(t, want.X, h.AtVec(0), 1e-12)
	assert.InDelta(t, want.Y, h.AtVec(1), 1e-12)
	assert.InDelta(t, want.Z, h.AtVec(2), 1e-12)
	assert.Equal(t, 1.0, h.AtVec(3), "homogeneous coordinate must be preserved")
}

func TestFromAxisAngle_ZeroAxis(t *testing.T) {
	iso := FromAxisAngle(r3.Vector{}, 1.0, r3.Vector{X: 1})
	assert.True(t, iso.ApproxEqual(Translation(r3.Vector{X: 1}), 0))
}

func eye(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}
