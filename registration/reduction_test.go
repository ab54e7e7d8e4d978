package registration

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/gicp/lie"
	"github.com/kwv/gicp/pointcloud"
)

func TestNewFactors(t *testing.T) {
	factors := NewFactors(5)
	require.Len(t, factors, 5)
	for i, f := range factors {
		assert.Equal(t, i, f.SourceIndex)
		assert.False(t, f.Inlier())
	}
	assert.Equal(t, 0, CountInliers(factors))
}

func TestSerialReduction_SumsFactors(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	target := randomCovCloud(gridPoints(3), rng)
	source := randomCovCloud(gridPoints(3), rng)
	tree := pointcloud.NewTree(target)
	T := lie.FromAxisAngle(r3.Vector{Z: 1}, 0.05, r3.Vector{X: 0.1, Y: 0.05})
	rejector := NewDistanceRejector(0.14)

	factors := NewFactors(source.Size())
	H, b, e := SerialReduction{}.Linearize(target, source, tree, rejector, T, factors)

	wantH := mat.NewSymDense(6, nil)
	wantB := mat.NewVecDense(6, nil)
	wantE := 0.0
	inliers := 0
	for i := 0; i < source.Size(); i++ {
		_, lin, ok := LinearizeFactor(target, source, tree, T, i, rejector)
		if !ok {
			continue
		}
		inliers++
		wantH.AddSym(wantH, lin.H)
		wantB.AddVec(wantB, lin.B)
		wantE += lin.E
	}

	assert.True(t, mat.EqualApprox(wantH, H, 1e-12))
	assert.True(t, mat.EqualApprox(wantB, b, 1e-12))
	assert.InDelta(t, wantE, e, 1e-12)
	assert.Equal(t, inliers, CountInliers(factors))
	assert.Greater(t, inliers, 0)
	assert.Less(t, inliers, source.Size())

	// Error at the linearization pose reproduces e
	assert.InDelta(t, e, SerialReduction{}.Error(target, source, T, factors), 1e-12)
}

func TestSerialReduction_AllFactorsFail(t *testing.T) {
	source := pointcloud.New(gridPoints(3))
	target := pointcloud.New(nil)
	tree := pointcloud.NewTree(target)

	factors := NewFactors(source.Size())
	H, b, e := SerialReduction{}.Linearize(target, source, tree, NullRejector{}, lie.Identity(), factors)

	assert.Equal(t, 0.0, mat.Norm(H, 1))
	assert.Equal(t, 0.0, mat.Norm(b, 2))
	assert.Equal(t, 0.0, e)
	assert.Equal(t, 0, CountInliers(factors))
}

func TestParallelReduction_MatchesSerial(t *testing.T) {
	defer goleak.VerifyNone(t)

	rng := rand.New(rand.NewSource(47))
	target := randomCovCloud(gridPoints(6), rng)
	source := randomCovCloud(gridPoints(6), rng)
	tree := pointcloud.NewTree(target)
	T := lie.FromAxisAngle(r3.Vector{X: 1, Y: 1}, 0.03, r3.Vector{Z: 0.1})
	rejector := NewDistanceRejector(0.4)

	serialFactors := NewFactors(source.Size())
	sH, sB, sE := SerialReduction{}.Linearize(target, source, tree, rejector, T, serialFactors)

	for _, workers := range []int{0, 1, 3, 8, 1000} {
		parallel := ParallelReduction{NumWorkers: workers}
		factors := NewFactors(source.Size())
		pH, pB, pE := parallel.Linearize(target, source, tree, rejector, T, factors)

		assert.True(t, mat.EqualApprox(sH, pH, 1e-9), "workers=%d", workers)
		assert.True(t, mat.EqualApprox(sB, pB, 1e-9), "workers=%d", workers)
		assert.InDelta(t, sE, pE, 1e-9, "workers=%d", workers)

		for i := range factors {
			sj, sok := serialFactors[i].TargetIndex()
			pj, pok := factors[i].TargetIndex()
			assert.Equal(t, sok, pok)
			assert.Equal(t, sj, pj)
		}

		trial := T.Mul(lie.SE3Exp(lie.Tangent(r3.Vector{X: 0.01}, r3.Vector{Y: 0.02})))
		assert.InDelta(t,
			SerialReduction{}.Error(target, source, trial, serialFactors),
			parallel.Error(target, source, trial, factors),
			1e-9, "workers=%d", workers)
	}
}

func TestParallelReduction_Empty(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := pointcloud.New(nil)
	tree := pointcloud.NewTree(c)
	H, b, e := ParallelReduction{NumWorkers: 4}.Linearize(c, c, tree, NullRejector{}, lie.Identity(), nil)

	assert.Equal(t, 0.0, mat.Norm(H, 1))
	assert.Equal(t, 0.0, mat.Norm(b, 2))
	assert.Equal(t, 0.0, e)
	assert.Equal(t, 0.0, ParallelReduction{NumWorkers: 4}.Error(c, c, lie.Identity(), nil))
}

func TestParallelReduction_Chunks(t *testing.T) {
	tests := []struct {
		workers int
		n       int
		want    int
	}{
		{workers: 1, n: 100, want: 4},
		{workers: 2, n: 3, want: 3},
		{workers: 0, n: 10, want: 4},
		{workers: 4, n: 0, want: 0},
	}
	for _, tt := range tests {
		chunks := ParallelReduction{NumWorkers: tt.workers}.chunks(tt.n)
		assert.Len(t, chunks, tt.want)

		covered := 0
		next := 0
		for _, c := range chunks {
			assert.Equal(t, next, c[0], "chunks must be contiguous")
			covered += c[1] - c[0]
			next = c[1]
		}
		assert.Equal(t, tt.n, covered)
	}
}
