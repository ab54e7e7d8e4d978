package registration

import (
	"errors"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/gicp/lie"
)

// Result contains the outcome of one optimization run
type Result struct {
	Pose       lie.Isometry  // Estimated T_target_source
	Converged  bool          // Whether the termination criteria were met
	Iterations int           // Index of the last outer iteration performed
	H          *mat.SymDense // Last linearized 6x6 Hessian approximation
	B          *mat.VecDense // Last linearized 6x1 gradient
	Error      float64       // Cost at the last linearization point
	NumInliers int           // Factors holding a correspondence at the end
}

func newResult(init lie.Isometry) Result {
	return Result{
		Pose: init,
		H:    mat.NewSymDense(6, nil),
		B:    mat.NewVecDense(6, nil),
	}
}

// Problem bundles the read-only inputs and the pluggable policies of a registration.
// Nil policies fall back to NullRejector, NewDefaultCriteria and SerialReduction.
type Problem struct {
	Target    PointCloud
	Source    PointCloud
	Tree      NearestNeighborSearch // Index over Target
	Rejector  Rejector
	Criteria  TerminationCriteria
	Reduction Reduction
}

func (p Problem) withDefaults() Problem {
	if p.Rejector == nil {
		p.Rejector = NullRejector{}
	}
	if p.Criteria == nil {
		p.Criteria = NewDefaultCriteria()
	}
	if p.Reduction == nil {
		p.Reduction = SerialReduction{}
	}
	return p
}

// factorsFor returns factors when it has one slot per source point, or a fresh set
func (p Problem) factorsFor(factors []Factor) []Factor {
	if len(factors) == p.Source.Size() {
		return factors
	}
	return NewFactors(p.Source.Size())
}

// Optimizer refines an initial pose against a Problem.
// factors must have one slot per source point; otherwise a private set is used.
type Optimizer interface {
	Optimize(p Problem, init lie.Isometry, factors []Factor) Result
}

// GaussNewtonOptimizer applies every step with a fixed damping term.
// The cost is not guaranteed to decrease monotonically.
type GaussNewtonOptimizer struct {
	Verbose       bool
	MaxIterations int
	Lambda        float64
	Logger        *zap.Logger
}

// NewGaussNewtonOptimizer returns a Gauss-Newton optimizer with default settings
func NewGaussNewtonOptimizer() *GaussNewtonOptimizer {
	return &GaussNewtonOptimizer{
		MaxIterations: 20,
		Lambda:        1e-6,
	}
}

// Optimize implements Optimizer
func (o *GaussNewtonOptimizer) Optimize(p Problem, init lie.Isometry, factors []Factor) Result {
	p = p.withDefaults()
	factors = p.factorsFor(factors)
	logger := loggerOrNop(o.Logger)

	if o.Verbose {
		logger.Info("gauss-newton optimization", zap.Int("max_iterations", o.MaxIterations), zap.Float64("lambda", o.Lambda))
	}

	result := newResult(init)
	for i := 0; i < o.MaxIterations && !result.Converged; i++ {
		H, b, e := p.Reduction.Linearize(p.Target, p.Source, p.Tree, p.Rejector, result.Pose, factors)
		delta := solveDamped(H, b, o.Lambda)

		if o.Verbose {
			dr, dt := lie.SplitTangent(delta)
			logger.Info("gn iteration",
				zap.Int("iter", i),
				zap.Float64("e", e),
				zap.Float64("lambda", o.Lambda),
				zap.Float64("dt", dt.Norm()),
				zap.Float64("dr", dr.Norm()))
		}

		result.Converged = p.Criteria.Converged(delta)
		result.Pose = result.Pose.Mul(lie.SE3Exp(delta))
		result.Iterations = i
		result.H = H
		result.B = b
		result.Error = e
	}

	result.NumInliers = CountInliers(factors)
	return result
}

// LevenbergMarquardtOptimizer accepts a step only when it lowers the cost,
// adapting the damping term between attempts.
type LevenbergMarquardtOptimizer struct {
	Verbose            bool
	MaxIterations      int
	MaxInnerIterations int
	InitLambda         float64
	LambdaFactor       float64
	Logger             *zap.Logger
}

// NewLevenbergMarquardtOptimizer returns a Levenberg-Marquardt optimizer with default settings
func NewLevenbergMarquardtOptimizer() *LevenbergMarquardtOptimizer {
	return &LevenbergMarquardtOptimizer{
		MaxIterations:      20,
		MaxInnerIterations: 10,
		InitLambda:         1e-3,
		LambdaFactor:       10.0,
	}
}

// Optimize implements Optimizer.
// Each outer iteration linearizes once; trial steps are scored with
// Reduction.Error on the cached correspondences. If no trial lowers the cost
// the pose is left unchanged and the grown damping carries over.
func (o *LevenbergMarquardtOptimizer) Optimize(p Problem, init lie.Isometry, factors []Factor) Result {
	p = p.withDefaults()
	factors = p.factorsFor(factors)
	logger := loggerOrNop(o.Logger)

	if o.Verbose {
		logger.Info("levenberg-marquardt optimization",
			zap.Int("max_iterations", o.MaxIterations),
			zap.Int("max_inner_iterations", o.MaxInnerIterations),
			zap.Float64("init_lambda", o.InitLambda))
	}

	lambda := o.InitLambda
	result := newResult(init)
	for i := 0; i < o.MaxIterations && !result.Converged; i++ {
		H, b, e := p.Reduction.Linearize(p.Target, p.Source, p.Tree, p.Rejector, result.Pose, factors)

		for j := 0; j < o.MaxInnerIterations; j++ {
			delta := solveDamped(H, b, lambda)
			newPose := result.Pose.Mul(lie.SE3Exp(delta))
			newE := p.Reduction.Error(p.Target, p.Source, newPose, factors)

			if o.Verbose {
				dr, dt := lie.SplitTangent(delta)
				logger.Info("lm iteration",
					zap.Int("iter", i),
					zap.Int("inner", j),
					zap.Float64("e", e),
					zap.Float64("new_e", newE),
					zap.Float64("lambda", lambda),
					zap.Float64("dt", dt.Norm()),
					zap.Float64("dr", dr.Norm()))
			}

			if newE < e {
				result.Converged = p.Criteria.Converged(delta)
				result.Pose = newPose
				lambda /= o.LambdaFactor
				break
			}
			lambda *= o.LambdaFactor
		}

		result.Iterations = i
		result.H = H
		result.B = b
		result.Error = e
	}

	result.NumInliers = CountInliers(factors)
	return result
}

// solveDamped solves (H + lambda*I) delta = -b.
// Cholesky handles the usual positive definite case; a rank-revealing SVD
// solve takes over when the damped system is numerically singular.
func solveDamped(H *mat.SymDense, b *mat.VecDense, lambda float64) *mat.VecDense {
	n := H.SymmetricDim()
	A := mat.NewSymDense(n, nil)
	A.CopySym(H)
	for i := 0; i < n; i++ {
		A.SetSym(i, i, A.At(i, i)+lambda)
	}

	var negB mat.VecDense
	negB.ScaleVec(-1, b)

	var delta mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(A) {
		err := chol.SolveVecTo(&delta, &negB)
		var cond mat.Condition
		if err == nil || errors.As(err, &cond) {
			return &delta
		}
	}

	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDFull) {
		return mat.NewVecDense(n, nil)
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return mat.NewVecDense(n, nil)
	}
	svd.SolveVecTo(&delta, &negB, rank)
	return &delta
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
