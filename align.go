package gicp

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"github.com/kwv/gicp/lie"
	"github.com/kwv/gicp/pointcloud"
	"github.com/kwv/gicp/registration"
)

var (
	// ErrEmptyTarget is returned when the target cloud has no points
	ErrEmptyTarget = errors.New("target cloud is empty")
	// ErrEmptySource is returned when the source cloud has no points
	ErrEmptySource = errors.New("source cloud is empty")
	// ErrUnknownOptimizer is returned for an unsupported Config.Optimizer value
	ErrUnknownOptimizer = errors.New("unknown optimizer")
)

// Aligner runs GICP registrations with a fixed configuration
type Aligner struct {
	config Config
	logger *zap.Logger
}

// NewAligner validates config and returns an Aligner. A nil logger discards output.
func NewAligner(config Config, logger *zap.Logger) (*Aligner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("creating aligner: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aligner{config: config, logger: logger}, nil
}

// Config returns the settings the aligner was created with
func (a *Aligner) Config() Config {
	return a.config
}

// Align estimates T_target_source for raw point sets. Covariances of both
// clouds are estimated from their NumNeighbors nearest neighbors.
func (a *Aligner) Align(target, source []r3.Vector, init lie.Isometry) (registration.Result, error) {
	if len(target) == 0 {
		return registration.Result{}, ErrEmptyTarget
	}
	if len(source) == 0 {
		return registration.Result{}, ErrEmptySource
	}

	targetCloud := pointcloud.New(target)
	targetTree := pointcloud.NewTree(targetCloud)
	pointcloud.EstimateCovariances(targetCloud, targetTree, a.config.NumNeighbors)

	sourceCloud := pointcloud.New(source)
	pointcloud.EstimateCovariances(sourceCloud, pointcloud.NewTree(sourceCloud), a.config.NumNeighbors)

	return a.AlignClouds(targetCloud, sourceCloud, targetTree, init)
}

// AlignClouds estimates T_target_source for clouds whose covariances are
// already set. targetTree must index target.
func (a *Aligner) AlignClouds(target, source registration.PointCloud, targetTree registration.NearestNeighborSearch, init lie.Isometry) (registration.Result, error) {
	if target.Size() == 0 {
		return registration.Result{}, ErrEmptyTarget
	}
	if source.Size() == 0 {
		return registration.Result{}, ErrEmptySource
	}

	problem := registration.Problem{
		Target:    target,
		Source:    source,
		Tree:      targetTree,
		Rejector:  a.rejector(),
		Criteria:  registration.DefaultCriteria{TranslationEps: a.config.TranslationEps, RotationEps: a.config.RotationEps},
		Reduction: a.reduction(),
	}

	optimizer, err := a.optimizer()
	if err != nil {
		return registration.Result{}, err
	}

	factors := registration.NewFactors(source.Size())
	result := optimizer.Optimize(problem, init, factors)

	a.logger.Info("registration finished",
		zap.String("optimizer", a.config.Optimizer),
		zap.Bool("converged", result.Converged),
		zap.Int("iterations", result.Iterations),
		zap.Float64("error", result.Error),
		zap.Int("inliers", result.NumInliers),
		zap.Int("source_points", source.Size()))

	return result, nil
}

func (a *Aligner) rejector() registration.Rejector {
	if a.config.MaxCorrespondenceDistance <= 0 {
		return registration.NullRejector{}
	}
	return registration.NewDistanceRejector(a.config.MaxCorrespondenceDistance)
}

func (a *Aligner) reduction() registration.Reduction {
	if a.config.NumWorkers <= 1 {
		return registration.SerialReduction{}
	}
	return registration.ParallelReduction{NumWorkers: a.config.NumWorkers}
}

func (a *Aligner) optimizer() (registration.Optimizer, error) {
	switch a.config.Optimizer {
	case OptimizerGaussNewton:
		return &registration.GaussNewtonOptimizer{
			Verbose:       a.config.Verbose,
			MaxIterations: a.config.MaxIterations,
			Lambda:        a.config.Lambda,
			Logger:        a.logger,
		}, nil
	case OptimizerLevenbergMarquardt:
		return &registration.LevenbergMarquardtOptimizer{
			Verbose:            a.config.Verbose,
			MaxIterations:      a.config.MaxIterations,
			MaxInnerIterations: a.config.MaxInnerIterations,
			InitLambda:         a.config.InitLambda,
			LambdaFactor:       a.config.LambdaFactor,
			Logger:             a.logger,
		}, nil
	default:
		return nil, fmt.Errorf("optimizer %q: %w", a.config.Optimizer, ErrUnknownOptimizer)
	}
}
