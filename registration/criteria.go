package registration

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kwv/gicp/lie"
)

// TerminationCriteria decides from a tangent step [rot; trans] whether the
// optimization has converged
type TerminationCriteria interface {
	Converged(delta mat.Vector) bool
}

// CriteriaFunc adapts an ordinary function to TerminationCriteria
type CriteriaFunc func(delta mat.Vector) bool

// Converged calls f
func (f CriteriaFunc) Converged(delta mat.Vector) bool {
	return f(delta)
}

// DefaultCriteria converges once both parts of the step fall below their thresholds
type DefaultCriteria struct {
	TranslationEps float64 // Maximum translation step norm
	RotationEps    float64 // Maximum rotation step norm (radians)
}

// NewDefaultCriteria returns criteria of 1e-3 translation and 0.1 degree rotation
func NewDefaultCriteria() DefaultCriteria {
	return DefaultCriteria{
		TranslationEps: 1e-3,
		RotationEps:    0.1 * math.Pi / 180.0,
	}
}

// Converged implements TerminationCriteria
func (c DefaultCriteria) Converged(delta mat.Vector) bool {
	rot, trans := lie.SplitTangent(delta)
	return rot.Norm() <= c.RotationEps && trans.Norm() <= c.TranslationEps
}
