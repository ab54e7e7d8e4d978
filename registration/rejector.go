package registration

import "github.com/kwv/gicp/lie"

// Rejector decides whether a nearest-neighbor correspondence is unusable.
// It is consulted once per query and must not have side effects.
type Rejector interface {
	Reject(T lie.Isometry, targetIndex, sourceIndex int, sqDist float64) bool
}

// RejectorFunc adapts an ordinary function to the Rejector interface
type RejectorFunc func(T lie.Isometry, targetIndex, sourceIndex int, sqDist float64) bool

// Reject calls f
func (f RejectorFunc) Reject(T lie.Isometry, targetIndex, sourceIndex int, sqDist float64) bool {
	return f(T, targetIndex, sourceIndex, sqDist)
}

// NullRejector accepts every correspondence
type NullRejector struct{}

// Reject always returns false
func (NullRejector) Reject(lie.Isometry, int, int, float64) bool { return false }

// DistanceRejector rejects correspondences farther apart than a fixed distance
type DistanceRejector struct {
	MaxDistSq float64 // Squared maximum correspondence distance
}

// DefaultDistanceRejector returns a rejector with a unit maximum distance
func DefaultDistanceRejector() DistanceRejector {
	return DistanceRejector{MaxDistSq: 1.0}
}

// NewDistanceRejector creates a rejector from a maximum distance
func NewDistanceRejector(maxDist float64) DistanceRejector {
	return DistanceRejector{MaxDistSq: maxDist * maxDist}
}

// NewDistanceRejectorSq creates a rejector from an already squared maximum distance
func NewDistanceRejectorSq(maxDistSq float64) DistanceRejector {
	return DistanceRejector{MaxDistSq: maxDistSq}
}

// Reject returns true iff sqDist exceeds the squared maximum distance
func (r DistanceRejector) Reject(_ lie.Isometry, _, _ int, sqDist float64) bool {
	return sqDist > r.MaxDistSq
}
