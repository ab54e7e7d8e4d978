package registration

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/gicp/lie"
)

func TestDefaultCriteria_Converged(t *testing.T) {
	criteria := NewDefaultCriteria()
	assert.Equal(t, 1e-3, criteria.TranslationEps)
	assert.InDelta(t, 0.1*math.Pi/180, criteria.RotationEps, 1e-15)

	tests := []struct {
		name  string
		rot   r3.Vector
		trans r3.Vector
		want  bool
	}{
		{"zero step", r3.Vector{}, r3.Vector{}, true},
		{"small step", r3.Vector{X: 1e-4}, r3.Vector{Y: 5e-4}, true},
		{"translation on threshold", r3.Vector{}, r3.Vector{Z: 1e-3}, true},
		{"translation too large", r3.Vector{}, r3.Vector{X: 2e-3}, false},
		{"rotation too large", r3.Vector{Z: 0.01}, r3.Vector{}, false},
		{"both too large", r3.Vector{X: 1}, r3.Vector{X: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, criteria.Converged(lie.Tangent(tt.rot, tt.trans)))
		})
	}
}

func TestCriteriaFunc(t *testing.T) {
	var seen int
	criteria := CriteriaFunc(func(delta mat.Vector) bool {
		seen = delta.Len()
		return true
	})

	assert.True(t, criteria.Converged(mat.NewVecDense(6, nil)))
	assert.Equal(t, 6, seen)
}
