package registration

import (
	"gonum.org/v1/gonum/mat"
	"golang.org/x/sync/errgroup"

	"github.com/kwv/gicp/lie"
)

// Reduction relinearizes every factor at a pose and sums the contributions.
// factors[i] is overwritten with the fresh state of source point i.
type Reduction interface {
	Linearize(target, source PointCloud, tree NearestNeighborSearch, rejector Rejector, T lie.Isometry, factors []Factor) (H *mat.SymDense, b *mat.VecDense, e float64)
	Error(target, source PointCloud, T lie.Isometry, factors []Factor) float64
}

// NewFactors allocates one factor slot per source point
func NewFactors(n int) []Factor {
	factors := make([]Factor, n)
	for i := range factors {
		factors[i].SourceIndex = i
	}
	return factors
}

// CountInliers returns how many factors hold a correspondence
func CountInliers(factors []Factor) int {
	n := 0
	for _, f := range factors {
		if f.Inlier() {
			n++
		}
	}
	return n
}

// accumulator sums (H, b, e) over a range of factors
type accumulator struct {
	H *mat.SymDense
	B *mat.VecDense
	E float64
}

func newAccumulator() accumulator {
	return accumulator{H: mat.NewSymDense(6, nil), B: mat.NewVecDense(6, nil)}
}

func (a *accumulator) add(lin Linearization) {
	a.H.AddSym(a.H, lin.H)
	a.B.AddVec(a.B, lin.B)
	a.E += lin.E
}

func (a *accumulator) merge(o accumulator) {
	a.H.AddSym(a.H, o.H)
	a.B.AddVec(a.B, o.B)
	a.E += o.E
}

func linearizeRange(target, source PointCloud, tree NearestNeighborSearch, rejector Rejector, T lie.Isometry, factors []Factor, start, end int) accumulator {
	acc := newAccumulator()
	for i := start; i < end; i++ {
		f, lin, ok := LinearizeFactor(target, source, tree, T, i, rejector)
		factors[i] = f
		if !ok {
			continue
		}
		acc.add(lin)
	}
	return acc
}

func errorRange(target, source PointCloud, T lie.Isometry, factors []Factor, start, end int) float64 {
	sum := 0.0
	for i := start; i < end; i++ {
		sum += factors[i].Error(target, source, T)
	}
	return sum
}

// SerialReduction folds the factors one after another on the calling goroutine
type SerialReduction struct{}

// Linearize implements Reduction
func (SerialReduction) Linearize(target, source PointCloud, tree NearestNeighborSearch, rejector Rejector, T lie.Isometry, factors []Factor) (*mat.SymDense, *mat.VecDense, float64) {
	acc := linearizeRange(target, source, tree, rejector, T, factors, 0, len(factors))
	return acc.H, acc.B, acc.E
}

// Error implements Reduction
func (SerialReduction) Error(target, source PointCloud, T lie.Isometry, factors []Factor) float64 {
	return errorRange(target, source, T, factors, 0, len(factors))
}

// ParallelReduction splits the factors into contiguous chunks evaluated on
// up to NumWorkers goroutines. Each chunk owns its partial sums, which are
// combined in chunk order once every worker has finished.
type ParallelReduction struct {
	NumWorkers int
}

// chunksPerWorker oversubscribes chunks so uneven search costs balance out
const chunksPerWorker = 4

func (r ParallelReduction) chunks(n int) [][2]int {
	workers := r.NumWorkers
	if workers < 1 {
		workers = 1
	}
	count := workers * chunksPerWorker
	if count > n {
		count = n
	}
	if count == 0 {
		return nil
	}
	size := (n + count - 1) / count

	out := make([][2]int, 0, count)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func (r ParallelReduction) group() *errgroup.Group {
	var g errgroup.Group
	if r.NumWorkers > 0 {
		g.SetLimit(r.NumWorkers)
	}
	return &g
}

// Linearize implements Reduction
func (r ParallelReduction) Linearize(target, source PointCloud, tree NearestNeighborSearch, rejector Rejector, T lie.Isometry, factors []Factor) (*mat.SymDense, *mat.VecDense, float64) {
	chunks := r.chunks(len(factors))
	partials := make([]accumulator, len(chunks))

	g := r.group()
	for c, span := range chunks {
		c, span := c, span // per-iteration copies (go directive < 1.22)
		g.Go(func() error {
			partials[c] = linearizeRange(target, source, tree, rejector, T, factors, span[0], span[1])
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	total := newAccumulator()
	for _, p := range partials {
		total.merge(p)
	}
	return total.H, total.B, total.E
}

// Error implements Reduction
func (r ParallelReduction) Error(target, source PointCloud, T lie.Isometry, factors []Factor) float64 {
	chunks := r.chunks(len(factors))
	partials := make([]float64, len(chunks))

	g := r.group()
	for c, span := range chunks {
		c, span := c, span // per-iteration copies (go directive < 1.22)
		g.Go(func() error {
			partials[c] = errorRange(target, source, T, factors, span[0], span[1])
			return nil
		})
	}
	_ = g.Wait()

	sum := 0.0
	for _, p := range partials {
		sum += p
	}
	return sum
}
