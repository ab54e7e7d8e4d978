package pointcloud

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// indexedPoint is a kdtree.Comparable that remembers its position in the cloud,
// since building the tree reorders the backing slice.
type indexedPoint struct {
	r3.Vector
	index int
}

func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p indexedPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	return p.Vector.Sub(q.Vector).Norm2()
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexedPoints) Len() int                              { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{indexedPoints: p, Dim: d}, kdtree.MedianOfRandoms(plane{indexedPoints: p, Dim: d}, 100))
}

// plane sorts points along one dimension for kdtree partitioning
type plane struct {
	indexedPoints
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.indexedPoints[i].Compare(p.indexedPoints[j], p.Dim) < 0
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{indexedPoints: p.indexedPoints[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}

// Tree answers nearest-neighbor queries over a fixed set of points.
// It is read-only after construction and safe for concurrent queries.
type Tree struct {
	tree *kdtree.Tree
	size int
}

// NewTree builds a k-d tree over the points of c
func NewTree(c *Cloud) *Tree {
	return NewTreeFromPoints(c.Points())
}

// NewTreeFromPoints builds a k-d tree over points.
// An empty input yields a tree on which every query fails.
func NewTreeFromPoints(points []r3.Vector) *Tree {
	if len(points) == 0 {
		return &Tree{}
	}
	data := make(indexedPoints, len(points))
	for i, p := range points {
		data[i] = indexedPoint{Vector: p, index: i}
	}
	return &Tree{tree: kdtree.New(data, false), size: len(points)}
}

// Size returns the number of indexed points
func (t *Tree) Size() int {
	return t.size
}

// Nearest returns the index of and squared distance to the point closest to q.
// ok is false when the tree is empty.
func (t *Tree) Nearest(q r3.Vector) (index int, sqDist float64, ok bool) {
	if t.tree == nil {
		return 0, math.Inf(1), false
	}
	c, d := t.tree.Nearest(indexedPoint{Vector: q, index: -1})
	if c == nil {
		return 0, math.Inf(1), false
	}
	return c.(indexedPoint).index, d, true
}

// KNearest returns up to k neighbors of q ordered by increasing squared distance
func (t *Tree) KNearest(q r3.Vector, k int) (indices []int, sqDists []float64) {
	if t.tree == nil || k <= 0 {
		return nil, nil
	}

	keeper := kdtree.NewNKeeper(k)
	t.tree.NearestSet(keeper, indexedPoint{Vector: q, index: -1})

	found := make([]kdtree.ComparableDist, 0, k)
	for _, cd := range keeper.Heap {
		// NKeeper is seeded with empty sentinel entries
		if cd.Comparable == nil {
			continue
		}
		found = append(found, cd)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Dist < found[j].Dist })

	indices = make([]int, len(found))
	sqDists = make([]float64, len(found))
	for i, cd := range found {
		indices[i] = cd.Comparable.(indexedPoint).index
		sqDists[i] = cd.Dist
	}
	return indices, sqDists
}
