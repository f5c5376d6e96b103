package fraud

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

// IsolationForestConfig holds the forest hyper-parameters
type IsolationForestConfig struct {
	NumTrees      int
	SampleSize    int     // max rows drawn per tree
	Contamination float64 // expected outlier share, sets the decision offset
	Seed          int64
}

// DefaultIsolationForestConfig mirrors the defaults the service ships with
func DefaultIsolationForestConfig() IsolationForestConfig {
	return IsolationForestConfig{
		NumTrees:      100,
		SampleSize:    256,
		Contamination: 0.1,
		Seed:          42,
	}
}

// IsolationForest is the default Estimator. Points that are isolated by
// few random splits get a more negative raw score.
type IsolationForest struct {
	config IsolationForestConfig
}

// NewIsolationForest creates an isolation forest estimator
func NewIsolationForest(config IsolationForestConfig) *IsolationForest {
	defaults := DefaultIsolationForestConfig()
	if config.NumTrees <= 0 {
		config.NumTrees = defaults.NumTrees
	}
	if config.SampleSize <= 0 {
		config.SampleSize = defaults.SampleSize
	}
	if config.Contamination < 0 || config.Contamination > 0.5 {
		config.Contamination = defaults.Contamination
	}
	return &IsolationForest{config: config}
}

// Name returns the model family name
func (f *IsolationForest) Name() string {
	return "IsolationForest"
}

// Fit grows the forest over rows. The same rows and seed always produce the
// same forest.
func (f *IsolationForest) Fit(rows [][]float64) (Model, error) {
	if len(rows) == 0 {
		return nil, errors.New("isolation forest: no rows to fit")
	}
	width := len(rows[0])
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("isolation forest: row %d has %d features, want %d", i, len(row), width)
		}
	}

	rng := rand.New(rand.NewSource(f.config.Seed))
	psi := f.config.SampleSize
	if psi > len(rows) {
		psi = len(rows)
	}
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	model := &forestModel{
		Trees:       make([]isolationTree, 0, f.config.NumTrees),
		SampleSize:  psi,
		NumFeatures: width,
	}

	for t := 0; t < f.config.NumTrees; t++ {
		sample := rng.Perm(len(rows))[:psi]
		b := &treeBuilder{rows: rows, rng: rng, maxDepth: maxDepth, width: width}
		b.build(sample, 0)
		model.Trees = append(model.Trees, isolationTree{Nodes: b.nodes})
	}

	// Offset so that the contamination share of training rows falls below zero.
	if f.config.Contamination > 0 {
		scores := make([]float64, len(rows))
		for i, row := range rows {
			scores[i] = model.scoreSample(row)
		}
		model.Offset = percentile(scores, f.config.Contamination*100)
	} else {
		model.Offset = -0.5
	}

	return model, nil
}

// Decode restores a model produced by Model.MarshalBinary
func (f *IsolationForest) Decode(data []byte) (Model, error) {
	var w forestWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, fmt.Errorf("isolation forest: decode: %w", err)
	}
	if len(w.Trees) == 0 || w.NumFeatures == 0 {
		return nil, errors.New("isolation forest: empty model")
	}
	return (*forestModel)(&w), nil
}

type forestNode struct {
	Feature   int // -1 marks a leaf
	Threshold float64
	Left      int32
	Right     int32
	Size      int
}

type isolationTree struct {
	Nodes []forestNode
}

type forestModel struct {
	Trees       []isolationTree
	SampleSize  int
	NumFeatures int
	Offset      float64
}

// forestWire is forestModel without methods, so gob encodes its fields
// instead of calling MarshalBinary again
type forestWire forestModel

// Decision returns scoreSample minus the contamination offset; negative
// values are outliers.
func (m *forestModel) Decision(x []float64) (float64, bool) {
	if len(x) < m.NumFeatures {
		return 0, false
	}
	raw := m.scoreSample(x) - m.Offset
	return raw, raw < 0
}

func (m *forestModel) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode((*forestWire)(m)); err != nil {
		return nil, fmt.Errorf("isolation forest: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// scoreSample is the negated anomaly score, in [-1, 0)
func (m *forestModel) scoreSample(x []float64) float64 {
	var total float64
	for i := range m.Trees {
		total += m.Trees[i].pathLength(x)
	}
	mean := total / float64(len(m.Trees))
	return -math.Pow(2, -mean/averagePathLength(m.SampleSize))
}

func (t *isolationTree) pathLength(x []float64) float64 {
	var depth float64
	idx := int32(0)
	for {
		n := &t.Nodes[idx]
		if n.Feature < 0 {
			return depth + averagePathLength(n.Size)
		}
		if x[n.Feature] < n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
		depth++
	}
}

type treeBuilder struct {
	rows     [][]float64
	rng      *rand.Rand
	maxDepth int
	width    int
	nodes    []forestNode
}

func (b *treeBuilder) build(idx []int, depth int) int32 {
	id := int32(len(b.nodes))
	b.nodes = append(b.nodes, forestNode{Feature: -1, Size: len(idx)})
	if depth >= b.maxDepth || len(idx) <= 1 {
		return id
	}

	// Only features that still vary inside this node can split it.
	type bounds struct {
		feature  int
		min, max float64
	}
	candidates := make([]bounds, 0, b.width)
	for f := 0; f < b.width; f++ {
		lo, hi := b.rows[idx[0]][f], b.rows[idx[0]][f]
		for _, r := range idx[1:] {
			v := b.rows[r][f]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			candidates = append(candidates, bounds{feature: f, min: lo, max: hi})
		}
	}
	if len(candidates) == 0 {
		return id
	}

	c := candidates[b.rng.Intn(len(candidates))]
	threshold := c.min + b.rng.Float64()*(c.max-c.min)

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, r := range idx {
		if b.rows[r][c.feature] < threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return id
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id] = forestNode{Feature: c.feature, Threshold: threshold, Left: l, Right: r, Size: len(idx)}
	return id
}

// averagePathLength is c(n), the mean unsuccessful-search path length of a
// binary search tree with n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// percentile uses linear interpolation between closest ranks
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
