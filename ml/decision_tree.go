package ml

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
)

// DecisionTree is a CART classifier using Gini impurity. Nodes are stored
// flat, children referenced by index, so the tree serialises as a slice.
type DecisionTree struct {
	params  TreeParams
	classes []int
	nodes   []TreeNode
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	IsLeaf     bool      `json:"is_leaf"`
	Dist       []float64 `json:"dist,omitempty"`
}

// TreeParams controls tree growth. Zero MaxDepth grows until leaves are pure
// or too small to split; zero MaxFeatures considers every feature.
type TreeParams struct {
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
}

func NewDecisionTree(params TreeParams) *DecisionTree {
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	return &DecisionTree{params: params}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	return dt.fit(features, labels, UniqueLabels(labels), nil)
}

// fit grows the tree over a fixed class set so that trees trained on
// bootstrap samples agree on the meaning of each distribution slot.
func (dt *DecisionTree) fit(features [][]float64, labels []int, classes []int, rng *rand.Rand) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if len(classes) == 0 {
		return errors.New("no classes")
	}
	if dt.params.MinSamplesSplit < 2 {
		dt.params.MinSamplesSplit = 2
	}

	classIndex := make(map[int]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}
	encoded := make([]int, len(labels))
	for i, label := range labels {
		idx, ok := classIndex[label]
		if !ok {
			return errors.Newf("label %d not in class set", label)
		}
		encoded[i] = idx
	}
	width := len(features[0])
	for _, row := range features {
		if len(row) != width {
			return errors.New("ragged feature matrix")
		}
	}

	b := &treeBuilder{
		x:        features,
		y:        encoded,
		classes:  classes,
		params:   dt.params,
		rng:      rng,
		features: width,
	}
	all := make([]int, len(features))
	for i := range all {
		all[i] = i
	}
	dt.classes = append([]int(nil), classes...)
	dt.nodes = b.buildNode(all, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, 0, err
	}
	return leaf.ClassLabel, leaf.Dist[argmax(leaf.Dist)], nil
}

// PredictProba returns class shares at the reached leaf, ordered like Classes.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return leaf.Dist, nil
}

func (dt *DecisionTree) Classes() []int {
	return dt.classes
}

func (dt *DecisionTree) leaf(features []float64) (*TreeNode, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := &dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

type treePayload struct {
	Classes []int      `json:"classes"`
	Nodes   []TreeNode `json:"nodes"`
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(treePayload{Classes: dt.classes, Nodes: dt.nodes})
}

func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var payload treePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	dt.classes = payload.Classes
	dt.nodes = payload.Nodes
	return nil
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(dt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dt)
}

type treeBuilder struct {
	x        [][]float64
	y        []int
	classes  []int
	params   TreeParams
	rng      *rand.Rand
	features int
}

func (b *treeBuilder) buildNode(idx []int, depth int) []TreeNode {
	counts := b.counts(idx)
	leaf := b.leafNode(counts, len(idx))

	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return []TreeNode{leaf}
	}
	if len(idx) < b.params.MinSamplesSplit || isPure(counts) {
		return []TreeNode{leaf}
	}

	bestFeature, threshold, ok := b.findBestSplit(idx)
	if !ok {
		return []TreeNode{leaf}
	}

	leftIdx, rightIdx := b.splitIndices(idx, bestFeature, threshold)
	if len(leftIdx) == 0 || len(rightIdx) == 0 {
		return []TreeNode{leaf}
	}

	leftNodes := b.buildNode(leftIdx, depth+1)
	rightNodes := b.buildNode(rightIdx, depth+1)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: leaf.ClassLabel,
		IsLeaf:     false,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// offsetChildren rebases child indices of a subtree placed at offset.
func offsetChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func (b *treeBuilder) leafNode(counts []int, total int) TreeNode {
	dist := make([]float64, len(counts))
	for i, c := range counts {
		dist[i] = float64(c) / float64(total)
	}
	return TreeNode{
		FeatureIdx: -1,
		Threshold:  0,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: b.classes[argmaxInt(counts)],
		IsLeaf:     true,
		Dist:       dist,
	}
}

func (b *treeBuilder) counts(idx []int) []int {
	counts := make([]int, len(b.classes))
	for _, i := range idx {
		counts[b.y[i]]++
	}
	return counts
}

func (b *treeBuilder) candidateFeatures() []int {
	if b.rng == nil || b.params.MaxFeatures <= 0 || b.params.MaxFeatures >= b.features {
		all := make([]int, b.features)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(b.features)[:b.params.MaxFeatures]
}

// findBestSplit scans every midpoint between distinct sorted values of each
// candidate feature and keeps the lowest weighted Gini. Ties keep the first
// candidate found, which keeps training reproducible.
func (b *treeBuilder) findBestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	sorted := make([]int, n)
	left := make([]int, len(b.classes))
	right := make([]int, len(b.classes))
	total := b.counts(idx)

	for _, featureIdx := range b.candidateFeatures() {
		copy(sorted, idx)
		f := featureIdx
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})
		for c := range left {
			left[c] = 0
			right[c] = total[c]
		}

		for i := 0; i < n-1; i++ {
			cls := b.y[sorted[i]]
			left[cls]++
			right[cls]--

			current := b.x[sorted[i]][f]
			next := b.x[sorted[i+1]][f]
			if current == next {
				continue
			}
			nl := float64(i + 1)
			nr := float64(n - i - 1)
			impurity := (nl*gini(left, nl) + nr*gini(right, nr)) / float64(n)
			if impurity < bestImpurity-1e-12 {
				bestImpurity = impurity
				bestFeature = f
				bestThreshold = current + (next-current)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) splitIndices(idx []int, featureIdx int, threshold float64) ([]int, []int) {
	leftIdx := make([]int, 0, len(idx)/2)
	rightIdx := make([]int, 0, len(idx)/2)
	for _, i := range idx {
		if b.x[i][featureIdx] <= threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	return leftIdx, rightIdx
}

func gini(counts []int, total float64) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / total
		impurity -= prob * prob
	}
	return impurity
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// UniqueLabels returns the sorted distinct labels.
func UniqueLabels(labels []int) []int {
	seen := make(map[int]bool)
	out := make([]int, 0)
	for _, label := range labels {
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	sort.Ints(out)
	return out
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func argmaxInt(values []int) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
