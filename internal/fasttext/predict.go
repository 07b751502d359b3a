package fasttext

import (
	"errors"
	"math"
)

var ErrNoInput = errors.New("fasttext: no usable input")

// Prediction is the top label and its probability.
type Prediction struct {
	Label       string
	Probability float64
}

// Predict returns the most probable label for one line of text.
func (m *Model) Predict(text string) (Prediction, error) {
	ids := m.dict.line(text)
	if len(ids) == 0 {
		return Prediction{}, ErrNoInput
	}
	hidden := m.hidden(ids)

	var best int
	var prob float64
	switch m.args.loss {
	case lossHS:
		best, prob = m.predictTree(hidden)
	case lossNS, lossOVA:
		best, prob = m.predictSigmoid(hidden)
	default:
		best, prob = m.predictSoftmax(hidden)
	}
	if prob > 1 {
		prob = 1
	}
	return Prediction{Label: m.dict.entries[m.dict.nwords+int32(best)].word, Probability: prob}, nil
}

func (m *Model) hidden(ids []int32) []float32 {
	h := make([]float32, m.args.dim)
	for _, id := range ids {
		for k, v := range m.input.row(int(id)) {
			h[k] += v
		}
	}
	inv := 1 / float32(len(ids))
	for k := range h {
		h[k] *= inv
	}
	return h
}

func dot(a, b []float32) float64 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return float64(s)
}

func (m *Model) predictSoftmax(hidden []float32) (int, float64) {
	n := int(m.dict.nlabels)
	out := make([]float64, n)
	maxv := math.Inf(-1)
	for i := 0; i < n; i++ {
		out[i] = dot(m.output.row(i), hidden)
		if out[i] > maxv {
			maxv = out[i]
		}
	}
	var z float64
	best := 0
	for i := range out {
		out[i] = math.Exp(out[i] - maxv)
		z += out[i]
		if out[i] > out[best] {
			best = i
		}
	}
	return best, out[best] / z
}

func (m *Model) predictSigmoid(hidden []float32) (int, float64) {
	best, bestP := 0, -1.0
	for i := 0; i < int(m.dict.nlabels); i++ {
		p := sigmoid(dot(m.output.row(i), hidden))
		if p > bestP {
			best, bestP = i, p
		}
	}
	return best, bestP
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// Hierarchical softmax over the Huffman tree of label counts.

type treeNode struct {
	parent, left, right int
	count               int64
	binary              bool
}

func buildTree(counts []int64) []treeNode {
	osz := len(counts)
	if osz == 0 {
		return nil
	}
	tree := make([]treeNode, 2*osz-1)
	for i := range tree {
		tree[i] = treeNode{parent: -1, left: -1, right: -1, count: 1e15}
	}
	for i, c := range counts {
		tree[i].count = c
	}
	leaf, node := osz-1, osz
	for i := osz; i < 2*osz-1; i++ {
		var mini [2]int
		for j := 0; j < 2; j++ {
			if leaf >= 0 && tree[leaf].count < tree[node].count {
				mini[j] = leaf
				leaf--
			} else {
				mini[j] = node
				node++
			}
		}
		tree[i].left, tree[i].right = mini[0], mini[1]
		tree[i].count = tree[mini[0]].count + tree[mini[1]].count
		tree[mini[0]].parent, tree[mini[1]].parent = i, i
		tree[mini[1]].binary = true
	}
	return tree
}

func (m *Model) predictTree(hidden []float32) (int, float64) {
	osz := int(m.dict.nlabels)
	best, bestScore := 0, math.Inf(-1)
	var dfs func(node int, score float64)
	dfs = func(node int, score float64) {
		if score < bestScore {
			return
		}
		n := m.tree[node]
		if n.left == -1 && n.right == -1 {
			best, bestScore = node, score
			return
		}
		f := sigmoid(dot(m.output.row(node-osz), hidden))
		dfs(n.left, score+math.Log(1-f+1e-5))
		dfs(n.right, score+math.Log(f+1e-5))
	}
	dfs(len(m.tree)-1, 0)
	return best, math.Exp(bestScore)
}
