package fasttext

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	word  string
	count int64
	kind  int8
}

type testModel struct {
	version int32
	loss    int32
	quant   bool
	entries []testEntry
	nwords  int32
	input   [][]float32
	output  [][]float32
}

func (tm testModel) bytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := func(v any) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }

	w(fileMagic)
	w(tm.version)
	// dim ws epoch minCount neg wordNgrams loss model bucket minn maxn lrUpdateRate t
	for _, v := range []int32{2, 5, 5, 1, 5, 1, tm.loss, modelSupervised, 0, 0, 0, 100} {
		w(v)
	}
	w(1e-4)

	w(int32(len(tm.entries)))
	w(tm.nwords)
	w(int32(len(tm.entries)) - tm.nwords)
	w(int64(100))
	w(int64(0))
	for _, e := range tm.entries {
		buf.WriteString(e.word)
		buf.WriteByte(0)
		w(e.count)
		w(e.kind)
	}

	writeMatrix := func(rows [][]float32) {
		w(tm.quant)
		w(int64(len(rows)))
		w(int64(2))
		for _, r := range rows {
			w(r)
		}
	}
	writeMatrix(tm.input)
	writeMatrix(tm.output)
	return buf.Bytes()
}

func sampleModel(loss int32) testModel {
	return testModel{
		version: 12,
		loss:    loss,
		entries: []testEntry{
			{eos, 10, entryWord},
			{"deep", 5, entryWord},
			{"learning", 5, entryWord},
			{"recipe", 3, entryWord},
			{"__label__research", 7, entryLabel},
			{"__label__other", 3, entryLabel},
		},
		nwords: 4,
		input: [][]float32{
			{0, 0},
			{1, 0},
			{1, 0},
			{-1, 0},
		},
		output: [][]float32{
			{2, 0},
			{0, 0},
		},
	}
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func TestPredictSoftmax(t *testing.T) {
	m, err := Read(bytes.NewReader(sampleModel(lossSoftmax).bytes(t)))
	require.NoError(t, err)
	assert.Equal(t, []string{"__label__research", "__label__other"}, m.Labels())
	assert.Equal(t, 2, m.Dim())

	// hidden = (1+1+0)/3 -> research logit 4/3, other 0
	p, err := m.Predict("deep learning")
	require.NoError(t, err)
	assert.Equal(t, "__label__research", p.Label)
	assert.InDelta(t, logistic(4.0/3.0), p.Probability, 1e-6)

	// hidden = (-1+0)/2 -> research logit -1
	p, err = m.Predict("recipe")
	require.NoError(t, err)
	assert.Equal(t, "__label__other", p.Label)
	assert.InDelta(t, logistic(1), p.Probability, 1e-6)
}

func TestPredictUnknownWordsOnlyUsesEOS(t *testing.T) {
	m, err := Read(bytes.NewReader(sampleModel(lossSoftmax).bytes(t)))
	require.NoError(t, err)

	p, err := m.Predict("zebra quokka")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.Probability, 1e-6)
}

func TestPredictOneVsAll(t *testing.T) {
	m, err := Read(bytes.NewReader(sampleModel(lossOVA).bytes(t)))
	require.NoError(t, err)

	p, err := m.Predict("deep learning")
	require.NoError(t, err)
	assert.Equal(t, "__label__research", p.Label)
	assert.InDelta(t, logistic(4.0/3.0), p.Probability, 1e-6)
}

func TestPredictHierarchicalSoftmax(t *testing.T) {
	tm := sampleModel(lossHS)
	tm.output = [][]float32{{2, 0}}
	m, err := Read(bytes.NewReader(tm.bytes(t)))
	require.NoError(t, err)

	// Huffman tree over counts [7,3]: root's left child is label 1 (other), right is label 0.
	p, err := m.Predict("deep learning")
	require.NoError(t, err)
	assert.Equal(t, "__label__research", p.Label)
	assert.InDelta(t, logistic(4.0/3.0)+1e-5, p.Probability, 1e-4)
}

func TestRejectsQuantized(t *testing.T) {
	tm := sampleModel(lossSoftmax)
	tm.quant = true
	_, err := Read(bytes.NewReader(tm.bytes(t)))
	assert.ErrorIs(t, err, ErrQuantized)
}

func TestRejectsBadHeader(t *testing.T) {
	raw := sampleModel(lossSoftmax).bytes(t)
	raw[0] ^= 0xff
	_, err := Read(bytes.NewReader(raw))
	assert.ErrorContains(t, err, "bad magic")

	_, err = Read(bytes.NewReader(raw[:3]))
	assert.Error(t, err)
}

func TestRejectsTruncated(t *testing.T) {
	raw := sampleModel(lossSoftmax).bytes(t)
	_, err := Read(bytes.NewReader(raw[:len(raw)-4]))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, sampleModel(lossSoftmax).bytes(t), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Labels(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "nope.bin"))
	assert.Error(t, err)
}

func TestHashMatchesReference(t *testing.T) {
	// FNV-1a offset basis for the empty string.
	assert.Equal(t, uint32(2166136261), hash(""))
	assert.Equal(t, uint32(0xe40c292c), hash("a"))
}
