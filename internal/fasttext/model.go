// Package fasttext loads supervised fastText .bin models and predicts the top label
// for a line of text without cgo.
package fasttext

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	fileMagic      int32 = 793712314
	maxFileVersion int32 = 12
)

// Loss functions, as stored in the model args.
const (
	lossHS      int32 = 1
	lossNS      int32 = 2
	lossSoftmax int32 = 3
	lossOVA     int32 = 4
)

const modelSupervised int32 = 3

var ErrQuantized = errors.New("fasttext: quantized models are not supported")

type args struct {
	dim          int32
	ws           int32
	epoch        int32
	minCount     int32
	neg          int32
	wordNgrams   int32
	loss         int32
	model        int32
	bucket       int32
	minn         int32
	maxn         int32
	lrUpdateRate int32
	t            float64
}

type matrix struct {
	rows, cols int64
	data       []float32
}

func (m *matrix) row(i int) []float32 {
	off := int64(i) * m.cols
	return m.data[off : off+m.cols]
}

// Model is an immutable supervised model; Predict is safe for concurrent use.
type Model struct {
	args   args
	dict   *dictionary
	input  *matrix
	output *matrix
	tree   []treeNode
}

// Load reads a model from disk.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fasttext model: %w", err)
	}
	defer f.Close()
	m, err := Read(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}

// Read decodes a model in the fastText binary format.
func Read(r io.Reader) (*Model, error) {
	br := &binReader{r: r}

	magic, version := br.i32(), br.i32()
	if br.err != nil {
		return nil, fmt.Errorf("fasttext: read header: %w", br.err)
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("fasttext: bad magic %d", magic)
	}
	if version > maxFileVersion {
		return nil, fmt.Errorf("fasttext: unsupported version %d", version)
	}

	a := args{
		dim: br.i32(), ws: br.i32(), epoch: br.i32(), minCount: br.i32(),
		neg: br.i32(), wordNgrams: br.i32(), loss: br.i32(), model: br.i32(),
		bucket: br.i32(), minn: br.i32(), maxn: br.i32(), lrUpdateRate: br.i32(),
		t: br.f64(),
	}
	if br.err != nil {
		return nil, fmt.Errorf("fasttext: read args: %w", br.err)
	}
	if a.model != modelSupervised {
		return nil, fmt.Errorf("fasttext: model type %d is not supervised", a.model)
	}
	// Old supervised models never used char ngrams.
	if version == 11 {
		a.maxn = 0
	}

	dict, err := readDictionary(br, a)
	if err != nil {
		return nil, err
	}

	if quant := br.flag(); br.err == nil && quant {
		return nil, ErrQuantized
	}
	input := br.matrix()
	if quant := br.flag(); br.err == nil && quant {
		return nil, ErrQuantized
	}
	output := br.matrix()
	if br.err != nil {
		return nil, fmt.Errorf("fasttext: read matrices: %w", br.err)
	}

	if input.cols != int64(a.dim) || output.cols != int64(a.dim) {
		return nil, fmt.Errorf("fasttext: matrix width %d/%d does not match dim %d", input.cols, output.cols, a.dim)
	}
	if input.rows < int64(dict.nwords)+int64(a.bucket) {
		return nil, fmt.Errorf("fasttext: input matrix has %d rows, need %d", input.rows, int64(dict.nwords)+int64(a.bucket))
	}
	wantOut := int64(dict.nlabels)
	if a.loss == lossHS {
		wantOut = int64(dict.nlabels) - 1
	}
	if output.rows < wantOut {
		return nil, fmt.Errorf("fasttext: output matrix has %d rows, need %d", output.rows, wantOut)
	}
	if dict.nlabels == 0 {
		return nil, fmt.Errorf("fasttext: model has no labels")
	}

	m := &Model{args: a, dict: dict, input: input, output: output}
	if a.loss == lossHS {
		m.tree = buildTree(dict.labelCounts())
	}
	return m, nil
}

// Labels lists the model's labels in output order.
func (m *Model) Labels() []string { return m.dict.labels() }

// Dim is the embedding width.
func (m *Model) Dim() int { return int(m.args.dim) }

type binReader struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (b *binReader) read(n int) []byte {
	if b.err != nil {
		return b.buf[:n]
	}
	_, b.err = io.ReadFull(b.r, b.buf[:n])
	return b.buf[:n]
}

func (b *binReader) i32() int32 { return int32(binary.LittleEndian.Uint32(b.read(4))) }
func (b *binReader) i64() int64 { return int64(binary.LittleEndian.Uint64(b.read(8))) }
func (b *binReader) i8() int8   { return int8(b.read(1)[0]) }
func (b *binReader) flag() bool { return b.read(1)[0] != 0 }

func (b *binReader) f64() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b.read(8)))
}

// cstring reads a NUL-terminated string.
func (b *binReader) cstring() string {
	var s []byte
	for b.err == nil {
		c := b.read(1)[0]
		if b.err != nil || c == 0 {
			break
		}
		s = append(s, c)
	}
	return string(s)
}

func (b *binReader) matrix() *matrix {
	m := &matrix{rows: b.i64(), cols: b.i64()}
	if b.err != nil {
		return m
	}
	if m.rows < 0 || m.cols < 0 || m.rows*m.cols > 1<<32 {
		b.err = fmt.Errorf("implausible matrix shape %dx%d", m.rows, m.cols)
		return m
	}
	m.data = make([]float32, m.rows*m.cols)
	b.err = binary.Read(b.r, binary.LittleEndian, m.data)
	return m
}
