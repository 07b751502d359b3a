package classifier

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/local/pdftrio/internal/confidence"
    "github.com/local/pdftrio/internal/fasttext"
    "github.com/local/pdftrio/internal/metrics"
    "github.com/local/pdftrio/internal/textprep"
    "github.com/rs/zerolog/log"
)

// BertSeqLen is the fixed sequence length of the transformer model.
const BertSeqLen = 512

var errNoInput = errors.New("no input for classifier")

func observe(kind Kind, start time.Time, err error) {
    result := "success"
    if err != nil {
        result = "error"
    }
    metrics.ObserveClassifier(string(kind), result, time.Since(start))
}

// TextModel is the local linear model; *fasttext.Model implements it.
type TextModel interface {
    Predict(text string) (fasttext.Prediction, error)
}

// LinearClassifier runs the local fastText model over the joined token sequence.
type LinearClassifier struct {
    model TextModel
}

func NewLinear(model TextModel) *LinearClassifier { return &LinearClassifier{model: model} }

func (l *LinearClassifier) Kind() Kind { return Linear }

func (l *LinearClassifier) Predict(_ context.Context, in Input) (p RawPrediction, err error) {
    start := time.Now()
    defer func() { observe(Linear, start, err) }()

    if len(in.Tokens) == 0 {
        return RawPrediction{}, errNoInput
    }
    pred, err := l.model.Predict(strings.Join(in.Tokens, " "))
    if err != nil {
        return RawPrediction{}, fmt.Errorf("linear predict: %w", err)
    }
    log.Debug().Str("trace_id", in.TraceID).Str("label", pred.Label).Float64("probability", pred.Probability).Msg("linear classify")
    return RawPrediction{Label: confidence.ParseLabel(pred.Label), Probability: pred.Probability}, nil
}

// BertClassifier sends WordPiece ids to the remote transformer model.
type BertClassifier struct {
    client *TFServing
    vocab  *textprep.Vocab
}

func NewBert(client *TFServing, vocab *textprep.Vocab) *BertClassifier {
    return &BertClassifier{client: client, vocab: vocab}
}

func (b *BertClassifier) Kind() Kind                                  { return Bert }
func (b *BertClassifier) ModelName() string                           { return b.client.ModelName() }
func (b *BertClassifier) Version(ctx context.Context) (string, error) { return b.client.Version(ctx) }

type bertInputs struct {
    InputIDs   [][]int `json:"input_ids"`
    InputMask  [][]int `json:"input_mask"`
    LabelIDs   []int   `json:"label_ids"`
    SegmentIDs [][]int `json:"segment_ids"`
}

// bertFeatures pads (or truncates) ids to BertSeqLen and builds the matching mask.
func bertFeatures(ids []int) bertInputs {
    if len(ids) > BertSeqLen {
        ids = ids[:BertSeqLen]
    }
    inputIDs := make([]int, BertSeqLen)
    mask := make([]int, BertSeqLen)
    copy(inputIDs, ids)
    for i := range ids {
        mask[i] = 1
    }
    return bertInputs{
        InputIDs:   [][]int{inputIDs},
        InputMask:  [][]int{mask},
        LabelIDs:   []int{0},
        SegmentIDs: [][]int{make([]int, BertSeqLen)},
    }
}

func (b *BertClassifier) Predict(ctx context.Context, in Input) (p RawPrediction, err error) {
    start := time.Now()
    defer func() { observe(Bert, start, err) }()

    if len(in.Tokens) == 0 {
        return RawPrediction{}, errNoInput
    }
    ids := b.vocab.ConvertToIDs(textprep.TrimTokens(in.Tokens, BertSeqLen))
    req := predictRequest{SignatureName: signatureName, Inputs: bertFeatures(ids)}
    p, err = b.client.predict(ctx, req, "outputs")
    if err != nil {
        return RawPrediction{}, err
    }
    log.Debug().Str("trace_id", in.TraceID).Str("label", string(p.Label)).Float64("probability", p.Probability).Msg("bert classify")
    return p, nil
}

// ImageClassifier sends the rendered first page to the remote image model.
type ImageClassifier struct {
    client *TFServing
}

func NewImage(client *TFServing) *ImageClassifier { return &ImageClassifier{client: client} }

func (c *ImageClassifier) Kind() Kind                                  { return Image }
func (c *ImageClassifier) ModelName() string                           { return c.client.ModelName() }
func (c *ImageClassifier) Version(ctx context.Context) (string, error) { return c.client.Version(ctx) }

func (c *ImageClassifier) Predict(ctx context.Context, in Input) (p RawPrediction, err error) {
    start := time.Now()
    defer func() { observe(Image, start, err) }()

    if in.Image == nil {
        return RawPrediction{}, errNoInput
    }
    req := predictRequest{SignatureName: signatureName, Instances: [][][][]float32{in.Image.Nested()}}
    p, err = c.client.predict(ctx, req, "predictions")
    if err != nil {
        return RawPrediction{}, err
    }
    log.Debug().Str("trace_id", in.TraceID).Str("label", string(p.Label)).Float64("probability", p.Probability).Msg("image classify")
    return p, nil
}
