package classifier

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync/atomic"
    "testing"
    "time"

    "github.com/local/pdftrio/internal/breaker"
    "github.com/local/pdftrio/internal/confidence"
    "github.com/local/pdftrio/internal/extract"
    "github.com/local/pdftrio/internal/fasttext"
    "github.com/local/pdftrio/internal/textprep"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type fakeTextModel struct {
    got  string
    pred fasttext.Prediction
    err  error
}

func (f *fakeTextModel) Predict(text string) (fasttext.Prediction, error) {
    f.got = text
    return f.pred, f.err
}

func TestLinearJoinsTokens(t *testing.T) {
    m := &fakeTextModel{pred: fasttext.Prediction{Label: "__label__research", Probability: 0.9}}
    l := NewLinear(m)

    p, err := l.Predict(context.Background(), Input{Tokens: []string{"deep", "learning"}})
    require.NoError(t, err)
    assert.Equal(t, "deep learning", m.got)
    assert.Equal(t, confidence.Research, p.Label)
    assert.InDelta(t, 0.95, p.Confidence(), 1e-12)

    _, err = l.Predict(context.Background(), Input{})
    assert.Error(t, err)

    m.err = errors.New("boom")
    _, err = l.Predict(context.Background(), Input{Tokens: []string{"x"}})
    assert.Error(t, err)
    assert.False(t, IsRemote(err))
}

// tfServer fakes one TF-Serving model.
type tfServer struct {
    versionBody string
    predictBody string
    status      int
    lastPredict map[string]json.RawMessage
    calls       atomic.Int32
}

func (s *tfServer) handler(t *testing.T) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        s.calls.Add(1)
        if s.status != 0 {
            w.WriteHeader(s.status)
            _, _ = io.WriteString(w, `{"error":"down"}`)
            return
        }
        switch {
        case r.Method == http.MethodGet && r.URL.Path == "/models/test_model":
            _, _ = io.WriteString(w, s.versionBody)
        case r.Method == http.MethodPost && r.URL.Path == "/models/test_model:predict":
            assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
            assert.NoError(t, json.NewDecoder(r.Body).Decode(&s.lastPredict))
            _, _ = io.WriteString(w, s.predictBody)
        default:
            http.NotFound(w, r)
        }
    })
}

func newTF(t *testing.T, s *tfServer, b breaker.Breaker) *TFServing {
    srv := httptest.NewServer(s.handler(t))
    t.Cleanup(srv.Close)
    return NewTFServing("test_model", srv.URL+"/models/test_model", 2*time.Second, b)
}

func TestVersion(t *testing.T) {
    s := &tfServer{versionBody: `{"model_version_status":[{"version":"20190807","state":"AVAILABLE","status":{"error_code":"OK"}}]}`}
    c := newTF(t, s, nil)
    v, err := c.Version(context.Background())
    require.NoError(t, err)
    assert.Equal(t, "20190807", v)
}

func TestVersionNotAvailable(t *testing.T) {
    s := &tfServer{versionBody: `{"model_version_status":[{"version":"1","state":"LOADING"}]}`}
    _, err := newTF(t, s, nil).Version(context.Background())
    require.Error(t, err)
    assert.True(t, IsRemote(err))
    var ve *VersionError
    require.ErrorAs(t, err, &ve)
    assert.Equal(t, "LOADING", ve.State)
}

func TestVersionMalformedAndHTTPErrors(t *testing.T) {
    _, err := newTF(t, &tfServer{versionBody: `{}`}, nil).Version(context.Background())
    assert.ErrorIs(t, err, ErrMalformedResponse)

    _, err = newTF(t, &tfServer{status: http.StatusServiceUnavailable}, nil).Version(context.Background())
    var he *HTTPError
    require.ErrorAs(t, err, &he)
    assert.Equal(t, http.StatusServiceUnavailable, he.StatusCode)
    assert.True(t, IsRemote(err))

    c := NewTFServing("test_model", "http://127.0.0.1:1/models/test_model", time.Second, nil)
    _, err = c.Version(context.Background())
    assert.True(t, IsRemote(err))
}

func testVocab(t *testing.T) *textprep.Vocab {
    v, err := textprep.ReadVocab(strings.NewReader("[PAD]\n[UNK]\ndeep\nlearning\n"))
    require.NoError(t, err)
    return v
}

func TestBertRequestShape(t *testing.T) {
    s := &tfServer{predictBody: `{"outputs":[[0.2,0.8]]}`}
    b := NewBert(newTF(t, s, nil), testVocab(t))

    p, err := b.Predict(context.Background(), Input{Tokens: []string{"deep", "learning", "zebra"}})
    require.NoError(t, err)
    assert.Equal(t, confidence.Research, p.Label)
    assert.Equal(t, 0.8, p.Probability)

    var sig string
    require.NoError(t, json.Unmarshal(s.lastPredict["signature_name"], &sig))
    assert.Equal(t, "serving_default", sig)

    var in bertInputs
    require.NoError(t, json.Unmarshal(s.lastPredict["inputs"], &in))
    require.Len(t, in.InputIDs, 1)
    require.Len(t, in.InputIDs[0], BertSeqLen)
    assert.Equal(t, []int{2, 3, 1, 0}, in.InputIDs[0][:4])
    assert.Equal(t, []int{1, 1, 1, 0}, in.InputMask[0][:4])
    assert.Len(t, in.InputMask[0], BertSeqLen)
    assert.Equal(t, []int{0}, in.LabelIDs)
    assert.Len(t, in.SegmentIDs[0], BertSeqLen)
}

func TestBertFeaturesTruncates(t *testing.T) {
    ids := make([]int, 600)
    for i := range ids {
        ids[i] = 7
    }
    f := bertFeatures(ids)
    assert.Len(t, f.InputIDs[0], BertSeqLen)
    assert.Equal(t, 7, f.InputIDs[0][BertSeqLen-1])
    assert.Equal(t, 1, f.InputMask[0][BertSeqLen-1])
}

func TestBertPicksOther(t *testing.T) {
    s := &tfServer{predictBody: `{"outputs":[[0.7,0.3]]}`}
    p, err := NewBert(newTF(t, s, nil), testVocab(t)).Predict(context.Background(), Input{Tokens: []string{"deep"}})
    require.NoError(t, err)
    assert.Equal(t, confidence.Other, p.Label)
    assert.Equal(t, 0.7, p.Probability)
    assert.InDelta(t, 0.15, p.Confidence(), 1e-12)
}

func TestPredictMalformed(t *testing.T) {
    for _, body := range []string{`{}`, `{"outputs":[[0.5]]}`, `{"outputs":[["a","b"]]}`, `not json`} {
        s := &tfServer{predictBody: body}
        _, err := NewBert(newTF(t, s, nil), testVocab(t)).Predict(context.Background(), Input{Tokens: []string{"deep"}})
        assert.ErrorIs(t, err, ErrMalformedResponse, body)
        assert.True(t, IsRemote(err))
    }
}

func TestImageRequestShape(t *testing.T) {
    s := &tfServer{predictBody: `{"predictions":[[0.1,0.9]]}`}
    c := NewImage(newTF(t, s, nil))

    img := &extract.PageImage{Pixels: make([]float32, extract.ImageSize*extract.ImageSize*extract.ImageChannels)}
    img.Pixels[2] = 255
    p, err := c.Predict(context.Background(), Input{Image: img})
    require.NoError(t, err)
    assert.Equal(t, confidence.Research, p.Label)
    assert.Equal(t, 0.9, p.Probability)

    var instances [][][][]float32
    require.NoError(t, json.Unmarshal(s.lastPredict["instances"], &instances))
    require.Len(t, instances, 1)
    require.Len(t, instances[0], extract.ImageSize)
    require.Len(t, instances[0][0], extract.ImageSize)
    assert.Equal(t, []float32{0, 0, 255}, instances[0][0][0])

    _, err = c.Predict(context.Background(), Input{})
    assert.Error(t, err)
}

func TestBreakerFailsFast(t *testing.T) {
    s := &tfServer{status: http.StatusInternalServerError}
    b := breaker.NewLocal(time.Minute)
    c := NewImage(newTF(t, s, b))
    img := &extract.PageImage{Pixels: make([]float32, extract.ImageSize*extract.ImageSize*extract.ImageChannels)}

    _, err := c.Predict(context.Background(), Input{Image: img})
    var he *HTTPError
    require.ErrorAs(t, err, &he)
    assert.EqualValues(t, 1, s.calls.Load())

    _, err = c.Predict(context.Background(), Input{Image: img})
    assert.ErrorIs(t, err, breaker.ErrOpen)
    assert.True(t, IsRemote(err))
    assert.EqualValues(t, 1, s.calls.Load(), "open breaker must not reach the server")
}

func TestTrips(t *testing.T) {
    assert.True(t, trips(&HTTPError{StatusCode: 502}))
    assert.True(t, trips(&HTTPError{StatusCode: 429}))
    assert.False(t, trips(&HTTPError{StatusCode: 400}))
    assert.False(t, trips(ErrMalformedResponse))
    assert.False(t, trips(&VersionError{State: "LOADING"}))
    assert.True(t, trips(errors.New("dial tcp: connection refused")))
    assert.True(t, trips(context.DeadlineExceeded))
    assert.False(t, trips(nil))
}

func TestBreakerRecoversAfterClientError(t *testing.T) {
    statuses := []int{http.StatusServiceUnavailable, http.StatusNotFound, http.StatusOK}
    var n atomic.Int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        i := int(n.Add(1)) - 1
        if i >= len(statuses) {
            i = len(statuses) - 1
        }
        w.WriteHeader(statuses[i])
        _, _ = io.WriteString(w, `{"model_version_status":[{"version":"7","state":"AVAILABLE"}]}`)
    }))
    defer srv.Close()

    cooldown := 50 * time.Millisecond
    c := NewTFServing("test_model", srv.URL+"/models/test_model", 2*time.Second, breaker.NewLocal(cooldown))
    ctx := context.Background()

    _, err := c.Version(ctx)
    var he *HTTPError
    require.ErrorAs(t, err, &he)
    assert.Equal(t, http.StatusServiceUnavailable, he.StatusCode)

    time.Sleep(2 * cooldown)
    _, err = c.Version(ctx)
    require.ErrorAs(t, err, &he)
    assert.Equal(t, http.StatusNotFound, he.StatusCode, "half-open call reaches the server")

    time.Sleep(2 * cooldown)
    v, err := c.Version(ctx)
    require.NoError(t, err, "a 404 must not wedge the breaker")
    assert.Equal(t, "7", v)
    assert.EqualValues(t, 3, n.Load())
}
