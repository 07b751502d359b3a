package classifier

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/local/pdftrio/internal/breaker"
    "github.com/local/pdftrio/internal/confidence"
    "github.com/rs/zerolog/log"
    "github.com/tidwall/gjson"
)

const signatureName = "serving_default"

// maxErrorBody caps how much of an error response ends up in HTTPError.
const maxErrorBody = 512

// TFServing talks to one model on a TensorFlow Serving REST endpoint.
type TFServing struct {
    name    string
    url     string
    http    *http.Client
    breaker breaker.Breaker
}

// NewTFServing returns a client for the model at modelURL (".../v1/models/<name>"-style
// base, without ":predict"). A nil breaker disables breaking.
func NewTFServing(name, modelURL string, timeout time.Duration, b breaker.Breaker) *TFServing {
    if timeout <= 0 {
        timeout = 30 * time.Second
    }
    return &TFServing{name: name, url: modelURL, http: &http.Client{Timeout: timeout}, breaker: b}
}

func (c *TFServing) ModelName() string { return c.name }
func (c *TFServing) URL() string       { return c.url }

// Version asks the server which model version is loaded.
func (c *TFServing) Version(ctx context.Context) (string, error) {
    body, err := c.do(ctx, http.MethodGet, c.url, nil)
    if err != nil {
        return "", &RemoteModelError{Model: c.name, Op: "version", Err: err}
    }
    status := gjson.GetBytes(body, "model_version_status.0")
    if !status.Exists() {
        return "", &RemoteModelError{Model: c.name, Op: "version", Err: fmt.Errorf("%w: no model_version_status", ErrMalformedResponse)}
    }
    if state := status.Get("state").String(); state != "AVAILABLE" {
        return "", &RemoteModelError{Model: c.name, Op: "version", Err: &VersionError{Model: c.name, State: state}}
    }
    version := status.Get("version").String()
    if version == "" {
        return "", &RemoteModelError{Model: c.name, Op: "version", Err: fmt.Errorf("%w: empty version", ErrMalformedResponse)}
    }
    return version, nil
}

type predictRequest struct {
    SignatureName string `json:"signature_name"`
    Inputs        any    `json:"inputs,omitempty"`
    Instances     any    `json:"instances,omitempty"`
}

// predict posts req to <url>:predict and returns the first example's [other, research]
// vector found under key ("outputs" or "predictions").
func (c *TFServing) predict(ctx context.Context, req predictRequest, key string) (RawPrediction, error) {
    payload, err := json.Marshal(req)
    if err != nil {
        return RawPrediction{}, &RemoteModelError{Model: c.name, Op: "predict", Err: err}
    }
    body, err := c.do(ctx, http.MethodPost, c.url+":predict", payload)
    if err != nil {
        return RawPrediction{}, &RemoteModelError{Model: c.name, Op: "predict", Err: err}
    }
    vec := gjson.GetBytes(body, key+".0").Array()
    if len(vec) != 2 || vec[0].Type != gjson.Number || vec[1].Type != gjson.Number {
        return RawPrediction{}, &RemoteModelError{Model: c.name, Op: "predict", Err: fmt.Errorf("%w: %s.0 is not a two-element vector", ErrMalformedResponse, key)}
    }
    return pickLarger(vec[0].Float(), vec[1].Float()), nil
}

// pickLarger selects the winning class from an [other, research] vector.
func pickLarger(other, research float64) RawPrediction {
    if research > other {
        return RawPrediction{Label: confidence.Research, Probability: research}
    }
    return RawPrediction{Label: confidence.Other, Probability: other}
}

func (c *TFServing) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
    if c.breaker != nil {
        if err := c.breaker.Allow(ctx, c.name); err != nil {
            return nil, err
        }
    }
    body, err := c.roundTrip(ctx, method, url, payload)
    if c.breaker != nil {
        // Every admitted call settles the breaker, or a half-open permit stays taken.
        if trips(err) {
            c.breaker.Failure(ctx, c.name)
        } else {
            c.breaker.Success(ctx, c.name)
        }
    }
    return body, err
}

func (c *TFServing) roundTrip(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
    var rdr io.Reader
    if payload != nil {
        rdr = bytes.NewReader(payload)
    }
    req, err := http.NewRequestWithContext(ctx, method, url, rdr)
    if err != nil {
        return nil, err
    }
    if payload != nil {
        req.Header.Set("Content-Type", "application/json")
    }

    start := time.Now()
    resp, err := c.http.Do(req)
    if err != nil {
        return nil, err
    }
    defer resp.Body.Close()

    body, err := io.ReadAll(resp.Body)
    if err != nil {
        return nil, err
    }
    log.Debug().Str("model", c.name).Str("method", method).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("tf-serving call")

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        snippet := body
        if len(snippet) > maxErrorBody {
            snippet = snippet[:maxErrorBody]
        }
        return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(snippet), Model: c.name}
    }
    return body, nil
}
