package metrics

import (
    "io"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
    Init()
    Init()

    ObserveClassifier("bert", "success", 120*time.Millisecond)

    IncClassification("no_signal")
    IncExtractionFailure("image", "blank")
    ObserveStage("extract_text", time.Second)
    BreakerOpened("image_model")

    rec := httptest.NewRecorder()
    Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
    body, err := io.ReadAll(rec.Body)
    require.NoError(t, err)
    assert.Contains(t, string(body), "pdftrio_classifications_total")
    assert.Contains(t, string(body), `pdftrio_classifier_requests_total{classifier="bert",result="success"}`)
    assert.Contains(t, string(body), `pdftrio_breaker_events_total{action="opened",model="image_model"}`)
}
