package classifier

import (
    "context"
    "errors"
    "fmt"
    "strings"
)

// ErrMalformedResponse is returned when a model server answers with JSON we cannot use.
var ErrMalformedResponse = errors.New("malformed model response")

// HTTPError is a non-2xx answer from a model server.
type HTTPError struct {
    StatusCode int
    Body       string
    Model      string
}

func (e *HTTPError) Error() string {
    return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Model, e.Body)
}

// VersionError means the model server reported the model in a state other than AVAILABLE.
type VersionError struct {
    Model string
    State string
}

func (e *VersionError) Error() string {
    return fmt.Sprintf("model %s is %s, not AVAILABLE", e.Model, e.State)
}

// RemoteModelError wraps every failure of a remote model call. It halts the request.
type RemoteModelError struct {
    Model string
    Op    string // "version" or "predict"
    Err   error
}

func (e *RemoteModelError) Error() string {
    return fmt.Sprintf("remote model %s %s: %v", e.Model, e.Op, e.Err)
}

func (e *RemoteModelError) Unwrap() error { return e.Err }

// IsRemote reports whether err came from a remote model.
func IsRemote(err error) bool {
    var rme *RemoteModelError
    return errors.As(err, &rme)
}

// trips reports whether err says the server is unhealthy, as opposed to a bad request
// or a response we could not parse.
func trips(err error) bool {
    if err == nil {
        return false
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return true
    }
    var httpErr *HTTPError
    if errors.As(err, &httpErr) {
        return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
    }
    if errors.Is(err, ErrMalformedResponse) {
        return false
    }
    var verErr *VersionError
    if errors.As(err, &verErr) {
        return false
    }
    errStr := strings.ToLower(err.Error())
    return strings.Contains(errStr, "connection refused") ||
        strings.Contains(errStr, "connection reset") ||
        strings.Contains(errStr, "timeout") ||
        strings.Contains(errStr, "no such host") ||
        strings.Contains(errStr, "eof")
}
