// Package server exposes the classifier over HTTP.
package server

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "html"
    "io"
    "mime"
    "net/http"
    "strings"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/pdftrio/internal/classifier"
    "github.com/local/pdftrio/internal/ensemble"
    "github.com/local/pdftrio/internal/filetype"
    "github.com/local/pdftrio/internal/limiter"
    "github.com/local/pdftrio/internal/logger"
    "github.com/local/pdftrio/internal/metrics"
    "github.com/local/pdftrio/internal/source"
    "github.com/local/pdftrio/internal/statuscheck"
)

const (
    defaultMode      = "auto"
    defaultMaxUpload = 64 << 20
    uploadField      = "pdf_content"
    urlField         = "pdf_url"
)

type Classifier interface {
    Classify(ctx context.Context, modeSpec string, pdf []byte, traceID string) (*ensemble.Result, error)
}

type Fetcher interface {
    Supported(ref string) bool
    Fetch(ctx context.Context, ref string) ([]byte, error)
}

type Readiness interface {
    Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
    Classifier Classifier
    Fetcher    Fetcher   // nil disables pdf_url
    Status     Readiness // nil reports ready
    Detector   *filetype.Detector
    Limiter    *limiter.Inflight // nil is unlimited
    MaxUpload  int64
}

type Server struct {
    deps   Dependencies
    routes []route
}

type route struct {
    pattern string
    doc     string
    handler http.HandlerFunc
}

func New(deps Dependencies) *Server {
    if deps.Detector == nil {
        deps.Detector = filetype.New()
    }
    if deps.MaxUpload <= 0 {
        deps.MaxUpload = defaultMaxUpload
    }
    s := &Server{deps: deps}
    s.routes = []route{
        {"GET /{$}", "liveness, answers okay!", s.handleRoot},
        {"GET /api/list", "this listing", s.handleList},
        {"GET /health", "liveness, answers ok", s.handleHealth},
        {"GET /ready", "readiness of model servers, Redis and extraction tools", s.handleReady},
        {"POST /classify/research-pub", "classify a PDF with the auto policy", s.handleClassify},
        {"POST /classify/research-pub/{ctype}", "classify a PDF; ctype is a comma separated list of auto, image, linear, bert, all. Send multipart pdf_content or pdf_url", s.handleClassify},
    }
    return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
    for _, rt := range s.routes {
        mux.HandleFunc(rt.pattern, rt.handler)
    }
    mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
    mux := http.NewServeMux()
    s.RegisterRoutes(mux)
    return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
    _, _ = w.Write([]byte("okay!"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write([]byte("ok"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
    var b strings.Builder
    b.WriteString("<html><body><h1>pdftrio routes</h1><ul>\n")
    for _, rt := range s.routes {
        fmt.Fprintf(&b, "<li><code>%s</code> %s</li>\n", html.EscapeString(rt.pattern), html.EscapeString(rt.doc))
    }
    b.WriteString("<li><code>GET /metrics</code> prometheus metrics</li>\n</ul></body></html>\n")
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    _, _ = w.Write([]byte(b.String()))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
    if s.deps.Status == nil {
        writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
        return
    }
    sum := s.deps.Status.Summary(r.Context())
    code := http.StatusOK
    if !sum.Ready {
        code = http.StatusServiceUnavailable
    }
    writeJSON(w, code, sum)
}

type errorBody struct {
    Status string `json:"status"`
    Error  string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
    writeJSON(w, code, errorBody{Status: ensemble.StatusError, Error: msg})
}

// requestError carries the HTTP status for a bad input.
type requestError struct {
    code int
    msg  string
}

func (e *requestError) Error() string { return e.msg }

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
    release, ok := s.deps.Limiter.Allow("classify")
    if !ok {
        w.Header().Set("Retry-After", "1")
        writeError(w, http.StatusServiceUnavailable, "too many classifications in flight")
        return
    }
    defer release()

    mode := r.PathValue("ctype")
    if mode == "" {
        mode = defaultMode
    }

    pdf, traceID, err := s.readInput(w, r)
    if err != nil {
        var re *requestError
        if errors.As(err, &re) {
            writeError(w, re.code, re.msg)
            return
        }
        writeError(w, http.StatusBadRequest, err.Error())
        return
    }
    lg := logger.WithTrace(traceID)

    if err := s.deps.Detector.RequirePDF(pdf, traceID); err != nil {
        lg.Info().Err(err).Msg("rejected upload")
        writeError(w, http.StatusUnsupportedMediaType, err.Error())
        return
    }

    lg.Debug().Str("mode", mode).Int("bytes", len(pdf)).Msg("classify request")
    res, err := s.deps.Classifier.Classify(r.Context(), mode, pdf, traceID)
    if err != nil {
        if res == nil || !classifier.IsRemote(err) {
            lg.Error().Err(err).Msg("classification failed")
            writeError(w, http.StatusInternalServerError, err.Error())
            return
        }
        writeJSON(w, http.StatusBadGateway, res)
        return
    }
    if res.Err() != nil {
        writeJSON(w, http.StatusBadRequest, res)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

// readInput returns the PDF bytes and the trace id. Multipart uploads use the client
// filename as trace id; everything else gets a fresh uuid.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
    r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUpload+1<<20)
    ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

    var ref string
    switch ct {
    case "multipart/form-data":
        if err := r.ParseMultipartForm(32 << 20); err != nil {
            var tooBig *http.MaxBytesError
            if errors.As(err, &tooBig) {
                return nil, "", &requestError{http.StatusRequestEntityTooLarge, "upload too large"}
            }
            return nil, "", &requestError{http.StatusBadRequest, "invalid multipart form"}
        }
        file, hdr, err := r.FormFile(uploadField)
        if err == nil {
            defer file.Close()
            data, err := io.ReadAll(io.LimitReader(file, s.deps.MaxUpload+1))
            if err != nil {
                return nil, "", &requestError{http.StatusBadRequest, "read upload failed"}
            }
            if int64(len(data)) > s.deps.MaxUpload {
                return nil, "", &requestError{http.StatusRequestEntityTooLarge, "upload too large"}
            }
            if len(data) == 0 {
                return nil, "", &requestError{http.StatusBadRequest, "empty " + uploadField}
            }
            traceID := hdr.Filename
            if traceID == "" {
                traceID = uuid.NewString()
            }
            return data, traceID, nil
        }
        ref = r.FormValue(urlField)
    case "application/x-www-form-urlencoded":
        ref = r.FormValue(urlField)
    case "application/json":
        var body struct {
            PDFURL string `json:"pdf_url"`
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            return nil, "", &requestError{http.StatusBadRequest, "invalid json"}
        }
        ref = body.PDFURL
    }

    if ref == "" {
        return nil, "", &requestError{http.StatusBadRequest, "missing " + uploadField + " or " + urlField}
    }
    return s.fetch(r.Context(), ref)
}

func (s *Server) fetch(ctx context.Context, ref string) ([]byte, string, error) {
    if s.deps.Fetcher == nil || !s.deps.Fetcher.Supported(ref) {
        return nil, "", &requestError{http.StatusBadRequest, "unsupported " + urlField + ": " + ref}
    }
    traceID := uuid.NewString()
    data, err := s.deps.Fetcher.Fetch(ctx, ref)
    if err != nil {
        log.Warn().Err(err).Str("trace_id", traceID).Str("ref", ref).Msg("fetch failed")
        if errors.Is(err, source.ErrTooLarge) {
            return nil, "", &requestError{http.StatusRequestEntityTooLarge, err.Error()}
        }
        return nil, "", &requestError{http.StatusBadGateway, "fetch failed: " + err.Error()}
    }
    return data, traceID, nil
}
