package statuscheck

import (
    "context"
    "errors"
    "os/exec"
    "time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
    Ping(ctx context.Context) error
}

// RemoteModel is a remote model whose availability can be queried.
type RemoteModel interface {
    ModelName() string
    Version(ctx context.Context) (string, error)
}

// Checker aggregates readiness checks for the model servers and local tooling.
type Checker struct {
    redis   RedisPinger
    models  []RemoteModel
    tools   []string
    timeout time.Duration
}

// Options configures the Checker.
type Options struct {
    Redis   RedisPinger // nil when the breaker runs in-process
    Models  []RemoteModel
    Tools   []string // external binaries the extractor needs
    Timeout time.Duration
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Ready  bool              `json:"ready"`
    Redis  Status            `json:"redis"`
    Models map[string]Status `json:"models"`
    Tools  map[string]Status `json:"tools"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    timeout := opts.Timeout
    if timeout <= 0 {
        timeout = 5 * time.Second
    }
    return &Checker{
        redis:   opts.Redis,
        models:  opts.Models,
        tools:   opts.Tools,
        timeout: timeout,
    }
}

// Summary returns the current status snapshot. Ready is false when any model server or
// tool is unavailable, or Redis is configured but unreachable.
func (c *Checker) Summary(ctx context.Context) Summary {
    s := Summary{
        Ready:  true,
        Redis:  c.checkRedis(ctx),
        Models: make(map[string]Status, len(c.models)),
        Tools:  make(map[string]Status, len(c.tools)),
    }
    if !s.Redis.OK {
        s.Ready = false
    }
    for _, m := range c.models {
        st := c.checkModel(ctx, m)
        s.Models[m.ModelName()] = st
        if !st.OK {
            s.Ready = false
        }
    }
    for _, t := range c.tools {
        st := checkTool(t)
        s.Tools[t] = st
        if !st.OK {
            s.Ready = false
        }
    }
    return s
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{OK: true, Message: "Not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkModel(ctx context.Context, m RemoteModel) Status {
    ctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    v, err := m.Version(ctx)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Available, version " + v}
}

func checkTool(name string) Status {
    if _, err := exec.LookPath(name); err != nil {
        return Status{OK: false, Message: "Binary not found"}
    }
    return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
