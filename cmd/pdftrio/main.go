package main

import (
    "context"
    "errors"
    "fmt"
    "os"
    "os/signal"
    "syscall"
)

func main() {
    ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer cancel()

    if err := rootCmd.ExecuteContext(ctx); err != nil {
        var ee *exitError
        if errors.As(err, &ee) {
            if ee.msg != "" {
                fmt.Fprintln(os.Stderr, ee.msg)
            }
            os.Exit(ee.code)
        }
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}

// exitError ends the process with a specific status.
type exitError struct {
    code int
    msg  string
}

func (e *exitError) Error() string { return fmt.Sprintf("exit %d: %s", e.code, e.msg) }
