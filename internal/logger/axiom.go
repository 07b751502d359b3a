package logger

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
)

const (
    axiomBatch   = 200
    axiomQueue   = 5 * axiomBatch
    shipDeadline = 15 * time.Second
)

// shipFunc delivers one batch of events.
type shipFunc func(ctx context.Context, events []axiom.Event) error

func dialAxiom(opts Options) (*axiomShipper, error) {
    dataset := opts.AxiomDataset
    if dataset == "" {
        dataset = "dev_" + serviceName
    }
    clientOpts := []axiom.Option{axiom.SetToken(opts.AxiomAPIKey)}
    if opts.AxiomOrgID != "" {
        clientOpts = append(clientOpts, axiom.SetOrganizationID(opts.AxiomOrgID))
    }
    client, err := axiom.NewClient(clientOpts...)
    if err != nil {
        return nil, err
    }
    ship := func(ctx context.Context, events []axiom.Event) error {
        _, err := client.IngestEvents(ctx, dataset, events)
        return err
    }
    return newShipper(ship, opts.AxiomFlush), nil
}

// toAxiomEvent turns one zerolog line into an Axiom event. Debug and trace lines are skipped.
func toAxiomEvent(line []byte) (axiom.Event, bool) {
    var ev axiom.Event
    if err := json.Unmarshal(line, &ev); err != nil {
        ev = axiom.Event{"message": string(line), "level": "info"}
    }
    switch ev["level"] {
    case "debug", "trace":
        return nil, false
    }
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    return ev, true
}

type axiomSink struct{ s *axiomShipper }

func (a axiomSink) Write(p []byte) (int, error) {
    if ev, ok := toAxiomEvent(p); ok {
        a.s.enqueue(ev)
    }
    return len(p), nil
}

// axiomShipper queues events and ships them in batches, on every tick or when a
// batch fills. A full queue drops events rather than block logging.
type axiomShipper struct {
    ship  shipFunc
    queue chan axiom.Event
    quit  chan struct{}
    done  sync.WaitGroup
    once  sync.Once
}

func newShipper(ship shipFunc, every time.Duration) *axiomShipper {
    if every <= 0 {
        every = 10 * time.Second
    }
    s := &axiomShipper{
        ship:  ship,
        queue: make(chan axiom.Event, axiomQueue),
        quit:  make(chan struct{}),
    }
    s.done.Add(1)
    go s.run(every)
    return s
}

func (s *axiomShipper) enqueue(ev axiom.Event) {
    select {
    case s.queue <- ev:
    default:
    }
}

func (s *axiomShipper) flush(batch []axiom.Event) []axiom.Event {
    if len(batch) == 0 {
        return batch
    }
    ctx, cancel := context.WithTimeout(context.Background(), shipDeadline)
    _ = s.ship(ctx, batch)
    cancel()
    return batch[:0]
}

func (s *axiomShipper) run(every time.Duration) {
    defer s.done.Done()
    tick := time.NewTicker(every)
    defer tick.Stop()

    batch := make([]axiom.Event, 0, axiomBatch)
    for {
        select {
        case ev := <-s.queue:
            batch = append(batch, ev)
            if len(batch) >= axiomBatch {
                batch = s.flush(batch)
            }
        case <-tick.C:
            batch = s.flush(batch)
        case <-s.quit:
            for {
                select {
                case ev := <-s.queue:
                    batch = append(batch, ev)
                default:
                    s.flush(batch)
                    return
                }
            }
        }
    }
}

// stop ships what is queued and waits for the loop to exit.
func (s *axiomShipper) stop() {
    s.once.Do(func() { close(s.quit) })
    s.done.Wait()
}
