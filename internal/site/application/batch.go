package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"energy-costing/internal/observability/metrics"
	site "energy-costing/internal/site/domain"
)

const defaultWorkers = 4

// SiteRunner runs one site.
type SiteRunner interface {
	Run(ctx context.Context, s site.Site) (*site.Result, error)
}

// ResultSink consumes a successful site result.
type ResultSink interface {
	Name() string
	Write(ctx context.Context, result *site.Result) error
}

// BatchOption configures a batch.
type BatchOption func(*Batch)

// WithWorkers sets the worker count.
func WithWorkers(workers int) BatchOption {
	return func(b *Batch) {
		if workers > 0 {
			b.workers = workers
		}
	}
}

// WithSinks adds result sinks.
func WithSinks(sinks ...ResultSink) BatchOption {
	return func(b *Batch) {
		for _, sink := range sinks {
			if sink != nil {
				b.sinks = append(b.sinks, sink)
			}
		}
	}
}

// WithBatchLogger sets the batch logger.
func WithBatchLogger(logger *log.Logger) BatchOption {
	return func(b *Batch) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Failure is one site that did not complete.
type Failure struct {
	SiteURN int64
	Action  Action
	Reason  string
	Err     error
}

// Summary reports a batch.
type Summary struct {
	Sites        int
	Succeeded    []int64
	Failed       []Failure
	SinkFailures int
}

// Batch runs sites on a bounded worker pool.
type Batch struct {
	runner  SiteRunner
	workers int
	sinks   []ResultSink
	logger  *log.Logger
}

// NewBatch constructs a batch.
func NewBatch(runner SiteRunner, opts ...BatchOption) (*Batch, error) {
	if runner == nil {
		return nil, errors.New("site batch: nil runner")
	}
	b := &Batch{
		runner:  runner,
		workers: defaultWorkers,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Run processes every site. Site failures are recorded and the batch goes on;
// an abort-class error cancels the remaining sites and is returned.
func (b *Batch) Run(ctx context.Context, sites []site.Site) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	summary := Summary{Sites: len(sites)}
	var (
		mu       sync.Mutex
		abortErr error
		wg       sync.WaitGroup
	)
	queue := make(chan site.Site)

	workers := b.workers
	if workers > len(sites) {
		workers = len(sites)
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(id int) {
			defer wg.Done()
			for s := range queue {
				metrics.AddBatchWorkersActive(1)
				result, err := b.runner.Run(ctx, s)
				sinkFailures := 0
				if err == nil {
					sinkFailures = b.writeSinks(ctx, id, result)
				}
				metrics.AddBatchWorkersActive(-1)

				mu.Lock()
				summary.SinkFailures += sinkFailures
				if err == nil {
					summary.Succeeded = append(summary.Succeeded, s.URN)
				} else {
					action := Classify(err)
					summary.Failed = append(summary.Failed, Failure{SiteURN: s.URN, Action: action, Reason: Reason(err), Err: err})
					if action == ActionAbort && abortErr == nil {
						abortErr = err
						cancel()
					}
				}
				mu.Unlock()
			}
		}(i)
	}

	started := time.Now()
feed:
	for i, s := range sites {
		metrics.SetBatchQueueDepth(len(sites) - i)
		select {
		case queue <- s:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()
	metrics.SetBatchQueueDepth(0)

	sort.Slice(summary.Succeeded, func(i, j int) bool { return summary.Succeeded[i] < summary.Succeeded[j] })
	sort.Slice(summary.Failed, func(i, j int) bool { return summary.Failed[i].SiteURN < summary.Failed[j].SiteURN })
	b.logger.Printf("event=batch.done sites=%d succeeded=%d failed=%d sink_failures=%d duration=%s",
		summary.Sites, len(summary.Succeeded), len(summary.Failed), summary.SinkFailures, time.Since(started))

	if abortErr != nil {
		return summary, abortErr
	}
	return summary, ctx.Err()
}

func (b *Batch) writeSinks(ctx context.Context, worker int, result *site.Result) int {
	failures := 0
	for _, sink := range b.sinks {
		if err := sink.Write(ctx, result); err != nil {
			failures++
			b.logger.Printf("event=batch.sink_failed worker=%d site=%d sink=%s err=%v", worker, result.Site.URN, sink.Name(), err)
		}
	}
	return failures
}
