// Package driver exercises bindings the way a benchmarking harness does:
// one binding per worker, operations drawn from a configured mix, and
// per-operation status tallies as the only output.
package driver

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/magiconair/properties"
	"github.com/rs/zerolog/log"
	"github.com/tclemos/bindbench/binding"
	"golang.org/x/sync/errgroup"
)

// Runner drives the load and run phases against bindings built from one
// property set.
type Runner struct {
	props    *properties.Properties
	cfg      WorkloadConfig
	workload *Workload
}

// NewRunner parses the workload parameters from props. Binding properties
// are validated later, when each worker initializes its binding.
func NewRunner(props *properties.Properties) (*Runner, error) {
	cfg, err := ParseWorkloadConfig(props)
	if err != nil {
		return nil, err
	}
	return &Runner{
		props:    props,
		cfg:      cfg,
		workload: NewWorkload(cfg),
	}, nil
}

// Config returns the parsed workload parameters.
func (r *Runner) Config() WorkloadConfig {
	return r.cfg
}

// Load inserts recordcount records using threadcount workers.
func (r *Runner) Load(ctx context.Context) (*Tally, error) {
	r.initialLog("load")
	tally := &Tally{}

	keys := r.workload.Keys(r.cfg.RecordCount)
	if r.cfg.KeysFile != "" {
		n, err := writeKeysFile(r.cfg.KeysFile, keys)
		if err != nil {
			return tally, err
		}
		log.Info().Str("path", r.cfg.KeysFile).Int64("keys", n).Msg("Wrote keys file")
	}

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan string, r.cfg.ThreadCount*2)

	// Feed keys to workers
	g.Go(func() error {
		defer close(jobs)
		for key := range keys {
			select {
			case jobs <- key:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	stop := r.progress(tally)
	defer stop()

	for w := 0; w < r.cfg.ThreadCount; w++ {
		workerID := w
		g.Go(func() error {
			return r.withBinding(ctx, func(b *binding.Binding) {
				rng := rand.New(rand.NewSource(r.cfg.Seed + int64(workerID)))
				for key := range jobs {
					if ctx.Err() != nil {
						return
					}
					tally.Record(OpInsert, b.Insert(ctx, r.workload.Table(), key, r.workload.Values(rng)))
				}
			})
		})
	}

	if err := g.Wait(); err != nil {
		return tally, err
	}
	tally.Log("load")
	return tally, nil
}

// Run issues operationcount operations drawn from the configured mix.
func (r *Runner) Run(ctx context.Context) (*Tally, error) {
	r.initialLog("run")
	tally := &Tally{}

	var keys []string
	if r.cfg.KeysFile != "" {
		log.Info().Str("path", r.cfg.KeysFile).Msg("Loading keys from file")
		loaded, err := loadKeysFromFile(r.cfg.KeysFile)
		if err != nil {
			return tally, err
		}
		keys = loaded
	}

	// inserts during run extend the key space past the loaded records
	var inserted atomic.Int64
	inserted.Store(r.cfg.RecordCount)
	if keys != nil {
		inserted.Store(int64(len(keys)))
	}
	pick := func(rng *rand.Rand) string {
		n := inserted.Load()
		if n <= 0 {
			return r.workload.Key(0)
		}
		i := rng.Int63n(n)
		if i < int64(len(keys)) {
			return keys[i]
		}
		return r.workload.Key(i)
	}

	stop := r.progress(tally)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	per := r.cfg.OperationCount / int64(r.cfg.ThreadCount)
	extra := r.cfg.OperationCount % int64(r.cfg.ThreadCount)
	for w := 0; w < r.cfg.ThreadCount; w++ {
		workerID := w
		ops := per
		if int64(w) < extra {
			ops++
		}
		g.Go(func() error {
			return r.withBinding(ctx, func(b *binding.Binding) {
				rng := rand.New(rand.NewSource(r.cfg.Seed + int64(workerID)))
				for i := int64(0); i < ops && ctx.Err() == nil; i++ {
					r.doOp(ctx, b, rng, tally, pick, &inserted)
				}
			})
		})
	}

	if err := g.Wait(); err != nil {
		return tally, err
	}
	tally.Log("run")
	return tally, nil
}

func (r *Runner) doOp(ctx context.Context, b *binding.Binding, rng *rand.Rand, tally *Tally, pick func(*rand.Rand) string, inserted *atomic.Int64) {
	table := r.workload.Table()
	switch op := r.workload.NextOp(rng); op {
	case OpRead:
		_, err := b.Read(ctx, table, pick(rng), r.workload.Projection(rng))
		tally.Record(op, err)
	case OpUpdate:
		tally.Record(op, b.Update(ctx, table, pick(rng), r.workload.UpdateValues(rng)))
	case OpInsert:
		n := inserted.Add(1) - 1
		tally.Record(op, b.Insert(ctx, table, r.workload.Key(n), r.workload.Values(rng)))
	case OpScan:
		_, err := b.Scan(ctx, table, pick(rng), r.workload.ScanLength(rng), r.workload.Projection(rng))
		tally.Record(op, err)
	case OpDelete:
		tally.Record(op, b.Delete(ctx, table, pick(rng)))
	}
}

// withBinding gives fn a binding of its own for the lifetime of a worker.
func (r *Runner) withBinding(ctx context.Context, fn func(b *binding.Binding)) error {
	b := binding.New(r.props)
	if err := b.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize binding: %w", err)
	}
	fn(b)
	return b.Close()
}

// progress logs the number of completed operations every second until the
// returned func is called.
func (r *Runner) progress(tally *Tally) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				log.Info().Str("ops", humanize.Comma(int64(tally.Sum()))).Msg("Operations in progress")
			}
		}
	}()
	return func() { close(done) }
}

func (r *Runner) initialLog(phase string) {
	log.Info().
		Str("phase", phase).
		Str("workload", r.workload.Name()).
		Str("backend", r.props.GetString(binding.PropBackend, "")).
		Str("table", r.workload.Table()).
		Int64("record_count", r.cfg.RecordCount).
		Int64("operation_count", r.cfg.OperationCount).
		Int("threads", r.cfg.ThreadCount).
		Int("field_count", r.cfg.FieldCount).
		Int("field_length", r.cfg.FieldLength).
		Str("insert_order", r.cfg.InsertOrder).
		Int64("seed", r.cfg.Seed).
		Msg("Starting phase")
}
