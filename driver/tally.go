package driver

import (
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tclemos/bindbench/binding"
)

const numStatuses = 5

// Tally counts operation outcomes per operation and status. It is safe for
// concurrent use.
type Tally struct {
	counts [numOps][numStatuses]atomic.Uint64
}

// Record counts one outcome of op.
func (t *Tally) Record(op Op, err error) binding.Status {
	s := binding.StatusOf(err)
	t.counts[op][s].Add(1)
	return s
}

// Count returns how many op calls ended with status s.
func (t *Tally) Count(op Op, s binding.Status) uint64 {
	return t.counts[op][s].Load()
}

// Total returns the number of op calls recorded.
func (t *Tally) Total(op Op) uint64 {
	var n uint64
	for _, s := range binding.Statuses {
		n += t.Count(op, s)
	}
	return n
}

// Sum returns the number of calls recorded across all operations.
func (t *Tally) Sum() uint64 {
	var n uint64
	for _, op := range Ops {
		n += t.Total(op)
	}
	return n
}

// Log writes one line per operation that was issued at least once.
func (t *Tally) Log(phase string) {
	for _, op := range Ops {
		total := t.Total(op)
		if total == 0 {
			continue
		}
		dict := zerolog.Dict()
		for _, s := range binding.Statuses {
			if n := t.Count(op, s); n > 0 {
				dict = dict.Uint64(s.String(), n)
			}
		}
		log.Info().
			Str("phase", phase).
			Str("op", op.String()).
			Str("total", humanize.Comma(int64(total))).
			Dict("status", dict).
			Msg("Operation summary")
	}
}
