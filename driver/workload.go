package driver

import (
	"encoding/binary"
	"fmt"
	"iter"
	"math/rand"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tclemos/bindbench/binding"
)

// Op is one kind of harness operation.
type Op int

const (
	OpRead Op = iota
	OpUpdate
	OpInsert
	OpScan
	OpDelete
	numOps
)

// Ops lists every operation in tally order.
var Ops = []Op{OpRead, OpUpdate, OpInsert, OpScan, OpDelete}

func (o Op) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpUpdate:
		return "UPDATE"
	case OpInsert:
		return "INSERT"
	case OpScan:
		return "SCAN"
	case OpDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Workload generates keys, values and the operation mix.
type Workload struct {
	cfg        WorkloadConfig
	cumulative [numOps]float64
	last       Op // last operation with a positive proportion
	fields     []string
}

// NewWorkload creates a workload from a validated config.
func NewWorkload(cfg WorkloadConfig) *Workload {
	w := &Workload{cfg: cfg}

	total := 0.0
	for _, p := range cfg.proportions() {
		total += p
	}
	acc := 0.0
	for op, p := range cfg.proportions() {
		acc += p / total
		w.cumulative[op] = acc
		if p > 0 {
			w.last = Op(op)
		}
	}

	w.fields = make([]string, cfg.FieldCount)
	for i := range w.fields {
		w.fields[i] = "field" + strconv.Itoa(i)
	}
	return w
}

func (w *Workload) Name() string {
	return "core"
}

// Table returns the table all records live in.
func (w *Workload) Table() string {
	return w.cfg.Table
}

// Key returns the record key for sequence number n. Hashed keys scatter
// consecutive numbers across the key space; ordered keys are zero padded so
// byte order matches insertion order.
func (w *Workload) Key(n int64) string {
	if w.cfg.InsertOrder == OrderOrdered {
		return fmt.Sprintf("user%019d", n)
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(n))
	hash := crypto.Keccak256(raw[:])
	return "user" + strconv.FormatUint(binary.BigEndian.Uint64(hash[:8]), 10)
}

// Keys yields the keys of the first count records.
func (w *Workload) Keys(count int64) iter.Seq[string] {
	return func(yield func(string) bool) {
		for n := int64(0); n < count; n++ {
			if !yield(w.Key(n)) {
				return
			}
		}
	}
}

// Values returns a full record with random field values.
func (w *Workload) Values(rng *rand.Rand) binding.Fields {
	values := make(binding.Fields, len(w.fields))
	for _, name := range w.fields {
		values[name] = w.value(rng)
	}
	return values
}

// UpdateValues returns every field when writeallfields is set, otherwise a
// single random one.
func (w *Workload) UpdateValues(rng *rand.Rand) binding.Fields {
	if w.cfg.WriteAllFields {
		return w.Values(rng)
	}
	return binding.Fields{w.randomField(rng): w.value(rng)}
}

// Projection returns the field set a read or scan requests.
func (w *Workload) Projection(rng *rand.Rand) binding.Projection {
	if w.cfg.ReadAllFields {
		return binding.AllFields
	}
	return binding.Project(w.randomField(rng))
}

// NextOp draws an operation according to the configured proportions.
func (w *Workload) NextOp(rng *rand.Rand) Op {
	x := rng.Float64()
	for op, c := range w.cumulative {
		if x < c {
			return Op(op)
		}
	}
	// rounding can leave the last bound slightly below 1
	return w.last
}

// ScanLength returns a scan length uniform in [1, maxscanlength].
func (w *Workload) ScanLength(rng *rand.Rand) int {
	return 1 + rng.Intn(w.cfg.MaxScanLength)
}

func (w *Workload) randomField(rng *rand.Rand) string {
	return w.fields[rng.Intn(len(w.fields))]
}

// value returns a random byte slice of the configured field length
func (w *Workload) value(rng *rand.Rand) []byte {
	buf := make([]byte, w.cfg.FieldLength)
	rng.Read(buf)
	return buf
}
