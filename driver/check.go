package driver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/magiconair/properties"
	"github.com/rs/zerolog/log"
	"github.com/tclemos/bindbench/binding"
)

// Violation describes the first contract property a backend failed.
type Violation struct {
	Check  string
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("check %q failed: %s", v.Check, v.Detail)
}

// checker runs contract checks against one binding, each on fresh keys.
type checker struct {
	b     *binding.Binding
	cfg   binding.Config
	table string
	rng   *rand.Rand
	w     *Workload
	seq   int
}

func (c *checker) key() string {
	c.seq++
	return "check" + strconv.Itoa(c.seq)
}

func violation(name, format string, args ...any) error {
	return &Violation{Check: name, Detail: fmt.Sprintf(format, args...)}
}

func expect(name, what string, err error, want binding.Status) error {
	if got := binding.StatusOf(err); got != want {
		return violation(name, "%s: got %s (%v), want %s", what, got, err, want)
	}
	return nil
}

// Check runs the binding contract against the backend configured by props
// and returns a *Violation for the first property that does not hold.
// Checks use a table of their own, so persistent backends may be checked
// repeatedly.
func Check(ctx context.Context, props *properties.Properties) error {
	wcfg, err := ParseWorkloadConfig(props)
	if err != nil {
		return err
	}

	b := binding.New(props)
	if _, err := b.Read(ctx, "t", "k1", binding.AllFields); !errors.Is(err, binding.ErrInvalidState) {
		return violation("lifecycle", "read before init: got %v, want invalid state", err)
	}

	if err := b.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize binding: %w", err)
	}

	c := &checker{
		b:     b,
		cfg:   b.Config(),
		table: fmt.Sprintf("check_%d", time.Now().UnixNano()),
		rng:   rand.New(rand.NewSource(wcfg.Seed)),
		w:     NewWorkload(wcfg),
	}

	checks := []struct {
		name string
		fn   func(ctx context.Context, name string) error
	}{
		{"scenario", c.scenario},
		{"round trip", c.roundTrip},
		{"delete", c.deleteThenRead},
		{"update missing", c.updateMissing},
		{"insert existing", c.insertExisting},
		{"projection", c.projection},
		{"scan", c.scan},
	}
	for _, chk := range checks {
		if err := chk.fn(ctx, chk.name); err != nil {
			b.Close()
			return err
		}
		log.Info().Str("check", chk.name).Msg("Check passed")
	}

	if err := b.Close(); err != nil {
		return fmt.Errorf("failed to close binding: %w", err)
	}
	if err := b.Close(); err != nil {
		return violation("lifecycle", "second close: %v", err)
	}
	if err := b.Insert(ctx, c.table, c.key(), binding.Fields{"f": []byte("v")}); !errors.Is(err, binding.ErrInvalidState) {
		return violation("lifecycle", "insert after close: got %v, want invalid state", err)
	}
	log.Info().Str("check", "lifecycle").Msg("Check passed")
	return nil
}

// scenario is insert, read, delete, read on a single key.
func (c *checker) scenario(ctx context.Context, name string) error {
	key := "k1"
	values := binding.Fields{"f": []byte("v")}

	if err := expect(name, "insert", c.b.Insert(ctx, c.table, key, values), binding.StatusOK); err != nil {
		return err
	}
	got, err := c.b.Read(ctx, c.table, key, binding.AllFields)
	if err := expect(name, "read", err, binding.StatusOK); err != nil {
		return err
	}
	if !values.Equal(got) {
		return violation(name, "read returned %v, want %v", got, values)
	}
	return c.deleted(ctx, name, key, values)
}

// deleted deletes key and checks the record is gone, or unchanged when
// deletes are not implemented.
func (c *checker) deleted(ctx context.Context, name, key string, values binding.Fields) error {
	err := c.b.Delete(ctx, c.table, key)
	switch binding.StatusOf(err) {
	case binding.StatusOK:
		_, err := c.b.Read(ctx, c.table, key, binding.AllFields)
		return expect(name, "read after delete", err, binding.StatusNotFound)
	case binding.StatusNotImplemented:
		got, err := c.b.Read(ctx, c.table, key, binding.AllFields)
		if err := expect(name, "read after unimplemented delete", err, binding.StatusOK); err != nil {
			return err
		}
		if !values.Equal(got) {
			return violation(name, "record changed by unimplemented delete: %v", got)
		}
		return nil
	default:
		return violation(name, "delete: got %s (%v)", binding.StatusOf(err), err)
	}
}

func (c *checker) roundTrip(ctx context.Context, name string) error {
	for i := 0; i < c.trials(); i++ {
		key, values := c.key(), c.w.Values(c.rng)
		if err := expect(name, "insert "+key, c.b.Insert(ctx, c.table, key, values), binding.StatusOK); err != nil {
			return err
		}
		got, err := c.b.Read(ctx, c.table, key, binding.AllFields)
		if err := expect(name, "read "+key, err, binding.StatusOK); err != nil {
			return err
		}
		if !values.Equal(got) {
			return violation(name, "read %s returned different fields", key)
		}
	}
	return nil
}

func (c *checker) deleteThenRead(ctx context.Context, name string) error {
	for i := 0; i < c.trials(); i++ {
		key, values := c.key(), c.w.Values(c.rng)
		if err := expect(name, "insert "+key, c.b.Insert(ctx, c.table, key, values), binding.StatusOK); err != nil {
			return err
		}
		if err := c.deleted(ctx, name, key, values); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) updateMissing(ctx context.Context, name string) error {
	for i := 0; i < c.trials(); i++ {
		key, values := c.key(), c.w.Values(c.rng)
		err := c.b.Update(ctx, c.table, key, values)
		if c.cfg.UpdatePolicy == binding.PolicyStrict {
			if err := expect(name, "strict update "+key, err, binding.StatusNotFound); err != nil {
				return err
			}
			_, err := c.b.Read(ctx, c.table, key, binding.AllFields)
			if err := expect(name, "read after strict update "+key, err, binding.StatusNotFound); err != nil {
				return err
			}
			continue
		}

		if err := expect(name, "upsert update "+key, err, binding.StatusOK); err != nil {
			return err
		}
		got, err := c.b.Read(ctx, c.table, key, binding.AllFields)
		if err := expect(name, "read after upsert update "+key, err, binding.StatusOK); err != nil {
			return err
		}
		if !values.Equal(got) {
			return violation(name, "read after upsert update %s returned different fields", key)
		}
	}
	return nil
}

func (c *checker) insertExisting(ctx context.Context, name string) error {
	for i := 0; i < c.trials(); i++ {
		key, first, second := c.key(), c.w.Values(c.rng), c.w.Values(c.rng)
		if err := expect(name, "insert "+key, c.b.Insert(ctx, c.table, key, first), binding.StatusOK); err != nil {
			return err
		}

		want, status := first, binding.StatusConflict
		if c.cfg.InsertPolicy == binding.PolicyUpsert {
			want, status = second, binding.StatusOK
		}
		if err := expect(name, "second insert "+key, c.b.Insert(ctx, c.table, key, second), status); err != nil {
			return err
		}
		got, err := c.b.Read(ctx, c.table, key, binding.AllFields)
		if err := expect(name, "read "+key, err, binding.StatusOK); err != nil {
			return err
		}
		if !want.Equal(got) {
			return violation(name, "record %s does not match the %s insert policy", key, c.cfg.InsertPolicy)
		}
	}
	return nil
}

func (c *checker) projection(ctx context.Context, name string) error {
	key, values := c.key(), c.w.Values(c.rng)
	if err := expect(name, "insert", c.b.Insert(ctx, c.table, key, values), binding.StatusOK); err != nil {
		return err
	}

	field := values.Names()[0]
	got, err := c.b.Read(ctx, c.table, key, binding.Project(field))
	if err := expect(name, "projected read", err, binding.StatusOK); err != nil {
		return err
	}
	if len(got) != 1 || string(got[field]) != string(values[field]) {
		return violation(name, "projected read returned fields %v, want [%s]", got.Names(), field)
	}
	return nil
}

func (c *checker) scan(ctx context.Context, name string) error {
	table := c.table + "_scan"
	keys := make([]string, 20)
	for i := range keys {
		keys[i] = fmt.Sprintf("s%03d", i)
		if err := expect(name, "insert "+keys[i], c.b.Insert(ctx, table, keys[i], c.w.Values(c.rng)), binding.StatusOK); err != nil {
			return err
		}
	}

	for i := 0; i < c.trials(); i++ {
		start := keys[c.rng.Intn(len(keys))]
		count := 1 + c.rng.Intn(len(keys))
		records, err := c.b.Scan(ctx, table, start, count, binding.AllFields)
		if binding.StatusOf(err) == binding.StatusNotImplemented {
			return nil
		}
		if err := expect(name, "scan from "+start, err, binding.StatusOK); err != nil {
			return err
		}
		if len(records) > count {
			return violation(name, "scan of %d returned %d records", count, len(records))
		}
		got := make([]string, len(records))
		for j, rec := range records {
			if rec.Key < start {
				return violation(name, "scan from %s returned %s", start, rec.Key)
			}
			got[j] = rec.Key
		}
		if !sort.StringsAreSorted(got) {
			return violation(name, "scan from %s out of order: %v", start, got)
		}
	}
	return nil
}

func (c *checker) trials() int {
	return c.w.cfg.CheckTrials
}
