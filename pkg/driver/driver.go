// Package driver lowers batches of methods. Each method gets its own lowering
// instance, so methods are compiled in parallel up to a configured limit.
package driver

import (
	"context"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/errors"
	"github.com/dot42/dot42-sub006/pkg/fixture"
)

// Policy decides what happens to a batch when one method fails.
type Policy int

const (
	// FailFast stops scheduling methods after the first failure and returns
	// no results.
	FailFast Policy = iota
	// SkipFailed compiles every method and returns the ones that succeeded
	// together with the collected errors.
	SkipFailed
)

func (p Policy) String() string {
	if p == SkipFailed {
		return "skip"
	}
	return "fail-fast"
}

// ParsePolicy maps "fail-fast" and "skip" to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "fail-fast", "failfast", "":
		return FailFast, true
	case "skip", "skip-failed":
		return SkipFailed, true
	}
	return FailFast, false
}

// Config configures a Driver.
type Config struct {
	Logger      zerolog.Logger
	Policy      Policy
	Concurrency int // methods lowered at once; zero means GOMAXPROCS
	Options     []compiler.Option
}

// Driver lowers batches of methods.
type Driver struct {
	cfg Config
	log zerolog.Logger
}

// New returns a driver. A zero Config logs nothing and fails fast.
func New(cfg Config) *Driver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Driver{cfg: cfg, log: cfg.Logger}
}

// Batch is the outcome of CompileAll. Results is indexed like the input;
// failed or unscheduled methods leave a nil entry.
type Batch struct {
	Results []*compiler.Result
	Failed  int
}

// Succeeded returns the non-nil results in input order.
func (b *Batch) Succeeded() []*compiler.Result {
	out := make([]*compiler.Result, 0, len(b.Results))
	for _, r := range b.Results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// CompileAll lowers methods concurrently. The returned error aggregates every
// method failure as a *multierror.Error; use Errors to recover the compiler
// errors. Under FailFast a failure returns a nil batch. Cancelling ctx stops
// scheduling further methods and returns ctx.Err().
func (d *Driver) CompileAll(ctx context.Context, methods []*compiler.Method) (*Batch, error) {
	batch := &Batch{Results: make([]*compiler.Result, len(methods))}
	var (
		mu     sync.Mutex
		merr   *multierror.Error
		failed bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)

	for i, m := range methods {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			log := d.log.With().Int("index", i).Logger()
			opts := append([]compiler.Option{compiler.WithLogger(log)}, d.cfg.Options...)
			res, err := compiler.Compile(m, opts...)
			if err != nil {
				log.Debug().Err(err).Msg("method failed")
				mu.Lock()
				merr = multierror.Append(merr, err)
				batch.Failed++
				failed = true
				mu.Unlock()
				if d.cfg.Policy == FailFast {
					return err
				}
				return nil
			}
			batch.Results[i] = res
			return nil
		})
	}
	waitErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed {
		d.log.Debug().Int("failed", batch.Failed).Str("policy", d.cfg.Policy.String()).Msg("batch had failures")
		if d.cfg.Policy == FailFast {
			return nil, merr.ErrorOrNil()
		}
		return batch, merr.ErrorOrNil()
	}
	if waitErr != nil {
		return nil, waitErr
	}
	d.log.Debug().Int("methods", len(methods)).Msg("batch compiled")
	return batch, nil
}

// CompileFile loads a fixture file and lowers every method in it.
func (d *Driver) CompileFile(ctx context.Context, path string) (*fixture.File, *Batch, error) {
	f, err := fixture.Load(path)
	if err != nil {
		return nil, nil, err
	}
	batch, err := d.CompileAll(ctx, f.Methods)
	return f, batch, err
}

// Errors flattens err into the compiler errors it carries. Errors that are
// not compiler errors are dropped.
func Errors(err error) []errors.CompilerError {
	if err == nil {
		return nil
	}
	var all []error
	var me *multierror.Error
	if pkgerrors.As(err, &me) {
		all = me.Errors
	} else {
		all = []error{err}
	}
	var out []errors.CompilerError
	for _, e := range all {
		if ce, ok := errors.As(e); ok {
			out = append(out, ce)
		}
	}
	return out
}
