// Package pipeline runs the per-court goal computation over many files in
// parallel and merges the results in input order.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Laraewellen/metas-judiciarias-etl/goals"
	"github.com/Laraewellen/metas-judiciarias-etl/staging"
	"github.com/Laraewellen/metas-judiciarias-etl/table"
)

// stageDelim is the delimiter of staged tables, independent of the input.
const stageDelim = ';'

// File outcomes passed to the Observer.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
)

// Observer receives per-file and per-goal events. Implementations must be
// safe for concurrent use.
type Observer interface {
	FileProcessed(status string, elapsed time.Duration)
	GoalComputed(key string, na bool)
	UnmappedBranch(label string)
}

type nopObserver struct{}

func (nopObserver) FileProcessed(string, time.Duration) {}
func (nopObserver) GoalComputed(string, bool)           {}
func (nopObserver) UnmappedBranch(string)               {}

// Config holds the collaborators of a Coordinator. Zero values select the
// embedded factor table, an in-memory staging store, a no-op logger, one
// worker per CPU, the default reference year, delimiter detection on input and
// ';' on output.
type Config struct {
	Factors     *goals.FactorTable
	Store       staging.Store
	Logger      *zap.Logger
	Observer    Observer
	Workers     int
	Year        int
	InputDelim  rune
	OutputDelim rune
}

// Coordinator fans files out to a fixed pool of workers.
type Coordinator struct {
	factors  *goals.FactorTable
	calc     *goals.Calculator
	store    staging.Store
	log      *zap.Logger
	obs      Observer
	workers  int
	inDelim  rune
	outDelim rune
}

// New returns a coordinator for cfg.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		factors:  cfg.Factors,
		store:    cfg.Store,
		log:      cfg.Logger,
		obs:      cfg.Observer,
		workers:  cfg.Workers,
		inDelim:  cfg.InputDelim,
		outDelim: cfg.OutputDelim,
	}
	if c.factors == nil {
		c.factors = goals.DefaultFactors()
	}
	if c.store == nil {
		c.store = staging.NewMemory()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.obs == nil {
		c.obs = nopObserver{}
	}
	if c.workers <= 0 {
		c.workers = runtime.NumCPU()
	}
	if c.outDelim == 0 {
		c.outDelim = ';'
	}
	year := cfg.Year
	if year == 0 {
		year = goals.DefaultYear
	}
	c.calc = goals.NewCalculator(c.factors, year)
	return c
}

type task struct {
	Index int
	ID    uuid.UUID
	Path  string
}

type outcome struct {
	task task
	row  goals.Row
	key  string // staging key; empty when the unit failed
	err  error
}

// Run processes files and writes the consolidated table to consolidated,
// which may be nil. Per-file failures are reported in Report.Skipped and
// never fail the run. When ctx is cancelled no further files are dispatched;
// units already running finish, their results are merged and Run returns the
// partial report together with the context error.
func (c *Coordinator) Run(ctx context.Context, files []string, consolidated io.Writer) (*Report, error) {
	if len(files) == 0 {
		return nil, ErrNoInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := c.log.With(zap.String("run", runID))
	rep := &Report{RunID: runID, Files: len(files)}
	var warn warnings

	// Staged objects outlive a cancelled caller context long enough to be
	// merged and removed.
	bg := context.WithoutCancel(ctx)
	defer func() {
		c.cleanup(bg, runID, log, &warn)
		rep.Warnings = warn.list()
	}()

	labels := goals.NewLabelSet(func(label string) {
		log.Warn("branch has no factor set, using default", zap.String("label", label), zap.String("default", c.factors.DefaultBranch()))
		c.obs.UnmappedBranch(label)
	})
	resolver := goals.NewResolver(c.factors, labels)

	tasks := make(chan task)
	results := make(chan outcome, len(files))

	var g errgroup.Group
	for w := 0; w < c.workers; w++ {
		g.Go(func() error {
			for t := range tasks {
				results <- c.process(bg, runID, t, resolver, log)
			}
			return nil
		})
	}
	dispatched := dispatch(ctx, files, tasks)
	if err := g.Wait(); err != nil {
		return rep, err
	}
	close(results)

	outcomes := make([]outcome, len(files))
	for o := range results {
		outcomes[o.task.Index] = o
	}

	for i, o := range outcomes[:dispatched] {
		if o.err != nil {
			log.Warn("file skipped", zap.String("file", files[i]), zap.Error(o.err))
			rep.Skipped = append(rep.Skipped, SkippedFile{Path: files[i], Reason: o.err.Error()})
			continue
		}
		rep.Rows = append(rep.Rows, o.row)
		rep.Sources = append(rep.Sources, files[i])
	}
	cancelled := dispatched < len(files)
	for _, p := range files[dispatched:] {
		rep.Skipped = append(rep.Skipped, SkippedFile{Path: p, Reason: "not scheduled: " + context.Cause(ctx).Error()})
	}

	if consolidated != nil {
		n, err := c.consolidate(bg, outcomes[:dispatched], consolidated)
		if err != nil {
			return rep, err
		}
		rep.ConsolidatedRows = n
	}

	rep.UnmappedBranches = labels.Labels()
	for _, l := range rep.UnmappedBranches {
		warn.add("branch %q has no factor set; %s factors used", l, c.factors.DefaultBranch())
	}
	for _, d := range findDuplicateCodes(rep.Rows, rep.Sources) {
		warn.add("court %s appears in %d files: %v", d.code, len(d.files), d.files)
	}

	log.Info("run finished",
		zap.Int("files", len(files)),
		zap.Int("rows", len(rep.Rows)),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Int("consolidated_rows", rep.ConsolidatedRows))

	if cancelled {
		return rep, fmt.Errorf("run interrupted after %d of %d files: %w", dispatched, len(files), ctx.Err())
	}
	return rep, nil
}

// dispatch sends one task per file until ctx is done, closes tasks and returns
// how many were sent. Sent tasks are always the prefix files[:n].
func dispatch(ctx context.Context, files []string, tasks chan<- task) int {
	defer close(tasks)
	for i, p := range files {
		if ctx.Err() != nil {
			return i
		}
		t := task{Index: i, ID: uuid.New(), Path: p}
		select {
		case <-ctx.Done():
			return i
		case tasks <- t:
		}
	}
	return len(files)
}

// process is one unit: load, resolve, build the summary row and stage the raw
// table. A panic is converted into the unit's error.
func (c *Coordinator) process(ctx context.Context, runID string, t task, resolver *goals.Resolver, log *zap.Logger) (o outcome) {
	o.task = t
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.err = fmt.Errorf("panic: %v", r)
			o.key = ""
		}
		status := StatusOK
		if o.err != nil {
			status = StatusSkipped
		}
		c.obs.FileProcessed(status, time.Since(start))
	}()

	tbl, err := table.Load(t.Path, c.inDelim)
	if err != nil {
		o.err = err
		return o
	}
	if !tbl.Has(table.ColCourtCode) {
		o.err = fmt.Errorf("%s: %w", table.ColCourtCode, table.ErrMissingColumn)
		return o
	}

	res := resolver.Resolve(tbl.First(table.ColBranch), tbl.First(table.ColCourtCode))
	o.row = c.calc.BuildRow(tbl, res)
	for k, r := range o.row.Goals {
		c.obs.GoalComputed(k, r.IsNA())
	}

	var buf bytes.Buffer
	if err := tbl.Write(&buf, stageDelim); err != nil {
		o.err = fmt.Errorf("encoding staged table: %w", err)
		return o
	}
	key := stageKey(runID, t)
	if _, err := c.store.Put(ctx, key, &buf); err != nil {
		o.err = fmt.Errorf("staging: %w", err)
		return o
	}
	o.key = key
	log.Debug("file processed",
		zap.String("file", t.Path),
		zap.String("court", res.CourtCode),
		zap.String("branch", res.Branch),
		zap.Bool("fallback", res.Fallback),
		zap.Int("records", tbl.Len()))
	return o
}

func stageKey(runID string, t task) string {
	return fmt.Sprintf("%s/%06d-%s.csv", runID, t.Index, t.ID)
}

// consolidate appends staged tables in index order.
func (c *Coordinator) consolidate(ctx context.Context, outcomes []outcome, w io.Writer) (int, error) {
	m := table.NewMerger(w, stageDelim, c.outDelim)
	for _, o := range outcomes {
		if o.err != nil || o.key == "" {
			continue
		}
		if err := c.appendStaged(ctx, m, o.key); err != nil {
			return m.Rows(), fmt.Errorf("consolidating %s: %w", o.task.Path, err)
		}
	}
	if err := m.Flush(); err != nil {
		return m.Rows(), fmt.Errorf("consolidating: %w", err)
	}
	return m.Rows(), nil
}

func (c *Coordinator) appendStaged(ctx context.Context, m *table.Merger, key string) error {
	rc, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = m.Append(rc)
	return err
}

// cleanup removes every object staged under runID. Failures are warnings.
func (c *Coordinator) cleanup(ctx context.Context, runID string, log *zap.Logger, warn *warnings) {
	infos, err := c.store.List(ctx, runID+"/")
	if err != nil {
		log.Warn("listing staged tables", zap.Error(err))
		warn.add("staging cleanup: %v", err)
		return
	}
	var errs []error
	for _, info := range infos {
		if _, err := c.store.Delete(ctx, info.Key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("removing staged tables", zap.Error(err))
		warn.add("staging cleanup: %d of %d staged tables not removed", len(errs), len(infos))
	}
}
