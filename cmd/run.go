package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Laraewellen/metas-judiciarias-etl/goals"
	"github.com/Laraewellen/metas-judiciarias-etl/metrics"
	"github.com/Laraewellen/metas-judiciarias-etl/pipeline"
	"github.com/Laraewellen/metas-judiciarias-etl/report"
	"github.com/Laraewellen/metas-judiciarias-etl/staging"
	"github.com/Laraewellen/metas-judiciarias-etl/store"
)

type runOptions struct {
	outputDir   string
	workers     int
	year        int
	reportFile  string
	metricsFile string
	dbDriver    string
	dbDSN       string
	staging     string
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions
	c := &cobra.Command{
		Use:   "run [input-dir]",
		Short: "Compute the goals of every CSV file in a directory",
		Long: `Reads every *.csv file of the input directory (one table per court),
computes the goals of each court in parallel and writes, in the output
directory:

  ResumoMetas.csv     one row per court, one column per goal
  Consolidado.csv     every input record under a single header
  grafico_meta1.png   goal 1 per court, highest first

Files that cannot be read are skipped and listed at the end.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyRunFlags(cmd, o)
			inputDir := a.cfg.InputDir
			if len(args) == 1 {
				inputDir = args[0]
			}
			return a.run(cmd.Context(), inputDir, cmd.ErrOrStderr())
		},
	}
	f := c.Flags()
	f.StringVarP(&o.outputDir, "output", "o", "", "output directory")
	f.IntVarP(&o.workers, "workers", "w", 0, "number of parallel workers (default one per CPU)")
	f.IntVar(&o.year, "year", 0, "reference year of the goal-1 columns")
	f.StringVar(&o.reportFile, "report", "", "also write a PDF with one chart page per goal")
	f.StringVar(&o.metricsFile, "metrics", "", "write run metrics in the Prometheus text format")
	f.StringVar(&o.dbDriver, "db", "", "store results in a database (sqlite or postgres)")
	f.StringVar(&o.dbDSN, "dsn", "", "database DSN (file path for sqlite)")
	f.StringVar(&o.staging, "staging", "", "staging store for raw tables (memory, fs or s3)")
	return c
}

// applyRunFlags lets explicitly set flags win over the config file.
func (a *app) applyRunFlags(cmd *cobra.Command, o runOptions) {
	f := cmd.Flags()
	if f.Changed("output") {
		a.cfg.OutputDir = o.outputDir
	}
	if f.Changed("workers") {
		a.cfg.Workers = o.workers
	}
	if f.Changed("year") {
		a.cfg.Year = o.year
	}
	if f.Changed("report") {
		a.cfg.ReportFile = o.reportFile
	}
	if f.Changed("metrics") {
		a.cfg.MetricsFile = o.metricsFile
	}
	if f.Changed("db") {
		a.cfg.Database.Driver = o.dbDriver
	}
	if f.Changed("dsn") {
		a.cfg.Database.DSN = o.dbDSN
	}
	if f.Changed("staging") {
		a.cfg.Staging.Driver = o.staging
	}
}

func (a *app) run(ctx context.Context, inputDir string, out io.Writer) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := a.logger

	files, err := pipeline.Discover(inputDir)
	if err != nil {
		return err
	}
	factors, err := cfg.Factors()
	if err != nil {
		return err
	}
	stage, err := staging.Open(ctx, cfg.StagingOptions())
	if err != nil {
		return fmt.Errorf("staging: %w", err)
	}
	if c, ok := stage.(io.Closer); ok {
		defer c.Close()
	}
	var db *store.DB
	if cfg.Database.Driver != "" {
		db, err = store.Open(ctx, store.Driver(cfg.Database.Driver), cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}

	consolidatedPath := cfg.OutputPath(cfg.ConsolidatedFile)
	cf, err := os.Create(consolidatedPath)
	if err != nil {
		return err
	}

	m := metrics.New()
	coord := pipeline.New(pipeline.Config{
		Factors:     factors,
		Store:       stage,
		Logger:      log,
		Observer:    m,
		Workers:     cfg.Workers,
		Year:        cfg.Year,
		InputDelim:  cfg.InputDelim(),
		OutputDelim: cfg.OutputDelim(),
	})

	log.Info("run started",
		zap.String("input", inputDir),
		zap.Int("files", len(files)),
		zap.String("staging", string(stage.Driver())))
	start := time.Now()
	rep, runErr := coord.Run(ctx, files, cf)
	if err := cf.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if rep == nil {
		return runErr
	}

	written, errs := a.writeOutputs(ctx, rep, db, m, start)
	written = append([]string{consolidatedPath}, written...)
	printReport(out, rep, written, errs)
	return errors.Join(append([]error{runErr}, errs...)...)
}

// writeOutputs writes every output of rep that depends on the finished run.
// A failing output does not stop the others; the files written and the
// failures are returned.
func (a *app) writeOutputs(ctx context.Context, rep *pipeline.Report, db *store.DB, m *metrics.Run, start time.Time) ([]string, []error) {
	cfg, log := a.cfg, a.logger
	var written []string
	var errs []error

	summaryPath := cfg.OutputPath(cfg.SummaryFile)
	if err := report.WriteSummaryFile(summaryPath, rep.Rows, cfg.OutputDelim()); err != nil {
		errs = append(errs, fmt.Errorf("summary: %w", err))
	} else {
		written = append(written, summaryPath)
	}

	chartPath := cfg.OutputPath(cfg.ChartFile)
	err := report.SaveGoalChart(chartPath, goals.Goal1Key, report.Ranking(rep.Rows, goals.Goal1Key))
	switch {
	case errors.Is(err, report.ErrNoData):
		log.Warn("goal chart not written", zap.String("goal", goals.Goal1Key), zap.Error(err))
	case err != nil:
		errs = append(errs, fmt.Errorf("chart: %w", err))
	default:
		written = append(written, chartPath)
	}

	if cfg.ReportFile != "" {
		path := cfg.OutputPath(cfg.ReportFile)
		err := writeReport(path, cfg.Year, rep.Rows)
		switch {
		case errors.Is(err, report.ErrNoData):
			log.Warn("report not written", zap.Error(err))
		case err != nil:
			errs = append(errs, fmt.Errorf("report: %w", err))
		default:
			written = append(written, path)
		}
	}

	if db != nil {
		run := store.Run{
			ID:        rep.RunID,
			StartedAt: start,
			Year:      cfg.Year,
			Files:     rep.Files,
			Skipped:   len(rep.Skipped),
			Sources:   rep.Sources,
		}
		if err := db.SaveRun(context.WithoutCancel(ctx), run, rep.Rows); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}

	m.Finished(time.Since(start), time.Now())
	if cfg.MetricsFile != "" {
		path := cfg.OutputPath(cfg.MetricsFile)
		if err := m.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		} else {
			written = append(written, path)
		}
	}
	return written, errs
}

// writeReport writes the PDF and checks that it reads back with one page per
// charted goal.
func writeReport(path string, year int, rows []goals.Row) error {
	title := fmt.Sprintf("Metas Nacionais %d", year)
	pages, err := report.WritePDFFile(path, title, rows, report.GoalKeys(rows))
	if err != nil {
		return err
	}
	n, err := report.PageCount(path)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", path, err)
	}
	if n != pages {
		return fmt.Errorf("%s: %d pages written, %d read back", path, pages, n)
	}
	return nil
}

func printReport(w io.Writer, rep *pipeline.Report, written []string, errs []error) {
	fmt.Fprintf(w, "%d files, %d courts, %d skipped, %d consolidated rows\n",
		rep.Files, len(rep.Rows), len(rep.Skipped), rep.ConsolidatedRows)
	for _, p := range written {
		fmt.Fprintf(w, "  → %s\n", p)
	}
	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", filepath.Base(s.Path), s.Reason)
	}
	for _, msg := range rep.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", msg)
	}
	for _, err := range errs {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
}
