package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Laraewellen/metas-judiciarias-etl/goals"
	"github.com/Laraewellen/metas-judiciarias-etl/staging"
	"github.com/Laraewellen/metas-judiciarias-etl/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const header = "sigla_tribunal;ramo_justica;julgados_2025;casos_novos_2025;dessobrestados_2025;suspensos_2025;julgm2_a;distm2_a;suspm2_a"

func writeFiles(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	paths, err := Discover(dir)
	require.NoError(t, err)
	return dir, paths
}

func court(code, branch string, rows ...string) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, r := range rows {
		b.WriteString(code + ";" + branch + ";" + r + "\n")
	}
	return b.String()
}

func codes(rows []goals.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.CourtCode
	}
	return out
}

func TestRunComputesRowsInFileOrder(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.csv": court("TJSP", "Justiça Estadual", "800;900;0;0;800;900;0"),
		"b.csv": court("TRT1", "Justiça do Trabalho", "50;100;0;0;10;20;0", "50;100;0;0;10;20;0"),
		"c.csv": court("TRF1", "Justiça Federal", "0;10;0;0;1;2;2"),
	})
	var out bytes.Buffer
	rep, err := New(Config{Workers: 3}).Run(context.Background(), paths, &out)
	require.NoError(t, err)

	assert.Equal(t, []string{"TJSP", "TRT1", "TRF1"}, codes(rep.Rows))
	assert.Equal(t, paths, rep.Sources)
	assert.Empty(t, rep.Skipped)
	assert.Empty(t, rep.UnmappedBranches)
	assert.Equal(t, 3, rep.Files)
	assert.Equal(t, 4, rep.ConsolidatedRows)

	got := map[string]string{}
	for _, r := range rep.Rows {
		m1, _ := r.Get("meta1")
		m2, _ := r.Get("meta2a")
		got[r.CourtCode] = m1.String() + " " + m2.String()
	}
	want := map[string]string{
		"TJSP": "88.89 111.11",
		"TRT1": "50.00 53.19",
		"TRF1": "0.00 NA",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("goal values mismatch (-want +got):\n%s", diff)
	}

	wantOut := header + "\n" +
		"TJSP;Justiça Estadual;800;900;0;0;800;900;0\n" +
		"TRT1;Justiça do Trabalho;50;100;0;0;10;20;0\n" +
		"TRT1;Justiça do Trabalho;50;100;0;0;10;20;0\n" +
		"TRF1;Justiça Federal;0;10;0;0;1;2;2\n"
	assert.Equal(t, wantOut, out.String())
}

// slowStore delays Put so that low indices finish last.
type slowStore struct {
	staging.Store
	delay func(key string) time.Duration
}

func (s slowStore) Put(ctx context.Context, key string, r io.Reader) (staging.Info, error) {
	time.Sleep(s.delay(key))
	return s.Store.Put(ctx, key, r)
}

func TestConsolidationIgnoresCompletionOrder(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 8; i++ {
		files[fmt.Sprintf("f%d.csv", i)] = court(fmt.Sprintf("T%d", i), "Justiça Estadual", fmt.Sprintf("%d;10;0;0;1;2;0", i))
	}
	_, paths := writeFiles(t, files)

	var sequential bytes.Buffer
	_, err := New(Config{Workers: 1}).Run(context.Background(), paths, &sequential)
	require.NoError(t, err)

	store := slowStore{Store: staging.NewMemory(), delay: func(key string) time.Duration {
		// keys are "<run>/<index>-<id>.csv"; earlier indices sleep longer
		idx := strings.SplitN(filepath.Base(key), "-", 2)[0]
		var n int
		fmt.Sscanf(idx, "%d", &n)
		return time.Duration(8-n) * 5 * time.Millisecond
	}}
	var parallel bytes.Buffer
	rep, err := New(Config{Workers: 8, Store: store}).Run(context.Background(), paths, &parallel)
	require.NoError(t, err)

	assert.Equal(t, sequential.String(), parallel.String())
	assert.Equal(t, []string{"T0", "T1", "T2", "T3", "T4", "T5", "T6", "T7"}, codes(rep.Rows))
}

func TestRunSkipsBadFiles(t *testing.T) {
	dir, paths := writeFiles(t, map[string]string{
		"1-good.csv":    court("TJSP", "Justiça Estadual", "1;2;0;0;1;2;0"),
		"2-empty.csv":   "",
		"3-header.csv":  header + "\n",
		"4-no-code.csv": "ramo_justica;julgados_2025\nJustiça Estadual;3\n",
		"5-ragged.csv":  header + "\nTJRJ;Justiça Estadual;1;2\n",
		"6-good.csv":    court("TJRJ", "Justiça Estadual", "4;8;0;0;1;2;0"),
	})
	missing := filepath.Join(dir, "7-missing.csv")
	paths = append(paths, missing)

	var out bytes.Buffer
	rep, err := New(Config{Workers: 2}).Run(context.Background(), paths, &out)
	require.NoError(t, err)

	assert.Equal(t, []string{"TJSP", "TJRJ"}, codes(rep.Rows))
	assert.Equal(t, 2, rep.ConsolidatedRows)
	var skipped []string
	for _, s := range rep.Skipped {
		skipped = append(skipped, filepath.Base(s.Path))
		assert.NotEmpty(t, s.Reason)
	}
	assert.Equal(t, []string{"2-empty.csv", "3-header.csv", "4-no-code.csv", "5-ragged.csv", "7-missing.csv"}, skipped)
	assert.Contains(t, rep.Skipped[2].Reason, table.ErrMissingColumn.Error())
}

// panicStore panics while staging the table of one court.
type panicStore struct {
	staging.Store
	court string
}

func (s panicStore) Put(ctx context.Context, key string, r io.Reader) (staging.Info, error) {
	data, _ := io.ReadAll(r)
	if bytes.Contains(data, []byte(s.court+";")) {
		panic("disk on fire")
	}
	return s.Store.Put(ctx, key, bytes.NewReader(data))
}

func TestRunIsolatesPanics(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.csv": court("TJAC", "Justiça Estadual", "1;2;0;0;1;2;0"),
		"b.csv": court("TJBA", "Justiça Estadual", "1;2;0;0;1;2;0"),
		"c.csv": court("TJCE", "Justiça Estadual", "1;2;0;0;1;2;0"),
	})
	mem := staging.NewMemory()
	var out bytes.Buffer
	rep, err := New(Config{Workers: 3, Store: panicStore{Store: mem, court: "TJBA"}}).Run(context.Background(), paths, &out)
	require.NoError(t, err)

	assert.Equal(t, []string{"TJAC", "TJCE"}, codes(rep.Rows))
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "b.csv", filepath.Base(rep.Skipped[0].Path))
	assert.Contains(t, rep.Skipped[0].Reason, "disk on fire")
	assert.Equal(t, 2, rep.ConsolidatedRows)
}

func TestRunReportsUnmappedBranchOnce(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.csv": court("TSM", "Tribunais Superiores", "1;2;0;0;800;900;0"),
		"b.csv": court("XYZ", "Tribunais Superiores", "1;2;0;0;1;2;0"),
		"c.csv": court("TJX", "Justiça Estadual", "1;2;0;0;1;2;0"),
	})
	core, logs := observer.New(zapcore.WarnLevel)
	rep, err := New(Config{Workers: 3, Logger: zap.New(core)}).Run(context.Background(), paths, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Tribunais Superiores"}, rep.UnmappedBranches)
	assert.Equal(t, 1, logs.FilterMessage("branch has no factor set, using default").Len())
	assert.Len(t, rep.Warnings, 1)

	// default factors apply: 800/900 × 1000/8
	v, _ := rep.Rows[0].Get("meta2a")
	assert.Equal(t, "111.11", v.String())
	assert.Equal(t, "Tribunais Superiores", rep.Rows[0].Label)
	assert.Zero(t, rep.ConsolidatedRows, "nil writer skips consolidation")
}

func TestRunWarnsOnDuplicateCourtCodes(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"old.csv": court("TJSP", "Justiça Estadual", "1;2;0;0;1;2;0"),
		"new.csv": court("tjsp", "Justiça Estadual", "1;2;0;0;1;2;0"),
	})
	rep, err := New(Config{}).Run(context.Background(), paths, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"court TJSP appears in 2 files: [new.csv old.csv]"}, rep.Warnings)
}

func TestRunRemovesStagedTables(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.csv": court("TJSP", "Justiça Estadual", "1;2;0;0;1;2;0"),
		"b.csv": court("TJRJ", "Justiça Estadual", "1;2;0;0;1;2;0"),
	})
	fsStore, err := staging.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	mem := staging.NewMemory()
	for _, s := range []staging.Store{mem, fsStore} {
		_, err := New(Config{Store: s}).Run(context.Background(), paths, io.Discard)
		require.NoError(t, err)
		left, err := s.List(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, left, "driver %s", s.Driver())
	}
	entries, err := os.ReadDir(fsStore.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunRemovesTempStagingRoot(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.csv": court("TJSP", "Justiça Estadual", "1;2;0;0;1;2;0"),
		"b.csv": court("TJRJ", "Justiça Estadual", "1;2;0;0;1;2;0"),
	})
	fsStore, err := staging.NewFilesystem("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsStore.Close() })

	_, err = New(Config{Store: fsStore}).Run(context.Background(), paths, io.Discard)
	require.NoError(t, err)
	assert.NoDirExists(t, fsStore.Root())
}

// failingDeletes keeps every object.
type failingDeletes struct{ staging.Store }

func (failingDeletes) Delete(context.Context, string) (bool, error) {
	return false, errors.New("permission denied")
}

func TestCleanupFailureIsWarning(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.csv": court("TJSP", "Justiça Estadual", "1;2;0;0;1;2;0"),
	})
	rep, err := New(Config{Store: failingDeletes{staging.NewMemory()}}).Run(context.Background(), paths, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"staging cleanup: 1 of 1 staged tables not removed"}, rep.Warnings)
}

// cancellingStore cancels the run while the first table is staged.
type cancellingStore struct {
	staging.Store
	once   sync.Once
	cancel context.CancelFunc
}

func (s *cancellingStore) Put(ctx context.Context, key string, r io.Reader) (staging.Info, error) {
	s.once.Do(func() {
		s.cancel()
		// let the dispatcher observe the cancellation while this unit is busy
		time.Sleep(50 * time.Millisecond)
	})
	return s.Store.Put(ctx, key, r)
}

func TestRunStopsDispatchOnCancel(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.csv": court("TJAC", "Justiça Estadual", "1;2;0;0;1;2;0"),
		"b.csv": court("TJBA", "Justiça Estadual", "1;2;0;0;1;2;0"),
		"c.csv": court("TJCE", "Justiça Estadual", "1;2;0;0;1;2;0"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{Store: staging.NewMemory(), cancel: cancel}

	var out bytes.Buffer
	rep, err := New(Config{Workers: 1, Store: store}).Run(ctx, paths, &out)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)

	assert.Equal(t, []string{"TJAC"}, codes(rep.Rows), "in-flight unit is collected")
	assert.Equal(t, 1, rep.ConsolidatedRows)
	require.Len(t, rep.Skipped, 2)
	assert.Contains(t, rep.Skipped[0].Reason, "not scheduled")
}

func TestRunSetupFailures(t *testing.T) {
	_, err := New(Config{}).Run(context.Background(), nil, io.Discard)
	assert.ErrorIs(t, err, ErrNoInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := New(Config{}).Run(ctx, []string{"x.csv"}, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rep)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")}, files)

	_, err = Discover(filepath.Join(dir, "nope"))
	assert.Error(t, err)

	_, err = Discover(t.TempDir())
	assert.ErrorIs(t, err, ErrNoInput)
}

type countingObserver struct {
	mu       sync.Mutex
	statuses map[string]int
	na       map[string]int
	unmapped []string
}

func (o *countingObserver) FileProcessed(status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[status]++
}

func (o *countingObserver) GoalComputed(key string, na bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if na {
		o.na[key]++
	}
}

func (o *countingObserver) UnmappedBranch(label string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unmapped = append(o.unmapped, label)
}

func TestRunNotifiesObserver(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.csv": court("TJSP", "Justiça Estadual", "1;2;0;0;1;2;0"),
		"b.csv": court("XX", "Justiça Desconhecida", "1;2;0;0;1;2;2"),
		"c.csv": "",
	})
	obs := &countingObserver{statuses: map[string]int{}, na: map[string]int{}}
	_, err := New(Config{Observer: obs, Workers: 2}).Run(context.Background(), paths, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{StatusOK: 2, StatusSkipped: 1}, obs.statuses)
	assert.Equal(t, []string{"Justiça Desconhecida"}, obs.unmapped)
	assert.Equal(t, 1, obs.na["meta2a"], "zero denominator in b.csv")
	assert.Zero(t, obs.na["meta1"])
}
