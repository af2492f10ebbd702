package emissions_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/emissions-engine/emissions"
	"github.com/warp/emissions-engine/emissions/store"
)

func newInventory(t *testing.T) (*emissions.Inventory, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return emissions.NewInventory(mem), mem
}

func TestInventory_CreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	inv, _ := newInventory(t)

	// GIVEN: A record entered through subcategories
	saved, err := inv.Create(ctx, emissions.Record{
		Year:              2023,
		NaturalGasHeating: emissions.Float(20),
		DieselGenerator:   emissions.Float(43),
		DieselFleet:       emissions.Float(21.8),
	})
	require.NoError(t, err)
	assert.Equal(t, 84.8, saved.Value(emissions.FieldScope1))

	// WHEN: Renaming it to 2022
	renamed, err := inv.Update(ctx, 2023, emissions.Record{Year: 2022, Scope2: emissions.Float(80)})
	require.NoError(t, err)
	assert.Equal(t, 2022, renamed.Year)

	// THEN: Only 2022 remains
	all, err := inv.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2022}, all.Years())
	_, err = inv.Get(ctx, 2023)
	assert.True(t, emissions.IsNotFound(err))

	// WHEN: Deleting it
	require.NoError(t, inv.Delete(ctx, 2022))
	assert.True(t, emissions.IsNotFound(inv.Delete(ctx, 2022)))
}

func TestInventory_CreateRefusesDuplicateAndInvalid(t *testing.T) {
	ctx := context.Background()
	inv, _ := newInventory(t)
	_, err := inv.Create(ctx, scopes(2022, 95, 80, 160))
	require.NoError(t, err)

	_, err = inv.Create(ctx, scopes(2022, 1, 1, 1))
	assert.ErrorIs(t, err, emissions.ErrDuplicateYear)

	_, err = inv.Create(ctx, emissions.Record{Year: 2023})
	var vErr *emissions.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.Fields.Has(emissions.FieldScope2, emissions.NoScopeData))

	got, err := inv.Get(ctx, 2022)
	require.NoError(t, err)
	assert.Equal(t, 95.0, got.Value(emissions.FieldScope1))
}

func TestInventory_ConcurrentCreateSameYear(t *testing.T) {
	ctx := context.Background()
	inv, _ := newInventory(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := inv.Create(ctx, scopes(2023, float64(i+1), 0, 0)); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	all, err := inv.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInventory_BulkImport(t *testing.T) {
	ctx := context.Background()
	inv, mem := newInventory(t)
	_, err := inv.Create(ctx, scopes(2022, 95, 80, 160))
	require.NoError(t, err)

	incoming := []emissions.Record{scopes(2022, 90, 80, 160), scopes(2023, 84.8, 70, 143)}

	t.Run("conflict without overwrite writes nothing", func(t *testing.T) {
		_, err := inv.BulkImport(ctx, incoming, false, "test")

		var conflict *emissions.ImportConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []int{2022}, conflict.Years)
		assert.True(t, emissions.IsConflict(err))

		all, err := inv.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{2022}, all.Years())
	})

	t.Run("invalid row writes nothing", func(t *testing.T) {
		bad := append([]emissions.Record{scopes(2024, 1, 1, 1)}, emissions.Record{Year: 2025, Scope1: emissions.Float(-1)})

		_, err := inv.BulkImport(ctx, bad, true, "test")

		assert.ErrorIs(t, err, emissions.ErrValidation)
		all, err := inv.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{2022}, all.Years())
	})

	t.Run("overwrite replaces", func(t *testing.T) {
		report, err := inv.BulkImport(ctx, incoming, true, "api:bulk-import")

		require.NoError(t, err)
		assert.Equal(t, []int{2023}, report.CreatedYears)
		assert.Equal(t, []int{2022}, report.UpdatedYears)

		got, err := inv.Get(ctx, 2022)
		require.NoError(t, err)
		assert.Equal(t, 90.0, got.Value(emissions.FieldScope1))
	})

	t.Run("runs are logged", func(t *testing.T) {
		runs, err := mem.ListImportRuns(ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "api:bulk-import", runs[0].Source)
		assert.Equal(t, 2, runs[0].RowCount)
		assert.NotEmpty(t, runs[0].ID)
		assert.False(t, runs[0].CreatedAt.IsZero())
	})
}

func TestInventory_ImportAndExportCSV(t *testing.T) {
	ctx := context.Background()
	inv, _ := newInventory(t)
	_, err := inv.Create(ctx, scopes(2023, 1, 1, 1))
	require.NoError(t, err)

	csvText := "Year,Scope 1,Scope 2,Natural Gas Heating\n2023,84.8,70,\n2022,,80,95\n"
	report, err := inv.ImportCSV(ctx, strings.NewReader(csvText), "upload.csv")
	require.NoError(t, err)
	assert.Equal(t, []int{2022}, report.CreatedYears)
	assert.Equal(t, []int{2023}, report.UpdatedYears)

	var b strings.Builder
	require.NoError(t, inv.ExportCSV(ctx, &b))
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2022,95,80,,95,,,,,,,,", lines[1])
	assert.Equal(t, "2023,84.8,70,,,,,,,,,,", lines[2])
}

func TestInventory_ImportCSVRejectsWholeFile(t *testing.T) {
	ctx := context.Background()
	inv, _ := newInventory(t)

	_, err := inv.ImportCSV(ctx, strings.NewReader("Year,Scope 1\n2022,5\n2023,oops\n"), "bad.csv")

	var csvErr *emissions.CSVError
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, 3, csvErr.Row)
	all, err := inv.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInventory_LoadReplacesDataset(t *testing.T) {
	ctx := context.Background()
	inv, _ := newInventory(t)
	_, err := inv.Create(ctx, scopes(1999, 1, 1, 1))
	require.NoError(t, err)

	sample, ok := emissions.LookupSample(emissions.SampleScopeTrend)
	require.True(t, ok)
	report, err := inv.Load(ctx, sample.Records, "sample:"+sample.ID)

	require.NoError(t, err)
	assert.Len(t, report.CreatedYears, 11)
	assert.Empty(t, report.UpdatedYears)
	all, err := inv.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2015, all[0].Year)
	assert.Equal(t, 2025, all[len(all)-1].Year)

	runs, err := inv.ImportRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "sample:scope-trend", runs[0].Source)
}

func TestInventory_ImportRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	inv, _ := newInventory(t)

	for _, source := range []string{"a", "b", "c"} {
		_, err := inv.BulkImport(ctx, []emissions.Record{scopes(2022, 1, 1, 1)}, true, source)
		require.NoError(t, err)
	}

	runs, err := inv.ImportRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].Source)
	assert.Equal(t, "b", runs[1].Source)
}

// plainStore hides the import log of the memory store.
type plainStore struct{ emissions.Store }

func TestInventory_ImportRunsWithoutLog(t *testing.T) {
	inv := emissions.NewInventory(plainStore{store.NewMemory()})

	_, err := inv.BulkImport(context.Background(), []emissions.Record{scopes(2022, 1, 1, 1)}, true, "x")
	require.NoError(t, err)

	runs, err := inv.ImportRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSamples(t *testing.T) {
	samples := emissions.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, emissions.SampleDefault, samples[0].ID)
	assert.Equal(t, emissions.SampleScopeTrend, samples[1].ID)

	for _, s := range samples {
		for _, r := range s.Records {
			assert.True(t, emissions.IsRolledUp(r), "%s %d", s.ID, r.Year)
			assert.True(t, emissions.Validate(r, nil).Valid(), "%s %d", s.ID, r.Year)
		}
	}

	_, ok := emissions.LookupSample("nope")
	assert.False(t, ok)
}

// unloggedStore keeps records but cannot write its import history.
type unloggedStore struct{ emissions.Store }

func (unloggedStore) SaveImportRun(context.Context, emissions.ImportRun) error {
	return errors.New("history unavailable")
}

func (unloggedStore) ListImportRuns(context.Context, int) ([]emissions.ImportRun, error) {
	return []emissions.ImportRun{}, nil
}

func TestInventory_HistoryFailureDoesNotFailCommittedImport(t *testing.T) {
	// GIVEN: A store whose import history rejects every run
	ctx := context.Background()
	mem := store.NewMemory()
	var logs bytes.Buffer
	inv := emissions.NewInventory(unloggedStore{mem}, emissions.WithLogger(zerolog.New(&logs)))

	// WHEN: Importing a year
	report, err := inv.BulkImport(ctx, []emissions.Record{scopes(2023, 84.8, 70, 143)}, true, "upload.csv")

	// THEN: The import succeeds because the record was committed
	require.NoError(t, err)
	assert.Equal(t, []int{2023}, report.CreatedYears)
	_, err = mem.Get(ctx, 2023)
	require.NoError(t, err)

	// AND: The missing history entry is logged at warn
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "history unavailable")
	assert.Contains(t, logs.String(), `"source":"upload.csv"`)

	logs.Reset()
	_, err = inv.Load(ctx, []emissions.Record{scopes(2020, 1, 2, 3)}, "sample:default")
	require.NoError(t, err)
	all, err := mem.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Contains(t, logs.String(), "sample:default")
}

// abortingStore fails every transactional import.
type abortingStore struct{ *store.Memory }

func (abortingStore) PutBatchWithRun(context.Context, []emissions.Record, emissions.ImportRun) error {
	return errors.New("transaction aborted")
}

func (abortingStore) ReplaceAllWithRun(context.Context, []emissions.Record, emissions.ImportRun) error {
	return errors.New("transaction aborted")
}

func TestInventory_FailedImportTransactionAppliesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Put(ctx, scopes(2019, 5, 5, 5)))
	inv := emissions.NewInventory(abortingStore{mem})

	_, err := inv.BulkImport(ctx, []emissions.Record{scopes(2023, 1, 2, 3)}, true, "upload.csv")
	require.Error(t, err)
	assert.False(t, emissions.IsClientError(err))

	_, err = inv.Load(ctx, []emissions.Record{scopes(2020, 1, 2, 3)}, "sample:default")
	require.Error(t, err)

	all, err := mem.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2019, all[0].Year)
	runs, err := mem.ListImportRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestInventory_ImportRecordsRunWithRecords(t *testing.T) {
	ctx := context.Background()
	inv, mem := newInventory(t)

	_, err := inv.BulkImport(ctx, []emissions.Record{scopes(2022, 1, 2, 3)}, true, "upload.csv")
	require.NoError(t, err)

	runs, err := mem.ListImportRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []int{2022}, runs[0].CreatedYears)
}

// countingStore counts deletes that reach storage.
type countingStore struct {
	emissions.Store
	deletes int
}

func (c *countingStore) Delete(ctx context.Context, year int) error {
	c.deletes++
	return c.Store.Delete(ctx, year)
}

func TestInventory_DeleteChecksDatasetFirst(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{Store: store.NewMemory()}
	require.NoError(t, counting.Put(ctx, scopes(2022, 1, 2, 3)))
	inv := emissions.NewInventory(counting)

	err := inv.Delete(ctx, 1999)
	assert.True(t, emissions.IsNotFound(err))
	assert.Zero(t, counting.deletes)

	require.NoError(t, inv.Delete(ctx, 2022))
	assert.Equal(t, 1, counting.deletes)
	_, err = counting.Get(ctx, 2022)
	assert.True(t, emissions.IsNotFound(err))
}
