package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/emissions-engine/emissions"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(year int, s1 float64) emissions.Record {
	return emissions.Record{Year: year, Scope1: emissions.Float(s1)}
}

func TestStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// GIVEN: A record with a subcategory and gaps
	r := emissions.Record{
		Year:        2023,
		Scope1:      emissions.Float(84.8),
		DieselFleet: emissions.Float(21.8),
		Scope3:      emissions.Float(0),
	}
	require.NoError(t, s.Put(ctx, r))
	require.NoError(t, s.Put(ctx, record(2021, 10)))

	// WHEN: Reading it back
	got, err := s.Get(ctx, 2023)

	// THEN: Absent values stay absent, zero stays zero
	require.NoError(t, err)
	assert.True(t, got.Equal(r), got.String())
	assert.False(t, got.Has(emissions.FieldScope2))
	assert.True(t, got.Has(emissions.FieldScope3))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2021, 2023}, emissions.Dataset(all).Years())
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Put(ctx, emissions.Record{Year: 2022, Scope1: emissions.Float(1), Waste: emissions.Float(3)}))

	require.NoError(t, s.Put(ctx, record(2022, 2)))

	got, err := s.Get(ctx, 2022)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Value(emissions.FieldScope1))
	assert.False(t, got.Has(emissions.FieldWaste))
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, 2020)
	assert.ErrorIs(t, err, emissions.ErrRecordNotFound)

	assert.ErrorIs(t, s.Delete(ctx, 2020), emissions.ErrRecordNotFound)
	assert.ErrorIs(t, s.Replace(ctx, 2020, record(2021, 1)), emissions.ErrRecordNotFound)
}

func TestStore_ReplaceRenames(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Put(ctx, record(2022, 1)))

	require.NoError(t, s.Replace(ctx, 2022, record(2020, 5)))

	_, err := s.Get(ctx, 2022)
	assert.ErrorIs(t, err, emissions.ErrRecordNotFound)
	got, err := s.Get(ctx, 2020)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Value(emissions.FieldScope1))
}

func TestStore_PutBatchAndReplaceAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Put(ctx, record(2019, 1)))

	require.NoError(t, s.PutBatch(ctx, []emissions.Record{record(2019, 2), record(2020, 3)}))
	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2019, 2020}, emissions.Dataset(all).Years())
	assert.Equal(t, 2.0, all[0].Value(emissions.FieldScope1))

	require.NoError(t, s.ReplaceAll(ctx, []emissions.Record{record(2030, 4)}))
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2030}, emissions.Dataset(all).Years())
}

func TestStore_PutBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Year 1800 violates the table CHECK constraint.
	err := s.PutBatch(ctx, []emissions.Record{record(2019, 1), record(1800, 1)})

	require.Error(t, err)
	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_ImportRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, source := range []string{"first.csv", "second.csv", "third.csv"} {
		require.NoError(t, s.SaveImportRun(ctx, emissions.ImportRun{
			ID:           source,
			Source:       source,
			RowCount:     i + 1,
			CreatedYears: []int{2020 + i},
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := s.ListImportRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third.csv", runs[0].Source)
	assert.Equal(t, []int{2022}, runs[0].CreatedYears)
	assert.Equal(t, []int{}, runs[0].UpdatedYears)
	assert.True(t, runs[0].CreatedAt.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, "second.csv", runs[1].Source)

	all, err := s.ListImportRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "emissions.db")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, record(2022, 95)))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, 2022)
	require.NoError(t, err)
	assert.Equal(t, 95.0, got.Value(emissions.FieldScope1))
}

func TestStore_WithInventory(t *testing.T) {
	ctx := context.Background()
	inv := emissions.NewInventory(newTestStore(t))

	report, err := inv.BulkImport(ctx, []emissions.Record{record(2022, 1), record(2023, 2)}, true, "test")
	require.NoError(t, err)
	assert.Equal(t, []int{2022, 2023}, report.CreatedYears)

	runs, err := inv.ImportRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].RowCount)
}

func TestStore_BatchWithRun(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("records and run land together", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Put(ctx, record(2019, 9)))

		err := s.ReplaceAllWithRun(ctx, []emissions.Record{record(2022, 1)}, emissions.ImportRun{
			ID: "r1", Source: "sample:default", RowCount: 1, CreatedYears: []int{2022}, CreatedAt: at,
		})

		require.NoError(t, err)
		all, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 2022, all[0].Year)
		runs, err := s.ListImportRuns(ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "sample:default", runs[0].Source)
	})

	t.Run("failed run rolls back the records", func(t *testing.T) {
		// GIVEN: A run already saved under the id the import will reuse
		s := newTestStore(t)
		require.NoError(t, s.SaveImportRun(ctx, emissions.ImportRun{ID: "dup", Source: "first.csv", CreatedAt: at}))

		// WHEN: The batch is written with a run that violates the primary key
		err := s.PutBatchWithRun(ctx, []emissions.Record{record(2022, 1), record(2023, 2)}, emissions.ImportRun{
			ID: "dup", Source: "second.csv", RowCount: 2, CreatedAt: at.Add(time.Minute),
		})

		// THEN: Neither the records nor the run were committed
		require.Error(t, err)
		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
		runs, err := s.ListImportRuns(ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "first.csv", runs[0].Source)
	})
}
