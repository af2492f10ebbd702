package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/emissions-engine/emissions"
)

func TestMemory_CRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	// GIVEN: Two years
	require.NoError(t, m.Put(ctx, emissions.Record{Year: 2023, Scope1: emissions.Float(84.8)}))
	require.NoError(t, m.Put(ctx, emissions.Record{Year: 2021, Scope2: emissions.Float(50)}))

	// THEN: List is ascending
	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2021, 2023}, emissions.Dataset(all).Years())

	// WHEN: Renaming 2023 to 2022
	require.NoError(t, m.Replace(ctx, 2023, emissions.Record{Year: 2022, Scope1: emissions.Float(80)}))
	_, err = m.Get(ctx, 2023)
	assert.ErrorIs(t, err, emissions.ErrRecordNotFound)

	// WHEN: Deleting
	require.NoError(t, m.Delete(ctx, 2022))
	assert.ErrorIs(t, m.Delete(ctx, 2022), emissions.ErrRecordNotFound)
	assert.ErrorIs(t, m.Replace(ctx, 2022, emissions.Record{Year: 2022}), emissions.ErrRecordNotFound)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := emissions.Record{Year: 2023, Scope1: emissions.Float(1)}
	require.NoError(t, m.Put(ctx, r))

	// Mutating the caller's record or a returned one leaves the store alone
	*r.Scope1 = 99
	got, err := m.Get(ctx, 2023)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Value(emissions.FieldScope1))

	*got.Scope1 = 42
	again, err := m.Get(ctx, 2023)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Value(emissions.FieldScope1))
}

func TestMemory_BatchAndReplaceAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, emissions.Record{Year: 2019, Scope1: emissions.Float(1)}))

	require.NoError(t, m.PutBatch(ctx, []emissions.Record{
		{Year: 2019, Scope1: emissions.Float(2)},
		{Year: 2020, Scope1: emissions.Float(3)},
	}))
	all, _ := m.List(ctx)
	assert.Equal(t, []int{2019, 2020}, emissions.Dataset(all).Years())
	assert.Equal(t, 2.0, all[0].Value(emissions.FieldScope1))

	require.NoError(t, m.ReplaceAll(ctx, []emissions.Record{{Year: 2030, Scope3: emissions.Float(1)}}))
	all, _ = m.List(ctx)
	assert.Equal(t, []int{2030}, emissions.Dataset(all).Years())
}

func TestMemory_ImportRuns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.SaveImportRun(ctx, emissions.ImportRun{ID: id, Source: id, CreatedAt: now}))
	}

	runs, err := m.ListImportRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.NotNil(t, runs[0].CreatedYears)

	runs, err = m.ListImportRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestMemory_BatchWithRun(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, emissions.Record{Year: 2019, Scope1: emissions.Float(1)}))

	require.NoError(t, m.PutBatchWithRun(ctx, []emissions.Record{{Year: 2022, Scope1: emissions.Float(2)}},
		emissions.ImportRun{ID: "a", Source: "upload.csv", CreatedYears: []int{2022}}))
	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, m.ReplaceAllWithRun(ctx, []emissions.Record{{Year: 2023, Scope1: emissions.Float(3)}},
		emissions.ImportRun{ID: "b", Source: "sample:default", CreatedYears: []int{2023}}))
	all, err = m.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2023, all[0].Year)

	runs, err := m.ListImportRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, "a", runs[1].ID)
}
