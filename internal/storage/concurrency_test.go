package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"carga/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Concurrent admissions against the same resource and week must never push
// the booked total past the ceiling: the capacity check and the insert run
// inside a single immediate transaction.
func TestCreateAssignment_ConcurrentAdmissions(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRepository(filepath.Join(dir, "carga_test.db"))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	res := seedResource(t, repo, "Ana Torres")
	p := seedProject(t, repo, "Core Bancario")

	const workers = 8
	const pct = 30.0

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := newAssignment(p, res, mar04, mar04)
			errs[i] = repo.CreateAssignment(ctx, a, []core.WeekEntry{weekEntryFor(a, mar04, pct)})
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		var capErr *core.CapacityError
		require.True(t, errors.As(err, &capErr), "unexpected error: %v", err)
	}
	// 3 * 30 = 90 fits, a fourth would reach 120.
	assert.Equal(t, 3, admitted)

	total, err := repo.SumPercentage(ctx, res.ID, mar04)
	require.NoError(t, err)
	assert.LessOrEqual(t, total, core.CapacityCeiling+core.CapacityEpsilon)
	assert.Equal(t, 90.0, total)
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRepository(filepath.Join(dir, "carga_test.db"))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	res := seedResource(t, repo, "Ana Torres")
	p := seedProject(t, repo, "Core Bancario")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			a := newAssignment(p, res, mar04, mar04)
			_ = repo.CreateAssignment(ctx, a, []core.WeekEntry{weekEntryFor(a, mar04, 4)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, err := repo.SumPercentage(ctx, res.ID, mar04)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	total, err := repo.SumPercentage(ctx, res.ID, mar04)
	require.NoError(t, err)
	assert.Equal(t, 80.0, total)
}
