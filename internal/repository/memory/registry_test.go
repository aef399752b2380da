package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/shiftsolver/internal/entity"
	"github.com/hospitalops/shiftsolver/internal/repository"
)

func TestRunRegistryLifecycle(t *testing.T) {
	reg := NewRunRegistry()
	ctx := context.Background()

	id, err := reg.Create(ctx, entity.Request{HorizonDays: 7})
	require.NoError(t, err)

	run, err := reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusQueued, run.Status)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, reg.MarkRunning(ctx, id))
	run, err = reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusRunning, run.Status)

	obj := 1600.0
	assignments := []entity.RawAssignment{{EmployeeID: "E1"}}
	require.NoError(t, reg.Finalize(ctx, id, entity.RunStatusOptimal, &obj, assignments, "solved"))

	run, err = reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusOptimal, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, &obj, run.ObjectiveValue)
	assert.Len(t, run.Assignments, 1)
}

func TestRunRegistryDoubleFinalizeIsTerminalConflict(t *testing.T) {
	reg := NewRunRegistry()
	ctx := context.Background()

	id, err := reg.Create(ctx, entity.Request{})
	require.NoError(t, err)
	require.NoError(t, reg.Finalize(ctx, id, entity.RunStatusError, nil, nil, "cancelled"))

	err = reg.Finalize(ctx, id, entity.RunStatusError, nil, nil, "cancelled again")
	assert.True(t, repository.IsTerminalConflict(err))
}

func TestRunRegistryGetUnknownIsNotFound(t *testing.T) {
	reg := NewRunRegistry()
	_, err := reg.Get(context.Background(), "bogus")
	assert.True(t, repository.IsNotFound(err))
}

func TestRunRegistryListOrdersByCreatedAtDescending(t *testing.T) {
	reg := NewRunRegistry()
	ctx := context.Background()

	id1, _ := reg.Create(ctx, entity.Request{})
	id2, _ := reg.Create(ctx, entity.Request{})

	summaries, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	ids := map[string]bool{id1: true, id2: true}
	assert.True(t, ids[summaries[0].RunID])
	assert.True(t, ids[summaries[1].RunID])
	assert.False(t, summaries[0].CreatedAt.Before(summaries[1].CreatedAt))
}

func TestRunRegistryConcurrentFinalizeOnlyOneWins(t *testing.T) {
	reg := NewRunRegistry()
	ctx := context.Background()
	id, _ := reg.Create(ctx, entity.Request{})

	var wg sync.WaitGroup
	successes := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reg.Finalize(ctx, id, entity.RunStatusError, nil, nil, "race")
			successes <- err == nil
		}()
	}
	wg.Wait()
	close(successes)

	wins := 0
	for ok := range successes {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}
