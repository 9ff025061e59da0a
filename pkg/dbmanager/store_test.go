package dbmanager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	workerA = protocol.WorkerIdentity{Host: "10.0.0.1", Port: 11732, DeleteQueue: "oph_delete.a.11732"}
	workerB = protocol.WorkerIdentity{Host: "10.0.0.2", Port: 11732, DeleteQueue: "oph_delete.b.11732"}
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ophidia.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWorkerUpIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.WorkerUp(ctx, workerA, 100, 4))
	require.NoError(t, store.WorkerUp(ctx, workerA, 200, 8))

	workers, err := store.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, workerA, workers[0].Identity())
	assert.Equal(t, StatusUp, workers[0].Status)
	assert.Equal(t, 200, workers[0].PID)
	assert.Equal(t, 8, workers[0].Count)
}

func TestInsertJobRequiresWorker(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	ok, err := store.InsertJob(ctx, workerA, 7, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	jobs, err := store.Jobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	err = store.Apply(ctx, protocol.Update{Worker: workerA, WorkflowID: 7, JobID: 3, Mode: protocol.ModeInsertJob})
	assert.ErrorIs(t, err, ErrUnknownWorker)
}

func TestInsertJobKeepsOneRowPerWorker(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.WorkerUp(ctx, workerA, 100, 4))
	require.NoError(t, store.WorkerUp(ctx, workerB, 101, 4))

	for i := 0; i < 2; i++ {
		ok, err := store.InsertJob(ctx, workerA, 7, 3)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := store.InsertJob(ctx, workerB, 7, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	jobs, err := store.Jobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	removed, err := store.RemoveJob(ctx, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestWorkerDownCascades(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.WorkerUp(ctx, workerA, 100, 4))
	require.NoError(t, store.WorkerUp(ctx, workerB, 101, 4))

	_, err := store.InsertJob(ctx, workerA, 7, 1)
	require.NoError(t, err)
	_, err = store.InsertJob(ctx, workerA, 7, 2)
	require.NoError(t, err)
	_, err = store.InsertJob(ctx, workerB, 8, 1)
	require.NoError(t, err)

	ok, err := store.WorkerDown(ctx, workerA)
	require.NoError(t, err)
	assert.True(t, ok)

	jobs, err := store.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 8, jobs[0].WorkflowID)
	assert.Equal(t, workerB.Host, jobs[0].Host)

	workers, err := store.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, StatusDown, workers[0].Status)
	assert.Zero(t, workers[0].PID)
	assert.Zero(t, workers[0].Count)
	assert.Equal(t, StatusUp, workers[1].Status)

	// A worker coming back reuses its row.
	require.NoError(t, store.WorkerUp(ctx, workerA, 300, 2))
	workers, err = store.Workers(ctx)
	require.NoError(t, err)
	assert.Len(t, workers, 2)
	assert.Equal(t, StatusUp, workers[0].Status)
}

func TestWorkerDownUnknownWorker(t *testing.T) {
	store := openStore(t)

	ok, err := store.WorkerDown(context.Background(), workerA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ophidia.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.WorkerUp(ctx, workerA, 100, 4))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	workers, err := store.Workers(ctx)
	require.NoError(t, err)
	assert.Len(t, workers, 1)
}

func TestInsertJobIgnoresDownWorker(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.WorkerUp(ctx, workerA, 100, 4))
	_, err := store.WorkerDown(ctx, workerA)
	require.NoError(t, err)

	ok, err := store.InsertJob(ctx, workerA, 7, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	jobs, err := store.Jobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	err = store.Apply(ctx, protocol.Update{Worker: workerA, WorkflowID: 7, JobID: 3, Mode: protocol.ModeInsertJob})
	assert.ErrorIs(t, err, ErrUnknownWorker)
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ophidia.db")

	_, err := OpenReadOnly(path)
	assert.Error(t, err)
	assert.NoFileExists(t, path)

	writer, err := Open(path)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.WorkerUp(ctx, workerA, 100, 4))

	reader, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer reader.Close()

	workers, err := reader.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, workerA, workers[0].Identity())

	assert.Error(t, reader.WorkerUp(ctx, workerB, 101, 4))
}
