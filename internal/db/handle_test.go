package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return database, mock
}

func TestHandle_RetriesAfterFailedOpen(t *testing.T) {
	database, _ := newMockDB(t)
	defer database.Close()

	var calls int
	h := NewHandle(func(ctx context.Context) (*sql.DB, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection refused")
		}
		return database, nil
	})

	_, err := h.Get(context.Background())
	require.Error(t, err)

	got, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, database, got)

	got, err = h.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, database, got)
	assert.Equal(t, 2, calls)
}

func TestHandle_OpensOnceUnderConcurrency(t *testing.T) {
	database, _ := newMockDB(t)
	defer database.Close()

	var calls atomic.Int32
	h := NewHandle(func(ctx context.Context) (*sql.DB, error) {
		calls.Add(1)
		return database, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Get(context.Background()); err != nil {
				t.Errorf("Get error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestHandle_WaiterHonoursItsContext(t *testing.T) {
	database, _ := newMockDB(t)
	defer database.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	h := NewHandle(func(ctx context.Context) (*sql.DB, error) {
		close(started)
		<-release
		return database, nil
	})

	first := make(chan error, 1)
	go func() {
		_, err := h.Get(context.Background())
		first <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	begin := time.Now()
	_, err := h.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), time.Second)

	close(release)
	require.NoError(t, <-first)

	got, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, database, got)
}

func TestHandle_CancelledStarterDoesNotAbortOpen(t *testing.T) {
	database, _ := newMockDB(t)
	defer database.Close()

	release := make(chan struct{})
	h := NewHandle(func(ctx context.Context) (*sql.DB, error) {
		select {
		case <-release:
			return database, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	got, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, database, got)
}

func TestHandle_OpenTimeout(t *testing.T) {
	h := NewHandle(func(ctx context.Context) (*sql.DB, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).WithOpenTimeout(20 * time.Millisecond)

	_, err := h.Get(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandle_FromDBAndClose(t *testing.T) {
	database, mock := newMockDB(t)
	mock.ExpectPing()
	mock.ExpectClose()

	h := FromDB(database)
	require.NoError(t, h.Ping(context.Background()))
	require.NoError(t, h.Close())

	_, err := h.Get(context.Background())
	assert.ErrorIs(t, err, ErrHandleClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_CloseBeforeOpen(t *testing.T) {
	h := NewHandle(func(ctx context.Context) (*sql.DB, error) {
		t.Fatal("opener must not run")
		return nil, nil
	})

	require.NoError(t, h.Close())
	_, err := h.Get(context.Background())
	assert.ErrorIs(t, err, ErrHandleClosed)
}

func TestHandle_NoOpener(t *testing.T) {
	h := &Handle{}
	_, err := h.Get(context.Background())
	require.Error(t, err)
}

func TestRunMigrations_UsesEmbeddedDir(t *testing.T) {
	database, _ := newMockDB(t)
	defer database.Close()

	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(ctx context.Context, d *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), database))
	assert.Equal(t, "migrations", gotDir)

	gooseUp = func(ctx context.Context, d *sql.DB, dir string) error {
		return errors.New("boom")
	}
	err := RunMigrations(context.Background(), database)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migrations: boom")
}

func TestMigrationFilesEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	script, err := migrationFiles.ReadFile("migrations/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(script), "-- +goose Up")
	assert.Contains(t, string(script), "user_favourites")
}
