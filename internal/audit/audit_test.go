package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aonescu/shopkeeper/internal/state"
	"github.com/aonescu/shopkeeper/internal/types"
)

var (
	_ Sink   = (*FileSink)(nil)
	_ Sink   = (*state.MemoryStore)(nil)
	_ Reader = (*state.MemoryStore)(nil)
)

type failingSink struct {
	closeErr error
}

func (f *failingSink) Append(context.Context, types.AuditEntry) error {
	return errors.New("disk full")
}

func (f *failingSink) Close() error { return f.closeErr }

// stalledSink never completes an append on its own, like a database behind a
// network partition.
type stalledSink struct{}

func (stalledSink) Append(ctx context.Context, _ types.AuditEntry) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledSink) Close() error { return nil }

func readLines(t *testing.T, path string) []types.AuditEntry {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []types.AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e types.AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e), "line %q", scanner.Text())
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	sink, err := OpenFile(path)
	require.NoError(t, err)

	log := NewLogger(zaptest.NewLogger(t), sink)
	log.Record(context.Background(), types.ActionCreateStart, map[string]string{"id": "store-a"})
	log.Record(context.Background(), types.ActionCreateSuccess, map[string]string{"id": "store-a"})
	require.NoError(t, log.Close())

	entries := readLines(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, types.ActionCreateStart, entries[0].Action)
	assert.Equal(t, types.ActionCreateSuccess, entries[1].Action)
	assert.Equal(t, "store-a", entries[1].Details["id"])
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestFileSink_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	for i := 0; i < 2; i++ {
		sink, err := OpenFile(path)
		require.NoError(t, err)
		NewLogger(zaptest.NewLogger(t), sink).Record(context.Background(), types.ActionOrchestratorStart, nil)
		require.NoError(t, sink.Close())
	}

	require.Len(t, readLines(t, path), 2)
}

func TestLogger_SinkFailureDoesNotStopOthers(t *testing.T) {
	mem := state.NewMemoryStore(10)
	log := NewLogger(zaptest.NewLogger(t), &failingSink{}, mem)

	log.Record(context.Background(), types.ActionDeleteStart, map[string]string{"id": "store-a"})

	require.Len(t, mem.All(), 1)
}

func TestLogger_CopiesDetails(t *testing.T) {
	mem := state.NewMemoryStore(10)
	log := NewLogger(zaptest.NewLogger(t), mem)

	details := map[string]string{"id": "store-a"}
	log.Record(context.Background(), types.ActionCreateStart, details)
	details["id"] = "mutated"

	assert.Equal(t, "store-a", mem.All()[0].Details["id"])
}

func TestLogger_RecordsAfterContextCancel(t *testing.T) {
	mem := state.NewMemoryStore(10)
	log := NewLogger(zaptest.NewLogger(t), mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	log.Record(ctx, types.ActionCreateFailed, nil)

	require.Len(t, mem.All(), 1)
}

func TestLogger_TotalOrderAcrossSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := OpenFile(path)
	require.NoError(t, err)

	mem := state.NewMemoryStore(1000)
	log := NewLogger(zaptest.NewLogger(t), sink, mem)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			log.Record(context.Background(), types.ActionCreateStart, map[string]string{"id": fmt.Sprintf("store-%d", i)})
		}(i)
	}
	wg.Wait()
	require.NoError(t, log.Close())

	fromFile := readLines(t, path)
	fromMem := mem.All()
	require.Len(t, fromFile, 50)
	require.Len(t, fromMem, 50)
	for i := range fromFile {
		assert.Equal(t, fromMem[i].Details["id"], fromFile[i].Details["id"])
		if i > 0 {
			assert.False(t, fromFile[i].Timestamp.Before(fromFile[i-1].Timestamp))
		}
	}
}

func TestLogger_CloseCombinesErrors(t *testing.T) {
	log := NewLogger(zaptest.NewLogger(t),
		&failingSink{closeErr: errors.New("first")},
		&failingSink{closeErr: errors.New("second")},
	)

	err := log.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}

func TestLogger_UsesInjectedClock(t *testing.T) {
	mem := state.NewMemoryStore(10)
	log := NewLogger(zaptest.NewLogger(t), mem)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	log.now = func() time.Time { return fixed }

	log.Record(context.Background(), types.ActionOrchestratorStart, nil)

	assert.Equal(t, fixed, mem.All()[0].Timestamp)
}

func TestLogger_StalledSinkDoesNotBlockCallers(t *testing.T) {
	mem := state.NewMemoryStore(10)
	log := NewLogger(zaptest.NewLogger(t), stalledSink{}, mem)
	log.appendTimeout = 50 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, id := range []string{"store-alpha", "store-beta"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				log.Record(context.Background(), types.ActionCreateStart, map[string]string{"id": id})
			}(id)
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record still blocked on a stalled sink")
	}

	// entries still reach the healthy sink
	require.Len(t, mem.All(), 2)
}
