package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"space-arena/internal/arena"
	"space-arena/internal/arena/spatial"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	alive int64
}

func (f *fakeSource) Counters() arena.Counters {
	return arena.Counters{Created: f.alive + 2, Alive: f.alive, Dead: 2, Dynamic: f.alive}
}

func (f *fakeSource) GridStats() spatial.Stats {
	return spatial.Stats{NonEmptyCells: 3, AvgBucketSize: 1.5, MaxBucketSize: 2, PairChecks: 1}
}

func openTest(t *testing.T, cfg Config, src Source) *Recorder {
	t.Helper()
	r, err := Open(cfg, src, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecordAndLatest(t *testing.T) {
	src := &fakeSource{}
	r := openTest(t, Config{Path: filepath.Join(t.TempDir(), "samples.db")}, src)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		src.alive = int64(i)
		_, err := r.Record(ctx)
		require.NoError(t, err)
	}

	got, err := r.Latest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Alive)
	assert.Equal(t, int64(2), got[1].Alive)
	assert.Equal(t, 3, got[0].NonEmpty)
	assert.InDelta(t, 1.5, got[0].AvgBucket, 1e-9)
}

func TestPruneKeepsNewest(t *testing.T) {
	src := &fakeSource{}
	r := openTest(t, Config{Retention: 2}, src)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		src.alive = int64(i)
		_, err := r.Record(ctx)
		require.NoError(t, err)
	}

	n, err := r.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := r.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(5), got[0].Alive)
}

func TestRunSamplesUntilCancelled(t *testing.T) {
	r := openTest(t, Config{Interval: 5 * time.Millisecond}, &fakeSource{alive: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := r.Latest(context.Background(), 5)
		return err == nil && len(got) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
