package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/enhancedmem/internal/config"
	"github.com/scrypster/enhancedmem/internal/storage"
	"github.com/scrypster/enhancedmem/pkg/types"
)

func TestSelectSpan(t *testing.T) {
	msgs := conversation(10)

	tests := []struct {
		name     string
		n        int
		cursor   int
		archive  bool
		window   int
		wantSpan int
		wantNext int
		proceed  bool
		advance  bool
	}{
		{name: "normal keeps half window", n: 10, cursor: 0, window: 8, wantSpan: 6, wantNext: 6, proceed: true},
		{name: "normal from cursor", n: 10, cursor: 3, window: 8, wantSpan: 3, wantNext: 6, proceed: true},
		{name: "session shorter than kept half", n: 3, cursor: 0, window: 8, wantNext: 0},
		{name: "cursor inside kept region", n: 10, cursor: 7, window: 8, wantNext: 7},
		{name: "single message span advances", n: 10, cursor: 5, window: 8, wantSpan: 1, wantNext: 6, advance: true},
		{name: "archive takes the rest", n: 10, cursor: 4, archive: true, window: 8, wantSpan: 6, wantNext: 10, proceed: true},
		{name: "archive single message advances", n: 10, cursor: 9, archive: true, wantSpan: 1, wantNext: 10, advance: true},
		{name: "archive at end advances in place", n: 10, cursor: 10, archive: true, wantNext: 10, advance: true},
		{name: "cursor past end is clamped", n: 4, cursor: 9, archive: true, wantNext: 4, advance: true},
		{name: "zero window consolidates everything", n: 4, cursor: 0, window: 0, wantSpan: 4, wantNext: 4, proceed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := SelectSpan(msgs[:tt.n], tt.cursor, tt.archive, tt.window)
			assert.Len(t, sel.Span, tt.wantSpan)
			assert.Equal(t, tt.wantNext, sel.NextCursor)
			assert.Equal(t, tt.proceed, sel.Proceed)
			assert.Equal(t, tt.advance, sel.Advance)
		})
	}
}

func TestSplitForDetection(t *testing.T) {
	span := conversation(3)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	history, newMsgs := SplitForDetection(span, nil, now)
	assert.Equal(t, span[:2], history)
	assert.Equal(t, span[2:], newMsgs)

	pending := &types.Message{Content: "hello again"}
	history, newMsgs = SplitForDetection(span, pending, now)
	assert.Equal(t, span, history)
	require.Len(t, newMsgs, 1)
	assert.Equal(t, types.RoleUser, newMsgs[0].Role)
	assert.Equal(t, "2024-03-05T12:00:00.000000", newMsgs[0].Timestamp)
	assert.Empty(t, pending.Timestamp, "the caller's message is not modified")
}

func TestAfterBoundary(t *testing.T) {
	assert.Equal(t, types.StateBuildingCell, AfterBoundary(types.BoundaryDecision{End: true}, false))
	assert.Equal(t, types.StateWaiting, AfterBoundary(types.BoundaryDecision{Wait: true}, false))
	assert.Equal(t, types.StateWaiting, AfterBoundary(types.BoundaryDecision{}, false))
	assert.Equal(t, types.StateBuildingCell, AfterBoundary(types.BoundaryDecision{}, true))

	d := ArchiveDecision()
	assert.True(t, d.End)
	assert.False(t, d.Wait)
	assert.Equal(t, types.ArchiveSummary, d.Summary)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Boundary.HardMessageLimit = 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RecentEpisodes = -1
	assert.Error(t, cfg.Validate())
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Defaults()
	cfg.Memory.MaxDigestChars = 1200
	cfg.Memory.Window = 10
	cfg.Memory.RecentEpisodes = 0
	cfg.Boundary.HardMessageLimit = 20

	c := ConfigFrom(cfg)
	assert.Equal(t, 1200, c.MaxDigestChars)
	assert.Equal(t, 10, c.MemoryWindow)
	assert.Equal(t, 0, c.RecentEpisodes)
	assert.Equal(t, 20, c.Boundary.HardMessageLimit)
}

func TestOpenClusterStore(t *testing.T) {
	ctx := context.Background()
	layout := storage.NewLayout(t.TempDir())

	store, err := OpenClusterStore(ctx, config.StorageConfig{ClusterBackend: "json"}, layout)
	require.NoError(t, err)
	assert.IsType(t, &storage.FileClusterStore{}, store)
	require.NoError(t, store.Close())

	store, err = OpenClusterStore(ctx, config.StorageConfig{ClusterBackend: "sqlite"}, layout)
	require.NoError(t, err)
	require.NoError(t, store.Assign(ctx, "e1", "2024-03-01", "2024-03-01T10:00:00Z"))
	require.NoError(t, store.Close())
	assert.FileExists(t, layout.ClusterDBFile())

	_, err = OpenClusterStore(ctx, config.StorageConfig{ClusterBackend: "redis"}, layout)
	assert.Error(t, err)
}

func TestTraceCollector(t *testing.T) {
	tc := NewTraceCollector()
	assert.Nil(t, tc.States())

	ctx := WithTraceCollector(context.Background(), tc)
	emitToContext(ctx, TraceEvent{From: types.StateIdle, To: types.StateSelectingSpan})
	emitToContext(context.Background(), TraceEvent{From: types.StateIdle, To: types.StateFailed})

	got, ok := TraceCollectorFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, tc, got)
	assert.Equal(t, []types.ConsolidationState{types.StateIdle, types.StateSelectingSpan}, tc.States())
	assert.Contains(t, tc.String(), "idle -> selecting_span")
}
