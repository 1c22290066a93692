package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to the database named by ENHANCEDMEM_TEST_POSTGRES_DSN
// and skips the test when it is unset.
func newTestStore(t *testing.T) *ClusterStore {
	t.Helper()
	dsn := os.Getenv("ENHANCEDMEM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ENHANCEDMEM_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	store, err := NewClusterStore(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, store.TruncateForTest(ctx))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestClusterStore_AssignAndMembers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Assign(ctx, "e2", "2024-03-01", "2024-03-01T10:00:00Z"))
	require.NoError(t, store.Assign(ctx, "e1", "2024-03-01", "2024-03-01T11:00:00Z"))
	require.NoError(t, store.Assign(ctx, "e3", "2024-03-02", "2024-03-02T09:00:00Z"))

	members, err := store.Members(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, members)

	state, err := store.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.ClusterCounts["2024-03-01"])
	assert.Equal(t, "2024-03-01T11:00:00Z", state.ClusterLastTS["2024-03-01"])
	assert.Len(t, state.EventIDToCluster, 3)
}

func TestClusterStore_DoubleAssignCountsTwice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Assign(ctx, "e1", "2024-03-01", "a"))
	require.NoError(t, store.Assign(ctx, "e1", "2024-03-01", "b"))

	state, err := store.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"e1": "2024-03-01"}, state.EventIDToCluster)
	assert.Equal(t, 2, state.ClusterCounts["2024-03-01"])
}
