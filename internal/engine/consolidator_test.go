package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/enhancedmem/internal/storage"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// memSession is an in-memory Session.
type memSession struct {
	msgs   []types.Message
	cursor int
	panics bool
}

func (s *memSession) Messages() []types.Message {
	if s.panics {
		panic("session exploded")
	}
	return s.msgs
}
func (s *memSession) LastConsolidated() int     { return s.cursor }
func (s *memSession) SetLastConsolidated(n int) { s.cursor = n }

// scriptedProvider answers each prompt with the reply of the first route
// whose key appears in the last message, and records which routes were hit.
type scriptedProvider struct {
	mu     sync.Mutex
	routes map[string]string
	err    error
	calls  []string
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []types.ChatMessage, model string, temperature float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prompt := messages[len(messages)-1].Content
	for key, reply := range p.routes {
		if strings.Contains(prompt, key) {
			p.calls = append(p.calls, key)
			if p.err != nil {
				return "", p.err
			}
			return reply, nil
		}
	}
	p.calls = append(p.calls, "unknown")
	if p.err != nil {
		return "", p.err
	}
	return "", errors.New("unexpected prompt")
}

func (p *scriptedProvider) GetModel() string { return "stub" }

func (p *scriptedProvider) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == key {
			n++
		}
	}
	return n
}

const (
	routeBoundary  = "should_end"
	routeEpisode   = "distilling events"
	routeEventLog  = "information extraction analyst"
	routeForesight = "predict concrete ways"
	routeProfile   = "You maintain a user profile"
)

func wellFormedProvider(boundaryReply string) *scriptedProvider {
	return &scriptedProvider{routes: map[string]string{
		routeBoundary:  boundaryReply,
		routeEpisode:   `{"title": "Berlin move", "content": "The user plans to move to Berlin.", "summary": "User plans to move to Berlin"}`,
		routeEventLog:  `{"event_log": {"time": "2024-03-01T10:01", "atomic_fact": []}}`,
		routeForesight: `[]`,
		routeProfile:   `{"operations": []}`,
	}}
}

var fixedNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func newTestConsolidator(t *testing.T) *Consolidator {
	t.Helper()
	layout := storage.NewLayout(t.TempDir())
	c, err := New(layout, storage.NewFileClusterStore(layout.ClusterStateFile()), DefaultConfig(), nil)
	require.NoError(t, err)
	c.SetClock(func() time.Time { return fixedNow })
	n := 0
	c.SetIDGenerator(func() string { n++; return fmt.Sprintf("evt-%d", n) })
	return c
}

func conversation(n int) []types.Message {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := make([]types.Message, n)
	for i := range msgs {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		msgs[i] = types.Message{
			Role:      role,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: start.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}
	}
	return msgs
}

func factLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "- ") {
			n++
		}
	}
	return n
}

func historyBlocks(s string) []string {
	var out []string
	for _, block := range strings.Split(s, "\n\n") {
		if strings.TrimSpace(block) != "" {
			out = append(out, strings.TrimSpace(block))
		}
	}
	return out
}

func memcells(t *testing.T, c *Consolidator) []types.MemCell {
	t.Helper()
	cells, err := storage.ReadAll[types.MemCell](c.memcells)
	require.NoError(t, err)
	return cells
}

func TestConsolidate_ArchiveEndToEnd(t *testing.T) {
	c := newTestConsolidator(t)
	ctx := context.Background()
	require.NoError(t, c.WriteLongTerm("# Memory\n\n- 2024-02-01T09:00: Older fact\n"))

	provider := wellFormedProvider(`{"should_end": false}`)
	sess := &memSession{msgs: []types.Message{
		{Role: types.RoleUser, Content: "I am moving to Berlin next month", Timestamp: "2024-03-01T10:00:00Z"},
		{Role: types.RoleAssistant, Content: "Congratulations!", Timestamp: "2024-03-01T10:01:00Z"},
	}}

	tc := NewTraceCollector()
	ok := c.Consolidate(WithTraceCollector(ctx, tc), sess, provider, "stub", Options{ArchiveAll: true})
	require.True(t, ok)

	cells := memcells(t, c)
	require.Len(t, cells, 1)
	assert.Equal(t, "evt-1", cells[0].EventID)
	assert.Equal(t, types.ArchiveSummary, cells[0].Summary)

	state, err := c.Clusters().State(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"evt-1": "2024-03-01"}, state.EventIDToCluster)

	history, err := c.ReadHistory(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"[2024-03-01T10:01] Session archived"}, historyBlocks(history))

	lt, err := c.ReadLongTerm()
	require.NoError(t, err)
	assert.Equal(t, 2, factLines(lt))
	assert.Contains(t, lt, "- 2024-03-01T10:01: User plans to move to Berlin")
	assert.True(t, strings.HasPrefix(lt, "# Memory"))

	assert.Equal(t, 2, sess.cursor)
	assert.Zero(t, provider.count(routeBoundary), "archive mode must not ask the boundary detector")
	assert.Equal(t, 1, provider.count(routeEpisode))

	assert.Equal(t, []types.ConsolidationState{
		types.StateIdle,
		types.StateSelectingSpan,
		types.StateBuildingCell,
		types.StateClustering,
		types.StateExtracting,
		types.StatePersistingDigest,
		types.StateIdle,
	}, tc.States())
}

func TestConsolidate_ArchiveWithoutEpisodeSkipsDigest(t *testing.T) {
	c := newTestConsolidator(t)
	provider := wellFormedProvider("")
	provider.routes[routeEpisode] = "no json here"
	sess := &memSession{msgs: conversation(3)}

	require.True(t, c.Consolidate(context.Background(), sess, provider, "stub", Options{ArchiveAll: true}))

	lt, err := c.ReadLongTerm()
	require.NoError(t, err)
	assert.Empty(t, lt)
	assert.Len(t, memcells(t, c), 1)
	assert.Equal(t, 3, sess.cursor)
}

func TestConsolidate_Idempotent(t *testing.T) {
	c := newTestConsolidator(t)
	provider := wellFormedProvider(`{"should_end": true, "topic_summary": "x"}`)
	sess := &memSession{msgs: conversation(2)}
	ctx := context.Background()

	require.True(t, c.Consolidate(ctx, sess, provider, "stub", Options{ArchiveAll: true}))
	require.Len(t, memcells(t, c), 1)

	require.True(t, c.Consolidate(ctx, sess, provider, "stub", Options{ArchiveAll: true}))
	require.True(t, c.Consolidate(ctx, sess, provider, "stub", Options{}))

	assert.Len(t, memcells(t, c), 1)
	assert.Equal(t, 2, sess.cursor)
}

func TestConsolidate_NormalModeClosesEpisode(t *testing.T) {
	c := newTestConsolidator(t)
	provider := wellFormedProvider(`Sure. {"should_end": true, "should_wait": false, "topic_summary": "Trip planning"}`)
	sess := &memSession{msgs: conversation(6)}

	require.True(t, c.Consolidate(context.Background(), sess, provider, "stub", Options{MemoryWindow: 4}))

	cells := memcells(t, c)
	require.Len(t, cells, 1)
	assert.Len(t, cells[0].OriginalData, 4, "the most recent half window stays unconsolidated")
	assert.Equal(t, "Trip planning", cells[0].Summary)
	assert.Equal(t, 4, sess.cursor)

	lt, err := c.ReadLongTerm()
	require.NoError(t, err)
	assert.Equal(t, "- 2024-03-01T10:03: Trip planning\n", lt)
	assert.Equal(t, 1, provider.count(routeBoundary))
}

func TestConsolidate_WaitLeavesCursor(t *testing.T) {
	c := newTestConsolidator(t)
	provider := wellFormedProvider(`{"should_end": false, "should_wait": true}`)
	sess := &memSession{msgs: conversation(6)}

	var states []types.ConsolidationState
	c.OnTransition(func(e TraceEvent) { states = append(states, e.To) })

	require.True(t, c.Consolidate(context.Background(), sess, provider, "stub", Options{MemoryWindow: 4}))

	assert.Zero(t, sess.cursor)
	assert.Empty(t, memcells(t, c))
	assert.Equal(t, []types.ConsolidationState{
		types.StateSelectingSpan,
		types.StateDetectingBoundary,
		types.StateWaiting,
		types.StateIdle,
	}, states)
}

func TestConsolidate_ProviderFailureLeavesCursor(t *testing.T) {
	c := newTestConsolidator(t)
	provider := wellFormedProvider("")
	provider.err = errors.New("connection refused")
	sess := &memSession{msgs: conversation(6)}

	require.True(t, c.Consolidate(context.Background(), sess, provider, "stub", Options{MemoryWindow: 4}))

	assert.Zero(t, sess.cursor)
	assert.Empty(t, memcells(t, c))
	assert.Equal(t, 3, provider.count(routeBoundary))
}

func TestConsolidate_PendingMessageIsTheNewSide(t *testing.T) {
	c := newTestConsolidator(t)
	provider := wellFormedProvider(`{"should_end": true, "topic_summary": "Greetings"}`)
	sess := &memSession{msgs: conversation(4)}
	pending := &types.Message{Role: types.RoleUser, Content: "new topic entirely"}

	require.True(t, c.Consolidate(context.Background(), sess, provider, "stub", Options{MemoryWindow: 2, PendingUserMessage: pending}))

	cells := memcells(t, c)
	require.Len(t, cells, 1)
	assert.Len(t, cells[0].OriginalData, 3, "the pending message is never part of the MemCell")
	assert.Equal(t, 3, sess.cursor)
}

func TestConsolidate_ShortSpanAdvancesCursor(t *testing.T) {
	c := newTestConsolidator(t)
	provider := wellFormedProvider("")
	sess := &memSession{msgs: conversation(3)}

	require.True(t, c.Consolidate(context.Background(), sess, provider, "stub", Options{MemoryWindow: 4}))

	assert.Equal(t, 1, sess.cursor)
	assert.Empty(t, provider.calls)
	assert.Empty(t, memcells(t, c))
}

func TestConsolidate_StorageErrorReturnsFalse(t *testing.T) {
	c := newTestConsolidator(t)
	require.NoError(t, os.MkdirAll(c.Layout().MemCellsFile(), 0o755))

	provider := wellFormedProvider("")
	sess := &memSession{msgs: conversation(2)}
	tc := NewTraceCollector()

	ok := c.Consolidate(WithTraceCollector(context.Background(), tc), sess, provider, "stub", Options{ArchiveAll: true})
	assert.False(t, ok)
	assert.Zero(t, sess.cursor)

	states := tc.States()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, types.StateFailed, states[len(states)-2])
	assert.Equal(t, types.StateIdle, states[len(states)-1])
}

func TestConsolidate_PanicReturnsFalse(t *testing.T) {
	c := newTestConsolidator(t)
	sess := &memSession{msgs: conversation(4), cursor: 1, panics: true}

	assert.NotPanics(t, func() {
		ok := c.Consolidate(context.Background(), sess, wellFormedProvider(""), "stub", Options{ArchiveAll: true})
		assert.False(t, ok)
	})
	assert.Equal(t, 1, sess.cursor)
}

func TestConsolidate_FailedRunIsRetryable(t *testing.T) {
	c := newTestConsolidator(t)
	blocker := c.Layout().MemCellsFile()
	require.NoError(t, os.MkdirAll(blocker, 0o755))

	provider := wellFormedProvider("")
	sess := &memSession{msgs: conversation(2)}
	require.False(t, c.Consolidate(context.Background(), sess, provider, "stub", Options{ArchiveAll: true}))

	require.NoError(t, os.Remove(blocker))
	require.True(t, c.Consolidate(context.Background(), sess, provider, "stub", Options{ArchiveAll: true}))
	assert.Len(t, memcells(t, c), 1)
	assert.Equal(t, 2, sess.cursor)
}

func TestMemoryContext(t *testing.T) {
	c := newTestConsolidator(t)

	got, err := c.MemoryContext()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.WriteLongTerm("- 2024-03-01T10:00: Likes tea"))
	for i := 1; i <= 4; i++ {
		require.NoError(t, c.episodes.Append(types.Episode{
			EventID:   fmt.Sprintf("e%d", i),
			Title:     fmt.Sprintf("Episode %d", i),
			Summary:   fmt.Sprintf("summary %d", i),
			Timestamp: time.Date(2024, 3, i, 9, 0, 0, 0, time.UTC),
		}))
	}

	got, err = c.MemoryContext()
	require.NoError(t, err)
	want := "## Long-term Memory\n- 2024-03-01T10:00: Likes tea\n\n" +
		"## Recent Episodes\n" +
		"**Episode 2** (2024-03-02): summary 2\n\n" +
		"**Episode 3** (2024-03-03): summary 3\n\n" +
		"**Episode 4** (2024-03-04): summary 4"
	assert.Equal(t, want, got)
}

func TestNew_Validation(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())

	_, err := New(layout, nil, DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxDigestChars = 0
	_, err = New(layout, storage.NewFileClusterStore(layout.ClusterStateFile()), cfg, nil)
	assert.Error(t, err)
}

type recordingNotifier struct {
	events []string
	err    error
}

func (n *recordingNotifier) Notify(eventType, eventID, clusterID string) error {
	n.events = append(n.events, eventType+" "+eventID+" "+clusterID)
	return n.err
}

func TestConsolidate_PublishesEvents(t *testing.T) {
	c := newTestConsolidator(t)
	n := &recordingNotifier{}
	c.SetNotifier(n)

	require.True(t, c.Consolidate(context.Background(), &memSession{msgs: conversation(2)}, wellFormedProvider(""), "stub", Options{ArchiveAll: true}))
	assert.Equal(t, []string{"memcell_stored evt-1 ", "consolidated evt-1 2024-03-01"}, n.events)
}

func TestConsolidate_NotifierFailureIsIgnored(t *testing.T) {
	c := newTestConsolidator(t)
	c.SetNotifier(&recordingNotifier{err: errors.New("disk full")})
	sess := &memSession{msgs: conversation(2)}

	require.True(t, c.Consolidate(context.Background(), sess, wellFormedProvider(""), "stub", Options{ArchiveAll: true}))
	assert.Equal(t, 2, sess.cursor)
}
