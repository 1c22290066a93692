package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/enhancedmem/internal/storage"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// routedProvider answers each enricher prompt with a scripted reply, keyed by
// a phrase unique to that prompt.
type routedProvider struct {
	routes map[string]string
	fail   map[string]error
	calls  []string
}

func (r *routedProvider) Chat(ctx context.Context, messages []types.ChatMessage, model string, temperature float64) (string, error) {
	prompt := messages[len(messages)-1].Content
	for key, err := range r.fail {
		if strings.Contains(prompt, key) {
			r.calls = append(r.calls, key)
			return "", err
		}
	}
	for key, reply := range r.routes {
		if strings.Contains(prompt, key) {
			r.calls = append(r.calls, key)
			return reply, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

func (r *routedProvider) GetModel() string { return "stub" }

const (
	routeEpisode   = "distilling events"
	routeEventLog  = "information extraction analyst"
	routeForesight = "predict concrete ways"
	routeProfile   = "You maintain a user profile"
)

type fixture struct {
	layout   storage.Layout
	digest   *storage.DigestStore
	pipeline *Pipeline
	cell     types.MemCell
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	layout := storage.NewLayout(t.TempDir())
	require.NoError(t, layout.Ensure())

	digest := storage.NewDigestStore(layout, nil)
	p := NewPipeline(Stores{
		Episodes:   storage.NewJSONLLog(layout.EpisodesFile()),
		Foresights: storage.NewJSONLLog(layout.ForesightsFile()),
		History:    digest,
		Profile:    storage.NewProfileStore(layout.UserFile()),
	})
	n := 0
	p.newID = func() string { n++; return "fs-" + string(rune('0'+n)) }

	ts := time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC)
	cell := types.MemCell{
		EventID: "evt-1",
		OriginalData: []types.MemCellMessage{
			{Role: types.RoleUser, Content: "I am moving to Berlin next month", Timestamp: "2024-03-01T10:00:00Z", SpeakerName: "USER"},
			{Role: types.RoleAssistant, Content: "Congratulations!", Timestamp: "2024-03-01T10:01:00Z", SpeakerName: "ASSISTANT"},
		},
		Timestamp:    ts,
		Summary:      "Moving",
		Participants: []types.Role{types.RoleUser, types.RoleAssistant},
		Type:         types.MemCellType,
	}
	return &fixture{layout: layout, digest: digest, pipeline: p, cell: cell}
}

func TestRun_AllEnrichersSucceed(t *testing.T) {
	f := newFixture(t)
	provider := &routedProvider{routes: map[string]string{
		routeEpisode:   `{"title": "Moving to Berlin", "content": "The user shared plans to move.", "summary": "User moves to Berlin"}`,
		routeEventLog:  "```json\n{\"event_log\": {\"time\": \"2024-03-01T10:00:00\", \"atomic_fact\": [\"User is moving to Berlin\", \"  \", 42]}}\n```",
		routeForesight: `Here: [{"content": "User will look for an apartment", "evidence": "moving", "start_time": "2024-03-01", "end_time": "2024-04-01", "duration_days": "31"}, "junk"]`,
		routeProfile:   `{"operations": [{"action": "add", "type": "explicit_info", "data": {"category": "location", "description": "Moving to Berlin"}}, {"action": "update", "type": "explicit_info", "data": {"description": "x"}}]}`,
	}}

	res := f.pipeline.Run(context.Background(), provider, "m", f.cell)

	assert.Equal(t, []string{routeEpisode, routeEventLog, routeForesight, routeProfile}, provider.calls)
	assert.Equal(t, types.EnrichmentCompleted, res.EpisodeStatus)
	assert.Equal(t, types.EnrichmentCompleted, res.EventLogStatus)
	assert.Equal(t, types.EnrichmentCompleted, res.ForesightStatus)
	assert.Equal(t, types.EnrichmentCompleted, res.ProfileStatus)

	require.NotNil(t, res.Episode)
	assert.Equal(t, "User moves to Berlin", res.Episode.Summary)
	episodes, err := storage.ReadAll[types.Episode](storage.NewJSONLLog(f.layout.EpisodesFile()))
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "evt-1", episodes[0].EventID)

	assert.Equal(t, []string{"User is moving to Berlin"}, res.Facts)
	history, err := f.digest.ReadHistory(time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	assert.Equal(t, "[2024-03-01T10:00] User is moving to Berlin\n\n", history)

	require.Len(t, res.Foresights, 1)
	assert.Equal(t, "fs-1", res.Foresights[0].ID)
	assert.Equal(t, "evt-1", res.Foresights[0].EventID)
	assert.Equal(t, 31, res.Foresights[0].DurationDays)

	profile, err := os.ReadFile(f.layout.UserFile())
	require.NoError(t, err)
	assert.Equal(t, "## Conversation-derived\n\n- Moving to Berlin\n", string(profile))
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	f := newFixture(t)
	provider := &routedProvider{
		routes: map[string]string{
			routeEventLog: `not json at all`,
			routeProfile:  `{"operations": [{"action": "none"}]}`,
		},
		fail: map[string]error{
			routeEpisode:   errors.New("timeout"),
			routeForesight: errors.New("500"),
		},
	}

	res := f.pipeline.Run(context.Background(), provider, "m", f.cell)

	assert.Len(t, provider.calls, 4)
	assert.Equal(t, types.EnrichmentFailed, res.EpisodeStatus)
	assert.Equal(t, "timeout", res.EpisodeError)
	assert.Nil(t, res.Episode)
	assert.Equal(t, types.EnrichmentFailed, res.EventLogStatus)
	assert.Equal(t, types.EnrichmentFailed, res.ForesightStatus)
	assert.Equal(t, types.EnrichmentCompleted, res.ProfileStatus)
	assert.Empty(t, res.ProfileLines)
	assert.NoFileExists(t, f.layout.EpisodesFile())
	assert.NoFileExists(t, f.layout.UserFile())
}

func TestRun_EmptyTranscriptSkipsProfile(t *testing.T) {
	f := newFixture(t)
	f.cell.OriginalData = nil
	provider := &routedProvider{routes: map[string]string{
		routeEpisode:   `{"title": "t", "content": "c"}`,
		routeEventLog:  `[]`,
		routeForesight: `[]`,
	}}

	res := f.pipeline.Run(context.Background(), provider, "m", f.cell)
	assert.Equal(t, types.EnrichmentSkipped, res.ProfileStatus)
	assert.NotContains(t, provider.calls, routeProfile)
}

func TestRun_RecoversPanics(t *testing.T) {
	f := newFixture(t)
	f.pipeline.stores.Foresights = nil
	provider := &routedProvider{routes: map[string]string{
		routeEpisode:   `{"title": "t", "content": "c", "summary": "s"}`,
		routeEventLog:  `{"event_log": {"atomic_fact": []}}`,
		routeForesight: `[{"content": "x"}]`,
		routeProfile:   `{"operations": []}`,
	}}

	res := f.pipeline.Run(context.Background(), provider, "m", f.cell)
	assert.Equal(t, types.EnrichmentFailed, res.ForesightStatus)
	assert.Contains(t, res.ForesightError, "panic")
	assert.Equal(t, types.EnrichmentCompleted, res.ProfileStatus)
}

func TestEpisode_RepairAndSummaryFallback(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("a", 250)
	provider := &routedProvider{routes: map[string]string{
		routeEpisode: `{"title": "Trip", "content": "` + long + `",}`,
	}}

	ep, err := f.pipeline.extractEpisode(context.Background(), provider, "m", f.cell, "x")
	require.NoError(t, err)
	assert.Equal(t, "Trip", ep.Title)
	assert.Equal(t, strings.Repeat("a", 200), ep.Summary)
}

func TestEventLog_ListShapes(t *testing.T) {
	f := newFixture(t)
	provider := &routedProvider{routes: map[string]string{
		routeEventLog: `{"event_log": ["plain fact", {"fact": "keyed fact"}, {"content": "content fact"}, {"other": "ignored"}, ""]}`,
	}}

	facts, err := f.pipeline.extractEventLog(context.Background(), provider, "m", f.cell, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"plain fact", "keyed fact", "content fact"}, facts)

	history, err := f.digest.ReadHistory(f.cell.Timestamp)
	require.NoError(t, err)
	assert.Contains(t, history, "[2024-03-01T10:01] keyed fact")
}

func TestEventLog_BareList(t *testing.T) {
	f := newFixture(t)
	provider := &routedProvider{routes: map[string]string{
		routeEventLog: `Facts:
[{"atomic_fact": "User likes tea"}]`,
	}}

	facts, err := f.pipeline.extractEventLog(context.Background(), provider, "m", f.cell, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"User likes tea"}, facts)
}

func TestLifeProfile_ExistingDocumentAndIdempotence(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.layout.UserFile(), []byte("# User\n\nName: Sam\n"), 0o644))
	provider := &routedProvider{routes: map[string]string{
		routeProfile: `{"operations": [
			{"action": "add", "type": "explicit_info", "data": {"description": "Likes tea"}},
			{"action": "add", "type": "explicit_info", "data": {"description": "Likes tea"}},
			{"action": "add", "type": "implicit_trait", "data": {"description": "Curious"}},
			{"action": "add", "type": "explicit_info", "data": {"description": ""}},
			{"action": "delete", "type": "explicit_info", "data": {"description": "Name"}},
			{"action": "add", "type": "explicit_info", "data": {"description": "Works remotely"}}
		]}`,
	}}

	lines, err := f.pipeline.extractLifeProfile(context.Background(), provider, "m", "[t] USER: hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"- Likes tea", "- Works remotely"}, lines)

	doc, err := os.ReadFile(f.layout.UserFile())
	require.NoError(t, err)
	assert.Equal(t, "# User\n\nName: Sam\n\n## Conversation-derived\n\n- Likes tea\n- Works remotely\n", string(doc))

	// A later run whose only addition is the current last line changes nothing.
	provider.routes[routeProfile] = `{"operations": [{"action": "add", "type": "explicit_info", "data": {"description": "Works remotely"}}]}`
	lines, err = f.pipeline.extractLifeProfile(context.Background(), provider, "m", "[t] USER: hi")
	require.NoError(t, err)
	assert.Empty(t, lines)

	after, err := os.ReadFile(filepath.Clean(f.layout.UserFile()))
	require.NoError(t, err)
	assert.Equal(t, string(doc), string(after))
}

func TestAppendProfileLine(t *testing.T) {
	assert.Equal(t, "## Conversation-derived\n\n- a\n", appendProfileLine("", "- a"))
	assert.Equal(t, "## Conversation-derived\n\n- a\n- b\n", appendProfileLine("## Conversation-derived\n\n- a", "- b"))
}
